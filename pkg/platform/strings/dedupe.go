// Package strings holds list helpers for comma-separated configuration values.
package strings

import (
	"strings"
)

// SplitList splits a comma-separated value and drops blanks and duplicates.
// Broker addresses keep their case.
//
//	SplitList(" kafka-1:9092, ,kafka-2:9092,kafka-1:9092")
//	// []string{"kafka-1:9092", "kafka-2:9092"}
func SplitList(v string) []string {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return dedupe(strings.Split(v, ","), nil)
}

// SplitCodes is SplitList for code lists such as jurisdictions, upper-casing
// each entry so "de" and "DE" collapse.
func SplitCodes(v string) []string {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return dedupe(strings.Split(v, ","), strings.ToUpper)
}

func dedupe(values []string, normalize func(string) string) []string {
	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if normalize != nil {
			v = normalize(v)
		}
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		result = append(result, v)
	}
	return result
}
