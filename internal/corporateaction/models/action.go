// Package models holds corporate actions and their tagged terms.
package models

import (
	"strings"
	"time"

	id "issuance/pkg/domain"
	dErrors "issuance/pkg/domain-errors"
)

type Kind string

const (
	KindDividend Kind = "DIVIDEND"
	KindSplit    Kind = "SPLIT"
	KindMerger   Kind = "MERGER"
)

// ParseKind rejects unknown tags explicitly.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToUpper(strings.TrimSpace(s))); k {
	case KindDividend, KindSplit, KindMerger:
		return k, nil
	}
	return "", dErrors.Newf(dErrors.CodeInvalidActionType, "unknown corporate action type %q", s)
}

// Action is an announcement as delivered: the payload is still opaque.
type Action struct {
	Reference     string
	SecurityID    id.SecurityID
	Kind          Kind
	EffectiveDate time.Time
	RecordDate    *time.Time
	Payload       []byte
}

type Status string

const (
	StatusRecorded Status = "recorded"
	// StatusRejected is only produced when references are claimed before
	// validation.
	StatusRejected Status = "rejected"
)

// Fact is a processed corporate action. Facts are append-only.
type Fact struct {
	Reference     string
	SecurityID    id.SecurityID
	Kind          Kind
	EffectiveDate time.Time
	RecordDate    *time.Time
	Terms         Terms
	Payload       []byte
	Status        Status
	Reason        string
	ProcessedAt   time.Time
}
