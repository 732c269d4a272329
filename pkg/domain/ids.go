package domain

import (
	"strings"
	"unicode"

	"github.com/google/uuid"

	dErrors "issuance/pkg/domain-errors"
)

// SecurityID is an ISIN-style identifier: two-letter country prefix, nine
// alphanumerics and a Luhn check digit.
//
// Usage: construct via ParseSecurityID at trust boundaries; direct casting
// bypasses validation.
type SecurityID string

// ParseSecurityID validates an ISIN.
//
// Errors: returns CodeInvalidSecurity for empty, malformed or checksum-failing
// input.
func ParseSecurityID(s string) (SecurityID, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidSecurity, "security identifier cannot be empty")
	}
	if len(s) != 12 {
		return "", dErrors.New(dErrors.CodeInvalidSecurity, "security identifier must be 12 characters")
	}
	if !unicode.IsLetter(rune(s[0])) || !unicode.IsLetter(rune(s[1])) {
		return "", dErrors.New(dErrors.CodeInvalidSecurity, "security identifier must start with a country code")
	}
	if !isAlphanumeric(s) || !unicode.IsDigit(rune(s[11])) {
		return "", dErrors.New(dErrors.CodeInvalidSecurity, "security identifier contains invalid characters")
	}
	if !luhnValid(expandAlphanumeric(s)) {
		return "", dErrors.New(dErrors.CodeInvalidSecurity, "security identifier check digit mismatch")
	}
	return SecurityID(s), nil
}

func (id SecurityID) String() string { return string(id) }

func (id SecurityID) IsNil() bool { return id == "" }

// LEI is a 20-character ISO 17442 legal entity identifier.
type LEI string

// ParseLEI validates the LEI length, alphabet and mod-97 checksum.
func ParseLEI(s string) (LEI, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "LEI cannot be empty")
	}
	if len(s) != 20 || !isAlphanumeric(s) {
		return "", dErrors.New(dErrors.CodeInvalidInput, "LEI must be 20 alphanumeric characters")
	}
	if mod97(expandAlphanumeric(s)) != 1 {
		return "", dErrors.New(dErrors.CodeInvalidInput, "LEI checksum mismatch")
	}
	return LEI(s), nil
}

func (l LEI) String() string { return string(l) }

func (l LEI) IsNil() bool { return l == "" }

// UPI is a unique product identifier. Its format is owned by the issuing
// agency, so only presence is validated.
type UPI string

func ParseUPI(s string) (UPI, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "UPI cannot be empty")
	}
	return UPI(s), nil
}

func (u UPI) String() string { return string(u) }

// UTI identifies a single derivative trade report.
type UTI string

func ParseUTI(s string) (UTI, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "UTI cannot be empty")
	}
	if len(s) > 52 || !isAlphanumeric(s) {
		return "", dErrors.New(dErrors.CodeInvalidInput, "UTI must be at most 52 alphanumeric characters")
	}
	return UTI(s), nil
}

func (u UTI) String() string { return string(u) }

// InvestorID is the on-ledger address of an investor. Addresses are compared
// case-insensitively, so they are normalized to lower case.
type InvestorID string

const zeroAddress = "0x0000000000000000000000000000000000000000"

// ParseInvestorID normalizes an address.
//
// Errors: returns CodeZeroAddress for empty or all-zero addresses.
func ParseInvestorID(s string) (InvestorID, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" || s == zeroAddress {
		return "", dErrors.New(dErrors.CodeZeroAddress, "investor address cannot be zero")
	}
	return InvestorID(s), nil
}

func (id InvestorID) String() string { return string(id) }

func (id InvestorID) IsNil() bool { return id == "" || string(id) == zeroAddress }

// PrincipalID identifies an acting principal for authorization.
type PrincipalID string

func (p PrincipalID) String() string { return string(p) }

func (p PrincipalID) IsNil() bool { return p == "" }

// RequestID identifies an outstanding external request.
type RequestID uuid.UUID

func NewRequestID() RequestID { return RequestID(uuid.New()) }

// ParseRequestID parses a non-nil UUID.
func ParseRequestID(s string) (RequestID, error) {
	u, err := parseUUID(s)
	if err != nil {
		return RequestID(uuid.Nil), err
	}
	return RequestID(u), nil
}

func (id RequestID) String() string { return uuid.UUID(id).String() }

func (id RequestID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }

func (id RequestID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

func (id *RequestID) UnmarshalText(b []byte) error {
	parsed, err := ParseRequestID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// Currency is an ISO 4217 alphabetic code.
type Currency string

func ParseCurrency(s string) (Currency, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if len(s) != 3 {
		return "", dErrors.New(dErrors.CodeInvalidInput, "currency must be a 3-letter code")
	}
	for _, r := range s {
		if r < 'A' || r > 'Z' {
			return "", dErrors.New(dErrors.CodeInvalidInput, "currency must be a 3-letter code")
		}
	}
	return Currency(s), nil
}

func (c Currency) String() string { return string(c) }

func parseUUID(s string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id cannot be empty")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid id format")
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id cannot be nil")
	}
	return u, nil
}

func isAlphanumeric(s string) bool {
	for _, r := range s {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}

// expandAlphanumeric maps A..Z to 10..35 and keeps digits, producing the
// numeric string both ISIN and LEI checksums operate on.
func expandAlphanumeric(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= 'A' && r <= 'Z' {
			n := int(r-'A') + 10
			b.WriteByte(byte('0' + n/10))
			b.WriteByte(byte('0' + n%10))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func luhnValid(digits string) bool {
	sum := 0
	double := false
	for i := len(digits) - 1; i >= 0; i-- {
		n := int(digits[i] - '0')
		if double {
			n *= 2
			if n > 9 {
				n -= 9
			}
		}
		sum += n
		double = !double
	}
	return sum%10 == 0
}

func mod97(digits string) int {
	rem := 0
	for i := 0; i < len(digits); i++ {
		rem = (rem*10 + int(digits[i]-'0')) % 97
	}
	return rem
}
