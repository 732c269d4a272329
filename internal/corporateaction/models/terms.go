package models

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/shopspring/decimal"

	id "issuance/pkg/domain"
	dErrors "issuance/pkg/domain-errors"
)

// Split ratio terms are bounded to [1, maxRatioTerm].
const maxRatioTerm = 1000

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("corporate action: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{
		DupMapKey:       cbor.DupMapKeyEnforcedAPF,
		MaxNestedLevels: 4,
	}.DecMode()
	if err != nil {
		panic("corporate action: CBOR decoder initialization failed: " + err.Error())
	}
}

// Terms is the decoded, validated payload of one action kind.
type Terms interface {
	Kind() Kind
	isTerms()
}

type DividendTerms struct {
	AmountPerUnit decimal.Decimal
	// Currency is empty when the dividend is paid in the security's currency.
	Currency id.Currency
}

type SplitTerms struct {
	Numerator   int64
	Denominator int64
}

// MergerTerms without a target security describe a redemption.
type MergerTerms struct {
	TargetSecurity *id.SecurityID
	ExchangeRate   decimal.Decimal
}

func (DividendTerms) Kind() Kind { return KindDividend }
func (SplitTerms) Kind() Kind    { return KindSplit }
func (MergerTerms) Kind() Kind   { return KindMerger }

func (DividendTerms) isTerms() {}
func (SplitTerms) isTerms()    {}
func (MergerTerms) isTerms()   {}

func (m MergerTerms) Redemption() bool { return m.TargetSecurity == nil }

// Wire shapes. Decimals travel as strings so precision survives any encoder.
type dividendWire struct {
	AmountPerUnit string `cbor:"amount_per_unit"`
	Currency      string `cbor:"currency,omitempty"`
}

type splitWire struct {
	Numerator   int64 `cbor:"numerator"`
	Denominator int64 `cbor:"denominator"`
}

type mergerWire struct {
	TargetSecurity string `cbor:"target_security,omitempty"`
	ExchangeRate   string `cbor:"exchange_rate,omitempty"`
}

// EncodeTerms produces the canonical CBOR payload for t.
func EncodeTerms(t Terms) ([]byte, error) {
	var wire any
	switch v := t.(type) {
	case DividendTerms:
		wire = dividendWire{AmountPerUnit: v.AmountPerUnit.String(), Currency: v.Currency.String()}
	case SplitTerms:
		wire = splitWire{Numerator: v.Numerator, Denominator: v.Denominator}
	case MergerTerms:
		w := mergerWire{}
		if v.TargetSecurity != nil {
			w.TargetSecurity = v.TargetSecurity.String()
			w.ExchangeRate = v.ExchangeRate.String()
		}
		wire = w
	default:
		return nil, fmt.Errorf("unsupported terms type %T", t)
	}
	return encMode.Marshal(wire)
}

// DecodeTerms decodes and validates payload as the terms of kind.
//
// Errors: InvalidActionType for an unknown kind; InvalidActionAmount for a
// malformed or non-positive dividend or exchange rate; InvalidSplitRatio for
// a malformed ratio or a term outside [1, 1000]; InvalidSecurity for a
// malformed merger target.
func DecodeTerms(kind Kind, payload []byte) (Terms, error) {
	switch kind {
	case KindDividend:
		return decodeDividend(payload)
	case KindSplit:
		return decodeSplit(payload)
	case KindMerger:
		return decodeMerger(payload)
	}
	return nil, dErrors.Newf(dErrors.CodeInvalidActionType, "unknown corporate action type %q", kind)
}

func decodeDividend(payload []byte) (Terms, error) {
	var w dividendWire
	if err := decMode.Unmarshal(payload, &w); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInvalidActionAmount, "malformed dividend payload")
	}
	amount, err := decimal.NewFromString(w.AmountPerUnit)
	if err != nil {
		return nil, dErrors.Newf(dErrors.CodeInvalidActionAmount, "malformed dividend amount %q", w.AmountPerUnit)
	}
	if !amount.IsPositive() {
		return nil, dErrors.New(dErrors.CodeInvalidActionAmount, "dividend amount per unit must be positive")
	}
	t := DividendTerms{AmountPerUnit: amount}
	if w.Currency != "" {
		if t.Currency, err = id.ParseCurrency(w.Currency); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInvalidActionAmount, "malformed dividend currency")
		}
	}
	return t, nil
}

func decodeSplit(payload []byte) (Terms, error) {
	var w splitWire
	if err := decMode.Unmarshal(payload, &w); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInvalidSplitRatio, "malformed split payload")
	}
	if w.Numerator < 1 || w.Numerator > maxRatioTerm || w.Denominator < 1 || w.Denominator > maxRatioTerm {
		return nil, dErrors.Newf(dErrors.CodeInvalidSplitRatio, "split ratio %d:%d must use terms in [1, %d]",
			w.Numerator, w.Denominator, maxRatioTerm)
	}
	return SplitTerms{Numerator: w.Numerator, Denominator: w.Denominator}, nil
}

func decodeMerger(payload []byte) (Terms, error) {
	var w mergerWire
	if err := decMode.Unmarshal(payload, &w); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInvalidActionAmount, "malformed merger payload")
	}
	if w.TargetSecurity == "" {
		return MergerTerms{}, nil
	}
	target, err := id.ParseSecurityID(w.TargetSecurity)
	if err != nil {
		return nil, err
	}
	rate := decimal.Zero
	if w.ExchangeRate != "" {
		if rate, err = decimal.NewFromString(w.ExchangeRate); err != nil {
			return nil, dErrors.Newf(dErrors.CodeInvalidActionAmount, "malformed exchange rate %q", w.ExchangeRate)
		}
	}
	if !rate.IsPositive() {
		return nil, dErrors.New(dErrors.CodeInvalidActionAmount, "exchange rate must be positive when a target security is set")
	}
	return MergerTerms{TargetSecurity: &target, ExchangeRate: rate}, nil
}

// TermsPayload renders t for events and API responses.
func TermsPayload(t Terms) map[string]any {
	switch v := t.(type) {
	case DividendTerms:
		out := map[string]any{"amount_per_unit": v.AmountPerUnit.String()}
		if v.Currency != "" {
			out["currency"] = v.Currency.String()
		}
		return out
	case SplitTerms:
		return map[string]any{"numerator": v.Numerator, "denominator": v.Denominator}
	case MergerTerms:
		if v.Redemption() {
			return map[string]any{"redemption": true}
		}
		return map[string]any{"target_security": v.TargetSecurity.String(), "exchange_rate": v.ExchangeRate.String()}
	}
	return nil
}

// EncodeWire encodes loosely typed terms with the canonical options. The
// result is validated like any other payload when decoded.
func EncodeWire(v any) ([]byte, error) {
	return encMode.Marshal(v)
}
