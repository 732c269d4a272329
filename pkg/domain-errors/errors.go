// Package domainerrors provides coded errors shared by every service.
//
// Services return *Error values so transports can map them without string
// matching. Codes are grouped into classes mirroring when the failure was
// detected:
//
//   - Input:  malformed or zero fields, rejected before any state read
//   - State:  rejected after an idempotency or lifecycle lookup
//   - Policy: rejected after consulting aggregate or collaborator state
//   - Internal: infrastructure failures, never caused by the caller
//
// Usage:
//
//	return dErrors.New(dErrors.CodeCapExceeded, "commitment exceeds raise cap")
//	return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load offering")
//	if dErrors.HasCode(err, dErrors.CodeAlreadySettled) { ... }
package domainerrors

import (
	"errors"
	"fmt"
)

// Code identifies a failure kind. Codes are stable and safe to expose in API
// responses.
type Code string

const (
	// Generic codes.
	CodeInvalidInput       Code = "invalid_input"
	CodeValidation         Code = "validation"
	CodeBadRequest         Code = "bad_request"
	CodeNotFound           Code = "not_found"
	CodeConflict           Code = "conflict"
	CodeUnauthorized       Code = "unauthorized"
	CodeTimeout            Code = "timeout"
	CodeInternal           Code = "internal"
	CodeInvariantViolation Code = "invariant_violation"

	// Input class.
	CodeZeroAddress       Code = "zero_address"
	CodeZeroAmount        Code = "zero_amount"
	CodeZeroUnits         Code = "zero_units"
	CodeInvalidDate       Code = "invalid_date"
	CodeInvalidActionType Code = "invalid_action_type"

	// State class.
	CodeAlreadyFinalized Code = "already_finalized"
	CodeAlreadySettled   Code = "already_settled"
	CodeAlreadyProcessed Code = "already_processed"
	CodeUnknownRequest   Code = "unknown_request"
	CodeNotInWindow      Code = "not_in_window"

	// Policy class.
	CodeNotAuthorized       Code = "not_authorized"
	CodeCapExceeded         Code = "cap_exceeded"
	CodeNotCompliant        Code = "not_compliant"
	CodeInvestorNotEligible Code = "investor_not_eligible"
	CodeCurrencyMismatch    Code = "currency_mismatch"

	// Security and payload validation.
	CodeInvalidSecurity     Code = "invalid_security"
	CodeInvalidActionAmount Code = "invalid_action_amount"
	CodeInvalidSplitRatio   Code = "invalid_split_ratio"
)

// Class groups codes by the stage at which they are detected.
type Class string

const (
	ClassInput    Class = "input"
	ClassState    Class = "state"
	ClassPolicy   Class = "policy"
	ClassInternal Class = "internal"
)

var codeClasses = map[Code]Class{
	CodeInvalidInput:        ClassInput,
	CodeValidation:          ClassInput,
	CodeBadRequest:          ClassInput,
	CodeZeroAddress:         ClassInput,
	CodeZeroAmount:          ClassInput,
	CodeZeroUnits:           ClassInput,
	CodeInvalidDate:         ClassInput,
	CodeInvalidActionType:   ClassInput,
	CodeInvalidSecurity:     ClassInput,
	CodeInvalidActionAmount: ClassInput,
	CodeInvalidSplitRatio:   ClassInput,

	CodeNotFound:           ClassState,
	CodeConflict:           ClassState,
	CodeAlreadyFinalized:   ClassState,
	CodeAlreadySettled:     ClassState,
	CodeAlreadyProcessed:   ClassState,
	CodeUnknownRequest:     ClassState,
	CodeNotInWindow:        ClassState,
	CodeInvariantViolation: ClassState,

	CodeUnauthorized:        ClassPolicy,
	CodeNotAuthorized:       ClassPolicy,
	CodeCapExceeded:         ClassPolicy,
	CodeNotCompliant:        ClassPolicy,
	CodeInvestorNotEligible: ClassPolicy,
	CodeCurrencyMismatch:    ClassPolicy,

	CodeTimeout:  ClassInternal,
	CodeInternal: ClassInternal,
}

// Class returns the class a code belongs to. Unknown codes are internal.
func (c Code) Class() Class {
	if class, ok := codeClasses[c]; ok {
		return class
	}
	return ClassInternal
}

// Error is a coded domain error with an optional wrapped cause.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a coded error.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Newf creates a coded error with a formatted message.
func Newf(code Code, format string, args ...any) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(err error, code Code, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, Err: err}
}

// CodeOf returns the outermost code in the chain, or CodeInternal for
// uncoded errors.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// ClassOf returns the class of the outermost code in the chain.
func ClassOf(err error) Class {
	return CodeOf(err).Class()
}

// HasCode reports whether the outermost coded error in the chain has code.
func HasCode(err error, code Code) bool {
	if err == nil {
		return false
	}
	return CodeOf(err) == code
}

// Is reports whether any coded error in the chain carries code.
func Is(err error, code Code) bool {
	for err != nil {
		var de *Error
		if !errors.As(err, &de) {
			return false
		}
		if de.Code == code {
			return true
		}
		err = de.Err
	}
	return false
}
