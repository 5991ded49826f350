// Package apperr defines the error taxonomy shared by the triage, staffing,
// scheduling and patient components. Errors carry a Kind (how the caller can
// recover) and a Code (what went wrong) plus enough structure to correct and
// retry the request.
package apperr

import (
	"errors"
	"fmt"
)

// Kind groups codes by recovery strategy.
type Kind string

const (
	// KindValidation errors are recoverable locally by correcting the input.
	KindValidation Kind = "validation"
	// KindConflict errors are recoverable by re-fetching and retrying.
	KindConflict Kind = "conflict"
	// KindState errors represent a caller logic defect and are not retryable.
	KindState Kind = "state"
	// KindNotFound is returned when a referenced entity does not exist.
	KindNotFound Kind = "not_found"
)

// Code identifies a specific failure.
type Code string

const (
	CodeInvalidObservation   Code = "InvalidObservation"
	CodeUnknownArea          Code = "UnknownArea"
	CodeStaffingInsufficient Code = "StaffingInsufficient"
	CodeInactiveEmployee     Code = "InactiveEmployee"
	CodeRoleMismatch         Code = "RoleMismatch"
	CodeUnknownEmployee      Code = "UnknownEmployee"
	CodeInvalidShift         Code = "InvalidShift"
	CodeInvalidInput         Code = "InvalidInput"

	CodeDuplicateAssignment Code = "DuplicateAssignment"
	CodeOverlappingShift    Code = "OverlappingShift"
	CodeStaleWrite          Code = "StaleWrite"
	CodeWeeklyLimitExceeded Code = "WeeklyLimitExceeded"

	CodePatientInTerminalState Code = "PatientInTerminalState"
	CodeIllegalTransition      Code = "IllegalTransition"

	CodeLeaveQuotaExceeded Code = "LeaveQuotaExceeded"
	CodeLeaveNotPending    Code = "LeaveNotPending"

	CodeNotFound Code = "NotFound"
)

var codeKinds = map[Code]Kind{
	CodeInvalidObservation:     KindValidation,
	CodeUnknownArea:            KindValidation,
	CodeStaffingInsufficient:   KindValidation,
	CodeInactiveEmployee:       KindValidation,
	CodeRoleMismatch:           KindValidation,
	CodeUnknownEmployee:        KindValidation,
	CodeInvalidShift:           KindValidation,
	CodeInvalidInput:           KindValidation,
	CodeDuplicateAssignment:    KindConflict,
	CodeOverlappingShift:       KindConflict,
	CodeStaleWrite:             KindConflict,
	CodeWeeklyLimitExceeded:    KindConflict,
	CodePatientInTerminalState: KindState,
	CodeIllegalTransition:      KindState,
	CodeLeaveQuotaExceeded:     KindValidation,
	CodeLeaveNotPending:        KindState,
	CodeNotFound:               KindNotFound,
}

// Error is the structured error returned by the engine.
type Error struct {
	Kind    Kind   `json:"kind"`
	Code    Code   `json:"code"`
	Message string `json:"message"`
	// Field names the offending input field, when there is one.
	Field string `json:"field,omitempty"`
	// Details carries code-specific structure (deficiency list, rejected edge).
	Details interface{} `json:"details,omitempty"`
}

func (e *Error) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s (field %s)", e.Code, e.Message, e.Field)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is matches any *Error with the same code, so the sentinels below work with
// errors.Is regardless of message or details.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// New builds an error for code; the kind is derived from the code.
func New(code Code, format string, args ...interface{}) *Error {
	kind, ok := codeKinds[code]
	if !ok {
		kind = KindValidation
	}
	return &Error{Kind: kind, Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithField returns a copy of e naming the offending field.
func (e *Error) WithField(field string) *Error {
	cp := *e
	cp.Field = field
	return &cp
}

// WithDetails returns a copy of e carrying details.
func (e *Error) WithDetails(details interface{}) *Error {
	cp := *e
	cp.Details = details
	return &cp
}

// Sentinels for errors.Is.
var (
	ErrInvalidObservation     = &Error{Kind: KindValidation, Code: CodeInvalidObservation}
	ErrUnknownArea            = &Error{Kind: KindValidation, Code: CodeUnknownArea}
	ErrStaffingInsufficient   = &Error{Kind: KindValidation, Code: CodeStaffingInsufficient}
	ErrInactiveEmployee       = &Error{Kind: KindValidation, Code: CodeInactiveEmployee}
	ErrRoleMismatch           = &Error{Kind: KindValidation, Code: CodeRoleMismatch}
	ErrUnknownEmployee        = &Error{Kind: KindValidation, Code: CodeUnknownEmployee}
	ErrInvalidShift           = &Error{Kind: KindValidation, Code: CodeInvalidShift}
	ErrInvalidInput           = &Error{Kind: KindValidation, Code: CodeInvalidInput}
	ErrDuplicateAssignment    = &Error{Kind: KindConflict, Code: CodeDuplicateAssignment}
	ErrOverlappingShift       = &Error{Kind: KindConflict, Code: CodeOverlappingShift}
	ErrStaleWrite             = &Error{Kind: KindConflict, Code: CodeStaleWrite}
	ErrWeeklyLimitExceeded    = &Error{Kind: KindConflict, Code: CodeWeeklyLimitExceeded}
	ErrPatientInTerminalState = &Error{Kind: KindState, Code: CodePatientInTerminalState}
	ErrIllegalTransition      = &Error{Kind: KindState, Code: CodeIllegalTransition}
	ErrLeaveQuotaExceeded     = &Error{Kind: KindValidation, Code: CodeLeaveQuotaExceeded}
	ErrLeaveNotPending        = &Error{Kind: KindState, Code: CodeLeaveNotPending}
	ErrNotFound               = &Error{Kind: KindNotFound, Code: CodeNotFound}
)

// NotFound is a convenience for repository lookups.
func NotFound(entity string, id interface{}) *Error {
	return New(CodeNotFound, "%s %v not found", entity, id)
}

// StaleWrite is returned by conditional updates whose expected version is behind.
func StaleWrite(entity string, id interface{}, expected int) *Error {
	return New(CodeStaleWrite, "%s %v was modified since version %d", entity, id, expected)
}

// As extracts the *Error from err's chain.
func As(err error) (*Error, bool) {
	var ae *Error
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

// KindOf returns the kind of err, or "" for errors outside the taxonomy.
func KindOf(err error) Kind {
	if ae, ok := As(err); ok {
		return ae.Kind
	}
	return ""
}

// Retryable reports whether re-fetching current state and retrying can succeed.
func Retryable(err error) bool {
	return KindOf(err) == KindConflict
}
