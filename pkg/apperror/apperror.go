package apperror

import (
	"errors"
	"strings"
)

// Kind classifies an error for propagation and transport mapping.
type Kind string

const (
	KindValidation Kind = "validation"
	KindDomain     Kind = "domain"
	KindNotFound   Kind = "not_found"
	KindExternal   Kind = "external"
	KindIntegrity  Kind = "integrity"
)

// FieldError carries field-level detail for validation failures.
type FieldError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error is the typed error returned by domain and orchestration code.
// Message is safe to show to customers; Err never leaves the process.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Fields  []FieldError
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Code + ": " + e.Err.Error()
	}
	return e.Code
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches another *Error with the same kind and code so that
// sentinel values declared in domain packages work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || e == nil || t == nil {
		return false
	}
	return e.Kind == t.Kind && e.Code == t.Code
}

func Validation(code, message string, fields ...FieldError) *Error {
	return &Error{Kind: KindValidation, Code: code, Message: message, Fields: fields}
}

func Domain(code, message string) *Error {
	return &Error{Kind: KindDomain, Code: code, Message: message}
}

func NotFound(code, message string) *Error {
	return &Error{Kind: KindNotFound, Code: code, Message: message}
}

// External wraps a failed call to the gateway or signer.
func External(code, message string, cause error) *Error {
	return &Error{Kind: KindExternal, Code: code, Message: message, Err: cause}
}

// Integrity marks an aggregate invariant that would have been violated.
func Integrity(code string, cause error) *Error {
	return &Error{Kind: KindIntegrity, Code: code, Message: "internal error", Err: cause}
}

// Wrap returns a copy of e carrying cause, keeping kind and code.
func Wrap(e *Error, cause error) *Error {
	if e == nil {
		return nil
	}
	out := *e
	out.Err = cause
	return &out
}

// As extracts the first *Error in the chain.
func As(err error) (*Error, bool) {
	var appErr *Error
	if errors.As(err, &appErr) && appErr != nil {
		return appErr, true
	}
	return nil, false
}

// KindOf reports the kind of err, or an empty Kind for untyped errors.
func KindOf(err error) Kind {
	if appErr, ok := As(err); ok {
		return appErr.Kind
	}
	return ""
}

// Missing builds a validation error listing absent fields.
func Missing(code string, fields ...string) *Error {
	details := make([]FieldError, 0, len(fields))
	for _, f := range fields {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		details = append(details, FieldError{Field: f, Code: "required", Message: f + " is required"})
	}
	return Validation(code, "missing required information", details...)
}
