package apperr

import (
	"errors"
	"fmt"
)

// FieldError carries field-level detail for a validation failure.
type FieldError struct {
	Field    string `json:"field"`
	Code     string `json:"code"`
	Message  string `json:"message"`
	Path     string `json:"path,omitempty"`
	Expected string `json:"expected,omitempty"`
	Received string `json:"received,omitempty"`
}

// ValidationError is returned for malformed input or schema violations.
type ValidationError struct {
	Message string
	Fields  map[string]FieldError
}

func (e *ValidationError) Error() string { return e.Message }

// WithField attaches field-level detail and returns the error for chaining.
func (e *ValidationError) WithField(f FieldError) *ValidationError {
	if e.Fields == nil {
		e.Fields = map[string]FieldError{}
	}
	e.Fields[f.Field] = f
	return e
}

func Validation(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// NotFoundError is returned for an unknown database, record, view or property.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%s not found", e.Resource)
	}
	return fmt.Sprintf("%s '%s' not found", e.Resource, e.ID)
}

func NotFound(resource, id string) *NotFoundError {
	return &NotFoundError{Resource: resource, ID: id}
}

// ForbiddenError is returned when the permission gate rejects a call or a
// frozen/required/system element is mutated.
type ForbiddenError struct {
	Message string
}

func (e *ForbiddenError) Error() string { return e.Message }

func Forbidden(format string, args ...interface{}) *ForbiddenError {
	return &ForbiddenError{Message: fmt.Sprintf(format, args...)}
}

// InternalError wraps a storage-layer failure. The original error is kept for
// logs; callers see a generic message.
type InternalError struct {
	Op    string
	Cause error
}

func (e *InternalError) Error() string {
	return fmt.Sprintf("internal error during %s: %v", e.Op, e.Cause)
}

func (e *InternalError) Unwrap() error { return e.Cause }

// Internal wraps err once. If err is already part of the taxonomy it is
// returned unchanged so classification survives layer crossings.
func Internal(op string, err error) error {
	if err == nil {
		return nil
	}
	var ve *ValidationError
	var nf *NotFoundError
	var fb *ForbiddenError
	var in *InternalError
	if errors.As(err, &ve) || errors.As(err, &nf) || errors.As(err, &fb) || errors.As(err, &in) {
		return err
	}
	return &InternalError{Op: op, Cause: err}
}

// IsValidation reports whether err classifies as a validation failure.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

func IsForbidden(err error) bool {
	var fb *ForbiddenError
	return errors.As(err, &fb)
}
