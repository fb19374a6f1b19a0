// Package apperr holds the error taxonomy shared by every layer.
//
// Lower layers (temporal, recurrence, codec) return these types and never
// catch them. The editor and maintenance packages classify with the Is*
// helpers and decide whether a failure is shown to the user, logged or
// silently recovered.
package apperr

import (
	"errors"
	"fmt"
)

// ValidationError is malformed user input. It is shown privately to the
// submitting user and the draft is kept.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Msg
	}
	return e.Field + ": " + e.Msg
}

// ParseError means a chat message no longer matches the expected grammar.
type ParseError struct {
	Field string
	Msg   string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %s", e.Field, e.Msg)
}

// ConfigurationError is fatal at configuration time.
type ConfigurationError struct {
	Msg string
	Err error
}

func (e *ConfigurationError) Error() string {
	if e.Err == nil {
		return "configuration: " + e.Msg
	}
	return "configuration: " + e.Msg + ": " + e.Err.Error()
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// ExternalResourceError wraps a platform rejection of a create/edit/delete call.
type ExternalResourceError struct {
	Op  string
	Err error
}

func (e *ExternalResourceError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *ExternalResourceError) Unwrap() error { return e.Err }

func Validation(field, msg string) error {
	return &ValidationError{Field: field, Msg: msg}
}

func Parse(field, format string, args ...any) error {
	return &ParseError{Field: field, Msg: fmt.Sprintf(format, args...)}
}

func Configuration(format string, args ...any) error {
	return &ConfigurationError{Msg: fmt.Sprintf(format, args...)}
}

// External wraps err unless it is nil.
func External(op string, err error) error {
	if err == nil {
		return nil
	}
	return &ExternalResourceError{Op: op, Err: err}
}

func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

func IsParse(err error) bool {
	var target *ParseError
	return errors.As(err, &target)
}

func IsConfiguration(err error) bool {
	var target *ConfigurationError
	return errors.As(err, &target)
}

func IsExternal(err error) bool {
	var target *ExternalResourceError
	return errors.As(err, &target)
}

// UserMessage returns the text that may be shown to a user for err. Only
// validation failures carry their own text; everything else is generic.
func UserMessage(err error) string {
	var v *ValidationError
	if errors.As(err, &v) {
		return v.Msg
	}
	return "Something went wrong. Your draft was kept, please try again."
}
