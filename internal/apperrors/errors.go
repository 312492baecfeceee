// Package apperrors defines the error taxonomy shared by reconstruction,
// reconciliation and the module registry.
package apperrors

import (
	"errors"
	"fmt"
)

// Code categorizes errors.
type Code string

const (
	// CodeNotFound indicates an entity has no events or no read-model record.
	CodeNotFound Code = "NOT_FOUND"

	// CodeDuplicateModule indicates a module name was registered twice.
	CodeDuplicateModule Code = "DUPLICATE_MODULE"

	// CodeModuleNotFound indicates an operation named an unregistered module.
	CodeModuleNotFound Code = "MODULE_NOT_FOUND"

	// CodeInvalidInput indicates a malformed request (bad filter, bad range).
	CodeInvalidInput Code = "INVALID_INPUT"

	// CodeInvalidConfig indicates configuration that cannot be used.
	CodeInvalidConfig Code = "INVALID_CONFIG"
)

// Error carries a code plus the module and entity it concerns.
type Error struct {
	// Code identifies the error category.
	Code Code

	// Message is a human-readable description.
	Message string

	// Module names the reconciliation module, when known.
	Module string

	// ID identifies the entity, when known.
	ID string

	// Err is the underlying cause (optional).
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	switch {
	case e.Module != "" && e.ID != "":
		msg += fmt.Sprintf(" (module=%s, id=%s)", e.Module, e.ID)
	case e.Module != "":
		msg += fmt.Sprintf(" (module=%s)", e.Module)
	case e.ID != "":
		msg += fmt.Sprintf(" (id=%s)", e.ID)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Err }

// NotFound reports that id has no data in the named place.
func NotFound(id, message string) *Error {
	return &Error{Code: CodeNotFound, Message: message, ID: id}
}

// DuplicateModule reports a second registration of name.
func DuplicateModule(name string) *Error {
	return &Error{Code: CodeDuplicateModule, Message: "module already registered", Module: name}
}

// ModuleNotFound reports an operation against an unregistered module.
func ModuleNotFound(name string) *Error {
	return &Error{Code: CodeModuleNotFound, Message: "no reconciliation module registered", Module: name}
}

// InvalidInput reports a malformed request.
func InvalidInput(format string, args ...any) *Error {
	return &Error{Code: CodeInvalidInput, Message: fmt.Sprintf(format, args...)}
}

// InvalidConfig reports unusable configuration.
func InvalidConfig(format string, args ...any) *Error {
	return &Error{Code: CodeInvalidConfig, Message: fmt.Sprintf(format, args...)}
}

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsNotFound returns true if err is a not-found error.
// Uses errors.As to handle wrapped errors.
func IsNotFound(err error) bool {
	return CodeOf(err) == CodeNotFound
}

// IsConfig returns true for registry and configuration errors, which are
// fatal at startup.
func IsConfig(err error) bool {
	switch CodeOf(err) {
	case CodeDuplicateModule, CodeModuleNotFound, CodeInvalidConfig:
		return true
	}
	return false
}

// IsInvalidInput returns true if err is an invalid-input error.
func IsInvalidInput(err error) bool {
	return CodeOf(err) == CodeInvalidInput
}
