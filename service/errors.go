package service

import (
	"errors"
	"fmt"
)

// Common framework errors - sentinel errors used across the package.
// These represent structural failures of a call, never business-level
// outcomes; business outcomes travel in the Result. Callers check for
// specific conditions with errors.Is/errors.As.
var (
	// ErrAbstractInvocation is returned when the abstract base definition
	// is called directly. Only derived definitions are callable.
	ErrAbstractInvocation = errors.New("abstract service cannot be called directly")

	// ErrNotImplemented is returned when a definition has no main routine
	// bound anywhere in its ancestry.
	ErrNotImplemented = errors.New("service has no main routine")

	// ErrMissingInput is returned at construction time when a required
	// input was not supplied. Wrapped by MissingInputError.
	ErrMissingInput = errors.New("required input missing")

	// ErrUnknownInput is returned at construction time when an input name
	// was never declared anywhere in the definition's ancestry.
	// Wrapped by UnknownInputError.
	ErrUnknownInput = errors.New("input not declared")

	// ErrNotAuthorized is the default reaction to an authorization denial.
	// Wrapped by NotAuthorizedError.
	ErrNotAuthorized = errors.New("not authorized")

	// ErrNoResult indicates a main routine returned without finalizing its
	// Result, or a pending Result was unwrapped. A programmer contract
	// violation, not a business error.
	ErrNoResult = errors.New("no result set")

	// ErrResultFinalized is returned when mutating a Result that has
	// already transitioned to success or error.
	ErrResultFinalized = errors.New("result already finalized")

	// ErrCallbackNotDefined is returned when a callback name was never
	// registered anywhere in the definition's ancestry.
	// Wrapped by CallbackNotDefinedError.
	ErrCallbackNotDefined = errors.New("callback not defined")

	// ErrServiceNotFound is returned by an Invoker when the requested
	// service name is not present in its registry.
	ErrServiceNotFound = errors.New("service not registered")

	// ErrInstanceConsumed is returned when Call is invoked twice on the
	// same instance. Instances are single-use.
	ErrInstanceConsumed = errors.New("instance already called")

	// ErrNilPrincipal is returned when an instance is constructed without
	// a principal.
	ErrNilPrincipal = errors.New("principal cannot be nil")

	// ErrStop is the early-termination signal. A main routine (or a
	// callback) returns it to abort the remainder of its work; it is
	// absorbed at the nearest enclosing Call boundary and never escapes
	// to the caller of Call.
	ErrStop = errors.New("service stopped")
)

// MissingInputError reports a required input omitted at construction.
type MissingInputError struct {
	Service string
	Input   string
}

func (e *MissingInputError) Error() string {
	return fmt.Sprintf("service %s: required input %q missing", e.Service, e.Input)
}

// Unwrap supports errors.Is(err, ErrMissingInput).
func (e *MissingInputError) Unwrap() error { return ErrMissingInput }

// UnknownInputError reports an input name that was never declared for the
// service type or any of its ancestors.
type UnknownInputError struct {
	Service string
	Input   string
}

func (e *UnknownInputError) Error() string {
	return fmt.Sprintf("service %s: input %q not declared", e.Service, e.Input)
}

// Unwrap supports errors.Is(err, ErrUnknownInput).
func (e *UnknownInputError) Unwrap() error { return ErrUnknownInput }

// NotAuthorizedError is raised by the default not-authorized hook when an
// authorization predicate denies a call. It carries the service name and
// the principal's display form.
type NotAuthorizedError struct {
	Service   string
	Principal any
}

func (e *NotAuthorizedError) Error() string {
	return fmt.Sprintf("service %s: principal %v not authorized", e.Service, e.Principal)
}

// Unwrap supports errors.Is(err, ErrNotAuthorized).
func (e *NotAuthorizedError) Unwrap() error { return ErrNotAuthorized }

// CallbackNotDefinedError reports a reference to an unregistered callback.
type CallbackNotDefinedError struct {
	Service string
	Name    string
}

func (e *CallbackNotDefinedError) Error() string {
	return fmt.Sprintf("service %s: callback %q not defined", e.Service, e.Name)
}

// Unwrap supports errors.Is(err, ErrCallbackNotDefined).
func (e *CallbackNotDefinedError) Unwrap() error { return ErrCallbackNotDefined }

// ResultError wraps the stored value of an error Result when that value is
// plain diagnostic data rather than an error. Unwrapping an error Result
// whose value is itself an error returns that error directly instead.
type ResultError struct {
	Value any
}

func (e *ResultError) Error() string {
	return fmt.Sprintf("service error: %v", e.Value)
}

// IsStop reports whether err is (or wraps) the early-termination signal.
func IsStop(err error) bool {
	return errors.Is(err, ErrStop)
}
