package service

import "fmt"

// Status represents the current state of a Result.
type Status string

// Possible result status values.
const (
	StatusPending Status = "pending"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Result is the outcome container for a single service invocation. It starts
// pending and transitions exactly once to success or error; after that it is
// frozen and every further transition fails with ErrResultFinalized.
//
// Results carry expected business-level outcomes only. Structural failures
// of a call (missing inputs, authorization denial, contract violations) are
// returned as errors from Call and never stored in a Result.
type Result struct {
	status Status
	value  any
}

// NewResult creates a pending Result. Instances create their own Result;
// this is exported for tests and for code that handles Results standalone.
func NewResult() *Result {
	return &Result{status: StatusPending}
}

// Status returns the result's current status.
func (r *Result) Status() Status { return r.status }

// Pending reports whether the result has not yet been finalized.
func (r *Result) Pending() bool { return r.status == StatusPending }

// Value returns the stored payload without inspecting the status. It is nil
// while the result is pending. Use Unwrap to get error-aware access.
func (r *Result) Value() any { return r.value }

// Success finalizes the result with a success payload. Returns
// ErrResultFinalized if the result was already finalized.
func (r *Result) Success(v any) error {
	if r.status != StatusPending {
		return ErrResultFinalized
	}
	r.status = StatusSuccess
	r.value = v
	return nil
}

// Fail finalizes the result with an error payload. The payload may be an
// error value (re-raised as-is by Unwrap) or plain diagnostic data (wrapped
// in a ResultError by Unwrap). Returns ErrResultFinalized if the result was
// already finalized.
func (r *Result) Fail(v any) error {
	if r.status != StatusPending {
		return ErrResultFinalized
	}
	r.status = StatusError
	r.value = v
	return nil
}

// FailFrom runs fn and finalizes the result with the error it returns,
// preserving the original error value and its wrapped chain. A nil return
// from fn is a contract violation: the caller promised a failure.
func (r *Result) FailFrom(fn func() error) error {
	if r.status != StatusPending {
		return ErrResultFinalized
	}
	err := fn()
	if err == nil {
		return fmt.Errorf("result: FailFrom block returned no error")
	}
	r.status = StatusError
	r.value = err
	return nil
}

// Unwrap returns the success payload, or an error describing why no payload
// is available:
//
//   - pending: ErrNoResult
//   - error status, value is an error: that error, unchanged
//   - error status, value is plain data: a *ResultError carrying the value
//   - success: (value, nil)
func (r *Result) Unwrap() (any, error) {
	switch r.status {
	case StatusSuccess:
		return r.value, nil
	case StatusError:
		if err, ok := r.value.(error); ok {
			return nil, err
		}
		return nil, &ResultError{Value: r.value}
	default:
		return nil, ErrNoResult
	}
}
