package service

import (
	"context"
	"log/slog"
)

// Handle is an invocable reference to a named callback, bound to the
// instance that produced it. The zero Handle is invalid.
//
// A Handle may be passed to another service as an input; how the receiver
// runs it determines stop isolation. Invoke gives no isolation: an ErrStop
// returned by the callback propagates to the invoking code, which lets a
// provider's callback intentionally abort the receiver's whole call (the
// documented escape hatch). Instance.RunCallback is the isolating form and
// the one receivers should normally use.
type Handle struct {
	owner *Instance
	name  string
	fn    CallbackFunc
}

// Callback returns an invocable handle for a registered callback name,
// bound to this instance. Names registered anywhere in the type's ancestry
// are visible; anything else is a CallbackNotDefinedError.
func (s *Instance) Callback(name string) (Handle, error) {
	fn := s.def.resolveCallback(name)
	if fn == nil {
		return Handle{}, &CallbackNotDefinedError{Service: s.def.name, Name: name}
	}
	return Handle{owner: s, name: name, fn: fn}, nil
}

// Name returns the callback's registered name.
func (h Handle) Name() string { return h.name }

// Owner returns the instance the handle is bound to.
func (h Handle) Owner() *Instance { return h.owner }

// Invoke logs the invocation, forwards args to the bound implementation,
// and returns the owning instance for chaining. Any error from the
// implementation - including ErrStop - propagates to the invoker; use
// Instance.RunCallback when a foreign callback's stop must not disturb
// your own flow.
func (h Handle) Invoke(ctx context.Context, args ...any) (*Instance, error) {
	h.owner.logger.Debug("callback invoked", slog.String("callback", h.name))
	if err := h.fn(ctx, h.owner, args...); err != nil {
		return h.owner, err
	}
	return h.owner, nil
}

// RunCallback invokes a callback handle received from elsewhere, isolating
// this instance from the callback's early termination: an ErrStop raised
// inside the callback is swallowed at the call site and this instance is
// flagged to stop once its own main routine returns normally (deferred
// propagation), rather than aborting mid-step. Non-stop errors propagate
// unchanged.
func (s *Instance) RunCallback(ctx context.Context, h Handle, args ...any) error {
	_, err := h.Invoke(ctx, args...)
	if err == nil {
		return nil
	}
	if IsStop(err) {
		s.stopPending = true
		return nil
	}
	return err
}
