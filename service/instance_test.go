package service

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/servicekit/internal/testutils"
)

// newTestLogger returns a logger writing into a capture handler.
func newTestLogger() (*slog.Logger, *testutils.CaptureHandler) {
	h := testutils.NewCaptureHandler()
	return slog.New(h), h
}

func TestNew_InputValidation(t *testing.T) {
	t.Parallel()

	def := Define("resize_image").Input("path", "width").AllowAll().
		Main(func(ctx context.Context, s *Instance) error {
			return s.Result().Success("ok")
		})

	t.Run("missing required input fails at construction", func(t *testing.T) {
		t.Parallel()

		_, err := New(def, Params{
			Principal: "t",
			Inputs:    map[string]any{"width": 100},
		})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrMissingInput)

		var missingErr *MissingInputError
		require.ErrorAs(t, err, &missingErr)
		assert.Equal(t, "path", missingErr.Input)
		assert.Equal(t, "resize_image", missingErr.Service)
	})

	t.Run("all required inputs supplied constructs cleanly", func(t *testing.T) {
		t.Parallel()

		_, err := New(def, Params{
			Principal: "t",
			Inputs:    map[string]any{"path": "/tmp/a.png", "width": 100},
		})
		assert.NoError(t, err)
	})

	t.Run("undeclared input fails at construction", func(t *testing.T) {
		t.Parallel()

		_, err := New(def, Params{
			Principal: "t",
			Inputs:    map[string]any{"path": "/tmp/a.png", "width": 100, "heigth": 50},
		})
		require.Error(t, err)

		var unknownErr *UnknownInputError
		require.ErrorAs(t, err, &unknownErr)
		assert.Equal(t, "heigth", unknownErr.Input)
	})

	t.Run("principal is required", func(t *testing.T) {
		t.Parallel()

		_, err := New(def, Params{
			Inputs: map[string]any{"path": "/tmp/a.png", "width": 100},
		})
		assert.ErrorIs(t, err, ErrNilPrincipal)
	})

	t.Run("nil definition", func(t *testing.T) {
		t.Parallel()

		_, err := New(nil, Params{Principal: "t"})
		assert.Error(t, err)
	})
}

func TestNew_DefaultsAreLazy(t *testing.T) {
	t.Parallel()

	evaluated := 0
	def := Define("lazy_defaults").
		InputDefault("mode", func() any {
			evaluated++
			return "fast"
		})

	inst, err := New(def, Params{
		Principal: "t",
		Inputs:    map[string]any{"mode": "thorough"},
	})
	require.NoError(t, err)
	assert.Equal(t, "thorough", inst.Input("mode"))
	assert.Zero(t, evaluated, "default must not run when a value was supplied")

	inst, err = New(def, Params{Principal: "t"})
	require.NoError(t, err)
	assert.Equal(t, "fast", inst.Input("mode"))
	assert.Equal(t, 1, evaluated)
}

func TestCall_AbstractAndNotImplemented(t *testing.T) {
	t.Parallel()

	t.Run("abstract base is never callable", func(t *testing.T) {
		t.Parallel()

		inst, err := New(Base(), Params{Principal: "t"})
		require.NoError(t, err)

		_, err = inst.Call(context.Background())
		assert.ErrorIs(t, err, ErrAbstractInvocation)
	})

	t.Run("a type without a main routine anywhere is not implemented", func(t *testing.T) {
		t.Parallel()

		inst, err := New(Define("empty_type").AllowAll(), Params{Principal: "t"})
		require.NoError(t, err)

		_, err = inst.Call(context.Background())
		assert.ErrorIs(t, err, ErrNotImplemented)
	})

	t.Run("a derived type is callable through the inherited main", func(t *testing.T) {
		t.Parallel()

		base := Define("impl_base").AllowAll().
			Main(func(ctx context.Context, s *Instance) error {
				return s.Result().Success("inherited")
			})
		inst, err := New(base.Derive("impl_sub"), Params{Principal: "t"})
		require.NoError(t, err)

		res, err := inst.Call(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "inherited", res.Value())
	})
}

func TestCall_Authorization(t *testing.T) {
	t.Parallel()

	t.Run("default is deny all", func(t *testing.T) {
		t.Parallel()

		mainRan := false
		def := Define("locked_down").Main(func(ctx context.Context, s *Instance) error {
			mainRan = true
			return s.Result().Success("never")
		})

		logger, captured := newTestLogger()
		inst, err := New(def, Params{Principal: "anyone", Logger: logger})
		require.NoError(t, err)

		_, err = inst.Call(context.Background())
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrNotAuthorized)
		assert.False(t, mainRan, "main must never run on denial")

		var notAuthErr *NotAuthorizedError
		require.ErrorAs(t, err, &notAuthErr)
		assert.Equal(t, "locked_down", notAuthErr.Service)
		assert.Equal(t, "anyone", notAuthErr.Principal)

		warnings := captured.ByLevel("WARN")
		require.Len(t, warnings, 1)
		assert.Equal(t, "locked_down", warnings[0]["service"])
		assert.Equal(t, "anyone", warnings[0]["principal"])
		assert.NotEmpty(t, warnings[0]["instance_id"])
	})

	t.Run("custom hook receives service and principal exactly once", func(t *testing.T) {
		t.Parallel()

		def := Define("audited").Main(func(ctx context.Context, s *Instance) error {
			return s.Result().Success("never")
		})

		var gotService string
		var gotPrincipal any
		calls := 0
		inst, err := New(def, Params{
			Principal: "intruder",
			NotAuthorized: func(service string, principal any) error {
				calls++
				gotService = service
				gotPrincipal = principal
				return nil
			},
		})
		require.NoError(t, err)

		res, err := inst.Call(context.Background())
		require.NoError(t, err, "a nil-returning hook terminates the call quietly")
		assert.True(t, res.Pending(), "the call stopped before main could set a result")
		assert.Equal(t, 1, calls)
		assert.Equal(t, "audited", gotService)
		assert.Equal(t, "intruder", gotPrincipal)
	})

	t.Run("predicate sees instance state", func(t *testing.T) {
		t.Parallel()

		def := Define("owner_only").Input("owner").
			Authorize(func(s *Instance) bool {
				return s.Input("owner") == s.Principal()
			}).
			Main(func(ctx context.Context, s *Instance) error {
				return s.Result().Success("mine")
			})

		inst, err := New(def, Params{
			Principal: "alice",
			Inputs:    map[string]any{"owner": "alice"},
		})
		require.NoError(t, err)
		res, err := inst.Call(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "mine", res.Value())

		inst, err = New(def, Params{
			Principal: "bob",
			Inputs:    map[string]any{"owner": "alice"},
		})
		require.NoError(t, err)
		_, err = inst.Call(context.Background())
		assert.ErrorIs(t, err, ErrNotAuthorized)
	})

	t.Run("allow all runs main exactly once and logs the call start", func(t *testing.T) {
		t.Parallel()

		runs := 0
		def := Define("open_gate").AllowAll().
			Main(func(ctx context.Context, s *Instance) error {
				runs++
				return s.Result().Success("done")
			})

		logger, captured := newTestLogger()
		inst, err := New(def, Params{Principal: "t", Logger: logger})
		require.NoError(t, err)

		_, err = inst.Call(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, runs)

		started := captured.ByMessage("service call started")
		require.Len(t, started, 1)
		assert.Equal(t, "DEBUG", started[0]["level"])
		assert.Equal(t, "open_gate", started[0]["service"])
	})
}

func TestCall_ResultContract(t *testing.T) {
	t.Parallel()

	t.Run("main must finalize the result", func(t *testing.T) {
		t.Parallel()

		def := Define("forgetful").AllowAll().
			Main(func(ctx context.Context, s *Instance) error { return nil })

		inst, err := New(def, Params{Principal: "t"})
		require.NoError(t, err)

		_, err = inst.Call(context.Background())
		assert.ErrorIs(t, err, ErrNoResult)
	})

	t.Run("stop after finalizing returns the result", func(t *testing.T) {
		t.Parallel()

		def := Define("short_circuit").Input("cached").AllowAll().
			Main(func(ctx context.Context, s *Instance) error {
				if s.Input("cached") == true {
					if err := s.Result().Success("from cache"); err != nil {
						return err
					}
					return s.Stop()
				}
				return s.Result().Success("computed")
			})

		inst, err := New(def, Params{
			Principal: "t",
			Inputs:    map[string]any{"cached": true},
		})
		require.NoError(t, err)

		res, err := inst.Call(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "from cache", res.Value())
	})

	t.Run("stop without a result is a contract violation", func(t *testing.T) {
		t.Parallel()

		def := Define("bare_stop").AllowAll().
			Main(func(ctx context.Context, s *Instance) error { return s.Stop() })

		inst, err := New(def, Params{Principal: "t"})
		require.NoError(t, err)

		_, err = inst.Call(context.Background())
		assert.ErrorIs(t, err, ErrNoResult)
	})

	t.Run("main errors propagate wrapped with the service name", func(t *testing.T) {
		t.Parallel()

		cause := errors.New("disk on fire")
		def := Define("unlucky").AllowAll().
			Main(func(ctx context.Context, s *Instance) error { return cause })

		inst, err := New(def, Params{Principal: "t"})
		require.NoError(t, err)

		_, err = inst.Call(context.Background())
		require.Error(t, err)
		assert.ErrorIs(t, err, cause)
		assert.Contains(t, err.Error(), "unlucky")
	})
}

func TestCall_SingleUse(t *testing.T) {
	t.Parallel()

	def := Define("one_shot").AllowAll().
		Main(func(ctx context.Context, s *Instance) error {
			return s.Result().Success(1)
		})

	inst, err := New(def, Params{Principal: "t"})
	require.NoError(t, err)

	_, err = inst.Call(context.Background())
	require.NoError(t, err)

	_, err = inst.Call(context.Background())
	assert.ErrorIs(t, err, ErrInstanceConsumed)
}

func TestCallWith(t *testing.T) {
	t.Parallel()

	def := Define("summed").Input("n").AllowAll().
		Main(func(ctx context.Context, s *Instance) error {
			return s.Result().Success(s.Input("n"))
		})

	t.Run("handler return value becomes the call's return value", func(t *testing.T) {
		t.Parallel()

		inst, err := New(def, Params{Principal: "t", Inputs: map[string]any{"n": 21}})
		require.NoError(t, err)

		out, err := inst.CallWith(context.Background(), func(r *Result) (any, error) {
			v, err := r.Unwrap()
			if err != nil {
				return nil, err
			}
			return v.(int) * 2, nil
		})
		require.NoError(t, err)
		assert.Equal(t, 42, out)
	})

	t.Run("structural failures skip the handler", func(t *testing.T) {
		t.Parallel()

		denied := Define("summed_denied").Main(func(ctx context.Context, s *Instance) error {
			return s.Result().Success(0)
		})
		inst, err := New(denied, Params{Principal: "t"})
		require.NoError(t, err)

		handlerRan := false
		_, err = inst.CallWith(context.Background(), func(r *Result) (any, error) {
			handlerRan = true
			return nil, nil
		})
		assert.ErrorIs(t, err, ErrNotAuthorized)
		assert.False(t, handlerRan)
	})
}

func TestCallSuper(t *testing.T) {
	t.Parallel()

	base := Define("greet").Input("name").AllowAll().
		Main(func(ctx context.Context, s *Instance) error {
			return s.Result().Success("hello " + s.Input("name").(string))
		})

	superRan := false
	derived := base.Derive("greet_politely").
		Main(func(ctx context.Context, s *Instance) error {
			superRan = true
			return s.CallSuper(ctx)
		})

	inst, err := New(derived, Params{
		Principal: "t",
		Inputs:    map[string]any{"name": "world"},
	})
	require.NoError(t, err)

	res, err := inst.Call(context.Background())
	require.NoError(t, err)
	assert.True(t, superRan)
	assert.Equal(t, "hello world", res.Value())

	t.Run("inherited main resolves from its binding type", func(t *testing.T) {
		t.Parallel()

		grand := Define("notify").AllowAll().
			Main(func(ctx context.Context, s *Instance) error {
				return s.Result().Success("sent")
			})
		child := grand.Derive("notify_logged").
			Main(func(ctx context.Context, s *Instance) error {
				return s.CallSuper(ctx)
			})

		// Inherits child's main without overriding it. Super must still
		// mean "above child", not "above grandchild" (which would loop
		// back into child's own main forever).
		grandchild := child.Derive("notify_logged_async")

		inst, err := New(grandchild, Params{Principal: "t"})
		require.NoError(t, err)

		res, err := inst.Call(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "sent", res.Value())
	})

	t.Run("chained supers walk one ancestor at a time", func(t *testing.T) {
		t.Parallel()

		var order []string
		grand := Define("render").AllowAll().
			Main(func(ctx context.Context, s *Instance) error {
				order = append(order, "grand")
				return s.Result().Success("rendered")
			})
		child := grand.Derive("render_framed").
			Main(func(ctx context.Context, s *Instance) error {
				order = append(order, "child")
				return s.CallSuper(ctx)
			})
		grandchild := child.Derive("render_paginated").
			Main(func(ctx context.Context, s *Instance) error {
				order = append(order, "grandchild")
				return s.CallSuper(ctx)
			})

		inst, err := New(grandchild, Params{Principal: "t"})
		require.NoError(t, err)

		res, err := inst.Call(context.Background())
		require.NoError(t, err)
		assert.Equal(t, []string{"grandchild", "child", "grand"}, order)
		assert.Equal(t, "rendered", res.Value())
	})

	t.Run("no ancestor main", func(t *testing.T) {
		t.Parallel()

		orphan := Define("orphan").AllowAll().
			Main(func(ctx context.Context, s *Instance) error {
				return s.CallSuper(ctx)
			})
		inst, err := New(orphan, Params{Principal: "t"})
		require.NoError(t, err)

		_, err = inst.Call(context.Background())
		assert.ErrorIs(t, err, ErrNotImplemented)
	})
}

func TestCall_EndToEndDivide(t *testing.T) {
	t.Parallel()

	divide := Define("divide").Input("numerator", "denominator").AllowAll().
		Main(func(ctx context.Context, s *Instance) error {
			den := s.Input("denominator").(int)
			if den == 0 {
				return s.Result().Fail("div by zero")
			}
			return s.Result().Success(s.Input("numerator").(int) / den)
		})

	t.Run("successful division", func(t *testing.T) {
		t.Parallel()

		inst, err := New(divide, Params{
			Principal: map[string]any{},
			Inputs:    map[string]any{"numerator": 10, "denominator": 2},
		})
		require.NoError(t, err)

		res, err := inst.Call(context.Background())
		require.NoError(t, err)

		v, err := res.Unwrap()
		require.NoError(t, err)
		assert.Equal(t, 5, v)
	})

	t.Run("division by zero", func(t *testing.T) {
		t.Parallel()

		inst, err := New(divide, Params{
			Principal: map[string]any{},
			Inputs:    map[string]any{"numerator": 10, "denominator": 0},
		})
		require.NoError(t, err)

		res, err := inst.Call(context.Background())
		require.NoError(t, err, "a business-level error is a Result, not a call failure")
		assert.Equal(t, StatusError, res.Status())

		_, err = res.Unwrap()
		var resultErr *ResultError
		require.ErrorAs(t, err, &resultErr)
		assert.Equal(t, "div by zero", resultErr.Value)
	})
}

func TestCall_NestedStopBoundaries(t *testing.T) {
	t.Parallel()

	// A stop inside a nested call aborts only the nested call; the outer
	// main continues at the statement after the nested invocation.
	inner := Define("inner_stopper").Input("payload").AllowAll().
		Main(func(ctx context.Context, s *Instance) error {
			if err := s.Result().Success("inner done"); err != nil {
				return err
			}
			return s.Stop()
		})

	outerContinued := false
	outer := Define("outer_caller").AllowAll().
		Main(func(ctx context.Context, s *Instance) error {
			innerInst, err := New(inner, Params{
				Principal: s.Principal(),
				Logger:    s.Logger(),
				Inputs:    map[string]any{"payload": 1},
			})
			if err != nil {
				return err
			}
			if _, err := innerInst.Call(ctx); err != nil {
				return err
			}
			outerContinued = true
			return s.Result().Success("outer done")
		})

	inst, err := New(outer, Params{Principal: "t"})
	require.NoError(t, err)

	res, err := inst.Call(context.Background())
	require.NoError(t, err)
	assert.True(t, outerContinued, "the inner stop must not unwind the outer call")
	assert.Equal(t, "outer done", res.Value())
}
