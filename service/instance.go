package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/google/uuid"
)

// NotAuthorizedFunc is invoked when an authorization predicate denies a
// call. The default implementation returns a NotAuthorizedError carrying
// the service name and the principal's display form; a custom hook that
// returns nil lets the call terminate quietly with its pending Result.
type NotAuthorizedFunc func(service string, principal any) error

// Params carries the construction arguments for an instance.
type Params struct {
	// Principal identifies who or what is invoking the service. Required.
	// It is consulted only by authorization predicates and never mutated
	// by the framework.
	Principal any

	// Logger receives the framework's leveled log output. Optional;
	// defaults to slog.Default().
	Logger *slog.Logger

	// NotAuthorized is invoked on authorization denial. Optional; defaults
	// to raising a NotAuthorizedError.
	NotAuthorized NotAuthorizedFunc

	// Inputs are the named input values, validated against the
	// definition's declared inputs.
	Inputs map[string]any
}

// Instance is one ephemeral invocation of a service definition. It is
// constructed fresh per call, owns its Result until Call returns, and is
// never reused: a second Call fails with ErrInstanceConsumed.
type Instance struct {
	id            uuid.UUID
	def           *Definition
	principal     any
	logger        *slog.Logger
	notAuthorized NotAuthorizedFunc
	inputs        map[string]any
	result        *Result
	stopPending   bool
	called        bool

	// mainOwner is the definition that bound the currently running main
	// routine. CallSuper resolves relative to it, so a main inherited by a
	// subtype still finds the ancestor above its own binding rather than
	// re-resolving from the instance's type.
	mainOwner *Definition
}

// New constructs an instance of def, validating inputs eagerly: every
// required input must be supplied (MissingInputError names the first
// missing one, in sorted order) and every supplied name must be declared
// somewhere in the definition's ancestry (UnknownInputError otherwise;
// undeclared names fail fast rather than being silently dropped). Defaults
// are evaluated only for names with no supplied value.
func New(def *Definition, p Params) (*Instance, error) {
	if def == nil {
		return nil, fmt.Errorf("service: definition cannot be nil")
	}
	if p.Principal == nil {
		return nil, fmt.Errorf("service %s: %w", def.name, ErrNilPrincipal)
	}

	supplied := make([]string, 0, len(p.Inputs))
	for name := range p.Inputs {
		supplied = append(supplied, name)
	}
	sort.Strings(supplied)
	for _, name := range supplied {
		if !def.declared(name) {
			return nil, &UnknownInputError{Service: def.name, Input: name}
		}
	}
	for _, name := range def.RequiredInputs() {
		if _, ok := p.Inputs[name]; !ok {
			return nil, &MissingInputError{Service: def.name, Input: name}
		}
	}

	inputs := make(map[string]any, len(p.Inputs)+len(def.defaults))
	for name, v := range p.Inputs {
		inputs[name] = v
	}
	for name, defaultFn := range def.defaults {
		if _, ok := inputs[name]; !ok {
			inputs[name] = defaultFn()
		}
	}

	log := p.Logger
	if log == nil {
		log = slog.Default()
	}
	notAuthorized := p.NotAuthorized
	if notAuthorized == nil {
		notAuthorized = defaultNotAuthorized
	}

	id := uuid.New()
	return &Instance{
		id:            id,
		def:           def,
		principal:     p.Principal,
		logger:        log.With(slog.String("service", def.name), slog.String("instance_id", id.String())),
		notAuthorized: notAuthorized,
		inputs:        inputs,
		result:        NewResult(),
	}, nil
}

func defaultNotAuthorized(service string, principal any) error {
	return &NotAuthorizedError{Service: service, Principal: principal}
}

// ID returns the invocation-instance identifier.
func (s *Instance) ID() uuid.UUID { return s.id }

// Service returns the display name of the service type being invoked.
func (s *Instance) Service() string { return s.def.name }

// Principal returns the caller-supplied identity token.
func (s *Instance) Principal() any { return s.principal }

// Logger returns the instance's logger, already carrying service and
// instance-id fields.
func (s *Instance) Logger() *slog.Logger { return s.logger }

// Input returns the bound value for a declared input name. Construction
// guarantees every required name is present and every defaulted name is
// materialized; unknown names return nil.
func (s *Instance) Input(name string) any { return s.inputs[name] }

// Result returns the instance's Result. Main routines finalize it via
// Success/Fail; after Call returns it is frozen.
func (s *Instance) Result() *Result { return s.result }

// Call executes the service: abstract/not-implemented checks, then the
// authorization gate, then the main routine, then result finalization.
//
// Outcomes:
//
//   - Authorization denied: a warning is logged, the not-authorized hook
//     runs with (service, principal), and the call stops before the main
//     routine. The hook's error (by default a NotAuthorizedError) is
//     returned; a nil-returning hook yields the still-pending Result.
//   - Main returns nil with no stop pending: the Result must be finalized,
//     otherwise Call fails with ErrNoResult.
//   - Main returns ErrStop, or a stop was deferred via RunCallback: the
//     call terminates at this boundary. A finalized Result is returned
//     as-is; stopping without one is ErrNoResult.
//   - Main returns any other error: it propagates, wrapped with the
//     service name.
func (s *Instance) Call(ctx context.Context) (*Result, error) {
	if s.called {
		return nil, fmt.Errorf("service %s: %w", s.def.name, ErrInstanceConsumed)
	}
	s.called = true

	if s.def.abstract {
		return nil, fmt.Errorf("service %s: %w", s.def.name, ErrAbstractInvocation)
	}
	main, owner := s.def.resolveMain()
	if main == nil {
		return nil, fmt.Errorf("service %s: %w", s.def.name, ErrNotImplemented)
	}
	s.mainOwner = owner

	authorize := s.def.resolveAuthorize()
	if authorize == nil || !authorize(s) {
		s.logger.Warn("service call not authorized",
			slog.String("principal", fmt.Sprintf("%v", s.principal)))
		if err := s.notAuthorized(s.def.name, s.principal); err != nil {
			return nil, err
		}
		return s.result, nil
	}

	s.logger.Debug("service call started",
		slog.String("principal", fmt.Sprintf("%v", s.principal)))

	err := main(ctx, s)
	switch {
	case err == nil && !s.stopPending:
		if s.result.Pending() {
			return nil, fmt.Errorf("service %s: main returned without a result: %w",
				s.def.name, ErrNoResult)
		}
		return s.result, nil
	case err == nil || IsStop(err):
		if s.result.Pending() {
			return nil, fmt.Errorf("service %s: stopped without a result: %w",
				s.def.name, ErrNoResult)
		}
		return s.result, nil
	default:
		return nil, fmt.Errorf("service %s: %w", s.def.name, err)
	}
}

// CallWith executes the service and, on success of the call itself, passes
// the Result to handler; handler's return value becomes the overall return
// value. Structural call failures short-circuit the handler.
func (s *Instance) CallWith(ctx context.Context, handler func(*Result) (any, error)) (any, error) {
	res, err := s.Call(ctx)
	if err != nil {
		return nil, err
	}
	return handler(res)
}

// CallSuper runs the main routine bound nearest above the one currently
// running, letting an overriding main invoke its ancestor's body as part of
// its own. Resolution is anchored at the definition that bound the running
// routine, so mains inherited by subtypes keep calling upward instead of
// back into themselves, and chained supers walk one ancestor at a time.
func (s *Instance) CallSuper(ctx context.Context) error {
	from := s.mainOwner
	if from == nil {
		from = s.def
	}
	if from.parent == nil {
		return fmt.Errorf("service %s: no ancestor main: %w", s.def.name, ErrNotImplemented)
	}
	main, owner := from.parent.resolveMain()
	if main == nil {
		return fmt.Errorf("service %s: no ancestor main: %w", s.def.name, ErrNotImplemented)
	}
	prev := s.mainOwner
	s.mainOwner = owner
	defer func() { s.mainOwner = prev }()
	return main(ctx, s)
}

// Stop returns the early-termination signal for use inside a main routine
// or callback: `return s.Stop()` aborts the remainder of the routine and
// terminates the call at this instance's boundary.
func (s *Instance) Stop() error { return ErrStop }
