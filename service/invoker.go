package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// Registry is a name-keyed table of service definitions. It is safe for
// concurrent lookup; registration normally happens once at startup.
type Registry struct {
	mu   sync.RWMutex
	defs map[string]*Definition
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{defs: make(map[string]*Definition)}
}

// Register adds a definition under its name. Registering a second
// definition with the same name is an error.
func (r *Registry) Register(def *Definition) error {
	if def == nil {
		return fmt.Errorf("registry: definition cannot be nil")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.defs[def.name]; ok {
		return fmt.Errorf("registry: service %q already registered", def.name)
	}
	r.defs[def.name] = def
	return nil
}

// Get retrieves a definition by name.
func (r *Registry) Get(name string) (*Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.defs[name]
	return def, ok
}

// Names returns the registered service names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.defs))
	for name := range r.defs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Invoker invokes registered services with an ambient principal and logger,
// so call sites only supply the service name and its explicit inputs.
type Invoker struct {
	registry      *Registry
	principal     any
	logger        *slog.Logger
	notAuthorized NotAuthorizedFunc
}

// NewInvoker creates an Invoker bound to a registry and a principal.
// Logger is optional and defaults to slog.Default().
func NewInvoker(registry *Registry, principal any, logger *slog.Logger) (*Invoker, error) {
	if registry == nil {
		return nil, fmt.Errorf("invoker: registry cannot be nil")
	}
	if principal == nil {
		return nil, fmt.Errorf("invoker: %w", ErrNilPrincipal)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Invoker{registry: registry, principal: principal, logger: logger}, nil
}

// SetNotAuthorized overrides the not-authorized hook passed to every
// instance this invoker constructs.
func (iv *Invoker) SetNotAuthorized(fn NotAuthorizedFunc) {
	iv.notAuthorized = fn
}

// Invoke constructs and calls the named service with the ambient principal
// and logger plus the given inputs, returning the Result or propagating the
// call's structural failure.
func (iv *Invoker) Invoke(ctx context.Context, name string, inputs map[string]any) (*Result, error) {
	def, ok := iv.registry.Get(name)
	if !ok {
		return nil, fmt.Errorf("invoker: %q: %w", name, ErrServiceNotFound)
	}
	inst, err := New(def, Params{
		Principal:     iv.principal,
		Logger:        iv.logger,
		NotAuthorized: iv.notAuthorized,
		Inputs:        inputs,
	})
	if err != nil {
		return nil, err
	}
	return inst.Call(ctx)
}

// InvokeValue invokes the named service and unwraps its Result, so callers
// get the success payload directly or the error-status payload as an error.
func (iv *Invoker) InvokeValue(ctx context.Context, name string, inputs map[string]any) (any, error) {
	res, err := iv.Invoke(ctx, name, inputs)
	if err != nil {
		return nil, err
	}
	return res.Unwrap()
}
