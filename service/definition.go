package service

import (
	"context"
	"sort"
)

// MainFunc is a service's body. It reads inputs from the instance, sets the
// instance's Result, and may invoke nested services, run callbacks, or
// return ErrStop to terminate early.
type MainFunc func(ctx context.Context, s *Instance) error

// AuthorizeFunc decides whether a call may proceed. It runs before the main
// routine with full access to instance state (inputs, principal).
type AuthorizeFunc func(s *Instance) bool

// CallbackFunc is the implementation bound to a named callback.
type CallbackFunc func(ctx context.Context, s *Instance, args ...any) error

// DefaultFunc lazily produces the default value for an optional input. It is
// only evaluated when no explicit value was supplied for the input.
type DefaultFunc func() any

// Definition is the declarative table describing one service type: its
// required inputs, input defaults, authorization predicate, main routine,
// and callback registrations. Definitions form an ancestry via Derive:
// required inputs and defaults are snapshot-copied to the derived type,
// while main, authorization, and callbacks are inherited by lookup through
// the parent chain until overridden.
//
// Build a definition completely before creating instances from it; the
// builder methods are not safe for concurrent use with Call.
type Definition struct {
	name      string
	parent    *Definition
	abstract  bool
	required  map[string]struct{}
	defaults  map[string]DefaultFunc
	authorize AuthorizeFunc
	main      MainFunc
	callbacks map[string]CallbackFunc
}

// root is the abstract base of every definition. It has no main routine and
// denies all callers; invoking it directly is ErrAbstractInvocation.
var root = &Definition{
	name:      "service",
	abstract:  true,
	required:  map[string]struct{}{},
	defaults:  map[string]DefaultFunc{},
	callbacks: map[string]CallbackFunc{},
}

// Base returns the abstract root definition. It exists so tests and
// embedders can refer to the never-callable base type; do not register
// inputs or routines on it.
func Base() *Definition { return root }

// Define creates a new service definition derived from the abstract base.
func Define(name string) *Definition {
	return root.Derive(name)
}

// Derive creates a subtype of d named name. The subtype starts with a
// snapshot copy of d's required-input set and input defaults; it may add
// required inputs, add or override defaults (including for names declared
// by d), and override the main routine and authorization predicate without
// affecting d.
func (d *Definition) Derive(name string) *Definition {
	required := make(map[string]struct{}, len(d.required))
	for k := range d.required {
		required[k] = struct{}{}
	}
	defaults := make(map[string]DefaultFunc, len(d.defaults))
	for k, v := range d.defaults {
		defaults[k] = v
	}
	return &Definition{
		name:      name,
		parent:    d,
		required:  required,
		defaults:  defaults,
		callbacks: map[string]CallbackFunc{},
	}
}

// Name returns the service type's display name.
func (d *Definition) Name() string { return d.name }

// Input declares one or more required inputs: instances cannot be
// constructed without a value for each. Declaring a name that previously
// had a default drops the default; the later declaration wins.
func (d *Definition) Input(names ...string) *Definition {
	for _, name := range names {
		d.required[name] = struct{}{}
		delete(d.defaults, name)
	}
	return d
}

// InputDefault declares an optional input with a lazily-evaluated default.
// A default always wins over a required declaration for the same name, even
// one inherited from an ancestor.
func (d *Definition) InputDefault(name string, def DefaultFunc) *Definition {
	delete(d.required, name)
	d.defaults[name] = def
	return d
}

// Authorize binds the authorization predicate for this exact type,
// replacing any previously bound predicate. Subtypes that never call
// Authorize inherit the nearest ancestor's predicate; with none bound
// anywhere, every call is denied.
func (d *Definition) Authorize(fn AuthorizeFunc) *Definition {
	d.authorize = fn
	return d
}

// AllowAll binds a constant-true authorization predicate.
func (d *Definition) AllowAll() *Definition {
	return d.Authorize(func(*Instance) bool { return true })
}

// Main binds the main routine for this exact type, replacing any previously
// bound routine. Ancestor routines remain bound to their own types and are
// reachable from an override via Instance.CallSuper.
func (d *Definition) Main(fn MainFunc) *Definition {
	d.main = fn
	return d
}

// Callback registers a named callback implementation. Registrations are
// inherited: instances of subtypes see all ancestor-registered names plus
// their own. The implementation is reachable only through Instance.Callback
// handles, never as an ordinary operation.
func (d *Definition) Callback(name string, fn CallbackFunc) *Definition {
	d.callbacks[name] = fn
	return d
}

// RequiredInputs returns the service type's required input names, sorted.
func (d *Definition) RequiredInputs() []string {
	names := make([]string, 0, len(d.required))
	for name := range d.required {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// declared reports whether name is a known input for this type, either
// required or defaulted. Both sets carry ancestor declarations via the
// Derive snapshot.
func (d *Definition) declared(name string) bool {
	if _, ok := d.required[name]; ok {
		return true
	}
	_, ok := d.defaults[name]
	return ok
}

// resolveMain returns the main routine bound nearest to d in its ancestry
// together with the definition that bound it, or nil if none is bound
// anywhere. The binding definition anchors Instance.CallSuper: super is
// always relative to where the running routine was bound, not to the
// instance's own type.
func (d *Definition) resolveMain() (MainFunc, *Definition) {
	for cur := d; cur != nil; cur = cur.parent {
		if cur.main != nil {
			return cur.main, cur
		}
	}
	return nil, nil
}

// resolveAuthorize returns the authorization predicate bound nearest to d
// in its ancestry, or nil if none is bound anywhere (deny all).
func (d *Definition) resolveAuthorize() AuthorizeFunc {
	for cur := d; cur != nil; cur = cur.parent {
		if cur.authorize != nil {
			return cur.authorize
		}
	}
	return nil
}

// resolveCallback returns the callback implementation registered nearest to
// d in its ancestry for name, or nil if name was never registered.
func (d *Definition) resolveCallback(name string) CallbackFunc {
	for cur := d; cur != nil; cur = cur.parent {
		if fn, ok := cur.callbacks[name]; ok {
			return fn
		}
	}
	return nil
}
