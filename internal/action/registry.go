package action

import (
	"sync"

	"github.com/evantahler/botholomew-sub001/pkg/schema"
)

// Registry holds all registered actions and middleware. Actions are kept in
// registration order plus a name-keyed map; no reflection, every action is
// registered explicitly at startup.
type Registry struct {
	mu         sync.RWMutex
	ordered    []Action
	actions    map[string]Action
	middleware map[string]Middleware
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		actions:    make(map[string]Action),
		middleware: make(map[string]Middleware),
	}
}

// Register adds an action to the registry. Returns error on duplicate name.
func (r *Registry) Register(a Action) error {
	if a == nil {
		return schema.NewError(schema.KindServerError, "action is nil")
	}
	name := a.Name()
	if name == "" {
		return schema.NewError(schema.KindServerError, "action name is empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.actions[name]; exists {
		return schema.NewErrorf(schema.KindConflict, "action %q already registered", name)
	}

	r.actions[name] = a
	r.ordered = append(r.ordered, a)
	return nil
}

// RegisterMiddleware adds a middleware to the registry.
func (r *Registry) RegisterMiddleware(m Middleware) error {
	if m == nil || m.Name() == "" {
		return schema.NewError(schema.KindServerError, "middleware is nil or unnamed")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.middleware[m.Name()]; exists {
		return schema.NewErrorf(schema.KindConflict, "middleware %q already registered", m.Name())
	}
	r.middleware[m.Name()] = m
	return nil
}

// Get retrieves an action by name. A miss is the routing error every
// transport maps to its "action not found" shape.
func (r *Registry) Get(name string) (Action, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.actions[name]
	if !ok {
		return nil, schema.NewErrorf(schema.KindActionNotFound, "action %q not found", name)
	}
	return a, nil
}

// MiddlewareChain resolves an action's middleware names to instances,
// preserving order.
func (r *Registry) MiddlewareChain(a Action) ([]Middleware, error) {
	names := a.Middleware()
	if len(names) == 0 {
		return nil, nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	chain := make([]Middleware, 0, len(names))
	for _, name := range names {
		m, ok := r.middleware[name]
		if !ok {
			return nil, schema.NewErrorf(schema.KindServerError, "middleware %q not registered (action %q)", name, a.Name())
		}
		chain = append(chain, m)
	}
	return chain, nil
}

// List returns all actions in registration order.
func (r *Registry) List() []Action {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Action, len(r.ordered))
	copy(out, r.ordered)
	return out
}

// Routed returns all actions carrying an HTTP route, in registration order.
func (r *Registry) Routed() []Action {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Action
	for _, a := range r.ordered {
		if _, ok := a.(Routed); ok {
			out = append(out, a)
		}
	}
	return out
}

// Periodic returns all actions with a task frequency, in registration order.
func (r *Registry) Periodic() []Action {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Action
	for _, a := range r.ordered {
		if _, ok := a.(Periodic); ok {
			out = append(out, a)
		}
	}
	return out
}
