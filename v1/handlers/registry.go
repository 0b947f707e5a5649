// Package handlers implements the named-handler registry that replaces the
// original's arbitrary pickled-callable execution (schedulergodx/utils
// /message.py's MessageConstructor.func_serialization, which dill-dumps a
// Python function). "Prefer a
// named-handler registry: clients reference a handler id and pass
// serializable arguments; the service looks up the handler. This
// eliminates arbitrary-code-execution risk...".
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

// Func is a registered task handler. args/kwargs are the raw JSON carried
// (base64-wrapped) in a TASK envelope's tasks.TaskArgs; the handler is responsible for unmarshaling whatever
// shape it expects.
type Func func(ctx context.Context, args, kwargs json.RawMessage) (json.RawMessage, error)

// ErrNotRegistered is returned by Registry.Lookup for an unknown handler
// name.
var ErrNotRegistered = errors.New("handlers: not registered")

// Registry is a concurrency-safe name -> Func map used by the soft
// executor; for hard mode, cmd/taskworker builds its own Registry with the
// same builtins inside the container so the same names resolve there.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Func
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Func)}
}

// Register adds or replaces the handler for name.
func (r *Registry) Register(name string, fn Func) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[name] = fn
}

// Lookup returns the handler for name, or ErrNotRegistered.
func (r *Registry) Lookup(name string) (Func, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.handlers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotRegistered, name)
	}
	return fn, nil
}

// Names returns the currently registered handler names, mainly for
// diagnostics/tests.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		out = append(out, name)
	}
	return out
}
