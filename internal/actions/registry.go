package actions

import (
	"sort"
	"sync"

	"github.com/pedbender123/repforce-web-sub002/pkg/schema"
)

// Registry is a thread-safe handler lookup keyed by action type.
type Registry struct {
	mu       sync.RWMutex
	handlers map[schema.ActionType]Handler
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[schema.ActionType]Handler),
	}
}

// Register adds a handler to the registry. Returns error on duplicate type.
func (r *Registry) Register(h Handler) error {
	if h == nil {
		return schema.NewError(schema.ErrCodeValidation, "handler is nil")
	}
	typ := h.Type()
	if typ == "" {
		return schema.NewError(schema.ErrCodeValidation, "handler action type is empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handlers[typ]; exists {
		return schema.NewErrorf(schema.ErrCodeConflict, "handler for %q already registered", typ)
	}

	r.handlers[typ] = h
	return nil
}

// Get retrieves the handler for an action type.
func (r *Registry) Get(typ schema.ActionType) (Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, ok := r.handlers[typ]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeExternalAction, "no handler registered for action type %q", typ)
	}
	return h, nil
}

// Has checks whether an action type has a registered handler.
func (r *Registry) Has(typ schema.ActionType) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.handlers[typ]
	return ok
}

// Count returns the number of registered handlers.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers)
}

// List returns the registered action types, sorted.
func (r *Registry) List() []schema.ActionType {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]schema.ActionType, 0, len(r.handlers))
	for typ := range r.handlers {
		types = append(types, typ)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}
