package transform

import (
	"fmt"
	"sync"

	"flowforge/internal/errors"
)

// Registry manages the catalogue of operations available to a pipeline.
type Registry struct {
	mu    sync.RWMutex
	ops   map[string]Operation
	order []string // registration order
}

// NewRegistry creates a registry pre-populated with the builtin
// operation catalogue.
func NewRegistry() *Registry {
	r := &Registry{ops: make(map[string]Operation)}
	for _, op := range []Operation{
		&DedupeOperation{},
		&MissingOperation{},
		&FilterOperation{},
		&SortOperation{},
		&RenameColumnsOperation{},
		&DropColumnsOperation{},
		&ReorderColumnsOperation{},
		&ConvertOperation{},
		&DeriveOperation{},
		&TextOperation{},
		&FixTyposOperation{},
	} {
		// Builtins are unique by construction.
		_ = r.Register(op)
	}
	return r
}

// Register adds an operation to the catalogue.
func (r *Registry) Register(op Operation) error {
	if op == nil {
		return fmt.Errorf("cannot register nil operation")
	}
	kind := op.Kind()
	if kind == "" {
		return fmt.Errorf("operation kind cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.ops[kind]; exists {
		return fmt.Errorf("operation %s already registered", kind)
	}
	r.ops[kind] = op
	r.order = append(r.order, kind)
	return nil
}

// Get retrieves an operation by kind.
func (r *Registry) Get(kind string) (Operation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	op, ok := r.ops[kind]
	if !ok {
		return nil, errors.NewNotFoundError("unknown operation kind %q", kind).WithParameter("operation_kind")
	}
	return op, nil
}

// Kinds returns the registered kinds in registration order.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Count returns the number of registered operations.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.ops)
}
