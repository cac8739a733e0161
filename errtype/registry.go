// Package errtype maps textual error-type names, as written in guard
// clauses like "a QuotaExceeded is thrown when", to concrete Go types.
package errtype

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/stepward/stepward/asserts"
)

// ResolutionError is returned when a name is not registered.
type ResolutionError struct {
	// Name is the unresolvable type name.
	Name string

	// Known lists the registered names, sorted.
	Known []string
}

// Error implements the error interface.
func (e *ResolutionError) Error() string {
	return fmt.Sprintf("unknown error type %q (known: %s)", e.Name, strings.Join(e.Known, ", "))
}

// Registry resolves error-type names. Safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	types map[string]reflect.Type
}

var errorInterface = reflect.TypeOf((*error)(nil)).Elem()

// NewRegistry returns a registry pre-seeded with the built-in names:
// "error", "Error" and "Exception" (the error interface, matching any
// error), "Failure" and "AssertionFailure" (assertion failures), and
// "DeadlineExceeded" (context deadline errors).
func NewRegistry() *Registry {
	r := &Registry{types: make(map[string]reflect.Type)}
	r.Register("error", errorInterface)
	r.Register("Error", errorInterface)
	r.Register("Exception", errorInterface)
	r.RegisterErr("Failure", &asserts.Failure{})
	r.RegisterErr("AssertionFailure", &asserts.Failure{})
	r.RegisterErr("DeadlineExceeded", context.DeadlineExceeded)
	return r
}

// Register binds name to t, replacing any previous binding.
func (r *Registry) Register(name string, t reflect.Type) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.types[name] = t
}

// RegisterErr binds name to the dynamic type of example.
func (r *Registry) RegisterErr(name string, example error) {
	r.Register(name, reflect.TypeOf(example))
}

// Resolve returns the type bound to name, or a *ResolutionError listing
// the known names.
func (r *Registry) Resolve(name string) (reflect.Type, error) {
	r.mu.RLock()
	t, ok := r.types[name]
	r.mu.RUnlock()
	if !ok {
		return nil, &ResolutionError{Name: name, Known: r.Names()}
	}
	return t, nil
}

// Names returns the registered names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.types))
	for name := range r.types {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

var defaultRegistry = NewRegistry()

// Default returns the process-wide registry used when no explicit one is
// wired. Registering on it is safe from init functions and tests alike.
func Default() *Registry {
	return defaultRegistry
}
