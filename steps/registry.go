// Package steps provides the step-definition framework around guard
// chains: a registry matching step text to handlers, the World that step
// executions run against, and a runner that splits a step's guard clause,
// builds the chain, and maps its outcome to a three-way step status.
package steps

import (
	"context"
	"fmt"
	"regexp"
	"sync"

	"github.com/stepward/stepward/guard"
)

// Handler executes one step against the world with the pattern's capture
// groups as args.
type Handler func(ctx context.Context, w *World, args []string) error

// Definition is one registered step.
type Definition struct {
	// Pattern is the step pattern as registered, without the guard prefix
	// and anchors that are added around it.
	Pattern string

	re      *regexp.Regexp
	handler Handler
}

// Registry holds step definitions in registration order; the first
// matching definition wins.
type Registry struct {
	mu   sync.RWMutex
	defs []*Definition
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register compiles pattern with the guard prefix and anchors around it
// and adds it to the registry. Capture group 1 of the compiled pattern is
// the guard clause; the pattern's own groups follow it.
func (r *Registry) Register(pattern string, h Handler) error {
	re, err := regexp.Compile(`^` + guard.Prefix + pattern + `$`)
	if err != nil {
		return fmt.Errorf("step pattern %q: %w", pattern, err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defs = append(r.defs, &Definition{Pattern: pattern, re: re, handler: h})
	return nil
}

// Find matches text against the registered definitions and returns the
// first match, its guard clause (empty when the step has no guards), and
// the handler args.
func (r *Registry) Find(text string) (def *Definition, clause string, args []string, ok bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, d := range r.defs {
		m := d.re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		return d, m[1], m[2:], true
	}
	return nil, "", nil, false
}

// Len returns the number of registered definitions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.defs)
}
