// Package scope holds the variables of one step-execution session and
// resolves references to them, including dotted paths into nested
// collections and {{path}} placeholders inside expressions.
package scope

import (
	"fmt"
	"maps"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
)

var placeholder = regexp.MustCompile(`\{\{\s*([^{}]+?)\s*\}\}`)

// Scope is a mutex-guarded variable store. Safe for concurrent use.
type Scope struct {
	mu   sync.RWMutex
	vars map[string]any
}

// New returns an empty scope.
func New() *Scope {
	return &Scope{vars: make(map[string]any)}
}

// Set stores value under name, replacing any previous value.
func (s *Scope) Set(name string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vars[name] = value
}

// Get resolves a dotted path: the first segment names a variable, later
// segments traverse nested maps by key and slices by numeric index.
func (s *Scope) Get(path string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	segs := strings.Split(path, ".")
	cur, ok := s.vars[segs[0]]
	if !ok {
		return nil, false
	}
	for _, seg := range segs[1:] {
		switch v := cur.(type) {
		case map[string]any:
			cur, ok = v[seg]
			if !ok {
				return nil, false
			}
		case []any:
			i, err := strconv.Atoi(seg)
			if err != nil || i < 0 || i >= len(v) {
				return nil, false
			}
			cur = v[i]
		default:
			return nil, false
		}
	}
	return cur, true
}

// Delete removes a top-level variable.
func (s *Scope) Delete(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.vars, name)
}

// Names returns the top-level variable names, sorted.
func (s *Scope) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.vars))
	for name := range s.vars {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Snapshot returns a shallow copy of the top-level variables.
func (s *Scope) Snapshot() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.vars)
}

// ResolveOrSelf resolves a variable reference, or returns the token
// itself when nothing is bound to it.
func (s *Scope) ResolveOrSelf(token string) any {
	if v, ok := s.Get(token); ok {
		return v
	}
	return token
}

// Resolve substitutes {{path}} placeholders in expr with the printed form
// of the bound values. Unbound placeholders are left as written.
func (s *Scope) Resolve(expr string) string {
	return placeholder.ReplaceAllStringFunc(expr, func(m string) string {
		path := strings.TrimSpace(placeholder.FindStringSubmatch(m)[1])
		if v, ok := s.Get(path); ok {
			if v == nil {
				return "null"
			}
			return fmt.Sprint(v)
		}
		return m
	})
}
