package tracestore

import (
	"sync"

	"github.com/google/uuid"
)

// TokenGenerator mints run tokens.
type TokenGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 run tokens.
//
// UUIDv7 embeds a timestamp in the most significant bits, so tokens sort
// by creation time and LatestRun's started_at ordering agrees with token
// ordering. Within one millisecond the random bits decide; Generate
// regenerates until the new token sorts after the previous one, so the
// sequence is strictly monotonic even under rapid calls.
type UUIDv7Generator struct {
	mu   sync.Mutex
	last string
}

// Generate creates a new UUIDv7 and returns it as a hyphenated string.
//
// Format: "01890a5d-ac96-774b-bcce-b302099a8057" (36 characters)
//
// Panics if UUID generation fails (should never happen in practice).
func (g *UUIDv7Generator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	for {
		token := uuid.Must(uuid.NewV7()).String()
		if token > g.last {
			g.last = token
			return token
		}
	}
}

// FixedGenerator returns predetermined run tokens for testing.
//
// This enables deterministic trace persistence tests: a known sequence of
// tokens goes in, exact rows come out.
type FixedGenerator struct {
	mu     sync.Mutex
	tokens []string
	idx    int
}

// NewFixedGenerator creates a generator that returns tokens in order.
//
// Example:
//
//	gen := NewFixedGenerator("run-1", "run-2")
//	gen.Generate() // "run-1"
//	gen.Generate() // "run-2"
//	gen.Generate() // panic: all tokens exhausted
func NewFixedGenerator(tokens ...string) *FixedGenerator {
	return &FixedGenerator{tokens: tokens}
}

// Generate returns the next predetermined token.
//
// Panics if all tokens have been consumed. This is a fail-fast approach
// to catch test misconfiguration (more runs started than expected).
func (g *FixedGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.idx >= len(g.tokens) {
		panic("FixedGenerator: all tokens exhausted")
	}
	token := g.tokens[g.idx]
	g.idx++
	return token
}
