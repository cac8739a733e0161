package scope

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScope_SetGet(t *testing.T) {
	s := New()
	s.Set("count", 3)

	v, ok := s.Get("count")
	require.True(t, ok)
	assert.Equal(t, 3, v)

	_, ok = s.Get("missing")
	assert.False(t, ok)
}

func TestScope_DottedPaths(t *testing.T) {
	s := New()
	s.Set("order", map[string]any{
		"id":    "o-1",
		"items": []any{map[string]any{"sku": "a"}, map[string]any{"sku": "b"}},
	})

	tests := []struct {
		path string
		want any
		ok   bool
	}{
		{"order.id", "o-1", true},
		{"order.items.0.sku", "a", true},
		{"order.items.1.sku", "b", true},
		{"order.items.2.sku", nil, false},
		{"order.items.x", nil, false},
		{"order.missing", nil, false},
		{"order.id.deeper", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			v, ok := s.Get(tt.path)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, v)
			}
		})
	}
}

func TestScope_ResolveOrSelf(t *testing.T) {
	s := New()
	s.Set("x", 2)

	assert.Equal(t, 2, s.ResolveOrSelf("x"))
	assert.Equal(t, "y", s.ResolveOrSelf("y"), "unbound tokens resolve to themselves")
}

func TestScope_Resolve(t *testing.T) {
	s := New()
	s.Set("name", "svc")
	s.Set("retries", 3)
	s.Set("conf", map[string]any{"port": 8080})
	s.Set("absent", nil)

	tests := []struct {
		expr string
		want string
	}{
		{"{{name}}-{{retries}}", "svc-3"},
		{"port={{conf.port}}", "port=8080"},
		{"{{ name }}", "svc"},
		{"{{unknown}} stays", "{{unknown}} stays"},
		{"{{absent}}", "null"},
		{"no placeholders", "no placeholders"},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			assert.Equal(t, tt.want, s.Resolve(tt.expr))
		})
	}
}

func TestScope_NamesAndSnapshot(t *testing.T) {
	s := New()
	s.Set("b", 1)
	s.Set("a", 2)

	assert.Equal(t, []string{"a", "b"}, s.Names())

	snap := s.Snapshot()
	s.Set("c", 3)
	s.Delete("a")
	assert.Len(t, snap, 2, "snapshot must not see later mutations")

	assert.Equal(t, []string{"b", "c"}, s.Names())
}
