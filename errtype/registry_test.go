package errtype

import (
	"errors"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stepward/stepward/asserts"
)

type quotaErr struct{}

func (quotaErr) Error() string { return "quota exceeded" }

func TestRegistry_Builtins(t *testing.T) {
	r := NewRegistry()

	for _, name := range []string{"error", "Error", "Exception"} {
		tp, err := r.Resolve(name)
		require.NoError(t, err, name)
		assert.Equal(t, reflect.Interface, tp.Kind())
	}

	tp, err := r.Resolve("Failure")
	require.NoError(t, err)
	assert.Equal(t, reflect.TypeOf(&asserts.Failure{}), tp)
}

func TestRegistry_RegisterAndResolve(t *testing.T) {
	r := NewRegistry()
	r.RegisterErr("QuotaExceeded", quotaErr{})

	tp, err := r.Resolve("QuotaExceeded")
	require.NoError(t, err)
	assert.Equal(t, reflect.TypeOf(quotaErr{}), tp)

	assert.True(t, asserts.ErrorOfType(quotaErr{}, tp))
	assert.False(t, asserts.ErrorOfType(errors.New("other"), tp))
}

func TestRegistry_UnknownName(t *testing.T) {
	r := NewRegistry()

	_, err := r.Resolve("Bogus")
	require.Error(t, err)

	var re *ResolutionError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, "Bogus", re.Name)
	assert.Contains(t, re.Known, "Exception")
	assert.Contains(t, err.Error(), `unknown error type "Bogus"`)
}

func TestRegistry_NamesSorted(t *testing.T) {
	r := NewRegistry()
	r.Register("zz", reflect.TypeOf(quotaErr{}))
	r.Register("aa", reflect.TypeOf(quotaErr{}))

	names := r.Names()
	require.GreaterOrEqual(t, len(names), 2)
	assert.IsIncreasing(t, names)
}

func TestDefault_IsShared(t *testing.T) {
	assert.Same(t, Default(), Default())
}
