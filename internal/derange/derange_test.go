package derange

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/secret-santa/internal/apperror"
)

func newTestGenerator(t *testing.T) *Generator {
	t.Helper()
	g, err := New()
	require.NoError(t, err)
	return g
}

// assertDerangement checks the two round invariants: a permutation of the
// input, with no name mapped to itself.
func assertDerangement(t *testing.T, names, receivers []string) {
	t.Helper()
	require.Len(t, receivers, len(names))
	assert.ElementsMatch(t, names, receivers, "receivers must be a permutation of names")
	for i := range names {
		assert.NotEqual(t, names[i], receivers[i], "fixed point at index %d", i)
	}
}

func TestDerange_InsufficientParticipants(t *testing.T) {
	g := newTestGenerator(t)

	for _, names := range [][]string{nil, {}, {"Alice"}} {
		_, err := g.Derange(names)
		assert.True(t, errors.Is(err, apperror.ErrInsufficientParticipants), "len=%d: got %v", len(names), err)
	}
}

func TestDerange_TwoNamesAlwaysSwap(t *testing.T) {
	g := newTestGenerator(t)

	for i := 0; i < 100; i++ {
		got, err := g.Derange([]string{"Alice", "Bob"})
		require.NoError(t, err)
		assert.Equal(t, []string{"Bob", "Alice"}, got)
	}
}

func TestDerange_ThreeNames(t *testing.T) {
	g := newTestGenerator(t)
	names := []string{"Alice", "Bob", "Carol"}

	// Only two derangements of three items exist: the two 3-cycles.
	seen := map[string]bool{}
	for i := 0; i < 200; i++ {
		got, err := g.Derange(names)
		require.NoError(t, err)
		assertDerangement(t, names, got)
		seen[fmt.Sprint(got)] = true
	}
	assert.Len(t, seen, 2, "both 3-cycles should show up over 200 draws")
}

func TestDerange_PropertyAcrossSizes(t *testing.T) {
	g := newTestGenerator(t)

	for n := 2; n <= 60; n++ {
		names := make([]string, n)
		for i := range names {
			names[i] = fmt.Sprintf("p%02d", i)
		}
		got, err := g.Derange(names)
		require.NoError(t, err, "n=%d", n)
		assertDerangement(t, names, got)
	}
}

func TestDerange_DoesNotModifyInput(t *testing.T) {
	g := newTestGenerator(t)
	names := []string{"Alice", "Bob", "Carol", "Dave"}
	before := append([]string(nil), names...)

	_, err := g.Derange(names)
	require.NoError(t, err)
	assert.Equal(t, before, names)
}

func TestDerange_RejectsBadNames(t *testing.T) {
	g := newTestGenerator(t)

	tests := []struct {
		name  string
		names []string
	}{
		{"duplicate", []string{"Alice", "Bob", "Alice"}},
		{"empty", []string{"Alice", "", "Carol"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := g.Derange(tt.names)
			assert.True(t, errors.Is(err, apperror.ErrValidation), "got %v", err)
		})
	}
}

func TestDerange_GenerationFailedWhenAttemptsExhausted(t *testing.T) {
	calls := 0
	identity := func(n int, swap func(i, j int)) { calls++ }
	g := NewWithShuffle(identity, 25)

	_, err := g.Derange([]string{"Alice", "Bob", "Carol"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperror.ErrGenerationFailed))
	assert.Equal(t, 25, calls)
}

func TestDerange_RetriesUntilNoFixedPoint(t *testing.T) {
	// First shuffle leaves everything in place, second rotates left by one.
	calls := 0
	shuffle := func(n int, swap func(i, j int)) {
		calls++
		if calls == 1 {
			return
		}
		for i := 0; i < n-1; i++ {
			swap(i, i+1)
		}
	}
	g := NewWithShuffle(shuffle, 10)

	got, err := g.Derange([]string{"A", "B", "C", "D"})
	require.NoError(t, err)
	assert.Equal(t, []string{"B", "C", "D", "A"}, got)
	assert.Equal(t, 2, calls)
}
