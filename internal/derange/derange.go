// Package derange produces derangements: permutations where no element stays
// in its original position.
//
// REJECTION SAMPLING:
// A uniform random shuffle of n items has no fixed point with probability ~1/e,
// so shuffling until we get one takes about 2.7 attempts on average. The
// attempt cap only bounds worst-case latency; hitting it is not expected with
// a working random source.
package derange

import (
	crand "crypto/rand"
	"fmt"
	"math/rand/v2"
	"sync"

	"github.com/sakif/secret-santa/internal/apperror"
)

// DefaultMaxAttempts is the number of shuffles tried before giving up.
const DefaultMaxAttempts = 5000

// ShuffleFunc has the signature of (*rand.Rand).Shuffle.
type ShuffleFunc func(n int, swap func(i, j int))

// Generator produces derangements of name lists.
//
// *rand.Rand is not safe for concurrent use, so the generator serialises
// shuffles behind a mutex. Rounds are generated rarely; contention is not a
// concern.
type Generator struct {
	mu          sync.Mutex
	shuffle     ShuffleFunc
	maxAttempts int
}

// New returns a Generator backed by a ChaCha8 stream seeded from the OS.
func New() (*Generator, error) {
	var seed [32]byte
	if _, err := crand.Read(seed[:]); err != nil {
		return nil, fmt.Errorf("derange: seeding shuffle source: %w", err)
	}
	r := rand.New(rand.NewChaCha8(seed))
	return NewWithShuffle(r.Shuffle, DefaultMaxAttempts), nil
}

// NewWithShuffle returns a Generator using the given shuffle. Tests use it to
// make the search deterministic or to force exhaustion.
func NewWithShuffle(shuffle ShuffleFunc, maxAttempts int) *Generator {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Generator{shuffle: shuffle, maxAttempts: maxAttempts}
}

// Derange returns receivers such that receivers[i] != names[i] for every i
// and receivers is a permutation of names. The input is not modified.
//
// Errors:
//   - apperror.ErrInsufficientParticipants for fewer than 2 names
//   - apperror.ErrValidation for empty or duplicate names
//   - apperror.ErrGenerationFailed when the attempt cap is reached
func (g *Generator) Derange(names []string) ([]string, error) {
	if len(names) < 2 {
		return nil, apperror.InsufficientParticipants(len(names))
	}
	if err := validateNames(names); err != nil {
		return nil, err
	}

	// With two people the only derangement is the swap.
	if len(names) == 2 {
		return []string{names[1], names[0]}, nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	receivers := make([]string, len(names))
	for attempt := 0; attempt < g.maxAttempts; attempt++ {
		copy(receivers, names)
		g.shuffle(len(receivers), func(i, j int) {
			receivers[i], receivers[j] = receivers[j], receivers[i]
		})
		if !hasFixedPoint(names, receivers) {
			return receivers, nil
		}
	}

	return nil, apperror.GenerationFailed(g.maxAttempts)
}

func hasFixedPoint(names, receivers []string) bool {
	for i := range names {
		if names[i] == receivers[i] {
			return true
		}
	}
	return false
}

func validateNames(names []string) error {
	seen := make(map[string]struct{}, len(names))
	for _, n := range names {
		if n == "" {
			return apperror.ValidationFailed("name", "participant names must not be empty")
		}
		if _, dup := seen[n]; dup {
			return apperror.ValidationFailed("name", fmt.Sprintf("duplicate participant name %q", n))
		}
		seen[n] = struct{}{}
	}
	return nil
}
