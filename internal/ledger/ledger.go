// Package ledger is the assignment engine: it generates rounds and gates reveals.
//
// STATE MACHINE PER GIVER:
//
//	NotRevealed ──(right name + right code)──> Revealed   (terminal)
//
// Wrong codes leave the giver in NotRevealed, so a typo does not burn the one
// attempt. Once Revealed, every further call fails with AlreadyRevealed even
// when the code is right.
//
// CONCURRENCY:
// A single mutex guards the whole round. Reveal holds it across the check, the
// Store write and the in-memory flip, so two concurrent reveals for the same
// giver cannot both succeed. GenerateRound, Reset and Load take the same mutex,
// so a reveal never observes a half-replaced round. For several server
// instances sharing one database, Store.MarkRevealed is a compare-and-swap and
// the loser gets AlreadyRevealed.
package ledger

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/secret-santa/internal/apperror"
	"github.com/sakif/secret-santa/internal/model"
)

// Deranger produces a fixed-point-free permutation of names.
// Implemented by *derange.Generator.
type Deranger interface {
	Derange(names []string) ([]string, error)
}

// CodeSource produces distinct secret codes.
// Implemented by *secretcode.Generator.
type CodeSource interface {
	GenerateUnique(count int) ([]string, error)
}

// Store is the durable side of the ledger. Every method may block on I/O.
//
// MarkRevealed must be a compare-and-swap: it succeeds only if the giver's
// record in roundID is still unrevealed. It returns an error wrapping
// apperror.ErrAlreadyRevealed when another writer got there first, and one
// wrapping apperror.ErrConflict when roundID is no longer the stored round.
type Store interface {
	SaveRound(ctx context.Context, state model.RoundState) error
	MarkRevealed(ctx context.Context, roundID, giver string, at time.Time) error
	ClearRound(ctx context.Context) error
}

// Ledger owns the current round. Create one per application with New.
type Ledger struct {
	mu    sync.Mutex
	state model.RoundState
	index map[string]int // giver -> position in state.Assignments

	deranger Deranger
	codes    CodeSource
	store    Store
	now      func() time.Time

	// localAt is when GenerateRound or Reset last replaced the round here.
	// Refresh drops other rounds read before that moment.
	localAt time.Time
}

// New returns an empty ledger. store may be nil for a purely in-memory ledger.
func New(deranger Deranger, codes CodeSource, store Store) *Ledger {
	if store == nil {
		store = NopStore{}
	}
	return &Ledger{
		deranger: deranger,
		codes:    codes,
		store:    store,
		now:      time.Now,
		index:    map[string]int{},
	}
}

// GenerateRound builds a new round from participants and replaces the current
// one. Wishlist and address are copied from each receiver. The new round is
// written to the Store before it becomes visible; on any error the previous
// round stays exactly as it was.
func (l *Ledger) GenerateRound(ctx context.Context, participants []model.Participant) (*model.RoundSummary, error) {
	if len(participants) < 2 {
		return nil, apperror.InsufficientParticipants(len(participants))
	}

	names := model.Names(participants)
	byName := make(map[string]model.Participant, len(participants))
	for _, p := range participants {
		byName[p.Name] = p
	}

	receivers, err := l.deranger.Derange(names)
	if err != nil {
		return nil, err
	}
	codes, err := l.codes.GenerateUnique(len(names))
	if err != nil {
		return nil, fmt.Errorf("ledger: generating codes: %w", err)
	}

	now := l.now()
	next := model.RoundState{
		RoundID:     xid.New().String(),
		GeneratedAt: now,
		UpdatedAt:   now,
		Assignments: make([]model.Assignment, len(names)),
	}
	summary := &model.RoundSummary{
		RoundID:     next.RoundID,
		GeneratedAt: now,
		Pairs:       make([]model.Pair, len(names)),
	}
	for i, giver := range names {
		recv := byName[receivers[i]]
		next.Assignments[i] = model.Assignment{
			Giver:    giver,
			Receiver: recv.Name,
			Wishlist: recv.Wishlist,
			Address:  recv.Address,
			Code:     codes[i],
		}
		summary.Pairs[i] = model.Pair{Giver: giver, Receiver: recv.Name, Code: codes[i]}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.store.SaveRound(ctx, next.Clone()); err != nil {
		return nil, fmt.Errorf("ledger: saving round: %w", err)
	}
	l.replace(next)
	l.localAt = l.now()

	return summary, nil
}

// Reveal runs the one-attempt gate for name. See the package doc for the
// state machine. The reveal is recorded in the Store before the result is
// returned.
func (l *Ledger) Reveal(ctx context.Context, name, code string) (*model.RevealResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	i, ok := l.index[name]
	if !ok {
		return nil, apperror.NameNotFound(name)
	}
	a := &l.state.Assignments[i]
	if a.Revealed {
		return nil, apperror.AlreadyRevealed(name)
	}
	if subtle.ConstantTimeCompare([]byte(code), []byte(a.Code)) != 1 {
		return nil, apperror.InvalidCode(name)
	}

	at := l.now()
	if err := l.store.MarkRevealed(ctx, l.state.RoundID, name, at); err != nil {
		if errors.Is(err, apperror.ErrAlreadyRevealed) {
			// Another instance won the race; remember it locally too.
			l.markRevealed(a, at)
			return nil, apperror.AlreadyRevealed(name)
		}
		return nil, fmt.Errorf("ledger: recording reveal: %w", err)
	}
	l.markRevealed(a, at)

	return &model.RevealResult{
		Receiver: a.Receiver,
		Wishlist: a.Wishlist,
		Address:  a.Address,
	}, nil
}

// State returns a deep copy of the current round.
func (l *Ledger) State() model.RoundState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state.Clone()
}

// Load replaces the current round with state unconditionally.
// It does not write to the Store: it exists so a
// collaborator can rehydrate the ledger from the Store. An empty state clears
// the ledger.
func (l *Ledger) Load(state model.RoundState) error {
	if err := Validate(state); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.replace(state.Clone())
	return nil
}

// Refresh applies a state read back from the shared Store, last writer wins:
//
//   - same round: applied when state is newer; reveal flags are merged so a
//     giver never goes from Revealed back to NotRevealed
//   - different round: applied when state was generated later, or is empty
//     (the round was reset elsewhere), unless readAt is before the last local
//     GenerateRound or Reset. Such a read raced the local write and is stale.
//
// readAt is when the caller started reading state from the Store. It reports
// whether anything changed.
func (l *Ledger) Refresh(state model.RoundState, readAt time.Time) (bool, error) {
	if err := Validate(state); err != nil {
		return false, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	cur := l.state
	switch {
	case state.RoundID == cur.RoundID:
		if !state.UpdatedAt.After(cur.UpdatedAt) {
			return false, nil
		}
		merged := state.Clone()
		for i := range merged.Assignments {
			a := &merged.Assignments[i]
			if j, ok := l.index[a.Giver]; ok && cur.Assignments[j].Revealed && !a.Revealed {
				a.Revealed = true
				a.RevealedAt = cur.Assignments[j].RevealedAt
			}
		}
		l.replace(merged)
		return true, nil

	case readAt.Before(l.localAt):
		return false, nil

	case state.Empty(), cur.Empty(), state.GeneratedAt.After(cur.GeneratedAt):
		l.replace(state.Clone())
		return true, nil
	}
	return false, nil
}

// Reset discards the current round in the Store and in memory.
func (l *Ledger) Reset(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.store.ClearRound(ctx); err != nil {
		return fmt.Errorf("ledger: clearing round: %w", err)
	}
	l.replace(model.RoundState{})
	l.localAt = l.now()
	return nil
}

// Status reports reveal progress without receivers or codes.
func (l *Ledger) Status() model.RoundStatus {
	l.mu.Lock()
	defer l.mu.Unlock()

	st := model.RoundStatus{
		RoundID:     l.state.RoundID,
		GeneratedAt: l.state.GeneratedAt,
		Total:       len(l.state.Assignments),
		Givers:      make([]model.GiverStatus, 0, len(l.state.Assignments)),
	}
	for _, a := range l.state.Assignments {
		gs := model.GiverStatus{Giver: a.Giver, Revealed: a.Revealed}
		if a.RevealedAt != nil {
			at := *a.RevealedAt
			gs.RevealedAt = &at
		}
		if a.Revealed {
			st.Revealed++
		}
		st.Givers = append(st.Givers, gs)
	}
	return st
}

// Summary returns the distribution list for the current round.
func (l *Ledger) Summary() (*model.RoundSummary, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state.Empty() {
		return nil, apperror.NotFound("round", "current")
	}
	s := &model.RoundSummary{
		RoundID:     l.state.RoundID,
		GeneratedAt: l.state.GeneratedAt,
		Pairs:       make([]model.Pair, len(l.state.Assignments)),
	}
	for i, a := range l.state.Assignments {
		s.Pairs[i] = model.Pair{Giver: a.Giver, Receiver: a.Receiver, Code: a.Code}
	}
	return s, nil
}

// replace swaps in state and rebuilds the index. Caller holds l.mu.
func (l *Ledger) replace(state model.RoundState) {
	l.state = state
	l.index = make(map[string]int, len(state.Assignments))
	for i, a := range state.Assignments {
		l.index[a.Giver] = i
	}
}

// markRevealed flips a record. Caller holds l.mu.
func (l *Ledger) markRevealed(a *model.Assignment, at time.Time) {
	a.Revealed = true
	a.RevealedAt = &at
	if at.After(l.state.UpdatedAt) {
		l.state.UpdatedAt = at
	}
}

// Validate checks the round invariants on a state from outside the ledger:
// unique givers, no self-assignment, receivers a permutation of givers, and a
// code on every record.
func Validate(state model.RoundState) error {
	if state.Empty() {
		if len(state.Assignments) != 0 {
			return apperror.ValidationFailed("roundId", "round state has assignments but no round id")
		}
		return nil
	}
	if len(state.Assignments) < 2 {
		return apperror.InsufficientParticipants(len(state.Assignments))
	}

	givers := make(map[string]bool, len(state.Assignments))
	for _, a := range state.Assignments {
		if a.Giver == "" || a.Code == "" {
			return apperror.ValidationFailed("assignments", "assignment is missing giver or code")
		}
		if givers[a.Giver] {
			return apperror.ValidationFailed("assignments", fmt.Sprintf("giver %q appears twice", a.Giver))
		}
		if a.Giver == a.Receiver {
			return apperror.ValidationFailed("assignments", fmt.Sprintf("%q is assigned to themselves", a.Giver))
		}
		givers[a.Giver] = true
	}

	received := make(map[string]bool, len(state.Assignments))
	for _, a := range state.Assignments {
		if !givers[a.Receiver] || received[a.Receiver] {
			return apperror.ValidationFailed("assignments", fmt.Sprintf("receiver %q breaks the one-to-one mapping", a.Receiver))
		}
		received[a.Receiver] = true
	}
	return nil
}

// NopStore keeps nothing. It backs a ledger that lives only in memory.
type NopStore struct{}

func (NopStore) SaveRound(context.Context, model.RoundState) error             { return nil }
func (NopStore) MarkRevealed(context.Context, string, string, time.Time) error { return nil }
func (NopStore) ClearRound(context.Context) error                              { return nil }
