package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/sakif/secret-santa/internal/apperror"
	"github.com/sakif/secret-santa/internal/model"
)

func testRound(id string, at time.Time) model.RoundState {
	return model.RoundState{
		RoundID:     id,
		GeneratedAt: at,
		UpdatedAt:   at,
		Assignments: []model.Assignment{
			{Giver: "Alice", Receiver: "Bob", Wishlist: "books", Address: "2 Oak Rd", Code: "AAAAAAAA"},
			{Giver: "Bob", Receiver: "Carol", Wishlist: "tea", Address: "3 Pine Rd", Code: "BBBBBBBB"},
			{Giver: "Carol", Receiver: "Alice", Wishlist: "socks", Address: "1 Elm Rd", Code: "CCCCCCCC"},
		},
	}
}

func TestLoadRound_Empty(t *testing.T) {
	db := newTestDB(t)

	state, err := db.LoadRound(context.Background())
	if err != nil {
		t.Fatalf("LoadRound() error = %v", err)
	}
	if !state.Empty() {
		t.Errorf("LoadRound() on fresh db = %+v, want empty", state)
	}
}

func TestSaveRound_RoundTrip(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	at := time.Date(2026, 12, 1, 18, 30, 0, 0, time.UTC)

	if err := db.SaveRound(ctx, testRound("r1", at)); err != nil {
		t.Fatalf("SaveRound() error = %v", err)
	}

	got, err := db.LoadRound(ctx)
	if err != nil {
		t.Fatalf("LoadRound() error = %v", err)
	}
	if got.RoundID != "r1" {
		t.Errorf("RoundID = %q, want r1", got.RoundID)
	}
	if !got.GeneratedAt.Equal(at) {
		t.Errorf("GeneratedAt = %v, want %v", got.GeneratedAt, at)
	}
	want := testRound("r1", at).Assignments
	if len(got.Assignments) != len(want) {
		t.Fatalf("got %d assignments, want %d", len(got.Assignments), len(want))
	}
	for i := range want {
		if got.Assignments[i] != want[i] {
			t.Errorf("assignment %d = %+v, want %+v", i, got.Assignments[i], want[i])
		}
	}
}

func TestSaveRound_ReplacesPrevious(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	if err := db.SaveRound(ctx, testRound("r1", now)); err != nil {
		t.Fatalf("SaveRound(r1) error = %v", err)
	}
	if err := db.SaveRound(ctx, testRound("r2", now.Add(time.Minute))); err != nil {
		t.Fatalf("SaveRound(r2) error = %v", err)
	}

	got, err := db.LoadRound(ctx)
	if err != nil {
		t.Fatalf("LoadRound() error = %v", err)
	}
	if got.RoundID != "r2" {
		t.Errorf("RoundID = %q, want r2", got.RoundID)
	}

	var stale int
	if err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM assignments WHERE round_id = 'r1'`).Scan(&stale); err != nil {
		t.Fatalf("counting stale assignments: %v", err)
	}
	if stale != 0 {
		t.Errorf("%d assignments of the old round survived", stale)
	}
}

func TestMarkRevealed_CompareAndSwap(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()
	if err := db.SaveRound(ctx, testRound("r1", now)); err != nil {
		t.Fatalf("SaveRound() error = %v", err)
	}

	at := now.Add(time.Minute)
	if err := db.MarkRevealed(ctx, "r1", "Bob", at); err != nil {
		t.Fatalf("MarkRevealed() error = %v", err)
	}

	err := db.MarkRevealed(ctx, "r1", "Bob", at.Add(time.Second))
	if !errors.Is(err, apperror.ErrAlreadyRevealed) {
		t.Errorf("second MarkRevealed() error = %v, want ErrAlreadyRevealed", err)
	}

	got, err := db.LoadRound(ctx)
	if err != nil {
		t.Fatalf("LoadRound() error = %v", err)
	}
	if !got.UpdatedAt.Equal(at) {
		t.Errorf("round UpdatedAt = %v, want %v", got.UpdatedAt, at)
	}
	for _, a := range got.Assignments {
		switch a.Giver {
		case "Bob":
			if !a.Revealed || a.RevealedAt == nil || !a.RevealedAt.Equal(at) {
				t.Errorf("Bob = %+v, want revealed at %v", a, at)
			}
		default:
			if a.Revealed {
				t.Errorf("%s revealed, want untouched", a.Giver)
			}
		}
	}
}

func TestMarkRevealed_StaleRound(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	if err := db.SaveRound(ctx, testRound("r2", time.Now())); err != nil {
		t.Fatalf("SaveRound() error = %v", err)
	}

	err := db.MarkRevealed(ctx, "r1", "Alice", time.Now())
	if !errors.Is(err, apperror.ErrConflict) {
		t.Errorf("MarkRevealed() on stale round error = %v, want ErrConflict", err)
	}
}

func TestClearRound(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	if err := db.SaveRound(ctx, testRound("r1", time.Now())); err != nil {
		t.Fatalf("SaveRound() error = %v", err)
	}

	if err := db.ClearRound(ctx); err != nil {
		t.Fatalf("ClearRound() error = %v", err)
	}
	got, err := db.LoadRound(ctx)
	if err != nil {
		t.Fatalf("LoadRound() error = %v", err)
	}
	if !got.Empty() {
		t.Errorf("LoadRound() after ClearRound = %+v, want empty", got)
	}
}

// countAssignments reads the raw table, below LoadRound's view of it.
func countAssignments(t *testing.T, db *DB) int {
	t.Helper()
	var n int
	if err := db.conn.QueryRow(`SELECT COUNT(*) FROM assignments`).Scan(&n); err != nil {
		t.Fatalf("counting assignments: %v", err)
	}
	return n
}

func TestClearRound_FileDBWithPooledConnections(t *testing.T) {
	db, err := New(filepath.Join(t.TempDir(), "santa.db"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	ctx := context.Background()

	if err := db.SaveRound(ctx, testRound("r1", time.Now())); err != nil {
		t.Fatalf("SaveRound() error = %v", err)
	}

	// Hold two connections so the pool has to open fresh ones for the
	// statements below.
	for range 2 {
		c, err := db.conn.Conn(ctx)
		if err != nil {
			t.Fatal(err)
		}
		defer c.Close()

		var fk, busy int
		if err := c.QueryRowContext(ctx, `PRAGMA foreign_keys`).Scan(&fk); err != nil {
			t.Fatal(err)
		}
		if err := c.QueryRowContext(ctx, `PRAGMA busy_timeout`).Scan(&busy); err != nil {
			t.Fatal(err)
		}
		if fk != 1 || busy != 5000 {
			t.Errorf("pooled connection pragmas foreign_keys=%d busy_timeout=%d, want 1 and 5000", fk, busy)
		}
	}

	if err := db.SaveRound(ctx, testRound("r2", time.Now())); err != nil {
		t.Fatalf("SaveRound(r2) error = %v", err)
	}
	if n := countAssignments(t, db); n != 3 {
		t.Errorf("assignments after replacing round = %d, want 3", n)
	}

	if err := db.ClearRound(ctx); err != nil {
		t.Fatalf("ClearRound() error = %v", err)
	}
	if n := countAssignments(t, db); n != 0 {
		t.Errorf("assignments after ClearRound = %d, want 0", n)
	}
}

func TestDSN(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{":memory:", ":memory:?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"},
		{"data/santa.db", "data/santa.db?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"},
		{"file:santa.db?mode=rwc", "file:santa.db?mode=rwc&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"},
	}
	for _, tt := range tests {
		if got := dsn(tt.path); got != tt.want {
			t.Errorf("dsn(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}
