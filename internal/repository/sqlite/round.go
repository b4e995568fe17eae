package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sakif/secret-santa/internal/apperror"
	"github.com/sakif/secret-santa/internal/model"
)

// SaveRound replaces the stored round with state inside one transaction.
// Readers either see the old round or the new one, never a mix.
func (db *DB) SaveRound(ctx context.Context, state model.RoundState) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning round tx: %w", err)
	}
	// Rollback after Commit is a no-op, so deferring it is always safe.
	defer tx.Rollback()

	if err := clearRound(ctx, tx); err != nil {
		return fmt.Errorf("sqlite: clearing previous round: %w", err)
	}

	if !state.Empty() {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO rounds (singleton, id, generated_at, updated_at) VALUES (1, ?, ?, ?)`,
			state.RoundID, state.GeneratedAt.UTC(), state.UpdatedAt.UTC(),
		)
		if err != nil {
			return fmt.Errorf("sqlite: inserting round %s: %w", state.RoundID, err)
		}

		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO assignments
			   (round_id, position, giver, receiver, wishlist, address, code, revealed, revealed_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		)
		if err != nil {
			return fmt.Errorf("sqlite: preparing assignment insert: %w", err)
		}
		defer stmt.Close()

		for i, a := range state.Assignments {
			if _, err := stmt.ExecContext(ctx,
				state.RoundID, i, a.Giver, a.Receiver, a.Wishlist, a.Address, a.Code,
				a.Revealed, nullTime(a.RevealedAt),
			); err != nil {
				return fmt.Errorf("sqlite: inserting assignment for %s: %w", a.Giver, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: committing round: %w", err)
	}
	return nil
}

// MarkRevealed flips one giver from unrevealed to revealed.
//
// COMPARE-AND-SWAP:
// The `revealed = 0` guard in the WHERE clause makes the UPDATE conditional.
// If two server instances race on the same giver, SQLite serialises the
// writes and only the first one matches a row. The second sees
// RowsAffected == 0 and we work out why: already revealed, or the round it
// was looking at is gone.
func (db *DB) MarkRevealed(ctx context.Context, roundID, giver string, at time.Time) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning reveal tx: %w", err)
	}
	defer tx.Rollback()

	at = at.UTC()
	result, err := tx.ExecContext(ctx,
		`UPDATE assignments
		 SET revealed = 1, revealed_at = ?
		 WHERE round_id = ? AND giver = ? AND revealed = 0`,
		at, roundID, giver,
	)
	if err != nil {
		return fmt.Errorf("sqlite: marking %s revealed: %w", giver, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}

	if n == 0 {
		var revealed bool
		err := tx.QueryRowContext(ctx,
			`SELECT revealed FROM assignments WHERE round_id = ? AND giver = ?`,
			roundID, giver,
		).Scan(&revealed)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return apperror.Conflict("round", roundID)
		case err != nil:
			return fmt.Errorf("sqlite: checking reveal state for %s: %w", giver, err)
		case revealed:
			return apperror.AlreadyRevealed(giver)
		}
		return apperror.Conflict("assignment", giver)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE rounds SET updated_at = ? WHERE id = ?`,
		at, roundID,
	); err != nil {
		return fmt.Errorf("sqlite: touching round %s: %w", roundID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: committing reveal: %w", err)
	}
	return nil
}

// ClearRound deletes the current round, if any.
func (db *DB) ClearRound(ctx context.Context) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning clear tx: %w", err)
	}
	defer tx.Rollback()

	if err := clearRound(ctx, tx); err != nil {
		return fmt.Errorf("sqlite: clearing round: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: committing clear: %w", err)
	}
	return nil
}

// clearRound deletes the assignments explicitly instead of leaning on the
// cascade, so codes and addresses go even if foreign keys are off.
func clearRound(ctx context.Context, tx *sql.Tx) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM assignments`); err != nil {
		return err
	}
	_, err := tx.ExecContext(ctx, `DELETE FROM rounds`)
	return err
}

// LoadRound reads the current round back. No round yields an empty state.
func (db *DB) LoadRound(ctx context.Context) (model.RoundState, error) {
	var state model.RoundState
	err := db.conn.QueryRowContext(ctx,
		`SELECT id, generated_at, updated_at FROM rounds WHERE singleton = 1`,
	).Scan(&state.RoundID, &state.GeneratedAt, &state.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.RoundState{}, nil
		}
		return model.RoundState{}, fmt.Errorf("sqlite: loading round: %w", err)
	}

	rows, err := db.conn.QueryContext(ctx,
		`SELECT giver, receiver, wishlist, address, code, revealed, revealed_at
		 FROM assignments
		 WHERE round_id = ?
		 ORDER BY position`,
		state.RoundID,
	)
	if err != nil {
		return model.RoundState{}, fmt.Errorf("sqlite: loading assignments: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			a  model.Assignment
			at sql.NullTime
		)
		if err := rows.Scan(&a.Giver, &a.Receiver, &a.Wishlist, &a.Address, &a.Code, &a.Revealed, &at); err != nil {
			return model.RoundState{}, fmt.Errorf("sqlite: scanning assignment row: %w", err)
		}
		if at.Valid {
			t := at.Time
			a.RevealedAt = &t
		}
		state.Assignments = append(state.Assignments, a)
	}
	if err := rows.Err(); err != nil {
		return model.RoundState{}, fmt.Errorf("sqlite: iterating assignments: %w", err)
	}
	return state, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
