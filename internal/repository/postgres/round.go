package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sakif/secret-santa/internal/apperror"
	"github.com/sakif/secret-santa/internal/model"
)

// SaveRound swaps the stored round in one transaction.
func (db *DB) SaveRound(ctx context.Context, state model.RoundState) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("postgres: beginning round tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM rounds`); err != nil {
		return fmt.Errorf("postgres: clearing previous round: %w", err)
	}

	if !state.Empty() {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO rounds (singleton, id, generated_at, updated_at) VALUES (1, $1, $2, $3)`,
			state.RoundID, state.GeneratedAt.UTC(), state.UpdatedAt.UTC(),
		); err != nil {
			return fmt.Errorf("postgres: inserting round %s: %w", state.RoundID, err)
		}

		for i, a := range state.Assignments {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO assignments
				   (round_id, position, giver, receiver, wishlist, address, code, revealed, revealed_at)
				 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
				state.RoundID, i, a.Giver, a.Receiver, a.Wishlist, a.Address, a.Code,
				a.Revealed, nullTime(a.RevealedAt),
			); err != nil {
				return fmt.Errorf("postgres: inserting assignment for %s: %w", a.Giver, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("postgres: committing round: %w", err)
	}
	return nil
}

// MarkRevealed is the cross-instance compare-and-swap. Under READ COMMITTED a
// concurrent UPDATE on the same row blocks until the first commits, then
// re-evaluates `NOT revealed` and matches nothing.
func (db *DB) MarkRevealed(ctx context.Context, roundID, giver string, at time.Time) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("postgres: beginning reveal tx: %w", err)
	}
	defer tx.Rollback()

	at = at.UTC()
	result, err := tx.ExecContext(ctx,
		`UPDATE assignments SET revealed = TRUE, revealed_at = $1
		 WHERE round_id = $2 AND giver = $3 AND NOT revealed`,
		at, roundID, giver,
	)
	if err != nil {
		return fmt.Errorf("postgres: marking %s revealed: %w", giver, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("postgres: checking rows affected: %w", err)
	}

	if n == 0 {
		var revealed bool
		err := tx.QueryRowContext(ctx,
			`SELECT revealed FROM assignments WHERE round_id = $1 AND giver = $2`,
			roundID, giver,
		).Scan(&revealed)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return apperror.Conflict("round", roundID)
		case err != nil:
			return fmt.Errorf("postgres: checking reveal state for %s: %w", giver, err)
		case revealed:
			return apperror.AlreadyRevealed(giver)
		}
		return apperror.Conflict("assignment", giver)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE rounds SET updated_at = GREATEST(updated_at, $1) WHERE id = $2`,
		at, roundID,
	); err != nil {
		return fmt.Errorf("postgres: touching round %s: %w", roundID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("postgres: committing reveal: %w", err)
	}
	return nil
}

func (db *DB) ClearRound(ctx context.Context) error {
	if _, err := db.conn.ExecContext(ctx, `DELETE FROM rounds`); err != nil {
		return fmt.Errorf("postgres: clearing round: %w", err)
	}
	return nil
}

// LoadRound reads header and assignments in one REPEATABLE READ snapshot so a
// concurrent SaveRound on another instance cannot hand us a torn round.
func (db *DB) LoadRound(ctx context.Context) (model.RoundState, error) {
	tx, err := db.conn.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return model.RoundState{}, fmt.Errorf("postgres: beginning load tx: %w", err)
	}
	defer tx.Rollback()

	var state model.RoundState
	err = tx.QueryRowContext(ctx,
		`SELECT id, generated_at, updated_at FROM rounds WHERE singleton = 1`,
	).Scan(&state.RoundID, &state.GeneratedAt, &state.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.RoundState{}, nil
		}
		return model.RoundState{}, fmt.Errorf("postgres: loading round: %w", err)
	}

	rows, err := tx.QueryContext(ctx,
		`SELECT giver, receiver, wishlist, address, code, revealed, revealed_at
		 FROM assignments WHERE round_id = $1 ORDER BY position`,
		state.RoundID,
	)
	if err != nil {
		return model.RoundState{}, fmt.Errorf("postgres: loading assignments: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			a  model.Assignment
			at sql.NullTime
		)
		if err := rows.Scan(&a.Giver, &a.Receiver, &a.Wishlist, &a.Address, &a.Code, &a.Revealed, &at); err != nil {
			return model.RoundState{}, fmt.Errorf("postgres: scanning assignment row: %w", err)
		}
		if at.Valid {
			t := at.Time
			a.RevealedAt = &t
		}
		state.Assignments = append(state.Assignments, a)
	}
	if err := rows.Err(); err != nil {
		return model.RoundState{}, fmt.Errorf("postgres: iterating assignments: %w", err)
	}
	return state, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
