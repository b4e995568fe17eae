package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/secret-santa/internal/apperror"
	"github.com/sakif/secret-santa/internal/model"
	"github.com/sakif/secret-santa/internal/repository"
)

// COMPILE-TIME INTERFACE CHECK:
// `var _ X = (*Y)(nil)` fails the build if *DB stops satisfying the interface,
// long before anything tries to pass a *DB around.
var _ repository.Store = (*DB)(nil)

// isUniqueViolation reports whether err came from a UNIQUE constraint.
// modernc.org/sqlite surfaces it as text, not as a typed sentinel.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// Create inserts a participant and fills in ID and timestamps.
//
// The name column is UNIQUE, so a second "Alice" fails with a constraint
// violation, which we translate into apperror.Conflict (HTTP 409).
func (db *DB) Create(ctx context.Context, p *model.Participant) error {
	p.ID = xid.New().String()
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO participants (id, name, wishlist, address, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.Wishlist, p.Address, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("participant", p.Name)
		}
		return fmt.Errorf("sqlite: creating participant: %w", err)
	}
	return nil
}

// GetByID returns one participant or apperror.ErrNotFound.
func (db *DB) GetByID(ctx context.Context, id string) (*model.Participant, error) {
	var p model.Participant
	err := db.conn.QueryRowContext(ctx,
		`SELECT id, name, wishlist, address, created_at, updated_at
		 FROM participants
		 WHERE id = ?`,
		id,
	).Scan(&p.ID, &p.Name, &p.Wishlist, &p.Address, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("participant", id)
		}
		return nil, fmt.Errorf("sqlite: getting participant %s: %w", id, err)
	}
	return &p, nil
}

// List returns the whole roster in insertion order. Rosters are small, so no
// pagination: round generation needs everyone anyway.
//
// rowid breaks ties between rows created in the same instant (CSV imports).
func (db *DB) List(ctx context.Context) ([]model.Participant, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, name, wishlist, address, created_at, updated_at
		 FROM participants
		 ORDER BY created_at, rowid`,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing participants: %w", err)
	}
	defer rows.Close()

	participants := []model.Participant{}
	for rows.Next() {
		var p model.Participant
		if err := rows.Scan(&p.ID, &p.Name, &p.Wishlist, &p.Address, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("sqlite: scanning participant row: %w", err)
		}
		participants = append(participants, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating participants: %w", err)
	}
	return participants, nil
}

// Update rewrites name, wishlist and address. RowsAffected == 0 means the id
// does not exist.
func (db *DB) Update(ctx context.Context, p *model.Participant) error {
	p.UpdatedAt = time.Now().UTC()

	result, err := db.conn.ExecContext(ctx,
		`UPDATE participants
		 SET name = ?, wishlist = ?, address = ?, updated_at = ?
		 WHERE id = ?`,
		p.Name, p.Wishlist, p.Address, p.UpdatedAt, p.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("participant", p.Name)
		}
		return fmt.Errorf("sqlite: updating participant %s: %w", p.ID, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if n == 0 {
		return apperror.NotFound("participant", p.ID)
	}
	return nil
}

// Delete removes one participant.
func (db *DB) Delete(ctx context.Context, id string) error {
	result, err := db.conn.ExecContext(ctx, `DELETE FROM participants WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting participant %s: %w", id, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if n == 0 {
		return apperror.NotFound("participant", id)
	}
	return nil
}

// DeleteAll empties the roster. The current round is untouched; clearing it is
// the ledger's job.
func (db *DB) DeleteAll(ctx context.Context) error {
	if _, err := db.conn.ExecContext(ctx, `DELETE FROM participants`); err != nil {
		return fmt.Errorf("sqlite: deleting all participants: %w", err)
	}
	return nil
}
