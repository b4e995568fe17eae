package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/secret-santa/internal/apperror"
	"github.com/sakif/secret-santa/internal/model"
)

func (db *DB) Create(ctx context.Context, p *model.Participant) error {
	p.ID = xid.New().String()
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO participants (id, name, wishlist, address, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		p.ID, p.Name, p.Wishlist, p.Address, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("participant", p.Name)
		}
		return fmt.Errorf("postgres: creating participant: %w", err)
	}
	return nil
}

func (db *DB) GetByID(ctx context.Context, id string) (*model.Participant, error) {
	var p model.Participant
	err := db.conn.QueryRowContext(ctx,
		`SELECT id, name, wishlist, address, created_at, updated_at
		 FROM participants WHERE id = $1`,
		id,
	).Scan(&p.ID, &p.Name, &p.Wishlist, &p.Address, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("participant", id)
		}
		return nil, fmt.Errorf("postgres: getting participant %s: %w", id, err)
	}
	return &p, nil
}

// List returns the roster oldest first; xids sort by creation time, so id
// breaks ties.
func (db *DB) List(ctx context.Context) ([]model.Participant, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, name, wishlist, address, created_at, updated_at
		 FROM participants ORDER BY created_at, id`,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: listing participants: %w", err)
	}
	defer rows.Close()

	participants := []model.Participant{}
	for rows.Next() {
		var p model.Participant
		if err := rows.Scan(&p.ID, &p.Name, &p.Wishlist, &p.Address, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scanning participant row: %w", err)
		}
		participants = append(participants, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterating participants: %w", err)
	}
	return participants, nil
}

func (db *DB) Update(ctx context.Context, p *model.Participant) error {
	p.UpdatedAt = time.Now().UTC()
	result, err := db.conn.ExecContext(ctx,
		`UPDATE participants SET name = $1, wishlist = $2, address = $3, updated_at = $4
		 WHERE id = $5`,
		p.Name, p.Wishlist, p.Address, p.UpdatedAt, p.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("participant", p.Name)
		}
		return fmt.Errorf("postgres: updating participant %s: %w", p.ID, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("postgres: checking rows affected: %w", err)
	}
	if n == 0 {
		return apperror.NotFound("participant", p.ID)
	}
	return nil
}

func (db *DB) Delete(ctx context.Context, id string) error {
	result, err := db.conn.ExecContext(ctx, `DELETE FROM participants WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres: deleting participant %s: %w", id, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("postgres: checking rows affected: %w", err)
	}
	if n == 0 {
		return apperror.NotFound("participant", id)
	}
	return nil
}

func (db *DB) DeleteAll(ctx context.Context) error {
	if _, err := db.conn.ExecContext(ctx, `DELETE FROM participants`); err != nil {
		return fmt.Errorf("postgres: deleting all participants: %w", err)
	}
	return nil
}
