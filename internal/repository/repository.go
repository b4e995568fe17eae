// Package repository declares the storage interfaces the services depend on.
// Implementations live in subpackages (sqlite, postgres).
package repository

import (
	"context"

	"github.com/sakif/secret-santa/internal/ledger"
	"github.com/sakif/secret-santa/internal/model"
)

// ParticipantRepository stores the roster. Names are unique and compared
// case-sensitively; a duplicate name yields apperror.ErrConflict.
type ParticipantRepository interface {
	Create(ctx context.Context, p *model.Participant) error
	GetByID(ctx context.Context, id string) (*model.Participant, error)
	List(ctx context.Context) ([]model.Participant, error)
	Update(ctx context.Context, p *model.Participant) error
	Delete(ctx context.Context, id string) error
	DeleteAll(ctx context.Context) error
}

// RoundRepository persists the current round. It is the ledger's Store plus
// a way to read the round back, for startup rehydration and replication.
// LoadRound returns an empty state when no round exists.
type RoundRepository interface {
	ledger.Store
	LoadRound(ctx context.Context) (model.RoundState, error)
}

// UserRepository stores GitHub organisers.
type UserRepository interface {
	Upsert(ctx context.Context, user *model.User) error
	GetUserByID(ctx context.Context, id string) (*model.User, error)
}

// SettingsRepository is a small key/value table for runtime settings such as
// the admin password hash. GetSetting returns apperror.ErrNotFound for a
// missing key.
type SettingsRepository interface {
	GetSetting(ctx context.Context, key string) (string, error)
	PutSetting(ctx context.Context, key, value string) error
}

// Store bundles every repository one backend provides.
type Store interface {
	ParticipantRepository
	RoundRepository
	UserRepository
	SettingsRepository
	Close() error
}
