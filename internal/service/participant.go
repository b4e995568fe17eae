// Package service holds the business rules, between the HTTP handlers and the
// repositories:
//
//	Handler (HTTP)  → parses requests, writes responses
//	Service         → validates, enforces rules, orchestrates
//	Repository      → reads/writes storage
//
// Services take repository interfaces, never a concrete *sqlite.DB, so tests
// pass in-memory fakes and the server can switch SQLite for Postgres without
// touching this package.
package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/sakif/secret-santa/internal/apperror"
	"github.com/sakif/secret-santa/internal/model"
	"github.com/sakif/secret-santa/internal/repository"
)

const (
	MaxNameLength  = 100
	MaxTextLength  = 2000 // wishlist and address
	MaxImportRows  = 1000
	MaxImportBytes = 1 << 20
)

// Header aliases accepted by ImportCSV, matched after trimming and lowercasing.
var (
	nameHeaders     = []string{"name", "full name", "participant", "nombre"}
	wishlistHeaders = []string{"wishlist", "wish list", "wishes"}
	addressHeaders  = []string{"address", "home address", "direccion"}
)

// ParticipantService manages the roster.
type ParticipantService struct {
	repo   repository.ParticipantRepository
	logger *slog.Logger
}

func NewParticipantService(repo repository.ParticipantRepository, logger *slog.Logger) *ParticipantService {
	return &ParticipantService{repo: repo, logger: logger}
}

// Add validates and stores one participant. The name is trimmed; wishlist and
// address are kept as typed apart from surrounding whitespace.
func (s *ParticipantService) Add(ctx context.Context, name, wishlist, address string) (*model.Participant, error) {
	p := &model.Participant{
		Name:     strings.TrimSpace(name),
		Wishlist: strings.TrimSpace(wishlist),
		Address:  strings.TrimSpace(address),
	}
	if err := validateParticipant(p); err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, p); err != nil {
		if errors.Is(err, apperror.ErrConflict) {
			return nil, apperror.ValidationFailed("name", fmt.Sprintf("name %q already exists", p.Name))
		}
		s.logger.Error("failed to add participant",
			slog.String("name", p.Name),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("adding participant: %w", err)
	}

	s.logger.Info("participant added", slog.String("id", p.ID), slog.String("name", p.Name))
	return p, nil
}

func (s *ParticipantService) Get(ctx context.Context, id string) (*model.Participant, error) {
	if id == "" {
		return nil, apperror.ValidationFailed("id", "participant ID is required")
	}
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("getting participant: %w", err)
	}
	return p, nil
}

// List returns the full roster in insertion order.
func (s *ParticipantService) List(ctx context.Context) ([]model.Participant, error) {
	participants, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing participants: %w", err)
	}
	return participants, nil
}

// Update replaces the editable fields of a participant. A current round keeps
// its snapshot; the change shows up from the next generation on.
func (s *ParticipantService) Update(ctx context.Context, id, name, wishlist, address string) (*model.Participant, error) {
	existing, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	existing.Name = strings.TrimSpace(name)
	existing.Wishlist = strings.TrimSpace(wishlist)
	existing.Address = strings.TrimSpace(address)
	if err := validateParticipant(existing); err != nil {
		return nil, err
	}

	if err := s.repo.Update(ctx, existing); err != nil {
		if errors.Is(err, apperror.ErrConflict) {
			return nil, apperror.ValidationFailed("name", fmt.Sprintf("name %q already exists", existing.Name))
		}
		return nil, fmt.Errorf("updating participant: %w", err)
	}

	s.logger.Info("participant updated", slog.String("id", id))
	return existing, nil
}

func (s *ParticipantService) Delete(ctx context.Context, id string) error {
	if id == "" {
		return apperror.ValidationFailed("id", "participant ID is required")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("deleting participant: %w", err)
	}
	s.logger.Info("participant deleted", slog.String("id", id))
	return nil
}

// DeleteAll empties the roster.
func (s *ParticipantService) DeleteAll(ctx context.Context) error {
	if err := s.repo.DeleteAll(ctx); err != nil {
		return fmt.Errorf("deleting all participants: %w", err)
	}
	s.logger.Warn("roster cleared")
	return nil
}

// ImportResult reports what ImportCSV did with each data row.
type ImportResult struct {
	Rows     int      `json:"rows"`     // data rows with a name
	Imported int      `json:"imported"` // newly added
	Skipped  []string `json:"skipped"`  // names already present, or invalid
}

// ImportCSV merges a spreadsheet export into the roster.
//
// The first row is the header. Column names are matched case-insensitively
// against a few aliases (see nameHeaders etc.), so "Full Name", "Wish List"
// and "Direccion" all work. Rows without a name are ignored; names that are
// already on the roster, or repeated in the file, are skipped rather than
// overwritten.
//
// The whole file is read and checked before anything is stored: an oversized
// file, a malformed line or too many rows leaves the roster untouched.
func (s *ParticipantService) ImportCSV(ctx context.Context, r io.Reader) (*ImportResult, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxImportBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading import file: %w", err)
	}
	if len(data) > MaxImportBytes {
		return nil, apperror.ValidationFailed("file", "file is too large")
	}

	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, apperror.ValidationFailed("file", "file is empty")
		}
		return nil, apperror.ValidationFailed("file", fmt.Sprintf("reading CSV header: %v", err))
	}
	cols := mapColumns(header)
	if cols.name < 0 {
		return nil, apperror.ValidationFailed("file", "no Name column found")
	}

	existing, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("importing participants: %w", err)
	}
	seen := make(map[string]bool, len(existing))
	for _, p := range existing {
		seen[p.Name] = true
	}

	result := &ImportResult{Skipped: []string{}}
	var pending []*model.Participant
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, apperror.ValidationFailed("file", fmt.Sprintf("line %d: %v", line, err))
		}

		p := &model.Participant{
			Name:     strings.TrimSpace(field(record, cols.name)),
			Wishlist: strings.TrimSpace(field(record, cols.wishlist)),
			Address:  strings.TrimSpace(field(record, cols.address)),
		}
		if p.Name == "" {
			continue
		}
		result.Rows++
		if result.Rows > MaxImportRows {
			return nil, apperror.ValidationFailed("file", fmt.Sprintf("at most %d rows can be imported", MaxImportRows))
		}

		if seen[p.Name] || validateParticipant(p) != nil {
			result.Skipped = append(result.Skipped, p.Name)
			continue
		}
		seen[p.Name] = true
		pending = append(pending, p)
	}

	if result.Rows == 0 {
		return nil, apperror.ValidationFailed("file", "no valid rows with a name found")
	}

	for _, p := range pending {
		if err := s.repo.Create(ctx, p); err != nil {
			// Added by someone else since the List above.
			if errors.Is(err, apperror.ErrConflict) {
				result.Skipped = append(result.Skipped, p.Name)
				continue
			}
			return nil, fmt.Errorf("importing %q: %w", p.Name, err)
		}
		result.Imported++
	}

	s.logger.Info("participants imported",
		slog.Int("rows", result.Rows),
		slog.Int("imported", result.Imported),
		slog.Int("skipped", len(result.Skipped)),
	)
	return result, nil
}

type columns struct {
	name, wishlist, address int
}

func mapColumns(header []string) columns {
	cols := columns{name: -1, wishlist: -1, address: -1}
	for i, h := range header {
		h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		switch {
		case cols.name < 0 && slices.Contains(nameHeaders, h):
			cols.name = i
		case cols.wishlist < 0 && slices.Contains(wishlistHeaders, h):
			cols.wishlist = i
		case cols.address < 0 && slices.Contains(addressHeaders, h):
			cols.address = i
		}
	}
	return cols
}

func field(record []string, i int) string {
	if i < 0 || i >= len(record) {
		return ""
	}
	return record[i]
}

func validateParticipant(p *model.Participant) error {
	if p.Name == "" {
		return apperror.ValidationFailed("name", "participant name is required")
	}
	if utf8.RuneCountInString(p.Name) > MaxNameLength {
		return apperror.ValidationFailed("name",
			fmt.Sprintf("participant name must be %d characters or less", MaxNameLength))
	}
	if utf8.RuneCountInString(p.Wishlist) > MaxTextLength {
		return apperror.ValidationFailed("wishlist",
			fmt.Sprintf("wishlist must be %d characters or less", MaxTextLength))
	}
	if utf8.RuneCountInString(p.Address) > MaxTextLength {
		return apperror.ValidationFailed("address",
			fmt.Sprintf("address must be %d characters or less", MaxTextLength))
	}
	return nil
}
