package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/secret-santa/internal/apperror"
	"github.com/sakif/secret-santa/internal/ledger"
	"github.com/sakif/secret-santa/internal/model"
	"github.com/sakif/secret-santa/internal/repository"
)

// ExchangeService runs the gift exchange: it draws a round from the current
// roster and lets each giver reveal their receiver once.
//
// The ledger does the real work. This layer feeds it the roster, cleans up
// user input and logs outcomes. Secret codes are never logged.
type ExchangeService struct {
	ledger       *ledger.Ledger
	participants repository.ParticipantRepository
	rounds       repository.RoundRepository
	logger       *slog.Logger
}

func NewExchangeService(
	l *ledger.Ledger,
	participants repository.ParticipantRepository,
	rounds repository.RoundRepository,
	logger *slog.Logger,
) *ExchangeService {
	return &ExchangeService{
		ledger:       l,
		participants: participants,
		rounds:       rounds,
		logger:       logger,
	}
}

// Rehydrate loads the stored round into the ledger. Called once at startup.
func (s *ExchangeService) Rehydrate(ctx context.Context) error {
	state, err := s.rounds.LoadRound(ctx)
	if err != nil {
		return fmt.Errorf("loading stored round: %w", err)
	}
	if err := s.ledger.Load(state); err != nil {
		return fmt.Errorf("restoring stored round: %w", err)
	}
	if !state.Empty() {
		s.logger.Info("round restored",
			slog.String("roundID", state.RoundID),
			slog.Int("givers", len(state.Assignments)),
		)
	}
	return nil
}

// Generate draws a new round from everyone on the roster, replacing any
// current round and its reveal history.
func (s *ExchangeService) Generate(ctx context.Context) (*model.RoundSummary, error) {
	participants, err := s.participants.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("generating round: %w", err)
	}

	summary, err := s.ledger.GenerateRound(ctx, participants)
	if err != nil {
		if errors.Is(err, apperror.ErrGenerationFailed) {
			s.logger.Warn("derangement search exhausted", slog.Int("participants", len(participants)))
		}
		return nil, err
	}

	s.logger.Info("round generated",
		slog.String("roundID", summary.RoundID),
		slog.Int("participants", len(summary.Pairs)),
	)
	return summary, nil
}

// Reveal checks name and code and, on success, returns the receiver. The name
// must match exactly after trimming; case matters.
func (s *ExchangeService) Reveal(ctx context.Context, name, code string) (*model.RevealResult, error) {
	name = strings.TrimSpace(name)
	code = strings.TrimSpace(code)
	if name == "" {
		return nil, apperror.ValidationFailed("name", "name is required")
	}
	if code == "" {
		return nil, apperror.ValidationFailed("code", "secret code is required")
	}

	result, err := s.ledger.Reveal(ctx, name, code)
	if err != nil {
		switch {
		case errors.Is(err, apperror.ErrInvalidCode), errors.Is(err, apperror.ErrAlreadyRevealed):
			s.logger.Warn("reveal rejected", slog.String("giver", name), slog.String("reason", err.Error()))
		case errors.Is(err, apperror.ErrNameNotFound):
			s.logger.Info("reveal for unknown name", slog.String("name", name))
		default:
			s.logger.Error("reveal failed", slog.String("giver", name), slog.String("error", err.Error()))
		}
		return nil, err
	}

	s.logger.Info("match revealed", slog.String("giver", name))
	return result, nil
}

// Status reports how many givers have revealed.
func (s *ExchangeService) Status() model.RoundStatus {
	return s.ledger.Status()
}

// Summary returns every giver's receiver and code for the organiser.
func (s *ExchangeService) Summary() (*model.RoundSummary, error) {
	return s.ledger.Summary()
}

// Pair returns one giver's line of the distribution list.
func (s *ExchangeService) Pair(giver string) (*model.Pair, error) {
	summary, err := s.ledger.Summary()
	if err != nil {
		return nil, err
	}
	for _, p := range summary.Pairs {
		if p.Giver == giver {
			return &p, nil
		}
	}
	return nil, apperror.NameNotFound(giver)
}

// Reset discards the current round. The roster is kept.
func (s *ExchangeService) Reset(ctx context.Context) error {
	if err := s.ledger.Reset(ctx); err != nil {
		return err
	}
	s.logger.Warn("round reset")
	return nil
}

// ClearAll discards the round and then the whole roster.
func (s *ExchangeService) ClearAll(ctx context.Context) error {
	if err := s.Reset(ctx); err != nil {
		return err
	}
	if err := s.participants.DeleteAll(ctx); err != nil {
		return fmt.Errorf("clearing participants: %w", err)
	}
	s.logger.Warn("all exchange data cleared")
	return nil
}
