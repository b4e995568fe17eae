// Package replica keeps a server instance's ledger in step with the shared
// round store when several instances run against one Postgres database.
//
// Each instance writes its own generations and reveals straight to the store
// (the ledger's Store). The Syncer covers the other direction: it polls the
// store and hands whatever it reads to Ledger.Refresh, which applies it
// last-writer-wins.
package replica

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/sakif/secret-santa/internal/model"
)

// DefaultInterval is used when NewSyncer gets a non-positive interval.
const DefaultInterval = 5 * time.Second

// Source reads the stored round. Implemented by the repositories.
type Source interface {
	LoadRound(ctx context.Context) (model.RoundState, error)
}

// Target applies a remote round. Implemented by *ledger.Ledger.
type Target interface {
	Refresh(state model.RoundState, readAt time.Time) (bool, error)
}

// Syncer polls Source on a fixed interval and refreshes Target.
type Syncer struct {
	source   Source
	target   Target
	interval time.Duration
	timeout  time.Duration
	logger   *slog.Logger

	done      chan struct{}
	wg        sync.WaitGroup
	startOnce sync.Once
	stopOnce  sync.Once
}

func NewSyncer(source Source, target Target, interval time.Duration, logger *slog.Logger) *Syncer {
	if interval <= 0 {
		interval = DefaultInterval
	}
	timeout := interval
	if timeout > 10*time.Second {
		timeout = 10 * time.Second
	}
	return &Syncer{
		source:   source,
		target:   target,
		interval: interval,
		timeout:  timeout,
		logger:   logger,
		done:     make(chan struct{}),
	}
}

// Start launches the polling loop. Calling it more than once has no effect.
func (s *Syncer) Start() {
	s.startOnce.Do(func() {
		s.logger.Info("starting round replication", slog.Duration("interval", s.interval))
		s.wg.Add(1)
		go s.loop()
	})
}

// Stop ends the loop and waits for an in-flight poll to finish.
func (s *Syncer) Stop() {
	s.stopOnce.Do(func() {
		close(s.done)
		s.wg.Wait()
		s.logger.Info("round replication stopped")
	})
}

// SyncOnce runs a single poll. It reports whether the ledger changed.
func (s *Syncer) SyncOnce(ctx context.Context) (bool, error) {
	readAt := time.Now()
	state, err := s.source.LoadRound(ctx)
	if err != nil {
		return false, err
	}
	changed, err := s.target.Refresh(state, readAt)
	if err != nil {
		return false, err
	}
	if changed {
		s.logger.Info("round refreshed from shared store",
			slog.String("roundID", state.RoundID),
			slog.Int("givers", len(state.Assignments)),
		)
	}
	return changed, nil
}

func (s *Syncer) loop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
			if _, err := s.SyncOnce(ctx); err != nil {
				s.logger.Error("round replication failed", slog.String("error", err.Error()))
			}
			cancel()
		}
	}
}
