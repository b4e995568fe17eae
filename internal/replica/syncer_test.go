package replica

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/secret-santa/internal/model"
)

type fakeSource struct {
	mu    sync.Mutex
	state model.RoundState
	err   error
	calls atomic.Int32
}

func (f *fakeSource) LoadRound(context.Context) (model.RoundState, error) {
	f.calls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state, f.err
}

type fakeTarget struct {
	mu      sync.Mutex
	applied []model.RoundState
	readAt  []time.Time
	changed bool
	err     error
}

func (f *fakeTarget) Refresh(state model.RoundState, readAt time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return false, f.err
	}
	f.applied = append(f.applied, state)
	f.readAt = append(f.readAt, readAt)
	return f.changed, nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSyncOnce(t *testing.T) {
	src := &fakeSource{state: model.RoundState{RoundID: "r1"}}
	dst := &fakeTarget{changed: true}
	s := NewSyncer(src, dst, time.Minute, quietLogger())

	before := time.Now()
	changed, err := s.SyncOnce(context.Background())
	require.NoError(t, err)
	assert.True(t, changed)
	require.Len(t, dst.applied, 1)
	assert.Equal(t, "r1", dst.applied[0].RoundID)
	assert.False(t, dst.readAt[0].Before(before), "read time is taken when the poll starts")

	src.err = errors.New("connection refused")
	_, err = s.SyncOnce(context.Background())
	assert.ErrorContains(t, err, "connection refused")
	assert.Len(t, dst.applied, 1, "a failed load must not reach the ledger")

	src.err = nil
	dst.err = errors.New("invalid round")
	_, err = s.SyncOnce(context.Background())
	assert.Error(t, err)
}

func TestStartStop(t *testing.T) {
	src := &fakeSource{}
	s := NewSyncer(src, &fakeTarget{}, 5*time.Millisecond, quietLogger())

	s.Start()
	s.Start()
	assert.Eventually(t, func() bool { return src.calls.Load() >= 3 }, time.Second, time.Millisecond)

	s.Stop()
	s.Stop()
	n := src.calls.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, n, src.calls.Load(), "polling continued after Stop")
}

func TestNewSyncer_DefaultInterval(t *testing.T) {
	s := NewSyncer(&fakeSource{}, &fakeTarget{}, 0, quietLogger())
	assert.Equal(t, DefaultInterval, s.interval)
	assert.Equal(t, DefaultInterval, s.timeout)

	s = NewSyncer(&fakeSource{}, &fakeTarget{}, time.Hour, quietLogger())
	assert.Equal(t, 10*time.Second, s.timeout)
}
