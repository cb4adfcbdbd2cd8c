package session_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	as "github.com/kode4food/flowgate/internal/assert"
	"github.com/kode4food/flowgate/internal/session"
)

type stubExpirer struct {
	mu      sync.Mutex
	befores []time.Time
	count   int
	err     error
}

func (s *stubExpirer) MarkExpired(
	_ context.Context, before time.Time,
) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.befores = append(s.befores, before)
	return s.count, s.err
}

func (s *stubExpirer) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.befores)
}

func TestSweepUsesExpiryCutoff(t *testing.T) {
	store := &stubExpirer{count: 2}
	sw := session.NewSweeperWithClock(
		store, time.Hour, 30*time.Minute, fixedClock(epoch),
	)

	n, err := sw.Sweep(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []time.Time{epoch.Add(-30 * time.Minute)}, store.befores)
}

func TestSweepError(t *testing.T) {
	boom := errors.New("boom")
	sw := session.NewSweeper(&stubExpirer{err: boom}, time.Hour, time.Hour)

	n, err := sw.Sweep(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, n)
}

func TestSweeperRunsOnTicker(t *testing.T) {
	store := &stubExpirer{}
	sw := session.NewSweeper(store, 5*time.Millisecond, time.Minute)

	sw.Start()
	as.New(t).Eventually(func() bool {
		return store.calls() >= 2
	}, time.Second, "sweeper should run repeatedly")
	sw.Stop()

	calls := store.calls()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, calls, store.calls())
}
