package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/kode4food/flowgate/pkg/log"
)

type (
	// Expirer marks every active session whose last activity precedes
	// before as expired, returning how many were changed
	Expirer interface {
		MarkExpired(ctx context.Context, before time.Time) (int, error)
	}

	// Sweeper periodically expires sessions that have been idle for
	// longer than the configured expiry
	Sweeper struct {
		store    Expirer
		clock    Clock
		ctx      context.Context
		cancel   context.CancelFunc
		interval time.Duration
		expiry   time.Duration
		wg       sync.WaitGroup
	}
)

// NewSweeper creates a sweeper that runs every interval and expires
// sessions idle for longer than expiry
func NewSweeper(store Expirer, interval, expiry time.Duration) *Sweeper {
	return NewSweeperWithClock(store, interval, expiry, time.Now)
}

// NewSweeperWithClock creates a sweeper with the provided clock
func NewSweeperWithClock(
	store Expirer, interval, expiry time.Duration, clock Clock,
) *Sweeper {
	ctx, cancel := context.WithCancel(context.Background())
	return &Sweeper{
		store:    store,
		clock:    clock,
		ctx:      ctx,
		cancel:   cancel,
		interval: interval,
		expiry:   expiry,
	}
}

// Start begins the sweep loop
func (s *Sweeper) Start() {
	s.wg.Add(1)
	go s.run()
}

// Stop gracefully shuts down the sweeper, waiting for a running sweep
func (s *Sweeper) Stop() {
	s.cancel()
	s.wg.Wait()
}

// Sweep performs a single expiry pass
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	before := s.clock().Add(-s.expiry)
	n, err := s.store.MarkExpired(ctx, before)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		slog.Info("Expired idle sessions",
			slog.Int("count", n),
			slog.Time("before", before))
	}
	return n, nil
}

func (s *Sweeper) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Sweep(s.ctx); err != nil {
				slog.Warn("Session sweep failed", log.Error(err))
			}
		}
	}
}
