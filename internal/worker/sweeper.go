package worker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"example.com/planboard/internal/store"
)

// Sweeper periodically revokes expired pending invites so stale rows are
// reaped even when no read path touches them.
type Sweeper struct {
	invites  store.InviteStore
	interval time.Duration
	log      *zap.Logger
	wg       sync.WaitGroup
}

func NewSweeper(invites store.InviteStore, interval time.Duration, log *zap.Logger) *Sweeper {
	if interval <= 0 {
		interval = 30 * time.Minute
	}
	return &Sweeper{invites: invites, interval: interval, log: log}
}

func (s *Sweeper) Start(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				s.log.Info("sweeper stopping")
				return
			case <-ticker.C:
				s.sweep()
			}
		}
	}()
}

// Wait blocks until the sweep loop has exited.
func (s *Sweeper) Wait() { s.wg.Wait() }

func (s *Sweeper) sweep() {
	n, err := s.invites.RevokeExpired(time.Now().UTC())
	if err != nil {
		s.log.Warn("expiry sweep failed", zap.Error(err))
		return
	}
	if n > 0 {
		s.log.Info("revoked expired invites", zap.Int64("count", n))
	}
}
