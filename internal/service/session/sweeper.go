package session

import (
	"context"
	"time"

	"github.com/sandevgo/docqa/pkg/log"
)

// Sweeper runs the manager's cleanup on a fixed interval as a background
// service.
type Sweeper struct {
	manager  *Manager
	interval time.Duration
	done     chan struct{}
}

func NewSweeper(manager *Manager, interval time.Duration) *Sweeper {
	return &Sweeper{
		manager:  manager,
		interval: interval,
		done:     make(chan struct{}),
	}
}

func (s *Sweeper) Start(ctx context.Context) error {
	logger := log.FromCtx(ctx)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := s.manager.RunCleanup(ctx); err != nil {
				logger.Error().Err(err).Msg("session cleanup sweep failed")
			}
		case <-ctx.Done():
			return nil
		case <-s.done:
			return nil
		}
	}
}

func (s *Sweeper) Shutdown(ctx context.Context) error {
	close(s.done)
	return nil
}
