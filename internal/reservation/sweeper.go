package reservation

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Sweeper runs the expiry sweep on a fixed interval.
type Sweeper struct {
	log      *zap.Logger
	coord    *Coordinator
	interval time.Duration
}

func NewSweeper(log *zap.Logger, coord *Coordinator, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Sweeper{log: log, coord: coord, interval: interval}
}

// Run sweeps once immediately, then on every tick until ctx ends.
func (s *Sweeper) Run(ctx context.Context) error {
	t := time.NewTicker(s.interval)
	defer t.Stop()

	s.sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			s.log.Info("sweeper stopping")
			return nil
		case <-t.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	if _, err := s.coord.ExpireReservations(ctx, s.coord.Now()); err != nil && ctx.Err() == nil {
		s.log.Error("expiry sweep failed", zap.Error(err))
	}
}
