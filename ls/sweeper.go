package ls

import (
	"context"
	"time"
)

// DefaultSweepInterval is used by StartSweeper for a non-positive interval.
const DefaultSweepInterval = 10 * time.Second

// StartSweeper flushes expired entries every interval until ctx is done or
// the Store is closed. Calling it while a sweeper is running has no effect.
func (s *Store) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}

	s.sweepMu.Lock()
	defer s.sweepMu.Unlock()

	if s.closed.Load() || s.sweepStop != nil {
		return
	}

	stopCh := make(chan struct{})
	doneCh := make(chan struct{})
	s.sweepStop = stopCh
	s.sweepDone = doneCh

	go func() {
		defer close(doneCh)
		s.runSweeper(ctx, interval, stopCh)
	}()
}

// runSweeper runs the background sweeper loop
func (s *Store) runSweeper(ctx context.Context, interval time.Duration, stopCh <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.log.Info().Dur("interval", interval).Msg("Sweeper started")

	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("Sweeper stopped due to context cancellation")
			return
		case <-stopCh:
			s.log.Info().Msg("Sweeper stopped")
			return
		case <-ticker.C:
			if err := s.Flush(ctx, false); err != nil {
				s.log.Warn().Err(err).Msg("Sweep failed")
			}
		}
	}
}

func (s *Store) stopSweeper() {
	s.sweepMu.Lock()
	defer s.sweepMu.Unlock()

	if s.sweepStop == nil {
		return
	}
	close(s.sweepStop)
	<-s.sweepDone
	s.sweepStop = nil
	s.sweepDone = nil
}
