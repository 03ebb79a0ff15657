package session

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultSweepInterval is how often the idle sweep runs.
const DefaultSweepInterval = 30 * time.Second

// Sweeper ticks a Coordinator in the background. It wakes at the sweep
// interval, or earlier when a room eviction falls due before then.
type Sweeper struct {
	coord    *Coordinator
	interval time.Duration
	logger   *slog.Logger

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// NewSweeper creates a sweeper for coord. An interval of zero or less uses
// DefaultSweepInterval.
func NewSweeper(coord *Coordinator, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &Sweeper{
		coord:    coord,
		interval: interval,
		logger:   slog.Default().With("component", "sweeper"),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start runs the sweep loop until ctx is cancelled or Stop is called.
func (s *Sweeper) Start(ctx context.Context) {
	s.logger.Info("Starting sweeper", "interval", s.interval)
	go s.run(ctx)
}

// Stop ends the sweep loop and waits for it to exit. Stop must only be
// called after Start.
func (s *Sweeper) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
	<-s.done
}

func (s *Sweeper) run(ctx context.Context) {
	defer close(s.done)

	timer := time.NewTimer(s.wait())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case <-timer.C:
			res := s.coord.Tick(ctx, s.coord.Now())
			if len(res.EvictedRooms) > 0 || len(res.StaleConnections) > 0 {
				s.logger.Debug("Sweep finished",
					"evicted_rooms", len(res.EvictedRooms),
					"stale_connections", len(res.StaleConnections))
			}
			timer.Reset(s.wait())
		}
	}
}

// wait returns the time until the next tick.
func (s *Sweeper) wait() time.Duration {
	next := s.interval
	if due, ok := s.coord.NextDue(); ok {
		if until := due.Sub(s.coord.Now()); until < next {
			next = until
		}
	}
	if next < 10*time.Millisecond {
		next = 10 * time.Millisecond
	}
	return next
}
