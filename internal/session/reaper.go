package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultReapSchedule sweeps for idle sessions every minute.
const DefaultReapSchedule = "* * * * *"

// Reaper closes sessions that have been idle for too long. Sweeps follow
// a cron schedule; the loop polls the schedule on a short ticker.
type Reaper struct {
	registry *Registry
	idle     time.Duration
	schedule cron.Schedule
	poll     time.Duration
	metrics  *Metrics
	logger   *slog.Logger
	now      func() time.Time
}

// NewReaper creates a Reaper. expr is a standard five-field cron
// expression; an empty one uses DefaultReapSchedule.
func NewReaper(registry *Registry, idle time.Duration, expr string, metrics *Metrics, logger *slog.Logger) (*Reaper, error) {
	if expr == "" {
		expr = DefaultReapSchedule
	}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	sched, err := parser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid reap schedule %q: %w", expr, err)
	}
	if idle <= 0 {
		return nil, fmt.Errorf("idle timeout must be positive, got %s", idle)
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Reaper{
		registry: registry,
		idle:     idle,
		schedule: sched,
		poll:     10 * time.Second,
		metrics:  metrics,
		logger:   logger,
		now:      time.Now,
	}, nil
}

// Start begins the reaper loop. Returns a cancel function.
func (r *Reaper) Start(ctx context.Context) func() {
	ctx, cancel := context.WithCancel(ctx)

	go func() {
		next := r.schedule.Next(r.now())
		r.logger.InfoContext(ctx, "session reaper started",
			slog.Duration("idle_timeout", r.idle),
			slog.Time("next_sweep", next),
		)

		ticker := time.NewTicker(r.poll)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				r.logger.Info("session reaper stopped")
				return
			case <-ticker.C:
				now := r.now()
				if now.Before(next) {
					continue
				}
				r.Sweep(ctx)
				next = r.schedule.Next(now)
			}
		}
	}()

	return cancel
}

// Sweep closes every idle session once and returns how many were closed.
func (r *Reaper) Sweep(ctx context.Context) int {
	start := r.now()
	ids := r.registry.Idle(start.Add(-r.idle))
	closed := 0
	for _, id := range ids {
		if err := r.registry.Remove(id); err != nil {
			r.logger.WarnContext(ctx, "closing idle session failed",
				slog.String("session_id", id),
				slog.String("error", err.Error()),
			)
			continue
		}
		closed++
	}
	if closed > 0 {
		r.logger.InfoContext(ctx, "idle sessions closed", slog.Int("count", closed))
	}
	if r.metrics != nil {
		r.metrics.SessionsReaped.Add(float64(closed))
		r.metrics.SweepDuration.Observe(time.Since(start).Seconds())
	}
	return closed
}
