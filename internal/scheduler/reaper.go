// Package scheduler runs the periodic maintenance of the media service
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/imgvid/media-service/internal/metrics"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// DefaultInterval is the reaper period when none is configured
const DefaultInterval = time.Hour

// PreviewReaper defines the cache operation run by the reaper
type PreviewReaper interface {
	// Reap removes previews older than the cache TTL and returns how many were removed
	Reap(ctx context.Context, now time.Time) (int, error)
}

// ParseSchedule returns the reaper schedule. A non-empty cron expression in the
// standard five field format wins over the fixed interval.
func ParseSchedule(cronExpr string, interval time.Duration) (cron.Schedule, error) {
	if cronExpr != "" {
		schedule, err := cron.ParseStandard(cronExpr)
		if err != nil {
			return nil, fmt.Errorf("invalid cron expression: %w", err)
		}
		if schedule.Next(time.Now()).IsZero() {
			return nil, fmt.Errorf("cron expression %q never fires", cronExpr)
		}
		return schedule, nil
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	return cron.Every(interval), nil
}

// Reaper periodically removes expired previews
type Reaper struct {
	cache    PreviewReaper
	schedule cron.Schedule
	logger   *zap.Logger
	now      func() time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewReaper creates a new reaper instance. A nil schedule runs every DefaultInterval.
func NewReaper(cache PreviewReaper, schedule cron.Schedule, logger *zap.Logger) *Reaper {
	if schedule == nil {
		schedule = cron.Every(DefaultInterval)
	}
	return &Reaper{
		cache:    cache,
		schedule: schedule,
		logger:   logger,
		now:      time.Now,
	}
}

// Start starts the reaper loop. Calling Start on a running reaper is a no-op.
func (r *Reaper) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})

	r.logger.Info("Preview reaper started", zap.Time("next_run", r.schedule.Next(time.Now())))
	go r.run(ctx, r.done)
}

// Stop stops the reaper and waits for a running cycle to finish
func (r *Reaper) Stop() {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.cancel, r.done = nil, nil
	r.mu.Unlock()

	if done == nil {
		return
	}
	cancel()
	<-done
	r.logger.Info("Preview reaper stopped")
}

// run executes the reaper loop
func (r *Reaper) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	// Run immediately on start
	r.RunOnce(ctx)

	timer := time.NewTimer(r.untilNext())
	defer timer.Stop()

	for {
		select {
		case <-timer.C:
			r.RunOnce(ctx)
			timer.Reset(r.untilNext())
		case <-ctx.Done():
			return
		}
	}
}

// untilNext returns the wait until the next scheduled run
func (r *Reaper) untilNext() time.Duration {
	now := time.Now()
	return max(r.schedule.Next(now).Sub(now), 0)
}

// RunOnce performs a single reap cycle
func (r *Reaper) RunOnce(ctx context.Context) int {
	start := time.Now()
	removed, err := r.cache.Reap(ctx, r.now())
	metrics.RecordReap(removed, time.Since(start).Seconds())

	if err != nil {
		if ctx.Err() != nil {
			r.logger.Debug("Preview reap interrupted", zap.Int("removed", removed))
			return removed
		}
		r.logger.Error("Failed to reap previews", zap.Int("removed", removed), zap.Error(err))
		return removed
	}

	if removed > 0 {
		r.logger.Info("Reaped expired previews", zap.Int("count", removed))
	} else {
		r.logger.Debug("No expired previews to reap")
	}
	return removed
}
