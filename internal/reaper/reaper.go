package reaper

import (
	"context"
	"sync"
	"time"

	"github.com/nvlabs/dropzone/internal/pkg/scheduler"
	"go.uber.org/zap"
)

// DefaultInterval is how often the sweeps run in production
const DefaultInterval = time.Hour

// FileSweeper removes expired file records and their blobs
type FileSweeper interface {
	SweepExpired(ctx context.Context, now time.Time) int
}

// BanSweeper removes expired ban records
type BanSweeper interface {
	SweepExpiredBans(now time.Time) int
}

// Reaper periodically sweeps expired files and bans. It is the safety net
// behind the per-entry timers: a sweep that finds work means timers were
// lost, which the logs make visible.
type Reaper struct {
	files    FileSweeper
	bans     BanSweeper
	sched    scheduler.Scheduler
	interval time.Duration
	logger   *zap.Logger

	mu      sync.Mutex
	tickers []scheduler.Ticker
}

// New creates a reaper sweeping at the given interval
func New(files FileSweeper, bans BanSweeper, sched scheduler.Scheduler, interval time.Duration, logger *zap.Logger) *Reaper {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Reaper{
		files:    files,
		bans:     bans,
		sched:    sched,
		interval: interval,
		logger:   logger,
	}
}

// Start launches the periodic sweeps. Calling Start twice stacks tickers,
// so callers pair it with exactly one Stop.
func (r *Reaper) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.tickers = append(r.tickers,
		r.sched.Every(r.interval, r.sweepFiles),
		r.sched.Every(r.interval, r.sweepBans),
	)
	r.logger.Info("reaper started", zap.Duration("interval", r.interval))
}

// Stop cancels the periodic sweeps
func (r *Reaper) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, ticker := range r.tickers {
		ticker.Stop()
	}
	r.tickers = nil
	r.logger.Info("reaper stopped")
}

func (r *Reaper) sweepFiles() {
	if removed := r.files.SweepExpired(context.Background(), r.sched.Now()); removed > 0 {
		r.logger.Info("reaper removed expired files", zap.Int("count", removed))
	}
}

func (r *Reaper) sweepBans() {
	if removed := r.bans.SweepExpiredBans(r.sched.Now()); removed > 0 {
		r.logger.Info("reaper removed expired bans", zap.Int("count", removed))
	}
}
