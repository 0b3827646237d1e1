package biz

import (
	"sync"
	"time"

	"github.com/nvlabs/dropzone/internal/pkg/scheduler"
	"go.uber.org/zap"
)

const (
	// BanDuration is how long a banned client stays banned
	BanDuration = 3 * time.Hour

	// VelocityWindow and VelocityLimit define the general request-rate
	// threshold: more than 30 requests in a trailing minute is a violation
	VelocityWindow = time.Minute
	VelocityLimit  = 30

	// UploadWindow and UploadLimit define the tighter limit applied to
	// expensive operations: more than 2 uploads in 5 seconds is a violation
	UploadWindow = 5 * time.Second
	UploadLimit  = 2
)

// BanRecord describes one banned client identifier
type BanRecord struct {
	IP        string    `json:"ip"`
	Reason    string    `json:"reason"`
	BannedAt  time.Time `json:"bannedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Remaining returns the time left on the ban, floored at zero
func (b *BanRecord) Remaining(now time.Time) time.Duration {
	remaining := b.ExpiresAt.Sub(now)
	if remaining < 0 {
		return 0
	}
	return remaining
}

type banEntry struct {
	record BanRecord
	task   scheduler.Task
}

// Guard tracks per-client request velocity and temporary bans. The ban map
// and the velocity windows are independent lock domains so abuse checks on
// one client never serialize behind unrelated bookkeeping.
//
// Banning is permanent-until-expiry with no appeal path here: a blunt
// instrument that trades false positives for simplicity.
type Guard struct {
	sched  scheduler.Scheduler
	logger *zap.Logger

	bansMu sync.Mutex
	bans   map[string]*banEntry

	velocityMu sync.Mutex
	velocity   map[string][]time.Time
	uploads    map[string][]time.Time
}

// NewGuard creates an empty abuse guard
func NewGuard(sched scheduler.Scheduler, logger *zap.Logger) *Guard {
	return &Guard{
		sched:    sched,
		logger:   logger,
		bans:     make(map[string]*banEntry),
		velocity: make(map[string][]time.Time),
		uploads:  make(map[string][]time.Time),
	}
}

// CheckBanned reports whether ip is currently banned. A ban whose expiry
// has passed is evicted lazily and reported as not banned.
func (g *Guard) CheckBanned(ip string) (*BanRecord, bool) {
	g.bansMu.Lock()
	defer g.bansMu.Unlock()

	entry, ok := g.bans[ip]
	if !ok {
		return nil, false
	}

	if !g.sched.Now().Before(entry.record.ExpiresAt) {
		entry.task.Cancel()
		delete(g.bans, ip)
		return nil, false
	}

	record := entry.record
	return &record, true
}

// RecordRequest appends the current request to the client's trailing
// velocity window. When the window exceeds VelocityLimit the client is
// banned immediately and the resulting ban is returned.
func (g *Guard) RecordRequest(ip string) *BanRecord {
	now := g.sched.Now()

	g.velocityMu.Lock()
	window := pruneWindow(g.velocity[ip], now, VelocityWindow)
	window = append(window, now)
	g.velocity[ip] = window
	violated := len(window) > VelocityLimit
	if violated {
		delete(g.velocity, ip)
	}
	g.velocityMu.Unlock()

	if !violated {
		return nil
	}
	return g.Ban(ip, "Excessive requests (30+ requests/minute)")
}

// EnforceRateLimit applies the tighter per-upload limit. A violation bans
// the client immediately.
func (g *Guard) EnforceRateLimit(ip string, window time.Duration, max int) *BanRecord {
	now := g.sched.Now()

	g.velocityMu.Lock()
	recent := pruneWindow(g.uploads[ip], now, window)
	recent = append(recent, now)
	g.uploads[ip] = recent
	violated := len(recent) > max
	if violated {
		delete(g.uploads, ip)
	}
	g.velocityMu.Unlock()

	if !violated {
		return nil
	}
	return g.Ban(ip, "Rate limit exceeded (2 requests/5s)")
}

// EnforceUploadLimit applies EnforceRateLimit with the fixed upload window
func (g *Guard) EnforceUploadLimit(ip string) *BanRecord {
	return g.EnforceRateLimit(ip, UploadWindow, UploadLimit)
}

// Ban creates or overwrites the ban for ip and schedules its automatic
// removal. Re-banning resets the timer.
func (g *Guard) Ban(ip, reason string) *BanRecord {
	now := g.sched.Now()

	g.bansMu.Lock()
	defer g.bansMu.Unlock()

	if existing, ok := g.bans[ip]; ok {
		existing.task.Cancel()
	}

	entry := &banEntry{
		record: BanRecord{
			IP:        ip,
			Reason:    reason,
			BannedAt:  now,
			ExpiresAt: now.Add(BanDuration),
		},
	}
	// The unban callback removes exactly this entry; a newer ban for the
	// same ip replaces the entry and cancels this task
	entry.task = g.sched.Schedule(BanDuration, func() {
		g.bansMu.Lock()
		if g.bans[ip] == entry {
			delete(g.bans, ip)
		}
		g.bansMu.Unlock()
	})
	g.bans[ip] = entry

	g.logger.Warn("client banned",
		zap.String("ip", ip),
		zap.String("reason", reason),
		zap.Time("expires_at", entry.record.ExpiresAt))

	record := entry.record
	return &record
}

// Unban removes the ban for ip, reporting whether one existed
func (g *Guard) Unban(ip string) bool {
	g.bansMu.Lock()
	defer g.bansMu.Unlock()

	entry, ok := g.bans[ip]
	if !ok {
		return false
	}
	entry.task.Cancel()
	delete(g.bans, ip)

	g.logger.Info("client unbanned", zap.String("ip", ip))
	return true
}

// ListBans returns a snapshot of all current ban records
func (g *Guard) ListBans() []BanRecord {
	g.bansMu.Lock()
	defer g.bansMu.Unlock()

	bans := make([]BanRecord, 0, len(g.bans))
	for _, entry := range g.bans {
		bans = append(bans, entry.record)
	}
	return bans
}

// BanCount returns the number of current ban records
func (g *Guard) BanCount() int {
	g.bansMu.Lock()
	defer g.bansMu.Unlock()
	return len(g.bans)
}

// SweepExpiredBans removes every ban past its expiry. A safety net behind
// the per-ban unban callbacks.
func (g *Guard) SweepExpiredBans(now time.Time) int {
	g.bansMu.Lock()
	defer g.bansMu.Unlock()

	removed := 0
	for ip, entry := range g.bans {
		if !now.Before(entry.record.ExpiresAt) {
			entry.task.Cancel()
			delete(g.bans, ip)
			removed++
		}
	}
	return removed
}

// pruneWindow drops timestamps older than the trailing window
func pruneWindow(stamps []time.Time, now time.Time, window time.Duration) []time.Time {
	cutoff := now.Add(-window)
	kept := stamps[:0]
	for _, ts := range stamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	return kept
}
