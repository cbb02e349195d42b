package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// UsageCounters tracks per-UTC-date usage counters in memory (spec §4.12).
// These are approximate between metric rollups — the authoritative record
// lives in the MetaStore's usage_metrics table once the daily metrics job
// upserts them.
type UsageCounters struct {
	mu      sync.Mutex
	byDate  map[string]*dailyCounts
	logger  *slog.Logger
}

type dailyCounts struct {
	R2Writes             int64
	R2Reads              int64
	D1Queries            int64
	D1Writes             int64
	TotalStorageBytes    int64
	TotalGenerations     int64
	SuccessfulGenerations int64
	FailedGenerations    int64
	uniqueUsers          map[string]struct{}
}

func newDailyCounts() *dailyCounts {
	return &dailyCounts{uniqueUsers: make(map[string]struct{})}
}

// NewUsageCounters creates an empty usage counter set.
func NewUsageCounters(logger *slog.Logger) *UsageCounters {
	return &UsageCounters{
		byDate: make(map[string]*dailyCounts),
		logger: logger,
	}
}

func utcDate(t time.Time) string { return t.UTC().Format("2006-01-02") }

func (u *UsageCounters) bucket(t time.Time) *dailyCounts {
	date := utcDate(t)
	dc, ok := u.byDate[date]
	if !ok {
		dc = newDailyCounts()
		u.byDate[date] = dc
	}
	return dc
}

// RecordBlobWrite increments the blob-write counter for today.
func (u *UsageCounters) RecordBlobWrite(bytes int64) {
	u.mu.Lock()
	defer u.mu.Unlock()
	dc := u.bucket(time.Now())
	dc.R2Writes++
	dc.TotalStorageBytes += bytes
}

// RecordBlobRead increments the blob-read counter for today.
func (u *UsageCounters) RecordBlobRead() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.bucket(time.Now()).R2Reads++
}

// RecordQuery increments the MetaStore query counter for today.
func (u *UsageCounters) RecordQuery() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.bucket(time.Now()).D1Queries++
}

// RecordWrite increments the MetaStore write counter for today.
func (u *UsageCounters) RecordWrite() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.bucket(time.Now()).D1Writes++
}

// RecordGeneration records a generation attempt outcome and the user
// (if any) that triggered it, for today's unique-user tally.
func (u *UsageCounters) RecordGeneration(success bool, userID string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	dc := u.bucket(time.Now())
	dc.TotalGenerations++
	if success {
		dc.SuccessfulGenerations++
	} else {
		dc.FailedGenerations++
	}
	if userID != "" {
		dc.uniqueUsers[userID] = struct{}{}
	}
}

// Snapshot is an immutable view of a date's counters.
type Snapshot struct {
	Date                  string
	R2Writes              int64
	R2Reads               int64
	D1Queries             int64
	D1Writes              int64
	TotalStorageBytes     int64
	TotalGenerations      int64
	SuccessfulGenerations int64
	FailedGenerations     int64
	UniqueUsers           int
}

// SnapshotFor returns the counters for the given UTC date.
func (u *UsageCounters) SnapshotFor(date string) Snapshot {
	u.mu.Lock()
	defer u.mu.Unlock()
	dc, ok := u.byDate[date]
	if !ok {
		return Snapshot{Date: date}
	}
	return Snapshot{
		Date:                  date,
		R2Writes:              dc.R2Writes,
		R2Reads:               dc.R2Reads,
		D1Queries:             dc.D1Queries,
		D1Writes:              dc.D1Writes,
		TotalStorageBytes:     dc.TotalStorageBytes,
		TotalGenerations:      dc.TotalGenerations,
		SuccessfulGenerations: dc.SuccessfulGenerations,
		FailedGenerations:     dc.FailedGenerations,
		UniqueUsers:           len(dc.uniqueUsers),
	}
}

// Today is a convenience wrapper around SnapshotFor(utcDate(now)).
func (u *UsageCounters) Today() Snapshot {
	return u.SnapshotFor(utcDate(time.Now()))
}

// --- Quota alerting ---

// QuotaThresholds maps a resource name to its configured ceiling.
type QuotaThresholds map[string]int64

// QuotaAlert is a single fired alert.
type QuotaAlert struct {
	Resource  string
	Ratio     float64
	FiredAt   time.Time
}

// AlertSink is notified when a quota alert fires. The Slack notifier
// implements this to post to a channel (see pkg/quotanotify).
type AlertSink interface {
	NotifyQuotaAlert(ctx context.Context, alert QuotaAlert)
}

// QuotaMonitor evaluates usage against configured thresholds, deduplicating
// repeat alerts for the same resource within an hour and expiring alert
// records older than 24h (spec §4.12).
type QuotaMonitor struct {
	mu         sync.Mutex
	thresholds QuotaThresholds
	counters   *UsageCounters
	sink       AlertSink
	logger     *slog.Logger
	lastFired  map[string]time.Time
}

// NewQuotaMonitor creates a QuotaMonitor.
func NewQuotaMonitor(thresholds QuotaThresholds, counters *UsageCounters, sink AlertSink, logger *slog.Logger) *QuotaMonitor {
	return &QuotaMonitor{
		thresholds: thresholds,
		counters:   counters,
		sink:       sink,
		logger:     logger,
		lastFired:  make(map[string]time.Time),
	}
}

// Check evaluates every configured resource against today's usage and fires
// alerts for any at or above 80% of its threshold, subject to dedup.
func (m *QuotaMonitor) Check(ctx context.Context) {
	now := time.Now()
	snap := m.counters.Today()

	usage := map[string]int64{
		"r2_writes":          snap.R2Writes,
		"r2_reads":           snap.R2Reads,
		"d1_queries":         snap.D1Queries,
		"d1_writes":          snap.D1Writes,
		"total_storage_bytes": snap.TotalStorageBytes,
		"total_generations":  snap.TotalGenerations,
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.janitor(now)

	for resource, threshold := range m.thresholds {
		if threshold <= 0 {
			continue
		}
		used, ok := usage[resource]
		if !ok {
			continue
		}
		ratio := float64(used) / float64(threshold)
		QuotaUsageRatio.WithLabelValues(resource).Set(ratio)
		if ratio < 0.8 {
			continue
		}
		if last, fired := m.lastFired[resource]; fired && now.Sub(last) < time.Hour {
			continue
		}
		m.lastFired[resource] = now
		alert := QuotaAlert{Resource: resource, Ratio: ratio, FiredAt: now}
		m.logger.Warn("quota alert", "resource", resource, "ratio", ratio)
		if m.sink != nil {
			m.sink.NotifyQuotaAlert(ctx, alert)
		}
	}
}

// janitor removes alert records older than 24h so a resource that drops back
// below threshold and rises again later is re-alerted.
func (m *QuotaMonitor) janitor(now time.Time) {
	for resource, t := range m.lastFired {
		if now.Sub(t) > 24*time.Hour {
			delete(m.lastFired, resource)
		}
	}
}

// --- Rate-limit event buffer ---

// RateLimitEvent records a single rate-limit check outcome for later query
// by identifier (spec §4.12).
type RateLimitEvent struct {
	Timestamp     time.Time
	Identifier    string
	UserID        string
	Tier          string
	LimitExceeded bool
	RequestCount  int
	Limit         int
	ResetAt       time.Time
}

// RateLimitEventBuffer is a bounded in-memory ring buffer of recent
// rate-limit events, queryable by identifier.
type RateLimitEventBuffer struct {
	mu     sync.Mutex
	events []RateLimitEvent
	cap    int
}

// NewRateLimitEventBuffer creates a buffer holding at most capacity events.
func NewRateLimitEventBuffer(capacity int) *RateLimitEventBuffer {
	if capacity <= 0 {
		capacity = 1000
	}
	return &RateLimitEventBuffer{cap: capacity}
}

// Record appends an event, evicting the oldest if the buffer is full.
func (b *RateLimitEventBuffer) Record(e RateLimitEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, e)
	if len(b.events) > b.cap {
		b.events = b.events[len(b.events)-b.cap:]
	}
}

// ByIdentifier returns all buffered events for the given identifier, oldest
// first.
func (b *RateLimitEventBuffer) ByIdentifier(identifier string) []RateLimitEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []RateLimitEvent
	for _, e := range b.events {
		if e.Identifier == identifier {
			out = append(out, e)
		}
	}
	return out
}
