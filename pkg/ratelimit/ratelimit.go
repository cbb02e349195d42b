// Package ratelimit implements the RateCoordinator component: one serial
// actor per identity enforcing sliding-hour request limits (spec §4.8).
// Grounded on the teacher's escalation/engine.go goroutine+channel mailbox
// loop, generalised from a single global escalation actor to one actor per
// identity, created lazily and addressed by a single mutex-guarded map.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/verseforge/verseforge/internal/telemetry"
)

// Tier selects the per-identity limit.
type Tier string

const (
	TierAnonymous     Tier = "anonymous"
	TierAuthenticated Tier = "authenticated"
)

// CheckResult is the reply to a check message.
type CheckResult struct {
	Allowed         bool
	Remaining       int
	ResetAt         time.Time
	CaptchaRequired bool
}

// Limits holds the configured tier limits (spec §4.8: "Tier limits come
// from config").
type Limits struct {
	Anonymous     int
	Authenticated int
}

func (l Limits) forTier(tier Tier) int {
	if tier == TierAuthenticated {
		return l.Authenticated
	}
	return l.Anonymous
}

// bucket mirrors the spec's RateBucket: count, windowStart, captchaRequired,
// lastRequestTime — owned exclusively by its actor goroutine.
type bucket struct {
	count           int
	windowStart     time.Time
	captchaRequired bool
	lastRequestTime time.Time
}

type msgKind int

const (
	msgCheck msgKind = iota
	msgRecord
	msgReset
)

type request struct {
	kind  msgKind
	limit int
	reply chan CheckResult
}

// actor is the per-identity serial mailbox: every request against one
// identity is handled in receipt order by a single goroutine, giving
// linearisable check/record/reset semantics per identity with no
// cross-identity coupling.
type actor struct {
	mailbox chan request
	bucket  bucket
}

func newActor() *actor {
	a := &actor{mailbox: make(chan request, 64), bucket: bucket{windowStart: time.Now()}}
	go a.run()
	return a
}

func (a *actor) run() {
	for req := range a.mailbox {
		switch req.kind {
		case msgCheck:
			req.reply <- a.check(req.limit)
		case msgRecord:
			a.bucket.count++
			a.bucket.lastRequestTime = time.Now()
		case msgReset:
			a.bucket.count = 0
			a.bucket.windowStart = time.Now()
		}
	}
}

// check implements the spec §4.8 check message exactly: reset a stale
// window, then admit iff count < limit, incrementing only on admission.
func (a *actor) check(limit int) CheckResult {
	now := time.Now()
	if now.Sub(a.bucket.windowStart) >= time.Hour {
		a.bucket.count = 0
		a.bucket.windowStart = now
	}

	resetAt := a.bucket.windowStart.Add(time.Hour)

	if a.bucket.count < limit {
		a.bucket.count++
		return CheckResult{
			Allowed:         true,
			Remaining:       limit - a.bucket.count,
			ResetAt:         resetAt,
			CaptchaRequired: a.bucket.captchaRequired,
		}
	}
	return CheckResult{
		Allowed:         false,
		Remaining:       0,
		ResetAt:         resetAt,
		CaptchaRequired: a.bucket.captchaRequired,
	}
}

// Coordinator holds one actor per identity, created lazily. events records
// rate-limit outcomes for the admin/query surface (spec §9: "buffered in
// memory and queryable by identifier").
type Coordinator struct {
	mu     sync.Mutex
	actors map[string]*actor
	limits Limits
	events *telemetry.RateLimitEventBuffer
}

// New creates a Coordinator.
func New(limits Limits, events *telemetry.RateLimitEventBuffer) *Coordinator {
	return &Coordinator{actors: make(map[string]*actor), limits: limits, events: events}
}

func (c *Coordinator) actorFor(identity string) *actor {
	c.mu.Lock()
	defer c.mu.Unlock()
	a, ok := c.actors[identity]
	if !ok {
		a = newActor()
		c.actors[identity] = a
	}
	return a
}

// Check enforces the check message (spec §4.8 table) against identity,
// bounded by ctx. A context cancellation before the actor replies is
// treated as a denial rather than blocking the caller indefinitely.
func (c *Coordinator) Check(ctx context.Context, identity string, userID *string, tier Tier) CheckResult {
	limit := c.limits.forTier(tier)
	a := c.actorFor(identity)

	reply := make(chan CheckResult, 1)
	req := request{kind: msgCheck, limit: limit, reply: reply}

	select {
	case a.mailbox <- req:
	case <-ctx.Done():
		return CheckResult{Allowed: false, Remaining: 0, ResetAt: time.Now()}
	}

	var result CheckResult
	select {
	case result = <-reply:
	case <-ctx.Done():
		return CheckResult{Allowed: false, Remaining: 0, ResetAt: time.Now()}
	}

	if c.events != nil {
		uid := ""
		if userID != nil {
			uid = *userID
		}
		c.events.Record(telemetry.RateLimitEvent{
			Timestamp:     time.Now(),
			Identifier:    identity,
			UserID:        uid,
			Tier:          string(tier),
			LimitExceeded: !result.Allowed,
			RequestCount:  limit - result.Remaining,
			Limit:         limit,
			ResetAt:       result.ResetAt,
		})
	}

	return result
}

// Record increments the identity's counter out-of-band, without performing
// an admission check (spec §4.8 record message).
func (c *Coordinator) Record(identity string) {
	a := c.actorFor(identity)
	a.mailbox <- request{kind: msgRecord}
}

// Reset clears the identity's window immediately (spec §4.8 reset message).
func (c *Coordinator) Reset(identity string) {
	a := c.actorFor(identity)
	a.mailbox <- request{kind: msgReset}
}
