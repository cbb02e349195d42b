package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/verseforge/verseforge/internal/telemetry"
)

func TestCheckAllowsUpToLimit(t *testing.T) {
	c := New(Limits{Anonymous: 3, Authenticated: 100}, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		r := c.Check(ctx, "ip-1", nil, TierAnonymous)
		if !r.Allowed {
			t.Fatalf("request %d: expected allowed, got denied", i+1)
		}
	}

	r := c.Check(ctx, "ip-1", nil, TierAnonymous)
	if r.Allowed {
		t.Error("expected 4th request over the limit of 3 to be denied")
	}
}

func TestCheckTiersAreIndependentPerIdentity(t *testing.T) {
	c := New(Limits{Anonymous: 1, Authenticated: 100}, nil)
	ctx := context.Background()

	if !c.Check(ctx, "ip-a", nil, TierAnonymous).Allowed {
		t.Fatal("expected first request for ip-a to be allowed")
	}
	if c.Check(ctx, "ip-a", nil, TierAnonymous).Allowed {
		t.Error("expected second request for ip-a to be denied")
	}
	if !c.Check(ctx, "ip-b", nil, TierAnonymous).Allowed {
		t.Error("expected first request for a distinct identity ip-b to be allowed")
	}
}

func TestCheckAuthenticatedUsesHigherLimit(t *testing.T) {
	c := New(Limits{Anonymous: 1, Authenticated: 5}, nil)
	ctx := context.Background()
	user := "user-1"

	for i := 0; i < 5; i++ {
		if !c.Check(ctx, "user-1", &user, TierAuthenticated).Allowed {
			t.Fatalf("request %d: expected authenticated tier to allow up to 5", i+1)
		}
	}
	if c.Check(ctx, "user-1", &user, TierAuthenticated).Allowed {
		t.Error("expected 6th authenticated request to be denied")
	}
}

func TestCheckRecordsEvents(t *testing.T) {
	buf := telemetry.NewRateLimitEventBuffer(10)
	c := New(Limits{Anonymous: 1, Authenticated: 100}, buf)
	ctx := context.Background()

	c.Check(ctx, "ip-events", nil, TierAnonymous)
	c.Check(ctx, "ip-events", nil, TierAnonymous)

	events := buf.ByIdentifier("ip-events")
	if len(events) != 2 {
		t.Fatalf("expected 2 recorded events, got %d", len(events))
	}
	if events[0].LimitExceeded {
		t.Error("expected first event to not have exceeded the limit")
	}
	if !events[1].LimitExceeded {
		t.Error("expected second event to have exceeded the limit")
	}
}

func TestReset(t *testing.T) {
	c := New(Limits{Anonymous: 1, Authenticated: 100}, nil)
	ctx := context.Background()

	if !c.Check(ctx, "ip-reset", nil, TierAnonymous).Allowed {
		t.Fatal("expected first request to be allowed")
	}
	if c.Check(ctx, "ip-reset", nil, TierAnonymous).Allowed {
		t.Fatal("expected second request to be denied before reset")
	}

	c.Reset("ip-reset")
	// Reset is dispatched asynchronously through the actor's mailbox; give it
	// a moment to be processed before the next check.
	time.Sleep(10 * time.Millisecond)

	if !c.Check(ctx, "ip-reset", nil, TierAnonymous).Allowed {
		t.Error("expected a request after Reset to be allowed again")
	}
}

