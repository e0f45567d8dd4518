package governor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sluicehq/sluice/internal/upstream"
)

// fakeClock is a controllable time source for deterministic tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(t time.Time) *fakeClock {
	return &fakeClock{now: t}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// newTestGovernor wires a Governor to a fake clock. Pacing waits advance the
// clock instead of sleeping, and jitter is disabled.
func newTestGovernor(cfg Config, policy *Policy, clock *fakeClock) *Governor {
	g := New(policy, cfg)
	g.now = clock.Now
	g.sleep = clock.Advance
	g.jitter = func(time.Duration) time.Duration { return 0 }
	return g
}

func okCall(calls *int) CallFunc {
	return func(context.Context) (any, error) {
		*calls++
		return "payload", nil
	}
}

func TestCallBlockedByPolicySkipsUpstream(t *testing.T) {
	clock := newFakeClock(time.Unix(1700000000, 0))
	g := newTestGovernor(Config{MinDelay: time.Second}, NewPolicy(false), clock)

	calls := 0
	res := g.Call(context.Background(), CallMeta{Endpoint: "insights"}, okCall(&calls))

	if res.Kind != KindBlockedByPolicy {
		t.Fatalf("expected blocked_by_policy, got %s", res.Kind)
	}
	if calls != 0 {
		t.Fatalf("upstream should not be reached, got %d calls", calls)
	}
	if g.LastError() == nil || g.LastError().Kind != KindBlockedByPolicy {
		t.Fatal("blocked call should be recorded as the last error")
	}
}

func TestCallSuccess(t *testing.T) {
	clock := newFakeClock(time.Unix(1700000000, 0))
	g := newTestGovernor(Config{MinDelay: time.Second}, NewPolicy(true), clock)

	calls := 0
	res := g.Call(context.Background(), CallMeta{Endpoint: "insights"}, okCall(&calls))

	if !res.OK() {
		t.Fatalf("expected ok, got %s: %s", res.Kind, res.Message)
	}
	if res.Payload != "payload" {
		t.Fatalf("payload not propagated: %v", res.Payload)
	}
	if calls != 1 {
		t.Fatalf("expected exactly one upstream call, got %d", calls)
	}
}

func TestCallPacingSpacesDispatches(t *testing.T) {
	clock := newFakeClock(time.Unix(1700000000, 0))
	g := newTestGovernor(Config{MinDelay: 5 * time.Second}, NewPolicy(true), clock)

	var dispatchedAt []time.Time
	fn := func(context.Context) (any, error) {
		dispatchedAt = append(dispatchedAt, clock.Now())
		return nil, nil
	}

	for i := 0; i < 4; i++ {
		if res := g.Call(context.Background(), CallMeta{Endpoint: "insights"}, fn); !res.OK() {
			t.Fatalf("call %d failed: %s", i, res.Kind)
		}
	}

	for i := 1; i < len(dispatchedAt); i++ {
		if span := dispatchedAt[i].Sub(dispatchedAt[i-1]); span < 5*time.Second {
			t.Fatalf("dispatches %d and %d only %s apart, want >= 5s", i-1, i, span)
		}
	}
}

func TestCallRateLimitEntersCoolDown(t *testing.T) {
	clock := newFakeClock(time.Unix(1700000000, 0))
	g := newTestGovernor(Config{
		MinDelay:    time.Second,
		BackoffBase: 10 * time.Minute,
	}, NewPolicy(true), clock)

	res := g.Call(context.Background(), CallMeta{Endpoint: "insights"}, func(context.Context) (any, error) {
		return nil, &upstream.APIError{Code: 17, Message: "user request limit reached"}
	})
	if res.Kind != KindRateLimited {
		t.Fatalf("expected rate_limited, got %s", res.Kind)
	}
	if res.RetryAfter < 9*time.Minute {
		t.Fatalf("retry-after too short: %s", res.RetryAfter)
	}

	// While the cool-down is in effect no upstream call is attempted.
	calls := 0
	res = g.Call(context.Background(), CallMeta{Endpoint: "insights"}, okCall(&calls))
	if res.Kind != KindRateLimited || calls != 0 {
		t.Fatalf("expected short-circuit rate_limited with no upstream call, got %s calls=%d", res.Kind, calls)
	}

	// After the window passes, calls go through again.
	clock.Advance(11 * time.Minute)
	res = g.Call(context.Background(), CallMeta{Endpoint: "insights"}, okCall(&calls))
	if !res.OK() || calls != 1 {
		t.Fatalf("expected ok after cool-down, got %s calls=%d", res.Kind, calls)
	}
}

func TestCoolDownIsMonotonic(t *testing.T) {
	clock := newFakeClock(time.Unix(1700000000, 0))
	g := newTestGovernor(Config{BackoffBase: 10 * time.Minute}, NewPolicy(true), clock)

	g.enterCoolDown()
	first := g.RateLimitedUntil()

	// A shorter backoff computed later must not pull the deadline back.
	g.cfg.BackoffBase = time.Minute
	g.enterCoolDown()
	if g.RateLimitedUntil().Before(first) {
		t.Fatalf("cool-down moved backwards: %s -> %s", first, g.RateLimitedUntil())
	}

	// A longer one extends it.
	g.cfg.BackoffBase = 30 * time.Minute
	g.enterCoolDown()
	if !g.RateLimitedUntil().After(first) {
		t.Fatal("longer backoff should extend the cool-down")
	}
}

func TestCallClassifiesAPIErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind Kind
		api  upstream.ErrorKind
	}{
		{"auth", &upstream.APIError{Code: 190, Message: "token expired"}, KindAPIError, upstream.KindAuth},
		{"invalid param", &upstream.APIError{Code: 100, Message: "unsupported request"}, KindAPIError, upstream.KindInvalidParam},
		{"permission", &upstream.APIError{Code: 200, Message: "not allowed"}, KindAPIError, upstream.KindPermission},
		{"unknown code", &upstream.APIError{Code: 1, Message: "unknown"}, KindAPIError, upstream.KindUnknown},
		{"transport", errors.New("dial tcp: connection refused"), KindTransportError, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := newFakeClock(time.Unix(1700000000, 0))
			g := newTestGovernor(Config{}, NewPolicy(true), clock)

			res := g.Call(context.Background(), CallMeta{Endpoint: "entities"}, func(context.Context) (any, error) {
				return nil, tt.err
			})
			if res.Kind != tt.kind {
				t.Fatalf("expected kind %s, got %s", tt.kind, res.Kind)
			}
			if tt.kind == KindAPIError && res.APIKind != tt.api {
				t.Fatalf("expected api kind %s, got %s", tt.api, res.APIKind)
			}
		})
	}
}
