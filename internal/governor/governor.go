// Package governor is the single choke point for upstream ads API calls. It
// enforces the process-wide call policy, paces outbound dispatches, honours
// rate-limit cool-downs reported by the platform, and classifies every
// outcome into a fixed taxonomy.
package governor

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/sluicehq/sluice/internal/upstream"
)

// CallFunc performs the actual upstream request once the governor has
// decided it may be dispatched.
type CallFunc func(ctx context.Context) (any, error)

// CallMeta identifies a call for observability.
type CallMeta struct {
	Endpoint string // e.g. "insights", "entities", "update_budget"
	Reason   string // why the caller needs the upstream
}

// MetricsRecorder is an optional interface for recording governor metrics.
type MetricsRecorder interface {
	IncGovernorCall(endpoint, kind string)
	ObservePacingWait(seconds float64)
	SetCoolDownUntil(unixSeconds float64)
}

// Config holds the pacing and backoff tuning for a Governor.
type Config struct {
	MinDelay      time.Duration // minimum spacing between dispatches
	DelayJitter   time.Duration // upper bound of random extra spacing
	BackoffBase   time.Duration // minimum cool-down after an upstream rate limit
	BackoffSpread time.Duration // upper bound of random extra cool-down
}

// Governor wraps every upstream call. All shared pacing and rate-limit state
// lives behind one mutex; it is safe for concurrent callers.
type Governor struct {
	policy *Policy
	cfg    Config

	mu               sync.Mutex
	nextAllowedAt    time.Time
	rateLimitedUntil time.Time
	lastErr          *LastError

	now     func() time.Time        // injectable clock for testing
	sleep   func(time.Duration)     // injectable pacing wait for testing
	jitter  func(time.Duration) time.Duration
	metrics MetricsRecorder
}

// New creates a Governor gated by the given policy.
func New(policy *Policy, cfg Config) *Governor {
	return &Governor{
		policy: policy,
		cfg:    cfg,
		now:    time.Now,
		sleep:  time.Sleep,
		jitter: randomJitter,
	}
}

// SetMetrics sets the optional metrics recorder.
func (g *Governor) SetMetrics(m MetricsRecorder) {
	g.metrics = m
}

// Policy returns the policy gating this governor, for callers that open
// allow/deny scopes.
func (g *Governor) Policy() *Policy {
	return g.policy
}

// randomJitter returns a uniform duration in [0, max).
func randomJitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(max)))
}

// Call runs fn through the governor. It never returns a Go error: every
// outcome, including a policy block, is a typed Result.
func (g *Governor) Call(ctx context.Context, meta CallMeta, fn CallFunc) Result {
	if ok, reason := g.policy.Permitted(); !ok {
		slog.Debug("upstream call blocked by policy",
			"endpoint", meta.Endpoint, "caller_reason", meta.Reason, "policy_reason", reason)
		return g.finish(meta, Result{
			Kind:    KindBlockedByPolicy,
			Message: "blocked by policy: " + reason,
		})
	}

	now := g.now()

	g.mu.Lock()
	if now.Before(g.rateLimitedUntil) {
		retry := g.rateLimitedUntil.Sub(now)
		g.mu.Unlock()
		return g.finish(meta, Result{
			Kind:       KindRateLimited,
			Message:    "upstream cool-down in effect",
			RetryAfter: retry,
		})
	}
	// Reserve the next dispatch slot before releasing the lock so that
	// concurrent callers each get their own slot spaced by at least
	// MinDelay.
	wait := g.nextAllowedAt.Sub(now)
	dispatchAt := now
	if wait > 0 {
		dispatchAt = g.nextAllowedAt
	}
	g.nextAllowedAt = dispatchAt.Add(g.cfg.MinDelay + g.jitter(g.cfg.DelayJitter))
	g.mu.Unlock()

	if wait > 0 {
		if g.metrics != nil {
			g.metrics.ObservePacingWait(wait.Seconds())
		}
		g.sleep(wait)
	}

	payload, err := fn(ctx)
	if err == nil {
		return g.finish(meta, Result{Kind: KindOK, Payload: payload})
	}

	var apiErr *upstream.APIError
	if errors.As(err, &apiErr) {
		if apiErr.Kind() == upstream.KindRateLimit {
			retry := g.enterCoolDown()
			slog.Warn("upstream rate limit",
				"endpoint", meta.Endpoint, "code", apiErr.Code, "cool_down", retry)
			return g.finish(meta, Result{
				Kind:       KindRateLimited,
				Code:       apiErr.Code,
				Message:    apiErr.Message,
				RetryAfter: retry,
			})
		}
		return g.finish(meta, Result{
			Kind:    KindAPIError,
			APIKind: apiErr.Kind(),
			Code:    apiErr.Code,
			Message: apiErr.Message,
		})
	}

	return g.finish(meta, Result{Kind: KindTransportError, Message: err.Error()})
}

// enterCoolDown extends rateLimitedUntil by a randomized backoff window. The
// deadline only ever moves forward: a later rate-limit error can extend but
// never shorten the cool-down.
func (g *Governor) enterCoolDown() time.Duration {
	until := g.now().Add(g.cfg.BackoffBase + g.jitter(g.cfg.BackoffSpread))

	g.mu.Lock()
	if until.After(g.rateLimitedUntil) {
		g.rateLimitedUntil = until
	}
	until = g.rateLimitedUntil
	g.mu.Unlock()

	if g.metrics != nil {
		g.metrics.SetCoolDownUntil(float64(until.Unix()))
	}
	return until.Sub(g.now())
}

// finish records observability state for the result and returns it.
func (g *Governor) finish(meta CallMeta, res Result) Result {
	if g.metrics != nil {
		g.metrics.IncGovernorCall(meta.Endpoint, string(res.Kind))
	}
	if res.Kind != KindOK {
		g.mu.Lock()
		g.lastErr = &LastError{Kind: res.Kind, Message: res.Message, At: g.now()}
		g.mu.Unlock()
	}
	return res
}

// LastError returns the most recent failure seen by the governor, or nil.
func (g *Governor) LastError() *LastError {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.lastErr == nil {
		return nil
	}
	cp := *g.lastErr
	return &cp
}

// RateLimitedUntil returns the end of the current cool-down window, zero when
// none is in effect.
func (g *Governor) RateLimitedUntil() time.Time {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.rateLimitedUntil
}
