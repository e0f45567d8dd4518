package snapshot

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sluicehq/sluice/internal/governor"
	"github.com/sluicehq/sluice/internal/upstream"
)

// InsightsAPI is the slice of the upstream client used by the Collector.
type InsightsAPI interface {
	Insights(ctx context.Context, accountID string, since, until time.Time) ([]upstream.InsightRow, error)
}

// ConfidencePolicy decides whether a successfully collected row set looks
// implausible. The right threshold is a product decision, so it is a named,
// overridable hook rather than a hard-coded check.
type ConfidencePolicy func(rows []EntityRow) bool

// DefaultConfidencePolicy flags hours that have rows but zero summed results.
func DefaultConfidencePolicy(rows []EntityRow) bool {
	if len(rows) == 0 {
		return false
	}
	total := 0
	for _, r := range rows {
		total += r.TotalResults
	}
	return total == 0
}

// CollectorMetrics is an optional interface for recording collection metrics.
type CollectorMetrics interface {
	IncCollection(status string)
	ObserveCollectDuration(seconds float64)
}

// CollectorConfig tunes the Collector.
type CollectorConfig struct {
	// Location is the fixed timezone hour windows are expressed in.
	Location *time.Location
	// Deadline is how long after the end of an hour collection keeps being
	// retried before the hour is marked failed for good.
	Deadline time.Duration
	// RetryInterval is the default wait before re-attempting a non-terminal
	// hour when the governor did not report a specific cool-down.
	RetryInterval time.Duration
	// MinRows is the minimum row count for a collection pass to count as a
	// success; fewer rows is a terminal failure.
	MinRows int
}

// Collector runs idempotent per-hour collection passes through the governor
// and persists the outcome.
type Collector struct {
	store      *Store
	gov        *governor.Governor
	api        InsightsAPI
	cfg        CollectorConfig
	confidence ConfidencePolicy
	now        func() time.Time // injectable clock for testing
	metrics    CollectorMetrics
}

// NewCollector creates a Collector with the default confidence policy.
func NewCollector(store *Store, gov *governor.Governor, api InsightsAPI, cfg CollectorConfig) *Collector {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Collector{
		store:      store,
		gov:        gov,
		api:        api,
		cfg:        cfg,
		confidence: DefaultConfidencePolicy,
		now:        time.Now,
	}
}

// SetConfidencePolicy overrides the low-confidence heuristic.
func (c *Collector) SetConfidencePolicy(p ConfidencePolicy) {
	c.confidence = p
}

// SetMetrics sets the optional metrics recorder.
func (c *Collector) SetMetrics(m CollectorMetrics) {
	c.metrics = m
}

// hourWindow returns the half-open [hour:00, hour+1:00) window for the key.
func (c *Collector) hourWindow(date string, hour int) (time.Time, time.Time, error) {
	day, err := time.ParseInLocation("2006-01-02", date, c.cfg.Location)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("parsing snapshot date: %w", err)
	}
	if hour < 0 || hour > 23 {
		return time.Time{}, time.Time{}, fmt.Errorf("hour out of range: %d", hour)
	}
	start := day.Add(time.Duration(hour) * time.Hour)
	return start, start.Add(time.Hour), nil
}

// CollectOnce runs one collection pass for the key. Terminal snapshots are
// returned unchanged without touching the governor, which is what makes
// frequent scheduler ticks cheap. The returned error covers storage and
// argument problems only; upstream failures are persisted into the snapshot.
func (c *Collector) CollectOnce(ctx context.Context, accountID, date string, hour int) (*Snapshot, error) {
	start, end, err := c.hourWindow(date, hour)
	if err != nil {
		return nil, err
	}

	now := c.now()

	snap, err := c.store.Get(accountID, date, hour)
	if err != nil {
		return nil, err
	}
	if snap != nil {
		if snap.Terminal(now) {
			return snap, nil
		}
		// Not due for a retry yet: leave the snapshot untouched.
		if !snap.NextTryAt.IsZero() && now.Before(snap.NextTryAt) {
			return snap, nil
		}
	} else {
		snap = &Snapshot{
			AccountID:  accountID,
			Date:       date,
			Hour:       hour,
			Status:     StatusCollecting,
			DeadlineAt: end.Add(c.cfg.Deadline),
		}
	}

	if now.After(snap.DeadlineAt) {
		c.fail(snap, "deadline", fmt.Sprintf("no successful collection before %s", snap.DeadlineAt.Format(time.RFC3339)))
		return snap, c.persist(snap)
	}

	snap.Attempts++
	snap.LastTryAt = now

	res := c.gov.Call(ctx, governor.CallMeta{
		Endpoint: "insights",
		Reason:   fmt.Sprintf("hourly snapshot %s %s %02d:00", accountID, date, hour),
	}, func(ctx context.Context) (any, error) {
		return c.api.Insights(ctx, accountID, start, end)
	})

	if c.metrics != nil {
		c.metrics.ObserveCollectDuration(c.now().Sub(now).Seconds())
	}

	switch res.Kind {
	case governor.KindOK:
		rows := convertRows(res.Payload.([]upstream.InsightRow))
		if len(rows) < c.cfg.MinRows {
			c.fail(snap, "too_few_rows", fmt.Sprintf("got %d rows, need at least %d", len(rows), c.cfg.MinRows))
			break
		}
		snap.Rows = rows
		snap.Error = nil
		if c.confidence(rows) {
			snap.Status = StatusReadyLowConfidence
		} else {
			snap.Status = StatusReady
		}
		slog.Info("snapshot collected",
			"account", accountID, "date", date, "hour", hour,
			"status", snap.Status, "rows", len(rows), "attempts", snap.Attempts)

	case governor.KindRateLimited, governor.KindBlockedByPolicy:
		// Not a terminal failure: the hour stays pending and later ticks
		// retry it until the deadline.
		snap.Status = StatusCollecting
		snap.Error = &SnapError{Type: string(res.Kind), Message: res.Message}
		retry := res.RetryAfter
		if retry <= 0 {
			retry = c.cfg.RetryInterval
		}
		snap.NextTryAt = now.Add(retry)
		slog.Warn("snapshot collection deferred",
			"account", accountID, "date", date, "hour", hour,
			"kind", res.Kind, "next_try_at", snap.NextTryAt)

	default:
		errType := string(res.Kind)
		if res.Kind == governor.KindAPIError {
			errType = string(res.APIKind)
		}
		c.fail(snap, errType, res.Message)
	}

	if c.metrics != nil {
		c.metrics.IncCollection(string(snap.Status))
	}
	return snap, c.persist(snap)
}

func (c *Collector) fail(snap *Snapshot, errType, message string) {
	snap.Status = StatusFailed
	snap.Error = &SnapError{Type: errType, Message: message}
	slog.Error("snapshot collection failed",
		"account", snap.AccountID, "date", snap.Date, "hour", snap.Hour,
		"error_type", errType, "message", message, "attempts", snap.Attempts)
}

func (c *Collector) persist(snap *Snapshot) error {
	if err := c.store.Put(snap); err != nil {
		return fmt.Errorf("persisting snapshot: %w", err)
	}
	return nil
}

func convertRows(in []upstream.InsightRow) []EntityRow {
	rows := make([]EntityRow, 0, len(in))
	for _, r := range in {
		total := r.TotalResults
		if total == 0 {
			total = r.PrimaryResults + r.SecondaryResults
		}
		rows = append(rows, EntityRow{
			EntityID:         r.EntityID,
			Name:             r.Name,
			ParentID:         r.CampaignID,
			Spend:            r.Spend,
			PrimaryResults:   r.PrimaryResults,
			SecondaryResults: r.SecondaryResults,
			TotalResults:     total,
		})
	}
	return rows
}
