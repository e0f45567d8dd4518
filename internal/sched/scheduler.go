// Package sched drives snapshot collection on a fixed cadence. Each tick
// walks the recent backfill window for every enabled account; hours that are
// already terminal cost nothing because CollectOnce short-circuits them.
package sched

import (
	"context"
	"log/slog"
	"time"

	"github.com/sluicehq/sluice/internal/snapshot"
)

// HourCollector is the interface used by the Scheduler to run collection
// passes. It exists to allow testing without a real collector.
type HourCollector interface {
	CollectOnce(ctx context.Context, accountID, date string, hour int) (*snapshot.Snapshot, error)
}

// Scheduler periodically pokes collection for the previous full hours of
// every enabled account.
type Scheduler struct {
	collector HourCollector
	accounts  []string
	interval  time.Duration
	backfill  int // how many trailing full hours each tick covers
	loc       *time.Location
	done      chan struct{}
	now       func() time.Time // injectable clock for testing
}

// New creates a Scheduler covering the last backfillHours full hours on each
// tick.
func New(collector HourCollector, accounts []string, interval time.Duration, backfillHours int, loc *time.Location) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	if backfillHours < 1 {
		backfillHours = 1
	}
	return &Scheduler{
		collector: collector,
		accounts:  accounts,
		interval:  interval,
		backfill:  backfillHours,
		loc:       loc,
		done:      make(chan struct{}),
		now:       time.Now,
	}
}

// Start runs an immediate tick and then ticks on the interval. It blocks
// until Stop is called or the context is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	s.tick(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.tick(ctx)
		case <-ctx.Done():
			return
		case <-s.done:
			return
		}
	}
}

// Stop signals the scheduler loop to exit.
func (s *Scheduler) Stop() {
	close(s.done)
}

// tick runs one collection pass over every account and pending hour. Errors
// are logged rather than propagated so one bad account cannot stall the
// loop.
func (s *Scheduler) tick(ctx context.Context) {
	for _, account := range s.accounts {
		for _, key := range s.pendingWindow() {
			snap, err := s.collector.CollectOnce(ctx, account, key.date, key.hour)
			if err != nil {
				slog.Error("collection tick failed",
					"account", account, "date", key.date, "hour", key.hour, "error", err)
				continue
			}
			if snap != nil && snap.Status == snapshot.StatusCollecting {
				slog.Debug("hour still pending",
					"account", account, "date", key.date, "hour", key.hour,
					"attempts", snap.Attempts, "next_try_at", snap.NextTryAt)
			}
		}
	}
}

type hourKey struct {
	date string
	hour int
}

// pendingWindow returns the last backfill full hours, most recent first.
func (s *Scheduler) pendingWindow() []hourKey {
	now := s.now().In(s.loc)
	lastFull := time.Date(now.Year(), now.Month(), now.Day(), now.Hour(), 0, 0, 0, s.loc).Add(-time.Hour)

	keys := make([]hourKey, 0, s.backfill)
	for i := 0; i < s.backfill; i++ {
		h := lastFull.Add(-time.Duration(i) * time.Hour)
		keys = append(keys, hourKey{date: h.Format("2006-01-02"), hour: h.Hour()})
	}
	return keys
}
