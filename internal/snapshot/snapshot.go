// Package snapshot is the durable hourly metrics cache. Every consumer that
// needs time-windowed performance data reads persisted snapshots instead of
// calling the upstream; only the Collector writes them.
package snapshot

import "time"

// Status is the readiness state of one hour's snapshot.
type Status string

const (
	StatusCollecting Status = "collecting"
	StatusReady      Status = "ready"
	// StatusReadyLowConfidence marks an hour whose collection succeeded but
	// whose numbers look implausible (rows present, zero results). Consumers
	// can surface the flag without treating the hour as missing.
	StatusReadyLowConfidence Status = "ready_low_confidence"
	StatusFailed             Status = "failed"
)

// EntityRow is one entity's metrics within a snapshot hour.
type EntityRow struct {
	EntityID         string  `json:"entity_id"`
	Name             string  `json:"name"`
	ParentID         string  `json:"parent_id"`
	Spend            float64 `json:"spend"`
	PrimaryResults   int     `json:"primary_results"`
	SecondaryResults int     `json:"secondary_results"`
	TotalResults     int     `json:"total_results"`
}

// SnapError describes why a snapshot is not ready.
type SnapError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Snapshot is one hour's persisted collection result for one account. The
// key is (AccountID, Date, Hour); the hour covers the half-open window
// [hour:00, hour+1:00) in the cache's configured timezone.
type Snapshot struct {
	AccountID string `json:"account_id"`
	Date      string `json:"date"` // YYYY-MM-DD
	Hour      int    `json:"hour"` // 0..23

	Status   Status `json:"status"`
	Attempts int    `json:"attempts"`

	LastTryAt  time.Time `json:"last_try_at,omitzero"`
	NextTryAt  time.Time `json:"next_try_at,omitzero"`
	DeadlineAt time.Time `json:"deadline_at"`

	Rows  []EntityRow `json:"rows,omitempty"`
	Error *SnapError  `json:"error,omitempty"`
}

// Ready reports whether the snapshot carries usable data.
func (s *Snapshot) Ready() bool {
	return s.Status == StatusReady || s.Status == StatusReadyLowConfidence
}

// Terminal reports whether the snapshot will never change again. Ready
// snapshots are immutable; a failed one is final once its deadline has
// passed (before that, a later tick may still retry the hour).
func (s *Snapshot) Terminal(now time.Time) bool {
	if s.Ready() {
		return true
	}
	return s.Status == StatusFailed && now.After(s.DeadlineAt)
}

// TotalSpend sums spend across all rows.
func (s *Snapshot) TotalSpend() float64 {
	var total float64
	for _, r := range s.Rows {
		total += r.Spend
	}
	return total
}

// TotalResults sums the result counts across all rows.
func (s *Snapshot) TotalResults() int {
	var total int
	for _, r := range s.Rows {
		total += r.TotalResults
	}
	return total
}
