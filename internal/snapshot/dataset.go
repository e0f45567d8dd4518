package snapshot

import (
	"fmt"
	"sort"
	"time"
)

// DatasetStatus is the outcome of a dataset request.
type DatasetStatus string

const (
	DatasetReady      DatasetStatus = "ready"
	DatasetMissing    DatasetStatus = "missing"
	DatasetCollecting DatasetStatus = "collecting"
	DatasetFailed     DatasetStatus = "failed"
)

// Diagnostics explains why a dataset is not ready, surfaced from the first
// blocking hour in chronological order.
type Diagnostics struct {
	Hour      int        `json:"hour"`
	Attempts  int        `json:"attempts"`
	LastTryAt time.Time  `json:"last_try_at,omitzero"`
	NextTryAt time.Time  `json:"next_try_at,omitzero"`
	Error     *SnapError `json:"error,omitempty"`
}

// Verdict is the single structured answer to "is this hour range usable".
type Verdict struct {
	Status      DatasetStatus `json:"status"`
	Reason      string        `json:"reason,omitempty"`
	Diagnostics *Diagnostics  `json:"diagnostics,omitempty"`
}

// Dataset is a read-only merge of several snapshots for one account over a
// requested hour set. It is produced on demand and never persisted.
type Dataset struct {
	AccountID     string      `json:"account_id"`
	Date          string      `json:"date"`
	Hours         []int       `json:"hours"`
	Rows          []EntityRow `json:"rows"`
	TotalSpend    float64     `json:"total_spend"`
	TotalResults  int         `json:"total_results"`
	LowConfidence bool        `json:"low_confidence"`
}

// Reader merges persisted snapshots into datasets. It never calls the
// governor.
type Reader struct {
	store *Store
}

// NewReader creates a Reader over the given store.
func NewReader(store *Store) *Reader {
	return &Reader{store: store}
}

// Dataset merges the requested hours. The merge is all-or-nothing: the first
// hour (chronologically) that is missing, still collecting or failed decides
// the verdict and no partial data is returned.
func (r *Reader) Dataset(accountID, date string, hours []int) (*Dataset, Verdict, error) {
	sorted := append([]int(nil), hours...)
	sort.Ints(sorted)

	snaps := make([]*Snapshot, 0, len(sorted))
	for _, hour := range sorted {
		snap, err := r.store.Get(accountID, date, hour)
		if err != nil {
			return nil, Verdict{}, err
		}
		if snap == nil {
			return nil, Verdict{
				Status:      DatasetMissing,
				Reason:      fmt.Sprintf("hour %02d:00 was never collected", hour),
				Diagnostics: &Diagnostics{Hour: hour},
			}, nil
		}
		if !snap.Ready() {
			v := Verdict{
				Diagnostics: &Diagnostics{
					Hour:      hour,
					Attempts:  snap.Attempts,
					LastTryAt: snap.LastTryAt,
					NextTryAt: snap.NextTryAt,
					Error:     snap.Error,
				},
			}
			switch snap.Status {
			case StatusCollecting:
				v.Status = DatasetCollecting
				v.Reason = fmt.Sprintf("hour %02d:00 is still being collected", hour)
			default:
				v.Status = DatasetFailed
				v.Reason = fmt.Sprintf("hour %02d:00 failed to collect", hour)
			}
			return nil, v, nil
		}
		snaps = append(snaps, snap)
	}

	ds := &Dataset{AccountID: accountID, Date: date, Hours: sorted}
	merged := make(map[string]*EntityRow)
	for _, snap := range snaps {
		if snap.Status == StatusReadyLowConfidence {
			ds.LowConfidence = true
		}
		for _, row := range snap.Rows {
			m, ok := merged[row.EntityID]
			if !ok {
				cp := row
				merged[row.EntityID] = &cp
				continue
			}
			m.Spend += row.Spend
			m.PrimaryResults += row.PrimaryResults
			m.SecondaryResults += row.SecondaryResults
			m.TotalResults += row.TotalResults
		}
	}

	ds.Rows = make([]EntityRow, 0, len(merged))
	for _, row := range merged {
		ds.Rows = append(ds.Rows, *row)
	}
	sort.Slice(ds.Rows, func(i, j int) bool { return ds.Rows[i].EntityID < ds.Rows[j].EntityID })

	for _, row := range ds.Rows {
		ds.TotalSpend += row.Spend
		ds.TotalResults += row.TotalResults
	}
	return ds, Verdict{Status: DatasetReady}, nil
}

// SumReadySpend returns the summed spend over the requested hours, failing
// exactly the way Dataset does when any hour is not ready.
func (r *Reader) SumReadySpend(accountID, date string, hours []int) (float64, Verdict, error) {
	ds, verdict, err := r.Dataset(accountID, date, hours)
	if err != nil || verdict.Status != DatasetReady {
		return 0, verdict, err
	}
	return ds.TotalSpend, verdict, nil
}
