package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sluicehq/sluice/internal/snapshot"
)

// snapshotHandler serves persisted hourly snapshots and merged datasets.
type snapshotHandler struct {
	store   *snapshot.Store
	reader  *snapshot.Reader
	metrics datasetMetrics
}

// datasetMetrics is the slice of metrics this handler records.
type datasetMetrics interface {
	IncDatasetRequest(status string)
}

func newSnapshotHandler(store *snapshot.Store, reader *snapshot.Reader, m datasetMetrics) *snapshotHandler {
	return &snapshotHandler{store: store, reader: reader, metrics: m}
}

// parseDate validates a YYYY-MM-DD path or query value.
func parseDate(s string) (string, error) {
	if _, err := time.Parse("2006-01-02", s); err != nil {
		return "", err
	}
	return s, nil
}

// parseHours turns "0,1,5" or "9-17" (or a mix) into a sorted-enough hour
// slice. Values outside 0..23 are rejected.
func parseHours(s string) ([]int, error) {
	if s == "" {
		hours := make([]int, 24)
		for i := range hours {
			hours[i] = i
		}
		return hours, nil
	}

	var hours []int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if lo, hi, ok := strings.Cut(part, "-"); ok {
			from, err := parseHour(lo)
			if err != nil {
				return nil, err
			}
			to, err := parseHour(hi)
			if err != nil {
				return nil, err
			}
			if to < from {
				return nil, strconv.ErrRange
			}
			for h := from; h <= to; h++ {
				hours = append(hours, h)
			}
			continue
		}
		h, err := parseHour(part)
		if err != nil {
			return nil, err
		}
		hours = append(hours, h)
	}
	return hours, nil
}

func parseHour(s string) (int, error) {
	h, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}
	if h < 0 || h > 23 {
		return 0, strconv.ErrRange
	}
	return h, nil
}

// GetSnapshot returns the raw persisted snapshot for one hour.
func (h *snapshotHandler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")
	date, err := parseDate(chi.URLParam(r, "date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
		return
	}
	hour, err := parseHour(chi.URLParam(r, "hour"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_hour", "hour must be 0..23")
		return
	}

	snap, err := h.store.Get(accountID, date, hour)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "storage_error", err.Error())
		return
	}
	if snap == nil {
		writeError(w, http.StatusNotFound, "not_found", "no snapshot for this hour")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// datasetResponse wraps a verdict with the dataset when it is usable.
type datasetResponse struct {
	Verdict snapshot.Verdict  `json:"verdict"`
	Dataset *snapshot.Dataset `json:"dataset,omitempty"`
}

// verdictStatusCode maps a dataset verdict onto an HTTP status.
func verdictStatusCode(status snapshot.DatasetStatus) int {
	switch status {
	case snapshot.DatasetReady:
		return http.StatusOK
	case snapshot.DatasetMissing:
		return http.StatusNotFound
	case snapshot.DatasetCollecting:
		return http.StatusAccepted
	default:
		return http.StatusBadGateway
	}
}

// GetDataset merges the requested hours and answers with the verdict. The
// merge is all-or-nothing: a single non-ready hour blocks the whole range.
func (h *snapshotHandler) GetDataset(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")
	date, err := parseDate(r.URL.Query().Get("date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
		return
	}
	hours, err := parseHours(r.URL.Query().Get("hours"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_hours", "hours must be 0..23, comma-separated or ranged")
		return
	}

	ds, verdict, err := h.reader.Dataset(accountID, date, hours)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "storage_error", err.Error())
		return
	}
	if h.metrics != nil {
		h.metrics.IncDatasetRequest(string(verdict.Status))
	}
	writeJSON(w, verdictStatusCode(verdict.Status), datasetResponse{Verdict: verdict, Dataset: ds})
}

// spendResponse is the answer to a spend query over ready hours.
type spendResponse struct {
	AccountID string           `json:"account_id"`
	Date      string           `json:"date"`
	Hours     []int            `json:"hours"`
	Spend     float64          `json:"spend"`
	Verdict   snapshot.Verdict `json:"verdict"`
}

// GetSpend sums spend across the requested hours, subject to the same
// all-or-nothing verdict as GetDataset.
func (h *snapshotHandler) GetSpend(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")
	date, err := parseDate(r.URL.Query().Get("date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
		return
	}
	hours, err := parseHours(r.URL.Query().Get("hours"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_hours", "hours must be 0..23, comma-separated or ranged")
		return
	}

	spend, verdict, err := h.reader.SumReadySpend(accountID, date, hours)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "storage_error", err.Error())
		return
	}
	if h.metrics != nil {
		h.metrics.IncDatasetRequest(string(verdict.Status))
	}
	writeJSON(w, verdictStatusCode(verdict.Status), spendResponse{
		AccountID: accountID,
		Date:      date,
		Hours:     hours,
		Spend:     spend,
		Verdict:   verdict,
	})
}
