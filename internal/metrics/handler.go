package metrics

import (
	"encoding/json"
	"math"
	"net/http"
	"sort"
	"time"

	dto "github.com/prometheus/client_model/go"
)

// Summary is the JSON response for the status endpoint: a compact operator
// view over the live registry.
type Summary struct {
	Governor  governorSummary    `json:"governor"`
	Snapshots snapshotSummary    `json:"snapshots"`
	Datasets  map[string]float64 `json:"datasets"`
	Budget    budgetSummary      `json:"budget"`
	HTTP      httpSummary        `json:"http"`
	Server    serverInfo         `json:"server"`
}

type governorSummary struct {
	CallsByKind   map[string]float64 `json:"callsByKind"`
	CoolDownUntil float64            `json:"coolDownUntil"`
	P50PacingWait float64            `json:"p50PacingWait"`
	P95PacingWait float64            `json:"p95PacingWait"`
}

type snapshotSummary struct {
	CollectionsByStatus map[string]float64 `json:"collectionsByStatus"`
	P95CollectSeconds   float64            `json:"p95CollectSeconds"`
}

type budgetSummary struct {
	Previews       float64            `json:"previews"`
	ApplyByOutcome map[string]float64 `json:"applyByOutcome"`
}

type httpSummary struct {
	TotalRequests float64 `json:"totalRequests"`
	ErrorRate     float64 `json:"errorRate"`
	P50Latency    float64 `json:"p50Latency"`
	P95Latency    float64 `json:"p95Latency"`
}

type serverInfo struct {
	StartTime     float64 `json:"startTime"`
	UptimeSeconds float64 `json:"uptimeSeconds"`
}

// SummaryHandler returns an http.HandlerFunc serving the JSON summary.
func (m *Metrics) SummaryHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m.handleSummary(w)
	}
}

func (m *Metrics) handleSummary(w http.ResponseWriter) {
	families, err := m.registry.Gather()
	if err != nil {
		http.Error(w, "failed to gather metrics", http.StatusInternalServerError)
		return
	}

	fam := make(map[string]*dto.MetricFamily, len(families))
	for _, f := range families {
		fam[f.GetName()] = f
	}

	start := gaugeValue(fam["sluice_server_start_time_seconds"])
	summary := Summary{
		Governor: governorSummary{
			CallsByKind:   sumCounterByLabel(fam["sluice_governor_calls_total"], "kind"),
			CoolDownUntil: gaugeValue(fam["sluice_governor_cool_down_until_seconds"]),
			P50PacingWait: histogramPercentile(fam["sluice_governor_pacing_wait_seconds"], 0.50),
			P95PacingWait: histogramPercentile(fam["sluice_governor_pacing_wait_seconds"], 0.95),
		},
		Snapshots: snapshotSummary{
			CollectionsByStatus: sumCounterByLabel(fam["sluice_snapshot_collections_total"], "status"),
			P95CollectSeconds:   histogramPercentile(fam["sluice_snapshot_collect_duration_seconds"], 0.95),
		},
		Datasets: sumCounterByLabel(fam["sluice_dataset_requests_total"], "status"),
		Budget: budgetSummary{
			Previews:       counterValue(fam["sluice_budget_previews_total"]),
			ApplyByOutcome: sumCounterByLabel(fam["sluice_budget_apply_lines_total"], "outcome"),
		},
		HTTP: httpSummary{
			TotalRequests: sumCounter(fam["sluice_http_requests_total"]),
			ErrorRate:     errorRate(fam["sluice_http_requests_total"]),
			P50Latency:    histogramPercentile(fam["sluice_http_request_duration_seconds"], 0.50),
			P95Latency:    histogramPercentile(fam["sluice_http_request_duration_seconds"], 0.95),
		},
		Server: serverInfo{
			StartTime:     start,
			UptimeSeconds: float64(time.Now().Unix()) - start,
		},
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache, no-store")
	_ = json.NewEncoder(w).Encode(summary)
}

// --- Prometheus metric helpers ---

func sumCounter(f *dto.MetricFamily) float64 {
	if f == nil {
		return 0
	}
	var total float64
	for _, m := range f.GetMetric() {
		if m.GetCounter() != nil {
			total += m.GetCounter().GetValue()
		}
	}
	return total
}

// sumCounterByLabel groups counter values by the given label name.
func sumCounterByLabel(f *dto.MetricFamily, label string) map[string]float64 {
	out := make(map[string]float64)
	if f == nil {
		return out
	}
	for _, m := range f.GetMetric() {
		if m.GetCounter() == nil {
			continue
		}
		for _, lp := range m.GetLabel() {
			if lp.GetName() == label {
				out[lp.GetValue()] += m.GetCounter().GetValue()
			}
		}
	}
	return out
}

func counterValue(f *dto.MetricFamily) float64 {
	if f == nil || len(f.GetMetric()) == 0 {
		return 0
	}
	if c := f.GetMetric()[0].GetCounter(); c != nil {
		return c.GetValue()
	}
	return 0
}

func gaugeValue(f *dto.MetricFamily) float64 {
	if f == nil || len(f.GetMetric()) == 0 {
		return 0
	}
	if g := f.GetMetric()[0].GetGauge(); g != nil {
		return g.GetValue()
	}
	return 0
}

// errorRate computes the share of requests labelled with a 4xx/5xx status.
func errorRate(f *dto.MetricFamily) float64 {
	if f == nil {
		return 0
	}
	var total, errored float64
	for _, m := range f.GetMetric() {
		if m.GetCounter() == nil {
			continue
		}
		v := m.GetCounter().GetValue()
		total += v
		for _, lp := range m.GetLabel() {
			if lp.GetName() == "status_code" && (lp.GetValue() == "4xx" || lp.GetValue() == "5xx") {
				errored += v
			}
		}
	}
	if total == 0 {
		return 0
	}
	return errored / total
}

// histogramPercentile estimates a percentile from cumulative histogram
// buckets by linear interpolation within the target bucket.
func histogramPercentile(f *dto.MetricFamily, q float64) float64 {
	if f == nil {
		return 0
	}

	// Merge buckets across all series in the family.
	merged := make(map[float64]uint64)
	var count uint64
	for _, m := range f.GetMetric() {
		h := m.GetHistogram()
		if h == nil {
			continue
		}
		count += h.GetSampleCount()
		for _, b := range h.GetBucket() {
			merged[b.GetUpperBound()] += b.GetCumulativeCount()
		}
	}
	if count == 0 {
		return 0
	}

	bounds := make([]float64, 0, len(merged))
	for ub := range merged {
		bounds = append(bounds, ub)
	}
	sort.Float64s(bounds)

	target := q * float64(count)
	var prevBound float64
	var prevCount uint64
	for _, ub := range bounds {
		c := merged[ub]
		if float64(c) >= target {
			if math.IsInf(ub, 1) {
				return prevBound
			}
			bucketCount := c - prevCount
			if bucketCount == 0 {
				return ub
			}
			frac := (target - float64(prevCount)) / float64(bucketCount)
			return prevBound + (ub-prevBound)*frac
		}
		prevBound = ub
		prevCount = c
	}
	return prevBound
}
