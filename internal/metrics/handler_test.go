package metrics

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestSummaryHandler(t *testing.T) {
	m := New()
	m.MarkServerStart()

	m.IncGovernorCall("insights", "ok")
	m.IncGovernorCall("insights", "ok")
	m.IncGovernorCall("insights", "rate_limited")
	m.IncCollection("ready")
	m.IncCollection("failed")
	m.IncDatasetRequest("ready")
	m.IncPreview()
	m.IncApplyLine("updated")
	m.IncHTTPRequest("GET", "/health", 200)
	m.IncHTTPRequest("GET", "/health", 500)
	m.ObserveHTTPDuration("GET", "/health", 0.02)

	rec := httptest.NewRecorder()
	m.SummaryHandler().ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/status", nil))
	if rec.Code != 200 {
		t.Fatalf("status = %d", rec.Code)
	}

	var s Summary
	if err := json.NewDecoder(rec.Body).Decode(&s); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if s.Governor.CallsByKind["ok"] != 2 {
		t.Errorf("governor ok calls = %v", s.Governor.CallsByKind)
	}
	if s.Snapshots.CollectionsByStatus["failed"] != 1 {
		t.Errorf("collections = %v", s.Snapshots.CollectionsByStatus)
	}
	if s.Datasets["ready"] != 1 {
		t.Errorf("datasets = %v", s.Datasets)
	}
	if s.Budget.Previews != 1 || s.Budget.ApplyByOutcome["updated"] != 1 {
		t.Errorf("budget = %+v", s.Budget)
	}
	if s.HTTP.TotalRequests != 2 {
		t.Errorf("http total = %v", s.HTTP.TotalRequests)
	}
	if s.HTTP.ErrorRate != 0.5 {
		t.Errorf("error rate = %v, want 0.5", s.HTTP.ErrorRate)
	}
	if s.Server.StartTime == 0 {
		t.Error("start time should be set")
	}
}

func TestExpositionHandler(t *testing.T) {
	m := New()
	m.IncGovernorCall("insights", "ok")

	rec := httptest.NewRecorder()
	m.ExpositionHandler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != 200 {
		t.Fatalf("status = %d", rec.Code)
	}
	if body := rec.Body.String(); !strings.Contains(body, "sluice_governor_calls_total") {
		t.Error("exposition should contain sluice_governor_calls_total")
	}
}
