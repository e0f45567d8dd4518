package audit

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/sluicehq/sluice/internal/budget"
)

func TestRecordAndQueryRun(t *testing.T) {
	logger, err := New(filepath.Join(t.TempDir(), "audit.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer logger.Close()

	ctx := context.Background()
	at := time.Date(2026, 8, 31, 10, 0, 0, 0, time.UTC)

	recs := []budget.ApplyRecord{
		{RunID: "run-1", PlanID: "p1", AccountID: "act_1", EntityID: "A", OldCents: 400, NewCents: 800, Outcome: "updated", At: at},
		{RunID: "run-1", PlanID: "p1", AccountID: "act_1", EntityID: "B", OldCents: 600, NewCents: 600, Outcome: "skipped", At: at},
		{RunID: "run-2", PlanID: "p1", AccountID: "act_1", EntityID: "A", OldCents: 800, NewCents: 900, Outcome: "failed", Error: "not allowed", At: at},
	}
	for _, rec := range recs {
		if err := logger.RecordApply(ctx, rec); err != nil {
			t.Fatal(err)
		}
	}

	entries, err := logger.RunEntries(ctx, "run-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries for run-1, got %d", len(entries))
	}
	if entries[0].EntityID != "A" || entries[0].NewCents != 800 || entries[0].Outcome != "updated" {
		t.Fatalf("bad first entry: %+v", entries[0])
	}
	if !entries[0].At.Equal(at) {
		t.Fatalf("timestamp not preserved: %s", entries[0].At)
	}

	entries, err = logger.RunEntries(ctx, "run-2")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Error != "not allowed" {
		t.Fatalf("failure detail not preserved: %+v", entries)
	}
}
