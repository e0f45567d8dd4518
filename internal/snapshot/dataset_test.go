package snapshot

import (
	"testing"
	"time"
)

func seedStore(t *testing.T) (*Store, *Reader) {
	t.Helper()
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return store, NewReader(store)
}

func putReady(t *testing.T, store *Store, hour int, status Status, rows []EntityRow) {
	t.Helper()
	err := store.Put(&Snapshot{
		AccountID: "act_1",
		Date:      "2026-08-30",
		Hour:      hour,
		Status:    status,
		Attempts:  1,
		Rows:      rows,
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestDatasetMergesReadyHours(t *testing.T) {
	store, reader := seedStore(t)
	putReady(t, store, 10, StatusReady, []EntityRow{
		{EntityID: "e1", Name: "One", ParentID: "c1", Spend: 4, PrimaryResults: 2, TotalResults: 2},
		{EntityID: "e2", Name: "Two", ParentID: "c1", Spend: 6, PrimaryResults: 1, TotalResults: 1},
	})
	putReady(t, store, 11, StatusReady, []EntityRow{
		{EntityID: "e1", Name: "One", ParentID: "c1", Spend: 3, PrimaryResults: 1, TotalResults: 1},
	})

	ds, verdict, err := reader.Dataset("act_1", "2026-08-30", []int{11, 10})
	if err != nil {
		t.Fatal(err)
	}
	if verdict.Status != DatasetReady {
		t.Fatalf("expected ready, got %s (%s)", verdict.Status, verdict.Reason)
	}
	if len(ds.Rows) != 2 {
		t.Fatalf("expected 2 merged rows, got %d", len(ds.Rows))
	}
	// Rows are sorted by entity ID; e1 is summed across both hours.
	if ds.Rows[0].EntityID != "e1" || ds.Rows[0].Spend != 7 || ds.Rows[0].TotalResults != 3 {
		t.Fatalf("bad merge for e1: %+v", ds.Rows[0])
	}
	if ds.TotalSpend != 13 || ds.TotalResults != 4 {
		t.Fatalf("bad totals: spend=%v results=%d", ds.TotalSpend, ds.TotalResults)
	}
	if ds.LowConfidence {
		t.Fatal("no low-confidence hour was involved")
	}
}

func TestDatasetLowConfidencePropagates(t *testing.T) {
	store, reader := seedStore(t)
	putReady(t, store, 10, StatusReady, []EntityRow{{EntityID: "e1", Spend: 4, TotalResults: 2}})
	putReady(t, store, 11, StatusReadyLowConfidence, []EntityRow{{EntityID: "e1", Spend: 9}})

	ds, verdict, err := reader.Dataset("act_1", "2026-08-30", []int{10, 11})
	if err != nil {
		t.Fatal(err)
	}
	if verdict.Status != DatasetReady {
		t.Fatalf("low-confidence hours still count as ready, got %s", verdict.Status)
	}
	if !ds.LowConfidence {
		t.Fatal("low-confidence flag should propagate to the dataset")
	}
}

func TestDatasetMissingHourFailsWhole(t *testing.T) {
	store, reader := seedStore(t)
	putReady(t, store, 10, StatusReady, []EntityRow{{EntityID: "e1", Spend: 4}})

	ds, verdict, err := reader.Dataset("act_1", "2026-08-30", []int{10, 11, 12})
	if err != nil {
		t.Fatal(err)
	}
	if ds != nil {
		t.Fatal("no partial dataset on a missing hour")
	}
	if verdict.Status != DatasetMissing {
		t.Fatalf("expected missing, got %s", verdict.Status)
	}
	if verdict.Diagnostics == nil || verdict.Diagnostics.Hour != 11 {
		t.Fatalf("diagnostics should name the first missing hour, got %+v", verdict.Diagnostics)
	}
}

func TestDatasetFirstBlockingHourIsChronological(t *testing.T) {
	store, reader := seedStore(t)
	// Hour 9 is failed, hour 11 is collecting; the earlier one decides.
	err := store.Put(&Snapshot{
		AccountID: "act_1", Date: "2026-08-30", Hour: 9,
		Status: StatusFailed, Attempts: 3,
		Error: &SnapError{Type: "auth", Message: "token expired"},
	})
	if err != nil {
		t.Fatal(err)
	}
	err = store.Put(&Snapshot{
		AccountID: "act_1", Date: "2026-08-30", Hour: 11,
		Status: StatusCollecting, Attempts: 1,
		NextTryAt: time.Date(2026, 8, 30, 12, 30, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatal(err)
	}

	_, verdict, err := reader.Dataset("act_1", "2026-08-30", []int{11, 9})
	if err != nil {
		t.Fatal(err)
	}
	if verdict.Status != DatasetFailed {
		t.Fatalf("expected failed from hour 9, got %s", verdict.Status)
	}
	if verdict.Diagnostics == nil || verdict.Diagnostics.Hour != 9 || verdict.Diagnostics.Attempts != 3 {
		t.Fatalf("diagnostics should come from hour 9, got %+v", verdict.Diagnostics)
	}
	if verdict.Diagnostics.Error == nil || verdict.Diagnostics.Error.Type != "auth" {
		t.Fatalf("diagnostics should carry the snapshot error, got %+v", verdict.Diagnostics.Error)
	}
}

func TestDatasetCollectingHour(t *testing.T) {
	store, reader := seedStore(t)
	err := store.Put(&Snapshot{
		AccountID: "act_1", Date: "2026-08-30", Hour: 10,
		Status: StatusCollecting, Attempts: 2,
		NextTryAt: time.Date(2026, 8, 30, 11, 40, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatal(err)
	}

	_, verdict, err := reader.Dataset("act_1", "2026-08-30", []int{10})
	if err != nil {
		t.Fatal(err)
	}
	if verdict.Status != DatasetCollecting {
		t.Fatalf("expected collecting, got %s", verdict.Status)
	}
	if verdict.Diagnostics.NextTryAt.IsZero() {
		t.Fatal("diagnostics should surface the retry timing")
	}
}

func TestSumReadySpend(t *testing.T) {
	store, reader := seedStore(t)
	putReady(t, store, 10, StatusReady, []EntityRow{{EntityID: "e1", Spend: 4}})
	putReady(t, store, 11, StatusReady, []EntityRow{{EntityID: "e2", Spend: 2.5}})

	total, verdict, err := reader.SumReadySpend("act_1", "2026-08-30", []int{10, 11})
	if err != nil {
		t.Fatal(err)
	}
	if verdict.Status != DatasetReady || total != 6.5 {
		t.Fatalf("expected 6.5 ready spend, got %v (%s)", total, verdict.Status)
	}

	if _, verdict, err = reader.SumReadySpend("act_1", "2026-08-30", []int{10, 12}); err != nil {
		t.Fatal(err)
	} else if verdict.Status != DatasetMissing {
		t.Fatalf("expected missing verdict, got %s", verdict.Status)
	}
}
