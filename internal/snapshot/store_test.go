package snapshot

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestStoreGetNeverAttempted(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	snap, err := store.Get("act_1", "2026-08-30", 14)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if snap != nil {
		t.Fatalf("expected nil for a never-attempted hour, got %+v", snap)
	}
}

func TestStorePutGetRoundtrip(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	in := &Snapshot{
		AccountID:  "act_1",
		Date:       "2026-08-30",
		Hour:       14,
		Status:     StatusReady,
		Attempts:   2,
		LastTryAt:  time.Date(2026, 8, 30, 15, 10, 0, 0, time.UTC),
		DeadlineAt: time.Date(2026, 8, 30, 21, 0, 0, 0, time.UTC),
		Rows: []EntityRow{
			{EntityID: "e1", Name: "Adset One", ParentID: "c1", Spend: 12.5, PrimaryResults: 3, TotalResults: 3},
		},
	}
	if err := store.Put(in); err != nil {
		t.Fatalf("put failed: %v", err)
	}

	out, err := store.Get("act_1", "2026-08-30", 14)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if out == nil {
		t.Fatal("expected a snapshot")
	}
	if out.Status != StatusReady || out.Attempts != 2 || len(out.Rows) != 1 {
		t.Fatalf("roundtrip mismatch: %+v", out)
	}
	if out.Rows[0].Spend != 12.5 {
		t.Fatalf("row spend mismatch: %v", out.Rows[0].Spend)
	}
}

func TestStorePutKeepsBackupAndLeavesNoTempFile(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	if err != nil {
		t.Fatal(err)
	}

	snap := &Snapshot{AccountID: "act_1", Date: "2026-08-30", Hour: 9, Status: StatusCollecting, Attempts: 1}
	if err := store.Put(snap); err != nil {
		t.Fatal(err)
	}

	snap.Attempts = 2
	snap.Status = StatusReady
	if err := store.Put(snap); err != nil {
		t.Fatal(err)
	}

	final := filepath.Join(dir, "act_1", "2026-08-30", "09.json")
	if _, err := os.Stat(final); err != nil {
		t.Fatalf("final file missing: %v", err)
	}
	if _, err := os.Stat(final + ".bak"); err != nil {
		t.Fatalf("backup file missing: %v", err)
	}
	if _, err := os.Stat(final + ".tmp"); !os.IsNotExist(err) {
		t.Fatal("temp file should not survive a successful write")
	}

	out, err := store.Get("act_1", "2026-08-30", 9)
	if err != nil {
		t.Fatal(err)
	}
	if out.Attempts != 2 || out.Status != StatusReady {
		t.Fatalf("expected latest version, got %+v", out)
	}
}
