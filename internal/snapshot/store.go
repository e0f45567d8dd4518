package snapshot

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Store persists snapshots as one JSON file per (account, date, hour) key.
// Writes go through a temp file, fsync, a backup of the previous version and
// an atomic rename, so readers never observe a torn file.
type Store struct {
	root string
}

// NewStore creates a Store rooted at dir, creating it if needed.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating snapshot dir: %w", err)
	}
	return &Store{root: dir}, nil
}

func (s *Store) path(accountID, date string, hour int) string {
	return filepath.Join(s.root, accountID, date, fmt.Sprintf("%02d.json", hour))
}

// Get reads the snapshot for the key, or (nil, nil) if collection was never
// attempted for that hour.
func (s *Store) Get(accountID, date string, hour int) (*Snapshot, error) {
	data, err := os.ReadFile(s.path(accountID, date, hour))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading snapshot: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decoding snapshot %s/%s/%02d: %w", accountID, date, hour, err)
	}
	return &snap, nil
}

// Put writes the snapshot atomically, keeping the previous version as a .bak
// file next to it.
func (s *Store) Put(snap *Snapshot) error {
	final := s.path(snap.AccountID, snap.Date, snap.Hour)
	if err := os.MkdirAll(filepath.Dir(final), 0o755); err != nil {
		return fmt.Errorf("creating snapshot dir: %w", err)
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}

	tmp := final + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("creating temp snapshot: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("writing temp snapshot: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("syncing temp snapshot: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("closing temp snapshot: %w", err)
	}

	// Keep the previous version around before the replace.
	if _, err := os.Stat(final); err == nil {
		if err := os.Rename(final, final+".bak"); err != nil {
			return fmt.Errorf("backing up snapshot: %w", err)
		}
	}

	if err := os.Rename(tmp, final); err != nil {
		return fmt.Errorf("replacing snapshot: %w", err)
	}
	return nil
}
