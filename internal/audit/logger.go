// Package audit keeps a durable record of every budget apply attempt in a
// dedicated SQLite database, so an operator can always answer "what did we
// submit, when, and did it stick".
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/sluicehq/sluice/internal/budget"
	_ "modernc.org/sqlite"
)

// Logger writes and queries apply audit entries.
type Logger struct {
	db *sql.DB
}

// New opens the audit SQLite database and creates the schema.
func New(dbPath string) (*Logger, error) {
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open audit db: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate audit db: %w", err)
	}
	return &Logger{db: db}, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS apply_log (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id     TEXT NOT NULL,
		plan_id    TEXT NOT NULL,
		account_id TEXT NOT NULL,
		entity_id  TEXT NOT NULL,
		old_cents  INTEGER NOT NULL,
		new_cents  INTEGER NOT NULL,
		outcome    TEXT NOT NULL,
		error      TEXT,
		created_at DATETIME NOT NULL
	)`)
	if err != nil {
		return err
	}
	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_apply_run ON apply_log(run_id)`)
	if err != nil {
		return err
	}
	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_apply_plan ON apply_log(plan_id, created_at)`)
	return err
}

// RecordApply inserts one audit entry. It implements budget.ApplyRecorder.
func (l *Logger) RecordApply(ctx context.Context, rec budget.ApplyRecord) error {
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO apply_log (run_id, plan_id, account_id, entity_id, old_cents, new_cents, outcome, error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.RunID, rec.PlanID, rec.AccountID, rec.EntityID,
		rec.OldCents, rec.NewCents, rec.Outcome, rec.Error, rec.At.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting apply record: %w", err)
	}
	return nil
}

// RunEntries returns all entries for one apply run in insertion order.
func (l *Logger) RunEntries(ctx context.Context, runID string) ([]budget.ApplyRecord, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT run_id, plan_id, account_id, entity_id, old_cents, new_cents, outcome, COALESCE(error, ''), created_at
		 FROM apply_log WHERE run_id = ? ORDER BY id`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying apply records: %w", err)
	}
	defer rows.Close()

	var entries []budget.ApplyRecord
	for rows.Next() {
		var rec budget.ApplyRecord
		var at string
		if err := rows.Scan(&rec.RunID, &rec.PlanID, &rec.AccountID, &rec.EntityID,
			&rec.OldCents, &rec.NewCents, &rec.Outcome, &rec.Error, &at); err != nil {
			return nil, fmt.Errorf("scanning apply record: %w", err)
		}
		if t, err := time.Parse(time.RFC3339, at); err == nil {
			rec.At = t
		}
		entries = append(entries, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating apply records: %w", err)
	}
	return entries, nil
}

// Close closes the underlying database.
func (l *Logger) Close() error {
	return l.db.Close()
}
