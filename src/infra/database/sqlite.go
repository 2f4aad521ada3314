package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/contre95/csvinserter/src/features/ingesting"
	_ "github.com/mattn/go-sqlite3"
)

// SqliteHistory is a SQLite ledger of processed files. It implements ingesting.Recorder.
// Nothing is read back at startup; the ledger is only used for reporting.
type SqliteHistory struct {
	db *sql.DB
}

// NewSqliteHistory opens (or creates) the ledger at path.
func NewSqliteHistory(path string) (*SqliteHistory, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	// one writer, and keeps :memory: databases on a single connection
	db.SetMaxOpenConns(1)

	if err := createTables(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create history tables: %w", err)
	}

	return &SqliteHistory{db: db}, nil
}

func createTables(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS ingestions (
			id TEXT PRIMARY KEY,
			path TEXT NOT NULL,
			size INTEGER NOT NULL DEFAULT 0,
			outcome TEXT NOT NULL,
			error TEXT,
			disposition TEXT NOT NULL,
			destination TEXT,
			started_at TEXT NOT NULL,
			finished_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_ingestions_outcome ON ingestions(outcome);
	`)
	return err
}

// Record stores one processed file.
func (d *SqliteHistory) Record(ctx context.Context, rec ingesting.Record) error {
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO ingestions (id, path, size, outcome, error, disposition, destination, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.ID, rec.Path, rec.Size, rec.Outcome, rec.Error, rec.Disposition, rec.Destination,
		rec.StartedAt.Format(time.RFC3339Nano), rec.FinishedAt.Format(time.RFC3339Nano))
	return err
}

// Recent returns up to limit records, newest first.
func (d *SqliteHistory) Recent(ctx context.Context, limit int) ([]ingesting.Record, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT id, path, size, outcome, error, disposition, destination, started_at, finished_at
		FROM ingestions
		ORDER BY rowid DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []ingesting.Record{}
	for rows.Next() {
		var (
			rec                     ingesting.Record
			errMsg, destination     sql.NullString
			startedStr, finishedStr string
		)
		if err := rows.Scan(&rec.ID, &rec.Path, &rec.Size, &rec.Outcome, &errMsg, &rec.Disposition, &destination, &startedStr, &finishedStr); err != nil {
			return nil, err
		}
		rec.Error = errMsg.String
		rec.Destination = destination.String
		rec.StartedAt, _ = time.Parse(time.RFC3339Nano, startedStr)
		rec.FinishedAt, _ = time.Parse(time.RFC3339Nano, finishedStr)
		records = append(records, rec)
	}

	return records, rows.Err()
}

// Close closes the underlying database.
func (d *SqliteHistory) Close() error {
	return d.db.Close()
}
