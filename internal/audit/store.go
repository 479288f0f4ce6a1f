package audit

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS decisions (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	ts              TEXT NOT NULL,
	operation_id    TEXT NOT NULL,
	surface         TEXT NOT NULL,
	direction       TEXT NOT NULL,
	provider        TEXT NOT NULL DEFAULT '',
	mode            TEXT NOT NULL,
	verdict         TEXT NOT NULL,
	classifications TEXT NOT NULL DEFAULT '',
	unreachable     INTEGER NOT NULL DEFAULT 0,
	latency_ms      INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_decisions_operation ON decisions(operation_id);
CREATE INDEX IF NOT EXISTS idx_decisions_ts ON decisions(ts);
`

// Store is a SQLite-backed index over decision records, used for fast
// lookup by operation. The JSONL log remains the source of truth; the
// store carries no hash chain.
type Store struct {
	db *sql.DB
}

// OpenStore opens (or creates) the SQLite decision store at path.
func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("audit: open store: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("audit: enable WAL: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("audit: create schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Insert persists one record.
func (s *Store) Insert(ctx context.Context, rec Record) error {
	unreachable := 0
	if rec.Unreachable {
		unreachable = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO decisions (ts, operation_id, surface, direction, provider, mode, verdict, classifications, unreachable, latency_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Timestamp, rec.OperationID, rec.Surface, rec.Direction, rec.Provider,
		rec.Mode, rec.Verdict, strings.Join(rec.Classifications, ","), unreachable, rec.LatencyMS)
	if err != nil {
		return fmt.Errorf("audit: insert record: %w", err)
	}
	return nil
}

// ByOperation returns all records for one operation id, oldest first.
// Request and response halves of an operation share the id, so this is
// the full decision history of one intercepted call.
func (s *Store) ByOperation(ctx context.Context, operationID string) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT ts, operation_id, surface, direction, provider, mode, verdict, classifications, unreachable, latency_ms
		 FROM decisions WHERE operation_id = ? ORDER BY id`, operationID)
	if err != nil {
		return nil, fmt.Errorf("audit: query by operation: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

// Recent returns the most recent records, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT ts, operation_id, surface, direction, provider, mode, verdict, classifications, unreachable, latency_ms
		 FROM decisions ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("audit: query recent: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func scanRecords(rows *sql.Rows) ([]Record, error) {
	var out []Record
	for rows.Next() {
		var rec Record
		var classifications string
		var unreachable int
		if err := rows.Scan(&rec.Timestamp, &rec.OperationID, &rec.Surface, &rec.Direction,
			&rec.Provider, &rec.Mode, &rec.Verdict, &classifications, &unreachable, &rec.LatencyMS); err != nil {
			return nil, fmt.Errorf("audit: scan record: %w", err)
		}
		if classifications != "" {
			rec.Classifications = strings.Split(classifications, ",")
		}
		rec.Unreachable = unreachable != 0
		out = append(out, rec)
	}
	return out, rows.Err()
}
