// Package trend implements the complexity trend store (C12): a narrow
// record/query interface over a SQLite-backed table of complexity
// snapshots, grounded on the teacher's own sqlite wiring
// (internal/mcp/store.go) but scoped to the metric/value/time shape this
// spec names.
package trend

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/mattn/go-sqlite3"

	dserrors "github.com/dupesmith/dupesmith/internal/errors"
	"github.com/dupesmith/dupesmith/internal/model"
)

// Store persists complexity snapshots in a SQLite database opened in WAL
// mode for concurrent readers.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the trend database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL")
	if err != nil {
		return nil, dserrors.Wrap(dserrors.ExecutionError, err, "failed to open trend database")
	}
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS snapshots (
			file_path   TEXT NOT NULL,
			metric      TEXT NOT NULL,
			value       REAL NOT NULL,
			recorded_at DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_snapshots_file_time ON snapshots(file_path, recorded_at);
	`); err != nil {
		db.Close()
		return nil, dserrors.Wrap(dserrors.ExecutionError, err, "failed to initialize trend schema")
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record persists one complexity snapshot.
func (s *Store) Record(ctx context.Context, snap model.TrendSnapshot) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO snapshots (file_path, metric, value, recorded_at) VALUES (?, ?, ?, ?)`,
		snap.FilePath, snap.Metric, snap.Value, snap.RecordedAt,
	)
	if err != nil {
		return dserrors.Wrap(dserrors.ExecutionError, err, "failed to record trend snapshot")
	}
	return nil
}

// Query returns every snapshot for filePath recorded at or after since,
// ordered oldest-first.
func (s *Store) Query(ctx context.Context, filePath string, since time.Time) ([]model.TrendSnapshot, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT file_path, metric, value, recorded_at FROM snapshots
		 WHERE file_path = ? AND recorded_at >= ?
		 ORDER BY recorded_at ASC`,
		filePath, since,
	)
	if err != nil {
		return nil, dserrors.Wrap(dserrors.ExecutionError, err, "failed to query trend snapshots")
	}
	defer rows.Close()

	var snapshots []model.TrendSnapshot
	for rows.Next() {
		var snap model.TrendSnapshot
		if err := rows.Scan(&snap.FilePath, &snap.Metric, &snap.Value, &snap.RecordedAt); err != nil {
			return nil, dserrors.Wrap(dserrors.ExecutionError, err, "failed to scan trend snapshot row")
		}
		snapshots = append(snapshots, snap)
	}
	return snapshots, rows.Err()
}
