package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore is a file-backed implementation of [Store].
//
// Points are kept in a single table indexed by (name, ts). Timestamps are
// stored as Unix milliseconds. When retention is positive, every Record also
// deletes points older than the sample time minus retention.
type SQLiteStore struct {
	db        *sql.DB
	retention time.Duration
	logger    *slog.Logger
	hub       *hub
}

// NewSQLiteStore opens (or creates) the SQLite file at path and applies the
// schema. The caller must call Close when done.
func NewSQLiteStore(path string, retention time.Duration, logger *slog.Logger) (*SQLiteStore, error) {
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	// modernc.org/sqlite is pure Go and registers as "sqlite"
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// one writer at a time; sqlite serializes writes anyway
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	s := &SQLiteStore{
		db:        db,
		retention: retention,
		logger:    logger,
		hub:       newHub(),
	}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migration: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	const stmt = `
CREATE TABLE IF NOT EXISTS history (
    id    INTEGER PRIMARY KEY AUTOINCREMENT,
    ts    INTEGER NOT NULL,
    name  TEXT NOT NULL,
    value REAL NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_history_name_ts ON history(name, ts);
`
	if _, err := s.db.Exec(stmt); err != nil {
		return fmt.Errorf("create history table: %w", err)
	}
	s.logger.Debug("sqlite history schema applied")
	return nil
}

// Record stores all values of sample in a single transaction, prunes
// expired points and notifies subscribers.
func (s *SQLiteStore) Record(ctx context.Context, sample Sample) error {
	points := sample.Points()
	if len(points) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO history (ts, name, value) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	ts := sample.At.UnixMilli()
	for _, p := range points {
		if _, err := stmt.ExecContext(ctx, ts, p.Name, p.Value); err != nil {
			return fmt.Errorf("insert %s: %w", p.Name, err)
		}
	}

	var pruned int64
	if s.retention > 0 {
		cutoff := sample.At.Add(-s.retention).UnixMilli()
		res, err := tx.ExecContext(ctx, `DELETE FROM history WHERE ts < ?`, cutoff)
		if err != nil {
			return fmt.Errorf("prune history: %w", err)
		}
		pruned, _ = res.RowsAffected()
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	s.logger.Debug("history sample persisted",
		"points", len(points),
		"pruned", pruned,
	)
	s.hub.publish(points)
	return nil
}

// Query returns the points of name at or after since, oldest first.
func (s *SQLiteStore) Query(ctx context.Context, name string, since time.Time) ([]Point, error) {
	var from int64
	if !since.IsZero() {
		from = since.UnixMilli()
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT ts, value FROM history WHERE name = ? AND ts >= ? ORDER BY ts ASC, id ASC`,
		name, from)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	points := []Point{}
	for rows.Next() {
		var ts int64
		var value float64
		if err := rows.Scan(&ts, &value); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		points = append(points, Point{Name: name, Value: value, At: time.UnixMilli(ts).UTC()})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history rows: %w", err)
	}
	return points, nil
}

// Names returns the metric names that have history, sorted.
func (s *SQLiteStore) Names(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT name FROM history ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("query history names: %w", err)
	}
	defer func() { _ = rows.Close() }()

	names := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan history name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// Subscribe creates a new subscription for recorded points.
func (s *SQLiteStore) Subscribe() <-chan Point {
	return s.hub.subscribe()
}

// Unsubscribe removes a subscription and closes its channel.
func (s *SQLiteStore) Unsubscribe(ch <-chan Point) {
	s.hub.unsubscribe(ch)
}

// Close closes subscriber channels and the database.
func (s *SQLiteStore) Close() error {
	s.hub.close()
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
