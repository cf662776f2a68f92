package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // pure-Go SQLite driver (no CGO required)
)

var migrations = []struct {
	version int
	sql     string
}{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_versions (
    version     INTEGER PRIMARY KEY,
    applied_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS dispatcher_weights (
    id          INTEGER PRIMARY KEY CHECK (id = 1),
    historical  REAL NOT NULL,
    performance REAL NOT NULL,
    context     REAL NOT NULL,
    reliability REAL NOT NULL,
    updated_at  DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS tool_health (
    tool_id              TEXT PRIMARY KEY,
    successes            INTEGER NOT NULL DEFAULT 0,
    failures             INTEGER NOT NULL DEFAULT 0,
    consecutive_failures INTEGER NOT NULL DEFAULT 0,
    last_success         DATETIME,
    offline_until        DATETIME,
    reliability          REAL NOT NULL DEFAULT 1.0,
    updated_at           DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS trajectories (
    task_id     TEXT PRIMARY KEY,
    description TEXT NOT NULL DEFAULT '',
    status      TEXT NOT NULL,
    document    BLOB NOT NULL,
    started_at  DATETIME NOT NULL,
    ended_at    DATETIME,
    archived_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_trajectories_started_at ON trajectories(started_at DESC);
`,
	},
}

type sqliteStore struct {
	db *sql.DB
}

// New opens (or creates) a SQLite database at path and runs all pending
// schema migrations. Pass ":memory:" for an in-memory store.
func New(path string) (Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite %q: %w", path, err)
	}

	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: enable WAL: %w", err)
	}
	if _, err := db.Exec(`PRAGMA foreign_keys=ON`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: enable foreign keys: %w", err)
	}

	s := &sqliteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: migrate: %w", err)
	}
	return s, nil
}

func (s *sqliteStore) migrate() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_versions (
        version    INTEGER PRIMARY KEY,
        applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
    )`)
	if err != nil {
		return fmt.Errorf("create schema_versions: %w", err)
	}

	for _, m := range migrations {
		var count int
		err := s.db.QueryRow(`SELECT COUNT(*) FROM schema_versions WHERE version = ?`, m.version).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %d: %w", m.version, err)
		}
		if count > 0 {
			continue
		}

		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("apply migration %d: %w", m.version, err)
		}
		if _, err := s.db.Exec(`INSERT INTO schema_versions(version) VALUES(?)`, m.version); err != nil {
			return fmt.Errorf("record migration %d: %w", m.version, err)
		}
	}
	return nil
}

func (s *sqliteStore) Close() error { return s.db.Close() }

func (s *sqliteStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *sqliteStore) SaveWeights(ctx context.Context, rec WeightsRecord) error {
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO dispatcher_weights(id, historical, performance, context, reliability, updated_at)
        VALUES(1,?,?,?,?,?)
        ON CONFLICT(id) DO UPDATE SET
            historical  = excluded.historical,
            performance = excluded.performance,
            context     = excluded.context,
            reliability = excluded.reliability,
            updated_at  = excluded.updated_at
    `, rec.Historical, rec.Performance, rec.Context, rec.Reliability, rec.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("save weights: %w", err)
	}
	return nil
}

func (s *sqliteStore) LoadWeights(ctx context.Context) (WeightsRecord, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT historical, performance, context, reliability, updated_at FROM dispatcher_weights WHERE id=1`)

	var rec WeightsRecord
	var updatedAt string
	err := row.Scan(&rec.Historical, &rec.Performance, &rec.Context, &rec.Reliability, &updatedAt)
	if err == sql.ErrNoRows {
		return WeightsRecord{}, false, nil
	}
	if err != nil {
		return WeightsRecord{}, false, fmt.Errorf("load weights: %w", err)
	}
	rec.UpdatedAt, _ = parseTime(updatedAt)
	return rec, true, nil
}

func (s *sqliteStore) SaveHealth(ctx context.Context, rec HealthRecord) error {
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO tool_health(tool_id, successes, failures, consecutive_failures, last_success, offline_until, reliability, updated_at)
        VALUES(?,?,?,?,?,?,?,?)
        ON CONFLICT(tool_id) DO UPDATE SET
            successes            = excluded.successes,
            failures             = excluded.failures,
            consecutive_failures = excluded.consecutive_failures,
            last_success         = excluded.last_success,
            offline_until        = excluded.offline_until,
            reliability          = excluded.reliability,
            updated_at           = excluded.updated_at
    `,
		rec.ToolID, rec.Successes, rec.Failures, rec.ConsecutiveFailures,
		nullableTime(rec.LastSuccess), nullableTime(rec.OfflineUntil),
		rec.Reliability, rec.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("save health %q: %w", rec.ToolID, err)
	}
	return nil
}

func (s *sqliteStore) LoadHealth(ctx context.Context, toolID string) (HealthRecord, bool, error) {
	row := s.db.QueryRowContext(ctx, `
        SELECT tool_id, successes, failures, consecutive_failures, last_success, offline_until, reliability, updated_at
        FROM tool_health WHERE tool_id=?
    `, toolID)

	rec, err := scanHealth(row)
	if err == sql.ErrNoRows {
		return HealthRecord{}, false, nil
	}
	if err != nil {
		return HealthRecord{}, false, fmt.Errorf("load health %q: %w", toolID, err)
	}
	return rec, true, nil
}

func (s *sqliteStore) ListHealth(ctx context.Context) ([]HealthRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT tool_id, successes, failures, consecutive_failures, last_success, offline_until, reliability, updated_at
        FROM tool_health ORDER BY tool_id ASC
    `)
	if err != nil {
		return nil, fmt.Errorf("list health: %w", err)
	}
	defer rows.Close()

	var result []HealthRecord
	for rows.Next() {
		rec, err := scanHealth(rows)
		if err != nil {
			return nil, fmt.Errorf("scan health: %w", err)
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanHealth(row rowScanner) (HealthRecord, error) {
	var rec HealthRecord
	var lastSuccess, offlineUntil sql.NullString
	var updatedAt string

	err := row.Scan(&rec.ToolID, &rec.Successes, &rec.Failures, &rec.ConsecutiveFailures,
		&lastSuccess, &offlineUntil, &rec.Reliability, &updatedAt)
	if err != nil {
		return HealthRecord{}, err
	}

	if lastSuccess.Valid {
		rec.LastSuccess, _ = parseTime(lastSuccess.String)
	}
	if offlineUntil.Valid {
		rec.OfflineUntil, _ = parseTime(offlineUntil.String)
	}
	rec.UpdatedAt, _ = parseTime(updatedAt)
	return rec, nil
}

func (s *sqliteStore) ArchiveTrajectory(ctx context.Context, rec TrajectoryRecord) error {
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO trajectories(task_id, description, status, document, started_at, ended_at)
        VALUES(?,?,?,?,?,?)
        ON CONFLICT(task_id) DO UPDATE SET
            description = excluded.description,
            status      = excluded.status,
            document    = excluded.document,
            ended_at    = excluded.ended_at
    `, rec.TaskID, rec.Description, rec.Status, rec.Document, rec.StartedAt.UTC(), nullableTime(rec.EndedAt))
	if err != nil {
		return fmt.Errorf("archive trajectory %q: %w", rec.TaskID, err)
	}
	return nil
}

func (s *sqliteStore) GetTrajectory(ctx context.Context, taskID string) (TrajectoryRecord, bool, error) {
	row := s.db.QueryRowContext(ctx, `
        SELECT task_id, description, status, document, started_at, ended_at
        FROM trajectories WHERE task_id=?
    `, taskID)

	rec, err := scanTrajectory(row)
	if err == sql.ErrNoRows {
		return TrajectoryRecord{}, false, nil
	}
	if err != nil {
		return TrajectoryRecord{}, false, fmt.Errorf("get trajectory %q: %w", taskID, err)
	}
	return rec, true, nil
}

func (s *sqliteStore) ListTrajectories(ctx context.Context, limit, offset int) ([]TrajectoryRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
        SELECT task_id, description, status, document, started_at, ended_at
        FROM trajectories ORDER BY started_at DESC LIMIT ? OFFSET ?
    `, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list trajectories: %w", err)
	}
	defer rows.Close()

	var result []TrajectoryRecord
	for rows.Next() {
		rec, err := scanTrajectory(rows)
		if err != nil {
			return nil, fmt.Errorf("scan trajectory: %w", err)
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}

func scanTrajectory(row rowScanner) (TrajectoryRecord, error) {
	var rec TrajectoryRecord
	var startedAt string
	var endedAt sql.NullString

	err := row.Scan(&rec.TaskID, &rec.Description, &rec.Status, &rec.Document, &startedAt, &endedAt)
	if err != nil {
		return TrajectoryRecord{}, err
	}

	rec.StartedAt, _ = parseTime(startedAt)
	if endedAt.Valid {
		rec.EndedAt, _ = parseTime(endedAt.String)
	}
	return rec, nil
}

func nullableTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}

// parseTime handles the datetime formats SQLite may hand back.
func parseTime(s string) (time.Time, error) {
	layouts := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02T15:04:05.999999999Z07:00",
		"2006-01-02 15:04:05.999999999Z07:00",
		"2006-01-02 15:04:05Z07:00",
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05",
	}
	for _, l := range layouts {
		if t, err := time.Parse(l, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse time %q", s)
}
