package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound is returned when a requested entity doesn't exist
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned when trying to create a duplicate entity
	ErrAlreadyExists = errors.New("already exists")
)

// DefaultListLimit caps ListRuns when no limit is given.
const DefaultListLimit = 10

// SQLiteStorage implements the Storage interface using SQLite
type SQLiteStorage struct {
	db *sql.DB
}

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(1) // SQLite benefits from single writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// NewSQLiteStorage creates a new SQLite storage instance
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Apply migrations
	if err := ApplyMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// BeginTx starts a new transaction
func (s *SQLiteStorage) BeginTx(ctx context.Context) (Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &sqliteTx{tx: tx}, nil
}

// querier is an interface that both *sql.DB and *sql.Tx implement
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// sqliteTx wraps a SQL transaction
type sqliteTx struct {
	tx *sql.Tx
}

func (t *sqliteTx) Commit() error {
	return t.tx.Commit()
}

func (t *sqliteTx) Rollback() error {
	return t.tx.Rollback()
}

// Time columns hold unix nanoseconds; zero means unset.

func toUnix(t time.Time) sql.NullInt64 {
	if t.IsZero() {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixNano(), Valid: true}
}

func fromUnix(v sql.NullInt64) time.Time {
	if !v.Valid {
		return time.Time{}
	}
	return time.Unix(0, v.Int64)
}

// Run operations

func startRunWithQuerier(ctx context.Context, q querier, run *Run) error {
	if run.ID == "" {
		return errors.New("run id cannot be empty")
	}
	if run.Status == "" {
		run.Status = StatusRunning
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}

	query := `
		INSERT INTO runs (id, project_root, status, incremental, message, started_at, finished_at, index_path, checksum)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`
	result, err := q.ExecContext(ctx, query,
		run.ID, run.ProjectRoot, string(run.Status), run.Incremental, run.Message,
		toUnix(run.StartedAt), toUnix(run.FinishedAt), run.IndexPath, run.Checksum)
	if err != nil {
		return fmt.Errorf("failed to start run: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("run %s: %w", run.ID, ErrAlreadyExists)
	}
	return nil
}

func finishRunWithQuerier(ctx context.Context, q querier, runID string, res RunResult) error {
	if res.FinishedAt.IsZero() {
		res.FinishedAt = time.Now()
	}
	query := `
		UPDATE runs
		SET status = ?, finished_at = ?, message = ?,
		    index_path = COALESCE(NULLIF(?, ''), index_path),
		    checksum = COALESCE(NULLIF(?, ''), checksum)
		WHERE id = ?
	`
	result, err := q.ExecContext(ctx, query,
		string(res.Status), toUnix(res.FinishedAt), res.Message, res.IndexPath, res.Checksum, runID)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("run %s: %w", runID, ErrNotFound)
	}
	return nil
}

const runColumns = `id, project_root, status, incremental, COALESCE(message, ''),
	started_at, finished_at, COALESCE(index_path, ''), COALESCE(checksum, '')`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row rowScanner) (*Run, error) {
	var (
		run      Run
		status   string
		started  sql.NullInt64
		finished sql.NullInt64
	)
	err := row.Scan(&run.ID, &run.ProjectRoot, &status, &run.Incremental, &run.Message,
		&started, &finished, &run.IndexPath, &run.Checksum)
	if err != nil {
		return nil, err
	}
	run.Status = RunStatus(status)
	run.StartedAt = fromUnix(started)
	run.FinishedAt = fromUnix(finished)
	return &run, nil
}

func queryOneRun(ctx context.Context, q querier, query string, args ...interface{}) (*Run, error) {
	run, err := scanRun(q.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

func getRunWithQuerier(ctx context.Context, q querier, runID string) (*Run, error) {
	return queryOneRun(ctx, q, "SELECT "+runColumns+" FROM runs WHERE id = ?", runID)
}

func latestRunWithQuerier(ctx context.Context, q querier, projectRoot string) (*Run, error) {
	return queryOneRun(ctx, q,
		"SELECT "+runColumns+" FROM runs WHERE project_root = ? ORDER BY seq DESC LIMIT 1", projectRoot)
}

func latestRunWithStatusWithQuerier(ctx context.Context, q querier, projectRoot string, status RunStatus) (*Run, error) {
	return queryOneRun(ctx, q,
		"SELECT "+runColumns+" FROM runs WHERE project_root = ? AND status = ? ORDER BY seq DESC LIMIT 1",
		projectRoot, string(status))
}

func listRunsWithQuerier(ctx context.Context, q querier, projectRoot string, limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	rows, err := q.QueryContext(ctx,
		"SELECT "+runColumns+" FROM runs WHERE project_root = ? ORDER BY seq DESC LIMIT ?", projectRoot, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Event operations

func appendEventWithQuerier(ctx context.Context, q querier, event *Event) error {
	if event.Time.IsZero() {
		event.Time = time.Now()
	}
	query := `
		INSERT INTO events (run_id, time, source, action, level, adapter, message, path)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	result, err := q.ExecContext(ctx, query,
		event.RunID, toUnix(event.Time), event.Source, event.Action,
		event.Level, event.Adapter, event.Message, event.Path)
	if err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	event.ID = id
	return nil
}

func listEventsWithQuerier(ctx context.Context, q querier, runID string) ([]*Event, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, run_id, time, source, action,
		       COALESCE(level, ''), COALESCE(adapter, ''), COALESCE(message, ''), COALESCE(path, '')
		FROM events WHERE run_id = ? ORDER BY id
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var events []*Event
	for rows.Next() {
		var (
			e  Event
			ts sql.NullInt64
		)
		if err := rows.Scan(&e.ID, &e.RunID, &ts, &e.Source, &e.Action, &e.Level, &e.Adapter, &e.Message, &e.Path); err != nil {
			return nil, err
		}
		e.Time = fromUnix(ts)
		events = append(events, &e)
	}
	return events, rows.Err()
}

// Status operations

func getStatusWithQuerier(ctx context.Context, q querier, projectRoot string) (*ProjectStatus, error) {
	status := &ProjectStatus{ProjectRoot: projectRoot}

	rows, err := q.QueryContext(ctx,
		"SELECT status, COUNT(*) FROM runs WHERE project_root = ? GROUP BY status", projectRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to count runs: %w", err)
	}
	for rows.Next() {
		var (
			name  string
			count int
		)
		if err := rows.Scan(&name, &count); err != nil {
			_ = rows.Close()
			return nil, err
		}
		status.TotalRuns += count
		switch RunStatus(name) {
		case StatusComplete:
			status.CompleteRuns = count
		case StatusFailed:
			status.FailedRuns = count
		case StatusSkipped:
			status.SkippedRuns = count
		}
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	if status.TotalRuns == 0 {
		return status, nil
	}

	lookups := []struct {
		dst    **Run
		status RunStatus
	}{
		{&status.LastSuccessful, StatusComplete},
		{&status.LastFailed, StatusFailed},
	}
	if status.LastRun, err = latestRunWithQuerier(ctx, q, projectRoot); err != nil {
		return nil, err
	}
	for _, l := range lookups {
		run, err := latestRunWithStatusWithQuerier(ctx, q, projectRoot, l.status)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return nil, err
		}
		*l.dst = run
	}
	return status, nil
}

// SQLiteStorage methods

func (s *SQLiteStorage) StartRun(ctx context.Context, run *Run) error {
	return startRunWithQuerier(ctx, s.db, run)
}

func (s *SQLiteStorage) FinishRun(ctx context.Context, runID string, result RunResult) error {
	return finishRunWithQuerier(ctx, s.db, runID, result)
}

func (s *SQLiteStorage) GetRun(ctx context.Context, runID string) (*Run, error) {
	return getRunWithQuerier(ctx, s.db, runID)
}

func (s *SQLiteStorage) LatestRun(ctx context.Context, projectRoot string) (*Run, error) {
	return latestRunWithQuerier(ctx, s.db, projectRoot)
}

func (s *SQLiteStorage) LatestRunWithStatus(ctx context.Context, projectRoot string, status RunStatus) (*Run, error) {
	return latestRunWithStatusWithQuerier(ctx, s.db, projectRoot, status)
}

func (s *SQLiteStorage) ListRuns(ctx context.Context, projectRoot string, limit int) ([]*Run, error) {
	return listRunsWithQuerier(ctx, s.db, projectRoot, limit)
}

func (s *SQLiteStorage) AppendEvent(ctx context.Context, event *Event) error {
	return appendEventWithQuerier(ctx, s.db, event)
}

func (s *SQLiteStorage) ListEvents(ctx context.Context, runID string) ([]*Event, error) {
	return listEventsWithQuerier(ctx, s.db, runID)
}

func (s *SQLiteStorage) GetStatus(ctx context.Context, projectRoot string) (*ProjectStatus, error) {
	return getStatusWithQuerier(ctx, s.db, projectRoot)
}

// sqliteTx methods

func (t *sqliteTx) StartRun(ctx context.Context, run *Run) error {
	return startRunWithQuerier(ctx, t.tx, run)
}

func (t *sqliteTx) FinishRun(ctx context.Context, runID string, result RunResult) error {
	return finishRunWithQuerier(ctx, t.tx, runID, result)
}

func (t *sqliteTx) GetRun(ctx context.Context, runID string) (*Run, error) {
	return getRunWithQuerier(ctx, t.tx, runID)
}

func (t *sqliteTx) LatestRun(ctx context.Context, projectRoot string) (*Run, error) {
	return latestRunWithQuerier(ctx, t.tx, projectRoot)
}

func (t *sqliteTx) LatestRunWithStatus(ctx context.Context, projectRoot string, status RunStatus) (*Run, error) {
	return latestRunWithStatusWithQuerier(ctx, t.tx, projectRoot, status)
}

func (t *sqliteTx) ListRuns(ctx context.Context, projectRoot string, limit int) ([]*Run, error) {
	return listRunsWithQuerier(ctx, t.tx, projectRoot, limit)
}

func (t *sqliteTx) AppendEvent(ctx context.Context, event *Event) error {
	return appendEventWithQuerier(ctx, t.tx, event)
}

func (t *sqliteTx) ListEvents(ctx context.Context, runID string) ([]*Event, error) {
	return listEventsWithQuerier(ctx, t.tx, runID)
}

func (t *sqliteTx) GetStatus(ctx context.Context, projectRoot string) (*ProjectStatus, error) {
	return getStatusWithQuerier(ctx, t.tx, projectRoot)
}

func (t *sqliteTx) Close() error {
	// Transactions don't close the underlying connection
	return nil
}

func (t *sqliteTx) BeginTx(ctx context.Context) (Tx, error) {
	// SQLite does not support true nested transactions
	return nil, errors.New("nested transactions not supported")
}

var (
	_ Storage = (*SQLiteStorage)(nil)
	_ Tx      = (*sqliteTx)(nil)
)
