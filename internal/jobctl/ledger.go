package jobctl

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Run states stored in the ledger.
const (
	StateRunning   = "running"
	StateCommitted = "committed"
)

// ErrUnknownRun reports a Commit for an id the ledger never issued.
var ErrUnknownRun = errors.New("jobctl: unknown run")

// Run is one ledger row.
type Run struct {
	ID          string
	JobName     string
	Params      map[string]string
	State       string
	StartedAt   time.Time
	CommittedAt *time.Time
}

// Ledger is a Controller that records runs in a SQLite file.
type Ledger struct {
	conn *sql.DB
	now  func() time.Time
}

// OpenLedger opens (or creates) the ledger at path. ":memory:" works for tests.
func OpenLedger(path string) (*Ledger, error) {
	dsn := ":memory:"
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("jobctl: create ledger directory: %w", err)
		}
		dsn = path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("jobctl: open ledger: %w", err)
	}
	// one writer; also keeps a :memory: database alive on a single connection
	conn.SetMaxOpenConns(1)

	l := &Ledger{conn: conn, now: time.Now}
	if err := l.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("jobctl: migrate: %w", err)
	}
	return l, nil
}

// Close closes the database.
func (l *Ledger) Close() error {
	return l.conn.Close()
}

func (l *Ledger) migrate() error {
	_, err := l.conn.Exec(`CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		job_name TEXT NOT NULL,
		params TEXT NOT NULL DEFAULT '{}',
		state TEXT NOT NULL,
		started_at INTEGER NOT NULL,
		committed_at INTEGER
	)`)
	if err != nil {
		return err
	}
	_, err = l.conn.Exec(`CREATE INDEX IF NOT EXISTS runs_job_started ON runs(job_name, started_at)`)
	return err
}

func (l *Ledger) Init(ctx context.Context, jobName string, params map[string]string) (string, error) {
	p, err := json.Marshal(params)
	if err != nil {
		return "", fmt.Errorf("jobctl: encode params: %w", err)
	}
	id := NewRunID()
	_, err = l.conn.ExecContext(ctx,
		`INSERT INTO runs (id, job_name, params, state, started_at) VALUES (?, ?, ?, ?, ?)`,
		id, jobName, string(p), StateRunning, l.now().UnixMilli())
	if err != nil {
		return "", fmt.Errorf("jobctl: insert run: %w", err)
	}
	return id, nil
}

func (l *Ledger) Commit(ctx context.Context, runID string) error {
	res, err := l.conn.ExecContext(ctx,
		`UPDATE runs SET state = ?, committed_at = ? WHERE id = ? AND state = ?`,
		StateCommitted, l.now().UnixMilli(), runID, StateRunning)
	if err != nil {
		return fmt.Errorf("jobctl: commit run %s: %w", runID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("jobctl: commit run %s: %w", runID, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrUnknownRun, runID)
	}
	return nil
}

// Runs returns the most recent runs of jobName (all jobs when empty), newest first.
func (l *Ledger) Runs(ctx context.Context, jobName string, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	q := `SELECT id, job_name, params, state, started_at, committed_at FROM runs`
	args := []any{}
	if jobName != "" {
		q += ` WHERE job_name = ?`
		args = append(args, jobName)
	}
	q += ` ORDER BY started_at DESC, rowid DESC LIMIT ?`
	args = append(args, limit)

	rows, err := l.conn.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("jobctl: query runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var (
			r         Run
			params    string
			started   int64
			committed sql.NullInt64
		)
		if err := rows.Scan(&r.ID, &r.JobName, &params, &r.State, &started, &committed); err != nil {
			return nil, fmt.Errorf("jobctl: scan run: %w", err)
		}
		if err := json.Unmarshal([]byte(params), &r.Params); err != nil {
			return nil, fmt.Errorf("jobctl: decode params of %s: %w", r.ID, err)
		}
		r.StartedAt = time.UnixMilli(started).UTC()
		if committed.Valid {
			t := time.UnixMilli(committed.Int64).UTC()
			r.CommittedAt = &t
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
