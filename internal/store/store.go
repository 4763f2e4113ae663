// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package store persists runs, per-project entries and model replies in a
// SQLite database. It journals every entry as soon as it completes, answers
// resume lookups and backs the model response cache.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/project-catalogue/pkg/types"
)

// DBFile is the database file name inside the output directory.
const DBFile = "catalogue.db"

// Store wraps the catalogue database.
type Store struct {
	db *sql.DB

	// now is the clock used for timestamps. Tests replace it.
	now func() time.Time
}

// Open opens or creates dir/catalogue.db and its schema.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	dbPath := filepath.Join(dir, DBFile)
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// One connection serialises writers.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, now: func() time.Time { return time.Now().UTC() }}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			started_at TEXT NOT NULL,
			finished_at TEXT,
			input TEXT,
			total INTEGER NOT NULL DEFAULT 0,
			succeeded INTEGER NOT NULL DEFAULT 0,
			failed INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS entries (
			run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			position INTEGER NOT NULL,
			project_id TEXT NOT NULL,
			programme TEXT,
			status TEXT NOT NULL,
			reason TEXT,
			message TEXT,
			problems TEXT,
			attempts INTEGER,
			fields TEXT,
			prompt_hash TEXT,
			updated_at TEXT NOT NULL,
			PRIMARY KEY (run_id, project_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_entries_position ON entries(run_id, position)`,
		`CREATE TABLE IF NOT EXISTS latest (
			project_id TEXT PRIMARY KEY,
			run_id TEXT NOT NULL,
			programme TEXT,
			fields TEXT NOT NULL,
			prompt_hash TEXT,
			updated_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS responses (
			prompt_hash TEXT NOT NULL,
			model TEXT NOT NULL,
			response TEXT NOT NULL,
			created_at TEXT NOT NULL,
			PRIMARY KEY (prompt_hash, model)
		)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// Run describes one recorded pipeline run.
type Run struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time
	Input      string
	Total      int
	Succeeded  int
	Failed     int
}

// BeginRun records the start of a run over total identifiers read from input
// and returns its id.
func (s *Store) BeginRun(ctx context.Context, input string, total int) (string, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, started_at, input, total) VALUES (?, ?, ?, ?)`,
		id, s.stamp(), input, total,
	)
	if err != nil {
		return "", fmt.Errorf("recording run: %w", err)
	}
	return id, nil
}

// FinishRun records the outcome counts of a run.
func (s *Store) FinishRun(ctx context.Context, runID string, succeeded, failed int) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET finished_at = ?, succeeded = ?, failed = ? WHERE id = ?`,
		s.stamp(), succeeded, failed, runID,
	)
	if err != nil {
		return fmt.Errorf("finishing run %s: %w", runID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("finishing run %s: no such run", runID)
	}
	return nil
}

// Runs lists recorded runs, newest first.
func (s *Store) Runs(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, started_at, COALESCE(finished_at, ''), COALESCE(input, ''), total, succeeded, failed
		 FROM runs ORDER BY started_at DESC, rowid DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			r                 Run
			started, finished string
		)
		if err := rows.Scan(&r.ID, &started, &finished, &r.Input, &r.Total, &r.Succeeded, &r.Failed); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		r.StartedAt, _ = time.Parse(time.RFC3339Nano, started)
		if finished != "" {
			r.FinishedAt, _ = time.Parse(time.RFC3339Nano, finished)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// LatestRun returns the id of the most recently started run.
func (s *Store) LatestRun(ctx context.Context) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM runs ORDER BY started_at DESC, rowid DESC LIMIT 1`).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", errors.New("no runs recorded")
	}
	if err != nil {
		return "", fmt.Errorf("finding latest run: %w", err)
	}
	return id, nil
}

// Journal returns a sink that records entries of runID as they complete.
func (s *Store) Journal(runID string) *Journal {
	return &Journal{store: s, runID: runID}
}

// Journal writes completed entries of one run. It satisfies the aggregator's
// Sink interface.
type Journal struct {
	store *Store
	runID string
}

// RunID returns the run the journal writes to.
func (j *Journal) RunID() string { return j.runID }

// Flush upserts entry at position. Successful entries also replace the
// project's latest result.
func (j *Journal) Flush(ctx context.Context, position int, entry types.Entry) error {
	var (
		reason, message string
		problems        []byte
		attempts        int
		fields          []byte
		err             error
	)
	if entry.Failure != nil {
		reason = entry.Failure.Reason()
		message = entry.Failure.Message
		attempts = entry.Failure.Attempts
		if problems, err = json.Marshal(entry.Failure.Problems); err != nil {
			return fmt.Errorf("encoding problems: %w", err)
		}
	}
	if entry.Result != nil {
		if fields, err = json.Marshal(entry.Result.Fields); err != nil {
			return fmt.Errorf("encoding fields: %w", err)
		}
	}
	now := j.store.stamp()

	tx, err := j.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO entries (run_id, position, project_id, programme, status, reason, message, problems, attempts, fields, prompt_hash, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(run_id, project_id) DO UPDATE SET
			position=excluded.position, programme=excluded.programme, status=excluded.status,
			reason=excluded.reason, message=excluded.message, problems=excluded.problems,
			attempts=excluded.attempts, fields=excluded.fields, prompt_hash=excluded.prompt_hash,
			updated_at=excluded.updated_at`,
		j.runID, position, string(entry.ProjectID), string(entry.Programme), string(entry.Status),
		reason, message, nullable(problems), attempts, nullable(fields), entry.PromptHash, now,
	)
	if err != nil {
		return fmt.Errorf("journaling project %s: %w", entry.ProjectID, err)
	}

	if entry.OK() {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO latest (project_id, run_id, programme, fields, prompt_hash, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?)
			 ON CONFLICT(project_id) DO UPDATE SET
				run_id=excluded.run_id, programme=excluded.programme, fields=excluded.fields,
				prompt_hash=excluded.prompt_hash, updated_at=excluded.updated_at`,
			string(entry.ProjectID), j.runID, string(entry.Programme), string(fields), entry.PromptHash, now,
		)
		if err != nil {
			return fmt.Errorf("updating latest result of %s: %w", entry.ProjectID, err)
		}
	}
	return tx.Commit()
}

// Lookup returns the latest successful entry of id, for resuming.
func (s *Store) Lookup(ctx context.Context, id types.ProjectID) (types.Entry, bool, error) {
	var programme, fields, hash string
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(programme, ''), fields, COALESCE(prompt_hash, '') FROM latest WHERE project_id = ?`,
		string(id),
	).Scan(&programme, &fields, &hash)
	if errors.Is(err, sql.ErrNoRows) {
		return types.Entry{}, false, nil
	}
	if err != nil {
		return types.Entry{}, false, fmt.Errorf("looking up project %s: %w", id, err)
	}

	values, err := decodeFields([]byte(fields))
	if err != nil {
		return types.Entry{}, false, fmt.Errorf("decoding stored result of %s: %w", id, err)
	}
	result := types.ValidatedResult{ProjectID: id, Fields: values}
	return types.Succeeded(types.Programme(programme), result, hash), true, nil
}

// Export returns the entries of runID in batch order.
func (s *Store) Export(ctx context.Context, runID string) ([]types.Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT project_id, COALESCE(programme, ''), status, COALESCE(reason, ''), COALESCE(message, ''),
			problems, COALESCE(attempts, 0), fields, COALESCE(prompt_hash, '')
		 FROM entries WHERE run_id = ? ORDER BY position`, runID)
	if err != nil {
		return nil, fmt.Errorf("exporting run %s: %w", runID, err)
	}
	defer rows.Close()

	var entries []types.Entry
	for rows.Next() {
		var (
			id, programme, status, reason, message, hash string
			problems, fields                             sql.NullString
			attempts                                     int
		)
		if err := rows.Scan(&id, &programme, &status, &reason, &message, &problems, &attempts, &fields, &hash); err != nil {
			return nil, fmt.Errorf("scanning entry: %w", err)
		}

		entry := types.Entry{
			ProjectID:  types.ProjectID(id),
			Programme:  types.Programme(programme),
			Status:     types.Status(status),
			PromptHash: hash,
		}
		if fields.Valid {
			values, err := decodeFields([]byte(fields.String))
			if err != nil {
				return nil, fmt.Errorf("decoding entry %s: %w", id, err)
			}
			entry.Result = &types.ValidatedResult{ProjectID: entry.ProjectID, Fields: values}
		}
		if entry.Status != types.StatusOK {
			f := &types.Failure{Kind: types.Kind(reason), Message: message, Attempts: attempts}
			if problems.Valid {
				if err := json.Unmarshal([]byte(problems.String), &f.Problems); err != nil {
					return nil, fmt.Errorf("decoding problems of %s: %w", id, err)
				}
			}
			entry.Failure = f
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		var exists int
		if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM runs WHERE id = ?`, runID).Scan(&exists); err != nil {
			return nil, fmt.Errorf("checking run %s: %w", runID, err)
		}
		if exists == 0 {
			return nil, fmt.Errorf("run %s not found", runID)
		}
	}
	return entries, nil
}

// ExportLatest returns the latest successful entry of every project across
// all runs, a later run replacing an earlier one. Entries follow the order of
// the runs that produced them, then batch order.
func (s *Store) ExportLatest(ctx context.Context) ([]types.Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT l.project_id, COALESCE(l.programme, ''), l.fields, COALESCE(l.prompt_hash, '')
		 FROM latest l
		 JOIN runs r ON r.id = l.run_id
		 LEFT JOIN entries e ON e.run_id = l.run_id AND e.project_id = l.project_id
		 ORDER BY r.rowid, COALESCE(e.position, 0), l.project_id`)
	if err != nil {
		return nil, fmt.Errorf("exporting latest results: %w", err)
	}
	defer rows.Close()

	var entries []types.Entry
	for rows.Next() {
		var id, programme, fields, hash string
		if err := rows.Scan(&id, &programme, &fields, &hash); err != nil {
			return nil, fmt.Errorf("scanning latest result: %w", err)
		}
		values, err := decodeFields([]byte(fields))
		if err != nil {
			return nil, fmt.Errorf("decoding latest result of %s: %w", id, err)
		}
		pid := types.ProjectID(id)
		entries = append(entries, types.Succeeded(types.Programme(programme), types.ValidatedResult{ProjectID: pid, Fields: values}, hash))
	}
	return entries, rows.Err()
}

// CachedResponse returns the stored reply of model to the prompt with hash.
func (s *Store) CachedResponse(ctx context.Context, promptHash, model string) (string, bool, error) {
	var response string
	err := s.db.QueryRowContext(ctx,
		`SELECT response FROM responses WHERE prompt_hash = ? AND model = ?`, promptHash, model,
	).Scan(&response)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("reading cached response: %w", err)
	}
	return response, true, nil
}

// StoreResponse caches the reply of model to the prompt with hash.
func (s *Store) StoreResponse(ctx context.Context, promptHash, model, response string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO responses (prompt_hash, model, response, created_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(prompt_hash, model) DO UPDATE SET response=excluded.response, created_at=excluded.created_at`,
		promptHash, model, response, s.stamp(),
	)
	if err != nil {
		return fmt.Errorf("caching response: %w", err)
	}
	return nil
}

func (s *Store) stamp() string {
	return s.now().Format(time.RFC3339Nano)
}

func nullable(b []byte) any {
	if b == nil {
		return nil
	}
	return string(b)
}
