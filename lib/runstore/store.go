// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

// Package runstore persists pipeline run results in a local SQLite
// database.
//
// The orchestrator core is stateless across runs; the store is the
// optional history layer stacked on top of it. One row per run, one
// row per job instance. Step logs and instance bindings travel as CBOR
// blobs, with the step-log blob zstd-compressed — execution logs
// dominate the row size and compress well.
//
// The store is safe for concurrent use: connections come from a small
// fixed pool with WAL mode, so concurrent webhook runs can record
// while listings read.
package runstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/conveyor-ci/conveyor/lib/controller"
	"github.com/conveyor-ci/conveyor/lib/executor"
	"github.com/conveyor-ci/conveyor/lib/scheduler"
	"github.com/conveyor-ci/conveyor/lib/schema/workflow"
	"github.com/conveyor-ci/conveyor/lib/trigger"
)

// ErrNotFound is returned by GetRun for an unknown run ID.
var ErrNotFound = errors.New("runstore: run not found")

// poolSize is deliberately small: SQLite serializes writes regardless,
// and the store's read load is a listing endpoint, not a query engine.
const poolSize = 4

const schema = `
	CREATE TABLE IF NOT EXISTS runs (
		run_id      TEXT PRIMARY KEY,
		workflow    TEXT NOT NULL,
		event       TEXT NOT NULL,
		branch      TEXT,
		status      TEXT NOT NULL,
		started     INTEGER NOT NULL,
		duration_ms INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started);

	CREATE TABLE IF NOT EXISTS instances (
		run_id      TEXT NOT NULL,
		position    INTEGER NOT NULL,
		job         TEXT NOT NULL,
		name        TEXT NOT NULL,
		status      TEXT NOT NULL,
		failed_step TEXT,
		error       TEXT,
		duration_ms INTEGER NOT NULL,
		bindings    BLOB,
		steps       BLOB,
		PRIMARY KEY (run_id, position)
	);
`

// Store records and retrieves pipeline runs.
type Store struct {
	pool       *sqlitex.Pool
	logger     *slog.Logger
	path       string
	compressor *zstd.Encoder
	expander   *zstd.Decoder
}

// Open creates (or opens) the run store at path. Use ":memory:" for an
// in-memory store in tests. The caller must Close the store when done.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("runstore: path is required")
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	size := poolSize
	if path == ":memory:" {
		// Each in-memory connection is an independent database; a
		// pool of one keeps them coherent.
		size = 1
	}

	pool, err := sqlitex.NewPool(path, sqlitex.PoolOptions{
		PoolSize: size,
		PrepareConn: func(conn *sqlite.Conn) error {
			for _, pragma := range []string{
				"PRAGMA journal_mode=WAL",
				"PRAGMA synchronous=NORMAL",
				"PRAGMA busy_timeout=5000",
			} {
				if err := sqlitex.ExecuteTransient(conn, pragma, nil); err != nil {
					return fmt.Errorf("runstore: %s: %w", pragma, err)
				}
			}
			return sqlitex.ExecuteScript(conn, schema, nil)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("runstore: opening %s: %w", path, err)
	}

	compressor, err := zstd.NewWriter(nil)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("runstore: zstd encoder: %w", err)
	}
	expander, err := zstd.NewReader(nil)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("runstore: zstd decoder: %w", err)
	}

	logger.Info("run store opened", "path", path)
	return &Store{
		pool:       pool,
		logger:     logger,
		path:       path,
		compressor: compressor,
		expander:   expander,
	}, nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	s.compressor.Close()
	s.expander.Close()
	if err := s.pool.Close(); err != nil {
		return fmt.Errorf("runstore: closing %s: %w", s.path, err)
	}
	return nil
}

// RecordRun persists one run result with all of its instances, in a
// single transaction.
func (s *Store) RecordRun(ctx context.Context, result *controller.RunResult) (err error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("runstore: take: %w", err)
	}
	defer s.pool.Put(conn)

	defer sqlitex.Save(conn)(&err)

	err = sqlitex.Execute(conn,
		`INSERT INTO runs (run_id, workflow, event, branch, status, started, duration_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		&sqlitex.ExecOptions{Args: []any{
			result.RunID,
			result.Workflow,
			string(result.Event.Kind),
			result.Event.Branch,
			string(result.Status),
			result.Started.UnixNano(),
			result.Duration.Milliseconds(),
		}})
	if err != nil {
		return fmt.Errorf("runstore: inserting run %s: %w", result.RunID, err)
	}

	for position, instance := range result.Instances {
		bindingsBlob, steps, encodeErr := s.encodeInstance(instance)
		if encodeErr != nil {
			return encodeErr
		}
		err = sqlitex.Execute(conn,
			`INSERT INTO instances
			 (run_id, position, job, name, status, failed_step, error, duration_ms, bindings, steps)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			&sqlitex.ExecOptions{Args: []any{
				result.RunID,
				position,
				instance.JobName,
				instance.Instance,
				string(instance.Status),
				instance.FailedStep,
				instance.Error,
				instance.Duration.Milliseconds(),
				bindingsBlob,
				steps,
			}})
		if err != nil {
			return fmt.Errorf("runstore: inserting instance %q: %w", instance.Instance, err)
		}
	}
	return nil
}

// GetRun loads one run with its instances. Returns ErrNotFound for an
// unknown run ID.
func (s *Store) GetRun(ctx context.Context, runID string) (*controller.RunResult, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("runstore: take: %w", err)
	}
	defer s.pool.Put(conn)

	var result *controller.RunResult
	err = sqlitex.Execute(conn,
		`SELECT run_id, workflow, event, branch, status, started, duration_ms
		 FROM runs WHERE run_id = ?`,
		&sqlitex.ExecOptions{
			Args: []any{runID},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				result = &controller.RunResult{
					RunID:    stmt.ColumnText(0),
					Workflow: stmt.ColumnText(1),
					Event: trigger.Event{
						Kind:   workflow.EventKind(stmt.ColumnText(2)),
						Branch: stmt.ColumnText(3),
					},
					Status:   workflow.RunStatus(stmt.ColumnText(4)),
					Started:  time.Unix(0, stmt.ColumnInt64(5)),
					Duration: time.Duration(stmt.ColumnInt64(6)) * time.Millisecond,
				}
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("runstore: loading run %s: %w", runID, err)
	}
	if result == nil {
		return nil, ErrNotFound
	}

	err = sqlitex.Execute(conn,
		`SELECT job, name, status, failed_step, error, duration_ms, bindings, steps
		 FROM instances WHERE run_id = ? ORDER BY position`,
		&sqlitex.ExecOptions{
			Args: []any{runID},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				instance, decodeErr := s.decodeInstance(stmt)
				if decodeErr != nil {
					return decodeErr
				}
				result.Instances = append(result.Instances, instance)
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("runstore: loading instances of %s: %w", runID, err)
	}
	return result, nil
}

// RunSummary is one row of a run listing.
type RunSummary struct {
	RunID      string             `json:"run_id"`
	Workflow   string             `json:"workflow"`
	Event      workflow.EventKind `json:"event"`
	Branch     string             `json:"branch,omitempty"`
	Status     workflow.RunStatus `json:"status"`
	Started    time.Time          `json:"started"`
	DurationMS int64              `json:"duration_ms"`
}

// ListRuns returns the most recent runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("runstore: take: %w", err)
	}
	defer s.pool.Put(conn)

	var summaries []RunSummary
	err = sqlitex.Execute(conn,
		`SELECT run_id, workflow, event, branch, status, started, duration_ms
		 FROM runs ORDER BY started DESC LIMIT ?`,
		&sqlitex.ExecOptions{
			Args: []any{limit},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				summaries = append(summaries, RunSummary{
					RunID:      stmt.ColumnText(0),
					Workflow:   stmt.ColumnText(1),
					Event:      workflow.EventKind(stmt.ColumnText(2)),
					Branch:     stmt.ColumnText(3),
					Status:     workflow.RunStatus(stmt.ColumnText(4)),
					Started:    time.Unix(0, stmt.ColumnInt64(5)),
					DurationMS: stmt.ColumnInt64(6),
				})
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("runstore: listing runs: %w", err)
	}
	return summaries, nil
}

// encodeInstance serializes an instance's bindings (CBOR) and step log
// (CBOR, zstd-compressed).
func (s *Store) encodeInstance(instance scheduler.InstanceResult) (bindings, steps []byte, err error) {
	if len(instance.Bindings) > 0 {
		bindings, err = cbor.Marshal(instance.Bindings)
		if err != nil {
			return nil, nil, fmt.Errorf("runstore: encoding bindings: %w", err)
		}
	}
	if len(instance.Steps) > 0 {
		raw, err := cbor.Marshal(instance.Steps)
		if err != nil {
			return nil, nil, fmt.Errorf("runstore: encoding step log: %w", err)
		}
		steps = s.compressor.EncodeAll(raw, nil)
	}
	return bindings, steps, nil
}

// decodeInstance is the inverse of encodeInstance, reading one
// instances row.
func (s *Store) decodeInstance(stmt *sqlite.Stmt) (scheduler.InstanceResult, error) {
	instance := scheduler.InstanceResult{
		JobName:    stmt.ColumnText(0),
		Instance:   stmt.ColumnText(1),
		Status:     workflow.InstanceStatus(stmt.ColumnText(2)),
		FailedStep: stmt.ColumnText(3),
		Error:      stmt.ColumnText(4),
		Duration:   time.Duration(stmt.ColumnInt64(5)) * time.Millisecond,
	}

	if stmt.ColumnLen(6) > 0 {
		blob := make([]byte, stmt.ColumnLen(6))
		stmt.ColumnBytes(6, blob)
		if err := cbor.Unmarshal(blob, &instance.Bindings); err != nil {
			return instance, fmt.Errorf("runstore: decoding bindings: %w", err)
		}
	}
	if stmt.ColumnLen(7) > 0 {
		blob := make([]byte, stmt.ColumnLen(7))
		stmt.ColumnBytes(7, blob)
		raw, err := s.expander.DecodeAll(blob, nil)
		if err != nil {
			return instance, fmt.Errorf("runstore: decompressing step log: %w", err)
		}
		var steps []executor.StepLog
		if err := cbor.Unmarshal(raw, &steps); err != nil {
			return instance, fmt.Errorf("runstore: decoding step log: %w", err)
		}
		instance.Steps = steps
	}
	return instance, nil
}
