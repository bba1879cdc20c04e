// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

// Package resultlog writes a structured JSONL record of a pipeline
// run. Each line is an independent JSON object, making the log:
//
//   - Crash-safe: a kill mid-run preserves every completed entry. A
//     single JSON document would be truncated and unparseable.
//   - Streamable: an observer can tail the file for step-by-step
//     progress instead of waiting for completion.
//
// All methods are nil-safe no-ops, so callers that run without a
// result log carry no conditionals.
package resultlog

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/conveyor-ci/conveyor/lib/executor"
	"github.com/conveyor-ci/conveyor/lib/scheduler"
	"github.com/conveyor-ci/conveyor/lib/schema/workflow"
)

// Log appends JSONL entries to a file as a run progresses.
type Log struct {
	logger  *slog.Logger
	file    *os.File
	encoder *json.Encoder
}

// New creates a result log at the given path, truncating any existing
// content.
func New(path string, logger *slog.Logger) (*Log, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating result log %s: %w", path, err)
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Log{logger: logger, file: file, encoder: json.NewEncoder(file)}, nil
}

// Close flushes and closes the log file.
func (l *Log) Close() error {
	if l == nil {
		return nil
	}
	return l.file.Close()
}

// WriteStart records the beginning of a run.
func (l *Log) WriteStart(runID, workflowName string, instanceCount int) {
	if l == nil {
		return
	}
	l.write(startEntry{
		Type:      "start",
		RunID:     runID,
		Workflow:  workflowName,
		Instances: instanceCount,
	})
}

// WriteStep records one step's execution-log entry.
func (l *Log) WriteStep(instance string, entry executor.StepLog) {
	if l == nil {
		return
	}
	l.write(stepEntry{
		Type:       "step",
		Instance:   instance,
		Ordinal:    entry.Ordinal,
		Identity:   entry.Identity,
		Outcome:    entry.Outcome,
		DurationMS: entry.Duration.Milliseconds(),
		Error:      entry.Error,
	})
}

// WriteInstance records one instance's terminal status.
func (l *Log) WriteInstance(result scheduler.InstanceResult) {
	if l == nil {
		return
	}
	l.write(instanceEntry{
		Type:       "instance",
		Instance:   result.Instance,
		Status:     result.Status,
		FailedStep: result.FailedStep,
		DurationMS: result.Duration.Milliseconds(),
		Error:      result.Error,
	})
}

// WriteComplete records the aggregated run outcome. Always the final
// line.
func (l *Log) WriteComplete(status workflow.RunStatus, durationMS int64) {
	if l == nil {
		return
	}
	l.write(completeEntry{
		Type:       "complete",
		Status:     status,
		DurationMS: durationMS,
	})
}

func (l *Log) write(entry any) {
	if err := l.encoder.Encode(entry); err != nil {
		l.logger.Warn("failed to write result log entry", "error", err)
		return
	}
	// Sync after each line so partial results survive a crash and are
	// visible to tailing readers immediately.
	if err := l.file.Sync(); err != nil {
		l.logger.Warn("failed to sync result log", "error", err)
	}
}

// JSONL entry types. Separate structs per line type (rather than one
// with omitempty everywhere) keep the wire format explicit.

type startEntry struct {
	Type      string `json:"type"`
	RunID     string `json:"run_id"`
	Workflow  string `json:"workflow"`
	Instances int    `json:"instances"`
}

type stepEntry struct {
	Type       string               `json:"type"`
	Instance   string               `json:"instance"`
	Ordinal    int                  `json:"ordinal"`
	Identity   string               `json:"identity"`
	Outcome    workflow.StepOutcome `json:"outcome"`
	DurationMS int64                `json:"duration_ms"`
	Error      string               `json:"error,omitempty"`
}

type instanceEntry struct {
	Type       string                  `json:"type"`
	Instance   string                  `json:"instance"`
	Status     workflow.InstanceStatus `json:"status"`
	FailedStep string                  `json:"failed_step,omitempty"`
	DurationMS int64                   `json:"duration_ms"`
	Error      string                  `json:"error,omitempty"`
}

type completeEntry struct {
	Type       string             `json:"type"`
	Status     workflow.RunStatus `json:"status"`
	DurationMS int64              `json:"duration_ms"`
}
