// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

// Package executor runs one job instance's ordered step sequence.
//
// Steps execute strictly in order on the instance's execution unit.
// The first failing step halts the sequence (fail-fast): remaining
// steps are skipped and never appear in the execution log. A step that
// exceeds its declared timeout is aborted and recorded as timed out,
// which halts the instance exactly like a failure.
//
// Cancellation is cooperative and observed between steps, never
// splitting one: an in-flight command is killed through its context,
// and the sequence stops at the step boundary. The executor never
// cancels anything outside its own instance.
package executor

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/conveyor-ci/conveyor/lib/matrix"
	"github.com/conveyor-ci/conveyor/lib/schema/workflow"
	"github.com/conveyor-ci/conveyor/lib/workflowdef"
)

// DefaultStepTimeout is used when a step does not declare its own
// timeout.
const DefaultStepTimeout = 5 * time.Minute

// CommandRunner executes an inline command body and reports its exit
// status. The production implementation is ShellRunner; tests inject
// fakes.
type CommandRunner interface {
	// RunCommand runs a (possibly multi-line) command body as a
	// single unit. Returns the exit code, or a non-nil error when
	// the command could not be run at all.
	RunCommand(ctx context.Context, command string, env map[string]string) (int, error)
}

// ActionRunner resolves and executes a reusable action reference. The
// reference is opaque to the orchestrator — resolution is an external
// collaborator's concern.
type ActionRunner interface {
	RunAction(ctx context.Context, reference string, bindings map[string]string) (int, error)
}

// StepLog is one execution-log entry. Entries exist only for steps
// that actually started: skipped steps after a fail-fast halt are
// absent entirely.
type StepLog struct {
	// Ordinal is the step's position in the instance's sequence,
	// starting at zero.
	Ordinal int `json:"ordinal"`

	// Identity is the step's display identity.
	Identity string `json:"identity"`

	// Started is the step's start time.
	Started time.Time `json:"started"`

	// Duration is how long the step ran.
	Duration time.Duration `json:"duration"`

	// Outcome is the recorded step outcome.
	Outcome workflow.StepOutcome `json:"outcome"`

	// Error describes the failure, when there is one.
	Error string `json:"error,omitempty"`
}

// Result is the terminal outcome of one instance's step sequence.
type Result struct {
	// Status is the instance's terminal status. The executor reports
	// InstanceCancelled for any abort originating outside the
	// instance; the scheduler refines that into InstanceTimedOut
	// when its own job-level deadline was the cause.
	Status workflow.InstanceStatus

	// FailedStep identifies the step that halted the sequence, empty
	// on success.
	FailedStep string

	// Steps is the execution log, one entry per started step.
	Steps []StepLog

	// Duration covers the whole sequence.
	Duration time.Duration
}

// LogSink receives execution-log entries as they are produced, for an
// external consumer (terminal output, a log relay). The executor does
// not retain entries beyond the instance's Result.
type LogSink func(instance string, entry StepLog)

// Config assembles an Executor.
type Config struct {
	// Commands runs inline command bodies. Defaults to a ShellRunner
	// with no grace period.
	Commands CommandRunner

	// Actions runs reusable action references. When nil, steps with
	// "uses" fail with a clear error.
	Actions ActionRunner

	// Logger receives operational messages. If nil, logging is
	// discarded.
	Logger *slog.Logger

	// StepTimeout applies to steps that declare no timeout of their
	// own. Defaults to DefaultStepTimeout.
	StepTimeout time.Duration

	// Sink, when set, receives each log entry as it is produced.
	Sink LogSink
}

// Executor runs step sequences. Safe for concurrent use: each Run call
// owns all of its mutable state.
type Executor struct {
	commands    CommandRunner
	actions     ActionRunner
	logger      *slog.Logger
	stepTimeout time.Duration
	sink        LogSink
}

// New creates an Executor, applying Config defaults.
func New(config Config) *Executor {
	if config.Commands == nil {
		config.Commands = &ShellRunner{}
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if config.StepTimeout <= 0 {
		config.StepTimeout = DefaultStepTimeout
	}
	return &Executor{
		commands:    config.Commands,
		actions:     config.Actions,
		logger:      config.Logger,
		stepTimeout: config.StepTimeout,
		sink:        config.Sink,
	}
}

// Run executes the instance's steps in order and returns the terminal
// result. The context bounds the whole sequence: job-level timeouts
// and cross-job cancellation both arrive through it.
func (e *Executor) Run(ctx context.Context, instance matrix.Instance) Result {
	start := time.Now()
	var logs []StepLog

	for ordinal, step := range instance.Steps {
		// Cancellation is observed at the step boundary.
		if ctx.Err() != nil {
			return Result{
				Status:     workflow.InstanceCancelled,
				FailedStep: step.Identity(),
				Steps:      logs,
				Duration:   time.Since(start),
			}
		}

		entry := e.runStep(ctx, instance, ordinal, step)
		logs = append(logs, entry)
		if e.sink != nil {
			e.sink(instance.Name, entry)
		}
		e.logger.Info("step finished",
			"instance", instance.Name,
			"step", entry.Identity,
			"outcome", entry.Outcome,
			"duration", entry.Duration)

		if entry.Outcome == workflow.StepSucceeded {
			continue
		}

		// A cancellation that arrived mid-step is the instance's
		// terminal condition, not the step's own failure.
		if ctx.Err() != nil {
			return Result{
				Status:     workflow.InstanceCancelled,
				FailedStep: entry.Identity,
				Steps:      logs,
				Duration:   time.Since(start),
			}
		}

		return Result{
			Status:     workflow.InstanceFailed,
			FailedStep: entry.Identity,
			Steps:      logs,
			Duration:   time.Since(start),
		}
	}

	return Result{
		Status:   workflow.InstanceSucceeded,
		Steps:    logs,
		Duration: time.Since(start),
	}
}

// runStep executes a single step with its bindings expanded and its
// timeout enforced, and returns the log entry.
func (e *Executor) runStep(ctx context.Context, instance matrix.Instance, ordinal int, step workflow.Step) StepLog {
	started := time.Now()
	entry := StepLog{
		Ordinal:  ordinal,
		Identity: step.Identity(),
		Started:  started,
	}

	expanded, err := workflowdef.ExpandStep(step, instance.Bindings)
	if err != nil {
		entry.Duration = time.Since(started)
		entry.Outcome = workflow.StepFailed
		entry.Error = err.Error()
		return entry
	}

	timeout := expanded.Timeout()
	if timeout <= 0 {
		timeout = e.stepTimeout
	}
	stepContext, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var exitCode int
	var runErr error
	switch {
	case expanded.Run != "":
		exitCode, runErr = e.commands.RunCommand(stepContext, expanded.Run, expanded.Env)
	case expanded.Uses != "":
		if e.actions == nil {
			runErr = fmt.Errorf("step uses %q but no action runner is configured", expanded.Uses)
		} else {
			exitCode, runErr = e.actions.RunAction(stepContext, expanded.Uses, instance.Bindings)
		}
	default:
		// Validate rejects this shape; fail loud if it slips through.
		runErr = fmt.Errorf("step %q has neither run nor uses", entry.Identity)
	}

	entry.Duration = time.Since(started)

	// Abort classification comes before exit-code inspection: a killed
	// command reports a meaningless exit status.
	switch {
	case ctx.Err() != nil:
		// The instance as a whole was cancelled; the interrupted
		// step is recorded as failed, and Run reports the instance
		// status from the parent context.
		entry.Outcome = workflow.StepFailed
		entry.Error = "aborted: " + ctx.Err().Error()
	case stepContext.Err() == context.DeadlineExceeded:
		entry.Outcome = workflow.StepTimedOut
		entry.Error = fmt.Sprintf("exceeded step timeout of %s", timeout)
	case runErr != nil:
		entry.Outcome = workflow.StepFailed
		entry.Error = runErr.Error()
	case exitCode != 0:
		entry.Outcome = workflow.StepFailed
		entry.Error = fmt.Sprintf("exit code %d", exitCode)
	default:
		entry.Outcome = workflow.StepSucceeded
	}
	return entry
}
