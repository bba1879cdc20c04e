// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

// Package scheduler runs the expanded job instances of a triggered
// pipeline concurrently and collects their terminal statuses.
//
// Each instance gets its own goroutine and its own cancellation scope;
// there is no ordering guarantee between instances and no shared
// mutable state beyond the read-only declaration. A failing or
// timed-out instance marks the overall run failed but, by default,
// never cancels its siblings — cross-job fail-fast is an explicit
// opt-in (Config.FailFast).
package scheduler

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/conveyor-ci/conveyor/lib/executor"
	"github.com/conveyor-ci/conveyor/lib/matrix"
	"github.com/conveyor-ci/conveyor/lib/schema/workflow"
	"github.com/conveyor-ci/conveyor/lib/workflowdef"
)

// InstanceResult is one job instance's terminal record.
type InstanceResult struct {
	// JobName is the declared job the instance came from.
	JobName string `json:"job"`

	// Instance is the instance's display identity.
	Instance string `json:"instance"`

	// Status is the terminal status. Exactly one per instance.
	Status workflow.InstanceStatus `json:"status"`

	// FailedStep identifies the halting step, empty on success.
	FailedStep string `json:"failed_step,omitempty"`

	// Error describes instance-level failures that happened before
	// any step ran (platform unavailable, unresolvable runs-on).
	Error string `json:"error,omitempty"`

	// Steps is the execution log, one entry per started step.
	Steps []executor.StepLog `json:"steps,omitempty"`

	// Bindings are the instance's resolved variable bindings.
	Bindings map[string]string `json:"bindings,omitempty"`

	// Duration covers the instance's whole run.
	Duration time.Duration `json:"duration"`
}

// InstanceRunner executes one instance's step sequence. Implemented
// by *executor.Executor; tests inject fakes.
type InstanceRunner interface {
	Run(ctx context.Context, instance matrix.Instance) executor.Result
}

// Config assembles a Scheduler.
type Config struct {
	// Executor runs each instance's step sequence. Required.
	Executor InstanceRunner

	// Logger receives operational messages. If nil, logging is
	// discarded.
	Logger *slog.Logger

	// FailFast cancels all still-running instances when one instance
	// fails or times out. Off by default: siblings are allowed to
	// finish.
	FailFast bool

	// Platforms lists the platform labels this controller can
	// provision. Empty means every label is accepted. An instance
	// whose expanded runs-on label is not in the list is marked
	// infra_failure without running; its siblings are unaffected.
	Platforms []string
}

// Scheduler launches job instances and aggregates their results.
type Scheduler struct {
	executor  InstanceRunner
	logger    *slog.Logger
	failFast  bool
	platforms map[string]bool
}

// New creates a Scheduler, applying Config defaults.
func New(config Config) *Scheduler {
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	var platforms map[string]bool
	if len(config.Platforms) > 0 {
		platforms = make(map[string]bool, len(config.Platforms))
		for _, label := range config.Platforms {
			platforms[label] = true
		}
	}
	return &Scheduler{
		executor:  config.Executor,
		logger:    logger,
		failFast:  config.FailFast,
		platforms: platforms,
	}
}

// indexedResult pairs a result with its submission position so the
// collector can report results in instance order regardless of
// completion order.
type indexedResult struct {
	index  int
	result InstanceResult
}

// Run executes all instances concurrently and returns their terminal
// results in submission order. Run blocks until every instance has
// resolved — even under fail-fast, cancelled instances still report a
// terminal status.
func (s *Scheduler) Run(ctx context.Context, instances []matrix.Instance) []InstanceResult {
	runContext, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	completions := make(chan indexedResult)
	for index, instance := range instances {
		go func(index int, instance matrix.Instance) {
			completions <- indexedResult{index: index, result: s.runInstance(runContext, instance)}
		}(index, instance)
	}

	results := make([]InstanceResult, len(instances))
	for range instances {
		completion := <-completions
		results[completion.index] = completion.result

		if s.failFast && completion.result.Status != workflow.InstanceSucceeded {
			// First bad result tears down the siblings. Idempotent.
			cancelRun()
		}
	}
	return results
}

// runInstance executes one instance inside its own cancellation scope
// and classifies its terminal status.
func (s *Scheduler) runInstance(ctx context.Context, instance matrix.Instance) InstanceResult {
	result := InstanceResult{
		JobName:  instance.JobName,
		Instance: instance.Name,
		Bindings: instance.Bindings,
	}

	// Platform gate. An unsatisfiable runs-on label is an
	// infrastructure failure for this instance alone.
	runsOn, err := workflowdef.Expand(instance.RunsOn, instance.Bindings)
	if err != nil {
		result.Status = workflow.InstanceInfraFailure
		result.Error = err.Error()
		return result
	}
	if s.platforms != nil && runsOn != "" && !s.platforms[runsOn] {
		result.Status = workflow.InstanceInfraFailure
		result.Error = "platform " + runsOn + " is not available"
		s.logger.Warn("platform unavailable", "instance", instance.Name, "runs_on", runsOn)
		return result
	}

	// The job-level timeout bounds the entire step sequence,
	// independent of per-step timeouts.
	instanceContext := ctx
	var cancelInstance context.CancelFunc
	if instance.Timeout > 0 {
		instanceContext, cancelInstance = context.WithTimeout(ctx, instance.Timeout)
		defer cancelInstance()
	}

	run := s.executor.Run(instanceContext, instance)
	result.Status = run.Status
	result.FailedStep = run.FailedStep
	result.Steps = run.Steps
	result.Duration = run.Duration

	// The executor reports any externally-originated abort as
	// cancelled; when this scheduler's own job-level deadline was the
	// cause, the instance timed out.
	if run.Status == workflow.InstanceCancelled &&
		instanceContext.Err() == context.DeadlineExceeded && ctx.Err() == nil {
		result.Status = workflow.InstanceTimedOut
		result.Error = "exceeded job timeout of " + instance.Timeout.String()
	}

	s.logger.Info("instance finished",
		"instance", instance.Name,
		"status", result.Status,
		"duration", result.Duration)
	return result
}

// Succeeded reports whether every instance succeeded. Pipeline-level
// success is the logical AND over all instances.
func Succeeded(results []InstanceResult) bool {
	for _, result := range results {
		if result.Status != workflow.InstanceSucceeded {
			return false
		}
	}
	return true
}
