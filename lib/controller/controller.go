// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

// Package controller is the top-level pipeline driver. On event
// arrival it validates the declaration, evaluates the trigger rules,
// expands every declared job through the matrix expander, submits the
// instances to the scheduler, and aggregates the run result.
//
// The controller holds no long-lived mutable state across triggering
// events — each Run is independent, and a single Controller may serve
// concurrent runs.
package controller

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/conveyor-ci/conveyor/lib/matrix"
	"github.com/conveyor-ci/conveyor/lib/resultlog"
	"github.com/conveyor-ci/conveyor/lib/scheduler"
	"github.com/conveyor-ci/conveyor/lib/schema/workflow"
	"github.com/conveyor-ci/conveyor/lib/trigger"
	"github.com/conveyor-ci/conveyor/lib/workflowdef"
)

// RunResult is the aggregated outcome of one triggering event.
type RunResult struct {
	// RunID uniquely identifies the run.
	RunID string `json:"run_id"`

	// Workflow is the declaration's name.
	Workflow string `json:"workflow"`

	// Event is the event that arrived.
	Event trigger.Event `json:"event"`

	// Status is the overall status: succeeded, failed, or
	// not_triggered. Success requires every instance to succeed.
	Status workflow.RunStatus `json:"status"`

	// Started is the run's start time.
	Started time.Time `json:"started"`

	// Duration covers trigger evaluation through the last instance's
	// completion.
	Duration time.Duration `json:"duration"`

	// Instances holds the per-instance terminal records, in
	// expansion order. Empty for not-triggered runs.
	Instances []scheduler.InstanceResult `json:"instances,omitempty"`
}

// Config assembles a Controller.
type Config struct {
	// Scheduler runs the expanded instances. Required.
	Scheduler *scheduler.Scheduler

	// Logger receives operational messages. If nil, logging is
	// discarded.
	Logger *slog.Logger

	// ResultLog, when set, receives the JSONL record of each run.
	ResultLog *resultlog.Log
}

// Controller drives pipeline runs.
type Controller struct {
	scheduler *scheduler.Scheduler
	logger    *slog.Logger
	results   *resultlog.Log
}

// New creates a Controller, applying Config defaults.
func New(config Config) *Controller {
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Controller{
		scheduler: config.Scheduler,
		logger:    logger,
		results:   config.ResultLog,
	}
}

// Run handles one triggering event against one workflow declaration.
//
// A declaration or event problem is returned as a ConfigError and
// nothing executes. When no trigger rule matches, the result carries
// RunNotTriggered and zero instances — distinct from both success and
// failure, and not an error.
func (c *Controller) Run(ctx context.Context, content *workflow.Workflow, event trigger.Event) (*RunResult, error) {
	started := time.Now()

	if err := workflowdef.Check(content); err != nil {
		return nil, err
	}

	matched, err := trigger.Evaluate(content.On, event)
	if err != nil {
		return nil, err
	}

	result := &RunResult{
		RunID:    uuid.NewString(),
		Workflow: content.Name,
		Event:    event,
		Started:  started,
	}

	if !matched {
		result.Status = workflow.RunNotTriggered
		result.Duration = time.Since(started)
		c.logger.Info("not triggered",
			"workflow", content.Name,
			"event", event.Kind,
			"branch", event.Branch)
		return result, nil
	}

	instances, err := matrix.ExpandAll(content)
	if err != nil {
		return nil, err
	}

	c.logger.Info("run starting",
		"run_id", result.RunID,
		"workflow", content.Name,
		"instances", len(instances))
	c.results.WriteStart(result.RunID, content.Name, len(instances))

	result.Instances = c.scheduler.Run(ctx, instances)
	for _, instance := range result.Instances {
		c.results.WriteInstance(instance)
	}

	result.Status = workflow.RunFailed
	if scheduler.Succeeded(result.Instances) {
		result.Status = workflow.RunSucceeded
	}
	result.Duration = time.Since(started)

	c.results.WriteComplete(result.Status, result.Duration.Milliseconds())
	c.logger.Info("run finished",
		"run_id", result.RunID,
		"status", result.Status,
		"duration", result.Duration)
	return result, nil
}
