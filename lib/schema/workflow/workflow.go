// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

package workflow

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Workflow is a complete pipeline declaration: trigger rules plus an
// ordered set of jobs. Immutable once parsed.
type Workflow struct {
	// Name is the display name of the workflow. Optional; the loader
	// falls back to the file name.
	Name string

	// On holds the trigger rules in declaration order. A workflow
	// with no rules is valid but never triggers.
	On []TriggerRule

	// Jobs holds the declared jobs in declaration order. Each job's
	// Name is its key in the "jobs" mapping.
	Jobs []Job
}

// TriggerRule is one condition under which a pipeline run starts.
type TriggerRule struct {
	// Kind is the event kind this rule responds to.
	Kind EventKind `yaml:"-"`

	// Branches is the branch filter for push (and pull_request)
	// rules. Empty means no filter: the rule matches every event of
	// its kind. Comparison is exact string match, order-insensitive.
	Branches []string `yaml:"branches"`

	// Cron is the activation schedule for schedule rules, in
	// standard five-field cron syntax.
	Cron string `yaml:"cron"`
}

// Job is one declared job: a step sequence plus an optional matrix
// strategy that expands it into multiple instances.
type Job struct {
	// Name is the job's key in the "jobs" mapping.
	Name string `yaml:"-"`

	// RunsOn is the platform label the job requires. May reference
	// matrix bindings, e.g. "${os}".
	RunsOn string `yaml:"runs-on"`

	// TimeoutMinutes bounds the job's entire step sequence,
	// separate from any per-step timeout. Zero means unbounded.
	TimeoutMinutes int `yaml:"timeout-minutes"`

	// Strategy carries the matrix, when the job is matrix-driven.
	Strategy *Strategy `yaml:"strategy"`

	// Steps is the ordered step sequence. Required.
	Steps []Step `yaml:"steps"`
}

// Strategy wraps the matrix block of a job declaration.
type Strategy struct {
	Matrix *Matrix `yaml:"matrix"`
}

// Step is a single unit of work inside a job: either a reference to a
// reusable action (Uses) or an inline command body (Run), never both.
type Step struct {
	// Name identifies the step in logs. Optional; falls back to the
	// action reference or the first line of the command.
	Name string `yaml:"name"`

	// Uses references a reusable action, resolved and executed by an
	// external collaborator. Opaque to the orchestrator.
	Uses string `yaml:"uses"`

	// Run is an inline command body. Multi-line bodies execute as a
	// single unit: a failure on any line fails the whole step.
	Run string `yaml:"run"`

	// Env sets extra environment variables for this step's command.
	Env map[string]string `yaml:"env"`

	// TimeoutMinutes aborts the step if it runs longer. Zero means
	// the executor's default applies.
	TimeoutMinutes int `yaml:"timeout-minutes"`
}

// Timeout returns the job-level timeout as a duration, or zero when
// the job declares none.
func (j Job) Timeout() time.Duration {
	return time.Duration(j.TimeoutMinutes) * time.Minute
}

// Matrix returns the job's matrix, or nil for fixed (non-matrix) jobs.
func (j Job) Matrix() *Matrix {
	if j.Strategy == nil {
		return nil
	}
	return j.Strategy.Matrix
}

// Timeout returns the step-level timeout as a duration, or zero when
// the step declares none.
func (s Step) Timeout() time.Duration {
	return time.Duration(s.TimeoutMinutes) * time.Minute
}

// Identity returns the step's display identity for logs: the declared
// name, or the action reference, or the command body's first line.
func (s Step) Identity() string {
	if s.Name != "" {
		return s.Name
	}
	if s.Uses != "" {
		return s.Uses
	}
	for i := 0; i < len(s.Run); i++ {
		if s.Run[i] == '\n' {
			return s.Run[:i]
		}
	}
	return s.Run
}

// UnmarshalYAML decodes a workflow declaration. The "jobs" mapping is
// decoded through the node API so that job order is preserved — matrix
// expansion and scheduling submit jobs in declaration order.
func (w *Workflow) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("workflow: expected a mapping at line %d", node.Line)
	}

	for i := 0; i+1 < len(node.Content); i += 2 {
		key, value := node.Content[i], node.Content[i+1]
		switch key.Value {
		case "name":
			w.Name = value.Value
		case "on":
			rules, err := decodeTriggers(value)
			if err != nil {
				return err
			}
			w.On = rules
		case "jobs":
			jobs, err := decodeJobs(value)
			if err != nil {
				return err
			}
			w.Jobs = jobs
		}
	}
	return nil
}

// decodeTriggers accepts the three common declaration shapes for "on":
// a single kind ("on: push"), a list of kinds ("on: [push, pull_request]"),
// and a mapping from kind to rule body.
func decodeTriggers(node *yaml.Node) ([]TriggerRule, error) {
	switch node.Kind {
	case yaml.ScalarNode:
		return []TriggerRule{{Kind: EventKind(node.Value)}}, nil

	case yaml.SequenceNode:
		rules := make([]TriggerRule, 0, len(node.Content))
		for _, item := range node.Content {
			if item.Kind != yaml.ScalarNode {
				return nil, fmt.Errorf("workflow: trigger list entries must be event kinds (line %d)", item.Line)
			}
			rules = append(rules, TriggerRule{Kind: EventKind(item.Value)})
		}
		return rules, nil

	case yaml.MappingNode:
		var rules []TriggerRule
		for i := 0; i+1 < len(node.Content); i += 2 {
			key, value := node.Content[i], node.Content[i+1]
			kind := EventKind(key.Value)

			// Schedule rules are declared as a list of cron entries;
			// each entry becomes its own rule.
			if kind == EventSchedule {
				if value.Kind != yaml.SequenceNode {
					return nil, fmt.Errorf("workflow: schedule trigger must be a list of cron entries (line %d)", value.Line)
				}
				for _, entry := range value.Content {
					var rule TriggerRule
					if err := entry.Decode(&rule); err != nil {
						return nil, fmt.Errorf("workflow: schedule entry at line %d: %w", entry.Line, err)
					}
					rule.Kind = EventSchedule
					rules = append(rules, rule)
				}
				continue
			}

			var rule TriggerRule
			if value.Kind != 0 && value.Tag != "!!null" {
				if err := value.Decode(&rule); err != nil {
					return nil, fmt.Errorf("workflow: trigger %q at line %d: %w", key.Value, key.Line, err)
				}
			}
			rule.Kind = kind
			rules = append(rules, rule)
		}
		return rules, nil
	}

	return nil, fmt.Errorf("workflow: unsupported \"on\" shape at line %d", node.Line)
}

// decodeJobs decodes the "jobs" mapping preserving declaration order.
func decodeJobs(node *yaml.Node) ([]Job, error) {
	if node.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("workflow: \"jobs\" must be a mapping (line %d)", node.Line)
	}

	jobs := make([]Job, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, value := node.Content[i], node.Content[i+1]

		var job Job
		if err := value.Decode(&job); err != nil {
			return nil, fmt.Errorf("workflow: job %q: %w", key.Value, err)
		}
		job.Name = key.Value
		jobs = append(jobs, job)
	}
	return jobs, nil
}
