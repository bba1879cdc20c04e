// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

package workflowdef

import (
	"fmt"

	"github.com/robfig/cron/v3"

	"github.com/conveyor-ci/conveyor/lib/schema/workflow"
)

// Validate checks a Workflow for structural issues. Returns a list of
// human-readable issue descriptions. An empty list means the workflow
// is valid.
//
// Structural checks include:
//   - Trigger kinds must be known; schedule rules need a parseable
//     cron expression, non-schedule rules must not carry one
//   - At least one job is required; job names must be unique
//   - Each job needs at least one step
//   - Each step must set exactly one of Uses or Run
//   - Timeouts must not be negative
//   - Matrix axes must be non-empty and uniquely named
//   - Every axis value bound by an include overlay must exist in its
//     axis's declared value set
func Validate(content *workflow.Workflow) []string {
	var issues []string

	for index, rule := range content.On {
		prefix := fmt.Sprintf("on[%d] %s", index, rule.Kind)
		switch rule.Kind {
		case workflow.EventPullRequest, workflow.EventPush:
			if rule.Cron != "" {
				issues = append(issues, fmt.Sprintf("%s: cron is only valid on schedule rules", prefix))
			}
		case workflow.EventSchedule:
			if rule.Cron == "" {
				issues = append(issues, fmt.Sprintf("%s: cron expression is required", prefix))
			} else if _, err := cron.ParseStandard(rule.Cron); err != nil {
				issues = append(issues, fmt.Sprintf("%s: invalid cron expression %q: %v", prefix, rule.Cron, err))
			}
			if len(rule.Branches) > 0 {
				issues = append(issues, fmt.Sprintf("%s: branch filters are not valid on schedule rules", prefix))
			}
		default:
			issues = append(issues, fmt.Sprintf("%s: unknown event kind", prefix))
		}
	}

	if len(content.Jobs) == 0 {
		issues = append(issues, "workflow has no jobs (at least one job is required)")
	}

	seenJobs := make(map[string]bool, len(content.Jobs))
	for _, job := range content.Jobs {
		prefix := fmt.Sprintf("jobs.%s", job.Name)
		if seenJobs[job.Name] {
			issues = append(issues, fmt.Sprintf("%s: duplicate job name", prefix))
		}
		seenJobs[job.Name] = true

		if job.TimeoutMinutes < 0 {
			issues = append(issues, fmt.Sprintf("%s: timeout-minutes must not be negative", prefix))
		}

		if matrix := job.Matrix(); matrix != nil {
			issues = append(issues, validateMatrix(prefix, matrix)...)
		}

		if len(job.Steps) == 0 {
			issues = append(issues, fmt.Sprintf("%s: job has no steps (at least one step is required)", prefix))
			continue
		}

		for stepIndex, step := range job.Steps {
			stepPrefix := fmt.Sprintf("%s.steps[%d]", prefix, stepIndex)
			if step.Name != "" {
				stepPrefix = fmt.Sprintf("%s.steps[%d] %q", prefix, stepIndex, step.Name)
			}

			hasUses := step.Uses != ""
			hasRun := step.Run != ""
			switch {
			case hasUses && hasRun:
				issues = append(issues, fmt.Sprintf("%s: uses and run are mutually exclusive (set exactly one)", stepPrefix))
			case !hasUses && !hasRun:
				issues = append(issues, fmt.Sprintf("%s: must set either uses or run", stepPrefix))
			}

			if step.TimeoutMinutes < 0 {
				issues = append(issues, fmt.Sprintf("%s: timeout-minutes must not be negative", stepPrefix))
			}
		}
	}

	return issues
}

// validateMatrix checks axis declarations and include overlay
// references for one job's matrix.
func validateMatrix(prefix string, matrix *workflow.Matrix) []string {
	var issues []string

	seenAxes := make(map[string]bool, len(matrix.Axes))
	for _, axis := range matrix.Axes {
		if seenAxes[axis.Name] {
			issues = append(issues, fmt.Sprintf("%s.matrix: duplicate axis %q", prefix, axis.Name))
		}
		seenAxes[axis.Name] = true
		if len(axis.Values) == 0 {
			issues = append(issues, fmt.Sprintf("%s.matrix: axis %q has no values", prefix, axis.Name))
		}
	}

	for index, include := range matrix.Include {
		match, _ := matrix.Partition(include)
		for axisName, bound := range match {
			found := false
			for _, declared := range matrix.AxisValues(axisName) {
				if declared == bound {
					found = true
					break
				}
			}
			if !found {
				issues = append(issues, fmt.Sprintf(
					"%s.matrix.include[%d]: axis %q has no declared value %q",
					prefix, index, axisName, bound))
			}
		}
	}

	return issues
}

// Check runs Validate and wraps any issues in a ConfigError. This is
// the form callers on the execution path use: a non-nil result means
// the declaration is rejected before anything runs.
func Check(content *workflow.Workflow) error {
	if issues := Validate(content); len(issues) > 0 {
		return &workflow.ConfigError{Issues: issues}
	}
	return nil
}
