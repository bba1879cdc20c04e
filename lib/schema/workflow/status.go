// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

package workflow

// EventKind identifies the kind of event that can start a pipeline run.
type EventKind string

const (
	// EventPullRequest is a pull-request event. Pull-request rules
	// with no branch filter match every pull-request event.
	EventPullRequest EventKind = "pull_request"

	// EventPush is a push to a named branch. The event carries the
	// target branch name.
	EventPush EventKind = "push"

	// EventSchedule is a time-based activation of a cron trigger rule.
	EventSchedule EventKind = "schedule"
)

// InstanceStatus is the terminal status of one job instance. Every
// instance resolves to exactly one terminal status — there are no
// partial or ambiguous outcomes.
type InstanceStatus string

const (
	// InstanceSucceeded: every step completed with exit status zero.
	InstanceSucceeded InstanceStatus = "succeeded"

	// InstanceFailed: a step exited non-zero (or timed out at the
	// step level) and the remaining steps were skipped.
	InstanceFailed InstanceStatus = "failed"

	// InstanceTimedOut: the job-level timeout elapsed before the step
	// sequence completed. In-flight steps were cancelled.
	InstanceTimedOut InstanceStatus = "timed_out"

	// InstanceCancelled: the run's context was cancelled from outside
	// the instance (caller cancellation or fail-fast across jobs).
	InstanceCancelled InstanceStatus = "cancelled"

	// InstanceInfraFailure: the execution unit could not be
	// provisioned (for example, the requested platform is not
	// available). No steps ran. Sibling instances are unaffected.
	InstanceInfraFailure InstanceStatus = "infra_failure"
)

// RunStatus is the aggregated status of a pipeline run.
type RunStatus string

const (
	// RunSucceeded: every job instance succeeded.
	RunSucceeded RunStatus = "succeeded"

	// RunFailed: at least one job instance did not succeed.
	RunFailed RunStatus = "failed"

	// RunNotTriggered: no trigger rule matched the event. Zero job
	// instances were created. Distinct from success and failure.
	RunNotTriggered RunStatus = "not_triggered"
)

// StepOutcome is the recorded outcome of a single executed step.
// Skipped steps (those after a fail-fast halt) get no outcome at all —
// they are absent from the execution log.
type StepOutcome string

const (
	// StepSucceeded: the step's command exited zero.
	StepSucceeded StepOutcome = "succeeded"

	// StepFailed: the step's command exited non-zero.
	StepFailed StepOutcome = "failed"

	// StepTimedOut: the step exceeded its declared timeout and was
	// aborted. Halts the instance exactly like a failure, but is
	// recorded distinctly for reporting.
	StepTimedOut StepOutcome = "timed_out"
)
