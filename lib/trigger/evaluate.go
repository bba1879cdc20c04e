// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

// Package trigger decides whether an incoming event should start a
// pipeline run. Evaluation has no side effects: the evaluator reads
// the declaration's trigger rules and the event, nothing else.
package trigger

import (
	"time"

	"github.com/robfig/cron/v3"

	"github.com/conveyor-ci/conveyor/lib/schema/workflow"
)

// Event is an incoming occurrence that may start a run.
type Event struct {
	// Kind is the event kind. Required.
	Kind workflow.EventKind `json:"kind"`

	// Branch is the target branch. Required for push events; ignored
	// for schedule events.
	Branch string `json:"branch,omitempty"`
}

// Evaluate reports whether at least one trigger rule matches the
// event.
//
// A pull_request rule with no branch filter matches every pull-request
// event regardless of branch. A push rule matches only if the event's
// branch is present in the rule's branch filter (exact string match,
// order-insensitive); a push rule with no filter matches every push.
// A schedule rule matches schedule events.
//
// A malformed event — missing kind, or a push without a branch — is
// rejected with a ConfigError, never treated as a silent non-match.
func Evaluate(rules []workflow.TriggerRule, event Event) (bool, error) {
	switch event.Kind {
	case workflow.EventPullRequest, workflow.EventSchedule:
	case workflow.EventPush:
		if event.Branch == "" {
			return false, workflow.ConfigErrorf("push event is missing the target branch")
		}
	case "":
		return false, workflow.ConfigErrorf("event is missing its kind")
	default:
		return false, workflow.ConfigErrorf("unknown event kind %q", event.Kind)
	}

	for _, rule := range rules {
		if rule.Kind != event.Kind {
			continue
		}
		if len(rule.Branches) == 0 {
			return true, nil
		}
		for _, branch := range rule.Branches {
			if branch == event.Branch {
				return true, nil
			}
		}
	}
	return false, nil
}

// NextActivation returns the earliest upcoming firing time across the
// workflow's schedule rules, or the zero time when the workflow has no
// schedule rules. Invalid cron expressions are reported as a
// ConfigError — Validate catches them earlier on the normal path.
func NextActivation(rules []workflow.TriggerRule, now time.Time) (time.Time, error) {
	var next time.Time
	for _, rule := range rules {
		if rule.Kind != workflow.EventSchedule {
			continue
		}
		schedule, err := cron.ParseStandard(rule.Cron)
		if err != nil {
			return time.Time{}, workflow.ConfigErrorf("invalid cron expression %q: %v", rule.Cron, err)
		}
		activation := schedule.Next(now)
		if next.IsZero() || activation.Before(next) {
			next = activation
		}
	}
	return next, nil
}
