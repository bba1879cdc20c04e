// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

// Package workflow defines the typed content of Conveyor workflow
// declarations: trigger rules, jobs, matrix strategies, and steps,
// plus the status vocabulary shared by the expansion, execution, and
// reporting layers.
//
// A Workflow is parsed once per triggering event (see lib/workflowdef)
// and is read-only from then on. Every concurrent execution unit holds
// the same Workflow value; nothing in this package is mutated after
// parse. Mutable run state (instance statuses, step logs) lives in the
// scheduler's result records, never on the declaration.
//
// The YAML shape mirrors the common CI declaration format: an "on"
// block of trigger rules, a "jobs" mapping, and per-job "steps" lists.
// Mapping order is significant for jobs and matrix axes — expansion
// order is a pure function of the declaration — so those decode
// through yaml.Node rather than Go maps.
package workflow
