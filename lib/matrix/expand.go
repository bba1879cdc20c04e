// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

// Package matrix expands job templates into concrete job instances.
//
// A matrix-driven job produces one instance per combination of its
// axis values, in declaration order with the first axis outermost.
// Include overlays then augment matching combinations with extra
// bindings. Expansion is a pure function of the declaration: two
// expansions of the same job yield identical ordered results, and
// nothing in the shared declaration is mutated.
package matrix

import (
	"fmt"
	"strings"
	"time"

	"github.com/conveyor-ci/conveyor/lib/schema/workflow"
)

// Instance is one concrete, independently schedulable unit of work
// derived from a job template. Each instance owns its bindings map —
// instances never share mutable state with each other or with the
// declaration they were expanded from.
type Instance struct {
	// JobName is the declared job this instance was expanded from.
	JobName string

	// Name is the display identity: the job name alone for fixed
	// jobs, or "job (v1, v2)" with the axis values in axis order.
	Name string

	// Index is the instance's position in the job's expansion order.
	Index int

	// Bindings holds the resolved variable bindings: one entry per
	// axis plus any include overlay extras. Empty (never nil) for
	// fixed jobs.
	Bindings map[string]string

	// RunsOn is the job's platform label, unexpanded. The scheduler
	// expands it against Bindings before provisioning.
	RunsOn string

	// Timeout bounds the instance's entire step sequence. Zero means
	// unbounded.
	Timeout time.Duration

	// Steps is the ordered step sequence, shared read-only with the
	// declaration.
	Steps []workflow.Step
}

// Expand produces the ordered job instances for one declared job.
//
// For a matrix-driven job the result has exactly one instance per
// combination of declared axis values. After base generation each
// include overlay is applied in declaration order: combinations whose
// axis values satisfy the overlay's predicate get the overlay's extra
// bindings merged in, last overlay winning on conflicting keys. An
// overlay bound to an undeclared axis value is a configuration error.
//
// A job without a matrix yields exactly one instance with no extra
// bindings.
func Expand(job workflow.Job) ([]Instance, error) {
	spec := job.Matrix()
	if spec == nil || len(spec.Axes) == 0 {
		return []Instance{{
			JobName:  job.Name,
			Name:     job.Name,
			Bindings: map[string]string{},
			RunsOn:   job.RunsOn,
			Timeout:  job.Timeout(),
			Steps:    job.Steps,
		}}, nil
	}

	overlays, err := partitionIncludes(job.Name, spec)
	if err != nil {
		return nil, err
	}

	total := 1
	for _, axis := range spec.Axes {
		if len(axis.Values) == 0 {
			return nil, workflow.ConfigErrorf("jobs.%s.matrix: axis %q has no values", job.Name, axis.Name)
		}
		total *= len(axis.Values)
	}

	instances := make([]Instance, 0, total)
	for ordinal := 0; ordinal < total; ordinal++ {
		bindings := make(map[string]string, len(spec.Axes))
		values := make([]string, len(spec.Axes))

		// Odometer decomposition: the first axis is the outermost
		// loop, so its digit changes slowest.
		remainder := ordinal
		for i := len(spec.Axes) - 1; i >= 0; i-- {
			axis := spec.Axes[i]
			value := axis.Values[remainder%len(axis.Values)]
			remainder /= len(axis.Values)
			bindings[axis.Name] = value
			values[i] = value
		}

		for _, overlay := range overlays {
			if overlay.matches(bindings) {
				for key, value := range overlay.set {
					bindings[key] = value
				}
			}
		}

		instances = append(instances, Instance{
			JobName:  job.Name,
			Name:     fmt.Sprintf("%s (%s)", job.Name, strings.Join(values, ", ")),
			Index:    ordinal,
			Bindings: bindings,
			RunsOn:   job.RunsOn,
			Timeout:  job.Timeout(),
			Steps:    job.Steps,
		})
	}
	return instances, nil
}

// ExpandAll expands every job of a workflow in declaration order and
// concatenates the results.
func ExpandAll(content *workflow.Workflow) ([]Instance, error) {
	var instances []Instance
	for _, job := range content.Jobs {
		expanded, err := Expand(job)
		if err != nil {
			return nil, err
		}
		instances = append(instances, expanded...)
	}
	return instances, nil
}

// overlay is one include after the predicate/extras split.
type overlay struct {
	match map[string]string
	set   map[string]string
}

// matches reports whether a combination's bindings satisfy the
// overlay's predicate. An empty predicate matches every combination.
func (o overlay) matches(bindings map[string]string) bool {
	for axisName, bound := range o.match {
		if bindings[axisName] != bound {
			return false
		}
	}
	return true
}

// partitionIncludes splits every include into predicate and extras,
// rejecting overlays that reference axis values absent from the
// declared value set. Absence is a configuration error, not a
// run-time skip — a typo in an include must fail the run before any
// job starts.
func partitionIncludes(jobName string, spec *workflow.Matrix) ([]overlay, error) {
	var issues []string
	overlays := make([]overlay, 0, len(spec.Include))

	for index, include := range spec.Include {
		match, set := spec.Partition(include)
		for axisName, bound := range match {
			declared := false
			for _, value := range spec.AxisValues(axisName) {
				if value == bound {
					declared = true
					break
				}
			}
			if !declared {
				issues = append(issues, fmt.Sprintf(
					"jobs.%s.matrix.include[%d]: axis %q has no declared value %q",
					jobName, index, axisName, bound))
			}
		}
		overlays = append(overlays, overlay{match: match, set: set})
	}

	if len(issues) > 0 {
		return nil, &workflow.ConfigError{Issues: issues}
	}
	return overlays, nil
}
