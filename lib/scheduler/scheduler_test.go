// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

package scheduler

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/conveyor-ci/conveyor/lib/executor"
	"github.com/conveyor-ci/conveyor/lib/matrix"
	"github.com/conveyor-ci/conveyor/lib/schema/workflow"
	"github.com/conveyor-ci/conveyor/lib/testutil"
)

// fakeRunner resolves each instance by name: failing instances fail,
// blocking instances wait for cancellation, everything else succeeds.
type fakeRunner struct {
	failing  map[string]bool
	blocking map[string]bool

	mu      sync.Mutex
	started []string
}

func (r *fakeRunner) Run(ctx context.Context, instance matrix.Instance) executor.Result {
	r.mu.Lock()
	r.started = append(r.started, instance.Name)
	r.mu.Unlock()

	if r.blocking[instance.Name] {
		<-ctx.Done()
		return executor.Result{Status: workflow.InstanceCancelled}
	}
	if r.failing[instance.Name] {
		return executor.Result{
			Status:     workflow.InstanceFailed,
			FailedStep: "build",
		}
	}
	return executor.Result{Status: workflow.InstanceSucceeded}
}

func namedInstances(names ...string) []matrix.Instance {
	instances := make([]matrix.Instance, len(names))
	for i, name := range names {
		instances[i] = matrix.Instance{
			JobName:  name,
			Name:     name,
			Index:    i,
			Bindings: map[string]string{},
		}
	}
	return instances
}

func TestRunAllSucceed(t *testing.T) {
	t.Parallel()

	runs := New(Config{Executor: &fakeRunner{}})
	results := runs.Run(context.Background(), namedInstances("a", "b", "c"))

	if len(results) != 3 {
		t.Fatalf("len(results) = %d, want 3", len(results))
	}
	// Results come back in submission order regardless of completion
	// order.
	for i, name := range []string{"a", "b", "c"} {
		if results[i].Instance != name {
			t.Errorf("results[%d].Instance = %q, want %q", i, results[i].Instance, name)
		}
		if results[i].Status != workflow.InstanceSucceeded {
			t.Errorf("results[%d].Status = %s", i, results[i].Status)
		}
	}
	if !Succeeded(results) {
		t.Error("Succeeded = false for an all-green run")
	}
}

func TestRunFailureDoesNotCancelSiblings(t *testing.T) {
	t.Parallel()

	// The failing instance resolves immediately; the slow sibling
	// must still run to completion rather than being torn down.
	slow := &slowRunner{inner: &fakeRunner{failing: map[string]bool{"bad": true}}, delay: 50 * time.Millisecond}
	runs := New(Config{Executor: slow})

	results := runs.Run(context.Background(), namedInstances("bad", "slow"))

	if results[0].Status != workflow.InstanceFailed {
		t.Errorf("bad status = %s", results[0].Status)
	}
	if results[0].FailedStep != "build" {
		t.Errorf("bad FailedStep = %q", results[0].FailedStep)
	}
	if results[1].Status != workflow.InstanceSucceeded {
		t.Errorf("slow status = %s, want succeeded (no cross-job cancellation)", results[1].Status)
	}
	if Succeeded(results) {
		t.Error("Succeeded = true with a failed instance")
	}
}

// slowRunner delays every non-failing instance before delegating.
type slowRunner struct {
	inner *fakeRunner
	delay time.Duration
}

func (r *slowRunner) Run(ctx context.Context, instance matrix.Instance) executor.Result {
	if !r.inner.failing[instance.Name] {
		select {
		case <-time.After(r.delay):
		case <-ctx.Done():
			return executor.Result{Status: workflow.InstanceCancelled}
		}
	}
	return r.inner.Run(ctx, instance)
}

func TestRunFailFastCancelsSiblings(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{
		failing:  map[string]bool{"bad": true},
		blocking: map[string]bool{"hang": true},
	}
	runs := New(Config{Executor: runner, FailFast: true})

	done := make(chan []InstanceResult, 1)
	go func() {
		done <- runs.Run(context.Background(), namedInstances("bad", "hang"))
	}()

	results := testutil.RequireReceive(t, done, 5*time.Second,
		"fail-fast run never completed; the hanging sibling was not cancelled")
	if results[0].Status != workflow.InstanceFailed {
		t.Errorf("bad status = %s", results[0].Status)
	}
	if results[1].Status != workflow.InstanceCancelled {
		t.Errorf("hang status = %s, want cancelled", results[1].Status)
	}
}

func TestRunConcurrent(t *testing.T) {
	t.Parallel()

	// Every instance blocks until all of them have started; the run
	// can only finish if the scheduler actually runs them in parallel.
	const count = 4
	var started atomic.Int32
	release := make(chan struct{})

	runner := runnerFunc(func(ctx context.Context, instance matrix.Instance) executor.Result {
		if started.Add(1) == count {
			close(release)
		}
		select {
		case <-release:
			return executor.Result{Status: workflow.InstanceSucceeded}
		case <-time.After(5 * time.Second):
			return executor.Result{Status: workflow.InstanceFailed}
		}
	})

	runs := New(Config{Executor: runner})
	results := runs.Run(context.Background(), namedInstances("a", "b", "c", "d"))
	if !Succeeded(results) {
		t.Fatalf("instances did not run concurrently: %+v", results)
	}
}

type runnerFunc func(ctx context.Context, instance matrix.Instance) executor.Result

func (f runnerFunc) Run(ctx context.Context, instance matrix.Instance) executor.Result {
	return f(ctx, instance)
}

func TestRunJobTimeout(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{blocking: map[string]bool{"hang": true}}
	runs := New(Config{Executor: runner})

	instances := namedInstances("hang")
	instances[0].Timeout = 20 * time.Millisecond

	results := runs.Run(context.Background(), instances)
	if results[0].Status != workflow.InstanceTimedOut {
		t.Fatalf("status = %s, want timed_out", results[0].Status)
	}
	if !strings.Contains(results[0].Error, "exceeded job timeout") {
		t.Errorf("Error = %q", results[0].Error)
	}
}

func TestRunExternalCancellationIsNotTimeout(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{blocking: map[string]bool{"hang": true}}
	runs := New(Config{Executor: runner})

	ctx, cancel := context.WithCancel(context.Background())
	instances := namedInstances("hang")
	instances[0].Timeout = time.Hour

	done := make(chan []InstanceResult, 1)
	go func() { done <- runs.Run(ctx, instances) }()
	cancel()

	results := testutil.RequireReceive(t, done, 5*time.Second,
		"run did not resolve after external cancellation")
	if results[0].Status != workflow.InstanceCancelled {
		t.Errorf("status = %s, want cancelled", results[0].Status)
	}
}

func TestRunPlatformGate(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{}
	runs := New(Config{Executor: runner, Platforms: []string{"ubuntu-latest"}})

	instances := []matrix.Instance{
		{JobName: "a", Name: "a", Bindings: map[string]string{}, RunsOn: "ubuntu-latest"},
		{JobName: "b", Name: "b", Bindings: map[string]string{}, RunsOn: "windows-latest"},
	}

	results := runs.Run(context.Background(), instances)
	if results[0].Status != workflow.InstanceSucceeded {
		t.Errorf("a status = %s", results[0].Status)
	}
	if results[1].Status != workflow.InstanceInfraFailure {
		t.Errorf("b status = %s, want infra_failure", results[1].Status)
	}
	if !strings.Contains(results[1].Error, "windows-latest") {
		t.Errorf("b Error = %q", results[1].Error)
	}

	// The unschedulable instance never reached the executor.
	runner.mu.Lock()
	defer runner.mu.Unlock()
	for _, name := range runner.started {
		if name == "b" {
			t.Error("instance b ran despite the platform gate")
		}
	}
}

func TestRunExpandsRunsOnBeforeGate(t *testing.T) {
	t.Parallel()

	runs := New(Config{Executor: &fakeRunner{}, Platforms: []string{"ubuntu-latest"}})

	instances := []matrix.Instance{{
		JobName:  "test",
		Name:     "test (linux)",
		Bindings: map[string]string{"os": "ubuntu-latest"},
		RunsOn:   "${os}",
	}}
	results := runs.Run(context.Background(), instances)
	if results[0].Status != workflow.InstanceSucceeded {
		t.Errorf("status = %s: %q", results[0].Status, results[0].Error)
	}
}

func TestRunUnresolvableRunsOn(t *testing.T) {
	t.Parallel()

	runs := New(Config{Executor: &fakeRunner{}})

	instances := []matrix.Instance{{
		JobName:  "test",
		Name:     "test",
		Bindings: map[string]string{},
		RunsOn:   "${os}",
	}}
	results := runs.Run(context.Background(), instances)
	if results[0].Status != workflow.InstanceInfraFailure {
		t.Fatalf("status = %s, want infra_failure", results[0].Status)
	}
	if !strings.Contains(results[0].Error, "unresolved") {
		t.Errorf("Error = %q", results[0].Error)
	}
}

func TestRunNoInstances(t *testing.T) {
	t.Parallel()

	runs := New(Config{Executor: &fakeRunner{}})
	results := runs.Run(context.Background(), nil)
	if len(results) != 0 {
		t.Fatalf("len(results) = %d, want 0", len(results))
	}
	if !Succeeded(results) {
		t.Error("Succeeded = false for an empty run")
	}
}
