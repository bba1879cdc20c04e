// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

package controller

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/conveyor-ci/conveyor/lib/executor"
	"github.com/conveyor-ci/conveyor/lib/scheduler"
	"github.com/conveyor-ci/conveyor/lib/schema/workflow"
	"github.com/conveyor-ci/conveyor/lib/trigger"
)

// recordingFake counts executed commands and fails any body containing
// "bad".
type recordingFake struct {
	count atomic.Int32
}

func (f *recordingFake) RunCommand(ctx context.Context, command string, env map[string]string) (int, error) {
	f.count.Add(1)
	if command == "make bad" {
		return 1, nil
	}
	return 0, nil
}

func testController(commands executor.CommandRunner) *Controller {
	runs := executor.New(executor.Config{Commands: commands})
	return New(Config{Scheduler: scheduler.New(scheduler.Config{Executor: runs})})
}

func pushWorkflow(jobs ...workflow.Job) *workflow.Workflow {
	return &workflow.Workflow{
		Name: "ci",
		On: []workflow.TriggerRule{
			{Kind: workflow.EventPush, Branches: []string{"master"}},
		},
		Jobs: jobs,
	}
}

func TestRunSuccess(t *testing.T) {
	t.Parallel()

	content := pushWorkflow(workflow.Job{
		Name: "test",
		Strategy: &workflow.Strategy{Matrix: &workflow.Matrix{
			Axes: []workflow.Axis{
				{Name: "os", Values: []string{"linux", "macos"}},
			},
		}},
		Steps: []workflow.Step{{Run: "make test"}},
	})

	result, err := testController(&recordingFake{}).Run(context.Background(), content, trigger.Event{
		Kind:   workflow.EventPush,
		Branch: "master",
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Status != workflow.RunSucceeded {
		t.Fatalf("Status = %s, want succeeded", result.Status)
	}
	if result.RunID == "" {
		t.Error("RunID is empty")
	}
	if result.Workflow != "ci" {
		t.Errorf("Workflow = %q", result.Workflow)
	}
	if len(result.Instances) != 2 {
		t.Fatalf("len(Instances) = %d, want 2", len(result.Instances))
	}
	for _, instance := range result.Instances {
		if instance.Status != workflow.InstanceSucceeded {
			t.Errorf("%s status = %s", instance.Instance, instance.Status)
		}
	}
}

func TestRunNotTriggered(t *testing.T) {
	t.Parallel()

	content := pushWorkflow(workflow.Job{
		Name:  "test",
		Steps: []workflow.Step{{Run: "make test"}},
	})

	commands := &recordingFake{}
	result, err := testController(commands).Run(context.Background(), content, trigger.Event{
		Kind:   workflow.EventPush,
		Branch: "feature-x",
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Status != workflow.RunNotTriggered {
		t.Fatalf("Status = %s, want not_triggered", result.Status)
	}
	if len(result.Instances) != 0 {
		t.Errorf("len(Instances) = %d, want 0", len(result.Instances))
	}
	if commands.count.Load() != 0 {
		t.Errorf("%d commands ran for a not-triggered event", commands.count.Load())
	}
}

func TestRunFailedInstanceFailsRun(t *testing.T) {
	t.Parallel()

	content := pushWorkflow(
		workflow.Job{Name: "good", Steps: []workflow.Step{{Run: "make good"}}},
		workflow.Job{Name: "bad", Steps: []workflow.Step{{Run: "make bad"}}},
	)

	result, err := testController(&recordingFake{}).Run(context.Background(), content, trigger.Event{
		Kind:   workflow.EventPush,
		Branch: "master",
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Status != workflow.RunFailed {
		t.Fatalf("Status = %s, want failed", result.Status)
	}
	if result.Instances[0].Status != workflow.InstanceSucceeded {
		t.Errorf("good status = %s", result.Instances[0].Status)
	}
	if result.Instances[1].Status != workflow.InstanceFailed {
		t.Errorf("bad status = %s", result.Instances[1].Status)
	}
	if result.Instances[1].FailedStep != "make bad" {
		t.Errorf("bad FailedStep = %q", result.Instances[1].FailedStep)
	}
}

func TestRunInvalidWorkflow(t *testing.T) {
	t.Parallel()

	content := pushWorkflow(workflow.Job{Name: "empty"})

	_, err := testController(&recordingFake{}).Run(context.Background(), content, trigger.Event{
		Kind:   workflow.EventPush,
		Branch: "master",
	})
	if err == nil {
		t.Fatal("Run accepted a workflow with a stepless job")
	}
	var configErr *workflow.ConfigError
	if !errors.As(err, &configErr) {
		t.Fatalf("error type = %T, want *workflow.ConfigError", err)
	}
}

func TestRunMalformedEvent(t *testing.T) {
	t.Parallel()

	content := pushWorkflow(workflow.Job{
		Name:  "test",
		Steps: []workflow.Step{{Run: "make test"}},
	})

	_, err := testController(&recordingFake{}).Run(context.Background(), content, trigger.Event{
		Kind: workflow.EventPush, // no branch
	})
	if err == nil {
		t.Fatal("Run accepted a push event without a branch")
	}
	var configErr *workflow.ConfigError
	if !errors.As(err, &configErr) {
		t.Fatalf("error type = %T, want *workflow.ConfigError", err)
	}
}

func TestRunDanglingIncludeRejectedBeforeExecution(t *testing.T) {
	t.Parallel()

	commands := &recordingFake{}
	content := pushWorkflow(workflow.Job{
		Name: "test",
		Strategy: &workflow.Strategy{Matrix: &workflow.Matrix{
			Axes: []workflow.Axis{
				{Name: "os", Values: []string{"linux"}},
			},
			Include: []workflow.Include{
				{Entries: map[string]string{"os": "windows", "cc": "msvc"}},
			},
		}},
		Steps: []workflow.Step{{Run: "make test"}},
	})

	_, err := testController(commands).Run(context.Background(), content, trigger.Event{
		Kind:   workflow.EventPush,
		Branch: "master",
	})
	if err == nil {
		t.Fatal("Run accepted a dangling include overlay")
	}
	if commands.count.Load() != 0 {
		t.Errorf("%d commands ran despite the configuration error", commands.count.Load())
	}
}
