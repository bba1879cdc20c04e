// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

// conveyor-run executes one workflow declaration against one
// synthesized event and reports the aggregated result.
//
// Exit codes: 0 when the run succeeded, 1 on failure or any error,
// 3 when no trigger rule matched the event (not-triggered is distinct
// from both success and failure).
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/conveyor-ci/conveyor/lib/controller"
	"github.com/conveyor-ci/conveyor/lib/executor"
	"github.com/conveyor-ci/conveyor/lib/resultlog"
	"github.com/conveyor-ci/conveyor/lib/runstore"
	"github.com/conveyor-ci/conveyor/lib/scheduler"
	"github.com/conveyor-ci/conveyor/lib/schema/workflow"
	"github.com/conveyor-ci/conveyor/lib/trigger"
	"github.com/conveyor-ci/conveyor/lib/workflowdef"
)

// exitNotTriggered distinguishes "nothing matched" from failure.
const exitNotTriggered = 3

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "conveyor-run: %v\n", err)
		if code == 0 {
			code = 1
		}
	}
	os.Exit(code)
}

func run() (int, error) {
	var (
		workflowPath = pflag.String("workflow", "", "path to the workflow declaration (.yaml or .jsonc)")
		eventKind    = pflag.String("event", "", "event kind: pull_request, push, or schedule")
		branch       = pflag.String("branch", "", "target branch (required for push events)")
		failFast     = pflag.Bool("fail-fast", false, "cancel remaining job instances after the first failure")
		platforms    = pflag.StringSlice("platforms", nil, "platform labels this controller can provision (empty accepts all)")
		actionsDir   = pflag.String("actions", "", "directory of scripts backing reusable action references")
		storePath    = pflag.String("store", "", "SQLite run-history database (optional)")
		resultPath   = pflag.String("result-log", "", "JSONL result log path (optional)")
		stepTimeout  = pflag.Duration("step-timeout", executor.DefaultStepTimeout, "default timeout for steps that declare none")
		gracePeriod  = pflag.Duration("grace-period", 0, "SIGTERM grace before SIGKILL on step cancellation")
		verbose      = pflag.Bool("verbose", false, "log scheduling detail to stderr")
	)
	pflag.Parse()

	if *workflowPath == "" {
		return 1, fmt.Errorf("--workflow is required")
	}
	if *eventKind == "" {
		return 1, fmt.Errorf("--event is required")
	}

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	content, err := workflowdef.ReadFile(*workflowPath)
	if err != nil {
		return 1, err
	}

	// SIGINT/SIGTERM cancel the run; in-flight commands receive the
	// cancellation through their contexts.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var results *resultlog.Log
	if *resultPath != "" {
		results, err = resultlog.New(*resultPath, logger)
		if err != nil {
			return 1, err
		}
		defer results.Close()
	}

	var actions executor.ActionRunner
	if *actionsDir != "" {
		actions = &executor.ScriptActions{
			Dir:      *actionsDir,
			Commands: &executor.ShellRunner{GracePeriod: *gracePeriod},
		}
	}

	steps := executor.New(executor.Config{
		Commands:    &executor.ShellRunner{GracePeriod: *gracePeriod},
		Actions:     actions,
		Logger:      logger,
		StepTimeout: *stepTimeout,
		Sink: func(instance string, entry executor.StepLog) {
			fmt.Printf("[%s] step %d: %s... %s (%s)\n",
				instance, entry.Ordinal+1, entry.Identity, entry.Outcome,
				entry.Duration.Round(time.Millisecond))
			results.WriteStep(instance, entry)
		},
	})

	pipeline := controller.New(controller.Config{
		Scheduler: scheduler.New(scheduler.Config{
			Executor:  steps,
			Logger:    logger,
			FailFast:  *failFast,
			Platforms: *platforms,
		}),
		Logger:    logger,
		ResultLog: results,
	})

	result, err := pipeline.Run(ctx, content, trigger.Event{
		Kind:   workflow.EventKind(*eventKind),
		Branch: *branch,
	})
	if err != nil {
		return 1, err
	}

	if result.Status == workflow.RunNotTriggered {
		fmt.Printf("%s: not triggered by %s event\n", result.Workflow, result.Event.Kind)
		return exitNotTriggered, nil
	}

	if *storePath != "" {
		store, err := runstore.Open(*storePath, logger)
		if err != nil {
			return 1, err
		}
		defer store.Close()
		if err := store.RecordRun(ctx, result); err != nil {
			return 1, err
		}
	}

	for _, instance := range result.Instances {
		line := fmt.Sprintf("%-40s %s", instance.Instance, instance.Status)
		if instance.FailedStep != "" {
			line += fmt.Sprintf(" (at step %q)", instance.FailedStep)
		}
		if instance.Error != "" {
			line += ": " + instance.Error
		}
		fmt.Println(line)
	}
	fmt.Printf("%s: %s (%s)\n", result.Workflow, result.Status,
		result.Duration.Round(time.Millisecond))

	if result.Status != workflow.RunSucceeded {
		return 1, nil
	}
	return 0, nil
}
