// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

// conveyor-hook is the webhook intake for Conveyor: an HTTP listener
// that receives forge events (push, pull_request) and runs the
// matching workflow declaration from a local directory.
//
//	POST /hooks/{workflow}   run a workflow against the posted event
//	GET  /runs               list recent runs from the history store
//	GET  /runs/{id}          fetch one run with its step logs
//	GET  /healthz            liveness probe
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/conveyor-ci/conveyor/lib/controller"
	"github.com/conveyor-ci/conveyor/lib/executor"
	"github.com/conveyor-ci/conveyor/lib/runstore"
	"github.com/conveyor-ci/conveyor/lib/scheduler"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "conveyor-hook: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		address     = pflag.String("addr", defaultAddress(), "listen address")
		workflowDir = pflag.String("workflows", ".", "directory of workflow declarations")
		storePath   = pflag.String("store", "", "SQLite run-history database (optional)")
		platforms   = pflag.StringSlice("platforms", nil, "platform labels this controller can provision (empty accepts all)")
		actionsDir  = pflag.String("actions", "", "directory of scripts backing reusable action references")
		failFast    = pflag.Bool("fail-fast", false, "cancel remaining job instances after the first failure")
	)
	pflag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	var store *runstore.Store
	if *storePath != "" {
		var err error
		store, err = runstore.Open(*storePath, logger)
		if err != nil {
			return err
		}
		defer store.Close()
	}

	var actions executor.ActionRunner
	if *actionsDir != "" {
		actions = &executor.ScriptActions{Dir: *actionsDir}
	}

	pipeline := controller.New(controller.Config{
		Scheduler: scheduler.New(scheduler.Config{
			Executor:  executor.New(executor.Config{Actions: actions, Logger: logger}),
			Logger:    logger,
			FailFast:  *failFast,
			Platforms: *platforms,
		}),
		Logger: logger,
	})

	handler := &server{
		workflows:  *workflowDir,
		controller: pipeline,
		store:      store,
		logger:     logger,
	}

	httpServer := &http.Server{
		Addr:              *address,
		Handler:           handler.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errs := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", *address, "workflows", *workflowDir)
		errs <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
	}

	shutdownContext, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownContext); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("shutting down: %w", err)
	}
	return nil
}

// defaultAddress reads CONVEYOR_ADDR, falling back to :8472.
func defaultAddress() string {
	if address := os.Getenv("CONVEYOR_ADDR"); address != "" {
		return address
	}
	return ":8472"
}
