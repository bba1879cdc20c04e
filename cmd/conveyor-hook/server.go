// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/conveyor-ci/conveyor/lib/controller"
	"github.com/conveyor-ci/conveyor/lib/runstore"
	"github.com/conveyor-ci/conveyor/lib/schema/workflow"
	"github.com/conveyor-ci/conveyor/lib/trigger"
	"github.com/conveyor-ci/conveyor/lib/workflowdef"
)

// workflowExtensions are tried in order when resolving a workflow name
// against the declaration directory.
var workflowExtensions = []string{".yaml", ".yml", ".jsonc", ".json"}

// server carries the HTTP handler dependencies. Runs execute
// synchronously within the request: the caller gets the full RunResult
// in the response body.
type server struct {
	workflows  string
	controller *controller.Controller
	store      *runstore.Store
	logger     *slog.Logger
}

// routes builds the chi router.
func (s *server) routes() http.Handler {
	router := chi.NewRouter()
	router.Use(middleware.Recoverer)

	router.Post("/hooks/{workflow}", s.handleHook)
	router.Get("/runs", s.handleListRuns)
	router.Get("/runs/{id}", s.handleGetRun)
	router.Get("/healthz", func(writer http.ResponseWriter, _ *http.Request) {
		writer.WriteHeader(http.StatusNoContent)
	})
	return router
}

// handleHook runs one workflow against the posted event.
func (s *server) handleHook(writer http.ResponseWriter, request *http.Request) {
	name := chi.URLParam(request, "workflow")

	var event trigger.Event
	if err := json.NewDecoder(request.Body).Decode(&event); err != nil {
		s.writeError(writer, http.StatusBadRequest, "malformed event body: "+err.Error())
		return
	}

	path, found := s.resolveWorkflow(name)
	if !found {
		s.writeError(writer, http.StatusNotFound, "unknown workflow "+name)
		return
	}

	content, err := workflowdef.ReadFile(path)
	if err != nil {
		s.writeError(writer, http.StatusUnprocessableEntity, err.Error())
		return
	}

	result, err := s.controller.Run(request.Context(), content, event)
	if err != nil {
		var configError *workflow.ConfigError
		if errors.As(err, &configError) {
			s.writeError(writer, http.StatusUnprocessableEntity, err.Error())
			return
		}
		s.writeError(writer, http.StatusInternalServerError, err.Error())
		return
	}

	if s.store != nil && result.Status != workflow.RunNotTriggered {
		if err := s.store.RecordRun(request.Context(), result); err != nil {
			s.logger.Error("recording run failed", "run_id", result.RunID, "error", err)
		}
	}

	s.writeJSON(writer, http.StatusOK, result)
}

// handleListRuns lists recent runs, newest first. Requires the history
// store.
func (s *server) handleListRuns(writer http.ResponseWriter, request *http.Request) {
	if s.store == nil {
		s.writeError(writer, http.StatusNotFound, "run history is not enabled")
		return
	}
	summaries, err := s.store.ListRuns(request.Context(), 50)
	if err != nil {
		s.writeError(writer, http.StatusInternalServerError, err.Error())
		return
	}
	if summaries == nil {
		summaries = []runstore.RunSummary{}
	}
	s.writeJSON(writer, http.StatusOK, summaries)
}

// handleGetRun fetches one run with its instances and step logs.
func (s *server) handleGetRun(writer http.ResponseWriter, request *http.Request) {
	if s.store == nil {
		s.writeError(writer, http.StatusNotFound, "run history is not enabled")
		return
	}
	result, err := s.store.GetRun(request.Context(), chi.URLParam(request, "id"))
	if err != nil {
		if errors.Is(err, runstore.ErrNotFound) {
			s.writeError(writer, http.StatusNotFound, err.Error())
			return
		}
		s.writeError(writer, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(writer, http.StatusOK, result)
}

// resolveWorkflow maps a workflow name to a declaration file,
// rejecting names that would escape the directory.
func (s *server) resolveWorkflow(name string) (string, bool) {
	if name != filepath.Base(name) {
		return "", false
	}
	for _, extension := range workflowExtensions {
		path := filepath.Join(s.workflows, name+extension)
		if _, err := os.Stat(path); err == nil {
			return path, true
		}
	}
	return "", false
}

func (s *server) writeJSON(writer http.ResponseWriter, status int, value any) {
	writer.Header().Set("Content-Type", "application/json")
	writer.WriteHeader(status)
	if err := json.NewEncoder(writer).Encode(value); err != nil {
		s.logger.Error("writing response failed", "error", err)
	}
}

func (s *server) writeError(writer http.ResponseWriter, status int, message string) {
	s.writeJSON(writer, status, map[string]string{"error": message})
}
