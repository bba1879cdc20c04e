// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

// Package workflowdef provides parsing, validation, and variable
// expansion for Conveyor workflow declarations.
//
// Declarations are authored on disk as YAML (the common CI format) or
// JSONC (JSON extended with comments and trailing commas); the format
// is chosen by file extension. Both decode into the same
// workflow.Workflow content.
//
// The typical flow:
//
//  1. ReadFile or Parse: declaration bytes → workflow.Workflow
//  2. Validate / Check: structural checks (Uses XOR Run, include
//     references, cron syntax, ...)
//  3. Expand / ExpandStep: substitute ${NAME} references from a job
//     instance's resolved bindings before execution
package workflowdef

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/conveyor-ci/conveyor/lib/schema/workflow"
)

// Parse unmarshals a YAML workflow declaration.
func Parse(data []byte) (*workflow.Workflow, error) {
	var content workflow.Workflow
	if err := yaml.Unmarshal(data, &content); err != nil {
		return nil, fmt.Errorf("parsing workflow: %w", err)
	}
	return &content, nil
}

// ParseJSONC strips JSONC comments and trailing commas from data, then
// unmarshals the remaining JSON. JSON is a YAML subset, so the decode
// path (and its order preservation for jobs and axes) is shared with
// Parse.
func ParseJSONC(data []byte) (*workflow.Workflow, error) {
	return Parse(jsonc.ToJSON(data))
}

// ReadFile reads a workflow declaration from disk, choosing the parser
// by extension: .jsonc (and .json) use ParseJSONC, everything else is
// treated as YAML. When the declaration has no name of its own, the
// file name (without extension) is used.
func ReadFile(path string) (*workflow.Workflow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	var content *workflow.Workflow
	switch filepath.Ext(path) {
	case ".jsonc", ".json":
		content, err = ParseJSONC(data)
	default:
		content, err = Parse(data)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	if content.Name == "" {
		content.Name = NameFromPath(path)
	}
	return content, nil
}

// NameFromPath extracts a workflow name from a file path by stripping
// the directory prefix and the file extension.
func NameFromPath(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
