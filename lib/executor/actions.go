// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

package executor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ScriptActions resolves reusable action references against a local
// script directory: the reference "actions/checkout@v4" resolves to
// "<dir>/actions-checkout@v4". The script runs through the same
// command runner as inline steps, with the instance's bindings
// exported as environment variables.
//
// This is the single-controller stand-in for a remote action registry;
// the orchestrator treats the resolved script as just another opaque
// command with an exit code.
type ScriptActions struct {
	// Dir is the script directory. Required.
	Dir string

	// Commands runs the resolved script. Defaults to a ShellRunner.
	Commands CommandRunner
}

// RunAction implements ActionRunner.
func (s *ScriptActions) RunAction(ctx context.Context, reference string, bindings map[string]string) (int, error) {
	path := filepath.Join(s.Dir, scriptName(reference))
	if _, err := os.Stat(path); err != nil {
		return -1, fmt.Errorf("action %q does not resolve: %w", reference, err)
	}

	commands := s.Commands
	if commands == nil {
		commands = &ShellRunner{}
	}
	return commands.RunCommand(ctx, path, bindings)
}

// scriptName flattens an action reference into a file name. Path
// separators become dashes so references cannot escape the script
// directory.
func scriptName(reference string) string {
	return strings.ReplaceAll(reference, "/", "-")
}
