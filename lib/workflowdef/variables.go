// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

package workflowdef

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/conveyor-ci/conveyor/lib/schema/workflow"
)

// variablePattern matches ${NAME} references in strings. Only the
// braced form is recognized — bare $NAME is left for shell
// interpretation. Variable names must start with a letter or
// underscore and contain only letters, digits, and underscores.
var variablePattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Expand replaces ${NAME} references in input with values from the
// bindings map (a job instance's resolved matrix bindings).
//
// Returns an error listing all referenced names that have no value in
// the map, so declarations fail fast on unresolvable references
// rather than producing broken commands.
func Expand(input string, bindings map[string]string) (string, error) {
	var unresolved []string

	result := variablePattern.ReplaceAllStringFunc(input, func(match string) string {
		name := match[2 : len(match)-1]
		if value, exists := bindings[name]; exists {
			return value
		}
		unresolved = append(unresolved, name)
		return match
	})

	if len(unresolved) > 0 {
		return "", fmt.Errorf("unresolved matrix bindings: %s", strings.Join(unresolved, ", "))
	}
	return result, nil
}

// ExpandStep returns a copy of step with all string fields expanded
// against the instance's bindings. Step-level Env values are expanded
// first, then merged on top of the bindings for expanding the command
// fields — a run command can reference its own env entries with
// ${NAME}, and those values will already have their own references
// resolved.
//
// The original step and bindings map are not modified.
func ExpandStep(step workflow.Step, bindings map[string]string) (workflow.Step, error) {
	var expandedEnv map[string]string
	if len(step.Env) > 0 {
		expandedEnv = make(map[string]string, len(step.Env))
		for name, value := range step.Env {
			expandedValue, err := Expand(value, bindings)
			if err != nil {
				return workflow.Step{}, fmt.Errorf("step %q env[%s]: %w", step.Identity(), name, err)
			}
			expandedEnv[name] = expandedValue
		}
	}

	merged := make(map[string]string, len(bindings)+len(expandedEnv))
	for name, value := range bindings {
		merged[name] = value
	}
	for name, value := range expandedEnv {
		merged[name] = value
	}

	var err error
	if step.Run, err = Expand(step.Run, merged); err != nil {
		return workflow.Step{}, fmt.Errorf("step %q run: %w", step.Identity(), err)
	}
	if step.Uses, err = Expand(step.Uses, merged); err != nil {
		return workflow.Step{}, fmt.Errorf("step %q uses: %w", step.Identity(), err)
	}

	step.Env = expandedEnv
	return step, nil
}
