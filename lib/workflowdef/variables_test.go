// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

package workflowdef

import (
	"reflect"
	"strings"
	"testing"

	"github.com/conveyor-ci/conveyor/lib/schema/workflow"
)

func TestExpand(t *testing.T) {
	t.Parallel()

	bindings := map[string]string{
		"os":   "ubuntu-latest",
		"rust": "1.70",
	}

	tests := []struct {
		name    string
		input   string
		want    string
		wantErr string
	}{
		{
			name:  "single reference",
			input: "container-${os}",
			want:  "container-ubuntu-latest",
		},
		{
			name:  "multiple references",
			input: "rustup install ${rust} && echo ${os}",
			want:  "rustup install 1.70 && echo ubuntu-latest",
		},
		{
			name:  "no references",
			input: "cargo test",
			want:  "cargo test",
		},
		{
			name:  "bare dollar left for the shell",
			input: "echo $HOME ${os}",
			want:  "echo $HOME ubuntu-latest",
		},
		{
			name:    "unresolved reference",
			input:   "echo ${missing}",
			wantErr: "unresolved matrix bindings: missing",
		},
		{
			name:    "multiple unresolved references",
			input:   "${a} ${b}",
			wantErr: "unresolved matrix bindings: a, b",
		},
	}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()

			got, err := Expand(test.input, bindings)
			if test.wantErr != "" {
				if err == nil {
					t.Fatalf("Expand(%q) succeeded, want error", test.input)
				}
				if !strings.Contains(err.Error(), test.wantErr) {
					t.Errorf("error = %q, want substring %q", err, test.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Expand(%q): %v", test.input, err)
			}
			if got != test.want {
				t.Errorf("Expand(%q) = %q, want %q", test.input, got, test.want)
			}
		})
	}
}

func TestExpandStep(t *testing.T) {
	t.Parallel()

	step := workflow.Step{
		Name: "test",
		Run:  "cargo +${toolchain} test --target ${TARGET}",
		Env: map[string]string{
			"TARGET":    "${arch}-unknown-linux-gnu",
			"CARGO_JOB": "ci",
		},
	}
	bindings := map[string]string{
		"toolchain": "stable",
		"arch":      "aarch64",
	}

	expanded, err := ExpandStep(step, bindings)
	if err != nil {
		t.Fatalf("ExpandStep: %v", err)
	}

	// Env expands against the bindings first, then the command can
	// reference the expanded env entries.
	if expanded.Run != "cargo +stable test --target aarch64-unknown-linux-gnu" {
		t.Errorf("Run = %q", expanded.Run)
	}
	wantEnv := map[string]string{
		"TARGET":    "aarch64-unknown-linux-gnu",
		"CARGO_JOB": "ci",
	}
	if !reflect.DeepEqual(expanded.Env, wantEnv) {
		t.Errorf("Env = %v, want %v", expanded.Env, wantEnv)
	}

	// The originals are untouched.
	if step.Run != "cargo +${toolchain} test --target ${TARGET}" {
		t.Errorf("original step mutated: %q", step.Run)
	}
	if step.Env["TARGET"] != "${arch}-unknown-linux-gnu" {
		t.Errorf("original env mutated: %q", step.Env["TARGET"])
	}
}

func TestExpandStepUnresolved(t *testing.T) {
	t.Parallel()

	step := workflow.Step{Uses: "actions/setup-${tool}@v1"}
	_, err := ExpandStep(step, map[string]string{})
	if err == nil {
		t.Fatal("ExpandStep resolved a reference with no binding")
	}
	if !strings.Contains(err.Error(), "tool") {
		t.Errorf("error = %q, want the unresolved name", err)
	}
}
