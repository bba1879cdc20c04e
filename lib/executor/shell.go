// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

package executor

import (
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"syscall"
	"time"
)

// ShellRunner executes command bodies via "sh -e -c". The -e flag
// makes a multi-line body a single unit: the first failing line fails
// the whole step, with no partial-step success.
//
// The shell is resolved via PATH rather than hardcoded to /bin/sh, so
// minimal execution environments that only provide a PATH entry work.
//
// Commands run in their own process group so that cancellation kills
// the shell and all its children. Without Setpgid only the shell
// receives the signal — children survive and hold the inherited
// stdout/stderr descriptors open, blocking the parent.
type ShellRunner struct {
	// Stdout and Stderr receive the command's output. When nil, the
	// orchestrator process's own streams are inherited.
	Stdout io.Writer
	Stderr io.Writer

	// GracePeriod, when positive, sends SIGTERM on cancellation and
	// escalates to SIGKILL after the period elapses, giving the
	// command a chance to flush and clean up. Zero means immediate
	// SIGKILL — the default for ephemeral CI commands, which should
	// not hold a run hostage.
	GracePeriod time.Duration
}

// RunCommand implements CommandRunner. Returns the command's exit code
// with a nil error for any completed execution, or a non-nil error
// when the command could not be started or was torn down by the
// context.
func (r *ShellRunner) RunCommand(ctx context.Context, command string, env map[string]string) (int, error) {
	cmd := exec.CommandContext(ctx, "sh", "-e", "-c", command)

	cmd.Stdout = r.Stdout
	if cmd.Stdout == nil {
		cmd.Stdout = os.Stdout
	}
	cmd.Stderr = r.Stderr
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}

	// Signals target the process group (negative PID), reaching the
	// shell and everything it spawned.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if r.GracePeriod > 0 {
		cmd.Cancel = func() error {
			processGroupID := -cmd.Process.Pid
			if err := syscall.Kill(processGroupID, syscall.SIGTERM); err != nil {
				// SIGTERM failed (group already gone), escalate.
				return syscall.Kill(processGroupID, syscall.SIGKILL)
			}
			go func() {
				time.Sleep(r.GracePeriod)
				// Best-effort: ESRCH from a dead group is harmless.
				_ = syscall.Kill(processGroupID, syscall.SIGKILL)
			}()
			return nil
		}
	} else {
		cmd.Cancel = func() error {
			return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
		}
	}

	if len(env) > 0 {
		cmd.Env = os.Environ()
		for name, value := range env {
			cmd.Env = append(cmd.Env, name+"="+value)
		}
	}

	err := cmd.Run()
	if err == nil {
		return 0, nil
	}

	var exitError *exec.ExitError
	if errors.As(err, &exitError) {
		return exitError.ExitCode(), nil
	}

	// Non-exit errors: context cancellation, spawn failure, signal.
	return -1, err
}
