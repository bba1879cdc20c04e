// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

package workflow

import (
	"fmt"
	"strings"
)

// ConfigError reports a malformed declaration or event. Configuration
// errors are fatal: the run is rejected before any job starts, and
// nothing executes. Callers distinguish them from runtime failures
// with errors.As.
type ConfigError struct {
	// Issues lists the individual problems, one human-readable
	// description each. Never empty.
	Issues []string
}

// Error joins the issues into a single message.
func (e *ConfigError) Error() string {
	if len(e.Issues) == 1 {
		return "configuration error: " + e.Issues[0]
	}
	return fmt.Sprintf("configuration error (%d issues):\n  %s",
		len(e.Issues), strings.Join(e.Issues, "\n  "))
}

// ConfigErrorf builds a single-issue ConfigError.
func ConfigErrorf(format string, args ...any) error {
	return &ConfigError{Issues: []string{fmt.Sprintf(format, args...)}}
}
