// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

package workflow

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Matrix is a declarative cross-product of axis values used to expand
// one job template into multiple instances, plus an ordered sequence
// of include overlays that augment specific combinations.
type Matrix struct {
	// Axes holds the declared axes in declaration order. The first
	// axis is the outermost loop of the expansion.
	Axes []Axis

	// Include holds the overlays in declaration order. Overlays are
	// applied after base generation; when several overlays touch the
	// same combination and the same key, the last one wins.
	Include []Include
}

// Axis is one matrix dimension: a name plus its ordered value set.
type Axis struct {
	Name   string
	Values []string
}

// Include is one overlay: a flat mapping whose keys split into a
// match predicate (keys naming a declared axis) and the extra
// key/value pairs merged into every matching combination. The split
// needs the axis list, so it happens in Matrix.Partition rather than
// at decode time.
type Include struct {
	// Entries holds the raw declaration. Axis-name keys bind axis
	// values; every bound value must appear in its axis's declared
	// value set — a dangling reference is a configuration error, not
	// a run-time skip. The remaining keys are the overlay: bindings
	// not already present in a matching combination are added,
	// conflicting ones are overwritten by the overlay.
	Entries map[string]string
}

// HasAxis reports whether name is a declared axis.
func (m *Matrix) HasAxis(name string) bool {
	for _, axis := range m.Axes {
		if axis.Name == name {
			return true
		}
	}
	return false
}

// AxisValues returns the declared value set for an axis, or nil when
// the axis does not exist.
func (m *Matrix) AxisValues(name string) []string {
	for _, axis := range m.Axes {
		if axis.Name == name {
			return axis.Values
		}
	}
	return nil
}

// Partition splits an include's raw entries into the match predicate
// (keys naming a declared axis) and the overlay map (everything else).
// Pure: the declaration is never mutated, so concurrent readers of the
// same Matrix are safe.
func (m *Matrix) Partition(include Include) (match, set map[string]string) {
	match = make(map[string]string)
	set = make(map[string]string)
	for key, value := range include.Entries {
		if m.HasAxis(key) {
			match[key] = value
		} else {
			set[key] = value
		}
	}
	return match, set
}

// UnmarshalYAML decodes a matrix block. Axis order and axis value
// order follow the declaration; expansion order depends on both.
func (m *Matrix) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("matrix: expected a mapping at line %d", node.Line)
	}

	for i := 0; i+1 < len(node.Content); i += 2 {
		key, value := node.Content[i], node.Content[i+1]

		if key.Value == "include" {
			includes, err := decodeIncludes(value)
			if err != nil {
				return err
			}
			m.Include = includes
			continue
		}

		values, err := decodeAxisValues(key.Value, value)
		if err != nil {
			return err
		}
		m.Axes = append(m.Axes, Axis{Name: key.Value, Values: values})
	}
	return nil
}

// decodeAxisValues reads an axis value list. Values are taken as their
// literal scalar text so that numeric-looking entries ("1.70") survive
// as strings.
func decodeAxisValues(axis string, node *yaml.Node) ([]string, error) {
	if node.Kind != yaml.SequenceNode {
		return nil, fmt.Errorf("matrix: axis %q must be a list (line %d)", axis, node.Line)
	}
	values := make([]string, 0, len(node.Content))
	for _, item := range node.Content {
		if item.Kind != yaml.ScalarNode {
			return nil, fmt.Errorf("matrix: axis %q values must be scalars (line %d)", axis, item.Line)
		}
		values = append(values, item.Value)
	}
	return values, nil
}

// decodeIncludes reads the include overlay list. Each entry is a flat
// scalar mapping; the predicate/overlay split happens later via
// Partition, once the axis list is known.
func decodeIncludes(node *yaml.Node) ([]Include, error) {
	if node.Kind != yaml.SequenceNode {
		return nil, fmt.Errorf("matrix: include must be a list (line %d)", node.Line)
	}

	includes := make([]Include, 0, len(node.Content))
	for _, entry := range node.Content {
		if entry.Kind != yaml.MappingNode {
			return nil, fmt.Errorf("matrix: include entries must be mappings (line %d)", entry.Line)
		}
		entries := make(map[string]string, len(entry.Content)/2)
		for i := 0; i+1 < len(entry.Content); i += 2 {
			key, value := entry.Content[i], entry.Content[i+1]
			if value.Kind != yaml.ScalarNode {
				return nil, fmt.Errorf("matrix: include value for %q must be a scalar (line %d)", key.Value, value.Line)
			}
			entries[key.Value] = value.Value
		}
		includes = append(includes, Include{Entries: entries})
	}
	return includes, nil
}
