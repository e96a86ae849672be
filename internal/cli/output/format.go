// Package output renders command results as tables, JSON or YAML.
package output

import (
	"fmt"
	"io"
	"strings"
)

// Format represents the output format type.
type Format string

const (
	// FormatTable outputs data in a formatted table.
	FormatTable Format = "table"
	// FormatJSON outputs data as JSON.
	FormatJSON Format = "json"
	// FormatYAML outputs data as YAML.
	FormatYAML Format = "yaml"
)

// ParseFormat parses a string into a Format, returning an error if invalid.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "table", "":
		return FormatTable, nil
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("invalid output format: %q (valid: table, json, yaml)", s)
	}
}

// String returns the string representation of the format.
func (f Format) String() string {
	return string(f)
}

// Print writes data to w in format f. Table output requires data to be a
// TableRenderer; anything else falls back to YAML, which reads well for
// nested geometry.
func Print(w io.Writer, f Format, data any) error {
	switch f {
	case FormatTable:
		if renderer, ok := data.(TableRenderer); ok {
			return PrintTable(w, renderer)
		}
		return PrintYAML(w, data)
	case FormatJSON:
		return PrintJSON(w, data)
	case FormatYAML:
		return PrintYAML(w, data)
	default:
		return fmt.Errorf("unknown format: %s", f)
	}
}

// Status colors a one-line status message when color is set.
type Status int

const (
	StatusOK Status = iota
	StatusWarn
	StatusFail
)

// PrintStatus writes msg, coloured green, yellow or red.
func PrintStatus(w io.Writer, s Status, msg string, color bool) {
	if !color {
		_, _ = fmt.Fprintln(w, msg)
		return
	}
	code := "32"
	switch s {
	case StatusWarn:
		code = "33"
	case StatusFail:
		code = "31"
	}
	_, _ = fmt.Fprintf(w, "\033[%sm%s\033[0m\n", code, msg)
}
