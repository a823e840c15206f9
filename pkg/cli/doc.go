// Package cli provides shared helpers for the t140cast command line:
// output formatting (YAML, JSON, table), colored device status, request
// file loading and the per-user directory layout under ~/.t140cast.
package cli
