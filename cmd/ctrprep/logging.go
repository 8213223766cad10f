// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"io"
	"log/slog"

	"github.com/charmbracelet/log"

	"github.com/ctrprep/ctrprep/internal/config"
)

// newLogger returns a slog logger writing through a charmbracelet/log
// handler. verbose forces debug level.
func newLogger(w io.Writer, level config.LogLevel, verbose bool) *slog.Logger {
	lvl, err := log.ParseLevel(string(level))
	if err != nil {
		lvl = log.InfoLevel
	}
	if verbose {
		lvl = log.DebugLevel
	}
	handler := log.NewWithOptions(w, log.Options{
		Level:           lvl,
		Prefix:          "ctrprep",
		ReportTimestamp: verbose,
	})
	return slog.New(handler)
}
