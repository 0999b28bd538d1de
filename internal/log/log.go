// Copyright (C) 2025 Logical Mechanism LLC
// SPDX-License-Identifier: GPL-3.0-only

// Package log builds the zerolog logger shared by the harness and gnark.
package log

import (
	"fmt"
	"io"
	"strings"
	"time"

	gnarklogger "github.com/consensys/gnark/logger"
	"github.com/rs/zerolog"
)

// Output formats accepted by New.
const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

// New returns a logger writing to w at the given level ("debug", "info",
// "warn", "error", "disabled"). The same logger is installed into gnark so
// that circuit compilation and proving logs share one stream; gnark output
// is silenced unless the level is debug.
func New(level, format string, w io.Writer) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("parse log level %q: %w", level, err)
	}
	if lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	switch format {
	case "", FormatConsole:
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.TimeOnly}
	case FormatJSON:
	default:
		return zerolog.Nop(), fmt.Errorf("unknown log format %q (want %s or %s)", format, FormatConsole, FormatJSON)
	}

	l := zerolog.New(w).Level(lvl).With().Timestamp().Logger()

	if lvl <= zerolog.DebugLevel {
		gnarklogger.Set(l.With().Str("component", "gnark").Logger())
	} else {
		gnarklogger.Disable()
	}
	return l, nil
}
