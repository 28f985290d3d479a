package log

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// Options select the level and sink of a logger built by New.
type Options struct {
	Level string
	// File, when set, sends output to a rotating file instead of the
	// fallback writer.
	File      string
	MaxSizeMB int
	MaxFiles  int
	JSON      bool
}

// ParseLevel maps a config level name onto slog. Empty means warn.
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "", "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", name)
	}
}

// New builds a redacting logger. The returned closer releases the log file
// and is a no-op when output goes to fallback.
func New(opts Options, fallback io.Writer) (*slog.Logger, io.Closer, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, nil, err
	}

	sink := fallback
	var closer io.Closer = nopCloser{}
	if opts.File != "" {
		writer, err := NewRotatingWriter(RotationConfig{
			File:      opts.File,
			MaxSizeMB: opts.MaxSizeMB,
			MaxFiles:  opts.MaxFiles,
		})
		if err != nil {
			return nil, nil, err
		}
		sink, closer = writer, writer
	}
	if sink == nil {
		sink = io.Discard
	}

	handlerOpts := &slog.HandlerOptions{Level: level}
	var base slog.Handler
	if opts.JSON {
		base = slog.NewJSONHandler(sink, handlerOpts)
	} else {
		base = slog.NewTextHandler(sink, handlerOpts)
	}
	return slog.New(NewRedactingHandler(base)), closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
