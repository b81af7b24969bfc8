// ABOUTME: Process-wide logrus setup
// ABOUTME: Applies level and format and tees output to an optional log file
package logging

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Options select how the process logs
type Options struct {
	Level  string // trace, debug, info, warn or error
	Format string // text or json
	File   string // when set, log to both stdout and this file
}

// Setup configures the standard logrus logger. The returned closer closes the
// log file, if any.
func Setup(opts Options) (io.Closer, error) {
	return Configure(logrus.StandardLogger(), os.Stdout, opts)
}

// Configure applies opts to logger, writing to console and the optional file
func Configure(logger *logrus.Logger, console io.Writer, opts Options) (io.Closer, error) {
	level := logrus.InfoLevel
	if opts.Level != "" {
		parsed, err := logrus.ParseLevel(opts.Level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level: %w", err)
		}
		level = parsed
	}
	logger.SetLevel(level)

	switch opts.Format {
	case "", "text":
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	default:
		return nil, fmt.Errorf("unknown log format: %s", opts.Format)
	}

	if opts.File == "" {
		logger.SetOutput(console)
		return nopCloser{}, nil
	}

	f, err := os.OpenFile(opts.File, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		return nil, fmt.Errorf("error opening log file: %w", err)
	}

	// Log to both file and console
	logger.SetOutput(io.MultiWriter(console, f))
	return f, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
