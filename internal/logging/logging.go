package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const appDir = "notefs"

// Setup configures the global logger. Verbosity 0 logs warnings, 1 info,
// 2 debug and anything higher trace. Output goes to stderr and, when it can be
// opened, to logFile in append mode. An empty logFile selects the default
// under the XDG state directory.
func Setup(verbosity int, logFile string) io.Closer {
	zerolog.SetGlobalLevel(levelFor(verbosity))

	writers := []io.Writer{zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.Kitchen,
	}}

	if logFile == "" {
		logFile = DefaultLogFile()
	}
	file, fileErr := openLogFile(logFile)
	if fileErr == nil {
		writers = append(writers, file)
	}

	logger := zerolog.New(io.MultiWriter(writers...)).With().Timestamp().Logger()
	if verbosity >= 2 {
		logger = logger.With().Caller().Logger()
	}
	log.Logger = logger

	if fileErr != nil {
		log.Warn().Err(fileErr).Str("path", logFile).Msg("log file unavailable, logging to console only")
		return nopCloser{}
	}
	log.Debug().Int("verbosity", verbosity).Str("logFile", logFile).Msg("logger initialized")
	return file
}

func levelFor(verbosity int) zerolog.Level {
	switch {
	case verbosity <= 0:
		return zerolog.WarnLevel
	case verbosity == 1:
		return zerolog.InfoLevel
	case verbosity == 2:
		return zerolog.DebugLevel
	default:
		return zerolog.TraceLevel
	}
}

// Component returns the global logger tagged with a component name.
func Component(name string) zerolog.Logger {
	return log.With().Str("component", name).Logger()
}

func DefaultLogFile() string {
	return filepath.Join(xdg.StateHome, appDir, appDir+".log")
}

func openLogFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return file, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Printf adapts a zerolog logger to the Printf style used by the transport.
type Printf struct {
	Logger zerolog.Logger
}

func (p Printf) Printf(format string, args ...any) {
	p.Logger.Debug().Msgf(format, args...)
}
