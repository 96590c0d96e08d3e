package errlog

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// LogConfig controls where and how the engine writes its structured
// log/slog output.
type LogConfig struct {
	// Level is the minimum log level (debug, info, warn, error).
	Level string
	// FilePath is the rotating log file path.
	FilePath string
	// MaxSizeMB is the maximum size in MB before rotation.
	MaxSizeMB int
	// MaxFiles is the maximum number of rotated files kept.
	MaxFiles int
	// WriteToStderr additionally mirrors output to stderr.
	WriteToStderr bool
}

// DefaultLogConfig returns sensible defaults for file logging.
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:         "info",
		FilePath:      DefaultLogPath(),
		MaxSizeMB:     10,
		MaxFiles:      5,
		WriteToStderr: true,
	}
}

// SetupLogging initializes JSON file logging and returns the logger plus
// a cleanup function that flushes and closes the underlying file.
func SetupLogging(cfg LogConfig) (*slog.Logger, func(), error) {
	writer, err := NewRotatingWriter(cfg.FilePath, cfg.MaxSizeMB, cfg.MaxFiles)
	if err != nil {
		return nil, nil, err
	}

	var output io.Writer = writer
	if cfg.WriteToStderr {
		output = io.MultiWriter(writer, os.Stderr)
	}

	handler := slog.NewJSONHandler(output, &slog.HandlerOptions{
		Level: parseLevel(cfg.Level),
	})
	logger := slog.New(handler)

	cleanup := func() {
		_ = writer.Sync()
		_ = writer.Close()
	}
	return logger, cleanup, nil
}

// SetupDefaultLogging sets up logging with default configuration and
// installs it as slog's default logger.
func SetupDefaultLogging() (func(), error) {
	logger, cleanup, err := SetupLogging(DefaultLogConfig())
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)
	return cleanup, nil
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
