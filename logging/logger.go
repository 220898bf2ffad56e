package logging

import (
	"context"
	"log/slog"
	"os"
	"strings"

	"github.com/giygas/nhanes-api/config"
)

// LoggingService owns the process logger and the file it writes to
type LoggingService struct {
	Logger *slog.Logger
	writer *RotatingWriter
}

var DefaultLoggingService *LoggingService

// Options controls where and how verbosely the service logs
type Options struct {
	LogDir         string
	RetentionWeeks int
	MaxFileSize    int64
	Env            config.Environment
	Level          string
	Verbose        bool
}

// InitLogger builds the console and file handlers and installs the result as
// the slog default. If the log directory cannot be used, logging falls back
// to the console only.
func InitLogger(opts Options) {
	consoleLevel := GetConsoleLogLevel(opts.Env, opts.Level, opts.Verbose)
	consoleHandler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: consoleLevel,
	})

	service := &LoggingService{}
	writer, err := NewRotatingWriter(opts.LogDir, opts.RetentionWeeks, opts.MaxFileSize)
	if err != nil {
		service.Logger = slog.New(consoleHandler)
		service.Logger.Error("Failed to initialize rotating log file", "dir", opts.LogDir, "error", err)
	} else {
		fileHandler := slog.NewJSONHandler(writer, &slog.HandlerOptions{
			Level: GetFileLogLevel(),
		})
		service.writer = writer
		service.Logger = slog.New(&multiHandler{
			handlers: []slog.Handler{consoleHandler, fileHandler},
		})
	}

	DefaultLoggingService = service
	slog.SetDefault(service.Logger)
}

// Close flushes and closes the log file, if any
func Close() error {
	if DefaultLoggingService == nil || DefaultLoggingService.writer == nil {
		return nil
	}
	return DefaultLoggingService.writer.Close()
}

// Logger returns the process logger, or a stderr logger before InitLogger ran
func Logger() *slog.Logger {
	if DefaultLoggingService == nil || DefaultLoggingService.Logger == nil {
		return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))
	}
	return DefaultLoggingService.Logger
}

func Info(msg string, args ...any) {
	Logger().Info(msg, args...)
}

func Error(msg string, args ...any) {
	Logger().Error(msg, args...)
}

func Warn(msg string, args ...any) {
	Logger().Warn(msg, args...)
}

func Debug(msg string, args ...any) {
	Logger().Debug(msg, args...)
}

// GetConsoleLogLevel picks the console level. Tests stay quiet unless
// verbose; an explicit level wins elsewhere; otherwise dev logs at info and
// staging and prod at warn.
func GetConsoleLogLevel(env config.Environment, level string, verbose bool) slog.Level {
	if env == config.EnvTest {
		if verbose {
			return slog.LevelInfo
		}
		return slog.LevelError
	}

	if level != "" {
		return parseLogLevel(level)
	}

	switch env {
	case config.EnvStaging, config.EnvProduction:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}

// GetFileLogLevel is always debug so the file keeps the full history
func GetFileLogLevel() slog.Level {
	return slog.LevelDebug
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// multiHandler fans each record out to every handler that accepts its level
type multiHandler struct {
	handlers []slog.Handler
}

func (m *multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range m.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (m *multiHandler) Handle(ctx context.Context, r slog.Record) error {
	for _, h := range m.handlers {
		if h.Enabled(ctx, r.Level) {
			if err := h.Handle(ctx, r.Clone()); err != nil {
				return err
			}
		}
	}
	return nil
}

func (m *multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	handlers := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		handlers[i] = h.WithAttrs(attrs)
	}
	return &multiHandler{handlers: handlers}
}

func (m *multiHandler) WithGroup(name string) slog.Handler {
	handlers := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		handlers[i] = h.WithGroup(name)
	}
	return &multiHandler{handlers: handlers}
}
