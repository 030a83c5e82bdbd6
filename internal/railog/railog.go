// Package railog provides rail's console and file logging: a plain,
// timestamp-free console handler (colorized via lipgloss when attached to a
// terminal) fanned out alongside a timestamped, rotated file handler backed
// by lumberjack. Debug messages reach the console only when DEBUG is set in
// the environment; the file handler, when configured, records them always.
package railog

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true)
	tipStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
)

// consoleHandler writes bare messages (no timestamp, no level prefix) to an
// io.Writer, colorizing warnings/errors/tips when color is enabled.
type consoleHandler struct {
	writer    io.Writer
	debugMode bool
	color     bool
}

func (h *consoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	if level == slog.LevelDebug {
		return h.debugMode
	}
	return true
}

func (h *consoleHandler) Handle(_ context.Context, record slog.Record) error {
	msg := record.Message
	if h.color {
		switch record.Level {
		case slog.LevelWarn:
			msg = warnStyle.Render(msg)
		case slog.LevelError:
			msg = errorStyle.Render(msg)
		}
	}
	_, err := fmt.Fprintln(h.writer, msg)
	return err
}

func (h *consoleHandler) WithAttrs(_ []slog.Attr) slog.Handler { return h }
func (h *consoleHandler) WithGroup(_ string) slog.Handler      { return h }

func newLumberjackLogger(path string) *lumberjack.Logger {
	cfg := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    1,
		MaxBackups: 2,
		MaxAge:     30,
		Compress:   false,
	}
	if v := os.Getenv("RAIL_LOG_MAX_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxSize = n
		}
	}
	if v := os.Getenv("RAIL_LOG_MAX_BACKUPS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.MaxBackups = n
		}
	}
	if v := os.Getenv("RAIL_LOG_MAX_AGE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxAge = n
		}
	}
	return cfg
}

// multiHandler fans a record out to every handler that accepts its level.
type multiHandler struct {
	handlers []slog.Handler
}

func (h *multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (h *multiHandler) Handle(ctx context.Context, record slog.Record) error {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, record.Level) {
			if err := handler.Handle(ctx, record); err != nil {
				return err
			}
		}
	}
	return nil
}

func (h *multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		out[i] = handler.WithAttrs(attrs)
	}
	return &multiHandler{handlers: out}
}

func (h *multiHandler) WithGroup(name string) slog.Handler {
	out := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		out[i] = handler.WithGroup(name)
	}
	return &multiHandler{handlers: out}
}

// Logger is rail's structured logger: terse console output plus an optional
// rotated file log.
type Logger struct {
	logger    *slog.Logger
	writer    io.Writer
	logWriter io.WriteCloser
	quiet     bool
}

// New creates a console-only Logger. Debug messages are enabled when DEBUG
// is set in the environment.
func New() *Logger {
	l, _ := NewWithFile("")
	return l
}

// NewWithFile creates a Logger that also writes timestamped records to a
// rotated file at logFilePath (no file logging if logFilePath is empty).
func NewWithFile(logFilePath string) (*Logger, error) {
	writer := os.Stdout
	debugMode := os.Getenv("DEBUG") != ""
	color := isatty.IsTerminal(writer.Fd())

	l := &Logger{writer: writer}
	handlers := []slog.Handler{&consoleHandler{writer: writer, debugMode: debugMode, color: color}}

	if logFilePath != "" {
		if err := os.MkdirAll(filepath.Dir(logFilePath), 0o750); err != nil {
			return nil, fmt.Errorf("create log directory: %w", err)
		}
		lj := newLumberjackLogger(logFilePath)
		l.logWriter = lj
		fileHandler := slog.NewTextHandler(lj, &slog.HandlerOptions{
			Level: slog.LevelDebug,
			ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
				if a.Key == slog.TimeKey {
					return slog.Attr{Key: a.Key, Value: slog.StringValue(a.Value.Time().Format("2006-01-02 15:04:05.000"))}
				}
				return a
			},
		})
		handlers = append(handlers, fileHandler)
	}

	l.logger = slog.New(&multiHandler{handlers: handlers})
	return l, nil
}

// SetQuiet suppresses all log output when quiet is true; file logging, if
// configured, is suppressed along with the console.
func (l *Logger) SetQuiet(quiet bool) { l.quiet = quiet }

func (l *Logger) log(level slog.Level, format string, args ...interface{}) {
	if l.quiet {
		return
	}
	msg := format
	if len(args) > 0 {
		msg = fmt.Sprintf(format, args...)
	}
	l.logger.Log(context.Background(), level, msg)
}

func (l *Logger) Info(format string, args ...interface{})  { l.log(slog.LevelInfo, format, args...) }
func (l *Logger) Debug(format string, args ...interface{}) { l.log(slog.LevelDebug, format, args...) }
func (l *Logger) Warn(format string, args ...interface{})  { l.log(slog.LevelWarn, "⚠ "+format, args...) }
func (l *Logger) Error(format string, args ...interface{}) { l.log(slog.LevelError, "✗ "+format, args...) }
func (l *Logger) Tip(format string, args ...interface{})   { l.log(slog.LevelInfo, tipStyle.Render("tip: ")+format, args...) }

// Close releases the rotated file handle, if one was opened.
func (l *Logger) Close() error {
	if l.logWriter != nil {
		return l.logWriter.Close()
	}
	return nil
}
