package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// Config holds logger configuration.
type Config struct {
	Level  string // DEBUG, INFO, WARN, ERROR
	Format string // text, json
	Output string // stdout, stderr, or file path

	// Rotation settings, only used when Output is a file path.
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

const timestampLayout = "2006-01-02 15:04:05"

var (
	currentLevel atomic.Int32
	levelVar     = new(slog.LevelVar)

	mu      sync.RWMutex
	format  = "text"
	output  io.Writer = os.Stdout
	closer  io.Closer
	slogger *slog.Logger
)

func init() {
	currentLevel.Store(int32(LevelInfo))
	levelVar.Set(slog.LevelInfo)
	rebuild()
}

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

func (l Level) slogLevel() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// rebuild swaps the handler after an output or format change.
func rebuild() {
	mu.Lock()
	defer mu.Unlock()

	opts := &slog.HandlerOptions{
		Level: levelVar,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey && len(groups) == 0 {
				return slog.String(slog.TimeKey, a.Value.Time().Format(timestampLayout))
			}
			return a
		},
	}

	var h slog.Handler
	if format == "json" {
		h = slog.NewJSONHandler(output, opts)
	} else {
		h = slog.NewTextHandler(output, opts)
	}
	slogger = slog.New(h)
}

// Init configures level, format and output in one call.
// A file output is rotated by size; a zero MaxSizeMB keeps lumberjack's default.
func Init(cfg Config) error {
	if cfg.Output != "" {
		var (
			w io.Writer
			c io.Closer
		)

		switch strings.ToLower(cfg.Output) {
		case "stdout":
			w = os.Stdout
		case "stderr":
			w = os.Stderr
		default:
			f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
			if err != nil {
				return fmt.Errorf("failed to open log file %q: %w", cfg.Output, err)
			}
			_ = f.Close()

			lj := &lumberjack.Logger{
				Filename:   cfg.Output,
				MaxSize:    cfg.MaxSizeMB,
				MaxBackups: cfg.MaxBackups,
				MaxAge:     cfg.MaxAgeDays,
				Compress:   cfg.Compress,
			}
			w, c = lj, lj
		}

		mu.Lock()
		if closer != nil {
			_ = closer.Close()
		}
		output, closer = w, c
		mu.Unlock()
	}

	if cfg.Format != "" {
		SetFormat(cfg.Format)
	}
	if cfg.Level != "" {
		SetLevel(cfg.Level)
	}

	rebuild()
	return nil
}

// InitWithWriter points the logger at w. Used by tests.
func InitWithWriter(w io.Writer, level, fmtName string) {
	mu.Lock()
	output = w
	mu.Unlock()

	if fmtName != "" {
		SetFormat(fmtName)
	}
	if level != "" {
		SetLevel(level)
	}
	rebuild()
}

// Close releases a rotated log file, if any.
func Close() error {
	mu.Lock()
	defer mu.Unlock()

	if closer == nil {
		return nil
	}
	err := closer.Close()
	closer = nil
	return err
}

func SetLevel(level string) {
	var l Level
	switch strings.ToUpper(level) {
	case "DEBUG":
		l = LevelDebug
	case "INFO":
		l = LevelInfo
	case "WARN":
		l = LevelWarn
	case "ERROR":
		l = LevelError
	default:
		return
	}
	currentLevel.Store(int32(l))
	levelVar.Set(l.slogLevel())
}

// GetLevel returns the active level.
func GetLevel() Level {
	return Level(currentLevel.Load())
}

// SetFormat selects "text" or "json"; anything else is ignored.
func SetFormat(f string) {
	f = strings.ToLower(f)
	if f != "text" && f != "json" {
		return
	}

	mu.Lock()
	changed := format != f
	format = f
	mu.Unlock()

	if changed {
		rebuild()
	}
}

func get() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return slogger
}

func enabled(l Level) bool {
	return l >= Level(currentLevel.Load())
}

// Debug logs at debug level. Usage: Debug("message", "key1", value1, ...)
func Debug(msg string, args ...any) {
	if !enabled(LevelDebug) {
		return
	}
	get().Debug(msg, args...)
}

func Info(msg string, args ...any) {
	if !enabled(LevelInfo) {
		return
	}
	get().Info(msg, args...)
}

func Warn(msg string, args ...any) {
	if !enabled(LevelWarn) {
		return
	}
	get().Warn(msg, args...)
}

func Error(msg string, args ...any) {
	get().Error(msg, args...)
}

// With returns a logger with pre-bound attributes. Level changes made later
// through SetLevel still apply to it.
func With(args ...any) *slog.Logger {
	return get().With(args...)
}

// Duration returns milliseconds elapsed since start.
func Duration(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000.0
}
