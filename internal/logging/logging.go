// Package logging builds the process logger: a zap core that writes to the
// console and to a timestamped file under the logs directory. The logger is
// created explicitly, injected where needed and closed on shutdown.
package logging

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	// DefaultDir is where log files go when no directory is configured.
	DefaultDir = "logs"

	timeLayout     = "2006-01-02 15:04:05"
	fileTimeLayout = "2006-01-02_15-04-05"
)

// Config controls logger construction.
type Config struct {
	Dir     string // log directory; DefaultDir when empty
	Level   string // trace, debug, info, warn, error
	Console bool   // write to stderr
	File    bool   // write to a timestamped file in Dir
}

// DefaultConfig logs at debug level to both sinks.
func DefaultConfig() Config {
	return Config{Dir: DefaultDir, Level: "debug", Console: true, File: true}
}

// Logger wraps a zap logger and the file it owns.
type Logger struct {
	*zap.Logger
	level zap.AtomicLevel
	file  *os.File
	path  string
}

// ParseLevel maps a level name to a zap level. zap has no trace level, so
// trace is debug.
func ParseLevel(s string) (zapcore.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace", "debug", "":
		return zapcore.DebugLevel, nil
	case "info":
		return zapcore.InfoLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	case "critical", "fatal":
		return zapcore.FatalLevel, nil
	}
	return zapcore.DebugLevel, fmt.Errorf("logging: unknown level %q", s)
}

// encoderConfig renders "[2006-01-02 15:04:05] [info] message" followed by
// the structured fields.
func encoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:    "time",
		LevelKey:   "level",
		MessageKey: "msg",
		NameKey:    "logger",
		EncodeTime: func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
			enc.AppendString("[" + t.Format(timeLayout) + "]")
		},
		EncodeLevel: func(l zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
			enc.AppendString("[" + l.String() + "]")
		},
		EncodeDuration:   zapcore.StringDurationEncoder,
		EncodeName:       zapcore.FullNameEncoder,
		ConsoleSeparator: " ",
	}
}

// New builds a logger from cfg. With both sinks disabled the logger is a
// no-op.
func New(cfg Config) (*Logger, error) {
	lvl, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	level := zap.NewAtomicLevelAt(lvl)
	enc := zapcore.NewConsoleEncoder(encoderConfig())

	var cores []zapcore.Core
	if cfg.Console {
		cores = append(cores, zapcore.NewCore(enc, zapcore.Lock(os.Stderr), level))
	}

	l := &Logger{level: level}
	if cfg.File {
		dir := cfg.Dir
		if dir == "" {
			dir = DefaultDir
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("logging: create %s: %w", dir, err)
		}
		l.path = filepath.Join(dir, "log_"+time.Now().Format(fileTimeLayout)+".txt")
		f, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("logging: open %s: %w", l.path, err)
		}
		l.file = f
		cores = append(cores, zapcore.NewCore(enc.Clone(), zapcore.AddSync(f), level))
	}

	if len(cores) == 0 {
		l.Logger = zap.NewNop()
		return l, nil
	}
	l.Logger = zap.New(zapcore.NewTee(cores...))
	return l, nil
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{Logger: zap.NewNop(), level: zap.NewAtomicLevel()}
}

// Path returns the log file path, empty when file logging is off.
func (l *Logger) Path() string { return l.path }

// SetLevel changes the minimum level at runtime.
func (l *Logger) SetLevel(lvl zapcore.Level) { l.level.SetLevel(lvl) }

// Close flushes buffered entries and closes the log file.
func (l *Logger) Close() error {
	// Sync on stderr fails on some platforms; only the file result matters.
	_ = l.Logger.Sync()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

// FormatSci renders v in fixed notation when 1e-4 < |v| < 1e4 and in
// scientific notation otherwise, six digits after the point either way.
func FormatSci(v float64) string {
	if a := math.Abs(v); a > 1e-4 && a < 1e4 {
		return strconv.FormatFloat(v, 'f', 6, 64)
	}
	return strconv.FormatFloat(v, 'e', 6, 64)
}

// Sci is a zap field carrying v formatted by FormatSci.
func Sci(key string, v float64) zap.Field {
	return zap.String(key, FormatSci(v))
}
