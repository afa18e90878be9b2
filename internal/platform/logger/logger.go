package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Global structured logger. Until Init runs, both accessors hand out no-op
// loggers so packages can log unconditionally.
var (
	mu          sync.RWMutex
	zl          = zap.NewNop()
	slogger     = slog.New(zapslogHandler{core: zapcore.NewNopCore()})
	levelAtomic = zap.NewAtomicLevelAt(zap.InfoLevel)
	inited      bool
)

type Config struct {
	Level  string // debug|info|warn|error
	Format string // text|json
	Output io.Writer
}

// Init installs the process logger. Subsequent calls are ignored.
func Init(cfg Config) {
	mu.Lock()
	defer mu.Unlock()
	if inited {
		return
	}
	levelAtomic.SetLevel(parseLevel(cfg.Level))
	encCfg := zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "msg",
		StacktraceKey:  "stack",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     func(t time.Time, pae zapcore.PrimitiveArrayEncoder) { pae.AppendString(t.UTC().Format(time.RFC3339Nano)) },
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
	var enc zapcore.Encoder
	if strings.EqualFold(cfg.Format, "json") {
		enc = zapcore.NewJSONEncoder(encCfg)
	} else {
		enc = zapcore.NewConsoleEncoder(encCfg)
	}
	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}
	core := zapcore.NewCore(enc, zapcore.AddSync(out), levelAtomic)
	zl = zap.New(core, zap.AddCaller())
	slogger = slog.New(zapslogHandler{core: core})
	inited = true
}

// Sync flushes buffered entries.
func Sync() {
	mu.RLock()
	defer mu.RUnlock()
	_ = zl.Sync()
}

func parseLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zap.DebugLevel
	case "warn":
		return zap.WarnLevel
	case "error":
		return zap.ErrorLevel
	default:
		return zap.InfoLevel
	}
}

// zapslogHandler implements slog.Handler using zap.
type zapslogHandler struct {
	core  zapcore.Core
	attrs []slog.Attr
	group string
}

func (h zapslogHandler) Enabled(_ context.Context, level slog.Level) bool {
	return h.core.Enabled(toZapLevel(level))
}

func (h zapslogHandler) Handle(_ context.Context, r slog.Record) error {
	fields := make([]zapcore.Field, 0, len(h.attrs)+r.NumAttrs())
	for _, a := range h.attrs {
		fields = append(fields, attrToField(a))
	}
	r.Attrs(func(a slog.Attr) bool {
		if h.group != "" {
			a.Key = h.group + "." + a.Key
		}
		fields = append(fields, attrToField(a))
		return true
	})
	return h.core.Write(zapcore.Entry{Level: toZapLevel(r.Level), Time: r.Time, Message: r.Message}, fields)
}

func (h zapslogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	nh := h
	nh.attrs = make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	nh.attrs = append(nh.attrs, h.attrs...)
	for _, a := range attrs {
		if h.group != "" {
			a.Key = h.group + "." + a.Key
		}
		nh.attrs = append(nh.attrs, a)
	}
	return nh
}

func (h zapslogHandler) WithGroup(name string) slog.Handler {
	nh := h
	if nh.group == "" {
		nh.group = name
	} else {
		nh.group = nh.group + "." + name
	}
	return nh
}

func toZapLevel(level slog.Level) zapcore.Level {
	switch {
	case level >= slog.LevelError:
		return zap.ErrorLevel
	case level >= slog.LevelWarn:
		return zap.WarnLevel
	case level >= slog.LevelInfo:
		return zap.InfoLevel
	default:
		return zap.DebugLevel
	}
}

func attrToField(a slog.Attr) zapcore.Field {
	a.Value = a.Value.Resolve()
	switch a.Value.Kind() {
	case slog.KindString:
		return zap.String(a.Key, a.Value.String())
	case slog.KindInt64:
		return zap.Int64(a.Key, a.Value.Int64())
	case slog.KindUint64:
		return zap.Uint64(a.Key, a.Value.Uint64())
	case slog.KindFloat64:
		return zap.Float64(a.Key, a.Value.Float64())
	case slog.KindBool:
		return zap.Bool(a.Key, a.Value.Bool())
	case slog.KindDuration:
		return zap.Duration(a.Key, a.Value.Duration())
	case slog.KindTime:
		return zap.Time(a.Key, a.Value.Time())
	default:
		if err, ok := a.Value.Any().(error); ok {
			return zap.NamedError(a.Key, err)
		}
		return zap.Any(a.Key, a.Value.Any())
	}
}

func Zap() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return zl
}

func Slog() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return slogger
}

// SetLevel updates the atomic log level at runtime (debug|info|warn|error).
func SetLevel(level string) {
	levelAtomic.SetLevel(parseLevel(level))
}
