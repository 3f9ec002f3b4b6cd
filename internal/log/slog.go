package log

import (
	"context"
	"log/slog"

	"github.com/rs/zerolog"
)

// SlogHandler adapts a zerolog logger to slog for libraries that only take
// a *slog.Logger. Records below minLevel are dropped.
func SlogHandler(logger zerolog.Logger, minLevel slog.Level) slog.Handler {
	return &slogHandler{logger: logger, minLevel: minLevel}
}

type slogHandler struct {
	logger   zerolog.Logger
	minLevel slog.Level
	group    string
}

func (h *slogHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.minLevel
}

func (h *slogHandler) Handle(_ context.Context, record slog.Record) error {
	event := h.logger.WithLevel(zerologLevel(record.Level))
	if event == nil {
		return nil
	}
	record.Attrs(func(attr slog.Attr) bool {
		addAttr(event, h.group, attr)
		return true
	})
	event.Msg(record.Message)
	return nil
}

func (h *slogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	ctx := h.logger.With()
	for _, attr := range attrs {
		ctx = ctx.Interface(joinKey(h.group, attr.Key), attr.Value.Resolve().Any())
	}
	return &slogHandler{logger: ctx.Logger(), minLevel: h.minLevel, group: h.group}
}

func (h *slogHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &slogHandler{logger: h.logger, minLevel: h.minLevel, group: joinKey(h.group, name)}
}

func addAttr(event *zerolog.Event, group string, attr slog.Attr) {
	value := attr.Value.Resolve()
	key := joinKey(group, attr.Key)

	switch value.Kind() {
	case slog.KindGroup:
		for _, nested := range value.Group() {
			addAttr(event, key, nested)
		}
	case slog.KindString:
		event.Str(key, value.String())
	case slog.KindInt64:
		event.Int64(key, value.Int64())
	case slog.KindUint64:
		event.Uint64(key, value.Uint64())
	case slog.KindFloat64:
		event.Float64(key, value.Float64())
	case slog.KindBool:
		event.Bool(key, value.Bool())
	case slog.KindDuration:
		event.Dur(key, value.Duration())
	case slog.KindTime:
		event.Time(key, value.Time())
	default:
		if err, ok := value.Any().(error); ok {
			event.AnErr(key, err)
			return
		}
		event.Interface(key, value.Any())
	}
}

func joinKey(group, key string) string {
	if group == "" {
		return key
	}
	return group + "." + key
}

func zerologLevel(level slog.Level) zerolog.Level {
	switch {
	case level >= slog.LevelError:
		return zerolog.ErrorLevel
	case level >= slog.LevelWarn:
		return zerolog.WarnLevel
	case level >= slog.LevelInfo:
		return zerolog.InfoLevel
	default:
		return zerolog.DebugLevel
	}
}
