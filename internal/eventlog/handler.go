package eventlog

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Saver is the part of Repository the handler writes to.
type Saver interface {
	Save(ctx context.Context, event *Event) error
}

// Handler is a slog.Handler that stores records as events. The
// "component" and "audit_id" attributes become columns, everything else is
// kept as attributes with secrets redacted.
type Handler struct {
	sink    Saver
	level   slog.Leveler
	attrs   []slog.Attr
	prefix  string
	onError func(error)
}

// NewHandler returns a handler storing records at or above level.
// Storage errors go to onError, which may be nil.
func NewHandler(sink Saver, level slog.Leveler, onError func(error)) *Handler {
	if level == nil {
		level = slog.LevelInfo
	}
	return &Handler{sink: sink, level: level, onError: onError}
}

func (h *Handler) Enabled(_ context.Context, l slog.Level) bool {
	return l >= h.level.Level()
}

func (h *Handler) Handle(ctx context.Context, r slog.Record) error {
	event := &Event{
		Timestamp: r.Time,
		Level:     r.Level.String(),
		Message:   r.Message,
		Attrs:     map[string]any{},
	}
	for _, a := range h.attrs {
		h.add(event, "", a)
	}
	r.Attrs(func(a slog.Attr) bool {
		h.add(event, h.prefix, a)
		return true
	})
	if len(event.Attrs) == 0 {
		event.Attrs = nil
	}

	if ctx == nil {
		ctx = context.Background()
	}
	if err := h.sink.Save(context.WithoutCancel(ctx), event); err != nil {
		if h.onError != nil {
			h.onError(err)
		}
		return err
	}
	return nil
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	next.attrs = append(next.attrs, h.attrs...)
	for _, a := range attrs {
		if h.prefix != "" {
			a.Key = h.prefix + a.Key
		}
		next.attrs = append(next.attrs, a)
	}
	return &next
}

func (h *Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	next.prefix = h.prefix + name + "."
	return &next
}

func (h *Handler) add(event *Event, prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	key := prefix + a.Key

	if a.Value.Kind() == slog.KindGroup {
		group := a.Value.Group()
		if a.Key == "" {
			for _, ga := range group {
				h.add(event, prefix, ga)
			}
			return
		}
		for _, ga := range group {
			h.add(event, key+".", ga)
		}
		return
	}

	switch key {
	case "component":
		event.Component = a.Value.String()
		return
	case "audit_id":
		event.AuditID = a.Value.String()
		return
	}
	if SensitiveKey(a.Key) {
		event.Attrs[key] = Redacted
		return
	}
	event.Attrs[key] = plain(a.Value)
}

// plain converts a value into something encoding/json renders faithfully.
func plain(v slog.Value) any {
	switch v.Kind() {
	case slog.KindString:
		return v.String()
	case slog.KindInt64:
		return v.Int64()
	case slog.KindUint64:
		return v.Uint64()
	case slog.KindFloat64:
		return v.Float64()
	case slog.KindBool:
		return v.Bool()
	case slog.KindDuration:
		return v.Duration().String()
	case slog.KindTime:
		return v.Time().Format(time.RFC3339)
	}
	if err, ok := v.Any().(error); ok {
		return err.Error()
	}
	return strings.TrimSpace(fmt.Sprint(v.Any()))
}
