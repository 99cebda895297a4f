package logging

import (
	"context"
	"log/slog"
)

// AttrsFunc returns attributes describing the engine state at the moment a
// record is written, e.g. the open board.
type AttrsFunc func() []slog.Attr

// fanout writes every record to each handler enabled for its level.
type fanout []slog.Handler

// Fanout combines handlers, skipping nil entries.
func Fanout(handlers ...slog.Handler) slog.Handler {
	out := make(fanout, 0, len(handlers))
	for _, h := range handlers {
		if h != nil {
			out = append(out, h)
		}
	}
	return out
}

func (f fanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

// Handle never fails: a sink that errors does not keep the record from the
// others.
func (f fanout) Handle(ctx context.Context, r slog.Record) error {
	for _, h := range f {
		if h.Enabled(ctx, r.Level) {
			_ = h.Handle(ctx, r.Clone())
		}
	}
	return nil
}

func (f fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	return f.each(func(h slog.Handler) slog.Handler { return h.WithAttrs(attrs) })
}

func (f fanout) WithGroup(name string) slog.Handler {
	if name == "" {
		return f
	}
	return f.each(func(h slog.Handler) slog.Handler { return h.WithGroup(name) })
}

func (f fanout) each(fn func(slog.Handler) slog.Handler) fanout {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = fn(h)
	}
	return out
}

// stateHandler appends the attributes returned by attrs to every record.
type stateHandler struct {
	next  slog.Handler
	attrs AttrsFunc
}

// WithState wraps next so each record carries the attributes returned by
// attrs at write time. A nil attrs returns next unchanged.
func WithState(next slog.Handler, attrs AttrsFunc) slog.Handler {
	if attrs == nil {
		return next
	}
	return &stateHandler{next: next, attrs: attrs}
}

func (h *stateHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *stateHandler) Handle(ctx context.Context, r slog.Record) error {
	r.AddAttrs(h.attrs()...)
	return h.next.Handle(ctx, r)
}

func (h *stateHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &stateHandler{next: h.next.WithAttrs(attrs), attrs: h.attrs}
}

func (h *stateHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &stateHandler{next: h.next.WithGroup(name), attrs: h.attrs}
}
