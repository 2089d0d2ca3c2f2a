package logging

import (
	"context"
	"errors"
	"log/slog"
)

// AttrsFunc returns attributes evaluated at log time, such as the run in
// progress. A nil result adds nothing.
type AttrsFunc func() []slog.Attr

// fanout delivers each record to every handler enabled for its level.
type fanout []slog.Handler

func newFanout(handlers ...slog.Handler) fanout {
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

// Handle keeps going past a failing sink and reports every failure.
func (f fanout) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range f {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
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

// runAttrs appends the attributes of attrs to every record.
type runAttrs struct {
	next  slog.Handler
	attrs AttrsFunc
}

func (h runAttrs) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h runAttrs) Handle(ctx context.Context, r slog.Record) error {
	if extra := h.attrs(); len(extra) > 0 {
		r.AddAttrs(extra...)
	}
	return h.next.Handle(ctx, r)
}

func (h runAttrs) WithAttrs(attrs []slog.Attr) slog.Handler {
	return runAttrs{next: h.next.WithAttrs(attrs), attrs: h.attrs}
}

func (h runAttrs) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return runAttrs{next: h.next.WithGroup(name), attrs: h.attrs}
}
