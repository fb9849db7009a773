// Package simlog builds slog loggers whose records are stamped with the
// runtime's notion of time and the currently executing task, so that log
// output is itself deterministic and can be compared across runs.
package simlog

import (
	"context"
	"io"
	"log/slog"
	"time"
)

// Clock supplies the record timestamp; TaskID supplies the current task id,
// with 0 meaning "no task" (setup code, timer handlers).
type Hooks struct {
	Clock  func() time.Time
	TaskID func() int
}

// New returns a JSON logger writing to out. Records are timestamped with
// hooks.Clock instead of the wall clock.
func New(out io.Writer, level slog.Level, hooks Hooks) *slog.Logger {
	ho := slog.HandlerOptions{
		Level: level,
	}
	handler := slog.NewJSONHandler(out, &ho)
	return slog.New(wrapHandler{inner: handler, hooks: hooks})
}

type wrapHandler struct {
	inner slog.Handler
	hooks Hooks
}

func (w wrapHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return w.inner.Enabled(ctx, level)
}

func (w wrapHandler) Handle(ctx context.Context, r slog.Record) error {
	if w.hooks.Clock != nil {
		r.Time = w.hooks.Clock()
	}
	if w.hooks.TaskID != nil {
		if id := w.hooks.TaskID(); id != 0 {
			r.AddAttrs(slog.Int("task", id))
		}
	}
	return w.inner.Handle(ctx, r)
}

func (w wrapHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return wrapHandler{inner: w.inner.WithAttrs(attrs), hooks: w.hooks}
}

func (w wrapHandler) WithGroup(name string) slog.Handler {
	return wrapHandler{inner: w.inner.WithGroup(name), hooks: w.hooks}
}
