package logger

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Closer flushes and stops a handler that buffers records.
type Closer interface {
	Close()
}

// nopCloser is returned in synchronous mode.
type nopCloser struct{}

func (nopCloser) Close() {}

// asyncCore is the buffer shared by an AsyncHandler and all handlers
// derived from it via WithAttrs/WithGroup. Records enter through a
// bounded channel; a full channel drops the record and counts it
// instead of stalling the caller, since the gateway's invocation path
// must never block on logging.
type asyncCore struct {
	ch      chan queued
	workers sync.WaitGroup
	dropped atomic.Int64
}

// queued pairs a record with the derived handler that should emit it,
// so attrs and groups attached after construction are preserved.
type queued struct {
	rec  slog.Record
	sink slog.Handler
}

// AsyncHandler decouples log emission from record formatting by
// draining records on background workers.
type AsyncHandler struct {
	inner slog.Handler
	core  *asyncCore
}

// NewAsyncHandler buffers up to chanSize records and drains them with
// the given number of workers.
func NewAsyncHandler(inner slog.Handler, chanSize, workers int) *AsyncHandler {
	core := &asyncCore{ch: make(chan queued, chanSize)}
	for range workers {
		core.workers.Add(1)
		go func() {
			defer core.workers.Done()
			for q := range core.ch {
				_ = q.sink.Handle(context.Background(), q.rec)
			}
		}()
	}
	return &AsyncHandler{inner: inner, core: core}
}

// Enabled delegates to the wrapped handler.
func (h *AsyncHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

// Handle enqueues the record, dropping it when the buffer is full.
func (h *AsyncHandler) Handle(_ context.Context, rec slog.Record) error { //nolint:gocritic // slog.Handler interface requires value receiver
	select {
	case h.core.ch <- queued{rec: rec, sink: h.inner}:
	default:
		h.core.dropped.Add(1)
	}
	return nil
}

// WithAttrs derives a handler that shares this handler's buffer.
func (h *AsyncHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &AsyncHandler{inner: h.inner.WithAttrs(attrs), core: h.core}
}

// WithGroup derives a handler that shares this handler's buffer.
func (h *AsyncHandler) WithGroup(name string) slog.Handler {
	return &AsyncHandler{inner: h.inner.WithGroup(name), core: h.core}
}

// DroppedCount reports how many records were discarded on a full buffer.
func (h *AsyncHandler) DroppedCount() int64 {
	return h.core.dropped.Load()
}

// Close stops intake and blocks until every buffered record is emitted.
func (h *AsyncHandler) Close() {
	close(h.core.ch)
	h.core.workers.Wait()
}
