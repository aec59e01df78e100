// Package progress surfaces the engine's synchronous callback events
// (start, before/after entry, bytes transferred, saving before/after
// rename, add started/completed, extracting, saving) plus the
// cooperative cancellation flag the save/read pipelines poll between
// entries and between streamed chunks.
package progress

import "sync/atomic"

// EventKind identifies which callback fired.
type EventKind int

const (
	Start EventKind = iota
	BeforeEntry
	AfterEntry
	BytesTransferred
	SavingBeforeRename
	SavingAfterRename
	AddStarted
	AddCompleted
	ExtractingBeforeEntry
	ExtractingAfterEntry
	SavingStarted
	SavingCompleted
)

// Event is the payload delivered to a Sink; fields not relevant to Kind
// are left zero.
type Event struct {
	Kind      EventKind
	EntryName string
	Bytes     int64 // cumulative bytes transferred for BytesTransferred
	Err       error // set on *AfterEntry/*Completed when the operation failed
}

// Sink receives progress events synchronously on the driving goroutine.
// Implementations must not block significantly - there is no internal
// task scheduling to hide behind.
type Sink interface {
	OnProgress(Event)
}

// NopSink discards every event; it is the default Sink for a newly
// constructed archive.
type NopSink struct{}

func (NopSink) OnProgress(Event) {}

// Canceler is the cooperative cancellation flag callbacks can set and the
// engine polls between entries and at the documented interior points.
// Safe for concurrent use since a progress.Sink implementation may be
// invoked from a callback set up on another goroutine (e.g. a UI thread
// relaying a cancel button).
type Canceler struct {
	flag atomic.Bool
}

// Cancel requests cancellation. Idempotent.
func (c *Canceler) Cancel() { c.flag.Store(true) }

// Canceled reports whether Cancel has been called.
func (c *Canceler) Canceled() bool { return c.flag.Load() }
