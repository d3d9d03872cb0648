package database

import (
	"context"
	"log/slog"
)

type activityEvent struct {
	room string
	kind ActivityKind
}

// Recorder feeds activity into a Store from a single goroutine so callers
// never wait on SQLite. Events are dropped when the buffer is full.
type Recorder struct {
	store  *Store
	events chan activityEvent
}

func NewRecorder(store *Store, buffer int) *Recorder {
	if buffer <= 0 {
		buffer = 1024
	}
	return &Recorder{
		store:  store,
		events: make(chan activityEvent, buffer),
	}
}

// Record queues one event without blocking.
func (r *Recorder) Record(room string, kind ActivityKind) {
	if r == nil {
		return
	}
	select {
	case r.events <- activityEvent{room: room, kind: kind}:
	default:
		slog.Warn("activity buffer full, dropping event", "room", room, "kind", kind.String())
	}
}

// Run drains queued events until ctx is cancelled.
func (r *Recorder) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-r.events:
			if err := r.store.Increment(ctx, ev.room, ev.kind); err != nil && ctx.Err() == nil {
				slog.Error("failed to record room activity", "error", err)
			}
		}
	}
}

// Pending reports queued events, for tests and diagnostics.
func (r *Recorder) Pending() int {
	return len(r.events)
}
