package eventlog

import "sync"

// Emitter is a typed sink for agent output events (spec.md §2 component
// table: "Event Emitter"). The processing pipeline writes to a BufferingEmitter
// during a task; a PublishingEmitter persists a batch of staged events and
// notifies any WaitForUpdate callers once the task completes normally.
type Emitter interface {
	// Emit appends ev to the sink, preserving call order.
	Emit(ev EmittedEvent)
}

// BufferingEmitter accumulates EmittedEvents in memory for the duration of one
// processing task. On cancellation, the caller simply discards the buffer —
// nothing has been persisted (spec.md §4.1 cancellation contract; §8 invariant 3).
type BufferingEmitter struct {
	mu     sync.Mutex
	events []EmittedEvent
}

// NewBufferingEmitter constructs an empty staging buffer.
func NewBufferingEmitter() *BufferingEmitter {
	return &BufferingEmitter{events: make([]EmittedEvent, 0, 4)}
}

// Emit implements Emitter.
func (b *BufferingEmitter) Emit(ev EmittedEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, ev)
}

// Events returns a snapshot of the staged events in arrival order.
func (b *BufferingEmitter) Events() []EmittedEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]EmittedEvent, len(b.events))
	copy(out, b.events)
	return out
}

// Len reports how many events are currently staged.
func (b *BufferingEmitter) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events)
}
