package eventlog

import (
	"context"
	"sync"
	"time"
)

// Notifier fans out "a session's event log changed" signals to WaitForUpdate
// callers (spec.md §4.1 WaitForUpdate, §5 "wait-for-events observes monotonic
// non-decreasing offsets"). It holds no event data itself; callers re-check
// the log via Log.List after waking.
type Notifier struct {
	mu   sync.Mutex
	subs map[string]chan struct{}
}

// NewNotifier constructs an empty Notifier.
func NewNotifier() *Notifier {
	return &Notifier{subs: make(map[string]chan struct{})}
}

// Notify wakes every current waiter for sessionID.
func (n *Notifier) Notify(sessionID string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if ch, ok := n.subs[sessionID]; ok {
		close(ch)
		delete(n.subs, sessionID)
	}
}

func (n *Notifier) channel(sessionID string) chan struct{} {
	n.mu.Lock()
	defer n.mu.Unlock()
	ch, ok := n.subs[sessionID]
	if !ok {
		ch = make(chan struct{})
		n.subs[sessionID] = ch
	}
	return ch
}

// PublishingEmitter persists staged events to Log as one batch and then
// notifies the Notifier, giving the "publishing variant" described in
// spec.md §2: persistence + fan-out, as opposed to BufferingEmitter's
// in-memory-only staging.
type PublishingEmitter struct {
	Log           Log
	Notifier      *Notifier
	SessionID     string
	CorrelationID string
}

// EmitAll persists every staged event as one batch under p's correlation id,
// preserving their relative order (spec.md §8 invariant 2), then notifies
// waiters once.
func (p *PublishingEmitter) EmitAll(ctx context.Context, staged []EmittedEvent) ([]Event, error) {
	if len(staged) == 0 {
		return nil, nil
	}
	events, err := p.Log.Append(ctx, p.SessionID, p.CorrelationID, staged)
	if err != nil {
		return nil, err
	}
	p.Notifier.Notify(p.SessionID)
	return events, nil
}

// WaitForUpdate blocks until an event with offset >= minOffset and a Kind in
// kinds exists in sessionID's log, or timeout elapses. Returns false on
// expiry (spec.md §4.1).
func WaitForUpdate(ctx context.Context, log Log, notifier *Notifier, sessionID string, minOffset int, kinds []Kind, timeout time.Duration) (bool, error) {
	deadline := time.Now().Add(timeout)
	for {
		events, err := log.List(ctx, sessionID)
		if err != nil {
			return false, err
		}
		if matchesWait(events, minOffset, kinds) {
			return true, nil
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return false, nil
		}
		ch := notifier.channel(sessionID)
		timer := time.NewTimer(remaining)
		select {
		case <-ctx.Done():
			timer.Stop()
			return false, ctx.Err()
		case <-ch:
			timer.Stop()
		case <-timer.C:
			return false, nil
		}
	}
}

func matchesWait(events []Event, minOffset int, kinds []Kind) bool {
	for _, e := range events {
		if e.Offset < minOffset {
			continue
		}
		if len(kinds) == 0 {
			return true
		}
		for _, k := range kinds {
			if e.Kind == k {
				return true
			}
		}
	}
	return false
}
