// Package dispatcher implements the Session Dispatcher: the public entry
// point that accepts client events, serializes pipeline execution per
// session, cancels superseded work, and garbage-collects finished task
// handles (spec.md §4.1).
package dispatcher

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/emcie-io/agentrt/internal/eventlog"
	"github.com/emcie-io/agentrt/internal/session"
	"github.com/emcie-io/agentrt/internal/telemetry"
)

// DefaultGCInterval bounds how often a best-effort GC sweep actually runs
// (spec.md §4.1: "GC runs at most once per configurable interval (default
// 5 s)").
const DefaultGCInterval = 5 * time.Second

// Pipeline is the subset of internal/pipeline.Pipeline the dispatcher
// drives: run one triggering task to completion, returning the events it
// persisted. Declared here (not imported from internal/pipeline) so the
// dispatcher has no compile-time dependency on the pipeline's own stores —
// mirrors the teacher's engine.Engine seam in agents/runtime/runtime/runtime.go's
// Options.Engine field.
type Pipeline interface {
	Run(ctx context.Context, sessionID, correlationID string) ([]eventlog.Event, error)
}

type task struct {
	correlationID string
	cancel        context.CancelFunc
	done          chan struct{}
	err           error
}

// Dispatcher is the Session Dispatcher (spec.md §4.1). A Dispatcher is safe
// for concurrent use by multiple callers and across multiple sessions;
// within one session, tasks run strictly one at a time.
type Dispatcher struct {
	eventLog eventlog.Log
	notifier *eventlog.Notifier
	sessions session.Store
	pipeline Pipeline
	logger   telemetry.Logger

	mu     sync.Mutex
	queues map[string][]*task

	gcLimiter *rate.Limiter
	lockHint  LockHint
}

// New constructs a Dispatcher. logger may be nil (defaults to a no-op).
// The dispatcher's own per-session queue already guarantees correct
// serialization for a single process; WithLockHint opts into the
// multi-process advisory layer.
func New(eventLog eventlog.Log, notifier *eventlog.Notifier, sessions session.Store, pipeline Pipeline, logger telemetry.Logger) *Dispatcher {
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	return &Dispatcher{
		eventLog:  eventLog,
		notifier:  notifier,
		sessions:  sessions,
		pipeline:  pipeline,
		logger:    logger,
		queues:    make(map[string][]*task),
		gcLimiter: rate.NewLimiter(rate.Every(DefaultGCInterval), 1),
		lockHint:  NoopLockHint{},
	}
}

// WithLockHint installs a distributed lock hint (e.g. RedisLockHint) for
// horizontally-scaled deployments. Not required for single-process
// correctness (see LockHint).
func (d *Dispatcher) WithLockHint(hint LockHint) *Dispatcher {
	if hint != nil {
		d.lockHint = hint
	}
	return d
}

// PostClientEvent appends a source=customer event at the next offset under
// a freshly minted correlation id, then schedules a processing task for the
// session, cancelling any task still in flight for it (spec.md §4.1).
func (d *Dispatcher) PostClientEvent(ctx context.Context, sessionID string, kind eventlog.Kind, data json.RawMessage) (eventlog.Event, error) {
	correlationID := uuid.NewString()
	events, err := d.eventLog.Append(ctx, sessionID, correlationID, []eventlog.EmittedEvent{
		{Source: eventlog.SourceCustomer, Kind: kind, Data: data},
	})
	if err != nil {
		return eventlog.Event{}, err
	}
	d.notifier.Notify(sessionID)
	d.schedule(sessionID, correlationID)
	d.gc()
	return events[0], nil
}

// WaitForUpdate blocks until sessionID has an event at offset >= minOffset
// whose kind is in kinds, or timeout elapses (spec.md §4.1).
func (d *Dispatcher) WaitForUpdate(ctx context.Context, sessionID string, minOffset int, kinds []eventlog.Kind, timeout time.Duration) (bool, error) {
	d.gc()
	return eventlog.WaitForUpdate(ctx, d.eventLog, d.notifier, sessionID, minOffset, kinds, timeout)
}

// schedule cancels every task still in flight for sessionID and starts a
// new one after they unwind (spec.md §4.1: "A new task cancels all pending
// predecessors for the same session and runs after they unwind; at most one
// task per session executes ... at a time").
func (d *Dispatcher) schedule(sessionID, correlationID string) {
	d.mu.Lock()
	predecessors := d.queues[sessionID]
	for _, t := range predecessors {
		t.cancel()
	}
	taskCtx, cancel := context.WithCancel(context.Background())
	t := &task{correlationID: correlationID, cancel: cancel, done: make(chan struct{})}
	d.queues[sessionID] = append(predecessors, t)
	d.mu.Unlock()

	go func() {
		for _, pred := range predecessors {
			<-pred.done
		}
		defer close(t.done)
		if taskCtx.Err() != nil {
			return
		}
		release, ok := d.lockHint.TryAcquire(taskCtx, sessionID)
		if !ok {
			d.logger.Warn(taskCtx, "session lock hint denied, skipping task", "session_id", sessionID, "correlation_id", correlationID)
			return
		}
		defer release(context.Background())
		if _, err := d.pipeline.Run(taskCtx, sessionID, correlationID); err != nil {
			if taskCtx.Err() != nil {
				// Cancellation is non-fatal (spec.md §4.1 Cancellation contract).
				return
			}
			t.err = err
			d.logger.Error(taskCtx, "processing task failed", "session_id", sessionID, "correlation_id", correlationID, "error", err)
			return
		}
		d.notifier.Notify(sessionID)
	}()
}

// UpdateConsumptionOffset forwards to the session store's idempotent setter,
// then runs GC (spec.md §4.1).
func (d *Dispatcher) UpdateConsumptionOffset(ctx context.Context, sessionID, consumerID string, offset int) error {
	if err := d.sessions.SetConsumptionOffset(ctx, sessionID, consumerID, offset); err != nil {
		return err
	}
	d.gc()
	return nil
}

// gc drops finished task handles from the front of each session's queue
// (awaiting them to surface any error to the log) and removes empty queues.
// Rate-limited to DefaultGCInterval; final shutdown should call Drain
// instead, which forces a full sweep unconditionally.
func (d *Dispatcher) gc() {
	if !d.gcLimiter.Allow() {
		return
	}
	d.sweep(false)
}

// Drain forces a full GC sweep regardless of the rate limiter, awaiting
// every in-flight task to completion. Call on shutdown (spec.md §4.1:
// "except on final shutdown, which forces a full drain").
func (d *Dispatcher) Drain() {
	d.sweep(true)
}

func (d *Dispatcher) sweep(wait bool) {
	d.mu.Lock()
	sessionIDs := make([]string, 0, len(d.queues))
	for id := range d.queues {
		sessionIDs = append(sessionIDs, id)
	}
	d.mu.Unlock()

	for _, sessionID := range sessionIDs {
		d.mu.Lock()
		queue := d.queues[sessionID]
		d.mu.Unlock()

		remaining := make([]*task, 0, len(queue))
		for _, t := range queue {
			select {
			case <-t.done:
				// finished; drop it, error already logged by the runner goroutine.
			default:
				if wait {
					<-t.done
					continue
				}
				remaining = append(remaining, t)
			}
		}

		d.mu.Lock()
		// Tasks scheduled after the snapshot above stay queued.
		if current := d.queues[sessionID]; len(current) > len(queue) {
			remaining = append(remaining, current[len(queue):]...)
		}
		if len(remaining) == 0 {
			delete(d.queues, sessionID)
		} else {
			d.queues[sessionID] = remaining
		}
		d.mu.Unlock()
	}
}
