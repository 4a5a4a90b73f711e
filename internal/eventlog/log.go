package eventlog

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/emcie-io/agentrt/internal/store"
)

const collectionName = "events"

type (
	// Log is the per-session append-only event store. All methods serialize
	// per session under one exclusive per-session lock (spec.md §5); List
	// takes the same lock as Append and Delete, so readers never see a
	// partially appended batch. This guarantees offset invariant 1
	// (monotonic, contiguous).
	Log interface {
		// Append persists emitted in order under correlationID, assigning each
		// a dense, strictly increasing offset. All events in the batch inherit
		// correlationID and are visible atomically with respect to List/WaitForUpdate.
		Append(ctx context.Context, sessionID, correlationID string, emitted []EmittedEvent) ([]Event, error)
		// List returns every non-deleted event for sessionID in offset order.
		List(ctx context.Context, sessionID string) ([]Event, error)
		// Delete logically deletes an event; offsets and ordering are preserved.
		Delete(ctx context.Context, sessionID, eventID string) error
	}

	// StoreLog is the store.Database-backed Log implementation.
	StoreLog struct {
		db store.Database

		mu    sync.Mutex
		locks map[string]*sync.Mutex
	}
)

// NewStoreLog constructs a Log persisting into db's "events" collection.
func NewStoreLog(db store.Database) *StoreLog {
	return &StoreLog{db: db, locks: make(map[string]*sync.Mutex)}
}

func (l *StoreLog) sessionLock(sessionID string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.locks[sessionID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[sessionID] = m
	}
	return m
}

// Append implements Log. It holds the per-session lock for the duration of
// the batch so offset assignment, for this session, never races with a
// concurrent Append or List (spec.md §8 invariant 4).
func (l *StoreLog) Append(ctx context.Context, sessionID, correlationID string, emitted []EmittedEvent) ([]Event, error) {
	if len(emitted) == 0 {
		return nil, nil
	}
	lock := l.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	coll, err := l.db.Collection(ctx, collectionName)
	if err != nil {
		return nil, fmt.Errorf("open events collection: %w", err)
	}
	existing, err := coll.List(ctx, store.Filter{"session_id": store.Document{"$eq": sessionID}})
	if err != nil {
		return nil, fmt.Errorf("list existing events: %w", err)
	}
	nextOffset := len(existing)

	out := make([]Event, 0, len(emitted))
	for _, e := range emitted {
		ev := Event{
			ID:            uuid.NewString(),
			SessionID:     sessionID,
			Source:        e.Source,
			Kind:          e.Kind,
			Offset:        nextOffset,
			CorrelationID: correlationID,
			CreationUTC:   time.Now().UTC(),
			Data:          e.Data,
		}
		nextOffset++
		doc, err := toDocument(ev)
		if err != nil {
			return nil, fmt.Errorf("encode event: %w", err)
		}
		if err := coll.Insert(ctx, doc); err != nil {
			return nil, fmt.Errorf("insert event: %w", err)
		}
		out = append(out, ev)
	}
	return out, nil
}

// List implements Log.
func (l *StoreLog) List(ctx context.Context, sessionID string) ([]Event, error) {
	lock := l.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	coll, err := l.db.Collection(ctx, collectionName)
	if err != nil {
		return nil, fmt.Errorf("open events collection: %w", err)
	}
	docs, err := coll.List(ctx, store.Filter{
		"$and": []store.Filter{
			{"session_id": store.Document{"$eq": sessionID}},
			{"deleted": store.Document{"$eq": false}},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	events := make([]Event, 0, len(docs))
	for _, d := range docs {
		ev, err := fromDocument(d)
		if err != nil {
			return nil, fmt.Errorf("decode event: %w", err)
		}
		events = append(events, ev)
	}
	sort.Slice(events, func(i, j int) bool { return events[i].Offset < events[j].Offset })
	return events, nil
}

// Delete implements Log.
func (l *StoreLog) Delete(ctx context.Context, sessionID, eventID string) error {
	lock := l.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	coll, err := l.db.Collection(ctx, collectionName)
	if err != nil {
		return fmt.Errorf("open events collection: %w", err)
	}
	doc, err := coll.Find(ctx, eventID)
	if err != nil {
		return err
	}
	doc["deleted"] = true
	return coll.Update(ctx, eventID, doc)
}

func toDocument(ev Event) (store.Document, error) {
	var data any
	if len(ev.Data) > 0 {
		if err := json.Unmarshal(ev.Data, &data); err != nil {
			return nil, err
		}
	}
	return store.Document{
		"id":             ev.ID,
		"session_id":     ev.SessionID,
		"source":         string(ev.Source),
		"kind":           string(ev.Kind),
		"offset":         float64(ev.Offset),
		"correlation_id": ev.CorrelationID,
		"creation_utc":   ev.CreationUTC.Format(time.RFC3339Nano),
		"data":           data,
		"deleted":        ev.Deleted,
	}, nil
}

func fromDocument(doc store.Document) (Event, error) {
	data, err := json.Marshal(doc["data"])
	if err != nil {
		return Event{}, err
	}
	createdAt, _ := time.Parse(time.RFC3339Nano, toString(doc["creation_utc"]))
	offset, _ := toInt(doc["offset"])
	deleted, _ := doc["deleted"].(bool)
	return Event{
		ID:            toString(doc["id"]),
		SessionID:     toString(doc["session_id"]),
		Source:        Source(toString(doc["source"])),
		Kind:          Kind(toString(doc["kind"])),
		Offset:        offset,
		CorrelationID: toString(doc["correlation_id"]),
		CreationUTC:   createdAt,
		Data:          data,
		Deleted:       deleted,
	}, nil
}

func toString(v any) string {
	s, _ := v.(string)
	return s
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	default:
		return 0, false
	}
}
