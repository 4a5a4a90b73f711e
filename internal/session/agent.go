// Package session defines Agent and Session lifecycle state and the store
// contract backing both (spec.md §3 DATA MODEL: Agent, Session).
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/emcie-io/agentrt/internal/store"
)

const (
	agentCollection   = "agents"
	sessionCollection = "sessions"

	// DefaultMaxEngineIterations is the bound applied when an Agent is
	// created without an explicit value (spec.md §3: "default 3").
	DefaultMaxEngineIterations = 3
)

type (
	// Agent is immutable except via explicit update (spec.md §3).
	Agent struct {
		ID                  string
		Name                string
		Description         string
		CreatedAt           time.Time
		MaxEngineIterations int
	}

	// Mode is a Session's auto/manual dispatch mode.
	Mode string
)

const (
	// ModeAuto lets the pipeline generate replies automatically.
	ModeAuto Mode = "auto"
	// ModeManual suppresses automatic replies; a human operator drives the session.
	ModeManual Mode = "manual"
)

type (
	// Session is the durable conversational container events attach to
	// (spec.md §3). Sessions are created on first contact and are permanent
	// until explicitly deleted.
	Session struct {
		ID                  string
		AgentID             string
		CustomerID          string
		Title               string
		Mode                Mode
		ConsumptionOffsets  map[string]int
		CreatedAt           time.Time
	}
)

var (
	// ErrAgentNotFound indicates no agent exists with the given id.
	ErrAgentNotFound = errors.New("agent not found")
	// ErrSessionNotFound indicates no session exists with the given id.
	ErrSessionNotFound = errors.New("session not found")
)

// Store persists agents and sessions. Grounded on the CRUD + sentinel-error
// contract of runtime/agent/session/session.go's Store interface, adapted to
// spec.md's Agent/Session data model (no run metadata here: runs are modeled
// by the event log's correlation ids, not a separate entity).
type Store interface {
	CreateAgent(ctx context.Context, a Agent) (Agent, error)
	LoadAgent(ctx context.Context, agentID string) (Agent, error)
	UpdateAgent(ctx context.Context, a Agent) error
	// ListAgentIDs returns every known agent id, for callers (e.g. the
	// guideline indexer) that must sweep all agents rather than one.
	ListAgentIDs(ctx context.Context) ([]string, error)

	// CreateSession creates a session, minting an id if sessionID is empty.
	// Idempotent when sessionID refers to an existing session: returns it unchanged.
	CreateSession(ctx context.Context, sessionID, agentID, customerID, title string, createdAt time.Time) (Session, error)
	LoadSession(ctx context.Context, sessionID string) (Session, error)
	DeleteSession(ctx context.Context, sessionID string) error
	SetMode(ctx context.Context, sessionID string, mode Mode) error
	SetConsumptionOffset(ctx context.Context, sessionID, consumerID string, offset int) error
}

// StoreImpl is the store.Database-backed Store implementation.
type StoreImpl struct {
	db store.Database
}

// NewStore constructs a Store persisting into db's "agents"/"sessions" collections.
func NewStore(db store.Database) *StoreImpl {
	return &StoreImpl{db: db}
}

func (s *StoreImpl) CreateAgent(ctx context.Context, a Agent) (Agent, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.MaxEngineIterations <= 0 {
		a.MaxEngineIterations = DefaultMaxEngineIterations
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	coll, err := s.db.Collection(ctx, agentCollection)
	if err != nil {
		return Agent{}, fmt.Errorf("open agents collection: %w", err)
	}
	if err := coll.Insert(ctx, agentDocument(a)); err != nil {
		return Agent{}, fmt.Errorf("insert agent: %w", err)
	}
	return a, nil
}

func (s *StoreImpl) ListAgentIDs(ctx context.Context) ([]string, error) {
	coll, err := s.db.Collection(ctx, agentCollection)
	if err != nil {
		return nil, fmt.Errorf("open agents collection: %w", err)
	}
	docs, err := coll.List(ctx, nil)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(docs))
	for _, doc := range docs {
		ids = append(ids, agentFromDocument(doc).ID)
	}
	return ids, nil
}

func (s *StoreImpl) LoadAgent(ctx context.Context, agentID string) (Agent, error) {
	coll, err := s.db.Collection(ctx, agentCollection)
	if err != nil {
		return Agent{}, fmt.Errorf("open agents collection: %w", err)
	}
	doc, err := coll.Find(ctx, agentID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Agent{}, ErrAgentNotFound
		}
		return Agent{}, err
	}
	return agentFromDocument(doc), nil
}

func (s *StoreImpl) UpdateAgent(ctx context.Context, a Agent) error {
	coll, err := s.db.Collection(ctx, agentCollection)
	if err != nil {
		return fmt.Errorf("open agents collection: %w", err)
	}
	if err := coll.Update(ctx, a.ID, agentDocument(a)); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrAgentNotFound
		}
		return err
	}
	return nil
}

func (s *StoreImpl) CreateSession(ctx context.Context, sessionID, agentID, customerID, title string, createdAt time.Time) (Session, error) {
	coll, err := s.db.Collection(ctx, sessionCollection)
	if err != nil {
		return Session{}, fmt.Errorf("open sessions collection: %w", err)
	}
	if sessionID != "" {
		if doc, err := coll.Find(ctx, sessionID); err == nil {
			return sessionFromDocument(doc), nil
		} else if !errors.Is(err, store.ErrNotFound) {
			return Session{}, err
		}
	} else {
		sessionID = uuid.NewString()
	}
	sess := Session{
		ID:                 sessionID,
		AgentID:            agentID,
		CustomerID:         customerID,
		Title:              title,
		Mode:               ModeAuto,
		ConsumptionOffsets: map[string]int{},
		CreatedAt:          createdAt,
	}
	if err := coll.Insert(ctx, sessionDocument(sess)); err != nil {
		return Session{}, fmt.Errorf("insert session: %w", err)
	}
	return sess, nil
}

func (s *StoreImpl) LoadSession(ctx context.Context, sessionID string) (Session, error) {
	coll, err := s.db.Collection(ctx, sessionCollection)
	if err != nil {
		return Session{}, fmt.Errorf("open sessions collection: %w", err)
	}
	doc, err := coll.Find(ctx, sessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Session{}, ErrSessionNotFound
		}
		return Session{}, err
	}
	return sessionFromDocument(doc), nil
}

func (s *StoreImpl) DeleteSession(ctx context.Context, sessionID string) error {
	coll, err := s.db.Collection(ctx, sessionCollection)
	if err != nil {
		return fmt.Errorf("open sessions collection: %w", err)
	}
	if err := coll.Delete(ctx, sessionID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrSessionNotFound
		}
		return err
	}
	return nil
}

func (s *StoreImpl) SetMode(ctx context.Context, sessionID string, mode Mode) error {
	sess, err := s.LoadSession(ctx, sessionID)
	if err != nil {
		return err
	}
	sess.Mode = mode
	coll, err := s.db.Collection(ctx, sessionCollection)
	if err != nil {
		return fmt.Errorf("open sessions collection: %w", err)
	}
	return coll.Update(ctx, sessionID, sessionDocument(sess))
}

func (s *StoreImpl) SetConsumptionOffset(ctx context.Context, sessionID, consumerID string, offset int) error {
	sess, err := s.LoadSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if sess.ConsumptionOffsets == nil {
		sess.ConsumptionOffsets = map[string]int{}
	}
	sess.ConsumptionOffsets[consumerID] = offset
	coll, err := s.db.Collection(ctx, sessionCollection)
	if err != nil {
		return fmt.Errorf("open sessions collection: %w", err)
	}
	return coll.Update(ctx, sessionID, sessionDocument(sess))
}

func agentDocument(a Agent) store.Document {
	return store.Document{
		"id":                    a.ID,
		"name":                  a.Name,
		"description":           a.Description,
		"created_at":            a.CreatedAt.Format(time.RFC3339Nano),
		"max_engine_iterations": float64(a.MaxEngineIterations),
	}
}

func agentFromDocument(doc store.Document) Agent {
	createdAt, _ := time.Parse(time.RFC3339Nano, asString(doc["created_at"]))
	iterations := DefaultMaxEngineIterations
	if n, ok := asInt(doc["max_engine_iterations"]); ok && n > 0 {
		iterations = n
	}
	return Agent{
		ID:                  asString(doc["id"]),
		Name:                asString(doc["name"]),
		Description:         asString(doc["description"]),
		CreatedAt:           createdAt,
		MaxEngineIterations: iterations,
	}
}

func sessionDocument(s Session) store.Document {
	offsets := map[string]any{}
	for k, v := range s.ConsumptionOffsets {
		offsets[k] = float64(v)
	}
	return store.Document{
		"id":                  s.ID,
		"agent_id":            s.AgentID,
		"customer_id":         s.CustomerID,
		"title":               s.Title,
		"mode":                string(s.Mode),
		"consumption_offsets": offsets,
		"created_at":          s.CreatedAt.Format(time.RFC3339Nano),
	}
}

func sessionFromDocument(doc store.Document) Session {
	createdAt, _ := time.Parse(time.RFC3339Nano, asString(doc["created_at"]))
	offsets := map[string]int{}
	if raw, ok := doc["consumption_offsets"].(map[string]any); ok {
		for k, v := range raw {
			if n, ok := asInt(v); ok {
				offsets[k] = n
			}
		}
	}
	mode := Mode(asString(doc["mode"]))
	if mode == "" {
		mode = ModeAuto
	}
	return Session{
		ID:                 asString(doc["id"]),
		AgentID:            asString(doc["agent_id"]),
		CustomerID:         asString(doc["customer_id"]),
		Title:              asString(doc["title"]),
		Mode:               mode,
		ConsumptionOffsets: offsets,
		CreatedAt:          createdAt,
	}
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	default:
		return 0, false
	}
}
