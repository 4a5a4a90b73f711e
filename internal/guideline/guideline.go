// Package guideline models condition/action Guidelines, their directed
// connection graph, and the indexer that derives connections from the
// current guideline set (spec.md §3 Guideline/GuidelineConnection/
// GuidelineToolAssociation, §4.7 Guideline Indexer).
package guideline

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/emcie-io/agentrt/internal/store"
	"github.com/emcie-io/agentrt/internal/toolservice"
)

const guidelineCollection = "guidelines"

type (
	// Content is the free-text condition/action pair a Guideline encodes.
	Content struct {
		Condition string
		Action    string
	}

	// Guideline is one condition/action rule owned by an agent (its
	// guideline_set, spec.md §3 ownership convention).
	Guideline struct {
		ID           string
		GuidelineSet string // agent id
		Content      Content
		CreatedAt    time.Time
	}
)

// Checksum identifies a guideline's content for indexer caching purposes:
// the MD5 of condition||"_"||action (spec.md §3).
func Checksum(c Content) string {
	sum := md5.Sum([]byte(c.Condition + "_" + c.Action))
	return hex.EncodeToString(sum[:])
}

// ErrGuidelineNotFound indicates no guideline exists with the given id.
var ErrGuidelineNotFound = errors.New("guideline not found")

// Store persists Guidelines and their tool associations.
type Store interface {
	CreateGuideline(ctx context.Context, g Guideline) (Guideline, error)
	LoadGuideline(ctx context.Context, id string) (Guideline, error)
	DeleteGuideline(ctx context.Context, id string) error
	ListGuidelines(ctx context.Context, guidelineSet string) ([]Guideline, error)

	AssociateTool(ctx context.Context, guidelineID string, toolID toolservice.ToolID) error
	DisassociateTool(ctx context.Context, guidelineID string, toolID toolservice.ToolID) error
	ListToolAssociations(ctx context.Context, guidelineID string) ([]toolservice.ToolID, error)
}

type storeImpl struct {
	db store.Database
}

// NewStore constructs a Store persisting guidelines and associations into db.
func NewStore(db store.Database) Store {
	return &storeImpl{db: db}
}

func (s *storeImpl) CreateGuideline(ctx context.Context, g Guideline) (Guideline, error) {
	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	if g.CreatedAt.IsZero() {
		g.CreatedAt = time.Now().UTC()
	}
	coll, err := s.db.Collection(ctx, guidelineCollection)
	if err != nil {
		return Guideline{}, fmt.Errorf("open guidelines collection: %w", err)
	}
	if err := coll.Insert(ctx, guidelineDocument(g)); err != nil {
		return Guideline{}, fmt.Errorf("insert guideline: %w", err)
	}
	return g, nil
}

func (s *storeImpl) LoadGuideline(ctx context.Context, id string) (Guideline, error) {
	coll, err := s.db.Collection(ctx, guidelineCollection)
	if err != nil {
		return Guideline{}, fmt.Errorf("open guidelines collection: %w", err)
	}
	doc, err := coll.Find(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Guideline{}, ErrGuidelineNotFound
		}
		return Guideline{}, err
	}
	return guidelineFromDocument(doc), nil
}

func (s *storeImpl) DeleteGuideline(ctx context.Context, id string) error {
	coll, err := s.db.Collection(ctx, guidelineCollection)
	if err != nil {
		return fmt.Errorf("open guidelines collection: %w", err)
	}
	if err := coll.Delete(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrGuidelineNotFound
		}
		return err
	}
	return nil
}

func (s *storeImpl) ListGuidelines(ctx context.Context, guidelineSet string) ([]Guideline, error) {
	coll, err := s.db.Collection(ctx, guidelineCollection)
	if err != nil {
		return nil, fmt.Errorf("open guidelines collection: %w", err)
	}
	docs, err := coll.List(ctx, store.Filter{"guideline_set": store.Document{"$eq": guidelineSet}})
	if err != nil {
		return nil, err
	}
	out := make([]Guideline, 0, len(docs))
	for _, d := range docs {
		out = append(out, guidelineFromDocument(d))
	}
	return out, nil
}

const associationCollection = "guideline_tool_associations"

func (s *storeImpl) AssociateTool(ctx context.Context, guidelineID string, toolID toolservice.ToolID) error {
	coll, err := s.db.Collection(ctx, associationCollection)
	if err != nil {
		return fmt.Errorf("open associations collection: %w", err)
	}
	id := guidelineID + "|" + toolID.String()
	return coll.Insert(ctx, store.Document{
		"id":           id,
		"guideline_id": guidelineID,
		"tool_id":      toolID.String(),
		"created_at":   time.Now().UTC().Format(time.RFC3339Nano),
	})
}

func (s *storeImpl) DisassociateTool(ctx context.Context, guidelineID string, toolID toolservice.ToolID) error {
	coll, err := s.db.Collection(ctx, associationCollection)
	if err != nil {
		return fmt.Errorf("open associations collection: %w", err)
	}
	return coll.Delete(ctx, guidelineID+"|"+toolID.String())
}

func (s *storeImpl) ListToolAssociations(ctx context.Context, guidelineID string) ([]toolservice.ToolID, error) {
	coll, err := s.db.Collection(ctx, associationCollection)
	if err != nil {
		return nil, fmt.Errorf("open associations collection: %w", err)
	}
	docs, err := coll.List(ctx, store.Filter{"guideline_id": store.Document{"$eq": guidelineID}})
	if err != nil {
		return nil, err
	}
	out := make([]toolservice.ToolID, 0, len(docs))
	for _, d := range docs {
		id, err := toolservice.ParseToolID(asString(d["tool_id"]))
		if err != nil {
			continue
		}
		out = append(out, id)
	}
	return out, nil
}

func guidelineDocument(g Guideline) store.Document {
	return store.Document{
		"id":            g.ID,
		"guideline_set": g.GuidelineSet,
		"condition":     g.Content.Condition,
		"action":        g.Content.Action,
		"created_at":    g.CreatedAt.Format(time.RFC3339Nano),
	}
}

func guidelineFromDocument(doc store.Document) Guideline {
	createdAt, _ := time.Parse(time.RFC3339Nano, asString(doc["created_at"]))
	return Guideline{
		ID:           asString(doc["id"]),
		GuidelineSet: asString(doc["guideline_set"]),
		Content: Content{
			Condition: asString(doc["condition"]),
			Action:    asString(doc["action"]),
		},
		CreatedAt: createdAt,
	}
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}
