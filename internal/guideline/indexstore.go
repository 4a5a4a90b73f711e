package guideline

import (
	"context"
	"fmt"

	"github.com/emcie-io/agentrt/internal/store"
)

const indexCollection = "guideline_index"

// StoreIndexStore is the store.Database-backed IndexStore implementation,
// persisting one document per agent with its full (guideline_id, checksum)
// list.
type StoreIndexStore struct {
	db store.Database
}

// NewStoreIndexStore constructs an IndexStore persisting into db.
func NewStoreIndexStore(db store.Database) *StoreIndexStore {
	return &StoreIndexStore{db: db}
}

func (s *StoreIndexStore) Load(ctx context.Context, agentID string) ([]indexEntry, error) {
	coll, err := s.db.Collection(ctx, indexCollection)
	if err != nil {
		return nil, fmt.Errorf("open guideline index collection: %w", err)
	}
	doc, err := coll.Find(ctx, agentID)
	if err != nil {
		if err == store.ErrNotFound {
			return nil, nil
		}
		return nil, err
	}
	raw, _ := doc["entries"].([]any)
	out := make([]indexEntry, 0, len(raw))
	for _, r := range raw {
		m, ok := r.(map[string]any)
		if !ok {
			continue
		}
		id, _ := m["guideline_id"].(string)
		checksum, _ := m["checksum"].(string)
		out = append(out, indexEntry{GuidelineID: id, Checksum: checksum})
	}
	return out, nil
}

func (s *StoreIndexStore) Save(ctx context.Context, agentID string, entries []indexEntry) error {
	coll, err := s.db.Collection(ctx, indexCollection)
	if err != nil {
		return fmt.Errorf("open guideline index collection: %w", err)
	}
	raw := make([]any, 0, len(entries))
	for _, e := range entries {
		raw = append(raw, map[string]any{"guideline_id": e.GuidelineID, "checksum": e.Checksum})
	}
	doc := store.Document{"id": agentID, "entries": raw}
	if _, err := coll.Find(ctx, agentID); err != nil {
		if err != store.ErrNotFound {
			return err
		}
		return coll.Insert(ctx, doc)
	}
	return coll.Update(ctx, agentID, doc)
}
