// Package glossary stores per-agent Terms and retrieves them by similarity
// search over an assembled "name[, synonyms]: description" string
// (spec.md §3 Term).
package glossary

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/emcie-io/agentrt/internal/store"
)

const termCollection = "glossary_terms"

// Term is one glossary entry owned by an agent (its term_set, spec.md §3).
type Term struct {
	ID          string
	TermSet     string // agent id
	Name        string
	Description string
	Synonyms    []string
}

// ErrTermNotFound indicates no term exists with the given id.
var ErrTermNotFound = errors.New("term not found")

// Store persists Terms and answers similarity queries.
type Store interface {
	CreateTerm(ctx context.Context, t Term) (Term, error)
	LoadTerm(ctx context.Context, id string) (Term, error)
	DeleteTerm(ctx context.Context, id string) error
	ListTerms(ctx context.Context, termSet string) ([]Term, error)

	// FindRelevant returns up to k terms from termSet most similar to
	// query, assembled from the interaction history / guideline content
	// under evaluation (spec.md §4.2 step 1, §4.3 proposer input).
	FindRelevant(ctx context.Context, termSet, query string, k int) ([]Term, error)
}

type storeImpl struct {
	db store.Database
}

// NewStore constructs a Store persisting terms into db's vector collection.
func NewStore(db store.Database) Store {
	return &storeImpl{db: db}
}

// indexedText assembles the "name[, synonyms]: description" string a term
// is indexed by (spec.md §3).
func indexedText(t Term) string {
	label := t.Name
	if len(t.Synonyms) > 0 {
		label += ", " + strings.Join(t.Synonyms, ", ")
	}
	return fmt.Sprintf("%s: %s", label, t.Description)
}

func (s *storeImpl) CreateTerm(ctx context.Context, t Term) (Term, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	coll, err := s.db.VectorCollection(ctx, termCollection)
	if err != nil {
		return Term{}, fmt.Errorf("open glossary terms collection: %w", err)
	}
	if err := coll.Insert(ctx, termDocument(t)); err != nil {
		return Term{}, fmt.Errorf("insert term: %w", err)
	}
	if err := coll.IndexText(ctx, t.ID, indexedText(t)); err != nil {
		return Term{}, fmt.Errorf("index term: %w", err)
	}
	return t, nil
}

func (s *storeImpl) LoadTerm(ctx context.Context, id string) (Term, error) {
	coll, err := s.db.Collection(ctx, termCollection)
	if err != nil {
		return Term{}, fmt.Errorf("open glossary terms collection: %w", err)
	}
	doc, err := coll.Find(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Term{}, ErrTermNotFound
		}
		return Term{}, err
	}
	return termFromDocument(doc), nil
}

func (s *storeImpl) DeleteTerm(ctx context.Context, id string) error {
	coll, err := s.db.Collection(ctx, termCollection)
	if err != nil {
		return fmt.Errorf("open glossary terms collection: %w", err)
	}
	if err := coll.Delete(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrTermNotFound
		}
		return err
	}
	return nil
}

func (s *storeImpl) ListTerms(ctx context.Context, termSet string) ([]Term, error) {
	coll, err := s.db.Collection(ctx, termCollection)
	if err != nil {
		return nil, fmt.Errorf("open glossary terms collection: %w", err)
	}
	docs, err := coll.List(ctx, store.Filter{"term_set": store.Document{"$eq": termSet}})
	if err != nil {
		return nil, err
	}
	out := make([]Term, 0, len(docs))
	for _, d := range docs {
		out = append(out, termFromDocument(d))
	}
	return out, nil
}

func (s *storeImpl) FindRelevant(ctx context.Context, termSet, query string, k int) ([]Term, error) {
	coll, err := s.db.VectorCollection(ctx, termCollection)
	if err != nil {
		return nil, fmt.Errorf("open glossary terms collection: %w", err)
	}
	// Over-fetch then filter by term_set, since the similarity index is
	// global to the collection and not partitioned per agent.
	docs, err := coll.SimilaritySearch(ctx, query, k*4+len(termSet))
	if err != nil {
		return nil, err
	}
	out := make([]Term, 0, k)
	for _, d := range docs {
		t := termFromDocument(d)
		if t.TermSet != termSet {
			continue
		}
		out = append(out, t)
		if len(out) >= k {
			break
		}
	}
	return out, nil
}

func termDocument(t Term) store.Document {
	synonyms := make([]any, 0, len(t.Synonyms))
	for _, s := range t.Synonyms {
		synonyms = append(synonyms, s)
	}
	return store.Document{
		"id":          t.ID,
		"term_set":    t.TermSet,
		"name":        t.Name,
		"description": t.Description,
		"synonyms":    synonyms,
	}
}

func termFromDocument(doc store.Document) Term {
	var synonyms []string
	if raw, ok := doc["synonyms"].([]any); ok {
		for _, s := range raw {
			if str, ok := s.(string); ok {
				synonyms = append(synonyms, str)
			}
		}
	}
	return Term{
		ID:          asString(doc["id"]),
		TermSet:     asString(doc["term_set"]),
		Name:        asString(doc["name"]),
		Description: asString(doc["description"]),
		Synonyms:    synonyms,
	}
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}
