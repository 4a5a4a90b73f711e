// Package memory implements store.Database entirely in process memory.
// It is the default backend for tests and single-process deployments, and it
// grounds the locking discipline (per-collection reader/writer mutex, all
// mutations through the writer lock) that the Mongo adapter must also honor.
package memory

import (
	"context"
	"errors"
	"math"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/emcie-io/agentrt/internal/store"
)

var (
	errEmptyID       = errors.New("memory: document id is required")
	errAlreadyExists = errors.New("memory: document id already exists")
)

// Database is an in-memory store.Database. Safe for concurrent use.
type Database struct {
	mu          sync.Mutex
	collections map[string]*collection
}

// New constructs an empty in-memory Database.
func New() *Database {
	return &Database{collections: make(map[string]*collection)}
}

// Collection implements store.Database.
func (d *Database) Collection(_ context.Context, name string) (store.Collection, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	c, ok := d.collections[name]
	if !ok {
		c = &collection{
			docs:  make(map[string]store.Document),
			order: make([]string, 0, 16),
		}
		d.collections[name] = c
	}
	return c, nil
}

// VectorCollection returns the named collection configured for similarity
// search over a naive token-overlap scorer. Good enough for tests and small
// glossaries; production deployments swap in a real vector store adapter.
func (d *Database) VectorCollection(ctx context.Context, name string) (store.VectorCollection, error) {
	c, err := d.Collection(ctx, name)
	if err != nil {
		return nil, err
	}
	return c.(*collection), nil
}

type collection struct {
	mu    sync.RWMutex
	docs  map[string]store.Document
	order []string
	texts map[string]string
}

func (c *collection) Insert(_ context.Context, doc store.Document) error {
	id, _ := doc["id"].(string)
	if id == "" {
		return errEmptyID
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.docs[id]; exists {
		return errAlreadyExists
	}
	c.docs[id] = cloneDoc(doc)
	c.order = append(c.order, id)
	return nil
}

func (c *collection) Update(_ context.Context, id string, doc store.Document) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.docs[id]; !exists {
		return store.ErrNotFound
	}
	updated := cloneDoc(doc)
	updated["id"] = id
	c.docs[id] = updated
	return nil
}

func (c *collection) Delete(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.docs[id]; !exists {
		return store.ErrNotFound
	}
	delete(c.docs, id)
	for i, oid := range c.order {
		if oid == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	if c.texts != nil {
		delete(c.texts, id)
	}
	return nil
}

func (c *collection) Find(_ context.Context, id string) (store.Document, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	doc, ok := c.docs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneDoc(doc), nil
}

func (c *collection) List(_ context.Context, filter store.Filter) ([]store.Document, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]store.Document, 0, len(c.order))
	for _, id := range c.order {
		doc := c.docs[id]
		if store.Matches(filter, doc) {
			out = append(out, cloneDoc(doc))
		}
	}
	return out, nil
}

func (c *collection) IndexText(_ context.Context, id, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.texts == nil {
		c.texts = make(map[string]string)
	}
	c.texts[id] = strings.ToLower(text)
	return nil
}

// SimilaritySearch scores documents by normalized token overlap against the
// query. It is a deterministic stand-in for a real embedding-based vector
// store: exact semantics are an implementation detail left to the adapter
// (spec.md only requires that glossary terms be retrievable by similarity).
func (c *collection) SimilaritySearch(_ context.Context, query string, k int) ([]store.Document, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	qTokens := tokenize(query)
	type scored struct {
		id    string
		score float64
	}
	scores := make([]scored, 0, len(c.order))
	for _, id := range c.order {
		text := c.texts[id]
		score := overlapScore(qTokens, tokenize(text))
		if score > 0 {
			scores = append(scores, scored{id: id, score: score})
		}
	}
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].score > scores[j].score })
	if k > 0 && k < len(scores) {
		scores = scores[:k]
	}
	out := make([]store.Document, 0, len(scores))
	for _, s := range scores {
		out = append(out, cloneDoc(c.docs[s.id]))
	}
	return out, nil
}

func tokenize(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, f := range strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		set[f] = struct{}{}
	}
	return set
}

func overlapScore(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	common := 0
	for t := range a {
		if _, ok := b[t]; ok {
			common++
		}
	}
	return float64(common) / math.Sqrt(float64(len(a)*len(b)))
}

func cloneDoc(doc store.Document) store.Document {
	out := make(store.Document, len(doc))
	for k, v := range doc {
		out[k] = v
	}
	return out
}
