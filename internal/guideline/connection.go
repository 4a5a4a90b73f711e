package guideline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/emcie-io/agentrt/internal/store"
)

// ConnectionKind is the relationship a GuidelineConnection edge encodes.
type ConnectionKind string

const (
	ConnectionEntails  ConnectionKind = "entails"
	ConnectionSuggests ConnectionKind = "suggests"
)

// Connection is a directed edge between two guidelines (spec.md §3
// GuidelineConnection).
type Connection struct {
	SourceID  string
	TargetID  string
	Kind      ConnectionKind
	CreatedAt time.Time
}

const connectionCollection = "guideline_connections"

// Graph is the edge set plus an in-memory DAG index, both guarded by a
// single lock so edge-set and adjacency updates are always atomic (spec.md
// §5: "the guideline connection graph uses a single lock protecting both
// the edge set and the adjacency index; they must be updated atomically").
// Grounded on the single sync.RWMutex guarding a registry map in
// runtime/registry/manager.go's Manager, generalized here to guard two
// co-located structures (edges + adjacency) instead of one map.
type Graph struct {
	db store.Database

	mu         sync.Mutex
	adjacency  map[string]map[string]ConnectionKind // source -> target -> kind
	incoming   map[string]map[string]struct{}       // target -> set of sources
	loaded     bool
}

// NewGraph constructs a Graph persisting edges into db. The in-memory index
// is lazily hydrated from the store on first use.
func NewGraph(db store.Database) *Graph {
	return &Graph{
		db:        db,
		adjacency: make(map[string]map[string]ConnectionKind),
		incoming:  make(map[string]map[string]struct{}),
	}
}

func (g *Graph) ensureLoaded(ctx context.Context) error {
	if g.loaded {
		return nil
	}
	coll, err := g.db.Collection(ctx, connectionCollection)
	if err != nil {
		return fmt.Errorf("open guideline connections collection: %w", err)
	}
	docs, err := coll.List(ctx, store.Filter{})
	if err != nil {
		return err
	}
	for _, d := range docs {
		c := connectionFromDocument(d)
		g.index(c)
	}
	g.loaded = true
	return nil
}

func (g *Graph) index(c Connection) {
	if g.adjacency[c.SourceID] == nil {
		g.adjacency[c.SourceID] = make(map[string]ConnectionKind)
	}
	g.adjacency[c.SourceID][c.TargetID] = c.Kind
	if g.incoming[c.TargetID] == nil {
		g.incoming[c.TargetID] = make(map[string]struct{})
	}
	g.incoming[c.TargetID][c.SourceID] = struct{}{}
}

func (g *Graph) unindex(sourceID, targetID string) {
	if m, ok := g.adjacency[sourceID]; ok {
		delete(m, targetID)
		if len(m) == 0 {
			delete(g.adjacency, sourceID)
		}
	}
	if m, ok := g.incoming[targetID]; ok {
		delete(m, sourceID)
		if len(m) == 0 {
			delete(g.incoming, targetID)
		}
	}
}

// UpdateConnection upserts a single edge (source,target) → kind. Calling it
// twice with identical arguments yields a single edge (spec.md §8 invariant 5).
func (g *Graph) UpdateConnection(ctx context.Context, sourceID, targetID string, kind ConnectionKind) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.ensureLoaded(ctx); err != nil {
		return err
	}
	coll, err := g.db.Collection(ctx, connectionCollection)
	if err != nil {
		return fmt.Errorf("open guideline connections collection: %w", err)
	}
	c := Connection{SourceID: sourceID, TargetID: targetID, Kind: kind, CreatedAt: time.Now().UTC()}
	id := connectionID(sourceID, targetID)
	doc := connectionDocument(c)
	if _, err := coll.Find(ctx, id); err != nil {
		if err := coll.Insert(ctx, doc); err != nil {
			return fmt.Errorf("insert guideline connection: %w", err)
		}
	} else {
		if err := coll.Update(ctx, id, doc); err != nil {
			return fmt.Errorf("update guideline connection: %w", err)
		}
	}
	g.index(c)
	return nil
}

// RemoveGuideline drops every edge touching guidelineID, both outgoing and
// incoming (spec.md §4.7: "for deleted guidelines, remove both outgoing and
// incoming edges").
func (g *Graph) RemoveGuideline(ctx context.Context, guidelineID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.ensureLoaded(ctx); err != nil {
		return err
	}
	coll, err := g.db.Collection(ctx, connectionCollection)
	if err != nil {
		return fmt.Errorf("open guideline connections collection: %w", err)
	}
	for target := range g.adjacency[guidelineID] {
		if err := coll.Delete(ctx, connectionID(guidelineID, target)); err != nil && err != store.ErrNotFound {
			return err
		}
		g.unindex(guidelineID, target)
	}
	for source := range g.incoming[guidelineID] {
		if err := coll.Delete(ctx, connectionID(source, guidelineID)); err != nil && err != store.ErrNotFound {
			return err
		}
		g.unindex(source, guidelineID)
	}
	return nil
}

// ListConnections returns edges touching id, direct or transitive. When
// indirect is true, successors/predecessors are gathered by BFS over the
// adjacency index (spec.md §4.7).
func (g *Graph) ListConnections(ctx context.Context, id string, bySource, indirect bool) ([]Connection, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.ensureLoaded(ctx); err != nil {
		return nil, err
	}
	if !indirect {
		return g.directConnections(id, bySource), nil
	}
	return g.bfsConnections(id, bySource), nil
}

func (g *Graph) directConnections(id string, bySource bool) []Connection {
	var out []Connection
	if bySource {
		for target, kind := range g.adjacency[id] {
			out = append(out, Connection{SourceID: id, TargetID: target, Kind: kind})
		}
	} else {
		for source := range g.incoming[id] {
			out = append(out, Connection{SourceID: source, TargetID: id, Kind: g.adjacency[source][id]})
		}
	}
	return out
}

func (g *Graph) bfsConnections(id string, bySource bool) []Connection {
	visited := map[string]struct{}{id: {}}
	queue := []string{id}
	var out []Connection
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if bySource {
			for target, kind := range g.adjacency[cur] {
				out = append(out, Connection{SourceID: cur, TargetID: target, Kind: kind})
				if _, ok := visited[target]; !ok {
					visited[target] = struct{}{}
					queue = append(queue, target)
				}
			}
		} else {
			for source := range g.incoming[cur] {
				out = append(out, Connection{SourceID: source, TargetID: cur, Kind: g.adjacency[source][cur]})
				if _, ok := visited[source]; !ok {
					visited[source] = struct{}{}
					queue = append(queue, source)
				}
			}
		}
	}
	return out
}

func connectionID(sourceID, targetID string) string {
	return sourceID + "->" + targetID
}

func connectionDocument(c Connection) store.Document {
	return store.Document{
		"id":         connectionID(c.SourceID, c.TargetID),
		"source_id":  c.SourceID,
		"target_id":  c.TargetID,
		"kind":       string(c.Kind),
		"created_at": c.CreatedAt.Format(time.RFC3339Nano),
	}
}

func connectionFromDocument(doc store.Document) Connection {
	createdAt, _ := time.Parse(time.RFC3339Nano, asString(doc["created_at"]))
	return Connection{
		SourceID:  asString(doc["source_id"]),
		TargetID:  asString(doc["target_id"]),
		Kind:      ConnectionKind(asString(doc["kind"])),
		CreatedAt: createdAt,
	}
}
