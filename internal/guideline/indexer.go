package guideline

import (
	"context"
	"fmt"
)

// ProposedConnection is a candidate edge between two guidelines with the
// connection proposer's confidence score.
type ProposedConnection struct {
	SourceID string
	TargetID string
	Kind     ConnectionKind
	Score    int // 1..10
}

// ConnectionProposer evaluates pairs of guidelines and proposes connections
// between them (backed by the schematic generator; spec.md §4.7).
type ConnectionProposer interface {
	// Propose evaluates every ordered pair drawn from candidates × against,
	// returning proposed edges.
	Propose(ctx context.Context, candidates, against []Guideline) ([]ProposedConnection, error)
}

// connectionScoreThreshold is the minimum proposed score persisted as an
// edge (spec.md §4.7: "persist every edge whose proposed score ≥ 6").
const connectionScoreThreshold = 6

// indexEntry is the side-file index's per-agent, per-guideline record.
type indexEntry struct {
	GuidelineID string
	Checksum    string
}

// IndexStore persists the indexer's (guideline_id, checksum) side index,
// keyed by agent. Kept distinct from guideline.Store because its lifecycle
// (last-seen checksums) is indexer-private bookkeeping, not domain data.
type IndexStore interface {
	Load(ctx context.Context, agentID string) ([]indexEntry, error)
	Save(ctx context.Context, agentID string, entries []indexEntry) error
}

// Indexer maintains the derived connection graph for every agent's current
// guideline set (spec.md §4.7).
type Indexer struct {
	guidelines Store
	graph      *Graph
	index      IndexStore
	proposer   ConnectionProposer
}

// NewIndexer constructs an Indexer.
func NewIndexer(guidelines Store, graph *Graph, index IndexStore, proposer ConnectionProposer) *Indexer {
	return &Indexer{guidelines: guidelines, graph: graph, index: index, proposer: proposer}
}

// AgentLister enumerates the agent ids an IndexAll sweep should visit,
// satisfied by session.Store.ListAgentIDs without this package importing
// the session package.
type AgentLister func(ctx context.Context) ([]string, error)

// IndexAll runs one indexing pass (Index) for every agent agents reports,
// skipping agents whose guideline set has not changed since the last pass.
// Errors for one agent abort the sweep; callers running this on a timer
// will retry on the next tick.
func (ix *Indexer) IndexAll(ctx context.Context, agents AgentLister) error {
	ids, err := agents(ctx)
	if err != nil {
		return fmt.Errorf("list agents: %w", err)
	}
	for _, id := range ids {
		should, err := ix.ShouldIndex(ctx, id)
		if err != nil {
			return fmt.Errorf("should-index agent %s: %w", id, err)
		}
		if !should {
			continue
		}
		if err := ix.Index(ctx, id); err != nil {
			return fmt.Errorf("index agent %s: %w", id, err)
		}
	}
	return nil
}

// classification is the introduced/existing/deleted split for one agent's
// guideline set computed against the side-file index.
type classification struct {
	introduced []Guideline
	existing   []Guideline
	deleted    []string
}

func (ix *Indexer) classify(ctx context.Context, agentID string) (classification, []indexEntry, error) {
	current, err := ix.guidelines.ListGuidelines(ctx, agentID)
	if err != nil {
		return classification{}, nil, fmt.Errorf("list guidelines for %s: %w", agentID, err)
	}
	prevEntries, err := ix.index.Load(ctx, agentID)
	if err != nil {
		return classification{}, nil, fmt.Errorf("load index for %s: %w", agentID, err)
	}
	seen := make(map[string]string, len(prevEntries)) // guideline id -> checksum
	for _, e := range prevEntries {
		seen[e.GuidelineID] = e.Checksum
	}

	var c classification
	currentIDs := make(map[string]struct{}, len(current))
	for _, g := range current {
		currentIDs[g.ID] = struct{}{}
		checksum := Checksum(g.Content)
		if prevChecksum, ok := seen[g.ID]; ok && prevChecksum == checksum {
			c.existing = append(c.existing, g)
		} else {
			c.introduced = append(c.introduced, g)
		}
	}
	for _, e := range prevEntries {
		if _, ok := currentIDs[e.GuidelineID]; !ok {
			c.deleted = append(c.deleted, e.GuidelineID)
		}
	}

	newEntries := make([]indexEntry, 0, len(current))
	for _, g := range current {
		newEntries = append(newEntries, indexEntry{GuidelineID: g.ID, Checksum: Checksum(g.Content)})
	}
	return c, newEntries, nil
}

// ShouldIndex reports whether agentID has any introduced or deleted
// guidelines since the last Index() run (spec.md §4.7).
func (ix *Indexer) ShouldIndex(ctx context.Context, agentID string) (bool, error) {
	c, _, err := ix.classify(ctx, agentID)
	if err != nil {
		return false, err
	}
	return len(c.introduced) > 0 || len(c.deleted) > 0, nil
}

// Index runs one indexing pass for agentID: removes edges for deleted
// guidelines, proposes connections for introduced guidelines against
// introduced∪existing, and persists every edge scoring ≥ threshold
// (spec.md §4.7). Running it twice with no guideline changes in between
// leaves the connection store unchanged (spec.md §8 invariant 6), since an
// unchanged guideline set yields empty introduced/deleted sets and Propose
// is never called.
func (ix *Indexer) Index(ctx context.Context, agentID string) error {
	c, newEntries, err := ix.classify(ctx, agentID)
	if err != nil {
		return err
	}
	for _, id := range c.deleted {
		if err := ix.graph.RemoveGuideline(ctx, id); err != nil {
			return fmt.Errorf("remove deleted guideline %s: %w", id, err)
		}
	}
	if len(c.introduced) > 0 {
		against := append(append([]Guideline{}, c.introduced...), c.existing...)
		proposed, err := ix.proposer.Propose(ctx, c.introduced, against)
		if err != nil {
			return fmt.Errorf("propose connections for agent %s: %w", agentID, err)
		}
		for _, p := range proposed {
			if p.Score < connectionScoreThreshold {
				continue
			}
			if err := ix.graph.UpdateConnection(ctx, p.SourceID, p.TargetID, p.Kind); err != nil {
				return fmt.Errorf("persist connection %s->%s: %w", p.SourceID, p.TargetID, err)
			}
		}
	}
	return ix.index.Save(ctx, agentID, newEntries)
}
