package guideline_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/emcie-io/agentrt/internal/guideline"
	"github.com/emcie-io/agentrt/internal/store/memory"
)

func TestGuidelineStore_CRUD(t *testing.T) {
	ctx := context.Background()
	st := guideline.NewStore(memory.New())

	g, err := st.CreateGuideline(ctx, guideline.Guideline{
		GuidelineSet: "agent-1",
		Content:      guideline.Content{Condition: "user greets", Action: "greet back in French"},
	})
	require.NoError(t, err)
	require.NotEmpty(t, g.ID)

	list, err := st.ListGuidelines(ctx, "agent-1")
	require.NoError(t, err)
	require.Len(t, list, 1)

	require.NoError(t, st.DeleteGuideline(ctx, g.ID))
	_, err = st.LoadGuideline(ctx, g.ID)
	require.ErrorIs(t, err, guideline.ErrGuidelineNotFound)
}

func TestChecksum_StableForSameContent(t *testing.T) {
	c1 := guideline.Checksum(guideline.Content{Condition: "a", Action: "b"})
	c2 := guideline.Checksum(guideline.Content{Condition: "a", Action: "b"})
	c3 := guideline.Checksum(guideline.Content{Condition: "a", Action: "c"})
	require.Equal(t, c1, c2)
	require.NotEqual(t, c1, c3)
}

func TestGraph_UpdateConnectionIsIdempotent(t *testing.T) {
	ctx := context.Background()
	g := guideline.NewGraph(memory.New())

	require.NoError(t, g.UpdateConnection(ctx, "a", "b", guideline.ConnectionEntails))
	require.NoError(t, g.UpdateConnection(ctx, "a", "b", guideline.ConnectionEntails))

	conns, err := g.ListConnections(ctx, "a", true, false)
	require.NoError(t, err)
	require.Len(t, conns, 1)
	require.Equal(t, "b", conns[0].TargetID)
}

func TestGraph_IndirectListUsesBFS(t *testing.T) {
	ctx := context.Background()
	g := guideline.NewGraph(memory.New())

	require.NoError(t, g.UpdateConnection(ctx, "a", "b", guideline.ConnectionEntails))
	require.NoError(t, g.UpdateConnection(ctx, "b", "c", guideline.ConnectionSuggests))

	direct, err := g.ListConnections(ctx, "a", true, false)
	require.NoError(t, err)
	require.Len(t, direct, 1)

	indirect, err := g.ListConnections(ctx, "a", true, true)
	require.NoError(t, err)
	require.Len(t, indirect, 2)
}

func TestGraph_RemoveGuidelineDropsBothDirections(t *testing.T) {
	ctx := context.Background()
	g := guideline.NewGraph(memory.New())

	require.NoError(t, g.UpdateConnection(ctx, "a", "b", guideline.ConnectionEntails))
	require.NoError(t, g.UpdateConnection(ctx, "b", "c", guideline.ConnectionSuggests))

	require.NoError(t, g.RemoveGuideline(ctx, "b"))

	fromA, err := g.ListConnections(ctx, "a", true, false)
	require.NoError(t, err)
	require.Empty(t, fromA)

	fromB, err := g.ListConnections(ctx, "b", true, false)
	require.NoError(t, err)
	require.Empty(t, fromB)
}

type stubProposer struct {
	proposals []guideline.ProposedConnection
}

func (s *stubProposer) Propose(_ context.Context, _, _ []guideline.Guideline) ([]guideline.ProposedConnection, error) {
	return s.proposals, nil
}

func TestIndexer_RoundTripIsNoOpWhenUnchanged(t *testing.T) {
	ctx := context.Background()
	db := memory.New()
	store := guideline.NewStore(db)
	graph := guideline.NewGraph(db)
	indexStore := guideline.NewStoreIndexStore(db)

	g1, err := store.CreateGuideline(ctx, guideline.Guideline{GuidelineSet: "agent-1", Content: guideline.Content{Condition: "c1", Action: "a1"}})
	require.NoError(t, err)
	g2, err := store.CreateGuideline(ctx, guideline.Guideline{GuidelineSet: "agent-1", Content: guideline.Content{Condition: "c2", Action: "a2"}})
	require.NoError(t, err)

	proposer := &stubProposer{proposals: []guideline.ProposedConnection{
		{SourceID: g1.ID, TargetID: g2.ID, Kind: guideline.ConnectionEntails, Score: 8},
	}}
	indexer := guideline.NewIndexer(store, graph, indexStore, proposer)

	shouldIndex, err := indexer.ShouldIndex(ctx, "agent-1")
	require.NoError(t, err)
	require.True(t, shouldIndex)

	require.NoError(t, indexer.Index(ctx, "agent-1"))

	conns, err := graph.ListConnections(ctx, g1.ID, true, false)
	require.NoError(t, err)
	require.Len(t, conns, 1)

	// Second pass with no guideline changes: no new proposals should be
	// requested and the connection store stays unchanged (invariant 6).
	proposer.proposals = nil
	shouldIndex, err = indexer.ShouldIndex(ctx, "agent-1")
	require.NoError(t, err)
	require.False(t, shouldIndex)

	require.NoError(t, indexer.Index(ctx, "agent-1"))
	conns, err = graph.ListConnections(ctx, g1.ID, true, false)
	require.NoError(t, err)
	require.Len(t, conns, 1)
}

func TestIndexer_RemovesEdgesForDeletedGuidelines(t *testing.T) {
	ctx := context.Background()
	db := memory.New()
	st := guideline.NewStore(db)
	graph := guideline.NewGraph(db)
	indexStore := guideline.NewStoreIndexStore(db)

	g1, err := st.CreateGuideline(ctx, guideline.Guideline{GuidelineSet: "agent-1", Content: guideline.Content{Condition: "c1", Action: "a1"}})
	require.NoError(t, err)
	g2, err := st.CreateGuideline(ctx, guideline.Guideline{GuidelineSet: "agent-1", Content: guideline.Content{Condition: "c2", Action: "a2"}})
	require.NoError(t, err)

	proposer := &stubProposer{proposals: []guideline.ProposedConnection{
		{SourceID: g1.ID, TargetID: g2.ID, Kind: guideline.ConnectionEntails, Score: 9},
	}}
	indexer := guideline.NewIndexer(st, graph, indexStore, proposer)
	require.NoError(t, indexer.Index(ctx, "agent-1"))

	require.NoError(t, st.DeleteGuideline(ctx, g2.ID))
	proposer.proposals = nil
	require.NoError(t, indexer.Index(ctx, "agent-1"))

	conns, err := graph.ListConnections(ctx, g1.ID, true, false)
	require.NoError(t, err)
	require.Empty(t, conns)
}
