package memory_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/emcie-io/agentrt/internal/store"
	"github.com/emcie-io/agentrt/internal/store/memory"
)

func TestCollection_CRUD(t *testing.T) {
	ctx := context.Background()
	db := memory.New()
	coll, err := db.Collection(ctx, "widgets")
	require.NoError(t, err)

	require.NoError(t, coll.Insert(ctx, store.Document{"id": "1", "name": "a"}))
	require.ErrorContains(t, coll.Insert(ctx, store.Document{"id": "1", "name": "dup"}), "exists")

	doc, err := coll.Find(ctx, "1")
	require.NoError(t, err)
	require.Equal(t, "a", doc["name"])

	require.NoError(t, coll.Update(ctx, "1", store.Document{"name": "b"}))
	doc, err = coll.Find(ctx, "1")
	require.NoError(t, err)
	require.Equal(t, "b", doc["name"])

	require.NoError(t, coll.Delete(ctx, "1"))
	_, err = coll.Find(ctx, "1")
	require.ErrorIs(t, err, store.ErrNotFound)

	require.ErrorIs(t, coll.Delete(ctx, "missing"), store.ErrNotFound)
	require.ErrorIs(t, coll.Update(ctx, "missing", store.Document{}), store.ErrNotFound)
}

func TestCollection_ListOrderAndFilter(t *testing.T) {
	ctx := context.Background()
	db := memory.New()
	coll, err := db.Collection(ctx, "widgets")
	require.NoError(t, err)

	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, coll.Insert(ctx, store.Document{"id": id, "rank": float64(i)}))
	}

	all, err := coll.List(ctx, nil)
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Equal(t, "a", all[0]["id"])
	require.Equal(t, "c", all[2]["id"])

	filtered, err := coll.List(ctx, store.Filter{"rank": store.Document{"$gte": 1.0}})
	require.NoError(t, err)
	require.Len(t, filtered, 2)
}

func TestVectorCollection_SimilaritySearch(t *testing.T) {
	ctx := context.Background()
	db := memory.New()
	vc, err := db.VectorCollection(ctx, "glossary")
	require.NoError(t, err)

	require.NoError(t, vc.Insert(ctx, store.Document{"id": "t1", "name": "balance"}))
	require.NoError(t, vc.IndexText(ctx, "t1", "balance: the amount of money in an account"))
	require.NoError(t, vc.Insert(ctx, store.Document{"id": "t2", "name": "weather"}))
	require.NoError(t, vc.IndexText(ctx, "t2", "weather: atmospheric conditions"))

	results, err := vc.SimilaritySearch(ctx, "account money balance", 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "t1", results[0]["id"])
}
