package store_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/emcie-io/agentrt/internal/store"
)

func TestMatches_Comparisons(t *testing.T) {
	doc := store.Document{"age": 21.0, "name": "ada"}

	cases := []struct {
		name   string
		filter store.Filter
		want   bool
	}{
		{"eq match", store.Filter{"age": store.Document{"$eq": 21.0}}, true},
		{"eq mismatch", store.Filter{"age": store.Document{"$eq": 30.0}}, false},
		{"ne", store.Filter{"age": store.Document{"$ne": 30.0}}, true},
		{"gt boundary false", store.Filter{"age": store.Document{"$gt": 21.0}}, false},
		{"gte boundary true", store.Filter{"age": store.Document{"$gte": 21.0}}, true},
		{"lt boundary false", store.Filter{"age": store.Document{"$lt": 21.0}}, false},
		{"lte boundary true", store.Filter{"age": store.Document{"$lte": 21.0}}, true},
		{"bare value shorthand", store.Filter{"name": "ada"}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, store.Matches(tc.filter, doc))
		})
	}
}

func TestMatches_AndOr(t *testing.T) {
	doc := store.Document{"age": 21.0, "name": "ada"}

	and := store.Filter{"$and": []store.Filter{
		{"age": store.Document{"$gte": 18.0}},
		{"name": store.Document{"$eq": "ada"}},
	}}
	require.True(t, store.Matches(and, doc))

	andFail := store.Filter{"$and": []store.Filter{
		{"age": store.Document{"$gte": 18.0}},
		{"name": store.Document{"$eq": "grace"}},
	}}
	require.False(t, store.Matches(andFail, doc))

	or := store.Filter{"$or": []store.Filter{
		{"name": store.Document{"$eq": "grace"}},
		{"name": store.Document{"$eq": "ada"}},
	}}
	require.True(t, store.Matches(or, doc))

	orFail := store.Filter{"$or": []store.Filter{
		{"name": store.Document{"$eq": "grace"}},
		{"name": store.Document{"$eq": "linus"}},
	}}
	require.False(t, store.Matches(orFail, doc))
}

func TestMatches_EmptyFilterMatchesAll(t *testing.T) {
	require.True(t, store.Matches(nil, store.Document{"a": 1}))
	require.True(t, store.Matches(store.Filter{}, store.Document{"a": 1}))
}
