package glossary_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/emcie-io/agentrt/internal/glossary"
	"github.com/emcie-io/agentrt/internal/store/memory"
)

func TestGlossary_CreateAndFindRelevant(t *testing.T) {
	ctx := context.Background()
	st := glossary.NewStore(memory.New())

	_, err := st.CreateTerm(ctx, glossary.Term{
		TermSet:     "agent-1",
		Name:        "account balance",
		Description: "the customer's current available funds",
		Synonyms:    []string{"balance"},
	})
	require.NoError(t, err)
	_, err = st.CreateTerm(ctx, glossary.Term{
		TermSet:     "agent-1",
		Name:        "shipping address",
		Description: "where a physical order is delivered",
	})
	require.NoError(t, err)

	relevant, err := st.FindRelevant(ctx, "agent-1", "what is my balance", 5)
	require.NoError(t, err)
	require.NotEmpty(t, relevant)
	require.Equal(t, "account balance", relevant[0].Name)
}

func TestGlossary_ListAndDelete(t *testing.T) {
	ctx := context.Background()
	st := glossary.NewStore(memory.New())

	term, err := st.CreateTerm(ctx, glossary.Term{TermSet: "agent-1", Name: "x", Description: "y"})
	require.NoError(t, err)

	list, err := st.ListTerms(ctx, "agent-1")
	require.NoError(t, err)
	require.Len(t, list, 1)

	require.NoError(t, st.DeleteTerm(ctx, term.ID))
	_, err = st.LoadTerm(ctx, term.ID)
	require.ErrorIs(t, err, glossary.ErrTermNotFound)
}
