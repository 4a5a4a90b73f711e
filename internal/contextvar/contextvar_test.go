package contextvar_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/emcie-io/agentrt/internal/contextvar"
	"github.com/emcie-io/agentrt/internal/store/memory"
)

func TestFreshnessRule_MatchesSubsetOfFields(t *testing.T) {
	rule := &contextvar.FreshnessRule{Hours: []int{9, 17}}
	nineAM := time.Date(2026, 7, 31, 9, 0, 0, 0, time.UTC)
	noon := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	require.True(t, rule.Matches(nineAM))
	require.False(t, rule.Matches(noon))
}

func TestFreshnessRule_NilNeverMatches(t *testing.T) {
	var rule *contextvar.FreshnessRule
	require.False(t, rule.Matches(time.Now()))
}

func TestVariable_NeedsRefresh(t *testing.T) {
	withoutRule := contextvar.Variable{}
	require.True(t, withoutRule.NeedsRefresh(time.Now(), true))
	require.False(t, withoutRule.NeedsRefresh(time.Now(), false))

	withRule := contextvar.Variable{FreshnessRules: &contextvar.FreshnessRule{Hours: []int{9}}}
	nineAM := time.Date(2026, 7, 31, 9, 0, 0, 0, time.UTC)
	tenAM := time.Date(2026, 7, 31, 10, 0, 0, 0, time.UTC)
	require.True(t, withRule.NeedsRefresh(nineAM, false))
	require.False(t, withRule.NeedsRefresh(tenAM, false))
}

func TestStore_VariableAndValueRoundTrip(t *testing.T) {
	ctx := context.Background()
	st := contextvar.NewStore(memory.New())

	v, err := st.CreateVariable(ctx, contextvar.Variable{
		AgentID:     "agent-1",
		Name:        "subscription_tier",
		Description: "the customer's current plan",
	})
	require.NoError(t, err)

	_, found, err := st.LoadValue(ctx, v.ID, "customer-1")
	require.NoError(t, err)
	require.False(t, found)

	require.NoError(t, st.SetValue(ctx, contextvar.Value{VariableID: v.ID, Key: "customer-1", Data: "gold", UpdatedAt: time.Now().UTC()}))

	loaded, found, err := st.LoadValue(ctx, v.ID, "customer-1")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "gold", loaded.Data)

	list, err := st.ListVariables(ctx, "agent-1")
	require.NoError(t, err)
	require.Len(t, list, 1)
}
