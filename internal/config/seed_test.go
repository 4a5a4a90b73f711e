package config_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/emcie-io/agentrt/internal/config"
	"github.com/emcie-io/agentrt/internal/guideline"
	"github.com/emcie-io/agentrt/internal/session"
	"github.com/emcie-io/agentrt/internal/store"
	"github.com/emcie-io/agentrt/internal/store/memory"
)

const seedYAML = `
agents:
  - name: support
    description: customer support agent
    guidelines:
      - condition: customer asks for a refund
        action: explain the refund policy
        tools:
          - local:issue_refund
`

func TestLoadSeed_ApplyCreatesAgentsAndGuidelines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte(seedYAML), 0o644))

	seed, err := config.LoadSeed(path)
	require.NoError(t, err)
	require.Len(t, seed.Agents, 1)

	db := memory.New()
	sessions := session.NewStore(db)
	guidelines := guideline.NewStore(db)

	ctx := context.Background()
	require.NoError(t, seed.Apply(ctx, sessions, guidelines, 3))

	coll, err := db.Collection(ctx, "agents")
	require.NoError(t, err)
	docs, err := coll.List(ctx, store.Filter{"name": store.Document{"$eq": "support"}})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	agentID, _ := docs[0]["id"].(string)
	require.NotEmpty(t, agentID)

	gs, err := guidelines.ListGuidelines(ctx, agentID)
	require.NoError(t, err)
	require.Len(t, gs, 1)
	require.Equal(t, "customer asks for a refund", gs[0].Content.Condition)

	tools, err := guidelines.ListToolAssociations(ctx, gs[0].ID)
	require.NoError(t, err)
	require.Len(t, tools, 1)
	require.Equal(t, "local:issue_refund", tools[0].String())
}
