package session_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/emcie-io/agentrt/internal/session"
	"github.com/emcie-io/agentrt/internal/store/memory"
)

func TestAgent_CreateLoadUpdate(t *testing.T) {
	ctx := context.Background()
	st := session.NewStore(memory.New())

	a, err := st.CreateAgent(ctx, session.Agent{Name: "support-bot"})
	require.NoError(t, err)
	require.NotEmpty(t, a.ID)
	require.Equal(t, session.DefaultMaxEngineIterations, a.MaxEngineIterations)

	loaded, err := st.LoadAgent(ctx, a.ID)
	require.NoError(t, err)
	require.Equal(t, a.Name, loaded.Name)

	loaded.MaxEngineIterations = 2
	require.NoError(t, st.UpdateAgent(ctx, loaded))

	reloaded, err := st.LoadAgent(ctx, a.ID)
	require.NoError(t, err)
	require.Equal(t, 2, reloaded.MaxEngineIterations)

	_, err = st.LoadAgent(ctx, "missing")
	require.ErrorIs(t, err, session.ErrAgentNotFound)
}

func TestSession_CreateIsIdempotentByID(t *testing.T) {
	ctx := context.Background()
	st := session.NewStore(memory.New())

	s1, err := st.CreateSession(ctx, "s1", "agent-1", "cust-1", "", time.Now().UTC())
	require.NoError(t, err)
	require.Equal(t, session.ModeAuto, s1.Mode)

	s2, err := st.CreateSession(ctx, "s1", "agent-1", "cust-1", "", time.Now().UTC())
	require.NoError(t, err)
	require.Equal(t, s1.ID, s2.ID)
}

func TestSession_ModeAndConsumptionOffset(t *testing.T) {
	ctx := context.Background()
	st := session.NewStore(memory.New())

	s, err := st.CreateSession(ctx, "", "agent-1", "cust-1", "title", time.Now().UTC())
	require.NoError(t, err)

	require.NoError(t, st.SetMode(ctx, s.ID, session.ModeManual))
	require.NoError(t, st.SetConsumptionOffset(ctx, s.ID, "ui", 5))

	reloaded, err := st.LoadSession(ctx, s.ID)
	require.NoError(t, err)
	require.Equal(t, session.ModeManual, reloaded.Mode)
	require.Equal(t, 5, reloaded.ConsumptionOffsets["ui"])
}

func TestSession_Delete(t *testing.T) {
	ctx := context.Background()
	st := session.NewStore(memory.New())

	s, err := st.CreateSession(ctx, "", "agent-1", "cust-1", "", time.Now().UTC())
	require.NoError(t, err)

	require.NoError(t, st.DeleteSession(ctx, s.ID))
	_, err = st.LoadSession(ctx, s.ID)
	require.ErrorIs(t, err, session.ErrSessionNotFound)
}
