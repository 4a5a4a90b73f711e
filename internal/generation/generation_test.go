package generation_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/emcie-io/agentrt/internal/generation"
)

type stubBackend struct {
	name string
	text string
	err  error
}

func (s *stubBackend) Name() string { return s.name }
func (s *stubBackend) Complete(_ context.Context, _ generation.Request) (string, error) {
	return s.text, s.err
}

type decision struct {
	Applies bool `json:"applies"`
	Score   int  `json:"score"`
}

func TestSingleBackendGenerator_StrictJSON(t *testing.T) {
	gen := generation.NewSingleBackendGenerator(&stubBackend{name: "stub", text: `{"applies": true, "score": 8}`})
	var d decision
	_, err := gen.Generate(context.Background(), generation.Request{}, &d)
	require.NoError(t, err)
	require.True(t, d.Applies)
	require.Equal(t, 8, d.Score)
}

func TestSingleBackendGenerator_JSONFinderFallback(t *testing.T) {
	gen := generation.NewSingleBackendGenerator(&stubBackend{name: "stub", text: "Sure, here you go:\n```json\n{\"applies\": false, \"score\": 2}\n```\nLet me know if needed."})
	var d decision
	_, err := gen.Generate(context.Background(), generation.Request{}, &d)
	require.NoError(t, err)
	require.False(t, d.Applies)
	require.Equal(t, 2, d.Score)
}

func TestSingleBackendGenerator_UnparseableFails(t *testing.T) {
	gen := generation.NewSingleBackendGenerator(&stubBackend{name: "stub", text: "no json here at all"})
	var d decision
	_, err := gen.Generate(context.Background(), generation.Request{}, &d)
	require.ErrorIs(t, err, generation.ErrGenerationFailed)
}

func TestFallbackChain_TriesNextOnFailure(t *testing.T) {
	failing := generation.NewSingleBackendGenerator(&stubBackend{name: "a", err: errors.New("unavailable")})
	succeeding := generation.NewSingleBackendGenerator(&stubBackend{name: "b", text: `{"applies": true, "score": 9}`})
	chain := generation.NewFallbackChain(failing, succeeding)

	var d decision
	_, err := chain.Generate(context.Background(), generation.Request{}, &d)
	require.NoError(t, err)
	require.True(t, d.Applies)
}

func TestFallbackChain_SurfacesLastError(t *testing.T) {
	first := generation.NewSingleBackendGenerator(&stubBackend{name: "a", err: errors.New("first failure")})
	second := generation.NewSingleBackendGenerator(&stubBackend{name: "b", err: errors.New("second failure")})
	chain := generation.NewFallbackChain(first, second)

	var d decision
	_, err := chain.Generate(context.Background(), generation.Request{}, &d)
	require.ErrorContains(t, err, "second failure")
}
