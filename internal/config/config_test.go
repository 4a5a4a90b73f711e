package config_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/emcie-io/agentrt/internal/config"
)

func env(values map[string]string) func(string) string {
	return func(key string) string { return values[key] }
}

func TestLoad_DefaultsToMemoryStoreAndThreshold(t *testing.T) {
	cfg, err := config.Load(env(map[string]string{"ANTHROPIC_API_KEY": "key"}))
	require.NoError(t, err)
	require.Equal(t, config.StoreBackendMemory, cfg.StoreBackend)
	require.Equal(t, 7, cfg.ProposerThreshold)
	require.Equal(t, 3, cfg.DefaultMaxEngineIterations)
	require.Equal(t, 30, cfg.IndexIntervalSeconds)
	require.Equal(t, []config.GeneratorBackend{config.GeneratorAnthropic}, cfg.GeneratorChain)
}

func TestLoad_IndexIntervalSecondsOverride(t *testing.T) {
	cfg, err := config.Load(env(map[string]string{
		"ANTHROPIC_API_KEY":             "key",
		"AGENTRT_INDEX_INTERVAL_SECONDS": "10",
	}))
	require.NoError(t, err)
	require.Equal(t, 10, cfg.IndexIntervalSeconds)
}

func TestLoad_MongoRequiresURI(t *testing.T) {
	_, err := config.Load(env(map[string]string{
		"AGENTRT_STORE_BACKEND": "mongo",
		"ANTHROPIC_API_KEY":     "key",
	}))
	require.Error(t, err)
}

func TestLoad_NoGeneratorCredentialsErrors(t *testing.T) {
	_, err := config.Load(env(map[string]string{}))
	require.Error(t, err)
}

func TestLoad_ExplicitGeneratorChainOverridesCredentialDetection(t *testing.T) {
	cfg, err := config.Load(env(map[string]string{
		"ANTHROPIC_API_KEY":       "key",
		"OPENAI_API_KEY":          "key2",
		"AGENTRT_GENERATOR_CHAIN": "openai, anthropic",
	}))
	require.NoError(t, err)
	require.Equal(t, []config.GeneratorBackend{config.GeneratorOpenAI, config.GeneratorAnthropic}, cfg.GeneratorChain)
}
