// Package config loads process configuration from environment variables,
// following the teacher's cmd/assistant flag/env pattern (SPEC_FULL.md
// AMBIENT STACK: Configuration).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// StoreBackend selects the store.Database implementation to wire up.
type StoreBackend string

const (
	StoreBackendMemory StoreBackend = "memory"
	StoreBackendMongo  StoreBackend = "mongo"
)

// GeneratorBackend names one member of the schematic generator fallback
// chain (spec.md §4.3 Design Notes (iv): fallback across providers).
type GeneratorBackend string

const (
	GeneratorAnthropic GeneratorBackend = "anthropic"
	GeneratorOpenAI    GeneratorBackend = "openai"
	GeneratorBedrock   GeneratorBackend = "bedrock"
)

// Config is the process-wide configuration, assembled once at startup and
// passed down to constructors rather than read from globals (mirrors the
// teacher's flag-parsed-once-in-main convention, adapted to environment
// variables for container-friendly deployment).
type Config struct {
	// Store backend selection.
	StoreBackend StoreBackend
	MongoURI     string
	MongoDB      string

	// Generator fallback chain, in priority order (spec.md §4.3 Design Notes
	// (iv)). At least one entry is required.
	GeneratorChain []GeneratorBackend

	AnthropicAPIKey string
	AnthropicModel  string

	OpenAIAPIKey string
	OpenAIModel  string

	BedrockRegion      string
	BedrockModel       string
	BedrockMaxTokens   int32
	BedrockTemperature float32

	// DefaultMaxEngineIterations seeds session.Agent.MaxEngineIterations when
	// an agent is created without an explicit override (spec.md §3: "default
	// 3").
	DefaultMaxEngineIterations int

	// ProposerThreshold is the minimum score (0-10) at which the Guideline
	// Proposer's decisions are kept as "applies" (spec.md §4.3).
	ProposerThreshold int

	// GCIntervalSeconds is loaded from the environment (default 5s). The
	// dispatcher does not read it: its GC sweep is always rate-limited to
	// dispatcher.DefaultGCInterval.
	GCIntervalSeconds int

	// IndexIntervalSeconds bounds how often the guideline indexer sweeps
	// every agent for new/deleted guidelines (spec.md §4.7, default 30s).
	IndexIntervalSeconds int

	// SeedFile, if set, points at a YAML file of agents/guidelines to load at
	// startup (SPEC_FULL.md DOMAIN STACK: gopkg.in/yaml.v3).
	SeedFile string
}

const (
	defaultProposerThreshold    = 7
	defaultMaxEngineIterations  = 3
	defaultGCIntervalSeconds    = 5
	defaultIndexIntervalSeconds = 30

	defaultBedrockMaxTokens   int32   = 1024
	defaultBedrockTemperature float32 = 0.2
)

// Load reads configuration from environment variables via getenv (os.Getenv
// in production; a map-backed stub in tests). Unset variables fall back to
// documented defaults; GeneratorChain defaults to ["anthropic", "openai",
// "bedrock"] filtered to backends with credentials present.
func Load(getenv func(string) string) (*Config, error) {
	if getenv == nil {
		getenv = os.Getenv
	}

	cfg := &Config{
		StoreBackend:               StoreBackend(orDefault(getenv("AGENTRT_STORE_BACKEND"), string(StoreBackendMemory))),
		MongoURI:                   getenv("AGENTRT_MONGO_URI"),
		MongoDB:                    orDefault(getenv("AGENTRT_MONGO_DB"), "agentrt"),
		AnthropicAPIKey:            getenv("ANTHROPIC_API_KEY"),
		AnthropicModel:             orDefault(getenv("AGENTRT_ANTHROPIC_MODEL"), "claude-3-5-sonnet-latest"),
		OpenAIAPIKey:               getenv("OPENAI_API_KEY"),
		OpenAIModel:                orDefault(getenv("AGENTRT_OPENAI_MODEL"), "gpt-4o"),
		BedrockRegion:              orDefault(getenv("AGENTRT_BEDROCK_REGION"), "us-east-1"),
		BedrockModel:               getenv("AGENTRT_BEDROCK_MODEL"),
		BedrockMaxTokens:           defaultBedrockMaxTokens,
		BedrockTemperature:         defaultBedrockTemperature,
		DefaultMaxEngineIterations: defaultMaxEngineIterations,
		ProposerThreshold:          defaultProposerThreshold,
		GCIntervalSeconds:          defaultGCIntervalSeconds,
		IndexIntervalSeconds:       defaultIndexIntervalSeconds,
		SeedFile:                   getenv("AGENTRT_SEED_FILE"),
	}

	if v := getenv("AGENTRT_DEFAULT_MAX_ITERATIONS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("AGENTRT_DEFAULT_MAX_ITERATIONS: %w", err)
		}
		cfg.DefaultMaxEngineIterations = n
	}
	if v := getenv("AGENTRT_PROPOSER_THRESHOLD"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("AGENTRT_PROPOSER_THRESHOLD: %w", err)
		}
		cfg.ProposerThreshold = n
	}
	if v := getenv("AGENTRT_GC_INTERVAL_SECONDS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("AGENTRT_GC_INTERVAL_SECONDS: %w", err)
		}
		cfg.GCIntervalSeconds = n
	}
	if v := getenv("AGENTRT_INDEX_INTERVAL_SECONDS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("AGENTRT_INDEX_INTERVAL_SECONDS: %w", err)
		}
		cfg.IndexIntervalSeconds = n
	}

	if v := getenv("AGENTRT_GENERATOR_CHAIN"); v != "" {
		for _, name := range strings.Split(v, ",") {
			cfg.GeneratorChain = append(cfg.GeneratorChain, GeneratorBackend(strings.TrimSpace(name)))
		}
	} else {
		if cfg.AnthropicAPIKey != "" {
			cfg.GeneratorChain = append(cfg.GeneratorChain, GeneratorAnthropic)
		}
		if cfg.OpenAIAPIKey != "" {
			cfg.GeneratorChain = append(cfg.GeneratorChain, GeneratorOpenAI)
		}
		if cfg.BedrockModel != "" {
			cfg.GeneratorChain = append(cfg.GeneratorChain, GeneratorBedrock)
		}
	}

	if cfg.StoreBackend == StoreBackendMongo && cfg.MongoURI == "" {
		return nil, fmt.Errorf("AGENTRT_MONGO_URI is required when AGENTRT_STORE_BACKEND=mongo")
	}
	if len(cfg.GeneratorChain) == 0 {
		return nil, fmt.Errorf("no schematic generator backend configured: set ANTHROPIC_API_KEY, OPENAI_API_KEY, or AGENTRT_BEDROCK_MODEL")
	}

	return cfg, nil
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
