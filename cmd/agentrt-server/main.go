// Command agentrt-server wires up the conversational-agent runtime: stores,
// schematic generator fallback chain, tool service registry, processing
// pipeline, and session dispatcher. It carries no HTTP/REST admin surface
// and no CLI beyond this minimal entrypoint (spec.md §1 Non-goals); callers
// drive the runtime by embedding the dispatcher package directly, the way
// the teacher's generated services are driven by their own transport layer.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"goa.design/clue/log"

	"github.com/emcie-io/agentrt/internal/config"
	"github.com/emcie-io/agentrt/internal/contextvar"
	"github.com/emcie-io/agentrt/internal/dispatcher"
	"github.com/emcie-io/agentrt/internal/eventlog"
	"github.com/emcie-io/agentrt/internal/generation"
	"github.com/emcie-io/agentrt/internal/glossary"
	"github.com/emcie-io/agentrt/internal/guideline"
	"github.com/emcie-io/agentrt/internal/pipeline"
	"github.com/emcie-io/agentrt/internal/session"
	"github.com/emcie-io/agentrt/internal/store"
	"github.com/emcie-io/agentrt/internal/store/memory"
	mongostore "github.com/emcie-io/agentrt/internal/store/mongo"
	"github.com/emcie-io/agentrt/internal/telemetry"
	"github.com/emcie-io/agentrt/internal/toolservice"

	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

func main() {
	var (
		seedF = flag.String("seed", "", "path to a YAML seed file of agents/guidelines (overrides AGENTRT_SEED_FILE)")
		dbgF  = flag.Bool("debug", false, "enable debug logging")
	)
	flag.Parse()

	format := log.FormatJSON
	if log.IsTerminal() {
		format = log.FormatTerminal
	}
	ctx := log.Context(context.Background(), log.WithFormat(format))
	if *dbgF {
		ctx = log.Context(ctx, log.WithDebug())
	}

	if err := run(ctx, *seedF); err != nil {
		log.Fatal(ctx, err)
	}
}

func run(ctx context.Context, seedFlag string) error {
	cfg, err := config.Load(os.Getenv)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if seedFlag != "" {
		cfg.SeedFile = seedFlag
	}

	db, err := newDatabase(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}

	logger := telemetry.NewClueLogger()

	sessions := session.NewStore(db)
	eventLog := eventlog.NewStoreLog(db)
	guidelines := guideline.NewStore(db)
	graph := guideline.NewGraph(db)
	contextVars := contextvar.NewStore(db)
	glossaryStore := glossary.NewStore(db)

	local := toolservice.NewLocalService()
	registry := toolservice.NewRegistry(db, local)

	gen, err := newGenerator(cfg)
	if err != nil {
		return fmt.Errorf("build generator: %w", err)
	}

	proposer := pipeline.NewGuidelineProposer(gen, guidelines).WithThreshold(cfg.ProposerThreshold)
	toolCaller := pipeline.NewToolCaller(gen, registry, guidelines.ListToolAssociations)
	messageProducer := pipeline.NewMessageProducer(gen)

	pipe := pipeline.New(pipeline.Deps{
		Sessions:        sessions,
		EventLog:        eventLog,
		Guidelines:      guidelines,
		Graph:           graph,
		ContextVars:     contextVars,
		Glossary:        glossaryStore,
		Registry:        registry,
		Proposer:        proposer,
		ToolCaller:      toolCaller,
		MessageProducer: messageProducer,
		Logger:          logger,
	})

	notifier := eventlog.NewNotifier()
	disp := dispatcher.New(eventLog, notifier, sessions, pipe, logger)

	indexer := guideline.NewIndexer(guidelines, graph, guideline.NewStoreIndexStore(db), guideline.NewGeneratorConnectionProposer(gen))
	stopIndexing := runIndexerLoop(ctx, indexer, sessions.ListAgentIDs, logger, cfg.IndexIntervalSeconds)
	defer stopIndexing()

	if cfg.SeedFile != "" {
		seed, err := config.LoadSeed(cfg.SeedFile)
		if err != nil {
			return fmt.Errorf("load seed file: %w", err)
		}
		if err := seed.Apply(ctx, sessions, guidelines, cfg.DefaultMaxEngineIterations); err != nil {
			return fmt.Errorf("apply seed file: %w", err)
		}
	}

	log.Printf(ctx, "agentrt-server ready (store=%s generators=%v)", cfg.StoreBackend, cfg.GeneratorChain)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Printf(ctx, "shutting down")
	disp.Drain()
	return nil
}

func newDatabase(ctx context.Context, cfg *config.Config) (store.Database, error) {
	switch cfg.StoreBackend {
	case config.StoreBackendMongo:
		client, err := mongo.Connect(options.Client().ApplyURI(cfg.MongoURI))
		if err != nil {
			return nil, fmt.Errorf("connect mongo: %w", err)
		}
		return mongostore.New(client.Database(cfg.MongoDB))
	default:
		return memory.New(), nil
	}
}

func newGenerator(cfg *config.Config) (generation.Generator, error) {
	var chain []generation.Generator
	for _, name := range cfg.GeneratorChain {
		backend, err := newBackend(cfg, name)
		if err != nil {
			return nil, err
		}
		chain = append(chain, generation.NewSingleBackendGenerator(backend))
	}
	if len(chain) == 1 {
		return chain[0], nil
	}
	return generation.NewFallbackChain(chain...), nil
}

// runIndexerLoop starts a background sweep that periodically drives the
// guideline indexer across every known agent (spec.md §4.7), the only
// production entrypoint that actually populates the derived connection
// graph. Returns a stop func that halts the loop; safe to call once.
func runIndexerLoop(ctx context.Context, indexer *guideline.Indexer, agents guideline.AgentLister, logger telemetry.Logger, intervalSeconds int) func() {
	if intervalSeconds <= 0 {
		intervalSeconds = 30
	}
	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(time.Duration(intervalSeconds) * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-loopCtx.Done():
				return
			case <-ticker.C:
				if err := indexer.IndexAll(loopCtx, agents); err != nil && loopCtx.Err() == nil {
					logger.Warn(loopCtx, "guideline indexer sweep failed", "error", err)
				}
			}
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

func newBackend(cfg *config.Config, name config.GeneratorBackend) (generation.Backend, error) {
	switch name {
	case config.GeneratorAnthropic:
		return generation.NewAnthropicBackendFromAPIKey(cfg.AnthropicAPIKey, cfg.AnthropicModel)
	case config.GeneratorOpenAI:
		return generation.NewOpenAIBackendFromAPIKey(cfg.OpenAIAPIKey, cfg.OpenAIModel)
	case config.GeneratorBedrock:
		return nil, fmt.Errorf("bedrock backend requires an injected runtime client; wire it in a custom main")
	default:
		return nil, fmt.Errorf("unknown generator backend %q", name)
	}
}
