package guideline

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/emcie-io/agentrt/internal/generation"
)

// DefaultConnectionBatchSize bounds how many candidate pairs are evaluated
// per generator call, mirroring the guideline proposer's fixed-size
// batching (pipeline/proposer.go, spec.md §4.3 "e.g., 5").
const DefaultConnectionBatchSize = 5

type pair struct {
	source Guideline
	target Guideline
}

type connectionDecisionWire struct {
	Connected bool   `json:"connected"`
	Kind      string `json:"kind"`
	Score     int    `json:"score"`
}

type connectionBatchResponseWire struct {
	// Decisions is keyed by "sourceID->targetID".
	Decisions map[string]connectionDecisionWire `json:"decisions"`
}

// GeneratorConnectionProposer is the schematic-generator-backed
// ConnectionProposer the Indexer drives (spec.md §4.7: "invoke the
// connection proposer"). Grounded on pipeline/proposer.go's batched,
// concurrent-fan-out evaluation shape, adapted from scoring single
// guidelines against history to scoring ordered guideline pairs against
// each other.
type GeneratorConnectionProposer struct {
	generator generation.Generator
	batchSize int
}

// NewGeneratorConnectionProposer constructs a ConnectionProposer backed by
// generator, using DefaultConnectionBatchSize.
func NewGeneratorConnectionProposer(generator generation.Generator) *GeneratorConnectionProposer {
	return &GeneratorConnectionProposer{generator: generator, batchSize: DefaultConnectionBatchSize}
}

// WithBatchSize overrides the batch size.
func (p *GeneratorConnectionProposer) WithBatchSize(size int) *GeneratorConnectionProposer {
	if size > 0 {
		p.batchSize = size
	}
	return p
}

// Propose evaluates every ordered pair drawn from candidates × against
// (excluding self-pairs) and returns proposed edges (spec.md §4.7: "for
// introduced guidelines (crossed with introduced∪existing), invoke the
// connection proposer"). All batches run concurrently; a failure in any
// batch aborts the whole call, matching the guideline proposer's
// no-partial-batches discipline.
func (p *GeneratorConnectionProposer) Propose(ctx context.Context, candidates, against []Guideline) ([]ProposedConnection, error) {
	pairs := make([]pair, 0, len(candidates)*len(against))
	for _, c := range candidates {
		for _, a := range against {
			if a.ID == c.ID {
				continue
			}
			pairs = append(pairs, pair{source: c, target: a})
		}
	}
	if len(pairs) == 0 {
		return nil, nil
	}

	batches := splitPairBatches(pairs, p.batchSize)
	results := make([][]ProposedConnection, len(batches))

	g, gctx := errgroup.WithContext(ctx)
	for i, batch := range batches {
		i, batch := i, batch
		g.Go(func() error {
			proposed, err := p.evaluateBatch(gctx, batch, i)
			if err != nil {
				return err
			}
			results[i] = proposed
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var all []ProposedConnection
	for _, r := range results {
		all = append(all, r...)
	}
	return all, nil
}

func (p *GeneratorConnectionProposer) evaluateBatch(ctx context.Context, batch []pair, batchIndex int) ([]ProposedConnection, error) {
	prompt := buildConnectionProposerPrompt(batch)
	var resp connectionBatchResponseWire
	if _, err := p.generator.Generate(ctx, generation.Request{Prompt: prompt}, &resp); err != nil {
		return nil, fmt.Errorf("connection batch %d: %w", batchIndex, err)
	}
	out := make([]ProposedConnection, 0, len(batch))
	for _, pr := range batch {
		d, ok := resp.Decisions[pairKey(pr.source.ID, pr.target.ID)]
		if !ok || !d.Connected {
			continue
		}
		kind := ConnectionKind(d.Kind)
		if kind != ConnectionEntails && kind != ConnectionSuggests {
			kind = ConnectionSuggests
		}
		out = append(out, ProposedConnection{
			SourceID: pr.source.ID,
			TargetID: pr.target.ID,
			Kind:     kind,
			Score:    d.Score,
		})
	}
	return out, nil
}

func pairKey(sourceID, targetID string) string {
	return sourceID + "->" + targetID
}

func splitPairBatches(pairs []pair, size int) [][]pair {
	if size <= 0 {
		size = DefaultConnectionBatchSize
	}
	var out [][]pair
	for i := 0; i < len(pairs); i += size {
		end := i + size
		if end > len(pairs) {
			end = len(pairs)
		}
		out = append(out, pairs[i:end])
	}
	return out
}

func buildConnectionProposerPrompt(batch []pair) string {
	var b strings.Builder
	b.WriteString("You are deciding whether one guideline's condition or action connects to another guideline, ")
	b.WriteString("so that activating the source should also surface the target.\n\n")
	b.WriteString("\"entails\" means the target's condition is a direct consequence of the source firing; ")
	b.WriteString("\"suggests\" means the target is merely relevant context worth surfacing.\n\n")
	b.WriteString("## Guideline pairs\n")
	for _, pr := range batch {
		fmt.Fprintf(&b, "- key=%q source=(condition=%q action=%q) target=(condition=%q action=%q)\n",
			pairKey(pr.source.ID, pr.target.ID),
			pr.source.Content.Condition, pr.source.Content.Action,
			pr.target.Content.Condition, pr.target.Content.Action)
	}
	b.WriteString("\nRespond with a JSON object: {\"decisions\": {\"<key>\": {\"connected\": bool, \"kind\": \"entails\"|\"suggests\", \"score\": 1-10}}}.\n")
	return b.String()
}
