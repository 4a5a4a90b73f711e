// Package pipeline implements the processing pipeline: guideline proposer,
// tool caller, message producer, and their iteration control (spec.md
// §4.2-§4.5).
package pipeline

import (
	"context"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/emcie-io/agentrt/internal/contextvar"
	"github.com/emcie-io/agentrt/internal/eventlog"
	"github.com/emcie-io/agentrt/internal/generation"
	"github.com/emcie-io/agentrt/internal/glossary"
	"github.com/emcie-io/agentrt/internal/guideline"
)

// DefaultActivationThreshold is the minimum score for a guideline to be
// considered "activated" (spec.md §4.3 default 7; §9 Open Question iii
// notes the source has used both 7 and 8 — SPEC_FULL.md fixes 7 as the
// default and leaves it configurable).
const DefaultActivationThreshold = 7

// DefaultBatchSize is the fixed batch size candidates are split into
// before each prompt (spec.md §4.3: "e.g., 5").
const DefaultBatchSize = 5

// AppliedState distinguishes whether a guideline has already been acted on
// within the current session (spec.md §4.3 "previously applied").
type AppliedState string

const (
	AppliedFully     AppliedState = "fully"
	AppliedPartially AppliedState = "partially"
	AppliedNo        AppliedState = "no"
)

// Proposition is one candidate's decision (spec.md §4.3 output).
type Proposition struct {
	Guideline         guideline.Guideline
	Applies           bool
	Score             int
	Rationale         string
	PreviouslyApplied AppliedState
	ToolEnabled       bool
}

type decisionWire struct {
	Applies   bool   `json:"applies"`
	Score     int    `json:"score"`
	Rationale string `json:"rationale"`
}

type batchResponseWire struct {
	Decisions map[string]decisionWire `json:"decisions"` // keyed by guideline id
}

// GuidelineProposer decides which guidelines apply to the current turn
// (spec.md §4.3).
type GuidelineProposer struct {
	generator          generation.Generator
	toolAssociations   guideline.Store
	threshold          int
	batchSize          int
}

// NewGuidelineProposer constructs a proposer with the default threshold
// and batch size.
func NewGuidelineProposer(generator generation.Generator, toolAssociations guideline.Store) *GuidelineProposer {
	return &GuidelineProposer{
		generator:        generator,
		toolAssociations: toolAssociations,
		threshold:        DefaultActivationThreshold,
		batchSize:        DefaultBatchSize,
	}
}

// WithThreshold overrides the activation threshold.
func (p *GuidelineProposer) WithThreshold(threshold int) *GuidelineProposer {
	p.threshold = threshold
	return p
}

// Propose evaluates candidates against history/context/terms and returns
// the ordinary and tool-enabled sets, each ordered by descending score with
// ties broken by stable input order (spec.md §4.3 Tie-breaks). All batches
// run concurrently; a failure in any batch aborts the whole call (spec.md
// §4.3: "All batches run concurrently; failures within a batch propagate
// (no partial batches)").
func (p *GuidelineProposer) Propose(ctx context.Context, history []eventlog.Event, contextVars []contextvar.Variable, terms []glossary.Term, candidates []guideline.Guideline) (ordinary, toolEnabled []Proposition, err error) {
	if len(candidates) == 0 {
		return nil, nil, nil
	}
	batches := splitBatches(candidates, p.batchSize)
	results := make([][]Proposition, len(batches))

	g, gctx := errgroup.WithContext(ctx)
	for i, batch := range batches {
		i, batch := i, batch
		g.Go(func() error {
			props, err := p.evaluateBatch(gctx, history, contextVars, terms, batch, i)
			if err != nil {
				return err
			}
			results[i] = props
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	var all []Proposition
	for _, r := range results {
		all = append(all, r...)
	}

	for i := range all {
		if !all[i].Applies || all[i].Score < p.threshold {
			continue
		}
		toolIDs, err := p.toolAssociations.ListToolAssociations(ctx, all[i].Guideline.ID)
		if err != nil {
			return nil, nil, fmt.Errorf("list tool associations for %s: %w", all[i].Guideline.ID, err)
		}
		all[i].ToolEnabled = len(toolIDs) > 0
	}

	for _, prop := range all {
		if !prop.Applies || prop.Score < p.threshold {
			continue
		}
		if prop.PreviouslyApplied == AppliedFully {
			continue
		}
		if prop.ToolEnabled {
			toolEnabled = append(toolEnabled, prop)
		} else {
			ordinary = append(ordinary, prop)
		}
	}
	sortByScoreStable(ordinary)
	sortByScoreStable(toolEnabled)
	return ordinary, toolEnabled, nil
}

func (p *GuidelineProposer) evaluateBatch(ctx context.Context, history []eventlog.Event, contextVars []contextvar.Variable, terms []glossary.Term, batch []guideline.Guideline, batchIndex int) ([]Proposition, error) {
	prompt := buildProposerPrompt(history, contextVars, terms, batch)
	var resp batchResponseWire
	if _, err := p.generator.Generate(ctx, generation.Request{Prompt: prompt}, &resp); err != nil {
		return nil, fmt.Errorf("batch %d: %w", batchIndex, err)
	}
	out := make([]Proposition, 0, len(batch))
	for _, g := range batch {
		d := resp.Decisions[g.ID]
		out = append(out, Proposition{
			Guideline:         g,
			Applies:           d.Applies,
			Score:             d.Score,
			Rationale:         d.Rationale,
			PreviouslyApplied: classifyPreviouslyApplied(history, g),
		})
	}
	return out, nil
}

// classifyPreviouslyApplied inspects this session's agent events to decide
// whether g has already fired fully, partially, or not at all (spec.md
// §4.3: "so that once-satisfied guidelines do not re-fire on every turn").
// Grounded on a simple keyword-presence heuristic over agent message
// history: a full match requires both the condition and action text to be
// echoed by a prior agent turn; a partial match requires only one. The
// classification makes no generator call. Propose
// suppresses only AppliedFully from re-firing; AppliedPartially still fires
// so the guideline can be completed.
func classifyPreviouslyApplied(history []eventlog.Event, g guideline.Guideline) AppliedState {
	sawCondition, sawAction := false, false
	for _, e := range history {
		if e.Source != eventlog.SourceAIAgent || e.Kind != eventlog.KindMessage {
			continue
		}
		var data eventlog.MessageData
		if err := decodeEventData(e, &data); err != nil {
			continue
		}
		if containsFold(data.Message, g.Content.Condition) {
			sawCondition = true
		}
		if containsFold(data.Message, g.Content.Action) {
			sawAction = true
		}
	}
	switch {
	case sawCondition && sawAction:
		return AppliedFully
	case sawCondition || sawAction:
		return AppliedPartially
	default:
		return AppliedNo
	}
}

func splitBatches(candidates []guideline.Guideline, size int) [][]guideline.Guideline {
	if size <= 0 {
		size = DefaultBatchSize
	}
	var out [][]guideline.Guideline
	for i := 0; i < len(candidates); i += size {
		end := i + size
		if end > len(candidates) {
			end = len(candidates)
		}
		out = append(out, candidates[i:end])
	}
	return out
}

func sortByScoreStable(props []Proposition) {
	sort.SliceStable(props, func(i, j int) bool { return props[i].Score > props[j].Score })
}
