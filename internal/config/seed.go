package config

import (
	"context"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/emcie-io/agentrt/internal/guideline"
	"github.com/emcie-io/agentrt/internal/session"
	"github.com/emcie-io/agentrt/internal/toolservice"
)

// Seed is the YAML document shape for Config.SeedFile: a small set of
// agents and their guidelines, loaded once at startup so a deployment can
// ship its initial configuration as a file rather than API calls (spec.md
// doesn't define a seeding mechanism; the teacher's DSL-generated static
// service registration plays the analogous role of "config baked in at
// startup", adapted here to a YAML list since this runtime has no Goa DSL).
type Seed struct {
	Agents []SeedAgent `yaml:"agents"`
}

type SeedAgent struct {
	Name                string          `yaml:"name"`
	Description         string          `yaml:"description"`
	MaxEngineIterations int             `yaml:"max_engine_iterations"`
	Guidelines          []SeedGuideline `yaml:"guidelines"`
}

type SeedGuideline struct {
	Condition string   `yaml:"condition"`
	Action    string   `yaml:"action"`
	Tools     []string `yaml:"tools"`
}

// LoadSeed reads and parses a seed file from path.
func LoadSeed(path string) (*Seed, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	var s Seed
	if err := yaml.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("parse seed file %s: %w", path, err)
	}
	return &s, nil
}

// Apply creates each seed agent and its guidelines (and tool associations)
// against the given stores, idempotently with respect to a fresh store.
func (s *Seed) Apply(ctx context.Context, sessions session.Store, guidelines guideline.Store, defaultMaxIterations int) error {
	for _, sa := range s.Agents {
		maxIter := sa.MaxEngineIterations
		if maxIter <= 0 {
			maxIter = defaultMaxIterations
		}
		agent, err := sessions.CreateAgent(ctx, session.Agent{
			Name:                sa.Name,
			Description:         sa.Description,
			MaxEngineIterations: maxIter,
			CreatedAt:           time.Now().UTC(),
		})
		if err != nil {
			return fmt.Errorf("seed agent %q: %w", sa.Name, err)
		}
		for _, sg := range sa.Guidelines {
			g, err := guidelines.CreateGuideline(ctx, guideline.Guideline{
				GuidelineSet: agent.ID,
				Content:      guideline.Content{Condition: sg.Condition, Action: sg.Action},
			})
			if err != nil {
				return fmt.Errorf("seed guideline for agent %q: %w", sa.Name, err)
			}
			for _, t := range sg.Tools {
				toolID, err := toolservice.ParseToolID(t)
				if err != nil {
					return fmt.Errorf("seed guideline tool %q: %w", t, err)
				}
				if err := guidelines.AssociateTool(ctx, g.ID, toolID); err != nil {
					return fmt.Errorf("associate tool %q to guideline %q: %w", t, g.ID, err)
				}
			}
		}
	}
	return nil
}
