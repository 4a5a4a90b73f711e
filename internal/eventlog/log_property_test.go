package eventlog_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/emcie-io/agentrt/internal/eventlog"
	"github.com/emcie-io/agentrt/internal/store/memory"
)

// TestAppendOffsetsAreMonotonicAndContiguous checks spec.md §8 invariant 1
// (offsets are dense and strictly increasing per session) across randomly
// sized batches, mirroring the property-test density SPEC_FULL.md calls for
// in place of the teacher's cache_property_test.go.
func TestAppendOffsetsAreMonotonicAndContiguous(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("offsets assigned across successive batches are 0..n-1 with no gaps", prop.ForAll(
		func(batchSizes []int) bool {
			ctx := context.Background()
			log := eventlog.NewStoreLog(memory.New())
			const sessionID = "prop-session"

			expected := 0
			for i, size := range batchSizes {
				batch := make([]eventlog.EmittedEvent, size)
				for j := range batch {
					batch[j] = eventlog.EmittedEvent{
						Source: eventlog.SourceAIAgent,
						Kind:   eventlog.KindMessage,
						Data:   json.RawMessage(`{"message":"x"}`),
					}
				}
				events, err := log.Append(ctx, sessionID, "corr", batch)
				if err != nil {
					t.Logf("batch %d append failed: %v", i, err)
					return false
				}
				for _, e := range events {
					if e.Offset != expected {
						t.Logf("expected offset %d, got %d", expected, e.Offset)
						return false
					}
					expected++
				}
			}

			all, err := log.List(ctx, sessionID)
			if err != nil || len(all) != expected {
				return false
			}
			for i, e := range all {
				if e.Offset != i {
					return false
				}
			}
			return true
		},
		gen.SliceOfN(5, gen.IntRange(0, 4)),
	))

	properties.TestingRun(t)
}
