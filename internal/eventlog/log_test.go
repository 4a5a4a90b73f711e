package eventlog_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/emcie-io/agentrt/internal/eventlog"
	"github.com/emcie-io/agentrt/internal/store/memory"
)

func TestAppend_OffsetsAreContiguousAndMonotonic(t *testing.T) {
	ctx := context.Background()
	log := eventlog.NewStoreLog(memory.New())

	first, err := log.Append(ctx, "s1", "corr-1", []eventlog.EmittedEvent{
		{Source: eventlog.SourceCustomer, Kind: eventlog.KindMessage},
	})
	require.NoError(t, err)
	require.Equal(t, 0, first[0].Offset)

	second, err := log.Append(ctx, "s1", "corr-2", []eventlog.EmittedEvent{
		{Source: eventlog.SourceAIAgent, Kind: eventlog.KindMessage},
		{Source: eventlog.SourceAIAgent, Kind: eventlog.KindStatus},
	})
	require.NoError(t, err)
	require.Equal(t, 1, second[0].Offset)
	require.Equal(t, 2, second[1].Offset)

	all, err := log.List(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, all, 3)
	for i, e := range all {
		require.Equal(t, i, e.Offset)
	}
}

func TestAppend_CorrelationGrouping(t *testing.T) {
	ctx := context.Background()
	log := eventlog.NewStoreLog(memory.New())

	_, err := log.Append(ctx, "s1", "corr-1", []eventlog.EmittedEvent{
		{Source: eventlog.SourceCustomer, Kind: eventlog.KindMessage},
	})
	require.NoError(t, err)
	_, err = log.Append(ctx, "s1", "corr-1", []eventlog.EmittedEvent{
		{Source: eventlog.SourceAIAgent, Kind: eventlog.KindTool},
		{Source: eventlog.SourceAIAgent, Kind: eventlog.KindMessage},
	})
	require.NoError(t, err)

	all, err := log.List(ctx, "s1")
	require.NoError(t, err)
	var group []eventlog.Event
	for _, e := range all {
		if e.CorrelationID == "corr-1" && e.Source != eventlog.SourceCustomer {
			group = append(group, e)
		}
	}
	messageCount := 0
	for _, e := range group {
		if e.Kind == eventlog.KindMessage {
			messageCount++
		}
	}
	require.LessOrEqual(t, messageCount, 1)
}

func TestCancellation_DiscardsStagedEvents(t *testing.T) {
	ctx := context.Background()
	log := eventlog.NewStoreLog(memory.New())

	buf := eventlog.NewBufferingEmitter()
	buf.Emit(eventlog.EmittedEvent{Source: eventlog.SourceAIAgent, Kind: eventlog.KindTool})
	buf.Emit(eventlog.EmittedEvent{Source: eventlog.SourceAIAgent, Kind: eventlog.KindMessage})
	require.Equal(t, 2, buf.Len())

	// Simulated cancellation: the task simply never flushes buf.
	all, err := log.List(ctx, "s1")
	require.NoError(t, err)
	require.Empty(t, all)
}

func TestPublishingEmitter_FlushPreservesOrderAndNotifies(t *testing.T) {
	ctx := context.Background()
	log := eventlog.NewStoreLog(memory.New())
	notifier := eventlog.NewNotifier()

	var wg sync.WaitGroup
	wg.Add(1)
	var woke bool
	go func() {
		defer wg.Done()
		ok, err := eventlog.WaitForUpdate(ctx, log, notifier, "s1", 0, []eventlog.Kind{eventlog.KindMessage}, time.Second)
		require.NoError(t, err)
		woke = ok
	}()
	time.Sleep(20 * time.Millisecond)

	pub := &eventlog.PublishingEmitter{Log: log, Notifier: notifier, SessionID: "s1", CorrelationID: "corr-1"}
	events, err := pub.EmitAll(ctx, []eventlog.EmittedEvent{
		{Source: eventlog.SourceAIAgent, Kind: eventlog.KindTool},
		{Source: eventlog.SourceAIAgent, Kind: eventlog.KindMessage},
	})
	require.NoError(t, err)
	require.Equal(t, eventlog.KindTool, events[0].Kind)
	require.Equal(t, eventlog.KindMessage, events[1].Kind)

	wg.Wait()
	require.True(t, woke)
}

func TestWaitForUpdate_TimesOut(t *testing.T) {
	ctx := context.Background()
	log := eventlog.NewStoreLog(memory.New())
	notifier := eventlog.NewNotifier()

	ok, err := eventlog.WaitForUpdate(ctx, log, notifier, "empty-session", 0, nil, 30*time.Millisecond)
	require.NoError(t, err)
	require.False(t, ok)
}
