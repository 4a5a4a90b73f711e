package dispatcher_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/emcie-io/agentrt/internal/dispatcher"
	"github.com/emcie-io/agentrt/internal/eventlog"
	"github.com/emcie-io/agentrt/internal/session"
	"github.com/emcie-io/agentrt/internal/store/memory"
)

type countingPipeline struct {
	runs       int32
	cancelled  int32
	delay      time.Duration
	onRun      func(correlationID string)
}

func (p *countingPipeline) Run(ctx context.Context, sessionID, correlationID string) ([]eventlog.Event, error) {
	atomic.AddInt32(&p.runs, 1)
	if p.onRun != nil {
		p.onRun(correlationID)
	}
	select {
	case <-time.After(p.delay):
	case <-ctx.Done():
		atomic.AddInt32(&p.cancelled, 1)
		return nil, ctx.Err()
	}
	return nil, nil
}

func TestDispatcher_PostClientEventAppendsAndSchedules(t *testing.T) {
	ctx := context.Background()
	db := memory.New()
	log := eventlog.NewStoreLog(db)
	notifier := eventlog.NewNotifier()
	sessions := session.NewStore(db)
	pipeline := &countingPipeline{}

	d := dispatcher.New(log, notifier, sessions, pipeline, nil)
	event, err := d.PostClientEvent(ctx, "session-1", eventlog.KindMessage, []byte(`{"message":"hi"}`))
	require.NoError(t, err)
	require.Equal(t, eventlog.SourceCustomer, event.Source)
	require.Equal(t, 0, event.Offset)

	ok, err := d.WaitForUpdate(ctx, "session-1", 0, []eventlog.Kind{eventlog.KindMessage}, time.Second)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestDispatcher_SupersedingTaskCancelsPredecessor(t *testing.T) {
	ctx := context.Background()
	db := memory.New()
	log := eventlog.NewStoreLog(db)
	notifier := eventlog.NewNotifier()
	sessions := session.NewStore(db)
	pipeline := &countingPipeline{delay: 200 * time.Millisecond}

	d := dispatcher.New(log, notifier, sessions, pipeline, nil)
	_, err := d.PostClientEvent(ctx, "session-1", eventlog.KindMessage, []byte(`{}`))
	require.NoError(t, err)
	time.Sleep(10 * time.Millisecond)
	_, err = d.PostClientEvent(ctx, "session-1", eventlog.KindMessage, []byte(`{}`))
	require.NoError(t, err)

	time.Sleep(300 * time.Millisecond)
	require.GreaterOrEqual(t, atomic.LoadInt32(&pipeline.runs), int32(1))
	require.Equal(t, int32(1), atomic.LoadInt32(&pipeline.cancelled))
}

func TestDispatcher_Drain(t *testing.T) {
	ctx := context.Background()
	db := memory.New()
	log := eventlog.NewStoreLog(db)
	notifier := eventlog.NewNotifier()
	sessions := session.NewStore(db)
	pipeline := &countingPipeline{delay: 20 * time.Millisecond}

	d := dispatcher.New(log, notifier, sessions, pipeline, nil)
	_, err := d.PostClientEvent(ctx, "session-1", eventlog.KindMessage, []byte(`{}`))
	require.NoError(t, err)

	d.Drain()
}
