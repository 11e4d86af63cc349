package audit

import (
	"context"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/stretchr/testify/require"
)

func TestPublisherSinkToRecorder(t *testing.T) {
	ch := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 16}, watermill.NopLogger{})
	defer func() { _ = ch.Close() }()

	store := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rec := NewRecorder(ch, "", store)
	done := make(chan error, 1)
	go func() { done <- rec.Run(ctx) }()

	// gochannel drops messages published before the subscription exists
	sink := NewPublisherSink(ch, "")
	require.Eventually(t, func() bool {
		_ = sink.LogEvent(ctx, "probe", KindStop, nil)
		evs, _ := store.ListEvents(ctx, "probe", 0)
		return len(evs) > 0
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, sink.LogEvent(ctx, "MZ9", KindStart, map[string]any{"payment_id": "10sf917264"}))
	require.NoError(t, sink.LogEvent(ctx, "MZ9", KindFunctionCall, "approve_wire"))

	require.Eventually(t, func() bool {
		evs, err := store.ListEvents(ctx, "MZ9", 0)
		return err == nil && len(evs) == 2
	}, 2*time.Second, 10*time.Millisecond)

	sessions, err := store.ListSessions(ctx, 10)
	require.NoError(t, err)
	require.Equal(t, "MZ9", sessions[0].CallID)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("recorder did not stop")
	}
}
