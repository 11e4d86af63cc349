package redisstream

import (
	"context"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/require"
)

func TestBuildInMemoryRoundTrip(t *testing.T) {
	ps, err := Build(Settings{})
	require.NoError(t, err)
	defer func() { _ = ps.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	ch, err := ps.Subscriber.Subscribe(ctx, "topic")
	require.NoError(t, err)

	msg := message.NewMessage("m1", []byte(`{"k":"v"}`))
	msg.Metadata.Set("call_id", "MZ1")
	require.NoError(t, ps.Publisher.Publish("topic", msg))

	select {
	case got := <-ch:
		require.Equal(t, "m1", got.UUID)
		require.Equal(t, "MZ1", got.Metadata.Get("call_id"))
		require.JSONEq(t, `{"k":"v"}`, string(got.Payload))
		got.Ack()
	case <-ctx.Done():
		t.Fatal("message not delivered")
	}
}
