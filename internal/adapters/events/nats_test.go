package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/dkeye/Huddle/internal/domain"
	"github.com/nats-io/nats-server/v2/server"
	natsserver "github.com/nats-io/nats-server/v2/test"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runServer(t *testing.T) *server.Server {
	t.Helper()
	opts := natsserver.DefaultTestOptions
	opts.Port = -1
	s := natsserver.RunServer(&opts)
	t.Cleanup(s.Shutdown)
	return s
}

func TestPublishMessage(t *testing.T) {
	s := runServer(t)

	sub, err := nats.Connect(s.ClientURL())
	require.NoError(t, err)
	t.Cleanup(sub.Close)
	ch := make(chan *nats.Msg, 1)
	_, err = sub.ChanSubscribe("huddle.chat.>", ch)
	require.NoError(t, err)
	require.NoError(t, sub.Flush())

	pub, err := Connect(s.ClientURL(), "huddle.chat")
	require.NoError(t, err)
	t.Cleanup(pub.Close)

	sent := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	err = pub.PublishMessage(context.Background(), domain.Message{
		ID: "m1", RoomID: "r1", SenderID: "alice", Content: "hello", SentAt: sent,
	}, "Alice")
	require.NoError(t, err)
	require.NoError(t, pub.nc.Flush())

	select {
	case m := <-ch:
		assert.Equal(t, "huddle.chat.r1", m.Subject)
		var got MessagePersisted
		require.NoError(t, json.Unmarshal(m.Data, &got))
		assert.Equal(t, MessagePersisted{
			MessageID: "m1", RoomID: "r1", SenderID: "alice", SenderName: "Alice", Length: 5, SentAt: sent,
		}, got)
		assert.NotContains(t, string(m.Data), "hello", "content stays off the broker")
	case <-time.After(2 * time.Second):
		t.Fatal("no event received")
	}
}

func TestPublishHonoursCancelledContext(t *testing.T) {
	s := runServer(t)
	pub, err := Connect(s.ClientURL(), "huddle.chat")
	require.NoError(t, err)
	t.Cleanup(pub.Close)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, pub.PublishMessage(ctx, domain.Message{RoomID: "r1"}, ""), context.Canceled)
}
