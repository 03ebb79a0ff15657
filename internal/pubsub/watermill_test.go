package pubsub

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitFor[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
		var zero T
		return zero
	}
}

type greeting struct {
	Name string `json:"name"`
}

func TestTypedEvent_RoundTrip(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bridge := NewWatermillBridge()
	defer bridge.Close()

	event := NewEvent[greeting]("test.greeting", "a greeting")
	assert.Equal(t, "test.greeting", event.Name())
	assert.Equal(t, "a greeting", event.Description())

	got := make(chan greeting, 1)
	require.NoError(t, Subscribe(ctx, bridge, event, func(ctx context.Context, g greeting) error {
		got <- g
		return nil
	}))

	require.NoError(t, Publish(ctx, bridge, event, greeting{Name: "alice"}))
	assert.Equal(t, "alice", waitFor(t, got).Name)
}

func TestWatermillBridge_HandlerErrorDoesNotRedeliver(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bridge := NewWatermillBridge()
	defer bridge.Close()

	calls := make(chan struct{}, 10)
	require.NoError(t, bridge.Subscribe(ctx, "test.fail", func(ctx context.Context, msg Message) error {
		calls <- struct{}{}
		return errors.New("boom")
	}))

	require.NoError(t, bridge.Publish(ctx, Message{Topic: "test.fail", Payload: []byte("{}")}))
	waitFor(t, calls)

	select {
	case <-calls:
		t.Fatal("message was redelivered after handler error")
	case <-time.After(100 * time.Millisecond):
	}
}
