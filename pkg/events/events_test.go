package events

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/require"
)

func TestPublisher_PublishTurnRoundTrip(t *testing.T) {
	goch := gochannel.NewGoChannel(gochannel.Config{}, NewWatermillLogger(log.Logger))
	pub, err := NewPublisher(goch)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pub.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	msgs, err := goch.Subscribe(ctx, topicForUser("u1"))
	require.NoError(t, err)

	want := TurnEvent{
		UserID:      "u1",
		Timestamp:   time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		UserQuery:   "What is 2+2?",
		BotResponse: "4",
	}
	require.NoError(t, pub.PublishTurn(ctx, want))

	select {
	case msg := <-msgs:
		var got TurnEvent
		require.NoError(t, json.Unmarshal(msg.Payload, &got))
		require.Equal(t, want, got)
		msg.Ack()
	case <-ctx.Done():
		t.Fatal("timed out waiting for turn event")
	}
}

func TestPublisher_Validation(t *testing.T) {
	_, err := NewPublisher(nil)
	require.Error(t, err)

	pub := NewGoChannelPublisher()
	t.Cleanup(func() { _ = pub.Close() })
	require.Error(t, pub.PublishTurn(context.Background(), TurnEvent{}))
}

func TestPublisher_PublishTurnHonorsCancelledContext(t *testing.T) {
	pub := NewGoChannelPublisher()
	t.Cleanup(func() { _ = pub.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := pub.PublishTurn(ctx, TurnEvent{UserID: "u1", UserQuery: "q", BotResponse: "a"})
	require.Error(t, err)
	require.True(t, errors.Is(err, context.Canceled))
}

func TestConsumeTurns_ReceivesPublishedEvents(t *testing.T) {
	// Persistent mode replays events published before the consumer's
	// subscription lands, so the publish below cannot race the subscribe.
	goch := gochannel.NewGoChannel(gochannel.Config{Persistent: true}, NewWatermillLogger(log.Logger))
	pub, err := NewPublisher(goch)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pub.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	want := []TurnEvent{
		{UserID: "u1", Timestamp: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC), UserQuery: "q1", BotResponse: "a1"},
		{UserID: "u1", Timestamp: time.Date(2024, 3, 1, 12, 0, 1, 0, time.UTC), UserQuery: "q2", BotResponse: "a2", Summarized: true},
	}

	var mu sync.Mutex
	var got []TurnEvent
	done := make(chan error, 1)
	consumeCtx, stopConsuming := context.WithCancel(ctx)
	defer stopConsuming()
	go func() {
		done <- ConsumeTurns(consumeCtx, goch, "u1", func(ev TurnEvent) error {
			mu.Lock()
			defer mu.Unlock()
			got = append(got, ev)
			if len(got) == len(want) {
				stopConsuming()
			}
			return nil
		})
	}()

	for _, ev := range want {
		require.NoError(t, pub.PublishTurn(ctx, ev))
	}

	select {
	case err := <-done:
		require.True(t, errors.Is(err, context.Canceled))
	case <-ctx.Done():
		t.Fatal("timed out waiting for consumed turn events")
	}

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, want, got)
}

func TestConsumeTurns_Validation(t *testing.T) {
	ctx := context.Background()
	goch := gochannel.NewGoChannel(gochannel.Config{}, NewWatermillLogger(log.Logger))
	t.Cleanup(func() { _ = goch.Close() })

	handler := func(TurnEvent) error { return nil }
	require.Error(t, ConsumeTurns(ctx, nil, "u1", handler))
	require.Error(t, ConsumeTurns(ctx, goch, "", handler))
	require.Error(t, ConsumeTurns(ctx, goch, "u1", nil))
}
