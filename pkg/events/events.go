package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// TurnEvent announces a completed conversation turn.
type TurnEvent struct {
	UserID      string    `json:"user_id"`
	Timestamp   time.Time `json:"timestamp"`
	UserQuery   string    `json:"user_query"`
	BotResponse string    `json:"bot_response"`
	Summarized  bool      `json:"summarized"`
}

// topicForUser computes the per-user turn topic.
func topicForUser(userID string) string { return "recall:turns:" + userID }

// Publisher emits turn events on a watermill transport. Publishing is
// best-effort: the turn result never depends on it.
type Publisher struct {
	pub message.Publisher
}

// NewGoChannelPublisher builds an in-process publisher.
func NewGoChannelPublisher() *Publisher {
	pub := gochannel.NewGoChannel(gochannel.Config{}, NewWatermillLogger(log.Logger))
	return &Publisher{pub: pub}
}

// NewPublisher wraps an existing watermill publisher (e.g. Redis Streams).
func NewPublisher(pub message.Publisher) (*Publisher, error) {
	if pub == nil {
		return nil, errors.New("events: publisher is nil")
	}
	return &Publisher{pub: pub}, nil
}

// PublishTurn emits one event on the user's topic. The underlying transport
// publishes without a context, so cancellation is only honored up front.
func (p *Publisher) PublishTurn(ctx context.Context, ev TurnEvent) error {
	if p == nil || p.pub == nil {
		return errors.New("events: nil publisher")
	}
	if ev.UserID == "" {
		return errors.New("events: user id is empty")
	}
	if err := ctx.Err(); err != nil {
		return errors.Wrap(err, "events: context done before publish")
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return errors.Wrap(err, "events: marshal turn event")
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	if err := p.pub.Publish(topicForUser(ev.UserID), msg); err != nil {
		return errors.Wrapf(err, "events: publish to %s", topicForUser(ev.UserID))
	}
	return nil
}

func (p *Publisher) Close() error {
	if p == nil || p.pub == nil {
		return nil
	}
	return p.pub.Close()
}

// ConsumeTurns follows one user's turn topic and invokes handler for each
// decoded event, acking on success. It returns when the context is cancelled,
// the subscription closes, or the handler fails.
func ConsumeTurns(ctx context.Context, sub message.Subscriber, userID string, handler func(TurnEvent) error) error {
	if sub == nil {
		return errors.New("events: subscriber is nil")
	}
	if userID == "" {
		return errors.New("events: user id is empty")
	}
	if handler == nil {
		return errors.New("events: handler is nil")
	}

	msgs, err := sub.Subscribe(ctx, topicForUser(userID))
	if err != nil {
		return errors.Wrapf(err, "events: subscribe to %s", topicForUser(userID))
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			var ev TurnEvent
			if err := json.Unmarshal(msg.Payload, &ev); err != nil {
				msg.Nack()
				return errors.Wrap(err, "events: decode turn event")
			}
			if err := handler(ev); err != nil {
				msg.Nack()
				return err
			}
			msg.Ack()
		}
	}
}
