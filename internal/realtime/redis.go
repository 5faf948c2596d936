package realtime

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DefaultChannel is the Pub/Sub channel every instance relays through.
const DefaultChannel = "convo:events"

// RedisBroadcaster publishes events to Redis and relays everything
// received on the channel into the local hub, including this instance's
// own events.
type RedisBroadcaster struct {
	rdb     *redis.Client
	channel string
	hub     *Hub
	logger  *zap.Logger
}

func NewRedisBroadcaster(rdb *redis.Client, channel string, hub *Hub, logger *zap.Logger) *RedisBroadcaster {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisBroadcaster{rdb: rdb, channel: channel, hub: hub, logger: logger}
}

func (b *RedisBroadcaster) Publish(ctx context.Context, ev Event) error {
	frame, err := ev.Encode()
	if err != nil {
		return err
	}
	if err := b.rdb.Publish(ctx, b.channel, frame).Err(); err != nil {
		return fmt.Errorf("publish %s event: %w", ev.Kind, err)
	}
	return nil
}

// Run relays the channel into the hub until ctx is cancelled.
func (b *RedisBroadcaster) Run(ctx context.Context) error {
	sub := b.rdb.Subscribe(ctx, b.channel)
	defer sub.Close()

	// Wait for the subscription to be confirmed so no early event is lost.
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", b.channel, err)
	}
	b.logger.Info("realtime relay subscribed", zap.String("channel", b.channel))

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			b.relay([]byte(msg.Payload))
		}
	}
}

func (b *RedisBroadcaster) relay(frame []byte) {
	conversationID, err := routeOf(frame)
	if err != nil {
		b.logger.Warn("dropping malformed realtime frame", zap.Error(err))
		return
	}
	b.hub.Deliver(conversationID, frame)
}

// routeOf extracts the conversation id without decoding the payload.
func routeOf(frame []byte) (uuid.UUID, error) {
	var head struct {
		ConversationID uuid.UUID `json:"conversation_id"`
	}
	if err := json.Unmarshal(frame, &head); err != nil {
		return uuid.Nil, fmt.Errorf("decode frame: %w", err)
	}
	if head.ConversationID == uuid.Nil {
		return uuid.Nil, fmt.Errorf("frame has no conversation_id")
	}
	return head.ConversationID, nil
}
