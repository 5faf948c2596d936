package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lalith-99/convo/internal/observ"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// KafkaDispatcher produces one record per notification, keyed by
// recipient so each user's notifications stay ordered.
type KafkaDispatcher struct {
	writer *kafka.Writer
	logger *zap.Logger
}

func NewKafkaDispatcher(brokers []string, topic string, logger *zap.Logger) *KafkaDispatcher {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 50 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
		// Async keeps the request path from waiting on the broker.
		Async: true,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				observ.RecordNotifications("failed", len(messages))
				logger.Warn("notification delivery failed", zap.Int("count", len(messages)), zap.Error(err))
				return
			}
			observ.RecordNotifications("delivered", len(messages))
		},
	}
	return &KafkaDispatcher{writer: w, logger: logger}
}

func (d *KafkaDispatcher) Dispatch(ctx context.Context, notes []Notification) error {
	if len(notes) == 0 {
		return nil
	}
	msgs := make([]kafka.Message, 0, len(notes))
	for _, n := range notes {
		m, err := encode(n)
		if err != nil {
			return err
		}
		msgs = append(msgs, m)
	}
	if err := d.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("write notifications: %w", err)
	}
	return nil
}

func (d *KafkaDispatcher) Close() error {
	return d.writer.Close()
}

func encode(n Notification) (kafka.Message, error) {
	value, err := json.Marshal(n)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("encode notification: %w", err)
	}
	return kafka.Message{
		Key:   []byte(n.RecipientID.String()),
		Value: value,
		Time:  n.CreatedAt,
	}, nil
}
