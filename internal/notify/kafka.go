package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"

	"milkwatch/internal/config"
	"milkwatch/internal/model"
)

// KafkaNotifier publishes decided alerts to a topic for downstream consumers
// (dashboards, push gateways). Keyed by device so per-device ordering holds.
type KafkaNotifier struct {
	writer *kafka.Writer
}

func NewKafkaNotifier(cfg config.NotifyKafkaConfig) *KafkaNotifier {
	writer := &kafka.Writer{
		Addr:     kafka.TCP(cfg.Brokers...),
		Topic:    cfg.Topic,
		Balancer: &kafka.Hash{},
	}
	return &KafkaNotifier{writer: writer}
}

func (n *KafkaNotifier) Send(ctx context.Context, alert model.Alert) error {
	data, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}
	err = n.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(alert.DeviceID),
		Value: data,
	})
	if err != nil {
		return fmt.Errorf("publish alert: %w", err)
	}
	return nil
}

func (n *KafkaNotifier) Close() error {
	return n.writer.Close()
}
