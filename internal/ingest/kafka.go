package ingest

import (
	"context"
	"log/slog"

	"github.com/segmentio/kafka-go"

	"milkwatch/internal/config"
	"milkwatch/internal/model"
)

// StartKafka consumes readings from a kafka topic for deployments where the
// broker fronts the sensor fleet instead of MQTT.
func StartKafka(ctx context.Context, cfg *config.Manager, out chan<- model.Reading, logger *slog.Logger) {
	current := cfg.Get().Ingest.Kafka
	if !current.Enabled {
		if logger != nil {
			logger.Info("kafka ingest disabled")
		}
		return
	}
	if logger != nil {
		logger.Info("kafka ingest enabled", "brokers", current.Brokers, "topic", current.Topic, "group_id", current.GroupID)
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  current.Brokers,
		Topic:    current.Topic,
		GroupID:  current.GroupID,
		MinBytes: 1e3,
		MaxBytes: 10e6,
	})
	go func() {
		defer reader.Close()
		for {
			m, err := reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				if logger != nil {
					logger.Warn("kafka read error", "err", err)
				}
				continue
			}
			handlePayload(ctx, m.Value, "kafka", cfg, out, logger)
		}
	}()
}
