package ingest

import (
	"context"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"milkwatch/internal/config"
	"milkwatch/internal/model"
	"milkwatch/internal/normalize"
)

// StartMQTT subscribes to the scale topic and feeds readings into the
// pipeline. Reconnects are left to the paho client.
func StartMQTT(ctx context.Context, cfg *config.Manager, out chan<- model.Reading, logger *slog.Logger) {
	current := cfg.Get().Ingest.MQTT
	if !current.Enabled {
		if logger != nil {
			logger.Info("mqtt ingest disabled")
		}
		return
	}
	if logger != nil {
		logger.Info("mqtt ingest enabled", "broker", current.Broker, "topic", current.Topic)
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(current.Broker)
	opts.SetClientID(current.ClientID)
	if current.Username != "" {
		opts.SetUsername(current.Username)
	}
	if current.Password != "" {
		opts.SetPassword(current.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetOnConnectHandler(func(client mqtt.Client) {
		token := client.Subscribe(current.Topic, current.QoS, func(_ mqtt.Client, msg mqtt.Message) {
			handlePayload(ctx, msg.Payload(), "mqtt", cfg, out, logger)
		})
		if token.Wait() && token.Error() != nil && logger != nil {
			logger.Error("mqtt subscribe error", "topic", current.Topic, "err", token.Error())
		}
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		if logger != nil {
			logger.Warn("mqtt connection lost", "err", err)
		}
	})

	client := mqtt.NewClient(opts)
	go func() {
		for {
			token := client.Connect()
			token.Wait()
			if token.Error() == nil {
				break
			}
			if logger != nil {
				logger.Warn("mqtt connect failed", "err", token.Error())
			}
			if !BackoffSleep(ctx, 5*time.Second) {
				return
			}
		}
		<-ctx.Done()
		client.Disconnect(250)
	}()
}

func handlePayload(ctx context.Context, payload []byte, source string, cfg *config.Manager, out chan<- model.Reading, logger *slog.Logger) {
	fields, err := ParsePayload(payload)
	if err != nil {
		if logger != nil {
			logger.Warn("payload parse error", "source", source, "err", err)
		}
		return
	}
	r, err := normalize.Normalize(*fields, cfg.Get())
	if err != nil {
		if logger != nil {
			logger.Warn("normalize error", "source", source, "err", err)
		}
		return
	}
	SendNonBlocking(ctx, out, r, logger)
}
