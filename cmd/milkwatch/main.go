package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"milkwatch/internal/alerts"
	"milkwatch/internal/api"
	"milkwatch/internal/config"
	"milkwatch/internal/engine"
	"milkwatch/internal/ingest"
	"milkwatch/internal/logging"
	"milkwatch/internal/model"
	"milkwatch/internal/notify"
	"milkwatch/internal/readings"
	"milkwatch/internal/stats"
	"milkwatch/internal/storage"
	"milkwatch/internal/users"
)

const version = "1.2.0"

func main() {
	_ = godotenv.Load()

	configPath := flag.String("config", os.Getenv("MILKWATCH_CONFIG"), "path to config file (yaml or json)")
	flag.Parse()

	var cfgManager *config.Manager
	if *configPath != "" {
		m, err := config.NewManager(config.ResolvePath(*configPath))
		if err != nil {
			fmt.Fprintf(os.Stderr, "config error: %v\n", err)
			os.Exit(1)
		}
		cfgManager = m
	} else {
		cfgManager = config.NewStaticManager(config.DefaultConfig())
	}
	cfg := cfgManager.Get()

	logger := logging.NewLogger(cfg.LogLevel)
	logger.Info("milkwatch starting", "version", version, "config", cfgManager.Path())

	loc := time.UTC
	if cfg.Ingest.Parser.Timezone != "" {
		if l, err := time.LoadLocation(cfg.Ingest.Parser.Timezone); err == nil {
			loc = l
		} else {
			logger.Warn("invalid timezone, using UTC", "timezone", cfg.Ingest.Parser.Timezone)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	readingStore := readings.NewStore(cfg.Readings.RetentionDays, loc)
	statsStore := stats.NewStore(cfg.Stats.StoreLimit)
	alertsStore := alerts.NewStore(cfg.Alerts.StoreLimit)

	persistence, err := storage.NewStore(cfg.Storage)
	if err != nil {
		logger.Error("storage init error", "err", err)
		os.Exit(1)
	}
	if persistence != nil {
		if err := persistence.Init(ctx); err != nil {
			logger.Error("storage schema error", "err", err)
			os.Exit(1)
		}
		defer persistence.Close()
		logger.Info("storage enabled", "driver", cfg.Storage.Driver)
	}

	directory, err := buildDirectory(cfg, logger)
	if err != nil {
		logger.Error("user directory error", "err", err)
		os.Exit(1)
	}
	defer directory.Close()

	notifier := buildNotifier(cfg, logger)
	defer notifier.Close()

	eng := engine.NewEngine(cfg, logging.Component(logger, "engine"), readingStore, statsStore, alertsStore, persistence, directory, notifier, engine.RealClock())

	in := make(chan model.Reading, cfg.Ingest.ChannelBuffer)
	eng.Start(ctx, in)
	eng.StartSweeper(ctx, cfg.Alerting.SweepInterval)

	ingestLogger := logging.Component(logger, "ingest")
	ingest.StartMQTT(ctx, cfgManager, in, ingestLogger)
	ingest.StartKafka(ctx, cfgManager, in, ingestLogger)
	ingest.StartREST(ctx, cfgManager, in, ingestLogger)
	ingest.StartTCPStream(ctx, cfgManager, in, ingestLogger)

	api.Start(ctx, cfgManager, readingStore, statsStore, alertsStore, eng, logging.Component(logger, "api"), version)

	stop := make(chan struct{})
	go cfgManager.Watch(3*time.Second,
		func(next *config.Config) {
			eng.UpdateConfig(next)
			logger.Info("config reloaded")
		},
		func(err error) {
			logger.Warn("config reload failed", "err", err)
		},
		stop,
	)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("shutting down")
	close(stop)
	cancel()
}

func buildDirectory(cfg *config.Config, logger *slog.Logger) (users.Directory, error) {
	var dir users.Directory
	switch strings.ToLower(cfg.Users.Source) {
	case "postgres":
		pg, err := users.NewPostgresDirectory(cfg.Users.Postgres.DSN)
		if err != nil {
			return nil, err
		}
		dir = pg
	default:
		dir = users.NewStaticDirectory(cfg.Users.Static)
	}
	if cfg.Users.Cache.Enabled {
		dir = users.NewCachedDirectory(dir, cfg.Users.Cache, logging.Component(logger, "users"))
	}
	return dir, nil
}

func buildNotifier(cfg *config.Config, logger *slog.Logger) notify.Notifier {
	channels := []notify.Notifier{notify.NewLogNotifier(logging.Component(logger, "notify"))}
	if cfg.Notify.SMTP.Enabled {
		channels = append(channels, notify.NewSMTPNotifier(cfg.Notify.SMTP))
	}
	if cfg.Notify.Kafka.Enabled {
		channels = append(channels, notify.NewKafkaNotifier(cfg.Notify.Kafka))
	}
	return notify.NewMulti(channels...)
}
