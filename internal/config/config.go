package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	LogLevel string         `json:"log_level" yaml:"log_level"`
	Ingest   IngestConfig   `json:"ingest" yaml:"ingest"`
	Analysis AnalysisConfig `json:"analysis" yaml:"analysis"`
	Alerting AlertingConfig `json:"alerting" yaml:"alerting"`
	Readings ReadingsConfig `json:"readings" yaml:"readings"`
	Users    UsersConfig    `json:"users" yaml:"users"`
	Notify   NotifyConfig   `json:"notify" yaml:"notify"`
	API      APIConfig      `json:"api" yaml:"api"`
	Storage  StorageConfig  `json:"storage" yaml:"storage"`
	Stats    StatsConfig    `json:"stats" yaml:"stats"`
	Alerts   AlertsConfig   `json:"alerts" yaml:"alerts"`
}

type IngestConfig struct {
	ChannelBuffer int             `json:"channel_buffer" yaml:"channel_buffer"`
	MQTT          MQTTConfig      `json:"mqtt" yaml:"mqtt"`
	Kafka         KafkaConfig     `json:"kafka" yaml:"kafka"`
	REST          RESTConfig      `json:"rest" yaml:"rest"`
	TCPStream     TCPStreamConfig `json:"tcp_stream" yaml:"tcp_stream"`
	Parser        ParserConfig    `json:"parser" yaml:"parser"`
}

type MQTTConfig struct {
	Enabled  bool   `json:"enabled" yaml:"enabled"`
	Broker   string `json:"broker" yaml:"broker"`
	ClientID string `json:"client_id" yaml:"client_id"`
	Username string `json:"username" yaml:"username"`
	Password string `json:"password" yaml:"password"`
	Topic    string `json:"topic" yaml:"topic"`
	QoS      byte   `json:"qos" yaml:"qos"`
}

type KafkaConfig struct {
	Enabled bool     `json:"enabled" yaml:"enabled"`
	Brokers []string `json:"brokers" yaml:"brokers"`
	Topic   string   `json:"topic" yaml:"topic"`
	GroupID string   `json:"group_id" yaml:"group_id"`
}

type RESTConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr" yaml:"addr"`
}

type TCPStreamConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr" yaml:"addr"`
}

type ParserConfig struct {
	Timezone        string `json:"timezone" yaml:"timezone"`
	DefaultDeviceID string `json:"default_device_id" yaml:"default_device_id"`
}

type AnalysisConfig struct {
	WindowDays           int     `json:"window_days" yaml:"window_days"`
	MinDropG             float64 `json:"min_drop_g" yaml:"min_drop_g"`
	MaxDropG             float64 `json:"max_drop_g" yaml:"max_drop_g"`
	DefaultCupG          float64 `json:"default_cup_g" yaml:"default_cup_g"`
	MinDaysForAvg        int     `json:"min_days_for_avg" yaml:"min_days_for_avg"`
	BaselineLookbackDays int     `json:"baseline_lookback_days" yaml:"baseline_lookback_days"`
	MaxProjectionDays    int     `json:"max_projection_days" yaml:"max_projection_days"`
}

type AlertingConfig struct {
	GracePeriod        time.Duration `json:"grace_period" yaml:"grace_period"`
	SweepInterval      time.Duration `json:"sweep_interval" yaml:"sweep_interval"`
	LowThresholdG      float64       `json:"low_threshold_g" yaml:"low_threshold_g"`
	CriticalThresholdG float64       `json:"critical_threshold_g" yaml:"critical_threshold_g"`
	RefillThresholdG   float64       `json:"refill_threshold_g" yaml:"refill_threshold_g"`
}

type ReadingsConfig struct {
	RetentionDays int `json:"retention_days" yaml:"retention_days"`
}

type UsersConfig struct {
	Source   string             `json:"source" yaml:"source"`
	Static   []StaticUserConfig `json:"static" yaml:"static"`
	Postgres PostgresConfig     `json:"postgres" yaml:"postgres"`
	Cache    CacheConfig        `json:"cache" yaml:"cache"`
}

type StaticUserConfig struct {
	ID          string  `json:"id" yaml:"id"`
	DisplayName string  `json:"display_name" yaml:"display_name"`
	Email       string  `json:"email" yaml:"email"`
	DeviceID    string  `json:"device_id" yaml:"device_id"`
	ThresholdG  float64 `json:"threshold_g" yaml:"threshold_g"`
}

type PostgresConfig struct {
	DSN string `json:"dsn" yaml:"dsn"`
}

type CacheConfig struct {
	Enabled  bool          `json:"enabled" yaml:"enabled"`
	Addr     string        `json:"addr" yaml:"addr"`
	Password string        `json:"password" yaml:"password"`
	DB       int           `json:"db" yaml:"db"`
	TTL      time.Duration `json:"ttl" yaml:"ttl"`
}

type NotifyConfig struct {
	SMTP  SMTPConfig        `json:"smtp" yaml:"smtp"`
	Kafka NotifyKafkaConfig `json:"kafka" yaml:"kafka"`
}

type SMTPConfig struct {
	Enabled  bool   `json:"enabled" yaml:"enabled"`
	Addr     string `json:"addr" yaml:"addr"`
	From     string `json:"from" yaml:"from"`
	Username string `json:"username" yaml:"username"`
	Password string `json:"password" yaml:"password"`
}

type NotifyKafkaConfig struct {
	Enabled bool     `json:"enabled" yaml:"enabled"`
	Brokers []string `json:"brokers" yaml:"brokers"`
	Topic   string   `json:"topic" yaml:"topic"`
}

type APIConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr" yaml:"addr"`
}

type StorageConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Driver  string `json:"driver" yaml:"driver"`
	DSN     string `json:"dsn" yaml:"dsn"`
}

type StatsConfig struct {
	StoreLimit int `json:"store_limit" yaml:"store_limit"`
}

type AlertsConfig struct {
	StoreLimit int `json:"store_limit" yaml:"store_limit"`
}

func DefaultConfig() *Config {
	return &Config{
		LogLevel: "info",
		Ingest: IngestConfig{
			ChannelBuffer: 1000,
			MQTT: MQTTConfig{
				Enabled:  true,
				Broker:   "tcp://localhost:1883",
				ClientID: "milkwatch",
				Topic:    "milk/weight",
				QoS:      1,
			},
			Kafka:     KafkaConfig{Enabled: false},
			REST:      RESTConfig{Enabled: true, Addr: ":8080"},
			TCPStream: TCPStreamConfig{Enabled: false, Addr: ":9000"},
			Parser:    ParserConfig{Timezone: "UTC", DefaultDeviceID: "device1"},
		},
		Analysis: AnalysisConfig{
			WindowDays:           7,
			MinDropG:             25,
			MaxDropG:             350,
			DefaultCupG:          60,
			MinDaysForAvg:        2,
			BaselineLookbackDays: 0,
			MaxProjectionDays:    1825,
		},
		Alerting: AlertingConfig{
			GracePeriod:        1 * time.Minute,
			SweepInterval:      10 * time.Second,
			LowThresholdG:      200,
			CriticalThresholdG: 100,
			RefillThresholdG:   1000,
		},
		Readings: ReadingsConfig{RetentionDays: 30},
		Users: UsersConfig{
			Source: "static",
			Cache:  CacheConfig{Enabled: false, Addr: "localhost:6379", TTL: 5 * time.Minute},
		},
		Notify: NotifyConfig{
			SMTP:  SMTPConfig{Enabled: false, Addr: "localhost:25", From: "milkwatch@localhost"},
			Kafka: NotifyKafkaConfig{Enabled: false},
		},
		API:     APIConfig{Enabled: true, Addr: ":8081"},
		Storage: StorageConfig{Enabled: false, Driver: "sqlite", DSN: "file:milkwatch.db?_pragma=busy_timeout(5000)"},
		Stats:   StatsConfig{StoreLimit: 1000},
		Alerts:  AlertsConfig{StoreLimit: 1000},
	}
}

func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	content, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()

	trimmed := strings.TrimSpace(string(content))
	if len(trimmed) == 0 {
		return nil, errors.New("config file is empty")
	}
	var decodeErr error
	if looksLikeJSON(trimmed) {
		decodeErr = json.Unmarshal([]byte(trimmed), cfg)
	} else {
		decodeErr = yaml.Unmarshal([]byte(trimmed), cfg)
	}
	if decodeErr != nil {
		return nil, decodeErr
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	if path == "" || cfg == nil {
		return errors.New("config path or config is empty")
	}
	var data []byte
	var err error
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".json" {
		data, err = json.MarshalIndent(cfg, "", "  ")
	} else {
		data, err = yaml.Marshal(cfg)
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func looksLikeJSON(s string) bool {
	for _, ch := range s {
		if ch == '{' || ch == '[' {
			return true
		}
		if ch > ' ' {
			return false
		}
	}
	return false
}

func applyDefaults(cfg *Config) {
	if cfg.Ingest.ChannelBuffer <= 0 {
		cfg.Ingest.ChannelBuffer = 1000
	}
	if cfg.Ingest.Parser.Timezone == "" {
		cfg.Ingest.Parser.Timezone = "UTC"
	}
	if cfg.Ingest.Parser.DefaultDeviceID == "" {
		cfg.Ingest.Parser.DefaultDeviceID = "device1"
	}
	if cfg.Analysis.WindowDays <= 0 {
		cfg.Analysis.WindowDays = 7
	}
	if cfg.Analysis.DefaultCupG <= 0 {
		cfg.Analysis.DefaultCupG = 60
	}
	if cfg.Analysis.MinDaysForAvg <= 0 {
		cfg.Analysis.MinDaysForAvg = 2
	}
	if cfg.Analysis.MaxProjectionDays <= 0 {
		cfg.Analysis.MaxProjectionDays = 1825
	}
	if cfg.Alerting.GracePeriod <= 0 {
		cfg.Alerting.GracePeriod = 1 * time.Minute
	}
	if cfg.Alerting.SweepInterval <= 0 {
		cfg.Alerting.SweepInterval = 10 * time.Second
	}
	if cfg.Readings.RetentionDays <= 0 {
		cfg.Readings.RetentionDays = 30
	}
	if cfg.Users.Source == "" {
		cfg.Users.Source = "static"
	}
	if cfg.Users.Cache.TTL <= 0 {
		cfg.Users.Cache.TTL = 5 * time.Minute
	}
	if cfg.Stats.StoreLimit <= 0 {
		cfg.Stats.StoreLimit = 1000
	}
	if cfg.Alerts.StoreLimit <= 0 {
		cfg.Alerts.StoreLimit = 1000
	}
}

func Validate(cfg *Config) error {
	if cfg.API.Enabled && cfg.API.Addr == "" {
		return errors.New("api.addr required when api.enabled is true")
	}
	if cfg.Ingest.REST.Enabled && cfg.Ingest.REST.Addr == "" {
		return errors.New("ingest.rest.addr required when ingest.rest.enabled is true")
	}
	if cfg.Ingest.TCPStream.Enabled && cfg.Ingest.TCPStream.Addr == "" {
		return errors.New("ingest.tcp_stream.addr required when ingest.tcp_stream.enabled is true")
	}
	if cfg.Ingest.MQTT.Enabled && cfg.Ingest.MQTT.Broker == "" {
		return errors.New("ingest.mqtt.broker required when ingest.mqtt.enabled is true")
	}
	if cfg.Ingest.MQTT.Enabled && cfg.Ingest.MQTT.Topic == "" {
		return errors.New("ingest.mqtt.topic required when ingest.mqtt.enabled is true")
	}
	if cfg.Ingest.Kafka.Enabled {
		if len(cfg.Ingest.Kafka.Brokers) == 0 || cfg.Ingest.Kafka.Topic == "" || cfg.Ingest.Kafka.GroupID == "" {
			return errors.New("ingest.kafka requires brokers, topic, group_id")
		}
	}
	if cfg.Analysis.MinDropG < 0 || cfg.Analysis.MaxDropG <= cfg.Analysis.MinDropG {
		return errors.New("analysis.min_drop_g / max_drop_g must satisfy 0 <= min < max")
	}
	if cfg.Alerting.CriticalThresholdG <= 0 {
		return errors.New("alerting.critical_threshold_g must be > 0")
	}
	if cfg.Alerting.LowThresholdG < cfg.Alerting.CriticalThresholdG {
		return errors.New("alerting.low_threshold_g must be >= critical_threshold_g")
	}
	if cfg.Alerting.RefillThresholdG <= cfg.Alerting.LowThresholdG {
		return errors.New("alerting.refill_threshold_g must be > low_threshold_g")
	}
	switch strings.ToLower(cfg.Users.Source) {
	case "static", "postgres":
	default:
		return fmt.Errorf("users.source must be static or postgres, got %q", cfg.Users.Source)
	}
	if strings.EqualFold(cfg.Users.Source, "postgres") && cfg.Users.Postgres.DSN == "" {
		return errors.New("users.postgres.dsn required when users.source is postgres")
	}
	if cfg.Notify.Kafka.Enabled {
		if len(cfg.Notify.Kafka.Brokers) == 0 || cfg.Notify.Kafka.Topic == "" {
			return errors.New("notify.kafka requires brokers and topic")
		}
	}
	if cfg.Notify.SMTP.Enabled && (cfg.Notify.SMTP.Addr == "" || cfg.Notify.SMTP.From == "") {
		return errors.New("notify.smtp requires addr and from")
	}
	return nil
}

type Manager struct {
	path    string
	cfg     atomic.Value
	modTime time.Time
}

func NewManager(path string) (*Manager, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	m := &Manager{path: path}
	m.cfg.Store(cfg)
	info, err := os.Stat(path)
	if err == nil {
		m.modTime = info.ModTime()
	}
	return m, nil
}

// NewStaticManager wraps an in-memory config with no backing file. Used by
// tests and by callers running without a config file on disk.
func NewStaticManager(cfg *Config) *Manager {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	m := &Manager{}
	m.cfg.Store(cfg)
	return m
}

func (m *Manager) Get() *Config {
	if v := m.cfg.Load(); v != nil {
		return v.(*Config)
	}
	return DefaultConfig()
}

func (m *Manager) Path() string {
	return m.path
}

func (m *Manager) Reload() (*Config, error) {
	if m.path == "" {
		return m.Get(), nil
	}
	cfg, err := Load(m.path)
	if err != nil {
		return nil, err
	}
	m.cfg.Store(cfg)
	if info, err := os.Stat(m.path); err == nil {
		m.modTime = info.ModTime()
	}
	return cfg, nil
}

func (m *Manager) NeedsReload() (bool, error) {
	if m.path == "" {
		return false, nil
	}
	info, err := os.Stat(m.path)
	if err != nil {
		return false, err
	}
	return info.ModTime().After(m.modTime), nil
}

func (m *Manager) Watch(interval time.Duration, onReload func(*Config), onError func(error), stop <-chan struct{}) {
	if interval <= 0 {
		interval = 3 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			needs, err := m.NeedsReload()
			if err != nil {
				if onError != nil {
					onError(err)
				}
				continue
			}
			if !needs {
				continue
			}
			cfg, err := m.Reload()
			if err != nil {
				if onError != nil {
					onError(err)
				}
				continue
			}
			if onReload != nil {
				onReload(cfg)
			}
		case <-stop:
			return
		}
	}
}

func ResolvePath(path string) string {
	if path == "" {
		return path
	}
	if filepath.IsAbs(path) {
		return path
	}
	cwd, err := os.Getwd()
	if err != nil {
		return path
	}
	return filepath.Join(cwd, path)
}
