package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"milkwatch/internal/alerts"
	"milkwatch/internal/config"
	"milkwatch/internal/model"
	"milkwatch/internal/readings"
	"milkwatch/internal/stats"
)

type EngineControl interface {
	Reset()
	UpdateConfig(cfg *config.Config)
}

type Server struct {
	cfg      *config.Manager
	readings *readings.Store
	stats    *stats.Store
	alerts   *alerts.Store
	engine   EngineControl
	logger   *slog.Logger
	version  string
}

type statusResponse struct {
	Status     string         `json:"status"`
	Time       string         `json:"time"`
	Version    string         `json:"version"`
	ConfigPath string         `json:"config_path"`
	Ingest     ingestStatus   `json:"ingest"`
	Alerting   alertingStatus `json:"alerting"`
}

type ingestStatus struct {
	MQTT      bool `json:"mqtt"`
	Kafka     bool `json:"kafka"`
	REST      bool `json:"rest"`
	TCPStream bool `json:"tcp_stream"`
}

type alertingStatus struct {
	GracePeriod        string  `json:"grace_period"`
	SweepInterval      string  `json:"sweep_interval"`
	LowThresholdG      float64 `json:"low_threshold_g"`
	CriticalThresholdG float64 `json:"critical_threshold_g"`
	RefillThresholdG   float64 `json:"refill_threshold_g"`
}

func Start(ctx context.Context, cfg *config.Manager, readingsStore *readings.Store, statsStore *stats.Store, alertsStore *alerts.Store, engine EngineControl, logger *slog.Logger, version string) *http.Server {
	if cfg == nil {
		return nil
	}
	current := cfg.Get().API
	if !current.Enabled {
		if logger != nil {
			logger.Info("api disabled")
		}
		return nil
	}
	if logger != nil {
		logger.Info("api enabled", "addr", current.Addr)
	}
	server := &Server{
		cfg:      cfg,
		readings: readingsStore,
		stats:    statsStore,
		alerts:   alertsStore,
		engine:   engine,
		logger:   logger,
		version:  version,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/status", server.handleStatus)
	mux.HandleFunc("/stats", server.handleStats)
	mux.HandleFunc("/stats/", server.handleStats)
	mux.HandleFunc("/alerts", server.handleAlerts)
	mux.HandleFunc("/readings/", server.handleReadings)
	mux.HandleFunc("/admin/clear", server.handleClear)

	httpServer := &http.Server{Addr: current.Addr, Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(ctxShutdown)
	}()
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			if logger != nil {
				logger.Error("api server error", "err", err)
			}
		}
	}()
	return httpServer
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	cfg := s.cfg.Get()
	resp := statusResponse{
		Status:     "ok",
		Time:       time.Now().UTC().Format(time.RFC3339Nano),
		Version:    s.version,
		ConfigPath: s.cfg.Path(),
		Ingest: ingestStatus{
			MQTT:      cfg.Ingest.MQTT.Enabled,
			Kafka:     cfg.Ingest.Kafka.Enabled,
			REST:      cfg.Ingest.REST.Enabled,
			TCPStream: cfg.Ingest.TCPStream.Enabled,
		},
		Alerting: alertingStatus{
			GracePeriod:        cfg.Alerting.GracePeriod.String(),
			SweepInterval:      cfg.Alerting.SweepInterval.String(),
			LowThresholdG:      cfg.Alerting.LowThresholdG,
			CriticalThresholdG: cfg.Alerting.CriticalThresholdG,
			RefillThresholdG:   cfg.Alerting.RefillThresholdG,
		},
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	path := strings.TrimPrefix(r.URL.Path, "/stats")
	path = strings.TrimPrefix(path, "/")
	if path != "" {
		usage, ok := s.stats.Get(path)
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, usage)
		return
	}
	all := s.stats.GetAll()
	writeJSON(w, http.StatusOK, map[string]any{
		"stats": all,
		"count": len(all),
	})
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	sinceStr := r.URL.Query().Get("since")
	var list []model.Alert
	if sinceStr != "" {
		ts, err := time.Parse(time.RFC3339, sinceStr)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		list = s.alerts.Since(ts)
	} else {
		list = s.alerts.List(limit)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"alerts": list,
		"count":  len(list),
	})
}

func (s *Server) handleReadings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	deviceID := strings.TrimPrefix(r.URL.Path, "/readings/")
	if deviceID == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	hours := 24
	if v := r.URL.Query().Get("hours"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			hours = n
		}
	}
	since := time.Now().UTC().Add(-time.Duration(hours) * time.Hour)
	list := s.readings.QueryWindow(deviceID, since)
	writeJSON(w, http.StatusOK, map[string]any{
		"device_id": deviceID,
		"readings":  list,
		"count":     len(list),
	})
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	s.readings.Clear()
	s.stats.Clear()
	s.alerts.Clear()
	if s.engine != nil {
		s.engine.Reset()
	}
	if s.logger != nil {
		s.logger.Info("state cleared via admin endpoint")
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
