package ingest

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"milkwatch/internal/config"
	"milkwatch/internal/model"
)

// RESTServer accepts manually entered readings, the fallback for households
// without a connected scale.
type RESTServer struct {
	cfg    *config.Manager
	out    chan<- model.Reading
	logger *slog.Logger
}

func StartREST(ctx context.Context, cfg *config.Manager, out chan<- model.Reading, logger *slog.Logger) *http.Server {
	current := cfg.Get().Ingest.REST
	if !current.Enabled {
		if logger != nil {
			logger.Info("rest ingest disabled")
		}
		return nil
	}
	if logger != nil {
		logger.Info("rest ingest enabled", "addr", current.Addr)
	}
	server := &RESTServer{cfg: cfg, out: out, logger: logger}
	mux := http.NewServeMux()
	mux.HandleFunc("/readings", server.handleReadings)
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
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
				logger.Error("rest ingest server error", "err", err)
			}
		}
	}()
	return httpServer
}

func (s *RESTServer) handleReadings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil || len(body) == 0 {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	fields, err := ParsePayload(body)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	reading, err := normalizeFields(fields, s.cfg)
	if err != nil {
		if s.logger != nil {
			s.logger.Warn("rest normalize error", "err", err)
		}
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	SendNonBlocking(context.Background(), s.out, reading, s.logger)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_, _ = w.Write([]byte(`{"accepted":1}`))
}
