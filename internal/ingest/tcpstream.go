package ingest

import (
	"bufio"
	"context"
	"errors"
	"log/slog"
	"net"

	"milkwatch/internal/config"
	"milkwatch/internal/model"
	"milkwatch/internal/normalize"
)

// StartTCPStream accepts newline-delimited readings over a raw socket, for
// bench scales that just stream numbers.
func StartTCPStream(ctx context.Context, cfg *config.Manager, out chan<- model.Reading, logger *slog.Logger) {
	current := cfg.Get().Ingest.TCPStream
	if !current.Enabled {
		if logger != nil {
			logger.Info("tcp stream ingest disabled")
		}
		return
	}
	if logger != nil {
		logger.Info("tcp stream ingest enabled", "addr", current.Addr)
	}
	ln, err := net.Listen("tcp", current.Addr)
	if err != nil {
		if logger != nil {
			logger.Error("tcp stream listen error", "err", err)
		}
		return
	}
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				if errors.Is(err, net.ErrClosed) {
					return
				}
				if logger != nil {
					logger.Warn("tcp stream accept error", "err", err)
				}
				continue
			}
			go handleTCPStreamConn(ctx, conn, cfg, out, logger)
		}
	}()
}

func handleTCPStreamConn(ctx context.Context, conn net.Conn, cfg *config.Manager, out chan<- model.Reading, logger *slog.Logger) {
	defer conn.Close()
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 8192), 1024*1024)
	for scanner.Scan() {
		handlePayload(ctx, scanner.Bytes(), "tcp_stream", cfg, out, logger)
		select {
		case <-ctx.Done():
			return
		default:
		}
	}
	if err := scanner.Err(); err != nil && logger != nil {
		logger.Warn("tcp stream scanner error", "err", err)
	}
}

func normalizeFields(fields *normalize.Fields, cfg *config.Manager) (model.Reading, error) {
	return normalize.Normalize(*fields, cfg.Get())
}
