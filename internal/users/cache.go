package users

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/go-redis/redis/v8"

	"milkwatch/internal/config"
	"milkwatch/internal/model"
)

// CachedDirectory decorates a Directory with a redis cache so a flapping user
// store does not stall the per-reading evaluation path. Cache failures fall
// through to the backing directory.
type CachedDirectory struct {
	inner  Directory
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

func NewCachedDirectory(inner Directory, cfg config.CacheConfig, logger *slog.Logger) *CachedDirectory {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return &CachedDirectory{inner: inner, client: client, ttl: cfg.TTL, logger: logger}
}

func cacheKey(deviceID string) string {
	return "milkwatch:users:" + deviceID
}

func (d *CachedDirectory) FindByDevice(ctx context.Context, deviceID string) ([]model.User, error) {
	key := cacheKey(deviceID)
	if data, err := d.client.Get(ctx, key).Bytes(); err == nil {
		var cached []model.User
		if err := json.Unmarshal(data, &cached); err == nil {
			return cached, nil
		}
	} else if err != redis.Nil && d.logger != nil {
		d.logger.Warn("user cache read failed", "device_id", deviceID, "err", err)
	}

	mapped, err := d.inner.FindByDevice(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(mapped); err == nil {
		if err := d.client.Set(ctx, key, data, d.ttl).Err(); err != nil && d.logger != nil {
			d.logger.Warn("user cache write failed", "device_id", deviceID, "err", err)
		}
	}
	return mapped, nil
}

// Invalidate drops the cached mapping for a device.
func (d *CachedDirectory) Invalidate(ctx context.Context, deviceID string) error {
	return d.client.Del(ctx, cacheKey(deviceID)).Err()
}

func (d *CachedDirectory) Close() error {
	if err := d.client.Close(); err != nil {
		return err
	}
	return d.inner.Close()
}
