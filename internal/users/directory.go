package users

import (
	"context"

	"milkwatch/internal/config"
	"milkwatch/internal/model"
)

// Directory resolves the users mapped to a device. The engine only reads
// through this interface; it never writes user records.
type Directory interface {
	FindByDevice(ctx context.Context, deviceID string) ([]model.User, error)
	Close() error
}

// StaticDirectory serves the device-to-user mapping from configuration.
type StaticDirectory struct {
	byDevice map[string][]model.User
}

func NewStaticDirectory(entries []config.StaticUserConfig) *StaticDirectory {
	byDevice := make(map[string][]model.User)
	for _, e := range entries {
		u := model.User{
			ID:          e.ID,
			DisplayName: e.DisplayName,
			Email:       e.Email,
			DeviceID:    e.DeviceID,
			ThresholdG:  e.ThresholdG,
		}
		byDevice[e.DeviceID] = append(byDevice[e.DeviceID], u)
	}
	return &StaticDirectory{byDevice: byDevice}
}

func (d *StaticDirectory) FindByDevice(_ context.Context, deviceID string) ([]model.User, error) {
	mapped := d.byDevice[deviceID]
	out := make([]model.User, len(mapped))
	copy(out, mapped)
	return out, nil
}

func (d *StaticDirectory) Close() error { return nil }
