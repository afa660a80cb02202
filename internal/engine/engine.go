package engine

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"milkwatch/internal/alerts"
	"milkwatch/internal/config"
	"milkwatch/internal/model"
	"milkwatch/internal/notify"
	"milkwatch/internal/readings"
	"milkwatch/internal/stats"
	"milkwatch/internal/storage"
	"milkwatch/internal/users"
)

// Engine owns all mutable per-device and per-user alerting state. One mutex
// serializes the message path and the grace sweep; directory lookups,
// notification dispatch and persistence all happen outside it so a slow
// collaborator can never stall ingestion.
type Engine struct {
	logger    *slog.Logger
	cfg       atomic.Value
	store     *readings.Store
	estimator *Estimator
	stats     *stats.Store
	alertLog  *alerts.Store
	storage   storage.Store
	directory users.Directory
	notifier  notify.Notifier
	clock     Clock

	mu     sync.Mutex
	carton *cartonMachine
	policy *policyEngine
}

func NewEngine(
	cfg *config.Config,
	logger *slog.Logger,
	store *readings.Store,
	statsStore *stats.Store,
	alertsStore *alerts.Store,
	persistence storage.Store,
	directory users.Directory,
	notifier notify.Notifier,
	clock Clock,
) *Engine {
	if clock == nil {
		clock = RealClock()
	}
	e := &Engine{
		logger:    logger,
		store:     store,
		estimator: NewEstimator(store, clock),
		stats:     statsStore,
		alertLog:  alertsStore,
		storage:   persistence,
		directory: directory,
		notifier:  notifier,
		clock:     clock,
		carton:    newCartonMachine(),
		policy:    newPolicyEngine(),
	}
	e.cfg.Store(cfg)
	return e
}

func (e *Engine) UpdateConfig(cfg *config.Config) {
	e.cfg.Store(cfg)
}

func (e *Engine) config() *config.Config {
	if v := e.cfg.Load(); v != nil {
		return v.(*config.Config)
	}
	return config.DefaultConfig()
}

// Start consumes normalized readings from the ingest channel until the
// context is cancelled.
func (e *Engine) Start(ctx context.Context, in <-chan model.Reading) {
	go func() {
		for {
			select {
			case r := <-in:
				e.ProcessReading(ctx, r)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// ProcessReading runs the full per-reading pipeline: store the reading,
// advance the carton machine, recompute analytics, evaluate alert policy and
// dispatch whatever was decided. Returns the alerts fired for this reading.
func (e *Engine) ProcessReading(ctx context.Context, r model.Reading) []model.Alert {
	cfg := e.config()
	if r.ObservedAt.IsZero() {
		r.ObservedAt = e.clock.Now()
	}
	if err := e.store.Append(r); err != nil {
		if e.logger != nil {
			e.logger.Warn("reading rejected", "device_id", r.DeviceID, "err", err)
		}
		return nil
	}

	// Directory lookup is network I/O and must stay outside the state lock.
	mapped, lookupErr := e.findUsers(ctx, r.DeviceID)

	now := e.clock.Now()
	e.mu.Lock()
	emptied, prevWeight, hadPrev := e.carton.Observe(r.DeviceID, r.WeightGrams, now, cfg.Alerting.GracePeriod)
	var decisions []Decision
	if lookupErr == nil {
		if emptied {
			decisions = append(decisions, e.policy.EvaluateEmpty(mapped)...)
		}
		decisions = append(decisions, e.policy.EvaluateThresholds(mapped, r.WeightGrams, prevWeight, hadPrev, cfg.Alerting)...)
	}
	e.mu.Unlock()

	if lookupErr != nil && e.logger != nil {
		// Skipped, not retried: the next reading re-evaluates against
		// whatever state exists then.
		e.logger.Warn("user lookup failed, skipping alert evaluation",
			"device_id", r.DeviceID, "err", lookupErr)
	}

	snapshot := e.estimator.Snapshot(r.DeviceID, r.WeightGrams, cfg.Analysis)
	e.stats.Update(snapshot)
	if e.storage != nil {
		_ = e.storage.SaveReading(ctx, r)
		_ = e.storage.SaveStats(ctx, snapshot)
	}

	return e.dispatch(ctx, r.DeviceID, r.WeightGrams, decisions)
}

// SweepOnce expires grace timers whose window elapsed with no reading
// arriving. Alerts may fire up to one sweep interval after the true expiry;
// that latency bound is the configured sweep interval.
func (e *Engine) SweepOnce(ctx context.Context) []model.Alert {
	cfg := e.config()
	now := e.clock.Now()

	e.mu.Lock()
	expired := e.carton.Expire(now, cfg.Alerting.GracePeriod)
	e.mu.Unlock()

	var fired []model.Alert
	for _, deviceID := range expired {
		mapped, err := e.findUsers(ctx, deviceID)
		if err != nil {
			if e.logger != nil {
				e.logger.Warn("user lookup failed, empty alert dropped",
					"device_id", deviceID, "err", err)
			}
			continue
		}
		decisions := e.policy.EvaluateEmpty(mapped)
		fired = append(fired, e.dispatch(ctx, deviceID, 0, decisions)...)
	}
	return fired
}

// StartSweeper runs the periodic grace-period sweep until the context is
// cancelled.
func (e *Engine) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				e.SweepOnce(ctx)
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (e *Engine) dispatch(ctx context.Context, deviceID string, weight float64, decisions []Decision) []model.Alert {
	if len(decisions) == 0 {
		return nil
	}
	now := e.clock.Now()
	out := make([]model.Alert, 0, len(decisions))
	for _, d := range decisions {
		alert := model.Alert{
			ID:          uuid.NewString(),
			Timestamp:   now,
			DeviceID:    deviceID,
			UserID:      d.User.ID,
			Email:       d.User.Email,
			DisplayName: d.User.DisplayName,
			Kind:        d.Kind,
			WeightGrams: weight,
			ThresholdG:  d.ThresholdG,
		}
		if e.alertLog != nil {
			e.alertLog.Add(alert)
		}
		if e.storage != nil {
			_ = e.storage.SaveAlert(ctx, alert)
		}
		if e.logger != nil {
			e.logger.Warn("alert decided",
				"kind", alert.Kind,
				"device_id", alert.DeviceID,
				"user_id", alert.UserID,
				"weight_g", alert.WeightGrams,
			)
		}
		if e.notifier != nil {
			if err := e.notifier.Send(ctx, alert); err != nil && e.logger != nil {
				// Delivery failure is non-fatal and the alert still counts
				// as sent; losing one beats a storm from a flapping channel.
				e.logger.Warn("alert delivery failed",
					"alert_id", alert.ID, "kind", alert.Kind, "err", err)
			}
		}
		out = append(out, alert)
	}
	return out
}

func (e *Engine) findUsers(ctx context.Context, deviceID string) ([]model.User, error) {
	if e.directory == nil {
		return nil, nil
	}
	return e.directory.FindByDevice(ctx, deviceID)
}

// CartonTimer exposes the active timer for a device, if any.
func (e *Engine) CartonTimer(deviceID string) (CartonTimer, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.carton.Timer(deviceID)
}

// LastWeight exposes the last recorded weight for a device.
func (e *Engine) LastWeight(deviceID string) (float64, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.carton.LastWeight(deviceID)
}

// AlertSent reports whether an alert kind is outstanding for a user.
func (e *Engine) AlertSent(userID string, kind model.AlertKind) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.policy.Sent(userID, kind)
}

// Reset drops all carton and hysteresis state. Stored readings are left
// alone.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.carton.reset()
	e.policy.reset()
}
