package engine

import (
	"milkwatch/internal/config"
	"milkwatch/internal/model"
)

// Decision is one alert the policy engine decided to send. Delivery happens
// outside the engine lock; the decision itself already counts as sent for
// hysteresis purposes.
type Decision struct {
	User       model.User
	Kind       model.AlertKind
	ThresholdG float64
}

// userAlertState holds which alert kinds are outstanding for a user. Only a
// qualifying refill clears it, never time.
type userAlertState struct {
	sentKinds map[model.AlertKind]bool
}

// policyEngine applies the threshold ladder with per-user hysteresis and the
// refill reset. It reads carton output but never mutates device state. All
// methods run under the engine mutex.
type policyEngine struct {
	users map[string]*userAlertState
}

func newPolicyEngine() *policyEngine {
	return &policyEngine{users: make(map[string]*userAlertState)}
}

func (p *policyEngine) state(userID string) *userAlertState {
	st, ok := p.users[userID]
	if !ok {
		st = &userAlertState{sentKinds: make(map[model.AlertKind]bool)}
		p.users[userID] = st
	}
	return st
}

// EvaluateEmpty fires the terminal empty alert for every mapped user. Empty
// is not subject to per-user hysteresis; the carton machine already
// guarantees at most one transition per dwell.
func (p *policyEngine) EvaluateEmpty(users []model.User) []Decision {
	out := make([]Decision, 0, len(users))
	for _, u := range users {
		out = append(out, Decision{User: u, Kind: model.AlertEmpty})
	}
	return out
}

// EvaluateThresholds runs rules 2..5 of the per-reading evaluation. A zero
// weight suppresses the ladder entirely while the dwell might still resolve
// to a transient lift. Critical shadows warning in the same evaluation.
func (p *policyEngine) EvaluateThresholds(users []model.User, weight, prevWeight float64, hadPrev bool, cfg config.AlertingConfig) []Decision {
	if weight == 0 {
		return nil
	}
	var out []Decision
	for _, u := range users {
		effective := cfg.LowThresholdG
		if u.ThresholdG > 0 {
			effective = u.ThresholdG
		}
		st := p.state(u.ID)
		switch {
		case weight <= cfg.CriticalThresholdG:
			if !st.sentKinds[model.AlertCritical] {
				st.sentKinds[model.AlertCritical] = true
				out = append(out, Decision{User: u, Kind: model.AlertCritical, ThresholdG: cfg.CriticalThresholdG})
			}
		case weight <= effective:
			if !st.sentKinds[model.AlertWarning] {
				st.sentKinds[model.AlertWarning] = true
				out = append(out, Decision{User: u, Kind: model.AlertWarning, ThresholdG: effective})
			}
		}
	}
	// A rise through the refill threshold from a positive prior weight means a
	// new container. A prior weight of zero is a grace-period carton swap and
	// does not qualify.
	if weight >= cfg.RefillThresholdG && hadPrev && prevWeight > 0 {
		for _, u := range users {
			if st, ok := p.users[u.ID]; ok {
				st.sentKinds = make(map[model.AlertKind]bool)
			}
		}
	}
	return out
}

// Sent reports whether a kind is currently outstanding for a user.
func (p *policyEngine) Sent(userID string, kind model.AlertKind) bool {
	st, ok := p.users[userID]
	return ok && st.sentKinds[kind]
}

func (p *policyEngine) reset() {
	p.users = make(map[string]*userAlertState)
}
