package engine

import "time"

// CartonTimer tracks one zero-weight dwell. It exists only while the device
// sits at zero; a positive reading cancels it, grace expiry consumes it.
type CartonTimer struct {
	ZeroStartedAt time.Time
	GraceActive   bool
}

type deviceState struct {
	lastWeight float64
	hasLast    bool
	timer      *CartonTimer
}

// cartonMachine distinguishes a carton momentarily lifted off the scale from
// one that is actually gone. A device holds at most one timer at any time.
// All methods must run under the engine mutex: the message path creates and
// cancels timers, the sweep only reads and expires them.
type cartonMachine struct {
	states map[string]*deviceState
}

func newCartonMachine() *cartonMachine {
	return &cartonMachine{states: make(map[string]*deviceState)}
}

func (c *cartonMachine) state(deviceID string) *deviceState {
	st, ok := c.states[deviceID]
	if !ok {
		st = &deviceState{}
		c.states[deviceID] = st
	}
	return st
}

// Observe advances the machine for one reading. It reports whether this
// reading completed a grace period (terminal empty), plus the previously
// recorded weight for the refill decision.
func (c *cartonMachine) Observe(deviceID string, weight float64, now time.Time, grace time.Duration) (emptied bool, prevWeight float64, hadPrev bool) {
	st := c.state(deviceID)
	prevWeight, hadPrev = st.lastWeight, st.hasLast

	if weight > 0 {
		// Transient lift resolved, or normal traffic. No alert either way.
		st.timer = nil
	} else {
		switch {
		case st.timer == nil:
			st.timer = &CartonTimer{ZeroStartedAt: now, GraceActive: true}
		case now.Sub(st.timer.ZeroStartedAt) >= grace:
			// Still at zero past the grace window: terminal empty. The timer
			// is consumed so the device re-arms on the next zero reading.
			st.timer = nil
			emptied = true
		}
	}

	st.lastWeight = weight
	st.hasLast = true
	return emptied, prevWeight, hadPrev
}

// Expire collects devices whose grace period elapsed with no reading arriving
// to observe it. Called by the background sweep.
func (c *cartonMachine) Expire(now time.Time, grace time.Duration) []string {
	var emptied []string
	for deviceID, st := range c.states {
		if st.timer != nil && now.Sub(st.timer.ZeroStartedAt) >= grace {
			st.timer = nil
			emptied = append(emptied, deviceID)
		}
	}
	return emptied
}

// Timer returns a copy of the active timer, if any.
func (c *cartonMachine) Timer(deviceID string) (CartonTimer, bool) {
	st, ok := c.states[deviceID]
	if !ok || st.timer == nil {
		return CartonTimer{}, false
	}
	return *st.timer, true
}

// LastWeight returns the last recorded weight for a device.
func (c *cartonMachine) LastWeight(deviceID string) (float64, bool) {
	st, ok := c.states[deviceID]
	if !ok || !st.hasLast {
		return 0, false
	}
	return st.lastWeight, true
}

func (c *cartonMachine) reset() {
	c.states = make(map[string]*deviceState)
}
