package control

import "time"

// Disable suppresses an agent's autonomous decisions for a window of time.
// The only ways out are natural expiry or a later Start that replaces the
// remaining time.
type Disable struct {
	remaining time.Duration
	active    bool
}

// Start (re)opens the window. It reports whether the agent was previously
// enabled. Non-positive durations are ignored.
func (d *Disable) Start(dur time.Duration) (started bool) {
	if dur <= 0 {
		return false
	}
	started = !d.active
	d.active = true
	d.remaining = dur
	return started
}

// Tick counts the window down and reports whether it closed on this tick.
func (d *Disable) Tick(dt time.Duration) (ended bool) {
	if !d.active {
		return false
	}
	d.remaining -= dt
	if d.remaining > 0 {
		return false
	}
	d.remaining = 0
	d.active = false
	return true
}

func (d *Disable) Active() bool             { return d.active }
func (d *Disable) Remaining() time.Duration { return d.remaining }
