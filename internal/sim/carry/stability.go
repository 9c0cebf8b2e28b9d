package carry

import (
	"fmt"
	"time"
)

// Roller draws a uniform integer in [0,n). *rand.Rand satisfies it.
type Roller interface {
	Intn(n int) int
}

// FailureChance is the probability (0..100) that a stability evaluation
// begins a contested check while carrying count items.
func FailureChance(count, riskPerItem int) int {
	if count <= 0 || riskPerItem <= 0 {
		return 0
	}
	p := count * riskPerItem
	if p > 100 || p < 0 {
		return 100
	}
	return p
}

// Monitor runs the periodic stability evaluation. It only decides whether a
// check begins; the outcome of the check is reported elsewhere.
type Monitor struct {
	cadence time.Duration
	risk    int
	roll    Roller

	accumulated time.Duration
	active      bool
}

func NewMonitor(cadence time.Duration, riskPerItem int, roll Roller) (*Monitor, error) {
	if cadence <= 0 {
		return nil, fmt.Errorf("stability cadence must be > 0, got %v", cadence)
	}
	if riskPerItem < 0 || riskPerItem > 100 {
		return nil, fmt.Errorf("risk per item must be within 0..100, got %d", riskPerItem)
	}
	if roll == nil {
		return nil, fmt.Errorf("stability monitor requires a roller")
	}
	return &Monitor{cadence: cadence, risk: riskPerItem, roll: roll}, nil
}

// Tick advances the cadence timer for a tick of length dt while carrying
// count items. It returns whether a check begins and the threshold it was
// drawn against.
func (m *Monitor) Tick(dt time.Duration, count int) (begun bool, threshold int) {
	if count <= 0 {
		m.accumulated = 0
		m.active = false
		return false, 0
	}
	m.active = true
	m.accumulated += dt
	if m.accumulated < m.cadence {
		return false, 0
	}
	m.accumulated = 0
	threshold = FailureChance(count, m.risk)
	return m.roll.Intn(100) < threshold, threshold
}

// Reset re-arms the cadence from zero; called whenever the inventory empties.
func (m *Monitor) Reset() {
	m.accumulated = 0
	m.active = false
}

func (m *Monitor) Accumulated() time.Duration { return m.accumulated }
func (m *Monitor) Active() bool               { return m.active }
func (m *Monitor) Cadence() time.Duration     { return m.cadence }
func (m *Monitor) RiskPerItem() int           { return m.risk }
