package world

import "dishrush.game/internal/sim/events"

// WorldMetrics is a thread-safe read-only view of key world runtime signals.
// It is updated from the world loop goroutine and read from HTTP handlers/tests.
type WorldMetrics struct {
	Tick uint64 `json:"tick"`

	Agents      int `json:"agents"`
	Clients     int `json:"clients"`
	Sources     int `json:"sources"`
	Consumables int `json:"consumables"`
	Carried     int `json:"carried"`

	QueueDepths QueueDepths `json:"queue_depths"`

	StepMS float64 `json:"step_ms"`

	Totals Totals `json:"totals"`
}

type QueueDepths struct {
	Inbox int `json:"inbox"`
	Join  int `json:"join"`
	Leave int `json:"leave"`
}

// Totals are monotonically increasing counters since world start.
type Totals struct {
	Pickups          uint64 `json:"pickups"`
	Deliveries       uint64 `json:"deliveries"`
	DishesCleaned    uint64 `json:"dishes_cleaned"`
	Stumbles         uint64 `json:"stumbles"`
	DishesDropped    uint64 `json:"dishes_dropped"`
	ChecksBegun      uint64 `json:"checks_begun"`
	ChecksPassed     uint64 `json:"checks_passed"`
	ChecksFailed     uint64 `json:"checks_failed"`
	StaleOutcomes    uint64 `json:"stale_outcomes"`
	Impairments      uint64 `json:"impairments"`
	Splatters        uint64 `json:"splatters"`
	ConsumablesEaten uint64 `json:"consumables_eaten"`
}

func (t *Totals) observe(e events.Event) {
	switch ev := e.(type) {
	case events.Pickup:
		t.Pickups++
	case events.Delivered:
		t.Deliveries++
		t.DishesCleaned += uint64(len(ev.Items))
	case events.Stumble:
		t.Stumbles++
		t.DishesDropped += uint64(len(ev.Dropped))
	case events.StabilityCheck:
		t.ChecksBegun++
	case events.CheckResolved:
		switch {
		case ev.Stale:
			t.StaleOutcomes++
		case ev.OK:
			t.ChecksPassed++
		default:
			t.ChecksFailed++
		}
	case events.Impaired:
		t.Impairments++
	case events.SplatterStart:
		t.Splatters++
	case events.ConsumableEaten:
		t.ConsumablesEaten++
	}
}

func (w *World) buildMetrics(tick uint64, stepMS float64) WorldMetrics {
	carried := 0
	for _, a := range w.agents {
		carried += a.carry.Count()
	}
	return WorldMetrics{
		Tick:        tick,
		Agents:      len(w.agents),
		Clients:     len(w.clients),
		Sources:     len(w.sources),
		Consumables: len(w.consumables),
		Carried:     carried,
		QueueDepths: QueueDepths{
			Inbox: len(w.inbox),
			Join:  len(w.join),
			Leave: len(w.leave),
		},
		StepMS: stepMS,
		Totals: w.totals,
	}
}

func (w *World) Metrics() WorldMetrics {
	if w == nil {
		return WorldMetrics{}
	}
	v := w.metrics.Load()
	if v == nil {
		return WorldMetrics{}
	}
	m, ok := v.(WorldMetrics)
	if !ok {
		return WorldMetrics{}
	}
	return m
}
