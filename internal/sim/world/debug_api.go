package world

import (
	"context"
	"time"

	"dishrush.game/internal/sim/carry"
	"dishrush.game/internal/sim/effects"
)

// ---- Debug/Test Helpers ----
//
// These helpers let black-box tests in sibling packages (e.g. internal/sim/worldtest)
// set up deterministic preconditions without reaching into world internals.
//
// They are NOT safe to call concurrently with Run(). Use them only in tests that drive
// the world via StepOnce(), from a single goroutine.

// AgentView is a read-only copy of one agent's gameplay state.
type AgentView struct {
	ID            string
	Pos           Vec2
	Velocity      Vec2
	Yaw           float64
	Moving        bool
	State         carry.State
	Items         []carry.Item
	Entries       []carry.Entry
	SpeedNet      float64
	Effects       map[effects.Slot]effects.Modifier
	Disabled      time.Duration
	Stumbling     bool
	PendingChecks []uint64
	LastResult    carry.Result
	CleanProgress time.Duration
}

type SourceView struct {
	ID       string
	Item     string
	Pos      Vec2
	Autonomy bool
	Impairs  bool
	Splatter bool
	Arming   time.Duration
	Cycles   int
}

func (w *World) DebugAgent(agentID string) (AgentView, bool) {
	a := w.agents[agentID]
	if a == nil {
		return AgentView{}, false
	}
	return AgentView{
		ID:            a.ID,
		Pos:           a.Pos,
		Velocity:      a.move.Velocity(),
		Yaw:           a.move.Yaw(),
		Moving:        a.moving,
		State:         a.carry.State(),
		Items:         a.carry.Items(),
		Entries:       a.carry.Entries(),
		SpeedNet:      a.effects.Net(),
		Effects:       a.effects.Snapshot(),
		Disabled:      a.carry.DisabledRemaining(),
		Stumbling:     a.carry.Stumbling(),
		PendingChecks: a.carry.PendingChecks(),
		LastResult:    a.lastResult,
		CleanProgress: a.cleanProgress,
	}, true
}

func (w *World) DebugSource(id string) (SourceView, bool) {
	s := w.sources[id]
	if s == nil {
		return SourceView{}, false
	}
	v := SourceView{ID: s.ID, Item: s.Item, Pos: s.Pos, Autonomy: s.autonomy}
	if s.pulse != nil {
		v.Impairs = true
		v.Splatter = s.pulse.Active()
		v.Arming = s.pulse.Arming()
		v.Cycles = s.pulse.Cycles()
	}
	return v, true
}

// DebugSourceContext exposes the context a source wanders under; it is
// cancelled once the source is picked up.
func (w *World) DebugSourceContext(id string) (context.Context, bool) {
	s := w.sources[id]
	if s == nil {
		return nil, false
	}
	return s.ctx, true
}

func (w *World) DebugSetAgentPos(agentID string, pos Vec2) bool {
	a := w.agents[agentID]
	if a == nil {
		return false
	}
	a.Pos = w.clampToArena(pos)
	return true
}

// DebugSpawnSource places an anchored source: it keeps its autonomy (and so
// its splatter cadence) but never wanders, so tests can rely on its position.
func (w *World) DebugSpawnSource(item string, pos Vec2) (string, error) {
	id, err := w.spawnSource(item, pos)
	if err != nil {
		return "", err
	}
	w.sources[id].anchored = true
	return id, nil
}

func (w *World) DebugSpawnConsumable(item string, pos Vec2) (string, error) {
	return w.spawnConsumable(item, pos)
}

// DebugSetSourceAutonomy flips the same switch a splatter pulse does.
func (w *World) DebugSetSourceAutonomy(id string, enabled bool) bool {
	s := w.sources[id]
	if s == nil {
		return false
	}
	s.autonomy = enabled
	return true
}

// DebugIgnite disables an agent's interactions as if it had been splattered.
func (w *World) DebugIgnite(agentID string, d time.Duration) bool {
	a := w.agents[agentID]
	if a == nil {
		return false
	}
	a.carry.Ignite(d)
	return true
}
