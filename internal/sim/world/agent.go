package world

import (
	"fmt"
	"time"

	"dishrush.game/internal/sim/carry"
	"dishrush.game/internal/sim/effects"
	"dishrush.game/internal/sim/events"
	"dishrush.game/internal/sim/movement"
	"dishrush.game/internal/sim/tuning"
)

// Agent is one player character. Each agent owns its bus so signals can be
// attributed; the world re-publishes them tagged with the agent id.
type Agent struct {
	ID   string
	Name string
	Pos  Vec2

	bus     *events.Bus
	effects *effects.Stack
	move    *movement.Resolver
	carry   *carry.Controller

	cleanProgress  time.Duration
	moving         bool
	lastResult     carry.Result
	lastSeq        uint64
	checkDeadlines map[uint64]time.Duration
}

func (w *World) newAgent(id, name string, pos Vec2) (*Agent, error) {
	a := &Agent{
		ID:             id,
		Name:           name,
		Pos:            pos,
		bus:            events.NewBus(),
		effects:        effects.NewStack(),
		checkDeadlines: map[uint64]time.Duration{},
	}
	mv, err := movement.NewResolver(movement.Config{
		BaseSpeed:     w.tune.Player.WalkingSpeed,
		RotationSpeed: w.tune.Player.RotationSpeed,
	}, a.effects)
	if err != nil {
		return nil, fmt.Errorf("agent %s: %w", id, err)
	}
	ctl, err := carry.New(carry.Config{
		CheckCadence:    tuning.Ms(w.tune.Stability.CheckRateMs),
		RiskPerItem:     w.tune.Stability.RiskPerItem,
		StumbleRecovery: tuning.Ms(w.tune.Stability.StumbleRecoveryMs),
	}, agentReach{w: w, a: a}, a.bus, w.rng)
	if err != nil {
		return nil, fmt.Errorf("agent %s: %w", id, err)
	}
	a.move = mv
	a.carry = ctl
	a.bus.SetTick(w.tick.Load())
	a.bus.Subscribe(func(tick uint64, e events.Event) { w.dispatch(id, tick, e) })
	return a, nil
}

// Effects and Ignite make an agent an impairment target.
func (a *Agent) Effects() *effects.Stack { return a.effects }
func (a *Agent) Ignite(d time.Duration)  { a.carry.Ignite(d) }

func (a *Agent) Carry() *carry.Controller { return a.carry }

// agentReach is the slice of the world one agent's controller may act on.
type agentReach struct {
	w *World
	a *Agent
}

func (r agentReach) TakeSource(id string) (carry.Item, bool) {
	return r.w.takeSource(id)
}

func (r agentReach) Consume(id string) bool {
	return r.w.consume(r.a, id)
}
