package world

import (
	"context"
	"fmt"
	"math"

	"dishrush.game/internal/sim/carry"
	"dishrush.game/internal/sim/catalogs"
	"dishrush.game/internal/sim/effects"
	"dishrush.game/internal/sim/events"
	"dishrush.game/internal/sim/impairment"
)

const SinkID = "SINK"

// arrivalEpsilon is how close a roaming source gets before picking a new goal.
const arrivalEpsilon = 0.1

// Sink is the delivery station.
type Sink struct {
	ID  string
	Pos Vec2
}

// Source is a roaming collectible. Its wandering runs under ctx and stops for
// good once the source is picked up.
type Source struct {
	ID   string
	Item string
	Pos  Vec2

	goal     Vec2
	hasGoal  bool
	anchored bool
	autonomy bool

	ctx    context.Context
	cancel context.CancelFunc

	pulse    *impairment.Pulse
	touching map[string]bool
}

func (s *Source) AutonomyEnabled() bool    { return s.autonomy }
func (s *Source) SetAutonomy(enabled bool) { s.autonomy = enabled }

type Consumable struct {
	ID   string
	Item string
	Pos  Vec2
}

func (w *World) spawnSource(item string, pos Vec2) (string, error) {
	def, ok := w.catalogs.Items.Defs[item]
	if !ok || def.Kind != catalogs.KindDish {
		return "", fmt.Errorf("spawn source: unknown dish %q", item)
	}
	w.nextSourceNum++
	ctx, cancel := context.WithCancel(context.Background())
	s := &Source{
		ID:       fmt.Sprintf("S%d", w.nextSourceNum),
		Item:     item,
		Pos:      pos,
		autonomy: true,
		ctx:      ctx,
		cancel:   cancel,
	}
	if def.Impairing {
		p, err := impairment.New(w.pulseCfg, s)
		if err != nil {
			cancel()
			return "", fmt.Errorf("spawn source: %w", err)
		}
		s.pulse = p
		s.touching = map[string]bool{}
	}
	w.sources[s.ID] = s
	return s.ID, nil
}

func (w *World) spawnConsumable(item string, pos Vec2) (string, error) {
	def, ok := w.catalogs.Items.Defs[item]
	if !ok || def.Kind != catalogs.KindConsumable {
		return "", fmt.Errorf("spawn consumable: unknown consumable %q", item)
	}
	w.nextConsumableNum++
	c := &Consumable{ID: fmt.Sprintf("C%d", w.nextConsumableNum), Item: item, Pos: pos}
	w.consumables[c.ID] = c
	return c.ID, nil
}

// takeSource removes a source from play: its wandering is cancelled and any
// open splatter window is closed.
func (w *World) takeSource(id string) (carry.Item, bool) {
	s := w.sources[id]
	if s == nil || s.ctx.Err() != nil {
		return "", false
	}
	s.cancel()
	if s.pulse != nil {
		if s.pulse.Active() {
			w.bus.Emit(events.SplatterStop{SourceID: s.ID})
		}
		s.pulse.Release()
	}
	delete(w.sources, id)
	return carry.Item(s.Item), true
}

func (w *World) consume(a *Agent, id string) bool {
	c := w.consumables[id]
	if c == nil {
		return false
	}
	def := w.catalogs.Items.Defs[c.Item]
	a.effects.Set(effects.SlotConsumableBoost, def.Boost, def.Lifetime())
	delete(w.consumables, id)
	a.bus.Emit(events.ConsumableEaten{
		ConsumableID: c.ID,
		Item:         c.Item,
		Boost:        def.Boost,
		Lifetime:     def.Lifetime(),
	})
	return true
}

// randomArenaPoint is uniform over the arena disc.
func (w *World) randomArenaPoint() Vec2 {
	r := w.tune.ArenaRadius * math.Sqrt(w.rng.Float64())
	theta := 2 * math.Pi * w.rng.Float64()
	return Vec2{r * math.Cos(theta), r * math.Sin(theta)}
}

func (w *World) clampToArena(p Vec2) Vec2 {
	if l := p.Len(); l > w.tune.ArenaRadius {
		return p.Mul(w.tune.ArenaRadius / l)
	}
	return p
}
