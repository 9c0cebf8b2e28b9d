package world

import (
	"sort"
	"time"

	"dishrush.game/internal/protocol"
	"dishrush.game/internal/sim/carry"
	"dishrush.game/internal/sim/events"
	"dishrush.game/internal/sim/impairment"
	"dishrush.game/internal/sim/tuning"
)

func (w *World) applyInput(a *Agent, in protocol.InputMsg) {
	if in.Seq > a.lastSeq {
		a.lastSeq = in.Seq
	}
	switch in.Kind {
	case protocol.InputMove:
		dir := Vec2{in.X, in.Y}
		if dir.Len() > 1 {
			dir = dir.Normalize()
		}
		a.move.SetIntent(dir)
	case protocol.InputInteractPress:
		a.lastResult = a.carry.Interact(w.candidatesFor(a))
		if a.lastResult == carry.ResultCleaningStarted {
			a.cleanProgress = 0
		}
	case protocol.InputInteractRelease:
		a.lastResult = a.carry.ReleaseInteract()
	case protocol.InputCheckResult:
		delete(a.checkDeadlines, in.CheckID)
		a.lastResult = a.carry.ResolveCheck(in.CheckID, in.OK)
	}
}

// candidatesFor lists everything within the agent's detection radius.
func (w *World) candidatesFor(a *Agent) []carry.Candidate {
	r := w.tune.Player.DetectionRadius
	var out []carry.Candidate
	if d := a.Pos.Sub(w.sink.Pos).Len(); d <= r {
		out = append(out, carry.Candidate{ID: w.sink.ID, Category: carry.CategoryStation, Distance: d})
	}
	for _, s := range w.sources {
		if d := a.Pos.Sub(s.Pos).Len(); d <= r {
			out = append(out, carry.Candidate{ID: s.ID, Category: carry.CategorySource, Distance: d})
		}
	}
	for _, c := range w.consumables {
		if d := a.Pos.Sub(c.Pos).Len(); d <= r {
			out = append(out, carry.Candidate{ID: c.ID, Category: carry.CategoryConsumable, Distance: d})
		}
	}
	return carry.SortCandidates(out)
}

func (w *World) systemAgents(dt time.Duration) {
	for _, id := range w.sortedAgentIDs() {
		a := w.agents[id]
		w.autoResolve(a, dt)
		a.carry.Tick(dt)
	}
}

// autoResolve answers checks the client left open past check_timeout.
func (w *World) autoResolve(a *Agent, dt time.Duration) {
	if len(a.checkDeadlines) == 0 {
		return
	}
	live := map[uint64]bool{}
	for _, id := range a.carry.PendingChecks() {
		live[id] = true
	}
	ids := make([]uint64, 0, len(a.checkDeadlines))
	for id := range a.checkDeadlines {
		if !live[id] {
			delete(a.checkDeadlines, id)
			continue
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		left := a.checkDeadlines[id] - dt
		if left > 0 {
			a.checkDeadlines[id] = left
			continue
		}
		delete(a.checkDeadlines, id)
		ok := w.rng.Intn(100) < w.tune.Stability.AutoPassPercent
		a.lastResult = a.carry.ResolveCheck(id, ok)
		if a.lastResult == carry.ResultStumbled {
			// The stumble invalidated every other outstanding check.
			clear(a.checkDeadlines)
			return
		}
	}
}

func (w *World) systemMovement(dt time.Duration) {
	for _, id := range w.sortedAgentIDs() {
		a := w.agents[id]
		v := a.move.Tick(dt, a.carry.Delivering())
		a.Pos = w.clampToArena(a.Pos.Add(v.Mul(dt.Seconds())))
		if moving := a.move.Moving(); moving != a.moving {
			a.moving = moving
			a.bus.Emit(events.Stance{Moving: moving})
		}
	}
}

// systemDelivery runs the sink's cleaning timer for every delivering agent.
func (w *World) systemDelivery(dt time.Duration) {
	clean := tuning.Ms(w.tune.Delivery.CleanDurationMs)
	for _, id := range w.sortedAgentIDs() {
		a := w.agents[id]
		if !a.carry.Delivering() {
			a.cleanProgress = 0
			continue
		}
		a.cleanProgress += dt
		if a.cleanProgress >= clean {
			a.cleanProgress = 0
			a.lastResult = a.carry.DeliveryCompleted()
		}
	}
}

func (w *World) systemSources(dt time.Duration) {
	radius := w.tune.Impairment.SplatterRadius
	for _, id := range w.sortedSourceIDs() {
		s := w.sources[id]
		if s.ctx.Err() != nil {
			continue
		}
		// An open splatter window owns the autonomy switch until it closes.
		if r := w.tune.Spawning.FreezeRadius; r > 0 && (s.pulse == nil || !s.pulse.Active()) {
			s.autonomy = !w.cornered(s, r)
		}
		if s.pulse != nil {
			switch s.pulse.Tick(dt) {
			case impairment.TransitionStarted:
				s.touching = map[string]bool{}
				w.bus.Emit(events.SplatterStart{SourceID: s.ID})
			case impairment.TransitionStopped:
				w.bus.Emit(events.SplatterStop{SourceID: s.ID})
			}
		}
		if s.autonomy && !s.anchored {
			w.wander(s, dt)
		}
		if s.pulse == nil || !s.pulse.Active() {
			continue
		}
		// Only entering the splash counts as a contact; standing in it does not
		// refresh the modifier every tick.
		for _, aid := range w.sortedAgentIDs() {
			a := w.agents[aid]
			inside := a.Pos.Sub(s.Pos).Len() <= radius
			if inside && !s.touching[aid] && s.pulse.Contact(a) {
				cfg := s.pulse.Config()
				a.bus.Emit(events.Impaired{
					SourceID:   s.ID,
					TargetID:   a.ID,
					Multiplier: cfg.Multiplier,
					Duration:   cfg.ModifierDuration,
				})
			}
			s.touching[aid] = inside
		}
	}
}

// cornered reports whether any agent stands within r of s.
func (w *World) cornered(s *Source, r float64) bool {
	for _, a := range w.agents {
		if a.Pos.Sub(s.Pos).Len() <= r {
			return true
		}
	}
	return false
}

func (w *World) wander(s *Source, dt time.Duration) {
	if !s.hasGoal || s.Pos.Sub(s.goal).Len() < arrivalEpsilon {
		s.goal = w.randomArenaPoint()
		s.hasGoal = true
	}
	step := w.tune.Spawning.SourceSpeed * dt.Seconds()
	dir := s.goal.Sub(s.Pos)
	if dir.Len() <= step {
		s.Pos = s.goal
		return
	}
	s.Pos = s.Pos.Add(dir.Normalize().Mul(step))
}

func (w *World) systemSpawning(dt time.Duration) {
	sp := w.tune.Spawning
	if sp.MaxSources > 0 && sp.SpawnEveryMs > 0 {
		w.sourceTimer += dt
		if w.sourceTimer >= tuning.Ms(sp.SpawnEveryMs) {
			w.sourceTimer = 0
			if len(w.sources) < sp.MaxSources {
				if item, ok := w.catalogs.Items.Pick(w.catalogs.Items.Dishes(), w.rng.Intn); ok {
					_, _ = w.spawnSource(item, w.randomArenaPoint())
				}
			}
		}
	}
	cons := w.catalogs.Items.Consumables()
	if sp.MaxConsumables > 0 && sp.ConsumableEveryMs > 0 && len(cons) > 0 {
		w.consumableTimer += dt
		if w.consumableTimer >= tuning.Ms(sp.ConsumableEveryMs) {
			w.consumableTimer = 0
			if len(w.consumables) < sp.MaxConsumables {
				if item, ok := w.catalogs.Items.Pick(cons, w.rng.Intn); ok {
					_, _ = w.spawnConsumable(item, w.randomArenaPoint())
				}
			}
		}
	}
}
