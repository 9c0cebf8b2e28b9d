package worldtest

import (
	"testing"

	"dishrush.game/internal/sim/carry"
	"dishrush.game/internal/sim/events"
	"dishrush.game/internal/sim/tuning"
	world "dishrush.game/internal/sim/world"
)

func noRisk(t *tuning.Tuning) { t.Stability.RiskPerItem = 0 }

func TestPickup_AlternatesSidesAndCancelsSource(t *testing.T) {
	h := NewQuietHarness(t, noRisk)
	at := h.Agent().Pos
	var ids []string
	for i := 0; i < 3; i++ {
		ids = append(ids, h.SpawnSource("PLATE", at))
	}
	ctx, ok := h.W.DebugSourceContext(ids[0])
	if !ok {
		t.Fatalf("source context missing")
	}

	for i := 0; i < 3; i++ {
		h.Press()
		if r := h.LastResult(); r != carry.ResultPickedUp {
			t.Fatalf("press %d: got %v want PICKED_UP", i, r)
		}
	}
	if ctx.Err() == nil {
		t.Fatalf("picked source must have its behaviour cancelled")
	}
	for _, id := range ids {
		if _, ok := h.W.DebugSource(id); ok {
			t.Fatalf("source %s still in world", id)
		}
	}

	v := h.Agent()
	want := []carry.Side{carry.SideRight, carry.SideLeft, carry.SideRight}
	if len(v.Entries) != len(want) {
		t.Fatalf("entries: got %d want %d", len(v.Entries), len(want))
	}
	for i, e := range v.Entries {
		if e.Side != want[i] {
			t.Fatalf("entry %d side: got %v want %v", i, e.Side, want[i])
		}
	}
	st := h.LastState()
	if st.Agent.State != "CARRYING" || st.Agent.Right != 2 || st.Agent.Left != 1 || len(st.Agent.Carry) != 3 {
		t.Fatalf("unexpected state: %+v", st.Agent)
	}
	if st.LastResult != "PICKED_UP" {
		t.Fatalf("last_result: %q", st.LastResult)
	}
}

func TestInteract_PriorityStationSourceConsumable(t *testing.T) {
	h := NewQuietHarness(t, noRisk)
	sink := world.Vec2{0, 0}
	h.SetAgentPos(sink)
	h.SpawnSource("BOWL", sink)
	h.SpawnConsumable("COFFEE", sink)

	// Empty handed: the station does not qualify, the source beats the consumable.
	h.Press()
	if r := h.LastResult(); r != carry.ResultPickedUp {
		t.Fatalf("first press: got %v want PICKED_UP", r)
	}

	h.SpawnSource("MUG", sink)
	st := h.Press()
	if r := h.LastResult(); r != carry.ResultCleaningStarted {
		t.Fatalf("second press: got %v want CLEANING_STARTED", r)
	}
	if st.Agent.State != "DELIVERING" {
		t.Fatalf("state: got %s want DELIVERING", st.Agent.State)
	}
	if len(st.Sources) != 1 || len(st.Consumables) != 1 {
		t.Fatalf("station must win without touching others: sources=%d consumables=%d", len(st.Sources), len(st.Consumables))
	}

	st = h.Release()
	if r := h.LastResult(); r != carry.ResultCancelled {
		t.Fatalf("release: got %v want CANCELLED", r)
	}
	if st.Agent.State != "CARRYING" || len(st.Agent.Carry) != 1 {
		t.Fatalf("cancel must keep the load: %+v", st.Agent)
	}
}

func TestInteract_EmptyHandedAtStation(t *testing.T) {
	h := NewQuietHarness(t, noRisk)
	h.SetAgentPos(world.Vec2{0, 0})
	h.Press()
	if r := h.LastResult(); r != carry.ResultRejectedEmptyHanded {
		t.Fatalf("got %v want REJECTED_EMPTY_HANDED", r)
	}
	if h.Agent().State != carry.StateIdle {
		t.Fatalf("state changed on rejection")
	}
}

func TestDelivery_CompletesAfterCleanDuration(t *testing.T) {
	h := NewQuietHarness(t, noRisk)
	at := h.Agent().Pos
	h.SpawnSource("PLATE", at)
	h.SpawnSource("BOWL", at)
	h.Press()
	h.Press()
	if n := len(h.Agent().Items); n != 2 {
		t.Fatalf("carried: %d", n)
	}

	h.SetAgentPos(world.Vec2{0, 0})
	h.Press()
	if h.Agent().State != carry.StateDelivering {
		t.Fatalf("expected delivering")
	}
	// 2500ms at 20ms per tick: the press tick plus 124 more.
	h.StepN(123)
	if h.Agent().State != carry.StateDelivering {
		t.Fatalf("delivery finished early")
	}
	h.StepN(1)
	v := h.Agent()
	if v.State != carry.StateIdle || len(v.Items) != 0 {
		t.Fatalf("after delivery: state=%v items=%v", v.State, v.Items)
	}
	ev, ok := h.LastSignal(events.KindDelivered)
	if !ok || len(ev.(events.Delivered).Items) != 2 {
		t.Fatalf("delivered signal: %v %v", ev, ok)
	}
	if m := h.W.Metrics(); m.Totals.Deliveries != 1 || m.Totals.DishesCleaned != 2 {
		t.Fatalf("totals: %+v", m.Totals)
	}
}

func TestDelivery_NoMovementWhileCleaning(t *testing.T) {
	h := NewQuietHarness(t, noRisk)
	sink := world.Vec2{0, 0}
	h.SetAgentPos(sink)
	h.SpawnSource("PLATE", sink)
	h.Press()
	h.Press()

	st := h.Move(1, 0)
	if st.Agent.Velocity != [2]float64{0, 0} || st.Agent.Moving {
		t.Fatalf("delivering agent moved: %+v", st.Agent)
	}
	if st.Agent.Pos != [2]float64{0, 0} {
		t.Fatalf("position drifted: %v", st.Agent.Pos)
	}

	// Releasing lets the held intent move the agent again.
	st = h.Release()
	if st.Agent.Velocity[0] <= 0 || !st.Agent.Moving {
		t.Fatalf("expected movement after release: %+v", st.Agent)
	}
}

func TestConsumable_BoostsThenExpires(t *testing.T) {
	h := NewQuietHarness(t, nil)
	h.SpawnConsumable("COFFEE", h.Agent().Pos)

	h.Press()
	if r := h.LastResult(); r != carry.ResultConsumed {
		t.Fatalf("got %v want CONSUMED", r)
	}
	if net := h.Agent().SpeedNet; net != 1.5 {
		t.Fatalf("net multiplier: got %v want 1.5", net)
	}
	st := h.Move(1, 0)
	if st.Agent.Velocity[0] != 7.5 {
		t.Fatalf("boosted velocity: got %v want 7.5", st.Agent.Velocity[0])
	}
	h.Move(0, 0)
	h.StepDuration(tuning.Ms(5000))
	if net := h.Agent().SpeedNet; net != 1 {
		t.Fatalf("boost must expire: net=%v", net)
	}
	if h.CountSignals(events.KindConsumableEaten) != 1 {
		t.Fatalf("expected one consumable-eaten signal")
	}
}

func TestClientSignals_ScopedToAgent(t *testing.T) {
	h := NewQuietHarness(t, noRisk)
	other := h.Join("other")
	h.SpawnSource("PLATE", h.Agent().Pos)
	h.Press()

	mine := h.ClientSignals(h.DefaultAgentID)
	var sawPickup, sawCarry bool
	for _, s := range mine {
		switch events.Kind(s.Kind) {
		case events.KindPickup:
			sawPickup = true
		case events.KindCarryUpdated:
			sawCarry = true
		}
	}
	if !sawPickup || !sawCarry {
		t.Fatalf("own client missed signals: %+v", mine)
	}
	for _, s := range h.ClientSignals(other) {
		if events.Kind(s.Kind) == events.KindPickup {
			t.Fatalf("other agent received a foreign pickup")
		}
	}
}
