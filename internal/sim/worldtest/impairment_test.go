package worldtest

import (
	"testing"
	"time"

	"dishrush.game/internal/sim/carry"
	"dishrush.game/internal/sim/effects"
	"dishrush.game/internal/sim/events"
	"dishrush.game/internal/sim/tuning"
	world "dishrush.game/internal/sim/world"
)

func fastSplatter(t *tuning.Tuning) {
	t.Stability.RiskPerItem = 0
	t.Impairment.ArmAfterMs = 200
	t.Impairment.ActiveForMs = 100
	t.Impairment.ModifierDurationMs = 1000
	t.Impairment.DisableDurationMs = 400
}

func TestSplatter_ImpairsAndDisables(t *testing.T) {
	h := NewQuietHarness(t, fastSplatter)
	at := h.Agent().Pos
	h.SpawnSource("BEER", at)

	h.StepUntil(20, func() bool { return h.CountSignals(events.KindSplatterStart) > 0 })
	if h.CountSignals(events.KindImpaired) != 1 {
		t.Fatalf("expected one contact, got %d", h.CountSignals(events.KindImpaired))
	}
	v := h.Agent()
	if v.SpeedNet != 0.5 {
		t.Fatalf("net multiplier: got %v want 0.5", v.SpeedNet)
	}
	if v.State != carry.StateDisabled {
		t.Fatalf("state: got %v want DISABLED", v.State)
	}

	h.Press()
	if r := h.LastResult(); r != carry.ResultRejectedDisabled {
		t.Fatalf("press while disabled: got %v", r)
	}

	// Step out of the splash so the next cycle cannot extend the window.
	h.SetAgentPos(at.Add(world.Vec2{5, 0}))
	h.StepDuration(400 * time.Millisecond)
	if h.Agent().State == carry.StateDisabled {
		t.Fatalf("disable window did not end")
	}
	if h.CountSignals(events.KindDisabledEnd) != 1 {
		t.Fatalf("expected disabled-end signal")
	}
}

func TestSplatter_SecondContactReplacesModifier(t *testing.T) {
	h := NewQuietHarness(t, fastSplatter)
	at := h.Agent().Pos
	h.SpawnSource("BEER", at)
	h.StepUntil(20, func() bool { return h.CountSignals(events.KindSplatterStart) > 0 })

	// Leave and re-enter the splash inside the same window.
	h.SetAgentPos(at.Add(world.Vec2{5, 0}))
	h.StepN(1)
	h.SetAgentPos(at)
	h.StepN(1)

	if n := h.CountSignals(events.KindImpaired); n != 2 {
		t.Fatalf("contacts: got %d want 2", n)
	}
	v := h.Agent()
	if v.SpeedNet != 0.5 {
		t.Fatalf("contacts must not compound: net=%v", v.SpeedNet)
	}
	// The later contact installed a fresh modifier.
	if m := v.Effects[effects.SlotExternalEffect]; m.Remaining <= 960*time.Millisecond {
		t.Fatalf("modifier not refreshed: %v", m.Remaining)
	}
}

func TestSplatter_OutsideWindowDoesNothing(t *testing.T) {
	h := NewQuietHarness(t, fastSplatter)
	h.SpawnSource("BEER", h.Agent().Pos)
	h.StepN(5)
	if h.CountSignals(events.KindImpaired) != 0 || h.Agent().SpeedNet != 1 {
		t.Fatalf("contact before trigger must be ignored")
	}
}

func TestSplatter_PausePolicy(t *testing.T) {
	cases := []struct {
		name  string
		pause bool
		want  bool
	}{
		{"paused while carrier disabled", true, false},
		{"keeps arming", false, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := NewQuietHarness(t, func(tn *tuning.Tuning) {
				fastSplatter(tn)
				tn.Impairment.PauseWhileCarrierDisabled = tc.pause
			})
			id := h.SpawnSource("BEER", world.Vec2{5, 5})
			h.StepN(5)
			armed, _ := h.W.DebugSource(id)
			h.W.DebugSetSourceAutonomy(id, false)
			h.StepN(20)

			got := h.CountSignals(events.KindSplatterStart) > 0
			if got != tc.want {
				t.Fatalf("splatter=%v want %v", got, tc.want)
			}
			if tc.pause {
				v, _ := h.W.DebugSource(id)
				if v.Arming != armed.Arming {
					t.Fatalf("paused timer moved or reset: %v -> %v", armed.Arming, v.Arming)
				}
				h.W.DebugSetSourceAutonomy(id, true)
				h.StepN(5)
				if h.CountSignals(events.KindSplatterStart) != 1 {
					t.Fatalf("timer must resume where it paused")
				}
			}
		})
	}
}

func TestSplatter_PickupClosesWindow(t *testing.T) {
	h := NewQuietHarness(t, func(tn *tuning.Tuning) {
		fastSplatter(tn)
		tn.Impairment.ActiveForMs = 1000
		tn.Impairment.SplatterRadius = 0.5
	})
	at := h.Agent().Pos
	id := h.SpawnSource("BEER", at.Add(world.Vec2{1, 0}))
	ctx, _ := h.W.DebugSourceContext(id)
	h.StepUntil(20, func() bool { return h.CountSignals(events.KindSplatterStart) > 0 })
	if h.CountSignals(events.KindImpaired) != 0 {
		t.Fatalf("agent outside the splash was impaired")
	}

	h.Press()
	if r := h.LastResult(); r != carry.ResultPickedUp {
		t.Fatalf("got %v want PICKED_UP", r)
	}
	if h.CountSignals(events.KindSplatterStop) != 1 {
		t.Fatalf("pickup must close the splatter window")
	}
	if ctx.Err() == nil {
		t.Fatalf("source context not cancelled")
	}
}

func TestIgnite_DeliveryResumesAfterWindow(t *testing.T) {
	h := NewQuietHarness(t, fastSplatter)
	sink := world.Vec2{0, 0}
	h.SetAgentPos(sink)
	h.SpawnSource("PLATE", sink)
	h.Press()
	h.Press()
	if h.Agent().State != carry.StateDelivering {
		t.Fatalf("expected delivering")
	}

	h.W.DebugIgnite(h.DefaultAgentID, 200*time.Millisecond)
	h.Release()
	v := h.Agent()
	if v.State != carry.StateDisabled || v.LastResult != carry.ResultRejectedDisabled {
		t.Fatalf("during disable: state=%v result=%v", v.State, v.LastResult)
	}
	if v.Velocity.Len() != 0 {
		t.Fatalf("cleaning agent moved: %v", v.Velocity)
	}
	h.StepDuration(200 * time.Millisecond)
	v = h.Agent()
	if v.State != carry.StateDelivering || len(v.Items) != 1 {
		t.Fatalf("after disable: state=%v items=%v", v.State, v.Items)
	}
	if v.CleanProgress < 200*time.Millisecond {
		t.Fatalf("cleaning paused during disable: %v", v.CleanProgress)
	}
	if h.CountSignals(events.KindCleanStop) != 0 {
		t.Fatalf("ignite stopped the cleaning")
	}

	h.StepDuration(tuning.Ms(h.W.Tuning().Delivery.CleanDurationMs))
	if h.CountSignals(events.KindDelivered) != 1 || h.Agent().State != carry.StateIdle {
		t.Fatalf("delivery did not complete: state=%v", h.Agent().State)
	}
}

func TestFreeze_PausesArmingWhileCornered(t *testing.T) {
	cases := []struct {
		name  string
		pause bool
	}{
		{"paused", true},
		{"running", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := NewQuietHarness(t, func(tn *tuning.Tuning) {
				fastSplatter(tn)
				tn.Spawning.FreezeRadius = 1.5
				tn.Impairment.PauseWhileCarrierDisabled = tc.pause
			})
			at := h.Agent().Pos
			id := h.SpawnSource("BEER", at.Add(world.Vec2{1, 0}))

			h.StepDuration(300 * time.Millisecond)
			sv, _ := h.W.DebugSource(id)
			splattered := h.CountSignals(events.KindSplatterStart) > 0
			if splattered == tc.pause {
				t.Fatalf("pause=%v: splattered=%v arming=%v", tc.pause, splattered, sv.Arming)
			}
			if !tc.pause {
				return
			}
			if sv.Autonomy || sv.Arming != 0 {
				t.Fatalf("cornered source: autonomy=%v arming=%v", sv.Autonomy, sv.Arming)
			}

			h.SetAgentPos(at.Add(world.Vec2{-6, 0}))
			h.StepN(1)
			if sv, _ := h.W.DebugSource(id); !sv.Autonomy {
				t.Fatalf("source stayed frozen after the agent left")
			}
			h.StepUntil(20, func() bool { return h.CountSignals(events.KindSplatterStart) > 0 })
		})
	}
}
