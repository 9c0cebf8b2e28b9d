package worldtest

import (
	"testing"

	"dishrush.game/internal/sim/carry"
	"dishrush.game/internal/sim/events"
	"dishrush.game/internal/sim/tuning"
	world "dishrush.game/internal/sim/world"
)

// alwaysCheck begins a stability check every 100ms while carrying.
func alwaysCheck(t *tuning.Tuning) {
	t.Stability.RiskPerItem = 100
	t.Stability.CheckRateMs = 100
}

func TestStability_FailedCheckStumbles(t *testing.T) {
	h := NewQuietHarness(t, alwaysCheck)
	at := h.Agent().Pos
	h.SpawnSource("PLATE", at)
	h.Press()

	h.StepUntil(20, func() bool { return len(h.Agent().PendingChecks) > 0 })
	id := h.Agent().PendingChecks[0]

	st := h.CheckResult(id, false)
	if r := h.LastResult(); r != carry.ResultStumbled {
		t.Fatalf("got %v want STUMBLED", r)
	}
	if st.Agent.State != "IDLE" || len(st.Agent.Carry) != 0 || !st.Agent.Stumbling {
		t.Fatalf("after stumble: %+v", st.Agent)
	}
	ev, ok := h.LastSignal(events.KindStumble)
	if !ok || len(ev.(events.Stumble).Dropped) != 1 {
		t.Fatalf("stumble signal: %v %v", ev, ok)
	}
	if len(h.Agent().PendingChecks) != 0 {
		t.Fatalf("stumble must invalidate outstanding checks")
	}

	// Pickups are refused (not queued) during recovery.
	h.SpawnSource("BOWL", at)
	h.Press()
	if r := h.LastResult(); r != carry.ResultRejectedStumbling {
		t.Fatalf("got %v want REJECTED_STUMBLING", r)
	}
	h.StepDuration(tuning.Ms(h.W.Tuning().Stability.StumbleRecoveryMs))
	h.Press()
	if r := h.LastResult(); r != carry.ResultPickedUp {
		t.Fatalf("after recovery: got %v want PICKED_UP", r)
	}
}

func TestStability_PassedCheckKeepsLoad(t *testing.T) {
	h := NewQuietHarness(t, alwaysCheck)
	h.SpawnSource("PLATE", h.Agent().Pos)
	h.Press()
	h.StepUntil(20, func() bool { return len(h.Agent().PendingChecks) > 0 })
	id := h.Agent().PendingChecks[0]

	h.CheckResult(id, true)
	if r := h.LastResult(); r != carry.ResultPassed {
		t.Fatalf("got %v want PASSED", r)
	}
	if len(h.Agent().Items) != 1 || h.CountSignals(events.KindStumble) != 0 {
		t.Fatalf("passing a check must not drop anything")
	}
}

func TestStability_OutcomeAfterDeliveryIsStale(t *testing.T) {
	h := NewQuietHarness(t, alwaysCheck)
	sink := world.Vec2{0, 0}
	h.SetAgentPos(sink)
	h.SpawnSource("PLATE", sink)
	h.Press()
	h.StepUntil(20, func() bool { return len(h.Agent().PendingChecks) > 0 })
	id := h.Agent().PendingChecks[0]

	h.Press()
	h.StepUntil(200, func() bool { return h.Agent().State == carry.StateIdle })
	if h.CountSignals(events.KindDelivered) != 1 {
		t.Fatalf("expected delivery")
	}

	h.CheckResult(id, false)
	if r := h.LastResult(); r != carry.ResultStale {
		t.Fatalf("got %v want STALE", r)
	}
	if h.CountSignals(events.KindStumble) != 0 {
		t.Fatalf("stale failure must not stumble")
	}
}

func TestStability_EmptyInventoryNeverChecks(t *testing.T) {
	h := NewQuietHarness(t, alwaysCheck)
	h.StepN(50)
	if n := h.CountSignals(events.KindStabilityCheck); n != 0 {
		t.Fatalf("checks while empty: %d", n)
	}
}

func TestAutoResolve_TimeoutFailsOrPasses(t *testing.T) {
	cases := []struct {
		name        string
		passPercent int
		wantStumble bool
	}{
		{"always fail", 0, true},
		{"always pass", 100, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := NewQuietHarness(t, func(tn *tuning.Tuning) {
				alwaysCheck(tn)
				tn.Stability.AutoResolveChecks = true
				tn.Stability.CheckTimeoutMs = 100
				tn.Stability.AutoPassPercent = tc.passPercent
			})
			h.SpawnSource("PLATE", h.Agent().Pos)
			h.Press()
			h.StepN(40)

			stumbled := h.CountSignals(events.KindStumble) > 0
			if stumbled != tc.wantStumble {
				t.Fatalf("stumbled=%v want %v", stumbled, tc.wantStumble)
			}
			m := h.W.Metrics()
			if tc.wantStumble && m.Totals.ChecksFailed == 0 {
				t.Fatalf("expected a failed check: %+v", m.Totals)
			}
			if !tc.wantStumble && m.Totals.ChecksPassed == 0 {
				t.Fatalf("expected passed checks: %+v", m.Totals)
			}
		})
	}
}
