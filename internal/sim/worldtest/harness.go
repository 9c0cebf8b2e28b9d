package worldtest

import (
	"encoding/json"
	"testing"
	"time"

	"dishrush.game/internal/protocol"
	"dishrush.game/internal/sim/carry"
	"dishrush.game/internal/sim/catalogs"
	"dishrush.game/internal/sim/events"
	"dishrush.game/internal/sim/tuning"
	world "dishrush.game/internal/sim/world"
)

// Harness is a small black-box test helper for driving a world via exported APIs:
// - Join() issues JoinRequest via StepOnce()
// - Step()/StepFor() issue INPUT via StepOnce()
// - Per-agent Out channels carry STATE and SIGNAL JSON
// - Debug* helpers provide deterministic preconditions
//
// It intentionally avoids touching world internals so tests can live outside the world package.
type Harness struct {
	T    *testing.T
	Cats *catalogs.Catalogs
	W    *world.World

	DefaultAgentID string

	// Signals holds everything the world emitted, in order.
	Signals []Signal

	sessions map[string]*session
	seq      uint64
}

type Signal struct {
	AgentID string
	Tick    uint64
	Event   events.Event
}

type session struct {
	AgentID   string
	Out       chan []byte
	lastState protocol.StateMsg
	signals   []protocol.SignalMsg
}

// QuietTuning is the default tuning with spawning, freezing and auto
// resolving turned off and a tick of exactly 20ms.
func QuietTuning() tuning.Tuning {
	t := tuning.Defaults()
	t.TickRateHz = 50
	t.Spawning.MaxSources = 0
	t.Spawning.MaxConsumables = 0
	t.Spawning.FreezeRadius = 0
	t.Stability.AutoResolveChecks = false
	return t
}

func LoadCatalogs(t *testing.T) *catalogs.Catalogs {
	t.Helper()
	cats, err := catalogs.Load("../../../configs")
	if err != nil {
		t.Fatalf("load catalogs: %v", err)
	}
	return cats
}

func NewHarness(t *testing.T, cfg world.WorldConfig, cats *catalogs.Catalogs, agentName string) *Harness {
	t.Helper()

	w, err := world.New(cfg, cats)
	if err != nil {
		t.Fatalf("world.New: %v", err)
	}

	h := &Harness{
		T:        t,
		Cats:     cats,
		W:        w,
		sessions: map[string]*session{},
	}
	w.OnSignal(func(agentID string, tick uint64, e events.Event) {
		h.Signals = append(h.Signals, Signal{AgentID: agentID, Tick: tick, Event: e})
	})
	h.DefaultAgentID = h.Join(agentName)
	return h
}

// NewQuietHarness builds a world from QuietTuning with tweak applied.
func NewQuietHarness(t *testing.T, tweak func(*tuning.Tuning)) *Harness {
	t.Helper()
	tn := QuietTuning()
	if tweak != nil {
		tweak(&tn)
	}
	return NewHarness(t, world.WorldConfig{ID: "test", Seed: 42, Tuning: tn}, LoadCatalogs(t), "player")
}

func (h *Harness) Join(agentName string) string {
	h.T.Helper()

	out := make(chan []byte, 256)
	resp := make(chan world.JoinResponse, 1)
	_, _ = h.W.StepOnce([]world.JoinRequest{{
		Name:    agentName,
		Signals: true,
		Out:     out,
		Resp:    resp,
	}}, nil, nil)
	jr := <-resp
	if jr.Welcome.AgentID == "" {
		h.T.Fatalf("join returned empty agent id")
	}
	s := &session{AgentID: jr.Welcome.AgentID, Out: out}
	h.sessions[s.AgentID] = s
	h.drainAll()
	return s.AgentID
}

func (h *Harness) LastState() protocol.StateMsg {
	return h.LastStateFor(h.DefaultAgentID)
}

func (h *Harness) LastStateFor(agentID string) protocol.StateMsg {
	h.T.Helper()
	s := h.sessions[agentID]
	if s == nil {
		h.T.Fatalf("unknown agent id: %q", agentID)
	}
	return s.lastState
}

// ClientSignals are the SIGNAL messages the agent's client received.
func (h *Harness) ClientSignals(agentID string) []protocol.SignalMsg {
	h.T.Helper()
	s := h.sessions[agentID]
	if s == nil {
		h.T.Fatalf("unknown agent id: %q", agentID)
	}
	return s.signals
}

func (h *Harness) Step(inputs ...protocol.InputMsg) protocol.StateMsg {
	return h.StepFor(h.DefaultAgentID, inputs...)
}

func (h *Harness) StepFor(agentID string, inputs ...protocol.InputMsg) protocol.StateMsg {
	h.T.Helper()
	envs := make([]world.InputEnvelope, 0, len(inputs))
	for _, in := range inputs {
		h.seq++
		in.Type = protocol.TypeInput
		in.ProtocolVersion = protocol.Version
		in.Seq = h.seq
		envs = append(envs, world.InputEnvelope{AgentID: agentID, Input: in})
	}
	_, _ = h.W.StepOnce(nil, nil, envs)
	h.drainAll()
	return h.LastStateFor(agentID)
}

// StepN advances n ticks without input.
func (h *Harness) StepN(n int) protocol.StateMsg {
	h.T.Helper()
	for i := 0; i < n; i++ {
		_, _ = h.W.StepOnce(nil, nil, nil)
		h.drainAll()
	}
	return h.LastState()
}

// StepDuration advances enough ticks to cover d.
func (h *Harness) StepDuration(d time.Duration) protocol.StateMsg {
	h.T.Helper()
	dt := h.W.Tuning().TickDuration()
	n := int((d + dt - 1) / dt)
	return h.StepN(n)
}

// StepUntil steps until cond holds, failing after max ticks.
func (h *Harness) StepUntil(max int, cond func() bool) {
	h.T.Helper()
	for i := 0; i < max; i++ {
		if cond() {
			return
		}
		h.StepN(1)
	}
	if !cond() {
		h.T.Fatalf("condition not met after %d ticks", max)
	}
}

func (h *Harness) Move(x, y float64) protocol.StateMsg {
	return h.Step(protocol.InputMsg{Kind: protocol.InputMove, X: x, Y: y})
}

func (h *Harness) Press() protocol.StateMsg {
	return h.Step(protocol.InputMsg{Kind: protocol.InputInteractPress})
}

func (h *Harness) Release() protocol.StateMsg {
	return h.Step(protocol.InputMsg{Kind: protocol.InputInteractRelease})
}

func (h *Harness) CheckResult(id uint64, ok bool) protocol.StateMsg {
	return h.Step(protocol.InputMsg{Kind: protocol.InputCheckResult, CheckID: id, OK: ok})
}

func (h *Harness) Agent() world.AgentView {
	h.T.Helper()
	v, ok := h.W.DebugAgent(h.DefaultAgentID)
	if !ok {
		h.T.Fatalf("DebugAgent: unknown agent %q", h.DefaultAgentID)
	}
	return v
}

func (h *Harness) LastResult() carry.Result { return h.Agent().LastResult }

func (h *Harness) SetAgentPos(pos world.Vec2) {
	h.T.Helper()
	if ok := h.W.DebugSetAgentPos(h.DefaultAgentID, pos); !ok {
		h.T.Fatalf("DebugSetAgentPos returned false")
	}
}

func (h *Harness) SpawnSource(item string, pos world.Vec2) string {
	h.T.Helper()
	id, err := h.W.DebugSpawnSource(item, pos)
	if err != nil {
		h.T.Fatalf("DebugSpawnSource: %v", err)
	}
	return id
}

func (h *Harness) SpawnConsumable(item string, pos world.Vec2) string {
	h.T.Helper()
	id, err := h.W.DebugSpawnConsumable(item, pos)
	if err != nil {
		h.T.Fatalf("DebugSpawnConsumable: %v", err)
	}
	return id
}

func (h *Harness) CountSignals(kind events.Kind) int {
	n := 0
	for _, s := range h.Signals {
		if s.Event.Kind() == kind {
			n++
		}
	}
	return n
}

// LastSignal returns the most recent event of kind, if any.
func (h *Harness) LastSignal(kind events.Kind) (events.Event, bool) {
	for i := len(h.Signals) - 1; i >= 0; i-- {
		if h.Signals[i].Event.Kind() == kind {
			return h.Signals[i].Event, true
		}
	}
	return nil, false
}

func (h *Harness) ClearSignals() { h.Signals = h.Signals[:0] }

func (h *Harness) drainAll() {
	h.T.Helper()
	for _, s := range h.sessions {
		h.drainOne(s)
	}
}

func (h *Harness) drainOne(s *session) {
	h.T.Helper()
	for {
		select {
		case b := <-s.Out:
			h.decode(s, b)
			continue
		default:
		}
		break
	}
}

func (h *Harness) decode(s *session, b []byte) {
	h.T.Helper()
	base, err := protocol.DecodeBase(b)
	if err != nil {
		h.T.Fatalf("decode base: %v", err)
	}
	switch base.Type {
	case protocol.TypeState:
		var st protocol.StateMsg
		if err := json.Unmarshal(b, &st); err != nil {
			h.T.Fatalf("unmarshal STATE: %v", err)
		}
		s.lastState = st
	case protocol.TypeSignal:
		var sig protocol.SignalMsg
		if err := json.Unmarshal(b, &sig); err != nil {
			h.T.Fatalf("unmarshal SIGNAL: %v", err)
		}
		s.signals = append(s.signals, sig)
	}
}
