package world

import (
	"encoding/json"
	"sort"

	"dishrush.game/internal/protocol"
	"dishrush.game/internal/sim/carry"
	"dishrush.game/internal/sim/effects"
	"dishrush.game/internal/sim/tuning"
)

// flushClients sends this tick's signals followed by one STATE per client.
func (w *World) flushClients(nowTick uint64) {
	sigs := w.pending
	w.pending = w.pending[:0]

	for _, id := range w.sortedAgentIDs() {
		cl := w.clients[id]
		if cl == nil {
			continue
		}
		if cl.Signals {
			for _, s := range sigs {
				if s.AgentID != "" && s.AgentID != id {
					continue
				}
				b, err := json.Marshal(signalMsg(s))
				if err != nil {
					continue
				}
				trySend(cl.Out, b)
			}
		}
		b, err := json.Marshal(w.buildState(w.agents[id], nowTick))
		if err != nil {
			continue
		}
		sendLatest(cl.Out, b)
	}
}

func signalMsg(s signal) protocol.SignalMsg {
	payload, _ := json.Marshal(s.Event)
	return protocol.SignalMsg{
		Type:            protocol.TypeSignal,
		ProtocolVersion: protocol.Version,
		Tick:            s.Tick,
		Kind:            string(s.Event.Kind()),
		Payload:         payload,
	}
}

func (w *World) buildState(a *Agent, nowTick uint64) protocol.StateMsg {
	msg := protocol.StateMsg{
		Type:            protocol.TypeState,
		ProtocolVersion: protocol.Version,
		Tick:            nowTick,
		Agent:           w.agentState(a),
		Sink:            protocol.EntityState{ID: w.sink.ID, Pos: vecArr(w.sink.Pos)},
		AckSeq:          a.lastSeq,
	}
	if a.lastResult != 0 {
		msg.LastResult = a.lastResult.String()
	}
	for _, id := range w.sortedSourceIDs() {
		s := w.sources[id]
		es := protocol.EntityState{ID: s.ID, Item: s.Item, Pos: vecArr(s.Pos), Autonomy: s.autonomy}
		if s.pulse != nil {
			es.Splatter = s.pulse.Active()
			es.ArmingMs = s.pulse.Arming().Milliseconds()
		}
		msg.Sources = append(msg.Sources, es)
	}
	for _, id := range w.sortedConsumableIDs() {
		c := w.consumables[id]
		msg.Consumables = append(msg.Consumables, protocol.EntityState{ID: c.ID, Item: c.Item, Pos: vecArr(c.Pos)})
	}
	return msg
}

func (w *World) agentState(a *Agent) protocol.AgentState {
	left, right := 0, 0
	items := a.carry.Items()
	held := make([]string, 0, len(items))
	for _, it := range items {
		held = append(held, string(it))
	}
	for _, e := range a.carry.Entries() {
		if e.Side == carry.SideRight {
			right++
		} else {
			left++
		}
	}
	st := protocol.AgentState{
		ID:              a.ID,
		Pos:             vecArr(a.Pos),
		Velocity:        vecArr(a.move.Velocity()),
		Yaw:             a.move.Yaw(),
		State:           a.carry.State().String(),
		Carry:           held,
		Left:            left,
		Right:           right,
		SpeedMultiplier: a.effects.Net(),
		DisabledMs:      a.carry.DisabledRemaining().Milliseconds(),
		Stumbling:       a.carry.Stumbling(),
		PendingChecks:   a.carry.PendingChecks(),
		Moving:          a.moving,
	}
	if a.carry.Delivering() {
		if clean := tuning.Ms(w.tune.Delivery.CleanDurationMs); clean > 0 {
			st.CleanProgress = float64(a.cleanProgress) / float64(clean)
		}
	}
	snap := a.effects.Snapshot()
	for _, slot := range sortedSlots(snap) {
		m := snap[slot]
		st.Effects = append(st.Effects, protocol.EffectState{
			Slot:        string(slot),
			Magnitude:   m.Magnitude,
			RemainingMs: m.Remaining.Milliseconds(),
		})
	}
	return st
}

func sortedSlots(snap map[effects.Slot]effects.Modifier) []effects.Slot {
	out := make([]effects.Slot, 0, len(snap))
	for slot := range snap {
		out = append(out, slot)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func vecArr(v Vec2) [2]float64 { return [2]float64{v.X(), v.Y()} }
