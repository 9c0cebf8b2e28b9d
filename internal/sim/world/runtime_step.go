package world

import (
	"time"
)

func (w *World) stepInternal(joins []JoinRequest, leaves []string, inputs []InputEnvelope) string {
	stepStart := time.Now()
	nowTick := w.tick.Load()
	dt := w.dt

	w.bus.SetTick(nowTick)
	for _, a := range w.agents {
		a.bus.SetTick(nowTick)
	}

	// Apply leaves and joins deterministically at tick boundary.
	recordedLeaves := make([]string, 0, len(leaves))
	for _, id := range leaves {
		if _, ok := w.agents[id]; ok {
			w.handleLeave(id)
			recordedLeaves = append(recordedLeaves, id)
		}
	}
	recordedJoins := make([]RecordedJoin, 0, len(joins))
	for _, req := range joins {
		resp, err := w.joinAgent(req)
		if req.Resp != nil {
			req.Resp <- resp
		}
		if err != nil {
			continue
		}
		recordedJoins = append(recordedJoins, RecordedJoin{AgentID: resp.Welcome.AgentID, Name: req.Name})
	}

	// Apply inputs in server receive order (the inbox order).
	recorded := make([]RecordedInput, 0, len(inputs))
	for _, env := range inputs {
		a := w.agents[env.AgentID]
		if a == nil {
			continue
		}
		recorded = append(recorded, RecordedInput{AgentID: env.AgentID, Input: env.Input})
		w.applyInput(a, env.Input)
	}

	// Systems: agents (disable/stumble/stability) -> movement -> delivery -> sources -> spawning.
	w.systemAgents(dt)
	w.systemMovement(dt)
	w.systemDelivery(dt)
	w.systemSources(dt)
	w.systemSpawning(dt)

	w.flushClients(nowTick)

	digest := w.stateDigest(nowTick)
	if w.tickLogger != nil {
		_ = w.tickLogger.WriteTick(TickLogEntry{Tick: nowTick, Joins: recordedJoins, Leaves: recordedLeaves, Inputs: recorded, Digest: digest})
	}

	stepMS := float64(time.Since(stepStart).Microseconds()) / 1000.0
	nextTick := w.tick.Add(1)
	m := w.buildMetrics(nextTick, stepMS)
	w.metrics.Store(m)
	for _, h := range w.stepHooks {
		h(m)
	}
	return digest
}
