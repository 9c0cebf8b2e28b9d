package world

import (
	"context"
	"time"
)

func (w *World) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.dt)
	defer ticker.Stop()

	var pendingInputs []InputEnvelope
	var pendingJoins []JoinRequest
	var pendingLeaves []string

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stop:
			return nil
		case req := <-w.join:
			pendingJoins = append(pendingJoins, req)
		case id := <-w.leave:
			pendingLeaves = append(pendingLeaves, id)
		case env := <-w.inbox:
			pendingInputs = append(pendingInputs, env)
		case <-ticker.C:
			w.stepInternal(pendingJoins, pendingLeaves, pendingInputs)
			pendingJoins = pendingJoins[:0]
			pendingLeaves = pendingLeaves[:0]
			pendingInputs = pendingInputs[:0]
		}
	}
}

// StepOnce advances exactly one tick without the ticker. It returns the tick
// that was simulated and its state digest. Not safe to call concurrently
// with Run.
func (w *World) StepOnce(joins []JoinRequest, leaves []string, inputs []InputEnvelope) (tick uint64, digest string) {
	tick = w.tick.Load()
	digest = w.stepInternal(joins, leaves, inputs)
	return tick, digest
}
