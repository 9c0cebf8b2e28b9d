package log

import (
	"errors"
	"fmt"

	"dishrush.game/internal/sim/world"
)

var ErrDigestMismatch = errors.New("digest mismatch")

type ReplayOptions struct {
	// ToTick stops after this tick (inclusive). Zero replays everything.
	ToTick uint64
}

type ReplayResult struct {
	Checked  uint64
	LastTick uint64
}

// Replay feeds the ticks journal in worldDir back through w, which must be
// freshly built from the run's seed and tuning, and checks every digest.
func Replay(w *world.World, worldDir string, opts ReplayOptions) (ReplayResult, error) {
	var res ReplayResult
	errStop := errors.New("stop")
	err := ReadTicks(worldDir, func(entry world.TickLogEntry) error {
		if opts.ToTick != 0 && entry.Tick > opts.ToTick {
			return errStop
		}
		if entry.Tick != w.CurrentTick() {
			return fmt.Errorf("tick mismatch: want=%d got=%d", w.CurrentTick(), entry.Tick)
		}

		joins := make([]world.JoinRequest, 0, len(entry.Joins))
		for _, j := range entry.Joins {
			joins = append(joins, world.JoinRequest{Name: j.Name})
		}
		inputs := make([]world.InputEnvelope, 0, len(entry.Inputs))
		for _, in := range entry.Inputs {
			inputs = append(inputs, world.InputEnvelope{AgentID: in.AgentID, Input: in.Input})
		}

		tick, digest := w.StepOnce(joins, entry.Leaves, inputs)
		if tick != entry.Tick {
			return fmt.Errorf("internal tick mismatch: stepped=%d entry=%d", tick, entry.Tick)
		}
		res.Checked++
		res.LastTick = tick
		if digest != entry.Digest {
			return fmt.Errorf("%w at tick %d: got=%s want=%s", ErrDigestMismatch, tick, digest, entry.Digest)
		}
		return nil
	})
	if errors.Is(err, errStop) {
		err = nil
	}
	return res, err
}
