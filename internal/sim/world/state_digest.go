package world

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"hash"
	"math"
)

// stateDigest hashes everything that influences future ticks so that two
// worlds fed the same inputs can be compared tick by tick.
func (w *World) stateDigest(nowTick uint64) string {
	h := sha256.New()
	var tmp [8]byte

	digestWriteU64(h, &tmp, nowTick)
	digestWriteU64(h, &tmp, uint64(w.sourceTimer))
	digestWriteU64(h, &tmp, uint64(w.consumableTimer))

	for _, id := range w.sortedAgentIDs() {
		a := w.agents[id]
		h.Write([]byte(a.ID))
		digestWriteVec(h, &tmp, a.Pos)
		digestWriteF64(h, &tmp, a.move.Yaw())
		digestWriteVec(h, &tmp, a.move.Intent())
		h.Write([]byte(a.carry.State().String()))
		for _, e := range a.carry.Entries() {
			h.Write([]byte(e.Item))
			h.Write([]byte{byte(e.Side)})
		}
		digestWriteU64(h, &tmp, uint64(a.carry.Monitor().Accumulated()))
		digestWriteU64(h, &tmp, uint64(a.carry.DisabledRemaining()))
		h.Write([]byte{boolByte(a.carry.Stumbling())})
		digestWriteU64(h, &tmp, uint64(a.cleanProgress))
		for _, id := range a.carry.PendingChecks() {
			digestWriteU64(h, &tmp, id)
		}
		snap := a.effects.Snapshot()
		for _, slot := range sortedSlots(snap) {
			m := snap[slot]
			h.Write([]byte(slot))
			digestWriteF64(h, &tmp, m.Magnitude)
			digestWriteU64(h, &tmp, uint64(m.Remaining))
		}
	}
	for _, id := range w.sortedSourceIDs() {
		s := w.sources[id]
		h.Write([]byte(s.ID))
		h.Write([]byte(s.Item))
		digestWriteVec(h, &tmp, s.Pos)
		h.Write([]byte{boolByte(s.autonomy)})
		if s.pulse != nil {
			digestWriteU64(h, &tmp, uint64(s.pulse.Arming()))
			digestWriteU64(h, &tmp, uint64(s.pulse.Window()))
		}
	}
	for _, id := range w.sortedConsumableIDs() {
		c := w.consumables[id]
		h.Write([]byte(c.ID))
		h.Write([]byte(c.Item))
		digestWriteVec(h, &tmp, c.Pos)
	}
	return hex.EncodeToString(h.Sum(nil))
}

func digestWriteU64(h hash.Hash, tmp *[8]byte, v uint64) {
	binary.LittleEndian.PutUint64(tmp[:], v)
	h.Write(tmp[:])
}

func digestWriteF64(h hash.Hash, tmp *[8]byte, v float64) {
	digestWriteU64(h, tmp, math.Float64bits(v))
}

func digestWriteVec(h hash.Hash, tmp *[8]byte, v Vec2) {
	digestWriteF64(h, tmp, v.X())
	digestWriteF64(h, tmp, v.Y())
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
