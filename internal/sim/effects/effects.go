package effects

import (
	"sort"
	"time"
)

// Slot names an exclusive position in a Stack. Writing a slot replaces
// whatever it held before; slots never stack with themselves.
type Slot string

const (
	SlotConsumableBoost Slot = "consumable-boost"
	SlotExternalEffect  Slot = "external-effect"
)

const Neutral = 1.0

// Modifier is a scalar multiplier with a remaining lifetime.
type Modifier struct {
	Magnitude float64       `json:"magnitude"`
	Remaining time.Duration `json:"remaining"`
}

func (m Modifier) Active() bool { return m.Remaining > 0 }

// Value is the multiplier the modifier currently contributes.
func (m Modifier) Value() float64 {
	if !m.Active() {
		return Neutral
	}
	return m.Magnitude
}

// Tick counts the modifier down. Once the remaining time reaches zero the
// magnitude is reset to neutral and stays inert until the slot is written again.
func (m *Modifier) Tick(dt time.Duration) {
	if m.Remaining <= 0 {
		m.Remaining = 0
		m.Magnitude = Neutral
		return
	}
	m.Remaining -= dt
	if m.Remaining <= 0 {
		m.Remaining = 0
		m.Magnitude = Neutral
	}
}

// Stack composes the modifiers of all slots into one net multiplier.
// It is owned by a single agent and mutated only from the world loop.
type Stack struct {
	slots map[Slot]*Modifier
}

func NewStack() *Stack {
	return &Stack{slots: map[Slot]*Modifier{}}
}

// Set installs a fresh value in slot, overriding any previous one.
// A non-positive duration leaves the slot neutral.
func (s *Stack) Set(slot Slot, magnitude float64, d time.Duration) {
	m := s.slots[slot]
	if m == nil {
		m = &Modifier{}
		s.slots[slot] = m
	}
	if d <= 0 {
		m.Magnitude = Neutral
		m.Remaining = 0
		return
	}
	m.Magnitude = magnitude
	m.Remaining = d
}

func (s *Stack) Get(slot Slot) Modifier {
	if m := s.slots[slot]; m != nil {
		return *m
	}
	return Modifier{Magnitude: Neutral}
}

func (s *Stack) Active(slot Slot) bool {
	return s.Get(slot).Active()
}

// Net is the product of all active magnitudes. Slots are visited in name
// order so the float product is identical across runs.
func (s *Stack) Net() float64 {
	net := Neutral
	for _, slot := range s.sortedSlots() {
		net *= s.slots[slot].Value()
	}
	return net
}

// Tick decays every slot, whether or not the owner moved this tick.
func (s *Stack) Tick(dt time.Duration) {
	for _, m := range s.slots {
		m.Tick(dt)
	}
}

// Snapshot returns the active slots only.
func (s *Stack) Snapshot() map[Slot]Modifier {
	out := map[Slot]Modifier{}
	for slot, m := range s.slots {
		if m.Active() {
			out[slot] = *m
		}
	}
	return out
}

func (s *Stack) sortedSlots() []Slot {
	out := make([]Slot, 0, len(s.slots))
	for slot := range s.slots {
		out = append(out, slot)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
