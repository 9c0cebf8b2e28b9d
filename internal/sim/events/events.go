// Package events carries the typed signals the simulation emits to its
// collaborators (renderer, journal, metrics).
package events

import (
	"encoding/json"
	"time"
)

type Kind string

const (
	KindCarryUpdated     Kind = "CARRY_UPDATED"
	KindPickup           Kind = "PICKUP"
	KindCleanStart       Kind = "CLEAN_START"
	KindCleanStop        Kind = "CLEAN_STOP"
	KindDelivered        Kind = "DELIVERED"
	KindStabilityCheck   Kind = "STABILITY_CHECK"
	KindCheckResolved    Kind = "CHECK_RESOLVED"
	KindStumble          Kind = "STUMBLE"
	KindStumbleRecovered Kind = "STUMBLE_RECOVERED"
	KindDisabledStart    Kind = "DISABLED_START"
	KindDisabledEnd      Kind = "DISABLED_END"
	KindConsumableEaten  Kind = "CONSUMABLE_EATEN"
	KindSplatterStart    Kind = "SPLATTER_START"
	KindSplatterStop     Kind = "SPLATTER_STOP"
	KindImpaired         Kind = "IMPAIRED"
	KindStance           Kind = "STANCE"
)

// Event is implemented by every payload below.
type Event interface {
	Kind() Kind
}

type CarryUpdated struct {
	Count int `json:"count"`
	Left  int `json:"left"`
	Right int `json:"right"`
}

type Pickup struct {
	SourceID string `json:"source_id"`
	Item     string `json:"item"`
}

type CleanStart struct {
	Items []string `json:"items"`
}

type CleanStop struct {
	Completed bool `json:"completed"`
}

type Delivered struct {
	Items []string `json:"items"`
}

type StabilityCheck struct {
	CheckID   uint64 `json:"check_id"`
	Count     int    `json:"count"`
	Threshold int    `json:"threshold"`
}

type CheckResolved struct {
	CheckID uint64 `json:"check_id"`
	OK      bool   `json:"ok"`
	Stale   bool   `json:"stale,omitempty"`
}

type Stumble struct {
	Dropped []string `json:"dropped"`
}

type StumbleRecovered struct{}

type DisabledStart struct {
	Duration time.Duration `json:"duration"`
	Extended bool          `json:"extended,omitempty"`
}

type DisabledEnd struct{}

type ConsumableEaten struct {
	ConsumableID string        `json:"consumable_id"`
	Item         string        `json:"item"`
	Boost        float64       `json:"boost"`
	Lifetime     time.Duration `json:"lifetime"`
}

type SplatterStart struct {
	SourceID string `json:"source_id"`
}

type SplatterStop struct {
	SourceID string `json:"source_id"`
}

type Impaired struct {
	SourceID   string        `json:"source_id"`
	TargetID   string        `json:"target_id"`
	Multiplier float64       `json:"multiplier"`
	Duration   time.Duration `json:"duration"`
}

// Stance drives the idle/moving tilt of the carried stacks.
type Stance struct {
	Moving bool `json:"moving"`
}

func (CarryUpdated) Kind() Kind     { return KindCarryUpdated }
func (Pickup) Kind() Kind           { return KindPickup }
func (CleanStart) Kind() Kind       { return KindCleanStart }
func (CleanStop) Kind() Kind        { return KindCleanStop }
func (Delivered) Kind() Kind        { return KindDelivered }
func (StabilityCheck) Kind() Kind   { return KindStabilityCheck }
func (CheckResolved) Kind() Kind    { return KindCheckResolved }
func (Stumble) Kind() Kind          { return KindStumble }
func (StumbleRecovered) Kind() Kind { return KindStumbleRecovered }
func (DisabledStart) Kind() Kind    { return KindDisabledStart }
func (DisabledEnd) Kind() Kind      { return KindDisabledEnd }
func (ConsumableEaten) Kind() Kind  { return KindConsumableEaten }
func (SplatterStart) Kind() Kind    { return KindSplatterStart }
func (SplatterStop) Kind() Kind     { return KindSplatterStop }
func (Impaired) Kind() Kind         { return KindImpaired }
func (Stance) Kind() Kind           { return KindStance }

// Record is the journaled form of an event.
type Record struct {
	Tick    uint64          `json:"tick"`
	Agent   string          `json:"agent_id,omitempty"`
	Kind    Kind            `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

func NewRecord(tick uint64, e Event) (Record, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return Record{}, err
	}
	return Record{Tick: tick, Kind: e.Kind(), Payload: b}, nil
}
