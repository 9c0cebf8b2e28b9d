package protocol

import "encoding/json"

// Input kinds carried by INPUT messages.
const (
	InputMove            = "MOVE"
	InputInteractPress   = "INTERACT_PRESS"
	InputInteractRelease = "INTERACT_RELEASE"
	InputCheckResult     = "CHECK_RESULT"
)

// HELLO (client -> server)
type HelloMsg struct {
	Type            string            `json:"type"`
	ProtocolVersion string            `json:"protocol_version"`
	ClientName      string            `json:"client_name"`
	Capabilities    HelloCapabilities `json:"capabilities"`
}

type HelloCapabilities struct {
	MaxQueue int  `json:"max_queue,omitempty"`
	Signals  bool `json:"signals,omitempty"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string         `json:"type"`
	ProtocolVersion string         `json:"protocol_version"`
	SessionID       string         `json:"session_id"`
	AgentID         string         `json:"agent_id"`
	WorldID         string         `json:"world_id,omitempty"`
	WorldParams     WorldParams    `json:"world_params"`
	Catalogs        CatalogDigests `json:"catalogs"`
}

type WorldParams struct {
	TickRateHz      int        `json:"tick_rate_hz"`
	ArenaRadius     float64    `json:"arena_radius"`
	DetectionRadius float64    `json:"detection_radius"`
	SinkPos         [2]float64 `json:"sink_pos"`
	Seed            int64      `json:"seed"`
}

type CatalogDigests struct {
	ItemPalette  DigestRef `json:"item_palette"`
	ItemsDigest  string    `json:"items_digest"`
	TuningDigest string    `json:"tuning_digest,omitempty"`
}

type DigestRef struct {
	Digest string   `json:"digest"`
	Count  int      `json:"count"`
	IDs    []string `json:"ids,omitempty"`
}

// INPUT (client -> server). X/Y carry the MOVE direction; CheckID/OK carry a
// CHECK_RESULT outcome.
type InputMsg struct {
	Type            string  `json:"type"`
	ProtocolVersion string  `json:"protocol_version"`
	Seq             uint64  `json:"seq,omitempty"`
	Kind            string  `json:"kind"`
	X               float64 `json:"x,omitempty"`
	Y               float64 `json:"y,omitempty"`
	CheckID         uint64  `json:"check_id,omitempty"`
	OK              bool    `json:"ok,omitempty"`
}

// STATE (server -> client), one per tick.
type StateMsg struct {
	Type            string        `json:"type"`
	ProtocolVersion string        `json:"protocol_version"`
	Tick            uint64        `json:"tick"`
	Agent           AgentState    `json:"agent"`
	Sink            EntityState   `json:"sink"`
	Sources         []EntityState `json:"sources,omitempty"`
	Consumables     []EntityState `json:"consumables,omitempty"`
	LastResult      string        `json:"last_result,omitempty"`
	AckSeq          uint64        `json:"ack_seq,omitempty"`
}

type AgentState struct {
	ID              string        `json:"id"`
	Pos             [2]float64    `json:"pos"`
	Velocity        [2]float64    `json:"velocity"`
	Yaw             float64       `json:"yaw"`
	State           string        `json:"state"`
	Carry           []string      `json:"carry,omitempty"`
	Left            int           `json:"left"`
	Right           int           `json:"right"`
	SpeedMultiplier float64       `json:"speed_multiplier"`
	Effects         []EffectState `json:"effects,omitempty"`
	DisabledMs      int64         `json:"disabled_ms,omitempty"`
	Stumbling       bool          `json:"stumbling,omitempty"`
	PendingChecks   []uint64      `json:"pending_checks,omitempty"`
	CleanProgress   float64       `json:"clean_progress,omitempty"`
	Moving          bool          `json:"moving"`
}

type EffectState struct {
	Slot        string  `json:"slot"`
	Magnitude   float64 `json:"magnitude"`
	RemainingMs int64   `json:"remaining_ms"`
}

type EntityState struct {
	ID       string     `json:"id"`
	Item     string     `json:"item,omitempty"`
	Pos      [2]float64 `json:"pos"`
	Splatter bool       `json:"splatter,omitempty"`
	Autonomy bool       `json:"autonomy,omitempty"`
	ArmingMs int64      `json:"arming_ms,omitempty"`
}

// SIGNAL (server -> client): one gameplay event.
type SignalMsg struct {
	Type            string          `json:"type"`
	ProtocolVersion string          `json:"protocol_version"`
	Tick            uint64          `json:"tick"`
	Kind            string          `json:"kind"`
	Payload         json.RawMessage `json:"payload,omitempty"`
}

// ERROR (server -> client)
type ErrorMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Code            string `json:"code"`
	Message         string `json:"message,omitempty"`
}
