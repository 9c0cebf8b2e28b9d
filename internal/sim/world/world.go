package world

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"sync/atomic"
	"time"

	"github.com/go-gl/mathgl/mgl64"

	"dishrush.game/internal/protocol"
	"dishrush.game/internal/sim/catalogs"
	"dishrush.game/internal/sim/events"
	"dishrush.game/internal/sim/impairment"
	"dishrush.game/internal/sim/tuning"
)

type Vec2 = mgl64.Vec2

type WorldConfig struct {
	ID     string
	Seed   int64
	Tuning tuning.Tuning
}

type JoinRequest struct {
	Name      string
	SessionID string
	Signals   bool
	Out       chan []byte
	Resp      chan JoinResponse
}

type JoinResponse struct {
	Welcome protocol.WelcomeMsg
}

type InputEnvelope struct {
	AgentID string
	Input   protocol.InputMsg
}

type RecordedJoin struct {
	AgentID string `json:"agent_id"`
	Name    string `json:"name"`
}

type RecordedInput struct {
	AgentID string            `json:"agent_id"`
	Input   protocol.InputMsg `json:"input"`
}

type TickLogger interface {
	WriteTick(entry TickLogEntry) error
}

type TickLogEntry struct {
	Tick   uint64          `json:"tick"`
	Joins  []RecordedJoin  `json:"joins,omitempty"`
	Leaves []string        `json:"leaves,omitempty"`
	Inputs []RecordedInput `json:"inputs,omitempty"`
	Digest string          `json:"digest"`
}

// SignalHandler observes every gameplay signal. agentID is empty for signals
// that belong to the world rather than to one agent (splatter start/stop).
type SignalHandler func(agentID string, tick uint64, e events.Event)

type clientState struct {
	Out     chan []byte
	Signals bool
}

type signal struct {
	AgentID string
	Tick    uint64
	Event   events.Event
}

// World is a single-threaded authoritative simulation.
// All state must be accessed only from the world loop goroutine.
type World struct {
	cfg      WorldConfig
	tune     tuning.Tuning
	catalogs *catalogs.Catalogs
	dt       time.Duration
	rng      *rand.Rand
	pulseCfg impairment.Config

	tick atomic.Uint64

	bus *events.Bus

	agents      map[string]*Agent
	clients     map[string]*clientState
	sources     map[string]*Source
	consumables map[string]*Consumable
	sink        Sink

	inbox chan InputEnvelope
	join  chan JoinRequest
	leave chan string
	stop  chan struct{}

	nextAgentNum      uint64
	nextSourceNum     uint64
	nextConsumableNum uint64
	sourceTimer       time.Duration
	consumableTimer   time.Duration

	// Optional logger (may be nil). Implemented in internal/persistence/log.
	tickLogger TickLogger

	signalHandlers []SignalHandler
	stepHooks      []func(WorldMetrics)
	pending        []signal

	tuningDigest string
	totals       Totals
	metrics      atomic.Value
}

func New(cfg WorldConfig, cats *catalogs.Catalogs) (*World, error) {
	if cats == nil {
		return nil, errors.New("world: nil catalogs")
	}
	if len(cats.Items.Dishes()) == 0 {
		return nil, errors.New("world: catalog has no dishes")
	}
	if err := cfg.Tuning.Validate(); err != nil {
		return nil, fmt.Errorf("world: %w", err)
	}
	if cfg.ID == "" {
		cfg.ID = "world_1"
	}
	t := cfg.Tuning
	pulseCfg := impairment.Config{
		ArmAfter:                  tuning.Ms(t.Impairment.ArmAfterMs),
		ActiveFor:                 tuning.Ms(t.Impairment.ActiveForMs),
		Multiplier:                t.Impairment.SpeedMultiplier,
		ModifierDuration:          tuning.Ms(t.Impairment.ModifierDurationMs),
		DisableDuration:           tuning.Ms(t.Impairment.DisableDurationMs),
		PauseWhileCarrierDisabled: t.Impairment.PauseWhileCarrierDisabled,
	}
	if err := pulseCfg.Validate(); err != nil {
		return nil, fmt.Errorf("world: %w", err)
	}
	tuneJSON, err := json.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("world: %w", err)
	}
	sum := sha256.Sum256(tuneJSON)

	w := &World{
		cfg:          cfg,
		tune:         t,
		catalogs:     cats,
		dt:           t.TickDuration(),
		rng:          rand.New(rand.NewSource(cfg.Seed)),
		pulseCfg:     pulseCfg,
		bus:          events.NewBus(),
		agents:       map[string]*Agent{},
		clients:      map[string]*clientState{},
		sources:      map[string]*Source{},
		consumables:  map[string]*Consumable{},
		sink:         Sink{ID: SinkID, Pos: Vec2{t.Delivery.SinkPos[0], t.Delivery.SinkPos[1]}},
		inbox:        make(chan InputEnvelope, 1024),
		join:         make(chan JoinRequest, 64),
		leave:        make(chan string, 64),
		stop:         make(chan struct{}),
		tuningDigest: hex.EncodeToString(sum[:]),
	}
	w.bus.Subscribe(func(tick uint64, e events.Event) { w.dispatch("", tick, e) })
	return w, nil
}

func (w *World) SetTickLogger(l TickLogger) { w.tickLogger = l }

// OnSignal registers h for every signal. Not safe to call once Run started.
func (w *World) OnSignal(h SignalHandler) { w.signalHandlers = append(w.signalHandlers, h) }

// OnStep registers h to receive the metrics published after every step.
func (w *World) OnStep(h func(WorldMetrics)) { w.stepHooks = append(w.stepHooks, h) }

func (w *World) Inbox() chan<- InputEnvelope { return w.inbox }
func (w *World) Join() chan<- JoinRequest    { return w.join }
func (w *World) Leave() chan<- string        { return w.leave }

func (w *World) ID() string                   { return w.cfg.ID }
func (w *World) CurrentTick() uint64          { return w.tick.Load() }
func (w *World) Tuning() tuning.Tuning        { return w.tune }
func (w *World) Catalogs() *catalogs.Catalogs { return w.catalogs }

func (w *World) Stop() { close(w.stop) }

func (w *World) joinAgent(req JoinRequest) (JoinResponse, error) {
	name := req.Name
	if name == "" {
		name = "agent"
	}
	w.nextAgentNum++
	agentID := fmt.Sprintf("A%d", w.nextAgentNum)
	spawn := Vec2{w.tune.Player.SpawnPos[0], w.tune.Player.SpawnPos[1]}

	a, err := w.newAgent(agentID, name, spawn)
	if err != nil {
		return JoinResponse{}, err
	}
	w.agents[agentID] = a
	if req.Out != nil {
		w.clients[agentID] = &clientState{Out: req.Out, Signals: req.Signals}
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = fmt.Sprintf("%s_%s", w.cfg.ID, agentID)
	}
	return JoinResponse{Welcome: protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		SessionID:       sessionID,
		AgentID:         agentID,
		WorldID:         w.cfg.ID,
		WorldParams: protocol.WorldParams{
			TickRateHz:      w.tune.TickRateHz,
			ArenaRadius:     w.tune.ArenaRadius,
			DetectionRadius: w.tune.Player.DetectionRadius,
			SinkPos:         w.tune.Delivery.SinkPos,
			Seed:            w.cfg.Seed,
		},
		Catalogs: protocol.CatalogDigests{
			ItemPalette: protocol.DigestRef{
				Digest: w.catalogs.Items.PaletteDigest,
				Count:  len(w.catalogs.Items.Palette),
				IDs:    append([]string(nil), w.catalogs.Items.Palette...),
			},
			ItemsDigest:  w.catalogs.Items.DefsDigest,
			TuningDigest: w.tuningDigest,
		},
	}}, nil
}

func (w *World) handleLeave(agentID string) {
	delete(w.agents, agentID)
	delete(w.clients, agentID)
	for _, s := range w.sources {
		delete(s.touching, agentID)
	}
}

// dispatch fans a signal out to counters, the auto resolver, registered
// handlers and the per-tick client buffer.
func (w *World) dispatch(agentID string, tick uint64, e events.Event) {
	w.totals.observe(e)
	if ev, ok := e.(events.StabilityCheck); ok && w.tune.Stability.AutoResolveChecks {
		if a := w.agents[agentID]; a != nil {
			a.checkDeadlines[ev.CheckID] = tuning.Ms(w.tune.Stability.CheckTimeoutMs)
		}
	}
	for _, h := range w.signalHandlers {
		h(agentID, tick, e)
	}
	w.pending = append(w.pending, signal{AgentID: agentID, Tick: tick, Event: e})
}

func (w *World) sortedAgentIDs() []string {
	ids := make([]string, 0, len(w.agents))
	for id := range w.agents {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (w *World) sortedSourceIDs() []string {
	ids := make([]string, 0, len(w.sources))
	for id := range w.sources {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (w *World) sortedConsumableIDs() []string {
	ids := make([]string, 0, len(w.consumables))
	for id := range w.consumables {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func sendLatest(ch chan []byte, b []byte) {
	select {
	case ch <- b:
		return
	default:
	}
	// Drop one.
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- b:
	default:
	}
}

func trySend(ch chan []byte, b []byte) bool {
	select {
	case ch <- b:
		return true
	default:
		return false
	}
}
