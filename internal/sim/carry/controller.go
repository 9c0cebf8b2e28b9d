package carry

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"dishrush.game/internal/sim/control"
	"dishrush.game/internal/sim/events"
)

type State int

const (
	StateIdle State = iota
	StateCarrying
	StateDelivering
	StateDisabled
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateCarrying:
		return "CARRYING"
	case StateDelivering:
		return "DELIVERING"
	case StateDisabled:
		return "DISABLED"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Category of an interactable candidate. The numeric order is the detection
// priority: stations first, then collectible sources, then consumables.
type Category int

const (
	CategoryStation Category = iota
	CategorySource
	CategoryConsumable
)

func (c Category) String() string {
	switch c {
	case CategoryStation:
		return "STATION"
	case CategorySource:
		return "SOURCE"
	case CategoryConsumable:
		return "CONSUMABLE"
	default:
		return fmt.Sprintf("Category(%d)", int(c))
	}
}

// Candidate is one nearby interactable supplied by world detection.
type Candidate struct {
	ID       string
	Category Category
	Distance float64
}

// SortCandidates orders candidates by category priority, then distance, then
// id, so the same detection set always resolves the same way.
func SortCandidates(cands []Candidate) []Candidate {
	out := append([]Candidate(nil), cands...)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Category != b.Category {
			return a.Category < b.Category
		}
		if a.Distance != b.Distance {
			return a.Distance < b.Distance
		}
		return a.ID < b.ID
	})
	return out
}

// Result is the outcome of a controller operation. Negative outcomes are
// ordinary results, not errors.
type Result int

const (
	ResultNone Result = iota
	ResultCleaningStarted
	ResultPickedUp
	ResultConsumed
	ResultCancelled
	ResultDelivered
	ResultPassed
	ResultStumbled
	ResultRejectedDisabled
	ResultRejectedStumbling
	ResultRejectedEmptyHanded
	ResultRejectedBusy
	ResultStale
	ResultIgnored
)

var resultNames = map[Result]string{
	ResultNone:                "NONE",
	ResultCleaningStarted:     "CLEANING_STARTED",
	ResultPickedUp:            "PICKED_UP",
	ResultConsumed:            "CONSUMED",
	ResultCancelled:           "CANCELLED",
	ResultDelivered:           "DELIVERED",
	ResultPassed:              "PASSED",
	ResultStumbled:            "STUMBLED",
	ResultRejectedDisabled:    "REJECTED_DISABLED",
	ResultRejectedStumbling:   "REJECTED_STUMBLING",
	ResultRejectedEmptyHanded: "REJECTED_EMPTY_HANDED",
	ResultRejectedBusy:        "REJECTED_BUSY",
	ResultStale:               "STALE",
	ResultIgnored:             "IGNORED",
}

func (r Result) String() string {
	if s, ok := resultNames[r]; ok {
		return s
	}
	return fmt.Sprintf("Result(%d)", int(r))
}

// World is the part of the surrounding simulation the controller acts on.
type World interface {
	// TakeSource deactivates a collectible source, cancels its in-flight
	// behaviour and returns the item kind it carried.
	TakeSource(id string) (Item, bool)
	// Consume applies a consumable to the agent and removes it.
	Consume(id string) bool
}

type Config struct {
	CheckCadence    time.Duration
	RiskPerItem     int
	StumbleRecovery time.Duration
}

// Controller is the carry state machine of one agent. It owns the inventory,
// the stability monitor and the agent's interaction-disable window.
type Controller struct {
	cfg   Config
	world World
	bus   events.Emitter

	inv     Inventory
	monitor *Monitor
	disable control.Disable

	delivering  bool
	stumbleLeft time.Duration

	lastCheck uint64
	pending   map[uint64]struct{}
}

func New(cfg Config, world World, bus events.Emitter, roll Roller) (*Controller, error) {
	if world == nil {
		return nil, errors.New("carry controller: nil world")
	}
	if bus == nil {
		return nil, errors.New("carry controller: nil event emitter")
	}
	if cfg.StumbleRecovery < 0 {
		return nil, fmt.Errorf("carry controller: negative stumble recovery %v", cfg.StumbleRecovery)
	}
	m, err := NewMonitor(cfg.CheckCadence, cfg.RiskPerItem, roll)
	if err != nil {
		return nil, fmt.Errorf("carry controller: %w", err)
	}
	return &Controller{
		cfg:     cfg,
		world:   world,
		bus:     bus,
		monitor: m,
		pending: map[uint64]struct{}{},
	}, nil
}

// State is derived from the underlying flags so that leaving Disabled lands
// on the previous state, or on the one matching the inventory when a stumble
// or a completed delivery cleared it meanwhile.
func (c *Controller) State() State {
	switch {
	case c.disable.Active():
		return StateDisabled
	case c.delivering:
		return StateDelivering
	case c.inv.Count() > 0:
		return StateCarrying
	default:
		return StateIdle
	}
}

func (c *Controller) Delivering() bool { return c.delivering }

// Interact handles a press of the interact input against the detection set.
func (c *Controller) Interact(cands []Candidate) Result {
	if c.disable.Active() {
		return ResultRejectedDisabled
	}
	if c.delivering {
		return ResultRejectedBusy
	}

	sawStation, sawSource := false, false
	for _, cand := range SortCandidates(cands) {
		switch cand.Category {
		case CategoryStation:
			if c.inv.Empty() {
				sawStation = true
				continue
			}
			c.startCleaning()
			return ResultCleaningStarted
		case CategorySource:
			if c.stumbleLeft > 0 {
				sawSource = true
				continue
			}
			item, ok := c.world.TakeSource(cand.ID)
			if !ok {
				continue
			}
			c.inv.Add(item)
			c.bus.Emit(events.Pickup{SourceID: cand.ID, Item: string(item)})
			c.emitCarry()
			return ResultPickedUp
		case CategoryConsumable:
			if c.world.Consume(cand.ID) {
				return ResultConsumed
			}
		}
	}
	switch {
	case sawSource:
		return ResultRejectedStumbling
	case sawStation:
		return ResultRejectedEmptyHanded
	}
	return ResultNone
}

// ReleaseInteract cancels an in-progress delivery without clearing. A
// disabled agent cannot let go, so the delivery carries on.
func (c *Controller) ReleaseInteract() Result {
	if !c.delivering {
		return ResultIgnored
	}
	if c.disable.Active() {
		return ResultRejectedDisabled
	}
	c.delivering = false
	c.bus.Emit(events.CleanStop{})
	return ResultCancelled
}

// DeliveryCompleted is reported by the station once cleaning finishes. It is
// accepted while disabled: the station does not depend on the agent.
func (c *Controller) DeliveryCompleted() Result {
	if !c.delivering {
		return ResultIgnored
	}
	c.delivering = false
	dropped := c.clear()
	c.bus.Emit(events.CleanStop{Completed: true})
	c.bus.Emit(events.Delivered{Items: itemStrings(dropped)})
	c.emitCarry()
	return ResultDelivered
}

// ResolveCheck applies the outcome of a previously begun stability check.
// Outcomes for checks invalidated by an inventory clear are ignored.
func (c *Controller) ResolveCheck(id uint64, ok bool) Result {
	if _, live := c.pending[id]; !live {
		c.bus.Emit(events.CheckResolved{CheckID: id, OK: ok, Stale: true})
		return ResultStale
	}
	delete(c.pending, id)
	c.bus.Emit(events.CheckResolved{CheckID: id, OK: ok})
	if ok {
		return ResultPassed
	}
	c.Stumble()
	return ResultStumbled
}

// Stumble drops everything and cancels any delivery.
func (c *Controller) Stumble() {
	wasDelivering := c.delivering
	c.delivering = false
	dropped := c.clear()
	c.stumbleLeft = c.cfg.StumbleRecovery
	if wasDelivering {
		c.bus.Emit(events.CleanStop{})
	}
	c.bus.Emit(events.Stumble{Dropped: itemStrings(dropped)})
	c.emitCarry()
}

// Ignite disables the agent's interactions for d. A delivery in progress
// keeps running underneath and State reports Delivering again once the
// window closes.
func (c *Controller) Ignite(d time.Duration) {
	if d <= 0 {
		return
	}
	started := c.disable.Start(d)
	c.bus.Emit(events.DisabledStart{Duration: d, Extended: !started})
}

// Tick advances the disable window, the stumble recovery and the stability
// cadence by dt.
func (c *Controller) Tick(dt time.Duration) {
	if c.disable.Tick(dt) {
		c.bus.Emit(events.DisabledEnd{})
	}
	if c.stumbleLeft > 0 {
		c.stumbleLeft -= dt
		if c.stumbleLeft <= 0 {
			c.stumbleLeft = 0
			c.bus.Emit(events.StumbleRecovered{})
		}
	}
	begun, threshold := c.monitor.Tick(dt, c.inv.Count())
	if !begun {
		return
	}
	c.lastCheck++
	id := c.lastCheck
	c.pending[id] = struct{}{}
	c.bus.Emit(events.StabilityCheck{CheckID: id, Count: c.inv.Count(), Threshold: threshold})
}

func (c *Controller) startCleaning() {
	c.delivering = true
	c.bus.Emit(events.CleanStart{Items: itemStrings(c.inv.Items())})
}

// clear empties the inventory, re-arms the stability cadence and invalidates
// every outstanding check.
func (c *Controller) clear() []Item {
	dropped := c.inv.Clear()
	c.monitor.Reset()
	if len(c.pending) > 0 {
		c.pending = map[uint64]struct{}{}
	}
	return dropped
}

func (c *Controller) emitCarry() {
	left, right := c.inv.Stacks()
	c.bus.Emit(events.CarryUpdated{Count: c.inv.Count(), Left: left, Right: right})
}

func (c *Controller) Count() int                       { return c.inv.Count() }
func (c *Controller) Items() []Item                    { return c.inv.Items() }
func (c *Controller) Entries() []Entry                 { return c.inv.Entries() }
func (c *Controller) Monitor() *Monitor                { return c.monitor }
func (c *Controller) Stumbling() bool                  { return c.stumbleLeft > 0 }
func (c *Controller) DisabledRemaining() time.Duration { return c.disable.Remaining() }

// PendingChecks lists live check ids in ascending order.
func (c *Controller) PendingChecks() []uint64 {
	out := make([]uint64, 0, len(c.pending))
	for id := range c.pending {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
