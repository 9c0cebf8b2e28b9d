// Package impairment implements the splatter pulse carried by some
// collectible sources: after arming for a while the carrier stops to
// splatter, and anything it hits during that window is impaired.
package impairment

import (
	"errors"
	"fmt"
	"time"

	"dishrush.game/internal/sim/effects"
)

type Config struct {
	ArmAfter  time.Duration // arming threshold
	ActiveFor time.Duration // length of the splatter window

	Multiplier       float64       // installed into the target's external-effect slot
	ModifierDuration time.Duration // lifetime of that modifier
	DisableDuration  time.Duration // interaction-disable window started on the target

	// PauseWhileCarrierDisabled holds the arming timer (without resetting it)
	// while the carrier's own autonomy is switched off by someone else.
	PauseWhileCarrierDisabled bool
}

func (c Config) Validate() error {
	if c.ArmAfter <= 0 {
		return fmt.Errorf("impairment: arm_after must be > 0, got %v", c.ArmAfter)
	}
	if c.ActiveFor <= 0 {
		return fmt.Errorf("impairment: active_for must be > 0, got %v", c.ActiveFor)
	}
	if c.Multiplier < 0 {
		return fmt.Errorf("impairment: negative multiplier %v", c.Multiplier)
	}
	if c.ModifierDuration < 0 || c.DisableDuration < 0 {
		return errors.New("impairment: negative effect duration")
	}
	return nil
}

// Carrier is the agent a pulse is bound to.
type Carrier interface {
	AutonomyEnabled() bool
	SetAutonomy(enabled bool)
}

// Target is an agent that can be impaired.
type Target interface {
	Effects() *effects.Stack
	Ignite(d time.Duration)
}

type Transition int

const (
	TransitionNone Transition = iota
	TransitionStarted
	TransitionStopped
)

// Pulse is bound to exactly one carrier for its whole life.
type Pulse struct {
	cfg     Config
	carrier Carrier

	arming    time.Duration
	window    time.Duration
	triggered bool
	cycles    int
}

func New(cfg Config, carrier Carrier) (*Pulse, error) {
	if carrier == nil {
		return nil, errors.New("impairment: nil carrier")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Pulse{cfg: cfg, carrier: carrier}, nil
}

// Tick advances either the open window or the arming timer.
func (p *Pulse) Tick(dt time.Duration) Transition {
	if p.triggered {
		p.window -= dt
		if p.window > 0 {
			return TransitionNone
		}
		p.window = 0
		p.triggered = false
		p.carrier.SetAutonomy(true)
		return TransitionStopped
	}

	if !p.carrier.AutonomyEnabled() && p.cfg.PauseWhileCarrierDisabled {
		return TransitionNone
	}
	p.arming += dt
	if p.arming < p.cfg.ArmAfter {
		return TransitionNone
	}
	p.arming = 0
	p.triggered = true
	p.window = p.cfg.ActiveFor
	p.cycles++
	// The carrier stands still while it splatters.
	p.carrier.SetAutonomy(false)
	return TransitionStarted
}

// Contact reports a hit on target. Only hits inside the open window count;
// each one installs a fresh exclusive modifier rather than compounding.
func (p *Pulse) Contact(target Target) bool {
	if !p.triggered || target == nil {
		return false
	}
	target.Effects().Set(effects.SlotExternalEffect, p.cfg.Multiplier, p.cfg.ModifierDuration)
	target.Ignite(p.cfg.DisableDuration)
	return true
}

// Release closes any open window and hands autonomy back to the carrier;
// used when the carrier leaves the world mid-splatter.
func (p *Pulse) Release() {
	if p.triggered {
		p.triggered = false
		p.window = 0
	}
	p.carrier.SetAutonomy(true)
}

func (p *Pulse) Active() bool          { return p.triggered }
func (p *Pulse) Arming() time.Duration { return p.arming }
func (p *Pulse) Window() time.Duration { return p.window }
func (p *Pulse) Cycles() int           { return p.cycles }
func (p *Pulse) Config() Config        { return p.cfg }
