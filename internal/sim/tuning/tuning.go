package tuning

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Tuning holds every static gameplay parameter. Durations are given in
// milliseconds in YAML.
type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version"`

	TickRateHz  int     `yaml:"tick_rate_hz"`
	ArenaRadius float64 `yaml:"arena_radius"`

	Player     Player     `yaml:"player"`
	Stability  Stability  `yaml:"stability"`
	Delivery   Delivery   `yaml:"delivery"`
	Impairment Impairment `yaml:"impairment"`
	Spawning   Spawning   `yaml:"spawning"`
}

type Player struct {
	WalkingSpeed    float64    `yaml:"walking_speed"`
	RotationSpeed   float64    `yaml:"rotation_speed"`
	DetectionRadius float64    `yaml:"detection_radius"`
	SpawnPos        [2]float64 `yaml:"spawn_pos"`
}

type Stability struct {
	CheckRateMs       int  `yaml:"check_rate_ms"`
	RiskPerItem       int  `yaml:"risk_per_item"`
	StumbleRecoveryMs int  `yaml:"stumble_recovery_ms"`
	AutoResolveChecks bool `yaml:"auto_resolve_checks"`
	CheckTimeoutMs    int  `yaml:"check_timeout_ms"`
	AutoPassPercent   int  `yaml:"auto_pass_percent"`
}

type Delivery struct {
	CleanDurationMs int        `yaml:"clean_duration_ms"`
	SinkPos         [2]float64 `yaml:"sink_pos"`
}

type Impairment struct {
	ArmAfterMs                int     `yaml:"arm_after_ms"`
	ActiveForMs               int     `yaml:"active_for_ms"`
	SplatterRadius            float64 `yaml:"splatter_radius"`
	SpeedMultiplier           float64 `yaml:"speed_multiplier"`
	ModifierDurationMs        int     `yaml:"modifier_duration_ms"`
	DisableDurationMs         int     `yaml:"disable_duration_ms"`
	PauseWhileCarrierDisabled bool    `yaml:"pause_while_carrier_disabled"`
}

type Spawning struct {
	MaxSources        int     `yaml:"max_sources"`
	SpawnEveryMs      int     `yaml:"spawn_every_ms"`
	SourceSpeed       float64 `yaml:"source_speed"`
	MaxConsumables    int     `yaml:"max_consumables"`
	ConsumableEveryMs int     `yaml:"consumable_every_ms"`
	// FreezeRadius stops a roaming source while an agent is this close to
	// it. Zero leaves sources roaming.
	FreezeRadius float64 `yaml:"freeze_radius"`
}

func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

// Defaults are used for any key missing from tuning.yaml.
func Defaults() Tuning {
	return Tuning{
		ProtocolVersion: "1.0",
		TickRateHz:      30,
		ArenaRadius:     12,
		Player: Player{
			WalkingSpeed:    5,
			RotationSpeed:   8,
			DetectionRadius: 1.5,
			SpawnPos:        [2]float64{0, -4},
		},
		Stability: Stability{
			CheckRateMs:       2000,
			RiskPerItem:       5,
			StumbleRecoveryMs: 1200,
			AutoResolveChecks: true,
			CheckTimeoutMs:    1500,
			AutoPassPercent:   50,
		},
		Delivery: Delivery{
			CleanDurationMs: 2500,
		},
		Impairment: Impairment{
			ArmAfterMs:                6000,
			ActiveForMs:               1500,
			SplatterRadius:            2.5,
			SpeedMultiplier:           0.5,
			ModifierDurationMs:        4000,
			DisableDurationMs:         2000,
			PauseWhileCarrierDisabled: true,
		},
		Spawning: Spawning{
			MaxSources:        6,
			SpawnEveryMs:      3000,
			SourceSpeed:       1.5,
			MaxConsumables:    1,
			ConsumableEveryMs: 10000,
			FreezeRadius:      1,
		},
	}
}

func (t Tuning) Validate() error {
	var errs []error
	if t.TickRateHz <= 0 {
		errs = append(errs, fmt.Errorf("tick_rate_hz must be > 0"))
	}
	if t.ArenaRadius <= 0 {
		errs = append(errs, fmt.Errorf("arena_radius must be > 0"))
	}
	if t.Player.WalkingSpeed < 0 || t.Player.RotationSpeed < 0 {
		errs = append(errs, fmt.Errorf("player speeds must be >= 0"))
	}
	if t.Player.DetectionRadius <= 0 {
		errs = append(errs, fmt.Errorf("player.detection_radius must be > 0"))
	}
	if t.Stability.CheckRateMs <= 0 {
		errs = append(errs, fmt.Errorf("stability.check_rate_ms must be > 0"))
	}
	if t.Stability.RiskPerItem < 0 || t.Stability.RiskPerItem > 100 {
		errs = append(errs, fmt.Errorf("stability.risk_per_item must be within 0..100"))
	}
	if t.Stability.AutoPassPercent < 0 || t.Stability.AutoPassPercent > 100 {
		errs = append(errs, fmt.Errorf("stability.auto_pass_percent must be within 0..100"))
	}
	if t.Stability.AutoResolveChecks && t.Stability.CheckTimeoutMs <= 0 {
		errs = append(errs, fmt.Errorf("stability.check_timeout_ms must be > 0 when auto resolving"))
	}
	if t.Delivery.CleanDurationMs <= 0 {
		errs = append(errs, fmt.Errorf("delivery.clean_duration_ms must be > 0"))
	}
	if t.Impairment.ArmAfterMs <= 0 || t.Impairment.ActiveForMs <= 0 {
		errs = append(errs, fmt.Errorf("impairment arm/active windows must be > 0"))
	}
	if t.Spawning.MaxSources < 0 || t.Spawning.MaxConsumables < 0 {
		errs = append(errs, fmt.Errorf("spawning maxima must be >= 0"))
	}
	if t.Spawning.FreezeRadius < 0 {
		errs = append(errs, fmt.Errorf("spawning.freeze_radius must be >= 0"))
	}
	return errors.Join(errs...)
}

// TickDuration is the fixed simulation step.
func (t Tuning) TickDuration() time.Duration {
	if t.TickRateHz <= 0 {
		return 0
	}
	return time.Second / time.Duration(t.TickRateHz)
}

// Ms converts a millisecond config value.
func Ms(v int) time.Duration { return time.Duration(v) * time.Millisecond }
