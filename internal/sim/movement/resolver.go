package movement

import (
	"fmt"
	"math"
	"time"

	"github.com/go-gl/mathgl/mgl64"

	"dishrush.game/internal/sim/effects"
)

const movingEpsilon = 1e-6

var up = mgl64.Vec3{0, 1, 0}

type Config struct {
	BaseSpeed     float64 // units per second at intent length 1
	RotationSpeed float64 // slerp rate per second
}

// Resolver turns a raw 2D intent into a velocity scaled by the agent's
// effect stack, and keeps the agent's facing.
type Resolver struct {
	cfg   Config
	stack *effects.Stack

	intent   mgl64.Vec2
	velocity mgl64.Vec2
	facing   mgl64.Quat
}

func NewResolver(cfg Config, stack *effects.Stack) (*Resolver, error) {
	if stack == nil {
		return nil, fmt.Errorf("movement resolver: nil effect stack")
	}
	if cfg.BaseSpeed < 0 || cfg.RotationSpeed < 0 {
		return nil, fmt.Errorf("movement resolver: negative speed config %+v", cfg)
	}
	return &Resolver{cfg: cfg, stack: stack, facing: mgl64.QuatIdent()}, nil
}

// SetIntent records the latest raw input vector (x = right, y = forward).
func (r *Resolver) SetIntent(v mgl64.Vec2) { r.intent = v }

func (r *Resolver) Intent() mgl64.Vec2 { return r.intent }

// Tick decays the effect stack and resolves this tick's velocity. While
// delivering the velocity is forced to zero regardless of intent or
// multipliers; the stack still decays.
func (r *Resolver) Tick(dt time.Duration, delivering bool) mgl64.Vec2 {
	r.stack.Tick(dt)

	if delivering {
		r.velocity = mgl64.Vec2{}
	} else {
		r.velocity = r.intent.Mul(r.cfg.BaseSpeed * r.stack.Net())
	}

	if r.intent.Len() > movingEpsilon {
		amount := dt.Seconds() * r.cfg.RotationSpeed
		if amount > 1 {
			amount = 1
		}
		r.facing = slerpShortest(r.facing, lookRotation(r.intent), amount)
	}
	return r.velocity
}

func (r *Resolver) Velocity() mgl64.Vec2 { return r.velocity }

// Moving reports the stance from the resolved velocity.
func (r *Resolver) Moving() bool { return r.velocity.Len() > movingEpsilon }

// Yaw is the facing angle in radians around the up axis; 0 faces +y.
func (r *Resolver) Yaw() float64 { return yawOf(r.facing) }

func (r *Resolver) Stack() *effects.Stack { return r.stack }

// Displacement is the distance covered by the current velocity over dt.
func (r *Resolver) Displacement(dt time.Duration) mgl64.Vec2 {
	return r.velocity.Mul(dt.Seconds())
}

// lookRotation maps the planar intent (x, y) onto the ground plane (x, z).
func lookRotation(dir mgl64.Vec2) mgl64.Quat {
	return mgl64.QuatRotate(math.Atan2(dir.X(), dir.Y()), up)
}

func slerpShortest(from, to mgl64.Quat, amount float64) mgl64.Quat {
	if from.Dot(to) < 0 {
		to = to.Scale(-1)
	}
	return mgl64.QuatSlerp(from, to, amount).Normalize()
}

func yawOf(q mgl64.Quat) float64 {
	yaw := 2 * math.Atan2(q.V.Y(), q.W)
	for yaw > math.Pi {
		yaw -= 2 * math.Pi
	}
	for yaw <= -math.Pi {
		yaw += 2 * math.Pi
	}
	return yaw
}
