// Package governor rate-limits backlight changes so the display never
// visibly flickers or jumps.
package governor

import "fmt"

// Config holds the two independent guards.
type Config struct {
	// DeadBand suppresses updates whose distance from the applied level is
	// below this threshold. Prevents oscillation from sensor noise near a
	// curve breakpoint.
	DeadBand int

	// MaxStep caps how far a single decision may move toward the target.
	// Far targets are reached over multiple ticks, converging
	// monotonically.
	MaxStep int
}

// Governor decides whether and how far the backlight may move each tick.
// Stateless: the applied level is owned by the control loop.
type Governor struct {
	cfg Config
}

// New validates the guards. DeadBand must be non-negative and MaxStep
// positive.
func New(cfg Config) (*Governor, error) {
	if cfg.DeadBand < 0 {
		return nil, fmt.Errorf("dead band must be non-negative, got %d", cfg.DeadBand)
	}
	if cfg.MaxStep < 1 {
		return nil, fmt.Errorf("max step must be positive, got %d", cfg.MaxStep)
	}
	return &Governor{cfg: cfg}, nil
}

// Decide returns the level to apply this tick and whether to apply one at
// all. ok=false is the normal, frequent no-change outcome, not an error.
func (g *Governor) Decide(applied, target int) (level int, ok bool) {
	diff := target - applied
	if abs(diff) < g.cfg.DeadBand {
		return 0, false
	}
	if diff > g.cfg.MaxStep {
		diff = g.cfg.MaxStep
	} else if diff < -g.cfg.MaxStep {
		diff = -g.cfg.MaxStep
	}
	if diff == 0 {
		return 0, false
	}
	return applied + diff, true
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
