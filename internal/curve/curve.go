// Package curve maps filtered illuminance to a target backlight level
// through a configured response curve.
package curve

import (
	"fmt"
	"math"
)

// Point is one control point of the response curve.
type Point struct {
	Lux   float64 `yaml:"lux"`
	Level int     `yaml:"level"`
}

// Curve performs piecewise-linear interpolation over its control points.
// It is immutable after New and safe for concurrent use.
type Curve struct {
	points []Point
}

// New validates the control points against the actuator's level range and
// returns a mapper. Points must be strictly ascending in lux,
// non-decreasing in level, with every level inside [0, maxLevel].
// Validation failures here are configuration errors: they must stop the
// process before the control loop starts.
func New(points []Point, maxLevel int) (*Curve, error) {
	if len(points) == 0 {
		return nil, fmt.Errorf("response curve needs at least one control point")
	}
	if maxLevel < 0 {
		return nil, fmt.Errorf("max level must be non-negative, got %d", maxLevel)
	}
	for i, p := range points {
		if p.Lux < 0 {
			return nil, fmt.Errorf("control point %d: lux %v is negative", i, p.Lux)
		}
		if p.Level < 0 || p.Level > maxLevel {
			return nil, fmt.Errorf("control point %d: level %d outside [0, %d]", i, p.Level, maxLevel)
		}
		if i > 0 {
			if p.Lux <= points[i-1].Lux {
				return nil, fmt.Errorf("control points must be strictly ascending in lux: %v after %v", p.Lux, points[i-1].Lux)
			}
			if p.Level < points[i-1].Level {
				return nil, fmt.Errorf("control points must be non-decreasing in level: %d after %d", p.Level, points[i-1].Level)
			}
		}
	}
	cp := make([]Point, len(points))
	copy(cp, points)
	return &Curve{points: cp}, nil
}

// Map returns the target level for the given illuminance. Inputs below the
// first point clamp to its level, inputs above the last clamp to its level,
// everything in between interpolates linearly between the bracketing
// points.
func (c *Curve) Map(lux float64) int {
	pts := c.points
	if lux <= pts[0].Lux {
		return pts[0].Level
	}
	last := pts[len(pts)-1]
	if lux >= last.Lux {
		return last.Level
	}
	for i := 1; i < len(pts); i++ {
		if lux <= pts[i].Lux {
			lo, hi := pts[i-1], pts[i]
			t := (lux - lo.Lux) / (hi.Lux - lo.Lux)
			return int(math.Round(float64(lo.Level) + t*float64(hi.Level-lo.Level)))
		}
	}
	return last.Level // unreachable, bounds handled above
}

// Points returns a copy of the control points.
func (c *Curve) Points() []Point {
	cp := make([]Point, len(c.points))
	copy(cp, c.points)
	return cp
}
