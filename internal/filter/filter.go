// Package filter smooths raw illuminance samples against transient noise.
package filter

import "fmt"

// EMA is an exponential moving average over illuminance values:
//
//	estimate = alpha*sample + (1-alpha)*estimate_prev
//
// Smaller alpha smooths more but reacts slower. The first sample seeds the
// estimate unmodified so there is no warm-up bias. A dropped sample simply
// never calls Update and the previous estimate persists.
type EMA struct {
	alpha  float64
	value  float64
	seeded bool
}

// NewEMA returns a filter with the given coefficient. alpha must be in
// (0, 1].
func NewEMA(alpha float64) (*EMA, error) {
	if alpha <= 0 || alpha > 1 {
		return nil, fmt.Errorf("filter alpha must be in (0, 1], got %v", alpha)
	}
	return &EMA{alpha: alpha}, nil
}

// Update folds one sample into the estimate and returns the new estimate.
func (f *EMA) Update(sample float64) float64 {
	if !f.seeded {
		f.value = sample
		f.seeded = true
		return f.value
	}
	f.value = f.alpha*sample + (1-f.alpha)*f.value
	return f.value
}

// Value returns the current estimate. Only meaningful once Seeded.
func (f *EMA) Value() float64 {
	return f.value
}

// Seeded reports whether at least one sample has been folded in.
func (f *EMA) Seeded() bool {
	return f.seeded
}
