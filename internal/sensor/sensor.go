// Package sensor reads ambient illuminance from an ambient-light sensor.
//
// Two backends are provided: a Linux IIO sysfs backend and an I²C driver
// for the VEML7700. Both satisfy Source so the control loop and tests can
// swap them freely.
package sensor

import (
	"context"
	"errors"
	"time"
)

// Sample is a single illuminance measurement. Lux is never negative.
type Sample struct {
	Lux float64
	At  time.Time
}

// Source produces illuminance samples from an ambient-light sensor.
type Source interface {
	// Read returns one sample. It respects ctx for cancellation and
	// deadline; the returned error is one of the sentinels below (possibly
	// wrapped).
	Read(ctx context.Context) (Sample, error)

	// Close releases the device handle. Safe to call more than once.
	Close() error
}

var (
	// ErrDeviceUnavailable means the sensor vanished or was never found.
	// Fatal: the caller should shut down.
	ErrDeviceUnavailable = errors.New("sensor device unavailable")

	// ErrTimeout means no sample arrived within the poll window.
	// Transient: retry next tick.
	ErrTimeout = errors.New("sensor read timed out")

	// ErrInvalidReading means the device returned a physically implausible
	// value. Transient: the sample is dropped.
	ErrInvalidReading = errors.New("sensor reading out of range")
)

// Transient reports whether err is a per-tick failure the loop may retry,
// as opposed to a fatal device loss.
func Transient(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, ErrInvalidReading)
}
