// Package backlight applies brightness levels through the kernel's sysfs
// backlight and LED class interfaces.
package backlight

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"github.com/lightwatch/luxd/internal/logging"
)

var (
	// ErrWriteFailed is a transient write failure. A single occurrence is
	// not fatal to the control loop.
	ErrWriteFailed = errors.New("backlight write failed")

	// ErrDeviceGone means the actuator was removed. Fatal.
	ErrDeviceGone = errors.New("backlight device gone")
)

// Sink is the actuator capability the control loop needs.
type Sink interface {
	// Max is the hardware's maximum level, queried once at open time and
	// immutable for the process lifetime.
	Max() int

	// Apply writes a level, clamped into [0, Max]. Idempotent when called
	// twice with the same level.
	Apply(level int) error

	// Current reads back the level the hardware currently has applied.
	Current() (int, error)

	// Close releases the handle. Safe to call more than once.
	Close() error
}

// Device drives one /sys/class/backlight or /sys/class/leds entry.
type Device struct {
	dir    string
	max    int
	logger *zap.SugaredLogger
}

var _ Sink = (*Device)(nil)

// Open validates the device directory under /sys/class/<class> and reads
// its immutable maximum level.
func Open(class, name string) (*Device, error) {
	return open(filepath.Join("/sys/class", class), name)
}

func open(classDir, name string) (*Device, error) {
	dir := filepath.Join(classDir, name)
	max, err := readSysInt(filepath.Join(dir, "max_brightness"))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceGone, err)
	}
	if max < 0 {
		return nil, fmt.Errorf("%w: max_brightness %d is negative", ErrDeviceGone, max)
	}
	d := &Device{dir: dir, max: max, logger: logging.New("backlight")}
	d.logger.With(zap.String("device", dir), zap.Int("max", max)).Info("Opened backlight device")
	return d, nil
}

func (d *Device) Max() int {
	return d.max
}

// Current prefers actual_brightness, which reflects what the hardware is
// really doing; LED class devices only have brightness.
func (d *Device) Current() (int, error) {
	v, err := readSysInt(filepath.Join(d.dir, "actual_brightness"))
	if err == nil {
		return v, nil
	}
	v, err = readSysInt(filepath.Join(d.dir, "brightness"))
	if err != nil {
		return 0, d.writeErr(err)
	}
	return v, nil
}

func (d *Device) Apply(level int) error {
	if level < 0 {
		level = 0
	} else if level > d.max {
		level = d.max
	}

	// Skip the kernel write when the hardware is already there.
	if cur, err := d.Current(); err == nil && cur == level {
		return nil
	}

	path := filepath.Join(d.dir, "brightness")
	if err := os.WriteFile(path, []byte(strconv.Itoa(level)), 0o644); err != nil {
		return d.writeErr(err)
	}
	d.logger.With(zap.Int("level", level)).Debug("Applied brightness")
	return nil
}

func (d *Device) Close() error {
	d.logger.Sync()
	return nil
}

func (d *Device) writeErr(err error) error {
	if os.IsNotExist(err) || errors.Is(err, syscall.ENODEV) || errors.Is(err, syscall.ENXIO) {
		return fmt.Errorf("%w: %v", ErrDeviceGone, err)
	}
	return fmt.Errorf("%w: %v", ErrWriteFailed, err)
}

func readSysInt(path string) (int, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	v, err := strconv.Atoi(strings.TrimSpace(string(b)))
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", path, err)
	}
	return v, nil
}
