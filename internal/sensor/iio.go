package sensor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/lightwatch/luxd/internal/logging"
)

const iioSysfsRoot = "/sys/bus/iio/devices"

// Channel file names tried in order. Some drivers expose a raw count plus a
// scale attribute, others a pre-scaled input value.
var iioChannels = []string{"in_illuminance_input", "in_illuminance_raw", "in_illuminance0_input", "in_illuminance0_raw"}

// IIO reads illuminance from a Linux industrial-io device directory.
type IIO struct {
	dir     string
	channel string
	scale   float64
	logger  *zap.SugaredLogger
	closed  bool
}

// OpenIIO locates the IIO device whose name attribute matches name (for
// example "als") and validates that it exposes an illuminance channel.
func OpenIIO(name string) (*IIO, error) {
	return openIIO(iioSysfsRoot, name)
}

func openIIO(root, name string) (*IIO, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}

	for _, e := range entries {
		dir := filepath.Join(root, e.Name())
		b, err := os.ReadFile(filepath.Join(dir, "name"))
		if err != nil || strings.TrimSpace(string(b)) != name {
			continue
		}

		for _, ch := range iioChannels {
			if _, err := os.Stat(filepath.Join(dir, ch)); err == nil {
				d := &IIO{
					dir:     dir,
					channel: ch,
					scale:   1,
					logger:  logging.New("sensor.iio"),
				}
				if s, err := readSysFloat(filepath.Join(dir, "in_illuminance_scale")); err == nil {
					d.scale = s
				}
				d.logger.With(zap.String("dir", dir), zap.String("channel", ch), zap.Float64("scale", d.scale)).
					Info("Found IIO ambient light sensor")
				return d, nil
			}
		}
	}

	return nil, fmt.Errorf("%w: no IIO device named %q with an illuminance channel under %s", ErrDeviceUnavailable, name, root)
}

// Read returns the current illuminance. A sysfs read is not interruptible,
// so cancellation is honored at the call boundary; the read itself is a
// single short file read.
func (d *IIO) Read(ctx context.Context) (Sample, error) {
	if err := ctx.Err(); err != nil {
		return Sample{}, fmt.Errorf("%w: %v", ErrTimeout, err)
	}

	raw, err := readSysFloat(filepath.Join(d.dir, d.channel))
	if err != nil {
		if isDeviceGone(err) {
			return Sample{}, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
		}
		return Sample{}, fmt.Errorf("%w: %v", ErrInvalidReading, err)
	}

	lux := raw * d.scale
	if lux < 0 {
		return Sample{}, fmt.Errorf("%w: %v lx", ErrInvalidReading, lux)
	}
	return Sample{Lux: lux, At: time.Now()}, nil
}

func (d *IIO) Close() error {
	if !d.closed {
		d.closed = true
		d.logger.Sync()
	}
	return nil
}

func readSysFloat(path string) (float64, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(string(b)), 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", path, err)
	}
	return v, nil
}

func isDeviceGone(err error) bool {
	return os.IsNotExist(err) || errors.Is(err, syscall.ENODEV) || errors.Is(err, syscall.ENXIO)
}
