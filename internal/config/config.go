// Package config loads and validates the daemon configuration from the
// environment, with an optional YAML file for anything awkward to express
// in an env var (mainly the response curve).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env"
	"gopkg.in/yaml.v3"

	"github.com/lightwatch/luxd/internal/curve"
)

// Config is immutable after Load; the control loop never sees an invalid
// one.
type Config struct {
	SensorBackend string `env:"SENSOR_BACKEND" envDefault:"iio"`
	SensorName    string `env:"SENSOR_NAME" envDefault:"als"`
	I2CBus        string `env:"I2C_BUS" envDefault:""`

	BacklightName    string `env:"BACKLIGHT_NAME" envDefault:"intel_backlight"`
	KbdBacklightName string `env:"KBD_BACKLIGHT_NAME" envDefault:""`

	PollInterval time.Duration `env:"POLL_INTERVAL" envDefault:"5s"`
	ReadTimeout  time.Duration `env:"READ_TIMEOUT" envDefault:"2s"`

	FilterAlpha float64 `env:"FILTER_ALPHA" envDefault:"0.2"`
	DeadBand    int     `env:"DEAD_BAND" envDefault:"5"`
	MaxStep     int     `env:"MAX_STEP" envDefault:"20"`
	MaxFailures int     `env:"MAX_SENSOR_FAILURES" envDefault:"3"`
	DimDivisor  float64 `env:"DIM_DIVISOR" envDefault:"4"`

	// Curve is "lux:level" pairs separated by commas, ascending in lux.
	Curve string `env:"CURVE" envDefault:"0:10,100:100,1000:255"`

	// File points at an optional YAML file overriding the above.
	File string `env:"LUXD_CONFIG" envDefault:""`

	SocketPath string `env:"LUXD_SOCKET" envDefault:""`

	points []curve.Point
}

// fileConfig is the YAML schema. Zero values mean "keep the env value".
type fileConfig struct {
	SensorBackend    string        `yaml:"sensor_backend"`
	SensorName       string        `yaml:"sensor_name"`
	I2CBus           string        `yaml:"i2c_bus"`
	BacklightName    string        `yaml:"backlight_name"`
	KbdBacklightName string        `yaml:"kbd_backlight_name"`
	PollInterval     string        `yaml:"poll_interval"`
	ReadTimeout      string        `yaml:"read_timeout"`
	FilterAlpha      *float64      `yaml:"filter_alpha"`
	DeadBand         *int          `yaml:"dead_band"`
	MaxStep          *int          `yaml:"max_step"`
	MaxFailures      *int          `yaml:"max_sensor_failures"`
	DimDivisor       *float64      `yaml:"dim_divisor"`
	SocketPath       string        `yaml:"socket_path"`
	Curve            []curve.Point `yaml:"curve"`
}

// Load parses the environment, overlays the YAML file if LUXD_CONFIG is
// set, and validates everything. Any error here must terminate the process
// before the control loop starts.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	pts, err := parseCurve(cfg.Curve)
	if err != nil {
		return nil, err
	}
	cfg.points = pts

	if cfg.File != "" {
		if err := cfg.overlayFile(cfg.File); err != nil {
			return nil, err
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) overlayFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(b, &fc); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	setStr := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	setStr(&c.SensorBackend, fc.SensorBackend)
	setStr(&c.SensorName, fc.SensorName)
	setStr(&c.I2CBus, fc.I2CBus)
	setStr(&c.BacklightName, fc.BacklightName)
	setStr(&c.KbdBacklightName, fc.KbdBacklightName)
	setStr(&c.SocketPath, fc.SocketPath)

	if fc.PollInterval != "" {
		d, err := time.ParseDuration(fc.PollInterval)
		if err != nil {
			return fmt.Errorf("config file poll_interval: %w", err)
		}
		c.PollInterval = d
	}
	if fc.ReadTimeout != "" {
		d, err := time.ParseDuration(fc.ReadTimeout)
		if err != nil {
			return fmt.Errorf("config file read_timeout: %w", err)
		}
		c.ReadTimeout = d
	}
	if fc.FilterAlpha != nil {
		c.FilterAlpha = *fc.FilterAlpha
	}
	if fc.DeadBand != nil {
		c.DeadBand = *fc.DeadBand
	}
	if fc.MaxStep != nil {
		c.MaxStep = *fc.MaxStep
	}
	if fc.MaxFailures != nil {
		c.MaxFailures = *fc.MaxFailures
	}
	if fc.DimDivisor != nil {
		c.DimDivisor = *fc.DimDivisor
	}
	if len(fc.Curve) > 0 {
		c.points = fc.Curve
	}
	return nil
}

func (c *Config) validate() error {
	switch c.SensorBackend {
	case "iio", "i2c":
	default:
		return fmt.Errorf("unknown sensor backend %q (want iio or i2c)", c.SensorBackend)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %v", c.PollInterval)
	}
	if c.ReadTimeout <= 0 || c.ReadTimeout > c.PollInterval {
		return fmt.Errorf("read timeout must be in (0, poll interval], got %v", c.ReadTimeout)
	}
	if c.FilterAlpha <= 0 || c.FilterAlpha > 1 {
		return fmt.Errorf("filter alpha must be in (0, 1], got %v", c.FilterAlpha)
	}
	if c.DeadBand < 0 {
		return fmt.Errorf("dead band must be non-negative, got %d", c.DeadBand)
	}
	if c.MaxStep < 1 {
		return fmt.Errorf("max step must be positive, got %d", c.MaxStep)
	}
	if c.MaxFailures < 1 {
		return fmt.Errorf("max sensor failures must be positive, got %d", c.MaxFailures)
	}
	if c.DimDivisor < 1 {
		return fmt.Errorf("dim divisor must be >= 1, got %v", c.DimDivisor)
	}
	if len(c.points) == 0 {
		return fmt.Errorf("response curve has no control points")
	}
	// Level bounds against the real actuator maximum are checked by
	// curve.New once the backlight is open; ordering is checked here so a
	// bad file never gets further than Load.
	for i := 1; i < len(c.points); i++ {
		if c.points[i].Lux <= c.points[i-1].Lux {
			return fmt.Errorf("curve points must be strictly ascending in lux")
		}
		if c.points[i].Level < c.points[i-1].Level {
			return fmt.Errorf("curve points must be non-decreasing in level")
		}
	}
	return nil
}

// Points returns the response curve control points.
func (c *Config) Points() []curve.Point {
	cp := make([]curve.Point, len(c.points))
	copy(cp, c.points)
	return cp
}

func parseCurve(s string) ([]curve.Point, error) {
	var pts []curve.Point
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		lux, level, found := strings.Cut(part, ":")
		if !found {
			return nil, fmt.Errorf("curve point %q: want lux:level", part)
		}
		l, err := strconv.ParseFloat(strings.TrimSpace(lux), 64)
		if err != nil {
			return nil, fmt.Errorf("curve point %q: %w", part, err)
		}
		v, err := strconv.Atoi(strings.TrimSpace(level))
		if err != nil {
			return nil, fmt.Errorf("curve point %q: %w", part, err)
		}
		pts = append(pts, curve.Point{Lux: l, Level: v})
	}
	return pts, nil
}
