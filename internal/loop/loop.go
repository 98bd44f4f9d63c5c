// Package loop drives the sensing-to-actuation pipeline on a fixed
// cadence: sensor read, filter, curve map, governor decision, backlight
// write.
package loop

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/lightwatch/luxd/internal/backlight"
	"github.com/lightwatch/luxd/internal/control"
	"github.com/lightwatch/luxd/internal/curve"
	"github.com/lightwatch/luxd/internal/filter"
	"github.com/lightwatch/luxd/internal/governor"
	"github.com/lightwatch/luxd/internal/logging"
	"github.com/lightwatch/luxd/internal/sensor"
)

// State of the control loop.
type State int32

const (
	Starting State = iota
	Running
	Degraded
	ShuttingDown
	Terminated
)

func (s State) String() string {
	switch s {
	case Starting:
		return "starting"
	case Running:
		return "running"
	case Degraded:
		return "degraded"
	case ShuttingDown:
		return "shutting-down"
	case Terminated:
		return "terminated"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Config holds the loop's own knobs; everything else lives in the
// components.
type Config struct {
	Interval    time.Duration
	ReadTimeout time.Duration

	// MaxFailures is how many consecutive transient sensor failures move
	// the loop from Running to Degraded.
	MaxFailures int

	// DimDivisor scales the mapped target down while the dim command is in
	// effect.
	DimDivisor float64
}

// Loop owns the per-tick state: last applied level, last computed target,
// time of last write. It runs single-threaded; no component is touched
// concurrently.
type Loop struct {
	cfg  Config
	src  sensor.Source
	sink backlight.Sink
	kbd  backlight.Sink // optional, may be nil
	filt *filter.EMA
	crv  *curve.Curve
	gov  *governor.Governor
	cmds <-chan control.Command

	state atomic.Int32

	applied   int
	target    int
	lastWrite time.Time

	failures int
	dimmed   bool
	offset   int

	releaseOnce sync.Once
	logger      *zap.SugaredLogger
}

// New wires the components together. The sensor and backlight handles are
// owned by the loop from here on: Run releases both exactly once on every
// exit path.
func New(cfg Config, src sensor.Source, sink backlight.Sink, kbd backlight.Sink,
	filt *filter.EMA, crv *curve.Curve, gov *governor.Governor, cmds <-chan control.Command) *Loop {
	l := &Loop{
		cfg:    cfg,
		src:    src,
		sink:   sink,
		kbd:    kbd,
		filt:   filt,
		crv:    crv,
		gov:    gov,
		cmds:   cmds,
		logger: logging.New("loop"),
	}
	l.state.Store(int32(Starting))
	if cur, err := sink.Current(); err == nil {
		l.applied = cur
	}
	return l
}

// State returns the loop's current state.
func (l *Loop) State() State {
	return State(l.state.Load())
}

func (l *Loop) setState(s State) {
	old := State(l.state.Swap(int32(s)))
	if old != s {
		l.logger.With(zap.Stringer("from", old), zap.Stringer("to", s)).Info("State transition")
	}
}

// Run polls until ctx is cancelled or a device error is fatal. It returns
// nil on clean shutdown and the fatal error otherwise. Both device handles
// are released before it returns.
func (l *Loop) Run(ctx context.Context) (err error) {
	defer func() {
		l.setState(ShuttingDown)
		l.release()
		l.setState(Terminated)
	}()

	// Drift-corrected cadence: each deadline is the previous one plus the
	// interval, so per-tick processing cost never accumulates into skew.
	deadline := time.Now()
	timer := time.NewTimer(0)
	defer timer.Stop()

	var lastLag time.Time
	for {
		select {
		case <-ctx.Done():
			return nil

		case cmd, ok := <-l.cmds:
			if !ok {
				l.cmds = nil
				continue
			}
			l.handleCommand(cmd)
			// Re-run the pipeline right away so the command takes effect
			// before the next scheduled tick.
			if err := l.tick(ctx); err != nil {
				return err
			}

		case <-timer.C:
			if err := l.tick(ctx); err != nil {
				return err
			}

			deadline = deadline.Add(l.cfg.Interval)
			if now := time.Now(); deadline.Before(now) {
				if time.Since(lastLag) > 10*time.Second {
					l.logger.With(zap.Time("deadline", deadline)).
						Warn("Cannot keep up with POLL_INTERVAL. Consider increasing it.")
					lastLag = now
				}
				for deadline.Before(now) {
					deadline = deadline.Add(l.cfg.Interval)
				}
			}
			timer.Reset(time.Until(deadline))
		}
	}
}

func (l *Loop) handleCommand(cmd control.Command) {
	switch cmd.Kind {
	case control.Dim:
		l.dimmed = true
	case control.Undim:
		l.dimmed = false
	case control.Raise:
		l.offset += int(cmd.Amount)
	case control.Lower:
		l.offset -= int(cmd.Amount)
	}
	l.logger.With(zap.Bool("dimmed", l.dimmed), zap.Int("offset", l.offset)).Info("Applied control command")
}

// tick runs one pass of the pipeline. A non-nil return is fatal.
func (l *Loop) tick(ctx context.Context) error {
	rctx, cancel := context.WithTimeout(ctx, l.cfg.ReadTimeout)
	s, err := l.src.Read(rctx)
	cancel()

	if err != nil {
		if ctx.Err() != nil {
			// Shutdown raced the read; not a sensor problem.
			return nil
		}
		if !sensor.Transient(err) {
			return fmt.Errorf("sensor: %w", err)
		}
		l.failures++
		l.logger.With(zap.Error(err), zap.Int("consecutive", l.failures)).Warn("Dropped sensor sample")
		if l.failures >= l.cfg.MaxFailures && l.State() == Running {
			l.setState(Degraded)
		}
		// The filter keeps its previous estimate; nothing is emitted while
		// samples are missing.
		return nil
	}

	if l.failures > 0 || l.State() == Degraded {
		l.failures = 0
		l.setState(Running)
	}
	if l.State() == Starting {
		l.setState(Running)
	}

	estimate := l.filt.Update(s.Lux)
	target := l.crv.Map(estimate)
	if l.dimmed {
		target = int(math.Round(float64(target) / l.cfg.DimDivisor))
	}
	target = clamp(target+l.offset, 0, l.sink.Max())
	l.target = target

	l.logger.With(
		zap.Float64("lux", s.Lux),
		zap.Float64("estimate", estimate),
		zap.Int("target", target),
		zap.Int("applied", l.applied)).
		Debug("Tick")

	level, ok := l.gov.Decide(l.applied, target)
	if !ok {
		return nil
	}

	if err := l.sink.Apply(level); err != nil {
		if errors.Is(err, backlight.ErrDeviceGone) {
			return fmt.Errorf("backlight: %w", err)
		}
		l.logger.With(zap.Error(err), zap.Int("level", level)).Warn("Backlight write failed")
		return nil
	}
	l.applied = level
	l.lastWrite = s.At
	l.logger.With(zap.Int("level", level), zap.Int("target", target)).Info("Adjusted backlight")

	l.adjustKbd()
	return nil
}

// adjustKbd drives the optional keyboard LED inversely to the display.
// Its failures never stop the loop.
func (l *Loop) adjustKbd() {
	if l.kbd == nil {
		return
	}
	pct := 0
	if max := l.sink.Max(); max > 0 {
		pct = l.applied * 100 / max
	}
	level := backlight.KbdLevelFor(pct, l.kbd.Max())
	if err := l.kbd.Apply(level); err != nil {
		l.logger.With(zap.Error(err), zap.Int("level", level)).Warn("Keyboard backlight write failed")
	}
}

func (l *Loop) release() {
	l.releaseOnce.Do(func() {
		if err := l.src.Close(); err != nil {
			l.logger.With(zap.Error(err)).Warn("Failed to close sensor")
		}
		if err := l.sink.Close(); err != nil {
			l.logger.With(zap.Error(err)).Warn("Failed to close backlight")
		}
		if l.kbd != nil {
			if err := l.kbd.Close(); err != nil {
				l.logger.With(zap.Error(err)).Warn("Failed to close keyboard backlight")
			}
		}
	})
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
