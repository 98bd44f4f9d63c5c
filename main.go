package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"

	"github.com/lightwatch/luxd/internal/backlight"
	"github.com/lightwatch/luxd/internal/config"
	"github.com/lightwatch/luxd/internal/control"
	"github.com/lightwatch/luxd/internal/curve"
	"github.com/lightwatch/luxd/internal/filter"
	"github.com/lightwatch/luxd/internal/governor"
	"github.com/lightwatch/luxd/internal/logging"
	"github.com/lightwatch/luxd/internal/loop"
	"github.com/lightwatch/luxd/internal/sensor"
)

var logger = logging.New("main")

const (
	exitOK = iota
	exitFatalDevice
	exitBadConfig
)

var (
	flagDim   = flag.Bool("dim", false, "tell the running daemon to dim the display and exit")
	flagUndim = flag.Bool("undim", false, "tell the running daemon to undim the display and exit")
	flagRaise = flag.Int("raise", 0, "tell the running daemon to raise brightness by N levels and exit")
	flagLower = flag.Int("lower", 0, "tell the running daemon to lower brightness by N levels and exit")
)

func main() {
	os.Exit(run())
}

func run() int {
	defer logger.Sync()
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logger.With(zap.Error(err)).Error("Invalid configuration")
		return exitBadConfig
	}

	socketPath := cfg.SocketPath
	if socketPath == "" {
		socketPath = control.DefaultSocketPath()
	}

	if *flagDim || *flagUndim || *flagRaise != 0 || *flagLower != 0 {
		if err := runClient(socketPath); err != nil {
			logger.With(zap.Error(err)).Error("Control command failed")
			return exitFatalDevice
		}
		return exitOK
	}

	logger.With(zap.Any("config", cfg)).Info("Starting luxd")

	sink, err := backlight.Open("backlight", cfg.BacklightName)
	if err != nil {
		logger.With(zap.Error(err)).Error("Failed to open backlight device")
		return exitFatalDevice
	}

	var kbd backlight.Sink
	if cfg.KbdBacklightName != "" {
		kbd, err = backlight.Open("leds", cfg.KbdBacklightName)
		if err != nil {
			// The keyboard LED is a nice-to-have; run without it.
			logger.With(zap.Error(err)).Warn("Failed to open keyboard backlight, continuing without it")
			kbd = nil
		}
	}

	src, err := openSensor(cfg)
	if err != nil {
		sink.Close()
		logger.With(zap.Error(err)).Error("Failed to open ambient light sensor")
		return exitFatalDevice
	}

	// Curve levels are validated against the actuator's real maximum,
	// which is only known now.
	crv, err := curve.New(cfg.Points(), sink.Max())
	if err != nil {
		src.Close()
		sink.Close()
		logger.With(zap.Error(err)).Error("Invalid response curve")
		return exitBadConfig
	}

	filt, err := filter.NewEMA(cfg.FilterAlpha)
	if err != nil {
		src.Close()
		sink.Close()
		logger.With(zap.Error(err)).Error("Invalid filter coefficient")
		return exitBadConfig
	}

	gov, err := governor.New(governor.Config{DeadBand: cfg.DeadBand, MaxStep: cfg.MaxStep})
	if err != nil {
		src.Close()
		sink.Close()
		logger.With(zap.Error(err)).Error("Invalid governor settings")
		return exitBadConfig
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv, cmds, err := control.NewServer(socketPath)
	if err != nil {
		src.Close()
		sink.Close()
		logger.With(zap.Error(err)).Error("Failed to start control server")
		return exitFatalDevice
	}
	go srv.Run(ctx)

	l := loop.New(loop.Config{
		Interval:    cfg.PollInterval,
		ReadTimeout: cfg.ReadTimeout,
		MaxFailures: cfg.MaxFailures,
		DimDivisor:  cfg.DimDivisor,
	}, src, sink, kbd, filt, crv, gov, cmds)

	go func() {
		shutdown := make(chan os.Signal, 1)
		signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)
		<-shutdown
		logger.Info("Shutting down")
		cancel()
	}()

	if err := l.Run(ctx); err != nil {
		logger.With(zap.Error(err)).Error("Fatal device error")
		return exitFatalDevice
	}
	logger.Info("Clean shutdown")
	return exitOK
}

func openSensor(cfg *config.Config) (sensor.Source, error) {
	switch cfg.SensorBackend {
	case "i2c":
		if _, err := host.Init(); err != nil {
			return nil, err
		}
		bus, err := i2creg.Open(cfg.I2CBus)
		if err != nil {
			return nil, err
		}
		return sensor.NewVEML7700(bus)
	default:
		return sensor.OpenIIO(cfg.SensorName)
	}
}

func runClient(socketPath string) error {
	c := control.NewClient(socketPath)
	switch {
	case *flagDim:
		return c.Dim()
	case *flagUndim:
		return c.Undim()
	case *flagRaise != 0:
		return c.Raise(int8(*flagRaise))
	default:
		return c.Lower(int8(*flagLower))
	}
}
