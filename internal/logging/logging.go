package logging

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var cfg = zap.Config{
	Level:       zap.NewAtomicLevelAt(defaultLevel()),
	Development: false,
	Encoding:    "console",
	EncoderConfig: zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.RFC3339NanoTimeEncoder,
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	},
	OutputPaths:      []string{"stderr"},
	ErrorOutputPaths: []string{"stderr"},
}

func defaultLevel() zapcore.Level {
	if s, ok := os.LookupEnv("LOG_LEVEL"); ok {
		if l, err := zapcore.ParseLevel(s); err == nil {
			return l
		}
	}
	return zap.InfoLevel
}

// New returns a named sugared logger writing to stderr. The level is taken
// from LOG_LEVEL at process start and shared by every named logger.
func New(name string) *zap.SugaredLogger {
	return zap.Must(cfg.Build(zap.AddStacktrace(zapcore.PanicLevel))).Named(name).Sugar()
}
