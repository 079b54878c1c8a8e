package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/mattn/go-isatty"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type LoggingConfig struct {
	Level string `yaml:"level"`
	// File optionally receives a full debug log in addition to the console.
	File string `yaml:"file,omitempty"`
}

func consoleEncoder(stream *os.File) zapcore.Encoder {
	ec := zap.NewDevelopmentEncoderConfig()
	ec.EncodeCaller = nil
	if isatty.IsTerminal(stream.Fd()) {
		ec.EncodeLevel = zapcore.CapitalColorLevelEncoder
		ec.TimeKey = zapcore.OmitKey
	} else {
		ec.EncodeLevel = zapcore.CapitalLevelEncoder
	}
	return zapcore.NewConsoleEncoder(ec)
}

// Prepare returns the program logger. The console gets info and above on
// normal level and everything on debug; errors always go to stderr.
func (conf *LoggingConfig) Prepare() (*zap.Logger, func() error, error) {
	highPriority := zap.LevelEnablerFunc(func(lvl zapcore.Level) bool {
		return lvl >= zapcore.ErrorLevel
	})

	var cores []zapcore.Core
	switch conf.Level {
	case "none":
	case "normal":
		cores = append(cores,
			zapcore.NewCore(consoleEncoder(os.Stderr), zapcore.Lock(os.Stderr), highPriority),
			zapcore.NewCore(consoleEncoder(os.Stdout), zapcore.Lock(os.Stdout), zap.LevelEnablerFunc(func(lvl zapcore.Level) bool {
				return lvl >= zapcore.InfoLevel && lvl < zapcore.ErrorLevel
			})))
	case "debug":
		cores = append(cores,
			zapcore.NewCore(consoleEncoder(os.Stderr), zapcore.Lock(os.Stderr), highPriority),
			zapcore.NewCore(consoleEncoder(os.Stdout), zapcore.Lock(os.Stdout), zap.LevelEnablerFunc(func(lvl zapcore.Level) bool {
				return lvl < zapcore.ErrorLevel
			})))
	default:
		return nil, nil, fmt.Errorf("unexpected console logging level %q", conf.Level)
	}

	closer := func() error { return nil }
	if conf.File != "" {
		if err := os.MkdirAll(filepath.Dir(conf.File), 0o755); err != nil {
			return nil, nil, fmt.Errorf("unable to create log directory: %w", err)
		}
		f, err := os.OpenFile(conf.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("unable to open log file: %w", err)
		}
		closer = f.Close
		cores = append(cores, zapcore.NewCore(
			zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig()),
			zapcore.Lock(f),
			zap.NewAtomicLevelAt(zap.DebugLevel)))
	}
	if len(cores) == 0 {
		return zap.NewNop(), closer, nil
	}
	return zap.New(zapcore.NewTee(cores...), zap.AddCaller()), closer, nil
}
