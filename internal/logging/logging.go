// Package logging constructs the process-wide zap logger, grounded on
// miner/miner.go's initLogger/selectZapLevel: a JSON encoder over
// stdout behind an AtomicLevel so the configured log level can change
// without restarting the process.
package logging

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var level = zap.NewAtomicLevel()

// SelectLevel maps a config string to a zapcore.Level, defaulting to
// info for anything unrecognized.
func SelectLevel(name string) zapcore.Level {
	switch name {
	case "debug":
		return zap.DebugLevel
	case "info":
		return zap.InfoLevel
	case "warn":
		return zap.WarnLevel
	case "error":
		return zap.ErrorLevel
	default:
		return zap.InfoLevel
	}
}

// New builds a logger at the given level name. Call SetLevel later to
// change it in place; the returned logger keeps writing at whatever
// level is currently set.
func New(levelName string) *zap.Logger {
	level.SetLevel(SelectLevel(levelName))

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	logger := zap.New(zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderCfg),
		zapcore.Lock(os.Stdout),
		level,
	))
	return logger
}

// SetLevel changes the live log level of every logger built by New.
func SetLevel(levelName string) {
	level.SetLevel(SelectLevel(levelName))
}
