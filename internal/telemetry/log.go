// Package telemetry provides the structured logging surface shared by every
// Aura component. All components accept a *zap.Logger through their
// constructor rather than reaching for a package-level global.
package telemetry

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewDevelopment returns a human-readable logger suitable for local runs
// and the simulator.
func NewDevelopment() *zap.Logger {
	logger, err := zap.NewDevelopment()
	if err != nil {
		// zap.NewDevelopment only fails on a malformed config; the
		// default config is never malformed.
		panic(err)
	}
	return logger
}

// NewProduction returns a JSON logger tuned for production deployments.
func NewProduction(level zapcore.Level) *zap.Logger {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	logger, err := cfg.Build()
	if err != nil {
		panic(err)
	}
	return logger
}

// NewNop returns a logger that discards everything, for tests.
func NewNop() *zap.Logger {
	return zap.NewNop()
}
