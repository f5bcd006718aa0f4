// Package logging builds the zap loggers shared by the server and CLIs.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New returns a JSON logger writing to stderr. With debug set it logs at
// debug level with a human readable console encoder instead.
func New(debug bool) (*zap.Logger, error) {
	return Config(debug).Build()
}

// Config returns the zap configuration used by New.
func Config(debug bool) zap.Config {
	if debug {
		config := zap.NewDevelopmentConfig()
		config.DisableCaller = true
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		return config
	}

	return zap.Config{
		Level:       zap.NewAtomicLevelAt(zap.InfoLevel),
		Development: false,
		Sampling: &zap.SamplingConfig{
			Initial:    100,
			Thereafter: 100,
		},
		Encoding:         "json",
		EncoderConfig:    zap.NewProductionEncoderConfig(),
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
		DisableCaller:    true,
	}
}

// Must is New for callers that cannot continue without a logger.
func Must(debug bool) *zap.Logger {
	logger, err := New(debug)
	if err != nil {
		panic(err)
	}
	return logger
}
