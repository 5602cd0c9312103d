package env

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// MakeLogger builds the process wide logger: production JSON, ISO8601
// timestamps to match the access log, no sampling.
func MakeLogger() (*zap.Logger, error) {
	logConfig := zap.NewProductionConfig()
	logConfig.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	logConfig.Encoding = "json"
	logConfig.Sampling = nil
	logConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return logConfig.Build()
}
