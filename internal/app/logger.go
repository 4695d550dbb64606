package app

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/segyhp/loan-origination/internal/config"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const serviceName = "loan-origination"

// NewLogger builds the process logger from the LOG_* settings and installs
// it as the zap global so package level helpers log through it. An unknown
// level falls back to info; LOG_OUTPUT is stdout, stderr or a file path.
func NewLogger(cfg *config.Config) (*zap.Logger, error) {
	zcfg, err := loggerConfig(cfg)
	if err != nil {
		return nil, err
	}

	logger, err := zcfg.Build(zap.AddStacktrace(zapcore.ErrorLevel))
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	zap.ReplaceGlobals(logger)
	return logger, nil
}

func loggerConfig(cfg *config.Config) (zap.Config, error) {
	zcfg := zap.NewProductionConfig()
	if cfg.Logging.Format != "json" {
		zcfg = zap.NewDevelopmentConfig()
		zcfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	zcfg.Development = cfg.Server.Env == "development"
	zcfg.Sampling = nil
	zcfg.EncoderConfig.TimeKey = "timestamp"
	zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	level, err := zap.ParseAtomicLevel(cfg.Logging.Level)
	if err != nil {
		level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}
	zcfg.Level = level

	output := cfg.Logging.OutputPath
	if output == "" {
		output = "stdout"
	}
	if output != "stdout" && output != "stderr" {
		if dir := filepath.Dir(output); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return zcfg, fmt.Errorf("failed to create log directory: %w", err)
			}
		}
	}
	zcfg.OutputPaths = []string{output}
	zcfg.ErrorOutputPaths = []string{"stderr"}

	zcfg.InitialFields = map[string]interface{}{
		"service": serviceName,
		"env":     cfg.Server.Env,
	}
	return zcfg, nil
}
