package commands

import (
	"fmt"

	"github.com/marmos91/ps3netsrv/internal/logger"
	"github.com/marmos91/ps3netsrv/pkg/config"
)

// InitLogger initializes the structured logger from the loaded config.
func InitLogger(cfg *config.Config) error {
	loggerCfg := logger.Config{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
		Compress:   cfg.Logging.Compress,
	}
	if err := logger.Init(loggerCfg); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	return nil
}

func configSource(configFile string) string {
	switch {
	case configFile != "":
		return configFile
	case config.ConfigExists():
		return config.GetDefaultConfigPath()
	default:
		return "defaults"
	}
}
