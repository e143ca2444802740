package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vitrine/vitrine/config"
	"github.com/vitrine/vitrine/pkg/logger"
)

var (
	configPath string
	logLevel   string
	debugMode  bool
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "vitrine",
		Short: "Grounded conversational product search",
		Long: `Vitrine answers shopping questions in Portuguese and English using only
products found in the catalog. Every reply cites items from a per-turn
manifest; anything else is dropped before it reaches the user.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to configuration file")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	root.PersistentFlags().BoolVar(&debugMode, "debug", false, "enable debug mode")

	root.AddCommand(newServeCmd(), newChatCmd(), newVersionCmd())
	return root
}

// loadConfig loads the configuration file merged with CLI overrides.
func loadConfig(extra map[string]interface{}) (*config.Config, error) {
	overrides := buildOverrides()
	for k, v := range extra {
		overrides[k] = v
	}
	cfg, err := config.Load(configPath, overrides)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration:\n%w", err)
	}
	return cfg, nil
}

func buildOverrides() map[string]interface{} {
	overrides := make(map[string]interface{})

	if logLevel != "" {
		overrides["log.level"] = logLevel
	}
	if debugMode {
		overrides["app.debug"] = true
	}

	return overrides
}

// newLogger builds the process logger from cfg and installs it globally.
func newLogger(cfg *config.Config) logger.Logger {
	logCfg := &logger.Config{
		Level:  logger.ParseLevel(cfg.Log.Level),
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	}
	if cfg.App.Debug {
		logCfg.Level = logger.DebugLevel
	}
	log := logger.New(logCfg)
	logger.SetGlobal(log)
	return log
}
