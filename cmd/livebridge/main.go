package main

import (
	"fmt"
	"os"

	"livebridge/pkg/config"
	"livebridge/pkg/logger"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var cfgPath string

// version is stamped into backups; set with -ldflags "-X main.version=...".
var version = "dev"

// defaultConfigPaths are tried in order when --config is not given.
var defaultConfigPaths = []string{
	"configs/config.yaml",
	"./configs/config.yaml",
	"/etc/livebridge/config.yaml",
	"config.yaml",
}

var rootCmd = &cobra.Command{
	Use:           "livebridge",
	Short:         "Announce OBS broadcasts as Nostr live events",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "config file path")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// loadConfig reads --config, or the first default path that loads. A missing
// file yields the defaults.
func loadConfig() (*config.Config, error) {
	if cfgPath != "" {
		return config.Load(cfgPath)
	}

	var lastErr error
	for _, path := range defaultConfigPaths {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		cfg, err := config.Load(path)
		if err == nil {
			return cfg, nil
		}
		lastErr = err
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return config.Load(defaultConfigPaths[0])
}

func newLogger(cfg *config.Config) *zap.Logger {
	return logger.New(cfg.Logging.Level, cfg.Logging.Format)
}
