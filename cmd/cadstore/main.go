package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/i5heu/ouroboros-cad"
	"github.com/i5heu/ouroboros-cad/internal/config"
	"github.com/i5heu/ouroboros-cad/pkg/logging"
)

var (
	rootCmd = &cobra.Command{
		Use:           "cadstore",
		Short:         "Inspect and query CAD document snapshots",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	configPath string
	dbPath     string
)

func main() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML or TOML configuration file")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "snapshot directory, overrides storage.path")

	rootCmd.AddCommand(demoCmd)
	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(closestCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig() (config.Config, error) {
	cfg := config.Default()
	if configPath != "" {
		var err error
		if cfg, err = config.Load(configPath); err != nil {
			return cfg, err
		}
	}
	if dbPath != "" {
		cfg.Storage.Path = dbPath
		cfg.Storage.InMemory = false
	}
	return cfg, cfg.Validate()
}

// openDocument opens the document named by the flags and the config file.
func openDocument() (*ouroboros.Document, *logrus.Logger, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	log, err := logging.New(cfg.Logging.Level, cfg.Logging.Format, os.Stderr)
	if err != nil {
		return nil, nil, err
	}
	doc, err := ouroboros.New(ouroboros.ConfigFrom(cfg, log))
	if err != nil {
		return nil, nil, err
	}
	return doc, log, nil
}
