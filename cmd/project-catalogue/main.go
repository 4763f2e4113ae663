// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the project-catalogue CLI. It fetches
// project records from the CORDIS registry, asks a generative model to
// describe each project's tools and scientific results, validates the
// replies and writes the catalogue.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/pdiddy/project-catalogue/internal/config"
	"github.com/pdiddy/project-catalogue/internal/secrets"
	"github.com/pdiddy/project-catalogue/pkg/types"
)

// version is set at build time via ldflags.
var version = "dev"

var (
	// logger is built in PersistentPreRunE; --verbose enables debug output.
	logger = zap.NewNop()

	// loadedSecrets holds API keys loaded from the secrets directory at startup.
	loadedSecrets map[string]string
)

// rootCmd is the base command for the project-catalogue CLI.
var rootCmd = &cobra.Command{
	Use:   "project-catalogue",
	Short: "Catalogue the tools and scientific results of research projects",
	Long: `project-catalogue builds the "Technologies & tools" and "Scientific results"
catalogue of EU research projects. For every project identifier it fetches the
registry record, normalizes it across programmes (FP7, H2020, Horizon Europe),
joins linked publications, renders a prompt, asks a generative model for a
one-row table and validates the reply against the result schema.

Every finished project is journaled to SQLite immediately; the ordered batch
is written to CSV, XLSX, JSON or YAML at the end of a run.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		verbose, _ := cmd.Flags().GetBool("verbose")
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		l, err := zcfg.Build()
		if err != nil {
			return fmt.Errorf("initializing logger: %w", err)
		}
		logger = l

		dir, _ := cmd.Flags().GetString("secrets-dir")
		s, err := secrets.Load(dir, logger)
		if err != nil {
			return err
		}
		loadedSecrets = s
		if len(s) > 0 {
			logger.Debug("loaded secrets", zap.Strings("keys", types.SortedKeys(s)))
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ./project-catalogue.yaml or ~/.config/project-catalogue/project-catalogue.yaml)")
	rootCmd.PersistentFlags().String("secrets-dir", ".secrets/", "directory of API key files")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "enable debug logging")
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("project-catalogue")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "project-catalogue"))
		}
	}

	config.SetDefaults(viper.GetViper())

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// loadBundle decodes the viper configuration and resolves the mapping
// table, schema and prompt template it names.
func loadBundle() (config.Bundle, error) {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return config.Bundle{}, err
	}
	return config.Resolve(cfg)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
