// Package cmd wires the CLI: configuration and logger bootstrap on the root
// command, the pipeline itself on the fetch subcommand.
package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/xkilldash9x/iqfetch/internal/config"
	"github.com/xkilldash9x/iqfetch/internal/observability"
)

// Version is set at build time via -ldflags.
var Version = "dev"

var (
	cfgFile string
	envFile string
)

var rootCmd = &cobra.Command{
	Use:   "iqfetch",
	Short: "Fetch and consolidate IQ server policy-violation reports",
	Long: `iqfetch pulls the latest policy-violation report for every application
registered in an IQ server, flattens them into a single CSV security report,
and removes its intermediate files afterwards.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := initializeConfig(); err != nil {
			return err
		}
		observability.InitializeLogger(config.Get().Logger)
		return nil
	},
}

// initializeConfig loads the optional .env file, reads the optional config
// file and binds the environment, then loads and validates the singleton.
func initializeConfig() error {
	// Missing .env is fine; explicit --env-file pointing nowhere is not.
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return fmt.Errorf("failed to load env file %s: %w", envFile, err)
		}
	} else {
		_ = godotenv.Load(filepath.Join("config", ".env"))
	}

	v := viper.New()
	config.SetDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read config file: %w", err)
		}
	} else {
		v.SetConfigName("iqfetch")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("config")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	if err := config.Load(v); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to config file (default: ./iqfetch.yaml)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "path to .env file (default: ./config/.env)")
}

// Execute runs the CLI and reports a non-zero exit on any fatal error.
func Execute() {
	defer observability.Sync()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
