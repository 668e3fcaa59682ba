package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"partsim/internal/logging"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

const Version = "1.0.0"

// Execute runs the partsim command line.
func Execute() error {
	loadEnvironment()
	return NewRootCommand().Execute()
}

// NewRootCommand assembles the command tree.
func NewRootCommand() *cobra.Command {
	var logLevel, dispatchLogLevel string

	rootCmd := &cobra.Command{
		Use:           "partsim",
		Short:         "Cache-partitioning evaluation harness",
		Long:          "Evaluates cache-partitioning algorithms on workloads profiled offline and renders the resulting partitions",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if logLevel != "" {
				if err := logging.SetLogLevel(logLevel); err != nil {
					return fmt.Errorf("invalid log level: %w", err)
				}
			}
			if dispatchLogLevel != "" {
				if err := logging.SetDispatchLogLevel(dispatchLogLevel); err != nil {
					return fmt.Errorf("invalid dispatch log level: %w", err)
				}
			}
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Set log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&dispatchLogLevel, "dispatch-log-level", "", "Set log level of the dispatcher and pools, overriding --log-level")

	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newAlgorithmsCmd())
	rootCmd.AddCommand(newValidateCmd())
	rootCmd.AddCommand(newWorkerCmd())
	rootCmd.AddCommand(newApplyCmd())
	return rootCmd
}

func loadEnvironment() {
	logger := logging.GetLogger()

	// Try to load .env file from current directory
	envFile := ".env"
	if _, err := os.Stat(envFile); err != nil {
		// Try to load from the application directory
		execPath, err := os.Executable()
		if err != nil {
			return
		}
		envFile = filepath.Join(filepath.Dir(execPath), ".env")
		if _, err := os.Stat(envFile); err != nil {
			return
		}
	}

	if err := godotenv.Load(envFile); err != nil {
		logger.WithField("file", envFile).WithError(err).Warn("Error loading .env file")
		return
	}
	logger.WithField("file", envFile).Debug("Loaded environment variables")
}

func envOrDefault(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}
