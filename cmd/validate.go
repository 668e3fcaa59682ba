package cmd

import (
	"partsim/internal/config"
	"partsim/internal/logging"

	"github.com/spf13/cobra"
)

func newValidateCmd() *cobra.Command {
	var configFile string

	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate an experiment configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return validateConfig(configFile)
		},
	}
	validateCmd.Flags().StringVarP(&configFile, "config", "c", "", "Path to experiment configuration file")
	_ = validateCmd.MarkFlagRequired("config")
	return validateCmd
}

func validateConfig(configFile string) error {
	logger := logging.GetLogger()

	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		logger.WithField("config_file", configFile).WithError(err).Error("Configuration validation failed")
		return err
	}
	checksum, err := config.ExperimentChecksum(cfg)
	if err != nil {
		return err
	}
	logger.WithField("config_file", configFile).WithField("checksum", checksum).Info("Configuration is valid")
	return nil
}
