/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/ssargent/protodemo/pkg/config"
)

// initCmd represents the init command
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default configuration file",
	Long: `Write a configuration file with default values: a local RabbitMQ with the
Web MQTT plugin, topic mqtt/proto/demo and a pebble history in ./data.

Examples:
  protodemo init
  protodemo init --config ./protodemo.yaml --data-dir ./history --force`,
	Args: cobra.NoArgs,
	// The config file may not exist yet, so the root loader is skipped.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		dataDir, _ := cmd.Flags().GetString("data-dir")
		force, _ := cmd.Flags().GetBool("force")

		if configPath == "" {
			configPath = config.GetDefaultConfigPath()
		}

		if config.ConfigExists(configPath) && !force {
			cmd.Printf("Config already exists at %s. Use --force to overwrite.\n", configPath)
			return nil
		}

		cfg, err := config.BootstrapConfig(configPath, dataDir)
		if err != nil {
			return err
		}

		cmd.Printf("Wrote %s\n", configPath)
		cmd.Printf("Broker: %s\n", cfg.Broker.URL)
		cmd.Printf("Topic: %s\n", cfg.Broker.Topic)
		cmd.Printf("History: %s (%s)\n", cfg.Storage.DataDir, cfg.Storage.Backend)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().String("data-dir", "", "Directory for the message history (default ./data)")
	initCmd.Flags().Bool("force", false, "Overwrite an existing config file")
}
