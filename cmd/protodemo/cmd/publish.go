/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/ssargent/protodemo/pkg/broker"
	"github.com/ssargent/protodemo/pkg/config"
	"github.com/ssargent/protodemo/pkg/session"
)

// publishCmd represents the publish command
var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Publish one SimpleRequest to the topic",
	Long: `Encode {name, id} and publish the bytes to the configured topic.

Example:
  protodemo publish --name alice --id 42`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := configFrom(cmd)
		if err != nil {
			return err
		}
		name, _ := cmd.Flags().GetString("name")
		id, _ := cmd.Flags().GetInt32("id")

		ctx, stop := signalContext(cmd)
		defer stop()

		svc, err := connectPublisher(ctx, cfg)
		if err != nil {
			return err
		}
		defer disconnect(svc)

		payload, err := svc.Publish(ctx, name, id)
		if err != nil {
			return err
		}

		cmd.Printf("Published %d bytes to %s: %s\n", len(payload), cfg.Broker.Topic, spacedHex(payload))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(publishCmd)
	publishCmd.Flags().String("name", "", "Name field of the record")
	publishCmd.Flags().Int32("id", 0, "Id field of the record")
}

// connectPublisher connects a broker client and wraps it in a session that
// only publishes
func connectPublisher(ctx context.Context, cfg *config.Config) (*session.Service, error) {
	client, err := newBrokerClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create broker client: %w", err)
	}

	connectCtx, cancel := context.WithTimeout(ctx, cfg.Broker.ConnectTimeout)
	defer cancel()
	if err := client.Connect(connectCtx); err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", cfg.Broker.URL, err)
	}

	return session.New(client, nil, cfg.Broker.Topic, session.WithLogger(slog.Default())), nil
}

func disconnect(svc *session.Service) {
	if err := svc.Disconnect(); err != nil && !errors.Is(err, broker.ErrNotConnected) {
		slog.Error("disconnect failed", "error", err)
	}
}
