/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"log/slog"
	"math/rand"
	"time"

	"github.com/spf13/cobra"
)

// publisherCmd represents the publisher command
var publisherCmd = &cobra.Command{
	Use:   "publisher",
	Short: "Publish random SimpleRequests at a fixed interval",
	Long: `Publish a record every interval with a random name from the configured
list and a random id in [0, max_id]. A failed publish is logged and the loop
continues. Stops after --count messages, or on SIGINT/SIGTERM.

Examples:
  protodemo publisher
  protodemo publisher --interval 250ms --count 100 --log-level debug`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := configFrom(cmd)
		if err != nil {
			return err
		}
		interval := cfg.Publisher.Interval
		if cmd.Flags().Changed("interval") {
			interval, _ = cmd.Flags().GetDuration("interval")
		}
		count, _ := cmd.Flags().GetInt("count")

		ctx, stop := signalContext(cmd)
		defer stop()

		svc, err := connectPublisher(ctx, cfg)
		if err != nil {
			return err
		}
		defer disconnect(svc)

		rng := rand.New(rand.NewSource(time.Now().UnixNano()))
		sent := runPublisher(ctx, svc, randomRecords(rng, cfg.Publisher.Names, cfg.Publisher.MaxID), interval, count)
		cmd.Printf("Published %d messages to %s\n", sent, cfg.Broker.Topic)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(publisherCmd)
	publisherCmd.Flags().Duration("interval", time.Second, "Delay between messages")
	publisherCmd.Flags().Int("count", 0, "Stop after this many messages (0 runs until interrupted)")
}

type recordPublisher interface {
	Publish(ctx context.Context, name string, id int32) ([]byte, error)
}

// randomRecords returns a generator of {name, id} pairs with id in [0, maxID]
func randomRecords(rng *rand.Rand, names []string, maxID int32) func() (string, int32) {
	return func() (string, int32) {
		name := names[rng.Intn(len(names))]
		id := int32(rng.Int63n(int64(maxID) + 1))
		return name, id
	}
}

// runPublisher publishes one record immediately and then one per interval
// until ctx is done or count successful publishes (when count > 0). It
// returns the number of successful publishes.
func runPublisher(ctx context.Context, p recordPublisher, next func() (string, int32), interval time.Duration, count int) int {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	sent := 0
	for {
		name, id := next()
		if _, err := p.Publish(ctx, name, id); err != nil {
			slog.Error("publish failed", "name", name, "id", id, "error", err)
		} else {
			sent++
			if count > 0 && sent >= count {
				return sent
			}
		}

		select {
		case <-ctx.Done():
			return sent
		case <-ticker.C:
		}
	}
}
