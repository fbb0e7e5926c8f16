/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ssargent/protodemo/pkg/codec"
	"github.com/ssargent/protodemo/pkg/session"
)

// historyCmd represents the history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Print stored messages, newest first",
	Long: `Print messages kept by 'protodemo serve', newest first, each decoded as a
SimpleRequest.

Example:
  protodemo history --limit 5`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := configFrom(cmd)
		if err != nil {
			return err
		}
		limit, _ := cmd.Flags().GetInt("limit")
		if limit < 1 {
			return fmt.Errorf("--limit must be positive")
		}

		store, err := openStore(cmd.Context(), cfg)
		if err != nil {
			return fmt.Errorf("failed to open message store: %w", err)
		}
		defer store.Close()

		entries, err := store.Recent(cmd.Context(), limit)
		if err != nil {
			return fmt.Errorf("failed to read history: %w", err)
		}
		if len(entries) == 0 {
			cmd.Println("No messages stored")
			return nil
		}

		for _, item := range session.DecodeEntries(codec.NewSimpleRequestCodec(), entries) {
			cmd.Println(formatHistoryItem(item))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntP("limit", "n", 20, "Number of messages to print")
}

func formatHistoryItem(item session.HistoryItem) string {
	decoded := "error: " + item.DecodeError
	if item.Decoded != nil {
		out, _ := json.Marshal(item.Decoded)
		decoded = string(out)
	}
	return fmt.Sprintf("%s  %s  %s  [%s]  %s",
		item.ReceivedAt.Format(time.RFC3339), item.ID, item.Topic, item.Hex, decoded)
}
