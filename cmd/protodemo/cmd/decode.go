/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ssargent/protodemo/pkg/codec"
)

// decodeCmd represents the decode command
var decodeCmd = &cobra.Command{
	Use:   "decode <hex>...",
	Short: "Decode hex bytes into a SimpleRequest",
	Long: `Decode hex encoded bytes and print the record as JSON. Arguments are
joined, so bytes may be given separately.

Examples:
  protodemo decode 0a036162631002
  protodemo decode 0a 03 61 62 63 10 02`,
	RunE: func(cmd *cobra.Command, args []string) error {
		payload, err := hex.DecodeString(strings.Join(strings.Fields(strings.Join(args, " ")), ""))
		if err != nil {
			return fmt.Errorf("invalid hex: %w", err)
		}

		record, err := codec.NewSimpleRequestCodec().Decode(payload)
		if err != nil {
			return err
		}

		out, err := json.Marshal(record)
		if err != nil {
			return err
		}
		cmd.Println(string(out))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(decodeCmd)
}
