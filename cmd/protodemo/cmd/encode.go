/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"encoding/hex"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ssargent/protodemo/pkg/codec"
)

// encodeCmd represents the encode command
var encodeCmd = &cobra.Command{
	Use:   "encode",
	Short: "Print the encoded bytes of a SimpleRequest",
	Long: `Encode {name, id} and print the bytes as hex. No broker is involved.

Example:
  protodemo encode --name abc --id 2
  0a 03 61 62 63 10 02`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("name")
		id, _ := cmd.Flags().GetInt32("id")

		payload := codec.NewSimpleRequestCodec().Encode(codec.SimpleRequest{Name: name, ID: id})
		cmd.Println(spacedHex(payload))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(encodeCmd)
	encodeCmd.Flags().String("name", "", "Name field of the record")
	encodeCmd.Flags().Int32("id", 0, "Id field of the record")
}

// spacedHex renders b as space separated lowercase hex bytes
func spacedHex(b []byte) string {
	parts := make([]string, len(b))
	for i := range b {
		parts[i] = hex.EncodeToString(b[i : i+1])
	}
	return strings.Join(parts, " ")
}
