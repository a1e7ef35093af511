package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ethpandaops/contentoor/pkg/config"
	"github.com/ethpandaops/contentoor/pkg/crypto"
)

const secretBytes = 32

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Print fresh random secrets for the auth section",
	RunE:  runKeygen,
}

func init() {
	rootCmd.AddCommand(keygenCmd)
}

func runKeygen(cmd *cobra.Command, args []string) error {
	encryption, err := crypto.GenerateRandomHex(secretBytes)
	if err != nil {
		return fmt.Errorf("generating encryption secret: %w", err)
	}

	token, err := crypto.GenerateRandomHex(secretBytes)
	if err != nil {
		return fmt.Errorf("generating token secret: %w", err)
	}

	out := cmd.OutOrStdout()

	fmt.Fprintf(out, "%s_AUTH_ENCRYPTION_SECRET=%s\n", config.EnvPrefix, encryption)
	fmt.Fprintf(out, "%s_AUTH_TOKEN_SECRET=%s\n", config.EnvPrefix, token)

	return nil
}
