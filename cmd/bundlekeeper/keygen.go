package main

import (
	"fmt"

	"github.com/artpar/bundlekeeper/adapters/hasher"
	"github.com/artpar/bundlekeeper/adapters/random"
	"github.com/spf13/cobra"
)

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate an operator API key",
	Long: `Generate a random operator API key and its bcrypt hash.

Put the hash into the config file as server.api_key_hash (or
BUNDLEKEEPER_API_KEY_HASH) and hand the key to operators. The key is
printed once and is not stored anywhere.`,
	RunE: runKeygen,
}

func init() {
	rootCmd.AddCommand(keygenCmd)
}

func runKeygen(cmd *cobra.Command, args []string) error {
	key, err := random.NewKey(random.Real{}, hasher.NewBcrypt(0))
	if err != nil {
		return fmt.Errorf("failed to generate key: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "API key (shown once): %s\n\n", key.Plain)
	fmt.Fprintln(out, "server:")
	fmt.Fprintf(out, "  api_key_hash: %q\n", key.Hash)
	return nil
}
