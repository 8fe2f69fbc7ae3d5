package main

import (
	"fmt"
	"os"
	"strings"

	"livebridge/internal/infrastructure/relay"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(pubkeyCmd)
}

var pubkeyCmd = &cobra.Command{
	Use:   "pubkey [private-key]",
	Short: "Print the public key for a hex or nsec private key",
	Long: `Prints the hex and npub public key. The private key is read from the
argument, or from LIVEBRIDGE_PRIVATE_KEY when no argument is given.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := privateKeyFrom(args)
		if err != nil {
			return err
		}

		pk, err := relay.PublicKey(key)
		if err != nil {
			return err
		}
		npub, err := relay.Npub(pk)
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "hex:  %s\nnpub: %s\n", pk, npub)
		return nil
	},
}

func privateKeyFrom(args []string) (string, error) {
	if len(args) > 0 && strings.TrimSpace(args[0]) != "" {
		return args[0], nil
	}
	if key := os.Getenv("LIVEBRIDGE_PRIVATE_KEY"); key != "" {
		return key, nil
	}
	return "", fmt.Errorf("no private key: pass one or set LIVEBRIDGE_PRIVATE_KEY")
}
