package cmd

import (
	"fmt"

	"github.com/ardanlabs/multichain/foundation/multichain/signature"
	"github.com/spf13/cobra"
)

var pubkeyCmd = &cobra.Command{
	Use:   "pubkey",
	Short: "Print the public key and mid of a key file",
	RunE:  pubkeyRun,
}

func init() {
	rootCmd.AddCommand(pubkeyCmd)
}

func pubkeyRun(cmd *cobra.Command, args []string) error {
	kp, err := signature.LoadKeyPair(getPrivateKeyPath())
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "public key: %s\nmid:        %s\n", kp.PublicKey, kp.PublicKey.Mid())
	return nil
}
