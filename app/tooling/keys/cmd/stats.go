package cmd

import (
	"fmt"
	"net/http"

	"github.com/ardanlabs/multichain/foundation/multichain/signature"
	"github.com/spf13/cobra"
)

var statsKey string

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print the statistics the node holds for a chain",
	RunE:  statsRun,
}

func init() {
	rootCmd.AddCommand(statsCmd)
	statsCmd.Flags().StringVarP(&statsKey, "pubkey", "e", "", "Public key of the chain, the key file's when empty.")
}

func statsRun(cmd *cobra.Command, args []string) error {
	pk, err := statsPublicKey()
	if err != nil {
		return err
	}

	return call(cmd.OutOrStdout(), http.MethodGet, fmt.Sprintf("%s/v1/stats/%s", nodeURL, pk), nil)
}

func statsPublicKey() (signature.PublicKey, error) {
	if statsKey != "" {
		return signature.ToPublicKey(statsKey)
	}

	kp, err := signature.LoadKeyPair(getPrivateKeyPath())
	if err != nil {
		return signature.PublicKey{}, err
	}

	return kp.PublicKey, nil
}
