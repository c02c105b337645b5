package cmd

import (
	"fmt"
	"net/http"

	"github.com/ardanlabs/multichain/foundation/multichain/signature"
	"github.com/spf13/cobra"
)

var (
	privateURL   string
	counterparty string
	up           uint64
	down         uint64
)

var signCmd = &cobra.Command{
	Use:   "sign",
	Short: "Ask the node to sign an interaction with a counterparty",
	RunE:  signRun,
}

func init() {
	rootCmd.AddCommand(signCmd)
	signCmd.Flags().StringVarP(&privateURL, "private-url", "r", "http://localhost:9080", "Url of the node's private api.")
	signCmd.Flags().StringVarP(&counterparty, "counterparty", "c", "", "Public key of the counterparty.")
	signCmd.Flags().Uint64Var(&up, "up", 0, "Units sent to the counterparty.")
	signCmd.Flags().Uint64Var(&down, "down", 0, "Units received from the counterparty.")
	signCmd.MarkFlagRequired("counterparty")
}

func signRun(cmd *cobra.Command, args []string) error {
	if _, err := signature.ToPublicKey(counterparty); err != nil {
		return fmt.Errorf("counterparty: %w", err)
	}

	req := struct {
		Counterparty string `json:"counterparty"`
		Up           uint64 `json:"up"`
		Down         uint64 `json:"down"`
	}{
		Counterparty: counterparty,
		Up:           up,
		Down:         down,
	}

	return call(cmd.OutOrStdout(), http.MethodPost, privateURL+"/v1/blocks/sign", req)
}
