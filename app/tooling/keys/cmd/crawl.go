package cmd

import (
	"fmt"
	"net/http"

	"github.com/ardanlabs/multichain/foundation/multichain/signature"
	"github.com/spf13/cobra"
)

var (
	crawlPeer string
	crawlSeq  uint32
)

var crawlCmd = &cobra.Command{
	Use:   "crawl",
	Short: "Ask the node to crawl the chain of a peer",
	RunE:  crawlRun,
}

func init() {
	rootCmd.AddCommand(crawlCmd)
	crawlCmd.Flags().StringVarP(&privateURL, "private-url", "r", "http://localhost:9080", "Url of the node's private api.")
	crawlCmd.Flags().StringVarP(&crawlPeer, "peer", "e", "", "Public key of the peer to crawl.")
	crawlCmd.Flags().Uint32VarP(&crawlSeq, "sequence", "s", 0, "Sequence number to start at, 0 for the latest known.")
	crawlCmd.MarkFlagRequired("peer")
}

func crawlRun(cmd *cobra.Command, args []string) error {
	if _, err := signature.ToPublicKey(crawlPeer); err != nil {
		return fmt.Errorf("peer: %w", err)
	}

	req := struct {
		Peer     string `json:"peer"`
		Sequence uint32 `json:"sequence"`
	}{
		Peer:     crawlPeer,
		Sequence: crawlSeq,
	}

	return call(cmd.OutOrStdout(), http.MethodPost, privateURL+"/v1/crawl", req)
}
