package cmd

import (
	"fmt"
	"log"
	"net/http"

	"github.com/ardanlabs/utxochain/app/services/node/handlers/v1/public"
	"github.com/spf13/cobra"
)

var (
	to     string
	amount uint64
	fee    uint64
)

// sendCmd represents the send command
var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send transaction",
	Run: func(cmd *cobra.Command, args []string) {
		req := public.SendRequest{
			To:     to,
			Amount: amount,
			Fee:    fee,
		}

		var resp struct {
			Status string `json:"status"`
		}

		if err := call(http.MethodPost, fmt.Sprintf("%s/v1/peers/%s/tx/send", url, peerName()), req, &resp); err != nil {
			log.Fatal(err)
		}

		fmt.Println(resp.Status)
	},
}

func init() {
	rootCmd.AddCommand(sendCmd)
	sendCmd.Flags().StringVarP(&to, "to", "t", "", "Peer name or address of the recipient.")
	sendCmd.MarkFlagRequired("to")
	sendCmd.Flags().Uint64VarP(&amount, "amount", "a", 0, "Amount to send.")
	sendCmd.Flags().Uint64VarP(&fee, "fee", "f", 0, "Fee paid to the miner.")
}
