package cmd

import (
	"fmt"
	"log"
	"net/http"

	"github.com/spf13/cobra"
)

// balanceCmd represents the balance command
var balanceCmd = &cobra.Command{
	Use:   "balance",
	Short: "Print your balance.",
	Run: func(cmd *cobra.Command, args []string) {
		var b struct {
			Address string `json:"address"`
			Balance uint64 `json:"balance"`
		}

		if err := call(http.MethodGet, fmt.Sprintf("%s/v1/peers/%s/balance", url, peerName()), nil, &b); err != nil {
			log.Fatal(err)
		}

		fmt.Println("For Address:", b.Address)
		fmt.Println(b.Balance)
	},
}

func init() {
	rootCmd.AddCommand(balanceCmd)
}
