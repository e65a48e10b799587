package cmd

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/spf13/cobra"
)

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the status of the wallet's node.",
	Run: func(cmd *cobra.Command, args []string) {
		var status json.RawMessage
		if err := call(http.MethodGet, fmt.Sprintf("%s/v1/peers/%s/status", url, peerName()), nil, &status); err != nil {
			log.Fatal(err)
		}

		fmt.Println(string(status))
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
