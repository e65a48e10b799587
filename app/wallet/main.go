package main

import "github.com/ardanlabs/utxochain/app/wallet/cmd"

func main() {
	cmd.Execute()
}
