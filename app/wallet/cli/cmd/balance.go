package cmd

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/cadenalabs/cadena/foundation/blockchain/signature"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"
)

type accountBalance struct {
	Address string `json:"address"`
	Balance uint   `json:"balance"`
	UTXOs   int    `json:"utxos"`
}

var balanceCmd = &cobra.Command{
	Use:   "balance",
	Short: "Print your balance",
	Run:   balanceRun,
}

func init() {
	rootCmd.AddCommand(balanceCmd)
}

func balanceRun(cmd *cobra.Command, args []string) {
	privateKey, err := crypto.LoadECDSA(getPrivateKeyPath())
	if err != nil {
		log.Fatal(err)
	}

	address := signature.PublicKeyString(privateKey.PublicKey)
	fmt.Println("For address:", address)

	resp, err := http.Get(fmt.Sprintf("%s/v1/balance/%s", url, address))
	if err != nil {
		log.Fatal(err)
	}
	defer resp.Body.Close()

	var bal accountBalance
	if err := json.NewDecoder(resp.Body).Decode(&bal); err != nil {
		log.Fatal(err)
	}

	fmt.Printf("Balance: %d over %d unspent outputs\n", bal.Balance, bal.UTXOs)
}
