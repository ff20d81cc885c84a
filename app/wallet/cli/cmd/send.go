package cmd

import (
	"bytes"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"

	"github.com/cadenalabs/cadena/foundation/blockchain/database"
	"github.com/cadenalabs/cadena/foundation/blockchain/signature"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"
)

var (
	to    string
	value uint
)

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send funds to another address",
	Run:   sendRun,
}

func init() {
	rootCmd.AddCommand(sendCmd)
	sendCmd.Flags().StringVarP(&to, "to", "t", "", "Address to send to.")
	sendCmd.Flags().UintVarP(&value, "value", "v", 0, "Value to send.")
	sendCmd.MarkFlagRequired("to")
	sendCmd.MarkFlagRequired("value")
}

func sendRun(cmd *cobra.Command, args []string) {
	privateKey, err := crypto.LoadECDSA(getPrivateKeyPath())
	if err != nil {
		log.Fatal(err)
	}

	tx, err := buildTransaction(privateKey)
	if err != nil {
		log.Fatal(err)
	}

	if err := submitTransaction(tx); err != nil {
		log.Fatal(err)
	}

	fmt.Println("Submitted:", tx.ID)
}

// buildTransaction selects unspent outputs for the wallet until the value
// is covered and returns anything left over to the sender as change.
func buildTransaction(privateKey *ecdsa.PrivateKey) (database.Tx, error) {
	address := signature.PublicKeyString(privateKey.PublicKey)

	resp, err := http.Get(fmt.Sprintf("%s/v1/utxos/%s", url, address))
	if err != nil {
		return database.Tx{}, err
	}
	defer resp.Body.Close()

	var utxos []database.UTXO
	if err := json.NewDecoder(resp.Body).Decode(&utxos); err != nil {
		return database.Tx{}, err
	}

	var inputs []database.TxInput
	var total uint
	for _, utxo := range utxos {
		if total >= value {
			break
		}
		inputs = append(inputs, database.TxInput{TxID: utxo.TxID, OutputIndex: utxo.OutputIndex})
		total += utxo.Amount
	}

	if total < value {
		return database.Tx{}, fmt.Errorf("insufficient funds: have %d, need %d", total, value)
	}

	outputs := []database.TxOutput{{Amount: value, Address: database.Address(to)}}
	if change := total - value; change > 0 {
		outputs = append(outputs, database.TxOutput{Amount: change, Address: database.Address(address)})
	}

	tx := database.NewTx(inputs, outputs)

	return tx.Sign(privateKey)
}

func submitTransaction(tx database.Tx) error {
	data, err := json.Marshal(tx)
	if err != nil {
		return err
	}

	resp, err := http.Post(fmt.Sprintf("%s/v1/tx/submit", url), "application/json", bytes.NewBuffer(data))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("node rejected transaction: %s", string(msg))
	}

	return nil
}
