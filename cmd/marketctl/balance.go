package main

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
)

var balanceCurrency string

var balanceCmd = &cobra.Command{
	Use:   "balance",
	Short: "Show the account's currency balance and allowance",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var currency common.Address
		if balanceCurrency != "" {
			if !common.IsHexAddress(balanceCurrency) {
				return fmt.Errorf("invalid currency address %q", balanceCurrency)
			}
			currency = common.HexToAddress(balanceCurrency)
		}

		client, err := getClient()
		if err != nil {
			return err
		}
		defer client.Close()

		ctx := context.Background()
		balance, err := client.GetCurrencyBalance(ctx, currency)
		if err != nil {
			return err
		}
		allowance, err := client.GetAllowance(ctx, currency)
		if err != nil {
			return err
		}

		fmt.Printf("Account:   %s\n", client.Address().Hex())
		fmt.Printf("Balance:   %s\n", balance)
		fmt.Printf("Allowance: %s\n", allowance)
		return nil
	},
}

func init() {
	balanceCmd.Flags().StringVar(&balanceCurrency, "currency", "", "payment token address (default: network currency)")
}
