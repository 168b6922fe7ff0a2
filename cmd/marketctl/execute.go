package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var executeCmd = &cobra.Command{
	Use:   "execute <order-hash>",
	Short: "Fill an open order as the counterparty",
	Long: `Fill someone else's open order. Filling a listing buys the collectible
at its current amount; filling an offer sells the collectible to the
offer's maker.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		orderHash, err := parseHash(args[0])
		if err != nil {
			return err
		}

		client, err := getClient()
		if err != nil {
			return err
		}
		defer client.Close()

		if err := client.ExecuteOrder(context.Background(), orderHash); err != nil {
			return err
		}

		fmt.Printf("Order %s executed\n", orderHash.Hex())
		return nil
	},
}
