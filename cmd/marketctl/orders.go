package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var ordersCmd = &cobra.Command{
	Use:   "orders",
	Short: "List the account's orders on the book",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := getClient()
		if err != nil {
			return err
		}
		defer client.Close()

		ctx := context.Background()
		hashes, err := client.OpenOrders(ctx)
		if err != nil {
			return err
		}
		if len(hashes) == 0 {
			fmt.Println("No orders")
			return nil
		}

		for _, hash := range hashes {
			status, err := client.GetOrderStatus(ctx, hash)
			if err != nil {
				return err
			}
			fmt.Printf("%s  %s\n", hash.Hex(), status)
		}
		return nil
	},
}
