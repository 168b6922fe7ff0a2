package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var cancelCollection bool

var cancelCmd = &cobra.Command{
	Use:   "cancel <order-hash>",
	Short: "Withdraw one of the account's orders",
	Long: `Withdraw an order from the book. Only the order's maker can cancel it.
Use --collection for collection-wide offers; the command then refuses
hashes that name any other order kind.`,
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

		ctx := context.Background()
		if cancelCollection {
			err = client.CancelCollectionOffer(ctx, orderHash)
		} else {
			err = client.CancelOrder(ctx, orderHash)
		}
		if err != nil {
			return err
		}

		fmt.Printf("Order %s cancelled\n", orderHash.Hex())
		return nil
	},
}

func init() {
	cancelCmd.Flags().BoolVar(&cancelCollection, "collection", false, "cancel a collection-wide offer")
}
