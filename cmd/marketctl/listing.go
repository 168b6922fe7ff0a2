package main

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	driftmarket "github.com/driftsea/market-sdk-go"
)

var (
	listingEndAmount string
	listingCurrency  string
	listingBroker    string
	listingExpiresIn time.Duration
	listingNonce     uint64
)

var listingCmd = &cobra.Command{
	Use:   "listing <token> <token-id> <amount>",
	Short: "List a collectible for sale",
	Long: `List a collectible the account holds for sale at <amount> in the
network's currency. The settlement contract is granted operator rights
on the collection first if it does not have them yet.`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !common.IsHexAddress(args[0]) {
			return fmt.Errorf("invalid token address %q", args[0])
		}
		tokenID, ok := new(big.Int).SetString(args[1], 10)
		if !ok {
			return fmt.Errorf("invalid token id %q", args[1])
		}

		client, err := getClient()
		if err != nil {
			return err
		}
		defer client.Close()

		params := driftmarket.ListingParams{
			Token:    common.HexToAddress(args[0]),
			TokenID:  tokenID,
			Amount:   args[2],
			BrokerID: listingBroker,
			Nonce:    listingNonce,
		}
		if listingEndAmount != "" {
			params.EndAmount = listingEndAmount
		}
		if listingCurrency != "" {
			if !common.IsHexAddress(listingCurrency) {
				return fmt.Errorf("invalid currency address %q", listingCurrency)
			}
			params.Currency = common.HexToAddress(listingCurrency)
		}
		if listingExpiresIn > 0 {
			params.Expiration = time.Now().Add(listingExpiresIn)
		}

		order, err := client.CreateListing(context.Background(), params)
		if err != nil {
			return err
		}

		fmt.Printf("Order:  %s\n", order.Hash.Hex())
		fmt.Printf("Status: %s\n", order.Status)
		return nil
	},
}

func init() {
	listingCmd.Flags().StringVar(&listingEndAmount, "end-amount", "", "closing amount for listings whose price rises over time")
	listingCmd.Flags().StringVar(&listingCurrency, "currency", "", "payment token address (default: network currency)")
	listingCmd.Flags().StringVar(&listingBroker, "broker", "", "broker identifier recorded with the order")
	listingCmd.Flags().DurationVar(&listingExpiresIn, "expires-in", 0, "lifetime of the listing (default: 30 days)")
	listingCmd.Flags().Uint64Var(&listingNonce, "nonce", 0, "order nonce (default: random)")
}
