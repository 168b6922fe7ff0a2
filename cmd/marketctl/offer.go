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
	offerTokenID   string
	offerEndAmount string
	offerCurrency  string
	offerBroker    string
	offerExpiresIn time.Duration
	offerNonce     uint64
)

var offerCmd = &cobra.Command{
	Use:   "offer <token> <amount>",
	Short: "Place an offer for a collectible",
	Long: `Place an offer to buy a collectible, paying <amount> in the network's
currency. Without --token-id the offer covers the whole collection.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !common.IsHexAddress(args[0]) {
			return fmt.Errorf("invalid token address %q", args[0])
		}

		client, err := getClient()
		if err != nil {
			return err
		}
		defer client.Close()

		params := driftmarket.OfferParams{
			Token:    common.HexToAddress(args[0]),
			Amount:   args[1],
			BrokerID: offerBroker,
			Nonce:    offerNonce,
		}
		if offerTokenID != "" {
			tokenID, ok := new(big.Int).SetString(offerTokenID, 10)
			if !ok {
				return fmt.Errorf("invalid token id %q", offerTokenID)
			}
			params.TokenID = tokenID
		}
		if offerEndAmount != "" {
			params.EndAmount = offerEndAmount
		}
		if offerCurrency != "" {
			if !common.IsHexAddress(offerCurrency) {
				return fmt.Errorf("invalid currency address %q", offerCurrency)
			}
			params.Currency = common.HexToAddress(offerCurrency)
		}
		if offerExpiresIn > 0 {
			params.Expiration = time.Now().Add(offerExpiresIn)
		}

		order, err := client.CreateOffer(context.Background(), params)
		if err != nil {
			return err
		}

		fmt.Printf("Order:  %s\n", order.Hash.Hex())
		fmt.Printf("Status: %s\n", order.Status)
		return nil
	},
}

func init() {
	offerCmd.Flags().StringVar(&offerTokenID, "token-id", "", "collectible id (omit for a collection-wide offer)")
	offerCmd.Flags().StringVar(&offerEndAmount, "end-amount", "", "closing amount for offers whose price rises over time")
	offerCmd.Flags().StringVar(&offerCurrency, "currency", "", "payment token address (default: network currency)")
	offerCmd.Flags().StringVar(&offerBroker, "broker", "", "broker identifier recorded with the order")
	offerCmd.Flags().DurationVar(&offerExpiresIn, "expires-in", 0, "lifetime of the offer (default: 30 days)")
	offerCmd.Flags().Uint64Var(&offerNonce, "nonce", 0, "order nonce (default: random)")
}
