// Example usage of the Driftsea market SDK
package main

import (
	"context"
	"fmt"
	"log"
	"math/big"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	driftmarket "github.com/driftsea/market-sdk-go"
)

func main() {
	// Load settings from .env when present; real env vars win either way.
	_ = godotenv.Load()

	privateKey := os.Getenv("DRIFTSEA_PRIVATE_KEY")
	if privateKey == "" {
		log.Fatal("DRIFTSEA_PRIVATE_KEY is required")
	}

	config := driftmarket.Config{
		Network:    driftmarket.Network(getenv("DRIFTSEA_NETWORK", "development")),
		RPCURL:     getenv("DRIFTSEA_RPC_URL", "http://localhost:8545"),
		PrivateKey: privateKey,
		Logger:     zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger(),
	}

	client, err := driftmarket.NewClient(config)
	if err != nil {
		log.Fatalf("Failed to create client: %v", err)
	}
	defer client.Close()

	ctx := context.Background()

	// Example: verify the node serves the configured network
	fmt.Println("Verifying network...")
	if err := client.VerifyNetwork(ctx); err != nil {
		log.Fatalf("Network verification failed: %v", err)
	}
	fmt.Printf("Connected to %s as %s\n", client.Network(), client.Address().Hex())

	// Example: check the account's currency balance
	fmt.Println("\nFetching currency balance...")
	balance, err := client.GetCurrencyBalance(ctx, common.Address{})
	if err != nil {
		log.Printf("Failed to get balance: %v", err)
	} else {
		fmt.Printf("Balance: %s\n", balance)
	}

	// Example: place an offer for a collectible
	fmt.Println("\nPlacing offer...")
	collectible := common.HexToAddress(getenv("DRIFTSEA_COLLECTIBLE", "0xDc64a140Aa3E981100a9becA4E685f962f0cF6C9"))
	offer, err := client.CreateOffer(ctx, driftmarket.OfferParams{
		Token:    collectible,
		TokenID:  big.NewInt(1),
		Amount:   "25.5",
		BrokerID: "example-gallery",
	})
	if err != nil {
		log.Fatalf("Failed to place offer: %v", err)
	}
	fmt.Printf("Offer %s is %s\n", offer.Hash.Hex(), offer.Status)

	// Example: read the offer's status back from the chain
	fmt.Println("\nFetching order status...")
	status, err := client.GetOrderStatus(ctx, offer.Hash)
	if err != nil {
		log.Printf("Failed to get status: %v", err)
	} else {
		fmt.Printf("Status: %s\n", status)
	}

	// Example: wait until the offer is open or executed
	fmt.Println("\nAwaiting order status...")
	deadline := time.Now().Add(2 * time.Minute)
	status, err = client.AwaitOrderStatus(ctx, offer.Hash, deadline,
		driftmarket.StatusOpen, driftmarket.StatusExecuted)
	if err != nil {
		log.Printf("Failed to await status: %v", err)
	} else {
		fmt.Printf("Reached status: %s\n", status)
	}

	// Example: watch order events from the relay
	fmt.Println("\nWatching order events...")
	stream, err := client.OrderStream(ctx, func(event driftmarket.OrderEvent) {
		fmt.Printf("Event: order %s is now %s\n", event.OrderHash.Hex(), event.Status)
	})
	if err != nil {
		log.Printf("Failed to open stream: %v", err)
	} else {
		defer stream.Disconnect()
		if err := stream.SubscribeOrder(offer.Hash); err != nil {
			log.Printf("Failed to subscribe: %v", err)
		}
	}

	// Example: list the account's orders on the book
	fmt.Println("\nFetching open orders...")
	orders, err := client.OpenOrders(ctx)
	if err != nil {
		log.Printf("Failed to list orders: %v", err)
	} else {
		for _, hash := range orders {
			fmt.Printf("Order: %s\n", hash.Hex())
		}
	}

	// Example: cancel the offer again
	fmt.Println("\nCancelling offer...")
	if err := client.CancelOrder(ctx, offer.Hash); err != nil {
		log.Printf("Failed to cancel: %v", err)
	} else {
		fmt.Println("Offer cancelled")
	}
}

func getenv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
