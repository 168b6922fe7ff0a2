package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	driftmarket "github.com/driftsea/market-sdk-go"
)

var watchMaker bool

var watchCmd = &cobra.Command{
	Use:   "watch [order-hash...]",
	Short: "Stream order events from the relay",
	Long: `Stream order status changes from the network's event relay until
interrupted. With order hashes only those orders are watched; without
arguments, or with --maker, every order made by the account is watched.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := getClient()
		if err != nil {
			return err
		}
		defer client.Close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		stream, err := client.OrderStream(ctx, func(event driftmarket.OrderEvent) {
			timestamp := time.Unix(event.Timestamp, 0).Format(time.RFC3339)
			fmt.Printf("%s  %s  %s\n", timestamp, event.OrderHash.Hex(), event.Status)
		})
		if err != nil {
			return err
		}
		defer stream.Disconnect()

		if len(args) == 0 || watchMaker {
			if err := stream.SubscribeMaker(client.Address()); err != nil {
				return err
			}
		}
		for _, arg := range args {
			orderHash, err := parseHash(arg)
			if err != nil {
				return err
			}
			if err := stream.SubscribeOrder(orderHash); err != nil {
				return err
			}
		}

		fmt.Fprintln(os.Stderr, "Watching for order events, press ctrl-c to stop")
		<-ctx.Done()
		return nil
	},
}

func init() {
	watchCmd.Flags().BoolVar(&watchMaker, "maker", false, "also watch every order made by the account")
}
