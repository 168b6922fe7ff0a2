package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	driftmarket "github.com/driftsea/market-sdk-go"
)

var (
	statusWait     []string
	statusDeadline time.Duration
)

var statusCmd = &cobra.Command{
	Use:   "status <order-hash>",
	Short: "Read an order's status from the chain",
	Long: `Read an order's current status. With --wait the command polls until the
order reaches one of the given statuses or --deadline passes.`,
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

		var status driftmarket.OrderStatus
		if len(statusWait) > 0 {
			targets := make([]driftmarket.OrderStatus, 0, len(statusWait))
			for _, name := range statusWait {
				target, err := parseStatus(name)
				if err != nil {
					return err
				}
				targets = append(targets, target)
			}
			status, err = client.AwaitOrderStatus(ctx, orderHash, time.Now().Add(statusDeadline), targets...)
		} else {
			status, err = client.GetOrderStatus(ctx, orderHash)
		}
		if err != nil {
			return err
		}

		fmt.Println(status)
		return nil
	},
}

func init() {
	statusCmd.Flags().StringSliceVar(&statusWait, "wait", nil, "poll until one of these statuses is reached")
	statusCmd.Flags().DurationVar(&statusDeadline, "deadline", 2*time.Minute, "how long --wait may poll")
}

func parseStatus(name string) (driftmarket.OrderStatus, error) {
	for _, status := range []driftmarket.OrderStatus{
		driftmarket.StatusPendingApproval,
		driftmarket.StatusPendingSubmission,
		driftmarket.StatusOpen,
		driftmarket.StatusExecuted,
		driftmarket.StatusCancelled,
		driftmarket.StatusExpired,
	} {
		if status.String() == name {
			return status, nil
		}
	}
	return driftmarket.StatusUnknown, fmt.Errorf("unknown status %q", name)
}
