package chain

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog"
)

// Canceller withdraws previously submitted orders from the book.
type Canceller struct {
	gw  *Gateway
	log zerolog.Logger
}

// NewCanceller builds a canceller over the gateway.
func NewCanceller(gw *Gateway, log zerolog.Logger) *Canceller {
	return &Canceller{gw: gw, log: log}
}

// Cancel submits a cancellation keyed by order hash and waits for its
// inclusion. The order is read back from the book first: a hash the book
// has never seen, or an order already in a final state, fails fast with
// CancellationError before any transaction is broadcast. That pre-read is
// an optimization only: ownership and broker permission are enforced
// on-chain, and a revert there surfaces as CancellationError too.
func (c *Canceller) Cancel(ctx context.Context, account Account, orderHash common.Hash) error {
	return c.cancel(ctx, account, orderHash, nil)
}

// CancelCollectionOffer cancels a collection-wide offer. It refuses orders
// of any other kind, so a caller holding the wrong hash finds out before a
// transaction is spent on it.
func (c *Canceller) CancelCollectionOffer(ctx context.Context, account Account, orderHash common.Hash) error {
	kind := OrderKindCollectionOffer
	return c.cancel(ctx, account, orderHash, &kind)
}

func (c *Canceller) cancel(ctx context.Context, account Account, orderHash common.Hash, requireKind *OrderKind) error {
	record, err := readOrder(ctx, c.gw, orderHash)
	if err != nil {
		return err
	}
	if record.State == StateAbsent {
		return &CancellationError{
			OrderHash: orderHash,
			Reason:    "order not found on book",
		}
	}
	if status := TranslateState(record.State); status.Terminal() {
		return &CancellationError{
			OrderHash: orderHash,
			Reason:    "order already " + status.String(),
		}
	}
	if requireKind != nil && record.Kind != *requireKind {
		return &CancellationError{
			OrderHash: orderHash,
			Reason:    "order is not a " + requireKind.String(),
		}
	}

	tx, err := c.gw.Write(ctx, account, RoleOrderBook, "cancelOrder", orderHash, record.Token)
	if err != nil {
		return &CancellationError{
			OrderHash: orderHash,
			Reason:    "failed to broadcast cancellation",
			Err:       err,
		}
	}

	receipt, err := c.gw.WaitIncluded(ctx, tx.Hash())
	if err != nil {
		return &CancellationError{
			OrderHash: orderHash,
			Reason:    "cancellation not included",
			Err:       err,
		}
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return &CancellationError{
			OrderHash: orderHash,
			Reason:    c.gw.RevertReason(ctx, account.Address(), tx, receipt),
		}
	}

	c.log.Info().
		Str("order", orderHash.Hex()).
		Str("tx", tx.Hash().Hex()).
		Msg("order cancelled")
	return nil
}
