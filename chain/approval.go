package chain

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog"
)

// ApprovalCoordinator guarantees a spender can move an account's assets
// before an order needs it. Allowances are read fresh on every call: the
// chain is the cache, and it may have changed since the last look.
//
// Calls for the same (owner, spender, asset) triple are serialized, so a
// second caller blocks until the first's approval is included and then
// re-reads, observing it instead of issuing a redundant one. Any failure
// past that read is terminal and reported as ApprovalError.
type ApprovalCoordinator struct {
	gw  *Gateway
	log zerolog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewApprovalCoordinator builds a coordinator over the gateway.
func NewApprovalCoordinator(gw *Gateway, log zerolog.Logger) *ApprovalCoordinator {
	return &ApprovalCoordinator{
		gw:    gw,
		log:   log,
		locks: make(map[string]*sync.Mutex),
	}
}

func (c *ApprovalCoordinator) lockFor(key string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.locks[key]
	if !ok {
		l = &sync.Mutex{}
		c.locks[key] = l
	}
	return l
}

// EnsureAllowance makes sure spenderRole may move at least required of the
// owner's currency. If the standing allowance already covers it, no
// transaction is issued. Otherwise it approves exactly the required
// amount, never unbounded, and returns only after inclusion.
func (c *ApprovalCoordinator) EnsureAllowance(ctx context.Context, account Account, spenderRole ContractRole, currency common.Address, required *big.Int) error {
	spender, err := c.gw.Registry().Resolve(spenderRole)
	if err != nil {
		return err
	}
	owner := account.Address()

	key := fmt.Sprintf("allowance|%s|%s|%s", owner.Hex(), spender.Hex(), currency.Hex())
	lock := c.lockFor(key)
	lock.Lock()
	defer lock.Unlock()

	var current *big.Int
	if err := c.gw.ReadInto(ctx, currency, KindFungibleToken, &current, "allowance", owner, spender); err != nil {
		return fmt.Errorf("failed to read allowance: %w", err)
	}
	if current.Cmp(required) >= 0 {
		c.log.Debug().
			Str("owner", owner.Hex()).
			Str("currency", currency.Hex()).
			Str("required", required.String()).
			Str("current", current.String()).
			Msg("allowance already sufficient")
		return nil
	}

	var balance *big.Int
	if err := c.gw.ReadInto(ctx, currency, KindFungibleToken, &balance, "balanceOf", owner); err != nil {
		return fmt.Errorf("failed to read balance: %w", err)
	}
	if balance.Cmp(required) < 0 {
		return &ApprovalError{
			Owner: owner,
			Token: currency,
			Message: fmt.Sprintf("insufficient balance: has %s, needs %s",
				balance.String(), required.String()),
		}
	}

	tx, err := c.gw.WriteAt(ctx, account, currency, KindFungibleToken, "approve", spender, required)
	if err != nil {
		return &ApprovalError{
			Owner:   owner,
			Token:   currency,
			Message: "failed to broadcast approval",
			Err:     err,
		}
	}

	receipt, err := c.gw.WaitIncluded(ctx, tx.Hash())
	if err != nil {
		return &ApprovalError{
			Owner:   owner,
			Token:   currency,
			Message: "approval not included",
			Err:     err,
		}
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return &ApprovalError{
			Owner:   owner,
			Token:   currency,
			Message: "approval reverted: " + c.gw.RevertReason(ctx, owner, tx, receipt),
		}
	}

	c.log.Info().
		Str("owner", owner.Hex()).
		Str("spender", spender.Hex()).
		Str("currency", currency.Hex()).
		Str("amount", required.String()).
		Str("tx", tx.Hash().Hex()).
		Msg("allowance approved")
	return nil
}

// EnsureCollectibleApproval makes sure spenderRole is an operator for the
// owner's collectible contract, granting it if not. Listings need this in
// place of a currency allowance.
func (c *ApprovalCoordinator) EnsureCollectibleApproval(ctx context.Context, account Account, spenderRole ContractRole, token common.Address) error {
	operator, err := c.gw.Registry().Resolve(spenderRole)
	if err != nil {
		return err
	}
	owner := account.Address()

	key := fmt.Sprintf("operator|%s|%s|%s", owner.Hex(), operator.Hex(), token.Hex())
	lock := c.lockFor(key)
	lock.Lock()
	defer lock.Unlock()

	var approved bool
	if err := c.gw.ReadInto(ctx, token, KindCollectibleToken, &approved, "isApprovedForAll", owner, operator); err != nil {
		return fmt.Errorf("failed to read operator approval: %w", err)
	}
	if approved {
		c.log.Debug().
			Str("owner", owner.Hex()).
			Str("token", token.Hex()).
			Msg("operator already approved")
		return nil
	}

	tx, err := c.gw.WriteAt(ctx, account, token, KindCollectibleToken, "setApprovalForAll", operator, true)
	if err != nil {
		return &ApprovalError{
			Owner:   owner,
			Token:   token,
			Message: "failed to broadcast operator approval",
			Err:     err,
		}
	}

	receipt, err := c.gw.WaitIncluded(ctx, tx.Hash())
	if err != nil {
		return &ApprovalError{
			Owner:   owner,
			Token:   token,
			Message: "operator approval not included",
			Err:     err,
		}
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return &ApprovalError{
			Owner:   owner,
			Token:   token,
			Message: "operator approval reverted: " + c.gw.RevertReason(ctx, owner, tx, receipt),
		}
	}

	c.log.Info().
		Str("owner", owner.Hex()).
		Str("operator", operator.Hex()).
		Str("token", token.Hex()).
		Str("tx", tx.Hash().Hex()).
		Msg("operator approved")
	return nil
}
