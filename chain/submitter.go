package chain

import (
	"context"
	"errors"
	"math/big"
	"net"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog"
)

const defaultBroadcastRetries = 3

// Submitter drives an order from canonical intent to inclusion on the
// book. Steps are strictly causal: approvals are observed included before
// the order transaction is broadcast, and the broadcast is observed
// included before Submit returns.
type Submitter struct {
	gw        *Gateway
	approvals *ApprovalCoordinator
	log       zerolog.Logger

	retries   uint64
	retryBase time.Duration
}

// NewSubmitter builds a submitter over the gateway and coordinator.
func NewSubmitter(gw *Gateway, approvals *ApprovalCoordinator, log zerolog.Logger) *Submitter {
	return &Submitter{
		gw:        gw,
		approvals: approvals,
		log:       log,
		retries:   defaultBroadcastRetries,
		retryBase: 500 * time.Millisecond,
	}
}

// Submit places a validated intent on the book and returns its hash once
// the creation transaction is included. Reverts are terminal; transient
// broadcast failures are retried a bounded number of times with
// exponential backoff before giving up.
func (s *Submitter) Submit(ctx context.Context, account Account, intent *OrderIntent) (common.Hash, error) {
	if intent == nil {
		return common.Hash{}, &SubmissionError{Step: StepValidate, Reason: "nil intent"}
	}
	hash := intent.Hash()
	log := s.log.With().Str("order", hash.Hex()).Str("kind", intent.Kind.String()).Logger()

	log.Debug().Msg("ensuring approvals")
	var err error
	if intent.BuySide() {
		err = s.approvals.EnsureAllowance(ctx, account, RoleExecutor, intent.Currency, intent.MaxAmount())
	} else {
		err = s.approvals.EnsureCollectibleApproval(ctx, account, RoleExecutor, intent.TokenAddress)
	}
	if err != nil {
		return common.Hash{}, err
	}

	tx, err := s.retryWrite(ctx, account, hash, RoleOrderBook, "createOrder", intent.tuple())
	if err != nil {
		return common.Hash{}, err
	}

	receipt, err := s.gw.WaitIncluded(ctx, tx.Hash())
	if err != nil {
		return common.Hash{}, &SubmissionError{
			Step:      StepInclusion,
			OrderHash: hash,
			Err:       err,
		}
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return common.Hash{}, &SubmissionError{
			Step:      StepInclusion,
			OrderHash: hash,
			Reason:    s.gw.RevertReason(ctx, account.Address(), tx, receipt),
		}
	}

	log.Info().Str("tx", tx.Hash().Hex()).Msg("order placed")
	return hash, nil
}

// Execute settles an open order as the filling counterparty: it reads the
// order back from the book, puts the filler's own approvals in place, and
// drives the executor contract to settlement.
func (s *Submitter) Execute(ctx context.Context, account Account, orderHash common.Hash) error {
	record, err := s.ReadOrder(ctx, orderHash)
	if err != nil {
		return err
	}
	if record.State == StateAbsent {
		return &SubmissionError{
			Step:      StepExecute,
			OrderHash: orderHash,
			Reason:    "order not found on book",
		}
	}
	if status := TranslateState(record.State); status.Terminal() {
		return &SubmissionError{
			Step:      StepExecute,
			OrderHash: orderHash,
			Reason:    "order already " + status.String(),
		}
	}

	// The filler's obligations mirror the maker's: filling a listing costs
	// currency at the order's current amount, filling an offer hands over
	// the collectible.
	if record.Kind == OrderKindListing {
		price, err := s.currentAmount(ctx, orderHash)
		if err != nil {
			return err
		}
		if err := s.approvals.EnsureAllowance(ctx, account, RoleExecutor, record.Currency, price); err != nil {
			return err
		}
	} else {
		if err := s.approvals.EnsureCollectibleApproval(ctx, account, RoleExecutor, record.Token); err != nil {
			return err
		}
	}

	tx, err := s.retryWrite(ctx, account, orderHash, RoleExecutor, "executeOrder", orderHash)
	if err != nil {
		return err
	}

	receipt, err := s.gw.WaitIncluded(ctx, tx.Hash())
	if err != nil {
		return &SubmissionError{
			Step:      StepExecute,
			OrderHash: orderHash,
			Err:       err,
		}
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return &SubmissionError{
			Step:      StepExecute,
			OrderHash: orderHash,
			Reason:    s.gw.RevertReason(ctx, account.Address(), tx, receipt),
		}
	}

	s.log.Info().
		Str("order", orderHash.Hex()).
		Str("tx", tx.Hash().Hex()).
		Msg("order executed")
	return nil
}

// ReadOrder fetches an order's stored form and state from the book.
func (s *Submitter) ReadOrder(ctx context.Context, orderHash common.Hash) (*OrderRecord, error) {
	return readOrder(ctx, s.gw, orderHash)
}

// readOrder is the shared getOrder decode, used by submission and
// cancellation pre-reads.
func readOrder(ctx context.Context, gw *Gateway, orderHash common.Hash) (*OrderRecord, error) {
	vals, err := gw.Read(ctx, RoleOrderBook, "getOrder", orderHash)
	if err != nil {
		return nil, err
	}
	if len(vals) != 2 {
		return nil, errors.New("order read returned unexpected shape")
	}
	tuple := *abi.ConvertType(vals[0], new(bookOrder)).(*bookOrder)
	state, ok := vals[1].(uint8)
	if !ok {
		return nil, errors.New("order state read returned unexpected type")
	}
	return recordFromTuple(tuple, state), nil
}

func (s *Submitter) currentAmount(ctx context.Context, orderHash common.Hash) (*big.Int, error) {
	vals, err := s.gw.Read(ctx, RoleOrderBook, "currentAmount", orderHash)
	if err != nil {
		return nil, err
	}
	amount, ok := vals[0].(*big.Int)
	if !ok {
		return nil, errors.New("current amount read returned unexpected type")
	}
	return amount, nil
}

// retryWrite broadcasts a write, retrying transient failures with bounded
// exponential backoff. Anything non-transient aborts immediately.
func (s *Submitter) retryWrite(ctx context.Context, account Account, orderHash common.Hash, role ContractRole, method string, args ...interface{}) (*types.Transaction, error) {
	var tx *types.Transaction
	attempt := func() error {
		var err error
		tx, err = s.gw.Write(ctx, account, role, method, args...)
		if err == nil {
			return nil
		}
		if isTransient(err) {
			s.log.Warn().Err(err).
				Str("order", orderHash.Hex()).
				Str("method", method).
				Msg("transient broadcast failure, retrying")
			return err
		}
		return backoff.Permanent(err)
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = s.retryBase
	bo.MaxElapsedTime = 0

	err := backoff.Retry(attempt, backoff.WithContext(backoff.WithMaxRetries(bo, s.retries), ctx))
	if err != nil {
		return nil, &SubmissionError{
			Step:      StepBroadcast,
			OrderHash: orderHash,
			Err:       err,
		}
	}
	return tx, nil
}

// Markers of failures worth retrying: nonce races and flaky transport.
// Contract reverts and configuration problems never match.
var transientMarkers = []string{
	"nonce too low",
	"nonce too high",
	"replacement transaction underpriced",
	"already known",
	"connection refused",
	"connection reset",
	"i/o timeout",
	"eof",
}

func isTransient(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range transientMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
