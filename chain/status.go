package chain

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
)

// OrderStatus is the client-side view of an order's lifecycle. The first
// two states are produced locally while a submission is in flight; the rest
// are translated from chain state.
type OrderStatus int

const (
	// StatusUnknown is the safe default for anything the client does not
	// recognize. It is never terminal: re-poll.
	StatusUnknown OrderStatus = iota
	// StatusPendingApproval means the submission is waiting on an
	// allowance or operator grant.
	StatusPendingApproval
	// StatusPendingSubmission means approvals are done and the order
	// transaction is being broadcast or awaiting inclusion.
	StatusPendingSubmission
	// StatusOpen means the order is live on the book.
	StatusOpen
	// StatusExecuted means the order settled.
	StatusExecuted
	// StatusCancelled means the order was cancelled.
	StatusCancelled
	// StatusExpired means the order passed its expiration before settling.
	StatusExpired
)

func (s OrderStatus) String() string {
	switch s {
	case StatusPendingApproval:
		return "pending_approval"
	case StatusPendingSubmission:
		return "pending_submission"
	case StatusOpen:
		return "open"
	case StatusExecuted:
		return "executed"
	case StatusCancelled:
		return "cancelled"
	case StatusExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// Terminal reports whether the status can no longer change.
func (s OrderStatus) Terminal() bool {
	switch s {
	case StatusExecuted, StatusCancelled, StatusExpired:
		return true
	default:
		return false
	}
}

// OrderState is the raw one-hot tag the order-book contract reports.
type OrderState uint8

const (
	StateAbsent          OrderState = 0
	StateOpen            OrderState = 1
	StatePartiallyFilled OrderState = 2
	StateFilled          OrderState = 3
	StateCancelled       OrderState = 4
	StateExpired         OrderState = 5
)

// stateTable is the full translation from chain tags to client statuses.
// Every tag the contract defines today appears here; a tag missing from the
// table translates to StatusUnknown so new chain-side states degrade to
// "re-poll" instead of breaking the client.
var stateTable = map[OrderState]OrderStatus{
	StateAbsent:          StatusUnknown,
	StateOpen:            StatusOpen,
	StatePartiallyFilled: StatusOpen,
	StateFilled:          StatusExecuted,
	StateCancelled:       StatusCancelled,
	StateExpired:         StatusExpired,
}

// TranslateState maps a chain-reported order state to a client status.
func TranslateState(state OrderState) OrderStatus {
	status, ok := stateTable[state]
	if !ok {
		return StatusUnknown
	}
	return status
}

// StatusResolver reads and polls chain-side order state.
type StatusResolver struct {
	gw   *Gateway
	poll time.Duration
	log  zerolog.Logger
}

// NewStatusResolver builds a resolver polling at the given base interval.
// Zero means one second.
func NewStatusResolver(gw *Gateway, poll time.Duration, log zerolog.Logger) *StatusResolver {
	if poll == 0 {
		poll = time.Second
	}
	return &StatusResolver{gw: gw, poll: poll, log: log}
}

// State reads the raw chain tag for an order hash.
func (r *StatusResolver) State(ctx context.Context, orderHash common.Hash) (OrderState, error) {
	vals, err := r.gw.Read(ctx, RoleOrderBook, "orderState", orderHash)
	if err != nil {
		return StateAbsent, err
	}
	code, ok := vals[0].(uint8)
	if !ok {
		return StateAbsent, errors.New("order state read returned unexpected type")
	}
	return OrderState(code), nil
}

// Status reads the order's chain state and translates it.
func (r *StatusResolver) Status(ctx context.Context, orderHash common.Hash) (OrderStatus, error) {
	state, err := r.State(ctx, orderHash)
	if err != nil {
		return StatusUnknown, err
	}
	return TranslateState(state), nil
}

var errStatusNotReached = errors.New("target status not reached")

// AwaitStatus polls until the order reaches one of the target statuses or
// the deadline passes. On deadline expiry it returns a TimeoutError carrying
// the last observed status; the chain is left untouched, so a later Status
// call still reflects the true state. Transient read errors are absorbed
// into the polling loop; configuration and interface errors abort at once.
func (r *StatusResolver) AwaitStatus(ctx context.Context, orderHash common.Hash, targets []OrderStatus, deadline time.Time) (OrderStatus, error) {
	waitCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	last := StatusUnknown
	attempt := func() error {
		status, err := r.Status(waitCtx, orderHash)
		if err != nil {
			var cfgErr *ConfigurationError
			var ifaceErr *InterfaceResolutionError
			if errors.As(err, &cfgErr) || errors.As(err, &ifaceErr) {
				return backoff.Permanent(err)
			}
			r.log.Debug().Err(err).Str("order", orderHash.Hex()).Msg("status read failed, will retry")
			return err
		}
		last = status
		for _, target := range targets {
			if status == target {
				return nil
			}
		}
		return errStatusNotReached
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = r.poll
	bo.MaxInterval = 4 * r.poll
	bo.MaxElapsedTime = 0

	err := backoff.Retry(attempt, backoff.WithContext(bo, waitCtx))
	if err == nil {
		return last, nil
	}
	if ctx.Err() != nil {
		return last, ctx.Err()
	}
	if waitCtx.Err() != nil {
		return last, &TimeoutError{
			OrderHash:  orderHash,
			LastStatus: last,
			Message:    "deadline passed before target status",
		}
	}
	return last, err
}
