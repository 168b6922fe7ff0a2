package chain

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Error classes map one-to-one onto the lifecycle phase that produced them,
// so callers can branch on the phase without string matching. Each class
// wraps the underlying cause where one exists.

// ConfigurationError reports a statically-wrong setup: an unknown network,
// a role with no configured address, or a malformed address table. It is
// never retried.
type ConfigurationError struct {
	Network string
	Role    ContractRole
	Message string
}

func (e *ConfigurationError) Error() string {
	if e.Role != "" {
		return fmt.Sprintf("configuration error: no address for role %q on network %q", e.Role, e.Network)
	}
	return fmt.Sprintf("configuration error: %s", e.Message)
}

// InterfaceResolutionError reports that a configured contract could not be
// bound: no code at the address, or the interface description failed to
// parse. The gateway raises it on first use of the contract.
type InterfaceResolutionError struct {
	Address common.Address
	Role    ContractRole
	Message string
	Err     error
}

func (e *InterfaceResolutionError) Error() string {
	msg := fmt.Sprintf("interface resolution failed for %s at %s: %s", e.Role, e.Address.Hex(), e.Message)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *InterfaceResolutionError) Unwrap() error {
	return e.Err
}

// ApprovalError reports a failed allowance or operator grant. Approval
// failures are terminal for the submission that needed them.
type ApprovalError struct {
	Owner   common.Address
	Token   common.Address
	Message string
	Err     error
}

func (e *ApprovalError) Error() string {
	msg := fmt.Sprintf("approval failed for token %s owned by %s: %s", e.Token.Hex(), e.Owner.Hex(), e.Message)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ApprovalError) Unwrap() error {
	return e.Err
}

// Submission steps, recorded in SubmissionError so the caller knows how far
// an order got before failing.
const (
	StepValidate  = "validate"
	StepApprove   = "approve"
	StepBroadcast = "broadcast"
	StepInclusion = "inclusion"
	StepExecute   = "execute"
)

// SubmissionError reports a failed order submission or execution. Step names
// the lifecycle phase that failed; Reason carries the decoded revert reason
// when the chain provided one.
type SubmissionError struct {
	Step      string
	OrderHash common.Hash
	Reason    string
	Err       error
}

func (e *SubmissionError) Error() string {
	msg := fmt.Sprintf("order submission failed at step %q", e.Step)
	if e.OrderHash != (common.Hash{}) {
		msg += " for order " + e.OrderHash.Hex()
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *SubmissionError) Unwrap() error {
	return e.Err
}

// CancellationError reports a cancellation that could not proceed: the order
// is unknown to the book, already in a final state, or the cancel
// transaction reverted.
type CancellationError struct {
	OrderHash common.Hash
	Reason    string
	Err       error
}

func (e *CancellationError) Error() string {
	msg := fmt.Sprintf("cancellation failed for order %s: %s", e.OrderHash.Hex(), e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *CancellationError) Unwrap() error {
	return e.Err
}

// TimeoutError reports that an awaited condition did not hold before the
// deadline. LastStatus is the most recent observation, so callers can tell
// "still open" apart from "never seen".
type TimeoutError struct {
	OrderHash  common.Hash
	LastStatus OrderStatus
	Message    string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timed out waiting on order %s (last status %s): %s",
		e.OrderHash.Hex(), e.LastStatus, e.Message)
}
