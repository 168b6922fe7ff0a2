package driftmarket

import "github.com/driftsea/market-sdk-go/chain"

// The lifecycle error classes are defined in the chain package and aliased
// here, so callers can branch on them with errors.As without importing
// chain directly.
type (
	// ConfigurationError reports an unknown network or a role with no
	// configured address.
	ConfigurationError = chain.ConfigurationError

	// InterfaceResolutionError reports a configured contract that could not
	// be bound on first use.
	InterfaceResolutionError = chain.InterfaceResolutionError

	// ApprovalError reports a failed allowance or operator grant.
	ApprovalError = chain.ApprovalError

	// SubmissionError reports a failed order submission or execution,
	// including the step that failed.
	SubmissionError = chain.SubmissionError

	// CancellationError reports a cancellation that could not proceed.
	CancellationError = chain.CancellationError

	// TimeoutError reports an awaited condition that did not hold before
	// its deadline.
	TimeoutError = chain.TimeoutError
)

// InvalidParamError represents a caller-supplied parameter the client
// refused before any chain interaction.
type InvalidParamError struct {
	Message string
}

func (e *InvalidParamError) Error() string {
	return e.Message
}
