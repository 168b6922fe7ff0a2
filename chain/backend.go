package chain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Backend is the RPC boundary: the only window the SDK has onto the chain.
// *ethclient.Client satisfies it; tests substitute an in-memory fake.
// Transport behaviour below this line (connection pooling, HTTP vs IPC,
// provider retries) is out of the SDK's hands.
type Backend interface {
	// CodeAt returns the deployed bytecode at an address, used to confirm a
	// configured contract actually exists before its interface is trusted.
	CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error)

	// CallContract performs a read-only (view) call.
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)

	// PendingNonceAt reports the next account nonce including pending txs.
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)

	// SuggestGasPrice returns the node's current gas price estimate.
	SuggestGasPrice(ctx context.Context) (*big.Int, error)

	// ChainID returns the chain identifier used for replay-protected signing.
	ChainID(ctx context.Context) (*big.Int, error)

	// SendTransaction broadcasts a signed transaction.
	SendTransaction(ctx context.Context, tx *types.Transaction) error

	// TransactionReceipt returns the receipt of an included transaction, or
	// ethereum.NotFound while it is still pending.
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)

	// BalanceAt returns the gas-token balance of an account.
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
}
