package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

const (
	defaultWriteGasLimit  = uint64(500000)
	defaultReceiptTimeout = 120 * time.Second
	defaultReceiptPoll    = 2 * time.Second
)

// GatewayConfig wires a gateway to one network.
type GatewayConfig struct {
	Backend  Backend
	Registry *AddressRegistry
	// ChainID is the expected chain, taken from the network table. Writes
	// are signed against it; CheckNetwork verifies the node agrees.
	ChainID *big.Int
	// GasLimit for writes. Zero means the default.
	GasLimit uint64
	// ReceiptPoll and ReceiptTimeout bound inclusion waits. Zero means the
	// defaults.
	ReceiptPoll    time.Duration
	ReceiptTimeout time.Duration
	Logger         zerolog.Logger
}

// Gateway is the single path to the platform contracts: role-addressed
// reads and writes, with the contract interface resolved and cached on
// first use. All transaction broadcast goes through the per-account
// sequencer so nonces never race.
type Gateway struct {
	backend  Backend
	registry *AddressRegistry
	chainID  *big.Int
	seq      *Sequencer
	log      zerolog.Logger

	gasLimit       uint64
	receiptPoll    time.Duration
	receiptTimeout time.Duration

	resolving singleflight.Group
	mu        sync.RWMutex
	bound     map[common.Address]abi.ABI
}

// NewGateway builds a gateway. Missing tunables fall back to defaults.
func NewGateway(cfg GatewayConfig) *Gateway {
	if cfg.GasLimit == 0 {
		cfg.GasLimit = defaultWriteGasLimit
	}
	if cfg.ReceiptPoll == 0 {
		cfg.ReceiptPoll = defaultReceiptPoll
	}
	if cfg.ReceiptTimeout == 0 {
		cfg.ReceiptTimeout = defaultReceiptTimeout
	}
	return &Gateway{
		backend:        cfg.Backend,
		registry:       cfg.Registry,
		chainID:        cfg.ChainID,
		seq:            NewSequencer(cfg.Backend),
		log:            cfg.Logger,
		gasLimit:       cfg.GasLimit,
		receiptPoll:    cfg.ReceiptPoll,
		receiptTimeout: cfg.ReceiptTimeout,
		bound:          make(map[common.Address]abi.ABI),
	}
}

// Registry returns the address registry the gateway resolves roles against.
func (g *Gateway) Registry() *AddressRegistry {
	return g.registry
}

// ChainID returns the configured chain identifier.
func (g *Gateway) ChainID() *big.Int {
	return g.chainID
}

// CheckNetwork asks the node for its chain ID and compares it with the
// configured one. A mismatch means the RPC URL and network label disagree.
func (g *Gateway) CheckNetwork(ctx context.Context) error {
	got, err := g.backend.ChainID(ctx)
	if err != nil {
		return fmt.Errorf("failed to query chain ID: %w", err)
	}
	if got.Cmp(g.chainID) != 0 {
		return &ConfigurationError{
			Network: g.registry.Network(),
			Message: fmt.Sprintf("node reports chain %s, network %q expects %s",
				got.String(), g.registry.Network(), g.chainID.String()),
		}
	}
	return nil
}

// bind resolves the interface for a contract, confirming code exists at the
// address and parsing the interface description. The result is cached per
// address for the life of the gateway; concurrent first uses share one
// resolution.
func (g *Gateway) bind(ctx context.Context, addr common.Address, kind ContractKind, role ContractRole) (abi.ABI, error) {
	g.mu.RLock()
	parsed, ok := g.bound[addr]
	g.mu.RUnlock()
	if ok {
		return parsed, nil
	}

	v, err, _ := g.resolving.Do(addr.Hex(), func() (interface{}, error) {
		g.mu.RLock()
		parsed, ok := g.bound[addr]
		g.mu.RUnlock()
		if ok {
			return parsed, nil
		}

		code, err := g.backend.CodeAt(ctx, addr, nil)
		if err != nil {
			return nil, &InterfaceResolutionError{
				Address: addr, Role: role,
				Message: "failed to fetch contract code",
				Err:     err,
			}
		}
		if len(code) == 0 {
			return nil, &InterfaceResolutionError{
				Address: addr, Role: role,
				Message: "no contract code at address",
			}
		}

		raw, ok := interfaceJSON(kind)
		if !ok {
			return nil, &InterfaceResolutionError{
				Address: addr, Role: role,
				Message: fmt.Sprintf("no interface description for kind %s", kind),
			}
		}
		parsed, err := abi.JSON(strings.NewReader(raw))
		if err != nil {
			return nil, &InterfaceResolutionError{
				Address: addr, Role: role,
				Message: "failed to parse interface description",
				Err:     err,
			}
		}

		g.mu.Lock()
		g.bound[addr] = parsed
		g.mu.Unlock()

		g.log.Debug().
			Str("address", addr.Hex()).
			Str("kind", kind.String()).
			Msg("contract interface resolved")
		return parsed, nil
	})
	if err != nil {
		return abi.ABI{}, err
	}
	return v.(abi.ABI), nil
}

// Read performs a view call on a role's contract and returns the unpacked
// values.
func (g *Gateway) Read(ctx context.Context, role ContractRole, method string, args ...interface{}) ([]interface{}, error) {
	addr, err := g.registry.Resolve(role)
	if err != nil {
		return nil, err
	}
	return g.readAt(ctx, addr, kindForRole[role], role, method, args...)
}

// ReadAt performs a view call on an explicit contract address, used for
// token contracts named by the order rather than by role.
func (g *Gateway) ReadAt(ctx context.Context, addr common.Address, kind ContractKind, method string, args ...interface{}) ([]interface{}, error) {
	return g.readAt(ctx, addr, kind, "", method, args...)
}

func (g *Gateway) readAt(ctx context.Context, addr common.Address, kind ContractKind, role ContractRole, method string, args ...interface{}) ([]interface{}, error) {
	parsed, err := g.bind(ctx, addr, kind, role)
	if err != nil {
		return nil, err
	}

	data, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s: %w", method, err)
	}

	out, err := g.backend.CallContract(ctx, ethereum.CallMsg{
		To:   &addr,
		Data: data,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("call to %s on %s failed: %w", method, addr.Hex(), err)
	}

	vals, err := parsed.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack %s result: %w", method, err)
	}
	return vals, nil
}

// ReadInto performs a view call and unpacks the result into out, which
// follows the usual interface unpacking rules (pointer to value for single
// returns, pointer to struct for multiple).
func (g *Gateway) ReadInto(ctx context.Context, addr common.Address, kind ContractKind, out interface{}, method string, args ...interface{}) error {
	parsed, err := g.bind(ctx, addr, kind, "")
	if err != nil {
		return err
	}

	data, err := parsed.Pack(method, args...)
	if err != nil {
		return fmt.Errorf("failed to pack %s: %w", method, err)
	}

	raw, err := g.backend.CallContract(ctx, ethereum.CallMsg{
		To:   &addr,
		Data: data,
	}, nil)
	if err != nil {
		return fmt.Errorf("call to %s on %s failed: %w", method, addr.Hex(), err)
	}

	if err := parsed.UnpackIntoInterface(out, method, raw); err != nil {
		return fmt.Errorf("failed to unpack %s result: %w", method, err)
	}
	return nil
}

// Write signs and broadcasts a state-changing call on a role's contract.
// It returns the broadcast transaction; inclusion is awaited separately
// with WaitIncluded.
func (g *Gateway) Write(ctx context.Context, account Account, role ContractRole, method string, args ...interface{}) (*types.Transaction, error) {
	addr, err := g.registry.Resolve(role)
	if err != nil {
		return nil, err
	}
	return g.writeAt(ctx, account, addr, kindForRole[role], role, method, args...)
}

// WriteAt signs and broadcasts a state-changing call on an explicit
// contract address.
func (g *Gateway) WriteAt(ctx context.Context, account Account, addr common.Address, kind ContractKind, method string, args ...interface{}) (*types.Transaction, error) {
	return g.writeAt(ctx, account, addr, kind, "", method, args...)
}

func (g *Gateway) writeAt(ctx context.Context, account Account, addr common.Address, kind ContractKind, role ContractRole, method string, args ...interface{}) (*types.Transaction, error) {
	parsed, err := g.bind(ctx, addr, kind, role)
	if err != nil {
		return nil, err
	}

	data, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s: %w", method, err)
	}

	if err := g.checkGasBalance(ctx, account.Address(), g.gasLimit); err != nil {
		return nil, err
	}

	gasPrice, err := g.backend.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get gas price: %w", err)
	}

	tx, err := g.seq.Broadcast(ctx, account.Address(), func(nonce uint64) (*types.Transaction, error) {
		unsigned := types.NewTransaction(nonce, addr, big.NewInt(0), g.gasLimit, gasPrice, data)
		return account.SignTx(unsigned, g.chainID)
	})
	if err != nil {
		return nil, err
	}

	g.log.Info().
		Str("method", method).
		Str("to", addr.Hex()).
		Str("tx", tx.Hash().Hex()).
		Uint64("nonce", tx.Nonce()).
		Msg("transaction broadcast")
	return tx, nil
}

// checkGasBalance verifies the signer can afford the write, with a 20%
// margin over the estimate.
func (g *Gateway) checkGasBalance(ctx context.Context, signer common.Address, estimatedGas uint64) error {
	balance, err := g.backend.BalanceAt(ctx, signer, nil)
	if err != nil {
		return fmt.Errorf("failed to get balance: %w", err)
	}

	gasPrice, err := g.backend.SuggestGasPrice(ctx)
	if err != nil {
		return fmt.Errorf("failed to get gas price: %w", err)
	}

	withMargin := new(big.Int).Mul(big.NewInt(int64(estimatedGas)), big.NewInt(120))
	withMargin.Div(withMargin, big.NewInt(100))
	required := new(big.Int).Mul(withMargin, gasPrice)

	if balance.Cmp(required) < 0 {
		return fmt.Errorf("insufficient gas balance: signer %s has %s, needs approximately %s",
			signer.Hex(), balance.String(), required.String())
	}
	return nil
}

// WaitIncluded polls for the receipt of a broadcast transaction until it is
// included or the wait times out.
func (g *Gateway) WaitIncluded(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	waitCtx, cancel := context.WithTimeout(ctx, g.receiptTimeout)
	defer cancel()

	for {
		receipt, err := g.backend.TransactionReceipt(waitCtx, txHash)
		if err == nil {
			return receipt, nil
		}

		select {
		case <-waitCtx.Done():
			return nil, fmt.Errorf("timed out waiting for receipt of %s: %w", txHash.Hex(), waitCtx.Err())
		case <-time.After(g.receiptPoll):
		}
	}
}

// RevertReason re-executes an included, failed transaction as a call at its
// block and decodes the revert reason, if the chain exposes one.
func (g *Gateway) RevertReason(ctx context.Context, from common.Address, tx *types.Transaction, receipt *types.Receipt) string {
	msg := ethereum.CallMsg{
		From:     from,
		To:       tx.To(),
		Gas:      tx.Gas(),
		GasPrice: tx.GasPrice(),
		Value:    tx.Value(),
		Data:     tx.Data(),
	}

	ret, err := g.backend.CallContract(ctx, msg, receipt.BlockNumber)
	if err != nil {
		// Many nodes deliver the reason inside the call error itself.
		return err.Error()
	}
	if reason := decodeRevert(ret); reason != "" {
		return reason
	}
	return "execution reverted"
}

// revertSelector is the 4-byte selector of Error(string).
var revertSelector = [4]byte{0x08, 0xc3, 0x79, 0xa0}

func decodeRevert(ret []byte) string {
	if len(ret) < 4 || [4]byte(ret[:4]) != revertSelector {
		return ""
	}
	stringType, err := abi.NewType("string", "", nil)
	if err != nil {
		return ""
	}
	vals, err := abi.Arguments{{Type: stringType}}.Unpack(ret[4:])
	if err != nil || len(vals) == 0 {
		return ""
	}
	reason, _ := vals[0].(string)
	return reason
}
