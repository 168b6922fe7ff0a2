package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// fakeBackend is an in-memory chain: it decodes broadcast transactions
// against the same interface descriptions the gateway uses, applies their
// effects to fake contract state, and serves view calls from that state.
// Nonces are enforced per account, so sequencing bugs surface as send
// errors.
type fakeBackend struct {
	mu      sync.Mutex
	chainID *big.Int

	kinds    map[common.Address]ContractKind
	parsed   map[ContractKind]abi.ABI
	balances map[common.Address]*big.Int
	nonces   map[common.Address]uint64

	allowances    map[string]*big.Int
	operators     map[string]bool
	tokenBalances map[string]*big.Int
	decimals      map[common.Address]uint8
	orders        map[common.Hash]bookOrder
	states        map[common.Hash]uint8
	makerOrders   map[common.Address][][32]byte
	relay         string

	receipts     map[common.Hash]*types.Receipt
	pendingCount map[common.Hash]int
	receiptDelay int
	revertData   map[string]string

	// Injection knobs: errors popped per call, reverts keyed by method.
	sendErrs []error
	callErrs []error
	revertOn map[string]string

	// Instrumentation.
	writeLog         []string
	nonceLog         map[common.Address][]uint64
	codeAtCalls      int
	pendingNonceHits int
}

func newFakeBackend() *fakeBackend {
	f := &fakeBackend{
		chainID:       big.NewInt(31337),
		kinds:         make(map[common.Address]ContractKind),
		parsed:        make(map[ContractKind]abi.ABI),
		balances:      make(map[common.Address]*big.Int),
		nonces:        make(map[common.Address]uint64),
		allowances:    make(map[string]*big.Int),
		operators:     make(map[string]bool),
		tokenBalances: make(map[string]*big.Int),
		decimals:      make(map[common.Address]uint8),
		orders:        make(map[common.Hash]bookOrder),
		states:        make(map[common.Hash]uint8),
		makerOrders:   make(map[common.Address][][32]byte),
		receipts:      make(map[common.Hash]*types.Receipt),
		pendingCount:  make(map[common.Hash]int),
		revertData:    make(map[string]string),
		revertOn:      make(map[string]string),
		nonceLog:      make(map[common.Address][]uint64),
	}
	for _, kind := range []ContractKind{KindOrderBook, KindExecutor, KindMessaging, KindFungibleToken, KindCollectibleToken} {
		raw, _ := interfaceJSON(kind)
		parsed, err := abi.JSON(strings.NewReader(raw))
		if err != nil {
			panic("bad interface description: " + err.Error())
		}
		f.parsed[kind] = parsed
	}
	return f
}

func (f *fakeBackend) register(addr common.Address, kind ContractKind) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.kinds[addr] = kind
}

func (f *fakeBackend) fund(addr common.Address, amount *big.Int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balances[addr] = new(big.Int).Set(amount)
}

func (f *fakeBackend) setAllowance(token, owner, spender common.Address, amount *big.Int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.allowances[tripleKey(token, owner, spender)] = new(big.Int).Set(amount)
}

func (f *fakeBackend) allowance(token, owner, spender common.Address) *big.Int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if a, ok := f.allowances[tripleKey(token, owner, spender)]; ok {
		return new(big.Int).Set(a)
	}
	return big.NewInt(0)
}

func (f *fakeBackend) setTokenBalance(token, owner common.Address, amount *big.Int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokenBalances[pairKey(token, owner)] = new(big.Int).Set(amount)
}

func (f *fakeBackend) setOperator(token, owner, operator common.Address, approved bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.operators[tripleKey(token, owner, operator)] = approved
}

func (f *fakeBackend) setOrder(hash common.Hash, ord bookOrder, state OrderState) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orders[hash] = ord
	f.states[hash] = uint8(state)
}

func (f *fakeBackend) setState(hash common.Hash, state uint8) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states[hash] = state
}

func (f *fakeBackend) state(hash common.Hash) uint8 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.states[hash]
}

func (f *fakeBackend) failNextSends(errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sendErrs = append(f.sendErrs, errs...)
}

func (f *fakeBackend) failNextCalls(errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.callErrs = append(f.callErrs, errs...)
}

func (f *fakeBackend) revertMethod(method, reason string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revertOn[method] = reason
}

func (f *fakeBackend) writes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.writeLog...)
}

func (f *fakeBackend) writeCount(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, w := range f.writeLog {
		if w == method {
			n++
		}
	}
	return n
}

func (f *fakeBackend) noncesSeen(addr common.Address) []uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]uint64(nil), f.nonceLog[addr]...)
}

func tripleKey(a, b, c common.Address) string {
	return a.Hex() + "|" + b.Hex() + "|" + c.Hex()
}

func pairKey(a, b common.Address) string {
	return a.Hex() + "|" + b.Hex()
}

func zeroBookOrder() bookOrder {
	return bookOrder{
		TokenId:     big.NewInt(0),
		StartAmount: big.NewInt(0),
		EndAmount:   big.NewInt(0),
	}
}

// Backend implementation.

func (f *fakeBackend) CodeAt(_ context.Context, account common.Address, _ *big.Int) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.codeAtCalls++
	if _, ok := f.kinds[account]; ok {
		return []byte{0x60, 0x80}, nil
	}
	return nil, nil
}

func (f *fakeBackend) CallContract(_ context.Context, call ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.callErrs) > 0 {
		err := f.callErrs[0]
		f.callErrs = f.callErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	if call.To == nil {
		return nil, errors.New("contract creation not supported")
	}
	if reason, ok := f.revertData[string(call.Data)]; ok {
		return nil, errors.New("execution reverted: " + reason)
	}

	to := *call.To
	kind, ok := f.kinds[to]
	if !ok {
		return nil, fmt.Errorf("no contract at %s", to.Hex())
	}
	parsed := f.parsed[kind]
	method, err := parsed.MethodById(call.Data[:4])
	if err != nil {
		return nil, err
	}
	args, err := method.Inputs.Unpack(call.Data[4:])
	if err != nil {
		return nil, err
	}

	switch method.Name {
	case "allowance":
		owner, spender := args[0].(common.Address), args[1].(common.Address)
		amount, ok := f.allowances[tripleKey(to, owner, spender)]
		if !ok {
			amount = big.NewInt(0)
		}
		return method.Outputs.Pack(amount)
	case "balanceOf":
		owner := args[0].(common.Address)
		amount, ok := f.tokenBalances[pairKey(to, owner)]
		if !ok {
			amount = big.NewInt(0)
		}
		return method.Outputs.Pack(amount)
	case "decimals":
		d, ok := f.decimals[to]
		if !ok {
			d = 18
		}
		return method.Outputs.Pack(d)
	case "isApprovedForAll":
		owner, operator := args[0].(common.Address), args[1].(common.Address)
		return method.Outputs.Pack(f.operators[tripleKey(to, owner, operator)])
	case "ownerOf":
		return method.Outputs.Pack(common.Address{})
	case "orderState":
		hash := common.Hash(args[0].([32]byte))
		return method.Outputs.Pack(f.states[hash])
	case "getOrder":
		hash := common.Hash(args[0].([32]byte))
		ord, ok := f.orders[hash]
		if !ok {
			ord = zeroBookOrder()
		}
		return method.Outputs.Pack(ord, f.states[hash])
	case "currentAmount":
		hash := common.Hash(args[0].([32]byte))
		ord, ok := f.orders[hash]
		if !ok {
			return nil, errors.New("execution reverted: unknown order")
		}
		return method.Outputs.Pack(ord.StartAmount)
	case "ordersOf":
		maker := args[0].(common.Address)
		return method.Outputs.Pack(f.makerOrders[maker])
	case "relayEndpoint":
		return method.Outputs.Pack(f.relay)
	default:
		return nil, fmt.Errorf("unhandled view %s", method.Name)
	}
}

func (f *fakeBackend) PendingNonceAt(_ context.Context, account common.Address) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pendingNonceHits++
	return f.nonces[account], nil
}

func (f *fakeBackend) SuggestGasPrice(_ context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}

func (f *fakeBackend) ChainID(_ context.Context) (*big.Int, error) {
	return new(big.Int).Set(f.chainID), nil
}

func (f *fakeBackend) SendTransaction(_ context.Context, tx *types.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.sendErrs) > 0 {
		err := f.sendErrs[0]
		f.sendErrs = f.sendErrs[1:]
		if err != nil {
			return err
		}
	}

	from, err := types.Sender(types.NewEIP155Signer(f.chainID), tx)
	if err != nil {
		return err
	}
	if tx.Nonce() != f.nonces[from] {
		return fmt.Errorf("nonce too low: got %d, want %d", tx.Nonce(), f.nonces[from])
	}
	f.nonces[from]++
	f.nonceLog[from] = append(f.nonceLog[from], tx.Nonce())

	to := *tx.To()
	kind := f.kinds[to]
	method, err := f.parsed[kind].MethodById(tx.Data()[:4])
	if err != nil {
		return err
	}
	f.writeLog = append(f.writeLog, method.Name)

	receipt := &types.Receipt{
		Status:      types.ReceiptStatusSuccessful,
		TxHash:      tx.Hash(),
		BlockNumber: big.NewInt(int64(len(f.writeLog))),
		GasUsed:     21000,
	}

	if reason, ok := f.revertOn[method.Name]; ok {
		receipt.Status = types.ReceiptStatusFailed
		f.revertData[string(tx.Data())] = reason
	} else if err := f.apply(from, to, kind, method, tx); err != nil {
		return err
	}

	if f.receiptDelay > 0 {
		f.pendingCount[tx.Hash()] = f.receiptDelay
	}
	f.receipts[tx.Hash()] = receipt
	return nil
}

// apply mutates fake contract state for an accepted transaction.
func (f *fakeBackend) apply(from, to common.Address, kind ContractKind, method *abi.Method, tx *types.Transaction) error {
	args, err := method.Inputs.Unpack(tx.Data()[4:])
	if err != nil {
		return err
	}

	switch {
	case kind == KindFungibleToken && method.Name == "approve":
		spender, amount := args[0].(common.Address), args[1].(*big.Int)
		f.allowances[tripleKey(to, from, spender)] = new(big.Int).Set(amount)
	case kind == KindCollectibleToken && method.Name == "setApprovalForAll":
		operator, approved := args[0].(common.Address), args[1].(bool)
		f.operators[tripleKey(to, from, operator)] = approved
	case kind == KindOrderBook && method.Name == "createOrder":
		ord := *abi.ConvertType(args[0], new(bookOrder)).(*bookOrder)
		hash := hashBookOrder(ord)
		f.orders[hash] = ord
		f.states[hash] = uint8(StateOpen)
		f.makerOrders[from] = append(f.makerOrders[from], hash)
	case kind == KindOrderBook && method.Name == "cancelOrder":
		hash := common.Hash(args[0].([32]byte))
		f.states[hash] = uint8(StateCancelled)
	case kind == KindExecutor && method.Name == "executeOrder":
		hash := common.Hash(args[0].([32]byte))
		f.states[hash] = uint8(StateFilled)
	}
	return nil
}

func (f *fakeBackend) TransactionReceipt(_ context.Context, txHash common.Hash) (*types.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if n := f.pendingCount[txHash]; n > 0 {
		f.pendingCount[txHash] = n - 1
		return nil, ethereum.NotFound
	}
	receipt, ok := f.receipts[txHash]
	if !ok {
		return nil, ethereum.NotFound
	}
	return receipt, nil
}

func (f *fakeBackend) BalanceAt(_ context.Context, account common.Address, _ *big.Int) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if b, ok := f.balances[account]; ok {
		return new(big.Int).Set(b), nil
	}
	return big.NewInt(0), nil
}

// Test environment wiring every component over one fake backend.

var (
	testBookAddr        = common.HexToAddress("0x0000000000000000000000000000000000001001")
	testExecutorAddr    = common.HexToAddress("0x0000000000000000000000000000000000001002")
	testMessagingAddr   = common.HexToAddress("0x0000000000000000000000000000000000001003")
	testCurrencyAddr    = common.HexToAddress("0x0000000000000000000000000000000000001004")
	testCollectibleAddr = common.HexToAddress("0x0000000000000000000000000000000000001005")
)

const testPrivateKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

type testEnv struct {
	backend   *fakeBackend
	registry  *AddressRegistry
	gw        *Gateway
	approvals *ApprovalCoordinator
	submitter *Submitter
	resolver  *StatusResolver
	canceller *Canceller
	account   *PrivateKeyAccount
}

func testRoleTable() map[ContractRole]common.Address {
	return map[ContractRole]common.Address{
		RoleOrderBook:   testBookAddr,
		RoleExecutor:    testExecutorAddr,
		RoleMessaging:   testMessagingAddr,
		RoleCurrency:    testCurrencyAddr,
		RoleCollectible: testCollectibleAddr,
	}
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	backend := newFakeBackend()
	backend.register(testBookAddr, KindOrderBook)
	backend.register(testExecutorAddr, KindExecutor)
	backend.register(testMessagingAddr, KindMessaging)
	backend.register(testCurrencyAddr, KindFungibleToken)
	backend.register(testCollectibleAddr, KindCollectibleToken)

	registry := NewAddressRegistry("development", testRoleTable())
	gw := NewGateway(GatewayConfig{
		Backend:        backend,
		Registry:       registry,
		ChainID:        big.NewInt(31337),
		ReceiptPoll:    2 * time.Millisecond,
		ReceiptTimeout: 2 * time.Second,
		Logger:         zerolog.Nop(),
	})

	approvals := NewApprovalCoordinator(gw, zerolog.Nop())
	submitter := NewSubmitter(gw, approvals, zerolog.Nop())
	submitter.retryBase = time.Millisecond
	resolver := NewStatusResolver(gw, 2*time.Millisecond, zerolog.Nop())
	canceller := NewCanceller(gw, zerolog.Nop())

	account, err := NewPrivateKeyAccount(testPrivateKey)
	require.NoError(t, err)
	backend.fund(account.Address(), big.NewInt(1_000_000_000_000_000_000))

	return &testEnv{
		backend:   backend,
		registry:  registry,
		gw:        gw,
		approvals: approvals,
		submitter: submitter,
		resolver:  resolver,
		canceller: canceller,
		account:   account,
	}
}

// newTestAccount derives a distinct funded account from an index.
func (e *testEnv) newTestAccount(t *testing.T, index byte) *PrivateKeyAccount {
	t.Helper()
	key := strings.Repeat("0", 62) + fmt.Sprintf("%02x", index)
	account, err := NewPrivateKeyAccount(key)
	require.NoError(t, err)
	e.backend.fund(account.Address(), big.NewInt(1_000_000_000_000_000_000))
	return account
}

// offerFields returns valid single-item offer fields.
func offerFields(nonce uint64) IntentFields {
	return IntentFields{
		Kind:         OrderKindOffer,
		BrokerID:     "gallery-one",
		TokenAddress: testCollectibleAddr,
		TokenID:      big.NewInt(42),
		StartAmount:  big.NewInt(100),
		Currency:     testCurrencyAddr,
		Expiration:   time.Now().Add(time.Hour),
		Nonce:        nonce,
	}
}

// listingFields returns valid single-item listing fields.
func listingFields(nonce uint64) IntentFields {
	fields := offerFields(nonce)
	fields.Kind = OrderKindListing
	return fields
}

func (e *testEnv) mustBuild(t *testing.T, fields IntentFields) (*OrderIntent, common.Hash) {
	t.Helper()
	intent, hash, err := NewIntentBuilder().Build(fields)
	require.NoError(t, err)
	return intent, hash
}
