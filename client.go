package driftmarket

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/driftsea/market-sdk-go/chain"
)

// Client is the marketplace SDK facade. It binds one network deployment and
// one signing account, and drives the full order lifecycle: build, approve,
// submit, track, cancel. The client holds no order state of its own; the
// chain is always the source of truth.
type Client struct {
	cfg     Config
	network NetworkConfig

	backend   chain.Backend
	ethClient *ethclient.Client
	account   chain.Account
	registry  *chain.AddressRegistry
	gateway   *chain.Gateway
	approvals *chain.ApprovalCoordinator
	builder   *chain.IntentBuilder
	submitter *chain.Submitter
	resolver  *chain.StatusResolver
	canceller *chain.Canceller
	log       zerolog.Logger

	decimalsMu    sync.RWMutex
	decimalsCache map[common.Address]decimalsEntry
}

type decimalsEntry struct {
	value     uint8
	timestamp time.Time
}

// NewClient creates a marketplace client for one network and account. When
// no Backend is supplied the RPC URL is dialed; the connection is then
// owned by the client and released by Close.
func NewClient(cfg Config) (*Client, error) {
	cfg = cfg.withDefaults()

	network, err := cfg.networkConfig()
	if err != nil {
		return nil, err
	}

	if cfg.PrivateKey == "" {
		return nil, &InvalidParamError{Message: "private key is required"}
	}
	account, err := chain.NewPrivateKeyAccount(cfg.PrivateKey)
	if err != nil {
		return nil, &InvalidParamError{Message: fmt.Sprintf("invalid private key: %v", err)}
	}

	backend := cfg.Backend
	var owned *ethclient.Client
	if backend == nil {
		if cfg.RPCURL == "" {
			return nil, &InvalidParamError{Message: "rpc url is required when no backend is supplied"}
		}
		owned, err = ethclient.Dial(cfg.RPCURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to node at %s: %w", cfg.RPCURL, err)
		}
		backend = owned
	}

	log := cfg.Logger.With().
		Str("network", string(cfg.Network)).
		Str("account", account.Address().Hex()).
		Logger()

	registry := chain.NewAddressRegistry(string(cfg.Network), network.Roles)
	gateway := chain.NewGateway(chain.GatewayConfig{
		Backend:        backend,
		Registry:       registry,
		ChainID:        network.ChainID,
		GasLimit:       cfg.GasLimit,
		ReceiptPoll:    cfg.ReceiptPoll,
		ReceiptTimeout: cfg.ReceiptTimeout,
		Logger:         log,
	})
	approvals := chain.NewApprovalCoordinator(gateway, log)

	return &Client{
		cfg:           cfg,
		network:       network,
		backend:       backend,
		ethClient:     owned,
		account:       account,
		registry:      registry,
		gateway:       gateway,
		approvals:     approvals,
		builder:       chain.NewIntentBuilder(),
		submitter:     chain.NewSubmitter(gateway, approvals, log),
		resolver:      chain.NewStatusResolver(gateway, cfg.StatusPoll, log),
		canceller:     chain.NewCanceller(gateway, log),
		log:           log,
		decimalsCache: make(map[common.Address]decimalsEntry),
	}, nil
}

// Close releases the RPC connection when the client owns one.
func (c *Client) Close() {
	if c.ethClient != nil {
		c.ethClient.Close()
	}
}

// Address returns the client's signing address.
func (c *Client) Address() common.Address {
	return c.account.Address()
}

// Network returns the network the client was built for.
func (c *Client) Network() Network {
	return c.cfg.Network
}

// VerifyNetwork checks that the node behind the RPC URL really serves the
// configured network's chain.
func (c *Client) VerifyNetwork(ctx context.Context) error {
	return c.gateway.CheckNetwork(ctx)
}

// opLogger derives a logger for one facade operation, tagged with a fresh
// operation id so its chain calls can be correlated.
func (c *Client) opLogger(op string) zerolog.Logger {
	return c.log.With().Str("op", op).Str("op_id", uuid.NewString()).Logger()
}

// CreateOffer places a bid for a collectible and waits until it is open on
// the book. A nil TokenID makes the offer collection-wide. The currency
// allowance needed to cover the offer is put in place first; an allowance
// that already covers it costs no transaction.
func (c *Client) CreateOffer(ctx context.Context, params OfferParams) (*SubmittedOrder, error) {
	kind := chain.OrderKindOffer
	if params.TokenID == nil {
		kind = chain.OrderKindCollectionOffer
	}
	return c.place(ctx, "create_offer", orderInput{
		kind:       kind,
		token:      params.Token,
		tokenID:    params.TokenID,
		amount:     params.Amount,
		endAmount:  params.EndAmount,
		currency:   params.Currency,
		brokerID:   params.BrokerID,
		expiration: params.Expiration,
		nonce:      params.Nonce,
	})
}

// CreateListing places an ask for a collectible the account holds and waits
// until it is open on the book. The executor is granted operator rights on
// the collectible first, once per collection.
func (c *Client) CreateListing(ctx context.Context, params ListingParams) (*SubmittedOrder, error) {
	return c.place(ctx, "create_listing", orderInput{
		kind:       chain.OrderKindListing,
		token:      params.Token,
		tokenID:    params.TokenID,
		amount:     params.Amount,
		endAmount:  params.EndAmount,
		currency:   params.Currency,
		brokerID:   params.BrokerID,
		expiration: params.Expiration,
		nonce:      params.Nonce,
	})
}

// orderInput is the normalized form of OfferParams and ListingParams.
type orderInput struct {
	kind       chain.OrderKind
	token      common.Address
	tokenID    *big.Int
	amount     string
	endAmount  string
	currency   common.Address
	brokerID   string
	expiration time.Time
	nonce      uint64
}

func (c *Client) place(ctx context.Context, op string, in orderInput) (*SubmittedOrder, error) {
	log := c.opLogger(op)

	if in.amount == "" {
		return nil, &InvalidParamError{Message: "amount is required"}
	}
	currency := in.currency
	if currency == (common.Address{}) {
		addr, err := c.registry.Resolve(chain.RoleCurrency)
		if err != nil {
			return nil, err
		}
		currency = addr
	}

	decimals, err := c.currencyDecimals(ctx, currency)
	if err != nil {
		return nil, err
	}
	start, err := ParseAmount(in.amount, decimals)
	if err != nil {
		return nil, err
	}
	var end *big.Int
	if in.endAmount != "" {
		if end, err = ParseAmount(in.endAmount, decimals); err != nil {
			return nil, err
		}
	}

	nonce := in.nonce
	if nonce == 0 {
		if nonce, err = randomNonce(); err != nil {
			return nil, err
		}
	}
	expiration := in.expiration
	if expiration.IsZero() {
		expiration = time.Now().Add(c.cfg.OrderTTL)
	}

	intent, hash, err := c.builder.Build(chain.IntentFields{
		Kind:         in.kind,
		BrokerID:     in.brokerID,
		TokenAddress: in.token,
		TokenID:      in.tokenID,
		StartAmount:  start,
		EndAmount:    end,
		Currency:     currency,
		Expiration:   expiration,
		Nonce:        nonce,
	})
	if err != nil {
		return nil, &InvalidParamError{Message: err.Error()}
	}

	log.Info().
		Str("order", hash.Hex()).
		Str("kind", in.kind.String()).
		Str("token", in.token.Hex()).
		Str("amount", in.amount).
		Msg("placing order")

	if _, err := c.submitter.Submit(ctx, c.account, intent); err != nil {
		return nil, err
	}

	status, err := c.resolver.Status(ctx, hash)
	if err != nil {
		// The order is on the book; only the follow-up read failed.
		log.Warn().Err(err).Msg("status read after submission failed")
		status = chain.StatusOpen
	}

	return &SubmittedOrder{Hash: hash, Intent: intent, Status: status}, nil
}

// ExecuteOrder settles an open order made by someone else: the client's
// account acts as the filling counterparty. Filling a listing pays its
// current amount in currency, filling an offer hands over the collectible;
// the matching approval is put in place first.
func (c *Client) ExecuteOrder(ctx context.Context, orderHash common.Hash) error {
	if orderHash == (common.Hash{}) {
		return &InvalidParamError{Message: "order hash is required"}
	}
	log := c.opLogger("execute_order")
	log.Info().Str("order", orderHash.Hex()).Msg("executing order")
	return c.submitter.Execute(ctx, c.account, orderHash)
}

// CancelOrder withdraws one of the account's orders from the book. A hash
// the book has never seen, or an order already in a final state, fails with
// CancellationError before any transaction is broadcast.
func (c *Client) CancelOrder(ctx context.Context, orderHash common.Hash) error {
	if orderHash == (common.Hash{}) {
		return &InvalidParamError{Message: "order hash is required"}
	}
	log := c.opLogger("cancel_order")
	log.Info().Str("order", orderHash.Hex()).Msg("cancelling order")
	return c.canceller.Cancel(ctx, c.account, orderHash)
}

// CancelCollectionOffer withdraws a collection-wide offer. It refuses
// hashes that name any other order kind.
func (c *Client) CancelCollectionOffer(ctx context.Context, orderHash common.Hash) error {
	if orderHash == (common.Hash{}) {
		return &InvalidParamError{Message: "order hash is required"}
	}
	log := c.opLogger("cancel_collection_offer")
	log.Info().Str("order", orderHash.Hex()).Msg("cancelling collection offer")
	return c.canceller.CancelCollectionOffer(ctx, c.account, orderHash)
}

// GetOrderStatus reads an order's current status from the chain. Hashes the
// book does not know map to StatusUnknown, not an error.
func (c *Client) GetOrderStatus(ctx context.Context, orderHash common.Hash) (OrderStatus, error) {
	if orderHash == (common.Hash{}) {
		return StatusUnknown, &InvalidParamError{Message: "order hash is required"}
	}
	return c.resolver.Status(ctx, orderHash)
}

// AwaitOrderStatus polls until the order reaches one of the target statuses
// or the deadline passes, whichever is first. A missed deadline returns a
// TimeoutError carrying the last observed status; the order itself is
// unaffected.
func (c *Client) AwaitOrderStatus(ctx context.Context, orderHash common.Hash, deadline time.Time, targets ...OrderStatus) (OrderStatus, error) {
	if orderHash == (common.Hash{}) {
		return StatusUnknown, &InvalidParamError{Message: "order hash is required"}
	}
	if len(targets) == 0 {
		return StatusUnknown, &InvalidParamError{Message: "at least one target status is required"}
	}
	return c.resolver.AwaitStatus(ctx, orderHash, targets, deadline)
}

// GetOrder reads an order's stored form back from the book.
func (c *Client) GetOrder(ctx context.Context, orderHash common.Hash) (*OrderRecord, error) {
	if orderHash == (common.Hash{}) {
		return nil, &InvalidParamError{Message: "order hash is required"}
	}
	return c.submitter.ReadOrder(ctx, orderHash)
}

// OpenOrders lists the hashes of the account's orders held by the book.
func (c *Client) OpenOrders(ctx context.Context) ([]common.Hash, error) {
	vals, err := c.gateway.Read(ctx, chain.RoleOrderBook, "ordersOf", c.account.Address())
	if err != nil {
		return nil, err
	}
	words, ok := vals[0].([][32]byte)
	if !ok {
		return nil, fmt.Errorf("order list read returned unexpected type")
	}
	hashes := make([]common.Hash, len(words))
	for i, word := range words {
		hashes[i] = common.Hash(word)
	}
	return hashes, nil
}

// GetCurrencyBalance returns the account's balance of a currency in human
// units. The zero address means the network's default payment token.
func (c *Client) GetCurrencyBalance(ctx context.Context, currency common.Address) (decimal.Decimal, error) {
	currency, err := c.resolveCurrency(currency)
	if err != nil {
		return decimal.Zero, err
	}

	var balance *big.Int
	if err := c.gateway.ReadInto(ctx, currency, chain.KindFungibleToken, &balance, "balanceOf", c.account.Address()); err != nil {
		return decimal.Zero, err
	}
	decimals, err := c.currencyDecimals(ctx, currency)
	if err != nil {
		return decimal.Zero, err
	}
	return FormatAmount(balance, decimals), nil
}

// GetAllowance returns how much of a currency the settlement contract may
// currently spend for the account, in human units. The zero address means
// the network's default payment token.
func (c *Client) GetAllowance(ctx context.Context, currency common.Address) (decimal.Decimal, error) {
	currency, err := c.resolveCurrency(currency)
	if err != nil {
		return decimal.Zero, err
	}
	spender, err := c.registry.Resolve(chain.RoleExecutor)
	if err != nil {
		return decimal.Zero, err
	}

	var allowance *big.Int
	if err := c.gateway.ReadInto(ctx, currency, chain.KindFungibleToken, &allowance, "allowance", c.account.Address(), spender); err != nil {
		return decimal.Zero, err
	}
	decimals, err := c.currencyDecimals(ctx, currency)
	if err != nil {
		return decimal.Zero, err
	}
	return FormatAmount(allowance, decimals), nil
}

func (c *Client) resolveCurrency(currency common.Address) (common.Address, error) {
	if currency != (common.Address{}) {
		return currency, nil
	}
	return c.registry.Resolve(chain.RoleCurrency)
}

// currencyDecimals reads a currency's decimals, caching the value for the
// configured TTL. Decimals change when a deployment changes, not at
// runtime, so a stale read is harmless.
func (c *Client) currencyDecimals(ctx context.Context, currency common.Address) (uint8, error) {
	c.decimalsMu.RLock()
	entry, ok := c.decimalsCache[currency]
	c.decimalsMu.RUnlock()
	if ok && time.Since(entry.timestamp) < c.cfg.DecimalsCacheTTL {
		return entry.value, nil
	}

	var decimals uint8
	if err := c.gateway.ReadInto(ctx, currency, chain.KindFungibleToken, &decimals, "decimals"); err != nil {
		return 0, fmt.Errorf("failed to read decimals of currency %s: %w", currency.Hex(), err)
	}
	if decimals > MaxCurrencyDecimals {
		return 0, &InvalidParamError{
			Message: fmt.Sprintf("currency %s reports %d decimals, supported maximum is %d",
				currency.Hex(), decimals, MaxCurrencyDecimals),
		}
	}

	c.decimalsMu.Lock()
	c.decimalsCache[currency] = decimalsEntry{value: decimals, timestamp: time.Now()}
	c.decimalsMu.Unlock()
	return decimals, nil
}

// RelayEndpoint returns the event relay endpoint for the network. An
// explicitly configured endpoint wins; otherwise the messaging contract's
// published endpoint is used, with the built-in table as fallback.
func (c *Client) RelayEndpoint(ctx context.Context) (string, error) {
	if c.cfg.RelayEndpoint != "" {
		return c.cfg.RelayEndpoint, nil
	}

	vals, err := c.gateway.Read(ctx, chain.RoleMessaging, "relayEndpoint")
	if err == nil && len(vals) == 1 {
		if endpoint, ok := vals[0].(string); ok && endpoint != "" {
			return endpoint, nil
		}
	}
	if err != nil {
		c.log.Debug().Err(err).Msg("relay endpoint lookup failed, falling back to network default")
	}

	if c.network.RelayEndpoint != "" {
		return c.network.RelayEndpoint, nil
	}
	return "", &ConfigurationError{
		Network: string(c.cfg.Network),
		Message: "no relay endpoint published on chain or configured",
	}
}

// OrderStream connects an event stream to the network's relay and hands
// incoming order events to the given handler. The stream is advisory; the
// chain remains the source of truth for order status.
func (c *Client) OrderStream(ctx context.Context, onEvent OrderEventHandler) (*OrderStream, error) {
	endpoint, err := c.RelayEndpoint(ctx)
	if err != nil {
		return nil, err
	}

	stream := NewOrderStream(StreamConfig{
		Endpoint: endpoint,
		OnEvent:  onEvent,
		Logger:   c.log,
	})
	if err := stream.Connect(ctx); err != nil {
		return nil, err
	}
	return stream, nil
}
