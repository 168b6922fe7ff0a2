package chain

import (
	"errors"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Intent validation errors.
var (
	ErrMissingToken      = errors.New("token address is required")
	ErrMissingTokenID    = errors.New("token id is required for single-item orders")
	ErrUnexpectedTokenID = errors.New("token id must be absent for collection-wide offers")
	ErrMissingAmount     = errors.New("start amount is required")
	ErrNegativeAmount    = errors.New("amounts must be non-negative")
	ErrAmountRange       = errors.New("start amount must not exceed end amount")
	ErrMissingCurrency   = errors.New("currency address is required")
	ErrPastExpiration    = errors.New("expiration must be in the future")
)

// OrderKind distinguishes the three order shapes the book accepts. It is
// part of the canonical encoding, so an offer and a listing over the same
// token never share a hash.
type OrderKind uint8

const (
	// OrderKindOffer is a bid on a single item.
	OrderKindOffer OrderKind = iota
	// OrderKindListing is an ask for a single item.
	OrderKindListing
	// OrderKindCollectionOffer is a bid on any item of a collection.
	OrderKindCollectionOffer
)

func (k OrderKind) String() string {
	switch k {
	case OrderKindOffer:
		return "offer"
	case OrderKindListing:
		return "listing"
	case OrderKindCollectionOffer:
		return "collection_offer"
	default:
		return "unknown"
	}
}

// OrderIntent is the canonical order representation. Its field encoding is
// defined once, in Hash and tuple, and reused for submission, status
// lookups and cancellation; two encodings would mean hashes that never
// match the book's.
//
// TokenID is nil exactly when Kind is OrderKindCollectionOffer. StartAmount
// and EndAmount bound a time-decaying order; fixed orders carry the same
// value in both. Expiration is a unix timestamp in seconds. Nonce is the
// intent's anti-collision number, unrelated to account transaction nonces.
type OrderIntent struct {
	Kind         OrderKind
	BrokerID     string
	TokenAddress common.Address
	TokenID      *big.Int
	StartAmount  *big.Int
	EndAmount    *big.Int
	Currency     common.Address
	Expiration   uint64
	Nonce        uint64
}

// IntentFields is the raw input to the builder. Optional fields may be
// left zero: EndAmount defaults to StartAmount, TokenID must be nil for
// collection-wide offers.
type IntentFields struct {
	Kind         OrderKind
	BrokerID     string
	TokenAddress common.Address
	TokenID      *big.Int
	StartAmount  *big.Int
	EndAmount    *big.Int
	Currency     common.Address
	Expiration   time.Time
	Nonce        uint64
}

// IntentBuilder validates raw fields into canonical intents. The clock is
// injectable so expiration checks are testable.
type IntentBuilder struct {
	now func() time.Time
}

// NewIntentBuilder creates a builder using the wall clock.
func NewIntentBuilder() *IntentBuilder {
	return &IntentBuilder{now: time.Now}
}

// Build validates the fields, normalizes them into a canonical intent and
// computes its hash.
func (b *IntentBuilder) Build(fields IntentFields) (*OrderIntent, common.Hash, error) {
	if err := b.validate(fields); err != nil {
		return nil, common.Hash{}, err
	}

	intent := &OrderIntent{
		Kind:         fields.Kind,
		BrokerID:     fields.BrokerID,
		TokenAddress: fields.TokenAddress,
		StartAmount:  new(big.Int).Set(fields.StartAmount),
		Currency:     fields.Currency,
		Expiration:   uint64(fields.Expiration.Unix()),
		Nonce:        fields.Nonce,
	}
	if fields.TokenID != nil {
		intent.TokenID = new(big.Int).Set(fields.TokenID)
	}
	if fields.EndAmount != nil {
		intent.EndAmount = new(big.Int).Set(fields.EndAmount)
	} else {
		intent.EndAmount = new(big.Int).Set(fields.StartAmount)
	}

	return intent, intent.Hash(), nil
}

func (b *IntentBuilder) validate(fields IntentFields) error {
	if fields.TokenAddress == (common.Address{}) {
		return ErrMissingToken
	}
	if fields.Kind == OrderKindCollectionOffer {
		if fields.TokenID != nil {
			return ErrUnexpectedTokenID
		}
	} else if fields.TokenID == nil {
		return ErrMissingTokenID
	}
	if fields.TokenID != nil && fields.TokenID.Sign() < 0 {
		return ErrNegativeAmount
	}
	if fields.StartAmount == nil {
		return ErrMissingAmount
	}
	if fields.StartAmount.Sign() < 0 {
		return ErrNegativeAmount
	}
	if fields.EndAmount != nil {
		if fields.EndAmount.Sign() < 0 {
			return ErrNegativeAmount
		}
		if fields.StartAmount.Cmp(fields.EndAmount) > 0 {
			return ErrAmountRange
		}
	}
	if fields.Currency == (common.Address{}) {
		return ErrMissingCurrency
	}
	if !fields.Expiration.After(b.now()) {
		return ErrPastExpiration
	}
	return nil
}

// Pre-computed type hash of the canonical intent encoding.
var orderIntentTypeHash = crypto.Keccak256Hash([]byte(
	"OrderIntent(uint8 kind,bytes32 brokerId,address token,uint256 tokenId,uint256 startAmount,uint256 endAmount,address currency,uint64 expiration,uint64 nonce)",
))

// Hash computes the deterministic order hash: the keccak256 of the
// fixed-width encoding of every intent field, type hash first. The same
// encoding feeds createOrder, so the hash always matches what the book
// derives. The intent must have passed validation; amounts are assumed
// non-nil.
func (in *OrderIntent) Hash() common.Hash {
	return hashBookOrder(in.tuple())
}

// hashBookOrder is the single definition of the canonical encoding, over
// the wire-form tuple.
func hashBookOrder(t bookOrder) common.Hash {
	uint8Type, _ := abi.NewType("uint8", "", nil)
	bytes32Type, _ := abi.NewType("bytes32", "", nil)
	addressType, _ := abi.NewType("address", "", nil)
	uint256Type, _ := abi.NewType("uint256", "", nil)
	uint64Type, _ := abi.NewType("uint64", "", nil)

	arguments := abi.Arguments{
		{Type: bytes32Type}, // typeHash
		{Type: uint8Type},   // kind
		{Type: bytes32Type}, // brokerId
		{Type: addressType}, // token
		{Type: uint256Type}, // tokenId
		{Type: uint256Type}, // startAmount
		{Type: uint256Type}, // endAmount
		{Type: addressType}, // currency
		{Type: uint64Type},  // expiration
		{Type: uint64Type},  // nonce
	}

	encoded, err := arguments.Pack(
		orderIntentTypeHash,
		t.Kind,
		t.BrokerId,
		t.Token,
		t.TokenId,
		t.StartAmount,
		t.EndAmount,
		t.Currency,
		t.Expiration,
		t.Nonce,
	)
	if err != nil {
		panic("failed to encode order intent: " + err.Error())
	}

	return crypto.Keccak256Hash(encoded)
}

// brokerWord fixes the free-form broker identifier to one word: zero when
// no broker is named, keccak256 of the identifier otherwise.
func (in *OrderIntent) brokerWord() [32]byte {
	if in.BrokerID == "" {
		return [32]byte{}
	}
	return [32]byte(crypto.Keccak256Hash([]byte(in.BrokerID)))
}

// tokenIDWord encodes an absent token id as zero; the kind byte keeps
// collection-wide offers distinct from token zero.
func (in *OrderIntent) tokenIDWord() *big.Int {
	if in.TokenID == nil {
		return big.NewInt(0)
	}
	return in.TokenID
}

// MaxAmount returns the larger bound of the amount range: the allowance a
// buyer-side order must be able to cover.
func (in *OrderIntent) MaxAmount() *big.Int {
	if in.StartAmount.Cmp(in.EndAmount) >= 0 {
		return new(big.Int).Set(in.StartAmount)
	}
	return new(big.Int).Set(in.EndAmount)
}

// BuySide reports whether the intent spends currency (offers) rather than
// transferring a collectible (listings).
func (in *OrderIntent) BuySide() bool {
	return in.Kind == OrderKindOffer || in.Kind == OrderKindCollectionOffer
}

// bookOrder mirrors the order tuple the book contract stores. Field names
// and order follow the interface description's components, as tuple
// packing and unpacking match on them.
type bookOrder struct {
	Kind        uint8
	BrokerId    [32]byte
	Token       common.Address
	TokenId     *big.Int
	StartAmount *big.Int
	EndAmount   *big.Int
	Currency    common.Address
	Expiration  uint64
	Nonce       uint64
}

// tuple converts the intent to its on-chain form for createOrder.
func (in *OrderIntent) tuple() bookOrder {
	return bookOrder{
		Kind:        uint8(in.Kind),
		BrokerId:    in.brokerWord(),
		Token:       in.TokenAddress,
		TokenId:     in.tokenIDWord(),
		StartAmount: in.StartAmount,
		EndAmount:   in.EndAmount,
		Currency:    in.Currency,
		Expiration:  in.Expiration,
		Nonce:       in.Nonce,
	}
}

// OrderRecord is an order as read back from the book. The broker word is
// the hashed identifier; the original string is not recoverable from
// chain state.
type OrderRecord struct {
	Kind        OrderKind
	Broker      [32]byte
	Token       common.Address
	TokenID     *big.Int
	StartAmount *big.Int
	EndAmount   *big.Int
	Currency    common.Address
	Expiration  uint64
	Nonce       uint64
	State       OrderState
}

func recordFromTuple(t bookOrder, state uint8) *OrderRecord {
	return &OrderRecord{
		Kind:        OrderKind(t.Kind),
		Broker:      t.BrokerId,
		Token:       t.Token,
		TokenID:     t.TokenId,
		StartAmount: t.StartAmount,
		EndAmount:   t.EndAmount,
		Currency:    t.Currency,
		Expiration:  t.Expiration,
		Nonce:       t.Nonce,
		State:       OrderState(state),
	}
}
