package driftmarket

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/driftsea/market-sdk-go/chain"
)

// OrderStatus is the client-side view of an order's lifecycle.
type OrderStatus = chain.OrderStatus

const (
	StatusUnknown           = chain.StatusUnknown
	StatusPendingApproval   = chain.StatusPendingApproval
	StatusPendingSubmission = chain.StatusPendingSubmission
	StatusOpen              = chain.StatusOpen
	StatusExecuted          = chain.StatusExecuted
	StatusCancelled         = chain.StatusCancelled
	StatusExpired           = chain.StatusExpired
)

// OrderKind distinguishes the order shapes the book accepts.
type OrderKind = chain.OrderKind

const (
	OrderKindOffer           = chain.OrderKindOffer
	OrderKindListing         = chain.OrderKindListing
	OrderKindCollectionOffer = chain.OrderKindCollectionOffer
)

// OrderIntent is the canonical order representation; OrderRecord an order
// as read back from the book.
type (
	OrderIntent = chain.OrderIntent
	OrderRecord = chain.OrderRecord
)

// OfferParams describe a bid for a collectible. Amounts are human-readable
// decimal strings in currency units; the client converts them using the
// currency's on-chain decimals.
//
// A nil TokenID makes the offer collection-wide: it can be filled with any
// item of the collection. EndAmount may be left empty for a fixed-amount
// offer. A zero Currency uses the network's default payment token, a zero
// Expiration the client's default order TTL, and a zero Nonce a randomly
// drawn one.
type OfferParams struct {
	Token      common.Address
	TokenID    *big.Int
	Amount     string
	EndAmount  string
	Currency   common.Address
	BrokerID   string
	Expiration time.Time
	Nonce      uint64
}

// ListingParams describe an ask for a collectible the maker holds. The
// amount is the asking price in currency units; EndAmount below Amount is
// invalid, above it describes a rising-price listing. TokenID is required.
// Zero values default as in OfferParams.
type ListingParams struct {
	Token      common.Address
	TokenID    *big.Int
	Amount     string
	EndAmount  string
	Currency   common.Address
	BrokerID   string
	Expiration time.Time
	Nonce      uint64
}

// SubmittedOrder is the caller's handle on a placed order. The client keeps
// no copy: status is re-read from the chain on demand.
type SubmittedOrder struct {
	Hash   common.Hash
	Intent *OrderIntent
	Status OrderStatus
}
