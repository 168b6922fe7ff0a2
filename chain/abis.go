package chain

// ContractKind selects which interface description a contract is bound
// against. Roles map to kinds statically; token contracts referenced by
// address use the token kinds directly.
type ContractKind int

const (
	KindOrderBook ContractKind = iota
	KindExecutor
	KindMessaging
	KindFungibleToken
	KindCollectibleToken
)

func (k ContractKind) String() string {
	switch k {
	case KindOrderBook:
		return "order_book"
	case KindExecutor:
		return "executor"
	case KindMessaging:
		return "messaging"
	case KindFungibleToken:
		return "fungible_token"
	case KindCollectibleToken:
		return "collectible_token"
	default:
		return "unknown"
	}
}

// kindForRole maps each registry role to the interface its contract speaks.
var kindForRole = map[ContractRole]ContractKind{
	RoleOrderBook:   KindOrderBook,
	RoleExecutor:    KindExecutor,
	RoleMessaging:   KindMessaging,
	RoleCurrency:    KindFungibleToken,
	RoleCollectible: KindCollectibleToken,
}

// Order book ABI JSON: order placement, cancellation and state reads.
const orderBookABIJSON = `[
	{
		"constant": false,
		"inputs": [
			{"name": "order", "type": "tuple", "components": [
				{"name": "kind", "type": "uint8"},
				{"name": "brokerId", "type": "bytes32"},
				{"name": "token", "type": "address"},
				{"name": "tokenId", "type": "uint256"},
				{"name": "startAmount", "type": "uint256"},
				{"name": "endAmount", "type": "uint256"},
				{"name": "currency", "type": "address"},
				{"name": "expiration", "type": "uint64"},
				{"name": "nonce", "type": "uint64"}
			]}
		],
		"name": "createOrder",
		"outputs": [],
		"type": "function"
	},
	{
		"constant": false,
		"inputs": [
			{"name": "orderHash", "type": "bytes32"},
			{"name": "token", "type": "address"}
		],
		"name": "cancelOrder",
		"outputs": [],
		"type": "function"
	},
	{
		"constant": true,
		"inputs": [{"name": "orderHash", "type": "bytes32"}],
		"name": "orderState",
		"outputs": [{"name": "", "type": "uint8"}],
		"type": "function"
	},
	{
		"constant": true,
		"inputs": [{"name": "orderHash", "type": "bytes32"}],
		"name": "getOrder",
		"outputs": [
			{"name": "order", "type": "tuple", "components": [
				{"name": "kind", "type": "uint8"},
				{"name": "brokerId", "type": "bytes32"},
				{"name": "token", "type": "address"},
				{"name": "tokenId", "type": "uint256"},
				{"name": "startAmount", "type": "uint256"},
				{"name": "endAmount", "type": "uint256"},
				{"name": "currency", "type": "address"},
				{"name": "expiration", "type": "uint64"},
				{"name": "nonce", "type": "uint64"}
			]},
			{"name": "state", "type": "uint8"}
		],
		"type": "function"
	},
	{
		"constant": true,
		"inputs": [{"name": "orderHash", "type": "bytes32"}],
		"name": "currentAmount",
		"outputs": [{"name": "", "type": "uint256"}],
		"type": "function"
	},
	{
		"constant": true,
		"inputs": [{"name": "maker", "type": "address"}],
		"name": "ordersOf",
		"outputs": [{"name": "", "type": "bytes32[]"}],
		"type": "function"
	}
]`

// Executor ABI JSON: settlement entry point.
const executorABIJSON = `[
	{
		"constant": false,
		"inputs": [{"name": "orderHash", "type": "bytes32"}],
		"name": "executeOrder",
		"outputs": [],
		"type": "function"
	}
]`

// Messaging ABI JSON: only the relay endpoint lookup is read client-side.
const messagingABIJSON = `[
	{
		"constant": true,
		"inputs": [],
		"name": "relayEndpoint",
		"outputs": [{"name": "", "type": "string"}],
		"type": "function"
	}
]`

// Fungible token ABI JSON for allowance, approve, balance and decimals.
const fungibleTokenABIJSON = `[
	{
		"constant": true,
		"inputs": [
			{"name": "owner", "type": "address"},
			{"name": "spender", "type": "address"}
		],
		"name": "allowance",
		"outputs": [{"name": "", "type": "uint256"}],
		"type": "function"
	},
	{
		"constant": false,
		"inputs": [
			{"name": "spender", "type": "address"},
			{"name": "amount", "type": "uint256"}
		],
		"name": "approve",
		"outputs": [{"name": "", "type": "bool"}],
		"type": "function"
	},
	{
		"constant": true,
		"inputs": [{"name": "owner", "type": "address"}],
		"name": "balanceOf",
		"outputs": [{"name": "", "type": "uint256"}],
		"type": "function"
	},
	{
		"constant": true,
		"inputs": [],
		"name": "decimals",
		"outputs": [{"name": "", "type": "uint8"}],
		"type": "function"
	}
]`

// Collectible token ABI JSON for operator approval and ownership reads.
const collectibleTokenABIJSON = `[
	{
		"constant": true,
		"inputs": [
			{"name": "owner", "type": "address"},
			{"name": "operator", "type": "address"}
		],
		"name": "isApprovedForAll",
		"outputs": [{"name": "", "type": "bool"}],
		"type": "function"
	},
	{
		"constant": false,
		"inputs": [
			{"name": "operator", "type": "address"},
			{"name": "approved", "type": "bool"}
		],
		"name": "setApprovalForAll",
		"outputs": [],
		"type": "function"
	},
	{
		"constant": true,
		"inputs": [{"name": "tokenId", "type": "uint256"}],
		"name": "ownerOf",
		"outputs": [{"name": "", "type": "address"}],
		"type": "function"
	}
]`

// interfaceJSON returns the raw interface description for a kind. Parsing
// happens in the gateway on first use, so a bad description surfaces as an
// InterfaceResolutionError instead of a panic.
func interfaceJSON(kind ContractKind) (string, bool) {
	switch kind {
	case KindOrderBook:
		return orderBookABIJSON, true
	case KindExecutor:
		return executorABIJSON, true
	case KindMessaging:
		return messagingABIJSON, true
	case KindFungibleToken:
		return fungibleTokenABIJSON, true
	case KindCollectibleToken:
		return collectibleTokenABIJSON, true
	default:
		return "", false
	}
}
