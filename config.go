package driftmarket

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/driftsea/market-sdk-go/chain"
)

// Network selects one of the marketplace deployments.
type Network string

const (
	// NetworkDevelopment is a local node with the deterministic deployment
	// the contract repo's scripts produce.
	NetworkDevelopment Network = "development"
	// NetworkStaging is the Sepolia deployment.
	NetworkStaging Network = "staging"
	// NetworkProduction is the mainnet deployment.
	NetworkProduction Network = "production"
	// NetworkLegacyTestnet is the old Goerli deployment, kept while
	// integrations migrate off it.
	NetworkLegacyTestnet Network = "legacy-testnet"
)

// SupportedNetworks lists every network with a built-in deployment table.
var SupportedNetworks = []Network{
	NetworkDevelopment,
	NetworkStaging,
	NetworkProduction,
	NetworkLegacyTestnet,
}

// NetworkConfig carries one deployment: its chain ID, the contract role
// table, and the event relay endpoint.
type NetworkConfig struct {
	ChainID       *big.Int
	Roles         map[chain.ContractRole]common.Address
	RelayEndpoint string
}

// DefaultNetworkConfigs maps each supported network to its deployment.
var DefaultNetworkConfigs = map[Network]NetworkConfig{
	NetworkDevelopment: {
		ChainID: big.NewInt(31337),
		Roles: map[chain.ContractRole]common.Address{
			chain.RoleOrderBook:   common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3"),
			chain.RoleExecutor:    common.HexToAddress("0xe7f1725E7734CE288F8367e1Bb143E90bb3F0512"),
			chain.RoleMessaging:   common.HexToAddress("0x9fE46736679d2D9a65F0992F2272dE9f3c7fa6e0"),
			chain.RoleCurrency:    common.HexToAddress("0xCf7Ed3AccA5a467e9e704C703E8D87F634fB0Fc9"),
			chain.RoleCollectible: common.HexToAddress("0xDc64a140Aa3E981100a9becA4E685f962f0cF6C9"),
		},
		RelayEndpoint: "ws://localhost:8765/events",
	},
	NetworkStaging: {
		ChainID: big.NewInt(11155111),
		Roles: map[chain.ContractRole]common.Address{
			chain.RoleOrderBook:   common.HexToAddress("0x4e3a91b7d2c85f10a6e49d27c8b3f5e190a7d264"),
			chain.RoleExecutor:    common.HexToAddress("0x8c1f6a45e9b20d735a84c6f912d7e8b03c5a94f1"),
			chain.RoleMessaging:   common.HexToAddress("0x2d9e70c4b1f8a3567e02d9c845b6a1f3e8d02795"),
			chain.RoleCurrency:    common.HexToAddress("0x6b04d8f2a95c17e3b80f4a6d29c1e5b7f3a08d46"),
			chain.RoleCollectible: common.HexToAddress("0xa1c52e98f70b3d6418e9c2a5d40b7f3692c8e150"),
		},
		RelayEndpoint: "wss://relay.staging.driftsea.io/events",
	},
	NetworkProduction: {
		ChainID: big.NewInt(1),
		Roles: map[chain.ContractRole]common.Address{
			chain.RoleOrderBook:   common.HexToAddress("0x93f2c5a801d6e4b7f9028c3d5e16a7b4c890d1f2"),
			chain.RoleExecutor:    common.HexToAddress("0x517e9d0ac3b8f2465d90e1c7a3f8b5d2064c9e81"),
			chain.RoleMessaging:   common.HexToAddress("0xd8b04f7c2e95a1638bd47f0e92c5a8b1d3607e94"),
			chain.RoleCurrency:    common.HexToAddress("0x3fa6d19e85c2b07d4f61a8e3c90b527d18f4a6c0"),
			chain.RoleCollectible: common.HexToAddress("0xe62c81f4a07d953b2c68e4f1d90a3b756c821d0f"),
		},
		RelayEndpoint: "wss://relay.driftsea.io/events",
	},
	NetworkLegacyTestnet: {
		ChainID: big.NewInt(5),
		Roles: map[chain.ContractRole]common.Address{
			chain.RoleOrderBook:   common.HexToAddress("0x0b7e5d21c49f8a3660d2e8b5a1c4f7d3908e6b52"),
			chain.RoleExecutor:    common.HexToAddress("0x9a4c2f7e06b8d1537fc0a9e24d68b3f1e52c70d8"),
			chain.RoleMessaging:   common.HexToAddress("0x64d1b0a8e53c97f22a85d4c6019e7b3f8c40d2e6"),
			chain.RoleCurrency:    common.HexToAddress("0xc7f3a84b59e02d161b94c8f7a26d0e583f1b9ac4"),
			chain.RoleCollectible: common.HexToAddress("0x1e85c4d7b30f9a262ed60b18f5a3c9e407d2f861"),
		},
		RelayEndpoint: "wss://relay.goerli.driftsea.io/events",
	},
}

// Config holds the settings for creating a Client.
type Config struct {
	// Network selects the built-in deployment table.
	Network Network
	// RPCURL is the node to dial. Ignored when Backend is set.
	RPCURL string
	// PrivateKey is the maker's signing key as a hex string.
	PrivateKey string

	// Backend supplies the RPC boundary directly instead of dialing RPCURL.
	Backend chain.Backend

	// Roles overrides individual role addresses of the network table.
	Roles map[chain.ContractRole]common.Address
	// ChainID overrides the network's chain ID.
	ChainID *big.Int
	// RelayEndpoint overrides the network's event relay endpoint.
	RelayEndpoint string

	// GasLimit, ReceiptPoll and ReceiptTimeout tune writes; zero values use
	// the gateway defaults.
	GasLimit       uint64
	ReceiptPoll    time.Duration
	ReceiptTimeout time.Duration
	// StatusPoll is the base interval for status polling.
	StatusPoll time.Duration
	// OrderTTL is the expiration applied to orders built without one.
	OrderTTL time.Duration
	// DecimalsCacheTTL bounds how long currency decimals are cached.
	DecimalsCacheTTL time.Duration

	// Logger receives the client's structured log events. The zero value
	// is silent.
	Logger zerolog.Logger
}

func (c Config) withDefaults() Config {
	if c.StatusPoll == 0 {
		c.StatusPoll = 2 * time.Second
	}
	if c.OrderTTL == 0 {
		c.OrderTTL = 30 * 24 * time.Hour
	}
	if c.DecimalsCacheTTL == 0 {
		c.DecimalsCacheTTL = 1 * time.Hour
	}
	return c
}

// networkConfig resolves the effective deployment: the built-in table for
// the selected network with any caller overrides applied.
func (c Config) networkConfig() (NetworkConfig, error) {
	base, ok := DefaultNetworkConfigs[c.Network]
	if !ok {
		return NetworkConfig{}, &InvalidParamError{
			Message: fmt.Sprintf("network must be one of %v, got %q", SupportedNetworks, c.Network),
		}
	}

	roles := make(map[chain.ContractRole]common.Address, len(base.Roles))
	for role, addr := range base.Roles {
		roles[role] = addr
	}
	for role, addr := range c.Roles {
		roles[role] = addr
	}

	chainID := base.ChainID
	if c.ChainID != nil {
		chainID = c.ChainID
	}
	relay := base.RelayEndpoint
	if c.RelayEndpoint != "" {
		relay = c.RelayEndpoint
	}

	return NetworkConfig{
		ChainID:       chainID,
		Roles:         roles,
		RelayEndpoint: relay,
	}, nil
}
