package main

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	driftmarket "github.com/driftsea/market-sdk-go"
	"github.com/driftsea/market-sdk-go/chain"
)

// GlobalFlags holds flags shared by every subcommand.
type GlobalFlags struct {
	ConfigFile string
	Network    string
	RPCURL     string
	Verbose    bool
}

var globalFlags GlobalFlags

var rootCmd = &cobra.Command{
	Use:   "marketctl",
	Short: "Driftsea marketplace command line client",
	Long: `marketctl drives the Driftsea collectibles marketplace from the shell:
place offers and listings, execute and cancel orders, and watch order
events from the relay.

The signing key is never passed as a flag; set DRIFTSEA_PRIVATE_KEY in
the environment. Network settings come from flags or a TOML config file.`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&globalFlags.ConfigFile, "config", "", "path to a TOML config file")
	rootCmd.PersistentFlags().StringVar(&globalFlags.Network, "network", "development", "network to talk to")
	rootCmd.PersistentFlags().StringVar(&globalFlags.RPCURL, "rpc-url", "http://localhost:8545", "node RPC endpoint")
	rootCmd.PersistentFlags().BoolVarP(&globalFlags.Verbose, "verbose", "v", false, "log chain calls to stderr")

	rootCmd.AddCommand(offerCmd)
	rootCmd.AddCommand(listingCmd)
	rootCmd.AddCommand(executeCmd)
	rootCmd.AddCommand(cancelCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(ordersCmd)
	rootCmd.AddCommand(balanceCmd)
	rootCmd.AddCommand(watchCmd)
}

// fileConfig is the TOML shape of --config files.
type fileConfig struct {
	Network       string            `toml:"network"`
	RPCURL        string            `toml:"rpc_url"`
	RelayEndpoint string            `toml:"relay_endpoint"`
	ChainID       int64             `toml:"chain_id"`
	Roles         map[string]string `toml:"roles"`
}

// getClient builds an SDK client from flags, the optional config file, and
// the DRIFTSEA_PRIVATE_KEY environment variable. Flags win over the file.
func getClient() (*driftmarket.Client, error) {
	cfg := driftmarket.Config{
		Network:    driftmarket.Network(globalFlags.Network),
		RPCURL:     globalFlags.RPCURL,
		PrivateKey: os.Getenv("DRIFTSEA_PRIVATE_KEY"),
	}

	if globalFlags.ConfigFile != "" {
		var file fileConfig
		if _, err := toml.DecodeFile(globalFlags.ConfigFile, &file); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", globalFlags.ConfigFile, err)
		}
		if file.Network != "" && !rootCmd.PersistentFlags().Changed("network") {
			cfg.Network = driftmarket.Network(file.Network)
		}
		if file.RPCURL != "" && !rootCmd.PersistentFlags().Changed("rpc-url") {
			cfg.RPCURL = file.RPCURL
		}
		if file.RelayEndpoint != "" {
			cfg.RelayEndpoint = file.RelayEndpoint
		}
		if file.ChainID != 0 {
			cfg.ChainID = big.NewInt(file.ChainID)
		}
		if len(file.Roles) > 0 {
			cfg.Roles = make(map[chain.ContractRole]common.Address, len(file.Roles))
			for role, addr := range file.Roles {
				if !common.IsHexAddress(addr) {
					return nil, fmt.Errorf("config file role %q has invalid address %q", role, addr)
				}
				cfg.Roles[chain.ContractRole(role)] = common.HexToAddress(addr)
			}
		}
	}

	if cfg.PrivateKey == "" {
		return nil, fmt.Errorf("DRIFTSEA_PRIVATE_KEY is not set")
	}
	if globalFlags.Verbose {
		cfg.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	}

	return driftmarket.NewClient(cfg)
}

// parseHash parses a 0x-prefixed order hash argument.
func parseHash(arg string) (common.Hash, error) {
	trimmed := strings.TrimPrefix(arg, "0x")
	if len(trimmed) != 64 {
		return common.Hash{}, fmt.Errorf("invalid order hash %q: want 32 bytes of hex", arg)
	}
	if _, err := hex.DecodeString(trimmed); err != nil {
		return common.Hash{}, fmt.Errorf("invalid order hash %q: %v", arg, err)
	}
	return common.HexToHash(arg), nil
}
