package chain

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

func TestRegistryResolve(t *testing.T) {
	registry := NewAddressRegistry("development", testRoleTable())

	for role, want := range testRoleTable() {
		got, err := registry.Resolve(role)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
}

func TestRegistryUnknownRole(t *testing.T) {
	registry := NewAddressRegistry("staging", map[ContractRole]common.Address{
		RoleOrderBook: testBookAddr,
	})

	_, err := registry.Resolve(RoleCurrency)
	require.Error(t, err)

	var cfgErr *ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	require.Equal(t, "staging", cfgErr.Network)
	require.Equal(t, RoleCurrency, cfgErr.Role)
}

func TestRegistryZeroAddressIsUnconfigured(t *testing.T) {
	registry := NewAddressRegistry("development", map[ContractRole]common.Address{
		RoleOrderBook: {},
	})

	_, err := registry.Resolve(RoleOrderBook)
	var cfgErr *ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
}

func TestRegistryImmutableAfterConstruction(t *testing.T) {
	table := testRoleTable()
	registry := NewAddressRegistry("development", table)

	table[RoleOrderBook] = common.HexToAddress("0x000000000000000000000000000000000000dEaD")

	got, err := registry.Resolve(RoleOrderBook)
	require.NoError(t, err)
	require.Equal(t, testBookAddr, got)
}

func TestRegistryRolesSorted(t *testing.T) {
	registry := NewAddressRegistry("development", testRoleTable())

	roles := registry.Roles()
	require.Len(t, roles, 5)
	for i := 1; i < len(roles); i++ {
		require.Less(t, string(roles[i-1]), string(roles[i]))
	}
}
