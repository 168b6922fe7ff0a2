package chain

import (
	"sort"

	"github.com/ethereum/go-ethereum/common"
)

// ContractRole names a platform contract by function rather than address, so
// calling code stays identical across networks.
type ContractRole string

const (
	// RoleOrderBook is the order-book contract holding open orders.
	RoleOrderBook ContractRole = "order_book"
	// RoleExecutor is the settlement contract that moves assets when an
	// order executes. It is the spender for all approvals.
	RoleExecutor ContractRole = "executor"
	// RoleMessaging is the event relay anchor contract.
	RoleMessaging ContractRole = "messaging"
	// RoleCurrency is the platform's default payment token.
	RoleCurrency ContractRole = "currency"
	// RoleCollectible is the platform's default collectible contract.
	RoleCollectible ContractRole = "collectible"
)

// AddressRegistry maps contract roles to deployed addresses for one network.
// It is immutable after construction; swapping networks means building a new
// registry.
type AddressRegistry struct {
	network string
	roles   map[ContractRole]common.Address
}

// NewAddressRegistry builds a registry from a role table. The table is
// copied, so later mutation of the argument has no effect.
func NewAddressRegistry(network string, table map[ContractRole]common.Address) *AddressRegistry {
	roles := make(map[ContractRole]common.Address, len(table))
	for role, addr := range table {
		roles[role] = addr
	}
	return &AddressRegistry{
		network: network,
		roles:   roles,
	}
}

// Network returns the network label this registry was built for.
func (r *AddressRegistry) Network() string {
	return r.network
}

// Resolve returns the address for a role. An unknown role is a
// ConfigurationError: the network table is wrong, not the chain.
func (r *AddressRegistry) Resolve(role ContractRole) (common.Address, error) {
	addr, ok := r.roles[role]
	if !ok || addr == (common.Address{}) {
		return common.Address{}, &ConfigurationError{
			Network: r.network,
			Role:    role,
		}
	}
	return addr, nil
}

// Roles lists the configured roles in stable order, for diagnostics.
func (r *AddressRegistry) Roles() []ContractRole {
	roles := make([]ContractRole, 0, len(r.roles))
	for role := range r.roles {
		roles = append(roles, role)
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i] < roles[j] })
	return roles
}
