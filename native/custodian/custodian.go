// Package custodian defines the interface boundary to an external
// yield-generating custodian that escrowed balances may be forwarded to. The
// escrow engine only ever deposits into and withdraws from it; the custodian
// is trusted to make withdrawn balances available in the vault again.
package custodian

import (
	"math/big"

	"github.com/aerisfi/aeris-contracts/native/registry"
)

// Custodian redeploys idle escrow balances. Implementations must be able to
// return the full deposited amount on Withdraw.
type Custodian interface {
	Deposit(asset registry.AssetID, amount *big.Int) error
	Withdraw(asset registry.AssetID, amount *big.Int) error
}

// Noop leaves all balances in the escrow vault.
type Noop struct{}

func (Noop) Deposit(registry.AssetID, *big.Int) error  { return nil }
func (Noop) Withdraw(registry.AssetID, *big.Int) error { return nil }
