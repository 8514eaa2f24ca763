package ledger

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// InvariantValidator checks ledger invariants
type InvariantValidator struct {
	ledger *AssetLedger
}

func NewInvariantValidator(ledger *AssetLedger) *InvariantValidator {
	return &InvariantValidator{
		ledger: ledger,
	}
}

// ValidateGlobalBalance verifies the system is zero-sum per asset
func (v *InvariantValidator) ValidateGlobalBalance() error {
	totals := v.ledger.Tracker().ComputeGlobalBalance()

	for assetID, total := range totals {
		if total != 0 {
			return fmt.Errorf("global balance for %s is non-zero: %d",
				v.ledger.Registry().Symbol(assetID), total)
		}
	}

	return nil
}

// ValidateCustodyNonNegative checks the owner's custody and reserve
// balances are >= 0 for an asset
func (v *InvariantValidator) ValidateCustodyNonNegative(owner common.Address, assetID AssetID) error {
	reg := v.ledger.Registry()
	if err := v.ledger.Tracker().ValidateNonNegative(NewCustodyKey(owner, assetID), reg); err != nil {
		return err
	}
	return v.ledger.Tracker().ValidateNonNegative(NewReserveKey(owner, assetID), reg)
}

// ValidatePortfolioConsistency checks that a portfolio entry exists for
// (owner, asset) iff the custody balance is positive
func (v *InvariantValidator) ValidatePortfolioConsistency(owner common.Address) error {
	p := v.ledger.Portfolio(owner)
	if p == nil {
		return nil
	}

	seen := make(map[AssetID]bool, len(p.Entries))
	for _, e := range p.Entries {
		seen[e.AssetID] = true
		balance := v.ledger.Balance(owner, e.AssetID)
		if balance <= 0 {
			return fmt.Errorf("portfolio entry %s exists with non-positive balance %d",
				v.ledger.Registry().Symbol(e.AssetID), balance)
		}
		if e.Amount != balance {
			return fmt.Errorf("portfolio entry %s amount %d != custody balance %d",
				v.ledger.Registry().Symbol(e.AssetID), e.Amount, balance)
		}
	}

	for key, balance := range v.ledger.Tracker().Snapshot() {
		if key.Scope == AccountScopeUser && key.Owner == owner &&
			key.SubType == SubTypeCustody && balance > 0 && !seen[key.AssetID] {
			return fmt.Errorf("positive balance for %s has no portfolio entry",
				v.ledger.Registry().Symbol(key.AssetID))
		}
	}

	return nil
}
