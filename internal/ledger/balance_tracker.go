package ledger

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// BalanceTracker maintains in-memory account balances.
// Not thread-safe — only accessed from the single-threaded protection core.
type BalanceTracker struct {
	balances map[AccountKey]int64
}

func NewBalanceTracker() *BalanceTracker {
	return &BalanceTracker{
		balances: make(map[AccountKey]int64),
	}
}

// ApplyJournal applies a single journal entry to balances
func (bt *BalanceTracker) ApplyJournal(j Journal) {
	bt.balances[j.DebitAccount] += j.Amount
	bt.balances[j.CreditAccount] -= j.Amount
}

// ApplyBatch applies all journals in a batch
func (bt *BalanceTracker) ApplyBatch(batch *Batch) error {
	if err := batch.Validate(); err != nil {
		return fmt.Errorf("invalid batch: %w", err)
	}

	for _, j := range batch.Journals {
		bt.ApplyJournal(j)
	}

	return nil
}

// GetBalance returns the current balance for an account
func (bt *BalanceTracker) GetBalance(key AccountKey) int64 {
	return bt.balances[key]
}

// SetBalance overwrites an account balance directly. Only used when
// restoring from a snapshot; normal updates go through journals.
func (bt *BalanceTracker) SetBalance(key AccountKey, balance int64) {
	bt.balances[key] = balance
}

// Custody returns the owner's free custody balance for an asset
func (bt *BalanceTracker) Custody(owner common.Address, assetID AssetID) int64 {
	return bt.balances[NewCustodyKey(owner, assetID)]
}

// ChainReserve returns the owner's cross-chain locked balance for an asset
func (bt *BalanceTracker) ChainReserve(owner common.Address, assetID AssetID) int64 {
	return bt.balances[NewReserveKey(owner, assetID)]
}

// Total returns custody + chain reserve for an asset
func (bt *BalanceTracker) Total(owner common.Address, assetID AssetID) int64 {
	return bt.Custody(owner, assetID) + bt.ChainReserve(owner, assetID)
}

// ValidateSufficientCustody checks if the owner can cover the amount
func (bt *BalanceTracker) ValidateSufficientCustody(owner common.Address, assetID AssetID, required int64) error {
	available := bt.Custody(owner, assetID)
	if available < required {
		return fmt.Errorf("insufficient balance: have=%d, need=%d", available, required)
	}
	return nil
}

// ValidateNonNegative checks that a specific account balance is >= 0
func (bt *BalanceTracker) ValidateNonNegative(key AccountKey, reg *Registry) error {
	balance := bt.balances[key]
	if balance < 0 {
		return fmt.Errorf("account %s has negative balance: %d", key.AccountPath(reg), balance)
	}
	return nil
}

// ComputeGlobalBalance sums all account balances per asset (zero-sum check)
func (bt *BalanceTracker) ComputeGlobalBalance() map[AssetID]int64 {
	totals := make(map[AssetID]int64)

	for key, balance := range bt.balances {
		totals[key.AssetID] += balance
	}

	return totals
}

// Snapshot returns a copy of all balances (for state hashing)
func (bt *BalanceTracker) Snapshot() map[AccountKey]int64 {
	snapshot := make(map[AccountKey]int64, len(bt.balances))
	for k, v := range bt.balances {
		snapshot[k] = v
	}
	return snapshot
}
