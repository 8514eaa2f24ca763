// Package policy holds per-owner protection parameters. A stored policy is
// always fully valid: writes are validated atomically and an invalid write
// leaves any previously stored policy untouched.
package policy

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/GuardX-protocol/guardx-engine/internal/ledger"
)

// MinGasBudget is the floor for the per-owner gas budget (1e8 fixed point).
const MinGasBudget int64 = 1_000_000 // 0.01

var (
	ErrZeroOwner        = errors.New("zero owner address")
	ErrNotFound         = errors.New("no policy for owner")
	ErrInvalidThreshold = errors.New("crash threshold out of range [1,10000]")
	ErrInvalidSlippage  = errors.New("max slippage out of range [0,5000]")
	ErrNotStablecoin    = errors.New("preferred asset is not a registered stablecoin")
	ErrGasBudgetTooLow  = errors.New("gas budget below minimum")
)

// ProtectionPolicy is one owner's crash-protection configuration.
type ProtectionPolicy struct {
	CrashThresholdBP int64          // 1..10000
	MaxSlippageBP    int64          // 0..5000
	Stablecoin       ledger.AssetID // must be a registered stablecoin
	GasBudget        int64          // >= MinGasBudget, 1e8 fixed point
	UpdatedAt        time.Time
}

// Store maps owners to validated protection policies.
// Not thread-safe — only accessed from the single-threaded protection core.
type Store struct {
	registry *ledger.Registry
	policies map[common.Address]ProtectionPolicy
}

func NewStore(registry *ledger.Registry) *Store {
	return &Store{
		registry: registry,
		policies: make(map[common.Address]ProtectionPolicy),
	}
}

// Validate checks every field. Used by Set; exported for pre-flight checks.
func (s *Store) Validate(p ProtectionPolicy) error {
	if p.CrashThresholdBP < 1 || p.CrashThresholdBP > 10_000 {
		return fmt.Errorf("%w: %d", ErrInvalidThreshold, p.CrashThresholdBP)
	}
	if p.MaxSlippageBP < 0 || p.MaxSlippageBP > 5_000 {
		return fmt.Errorf("%w: %d", ErrInvalidSlippage, p.MaxSlippageBP)
	}
	if !s.registry.IsStablecoin(p.Stablecoin) {
		return fmt.Errorf("%w: asset id %d", ErrNotStablecoin, p.Stablecoin)
	}
	if p.GasBudget < MinGasBudget {
		return fmt.Errorf("%w: %d < %d", ErrGasBudgetTooLow, p.GasBudget, MinGasBudget)
	}
	return nil
}

// Set creates or overwrites the owner's policy. All-or-nothing: a failed
// validation changes nothing.
func (s *Store) Set(owner common.Address, p ProtectionPolicy, now time.Time) error {
	if owner == (common.Address{}) {
		return ErrZeroOwner
	}
	if err := s.Validate(p); err != nil {
		return err
	}

	p.UpdatedAt = now
	s.policies[owner] = p
	return nil
}

// Get returns the owner's policy.
func (s *Store) Get(owner common.Address) (ProtectionPolicy, error) {
	p, ok := s.policies[owner]
	if !ok {
		return ProtectionPolicy{}, fmt.Errorf("%w: %s", ErrNotFound, owner.Hex())
	}
	return p, nil
}

// Has reports whether the owner has a policy.
func (s *Store) Has(owner common.Address) bool {
	_, ok := s.policies[owner]
	return ok
}

// Delete removes the owner's policy.
func (s *Store) Delete(owner common.Address) {
	delete(s.policies, owner)
}

// Owners returns all addresses with a stored policy, for the crash
// monitor sweep. Sorted by address so iteration order is deterministic.
func (s *Store) Owners() []common.Address {
	owners := make([]common.Address, 0, len(s.policies))
	for owner := range s.policies {
		owners = append(owners, owner)
	}
	sort.Slice(owners, func(i, j int) bool {
		return bytes.Compare(owners[i].Bytes(), owners[j].Bytes()) < 0
	})
	return owners
}
