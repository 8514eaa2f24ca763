package ledger

import (
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

var (
	ErrUnknownAsset      = errors.New("unknown asset")
	ErrInvalidAmount     = errors.New("amount must be positive")
	ErrZeroOwner         = errors.New("zero owner address")
	ErrInsufficient      = errors.New("insufficient balance")
	ErrNotAuthorized     = errors.New("caller is not the authorized emergency executor")
	ErrReentrantMutation = errors.New("custody mutation during external call")
)

// AssetLedger is the single owner of custody. All balance movements go
// through it as balanced journal batches; the per-owner portfolio view is
// maintained in the same operation.
//
// Not thread-safe — operations are linearized by the single-threaded
// protection core.
type AssetLedger struct {
	registry   *Registry
	tracker    *BalanceTracker
	portfolios map[common.Address]*Portfolio
	sequence   int64

	// Only this address may move funds without the owner's own
	// authorization (the emergency executor identity).
	emergencyAuthority common.Address

	// Set while an external call (swap) initiated by the executor is in
	// flight. Custody-mutating entry points reject while set: balances are
	// always decremented before the external call, never during it.
	inExternalCall bool
}

func NewAssetLedger(registry *Registry) *AssetLedger {
	return &AssetLedger{
		registry:   registry,
		tracker:    NewBalanceTracker(),
		portfolios: make(map[common.Address]*Portfolio),
	}
}

// Registry returns the asset registry the ledger was built with.
func (al *AssetLedger) Registry() *Registry { return al.registry }

// Tracker exposes the underlying balance tracker for read-only queries.
func (al *AssetLedger) Tracker() *BalanceTracker { return al.tracker }

// SetEmergencyAuthority designates the executor address allowed to perform
// emergency withdrawals.
func (al *AssetLedger) SetEmergencyAuthority(addr common.Address) {
	al.emergencyAuthority = addr
}

// SetSequence initializes the journal sequence (used during recovery).
func (al *AssetLedger) SetSequence(seq int64) { al.sequence = seq }

// BeginExternalCall marks the start of an executor-initiated external call.
func (al *AssetLedger) BeginExternalCall() error {
	if al.inExternalCall {
		return ErrReentrantMutation
	}
	al.inExternalCall = true
	return nil
}

// EndExternalCall clears the external-call guard.
func (al *AssetLedger) EndExternalCall() { al.inExternalCall = false }

// Balance returns the owner's free custody balance.
func (al *AssetLedger) Balance(owner common.Address, assetID AssetID) int64 {
	return al.tracker.Custody(owner, assetID)
}

// Portfolio returns the owner's portfolio view. A nil return means the
// owner has never deposited.
func (al *AssetLedger) Portfolio(owner common.Address) *Portfolio {
	return al.portfolios[owner]
}

// Revalue refreshes the owner's portfolio USD values and risk score.
func (al *AssetLedger) Revalue(owner common.Address, pricer Pricer, now time.Time) {
	if p, ok := al.portfolios[owner]; ok {
		p.Revalue(pricer, now)
	}
}

// Deposit credits the owner's custody from the external deposit account.
// Creates the portfolio on first deposit.
func (al *AssetLedger) Deposit(owner common.Address, assetID AssetID, amount int64, eventRef string, ts time.Time) (*Batch, error) {
	if err := al.checkMutation(owner, assetID, amount); err != nil {
		return nil, err
	}

	batch := al.transfer(
		NewCustodyKey(owner, assetID),
		NewExternalKey(SubTypeExternalDeposits, assetID),
		assetID, amount, JournalTypeDeposit, eventRef, ts,
	)

	al.syncPortfolio(owner, assetID, ts)
	return batch, nil
}

// Withdraw debits the owner's custody to the external withdrawal account.
// Fails with no state change when the balance cannot cover the amount.
func (al *AssetLedger) Withdraw(owner common.Address, assetID AssetID, amount int64, eventRef string, ts time.Time) (*Batch, error) {
	if err := al.checkMutation(owner, assetID, amount); err != nil {
		return nil, err
	}
	if al.tracker.Custody(owner, assetID) < amount {
		return nil, fmt.Errorf("%w: withdraw %d of %s", ErrInsufficient, amount, al.registry.Symbol(assetID))
	}

	batch := al.transfer(
		NewExternalKey(SubTypeExternalWithdrawals, assetID),
		NewCustodyKey(owner, assetID),
		assetID, amount, JournalTypeWithdrawal, eventRef, ts,
	)

	al.syncPortfolio(owner, assetID, ts)
	return batch, nil
}

// EmergencyWithdraw moves the owner's custody out to the exchange account
// on behalf of the emergency executor. Only the designated authority may
// call it.
func (al *AssetLedger) EmergencyWithdraw(authority, owner common.Address, assetID AssetID, amount int64, eventRef string, ts time.Time) (*Batch, error) {
	if authority != al.emergencyAuthority || authority == (common.Address{}) {
		return nil, ErrNotAuthorized
	}
	if err := al.checkMutation(owner, assetID, amount); err != nil {
		return nil, err
	}
	if al.tracker.Custody(owner, assetID) < amount {
		return nil, fmt.Errorf("%w: emergency withdraw %d of %s", ErrInsufficient, amount, al.registry.Symbol(assetID))
	}

	batch := al.transfer(
		NewExternalKey(SubTypeExternalExchange, assetID),
		NewCustodyKey(owner, assetID),
		assetID, amount, JournalTypeEmergencyWithdrawal, eventRef, ts,
	)

	al.syncPortfolio(owner, assetID, ts)
	return batch, nil
}

// SwapCredit credits swap proceeds back into the owner's custody.
func (al *AssetLedger) SwapCredit(authority, owner common.Address, assetID AssetID, amount int64, eventRef string, ts time.Time) (*Batch, error) {
	if authority != al.emergencyAuthority || authority == (common.Address{}) {
		return nil, ErrNotAuthorized
	}
	if err := al.checkMutation(owner, assetID, amount); err != nil {
		return nil, err
	}

	batch := al.transfer(
		NewCustodyKey(owner, assetID),
		NewExternalKey(SubTypeExternalExchange, assetID),
		assetID, amount, JournalTypeSwapCredit, eventRef, ts,
	)

	al.syncPortfolio(owner, assetID, ts)
	return batch, nil
}

// SwapRefund returns a withdrawn asset to the owner after a failed swap
// leg. Failed legs are refunded, never stranded.
func (al *AssetLedger) SwapRefund(authority, owner common.Address, assetID AssetID, amount int64, eventRef string, ts time.Time) (*Batch, error) {
	if authority != al.emergencyAuthority || authority == (common.Address{}) {
		return nil, ErrNotAuthorized
	}
	if err := al.checkMutation(owner, assetID, amount); err != nil {
		return nil, err
	}

	batch := al.transfer(
		NewCustodyKey(owner, assetID),
		NewExternalKey(SubTypeExternalExchange, assetID),
		assetID, amount, JournalTypeSwapRefund, eventRef, ts,
	)

	al.syncPortfolio(owner, assetID, ts)
	return batch, nil
}

// LockForChain earmarks custody for a cross-chain operation by moving it
// into the owner's chain-reserve account.
func (al *AssetLedger) LockForChain(owner common.Address, assetID AssetID, amount int64, eventRef string, ts time.Time) (*Batch, error) {
	if err := al.checkMutation(owner, assetID, amount); err != nil {
		return nil, err
	}
	if al.tracker.Custody(owner, assetID) < amount {
		return nil, fmt.Errorf("%w: lock %d of %s", ErrInsufficient, amount, al.registry.Symbol(assetID))
	}

	batch := al.transfer(
		NewReserveKey(owner, assetID),
		NewCustodyKey(owner, assetID),
		assetID, amount, JournalTypeChainLock, eventRef, ts,
	)

	al.syncPortfolio(owner, assetID, ts)
	return batch, nil
}

// UnlockFromChain releases a chain reserve back into free custody.
func (al *AssetLedger) UnlockFromChain(owner common.Address, assetID AssetID, amount int64, eventRef string, ts time.Time) (*Batch, error) {
	if err := al.checkMutation(owner, assetID, amount); err != nil {
		return nil, err
	}
	if al.tracker.ChainReserve(owner, assetID) < amount {
		return nil, fmt.Errorf("%w: unlock %d of %s", ErrInsufficient, amount, al.registry.Symbol(assetID))
	}

	batch := al.transfer(
		NewCustodyKey(owner, assetID),
		NewReserveKey(owner, assetID),
		assetID, amount, JournalTypeChainUnlock, eventRef, ts,
	)

	al.syncPortfolio(owner, assetID, ts)
	return batch, nil
}

// ConsumeReserve finalizes a migration: locked funds leave the ledger to
// the external withdrawal account.
func (al *AssetLedger) ConsumeReserve(owner common.Address, assetID AssetID, amount int64, eventRef string, ts time.Time) (*Batch, error) {
	if err := al.checkMutation(owner, assetID, amount); err != nil {
		return nil, err
	}
	if al.tracker.ChainReserve(owner, assetID) < amount {
		return nil, fmt.Errorf("%w: consume %d of %s", ErrInsufficient, amount, al.registry.Symbol(assetID))
	}

	batch := al.transfer(
		NewExternalKey(SubTypeExternalWithdrawals, assetID),
		NewReserveKey(owner, assetID),
		assetID, amount, JournalTypeChainUnlock, eventRef, ts,
	)

	return batch, nil
}

// RebuildPortfolios reconstructs per-owner portfolio views from the
// current custody balances. Used after restoring tracker state from a
// snapshot; USD values and risk scores repopulate on the next revalue.
func (al *AssetLedger) RebuildPortfolios(ts time.Time) {
	al.portfolios = make(map[common.Address]*Portfolio)

	for key, balance := range al.tracker.Snapshot() {
		if key.Scope != AccountScopeUser || key.SubType != SubTypeCustody || balance <= 0 {
			continue
		}
		al.syncPortfolio(key.Owner, key.AssetID, ts)
	}
}

func (al *AssetLedger) checkMutation(owner common.Address, assetID AssetID, amount int64) error {
	if al.inExternalCall {
		return ErrReentrantMutation
	}
	if owner == (common.Address{}) {
		return ErrZeroOwner
	}
	if _, ok := al.registry.LookupID(assetID); !ok {
		return fmt.Errorf("%w: id %d", ErrUnknownAsset, assetID)
	}
	if amount <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidAmount, amount)
	}
	return nil
}

func (al *AssetLedger) transfer(debit, credit AccountKey, assetID AssetID, amount int64, jt JournalType, eventRef string, ts time.Time) *Batch {
	batchID := uuid.New()

	batch := &Batch{
		BatchID:   batchID,
		EventRef:  eventRef,
		Sequence:  al.sequence,
		Timestamp: ts.UnixMicro(),
		Journals: []Journal{{
			JournalID:     uuid.New(),
			BatchID:       batchID,
			EventRef:      eventRef,
			Sequence:      al.sequence,
			DebitAccount:  debit,
			CreditAccount: credit,
			AssetID:       assetID,
			Amount:        amount,
			JournalType:   jt,
			Timestamp:     ts.UnixMicro(),
		}},
	}

	for _, j := range batch.Journals {
		al.tracker.ApplyJournal(j)
	}
	al.sequence++

	return batch
}

// syncPortfolio reconciles the portfolio entry for one asset with the
// current custody balance.
func (al *AssetLedger) syncPortfolio(owner common.Address, assetID AssetID, ts time.Time) {
	p, ok := al.portfolios[owner]
	if !ok {
		p = &Portfolio{Owner: owner, LastUpdated: ts}
		al.portfolios[owner] = p
	}

	info, _ := al.registry.LookupID(assetID)
	p.setAmount(info, al.tracker.Custody(owner, assetID), ts)
}
