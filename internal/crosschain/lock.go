package crosschain

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/GuardX-protocol/guardx-engine/internal/authz"
	"github.com/GuardX-protocol/guardx-engine/internal/ledger"
)

const (
	// LockTimeout is how long a lock stays redeemable.
	LockTimeout = time.Hour

	// MigrationTimeout is how long a migration stays completable.
	MigrationTimeout = 2 * time.Hour
)

var (
	ErrLockNotFound      = errors.New("lock not found")
	ErrLockExpired       = errors.New("lock expired")
	ErrLockReleased      = errors.New("lock already released")
	ErrLockOwnerMismatch = errors.New("lock belongs to a different owner")
	ErrMigrationNotFound = errors.New("migration not found")
	ErrMigrationExpired  = errors.New("migration window elapsed")
	ErrMigrationDone     = errors.New("migration already completed")
)

// Lock custodies an owner's asset in the chain reserve pending a
// cross-chain action. Expiry is checked lazily on access.
type Lock struct {
	Hash        common.Hash
	Owner       common.Address
	Asset       ledger.AssetID
	Amount      int64
	OriginChain uint64
	TargetChain uint64
	LockedAt    time.Time
	ExpiresAt   time.Time
	Released    bool
}

// Migration pairs a lock with the outbound message announcing it.
type Migration struct {
	LockHash    common.Hash
	MessageHash common.Hash
	Owner       common.Address
	TargetChain uint64
	StartedAt   time.Time
	ExpiresAt   time.Time
	Completed   bool
}

// LockManager runs the lock/unlock/migrate lifecycle against the ledger
// chain reserve, gated by delegation signatures.
type LockManager struct {
	ledger  *ledger.AssetLedger
	grants  *authz.Grants
	channel *Channel

	locks      map[common.Hash]*Lock
	migrations map[common.Hash]*Migration
	lockNonce  map[uint64]uint64

	now func() time.Time
}

func NewLockManager(al *ledger.AssetLedger, grants *authz.Grants, channel *Channel) *LockManager {
	return &LockManager{
		ledger:     al,
		grants:     grants,
		channel:    channel,
		locks:      make(map[common.Hash]*Lock),
		migrations: make(map[common.Hash]*Migration),
		lockNonce:  make(map[uint64]uint64),
		now:        time.Now,
	}
}

// SetClock overrides the wall clock (tests).
func (m *LockManager) SetClock(now func() time.Time) { m.now = now }

// Lock moves custody into the chain reserve and records a redeemable
// lock with a one-hour expiry.
func (m *LockManager) Lock(owner common.Address, asset ledger.AssetID, amount int64, targetChain uint64) (common.Hash, error) {
	if !m.channel.chains.IsSupported(targetChain) {
		return common.Hash{}, fmt.Errorf("%w: %d", ErrUnsupportedChain, targetChain)
	}
	if m.channel.chains.IsPaused(targetChain) {
		return common.Hash{}, fmt.Errorf("%w: %s", ErrChainPaused, m.channel.chains.Name(targetChain))
	}

	now := m.now()
	nonce := m.lockNonce[targetChain] + 1
	hash := lockHash(owner, asset, amount, m.channel.LocalChain(), targetChain, now, nonce)

	if _, err := m.ledger.LockForChain(owner, asset, amount, hash.Hex(), now); err != nil {
		return common.Hash{}, err
	}
	m.lockNonce[targetChain] = nonce

	m.locks[hash] = &Lock{
		Hash:        hash,
		Owner:       owner,
		Asset:       asset,
		Amount:      amount,
		OriginChain: m.channel.LocalChain(),
		TargetChain: targetChain,
		LockedAt:    now,
		ExpiresAt:   now.Add(LockTimeout),
	}
	return hash, nil
}

// UnlockDigest is the canonical digest a delegate signs to release a
// lock: keccak256(owner ‖ lockHash ‖ unixSeconds).
func UnlockDigest(owner common.Address, lockHash common.Hash, signedAt time.Time) common.Hash {
	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], uint64(signedAt.Unix()))
	return crypto.Keccak256Hash(owner.Bytes(), lockHash.Bytes(), ts[:])
}

// Unlock releases a lock back to custody. Requires a delegate signature
// over UnlockDigest and fails on an expired or already-released lock.
func (m *LockManager) Unlock(owner common.Address, hash common.Hash, sig []byte, signedAt time.Time) error {
	lock, ok := m.locks[hash]
	if !ok {
		return fmt.Errorf("%w: %s", ErrLockNotFound, hash.Hex())
	}
	if lock.Owner != owner {
		return ErrLockOwnerMismatch
	}
	if lock.Released {
		return ErrLockReleased
	}

	now := m.now()
	if now.After(lock.ExpiresAt) {
		return fmt.Errorf("%w: expired at %s", ErrLockExpired, lock.ExpiresAt.Format(time.RFC3339))
	}

	if err := m.grants.VerifySignature(owner, UnlockDigest(owner, hash, signedAt), sig); err != nil {
		return err
	}

	if _, err := m.ledger.UnlockFromChain(owner, lock.Asset, lock.Amount, hash.Hex(), now); err != nil {
		return err
	}
	lock.Released = true
	return nil
}

// Migrate composes a lock and an outbound message announcing it to the
// target chain. The migration record stays completable for two hours.
func (m *LockManager) Migrate(owner common.Address, asset ledger.AssetID, amount int64, targetChain uint64) (common.Hash, Message, error) {
	hash, err := m.Lock(owner, asset, amount, targetChain)
	if err != nil {
		return common.Hash{}, Message{}, err
	}

	msg, err := m.channel.Send(targetChain, KindMigration, hash.Bytes())
	if err != nil {
		// Unwind: the lock cannot announce itself, release custody.
		now := m.now()
		if _, unlockErr := m.ledger.UnlockFromChain(owner, asset, amount, hash.Hex(), now); unlockErr == nil {
			m.locks[hash].Released = true
		}
		return common.Hash{}, Message{}, err
	}

	now := m.now()
	m.migrations[hash] = &Migration{
		LockHash:    hash,
		MessageHash: msg.Hash,
		Owner:       owner,
		TargetChain: targetChain,
		StartedAt:   now,
		ExpiresAt:   now.Add(MigrationTimeout),
	}
	return hash, msg, nil
}

// CompleteDigest is the digest a delegate signs to finalize a migration:
// keccak256(owner ‖ lockHash ‖ "complete" ‖ unixSeconds).
func CompleteDigest(owner common.Address, lockHash common.Hash, signedAt time.Time) common.Hash {
	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], uint64(signedAt.Unix()))
	return crypto.Keccak256Hash(owner.Bytes(), lockHash.Bytes(), []byte("complete"), ts[:])
}

// CompleteMigration verifies the second signature and marks the
// migration terminal, consuming the reserved amount from the ledger.
func (m *LockManager) CompleteMigration(hash common.Hash, sig []byte, signedAt time.Time) error {
	mig, ok := m.migrations[hash]
	if !ok {
		return fmt.Errorf("%w: %s", ErrMigrationNotFound, hash.Hex())
	}
	if mig.Completed {
		return ErrMigrationDone
	}

	now := m.now()
	if now.After(mig.ExpiresAt) {
		return fmt.Errorf("%w: expired at %s", ErrMigrationExpired, mig.ExpiresAt.Format(time.RFC3339))
	}

	if err := m.grants.VerifySignature(mig.Owner, CompleteDigest(mig.Owner, hash, signedAt), sig); err != nil {
		return err
	}

	lock := m.locks[hash]
	if _, err := m.ledger.ConsumeReserve(mig.Owner, lock.Asset, lock.Amount, hash.Hex(), now); err != nil {
		return err
	}
	lock.Released = true
	mig.Completed = true
	return nil
}

// GetLock returns a copy of the lock for hash.
func (m *LockManager) GetLock(hash common.Hash) (Lock, bool) {
	lock, ok := m.locks[hash]
	if !ok {
		return Lock{}, false
	}
	return *lock, true
}

// GetMigration returns a copy of the migration for hash.
func (m *LockManager) GetMigration(hash common.Hash) (Migration, bool) {
	mig, ok := m.migrations[hash]
	if !ok {
		return Migration{}, false
	}
	return *mig, true
}

func lockHash(owner common.Address, asset ledger.AssetID, amount int64, origin, target uint64, ts time.Time, nonce uint64) common.Hash {
	var buf [42]byte
	binary.BigEndian.PutUint16(buf[0:2], uint16(asset))
	binary.BigEndian.PutUint64(buf[2:10], uint64(amount))
	binary.BigEndian.PutUint64(buf[10:18], origin)
	binary.BigEndian.PutUint64(buf[18:26], target)
	binary.BigEndian.PutUint64(buf[26:34], uint64(ts.Unix()))
	binary.BigEndian.PutUint64(buf[34:42], nonce)
	return crypto.Keccak256Hash(owner.Bytes(), buf[:])
}
