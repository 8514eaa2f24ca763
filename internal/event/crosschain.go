package event

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/google/uuid"
)

// LockRequested asks the core to earmark custody for a cross-chain
// operation. The lock hash is assigned by the lock manager and reported
// back in the derived ChainLocked event.
type LockRequested struct {
	RequestID   uuid.UUID      `json:"request_id"`
	Account     common.Address `json:"owner"`
	Asset       string         `json:"asset"`
	Amount      int64          `json:"amount"`
	TargetChain uint64         `json:"target_chain"`
	Timestamp   int64          `json:"timestamp_us"`
	Sequence    int64          `json:"sequence"`
}

func (e *LockRequested) IdempotencyKey() string { return e.RequestID.String() }
func (e *LockRequested) EventType() EventType   { return EventTypeLockRequested }
func (e *LockRequested) Owner() *common.Address { return &e.Account }
func (e *LockRequested) SourceSequence() int64  { return e.Sequence }

// UnlockRequested releases a lock back to custody. The signature is a
// delegate signature over the unlock digest.
type UnlockRequested struct {
	RequestID uuid.UUID      `json:"request_id"`
	Account   common.Address `json:"owner"`
	LockHash  common.Hash    `json:"lock_hash"`
	SignedAt  int64          `json:"signed_at"` // Epoch seconds
	Signature hexutil.Bytes  `json:"signature"`
	Timestamp int64          `json:"timestamp_us"`
	Sequence  int64          `json:"sequence"`
}

func (e *UnlockRequested) IdempotencyKey() string { return e.RequestID.String() }
func (e *UnlockRequested) EventType() EventType   { return EventTypeUnlockRequested }
func (e *UnlockRequested) Owner() *common.Address { return &e.Account }
func (e *UnlockRequested) SourceSequence() int64  { return e.Sequence }

// MigrateRequested composes a lock with an outbound announcement to the
// target chain.
type MigrateRequested struct {
	RequestID   uuid.UUID      `json:"request_id"`
	Account     common.Address `json:"owner"`
	Asset       string         `json:"asset"`
	Amount      int64          `json:"amount"`
	TargetChain uint64         `json:"target_chain"`
	Timestamp   int64          `json:"timestamp_us"`
	Sequence    int64          `json:"sequence"`
}

func (e *MigrateRequested) IdempotencyKey() string { return e.RequestID.String() }
func (e *MigrateRequested) EventType() EventType   { return EventTypeMigrateRequested }
func (e *MigrateRequested) Owner() *common.Address { return &e.Account }
func (e *MigrateRequested) SourceSequence() int64  { return e.Sequence }

// CoordinationRequested starts a multi-chain emergency fan-out, pairing
// each target chain with the automation script to run there.
type CoordinationRequested struct {
	RequestID uuid.UUID      `json:"request_id"`
	Account   common.Address `json:"owner"`
	ChainIDs  []uint64       `json:"chain_ids"`
	ScriptIDs []string       `json:"script_ids"`
	Timestamp int64          `json:"timestamp_us"`
	Sequence  int64          `json:"sequence"`
}

func (e *CoordinationRequested) IdempotencyKey() string { return e.RequestID.String() }
func (e *CoordinationRequested) EventType() EventType   { return EventTypeCoordinationRequested }
func (e *CoordinationRequested) Owner() *common.Address { return &e.Account }
func (e *CoordinationRequested) SourceSequence() int64  { return e.Sequence }

// ChainLocked records custody earmarked for a cross-chain operation
type ChainLocked struct {
	LockHash    common.Hash    `json:"lock_hash"`
	Account     common.Address `json:"owner"`
	Asset       string         `json:"asset"`
	Amount      int64          `json:"amount"`
	OriginChain uint64         `json:"origin_chain"`
	TargetChain uint64         `json:"target_chain"`
	Sequence    int64          `json:"sequence"`
}

func (e *ChainLocked) IdempotencyKey() string { return e.LockHash.Hex() + ":lock" }
func (e *ChainLocked) EventType() EventType   { return EventTypeChainLocked }
func (e *ChainLocked) Owner() *common.Address { return &e.Account }
func (e *ChainLocked) SourceSequence() int64  { return e.Sequence }

// ChainUnlocked records a released lock
type ChainUnlocked struct {
	LockHash common.Hash    `json:"lock_hash"`
	Account  common.Address `json:"owner"`
	Sequence int64          `json:"sequence"`
}

func (e *ChainUnlocked) IdempotencyKey() string { return e.LockHash.Hex() + ":unlock" }
func (e *ChainUnlocked) EventType() EventType   { return EventTypeChainUnlocked }
func (e *ChainUnlocked) Owner() *common.Address { return &e.Account }
func (e *ChainUnlocked) SourceSequence() int64  { return e.Sequence }

// MigrationStarted records a lock composed with an outbound transfer
type MigrationStarted struct {
	MigrationHash common.Hash    `json:"migration_hash"`
	Account       common.Address `json:"owner"`
	Asset         string         `json:"asset"`
	Amount        int64          `json:"amount"`
	TargetChain   uint64         `json:"target_chain"`
	Sequence      int64          `json:"sequence"`
}

func (e *MigrationStarted) IdempotencyKey() string { return e.MigrationHash.Hex() + ":migrate" }
func (e *MigrationStarted) EventType() EventType   { return EventTypeMigrationStarted }
func (e *MigrationStarted) Owner() *common.Address { return &e.Account }
func (e *MigrationStarted) SourceSequence() int64  { return e.Sequence }

// MigrationCompleted records the receiving side finalizing a migration
type MigrationCompleted struct {
	MigrationHash common.Hash    `json:"migration_hash"`
	Account       common.Address `json:"owner"`
	Sequence      int64          `json:"sequence"`
}

func (e *MigrationCompleted) IdempotencyKey() string { return e.MigrationHash.Hex() + ":complete" }
func (e *MigrationCompleted) EventType() EventType   { return EventTypeMigrationCompleted }
func (e *MigrationCompleted) Owner() *common.Address { return &e.Account }
func (e *MigrationCompleted) SourceSequence() int64  { return e.Sequence }

// MessageSent records an outbound cross-chain message. The full content
// rides along so the relayer path can be fed from the audit stream.
type MessageSent struct {
	MessageHash common.Hash   `json:"message_hash"`
	TargetChain uint64        `json:"target_chain"`
	Nonce       uint64        `json:"nonce"`
	Kind        string        `json:"kind"`
	Payload     hexutil.Bytes `json:"payload"`
	SentAt      int64         `json:"sent_at"`     // Epoch seconds
	ValidUntil  int64         `json:"valid_until"` // Epoch seconds
	Sequence    int64         `json:"sequence"`
}

func (e *MessageSent) IdempotencyKey() string { return e.MessageHash.Hex() + ":sent" }
func (e *MessageSent) EventType() EventType   { return EventTypeMessageSent }
func (e *MessageSent) Owner() *common.Address { return nil }
func (e *MessageSent) SourceSequence() int64  { return e.Sequence }

// MessageReceived carries an inbound cross-chain message. The full
// content is included so the receiving side can verify the hash and
// run replay deduplication.
type MessageReceived struct {
	MessageHash common.Hash   `json:"message_hash"`
	SourceChain uint64        `json:"source_chain"`
	TargetChain uint64        `json:"target_chain"`
	Nonce       uint64        `json:"nonce"`
	Kind        string        `json:"kind"`
	Payload     hexutil.Bytes `json:"payload"`
	SentAt      int64         `json:"sent_at"`     // Epoch seconds
	ValidUntil  int64         `json:"valid_until"` // Epoch seconds
	Sequence    int64         `json:"sequence"`
}

func (e *MessageReceived) IdempotencyKey() string { return e.MessageHash.Hex() + ":recv" }
func (e *MessageReceived) EventType() EventType   { return EventTypeMessageReceived }
func (e *MessageReceived) Owner() *common.Address { return nil }
func (e *MessageReceived) SourceSequence() int64  { return e.Sequence }

// CoordinationInitiated records a multi-chain emergency fan-out
type CoordinationInitiated struct {
	CoordinationHash common.Hash    `json:"coordination_hash"`
	Account          common.Address `json:"owner"`
	ChainIDs         []uint64       `json:"chain_ids"`
	Sequence         int64          `json:"sequence"`
}

func (e *CoordinationInitiated) IdempotencyKey() string {
	return e.CoordinationHash.Hex() + ":init"
}

func (e *CoordinationInitiated) EventType() EventType   { return EventTypeCoordinationInitiated }
func (e *CoordinationInitiated) Owner() *common.Address { return &e.Account }
func (e *CoordinationInitiated) SourceSequence() int64  { return e.Sequence }

// CoordinationExecuted records one chain reporting execution
type CoordinationExecuted struct {
	CoordinationHash common.Hash    `json:"coordination_hash"`
	Account          common.Address `json:"owner"`
	ChainID          uint64         `json:"chain_id"`
	Terminal         bool           `json:"terminal"`
	Sequence         int64          `json:"sequence"`
}

func (e *CoordinationExecuted) IdempotencyKey() string {
	return fmt.Sprintf("%s:exec:%d", e.CoordinationHash.Hex(), e.ChainID)
}

func (e *CoordinationExecuted) EventType() EventType   { return EventTypeCoordinationExecuted }
func (e *CoordinationExecuted) Owner() *common.Address { return &e.Account }
func (e *CoordinationExecuted) SourceSequence() int64  { return e.Sequence }
