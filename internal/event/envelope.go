package event

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// EventType discriminator for event payloads
type EventType int32

const (
	EventTypeUnknown EventType = iota
	EventTypeDeposit
	EventTypeWithdrawal
	EventTypePolicyUpdated
	EventTypePolicyDeleted
	EventTypePriceObserved
	EventTypeExecutionStarted
	EventTypeExecutionCompleted
	EventTypeConversionLeg
	EventTypeChainLocked
	EventTypeChainUnlocked
	EventTypeMigrationStarted
	EventTypeMigrationCompleted
	EventTypeMessageSent
	EventTypeMessageReceived
	EventTypeCoordinationInitiated
	EventTypeCoordinationExecuted
	EventTypeProposalCreated
	EventTypeProposalVoted
	EventTypeProposalExecuted
	EventTypeGrantCreated
	EventTypeGrantToggled
	EventTypeScriptBound
	EventTypeLockRequested
	EventTypeUnlockRequested
	EventTypeMigrateRequested
	EventTypeCoordinationRequested
	EventTypeProposalSubmitted
	EventTypeProposalExecutionRequested
)

// EventEnvelope wraps every event in the audit log
type EventEnvelope struct {
	// Global monotonic sequence assigned by the core
	Sequence int64

	// Stable idempotency key from upstream
	IdempotencyKey string

	// Event type discriminator
	EventType EventType

	// Owner context (nil for global events such as price updates)
	Owner *common.Address

	// Versioned input timestamp (NOT wall-clock)
	Timestamp time.Time

	// Upstream sequence for ordering validation
	SourceSequence int64

	// JSON-encoded event-specific data
	Payload []byte

	// SHA-256 of state AFTER applying this event
	StateHash [32]byte

	// Previous event's state hash (chain integrity)
	PrevHash [32]byte
}

// Event is the interface all event payloads must implement
type Event interface {
	// IdempotencyKey returns the stable dedup key
	IdempotencyKey() string

	// EventType returns the discriminator
	EventType() EventType

	// Owner returns the owner context (nil for global events)
	Owner() *common.Address

	// SourceSequence returns upstream ordering key
	SourceSequence() int64
}

func (et EventType) String() string {
	switch et {
	case EventTypeDeposit:
		return "Deposit"
	case EventTypeWithdrawal:
		return "Withdrawal"
	case EventTypePolicyUpdated:
		return "PolicyUpdated"
	case EventTypePolicyDeleted:
		return "PolicyDeleted"
	case EventTypePriceObserved:
		return "PriceObserved"
	case EventTypeExecutionStarted:
		return "ExecutionStarted"
	case EventTypeExecutionCompleted:
		return "ExecutionCompleted"
	case EventTypeConversionLeg:
		return "ConversionLeg"
	case EventTypeChainLocked:
		return "ChainLocked"
	case EventTypeChainUnlocked:
		return "ChainUnlocked"
	case EventTypeMigrationStarted:
		return "MigrationStarted"
	case EventTypeMigrationCompleted:
		return "MigrationCompleted"
	case EventTypeMessageSent:
		return "MessageSent"
	case EventTypeMessageReceived:
		return "MessageReceived"
	case EventTypeCoordinationInitiated:
		return "CoordinationInitiated"
	case EventTypeCoordinationExecuted:
		return "CoordinationExecuted"
	case EventTypeProposalCreated:
		return "ProposalCreated"
	case EventTypeProposalVoted:
		return "ProposalVoted"
	case EventTypeProposalExecuted:
		return "ProposalExecuted"
	case EventTypeGrantCreated:
		return "GrantCreated"
	case EventTypeGrantToggled:
		return "GrantToggled"
	case EventTypeScriptBound:
		return "ScriptBound"
	case EventTypeLockRequested:
		return "LockRequested"
	case EventTypeUnlockRequested:
		return "UnlockRequested"
	case EventTypeMigrateRequested:
		return "MigrateRequested"
	case EventTypeCoordinationRequested:
		return "CoordinationRequested"
	case EventTypeProposalSubmitted:
		return "ProposalSubmitted"
	case EventTypeProposalExecutionRequested:
		return "ProposalExecutionRequested"
	default:
		return "Unknown"
	}
}
