package event

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/google/uuid"
)

// ProposalSubmitted asks governance to open a proposal. The core assigns
// the proposal id; the submission id is only the dedup key.
type ProposalSubmitted struct {
	SubmissionID uuid.UUID       `json:"submission_id"`
	Proposer     common.Address  `json:"proposer"`
	Description  string          `json:"description"`
	ChainIDs     []uint64        `json:"chain_ids"`
	Payloads     []hexutil.Bytes `json:"payloads"`
	Timestamp    int64           `json:"timestamp_us"`
	Sequence     int64           `json:"sequence"`
}

func (e *ProposalSubmitted) IdempotencyKey() string { return e.SubmissionID.String() }
func (e *ProposalSubmitted) EventType() EventType   { return EventTypeProposalSubmitted }
func (e *ProposalSubmitted) Owner() *common.Address { return &e.Proposer }
func (e *ProposalSubmitted) SourceSequence() int64  { return e.Sequence }

// ProposalCreated records a new governance proposal
type ProposalCreated struct {
	ProposalID uint64         `json:"proposal_id"`
	Proposer   common.Address `json:"proposer"`
	ChainIDs   []uint64       `json:"chain_ids"`
	Sequence   int64          `json:"sequence"`
}

func (e *ProposalCreated) IdempotencyKey() string {
	return fmt.Sprintf("proposal:%d:created", e.ProposalID)
}

func (e *ProposalCreated) EventType() EventType   { return EventTypeProposalCreated }
func (e *ProposalCreated) Owner() *common.Address { return &e.Proposer }
func (e *ProposalCreated) SourceSequence() int64  { return e.Sequence }

// ProposalVoted records a member's vote
type ProposalVoted struct {
	ProposalID uint64         `json:"proposal_id"`
	Member     common.Address `json:"member"`
	Support    bool           `json:"support"`
	Timestamp  int64          `json:"timestamp_us"`
	Sequence   int64          `json:"sequence"`
}

func (e *ProposalVoted) IdempotencyKey() string {
	return fmt.Sprintf("proposal:%d:vote:%s", e.ProposalID, e.Member.Hex())
}

func (e *ProposalVoted) EventType() EventType   { return EventTypeProposalVoted }
func (e *ProposalVoted) Owner() *common.Address { return &e.Member }
func (e *ProposalVoted) SourceSequence() int64  { return e.Sequence }

// ProposalExecutionRequested asks governance to settle a proposal after
// its deadline.
type ProposalExecutionRequested struct {
	ProposalID uint64         `json:"proposal_id"`
	Caller     common.Address `json:"caller"`
	Timestamp  int64          `json:"timestamp_us"`
	Sequence   int64          `json:"sequence"`
}

func (e *ProposalExecutionRequested) IdempotencyKey() string {
	return fmt.Sprintf("proposal:%d:execute", e.ProposalID)
}

func (e *ProposalExecutionRequested) EventType() EventType   { return EventTypeProposalExecutionRequested }
func (e *ProposalExecutionRequested) Owner() *common.Address { return &e.Caller }
func (e *ProposalExecutionRequested) SourceSequence() int64  { return e.Sequence }

// ProposalExecuted records a passed proposal's execution
type ProposalExecuted struct {
	ProposalID uint64         `json:"proposal_id"`
	Executor   common.Address `json:"executor"`
	Sequence   int64          `json:"sequence"`
}

func (e *ProposalExecuted) IdempotencyKey() string {
	return fmt.Sprintf("proposal:%d:executed", e.ProposalID)
}

func (e *ProposalExecuted) EventType() EventType   { return EventTypeProposalExecuted }
func (e *ProposalExecuted) Owner() *common.Address { return &e.Executor }
func (e *ProposalExecuted) SourceSequence() int64  { return e.Sequence }

// GrantCreated carries a delegate-signed grant descriptor. The signature
// covers owner, delegate, key material, threshold, and signing time, so
// the core can verify possession before storing the grant.
type GrantCreated struct {
	Account   common.Address `json:"owner"`
	Delegate  common.Address `json:"delegate"`
	PublicKey hexutil.Bytes  `json:"public_key"`
	Threshold uint8          `json:"threshold"`
	SignedAt  int64          `json:"signed_at"` // Epoch seconds, bound into the digest
	Signature hexutil.Bytes  `json:"signature"`
	Timestamp int64          `json:"timestamp_us"`
	Sequence  int64          `json:"sequence"`
}

func (e *GrantCreated) IdempotencyKey() string {
	return fmt.Sprintf("%s:grant:%s:%d", e.Account.Hex(), e.Delegate.Hex(), e.SignedAt)
}

func (e *GrantCreated) EventType() EventType   { return EventTypeGrantCreated }
func (e *GrantCreated) Owner() *common.Address { return &e.Account }
func (e *GrantCreated) SourceSequence() int64  { return e.Sequence }

// GrantToggled records an activation or deactivation of a grant. Only the
// owner or the delegation admin may toggle.
type GrantToggled struct {
	Account   common.Address `json:"owner"`
	Caller    common.Address `json:"caller"`
	Active    bool           `json:"active"`
	Timestamp int64          `json:"timestamp_us"`
	Sequence  int64          `json:"sequence"`
}

func (e *GrantToggled) IdempotencyKey() string {
	return fmt.Sprintf("%s:grant_toggle:%d", e.Account.Hex(), e.Sequence)
}

func (e *GrantToggled) EventType() EventType   { return EventTypeGrantToggled }
func (e *GrantToggled) Owner() *common.Address { return &e.Account }
func (e *GrantToggled) SourceSequence() int64  { return e.Sequence }

// ScriptBound authorizes an automation script to act for an owner.
type ScriptBound struct {
	Account   common.Address `json:"owner"`
	ScriptID  string         `json:"script_id"`
	Timestamp int64          `json:"timestamp_us"`
	Sequence  int64          `json:"sequence"`
}

func (e *ScriptBound) IdempotencyKey() string {
	return fmt.Sprintf("%s:bind:%s", e.Account.Hex(), e.ScriptID)
}

func (e *ScriptBound) EventType() EventType   { return EventTypeScriptBound }
func (e *ScriptBound) Owner() *common.Address { return &e.Account }
func (e *ScriptBound) SourceSequence() int64  { return e.Sequence }
