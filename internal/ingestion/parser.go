package ingestion

import (
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/google/uuid"

	"github.com/GuardX-protocol/guardx-engine/internal/event"
	fpmath "github.com/GuardX-protocol/guardx-engine/internal/math"
)

// ParseRawEvent converts a RawEvent (JSON bytes + event type string) into
// a typed event.Event. The shell validates and normalizes here so the
// core only ever sees well-formed input.
func ParseRawEvent(raw RawEvent, eventType string) (event.Event, error) {
	switch eventType {
	case "Deposit":
		return parseDeposit(raw.Data)
	case "Withdrawal":
		return parseWithdrawal(raw.Data)
	case "PolicyUpdated":
		return parsePolicyUpdated(raw.Data)
	case "PolicyDeleted":
		return parsePolicyDeleted(raw.Data)
	case "PriceObserved":
		return parsePriceObserved(raw.Data)
	case "ExecutionStarted":
		return parseExecutionStarted(raw.Data)
	case "MessageReceived":
		return parseMessageReceived(raw.Data)
	case "GrantCreated":
		return parseGrantCreated(raw.Data)
	case "GrantToggled":
		return parseGrantToggled(raw.Data)
	case "ScriptBound":
		return parseScriptBound(raw.Data)
	case "LockRequested":
		return parseLockRequested(raw.Data)
	case "UnlockRequested":
		return parseUnlockRequested(raw.Data)
	case "MigrateRequested":
		return parseMigrateRequested(raw.Data)
	case "CoordinationRequested":
		return parseCoordinationRequested(raw.Data)
	case "ProposalSubmitted":
		return parseProposalSubmitted(raw.Data)
	case "ProposalVoted":
		return parseProposalVoted(raw.Data)
	case "ProposalExecutionRequested":
		return parseProposalExecutionRequested(raw.Data)
	default:
		return nil, fmt.Errorf("unknown event type: %s", eventType)
	}
}

func parseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("invalid address: %q", s)
	}
	addr := common.HexToAddress(s)
	if addr == (common.Address{}) {
		return common.Address{}, fmt.Errorf("zero address")
	}
	return addr, nil
}

func parseOptionalSig(s string) ([]byte, error) {
	if s == "" {
		return nil, nil
	}
	sig, err := hexutil.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("decode signature: %w", err)
	}
	return sig, nil
}

// --- JSON wire formats ---
// Field names use snake_case to match upstream producers. Addresses,
// hashes, and signatures arrive as 0x-prefixed hex strings.

type depositJSON struct {
	DepositID   string `json:"deposit_id"`
	Owner       string `json:"owner"`
	Asset       string `json:"asset"`
	Amount      int64  `json:"amount"`
	Sequence    int64  `json:"sequence"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parseDeposit(data []byte) (*event.Deposit, error) {
	var j depositJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse Deposit: %w", err)
	}
	depositID, err := uuid.Parse(j.DepositID)
	if err != nil {
		return nil, fmt.Errorf("parse deposit_id: %w", err)
	}
	owner, err := parseAddress(j.Owner)
	if err != nil {
		return nil, fmt.Errorf("parse owner: %w", err)
	}
	if j.Amount <= 0 {
		return nil, fmt.Errorf("deposit amount must be positive: %d", j.Amount)
	}
	return &event.Deposit{
		DepositID: depositID,
		Account:   owner,
		Asset:     j.Asset,
		Amount:    j.Amount,
		Timestamp: j.TimestampUs,
		Sequence:  j.Sequence,
	}, nil
}

type withdrawalJSON struct {
	WithdrawalID string `json:"withdrawal_id"`
	Owner        string `json:"owner"`
	Asset        string `json:"asset"`
	Amount       int64  `json:"amount"`
	Sequence     int64  `json:"sequence"`
	TimestampUs  int64  `json:"timestamp_us"`
	ScriptID     string `json:"script_id,omitempty"`
	Signature    string `json:"signature,omitempty"`
}

func parseWithdrawal(data []byte) (*event.Withdrawal, error) {
	var j withdrawalJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse Withdrawal: %w", err)
	}
	wdID, err := uuid.Parse(j.WithdrawalID)
	if err != nil {
		return nil, fmt.Errorf("parse withdrawal_id: %w", err)
	}
	owner, err := parseAddress(j.Owner)
	if err != nil {
		return nil, fmt.Errorf("parse owner: %w", err)
	}
	if j.Amount <= 0 {
		return nil, fmt.Errorf("withdrawal amount must be positive: %d", j.Amount)
	}
	sig, err := parseOptionalSig(j.Signature)
	if err != nil {
		return nil, err
	}
	return &event.Withdrawal{
		WithdrawalID: wdID,
		Account:      owner,
		Asset:        j.Asset,
		Amount:       j.Amount,
		Timestamp:    j.TimestampUs,
		Sequence:     j.Sequence,
		ScriptID:     j.ScriptID,
		Signature:    sig,
	}, nil
}

type policyUpdatedJSON struct {
	Owner            string `json:"owner"`
	CrashThresholdBP int64  `json:"crash_threshold_bp"`
	MaxSlippageBP    int64  `json:"max_slippage_bp"`
	Stablecoin       string `json:"stablecoin"`
	GasBudget        int64  `json:"gas_budget"`
	Sequence         int64  `json:"sequence"`
	TimestampUs      int64  `json:"timestamp_us"`
}

func parsePolicyUpdated(data []byte) (*event.PolicyUpdated, error) {
	var j policyUpdatedJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse PolicyUpdated: %w", err)
	}
	owner, err := parseAddress(j.Owner)
	if err != nil {
		return nil, fmt.Errorf("parse owner: %w", err)
	}
	return &event.PolicyUpdated{
		Account:          owner,
		CrashThresholdBP: j.CrashThresholdBP,
		MaxSlippageBP:    j.MaxSlippageBP,
		Stablecoin:       j.Stablecoin,
		GasBudget:        j.GasBudget,
		Timestamp:        j.TimestampUs,
		Sequence:         j.Sequence,
	}, nil
}

type policyDeletedJSON struct {
	Owner       string `json:"owner"`
	Sequence    int64  `json:"sequence"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parsePolicyDeleted(data []byte) (*event.PolicyDeleted, error) {
	var j policyDeletedJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse PolicyDeleted: %w", err)
	}
	owner, err := parseAddress(j.Owner)
	if err != nil {
		return nil, fmt.Errorf("parse owner: %w", err)
	}
	return &event.PolicyDeleted{
		Account:   owner,
		Timestamp: j.TimestampUs,
		Sequence:  j.Sequence,
	}, nil
}

type priceObservedJSON struct {
	FeedID           string `json:"feed_id"`
	Price            int64  `json:"price"`
	Expo             int32  `json:"expo"`
	ConfidenceBP     int64  `json:"confidence_bp"`
	PriceSequence    int64  `json:"price_sequence"`
	PriceTimestampUs int64  `json:"price_timestamp_us"`
}

// parsePriceObserved normalizes the source exponent into the engine's
// 1e8 fixed-point representation before the event reaches the core.
func parsePriceObserved(data []byte) (*event.PriceObserved, error) {
	var j priceObservedJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse PriceObserved: %w", err)
	}
	if j.FeedID == "" {
		return nil, fmt.Errorf("empty feed_id")
	}

	price, err := fpmath.ConvertExponent(j.Price, j.Expo)
	if err != nil {
		return nil, fmt.Errorf("normalize price for %s: %w", j.FeedID, err)
	}
	if price <= 0 {
		return nil, fmt.Errorf("non-positive price for %s: %d", j.FeedID, price)
	}

	return &event.PriceObserved{
		FeedID:         j.FeedID,
		Price:          price,
		Expo:           j.Expo,
		ConfidenceBP:   j.ConfidenceBP,
		PriceSequence:  j.PriceSequence,
		PriceTimestamp: j.PriceTimestampUs,
	}, nil
}

type executionStartedJSON struct {
	ExecutionID string `json:"execution_id"`
	Owner       string `json:"owner"`
	Trigger     string `json:"trigger"`
	ScriptID    string `json:"script_id,omitempty"`
	Signature   string `json:"signature,omitempty"`
	Sequence    int64  `json:"sequence"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parseExecutionStarted(data []byte) (*event.ExecutionStarted, error) {
	var j executionStartedJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse ExecutionStarted: %w", err)
	}
	execID, err := uuid.Parse(j.ExecutionID)
	if err != nil {
		return nil, fmt.Errorf("parse execution_id: %w", err)
	}
	owner, err := parseAddress(j.Owner)
	if err != nil {
		return nil, fmt.Errorf("parse owner: %w", err)
	}
	switch j.Trigger {
	case "owner", "automation", "coordination":
	default:
		return nil, fmt.Errorf("unknown trigger: %q", j.Trigger)
	}
	sig, err := parseOptionalSig(j.Signature)
	if err != nil {
		return nil, err
	}
	return &event.ExecutionStarted{
		ExecutionID: execID,
		Account:     owner,
		Trigger:     j.Trigger,
		ScriptID:    j.ScriptID,
		Signature:   sig,
		Timestamp:   j.TimestampUs,
		Sequence:    j.Sequence,
	}, nil
}

type messageReceivedJSON struct {
	MessageHash string `json:"message_hash"`
	SourceChain uint64 `json:"source_chain"`
	TargetChain uint64 `json:"target_chain"`
	Nonce       uint64 `json:"nonce"`
	Kind        string `json:"kind"`
	Payload     string `json:"payload"` // 0x-prefixed hex
	SentAt      int64  `json:"sent_at"`
	ValidUntil  int64  `json:"valid_until"`
	Sequence    int64  `json:"sequence"`
}

func parseMessageReceived(data []byte) (*event.MessageReceived, error) {
	var j messageReceivedJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse MessageReceived: %w", err)
	}
	if len(j.MessageHash) != 66 {
		return nil, fmt.Errorf("invalid message_hash: %q", j.MessageHash)
	}
	payload, err := hexutil.Decode(j.Payload)
	if err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	return &event.MessageReceived{
		MessageHash: common.HexToHash(j.MessageHash),
		SourceChain: j.SourceChain,
		TargetChain: j.TargetChain,
		Nonce:       j.Nonce,
		Kind:        j.Kind,
		Payload:     payload,
		SentAt:      j.SentAt,
		ValidUntil:  j.ValidUntil,
		Sequence:    j.Sequence,
	}, nil
}

type grantCreatedJSON struct {
	Owner       string `json:"owner"`
	Delegate    string `json:"delegate"`
	PublicKey   string `json:"public_key"`
	Threshold   uint8  `json:"threshold"`
	SignedAt    int64  `json:"signed_at"`
	Signature   string `json:"signature"`
	Sequence    int64  `json:"sequence"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parseGrantCreated(data []byte) (*event.GrantCreated, error) {
	var j grantCreatedJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse GrantCreated: %w", err)
	}
	owner, err := parseAddress(j.Owner)
	if err != nil {
		return nil, fmt.Errorf("parse owner: %w", err)
	}
	delegate, err := parseAddress(j.Delegate)
	if err != nil {
		return nil, fmt.Errorf("parse delegate: %w", err)
	}
	pubKey, err := hexutil.Decode(j.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("decode public_key: %w", err)
	}
	sig, err := hexutil.Decode(j.Signature)
	if err != nil {
		return nil, fmt.Errorf("decode signature: %w", err)
	}
	if j.SignedAt <= 0 {
		return nil, fmt.Errorf("signed_at must be positive: %d", j.SignedAt)
	}
	return &event.GrantCreated{
		Account:   owner,
		Delegate:  delegate,
		PublicKey: pubKey,
		Threshold: j.Threshold,
		SignedAt:  j.SignedAt,
		Signature: sig,
		Timestamp: j.TimestampUs,
		Sequence:  j.Sequence,
	}, nil
}

type grantToggledJSON struct {
	Owner       string `json:"owner"`
	Caller      string `json:"caller"`
	Active      bool   `json:"active"`
	Sequence    int64  `json:"sequence"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parseGrantToggled(data []byte) (*event.GrantToggled, error) {
	var j grantToggledJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse GrantToggled: %w", err)
	}
	owner, err := parseAddress(j.Owner)
	if err != nil {
		return nil, fmt.Errorf("parse owner: %w", err)
	}
	caller, err := parseAddress(j.Caller)
	if err != nil {
		return nil, fmt.Errorf("parse caller: %w", err)
	}
	return &event.GrantToggled{
		Account:   owner,
		Caller:    caller,
		Active:    j.Active,
		Timestamp: j.TimestampUs,
		Sequence:  j.Sequence,
	}, nil
}

type scriptBoundJSON struct {
	Owner       string `json:"owner"`
	ScriptID    string `json:"script_id"`
	Sequence    int64  `json:"sequence"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parseScriptBound(data []byte) (*event.ScriptBound, error) {
	var j scriptBoundJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse ScriptBound: %w", err)
	}
	owner, err := parseAddress(j.Owner)
	if err != nil {
		return nil, fmt.Errorf("parse owner: %w", err)
	}
	if j.ScriptID == "" {
		return nil, fmt.Errorf("empty script_id")
	}
	return &event.ScriptBound{
		Account:   owner,
		ScriptID:  j.ScriptID,
		Timestamp: j.TimestampUs,
		Sequence:  j.Sequence,
	}, nil
}

type lockRequestJSON struct {
	RequestID   string `json:"request_id"`
	Owner       string `json:"owner"`
	Asset       string `json:"asset"`
	Amount      int64  `json:"amount"`
	TargetChain uint64 `json:"target_chain"`
	Sequence    int64  `json:"sequence"`
	TimestampUs int64  `json:"timestamp_us"`
}

func (j lockRequestJSON) validate() (uuid.UUID, common.Address, error) {
	reqID, err := uuid.Parse(j.RequestID)
	if err != nil {
		return uuid.Nil, common.Address{}, fmt.Errorf("parse request_id: %w", err)
	}
	owner, err := parseAddress(j.Owner)
	if err != nil {
		return uuid.Nil, common.Address{}, fmt.Errorf("parse owner: %w", err)
	}
	if j.Amount <= 0 {
		return uuid.Nil, common.Address{}, fmt.Errorf("amount must be positive: %d", j.Amount)
	}
	return reqID, owner, nil
}

func parseLockRequested(data []byte) (*event.LockRequested, error) {
	var j lockRequestJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse LockRequested: %w", err)
	}
	reqID, owner, err := j.validate()
	if err != nil {
		return nil, err
	}
	return &event.LockRequested{
		RequestID:   reqID,
		Account:     owner,
		Asset:       j.Asset,
		Amount:      j.Amount,
		TargetChain: j.TargetChain,
		Timestamp:   j.TimestampUs,
		Sequence:    j.Sequence,
	}, nil
}

func parseMigrateRequested(data []byte) (*event.MigrateRequested, error) {
	var j lockRequestJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse MigrateRequested: %w", err)
	}
	reqID, owner, err := j.validate()
	if err != nil {
		return nil, err
	}
	return &event.MigrateRequested{
		RequestID:   reqID,
		Account:     owner,
		Asset:       j.Asset,
		Amount:      j.Amount,
		TargetChain: j.TargetChain,
		Timestamp:   j.TimestampUs,
		Sequence:    j.Sequence,
	}, nil
}

type unlockRequestedJSON struct {
	RequestID   string `json:"request_id"`
	Owner       string `json:"owner"`
	LockHash    string `json:"lock_hash"`
	SignedAt    int64  `json:"signed_at"`
	Signature   string `json:"signature"`
	Sequence    int64  `json:"sequence"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parseUnlockRequested(data []byte) (*event.UnlockRequested, error) {
	var j unlockRequestedJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse UnlockRequested: %w", err)
	}
	reqID, err := uuid.Parse(j.RequestID)
	if err != nil {
		return nil, fmt.Errorf("parse request_id: %w", err)
	}
	owner, err := parseAddress(j.Owner)
	if err != nil {
		return nil, fmt.Errorf("parse owner: %w", err)
	}
	if len(j.LockHash) != 66 {
		return nil, fmt.Errorf("invalid lock_hash: %q", j.LockHash)
	}
	sig, err := hexutil.Decode(j.Signature)
	if err != nil {
		return nil, fmt.Errorf("decode signature: %w", err)
	}
	return &event.UnlockRequested{
		RequestID: reqID,
		Account:   owner,
		LockHash:  common.HexToHash(j.LockHash),
		SignedAt:  j.SignedAt,
		Signature: sig,
		Timestamp: j.TimestampUs,
		Sequence:  j.Sequence,
	}, nil
}

type coordinationRequestedJSON struct {
	RequestID   string   `json:"request_id"`
	Owner       string   `json:"owner"`
	ChainIDs    []uint64 `json:"chain_ids"`
	ScriptIDs   []string `json:"script_ids"`
	Sequence    int64    `json:"sequence"`
	TimestampUs int64    `json:"timestamp_us"`
}

func parseCoordinationRequested(data []byte) (*event.CoordinationRequested, error) {
	var j coordinationRequestedJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse CoordinationRequested: %w", err)
	}
	reqID, err := uuid.Parse(j.RequestID)
	if err != nil {
		return nil, fmt.Errorf("parse request_id: %w", err)
	}
	owner, err := parseAddress(j.Owner)
	if err != nil {
		return nil, fmt.Errorf("parse owner: %w", err)
	}
	if len(j.ChainIDs) == 0 {
		return nil, fmt.Errorf("empty chain_ids")
	}
	if len(j.ChainIDs) != len(j.ScriptIDs) {
		return nil, fmt.Errorf("chain_ids/script_ids length mismatch: %d vs %d",
			len(j.ChainIDs), len(j.ScriptIDs))
	}
	return &event.CoordinationRequested{
		RequestID: reqID,
		Account:   owner,
		ChainIDs:  j.ChainIDs,
		ScriptIDs: j.ScriptIDs,
		Timestamp: j.TimestampUs,
		Sequence:  j.Sequence,
	}, nil
}

type proposalSubmittedJSON struct {
	SubmissionID string   `json:"submission_id"`
	Proposer     string   `json:"proposer"`
	Description  string   `json:"description"`
	ChainIDs     []uint64 `json:"chain_ids"`
	Payloads     []string `json:"payloads"` // 0x-prefixed hex
	Sequence     int64    `json:"sequence"`
	TimestampUs  int64    `json:"timestamp_us"`
}

func parseProposalSubmitted(data []byte) (*event.ProposalSubmitted, error) {
	var j proposalSubmittedJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse ProposalSubmitted: %w", err)
	}
	subID, err := uuid.Parse(j.SubmissionID)
	if err != nil {
		return nil, fmt.Errorf("parse submission_id: %w", err)
	}
	proposer, err := parseAddress(j.Proposer)
	if err != nil {
		return nil, fmt.Errorf("parse proposer: %w", err)
	}
	if len(j.ChainIDs) != len(j.Payloads) {
		return nil, fmt.Errorf("chain_ids/payloads length mismatch: %d vs %d",
			len(j.ChainIDs), len(j.Payloads))
	}
	payloads := make([]hexutil.Bytes, len(j.Payloads))
	for i, p := range j.Payloads {
		payloads[i], err = hexutil.Decode(p)
		if err != nil {
			return nil, fmt.Errorf("decode payload %d: %w", i, err)
		}
	}
	return &event.ProposalSubmitted{
		SubmissionID: subID,
		Proposer:     proposer,
		Description:  j.Description,
		ChainIDs:     j.ChainIDs,
		Payloads:     payloads,
		Timestamp:    j.TimestampUs,
		Sequence:     j.Sequence,
	}, nil
}

type proposalVotedJSON struct {
	ProposalID  uint64 `json:"proposal_id"`
	Member      string `json:"member"`
	Support     bool   `json:"support"`
	Sequence    int64  `json:"sequence"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parseProposalVoted(data []byte) (*event.ProposalVoted, error) {
	var j proposalVotedJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse ProposalVoted: %w", err)
	}
	member, err := parseAddress(j.Member)
	if err != nil {
		return nil, fmt.Errorf("parse member: %w", err)
	}
	return &event.ProposalVoted{
		ProposalID: j.ProposalID,
		Member:     member,
		Support:    j.Support,
		Timestamp:  j.TimestampUs,
		Sequence:   j.Sequence,
	}, nil
}

type proposalExecutionRequestedJSON struct {
	ProposalID  uint64 `json:"proposal_id"`
	Caller      string `json:"caller"`
	Sequence    int64  `json:"sequence"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parseProposalExecutionRequested(data []byte) (*event.ProposalExecutionRequested, error) {
	var j proposalExecutionRequestedJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse ProposalExecutionRequested: %w", err)
	}
	caller, err := parseAddress(j.Caller)
	if err != nil {
		return nil, fmt.Errorf("parse caller: %w", err)
	}
	return &event.ProposalExecutionRequested{
		ProposalID: j.ProposalID,
		Caller:     caller,
		Timestamp:  j.TimestampUs,
		Sequence:   j.Sequence,
	}, nil
}
