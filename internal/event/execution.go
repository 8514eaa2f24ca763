package event

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/google/uuid"
)

// ExecutionStarted marks the beginning of an emergency liquidation attempt
type ExecutionStarted struct {
	ExecutionID uuid.UUID      `json:"execution_id"`
	Account     common.Address `json:"owner"`
	Trigger     string         `json:"trigger"` // "automation", "owner", "coordination"
	ScriptID    string         `json:"script_id,omitempty"`
	Signature   hexutil.Bytes  `json:"signature,omitempty"`
	Timestamp   int64          `json:"timestamp"`
	Sequence    int64          `json:"sequence"`
}

func (e *ExecutionStarted) IdempotencyKey() string { return e.ExecutionID.String() + ":start" }
func (e *ExecutionStarted) EventType() EventType   { return EventTypeExecutionStarted }
func (e *ExecutionStarted) Owner() *common.Address { return &e.Account }
func (e *ExecutionStarted) SourceSequence() int64  { return e.Sequence }

// ExecutionCompleted carries the structured outcome of a protection run
type ExecutionCompleted struct {
	ExecutionID     uuid.UUID      `json:"execution_id"`
	Account         common.Address `json:"owner"`
	Success         bool           `json:"success"`
	Reason          string         `json:"reason,omitempty"`
	AmountConverted int64          `json:"amount_converted"`
	AvgSlippageBP   int64          `json:"avg_slippage_bp"`
	LegsAttempted   int            `json:"legs_attempted"`
	LegsSucceeded   int            `json:"legs_succeeded"`
	Sequence        int64          `json:"sequence"`
}

func (e *ExecutionCompleted) IdempotencyKey() string { return e.ExecutionID.String() + ":done" }
func (e *ExecutionCompleted) EventType() EventType   { return EventTypeExecutionCompleted }
func (e *ExecutionCompleted) Owner() *common.Address { return &e.Account }
func (e *ExecutionCompleted) SourceSequence() int64  { return e.Sequence }

// ConversionLeg records one asset leg of an emergency conversion.
// Failed legs are recorded too; their funds are refunded, never stranded.
type ConversionLeg struct {
	ExecutionID uuid.UUID      `json:"execution_id"`
	Account     common.Address `json:"owner"`
	AssetIn     string         `json:"asset_in"`
	AssetOut    string         `json:"asset_out"`
	AmountIn    int64          `json:"amount_in"`
	AmountOut   int64          `json:"amount_out"`
	SlippageBP  int64          `json:"slippage_bp"`
	Failed      bool           `json:"failed"`
	FailReason  string         `json:"fail_reason,omitempty"`
	LegIndex    int            `json:"leg_index"`
	Sequence    int64          `json:"sequence"`
}

func (e *ConversionLeg) IdempotencyKey() string {
	return e.ExecutionID.String() + ":leg:" + e.AssetIn
}

func (e *ConversionLeg) EventType() EventType   { return EventTypeConversionLeg }
func (e *ConversionLeg) Owner() *common.Address { return &e.Account }
func (e *ConversionLeg) SourceSequence() int64  { return e.Sequence }
