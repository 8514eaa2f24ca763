package event

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// PolicyUpdated records a protection-policy write
type PolicyUpdated struct {
	Account          common.Address `json:"owner"`
	CrashThresholdBP int64          `json:"crash_threshold_bp"`
	MaxSlippageBP    int64          `json:"max_slippage_bp"`
	Stablecoin       string         `json:"stablecoin"`
	GasBudget        int64          `json:"gas_budget"`
	Timestamp        int64          `json:"timestamp"`
	Sequence         int64          `json:"sequence"`
}

func (p *PolicyUpdated) IdempotencyKey() string {
	return fmt.Sprintf("%s:policy:%d", p.Account.Hex(), p.Sequence)
}

func (p *PolicyUpdated) EventType() EventType   { return EventTypePolicyUpdated }
func (p *PolicyUpdated) Owner() *common.Address { return &p.Account }
func (p *PolicyUpdated) SourceSequence() int64  { return p.Sequence }

// PolicyDeleted records a protection-policy removal
type PolicyDeleted struct {
	Account   common.Address `json:"owner"`
	Timestamp int64          `json:"timestamp"`
	Sequence  int64          `json:"sequence"`
}

func (p *PolicyDeleted) IdempotencyKey() string {
	return fmt.Sprintf("%s:policy_del:%d", p.Account.Hex(), p.Sequence)
}

func (p *PolicyDeleted) EventType() EventType   { return EventTypePolicyDeleted }
func (p *PolicyDeleted) Owner() *common.Address { return &p.Account }
func (p *PolicyDeleted) SourceSequence() int64  { return p.Sequence }
