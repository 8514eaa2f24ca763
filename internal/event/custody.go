package event

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/google/uuid"
)

// Deposit credits an owner's custody
type Deposit struct {
	DepositID uuid.UUID      `json:"deposit_id"`
	Account   common.Address `json:"owner"`
	Asset     string         `json:"asset"`
	Amount    int64          `json:"amount"`    // Fixed-point 1e8
	Timestamp int64          `json:"timestamp"` // Epoch microseconds (versioned input)
	Sequence  int64          `json:"sequence"`
}

func (d *Deposit) IdempotencyKey() string { return d.DepositID.String() }
func (d *Deposit) EventType() EventType   { return EventTypeDeposit }
func (d *Deposit) Owner() *common.Address { return &d.Account }
func (d *Deposit) SourceSequence() int64  { return d.Sequence }

// Withdrawal debits an owner's custody
type Withdrawal struct {
	WithdrawalID uuid.UUID      `json:"withdrawal_id"`
	Account      common.Address `json:"owner"`
	Asset        string         `json:"asset"`
	Amount       int64          `json:"amount"`
	Timestamp    int64          `json:"timestamp"`
	Sequence     int64          `json:"sequence"`

	// Set when the withdrawal is requested by an automation script on the
	// owner's behalf rather than by the owner directly.
	ScriptID  string        `json:"script_id,omitempty"`
	Signature hexutil.Bytes `json:"signature,omitempty"`
}

func (w *Withdrawal) IdempotencyKey() string { return w.WithdrawalID.String() }
func (w *Withdrawal) EventType() EventType   { return EventTypeWithdrawal }
func (w *Withdrawal) Owner() *common.Address { return &w.Account }
func (w *Withdrawal) SourceSequence() int64  { return w.Sequence }
