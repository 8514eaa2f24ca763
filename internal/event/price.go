package event

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// PriceObserved is a validated price update from the oracle network
type PriceObserved struct {
	FeedID         string `json:"feed_id"`
	Price          int64  `json:"price"` // Fixed-point 1e8
	Expo           int32  `json:"expo"`  // Source exponent before normalization
	ConfidenceBP   int64  `json:"confidence_bp"`
	PriceSequence  int64  `json:"price_sequence"`  // Monotonic per feed
	PriceTimestamp int64  `json:"price_timestamp"` // Epoch microseconds (versioned input)
}

func (p *PriceObserved) IdempotencyKey() string {
	return fmt.Sprintf("%s:price:%d", p.FeedID, p.PriceSequence)
}

func (p *PriceObserved) EventType() EventType   { return EventTypePriceObserved }
func (p *PriceObserved) Owner() *common.Address { return nil } // Global event
func (p *PriceObserved) SourceSequence() int64  { return p.PriceSequence }
