package exchange

import (
	"time"

	"github.com/sony/gobreaker"

	"github.com/GuardX-protocol/guardx-engine/internal/ledger"
)

// BreakerGateway wraps a Gateway with a circuit breaker so a failing
// exchange cannot stall the conversion loop: once the breaker opens,
// swap legs fail fast and are refunded by the executor.
type BreakerGateway struct {
	inner   Gateway
	breaker *gobreaker.CircuitBreaker
}

func NewBreakerGateway(inner Gateway) *BreakerGateway {
	return &BreakerGateway{
		inner: inner,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "exchange-gateway",
			MaxRequests: 1,
			Interval:    60 * time.Second,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		}),
	}
}

func (bg *BreakerGateway) Quote(assetIn, assetOut ledger.AssetID, amountIn int64) (Quote, error) {
	result, err := bg.breaker.Execute(func() (interface{}, error) {
		return bg.inner.Quote(assetIn, assetOut, amountIn)
	})
	if err != nil {
		return Quote{}, err
	}
	return result.(Quote), nil
}

func (bg *BreakerGateway) Swap(assetIn, assetOut ledger.AssetID, amountIn, maxSlippageBP int64, deadline time.Time) (SwapResult, error) {
	result, err := bg.breaker.Execute(func() (interface{}, error) {
		return bg.inner.Swap(assetIn, assetOut, amountIn, maxSlippageBP, deadline)
	})
	if err != nil {
		return SwapResult{}, err
	}
	return result.(SwapResult), nil
}
