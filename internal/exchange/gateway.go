// Package exchange defines the opaque swap capability the engine consumes.
// The engine never routes orders itself; it only quotes and swaps through
// this interface with slippage bounds and deadlines.
package exchange

import (
	"errors"
	"time"

	"github.com/GuardX-protocol/guardx-engine/internal/ledger"
)

var (
	ErrDeadlineExpired  = errors.New("swap deadline expired")
	ErrSlippageExceeded = errors.New("actual slippage exceeds maximum")
	ErrNoLiquidity      = errors.New("no liquidity for pair")
)

// Quote is the gateway's answer to a price inquiry.
type Quote struct {
	AmountOut int64 // Fixed-point 1e8
	FeeBP     int64
}

// SwapResult is the outcome of an executed swap.
type SwapResult struct {
	AmountOut        int64
	ActualSlippageBP int64
}

// Gateway is the exchange capability. A swap fails outright on an expired
// deadline or when actual slippage exceeds the maximum; it never executes
// degraded.
type Gateway interface {
	Quote(assetIn, assetOut ledger.AssetID, amountIn int64) (Quote, error)
	Swap(assetIn, assetOut ledger.AssetID, amountIn, maxSlippageBP int64, deadline time.Time) (SwapResult, error)
}
