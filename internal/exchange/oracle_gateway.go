package exchange

import (
	"fmt"
	"time"

	"github.com/GuardX-protocol/guardx-engine/internal/ledger"
	fpmath "github.com/GuardX-protocol/guardx-engine/internal/math"
	"github.com/GuardX-protocol/guardx-engine/internal/oracle"
)

// OracleGateway prices swaps off current oracle readings, charging a flat
// fee that is reported as slippage. It stands in for a real DEX router in
// local deployments and tests.
type OracleGateway struct {
	oracle   *oracle.Oracle
	registry *ledger.Registry
	feeBP    int64
	now      func() time.Time
}

func NewOracleGateway(o *oracle.Oracle, registry *ledger.Registry, feeBP int64, now func() time.Time) *OracleGateway {
	if now == nil {
		now = time.Now
	}
	return &OracleGateway{oracle: o, registry: registry, feeBP: feeBP, now: now}
}

func (g *OracleGateway) pairPrices(assetIn, assetOut ledger.AssetID) (int64, int64, error) {
	in, ok := g.registry.LookupID(assetIn)
	if !ok {
		return 0, 0, fmt.Errorf("%w: asset id %d", ErrNoLiquidity, assetIn)
	}
	out, ok := g.registry.LookupID(assetOut)
	if !ok {
		return 0, 0, fmt.Errorf("%w: asset id %d", ErrNoLiquidity, assetOut)
	}

	obsIn, err := g.oracle.Latest(in.FeedID)
	if err != nil || !obsIn.Valid {
		return 0, 0, fmt.Errorf("%w: no fresh price for %s", ErrNoLiquidity, in.Symbol)
	}
	obsOut, err := g.oracle.Latest(out.FeedID)
	if err != nil || !obsOut.Valid {
		return 0, 0, fmt.Errorf("%w: no fresh price for %s", ErrNoLiquidity, out.Symbol)
	}

	return obsIn.Price, obsOut.Price, nil
}

func (g *OracleGateway) Quote(assetIn, assetOut ledger.AssetID, amountIn int64) (Quote, error) {
	priceIn, priceOut, err := g.pairPrices(assetIn, assetOut)
	if err != nil {
		return Quote{}, err
	}

	// amountOut = amountIn * priceIn / priceOut, minus fee
	usd := fpmath.MultiplyInt128(amountIn, priceIn)
	gross := fpmath.DivideInt128(usd, priceOut, fpmath.RoundDown)
	net := gross - fpmath.ApplyBP(gross, g.feeBP)

	return Quote{AmountOut: net, FeeBP: g.feeBP}, nil
}

func (g *OracleGateway) Swap(assetIn, assetOut ledger.AssetID, amountIn, maxSlippageBP int64, deadline time.Time) (SwapResult, error) {
	if g.now().After(deadline) {
		return SwapResult{}, ErrDeadlineExpired
	}
	if g.feeBP > maxSlippageBP {
		return SwapResult{}, fmt.Errorf("%w: %d > %d bp", ErrSlippageExceeded, g.feeBP, maxSlippageBP)
	}

	quote, err := g.Quote(assetIn, assetOut, amountIn)
	if err != nil {
		return SwapResult{}, err
	}

	return SwapResult{AmountOut: quote.AmountOut, ActualSlippageBP: g.feeBP}, nil
}
