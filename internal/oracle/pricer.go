package oracle

import (
	"github.com/GuardX-protocol/guardx-engine/internal/ledger"
	fpmath "github.com/GuardX-protocol/guardx-engine/internal/math"
)

// Pricer values asset amounts in USD from current oracle prices. It
// satisfies ledger.Pricer for portfolio revaluation.
type Pricer struct {
	oracle   *Oracle
	registry *ledger.Registry
}

func NewPricer(o *Oracle, registry *ledger.Registry) *Pricer {
	return &Pricer{oracle: o, registry: registry}
}

// USDValue returns amount * latest price, both 1e8 fixed point. The bool is
// false when the feed is unknown or the price is stale.
func (p *Pricer) USDValue(assetID ledger.AssetID, amount int64) (int64, bool) {
	info, ok := p.registry.LookupID(assetID)
	if !ok {
		return 0, false
	}

	obs, err := p.oracle.Latest(info.FeedID)
	if err != nil || !obs.Valid {
		return 0, false
	}

	return fpmath.MulValue(amount, obs.Price), true
}
