package ledger

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/samber/lo"

	fpmath "github.com/GuardX-protocol/guardx-engine/internal/math"
)

// PortfolioEntry is one held asset in an owner's portfolio view
type PortfolioEntry struct {
	AssetID   AssetID
	Amount    int64 // Fixed-point 1e8
	USDValue  int64 // Fixed-point 1e8
	RiskLevel uint8 // 0..4, from the asset registry
}

// Portfolio is the aggregated per-owner view over custody balances.
// Entries are kept in deposit order; an entry exists iff the owner's
// custody balance for that asset is positive.
type Portfolio struct {
	Owner       common.Address
	Entries     []PortfolioEntry
	TotalUSD    int64
	RiskScoreBP int64 // 0..10000
	LastUpdated time.Time
}

// Pricer values an asset amount in USD. The bool reports whether a fresh
// price was available.
type Pricer interface {
	USDValue(assetID AssetID, amount int64) (int64, bool)
}

// Entry returns the portfolio entry for an asset, if present.
func (p *Portfolio) Entry(assetID AssetID) (*PortfolioEntry, bool) {
	for i := range p.Entries {
		if p.Entries[i].AssetID == assetID {
			return &p.Entries[i], true
		}
	}
	return nil, false
}

// IsEmpty reports whether the portfolio holds no assets. An empty
// portfolio is a valid terminal state per owner.
func (p *Portfolio) IsEmpty() bool {
	return len(p.Entries) == 0
}

// setAmount updates or inserts the entry for an asset. A zero amount
// removes the entry outright rather than leaving a zeroed row.
func (p *Portfolio) setAmount(info *AssetInfo, amount int64, now time.Time) {
	p.LastUpdated = now

	if amount <= 0 {
		p.Entries = lo.Reject(p.Entries, func(e PortfolioEntry, _ int) bool {
			return e.AssetID == info.ID
		})
		return
	}

	if entry, ok := p.Entry(info.ID); ok {
		entry.Amount = amount
		return
	}

	p.Entries = append(p.Entries, PortfolioEntry{
		AssetID:   info.ID,
		Amount:    amount,
		RiskLevel: info.RiskLevel,
	})
}

// Revalue refreshes USD values and the aggregate risk score from current
// prices. Entries without a fresh price keep their last USD value.
func (p *Portfolio) Revalue(pricer Pricer, now time.Time) {
	for i := range p.Entries {
		if usd, ok := pricer.USDValue(p.Entries[i].AssetID, p.Entries[i].Amount); ok {
			p.Entries[i].USDValue = usd
		}
	}

	p.TotalUSD = lo.SumBy(p.Entries, func(e PortfolioEntry) int64 { return e.USDValue })
	p.RiskScoreBP = p.computeRiskScore()
	p.LastUpdated = now
}

// computeRiskScore weights each entry's risk level (0..4 mapped onto
// 0..10000 bp) by its USD share of the portfolio.
func (p *Portfolio) computeRiskScore() int64 {
	if p.TotalUSD <= 0 {
		return 0
	}

	var weighted int64
	for _, e := range p.Entries {
		levelBP := int64(e.RiskLevel) * 2500
		weighted += fpmath.ApplyBP(levelBP, fpmath.RatioBP(e.USDValue, p.TotalUSD))
	}
	if weighted > fpmath.BasisPointDenom {
		weighted = fpmath.BasisPointDenom
	}
	return weighted
}
