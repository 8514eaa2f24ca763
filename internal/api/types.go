package api

import "time"

// BalanceResponse is a user's balance for one asset, read from the
// projection tables. AsOfSequence is the last event the projection worker
// has applied; the live core may be ahead of it.
type BalanceResponse struct {
	Owner          string `json:"owner"`
	Asset          string `json:"asset"`
	CustodyBalance int64  `json:"custody_balance"`
	ReserveBalance int64  `json:"reserve_balance"`
	TotalBalance   int64  `json:"total_balance"`
	AsOfSequence   int64  `json:"as_of_sequence"`
}

// PortfolioEntryResponse is one asset line of a portfolio.
type PortfolioEntryResponse struct {
	Asset     string `json:"asset"`
	Amount    int64  `json:"amount"`
	USDValue  int64  `json:"usd_value"`
	RiskLevel uint8  `json:"risk_level"`
}

// PortfolioResponse is the live per-owner portfolio view.
type PortfolioResponse struct {
	Owner       string                   `json:"owner"`
	Entries     []PortfolioEntryResponse `json:"entries"`
	TotalUSD    int64                    `json:"total_usd"`
	RiskScoreBP int64                    `json:"risk_score_bp"`
	LastUpdated time.Time                `json:"last_updated"`
}

// PolicyResponse is an owner's protection policy.
type PolicyResponse struct {
	Owner            string    `json:"owner"`
	CrashThresholdBP int64     `json:"crash_threshold_bp"`
	MaxSlippageBP    int64     `json:"max_slippage_bp"`
	Stablecoin       string    `json:"stablecoin"`
	GasBudget        int64     `json:"gas_budget"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// ExecutorStatsResponse is the aggregate executor counters.
type ExecutorStatsResponse struct {
	TotalExecutions int64 `json:"total_executions"`
	TotalConverted  int64 `json:"total_converted"`
	Paused          bool  `json:"paused"`
}

// OracleLatestResponse is the most recent observation for a feed plus the
// feed's ingestion health counters.
type OracleLatestResponse struct {
	FeedID       string    `json:"feed_id"`
	Price        int64     `json:"price"`
	Timestamp    time.Time `json:"timestamp"`
	ConfidenceBP int64     `json:"confidence_bp"`
	SequenceGaps int64     `json:"sequence_gaps"`
	StaleDropped int64     `json:"stale_dropped"`
}

// ExecutionHistoryEntry is one completed protection run.
type ExecutionHistoryEntry struct {
	ExecutionID     string    `json:"execution_id"`
	Owner           string    `json:"owner"`
	Success         bool      `json:"success"`
	Reason          string    `json:"reason,omitempty"`
	AmountConverted int64     `json:"amount_converted"`
	AvgSlippageBP   int64     `json:"avg_slippage_bp"`
	LegsAttempted   int       `json:"legs_attempted"`
	LegsSucceeded   int       `json:"legs_succeeded"`
	Sequence        int64     `json:"sequence"`
	CreatedAt       time.Time `json:"created_at"`
}

type errorResponse struct {
	Error string `json:"error"`
}
