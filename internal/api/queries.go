package api

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// QueryService provides read-only access to the projection tables. All
// responses include as_of_sequence so callers can reason about freshness
// relative to the event log.
type QueryService struct {
	db *sql.DB
}

func NewQueryService(db *sql.DB) *QueryService {
	return &QueryService{db: db}
}

// GetBalance returns an owner's projected balance for one asset: custody
// plus the cross-chain reserve held against outstanding locks.
func (qs *QueryService) GetBalance(ctx context.Context, owner common.Address, symbol string) (*BalanceResponse, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, fmt.Errorf("watermark: %w", err)
	}

	custodyPath := fmt.Sprintf("user:%s:custody:%s", owner.Hex(), symbol)
	custody, err := qs.getProjectedBalance(ctx, custodyPath)
	if err != nil {
		return nil, err
	}

	reservePath := fmt.Sprintf("user:%s:chain_reserve:%s", owner.Hex(), symbol)
	reserve, err := qs.getProjectedBalance(ctx, reservePath)
	if err != nil {
		return nil, err
	}

	return &BalanceResponse{
		Owner:          owner.Hex(),
		Asset:          symbol,
		CustodyBalance: custody,
		ReserveBalance: reserve,
		TotalBalance:   custody + reserve,
		AsOfSequence:   asOfSeq,
	}, nil
}

// GetExecutionHistory returns an owner's completed protection runs, most
// recent first.
func (qs *QueryService) GetExecutionHistory(ctx context.Context, owner common.Address, limit int) ([]ExecutionHistoryEntry, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	rows, err := qs.db.QueryContext(ctx, `
		SELECT execution_id, success, COALESCE(reason, ''), amount_converted,
		       avg_slippage_bp, legs_attempted, legs_succeeded, sequence, created_at
		FROM projections.execution_history
		WHERE owner = $1
		ORDER BY sequence DESC
		LIMIT $2
	`, owner.Hex(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []ExecutionHistoryEntry
	for rows.Next() {
		var e ExecutionHistoryEntry
		e.Owner = owner.Hex()
		if err := rows.Scan(
			&e.ExecutionID, &e.Success, &e.Reason, &e.AmountConverted,
			&e.AvgSlippageBP, &e.LegsAttempted, &e.LegsSucceeded, &e.Sequence, &e.CreatedAt,
		); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

func (qs *QueryService) getProjectedBalance(ctx context.Context, accountPath string) (int64, error) {
	var balance int64
	err := qs.db.QueryRowContext(ctx, `
		SELECT balance FROM projections.balances WHERE account_path = $1
	`, accountPath).Scan(&balance)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("balance lookup %s: %w", accountPath, err)
	}
	return balance, nil
}

func (qs *QueryService) getWatermark(ctx context.Context) (int64, error) {
	var seq int64
	err := qs.db.QueryRowContext(ctx, `
		SELECT last_sequence FROM projections.watermark WHERE worker_id = 'main'
	`).Scan(&seq)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return seq, err
}
