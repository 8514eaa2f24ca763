// Package projection maintains the Postgres read models. Projections are
// fed from the core's publish channel, which drops under backpressure:
// they are eventually consistent and can always be rebuilt from the
// event log.
package projection

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"
)

// Output carries the data projection workers need. The orchestrator
// bridges core.CoreOutput into this shape.
type Output struct {
	Sequence       int64
	EventType      string
	Owner          *string
	JournalEntries []JournalEntry
	Execution      *ExecutionRecord
	Timestamp      int64
}

// JournalEntry is a simplified journal row for projection consumption.
type JournalEntry struct {
	DebitAccount  string
	CreditAccount string
	AssetID       uint16
	Amount        int64
	JournalType   int32
}

// ExecutionRecord is a completed protection run bound for the history
// projection.
type ExecutionRecord struct {
	ExecutionID     string
	Owner           string
	Success         bool
	Reason          string
	AmountConverted int64
	AvgSlippageBP   int64
	LegsAttempted   int
	LegsSucceeded   int
}

// Worker updates projection tables from processed events.
type Worker struct {
	db        *sql.DB
	inputChan <-chan Output
	lastSeq   int64
	log       zerolog.Logger
}

func NewWorker(db *sql.DB, inputChan <-chan Output, log zerolog.Logger) *Worker {
	return &Worker{
		db:        db,
		inputChan: inputChan,
		log:       log,
	}
}

// Run starts the projection loop.
func (pw *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case output, ok := <-pw.inputChan:
			if !ok {
				return nil
			}

			if err := pw.processOutput(ctx, output); err != nil {
				// Continue: projections rebuild from the event log.
				pw.log.Warn().Err(err).Int64("sequence", output.Sequence).Msg("projection update failed")
			}

			pw.lastSeq = output.Sequence
		}
	}
}

func (pw *Worker) processOutput(ctx context.Context, output Output) error {
	tx, err := pw.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, j := range output.JournalEntries {
		if err := pw.updateBalanceProjection(ctx, tx, j, output.Sequence); err != nil {
			return fmt.Errorf("balance projection: %w", err)
		}
	}

	if output.Execution != nil {
		if err := pw.insertExecutionHistory(ctx, tx, output.Execution, output.Sequence); err != nil {
			return fmt.Errorf("execution history: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projections.watermark (worker_id, last_sequence, updated_at)
		VALUES ('main', $1, NOW())
		ON CONFLICT (worker_id) DO UPDATE SET last_sequence = $1, updated_at = NOW()
	`, output.Sequence); err != nil {
		return fmt.Errorf("watermark update: %w", err)
	}

	return tx.Commit()
}

// updateBalanceProjection applies one journal row. The debit account
// gains, the credit account loses, mirroring the in-memory tracker.
func (pw *Worker) updateBalanceProjection(ctx context.Context, tx *sql.Tx, j JournalEntry, seq int64) error {
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projections.balances (account_path, asset_id, balance, last_sequence)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (account_path, asset_id)
		DO UPDATE SET balance = projections.balances.balance + $3, last_sequence = $4
	`, j.DebitAccount, j.AssetID, j.Amount, seq); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projections.balances (account_path, asset_id, balance, last_sequence)
		VALUES ($1, $2, -$3, $4)
		ON CONFLICT (account_path, asset_id)
		DO UPDATE SET balance = projections.balances.balance - $3, last_sequence = $4
	`, j.CreditAccount, j.AssetID, j.Amount, seq); err != nil {
		return err
	}

	return nil
}

func (pw *Worker) insertExecutionHistory(ctx context.Context, tx *sql.Tx, rec *ExecutionRecord, seq int64) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO projections.execution_history
			(execution_id, owner, success, reason, amount_converted, avg_slippage_bp,
			 legs_attempted, legs_succeeded, sequence)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (execution_id) DO NOTHING
	`, rec.ExecutionID, rec.Owner, rec.Success, rec.Reason, rec.AmountConverted,
		rec.AvgSlippageBP, rec.LegsAttempted, rec.LegsSucceeded, seq)
	return err
}

// Rebuild truncates and reconstructs the balance projection from the
// journal. Execution history is append-only and keeps its rows.
func Rebuild(ctx context.Context, db *sql.DB, log zerolog.Logger) error {
	statements := []string{
		`TRUNCATE projections.balances`,
		`DELETE FROM projections.watermark WHERE worker_id = 'main'`,
	}
	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("truncate failed: %w", err)
		}
	}

	_, err := db.ExecContext(ctx, `
		INSERT INTO projections.balances (account_path, asset_id, balance, last_sequence)
		SELECT
			debit_account AS account_path,
			asset_id,
			SUM(amount) AS balance,
			MAX(sequence) AS last_sequence
		FROM guard_log.journal
		GROUP BY debit_account, asset_id
	`)
	if err != nil {
		return fmt.Errorf("rebuild debit balances: %w", err)
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO projections.balances (account_path, asset_id, balance, last_sequence)
		SELECT
			credit_account AS account_path,
			asset_id,
			-SUM(amount) AS balance,
			MAX(sequence) AS last_sequence
		FROM guard_log.journal
		GROUP BY credit_account, asset_id
		ON CONFLICT (account_path, asset_id) DO UPDATE
			SET balance = projections.balances.balance + EXCLUDED.balance,
			    last_sequence = GREATEST(projections.balances.last_sequence, EXCLUDED.last_sequence)
	`)
	if err != nil {
		return fmt.Errorf("rebuild credit balances: %w", err)
	}

	log.Info().Msg("projection rebuild complete")
	return nil
}
