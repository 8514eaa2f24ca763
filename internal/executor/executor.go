// Package executor orchestrates emergency liquidation of risky assets into
// an owner's preferred stablecoin. The per-asset conversion loop is
// intentionally non-atomic: each leg succeeds or fails independently so a
// single failing market cannot prevent the rest of the portfolio from
// being protected.
package executor

import (
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/GuardX-protocol/guardx-engine/internal/exchange"
	"github.com/GuardX-protocol/guardx-engine/internal/ledger"
	"github.com/GuardX-protocol/guardx-engine/internal/policy"
)

const (
	// DefaultCooldown is the minimum gap between executions per owner.
	DefaultCooldown = 300 * time.Second

	// DefaultSwapDeadline bounds each gateway swap.
	DefaultSwapDeadline = 60 * time.Second

	// RiskLevelCutoff: assets with a risk level above this qualify as
	// liquidation candidates on their own.
	RiskLevelCutoff = 2

	// PortfolioRiskTriggerBP: past this portfolio-wide risk score every
	// non-stable holding becomes a candidate.
	PortfolioRiskTriggerBP = 7000

	// MaxBatchSize bounds ExecuteBatch input.
	MaxBatchSize = 50
)

var (
	ErrReentrantExecution = errors.New("execution already in progress")
	ErrBatchTooLarge      = errors.New("batch exceeds maximum size")
	ErrEmptyBatch         = errors.New("empty batch")
)

// Eligibility is the structured answer to CanExecute.
type Eligibility struct {
	Eligible bool
	Reason   string
}

// LegResult is the outcome of one conversion leg.
type LegResult struct {
	AssetID    ledger.AssetID
	AmountIn   int64
	AmountOut  int64
	SlippageBP int64
	Failed     bool
	FailReason string
}

// ConversionResult is the structured outcome of a protection run. A run
// with some failing legs is still a success; only total failure is not.
type ConversionResult struct {
	ExecutionID     uuid.UUID
	Success         bool
	Reason          string
	AmountConverted int64
	AvgSlippageBP   int64
	Legs            []LegResult
}

// BatchAction is one entry of an ExecuteBatch request.
type BatchAction struct {
	Account       common.Address
	Assets        []ledger.AssetID
	Stablecoin    ledger.AssetID
	MaxSlippageBP int64
}

// BatchOutcome is the order-preserving result of ExecuteBatch.
type BatchOutcome struct {
	Results      []ConversionResult
	SuccessCount int
}

// Stats is a snapshot of execution counters.
type Stats struct {
	TotalExecutions int64
	TotalConverted  int64
	Paused          bool
}

// EmergencyExecutor converts risky holdings to stablecoin through the
// ledger and exchange gateway.
// Not thread-safe — only accessed from the single-threaded protection core.
type EmergencyExecutor struct {
	ledger    *ledger.AssetLedger
	policies  *policy.Store
	gateway   exchange.Gateway
	authority common.Address

	cooldown     time.Duration
	swapDeadline time.Duration
	paused       bool
	executing    bool

	lastExecution   map[common.Address]time.Time
	ownerExecutions map[common.Address]int64
	totalExecutions int64
	totalConverted  int64

	now func() time.Time
	log zerolog.Logger
}

// Option configures the executor.
type Option func(*EmergencyExecutor)

// WithClock overrides the wall clock (tests).
func WithClock(now func() time.Time) Option {
	return func(ex *EmergencyExecutor) { ex.now = now }
}

// WithCooldown overrides the per-owner cooldown.
func WithCooldown(d time.Duration) Option {
	return func(ex *EmergencyExecutor) { ex.cooldown = d }
}

func New(al *ledger.AssetLedger, policies *policy.Store, gateway exchange.Gateway, authority common.Address, log zerolog.Logger, opts ...Option) *EmergencyExecutor {
	ex := &EmergencyExecutor{
		ledger:          al,
		policies:        policies,
		gateway:         gateway,
		authority:       authority,
		cooldown:        DefaultCooldown,
		swapDeadline:    DefaultSwapDeadline,
		lastExecution:   make(map[common.Address]time.Time),
		ownerExecutions: make(map[common.Address]int64),
		now:             time.Now,
		log:             log,
	}
	for _, opt := range opts {
		opt(ex)
	}
	al.SetEmergencyAuthority(authority)
	return ex
}

// Pause halts all executions globally.
func (ex *EmergencyExecutor) Pause() { ex.paused = true }

// Resume lifts a global pause.
func (ex *EmergencyExecutor) Resume() { ex.paused = false }

// Authority returns the executor's ledger identity.
func (ex *EmergencyExecutor) Authority() common.Address { return ex.authority }

// StatsSnapshot returns current counters.
func (ex *EmergencyExecutor) StatsSnapshot() Stats {
	return Stats{
		TotalExecutions: ex.totalExecutions,
		TotalConverted:  ex.totalConverted,
		Paused:          ex.paused,
	}
}

// OwnerExecutions returns the execution count for one owner.
func (ex *EmergencyExecutor) OwnerExecutions(owner common.Address) int64 {
	return ex.ownerExecutions[owner]
}

// LastExecution returns the owner's last execution time, zero if never.
func (ex *EmergencyExecutor) LastExecution(owner common.Address) time.Time {
	return ex.lastExecution[owner]
}

// CanExecute checks eligibility without changing state.
func (ex *EmergencyExecutor) CanExecute(owner common.Address) Eligibility {
	if ex.paused {
		return Eligibility{Reason: "executor is paused"}
	}

	p := ex.ledger.Portfolio(owner)
	if p == nil || p.IsEmpty() {
		return Eligibility{Reason: "owner has no assets"}
	}

	if last, ok := ex.lastExecution[owner]; ok {
		if elapsed := ex.now().Sub(last); elapsed < ex.cooldown {
			return Eligibility{Reason: fmt.Sprintf("cooldown active: %s remaining", ex.cooldown-elapsed)}
		}
	}

	return Eligibility{Eligible: true}
}

// ExecuteFor runs emergency protection for one owner. Ineligibility and
// "no risky assets" are structured failures, not errors; the error return
// is reserved for re-entrancy.
func (ex *EmergencyExecutor) ExecuteFor(owner common.Address) (ConversionResult, error) {
	if ex.executing {
		return ConversionResult{}, ErrReentrantExecution
	}
	ex.executing = true
	defer func() { ex.executing = false }()

	executionID := uuid.New()

	if elig := ex.CanExecute(owner); !elig.Eligible {
		return ConversionResult{ExecutionID: executionID, Reason: elig.Reason}, nil
	}

	// An attempt is now underway: the cooldown stamp applies even if the
	// run fails to qualify below.
	ex.lastExecution[owner] = ex.now()

	pol, err := ex.policies.Get(owner)
	if err != nil {
		return ConversionResult{ExecutionID: executionID, Reason: "no protection policy: stablecoin preference unset"}, nil
	}

	p := ex.ledger.Portfolio(owner)
	portfolioRisky := p.RiskScoreBP > PortfolioRiskTriggerBP
	reg := ex.ledger.Registry()

	candidates := lo.FilterMap(p.Entries, func(e ledger.PortfolioEntry, _ int) (ledger.AssetID, bool) {
		if reg.IsStablecoin(e.AssetID) {
			return 0, false
		}
		return e.AssetID, int(e.RiskLevel) > RiskLevelCutoff || portfolioRisky
	})

	if len(candidates) == 0 {
		return ConversionResult{ExecutionID: executionID, Reason: "no risky assets"}, nil
	}

	result := ex.convert(executionID, owner, candidates, pol.Stablecoin, pol.MaxSlippageBP)
	return result, nil
}

// Convert liquidates the given candidate assets into the stablecoin. Each
// leg is independent: a failed swap refunds the withdrawn asset and the
// loop continues.
func (ex *EmergencyExecutor) Convert(owner common.Address, candidates []ledger.AssetID, stable ledger.AssetID, maxSlippageBP int64) (ConversionResult, error) {
	if ex.executing {
		return ConversionResult{}, ErrReentrantExecution
	}
	ex.executing = true
	defer func() { ex.executing = false }()

	ex.lastExecution[owner] = ex.now()
	return ex.convert(uuid.New(), owner, candidates, stable, maxSlippageBP), nil
}

func (ex *EmergencyExecutor) convert(executionID uuid.UUID, owner common.Address, candidates []ledger.AssetID, stable ledger.AssetID, maxSlippageBP int64) ConversionResult {
	result := ConversionResult{ExecutionID: executionID}
	now := ex.now()
	ref := executionID.String()
	reg := ex.ledger.Registry()

	var slippageSum int64
	var succeeded int64
	attempted := 0

	for _, assetID := range candidates {
		if assetID == stable {
			continue
		}
		amount := ex.ledger.Balance(owner, assetID)
		if amount <= 0 {
			continue
		}
		attempted++

		leg := LegResult{AssetID: assetID, AmountIn: amount}

		// Custody leaves the ledger before the external call so a nested
		// invocation cannot double-withdraw.
		if _, err := ex.ledger.EmergencyWithdraw(ex.authority, owner, assetID, amount, ref, now); err != nil {
			leg.Failed = true
			leg.FailReason = err.Error()
			result.Legs = append(result.Legs, leg)
			continue
		}

		swapErr := ex.ledger.BeginExternalCall()
		var swap exchange.SwapResult
		if swapErr == nil {
			swap, swapErr = ex.gateway.Swap(assetID, stable, amount, maxSlippageBP, now.Add(ex.swapDeadline))
			ex.ledger.EndExternalCall()
		}

		if swapErr != nil {
			// Return the withdrawn asset to the owner and move on.
			if _, refundErr := ex.ledger.SwapRefund(ex.authority, owner, assetID, amount, ref, now); refundErr != nil {
				ex.log.Error().Err(refundErr).
					Str("owner", owner.Hex()).
					Str("asset", reg.Symbol(assetID)).
					Msg("refund after failed swap leg failed")
			}
			leg.Failed = true
			leg.FailReason = swapErr.Error()
			result.Legs = append(result.Legs, leg)
			ex.log.Warn().Err(swapErr).
				Str("owner", owner.Hex()).
				Str("asset", reg.Symbol(assetID)).
				Msg("conversion leg failed, asset refunded")
			continue
		}

		if _, err := ex.ledger.SwapCredit(ex.authority, owner, stable, swap.AmountOut, ref, now); err != nil {
			ex.log.Error().Err(err).Str("owner", owner.Hex()).Msg("swap credit failed")
		}

		leg.AmountOut = swap.AmountOut
		leg.SlippageBP = swap.ActualSlippageBP
		result.Legs = append(result.Legs, leg)

		result.AmountConverted += swap.AmountOut
		slippageSum += swap.ActualSlippageBP
		succeeded++
	}

	ex.totalExecutions++
	ex.ownerExecutions[owner]++

	if succeeded == 0 {
		result.Reason = "no conversions successful"
		return result
	}

	result.Success = true
	result.AvgSlippageBP = slippageSum / succeeded
	ex.totalConverted += result.AmountConverted

	ex.log.Info().
		Str("owner", owner.Hex()).
		Int("legs", attempted).
		Int64("succeeded", succeeded).
		Int64("converted", result.AmountConverted).
		Msg("emergency conversion completed")

	return result
}

// ExecuteBatch runs up to MaxBatchSize independent conversion actions.
// Invalid entries produce a failed result without aborting the batch;
// results preserve input order.
func (ex *EmergencyExecutor) ExecuteBatch(actions []BatchAction) (BatchOutcome, error) {
	if len(actions) == 0 {
		return BatchOutcome{}, ErrEmptyBatch
	}
	if len(actions) > MaxBatchSize {
		return BatchOutcome{}, fmt.Errorf("%w: %d > %d", ErrBatchTooLarge, len(actions), MaxBatchSize)
	}

	outcome := BatchOutcome{Results: make([]ConversionResult, 0, len(actions))}

	for _, action := range actions {
		if reason, ok := ex.validateAction(action); !ok {
			outcome.Results = append(outcome.Results, ConversionResult{
				ExecutionID: uuid.New(),
				Reason:      reason,
			})
			continue
		}

		ex.lastExecution[action.Account] = ex.now()
		result := ex.convert(uuid.New(), action.Account, action.Assets, action.Stablecoin, action.MaxSlippageBP)
		outcome.Results = append(outcome.Results, result)
		if result.Success {
			outcome.SuccessCount++
		}
	}

	return outcome, nil
}

func (ex *EmergencyExecutor) validateAction(action BatchAction) (string, bool) {
	if action.Account == (common.Address{}) {
		return "zero owner address", false
	}
	if len(action.Assets) == 0 {
		return "no assets listed", false
	}
	if !ex.ledger.Registry().IsStablecoin(action.Stablecoin) {
		return "target is not a registered stablecoin", false
	}

	pol, err := ex.policies.Get(action.Account)
	if err != nil {
		return "owner has no protection policy", false
	}
	if action.MaxSlippageBP > pol.MaxSlippageBP {
		return fmt.Sprintf("slippage %d bp exceeds policy maximum %d bp", action.MaxSlippageBP, pol.MaxSlippageBP), false
	}

	return "", true
}
