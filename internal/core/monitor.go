package core

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/GuardX-protocol/guardx-engine/internal/authz"
	"github.com/GuardX-protocol/guardx-engine/internal/executor"
	"github.com/GuardX-protocol/guardx-engine/internal/ledger"
	"github.com/GuardX-protocol/guardx-engine/internal/oracle"
	"github.com/GuardX-protocol/guardx-engine/internal/policy"
)

// DefaultCrashWindow is how far back the monitor looks for a reference
// price when evaluating a drop.
const DefaultCrashWindow = 300 * time.Second

// MonitorScriptID identifies the built-in protection agent for the
// automation authorization gate. Owners opt in by binding this script.
const MonitorScriptID = "guardx:crash-monitor:v1"

// TriggeredExecution is one protection run the monitor set off.
type TriggeredExecution struct {
	Owner  common.Address
	FeedID string
	DropBP int64
	Result executor.ConversionResult
}

// CrashMonitor is the automation agent evaluated inside the core on
// every price event: for each owner with a policy holding the crashed
// asset, it checks the drop against the owner's threshold and triggers
// the emergency executor when the automation gate passes.
type CrashMonitor struct {
	registry *ledger.Registry
	ledger   *ledger.AssetLedger
	policies *policy.Store
	oracle   *oracle.Oracle
	executor *executor.EmergencyExecutor
	auto     *authz.Automation
	window   time.Duration
	scriptID string
	log      zerolog.Logger
}

func NewCrashMonitor(
	registry *ledger.Registry,
	al *ledger.AssetLedger,
	policies *policy.Store,
	o *oracle.Oracle,
	exec *executor.EmergencyExecutor,
	auto *authz.Automation,
	log zerolog.Logger,
) *CrashMonitor {
	return &CrashMonitor{
		registry: registry,
		ledger:   al,
		policies: policies,
		oracle:   o,
		executor: exec,
		auto:     auto,
		window:   DefaultCrashWindow,
		scriptID: MonitorScriptID,
		log:      log,
	}
}

// SetWindow overrides the crash detection lookback window.
func (m *CrashMonitor) SetWindow(window time.Duration) { m.window = window }

// OnPrice evaluates protection triggers after a price update on feedID.
// Owners are visited in deterministic registration order; an owner whose
// crash threshold is breached and whose automation binding authorizes
// the monitor gets an emergency execution. Failures are logged and do
// not block the remaining owners.
func (m *CrashMonitor) OnPrice(feedID string) []TriggeredExecution {
	info, ok := m.registry.LookupFeed(feedID)
	if !ok || info.Stable {
		return nil
	}

	var triggered []TriggeredExecution

	for _, owner := range m.policies.Owners() {
		pol, err := m.policies.Get(owner)
		if err != nil {
			continue
		}

		if m.ledger.Balance(owner, info.ID) <= 0 {
			continue
		}

		crash, err := m.oracle.DetectSingleAssetCrash(feedID, pol.CrashThresholdBP, m.window)
		if err != nil || !crash.Crashed {
			continue
		}

		if !m.auto.IsAuthorizedByAutomation(owner, m.scriptID, nil) {
			m.log.Debug().
				Str("owner", owner.Hex()).
				Str("feed", feedID).
				Msg("crash detected but automation not authorized")
			continue
		}

		if elig := m.executor.CanExecute(owner); !elig.Eligible {
			m.log.Debug().
				Str("owner", owner.Hex()).
				Str("reason", elig.Reason).
				Msg("crash detected but owner not eligible")
			continue
		}

		result, err := m.executor.ExecuteFor(owner)
		if err != nil {
			m.log.Error().Err(err).
				Str("owner", owner.Hex()).
				Str("feed", feedID).
				Msg("triggered execution failed")
			continue
		}

		m.log.Info().
			Str("owner", owner.Hex()).
			Str("feed", feedID).
			Int64("drop_bp", crash.DropBP).
			Bool("success", result.Success).
			Msg("crash protection triggered")

		triggered = append(triggered, TriggeredExecution{
			Owner:  owner,
			FeedID: feedID,
			DropBP: crash.DropBP,
			Result: result,
		})
	}

	return triggered
}
