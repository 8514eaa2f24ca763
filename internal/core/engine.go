// Package core hosts the single-threaded protection core: every inbound
// event passes through one deterministic pipeline of idempotency check,
// sequence validation, dispatch, state hashing, and output emission.
// Determinism rule: the core never reads the wall clock — all timestamps
// are versioned inputs carried on the events themselves.
package core

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/GuardX-protocol/guardx-engine/internal/authz"
	"github.com/GuardX-protocol/guardx-engine/internal/crosschain"
	"github.com/GuardX-protocol/guardx-engine/internal/event"
	"github.com/GuardX-protocol/guardx-engine/internal/executor"
	"github.com/GuardX-protocol/guardx-engine/internal/ledger"
	"github.com/GuardX-protocol/guardx-engine/internal/observability"
	"github.com/GuardX-protocol/guardx-engine/internal/oracle"
	"github.com/GuardX-protocol/guardx-engine/internal/policy"
)

// DefaultIdempotencyCapacity bounds the in-memory dedup LRU.
const DefaultIdempotencyCapacity = 1_000_000

// CoreOutput is one unit of work for the persistence and publish paths.
type CoreOutput struct {
	Envelope   *event.EventEnvelope
	Batch      *ledger.Batch
	StateDelta []byte
}

// Config wires the protection core's collaborators.
type Config struct {
	StartSequence int64

	Registry   *ledger.Registry
	Ledger     *ledger.AssetLedger
	Policies   *policy.Store
	Oracle     *oracle.Oracle
	Pricer     *oracle.Pricer
	Executor    *executor.EmergencyExecutor
	Relay       *authz.Relay
	Automation  *authz.Automation
	Grants      *authz.Grants
	Channel     *crosschain.Channel
	Locks       *crosschain.LockManager
	Coordinator *crosschain.Coordinator
	Governance  *crosschain.Governance
	Monitor     *CrashMonitor

	DBChecker           DBIdempotencyChecker
	IdempotencyCapacity int

	Metrics *observability.Metrics
	Log     zerolog.Logger

	PersistChan chan<- CoreOutput
	PublishChan chan<- CoreOutput
}

// ProtectionCore is the single-threaded event processor.
type ProtectionCore struct {
	sequence    int64
	lastEvent   time.Time
	hasher      *StateHasher
	registry    *ledger.Registry
	ledger      *ledger.AssetLedger
	policies    *policy.Store
	oracle      *oracle.Oracle
	pricer      *oracle.Pricer
	executor    *executor.EmergencyExecutor
	relay       *authz.Relay
	auto        *authz.Automation
	grants      *authz.Grants
	channel     *crosschain.Channel
	locks       *crosschain.LockManager
	coordinator *crosschain.Coordinator
	governance  *crosschain.Governance
	monitor     *CrashMonitor
	validator   *ledger.InvariantValidator

	idempotency       *IdempotencyChecker
	sequenceValidator *SequenceValidator
	metrics           *observability.Metrics
	log               zerolog.Logger

	persistChan chan<- CoreOutput
	publishChan chan<- CoreOutput
}

func NewProtectionCore(cfg Config) *ProtectionCore {
	capacity := cfg.IdempotencyCapacity
	if capacity <= 0 {
		capacity = DefaultIdempotencyCapacity
	}

	return &ProtectionCore{
		sequence:          cfg.StartSequence,
		hasher:            NewStateHasher(),
		registry:          cfg.Registry,
		ledger:            cfg.Ledger,
		policies:          cfg.Policies,
		oracle:            cfg.Oracle,
		pricer:            cfg.Pricer,
		executor:          cfg.Executor,
		relay:             cfg.Relay,
		auto:              cfg.Automation,
		grants:            cfg.Grants,
		channel:           cfg.Channel,
		locks:             cfg.Locks,
		coordinator:       cfg.Coordinator,
		governance:        cfg.Governance,
		monitor:           cfg.Monitor,
		validator:         ledger.NewInvariantValidator(cfg.Ledger),
		idempotency:       NewIdempotencyChecker(capacity, cfg.DBChecker),
		sequenceValidator: NewSequenceValidator(),
		metrics:           cfg.Metrics,
		log:               cfg.Log,
		persistChan:       cfg.PersistChan,
		publishChan:       cfg.PublishChan,
	}
}

// ProcessEvent is the main processing pipeline.
func (c *ProtectionCore) ProcessEvent(evt event.Event) error {
	start := time.Now()
	eventType := evt.EventType().String()
	idempotencyKey := evt.IdempotencyKey()

	isDuplicate := c.idempotency.IsDuplicate(eventType, idempotencyKey)

	// Price feeds validate their own sequences inside the oracle, where
	// stale sequences are idempotent and gaps are tolerated. Every other
	// partition is strict.
	_, isPrice := evt.(*event.PriceObserved)
	var partition string
	if !isPrice {
		partition = c.getPartition(evt)
		if err := c.sequenceValidator.ValidateSequence(partition, evt.SourceSequence(), idempotencyKey, isDuplicate); err != nil {
			if c.metrics != nil {
				c.metrics.CoreEventsRejected.WithLabelValues(eventType, "sequence").Inc()
			}
			return fmt.Errorf("sequence validation failed: %w", err)
		}
	}

	if isDuplicate {
		if c.metrics != nil {
			c.metrics.CoreEventsRejected.WithLabelValues(eventType, "duplicate").Inc()
		}
		return nil
	}

	// Advance the core clock before dispatch: crash detection and cooldown
	// checks during dispatch read event time, never the wall clock.
	c.lastEvent = c.getEventTimestamp(evt)

	batch, err := c.dispatchEvent(evt)
	if err != nil {
		if c.metrics != nil {
			c.metrics.CoreEventsRejected.WithLabelValues(eventType, "dispatch").Inc()
		}
		return fmt.Errorf("dispatch failed: %w", err)
	}

	// The source sequence is consumed only once the event applied, so a
	// transient dispatch failure can be retried under the same sequence.
	if !isPrice {
		c.sequenceValidator.Commit(partition, evt.SourceSequence())
	}

	stateDigest := c.computeStateDigest(batch)
	stateHash := c.hasher.ComputeHash(c.sequence, stateDigest)

	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("payload marshal failed: %w", err)
	}

	envelope := &event.EventEnvelope{
		Sequence:       c.sequence,
		IdempotencyKey: idempotencyKey,
		EventType:      evt.EventType(),
		Owner:          evt.Owner(),
		Timestamp:      c.lastEvent,
		SourceSequence: evt.SourceSequence(),
		Payload:        payload,
		StateHash:      stateHash,
		PrevHash:       c.hasher.GetPrevHash(),
	}
	c.sequence++

	if err := c.postCheckInvariants(evt); err != nil {
		panic(fmt.Sprintf("FATAL: invariant violated: %v", err))
	}

	c.emit(CoreOutput{
		Envelope:   envelope,
		Batch:      batch,
		StateDelta: stateDigest,
	})

	c.idempotency.MarkProcessed(eventType, idempotencyKey)

	if c.metrics != nil {
		c.metrics.CoreEventsApplied.WithLabelValues(eventType).Inc()
		c.metrics.CoreEventDuration.WithLabelValues(eventType).Observe(time.Since(start).Seconds())
		c.metrics.CoreSequence.Set(float64(c.sequence))
	}

	return nil
}

// emit sends one output downstream. The persist channel uses a BLOCKING
// send: the core stalls until the persistence worker drains, so no event
// is lost. The publish channel is non-blocking with silent drop —
// subscribers can rebuild from the event log.
func (c *ProtectionCore) emit(output CoreOutput) {
	c.persistChan <- output

	select {
	case c.publishChan <- output:
	default:
		if c.metrics != nil {
			c.metrics.PublishDrops.Inc()
		}
	}
}

// getPartition determines the partition key for sequence validation.
func (c *ProtectionCore) getPartition(evt event.Event) string {
	if owner := evt.Owner(); owner != nil {
		return fmt.Sprintf("owner:%s", owner.Hex())
	}
	return "global"
}

// getEventTimestamp extracts the versioned timestamp from an inbound
// event. The core must not call time.Now().
func (c *ProtectionCore) getEventTimestamp(evt event.Event) time.Time {
	switch e := evt.(type) {
	case *event.Deposit:
		return time.UnixMicro(e.Timestamp)
	case *event.Withdrawal:
		return time.UnixMicro(e.Timestamp)
	case *event.PolicyUpdated:
		return time.UnixMicro(e.Timestamp)
	case *event.PolicyDeleted:
		return time.UnixMicro(e.Timestamp)
	case *event.PriceObserved:
		return time.UnixMicro(e.PriceTimestamp)
	case *event.ExecutionStarted:
		return time.UnixMicro(e.Timestamp)
	case *event.MessageReceived:
		return time.Unix(e.SentAt, 0)
	case *event.GrantCreated:
		return time.UnixMicro(e.Timestamp)
	case *event.GrantToggled:
		return time.UnixMicro(e.Timestamp)
	case *event.ScriptBound:
		return time.UnixMicro(e.Timestamp)
	case *event.LockRequested:
		return time.UnixMicro(e.Timestamp)
	case *event.UnlockRequested:
		return time.UnixMicro(e.Timestamp)
	case *event.MigrateRequested:
		return time.UnixMicro(e.Timestamp)
	case *event.CoordinationRequested:
		return time.UnixMicro(e.Timestamp)
	case *event.ProposalSubmitted:
		return time.UnixMicro(e.Timestamp)
	case *event.ProposalVoted:
		return time.UnixMicro(e.Timestamp)
	case *event.ProposalExecutionRequested:
		return time.UnixMicro(e.Timestamp)
	default:
		panic(fmt.Sprintf("FATAL: getEventTimestamp called with unhandled event type %T — the core cannot use wall-clock time", evt))
	}
}

func (c *ProtectionCore) dispatchEvent(evt event.Event) (*ledger.Batch, error) {
	switch e := evt.(type) {
	case *event.Deposit:
		return c.handleDeposit(e)
	case *event.Withdrawal:
		return c.handleWithdrawal(e)
	case *event.PolicyUpdated:
		return c.handlePolicyUpdated(e)
	case *event.PolicyDeleted:
		return c.handlePolicyDeleted(e)
	case *event.PriceObserved:
		return c.handlePriceObserved(e)
	case *event.ExecutionStarted:
		return c.handleExecutionStarted(e)
	case *event.MessageReceived:
		return c.handleMessageReceived(e)
	case *event.GrantCreated:
		return c.handleGrantCreated(e)
	case *event.GrantToggled:
		return c.handleGrantToggled(e)
	case *event.ScriptBound:
		return c.handleScriptBound(e)
	case *event.LockRequested:
		return c.handleLockRequested(e)
	case *event.UnlockRequested:
		return c.handleUnlockRequested(e)
	case *event.MigrateRequested:
		return c.handleMigrateRequested(e)
	case *event.CoordinationRequested:
		return c.handleCoordinationRequested(e)
	case *event.ProposalSubmitted:
		return c.handleProposalSubmitted(e)
	case *event.ProposalVoted:
		return c.handleProposalVoted(e)
	case *event.ProposalExecutionRequested:
		return c.handleProposalExecutionRequested(e)
	default:
		return nil, fmt.Errorf("unknown event type: %T", evt)
	}
}

func (c *ProtectionCore) handleDeposit(evt *event.Deposit) (*ledger.Batch, error) {
	info, ok := c.registry.Lookup(evt.Asset)
	if !ok {
		return nil, fmt.Errorf("unknown asset: %s", evt.Asset)
	}

	ts := time.UnixMicro(evt.Timestamp)
	batch, err := c.ledger.Deposit(evt.Account, info.ID, evt.Amount, evt.IdempotencyKey(), ts)
	if err != nil {
		return nil, err
	}

	c.ledger.Revalue(evt.Account, c.pricer, ts)
	c.countJournals(batch)
	return batch, nil
}

func (c *ProtectionCore) handleWithdrawal(evt *event.Withdrawal) (*ledger.Batch, error) {
	info, ok := c.registry.Lookup(evt.Asset)
	if !ok {
		return nil, fmt.Errorf("unknown asset: %s", evt.Asset)
	}

	// A withdrawal carrying a script id is a delegated operation and must
	// pass the automation gate; without one it is the owner's own call.
	if evt.ScriptID != "" {
		if !c.auto.IsAuthorizedByAutomation(evt.Account, evt.ScriptID, evt.Signature) {
			return nil, fmt.Errorf("automation not authorized: owner=%s script=%q", evt.Account.Hex(), evt.ScriptID)
		}
	}

	ts := time.UnixMicro(evt.Timestamp)
	batch, err := c.ledger.Withdraw(evt.Account, info.ID, evt.Amount, evt.IdempotencyKey(), ts)
	if err != nil {
		return nil, err
	}

	c.ledger.Revalue(evt.Account, c.pricer, ts)
	c.countJournals(batch)
	return batch, nil
}

func (c *ProtectionCore) handlePolicyUpdated(evt *event.PolicyUpdated) (*ledger.Batch, error) {
	info, ok := c.registry.Lookup(evt.Stablecoin)
	if !ok {
		return nil, fmt.Errorf("unknown stablecoin: %s", evt.Stablecoin)
	}

	pol := policy.ProtectionPolicy{
		CrashThresholdBP: evt.CrashThresholdBP,
		MaxSlippageBP:    evt.MaxSlippageBP,
		Stablecoin:       info.ID,
		GasBudget:        evt.GasBudget,
	}
	if err := c.policies.Set(evt.Account, pol, time.UnixMicro(evt.Timestamp)); err != nil {
		return nil, err
	}

	return c.emptyBatch(evt.IdempotencyKey(), evt.Timestamp), nil
}

func (c *ProtectionCore) handlePolicyDeleted(evt *event.PolicyDeleted) (*ledger.Batch, error) {
	c.policies.Delete(evt.Account)
	return c.emptyBatch(evt.IdempotencyKey(), evt.Timestamp), nil
}

// handlePriceObserved records the observation and lets the crash monitor
// evaluate protection triggers against the new price. Triggered
// executions are emitted as derived events with their own sequences.
func (c *ProtectionCore) handlePriceObserved(evt *event.PriceObserved) (*ledger.Batch, error) {
	obs := oracle.Observation{
		Price:        evt.Price,
		Timestamp:    time.UnixMicro(evt.PriceTimestamp),
		ConfidenceBP: evt.ConfidenceBP,
	}
	if err := c.oracle.RecordObservation(evt.FeedID, obs, evt.PriceSequence); err != nil {
		return nil, err
	}

	if c.metrics != nil {
		c.metrics.OracleObservations.WithLabelValues(evt.FeedID).Inc()
	}

	if c.monitor != nil {
		for _, trig := range c.monitor.OnPrice(evt.FeedID) {
			c.emitExecutionOutcome(trig.Owner, trig.Result, evt.PriceTimestamp)
			if c.metrics != nil {
				c.metrics.CrashesDetected.WithLabelValues(evt.FeedID, "single").Inc()
				c.metrics.ExecutionsTriggered.WithLabelValues("automation").Inc()
			}
		}
	}

	return c.emptyBatch(evt.IdempotencyKey(), evt.PriceTimestamp), nil
}

// handleExecutionStarted is the delegated trigger entry point: an
// automation script or the owner requests emergency protection.
func (c *ProtectionCore) handleExecutionStarted(evt *event.ExecutionStarted) (*ledger.Batch, error) {
	if evt.Trigger != "owner" {
		if !c.auto.IsAuthorizedByAutomation(evt.Account, evt.ScriptID, evt.Signature) {
			return nil, fmt.Errorf("automation not authorized: owner=%s script=%q", evt.Account.Hex(), evt.ScriptID)
		}
	}

	result, err := c.executor.ExecuteFor(evt.Account)
	if err != nil {
		return nil, err
	}

	c.emitExecutionOutcome(evt.Account, result, evt.Timestamp)
	if c.metrics != nil {
		c.metrics.ExecutionsTriggered.WithLabelValues(evt.Trigger).Inc()
	}

	return c.emptyBatch(evt.IdempotencyKey(), evt.Timestamp), nil
}

// handleMessageReceived runs inbound cross-chain traffic through the
// channel's replay protection. Rejected deliveries still produce an
// envelope so the audit log records the attempt.
func (c *ProtectionCore) handleMessageReceived(evt *event.MessageReceived) (*ledger.Batch, error) {
	msg := crosschain.Message{
		Hash:        evt.MessageHash,
		SourceChain: evt.SourceChain,
		TargetChain: evt.TargetChain,
		Nonce:       evt.Nonce,
		Kind:        crosschain.MessageKind(evt.Kind),
		Payload:     evt.Payload,
		SentAt:      time.Unix(evt.SentAt, 0),
		ValidUntil:  time.Unix(evt.ValidUntil, 0),
	}

	receipt := c.channel.Receive(msg)
	if c.metrics != nil {
		result := "accepted"
		if !receipt.Accepted {
			result = "rejected"
		}
		c.metrics.MessagesReceived.WithLabelValues(result).Inc()
	}
	if !receipt.Accepted {
		c.log.Warn().
			Str("hash", evt.MessageHash.Hex()).
			Str("reason", receipt.Reason).
			Msg("inbound message rejected")
		return c.emptyBatch(evt.IdempotencyKey(), evt.SentAt*1_000_000), nil
	}

	// The hash is consumed; a failed dispatch cannot be redelivered, so
	// bad payloads are logged and audited rather than returned as errors.
	c.dispatchAcceptedMessage(evt)
	return c.emptyBatch(evt.IdempotencyKey(), evt.SentAt*1_000_000), nil
}

// emitExecutionOutcome records a protection run as a derived event with
// its own sequence, following the conversion batches already applied to
// the ledger by the executor.
func (c *ProtectionCore) emitExecutionOutcome(owner common.Address, result executor.ConversionResult, tsMicros int64) {
	succeeded := 0
	for _, leg := range result.Legs {
		if !leg.Failed {
			succeeded++
		}
		if c.metrics != nil {
			outcome := "success"
			if leg.Failed {
				outcome = "failed"
			}
			c.metrics.ConversionLegs.WithLabelValues(outcome).Inc()
			if !leg.Failed {
				c.metrics.ConversionSlippage.Observe(float64(leg.SlippageBP))
			}
		}
	}

	done := &event.ExecutionCompleted{
		ExecutionID:     result.ExecutionID,
		Account:         owner,
		Success:         result.Success,
		Reason:          result.Reason,
		AmountConverted: result.AmountConverted,
		AvgSlippageBP:   result.AvgSlippageBP,
		LegsAttempted:   len(result.Legs),
		LegsSucceeded:   succeeded,
		Sequence:        c.sequence,
	}

	payload, err := json.Marshal(done)
	if err != nil {
		c.log.Error().Err(err).Msg("execution outcome marshal failed")
		return
	}

	seq := c.sequence
	c.sequence++

	stateDigest := c.computeStateDigest(nil)
	stateHash := c.hasher.ComputeHash(seq, stateDigest)

	c.emit(CoreOutput{
		Envelope: &event.EventEnvelope{
			Sequence:       seq,
			IdempotencyKey: done.IdempotencyKey(),
			EventType:      event.EventTypeExecutionCompleted,
			Owner:          &owner,
			Timestamp:      time.UnixMicro(tsMicros),
			Payload:        payload,
			StateHash:      stateHash,
			PrevHash:       c.hasher.GetPrevHash(),
		},
		StateDelta: stateDigest,
	})

	if c.metrics != nil {
		outcome := "failed"
		if result.Success {
			outcome = "success"
			c.metrics.AmountConverted.Add(float64(result.AmountConverted))
		}
		c.metrics.ExecutionsCompleted.WithLabelValues(outcome).Inc()
	}
}

// emitDerived records a subsystem outcome as a derived event with its
// own sequence, the same way emitExecutionOutcome does for protection
// runs. Derived events never touch the ledger, so the state digest is
// computed over an empty batch.
func (c *ProtectionCore) emitDerived(evt event.Event, tsMicros int64) {
	payload, err := json.Marshal(evt)
	if err != nil {
		c.log.Error().Err(err).Str("type", evt.EventType().String()).Msg("derived event marshal failed")
		return
	}

	seq := c.sequence
	c.sequence++

	stateDigest := c.computeStateDigest(nil)
	stateHash := c.hasher.ComputeHash(seq, stateDigest)

	c.emit(CoreOutput{
		Envelope: &event.EventEnvelope{
			Sequence:       seq,
			IdempotencyKey: evt.IdempotencyKey(),
			EventType:      evt.EventType(),
			Owner:          evt.Owner(),
			Timestamp:      time.UnixMicro(tsMicros),
			Payload:        payload,
			StateHash:      stateHash,
			PrevHash:       c.hasher.GetPrevHash(),
		},
		StateDelta: stateDigest,
	})
}

func (c *ProtectionCore) emptyBatch(eventRef string, tsMicros int64) *ledger.Batch {
	return &ledger.Batch{
		EventRef:  eventRef,
		Sequence:  c.sequence,
		Timestamp: tsMicros,
		Journals:  []ledger.Journal{},
	}
}

func (c *ProtectionCore) countJournals(batch *ledger.Batch) {
	if c.metrics == nil || batch == nil {
		return
	}
	for _, j := range batch.Journals {
		c.metrics.CoreJournals.WithLabelValues(j.JournalType.String()).Inc()
	}
}

// computeStateDigest creates canonical bytes over the accounts the batch
// touched: sorted account paths with their post-apply balances.
func (c *ProtectionCore) computeStateDigest(batch *ledger.Batch) []byte {
	affectedAccounts := make(map[ledger.AccountKey]bool)

	if batch != nil {
		for _, j := range batch.Journals {
			affectedAccounts[j.DebitAccount] = true
			affectedAccounts[j.CreditAccount] = true
		}
	}

	accounts := make([]ledger.AccountKey, 0, len(affectedAccounts))
	for key := range affectedAccounts {
		accounts = append(accounts, key)
	}

	sort.Slice(accounts, func(i, j int) bool {
		return accounts[i].AccountPath(c.registry) < accounts[j].AccountPath(c.registry)
	})

	digest := make([]byte, 0, len(accounts)*64)
	tracker := c.ledger.Tracker()

	for _, key := range accounts {
		balance := tracker.GetBalance(key)

		path := key.AccountPath(c.registry)
		digest = append(digest, byte(len(path)))
		digest = append(digest, []byte(path)...)

		digest = appendInt64LE(digest, balance)
	}

	return digest
}

func appendInt64LE(buf []byte, v int64) []byte {
	return append(buf,
		byte(v),
		byte(v>>8),
		byte(v>>16),
		byte(v>>24),
		byte(v>>32),
		byte(v>>40),
		byte(v>>48),
		byte(v>>56),
	)
}

// postCheckInvariants validates ledger invariants after dispatch.
func (c *ProtectionCore) postCheckInvariants(evt event.Event) error {
	if owner := evt.Owner(); owner != nil {
		if err := c.validator.ValidatePortfolioConsistency(*owner); err != nil {
			return err
		}
	}

	// Periodic global zero-sum check.
	if c.sequence > 0 && c.sequence%1000 == 0 {
		if err := c.validator.ValidateGlobalBalance(); err != nil {
			return err
		}
	}

	return nil
}

// --- Snapshot restore & startup ---

// SnapshotState holds the serializable in-memory state for restore.
type SnapshotState struct {
	Sequence        int64
	Timestamp       time.Time // Last event timestamp at snapshot time
	StateHash       [32]byte
	Balances        map[ledger.AccountKey]int64
	SequenceState   map[string]int64
	IdempotencyKeys []string
}

// RestoreFromSnapshot restores the core's in-memory state: on warm
// restart, load the latest snapshot and replay events after it.
func (c *ProtectionCore) RestoreFromSnapshot(snap *SnapshotState) {
	c.sequence = snap.Sequence + 1
	c.hasher.SetPrevHash(snap.StateHash)

	tracker := c.ledger.Tracker()
	for key, balance := range snap.Balances {
		tracker.SetBalance(key, balance)
	}
	c.ledger.SetSequence(snap.Sequence)
	c.ledger.RebuildPortfolios(snap.Timestamp)
	c.lastEvent = snap.Timestamp

	for partition, nextSeq := range snap.SequenceState {
		c.sequenceValidator.RestorePartition(partition, nextSeq)
	}

	c.idempotency.lru.WarmFromKeys(snap.IdempotencyKeys)
}

// GetSequence returns the current global sequence number.
func (c *ProtectionCore) GetSequence() int64 {
	return c.sequence
}

// LastEventTime returns the timestamp of the last processed event. The
// shell wires subsystem clocks to this so nothing in the core's reach
// ever reads the wall clock.
func (c *ProtectionCore) LastEventTime() time.Time {
	return c.lastEvent
}

// GetStateHash returns the current state hash (chain tip).
func (c *ProtectionCore) GetStateHash() [32]byte {
	return c.hasher.GetPrevHash()
}

// CreateSnapshotState captures the current in-memory state for persistence.
func (c *ProtectionCore) CreateSnapshotState() *SnapshotState {
	return &SnapshotState{
		Sequence:        c.sequence - 1,
		Timestamp:       c.lastEvent,
		StateHash:       c.hasher.GetPrevHash(),
		Balances:        c.ledger.Tracker().Snapshot(),
		SequenceState:   c.sequenceValidator.GetAllPartitions(),
		IdempotencyKeys: c.idempotency.lru.GetAllKeys(),
	}
}
