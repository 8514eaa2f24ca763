package core

import (
	"fmt"
	"time"

	"github.com/GuardX-protocol/guardx-engine/internal/crosschain"
	"github.com/GuardX-protocol/guardx-engine/internal/event"
	"github.com/GuardX-protocol/guardx-engine/internal/ledger"
)

// Cross-chain operations follow one shape: an inbound command event
// drives the subsystem, and the outcome — the assigned hash, the
// outbound messages — is recorded as derived events in the same
// envelope chain.

func (c *ProtectionCore) handleLockRequested(evt *event.LockRequested) (*ledger.Batch, error) {
	if c.locks == nil {
		return nil, fmt.Errorf("lock manager not configured")
	}
	info, ok := c.registry.Lookup(evt.Asset)
	if !ok {
		return nil, fmt.Errorf("unknown asset: %s", evt.Asset)
	}

	hash, err := c.locks.Lock(evt.Account, info.ID, evt.Amount, evt.TargetChain)
	if err != nil {
		return nil, fmt.Errorf("lock: %w", err)
	}

	c.emitDerived(&event.ChainLocked{
		LockHash:    hash,
		Account:     evt.Account,
		Asset:       evt.Asset,
		Amount:      evt.Amount,
		OriginChain: c.channel.LocalChain(),
		TargetChain: evt.TargetChain,
		Sequence:    c.sequence,
	}, evt.Timestamp)

	if c.metrics != nil {
		c.metrics.LocksActive.Inc()
	}
	return c.emptyBatch(evt.IdempotencyKey(), evt.Timestamp), nil
}

func (c *ProtectionCore) handleUnlockRequested(evt *event.UnlockRequested) (*ledger.Batch, error) {
	if c.locks == nil {
		return nil, fmt.Errorf("lock manager not configured")
	}

	if err := c.locks.Unlock(evt.Account, evt.LockHash, evt.Signature, time.Unix(evt.SignedAt, 0)); err != nil {
		return nil, fmt.Errorf("unlock: %w", err)
	}

	c.emitDerived(&event.ChainUnlocked{
		LockHash: evt.LockHash,
		Account:  evt.Account,
		Sequence: c.sequence,
	}, evt.Timestamp)

	if c.metrics != nil {
		c.metrics.LocksActive.Dec()
	}
	return c.emptyBatch(evt.IdempotencyKey(), evt.Timestamp), nil
}

func (c *ProtectionCore) handleMigrateRequested(evt *event.MigrateRequested) (*ledger.Batch, error) {
	if c.locks == nil {
		return nil, fmt.Errorf("lock manager not configured")
	}
	info, ok := c.registry.Lookup(evt.Asset)
	if !ok {
		return nil, fmt.Errorf("unknown asset: %s", evt.Asset)
	}

	hash, msg, err := c.locks.Migrate(evt.Account, info.ID, evt.Amount, evt.TargetChain)
	if err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	c.emitDerived(&event.MigrationStarted{
		MigrationHash: hash,
		Account:       evt.Account,
		Asset:         evt.Asset,
		Amount:        evt.Amount,
		TargetChain:   evt.TargetChain,
		Sequence:      c.sequence,
	}, evt.Timestamp)
	c.emitMessageSent(msg, evt.Timestamp)

	if c.metrics != nil {
		c.metrics.LocksActive.Inc()
	}
	return c.emptyBatch(evt.IdempotencyKey(), evt.Timestamp), nil
}

func (c *ProtectionCore) handleCoordinationRequested(evt *event.CoordinationRequested) (*ledger.Batch, error) {
	if c.coordinator == nil {
		return nil, fmt.Errorf("coordinator not configured")
	}

	hash, messages, err := c.coordinator.Initiate(evt.Account, evt.ChainIDs, evt.ScriptIDs)
	if err != nil {
		return nil, fmt.Errorf("initiate coordination: %w", err)
	}

	c.emitDerived(&event.CoordinationInitiated{
		CoordinationHash: hash,
		Account:          evt.Account,
		ChainIDs:         evt.ChainIDs,
		Sequence:         c.sequence,
	}, evt.Timestamp)
	for _, msg := range messages {
		c.emitMessageSent(msg, evt.Timestamp)
	}

	if c.metrics != nil {
		c.metrics.CoordinationsOpen.Inc()
	}
	return c.emptyBatch(evt.IdempotencyKey(), evt.Timestamp), nil
}

func (c *ProtectionCore) handleProposalSubmitted(evt *event.ProposalSubmitted) (*ledger.Batch, error) {
	if c.governance == nil {
		return nil, fmt.Errorf("governance not configured")
	}

	payloads := make([][]byte, len(evt.Payloads))
	for i, p := range evt.Payloads {
		payloads[i] = p
	}
	id, err := c.governance.Propose(evt.Proposer, evt.Description, evt.ChainIDs, payloads)
	if err != nil {
		return nil, fmt.Errorf("propose: %w", err)
	}

	c.emitDerived(&event.ProposalCreated{
		ProposalID: id,
		Proposer:   evt.Proposer,
		ChainIDs:   evt.ChainIDs,
		Sequence:   c.sequence,
	}, evt.Timestamp)
	return c.emptyBatch(evt.IdempotencyKey(), evt.Timestamp), nil
}

// handleProposalVoted applies the vote directly; the inbound envelope is
// the audit record, so no derived event is needed.
func (c *ProtectionCore) handleProposalVoted(evt *event.ProposalVoted) (*ledger.Batch, error) {
	if c.governance == nil {
		return nil, fmt.Errorf("governance not configured")
	}

	if err := c.governance.Vote(evt.Member, evt.ProposalID, evt.Support); err != nil {
		return nil, fmt.Errorf("vote: %w", err)
	}
	return c.emptyBatch(evt.IdempotencyKey(), evt.Timestamp), nil
}

func (c *ProtectionCore) handleProposalExecutionRequested(evt *event.ProposalExecutionRequested) (*ledger.Batch, error) {
	if c.governance == nil {
		return nil, fmt.Errorf("governance not configured")
	}

	messages, err := c.governance.Execute(evt.Caller, evt.ProposalID)
	if err != nil {
		return nil, fmt.Errorf("execute proposal: %w", err)
	}

	c.emitDerived(&event.ProposalExecuted{
		ProposalID: evt.ProposalID,
		Executor:   evt.Caller,
		Sequence:   c.sequence,
	}, evt.Timestamp)
	for _, msg := range messages {
		c.emitMessageSent(msg, evt.Timestamp)
	}
	return c.emptyBatch(evt.IdempotencyKey(), evt.Timestamp), nil
}

// dispatchAcceptedMessage routes an inbound message that passed replay
// protection. Announcements need no local action; signed reports
// finalize the migration or coordination they refer to.
func (c *ProtectionCore) dispatchAcceptedMessage(evt *event.MessageReceived) {
	kind := crosschain.MessageKind(evt.Kind)
	tsMicros := evt.SentAt * 1_000_000

	switch kind {
	case crosschain.KindMigration:
		if c.locks == nil || !crosschain.IsReport(kind, evt.Payload) {
			return
		}
		lockHash, signedAt, sig, err := crosschain.ParseMigrationReport(evt.Payload)
		if err != nil {
			c.log.Warn().Err(err).Str("hash", evt.MessageHash.Hex()).Msg("bad migration report")
			return
		}
		if err := c.locks.CompleteMigration(lockHash, sig, signedAt); err != nil {
			c.log.Warn().Err(err).Str("lock", lockHash.Hex()).Msg("migration completion refused")
			return
		}
		mig, _ := c.locks.GetMigration(lockHash)
		c.emitDerived(&event.MigrationCompleted{
			MigrationHash: lockHash,
			Account:       mig.Owner,
			Sequence:      c.sequence,
		}, tsMicros)
		if c.metrics != nil {
			c.metrics.LocksActive.Dec()
		}

	case crosschain.KindCoordination:
		if c.coordinator == nil || !crosschain.IsReport(kind, evt.Payload) {
			return
		}
		hash, chainID, signedAt, sig, err := crosschain.ParseCoordinationReport(evt.Payload)
		if err != nil {
			c.log.Warn().Err(err).Str("hash", evt.MessageHash.Hex()).Msg("bad coordination report")
			return
		}
		if err := c.coordinator.ExecuteOnChain(hash, chainID, sig, signedAt); err != nil {
			c.log.Warn().Err(err).Str("coordination", hash.Hex()).Uint64("chain", chainID).Msg("coordination report refused")
			return
		}
		coord, _ := c.coordinator.Get(hash)
		c.emitDerived(&event.CoordinationExecuted{
			CoordinationHash: hash,
			Account:          coord.Owner,
			ChainID:          chainID,
			Terminal:         coord.Terminal,
			Sequence:         c.sequence,
		}, tsMicros)
		if coord.Terminal && c.metrics != nil {
			c.metrics.CoordinationsOpen.Dec()
		}

	case crosschain.KindGovernance:
		// Remote governance payloads are applied by the relayer on the
		// target chain; this side only audits the delivery.
		c.log.Info().Str("hash", evt.MessageHash.Hex()).Msg("governance message received")
	}
}

func (c *ProtectionCore) emitMessageSent(msg crosschain.Message, tsMicros int64) {
	c.emitDerived(&event.MessageSent{
		MessageHash: msg.Hash,
		TargetChain: msg.TargetChain,
		Nonce:       msg.Nonce,
		Kind:        string(msg.Kind),
		Payload:     msg.Payload,
		SentAt:      msg.SentAt.Unix(),
		ValidUntil:  msg.ValidUntil.Unix(),
		Sequence:    c.sequence,
	}, tsMicros)

	if c.metrics != nil {
		c.metrics.MessagesSent.WithLabelValues(fmt.Sprintf("%d", msg.TargetChain)).Inc()
	}
}
