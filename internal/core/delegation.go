package core

import (
	"fmt"
	"time"

	"github.com/GuardX-protocol/guardx-engine/internal/authz"
	"github.com/GuardX-protocol/guardx-engine/internal/event"
	"github.com/GuardX-protocol/guardx-engine/internal/ledger"
)

// Admin events arrive on their own subjects and are the only way
// delegation state changes at runtime: the relay, grants, and automation
// bindings are all driven through the event log so a replay rebuilds
// them exactly.

// handleGrantCreated registers the delegate key carried in the signed
// descriptor and stores the grant. The signature check inside Create
// proves the descriptor was signed by the key behind the delegate
// address, so registration and grant creation ride one event.
func (c *ProtectionCore) handleGrantCreated(evt *event.GrantCreated) (*ledger.Batch, error) {
	if c.relay == nil || c.grants == nil {
		return nil, fmt.Errorf("delegation not configured")
	}

	if !c.relay.IsRegisteredDelegate(evt.Delegate) {
		if err := c.relay.RegisterDelegate(evt.Delegate, evt.PublicKey); err != nil {
			return nil, fmt.Errorf("register delegate: %w", err)
		}
	}

	desc := authz.GrantDescriptor{
		Delegate:  evt.Delegate,
		PublicKey: evt.PublicKey,
		Threshold: evt.Threshold,
		Timestamp: time.Unix(evt.SignedAt, 0),
	}
	if err := c.grants.Create(evt.Account, desc, evt.Signature); err != nil {
		return nil, fmt.Errorf("create grant: %w", err)
	}

	c.log.Info().
		Str("owner", evt.Account.Hex()).
		Str("delegate", evt.Delegate.Hex()).
		Msg("delegation grant created")
	return c.emptyBatch(evt.IdempotencyKey(), evt.Timestamp), nil
}

func (c *ProtectionCore) handleGrantToggled(evt *event.GrantToggled) (*ledger.Batch, error) {
	if c.grants == nil {
		return nil, fmt.Errorf("delegation not configured")
	}

	if err := c.grants.SetActive(evt.Caller, evt.Account, evt.Active); err != nil {
		return nil, fmt.Errorf("toggle grant: %w", err)
	}

	c.log.Info().
		Str("owner", evt.Account.Hex()).
		Bool("active", evt.Active).
		Msg("delegation grant toggled")
	return c.emptyBatch(evt.IdempotencyKey(), evt.Timestamp), nil
}

// handleScriptBound opens the automation gate for one owner. The script
// is relay-registered on first sight; binding it is what authorizes it
// to act for the owner.
func (c *ProtectionCore) handleScriptBound(evt *event.ScriptBound) (*ledger.Batch, error) {
	if c.relay != nil && !c.relay.IsScriptRegistered(evt.ScriptID) {
		if err := c.relay.RegisterScript(evt.ScriptID); err != nil {
			return nil, fmt.Errorf("register script: %w", err)
		}
	}

	if err := c.auto.BindScript(evt.Account, evt.ScriptID); err != nil {
		return nil, fmt.Errorf("bind script: %w", err)
	}

	c.log.Info().
		Str("owner", evt.Account.Hex()).
		Str("script", evt.ScriptID).
		Msg("automation script bound")
	return c.emptyBatch(evt.IdempotencyKey(), evt.Timestamp), nil
}
