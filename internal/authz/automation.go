package authz

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

var ErrNotBound = errors.New("script not bound to owner")

type binding struct {
	scriptID   string
	authorized bool
}

// Automation maps owners to the automation script permitted to act for
// them. A relay may be absent (nil); when configured, the script must
// also be relay-active for authorization to pass.
type Automation struct {
	relay    *Relay
	bindings map[common.Address]binding
}

func NewAutomation(relay *Relay) *Automation {
	return &Automation{
		relay:    relay,
		bindings: make(map[common.Address]binding),
	}
}

// BindScript authorizes scriptID to act for owner. The script must be
// relay-registered when a relay is configured.
func (a *Automation) BindScript(owner common.Address, scriptID string) error {
	if owner == (common.Address{}) {
		return ErrZeroAddress
	}
	if scriptID == "" {
		return errors.New("empty script id")
	}
	if a.relay != nil && !a.relay.IsScriptRegistered(scriptID) {
		return fmt.Errorf("%w: %q", ErrUnknownScript, scriptID)
	}
	a.bindings[owner] = binding{scriptID: scriptID, authorized: true}
	return nil
}

// Unbind removes the owner's automation binding.
func (a *Automation) Unbind(owner common.Address) {
	delete(a.bindings, owner)
}

// SetAuthorized toggles the owner's binding without discarding it.
func (a *Automation) SetAuthorized(owner common.Address, authorized bool) error {
	b, ok := a.bindings[owner]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotBound, owner.Hex())
	}
	b.authorized = authorized
	a.bindings[owner] = b
	return nil
}

// BoundScript returns the owner's bound script id.
func (a *Automation) BoundScript(owner common.Address) (string, bool) {
	b, ok := a.bindings[owner]
	if !ok {
		return "", false
	}
	return b.scriptID, true
}

// IsAuthorizedByAutomation is the gate for delegated ledger operations
// and automation-triggered executions: the script must be bound to the
// owner, the binding authorized, and — when a relay is configured — the
// script currently relay-active. The data argument is the action payload
// the script claims to act on; it is not interpreted here.
func (a *Automation) IsAuthorizedByAutomation(owner common.Address, scriptID string, data []byte) bool {
	b, ok := a.bindings[owner]
	if !ok || !b.authorized || b.scriptID != scriptID {
		return false
	}
	if a.relay != nil {
		return a.relay.IsScriptActive(scriptID)
	}
	return true
}
