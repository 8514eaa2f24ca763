// Package authz implements delegated authorization: a relay that anchors
// trust in registered delegate keys and automation scripts, delegation
// grants signed by the delegate, and per-owner automation bindings.
//
// Types in this package are not internally locked; they are owned by the
// single-threaded protection core.
package authz

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	ErrZeroAddress     = errors.New("zero address")
	ErrInvalidPubkey   = errors.New("invalid public key")
	ErrUnknownDelegate = errors.New("delegate not registered with relay")
	ErrUnknownScript   = errors.New("script not registered with relay")
	ErrScriptInactive  = errors.New("script is not active")
	ErrInvalidSig      = errors.New("invalid signature")
	ErrSignerMismatch  = errors.New("recovered signer does not match delegate")
)

// Relay is the trust anchor for delegated operations. Delegate keys and
// automation scripts must be registered here before any grant or binding
// can reference them.
type Relay struct {
	delegates map[common.Address][]byte
	scripts   map[string]bool
}

func NewRelay() *Relay {
	return &Relay{
		delegates: make(map[common.Address][]byte),
		scripts:   make(map[string]bool),
	}
}

// RegisterDelegate records a delegate signing key. The public key must be
// an uncompressed (65-byte) or compressed (33-byte) secp256k1 point.
func (r *Relay) RegisterDelegate(addr common.Address, pubkey []byte) error {
	if addr == (common.Address{}) {
		return ErrZeroAddress
	}
	if len(pubkey) != 33 && len(pubkey) != 65 {
		return fmt.Errorf("%w: %d bytes", ErrInvalidPubkey, len(pubkey))
	}
	r.delegates[addr] = pubkey
	return nil
}

func (r *Relay) IsRegisteredDelegate(addr common.Address) bool {
	_, ok := r.delegates[addr]
	return ok
}

// DelegatePubkey returns the registered key material for a delegate.
func (r *Relay) DelegatePubkey(addr common.Address) ([]byte, bool) {
	pk, ok := r.delegates[addr]
	return pk, ok
}

// RegisterScript records an automation script identifier, active by default.
func (r *Relay) RegisterScript(id string) error {
	if id == "" {
		return errors.New("empty script id")
	}
	r.scripts[id] = true
	return nil
}

// SetScriptActive toggles a registered script. Deactivation blocks every
// automation binding that references the script.
func (r *Relay) SetScriptActive(id string, active bool) error {
	if _, ok := r.scripts[id]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownScript, id)
	}
	r.scripts[id] = active
	return nil
}

func (r *Relay) IsScriptRegistered(id string) bool {
	_, ok := r.scripts[id]
	return ok
}

func (r *Relay) IsScriptActive(id string) bool {
	return r.scripts[id]
}

// VerifyDelegateSignature checks that sig over digest was produced by the
// key behind a relay-registered delegate address.
func (r *Relay) VerifyDelegateSignature(delegate common.Address, digest common.Hash, sig []byte) error {
	if !r.IsRegisteredDelegate(delegate) {
		return fmt.Errorf("%w: %s", ErrUnknownDelegate, delegate.Hex())
	}
	recovered, err := RecoverSigner(digest, sig)
	if err != nil {
		return err
	}
	if recovered != delegate {
		return fmt.Errorf("%w: got %s, want %s", ErrSignerMismatch, recovered.Hex(), delegate.Hex())
	}
	return nil
}

// RecoverSigner recovers the address that signed digest. Accepts both the
// raw 0/1 recovery id and the Ethereum-conventional 27/28 form.
func RecoverSigner(digest common.Hash, sig []byte) (common.Address, error) {
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("%w: length %d", ErrInvalidSig, len(sig))
	}
	norm := make([]byte, crypto.SignatureLength)
	copy(norm, sig)
	if norm[64] >= 27 {
		norm[64] -= 27
	}
	pub, err := crypto.SigToPub(digest.Bytes(), norm)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrInvalidSig, err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}
