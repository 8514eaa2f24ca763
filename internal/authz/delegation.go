package authz

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

const (
	// MinThreshold and MaxThreshold bound a grant's declared signer
	// threshold. The value is recorded but not enforced anywhere; a
	// grant authorizes with a single delegate signature.
	MinThreshold = 1
	MaxThreshold = 16
)

var (
	ErrInvalidThreshold = errors.New("threshold out of range")
	ErrNoGrant          = errors.New("no delegation grant for owner")
	ErrGrantInactive    = errors.New("delegation grant is deactivated")
	ErrNotGrantAdmin    = errors.New("caller is neither owner nor admin")
)

// GrantDescriptor is the delegate-signed content of a grant request.
type GrantDescriptor struct {
	Delegate  common.Address
	PublicKey []byte
	Threshold uint8
	Timestamp time.Time
}

// DelegationGrant binds an owner to a delegate signing key. At most one
// grant exists per owner; creating a new one replaces the old.
type DelegationGrant struct {
	Owner     common.Address
	Delegate  common.Address
	PublicKey []byte
	Threshold uint8
	Active    bool
	CreatedAt time.Time
}

// GrantDigest is the canonical signing digest for a grant request:
// keccak256(owner ‖ delegate ‖ publicKey ‖ threshold ‖ unixSeconds).
func GrantDigest(owner common.Address, desc GrantDescriptor) common.Hash {
	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], uint64(desc.Timestamp.Unix()))
	return crypto.Keccak256Hash(
		owner.Bytes(),
		desc.Delegate.Bytes(),
		desc.PublicKey,
		[]byte{desc.Threshold},
		ts[:],
	)
}

// Grants manages delegation grants. Creation is two-phase: the delegate
// must already be relay-registered, then the grant is accepted only with
// a valid delegate signature over the descriptor digest.
type Grants struct {
	relay  *Relay
	admin  common.Address
	grants map[common.Address]*DelegationGrant
	now    func() time.Time
}

func NewGrants(relay *Relay, admin common.Address) *Grants {
	return &Grants{
		relay:  relay,
		admin:  admin,
		grants: make(map[common.Address]*DelegationGrant),
		now:    time.Now,
	}
}

// SetClock overrides the wall clock (tests).
func (g *Grants) SetClock(now func() time.Time) { g.now = now }

// Create validates and stores a grant, replacing any prior grant for the
// owner. The signature must recover to the descriptor's delegate address.
func (g *Grants) Create(owner common.Address, desc GrantDescriptor, sig []byte) error {
	if owner == (common.Address{}) || desc.Delegate == (common.Address{}) {
		return ErrZeroAddress
	}
	if desc.Threshold < MinThreshold || desc.Threshold > MaxThreshold {
		return fmt.Errorf("%w: %d", ErrInvalidThreshold, desc.Threshold)
	}
	if !g.relay.IsRegisteredDelegate(desc.Delegate) {
		return fmt.Errorf("%w: %s", ErrUnknownDelegate, desc.Delegate.Hex())
	}

	digest := GrantDigest(owner, desc)
	recovered, err := RecoverSigner(digest, sig)
	if err != nil {
		return err
	}
	if recovered != desc.Delegate {
		return fmt.Errorf("%w: got %s, want %s", ErrSignerMismatch, recovered.Hex(), desc.Delegate.Hex())
	}

	g.grants[owner] = &DelegationGrant{
		Owner:     owner,
		Delegate:  desc.Delegate,
		PublicKey: desc.PublicKey,
		Threshold: desc.Threshold,
		Active:    true,
		CreatedAt: g.now(),
	}
	return nil
}

// SetActive toggles a grant. Only the owner or the admin may do this; a
// deactivated grant blocks delegated operations but survives for
// reactivation.
func (g *Grants) SetActive(caller, owner common.Address, active bool) error {
	if caller != owner && caller != g.admin {
		return ErrNotGrantAdmin
	}
	grant, ok := g.grants[owner]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoGrant, owner.Hex())
	}
	grant.Active = active
	return nil
}

// Get returns a copy of the owner's grant.
func (g *Grants) Get(owner common.Address) (DelegationGrant, error) {
	grant, ok := g.grants[owner]
	if !ok {
		return DelegationGrant{}, fmt.Errorf("%w: %s", ErrNoGrant, owner.Hex())
	}
	return *grant, nil
}

// ActiveDelegate returns the owner's delegate address if the grant is
// active.
func (g *Grants) ActiveDelegate(owner common.Address) (common.Address, bool) {
	grant, ok := g.grants[owner]
	if !ok || !grant.Active {
		return common.Address{}, false
	}
	return grant.Delegate, true
}

// VerifySignature checks sig over digest against the owner's active
// delegate, through the relay.
func (g *Grants) VerifySignature(owner common.Address, digest common.Hash, sig []byte) error {
	grant, ok := g.grants[owner]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoGrant, owner.Hex())
	}
	if !grant.Active {
		return fmt.Errorf("%w: %s", ErrGrantInactive, owner.Hex())
	}
	return g.relay.VerifyDelegateSignature(grant.Delegate, digest, sig)
}
