package authz

import (
	"crypto/ecdsa"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	owner = common.HexToAddress("0x1111111111111111111111111111111111111111")
	admin = common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	t0    = time.Unix(1_700_000_000, 0)
)

// newDelegate generates a signing key and returns its key, address and
// uncompressed public key bytes.
func newDelegate(t *testing.T) (*ecdsa.PrivateKey, common.Address, []byte) {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return key, crypto.PubkeyToAddress(key.PublicKey), crypto.FromECDSAPub(&key.PublicKey)
}

func sign(t *testing.T, key *ecdsa.PrivateKey, digest common.Hash) []byte {
	t.Helper()
	sig, err := crypto.Sign(digest.Bytes(), key)
	require.NoError(t, err)
	return sig
}

func TestRelay_DelegateRegistration(t *testing.T) {
	r := NewRelay()
	key, addr, pubkey := newDelegate(t)

	t.Run("rejects zero address", func(t *testing.T) {
		err := r.RegisterDelegate(common.Address{}, pubkey)
		assert.ErrorIs(t, err, ErrZeroAddress)
	})

	t.Run("rejects malformed pubkey", func(t *testing.T) {
		err := r.RegisterDelegate(addr, []byte{0x04, 0x01})
		assert.ErrorIs(t, err, ErrInvalidPubkey)
	})

	t.Run("registers and verifies", func(t *testing.T) {
		require.NoError(t, r.RegisterDelegate(addr, pubkey))
		assert.True(t, r.IsRegisteredDelegate(addr))

		digest := crypto.Keccak256Hash([]byte("payload"))
		sig := sign(t, key, digest)
		assert.NoError(t, r.VerifyDelegateSignature(addr, digest, sig))
	})

	t.Run("accepts 27/28 recovery id", func(t *testing.T) {
		digest := crypto.Keccak256Hash([]byte("payload"))
		sig := sign(t, key, digest)
		sig[64] += 27
		assert.NoError(t, r.VerifyDelegateSignature(addr, digest, sig))
	})

	t.Run("rejects signature from another key", func(t *testing.T) {
		other, _, _ := newDelegate(t)
		digest := crypto.Keccak256Hash([]byte("payload"))
		sig := sign(t, other, digest)
		assert.ErrorIs(t, r.VerifyDelegateSignature(addr, digest, sig), ErrSignerMismatch)
	})

	t.Run("rejects unregistered delegate", func(t *testing.T) {
		_, stranger, _ := newDelegate(t)
		digest := crypto.Keccak256Hash([]byte("payload"))
		err := r.VerifyDelegateSignature(stranger, digest, sign(t, key, digest))
		assert.ErrorIs(t, err, ErrUnknownDelegate)
	})
}

func TestGrants_TwoPhaseTrust(t *testing.T) {
	r := NewRelay()
	g := NewGrants(r, admin)
	g.SetClock(func() time.Time { return t0 })

	key, delegate, pubkey := newDelegate(t)
	desc := GrantDescriptor{
		Delegate:  delegate,
		PublicKey: pubkey,
		Threshold: 1,
		Timestamp: t0,
	}
	sig := sign(t, key, GrantDigest(owner, desc))

	t.Run("rejects grant before relay registration", func(t *testing.T) {
		err := g.Create(owner, desc, sig)
		assert.ErrorIs(t, err, ErrUnknownDelegate)
	})

	require.NoError(t, r.RegisterDelegate(delegate, pubkey))

	t.Run("accepts grant after registration", func(t *testing.T) {
		require.NoError(t, g.Create(owner, desc, sig))

		grant, err := g.Get(owner)
		require.NoError(t, err)
		assert.Equal(t, delegate, grant.Delegate)
		assert.True(t, grant.Active)
	})

	t.Run("rejects signature from non-delegate", func(t *testing.T) {
		intruder, _, _ := newDelegate(t)
		badSig := sign(t, intruder, GrantDigest(owner, desc))
		assert.ErrorIs(t, g.Create(owner, desc, badSig), ErrSignerMismatch)
	})

	t.Run("rejects out-of-range threshold", func(t *testing.T) {
		bad := desc
		bad.Threshold = 17
		err := g.Create(owner, bad, sign(t, key, GrantDigest(owner, bad)))
		assert.ErrorIs(t, err, ErrInvalidThreshold)

		bad.Threshold = 0
		err = g.Create(owner, bad, sign(t, key, GrantDigest(owner, bad)))
		assert.ErrorIs(t, err, ErrInvalidThreshold)
	})

	t.Run("replaces prior grant", func(t *testing.T) {
		key2, delegate2, pubkey2 := newDelegate(t)
		require.NoError(t, r.RegisterDelegate(delegate2, pubkey2))

		desc2 := GrantDescriptor{Delegate: delegate2, PublicKey: pubkey2, Threshold: 3, Timestamp: t0}
		require.NoError(t, g.Create(owner, desc2, sign(t, key2, GrantDigest(owner, desc2))))

		active, ok := g.ActiveDelegate(owner)
		require.True(t, ok)
		assert.Equal(t, delegate2, active)
	})
}

func TestGrants_Deactivation(t *testing.T) {
	r := NewRelay()
	g := NewGrants(r, admin)

	key, delegate, pubkey := newDelegate(t)
	require.NoError(t, r.RegisterDelegate(delegate, pubkey))

	desc := GrantDescriptor{Delegate: delegate, PublicKey: pubkey, Threshold: 1, Timestamp: t0}
	require.NoError(t, g.Create(owner, desc, sign(t, key, GrantDigest(owner, desc))))

	digest := crypto.Keccak256Hash([]byte("delegated op"))
	opSig := sign(t, key, digest)

	t.Run("stranger cannot toggle", func(t *testing.T) {
		stranger := common.HexToAddress("0x2222222222222222222222222222222222222222")
		assert.ErrorIs(t, g.SetActive(stranger, owner, false), ErrNotGrantAdmin)
	})

	t.Run("deactivation blocks verification but keeps the grant", func(t *testing.T) {
		require.NoError(t, g.SetActive(admin, owner, false))

		assert.ErrorIs(t, g.VerifySignature(owner, digest, opSig), ErrGrantInactive)
		_, ok := g.ActiveDelegate(owner)
		assert.False(t, ok)

		grant, err := g.Get(owner)
		require.NoError(t, err)
		assert.False(t, grant.Active)
	})

	t.Run("owner reactivates", func(t *testing.T) {
		require.NoError(t, g.SetActive(owner, owner, true))
		assert.NoError(t, g.VerifySignature(owner, digest, opSig))
	})
}

func TestAutomation_Gate(t *testing.T) {
	r := NewRelay()
	a := NewAutomation(r)
	require.NoError(t, r.RegisterScript("crash-guard-v1"))

	t.Run("unbound owner is unauthorized", func(t *testing.T) {
		assert.False(t, a.IsAuthorizedByAutomation(owner, "crash-guard-v1", nil))
	})

	t.Run("binding requires a registered script", func(t *testing.T) {
		err := a.BindScript(owner, "unknown-script")
		assert.ErrorIs(t, err, ErrUnknownScript)
	})

	t.Run("bound and active authorizes", func(t *testing.T) {
		require.NoError(t, a.BindScript(owner, "crash-guard-v1"))
		assert.True(t, a.IsAuthorizedByAutomation(owner, "crash-guard-v1", []byte("data")))
	})

	t.Run("different script id is unauthorized", func(t *testing.T) {
		assert.False(t, a.IsAuthorizedByAutomation(owner, "other-script", nil))
	})

	t.Run("relay deactivation blocks the gate", func(t *testing.T) {
		require.NoError(t, r.SetScriptActive("crash-guard-v1", false))
		assert.False(t, a.IsAuthorizedByAutomation(owner, "crash-guard-v1", nil))

		require.NoError(t, r.SetScriptActive("crash-guard-v1", true))
		assert.True(t, a.IsAuthorizedByAutomation(owner, "crash-guard-v1", nil))
	})

	t.Run("per-owner deauthorization", func(t *testing.T) {
		require.NoError(t, a.SetAuthorized(owner, false))
		assert.False(t, a.IsAuthorizedByAutomation(owner, "crash-guard-v1", nil))
	})

	t.Run("no relay configured skips the relay check", func(t *testing.T) {
		standalone := NewAutomation(nil)
		require.NoError(t, standalone.BindScript(owner, "anything"))
		assert.True(t, standalone.IsAuthorizedByAutomation(owner, "anything", nil))
	})
}

func TestConditionalStore_BoundedWithLazyExpiry(t *testing.T) {
	s := NewConditionalStore()
	now := t0
	s.SetClock(func() time.Time { return now })

	t.Run("rejects already-expired record", func(t *testing.T) {
		_, err := s.Add(owner, "block.timestamp > X", "cid:abc", t0.Add(-time.Second))
		assert.ErrorIs(t, err, ErrRecordExpired)
	})

	t.Run("caps live records at the limit", func(t *testing.T) {
		for i := 0; i < MaxConditionalRecords; i++ {
			_, err := s.Add(owner, "cond", "cid", t0.Add(time.Hour))
			require.NoError(t, err)
		}
		_, err := s.Add(owner, "cond", "cid", t0.Add(time.Hour))
		assert.ErrorIs(t, err, ErrRecordLimit)
		assert.Len(t, s.List(owner), MaxConditionalRecords)
	})

	t.Run("expiry frees capacity", func(t *testing.T) {
		now = t0.Add(2 * time.Hour)
		assert.Empty(t, s.List(owner))

		_, err := s.Add(owner, "cond", "cid", now.Add(time.Hour))
		assert.NoError(t, err)
	})
}
