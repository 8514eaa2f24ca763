package crosschain

import (
	"crypto/ecdsa"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GuardX-protocol/guardx-engine/internal/authz"
	"github.com/GuardX-protocol/guardx-engine/internal/ledger"
)

const (
	chainLocal  uint64 = 1
	chainRemote uint64 = 137
	chainThird  uint64 = 42161
)

var (
	owner = common.HexToAddress("0x1111111111111111111111111111111111111111")
	admin = common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	t0    = time.Unix(1_700_000_000, 0)
)

type xenv struct {
	chains  *ChainSet
	channel *Channel
	ledger  *ledger.AssetLedger
	grants  *authz.Grants
	locks   *LockManager
	key     *ecdsa.PrivateKey
	clock   *time.Time
	sol     ledger.AssetID
}

func newXEnv(t *testing.T) *xenv {
	t.Helper()

	chains := NewChainSet()
	chains.Add(chainLocal, "ethereum")
	chains.Add(chainRemote, "polygon")
	chains.Add(chainThird, "arbitrum")

	now := t0
	clock := &now
	tick := func() time.Time { return now }

	channel := NewChannel(chainLocal, chains)
	channel.SetClock(tick)

	reg := ledger.DefaultRegistry()
	al := ledger.NewAssetLedger(reg)

	relay := authz.NewRelay()
	grants := authz.NewGrants(relay, admin)
	grants.SetClock(tick)

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	delegate := crypto.PubkeyToAddress(key.PublicKey)
	pubkey := crypto.FromECDSAPub(&key.PublicKey)
	require.NoError(t, relay.RegisterDelegate(delegate, pubkey))

	desc := authz.GrantDescriptor{Delegate: delegate, PublicKey: pubkey, Threshold: 1, Timestamp: t0}
	sig, err := crypto.Sign(authz.GrantDigest(owner, desc).Bytes(), key)
	require.NoError(t, err)
	require.NoError(t, grants.Create(owner, desc, sig))

	locks := NewLockManager(al, grants, channel)
	locks.SetClock(tick)

	sol, _ := reg.Lookup("SOL")

	return &xenv{
		chains:  chains,
		channel: channel,
		ledger:  al,
		grants:  grants,
		locks:   locks,
		key:     key,
		clock:   clock,
		sol:     sol.ID,
	}
}

func (e *xenv) sign(t *testing.T, digest common.Hash) []byte {
	t.Helper()
	sig, err := crypto.Sign(digest.Bytes(), e.key)
	require.NoError(t, err)
	return sig
}

// ----------------------------------------------------------------------------
// Channel
// ----------------------------------------------------------------------------

func TestChannel_NoncesAreMonotonicPerTarget(t *testing.T) {
	e := newXEnv(t)

	m1, err := e.channel.Send(chainRemote, KindCoordination, []byte("a"))
	require.NoError(t, err)
	m2, err := e.channel.Send(chainRemote, KindCoordination, []byte("b"))
	require.NoError(t, err)
	m3, err := e.channel.Send(chainThird, KindCoordination, []byte("c"))
	require.NoError(t, err)

	assert.Equal(t, uint64(1), m1.Nonce)
	assert.Equal(t, uint64(2), m2.Nonce)
	assert.Equal(t, uint64(1), m3.Nonce, "nonces are per-target")
	assert.NotEqual(t, m1.Hash, m2.Hash)
}

func TestChannel_SendValidation(t *testing.T) {
	e := newXEnv(t)

	_, err := e.channel.Send(999, KindCoordination, []byte("x"))
	assert.ErrorIs(t, err, ErrUnsupportedChain)

	require.NoError(t, e.chains.SetPaused(chainRemote, true))
	_, err = e.channel.Send(chainRemote, KindCoordination, []byte("x"))
	assert.ErrorIs(t, err, ErrChainPaused)

	require.NoError(t, e.chains.SetPaused(chainRemote, false))
	_, err = e.channel.Send(chainRemote, KindCoordination, nil)
	assert.ErrorIs(t, err, ErrEmptyPayload)
}

func TestChannel_ReplayIsRejectedWithoutStateChange(t *testing.T) {
	e := newXEnv(t)
	remote := NewChannel(chainRemote, e.chains)
	remote.SetClock(func() time.Time { return *e.clock })

	msg, err := e.channel.Send(chainRemote, KindCoordination, []byte("execute"))
	require.NoError(t, err)

	first := remote.Receive(msg)
	require.True(t, first.Accepted)

	second := remote.Receive(msg)
	assert.False(t, second.Accepted)
	assert.Contains(t, second.Reason, "already consumed")
	assert.Equal(t, int64(1), remote.ReplaysRejected())

	// Replay rejection is permanent, even past the validity window.
	*e.clock = t0.Add(2 * time.Hour)
	third := remote.Receive(msg)
	assert.False(t, third.Accepted)
	assert.Contains(t, third.Reason, "already consumed")
}

func TestChannel_ValidityWindow(t *testing.T) {
	e := newXEnv(t)
	remote := NewChannel(chainRemote, e.chains)
	remote.SetClock(func() time.Time { return *e.clock })

	msg, err := e.channel.Send(chainRemote, KindMigration, []byte("m"))
	require.NoError(t, err)

	*e.clock = t0.Add(MessageValidity + time.Second)
	r := remote.Receive(msg)
	assert.False(t, r.Accepted)
	assert.Contains(t, r.Reason, "validity window")
	assert.Equal(t, int64(1), remote.StaleRejected())

	// A stale rejection does not consume the hash, but the window has
	// passed, so it can never be accepted either.
	assert.False(t, remote.Receive(msg).Accepted)
}

func TestChannel_WrongTargetAndTamperedContent(t *testing.T) {
	e := newXEnv(t)
	remote := NewChannel(chainRemote, e.chains)

	msg, err := e.channel.Send(chainThird, KindCoordination, []byte("x"))
	require.NoError(t, err)

	r := remote.Receive(msg)
	assert.False(t, r.Accepted, "message for another chain must be refused")

	msg2, err := e.channel.Send(chainRemote, KindCoordination, []byte("y"))
	require.NoError(t, err)
	msg2.Payload = []byte("tampered")
	r = remote.Receive(msg2)
	assert.False(t, r.Accepted)
	assert.Contains(t, r.Reason, "hash")
}

// ----------------------------------------------------------------------------
// Locks
// ----------------------------------------------------------------------------

func TestLock_MovesCustodyToReserve(t *testing.T) {
	e := newXEnv(t)
	_, err := e.ledger.Deposit(owner, e.sol, 10_00000000, "dep", t0)
	require.NoError(t, err)

	hash, err := e.locks.Lock(owner, e.sol, 4_00000000, chainRemote)
	require.NoError(t, err)

	assert.Equal(t, int64(6_00000000), e.ledger.Balance(owner, e.sol))
	assert.Equal(t, int64(4_00000000), e.ledger.Tracker().ChainReserve(owner, e.sol))

	lock, ok := e.locks.GetLock(hash)
	require.True(t, ok)
	assert.Equal(t, t0.Add(LockTimeout), lock.ExpiresAt)
	assert.False(t, lock.Released)
}

func TestLock_InsufficientCustodyFails(t *testing.T) {
	e := newXEnv(t)
	_, err := e.ledger.Deposit(owner, e.sol, 1_00000000, "dep", t0)
	require.NoError(t, err)

	_, err = e.locks.Lock(owner, e.sol, 2_00000000, chainRemote)
	assert.Error(t, err)
	assert.Equal(t, int64(1_00000000), e.ledger.Balance(owner, e.sol), "failed lock leaves custody untouched")
}

func TestUnlock_ExpiryBoundary(t *testing.T) {
	e := newXEnv(t)
	_, err := e.ledger.Deposit(owner, e.sol, 10_00000000, "dep", t0)
	require.NoError(t, err)

	t.Run("3599s after lock succeeds", func(t *testing.T) {
		hash, err := e.locks.Lock(owner, e.sol, 1_00000000, chainRemote)
		require.NoError(t, err)

		*e.clock = t0.Add(3599 * time.Second)
		sig := e.sign(t, UnlockDigest(owner, hash, *e.clock))
		require.NoError(t, e.locks.Unlock(owner, hash, sig, *e.clock))
		assert.Equal(t, int64(10_00000000), e.ledger.Balance(owner, e.sol))
	})

	t.Run("3601s after lock fails", func(t *testing.T) {
		*e.clock = t0
		hash, err := e.locks.Lock(owner, e.sol, 1_00000000, chainRemote)
		require.NoError(t, err)

		*e.clock = t0.Add(3601 * time.Second)
		sig := e.sign(t, UnlockDigest(owner, hash, *e.clock))
		err = e.locks.Unlock(owner, hash, sig, *e.clock)
		assert.ErrorIs(t, err, ErrLockExpired)
		assert.Equal(t, int64(1_00000000), e.ledger.Tracker().ChainReserve(owner, e.sol), "expired lock keeps the reserve")
	})
}

func TestUnlock_SignatureAndOwnerChecks(t *testing.T) {
	e := newXEnv(t)
	_, err := e.ledger.Deposit(owner, e.sol, 5_00000000, "dep", t0)
	require.NoError(t, err)

	hash, err := e.locks.Lock(owner, e.sol, 5_00000000, chainRemote)
	require.NoError(t, err)

	t.Run("wrong owner", func(t *testing.T) {
		other := common.HexToAddress("0x2222222222222222222222222222222222222222")
		sig := e.sign(t, UnlockDigest(other, hash, t0))
		assert.ErrorIs(t, e.locks.Unlock(other, hash, sig, t0), ErrLockOwnerMismatch)
	})

	t.Run("signature from a stranger key", func(t *testing.T) {
		stranger, err := crypto.GenerateKey()
		require.NoError(t, err)
		sig, err := crypto.Sign(UnlockDigest(owner, hash, t0).Bytes(), stranger)
		require.NoError(t, err)
		assert.ErrorIs(t, e.locks.Unlock(owner, hash, sig, t0), authz.ErrSignerMismatch)
	})

	t.Run("double unlock", func(t *testing.T) {
		sig := e.sign(t, UnlockDigest(owner, hash, t0))
		require.NoError(t, e.locks.Unlock(owner, hash, sig, t0))
		assert.ErrorIs(t, e.locks.Unlock(owner, hash, sig, t0), ErrLockReleased)
	})
}

// ----------------------------------------------------------------------------
// Migration
// ----------------------------------------------------------------------------

func TestMigrate_LockPlusMessage(t *testing.T) {
	e := newXEnv(t)
	_, err := e.ledger.Deposit(owner, e.sol, 8_00000000, "dep", t0)
	require.NoError(t, err)

	hash, msg, err := e.locks.Migrate(owner, e.sol, 8_00000000, chainRemote)
	require.NoError(t, err)

	assert.Equal(t, KindMigration, msg.Kind)
	assert.Equal(t, chainRemote, msg.TargetChain)
	assert.Equal(t, hash.Bytes(), msg.Payload)

	mig, ok := e.locks.GetMigration(hash)
	require.True(t, ok)
	assert.Equal(t, t0.Add(MigrationTimeout), mig.ExpiresAt)
	assert.False(t, mig.Completed)
}

func TestCompleteMigration_ConsumesReserve(t *testing.T) {
	e := newXEnv(t)
	_, err := e.ledger.Deposit(owner, e.sol, 8_00000000, "dep", t0)
	require.NoError(t, err)

	hash, _, err := e.locks.Migrate(owner, e.sol, 8_00000000, chainRemote)
	require.NoError(t, err)

	*e.clock = t0.Add(time.Hour)
	sig := e.sign(t, CompleteDigest(owner, hash, *e.clock))
	require.NoError(t, e.locks.CompleteMigration(hash, sig, *e.clock))

	assert.Equal(t, int64(0), e.ledger.Tracker().ChainReserve(owner, e.sol))
	assert.Equal(t, int64(0), e.ledger.Balance(owner, e.sol))

	mig, _ := e.locks.GetMigration(hash)
	assert.True(t, mig.Completed)

	t.Run("second completion fails", func(t *testing.T) {
		assert.ErrorIs(t, e.locks.CompleteMigration(hash, sig, *e.clock), ErrMigrationDone)
	})
}

func TestCompleteMigration_WindowElapsed(t *testing.T) {
	e := newXEnv(t)
	_, err := e.ledger.Deposit(owner, e.sol, 8_00000000, "dep", t0)
	require.NoError(t, err)

	hash, _, err := e.locks.Migrate(owner, e.sol, 8_00000000, chainRemote)
	require.NoError(t, err)

	*e.clock = t0.Add(MigrationTimeout + time.Second)
	sig := e.sign(t, CompleteDigest(owner, hash, *e.clock))
	assert.ErrorIs(t, e.locks.CompleteMigration(hash, sig, *e.clock), ErrMigrationExpired)
}

// ----------------------------------------------------------------------------
// Coordination
// ----------------------------------------------------------------------------

func TestCoordination_FanOutAndTerminal(t *testing.T) {
	e := newXEnv(t)
	co := NewCoordinator(e.channel, e.grants)
	co.SetClock(func() time.Time { return *e.clock })

	chains := []uint64{chainRemote, chainThird}
	scripts := []string{"guard-polygon", "guard-arbitrum"}

	hash, messages, err := co.Initiate(owner, chains, scripts)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, chainRemote, messages[0].TargetChain)
	assert.Equal(t, chainThird, messages[1].TargetChain)

	*e.clock = t0.Add(10 * time.Minute)
	sig := e.sign(t, ExecutionDigest(owner, hash, chainRemote, "guard-polygon", *e.clock))
	require.NoError(t, co.ExecuteOnChain(hash, chainRemote, sig, *e.clock))

	coord, ok := co.Get(hash)
	require.True(t, ok)
	assert.Equal(t, 1, coord.ExecutedCount)
	assert.False(t, coord.Terminal)

	t.Run("same chain cannot report twice", func(t *testing.T) {
		err := co.ExecuteOnChain(hash, chainRemote, sig, *e.clock)
		assert.ErrorIs(t, err, ErrChainAlreadyReported)
	})

	t.Run("untargeted chain is rejected", func(t *testing.T) {
		sig := e.sign(t, ExecutionDigest(owner, hash, chainLocal, "x", *e.clock))
		err := co.ExecuteOnChain(hash, chainLocal, sig, *e.clock)
		assert.ErrorIs(t, err, ErrChainNotTargeted)
	})

	sig = e.sign(t, ExecutionDigest(owner, hash, chainThird, "guard-arbitrum", *e.clock))
	require.NoError(t, co.ExecuteOnChain(hash, chainThird, sig, *e.clock))

	coord, _ = co.Get(hash)
	assert.True(t, coord.Terminal, "terminal once all targets report")
}

func TestCoordination_WindowAndValidation(t *testing.T) {
	e := newXEnv(t)
	co := NewCoordinator(e.channel, e.grants)
	co.SetClock(func() time.Time { return *e.clock })

	t.Run("array length mismatch", func(t *testing.T) {
		_, _, err := co.Initiate(owner, []uint64{chainRemote}, []string{"a", "b"})
		assert.ErrorIs(t, err, ErrArrayLengthMismatch)
	})

	t.Run("too many chains", func(t *testing.T) {
		chains := make([]uint64, MaxCoordinationChains+1)
		scripts := make([]string, MaxCoordinationChains+1)
		_, _, err := co.Initiate(owner, chains, scripts)
		assert.ErrorIs(t, err, ErrTooManyChains)
	})

	t.Run("paused chain blocks initiation", func(t *testing.T) {
		require.NoError(t, e.chains.SetPaused(chainThird, true))
		_, _, err := co.Initiate(owner, []uint64{chainRemote, chainThird}, []string{"a", "b"})
		assert.ErrorIs(t, err, ErrChainPaused)
		require.NoError(t, e.chains.SetPaused(chainThird, false))
	})

	t.Run("report outside the 30m window", func(t *testing.T) {
		hash, _, err := co.Initiate(owner, []uint64{chainRemote}, []string{"guard"})
		require.NoError(t, err)

		*e.clock = t0.Add(CoordinationWindow + time.Second)
		sig := e.sign(t, ExecutionDigest(owner, hash, chainRemote, "guard", *e.clock))
		assert.ErrorIs(t, co.ExecuteOnChain(hash, chainRemote, sig, *e.clock), ErrCoordinationExpired)
	})
}

// ----------------------------------------------------------------------------
// Governance
// ----------------------------------------------------------------------------

func TestGovernance_QuorumLifecycle(t *testing.T) {
	e := newXEnv(t)
	gov := NewGovernance(e.channel, 2)
	now := t0
	gov.SetClock(func() time.Time { return now })

	m1 := common.HexToAddress("0x0000000000000000000000000000000000000101")
	m2 := common.HexToAddress("0x0000000000000000000000000000000000000102")
	m3 := common.HexToAddress("0x0000000000000000000000000000000000000103")
	for _, m := range []common.Address{m1, m2, m3} {
		require.NoError(t, gov.AddMember(m))
	}

	t.Run("non-member cannot propose", func(t *testing.T) {
		_, err := gov.Propose(owner, "pause polygon", []uint64{chainRemote}, [][]byte{[]byte("p")})
		assert.ErrorIs(t, err, ErrNotMember)
	})

	id, err := gov.Propose(m1, "pause polygon", []uint64{chainRemote}, [][]byte{[]byte("p")})
	require.NoError(t, err)

	require.NoError(t, gov.Vote(m1, id, true))
	require.NoError(t, gov.Vote(m2, id, true))
	require.NoError(t, gov.Vote(m3, id, false))

	t.Run("double vote rejected", func(t *testing.T) {
		assert.ErrorIs(t, gov.Vote(m1, id, true), ErrAlreadyVoted)
	})

	t.Run("execution before deadline rejected", func(t *testing.T) {
		_, err := gov.Execute(m1, id)
		assert.ErrorIs(t, err, ErrVotingOpen)
	})

	now = t0.Add(VotingPeriod + time.Hour)

	t.Run("vote after deadline rejected", func(t *testing.T) {
		assert.ErrorIs(t, gov.Vote(m2, id, true), ErrVotingClosed)
	})

	messages, err := gov.Execute(m1, id)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, KindGovernance, messages[0].Kind)

	p, ok := gov.Get(id)
	require.True(t, ok)
	assert.Equal(t, ProposalExecuted, p.State)

	t.Run("second execution rejected", func(t *testing.T) {
		_, err := gov.Execute(m1, id)
		assert.ErrorIs(t, err, ErrProposalSettled)
	})
}

func TestGovernance_TallyRules(t *testing.T) {
	e := newXEnv(t)
	gov := NewGovernance(e.channel, 2)
	now := t0
	gov.SetClock(func() time.Time { return now })

	members := []common.Address{
		common.HexToAddress("0x0000000000000000000000000000000000000201"),
		common.HexToAddress("0x0000000000000000000000000000000000000202"),
		common.HexToAddress("0x0000000000000000000000000000000000000203"),
		common.HexToAddress("0x0000000000000000000000000000000000000204"),
	}
	for _, m := range members {
		require.NoError(t, gov.AddMember(m))
	}

	t.Run("threshold met but tied tally fails", func(t *testing.T) {
		id, err := gov.Propose(members[0], "tied", []uint64{chainRemote}, [][]byte{[]byte("p")})
		require.NoError(t, err)
		require.NoError(t, gov.Vote(members[0], id, true))
		require.NoError(t, gov.Vote(members[1], id, true))
		require.NoError(t, gov.Vote(members[2], id, false))
		require.NoError(t, gov.Vote(members[3], id, false))

		now = now.Add(VotingPeriod + time.Hour)
		_, err = gov.Execute(members[0], id)
		assert.ErrorIs(t, err, ErrProposalNotPassed)

		p, _ := gov.Get(id)
		assert.Equal(t, ProposalRejected, p.State)
	})

	t.Run("majority below threshold fails", func(t *testing.T) {
		id, err := gov.Propose(members[0], "thin", []uint64{chainRemote}, [][]byte{[]byte("p")})
		require.NoError(t, err)
		require.NoError(t, gov.Vote(members[0], id, true))

		now = now.Add(VotingPeriod + time.Hour)
		_, err = gov.Execute(members[0], id)
		assert.ErrorIs(t, err, ErrProposalNotPassed)
	})
}

func TestGovernance_ProposeRejectsEmptyPayload(t *testing.T) {
	e := newXEnv(t)
	gov := NewGovernance(e.channel, 1)
	gov.SetClock(func() time.Time { return t0 })

	m := common.HexToAddress("0x0000000000000000000000000000000000000301")
	require.NoError(t, gov.AddMember(m))

	_, err := gov.Propose(m, "bad", []uint64{chainRemote, chainThird}, [][]byte{[]byte("p"), nil})
	assert.ErrorIs(t, err, ErrEmptyPayload)
}

func TestGovernance_ExecuteConsumesNoNonceOnUnsendableTarget(t *testing.T) {
	e := newXEnv(t)
	gov := NewGovernance(e.channel, 1)
	now := t0
	gov.SetClock(func() time.Time { return now })

	m := common.HexToAddress("0x0000000000000000000000000000000000000302")
	require.NoError(t, gov.AddMember(m))

	id, err := gov.Propose(m, "fan-out", []uint64{chainRemote, chainThird}, [][]byte{[]byte("a"), []byte("b")})
	require.NoError(t, err)
	require.NoError(t, gov.Vote(m, id, true))

	now = t0.Add(VotingPeriod + time.Hour)

	// The second target is paused: execution must fail before any message
	// leaves for the first target.
	require.NoError(t, e.chains.SetPaused(chainThird, true))
	_, err = gov.Execute(m, id)
	assert.ErrorIs(t, err, ErrChainPaused)
	assert.Zero(t, e.channel.OutboundNonce(chainRemote), "nonce consumed for a half-executed proposal")

	p, ok := gov.Get(id)
	require.True(t, ok)
	assert.Equal(t, ProposalPending, p.State, "proposal must stay retryable")

	// Unpause and retry: exactly one message per target, no duplicates.
	require.NoError(t, e.chains.SetPaused(chainThird, false))
	messages, err := gov.Execute(m, id)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, uint64(1), e.channel.OutboundNonce(chainRemote))
	assert.Equal(t, uint64(1), e.channel.OutboundNonce(chainThird))
}
