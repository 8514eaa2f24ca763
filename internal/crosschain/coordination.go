package crosschain

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/GuardX-protocol/guardx-engine/internal/authz"
)

const (
	// CoordinationWindow bounds per-chain execution reports after
	// initiation.
	CoordinationWindow = 30 * time.Minute

	// MaxCoordinationChains caps the fan-out of one coordination.
	MaxCoordinationChains = 5
)

var (
	ErrCoordinationNotFound = errors.New("coordination not found")
	ErrCoordinationExpired  = errors.New("coordination window elapsed")
	ErrChainNotTargeted     = errors.New("chain not in coordination target list")
	ErrChainAlreadyReported = errors.New("chain already executed")
	ErrArrayLengthMismatch  = errors.New("chain and script arrays differ in length")
	ErrTooManyChains        = errors.New("too many target chains")
	ErrNoChains             = errors.New("no target chains")
)

// Coordination tracks one multi-chain emergency fan-out. It becomes
// terminal when every targeted chain has reported execution; an expired
// but incomplete coordination is left stale.
type Coordination struct {
	Hash          common.Hash
	Owner         common.Address
	ChainIDs      []uint64
	ScriptIDs     []string
	ExecutedCount int
	InitiatedAt   time.Time
	Terminal      bool

	executed map[uint64]bool
}

// ScriptFor returns the script assigned to chainID in this coordination.
func (c *Coordination) ScriptFor(chainID uint64) (string, bool) {
	for i, id := range c.ChainIDs {
		if id == chainID {
			return c.ScriptIDs[i], true
		}
	}
	return "", false
}

// Executed reports whether chainID has already reported in.
func (c *Coordination) Executed(chainID uint64) bool { return c.executed[chainID] }

// Coordinator fans one emergency decision out to multiple chains and
// collects signed per-chain execution reports.
type Coordinator struct {
	channel *Channel
	grants  *authz.Grants

	coordinations map[common.Hash]*Coordination
	nonce         uint64

	now func() time.Time
}

func NewCoordinator(channel *Channel, grants *authz.Grants) *Coordinator {
	return &Coordinator{
		channel:       channel,
		grants:        grants,
		coordinations: make(map[common.Hash]*Coordination),
		now:           time.Now,
	}
}

// SetClock overrides the wall clock (tests).
func (co *Coordinator) SetClock(now func() time.Time) { co.now = now }

// Initiate starts a coordination across the given chains, pairing each
// chain with its automation script, and sends one outbound message per
// chain. All chains must be supported and unpaused up front.
func (co *Coordinator) Initiate(owner common.Address, chainIDs []uint64, scriptIDs []string) (common.Hash, []Message, error) {
	if len(chainIDs) == 0 {
		return common.Hash{}, nil, ErrNoChains
	}
	if len(chainIDs) > MaxCoordinationChains {
		return common.Hash{}, nil, fmt.Errorf("%w: %d > %d", ErrTooManyChains, len(chainIDs), MaxCoordinationChains)
	}
	if len(chainIDs) != len(scriptIDs) {
		return common.Hash{}, nil, fmt.Errorf("%w: %d chains, %d scripts", ErrArrayLengthMismatch, len(chainIDs), len(scriptIDs))
	}
	for _, id := range chainIDs {
		if !co.channel.chains.IsSupported(id) {
			return common.Hash{}, nil, fmt.Errorf("%w: %d", ErrUnsupportedChain, id)
		}
		if co.channel.chains.IsPaused(id) {
			return common.Hash{}, nil, fmt.Errorf("%w: %s", ErrChainPaused, co.channel.chains.Name(id))
		}
	}

	now := co.now()
	co.nonce++
	hash := coordinationHash(owner, chainIDs, scriptIDs, now, co.nonce)

	messages := make([]Message, 0, len(chainIDs))
	for i, chainID := range chainIDs {
		msg, err := co.channel.Send(chainID, KindCoordination, append(hash.Bytes(), []byte(scriptIDs[i])...))
		if err != nil {
			return common.Hash{}, nil, err
		}
		messages = append(messages, msg)
	}

	co.coordinations[hash] = &Coordination{
		Hash:        hash,
		Owner:       owner,
		ChainIDs:    append([]uint64(nil), chainIDs...),
		ScriptIDs:   append([]string(nil), scriptIDs...),
		InitiatedAt: now,
		executed:    make(map[uint64]bool),
	}
	return hash, messages, nil
}

// ExecutionDigest is the digest a delegate signs to report one chain's
// execution: keccak256(owner ‖ hash ‖ chainID ‖ scriptID ‖ unixSeconds).
func ExecutionDigest(owner common.Address, hash common.Hash, chainID uint64, scriptID string, signedAt time.Time) common.Hash {
	var buf [16]byte
	binary.BigEndian.PutUint64(buf[0:8], chainID)
	binary.BigEndian.PutUint64(buf[8:16], uint64(signedAt.Unix()))
	return crypto.Keccak256Hash(owner.Bytes(), hash.Bytes(), buf[:8], []byte(scriptID), buf[8:16])
}

// ExecuteOnChain records a signed per-chain execution report. Every
// chain may report once; the coordination turns terminal when the last
// targeted chain reports.
func (co *Coordinator) ExecuteOnChain(hash common.Hash, chainID uint64, sig []byte, signedAt time.Time) error {
	coord, ok := co.coordinations[hash]
	if !ok {
		return fmt.Errorf("%w: %s", ErrCoordinationNotFound, hash.Hex())
	}

	scriptID, targeted := coord.ScriptFor(chainID)
	if !targeted {
		return fmt.Errorf("%w: %d", ErrChainNotTargeted, chainID)
	}
	if coord.executed[chainID] {
		return fmt.Errorf("%w: %d", ErrChainAlreadyReported, chainID)
	}

	now := co.now()
	if now.Sub(coord.InitiatedAt) > CoordinationWindow {
		return fmt.Errorf("%w: initiated %s", ErrCoordinationExpired, coord.InitiatedAt.Format(time.RFC3339))
	}

	digest := ExecutionDigest(coord.Owner, hash, chainID, scriptID, signedAt)
	if err := co.grants.VerifySignature(coord.Owner, digest, sig); err != nil {
		return err
	}

	coord.executed[chainID] = true
	coord.ExecutedCount++
	if coord.ExecutedCount == len(coord.ChainIDs) {
		coord.Terminal = true
	}
	return nil
}

// Get returns a copy of the coordination for hash.
func (co *Coordinator) Get(hash common.Hash) (Coordination, bool) {
	coord, ok := co.coordinations[hash]
	if !ok {
		return Coordination{}, false
	}
	cp := *coord
	cp.executed = make(map[uint64]bool, len(coord.executed))
	for k, v := range coord.executed {
		cp.executed[k] = v
	}
	return cp, true
}

func coordinationHash(owner common.Address, chainIDs []uint64, scriptIDs []string, ts time.Time, nonce uint64) common.Hash {
	buf := make([]byte, 0, 8*len(chainIDs)+16)
	var scratch [8]byte
	for _, id := range chainIDs {
		binary.BigEndian.PutUint64(scratch[:], id)
		buf = append(buf, scratch[:]...)
	}
	binary.BigEndian.PutUint64(scratch[:], uint64(ts.Unix()))
	buf = append(buf, scratch[:]...)
	binary.BigEndian.PutUint64(scratch[:], nonce)
	buf = append(buf, scratch[:]...)

	parts := [][]byte{owner.Bytes(), buf}
	for _, s := range scriptIDs {
		parts = append(parts, []byte(s))
	}
	return crypto.Keccak256Hash(parts...)
}
