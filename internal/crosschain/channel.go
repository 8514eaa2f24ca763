// Package crosschain coordinates protection actions across independent
// chains: a deduplicated message channel with per-target nonces, asset
// locks and migrations backed by the ledger's chain reserve, multi-chain
// emergency fan-out, and quorum governance.
//
// Each chain is an independent state machine; the channel is the only
// link between them. Nothing here is internally locked; ownership sits
// with the single-threaded protection core.
package crosschain

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// MessageValidity bounds how long a sent message may be consumed.
const MessageValidity = time.Hour

// MessageKind tags the payload of a cross-chain message.
type MessageKind string

const (
	KindMigration    MessageKind = "migration"
	KindCoordination MessageKind = "coordination"
	KindGovernance   MessageKind = "governance"
)

var (
	ErrUnsupportedChain = errors.New("chain not supported")
	ErrChainPaused      = errors.New("chain is paused")
	ErrEmptyPayload     = errors.New("empty payload")
)

// Message is one signed unit of cross-chain traffic. The hash covers the
// full content, so a replayed message carries the same hash and is
// rejected by the consumed set.
type Message struct {
	Hash        common.Hash `json:"hash"`
	SourceChain uint64      `json:"sourceChain"`
	TargetChain uint64      `json:"targetChain"`
	Nonce       uint64      `json:"nonce"`
	Kind        MessageKind `json:"kind"`
	Payload     []byte      `json:"payload"`
	SentAt      time.Time   `json:"sentAt"`
	ValidUntil  time.Time   `json:"validUntil"`
}

// Receipt is the structured outcome of Receive. A rejected delivery is
// not an error: replays and stale messages are expected traffic.
type Receipt struct {
	Accepted bool
	Reason   string
}

// ChainSet is the registry of known chains with a per-chain pause flag.
type ChainSet struct {
	chains map[uint64]*chainInfo
}

type chainInfo struct {
	name   string
	paused bool
}

func NewChainSet() *ChainSet {
	return &ChainSet{chains: make(map[uint64]*chainInfo)}
}

func (cs *ChainSet) Add(id uint64, name string) {
	cs.chains[id] = &chainInfo{name: name}
}

func (cs *ChainSet) SetPaused(id uint64, paused bool) error {
	info, ok := cs.chains[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnsupportedChain, id)
	}
	info.paused = paused
	return nil
}

func (cs *ChainSet) IsSupported(id uint64) bool {
	_, ok := cs.chains[id]
	return ok
}

func (cs *ChainSet) IsPaused(id uint64) bool {
	info, ok := cs.chains[id]
	return ok && info.paused
}

func (cs *ChainSet) Name(id uint64) string {
	if info, ok := cs.chains[id]; ok {
		return info.name
	}
	return fmt.Sprintf("chain-%d", id)
}

// Channel sends and receives cross-chain messages for one local chain.
// Outbound nonces are monotonic per target; inbound deliveries are
// deduplicated by content hash, and a consumed hash blocks forever.
type Channel struct {
	localChain uint64
	chains     *ChainSet

	outNonce map[uint64]uint64
	consumed map[common.Hash]struct{}

	replaysRejected int64
	staleRejected   int64

	now func() time.Time
}

func NewChannel(localChain uint64, chains *ChainSet) *Channel {
	return &Channel{
		localChain: localChain,
		chains:     chains,
		outNonce:   make(map[uint64]uint64),
		consumed:   make(map[common.Hash]struct{}),
		now:        time.Now,
	}
}

// SetClock overrides the wall clock (tests).
func (c *Channel) SetClock(now func() time.Time) { c.now = now }

func (c *Channel) LocalChain() uint64 { return c.localChain }

// Send builds the next outbound message for target, consuming a nonce.
func (c *Channel) Send(target uint64, kind MessageKind, payload []byte) (Message, error) {
	if !c.chains.IsSupported(target) {
		return Message{}, fmt.Errorf("%w: %d", ErrUnsupportedChain, target)
	}
	if c.chains.IsPaused(target) {
		return Message{}, fmt.Errorf("%w: %s", ErrChainPaused, c.chains.Name(target))
	}
	if len(payload) == 0 {
		return Message{}, ErrEmptyPayload
	}

	nonce := c.outNonce[target] + 1
	c.outNonce[target] = nonce

	sentAt := c.now()
	msg := Message{
		SourceChain: c.localChain,
		TargetChain: target,
		Nonce:       nonce,
		Kind:        kind,
		Payload:     payload,
		SentAt:      sentAt,
		ValidUntil:  sentAt.Add(MessageValidity),
	}
	msg.Hash = messageHash(msg)
	return msg, nil
}

// Receive consumes an inbound message. The second delivery of the same
// hash is a structured rejection with no state change, as is a message
// outside its validity window.
func (c *Channel) Receive(msg Message) Receipt {
	if msg.TargetChain != c.localChain {
		return Receipt{Reason: fmt.Sprintf("message for chain %d received on chain %d", msg.TargetChain, c.localChain)}
	}
	if messageHash(msg) != msg.Hash {
		return Receipt{Reason: "message hash does not match content"}
	}
	if _, seen := c.consumed[msg.Hash]; seen {
		c.replaysRejected++
		return Receipt{Reason: "message hash already consumed"}
	}
	if c.now().After(msg.ValidUntil) {
		c.staleRejected++
		return Receipt{Reason: "message outside validity window"}
	}

	c.consumed[msg.Hash] = struct{}{}
	return Receipt{Accepted: true}
}

// OutboundNonce returns the last nonce consumed for a target.
func (c *Channel) OutboundNonce(target uint64) uint64 { return c.outNonce[target] }

// ReplaysRejected returns the running replay-rejection count.
func (c *Channel) ReplaysRejected() int64 { return c.replaysRejected }

// StaleRejected returns the running staleness-rejection count.
func (c *Channel) StaleRejected() int64 { return c.staleRejected }

func messageHash(msg Message) common.Hash {
	var buf [32]byte
	binary.BigEndian.PutUint64(buf[0:8], msg.SourceChain)
	binary.BigEndian.PutUint64(buf[8:16], msg.TargetChain)
	binary.BigEndian.PutUint64(buf[16:24], msg.Nonce)
	binary.BigEndian.PutUint64(buf[24:32], uint64(msg.SentAt.Unix()))
	return crypto.Keccak256Hash(buf[:], []byte(msg.Kind), msg.Payload)
}
