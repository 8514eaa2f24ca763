package crosschain

import (
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

const (
	// VotingPeriod is the fixed window between proposal creation and its
	// deadline.
	VotingPeriod = 7 * 24 * time.Hour

	// MaxDescriptionLen bounds proposal descriptions.
	MaxDescriptionLen = 256
)

var (
	ErrNotMember          = errors.New("caller is not a governance member")
	ErrProposalNotFound   = errors.New("proposal not found")
	ErrAlreadyVoted       = errors.New("member already voted")
	ErrVotingClosed       = errors.New("voting deadline passed")
	ErrVotingOpen         = errors.New("voting deadline not reached")
	ErrProposalNotPassed  = errors.New("proposal did not pass")
	ErrProposalSettled    = errors.New("proposal already settled")
	ErrDescriptionTooLong = errors.New("description too long")
)

// ProposalState tracks a proposal through its lifecycle.
type ProposalState int

const (
	ProposalPending ProposalState = iota
	ProposalRejected
	ProposalExecuted
)

func (s ProposalState) String() string {
	switch s {
	case ProposalPending:
		return "pending"
	case ProposalRejected:
		return "rejected"
	case ProposalExecuted:
		return "executed"
	default:
		return "unknown"
	}
}

// Proposal is one cross-chain governance action under vote.
type Proposal struct {
	ID           uint64
	Proposer     common.Address
	Description  string
	ChainIDs     []uint64
	Payloads     [][]byte
	CreatedAt    time.Time
	Deadline     time.Time
	VotesFor     int64
	VotesAgainst int64
	State        ProposalState

	voted map[common.Address]bool
}

// Governance runs member-quorum voting over cross-chain actions. A
// proposal executes only after its deadline, and only when votesFor
// reaches the threshold and strictly exceeds votesAgainst.
type Governance struct {
	members   map[common.Address]bool
	threshold int64

	proposals map[uint64]*Proposal
	nextID    uint64

	channel *Channel
	now     func() time.Time
}

func NewGovernance(channel *Channel, threshold int64) *Governance {
	return &Governance{
		members:   make(map[common.Address]bool),
		threshold: threshold,
		proposals: make(map[uint64]*Proposal),
		channel:   channel,
		now:       time.Now,
	}
}

// SetClock overrides the wall clock (tests).
func (g *Governance) SetClock(now func() time.Time) { g.now = now }

// AddMember registers a voting member.
func (g *Governance) AddMember(addr common.Address) error {
	if addr == (common.Address{}) {
		return errors.New("zero member address")
	}
	g.members[addr] = true
	return nil
}

func (g *Governance) IsMember(addr common.Address) bool { return g.members[addr] }

// Propose opens a new proposal with a seven-day voting window.
func (g *Governance) Propose(proposer common.Address, description string, chainIDs []uint64, payloads [][]byte) (uint64, error) {
	if !g.members[proposer] {
		return 0, fmt.Errorf("%w: %s", ErrNotMember, proposer.Hex())
	}
	if len(description) > MaxDescriptionLen {
		return 0, fmt.Errorf("%w: %d > %d", ErrDescriptionTooLong, len(description), MaxDescriptionLen)
	}
	if len(chainIDs) == 0 {
		return 0, ErrNoChains
	}
	if len(chainIDs) != len(payloads) {
		return 0, fmt.Errorf("%w: %d chains, %d payloads", ErrArrayLengthMismatch, len(chainIDs), len(payloads))
	}
	for i, id := range chainIDs {
		if !g.channel.chains.IsSupported(id) {
			return 0, fmt.Errorf("%w: %d", ErrUnsupportedChain, id)
		}
		if len(payloads[i]) == 0 {
			return 0, fmt.Errorf("%w: chain %d", ErrEmptyPayload, id)
		}
	}

	now := g.now()
	g.nextID++
	g.proposals[g.nextID] = &Proposal{
		ID:          g.nextID,
		Proposer:    proposer,
		Description: description,
		ChainIDs:    append([]uint64(nil), chainIDs...),
		Payloads:    payloads,
		CreatedAt:   now,
		Deadline:    now.Add(VotingPeriod),
		voted:       make(map[common.Address]bool),
	}
	return g.nextID, nil
}

// Vote records one member's vote. Each member votes at most once, and
// only before the deadline.
func (g *Governance) Vote(member common.Address, proposalID uint64, support bool) error {
	if !g.members[member] {
		return fmt.Errorf("%w: %s", ErrNotMember, member.Hex())
	}
	p, ok := g.proposals[proposalID]
	if !ok {
		return fmt.Errorf("%w: %d", ErrProposalNotFound, proposalID)
	}
	if p.State != ProposalPending {
		return ErrProposalSettled
	}
	if g.now().After(p.Deadline) {
		return ErrVotingClosed
	}
	if p.voted[member] {
		return fmt.Errorf("%w: %s", ErrAlreadyVoted, member.Hex())
	}

	p.voted[member] = true
	if support {
		p.VotesFor++
	} else {
		p.VotesAgainst++
	}
	return nil
}

// Execute settles a proposal after its deadline. A passing proposal
// sends one governance message per target chain; a failing tally marks
// the proposal rejected.
func (g *Governance) Execute(caller common.Address, proposalID uint64) ([]Message, error) {
	if !g.members[caller] {
		return nil, fmt.Errorf("%w: %s", ErrNotMember, caller.Hex())
	}
	p, ok := g.proposals[proposalID]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrProposalNotFound, proposalID)
	}
	if p.State != ProposalPending {
		return nil, ErrProposalSettled
	}
	if !g.now().After(p.Deadline) {
		return nil, fmt.Errorf("%w: deadline %s", ErrVotingOpen, p.Deadline.Format(time.RFC3339))
	}

	if p.VotesFor < g.threshold || p.VotesFor <= p.VotesAgainst {
		p.State = ProposalRejected
		return nil, fmt.Errorf("%w: %d for, %d against, threshold %d", ErrProposalNotPassed, p.VotesFor, p.VotesAgainst, g.threshold)
	}

	// Every target must be sendable before the first nonce is consumed:
	// a mid-loop failure would strand the proposal pending with messages
	// already out, and a retry would duplicate them under fresh nonces.
	for _, chainID := range p.ChainIDs {
		if !g.channel.chains.IsSupported(chainID) {
			return nil, fmt.Errorf("%w: %d", ErrUnsupportedChain, chainID)
		}
		if g.channel.chains.IsPaused(chainID) {
			return nil, fmt.Errorf("%w: %s", ErrChainPaused, g.channel.chains.Name(chainID))
		}
	}

	messages := make([]Message, 0, len(p.ChainIDs))
	for i, chainID := range p.ChainIDs {
		msg, err := g.channel.Send(chainID, KindGovernance, p.Payloads[i])
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}

	p.State = ProposalExecuted
	return messages, nil
}

// Get returns a copy of the proposal.
func (g *Governance) Get(proposalID uint64) (Proposal, bool) {
	p, ok := g.proposals[proposalID]
	if !ok {
		return Proposal{}, false
	}
	cp := *p
	cp.voted = nil
	return cp, true
}
