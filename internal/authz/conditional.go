package authz

import (
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

// MaxConditionalRecords caps the per-owner record list.
const MaxConditionalRecords = 8

var (
	ErrRecordLimit   = errors.New("conditional record limit reached")
	ErrRecordExpired = errors.New("record already expired")
)

// ConditionalRecord is auxiliary access metadata: a condition expression
// and an encrypted payload reference with an expiry. Records are
// informational; they never authorize fund movement on their own.
type ConditionalRecord struct {
	ID         uuid.UUID
	Conditions string
	CipherRef  string
	CreatedAt  time.Time
	ExpiresAt  time.Time
}

// ConditionalStore holds bounded per-owner record lists. Expired records
// are dropped lazily on read; there is no sweeper.
type ConditionalStore struct {
	records map[common.Address][]ConditionalRecord
	now     func() time.Time
}

func NewConditionalStore() *ConditionalStore {
	return &ConditionalStore{
		records: make(map[common.Address][]ConditionalRecord),
		now:     time.Now,
	}
}

// SetClock overrides the wall clock (tests).
func (s *ConditionalStore) SetClock(now func() time.Time) { s.now = now }

// Add stores a record for owner. Capacity is counted against live
// records only, so expired entries free their slots.
func (s *ConditionalStore) Add(owner common.Address, conditions, cipherRef string, expiresAt time.Time) (uuid.UUID, error) {
	if owner == (common.Address{}) {
		return uuid.Nil, ErrZeroAddress
	}
	now := s.now()
	if !expiresAt.After(now) {
		return uuid.Nil, ErrRecordExpired
	}

	live := s.prune(owner, now)
	if len(live) >= MaxConditionalRecords {
		return uuid.Nil, fmt.Errorf("%w: %d", ErrRecordLimit, MaxConditionalRecords)
	}

	rec := ConditionalRecord{
		ID:         uuid.New(),
		Conditions: conditions,
		CipherRef:  cipherRef,
		CreatedAt:  now,
		ExpiresAt:  expiresAt,
	}
	s.records[owner] = append(live, rec)
	return rec.ID, nil
}

// List returns the owner's unexpired records.
func (s *ConditionalStore) List(owner common.Address) []ConditionalRecord {
	return s.prune(owner, s.now())
}

// Remove deletes one record by id.
func (s *ConditionalStore) Remove(owner common.Address, id uuid.UUID) {
	s.records[owner] = lo.Reject(s.records[owner], func(r ConditionalRecord, _ int) bool {
		return r.ID == id
	})
}

func (s *ConditionalStore) prune(owner common.Address, now time.Time) []ConditionalRecord {
	live := lo.Filter(s.records[owner], func(r ConditionalRecord, _ int) bool {
		return r.ExpiresAt.After(now)
	})
	if len(live) == 0 {
		delete(s.records, owner)
		return nil
	}
	s.records[owner] = live
	return live
}
