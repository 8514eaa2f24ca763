package crosschain

import (
	"encoding/binary"
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Inbound messages carry either an announcement or a signed report. An
// announcement is the bare 32-byte operation hash sent when the action
// starts; a report comes back from the remote side with a delegate
// signature and finalizes the operation locally.

const (
	migrationReportLen    = common.HashLength + 8 + crypto.SignatureLength
	coordinationReportLen = common.HashLength + 8 + 8 + crypto.SignatureLength
)

var ErrMalformedReport = errors.New("malformed report payload")

// MigrationReport encodes a migration completion report:
// lockHash ‖ signedAt ‖ delegate signature over CompleteDigest.
func MigrationReport(lockHash common.Hash, signedAt time.Time, sig []byte) []byte {
	buf := make([]byte, 0, migrationReportLen)
	buf = append(buf, lockHash.Bytes()...)
	buf = binary.BigEndian.AppendUint64(buf, uint64(signedAt.Unix()))
	return append(buf, sig...)
}

// ParseMigrationReport decodes a migration completion report. A payload
// of any other length is not a report.
func ParseMigrationReport(payload []byte) (lockHash common.Hash, signedAt time.Time, sig []byte, err error) {
	if len(payload) != migrationReportLen {
		return common.Hash{}, time.Time{}, nil, ErrMalformedReport
	}
	lockHash = common.BytesToHash(payload[:common.HashLength])
	signedAt = time.Unix(int64(binary.BigEndian.Uint64(payload[common.HashLength:common.HashLength+8])), 0)
	sig = payload[common.HashLength+8:]
	return lockHash, signedAt, sig, nil
}

// CoordinationReport encodes a per-chain execution report:
// coordinationHash ‖ chainID ‖ signedAt ‖ delegate signature over
// ExecutionDigest.
func CoordinationReport(hash common.Hash, chainID uint64, signedAt time.Time, sig []byte) []byte {
	buf := make([]byte, 0, coordinationReportLen)
	buf = append(buf, hash.Bytes()...)
	buf = binary.BigEndian.AppendUint64(buf, chainID)
	buf = binary.BigEndian.AppendUint64(buf, uint64(signedAt.Unix()))
	return append(buf, sig...)
}

// ParseCoordinationReport decodes a per-chain execution report.
func ParseCoordinationReport(payload []byte) (hash common.Hash, chainID uint64, signedAt time.Time, sig []byte, err error) {
	if len(payload) != coordinationReportLen {
		return common.Hash{}, 0, time.Time{}, nil, ErrMalformedReport
	}
	hash = common.BytesToHash(payload[:common.HashLength])
	chainID = binary.BigEndian.Uint64(payload[common.HashLength : common.HashLength+8])
	signedAt = time.Unix(int64(binary.BigEndian.Uint64(payload[common.HashLength+8:common.HashLength+16])), 0)
	sig = payload[common.HashLength+16:]
	return hash, chainID, signedAt, sig, nil
}

// IsReport reports whether an inbound payload of the given kind has the
// shape of a signed report rather than an announcement.
func IsReport(kind MessageKind, payload []byte) bool {
	switch kind {
	case KindMigration:
		return len(payload) == migrationReportLen
	case KindCoordination:
		return len(payload) == coordinationReportLen
	default:
		return false
	}
}
