package core

import (
	"fmt"
)

// SequenceValidator validates source sequences per partition. Custody and
// policy partitions are strict (gaps and reordering rejected); price feeds
// are validated inside the oracle, which tolerates gaps.
// Not thread-safe — only accessed from the single-threaded protection core.
type SequenceValidator struct {
	expectedNextSeq map[string]int64
	metrics         *SequenceMetrics
}

func NewSequenceValidator() *SequenceValidator {
	return &SequenceValidator{
		expectedNextSeq: make(map[string]int64),
		metrics:         NewSequenceMetrics(),
	}
}

// ValidateSequence checks source sequence ordering for a partition. It
// does not consume the sequence; the caller commits it with Commit once
// the event has actually been applied, so a failed dispatch can be
// retried under the same source sequence.
func (sv *SequenceValidator) ValidateSequence(
	partition string,
	sourceSequence int64,
	idempotencyKey string,
	isDuplicate bool,
) error {
	expected, seen := sv.expectedNextSeq[partition]
	if !seen {
		// First event for this partition. Producers choose their own
		// starting sequence, so accept it and go strict from there.
		return nil
	}

	if sourceSequence < expected {
		if isDuplicate {
			// Already processed, nothing to do.
			return nil
		}
		// Out-of-order delivery of a NEW event.
		sv.metrics.RecordOutOfOrder(partition)
		return fmt.Errorf("out-of-order event: partition=%s, expected=%d, got=%d",
			partition, expected, sourceSequence)
	}

	if sourceSequence == expected {
		return nil
	}

	// sourceSequence > expected: gap detected.
	sv.metrics.RecordGap(partition)
	return fmt.Errorf("sequence gap: partition=%s, expected=%d, got=%d",
		partition, expected, sourceSequence)
}

// Commit consumes a validated source sequence after the event applied.
func (sv *SequenceValidator) Commit(partition string, sourceSequence int64) {
	sv.expectedNextSeq[partition] = sourceSequence + 1
}

// GetExpectedSequence returns the next expected sequence for a partition.
func (sv *SequenceValidator) GetExpectedSequence(partition string) int64 {
	return sv.expectedNextSeq[partition]
}

// RestorePartition initializes expected sequence (used during recovery).
func (sv *SequenceValidator) RestorePartition(partition string, seq int64) {
	sv.expectedNextSeq[partition] = seq
}

// GetAllPartitions returns the full per-partition sequence state.
func (sv *SequenceValidator) GetAllPartitions() map[string]int64 {
	out := make(map[string]int64, len(sv.expectedNextSeq))
	for k, v := range sv.expectedNextSeq {
		out[k] = v
	}
	return out
}

// --- Metrics ---

// SequenceMetrics tracks sequence validation stats.
// Not thread-safe — only accessed from the single-threaded protection core.
type SequenceMetrics struct {
	gaps       map[string]int64
	outOfOrder map[string]int64
}

func NewSequenceMetrics() *SequenceMetrics {
	return &SequenceMetrics{
		gaps:       make(map[string]int64),
		outOfOrder: make(map[string]int64),
	}
}

func (m *SequenceMetrics) RecordGap(partition string) {
	m.gaps[partition]++
}

func (m *SequenceMetrics) RecordOutOfOrder(partition string) {
	m.outOfOrder[partition]++
}

func (m *SequenceMetrics) GetGaps(partition string) int64 {
	return m.gaps[partition]
}

func (m *SequenceMetrics) GetOutOfOrder(partition string) int64 {
	return m.outOfOrder[partition]
}
