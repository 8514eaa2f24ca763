// Package oracle caches validated price observations and answers crash
// queries against caller-supplied thresholds. All percentages are basis
// points with integer division, so evaluation is deterministic.
package oracle

import (
	"errors"
	"fmt"
	"sort"
	"time"

	fpmath "github.com/GuardX-protocol/guardx-engine/internal/math"
)

const (
	// DefaultFreshness is the standard observation freshness window.
	DefaultFreshness = 300 * time.Second

	// RealtimeFreshness is the tighter window used by real-time callers.
	RealtimeFreshness = 60 * time.Second

	// HistoryCapacity bounds the per-feed ring buffer. Past capacity the
	// oldest observation is overwritten.
	HistoryCapacity = 64
)

var (
	ErrUnknownFeed         = errors.New("unknown price feed")
	ErrNonPositivePrice    = errors.New("price must be positive")
	ErrInvalidThreshold    = errors.New("threshold out of range [1,10000]")
	ErrInvalidWindow       = errors.New("window must be positive")
	ErrMinimumAssets       = errors.New("minimum assets must be at least 2")
	ErrInsufficientHistory = errors.New("no observation old enough for window")
)

// Observation is a validated price reading for one feed.
type Observation struct {
	Price        int64 // 1e8 fixed point
	Timestamp    time.Time
	ConfidenceBP int64
	Valid        bool
}

type feedState struct {
	latest  Observation
	history [HistoryCapacity]Observation
	head    int // next write slot
	size    int
	lastSeq int64
}

// Oracle ingests signed price observations and keeps the latest value plus
// a bounded history per feed.
// Not thread-safe — only accessed from the single-threaded protection core.
type Oracle struct {
	feeds     map[string]*feedState
	freshness time.Duration
	now       func() time.Time

	priceGaps    map[string]int64 // feed -> tolerated sequence gaps
	staleDropped map[string]int64 // feed -> stale sequences ignored
}

// Option configures the oracle.
type Option func(*Oracle)

// WithClock overrides the wall clock (tests).
func WithClock(now func() time.Time) Option {
	return func(o *Oracle) { o.now = now }
}

// WithFreshness overrides the default freshness window.
func WithFreshness(d time.Duration) Option {
	return func(o *Oracle) { o.freshness = d }
}

func New(opts ...Option) *Oracle {
	o := &Oracle{
		feeds:        make(map[string]*feedState),
		freshness:    DefaultFreshness,
		now:          time.Now,
		priceGaps:    make(map[string]int64),
		staleDropped: make(map[string]int64),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// RecordObservation accepts a new observation for a feed. Only positive
// prices are accepted. Sequences at or below the last seen one are silently
// ignored (idempotent); gaps are tolerated but counted.
func (o *Oracle) RecordObservation(feedID string, obs Observation, seq int64) error {
	if obs.Price <= 0 {
		return fmt.Errorf("%w: %d", ErrNonPositivePrice, obs.Price)
	}

	fs, ok := o.feeds[feedID]
	if !ok {
		fs = &feedState{lastSeq: -1}
		o.feeds[feedID] = fs
	}

	if seq <= fs.lastSeq {
		o.staleDropped[feedID]++
		return nil
	}
	if fs.lastSeq >= 0 && seq > fs.lastSeq+1 {
		o.priceGaps[feedID]++
	}
	fs.lastSeq = seq

	obs.Valid = true
	fs.latest = obs
	fs.history[fs.head] = obs
	fs.head = (fs.head + 1) % HistoryCapacity
	if fs.size < HistoryCapacity {
		fs.size++
	}

	return nil
}

// Latest returns the cached observation with validity forced false once it
// is older than the default freshness window.
func (o *Oracle) Latest(feedID string) (Observation, error) {
	return o.LatestWithin(feedID, o.freshness)
}

// LatestWithin returns the cached observation, reported invalid when older
// than the given window. The cached value itself is never mutated.
func (o *Oracle) LatestWithin(feedID string, window time.Duration) (Observation, error) {
	fs, ok := o.feeds[feedID]
	if !ok || fs.size == 0 {
		return Observation{}, fmt.Errorf("%w: %s", ErrUnknownFeed, feedID)
	}

	obs := fs.latest
	if o.now().Sub(obs.Timestamp) > window {
		obs.Valid = false
	}
	return obs, nil
}

// LatestRealtime tries the tight real-time window first and falls back to
// the default window before giving up.
func (o *Oracle) LatestRealtime(feedID string) (Observation, error) {
	obs, err := o.LatestWithin(feedID, RealtimeFreshness)
	if err != nil {
		return Observation{}, err
	}
	if obs.Valid {
		return obs, nil
	}
	return o.LatestWithin(feedID, o.freshness)
}

// observationAtOrBefore finds the most recent historical observation whose
// timestamp is at or before the cutoff.
func (fs *feedState) observationAtOrBefore(cutoff time.Time) (Observation, bool) {
	var best Observation
	found := false
	for i := 0; i < fs.size; i++ {
		obs := fs.history[i]
		if obs.Timestamp.After(cutoff) {
			continue
		}
		if !found || obs.Timestamp.After(best.Timestamp) {
			best = obs
			found = true
		}
	}
	return best, found
}

// CrashResult reports a single-asset crash evaluation.
type CrashResult struct {
	Crashed        bool
	DropBP         int64
	ReferencePrice int64
	CurrentPrice   int64
}

// DetectSingleAssetCrash compares the current price with the most recent
// observation at or before now-window. A price increase yields a 0 bp drop,
// never a crash.
func (o *Oracle) DetectSingleAssetCrash(feedID string, thresholdBP int64, window time.Duration) (CrashResult, error) {
	if thresholdBP < 1 || thresholdBP > 10_000 {
		return CrashResult{}, fmt.Errorf("%w: %d", ErrInvalidThreshold, thresholdBP)
	}
	if window <= 0 {
		return CrashResult{}, fmt.Errorf("%w: %s", ErrInvalidWindow, window)
	}

	fs, ok := o.feeds[feedID]
	if !ok || fs.size == 0 {
		return CrashResult{}, fmt.Errorf("%w: %s", ErrUnknownFeed, feedID)
	}

	ref, found := fs.observationAtOrBefore(o.now().Add(-window))
	if !found {
		return CrashResult{}, fmt.Errorf("%w: feed %s, window %s", ErrInsufficientHistory, feedID, window)
	}

	drop := fpmath.DropBP(ref.Price, fs.latest.Price)
	return CrashResult{
		Crashed:        drop >= thresholdBP,
		DropBP:         drop,
		ReferencePrice: ref.Price,
		CurrentPrice:   fs.latest.Price,
	}, nil
}

// MultiAssetConfig parameterizes a market-wide crash query.
type MultiAssetConfig struct {
	SingleAssetThresholdBP int64
	MultiAssetThresholdBP  int64
	MinimumAssets          int
	Window                 time.Duration
}

// MultiCrashResult reports a multi-asset crash evaluation.
type MultiCrashResult struct {
	Crashed      bool
	CrashedCount int
	FreshCount   int
	RatioBP      int64
	CrashedFeeds []string
}

// DetectMultiAssetCrash counts, among all monitored feeds with fresh data,
// how many individually crash past the single-asset threshold, then
// compares crashed*10000/fresh against the multi-asset threshold. Both the
// fresh-feed count and the crashed count must reach MinimumAssets.
func (o *Oracle) DetectMultiAssetCrash(cfg MultiAssetConfig) (MultiCrashResult, error) {
	if cfg.MinimumAssets < 2 {
		return MultiCrashResult{}, fmt.Errorf("%w: %d", ErrMinimumAssets, cfg.MinimumAssets)
	}
	if cfg.SingleAssetThresholdBP < 1 || cfg.SingleAssetThresholdBP > 10_000 {
		return MultiCrashResult{}, fmt.Errorf("%w: single %d", ErrInvalidThreshold, cfg.SingleAssetThresholdBP)
	}
	if cfg.MultiAssetThresholdBP < 1 || cfg.MultiAssetThresholdBP > 10_000 {
		return MultiCrashResult{}, fmt.Errorf("%w: multi %d", ErrInvalidThreshold, cfg.MultiAssetThresholdBP)
	}
	if cfg.Window <= 0 {
		return MultiCrashResult{}, fmt.Errorf("%w: %s", ErrInvalidWindow, cfg.Window)
	}

	var result MultiCrashResult
	now := o.now()

	for feedID, fs := range o.feeds {
		if fs.size == 0 || now.Sub(fs.latest.Timestamp) > o.freshness {
			continue
		}
		result.FreshCount++

		ref, found := fs.observationAtOrBefore(now.Add(-cfg.Window))
		if !found {
			continue
		}
		if fpmath.DropBP(ref.Price, fs.latest.Price) >= cfg.SingleAssetThresholdBP {
			result.CrashedCount++
			result.CrashedFeeds = append(result.CrashedFeeds, feedID)
		}
	}

	// Map iteration order is random; the reported feed list must not be.
	sort.Strings(result.CrashedFeeds)

	if result.FreshCount < cfg.MinimumAssets || result.CrashedCount < cfg.MinimumAssets {
		return result, nil
	}

	result.RatioBP = fpmath.RatioBP(int64(result.CrashedCount), int64(result.FreshCount))
	result.Crashed = result.RatioBP >= cfg.MultiAssetThresholdBP
	return result, nil
}

// MonitoredFeeds returns the feeds with at least one observation.
func (o *Oracle) MonitoredFeeds() []string {
	feeds := make([]string, 0, len(o.feeds))
	for id, fs := range o.feeds {
		if fs.size > 0 {
			feeds = append(feeds, id)
		}
	}
	return feeds
}

// SequenceGaps returns tolerated sequence gaps for a feed (metrics).
func (o *Oracle) SequenceGaps(feedID string) int64 { return o.priceGaps[feedID] }

// StaleDropped returns how many stale sequences were ignored for a feed.
func (o *Oracle) StaleDropped(feedID string) int64 { return o.staleDropped[feedID] }
