package ledger

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// AccountScope represents the top-level account namespace
type AccountScope uint8

const (
	AccountScopeUser AccountScope = iota
	AccountScopeSystem
	AccountScopeExternal
)

// AccountSubType represents the account purpose
type AccountSubType uint8

const (
	// User sub-types
	SubTypeCustody AccountSubType = iota
	SubTypeChainReserve // earmarked for a cross-chain lock

	// System sub-types
	SubTypeSystemProtectionFees

	// External sub-types
	SubTypeExternalDeposits
	SubTypeExternalWithdrawals
	SubTypeExternalExchange
)

// AssetID maps asset symbols to numeric IDs for compact account keys
type AssetID uint16

// AssetInfo describes a registered asset.
type AssetInfo struct {
	ID        AssetID
	Symbol    string
	FeedID    string // price feed identifier
	RiskLevel uint8  // 0 (stable) .. 4 (extreme)
	Stable    bool
}

// Registry holds the set of assets the engine custodies. Registration is
// done at startup; lookups afterward are read-only.
type Registry struct {
	bySymbol map[string]*AssetInfo
	byID     map[AssetID]*AssetInfo
	byFeed   map[string]*AssetInfo
	nextID   AssetID
}

func NewRegistry() *Registry {
	return &Registry{
		bySymbol: make(map[string]*AssetInfo),
		byID:     make(map[AssetID]*AssetInfo),
		byFeed:   make(map[string]*AssetInfo),
		nextID:   1,
	}
}

// DefaultRegistry returns a registry pre-loaded with the standard asset set.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.MustRegister("USDC", "feed:usdc", 0, true)
	r.MustRegister("USDT", "feed:usdt", 0, true)
	r.MustRegister("DAI", "feed:dai", 0, true)
	r.MustRegister("ETH", "feed:eth", 2, false)
	r.MustRegister("BTC", "feed:btc", 2, false)
	r.MustRegister("SOL", "feed:sol", 3, false)
	r.MustRegister("DOGE", "feed:doge", 4, false)
	return r
}

// Register adds an asset. RiskLevel must be 0..4.
func (r *Registry) Register(symbol, feedID string, riskLevel uint8, stable bool) (AssetID, error) {
	if symbol == "" {
		return 0, fmt.Errorf("empty asset symbol")
	}
	if riskLevel > 4 {
		return 0, fmt.Errorf("risk level %d out of range [0,4]", riskLevel)
	}
	if _, exists := r.bySymbol[symbol]; exists {
		return 0, fmt.Errorf("asset %s already registered", symbol)
	}

	info := &AssetInfo{
		ID:        r.nextID,
		Symbol:    symbol,
		FeedID:    feedID,
		RiskLevel: riskLevel,
		Stable:    stable,
	}
	r.bySymbol[symbol] = info
	r.byID[info.ID] = info
	if feedID != "" {
		r.byFeed[feedID] = info
	}
	r.nextID++

	return info.ID, nil
}

func (r *Registry) MustRegister(symbol, feedID string, riskLevel uint8, stable bool) AssetID {
	id, err := r.Register(symbol, feedID, riskLevel, stable)
	if err != nil {
		panic(err)
	}
	return id
}

// Lookup returns asset info by symbol.
func (r *Registry) Lookup(symbol string) (*AssetInfo, bool) {
	info, ok := r.bySymbol[symbol]
	return info, ok
}

// LookupID returns asset info by numeric ID.
func (r *Registry) LookupID(id AssetID) (*AssetInfo, bool) {
	info, ok := r.byID[id]
	return info, ok
}

// LookupFeed returns asset info by price-feed identifier.
func (r *Registry) LookupFeed(feedID string) (*AssetInfo, bool) {
	info, ok := r.byFeed[feedID]
	return info, ok
}

// Assets returns all registered assets in ID order.
func (r *Registry) Assets() []*AssetInfo {
	out := make([]*AssetInfo, 0, len(r.byID))
	for id := AssetID(1); id < r.nextID; id++ {
		if info, ok := r.byID[id]; ok {
			out = append(out, info)
		}
	}
	return out
}

// IsStablecoin reports whether the asset is a registered stablecoin.
func (r *Registry) IsStablecoin(id AssetID) bool {
	info, ok := r.byID[id]
	return ok && info.Stable
}

// Symbol returns the symbol for an asset ID, or "?" if unknown.
func (r *Registry) Symbol(id AssetID) string {
	if info, ok := r.byID[id]; ok {
		return info.Symbol
	}
	return "?"
}

// AccountKey is the in-memory key for balance tracking
type AccountKey struct {
	Scope   AccountScope
	Owner   common.Address // zero for system/external accounts
	SubType AccountSubType
	AssetID AssetID
}

// NewCustodyKey creates a key for a user's custody account
func NewCustodyKey(owner common.Address, assetID AssetID) AccountKey {
	return AccountKey{
		Scope:   AccountScopeUser,
		Owner:   owner,
		SubType: SubTypeCustody,
		AssetID: assetID,
	}
}

// NewReserveKey creates a key for a user's cross-chain reserve account
func NewReserveKey(owner common.Address, assetID AssetID) AccountKey {
	return AccountKey{
		Scope:   AccountScopeUser,
		Owner:   owner,
		SubType: SubTypeChainReserve,
		AssetID: assetID,
	}
}

// NewExternalKey creates a key for external counterpart accounts
func NewExternalKey(subType AccountSubType, assetID AssetID) AccountKey {
	return AccountKey{
		Scope:   AccountScopeExternal,
		SubType: subType,
		AssetID: assetID,
	}
}

// ParseAccountPath is the inverse of AccountPath, used when restoring
// tracker state from a snapshot.
func ParseAccountPath(path string, reg *Registry) (AccountKey, error) {
	parts := strings.Split(path, ":")

	resolveAsset := func(symbol string) (AssetID, error) {
		info, ok := reg.Lookup(symbol)
		if !ok {
			return 0, fmt.Errorf("unknown asset in account path %q", path)
		}
		return info.ID, nil
	}

	switch {
	case len(parts) == 4 && parts[0] == "user":
		if !common.IsHexAddress(parts[1]) {
			return AccountKey{}, fmt.Errorf("bad owner in account path %q", path)
		}
		id, err := resolveAsset(parts[3])
		if err != nil {
			return AccountKey{}, err
		}
		switch parts[2] {
		case "custody":
			return NewCustodyKey(common.HexToAddress(parts[1]), id), nil
		case "chain_reserve":
			return NewReserveKey(common.HexToAddress(parts[1]), id), nil
		}
		return AccountKey{}, fmt.Errorf("bad subtype in account path %q", path)

	case len(parts) == 3 && parts[0] == "system" && parts[1] == "protection_fees":
		id, err := resolveAsset(parts[2])
		if err != nil {
			return AccountKey{}, err
		}
		return AccountKey{Scope: AccountScopeSystem, SubType: SubTypeSystemProtectionFees, AssetID: id}, nil

	case len(parts) == 3 && parts[0] == "external":
		id, err := resolveAsset(parts[2])
		if err != nil {
			return AccountKey{}, err
		}
		switch parts[1] {
		case "deposits":
			return NewExternalKey(SubTypeExternalDeposits, id), nil
		case "withdrawals":
			return NewExternalKey(SubTypeExternalWithdrawals, id), nil
		case "exchange":
			return NewExternalKey(SubTypeExternalExchange, id), nil
		}
	}
	return AccountKey{}, fmt.Errorf("unrecognized account path %q", path)
}

// AccountPath renders a human-readable account path for logs and persistence
func (k AccountKey) AccountPath(reg *Registry) string {
	asset := reg.Symbol(k.AssetID)

	switch k.Scope {
	case AccountScopeUser:
		sub := "custody"
		if k.SubType == SubTypeChainReserve {
			sub = "chain_reserve"
		}
		return fmt.Sprintf("user:%s:%s:%s", k.Owner.Hex(), sub, asset)
	case AccountScopeSystem:
		return fmt.Sprintf("system:protection_fees:%s", asset)
	default:
		switch k.SubType {
		case SubTypeExternalWithdrawals:
			return fmt.Sprintf("external:withdrawals:%s", asset)
		case SubTypeExternalExchange:
			return fmt.Sprintf("external:exchange:%s", asset)
		default:
			return fmt.Sprintf("external:deposits:%s", asset)
		}
	}
}
