package ledger_test

import (
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/GuardX-protocol/guardx-engine/internal/ledger"
)

var (
	alice    = common.HexToAddress("0x1111111111111111111111111111111111111111")
	executor = common.HexToAddress("0xeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeee")
	t0       = time.Unix(1_700_000_000, 0)
)

func newLedger(t *testing.T) *ledger.AssetLedger {
	t.Helper()
	al := ledger.NewAssetLedger(ledger.DefaultRegistry())
	al.SetEmergencyAuthority(executor)
	return al
}

func assetID(t *testing.T, al *ledger.AssetLedger, symbol string) ledger.AssetID {
	t.Helper()
	info, ok := al.Registry().Lookup(symbol)
	if !ok {
		t.Fatalf("asset %s not registered", symbol)
	}
	return info.ID
}

// ============================================================================
// Test: Registry
// ============================================================================

func TestRegistry_Defaults(t *testing.T) {
	reg := ledger.DefaultRegistry()

	usdc, ok := reg.Lookup("USDC")
	if !ok {
		t.Fatal("USDC should be registered")
	}
	if !reg.IsStablecoin(usdc.ID) {
		t.Error("USDC should be a stablecoin")
	}

	doge, ok := reg.Lookup("DOGE")
	if !ok {
		t.Fatal("DOGE should be registered")
	}
	if doge.RiskLevel != 4 {
		t.Errorf("DOGE risk level: got %d, want 4", doge.RiskLevel)
	}
	if reg.IsStablecoin(doge.ID) {
		t.Error("DOGE should not be a stablecoin")
	}
}

func TestRegistry_RejectsBadRiskLevel(t *testing.T) {
	reg := ledger.NewRegistry()
	if _, err := reg.Register("XYZ", "feed:xyz", 5, false); err == nil {
		t.Error("risk level 5 should be rejected")
	}
}

// ============================================================================
// Test: Balance conservation
// ============================================================================

func TestLedger_DepositWithdrawConservation(t *testing.T) {
	al := newLedger(t)
	eth := assetID(t, al, "ETH")

	deposits := []int64{5_00000000, 3_00000000, 2_00000000}
	withdrawals := []int64{4_00000000, 1_00000000}

	for _, amt := range deposits {
		if _, err := al.Deposit(alice, eth, amt, "dep", t0); err != nil {
			t.Fatalf("deposit: %v", err)
		}
	}
	for _, amt := range withdrawals {
		if _, err := al.Withdraw(alice, eth, amt, "wd", t0); err != nil {
			t.Fatalf("withdraw: %v", err)
		}
	}

	// 10 deposited - 5 withdrawn = 5
	if got := al.Balance(alice, eth); got != 5_00000000 {
		t.Errorf("balance: got %d, want 5_00000000", got)
	}

	v := ledger.NewInvariantValidator(al)
	if err := v.ValidateGlobalBalance(); err != nil {
		t.Errorf("zero-sum violated: %v", err)
	}
}

func TestLedger_OverdraftFailsWithoutStateChange(t *testing.T) {
	al := newLedger(t)
	eth := assetID(t, al, "ETH")

	al.Deposit(alice, eth, 1_00000000, "dep", t0)

	_, err := al.Withdraw(alice, eth, 2_00000000, "wd", t0)
	if !errors.Is(err, ledger.ErrInsufficient) {
		t.Fatalf("expected ErrInsufficient, got %v", err)
	}

	if got := al.Balance(alice, eth); got != 1_00000000 {
		t.Errorf("balance changed on failed withdrawal: %d", got)
	}
}

func TestLedger_RejectsInvalidInput(t *testing.T) {
	al := newLedger(t)
	eth := assetID(t, al, "ETH")

	if _, err := al.Deposit(common.Address{}, eth, 1, "dep", t0); !errors.Is(err, ledger.ErrZeroOwner) {
		t.Errorf("zero owner: got %v", err)
	}
	if _, err := al.Deposit(alice, eth, 0, "dep", t0); !errors.Is(err, ledger.ErrInvalidAmount) {
		t.Errorf("zero amount: got %v", err)
	}
	if _, err := al.Deposit(alice, ledger.AssetID(9999), 1, "dep", t0); !errors.Is(err, ledger.ErrUnknownAsset) {
		t.Errorf("unknown asset: got %v", err)
	}
}

// ============================================================================
// Test: Portfolio consistency
// ============================================================================

func TestLedger_PortfolioEntryIffPositiveBalance(t *testing.T) {
	al := newLedger(t)
	eth := assetID(t, al, "ETH")
	sol := assetID(t, al, "SOL")
	v := ledger.NewInvariantValidator(al)

	al.Deposit(alice, eth, 2_00000000, "dep", t0)
	al.Deposit(alice, sol, 7_00000000, "dep", t0)

	p := al.Portfolio(alice)
	if p == nil || len(p.Entries) != 2 {
		t.Fatalf("expected 2 portfolio entries, got %+v", p)
	}
	if err := v.ValidatePortfolioConsistency(alice); err != nil {
		t.Fatalf("consistency after deposits: %v", err)
	}

	// Draining an asset must remove the entry, not zero it.
	al.Withdraw(alice, sol, 7_00000000, "wd", t0)

	if _, ok := p.Entry(sol); ok {
		t.Error("drained asset should be removed from portfolio")
	}
	if len(p.Entries) != 1 {
		t.Errorf("expected 1 entry after drain, got %d", len(p.Entries))
	}
	if err := v.ValidatePortfolioConsistency(alice); err != nil {
		t.Fatalf("consistency after drain: %v", err)
	}
}

func TestLedger_EmptyPortfolioIsTerminal(t *testing.T) {
	al := newLedger(t)
	eth := assetID(t, al, "ETH")

	al.Deposit(alice, eth, 1_00000000, "dep", t0)
	al.Withdraw(alice, eth, 1_00000000, "wd", t0)

	p := al.Portfolio(alice)
	if p == nil {
		t.Fatal("portfolio should survive draining")
	}
	if !p.IsEmpty() {
		t.Error("portfolio should be empty")
	}
}

type fixedPricer map[ledger.AssetID]int64

func (fp fixedPricer) USDValue(id ledger.AssetID, amount int64) (int64, bool) {
	price, ok := fp[id]
	if !ok {
		return 0, false
	}
	// amount and price both 1e8 fixed point
	return amount / 100_000_000 * price, true
}

func TestPortfolio_RiskScoreWeighting(t *testing.T) {
	al := newLedger(t)
	usdc := assetID(t, al, "USDC")
	doge := assetID(t, al, "DOGE")

	al.Deposit(alice, usdc, 50_00000000, "dep", t0)
	al.Deposit(alice, doge, 50_00000000, "dep", t0)

	pricer := fixedPricer{usdc: 1_00000000, doge: 1_00000000}
	al.Revalue(alice, pricer, t0)

	p := al.Portfolio(alice)
	if p.TotalUSD != 100_00000000 {
		t.Fatalf("total USD: got %d, want 100_00000000", p.TotalUSD)
	}

	// Half stable (0 bp), half extreme risk (10000 bp) -> 5000 bp
	if p.RiskScoreBP != 5000 {
		t.Errorf("risk score: got %d bp, want 5000", p.RiskScoreBP)
	}
}

// ============================================================================
// Test: Emergency authority
// ============================================================================

func TestLedger_EmergencyWithdrawRequiresAuthority(t *testing.T) {
	al := newLedger(t)
	eth := assetID(t, al, "ETH")
	al.Deposit(alice, eth, 1_00000000, "dep", t0)

	intruder := common.HexToAddress("0x2222222222222222222222222222222222222222")
	if _, err := al.EmergencyWithdraw(intruder, alice, eth, 1_00000000, "x", t0); !errors.Is(err, ledger.ErrNotAuthorized) {
		t.Errorf("unauthorized caller: got %v", err)
	}

	if _, err := al.EmergencyWithdraw(executor, alice, eth, 1_00000000, "x", t0); err != nil {
		t.Errorf("authorized caller rejected: %v", err)
	}
	if got := al.Balance(alice, eth); got != 0 {
		t.Errorf("balance after emergency withdraw: got %d, want 0", got)
	}
}

func TestLedger_MutationRejectedDuringExternalCall(t *testing.T) {
	al := newLedger(t)
	eth := assetID(t, al, "ETH")
	al.Deposit(alice, eth, 1_00000000, "dep", t0)

	if err := al.BeginExternalCall(); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if _, err := al.Deposit(alice, eth, 1, "dep", t0); !errors.Is(err, ledger.ErrReentrantMutation) {
		t.Errorf("nested mutation: got %v", err)
	}
	if err := al.BeginExternalCall(); !errors.Is(err, ledger.ErrReentrantMutation) {
		t.Errorf("nested external call: got %v", err)
	}
	al.EndExternalCall()

	if _, err := al.Deposit(alice, eth, 1, "dep", t0); err != nil {
		t.Errorf("mutation after external call: %v", err)
	}
}

// ============================================================================
// Test: Cross-chain reserve
// ============================================================================

func TestLedger_LockUnlockRoundTrip(t *testing.T) {
	al := newLedger(t)
	eth := assetID(t, al, "ETH")
	al.Deposit(alice, eth, 3_00000000, "dep", t0)

	if _, err := al.LockForChain(alice, eth, 2_00000000, "lock", t0); err != nil {
		t.Fatalf("lock: %v", err)
	}
	if got := al.Balance(alice, eth); got != 1_00000000 {
		t.Errorf("custody after lock: got %d, want 1_00000000", got)
	}
	if got := al.Tracker().ChainReserve(alice, eth); got != 2_00000000 {
		t.Errorf("reserve after lock: got %d, want 2_00000000", got)
	}

	// Portfolio tracks free custody only.
	if entry, ok := al.Portfolio(alice).Entry(eth); !ok || entry.Amount != 1_00000000 {
		t.Errorf("portfolio after lock: %+v", entry)
	}

	if _, err := al.UnlockFromChain(alice, eth, 2_00000000, "unlock", t0); err != nil {
		t.Fatalf("unlock: %v", err)
	}
	if got := al.Balance(alice, eth); got != 3_00000000 {
		t.Errorf("custody after unlock: got %d, want 3_00000000", got)
	}

	v := ledger.NewInvariantValidator(al)
	if err := v.ValidateGlobalBalance(); err != nil {
		t.Errorf("zero-sum violated: %v", err)
	}
}

func TestLedger_LockMoreThanBalanceFails(t *testing.T) {
	al := newLedger(t)
	eth := assetID(t, al, "ETH")
	al.Deposit(alice, eth, 1_00000000, "dep", t0)

	if _, err := al.LockForChain(alice, eth, 2_00000000, "lock", t0); !errors.Is(err, ledger.ErrInsufficient) {
		t.Errorf("overlock: got %v", err)
	}
}
