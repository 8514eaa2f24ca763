package ingestion_test

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/GuardX-protocol/guardx-engine/internal/event"
	"github.com/GuardX-protocol/guardx-engine/internal/ingestion"
)

func rawFromJSON(t *testing.T, v interface{}) ingestion.RawEvent {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return ingestion.RawEvent{
		Subject:   "test",
		Data:      data,
		Timestamp: time.Now(),
		AckFunc:   func() {},
		NakFunc:   func() {},
	}
}

func TestParseDeposit(t *testing.T) {
	payload := map[string]interface{}{
		"deposit_id":   "550e8400-e29b-41d4-a716-446655440000",
		"owner":        "0x1111111111111111111111111111111111111111",
		"asset":        "ETH",
		"amount":       int64(10_00000000),
		"sequence":     int64(7),
		"timestamp_us": int64(1700000000000000),
	}

	raw := rawFromJSON(t, payload)
	evt, err := ingestion.ParseRawEvent(raw, "Deposit")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	dep, ok := evt.(*event.Deposit)
	if !ok {
		t.Fatalf("expected *event.Deposit, got %T", evt)
	}
	if dep.Asset != "ETH" || dep.Amount != 10_00000000 {
		t.Errorf("unexpected fields: %+v", dep)
	}
	if dep.Sequence != 7 {
		t.Errorf("sequence = %d, want 7", dep.Sequence)
	}
	if dep.Timestamp != 1700000000000000 {
		t.Errorf("timestamp = %d", dep.Timestamp)
	}
}

func TestParseDeposit_Invalid(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(map[string]interface{})
		wantErr string
	}{
		{"bad uuid", func(m map[string]interface{}) { m["deposit_id"] = "not-a-uuid" }, "deposit_id"},
		{"bad owner", func(m map[string]interface{}) { m["owner"] = "alice" }, "owner"},
		{"zero owner", func(m map[string]interface{}) {
			m["owner"] = "0x0000000000000000000000000000000000000000"
		}, "owner"},
		{"zero amount", func(m map[string]interface{}) { m["amount"] = int64(0) }, "positive"},
		{"negative amount", func(m map[string]interface{}) { m["amount"] = int64(-5) }, "positive"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			payload := map[string]interface{}{
				"deposit_id":   "550e8400-e29b-41d4-a716-446655440000",
				"owner":        "0x1111111111111111111111111111111111111111",
				"asset":        "ETH",
				"amount":       int64(1_00000000),
				"sequence":     int64(1),
				"timestamp_us": int64(1700000000000000),
			}
			tc.mutate(payload)

			_, err := ingestion.ParseRawEvent(rawFromJSON(t, payload), "Deposit")
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestParseWithdrawal_ScriptedCarriesSignature(t *testing.T) {
	payload := map[string]interface{}{
		"withdrawal_id": "550e8400-e29b-41d4-a716-446655440000",
		"owner":         "0x1111111111111111111111111111111111111111",
		"asset":         "USDC",
		"amount":        int64(5_00000000),
		"sequence":      int64(3),
		"timestamp_us":  int64(1700000000000000),
		"script_id":     "vault-sweeper",
		"signature":     "0xdeadbeef",
	}

	evt, err := ingestion.ParseRawEvent(rawFromJSON(t, payload), "Withdrawal")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	wd := evt.(*event.Withdrawal)
	if wd.ScriptID != "vault-sweeper" {
		t.Errorf("script id = %q", wd.ScriptID)
	}
	if len(wd.Signature) != 4 {
		t.Errorf("signature = %x", wd.Signature)
	}
}

func TestParsePriceObserved_NormalizesExponent(t *testing.T) {
	cases := []struct {
		name  string
		price int64
		expo  int32
		want  int64
	}{
		{"expo -8 passthrough", 50_000_00000000, -8, 50_000_00000000},
		{"expo -2", 12345, -2, 123_45000000},
		{"expo 0", 42, 0, 42_00000000},
		{"expo -10 truncates", 123456789012, -10, 1234567890},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			payload := map[string]interface{}{
				"feed_id":            "feed:btc",
				"price":              tc.price,
				"expo":               tc.expo,
				"confidence_bp":      int64(10),
				"price_sequence":     int64(1),
				"price_timestamp_us": int64(1700000000000000),
			}

			evt, err := ingestion.ParseRawEvent(rawFromJSON(t, payload), "PriceObserved")
			if err != nil {
				t.Fatalf("parse failed: %v", err)
			}
			po := evt.(*event.PriceObserved)
			if po.Price != tc.want {
				t.Errorf("price = %d, want %d", po.Price, tc.want)
			}
		})
	}
}

func TestParsePriceObserved_Invalid(t *testing.T) {
	base := func() map[string]interface{} {
		return map[string]interface{}{
			"feed_id":            "feed:btc",
			"price":              int64(100),
			"expo":               int32(-2),
			"confidence_bp":      int64(10),
			"price_sequence":     int64(1),
			"price_timestamp_us": int64(1700000000000000),
		}
	}

	t.Run("empty feed", func(t *testing.T) {
		payload := base()
		payload["feed_id"] = ""
		if _, err := ingestion.ParseRawEvent(rawFromJSON(t, payload), "PriceObserved"); err == nil {
			t.Fatal("expected error")
		}
	})

	t.Run("negative price", func(t *testing.T) {
		payload := base()
		payload["price"] = int64(-100)
		if _, err := ingestion.ParseRawEvent(rawFromJSON(t, payload), "PriceObserved"); err == nil {
			t.Fatal("expected error")
		}
	})

	t.Run("huge exponent", func(t *testing.T) {
		payload := base()
		payload["expo"] = int32(12)
		if _, err := ingestion.ParseRawEvent(rawFromJSON(t, payload), "PriceObserved"); err == nil {
			t.Fatal("expected error")
		}
	})
}

func TestParseExecutionStarted_TriggerValidation(t *testing.T) {
	base := func() map[string]interface{} {
		return map[string]interface{}{
			"execution_id": "550e8400-e29b-41d4-a716-446655440000",
			"owner":        "0x1111111111111111111111111111111111111111",
			"trigger":      "owner",
			"sequence":     int64(1),
			"timestamp_us": int64(1700000000000000),
		}
	}

	for _, trigger := range []string{"owner", "automation", "coordination"} {
		payload := base()
		payload["trigger"] = trigger
		if _, err := ingestion.ParseRawEvent(rawFromJSON(t, payload), "ExecutionStarted"); err != nil {
			t.Errorf("trigger %q rejected: %v", trigger, err)
		}
	}

	payload := base()
	payload["trigger"] = "cron"
	if _, err := ingestion.ParseRawEvent(rawFromJSON(t, payload), "ExecutionStarted"); err == nil {
		t.Error("unknown trigger accepted")
	}
}

func TestParseMessageReceived(t *testing.T) {
	payload := map[string]interface{}{
		"message_hash": "0x" + strings.Repeat("ab", 32),
		"source_chain": uint64(137),
		"target_chain": uint64(1),
		"nonce":        uint64(9),
		"kind":         "coordination",
		"payload":      "0x0102",
		"sent_at":      int64(1700000000),
		"valid_until":  int64(1700003600),
		"sequence":     int64(1),
	}

	evt, err := ingestion.ParseRawEvent(rawFromJSON(t, payload), "MessageReceived")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	mr := evt.(*event.MessageReceived)
	if mr.SourceChain != 137 || mr.TargetChain != 1 || mr.Nonce != 9 {
		t.Errorf("routing fields: %+v", mr)
	}
	if len(mr.Payload) != 2 {
		t.Errorf("payload = %x", mr.Payload)
	}
}

func TestParseUnknownEventType(t *testing.T) {
	raw := rawFromJSON(t, map[string]interface{}{})
	if _, err := ingestion.ParseRawEvent(raw, "TradeFill"); err == nil {
		t.Fatal("expected unknown event type error")
	}
}

func TestParseGrantCreated(t *testing.T) {
	payload := map[string]interface{}{
		"owner":        "0x1111111111111111111111111111111111111111",
		"delegate":     "0x2222222222222222222222222222222222222222",
		"public_key":   "0x04deadbeef",
		"threshold":    1,
		"signed_at":    int64(1700000000),
		"signature":    "0xfeedface",
		"sequence":     int64(3),
		"timestamp_us": int64(1700000000000000),
	}

	raw := rawFromJSON(t, payload)
	evt, err := ingestion.ParseRawEvent(raw, "GrantCreated")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	grant, ok := evt.(*event.GrantCreated)
	if !ok {
		t.Fatalf("expected *event.GrantCreated, got %T", evt)
	}
	if len(grant.PublicKey) != 5 || len(grant.Signature) != 4 {
		t.Errorf("decoded key/signature lengths: %d, %d", len(grant.PublicKey), len(grant.Signature))
	}
	if grant.SignedAt != 1700000000 || grant.Threshold != 1 {
		t.Errorf("unexpected fields: %+v", grant)
	}

	payload["signed_at"] = int64(0)
	if _, err := ingestion.ParseRawEvent(rawFromJSON(t, payload), "GrantCreated"); err == nil {
		t.Error("expected error for zero signed_at")
	}
}

func TestParseLockRequested(t *testing.T) {
	payload := map[string]interface{}{
		"request_id":   "550e8400-e29b-41d4-a716-446655440000",
		"owner":        "0x1111111111111111111111111111111111111111",
		"asset":        "SOL",
		"amount":       int64(40_00000000),
		"target_chain": uint64(137),
		"sequence":     int64(2),
		"timestamp_us": int64(1700000000000000),
	}

	raw := rawFromJSON(t, payload)
	evt, err := ingestion.ParseRawEvent(raw, "LockRequested")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	lock, ok := evt.(*event.LockRequested)
	if !ok {
		t.Fatalf("expected *event.LockRequested, got %T", evt)
	}
	if lock.Asset != "SOL" || lock.Amount != 40_00000000 || lock.TargetChain != 137 {
		t.Errorf("unexpected fields: %+v", lock)
	}

	payload["amount"] = int64(0)
	if _, err := ingestion.ParseRawEvent(rawFromJSON(t, payload), "LockRequested"); err == nil {
		t.Error("expected error for zero amount")
	}
}

func TestParseCoordinationRequested_LengthMismatch(t *testing.T) {
	payload := map[string]interface{}{
		"request_id":   "550e8400-e29b-41d4-a716-446655440000",
		"owner":        "0x1111111111111111111111111111111111111111",
		"chain_ids":    []uint64{137, 42161},
		"script_ids":   []string{"only-one"},
		"sequence":     int64(1),
		"timestamp_us": int64(1700000000000000),
	}

	_, err := ingestion.ParseRawEvent(rawFromJSON(t, payload), "CoordinationRequested")
	if err == nil || !strings.Contains(err.Error(), "mismatch") {
		t.Fatalf("expected length mismatch error, got %v", err)
	}

	payload["script_ids"] = []string{"a", "b"}
	if _, err := ingestion.ParseRawEvent(rawFromJSON(t, payload), "CoordinationRequested"); err != nil {
		t.Fatalf("parse failed: %v", err)
	}
}

func TestParseProposalSubmitted_DecodesHexPayloads(t *testing.T) {
	payload := map[string]interface{}{
		"submission_id": "550e8400-e29b-41d4-a716-446655440000",
		"proposer":      "0x1111111111111111111111111111111111111111",
		"description":   "pause polygon",
		"chain_ids":     []uint64{137},
		"payloads":      []string{"0x7061757365"},
		"sequence":      int64(1),
		"timestamp_us":  int64(1700000000000000),
	}

	evt, err := ingestion.ParseRawEvent(rawFromJSON(t, payload), "ProposalSubmitted")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	sub, ok := evt.(*event.ProposalSubmitted)
	if !ok {
		t.Fatalf("expected *event.ProposalSubmitted, got %T", evt)
	}
	if len(sub.Payloads) != 1 || string(sub.Payloads[0]) != "pause" {
		t.Errorf("payloads = %v", sub.Payloads)
	}

	payload["payloads"] = []string{"0x70", "0x71"}
	if _, err := ingestion.ParseRawEvent(rawFromJSON(t, payload), "ProposalSubmitted"); err == nil {
		t.Error("expected error for chain/payload length mismatch")
	}
}
