package math_test

import (
	"testing"

	fpmath "github.com/GuardX-protocol/guardx-engine/internal/math"
)

func TestDropBP_Decline(t *testing.T) {
	// 1000 -> 750 is a 25% drop = 2500 bp
	got := fpmath.DropBP(1000*fpmath.ValueScale, 750*fpmath.ValueScale)
	if got != 2500 {
		t.Errorf("got %d bp, want 2500", got)
	}
}

func TestDropBP_IncreaseIsZero(t *testing.T) {
	if got := fpmath.DropBP(1000, 1200); got != 0 {
		t.Errorf("price increase should yield 0 bp, got %d", got)
	}
	if got := fpmath.DropBP(1000, 1000); got != 0 {
		t.Errorf("flat price should yield 0 bp, got %d", got)
	}
}

func TestDropBP_RoundsDown(t *testing.T) {
	// 3 -> 2 is 33.33..% = 3333 bp after truncation
	if got := fpmath.DropBP(3, 2); got != 3333 {
		t.Errorf("got %d bp, want 3333", got)
	}
}

func TestRatioBP(t *testing.T) {
	if got := fpmath.RatioBP(3, 5); got != 6000 {
		t.Errorf("3/5 should be 6000 bp, got %d", got)
	}
	if got := fpmath.RatioBP(1, 3); got != 3333 {
		t.Errorf("1/3 should floor to 3333 bp, got %d", got)
	}
	if got := fpmath.RatioBP(1, 0); got != 0 {
		t.Errorf("zero denominator should yield 0, got %d", got)
	}
}

func TestMulValue(t *testing.T) {
	// 2.5 units at $4.00 = $10.00
	amount := int64(2_50000000)
	price := int64(4_00000000)
	if got := fpmath.MulValue(amount, price); got != 10_00000000 {
		t.Errorf("got %d, want 10_00000000", got)
	}
}

func TestConvertExponent_Negative(t *testing.T) {
	// 12345 e-2 = 123.45 -> 123.45 * 1e8
	got, err := fpmath.ConvertExponent(12345, -2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 123_45000000 {
		t.Errorf("got %d, want 123_45000000", got)
	}
}

func TestConvertExponent_AlreadyNormalized(t *testing.T) {
	got, err := fpmath.ConvertExponent(99_00000000, -8)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 99_00000000 {
		t.Errorf("got %d, want 99_00000000", got)
	}
}

func TestConvertExponent_DeepNegative(t *testing.T) {
	// e-12 shifts right by 4 digits
	got, err := fpmath.ConvertExponent(5_0000_0000_0000, -12)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 5_00000000 {
		t.Errorf("got %d, want 5_00000000", got)
	}
}

func TestConvertExponent_ShiftTooLarge(t *testing.T) {
	if _, err := fpmath.ConvertExponent(1, 3); err == nil {
		t.Error("shift of 11 digits should be rejected")
	}
	if _, err := fpmath.ConvertExponent(1, -19); err == nil {
		t.Error("shift of -11 digits should be rejected")
	}
}

func TestConvertExponent_NonPositivePrice(t *testing.T) {
	if _, err := fpmath.ConvertExponent(0, -8); err == nil {
		t.Error("zero price should be rejected")
	}
}
