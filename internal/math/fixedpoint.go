package math

import (
	"fmt"
	"math/big"
	"sync"
)

// DecimalConfig defines fixed-point precision
type DecimalConfig struct {
	DecimalPrecision int   // Number of decimal places
	Scale            int64 // 10^DecimalPrecision
}

var (
	// ValueConfig is the canonical 8-decimal fixed point used for prices,
	// amounts and USD values throughout the engine.
	ValueConfig = DecimalConfig{DecimalPrecision: 8, Scale: 100_000_000}
)

// ValueScale is 10^8, the scale of all prices and amounts.
const ValueScale int64 = 100_000_000

// BasisPointDenom is the basis-point denominator (10000 = 100%).
const BasisPointDenom int64 = 10_000

// MaxExponentShift bounds how many decimal digits a source price exponent
// may be shifted when normalizing to 8 decimals.
const MaxExponentShift = 10

// Int128 is a pooled big.Int for intermediate calculations
var int128Pool = &sync.Pool{
	New: func() interface{} {
		return new(big.Int)
	},
}

func getInt128() *big.Int {
	return int128Pool.Get().(*big.Int)
}

func putInt128(v *big.Int) {
	v.SetInt64(0) // Clear before returning to pool
	int128Pool.Put(v)
}

// MultiplyInt128 performs a * b using int128 to prevent overflow
func MultiplyInt128(a, b int64) *big.Int {
	result := getInt128()
	result.Mul(big.NewInt(a), big.NewInt(b))
	return result
}

type RoundingMode int

const (
	RoundDown RoundingMode = iota // Truncation (default: deterministic floor for bp math)
	RoundHalfEven                 // Banker's rounding
	RoundUp
)

// DivideInt128 performs numerator / denominator with rounding
func DivideInt128(numerator *big.Int, denominator int64, roundingMode RoundingMode) int64 {
	denom := big.NewInt(denominator)
	quotient := getInt128()
	remainder := getInt128()

	quotient.DivMod(numerator, denom, remainder)

	result := quotient.Int64()

	switch roundingMode {
	case RoundHalfEven:
		half := big.NewInt(denominator / 2)
		cmp := remainder.Cmp(half)
		if cmp > 0 {
			result++
		} else if cmp == 0 && denominator%2 == 0 {
			if result%2 != 0 {
				result++
			}
		}
	case RoundUp:
		if remainder.Sign() != 0 {
			result++
		}
	}

	putInt128(quotient)
	putInt128(remainder)

	return result
}

// DropBP computes the price decline from old to new in basis points,
// rounded down. A price increase yields 0 (never a crash).
func DropBP(oldPrice, newPrice int64) int64 {
	if oldPrice <= 0 || newPrice >= oldPrice {
		return 0
	}
	num := MultiplyInt128(oldPrice-newPrice, BasisPointDenom)
	result := DivideInt128(num, oldPrice, RoundDown)
	putInt128(num)
	return result
}

// RatioBP computes part*10000/whole rounded down.
func RatioBP(part, whole int64) int64 {
	if whole <= 0 {
		return 0
	}
	num := MultiplyInt128(part, BasisPointDenom)
	result := DivideInt128(num, whole, RoundDown)
	putInt128(num)
	return result
}

// ApplyBP scales amount by bp/10000 rounded down.
func ApplyBP(amount, bp int64) int64 {
	num := MultiplyInt128(amount, bp)
	result := DivideInt128(num, BasisPointDenom, RoundDown)
	putInt128(num)
	return result
}

// MulValue multiplies two 8-decimal fixed-point values (e.g. amount * price)
// producing an 8-decimal result with banker's rounding.
func MulValue(a, b int64) int64 {
	num := MultiplyInt128(a, b)
	result := DivideInt128(num, ValueScale, RoundHalfEven)
	putInt128(num)
	return result
}

var pow10 = [MaxExponentShift + 1]int64{
	1, 10, 100, 1_000, 10_000, 100_000,
	1_000_000, 10_000_000, 100_000_000, 1_000_000_000, 10_000_000_000,
}

// ConvertExponent normalizes a source price published with an arbitrary
// decimal exponent to the engine's 8-decimal fixed point. A feed reporting
// price=12345 expo=-2 means 123.45, which normalizes to 123.45 * 1e8.
// Shifts of more than MaxExponentShift digits are refused rather than
// silently truncated.
func ConvertExponent(price int64, expo int32) (int64, error) {
	if price <= 0 {
		return 0, fmt.Errorf("non-positive price: %d", price)
	}

	// Normalized = price * 10^(8+expo)
	shift := int(8 + expo)
	if shift > MaxExponentShift || shift < -MaxExponentShift {
		return 0, fmt.Errorf("exponent shift %d exceeds %d digits", shift, MaxExponentShift)
	}

	if shift >= 0 {
		num := MultiplyInt128(price, pow10[shift])
		if !num.IsInt64() {
			putInt128(num)
			return 0, fmt.Errorf("normalized price overflows int64: %d e%d", price, expo)
		}
		result := num.Int64()
		putInt128(num)
		return result, nil
	}

	return price / pow10[-shift], nil
}
