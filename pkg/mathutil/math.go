package mathutil

import (
	"math"
	"math/big"

	"github.com/shopspring/decimal"
)

var (
	//BigOne represents a single unit of an asset with precision 8
	BigOne = uint64(math.Pow10(8))
	//BigOneDecimal represents a single unit of an asset with precision 8 as decimal.Decimal
	BigOneDecimal = decimal.NewFromInt(int64(BigOne))
)

// FromUint64 returns the given amount as decimal.Decimal.
func FromUint64(x uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(x), 0)
}

// Mul takes two uint64 numbers and multiply them x * y and returns the result as decimal.Decimal
func Mul(x, y uint64) decimal.Decimal {
	return FromUint64(x).Mul(FromUint64(y))
}

// ToUint64 truncates the given decimal and returns it as uint64. Negative
// values are returned as zero.
func ToUint64(x decimal.Decimal) uint64 {
	if x.IsNegative() {
		return 0
	}
	return x.Truncate(0).BigInt().Uint64()
}

// Ratio returns x / y, or zero if y is zero.
func Ratio(x, y uint64) decimal.Decimal {
	if y == 0 {
		return decimal.Zero
	}
	return FromUint64(x).DivRound(FromUint64(y), 8)
}
