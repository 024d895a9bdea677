package mathutil

import "github.com/shopspring/decimal"

// TradeFee returns the protocol fee for the given trade amount, where the
// fee rate is expressed in fee units per amount unit (ie. 0.0015 = 0.15%).
// The result is truncated and never below minFee.
func TradeFee(amount uint64, feeRate decimal.Decimal, minFee uint64) uint64 {
	fee := ToUint64(FromUint64(amount).Mul(feeRate))
	if fee < minFee {
		return minFee
	}
	return fee
}

// QuoteAmount converts a base amount with precision 8 into the quote
// amount, given a price expressed in quote units per one base unit.
func QuoteAmount(baseAmount uint64, price decimal.Decimal) uint64 {
	return ToUint64(FromUint64(baseAmount).Mul(price).Div(BigOneDecimal))
}

// IsRatioWithinTolerance returns whether x / y lies within
// [1 / tolerance, tolerance]. A tolerance of 1.5 accepts values deviating by
// at most 50% in either direction.
func IsRatioWithinTolerance(x, y uint64, tolerance decimal.Decimal) bool {
	if x == 0 || y == 0 {
		return false
	}
	X, Y := FromUint64(x), FromUint64(y)
	return X.LessThanOrEqual(Y.Mul(tolerance)) && Y.LessThanOrEqual(X.Mul(tolerance))
}
