package bsqswap

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tdex-network/tdex-tradeprotocol/pkg/mathutil"
)

// Request holds the terms a taker proposes for a swap.
type Request struct {
	Amount        uint64
	TradeDate     time.Time
	TxFeePerVbyte uint64
	MakerFee      uint64
	TakerFee      uint64
}

// Terms holds what the maker independently knows about the swap.
type Terms struct {
	MinAmount        uint64
	MaxAmount        uint64
	OwnFeeRate       uint64
	ExpectedMakerFee uint64
	ExpectedTakerFee uint64
	Now              time.Time
}

// AcceptanceConfig holds the tolerances used to accept a request.
type AcceptanceConfig struct {
	TradeDateTolerance time.Duration
	FeeRateTolerance   decimal.Decimal
}

// DefaultAcceptanceConfig accepts fee rates deviating by at most 50% from the
// maker's one and trade dates at most one minute off.
var DefaultAcceptanceConfig = AcceptanceConfig{
	TradeDateTolerance: time.Minute,
	FeeRateTolerance:   decimal.NewFromFloat(1.5),
}

// ValidateRequest checks a swap request against the maker's terms.
func ValidateRequest(req Request, terms Terms, cfg AcceptanceConfig) error {
	if req.Amount < terms.MinAmount || req.Amount > terms.MaxAmount {
		return fmt.Errorf(
			"%w: %d not in [%d, %d]",
			ErrAmountOutOfRange, req.Amount, terms.MinAmount, terms.MaxAmount,
		)
	}

	delta := terms.Now.Sub(req.TradeDate)
	if delta < 0 {
		delta = -delta
	}
	if delta > cfg.TradeDateTolerance {
		return fmt.Errorf("%w: off by %s", ErrTradeDateOutOfTolerance, delta)
	}

	if !mathutil.IsRatioWithinTolerance(
		req.TxFeePerVbyte, terms.OwnFeeRate, cfg.FeeRateTolerance,
	) {
		return fmt.Errorf(
			"%w: peer %d sat/vB, own %d sat/vB (ratio %s)",
			ErrFeeRateOutOfTolerance, req.TxFeePerVbyte, terms.OwnFeeRate,
			mathutil.Ratio(req.TxFeePerVbyte, terms.OwnFeeRate),
		)
	}

	if req.MakerFee != terms.ExpectedMakerFee {
		return fmt.Errorf(
			"%w: got %d, expected %d",
			ErrMakerFeeMismatch, req.MakerFee, terms.ExpectedMakerFee,
		)
	}
	if req.TakerFee != terms.ExpectedTakerFee {
		return fmt.Errorf(
			"%w: got %d, expected %d",
			ErrTakerFeeMismatch, req.TakerFee, terms.ExpectedTakerFee,
		)
	}
	return nil
}
