package bsqswap_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tdex-network/tdex-tradeprotocol/pkg/bsqswap"
)

func TestValidateRequest(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	terms := bsqswap.Terms{
		MinAmount:        50_000_000,
		MaxAmount:        100_000_000,
		OwnFeeRate:       10,
		ExpectedMakerFee: 50,
		ExpectedTakerFee: 150,
		Now:              now,
	}
	validRequest := func() bsqswap.Request {
		return bsqswap.Request{
			Amount:        75_000_000,
			TradeDate:     now.Add(-10 * time.Second),
			TxFeePerVbyte: 12,
			MakerFee:      50,
			TakerFee:      150,
		}
	}

	tests := []struct {
		name   string
		mutate func(r *bsqswap.Request)
		expErr error
	}{
		{"valid", func(r *bsqswap.Request) {}, nil},
		{"min_amount", func(r *bsqswap.Request) { r.Amount = terms.MinAmount }, nil},
		{"max_amount", func(r *bsqswap.Request) { r.Amount = terms.MaxAmount }, nil},
		{"amount_too_low", func(r *bsqswap.Request) { r.Amount = terms.MinAmount - 1 }, bsqswap.ErrAmountOutOfRange},
		{"amount_too_high", func(r *bsqswap.Request) { r.Amount = terms.MaxAmount + 1 }, bsqswap.ErrAmountOutOfRange},
		{"stale_date", func(r *bsqswap.Request) { r.TradeDate = now.Add(-2 * time.Minute) }, bsqswap.ErrTradeDateOutOfTolerance},
		{"future_date", func(r *bsqswap.Request) { r.TradeDate = now.Add(2 * time.Minute) }, bsqswap.ErrTradeDateOutOfTolerance},
		{"fee_rate_upper_bound", func(r *bsqswap.Request) { r.TxFeePerVbyte = 15 }, nil},
		{"fee_rate_too_high", func(r *bsqswap.Request) { r.TxFeePerVbyte = 16 }, bsqswap.ErrFeeRateOutOfTolerance},
		{"fee_rate_lower_bound", func(r *bsqswap.Request) { r.TxFeePerVbyte = 7 }, nil},
		{"fee_rate_too_low", func(r *bsqswap.Request) { r.TxFeePerVbyte = 6 }, bsqswap.ErrFeeRateOutOfTolerance},
		{"wrong_maker_fee", func(r *bsqswap.Request) { r.MakerFee = 49 }, bsqswap.ErrMakerFeeMismatch},
		{"wrong_taker_fee", func(r *bsqswap.Request) { r.TakerFee = 151 }, bsqswap.ErrTakerFeeMismatch},
	}

	for i := range tests {
		tt := tests[i]
		t.Run(tt.name, func(t *testing.T) {
			req := validRequest()
			tt.mutate(&req)

			err := bsqswap.ValidateRequest(req, terms, bsqswap.DefaultAcceptanceConfig)
			if tt.expErr == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tt.expErr)
		})
	}
}
