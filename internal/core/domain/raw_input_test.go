package domain_test

import (
	"fmt"
	"math"
	"strings"
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/stretchr/testify/require"
	"github.com/tdex-network/tdex-tradeprotocol/internal/core/domain"
	"pgregory.net/rapid"
)

func TestValidateRawInputs(t *testing.T) {
	valid := newTestInput(0, 1000)
	zero := newTestInput(1, 0)
	noScript := newTestInput(2, 1000)
	noScript.Script = nil
	badTxid := newTestInput(3, 1000)
	badTxid.Txid = "xyz"

	tests := []struct {
		name   string
		inputs []domain.RawTransactionInput
		expErr error
	}{
		{"valid", []domain.RawTransactionInput{valid, newTestInput(1, 10)}, nil},
		{"empty", nil, domain.ErrMissingInputs},
		{"zero_value", []domain.RawTransactionInput{zero}, domain.ErrInputZeroValue},
		{"missing_script", []domain.RawTransactionInput{noScript}, domain.ErrInputMissingScript},
		{"duplicated", []domain.RawTransactionInput{valid, valid}, domain.ErrDuplicatedInput},
		{
			"value_out_of_range",
			[]domain.RawTransactionInput{newTestInput(4, btcutil.MaxSatoshi+1)},
			domain.ErrInputValueOutOfRange,
		},
		{
			"total_out_of_range",
			[]domain.RawTransactionInput{
				newTestInput(5, btcutil.MaxSatoshi), newTestInput(6, 1),
			},
			domain.ErrInputValueOutOfRange,
		},
		{
			"wrapping_total",
			[]domain.RawTransactionInput{
				newTestInput(7, math.MaxUint64-1000), newTestInput(8, 5_001_051),
			},
			domain.ErrInputValueOutOfRange,
		},
	}

	for i := range tests {
		tt := tests[i]
		t.Run(tt.name, func(t *testing.T) {
			err := domain.ValidateRawInputs(tt.inputs)
			if tt.expErr == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tt.expErr)
		})
	}

	t.Run("invalid_txid", func(t *testing.T) {
		require.Error(t, domain.ValidateRawInputs([]domain.RawTransactionInput{badTxid}))
	})
}

func TestSumRawInputs(t *testing.T) {
	tests := []struct {
		name     string
		inputs   []domain.RawTransactionInput
		expected uint64
		expErr   error
	}{
		{"empty", nil, 0, nil},
		{
			"valid",
			[]domain.RawTransactionInput{newTestInput(0, 1000), newTestInput(1, 234)},
			1234, nil,
		},
		{
			"max_supply",
			[]domain.RawTransactionInput{
				newTestInput(0, btcutil.MaxSatoshi-1), newTestInput(1, 1),
			},
			btcutil.MaxSatoshi, nil,
		},
		{
			"wrapping_total",
			[]domain.RawTransactionInput{
				newTestInput(0, math.MaxUint64-1000), newTestInput(1, 5_001_051),
			},
			0, domain.ErrInputValueOutOfRange,
		},
	}

	for i := range tests {
		tt := tests[i]
		t.Run(tt.name, func(t *testing.T) {
			sum, err := domain.SumRawInputs(tt.inputs)
			if tt.expErr != nil {
				require.ErrorIs(t, err, tt.expErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.expected, sum)
		})
	}
}

func TestSumRawInputsNeverWraps(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		values := rapid.SliceOf(rapid.Uint64()).Draw(t, "values")
		inputs := make([]domain.RawTransactionInput, 0, len(values))
		for i, v := range values {
			inputs = append(inputs, newTestInput(uint32(i), v))
		}

		sum, err := domain.SumRawInputs(inputs)
		if err != nil {
			return
		}
		if sum > btcutil.MaxSatoshi {
			t.Fatalf("sum %d exceeds max supply", sum)
		}
		var total uint64
		for _, v := range values {
			if v > sum-total {
				t.Fatalf("sum %d lower than the values it adds up", sum)
			}
			total += v
		}
		if total != sum {
			t.Fatalf("got sum %d, expected %d", sum, total)
		}
	})
}

func newTestInput(index uint32, value uint64) domain.RawTransactionInput {
	return domain.RawTransactionInput{
		Txid:   strings.Repeat(fmt.Sprintf("%x", index%16), 64),
		Index:  index,
		Value:  value,
		Script: []byte{0x00, 0x14},
		Segwit: true,
	}
}
