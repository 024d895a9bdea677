package escrow_test

import (
	"math"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/stretchr/testify/require"
	"github.com/tdex-network/tdex-tradeprotocol/internal/core/application/escrow"
	"github.com/tdex-network/tdex-tradeprotocol/internal/core/domain"
	"github.com/tdex-network/tdex-tradeprotocol/pkg/txutil"
)

func newTestAddress(t *testing.T) string {
	key, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	addr, err := btcutil.NewAddressWitnessPubKeyHash(
		btcutil.Hash160(key.PubKey().SerializeCompressed()), regtest,
	)
	require.NoError(t, err)
	return addr.EncodeAddress()
}

func newTestPubKey(t *testing.T) []byte {
	key, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	return key.PubKey().SerializeCompressed()
}

func newTestInput(label string, value uint64) domain.RawTransactionInput {
	return domain.RawTransactionInput{
		Txid:   chainhash.HashH([]byte(label)).String(),
		Index:  1,
		Value:  value,
		Script: []byte{0, 20},
		Segwit: true,
	}
}

func TestBuildDepositTx(t *testing.T) {
	buyerKey, sellerKey := newTestPubKey(t), newTestPubKey(t)
	takerChangeAddr, makerChangeAddr := newTestAddress(t), newTestAddress(t)

	tests := []struct {
		name            string
		takerInputs     []domain.RawTransactionInput
		makerInputs     []domain.RawTransactionInput
		takerChange     uint64
		makerChange     uint64
		expectedOutputs int
	}{
		{
			name:            "with_both_changes",
			takerInputs:     []domain.RawTransactionInput{newTestInput("t1", 60000), newTestInput("t2", 50000)},
			makerInputs:     []domain.RawTransactionInput{newTestInput("m1", 200000)},
			takerChange:     9000,
			makerChange:     100000,
			expectedOutputs: 3,
		},
		{
			name:            "without_changes",
			takerInputs:     []domain.RawTransactionInput{newTestInput("t1", 101000)},
			makerInputs:     []domain.RawTransactionInput{newTestInput("m1", 100000)},
			expectedOutputs: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx, err := escrow.BuildDepositTx(escrow.DepositTxParams{
				TakerInputs:          tt.takerInputs,
				MakerInputs:          tt.makerInputs,
				BuyerMultisigPubKey:  buyerKey,
				SellerMultisigPubKey: sellerKey,
				DepositAmount:        200000,
				TakerChangeAddress:   takerChangeAddr,
				TakerChange:          tt.takerChange,
				MakerChangeAddress:   makerChangeAddr,
				MakerChange:          tt.makerChange,
				Network:              regtest,
			})
			require.NoError(t, err)
			require.Equal(t, int32(2), tx.Version)
			require.Len(t, tx.TxIn, len(tt.takerInputs)+len(tt.makerInputs))
			require.Len(t, tx.TxOut, tt.expectedOutputs)

			inputs := append(append([]domain.RawTransactionInput{}, tt.takerInputs...), tt.makerInputs...)
			for i, in := range inputs {
				require.Equal(t, in.Txid, tx.TxIn[i].PreviousOutPoint.Hash.String())
				require.Equal(t, in.Index, tx.TxIn[i].PreviousOutPoint.Index)
			}

			witnessScript, err := txutil.MultisigWitnessScript(buyerKey, sellerKey)
			require.NoError(t, err)
			depositScript, err := txutil.P2WSHScript(witnessScript)
			require.NoError(t, err)
			require.Equal(t, depositScript, tx.TxOut[0].PkScript)
			require.Equal(t, int64(200000), tx.TxOut[0].Value)
		})
	}

	t.Run("insufficient_inputs", func(t *testing.T) {
		_, err := escrow.BuildDepositTx(escrow.DepositTxParams{
			TakerInputs:          []domain.RawTransactionInput{newTestInput("t1", 1000)},
			MakerInputs:          []domain.RawTransactionInput{newTestInput("m1", 1000)},
			BuyerMultisigPubKey:  buyerKey,
			SellerMultisigPubKey: sellerKey,
			DepositAmount:        200000,
			Network:              regtest,
		})
		require.ErrorIs(t, err, escrow.ErrInsufficientInputs)
	})

	t.Run("inputs_value_out_of_range", func(t *testing.T) {
		_, err := escrow.BuildDepositTx(escrow.DepositTxParams{
			TakerInputs:          []domain.RawTransactionInput{newTestInput("t1", math.MaxUint64-1000)},
			MakerInputs:          []domain.RawTransactionInput{newTestInput("m1", 5_001_051)},
			BuyerMultisigPubKey:  buyerKey,
			SellerMultisigPubKey: sellerKey,
			DepositAmount:        5_000_000,
			Network:              regtest,
		})
		require.ErrorIs(t, err, domain.ErrInputValueOutOfRange)
	})

	t.Run("invalid_multisig_key", func(t *testing.T) {
		_, err := escrow.BuildDepositTx(escrow.DepositTxParams{
			TakerInputs:          []domain.RawTransactionInput{newTestInput("t1", 300000)},
			BuyerMultisigPubKey:  []byte{1, 2, 3},
			SellerMultisigPubKey: sellerKey,
			DepositAmount:        200000,
			Network:              regtest,
		})
		require.Error(t, err)
	})
}

func TestBuildPayoutTx(t *testing.T) {
	depositTxId := chainhash.HashH([]byte("deposit")).String()
	buyerAddr, sellerAddr := newTestAddress(t), newTestAddress(t)

	tests := []struct {
		name            string
		buyerPayout     uint64
		sellerPayout    uint64
		expectedOutputs int
	}{
		{"both_payouts", 150000, 40000, 2},
		{"buyer_only", 190000, 0, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx, err := escrow.BuildPayoutTx(escrow.PayoutTxParams{
				DepositTxId:         depositTxId,
				DepositAmount:       200000,
				BuyerPayoutAddress:  buyerAddr,
				BuyerPayout:         tt.buyerPayout,
				SellerPayoutAddress: sellerAddr,
				SellerPayout:        tt.sellerPayout,
				Network:             regtest,
			})
			require.NoError(t, err)
			require.Len(t, tx.TxIn, 1)
			require.Equal(t, depositTxId, tx.TxIn[0].PreviousOutPoint.Hash.String())
			require.Zero(t, tx.TxIn[0].PreviousOutPoint.Index)
			require.Len(t, tx.TxOut, tt.expectedOutputs)
			require.Equal(t, int64(tt.buyerPayout), tx.TxOut[0].Value)
			require.Equal(t, uint64(200000)-tt.buyerPayout-tt.sellerPayout, 200000-txutil.SumOutputs(tx))
		})
	}

	t.Run("payouts_exceed_deposit", func(t *testing.T) {
		_, err := escrow.BuildPayoutTx(escrow.PayoutTxParams{
			DepositTxId:         depositTxId,
			DepositAmount:       200000,
			BuyerPayoutAddress:  buyerAddr,
			BuyerPayout:         150000,
			SellerPayoutAddress: sellerAddr,
			SellerPayout:        60000,
			Network:             regtest,
		})
		require.ErrorIs(t, err, escrow.ErrInsufficientInputs)
	})

	t.Run("invalid_deposit_txid", func(t *testing.T) {
		_, err := escrow.BuildPayoutTx(escrow.PayoutTxParams{
			DepositTxId:   "not-a-txid",
			DepositAmount: 200000,
			Network:       regtest,
		})
		require.Error(t, err)
	})
}

func TestEstimateDepositTxFee(t *testing.T) {
	segwit := []domain.RawTransactionInput{{Segwit: true}}
	legacy := []domain.RawTransactionInput{{Segwit: false}}
	two := []domain.RawTransactionInput{{Segwit: true}, {Segwit: true}}

	require.Zero(t, escrow.EstimateDepositTxFee(segwit, 0))
	require.Equal(t,
		2*escrow.EstimateDepositTxFee(segwit, 1),
		escrow.EstimateDepositTxFee(segwit, 2),
	)
	require.Greater(t,
		escrow.EstimateDepositTxFee(legacy, 1), escrow.EstimateDepositTxFee(segwit, 1),
	)
	require.Greater(t,
		escrow.EstimateDepositTxFee(two, 1), escrow.EstimateDepositTxFee(segwit, 1),
	)
}
