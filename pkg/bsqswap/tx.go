package bsqswap

import (
	"fmt"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/tdex-network/tdex-tradeprotocol/pkg/txutil"
)

// TxParams holds everything needed to build the swap tx. Both parties build
// it from the same params and must obtain the very same unsigned tx.
type TxParams struct {
	BuyersBsqInputs  []Input
	SellersBtcInputs []Input

	SellersBsqPayoutAddress string
	SellersBsqPayout        uint64
	BuyersBsqChangeAddress  string
	BuyersBsqChange         uint64
	BuyersBtcPayoutAddress  string
	BuyersBtcPayout         uint64
	SellersBtcChangeAddress string
	SellersBtcChange        uint64

	Network *chaincfg.Params
}

// BuildSwapTx builds the unsigned swap tx. BSQ inputs come first, so that the
// BSQ outputs come first too and the colored coin rules assign them the BSQ.
// Outputs are: seller's BSQ payout, buyer's BSQ change (if any), buyer's BTC
// payout, seller's BTC change (if any).
func BuildSwapTx(p TxParams) (*wire.MsgTx, error) {
	if len(p.BuyersBsqInputs) <= 0 || len(p.SellersBtcInputs) <= 0 {
		return nil, ErrMissingInputs
	}

	tx := wire.NewMsgTx(wire.TxVersion)
	for _, in := range append(append([]Input{}, p.BuyersBsqInputs...), p.SellersBtcInputs...) {
		hash, err := chainhash.NewHashFromStr(in.Txid)
		if err != nil {
			return nil, fmt.Errorf("invalid input txid %s: %w", in.Txid, err)
		}
		tx.AddTxIn(wire.NewTxIn(wire.NewOutPoint(hash, in.Index), nil, nil))
	}

	outs := []struct {
		address string
		value   uint64
	}{
		{p.SellersBsqPayoutAddress, p.SellersBsqPayout},
		{p.BuyersBsqChangeAddress, p.BuyersBsqChange},
		{p.BuyersBtcPayoutAddress, p.BuyersBtcPayout},
		{p.SellersBtcChangeAddress, p.SellersBtcChange},
	}
	for i, out := range outs {
		// Change outputs are optional, payouts are not.
		if out.value == 0 && (i == 1 || i == 3) {
			continue
		}
		if out.value == 0 {
			return nil, fmt.Errorf("%w: zero payout", ErrNegativeAmount)
		}
		script, err := txutil.AddressScript(out.address, p.Network)
		if err != nil {
			return nil, err
		}
		tx.AddTxOut(wire.NewTxOut(int64(out.value), script))
	}
	return tx, nil
}

// VerifyProposedTx compares the tx proposed by the counterparty with the one
// built locally, ignoring any signature.
func VerifyProposedTx(expected, proposed *wire.MsgTx) error {
	equal, err := txutil.EqualUnsigned(expected, proposed)
	if err != nil {
		return err
	}
	if !equal {
		return ErrTxMismatch
	}
	return nil
}

// VerifyBsqBalance checks that the BSQ provided with the inputs is exactly
// what goes to the BSQ outputs plus both trade fees.
func VerifyBsqBalance(
	bsqInputTotal, sellersBsqPayout, buyersBsqChange, buyersTradeFee,
	sellersTradeFee uint64,
) error {
	expected := sellersBsqPayout + buyersBsqChange + buyersTradeFee + sellersTradeFee
	if bsqInputTotal != expected {
		return fmt.Errorf(
			"%w: inputs %d, outputs plus fees %d",
			ErrBsqBalanceMismatch, bsqInputTotal, expected,
		)
	}
	return nil
}

// VerifyMinerFee checks that the fee of the tx is at least vBytes times the
// fee rate.
func VerifyMinerFee(
	tx *wire.MsgTx, inputTotal, feeRatePerVbyte uint64, vBytes int,
) error {
	outputTotal := txutil.SumOutputs(tx)
	if outputTotal > inputTotal {
		return fmt.Errorf("%w: outputs exceed inputs", ErrMinerFeeTooLow)
	}
	fee := inputTotal - outputTotal
	minFee := feeRatePerVbyte * uint64(vBytes)
	if fee < minFee {
		return fmt.Errorf("%w: %d, min %d", ErrMinerFeeTooLow, fee, minFee)
	}
	return nil
}
