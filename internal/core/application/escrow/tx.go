package escrow

import (
	"fmt"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/tdex-network/tdex-tradeprotocol/internal/core/domain"
	"github.com/tdex-network/tdex-tradeprotocol/pkg/txutil"
)

// DepositTxParams are the inputs for building the deposit tx. Both parties
// build it from the very same params, so they obtain the same unsigned tx.
type DepositTxParams struct {
	TakerInputs          []domain.RawTransactionInput
	MakerInputs          []domain.RawTransactionInput
	BuyerMultisigPubKey  []byte
	SellerMultisigPubKey []byte
	DepositAmount        uint64
	TakerChangeAddress   string
	TakerChange          uint64
	MakerChangeAddress   string
	MakerChange          uint64
	Network              *chaincfg.Params
}

// BuildDepositTx returns the unsigned deposit tx. Inputs are those of the
// taker followed by those of the maker, outputs are the 2-of-2 deposit
// output, the taker change and the maker change. Zero changes are omitted.
func BuildDepositTx(p DepositTxParams) (*wire.MsgTx, error) {
	witnessScript, err := txutil.MultisigWitnessScript(
		p.BuyerMultisigPubKey, p.SellerMultisigPubKey,
	)
	if err != nil {
		return nil, err
	}
	depositScript, err := txutil.P2WSHScript(witnessScript)
	if err != nil {
		return nil, err
	}

	tx := wire.NewMsgTx(2)
	for _, inputs := range [][]domain.RawTransactionInput{p.TakerInputs, p.MakerInputs} {
		for _, in := range inputs {
			outpoint, err := in.OutPoint()
			if err != nil {
				return nil, err
			}
			tx.AddTxIn(wire.NewTxIn(outpoint, nil, nil))
		}
	}

	tx.AddTxOut(wire.NewTxOut(int64(p.DepositAmount), depositScript))
	changes := []struct {
		address string
		amount  uint64
	}{
		{p.TakerChangeAddress, p.TakerChange},
		{p.MakerChangeAddress, p.MakerChange},
	}
	for _, c := range changes {
		if c.amount == 0 {
			continue
		}
		script, err := txutil.AddressScript(c.address, p.Network)
		if err != nil {
			return nil, err
		}
		tx.AddTxOut(wire.NewTxOut(int64(c.amount), script))
	}

	totIn, err := domain.SumRawInputs(append(
		append([]domain.RawTransactionInput{}, p.TakerInputs...), p.MakerInputs...,
	))
	if err != nil {
		return nil, err
	}
	if totOut := txutil.SumOutputs(tx); totIn < totOut {
		return nil, fmt.Errorf(
			"%w: inputs %d, outputs %d", ErrInsufficientInputs, totIn, totOut,
		)
	}
	return tx, nil
}

// PayoutTxParams are the inputs for building the payout tx spending the
// deposit output.
type PayoutTxParams struct {
	DepositTxId         string
	DepositAmount       uint64
	BuyerPayoutAddress  string
	BuyerPayout         uint64
	SellerPayoutAddress string
	SellerPayout        uint64
	Network             *chaincfg.Params
}

// BuildPayoutTx returns the unsigned payout tx. The difference between the
// deposit output and the payouts is the mining fee.
func BuildPayoutTx(p PayoutTxParams) (*wire.MsgTx, error) {
	hash, err := chainhash.NewHashFromStr(p.DepositTxId)
	if err != nil {
		return nil, fmt.Errorf("invalid deposit txid: %w", err)
	}
	if p.BuyerPayout+p.SellerPayout > p.DepositAmount {
		return nil, fmt.Errorf(
			"%w: deposit %d, payouts %d",
			ErrInsufficientInputs, p.DepositAmount, p.BuyerPayout+p.SellerPayout,
		)
	}

	tx := wire.NewMsgTx(2)
	tx.AddTxIn(wire.NewTxIn(wire.NewOutPoint(hash, 0), nil, nil))

	payouts := []struct {
		address string
		amount  uint64
	}{
		{p.BuyerPayoutAddress, p.BuyerPayout},
		{p.SellerPayoutAddress, p.SellerPayout},
	}
	for _, po := range payouts {
		if po.amount == 0 {
			continue
		}
		script, err := txutil.AddressScript(po.address, p.Network)
		if err != nil {
			return nil, err
		}
		tx.AddTxOut(wire.NewTxOut(int64(po.amount), script))
	}
	return tx, nil
}

// EstimateDepositTxFee returns the fee of the deposit tx for the given taker
// inputs. The maker is assumed to contribute with a single segwit input.
func EstimateDepositTxFee(
	takerInputs []domain.RawTransactionInput, feeRatePerVbyte uint64,
) uint64 {
	ins := make([]int, 0, len(takerInputs)+1)
	for _, in := range takerInputs {
		if in.Segwit {
			ins = append(ins, txutil.P2WPKH)
		} else {
			ins = append(ins, txutil.P2PKH)
		}
	}
	ins = append(ins, txutil.P2WPKH)
	outs := []int{txutil.P2WSH_MULTISIG_2OF2, txutil.P2WPKH, txutil.P2WPKH}

	return uint64(txutil.EstimateTxSize(ins, outs)) * feeRatePerVbyte
}
