package bsqswap

import (
	"fmt"

	"github.com/btcsuite/btcd/wire"
	"github.com/tdex-network/tdex-tradeprotocol/internal/core/application/protocol"
	"github.com/tdex-network/tdex-tradeprotocol/internal/core/domain"
	"github.com/tdex-network/tdex-tradeprotocol/internal/core/ports"
	bsq "github.com/tdex-network/tdex-tradeprotocol/pkg/bsqswap"
)

// contribution is what one party brings to the swap tx. The buyer brings BSQ
// and gets BTC, the seller brings BTC and gets BSQ.
type contribution struct {
	inputs        []domain.RawTransactionInput
	changeAddress string
	change        uint64
	payoutAddress string
}

func ownContribution(m *domain.ProcessModel) contribution {
	return contribution{m.RawInputs, m.ChangeAddress, m.ChangeValue, m.PayoutAddress}
}

func peerContribution(p domain.TradingPeer) contribution {
	return contribution{p.RawInputs, p.ChangeAddress, p.ChangeValue, p.PayoutAddress}
}

func buyerAndSeller(tc *protocol.TaskContext) (buyer, seller contribution) {
	own, peer := ownContribution(tc.Model), peerContribution(tc.Model.Peer)
	if tc.IsBuyer() {
		return own, peer
	}
	return peer, own
}

// tradeFees returns the BSQ trade fees of buyer and seller.
func tradeFees(t *domain.Trade) (buyerFee, sellerFee uint64) {
	d := t.BsqSwap
	if t.Direction == domain.TradeBuy {
		return d.MakerFee, d.TakerFee
	}
	return d.TakerFee, d.MakerFee
}

func toSwapInputs(inputs []domain.RawTransactionInput) []bsq.Input {
	res := make([]bsq.Input, 0, len(inputs))
	for _, in := range inputs {
		res = append(res, bsq.Input{
			Txid:   in.Txid,
			Index:  in.Index,
			Value:  in.Value,
			Script: in.Script,
			Segwit: in.Segwit,
		})
	}
	return res
}

func fromSwapInputs(inputs []bsq.Input) []domain.RawTransactionInput {
	res := make([]domain.RawTransactionInput, 0, len(inputs))
	for _, in := range inputs {
		res = append(res, domain.RawTransactionInput{
			Txid:   in.Txid,
			Index:  in.Index,
			Value:  in.Value,
			Script: in.Script,
			Segwit: in.Segwit,
		})
	}
	return res
}

// requiredValue returns what a party must commit with the given inputs and
// change: BSQ for the buyer, BTC for the seller.
func requiredValue(
	t *domain.Trade, isBuyer bool, inputs []domain.RawTransactionInput, change uint64,
) (uint64, error) {
	buyerFee, sellerFee := tradeFees(t)
	d := t.BsqSwap
	if isBuyer {
		return bsq.BuyersBsqInputValue(d.BsqAmount, buyerFee), nil
	}
	vBytes := bsq.VirtualSize(toSwapInputs(inputs), change)
	return bsq.SellersBtcInputValue(d.BtcAmount, d.TxFeePerVbyte, vBytes, sellerFee)
}

func checkContribution(t *domain.Trade, isBuyer bool, c contribution) error {
	if len(c.inputs) <= 0 {
		return bsq.ErrMissingInputs
	}
	total, err := domain.SumRawInputs(c.inputs)
	if err != nil {
		return err
	}
	if total < c.change {
		return fmt.Errorf("%w: change exceeds inputs", ErrContributionMismatch)
	}
	required, err := requiredValue(t, isBuyer, c.inputs, c.change)
	if err != nil {
		return err
	}
	if committed := total - c.change; committed != required {
		return fmt.Errorf(
			"%w: committed %d, required %d", ErrContributionMismatch, committed, required,
		)
	}
	return nil
}

// selectInputs selects and reserves the inputs of the local party, and
// derives its payout and change addresses.
func selectInputs(tc *protocol.TaskContext) error {
	t := tc.Trade
	wallet := tc.Provider.Wallet
	buyerFee, sellerFee := tradeFees(t)

	var (
		inputs                  []domain.RawTransactionInput
		change                  uint64
		payoutAsset, ownedAsset ports.Asset
	)
	if tc.IsBuyer() {
		payoutAsset, ownedAsset = ports.AssetBtc, ports.AssetBsq
		selection, err := wallet.SelectInputs(
			tc.Ctx, ports.AssetBsq, bsq.BuyersBsqInputValue(t.BsqSwap.BsqAmount, buyerFee),
		)
		if err != nil {
			return err
		}
		inputs, change = selection.Inputs, selection.Change
	} else {
		payoutAsset, ownedAsset = ports.AssetBsq, ports.AssetBtc
		selector := func(target uint64) ([]bsq.Input, uint64, error) {
			selection, err := wallet.SelectInputs(tc.Ctx, ports.AssetBtc, target)
			if err != nil {
				return nil, 0, err
			}
			return toSwapInputs(selection.Inputs), selection.Change, nil
		}
		selection, err := bsq.SelectSellersBtcInputs(
			t.BsqSwap.BtcAmount, t.BsqSwap.TxFeePerVbyte, sellerFee, selector,
		)
		if err != nil {
			return err
		}
		inputs, change = fromSwapInputs(selection.Inputs), selection.Change
	}
	if err := domain.ValidateRawInputs(inputs); err != nil {
		return err
	}

	if err := wallet.ReserveInputs(tc.Ctx, t.Id, inputs); err != nil {
		return err
	}
	payoutAddress, err := wallet.DeriveAddress(tc.Ctx, payoutAsset, t.Id)
	if err != nil {
		return err
	}
	changeAddress := ""
	if change > 0 {
		if changeAddress, err = wallet.DeriveAddress(tc.Ctx, ownedAsset, t.Id); err != nil {
			return err
		}
	}

	m := tc.Model
	m.RawInputs = inputs
	m.ChangeValue = change
	m.ChangeAddress = changeAddress
	m.PayoutAddress = payoutAddress
	return nil
}

// swapTx builds the unsigned swap tx from the contributions of both parties
// and returns it with the whole tx vsize.
func swapTx(tc *protocol.TaskContext) (*wire.MsgTx, int, error) {
	t := tc.Trade
	buyer, seller := buyerAndSeller(tc)
	buyerFee, sellerFee := tradeFees(t)

	buyerInputs, sellerInputs := toSwapInputs(buyer.inputs), toSwapInputs(seller.inputs)
	buyerVBytes := bsq.VirtualSize(buyerInputs, buyer.change)
	sellerVBytes := bsq.VirtualSize(sellerInputs, seller.change)

	buyerPayout, err := bsq.BuyersBtcPayoutValue(
		t.BsqSwap.BtcAmount, t.BsqSwap.TxFeePerVbyte, buyerVBytes, buyerFee,
	)
	if err != nil {
		return nil, 0, err
	}
	sellerPayout, err := bsq.SellersBsqPayoutValue(t.BsqSwap.BsqAmount, sellerFee)
	if err != nil {
		return nil, 0, err
	}

	tx, err := bsq.BuildSwapTx(bsq.TxParams{
		BuyersBsqInputs:         buyerInputs,
		SellersBtcInputs:        sellerInputs,
		SellersBsqPayoutAddress: seller.payoutAddress,
		SellersBsqPayout:        sellerPayout,
		BuyersBsqChangeAddress:  buyer.changeAddress,
		BuyersBsqChange:         buyer.change,
		BuyersBtcPayoutAddress:  buyer.payoutAddress,
		BuyersBtcPayout:         buyerPayout,
		SellersBtcChangeAddress: seller.changeAddress,
		SellersBtcChange:        seller.change,
		Network:                 tc.Config.Network,
	})
	if err != nil {
		return nil, 0, err
	}
	return tx, buyerVBytes + sellerVBytes, nil
}

// swapPrevOuts returns the outputs spent by the swap tx, in the order of its
// inputs.
func swapPrevOuts(tc *protocol.TaskContext) []domain.RawTransactionInput {
	buyer, seller := buyerAndSeller(tc)
	return append(append([]domain.RawTransactionInput{}, buyer.inputs...), seller.inputs...)
}

func inputIndexes(offset, count int) []int {
	idxs := make([]int, 0, count)
	for i := 0; i < count; i++ {
		idxs = append(idxs, offset+i)
	}
	return idxs
}

// ownInputIndexes returns the indexes of the local inputs within the swap tx.
// The buyer's BSQ inputs come first.
func ownInputIndexes(tc *protocol.TaskContext) []int {
	offset := 0
	if !tc.IsBuyer() {
		offset = len(tc.Model.Peer.RawInputs)
	}
	return inputIndexes(offset, len(tc.Model.RawInputs))
}

func peerInputIndexes(tc *protocol.TaskContext) []int {
	offset := 0
	if tc.IsBuyer() {
		offset = len(tc.Model.RawInputs)
	}
	return inputIndexes(offset, len(tc.Model.Peer.RawInputs))
}
