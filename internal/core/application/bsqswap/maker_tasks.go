package bsqswap

import (
	"fmt"
	"time"

	"github.com/tdex-network/tdex-tradeprotocol/internal/core/application/protocol"
	"github.com/tdex-network/tdex-tradeprotocol/internal/core/domain"
	bsq "github.com/tdex-network/tdex-tradeprotocol/pkg/bsqswap"
	"github.com/tdex-network/tdex-tradeprotocol/pkg/mathutil"
	"github.com/tdex-network/tdex-tradeprotocol/pkg/txutil"
)

var (
	ProcessBsqSwapRequest    = protocol.Task{Name: "ProcessBsqSwapRequest", Run: processBsqSwapRequest}
	MakerSelectSwapInputs    = protocol.Task{Name: "MakerSelectSwapInputs", Run: selectSwapInputs}
	MakerCreateAndSignSwapTx = protocol.Task{Name: "MakerCreateAndSignSwapTx", Run: makerCreateAndSignSwapTx}
	MakerSendSwapTxProposal  = protocol.Task{Name: "MakerSendSwapTxProposal", Run: makerSendSwapTxProposal}
	ProcessFinalizedSwapTx   = protocol.Task{Name: "ProcessFinalizedSwapTx", Run: processFinalizedSwapTx}
)

// processBsqSwapRequest checks the terms proposed by the taker against the
// local offer, fee rate and clock, and stores the taker's contribution.
func processBsqSwapRequest(tc *protocol.TaskContext) protocol.Result {
	msg, err := tc.Message()
	if err != nil {
		return protocol.ConsistencyFailure(err)
	}
	req := msg.(*domain.BsqSwapRequest)
	t := tc.Trade
	if t.BsqSwap == nil {
		return protocol.ConsistencyFailure(ErrMissingSwapDetails)
	}
	if req.OfferId != t.OfferId {
		return protocol.ValidationFailure(ErrOfferMismatch)
	}

	offer, err := tc.Provider.OfferBook.GetOffer(tc.Ctx, t.OfferId)
	if err != nil {
		return protocol.ConsistencyFailure(fmt.Errorf("%w: %s", protocol.ErrOfferNotAvailable, err))
	}
	feeRate, err := tc.Provider.FeeService.GetFeeRatePerVbyte(tc.Ctx)
	if err != nil {
		return protocol.Failed(err)
	}
	cfg := tc.Config
	if err := bsq.ValidateRequest(bsq.Request{
		Amount:        req.TradeAmount,
		TradeDate:     time.Unix(req.TradeDate, 0),
		TxFeePerVbyte: req.TxFeePerVbyte,
		MakerFee:      req.MakerFee,
		TakerFee:      req.TakerFee,
	}, bsq.Terms{
		MinAmount:        offer.MinAmount,
		MaxAmount:        offer.Amount,
		OwnFeeRate:       feeRate,
		ExpectedMakerFee: mathutil.TradeFee(req.TradeAmount, cfg.MakerFeeRate, cfg.MinTradeFee),
		ExpectedTakerFee: mathutil.TradeFee(req.TradeAmount, cfg.TakerFeeRate, cfg.MinTradeFee),
		Now:              time.Now(),
	}, cfg.SwapAcceptance); err != nil {
		return protocol.ValidationFailure(err)
	}

	peer := &tc.Model.Peer
	if err := peer.BindNodeAddress(tc.Trigger.SenderAddress); err != nil {
		return protocol.ValidationFailure(err)
	}
	if err := peer.BindPubKeyRing(req.PubKeyRing); err != nil {
		return protocol.ValidationFailure(err)
	}
	if err := domain.ValidateRawInputs(req.RawInputs); err != nil {
		return protocol.ValidationFailure(err)
	}
	if err := peer.SetSwapContribution(
		req.RawInputs, req.ChangeAddress, req.ChangeValue, req.PayoutAddress,
	); err != nil {
		return protocol.ValidationFailure(err)
	}
	if err := checkContribution(t, !tc.IsBuyer(), peerContribution(*peer)); err != nil {
		return protocol.ValidationFailure(err)
	}
	peer.AccountId = req.AccountId
	peer.PaymentAccountPayloadHash = req.PaymentAccountPayloadHash
	return protocol.Continue()
}

// makerCreateAndSignSwapTx builds the swap tx and signs the maker's inputs.
func makerCreateAndSignSwapTx(tc *protocol.TaskContext) protocol.Result {
	if len(tc.Model.SwapTx) > 0 {
		return protocol.Continue()
	}

	tx, vBytes, err := swapTx(tc)
	if err != nil {
		return protocol.ConsistencyFailure(err)
	}
	signed, err := tc.Provider.Wallet.SignInputs(
		tc.Ctx, tx, swapPrevOuts(tc), ownInputIndexes(tc),
	)
	if err != nil {
		return protocol.Failed(err)
	}
	if err := bsq.VerifyProposedTx(tx, signed); err != nil {
		return protocol.ConsistencyFailure(err)
	}

	buf, err := txutil.Serialize(signed)
	if err != nil {
		return protocol.ConsistencyFailure(err)
	}
	tc.Model.SwapTx = buf
	tc.Trade.BsqSwap.Vsize = vBytes
	return protocol.Continue()
}

func makerSendSwapTxProposal(tc *protocol.TaskContext) protocol.Result {
	m := tc.Model
	return tc.Send(&domain.BsqSwapTxProposal{
		AccountId:     m.AccountId,
		RawInputs:     m.RawInputs,
		ChangeAddress: m.ChangeAddress,
		ChangeValue:   m.ChangeValue,
		PayoutAddress: m.PayoutAddress,
		Tx:            m.SwapTx,
	}, protocol.FailOnFault)
}

// processFinalizedSwapTx makes sure the tx published by the taker is the one
// the maker signed and completes the trade.
func processFinalizedSwapTx(tc *protocol.TaskContext) protocol.Result {
	msg, err := tc.Message()
	if err != nil {
		return protocol.ConsistencyFailure(err)
	}
	finalized := msg.(*domain.BsqSwapFinalizedTx)

	if tc.Trigger.SenderAddress != tc.Model.Peer.NodeAddress {
		return protocol.ValidationFailure(domain.ErrPeerAddressMismatch)
	}
	tx, err := txutil.Deserialize(finalized.Tx)
	if err != nil {
		return protocol.ValidationFailure(err)
	}
	if tx.TxHash().String() != finalized.TxId {
		return protocol.ValidationFailure(ErrTxIdMismatch)
	}
	own, err := txutil.Deserialize(tc.Model.SwapTx)
	if err != nil {
		return protocol.ConsistencyFailure(err)
	}
	if err := bsq.VerifyProposedTx(own, tx); err != nil {
		return protocol.ConsistencyFailure(err)
	}

	tc.Model.FinalSwapTx = finalized.Tx
	tc.Trade.BsqSwap.TxId = finalized.TxId
	tc.Trade.AdvanceTo(domain.TradeStateCompleted)

	if err := tc.Provider.OfferBook.RemoveOffer(tc.Ctx, tc.Trade.OfferId); err != nil {
		tc.Logger().WithError(err).Warn("failed to remove taken offer")
	}
	return protocol.Continue()
}
