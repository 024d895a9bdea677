package bsqswap

import (
	"fmt"

	"github.com/tdex-network/tdex-tradeprotocol/internal/core/application/protocol"
	"github.com/tdex-network/tdex-tradeprotocol/internal/core/domain"
	bsq "github.com/tdex-network/tdex-tradeprotocol/pkg/bsqswap"
	"github.com/tdex-network/tdex-tradeprotocol/pkg/txutil"
)

var (
	TakerSelectSwapInputs        = protocol.Task{Name: "TakerSelectSwapInputs", Run: selectSwapInputs}
	TakerSendBsqSwapRequest      = protocol.Task{Name: "TakerSendBsqSwapRequest", Run: takerSendBsqSwapRequest}
	ProcessSwapTxProposal        = protocol.Task{Name: "ProcessSwapTxProposal", Run: processSwapTxProposal}
	TakerReconstructAndCompareTx = protocol.Task{Name: "TakerReconstructAndCompareTx", Run: takerReconstructAndCompareTx}
	TakerVerifyBsqBalance        = protocol.Task{Name: "TakerVerifyBsqBalance", Run: takerVerifyBsqBalance}
	TakerSignAndCombineSwapTx    = protocol.Task{Name: "TakerSignAndCombineSwapTx", Run: takerSignAndCombineSwapTx}
	TakerPublishSwapTx           = protocol.Task{Name: "TakerPublishSwapTx", Run: takerPublishSwapTx}
	TakerSendFinalizedSwapTx     = protocol.Task{Name: "TakerSendFinalizedSwapTx", Run: takerSendFinalizedSwapTx}
)

// selectSwapInputs is shared by both parties: the buyer selects BSQ, the
// seller selects BTC.
func selectSwapInputs(tc *protocol.TaskContext) protocol.Result {
	if tc.Trade.BsqSwap == nil {
		return protocol.ConsistencyFailure(ErrMissingSwapDetails)
	}
	if len(tc.Model.RawInputs) > 0 {
		return protocol.Continue()
	}
	if err := selectInputs(tc); err != nil {
		return protocol.Failed(err)
	}
	return protocol.Continue()
}

func takerSendBsqSwapRequest(tc *protocol.TaskContext) protocol.Result {
	t, m := tc.Trade, tc.Model
	return tc.Send(&domain.BsqSwapRequest{
		OfferId:                   t.OfferId,
		TradeAmount:               t.BsqSwap.BtcAmount,
		TradeDate:                 t.BsqSwap.TradeDate,
		TxFeePerVbyte:             t.BsqSwap.TxFeePerVbyte,
		MakerFee:                  t.BsqSwap.MakerFee,
		TakerFee:                  t.BsqSwap.TakerFee,
		AccountId:                 m.AccountId,
		PubKeyRing:                m.PubKeyRing,
		PaymentAccountPayloadHash: m.PaymentAccountPayloadHash,
		RawInputs:                 m.RawInputs,
		ChangeAddress:             m.ChangeAddress,
		ChangeValue:               m.ChangeValue,
		PayoutAddress:             m.PayoutAddress,
	}, protocol.FailOnFault)
}

func processSwapTxProposal(tc *protocol.TaskContext) protocol.Result {
	msg, err := tc.Message()
	if err != nil {
		return protocol.ConsistencyFailure(err)
	}
	proposal := msg.(*domain.BsqSwapTxProposal)

	if tc.Trigger.SenderAddress != tc.Model.Peer.NodeAddress {
		return protocol.ValidationFailure(domain.ErrPeerAddressMismatch)
	}
	if err := domain.ValidateRawInputs(proposal.RawInputs); err != nil {
		return protocol.ValidationFailure(err)
	}
	peer := &tc.Model.Peer
	if err := peer.SetSwapContribution(
		proposal.RawInputs, proposal.ChangeAddress, proposal.ChangeValue,
		proposal.PayoutAddress,
	); err != nil {
		return protocol.ValidationFailure(err)
	}
	if err := checkContribution(
		tc.Trade, !tc.IsBuyer(), peerContribution(*peer),
	); err != nil {
		return protocol.ConsistencyFailure(err)
	}
	if _, err := txutil.Deserialize(proposal.Tx); err != nil {
		return protocol.ValidationFailure(err)
	}
	peer.AccountId = proposal.AccountId
	peer.SwapTx = proposal.Tx
	return protocol.Continue()
}

// takerReconstructAndCompareTx builds the swap tx locally and makes sure the
// one proposed by the maker is the same and carries the maker's signatures.
func takerReconstructAndCompareTx(tc *protocol.TaskContext) protocol.Result {
	expected, vBytes, err := swapTx(tc)
	if err != nil {
		return protocol.ConsistencyFailure(err)
	}
	proposed, err := txutil.Deserialize(tc.Model.Peer.SwapTx)
	if err != nil {
		return protocol.ConsistencyFailure(err)
	}
	if err := bsq.VerifyProposedTx(expected, proposed); err != nil {
		return protocol.ConsistencyFailure(err)
	}
	for _, i := range peerInputIndexes(tc) {
		if !txutil.IsSigned(proposed, i) {
			return protocol.ConsistencyFailure(ErrMissingPeerSignature)
		}
	}

	buf, err := txutil.Serialize(expected)
	if err != nil {
		return protocol.ConsistencyFailure(err)
	}
	tc.Model.SwapTx = buf
	tc.Trade.BsqSwap.Vsize = vBytes
	return protocol.Continue()
}

// takerVerifyBsqBalance checks that the BSQ inputs of the proposed tx go
// entirely to the BSQ outputs and the trade fees.
func takerVerifyBsqBalance(tc *protocol.TaskContext) protocol.Result {
	proposed, err := txutil.Deserialize(tc.Model.Peer.SwapTx)
	if err != nil {
		return protocol.ConsistencyFailure(err)
	}
	buyer, _ := buyerAndSeller(tc)
	buyerFee, sellerFee := tradeFees(tc.Trade)

	sellerBsqPayout := uint64(proposed.TxOut[0].Value)
	buyerBsqChange := uint64(0)
	if buyer.change > 0 {
		buyerBsqChange = uint64(proposed.TxOut[1].Value)
	}
	buyerBsqInput, err := domain.SumRawInputs(buyer.inputs)
	if err != nil {
		return protocol.ConsistencyFailure(err)
	}
	if err := bsq.VerifyBsqBalance(
		buyerBsqInput, sellerBsqPayout, buyerBsqChange, buyerFee, sellerFee,
	); err != nil {
		return protocol.ConsistencyFailure(err)
	}
	return protocol.Continue()
}

func takerSignAndCombineSwapTx(tc *protocol.TaskContext) protocol.Result {
	if len(tc.Model.FinalSwapTx) > 0 {
		return protocol.Continue()
	}

	proposed, err := txutil.Deserialize(tc.Model.Peer.SwapTx)
	if err != nil {
		return protocol.ConsistencyFailure(err)
	}
	prevOuts := swapPrevOuts(tc)
	signed, err := tc.Provider.Wallet.SignInputs(
		tc.Ctx, proposed, prevOuts, ownInputIndexes(tc),
	)
	if err != nil {
		return protocol.Failed(err)
	}
	if err := bsq.VerifyProposedTx(proposed, signed); err != nil {
		return protocol.ConsistencyFailure(err)
	}
	totIn, err := domain.SumRawInputs(prevOuts)
	if err != nil {
		return protocol.ConsistencyFailure(err)
	}
	if err := bsq.VerifyMinerFee(
		signed, totIn, tc.Trade.BsqSwap.TxFeePerVbyte, tc.Trade.BsqSwap.Vsize,
	); err != nil {
		return protocol.ConsistencyFailure(err)
	}

	buf, err := txutil.Serialize(signed)
	if err != nil {
		return protocol.ConsistencyFailure(err)
	}
	tc.Model.FinalSwapTx = buf
	return protocol.Continue()
}

func takerPublishSwapTx(tc *protocol.TaskContext) protocol.Result {
	if len(tc.Trade.BsqSwap.TxId) > 0 {
		return protocol.Continue()
	}

	tx, err := txutil.Deserialize(tc.Model.FinalSwapTx)
	if err != nil {
		return protocol.ConsistencyFailure(err)
	}
	txid, err := tc.Provider.Wallet.BroadcastTransaction(tc.Ctx, tx)
	if err != nil {
		return protocol.Failed(fmt.Errorf("failed to broadcast swap tx: %w", err))
	}
	tc.Trade.BsqSwap.TxId = txid
	tc.Trade.AdvanceTo(domain.TradeStateCompleted)
	return protocol.Continue()
}

func takerSendFinalizedSwapTx(tc *protocol.TaskContext) protocol.Result {
	return tc.Send(&domain.BsqSwapFinalizedTx{
		TxId: tc.Trade.BsqSwap.TxId,
		Tx:   tc.Model.FinalSwapTx,
	}, protocol.ResendOnFault)
}
