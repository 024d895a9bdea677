package escrow

import (
	"fmt"

	"github.com/tdex-network/tdex-tradeprotocol/internal/core/application/protocol"
	"github.com/tdex-network/tdex-tradeprotocol/internal/core/domain"
	"github.com/tdex-network/tdex-tradeprotocol/internal/core/ports"
	"github.com/tdex-network/tdex-tradeprotocol/pkg/txutil"
)

var (
	ProcessInputsForDepositTxRequest    = protocol.Task{Name: "ProcessInputsForDepositTxRequest", Run: processInputsForDepositTxRequest}
	MakerReserveInputs                  = protocol.Task{Name: "MakerReserveInputs", Run: makerReserveInputs}
	MakerCreateAndSignContract          = protocol.Task{Name: "MakerCreateAndSignContract", Run: makerCreateAndSignContract}
	MakerSendInputsForDepositTxResponse = protocol.Task{Name: "MakerSendInputsForDepositTxResponse", Run: makerSendInputsForDepositTxResponse}
	ProcessDepositTxMessage             = protocol.Task{Name: "ProcessDepositTxMessage", Run: processDepositTxMessage}
	VerifyPeersContractSignature        = protocol.Task{Name: "VerifyPeersContractSignature", Run: verifyPeersContractSignature}
	MakerSignAndPublishDepositTx        = protocol.Task{Name: "MakerSignAndPublishDepositTx", Run: makerSignAndPublishDepositTx}
	MakerSendDepositTxPublishedMessage  = protocol.Task{Name: "MakerSendDepositTxPublishedMessage", Run: makerSendDepositTxPublishedMessage}
)

// processInputsForDepositTxRequest checks the taker's request against the
// local offer and stores the taker's contribution.
func processInputsForDepositTxRequest(tc *protocol.TaskContext) protocol.Result {
	msg, err := tc.Message()
	if err != nil {
		return protocol.ConsistencyFailure(err)
	}
	req := msg.(*domain.InputsForDepositTxRequest)

	offer, err := tc.Provider.OfferBook.GetOffer(tc.Ctx, tc.Trade.OfferId)
	if err != nil {
		return protocol.ConsistencyFailure(fmt.Errorf("%w: %s", protocol.ErrOfferNotAvailable, err))
	}
	if !offer.IsAmountInRange(req.TradeAmount) || req.TradeAmount != tc.Trade.Amount {
		return protocol.ValidationFailure(fmt.Errorf(
			"%w: amount %d", protocol.ErrAmountOutOfRange, req.TradeAmount,
		))
	}
	if req.TradePrice != offer.Price.String() {
		return protocol.ValidationFailure(fmt.Errorf(
			"%w: price %s", ErrTradeTermsMismatch, req.TradePrice,
		))
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
	if err := peer.SetDepositContribution(
		req.MultisigPubKey, req.PayoutAddress, req.RawInputs,
		req.ChangeAddress, req.ChangeValue,
	); err != nil {
		return protocol.ValidationFailure(err)
	}
	if err := checkContribution(
		peerContribution(*peer), tc.Trade.PeerDepositContribution(), true,
	); err != nil {
		return protocol.ValidationFailure(err)
	}
	peer.AccountId = req.AccountId
	peer.PaymentAccountPayloadHash = req.PaymentAccountPayloadHash
	return protocol.Continue()
}

func makerReserveInputs(tc *protocol.TaskContext) protocol.Result {
	if len(tc.Model.RawInputs) > 0 {
		return protocol.Continue()
	}

	selection, err := tc.Provider.Wallet.SelectInputs(
		tc.Ctx, ports.AssetBtc, tc.Trade.DepositContribution(),
	)
	if err != nil {
		return protocol.Failed(err)
	}
	if err := domain.ValidateRawInputs(selection.Inputs); err != nil {
		return protocol.ConsistencyFailure(err)
	}
	if err := reserveInputs(tc, selection); err != nil {
		return protocol.Failed(err)
	}
	return protocol.Continue()
}

func makerCreateAndSignContract(tc *protocol.TaskContext) protocol.Result {
	if err := signContract(tc, buildContract(tc)); err != nil {
		return protocol.Failed(err)
	}
	return protocol.Continue()
}

func makerSendInputsForDepositTxResponse(tc *protocol.TaskContext) protocol.Result {
	m := tc.Model
	return tc.Send(&domain.InputsForDepositTxResponse{
		AccountId:                 m.AccountId,
		PaymentAccountPayloadHash: m.PaymentAccountPayloadHash,
		MultisigPubKey:            m.MultisigPubKey,
		PayoutAddress:             m.PayoutAddress,
		RawInputs:                 m.RawInputs,
		ChangeAddress:             m.ChangeAddress,
		ChangeValue:               m.ChangeValue,
		ContractJson:              m.ContractJson,
		ContractSignature:         m.ContractSignature,
	}, protocol.FailOnFault)
}

func processDepositTxMessage(tc *protocol.TaskContext) protocol.Result {
	msg, err := tc.Message()
	if err != nil {
		return protocol.ConsistencyFailure(err)
	}
	depositMsg := msg.(*domain.DepositTxMessage)

	if tc.Trigger.SenderAddress != tc.Model.Peer.NodeAddress {
		return protocol.ValidationFailure(domain.ErrPeerAddressMismatch)
	}
	if _, err := txutil.Deserialize(depositMsg.DepositTx); err != nil {
		return protocol.ValidationFailure(err)
	}
	if err := tc.Model.Peer.SetContractSignature(depositMsg.ContractSignature); err != nil {
		return protocol.ConsistencyFailure(err)
	}
	tc.Model.Peer.DepositTx = depositMsg.DepositTx
	return protocol.Continue()
}

func verifyPeersContractSignature(tc *protocol.TaskContext) protocol.Result {
	peer := &tc.Model.Peer
	if err := txutil.VerifyHashSignature(
		peer.PubKeyRing, tc.Model.ContractHash, peer.ContractSignature,
	); err != nil {
		return protocol.ConsistencyFailure(
			fmt.Errorf("invalid taker contract signature: %w", err),
		)
	}
	peer.MarkContractVerified()
	tc.Trade.AdvanceTo(domain.TradeStateContractSigned)
	return protocol.Continue()
}

// makerSignAndPublishDepositTx rebuilds the deposit tx, makes sure that the
// one signed by the taker is the same, signs the maker's inputs and
// broadcasts it.
func makerSignAndPublishDepositTx(tc *protocol.TaskContext) protocol.Result {
	if len(tc.Trade.DepositTxId) > 0 {
		return protocol.Continue()
	}

	expected, err := BuildDepositTx(depositTxParams(tc))
	if err != nil {
		return protocol.ConsistencyFailure(err)
	}
	peerTx, err := txutil.Deserialize(tc.Model.Peer.DepositTx)
	if err != nil {
		return protocol.ConsistencyFailure(err)
	}
	if ok, err := txutil.EqualUnsigned(expected, peerTx); err != nil || !ok {
		return protocol.ConsistencyFailure(ErrDepositTxMismatch)
	}
	for _, i := range peerInputIndexes(tc) {
		if !txutil.IsSigned(peerTx, i) {
			return protocol.ConsistencyFailure(ErrMissingPeerSignature)
		}
	}

	signed, err := tc.Provider.Wallet.SignInputs(
		tc.Ctx, peerTx, depositPrevOuts(tc), ownInputIndexes(tc),
	)
	if err != nil {
		return protocol.Failed(err)
	}
	if ok, err := txutil.EqualUnsigned(expected, signed); err != nil || !ok {
		return protocol.ConsistencyFailure(ErrDepositTxMismatch)
	}

	prepared, err := txutil.Serialize(expected)
	if err != nil {
		return protocol.ConsistencyFailure(err)
	}
	final, err := txutil.Serialize(signed)
	if err != nil {
		return protocol.ConsistencyFailure(err)
	}

	txid, err := tc.Provider.Wallet.BroadcastTransaction(tc.Ctx, signed)
	if err != nil {
		return protocol.Failed(fmt.Errorf("failed to broadcast deposit tx: %w", err))
	}

	tc.Model.PreparedDepositTx = prepared
	tc.Model.DepositTx = final
	tc.Trade.DepositTxId = txid
	tc.Trade.AdvanceTo(domain.TradeStateDepositTxPublished)
	watchDepositTx(tc)

	if err := tc.Provider.OfferBook.RemoveOffer(tc.Ctx, tc.Trade.OfferId); err != nil {
		tc.Logger().WithError(err).Warn("failed to remove taken offer")
	}
	return protocol.Continue()
}

func makerSendDepositTxPublishedMessage(tc *protocol.TaskContext) protocol.Result {
	return tc.Send(&domain.DepositTxPublishedMessage{
		DepositTxId: tc.Trade.DepositTxId,
		DepositTx:   tc.Model.DepositTx,
	}, protocol.ResendOnFault)
}
