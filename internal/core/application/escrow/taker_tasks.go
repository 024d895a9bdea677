package escrow

import (
	"bytes"
	"fmt"

	"github.com/tdex-network/tdex-tradeprotocol/internal/core/application/protocol"
	"github.com/tdex-network/tdex-tradeprotocol/internal/core/domain"
	"github.com/tdex-network/tdex-tradeprotocol/internal/core/ports"
	"github.com/tdex-network/tdex-tradeprotocol/pkg/txutil"
)

// maxSelectionRounds bounds the coin selection of the taker, whose target
// depends on the number of selected inputs through the deposit fee.
const maxSelectionRounds = 3

var (
	TakerReserveInputs                 = protocol.Task{Name: "TakerReserveInputs", Run: takerReserveInputs}
	TakerSendInputsForDepositTxRequest = protocol.Task{Name: "TakerSendInputsForDepositTxRequest", Run: takerSendInputsForDepositTxRequest}
	ProcessInputsForDepositTxResponse  = protocol.Task{Name: "ProcessInputsForDepositTxResponse", Run: processInputsForDepositTxResponse}
	TakerVerifyAndSignContract         = protocol.Task{Name: "TakerVerifyAndSignContract", Run: takerVerifyAndSignContract}
	TakerCreateDepositTx               = protocol.Task{Name: "TakerCreateDepositTx", Run: takerCreateDepositTx}
	TakerSignDepositTx                 = protocol.Task{Name: "TakerSignDepositTx", Run: takerSignDepositTx}
	TakerSendDepositTxMessage          = protocol.Task{Name: "TakerSendDepositTxMessage", Run: takerSendDepositTxMessage}
	ProcessDepositTxPublishedMessage   = protocol.Task{Name: "ProcessDepositTxPublishedMessage", Run: processDepositTxPublishedMessage}
)

// takerReserveInputs selects the inputs funding the taker's share of the
// deposit plus the mining fee of the deposit tx, which is paid by the taker.
func takerReserveInputs(tc *protocol.TaskContext) protocol.Result {
	if len(tc.Model.RawInputs) > 0 {
		return protocol.Continue()
	}

	feeRate, err := tc.Provider.FeeService.GetFeeRatePerVbyte(tc.Ctx)
	if err != nil {
		return protocol.Failed(err)
	}

	contribution := tc.Trade.DepositContribution()
	assumed := []domain.RawTransactionInput{{Segwit: true}}
	target := contribution + EstimateDepositTxFee(assumed, feeRate)

	var selection *ports.InputSelection
	for i := 0; i < maxSelectionRounds; i++ {
		selection, err = tc.Provider.Wallet.SelectInputs(tc.Ctx, ports.AssetBtc, target)
		if err != nil {
			return protocol.Failed(err)
		}
		required := contribution + EstimateDepositTxFee(selection.Inputs, feeRate)
		if required <= target {
			break
		}
		target = required
		selection = nil
	}
	if selection == nil {
		return protocol.Failed(fmt.Errorf(
			"failed to select inputs for the deposit tx within %d rounds",
			maxSelectionRounds,
		))
	}
	if err := domain.ValidateRawInputs(selection.Inputs); err != nil {
		return protocol.ConsistencyFailure(err)
	}

	if err := reserveInputs(tc, selection); err != nil {
		return protocol.Failed(err)
	}
	return protocol.Continue()
}

func takerSendInputsForDepositTxRequest(tc *protocol.TaskContext) protocol.Result {
	m := tc.Model
	return tc.Send(&domain.InputsForDepositTxRequest{
		OfferId:                   tc.Trade.OfferId,
		TradeAmount:               tc.Trade.Amount,
		TradePrice:                tc.Trade.Price.String(),
		AccountId:                 m.AccountId,
		PubKeyRing:                m.PubKeyRing,
		PaymentAccountPayloadHash: m.PaymentAccountPayloadHash,
		MultisigPubKey:            m.MultisigPubKey,
		PayoutAddress:             m.PayoutAddress,
		RawInputs:                 m.RawInputs,
		ChangeAddress:             m.ChangeAddress,
		ChangeValue:               m.ChangeValue,
	}, protocol.FailOnFault)
}

func processInputsForDepositTxResponse(tc *protocol.TaskContext) protocol.Result {
	msg, err := tc.Message()
	if err != nil {
		return protocol.ConsistencyFailure(err)
	}
	res := msg.(*domain.InputsForDepositTxResponse)

	peer := &tc.Model.Peer
	if err := peer.BindNodeAddress(tc.Trigger.SenderAddress); err != nil {
		return protocol.ValidationFailure(err)
	}
	if err := domain.ValidateRawInputs(res.RawInputs); err != nil {
		return protocol.ValidationFailure(err)
	}
	if err := peer.SetDepositContribution(
		res.MultisigPubKey, res.PayoutAddress, res.RawInputs,
		res.ChangeAddress, res.ChangeValue,
	); err != nil {
		return protocol.ValidationFailure(err)
	}
	if err := checkContribution(
		peerContribution(*peer), tc.Trade.PeerDepositContribution(), false,
	); err != nil {
		return protocol.ValidationFailure(err)
	}
	if err := peer.SetContractSignature(res.ContractSignature); err != nil {
		return protocol.ConsistencyFailure(err)
	}
	peer.AccountId = res.AccountId
	peer.PaymentAccountPayloadHash = res.PaymentAccountPayloadHash
	return protocol.Continue()
}

// takerVerifyAndSignContract builds the contract locally, makes sure it is
// the very same one signed by the maker and signs it.
func takerVerifyAndSignContract(tc *protocol.TaskContext) protocol.Result {
	msg, err := tc.Message()
	if err != nil {
		return protocol.ConsistencyFailure(err)
	}
	res := msg.(*domain.InputsForDepositTxResponse)

	contract := buildContract(tc)
	buf, err := contract.Serialize()
	if err != nil {
		return protocol.ConsistencyFailure(err)
	}
	if !bytes.Equal(buf, res.ContractJson) {
		return protocol.ConsistencyFailure(ErrContractMismatch)
	}
	if err := txutil.VerifyHashSignature(
		tc.Model.Peer.PubKeyRing, contract.Hash(), tc.Model.Peer.ContractSignature,
	); err != nil {
		return protocol.ConsistencyFailure(
			fmt.Errorf("invalid maker contract signature: %w", err),
		)
	}
	tc.Model.Peer.MarkContractVerified()

	if err := signContract(tc, contract); err != nil {
		return protocol.Failed(err)
	}
	tc.Trade.AdvanceTo(domain.TradeStateContractSigned)
	return protocol.Continue()
}

func takerCreateDepositTx(tc *protocol.TaskContext) protocol.Result {
	tx, err := BuildDepositTx(depositTxParams(tc))
	if err != nil {
		return protocol.ConsistencyFailure(err)
	}
	buf, err := txutil.Serialize(tx)
	if err != nil {
		return protocol.ConsistencyFailure(err)
	}
	tc.Model.PreparedDepositTx = buf
	return protocol.Continue()
}

// takerSignDepositTx signs only the taker's inputs of the deposit tx.
func takerSignDepositTx(tc *protocol.TaskContext) protocol.Result {
	prepared, err := txutil.Deserialize(tc.Model.PreparedDepositTx)
	if err != nil {
		return protocol.ConsistencyFailure(err)
	}
	signed, err := tc.Provider.Wallet.SignInputs(
		tc.Ctx, prepared, depositPrevOuts(tc), ownInputIndexes(tc),
	)
	if err != nil {
		return protocol.Failed(err)
	}
	if ok, err := txutil.EqualUnsigned(prepared, signed); err != nil || !ok {
		return protocol.ConsistencyFailure(ErrDepositTxMismatch)
	}
	buf, err := txutil.Serialize(signed)
	if err != nil {
		return protocol.ConsistencyFailure(err)
	}
	tc.Model.SignedDepositTx = buf
	return protocol.Continue()
}

func takerSendDepositTxMessage(tc *protocol.TaskContext) protocol.Result {
	return tc.Send(&domain.DepositTxMessage{
		ContractSignature: tc.Model.ContractSignature,
		DepositTx:         tc.Model.SignedDepositTx,
	}, protocol.FailOnFault)
}

// processDepositTxPublishedMessage makes sure that the tx published by the
// maker is the deposit tx agreed on.
func processDepositTxPublishedMessage(tc *protocol.TaskContext) protocol.Result {
	msg, err := tc.Message()
	if err != nil {
		return protocol.ConsistencyFailure(err)
	}
	published := msg.(*domain.DepositTxPublishedMessage)

	tx, err := txutil.Deserialize(published.DepositTx)
	if err != nil {
		return protocol.ConsistencyFailure(err)
	}
	if tx.TxHash().String() != published.DepositTxId {
		return protocol.ConsistencyFailure(ErrTxIdMismatch)
	}
	prepared, err := txutil.Deserialize(tc.Model.PreparedDepositTx)
	if err != nil {
		return protocol.ConsistencyFailure(err)
	}
	if ok, err := txutil.EqualUnsigned(prepared, tx); err != nil || !ok {
		return protocol.ConsistencyFailure(ErrDepositTxMismatch)
	}

	tc.Model.DepositTx = published.DepositTx
	tc.Model.Peer.DepositTx = published.DepositTx
	tc.Trade.DepositTxId = published.DepositTxId
	tc.Trade.AdvanceTo(domain.TradeStateDepositTxPublished)
	watchDepositTx(tc)
	return protocol.Continue()
}

func watchDepositTx(tc *protocol.TaskContext) {
	notifier := tc.Provider.ChainNotifier
	if notifier == nil {
		return
	}
	if err := notifier.WatchTx(tc.Ctx, tc.Trade.Id, tc.Trade.DepositTxId); err != nil {
		tc.Logger().WithError(err).Warn("failed to watch deposit tx")
	}
}
