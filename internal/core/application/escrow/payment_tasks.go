package escrow

import (
	"fmt"

	"github.com/btcsuite/btcd/wire"
	"github.com/tdex-network/tdex-tradeprotocol/internal/core/application/protocol"
	"github.com/tdex-network/tdex-tradeprotocol/internal/core/domain"
	"github.com/tdex-network/tdex-tradeprotocol/pkg/txutil"
)

var (
	BuyerCheckDepositConfirmed           = protocol.Task{Name: "BuyerCheckDepositConfirmed", Run: buyerCheckDepositConfirmed}
	BuyerSignPayoutTx                    = protocol.Task{Name: "BuyerSignPayoutTx", Run: buyerSignPayoutTx}
	BuyerSendPaymentSentMessage          = protocol.Task{Name: "BuyerSendPaymentSentMessage", Run: buyerSendPaymentSentMessage}
	SellerProcessPaymentSentMessage      = protocol.Task{Name: "SellerProcessPaymentSentMessage", Run: sellerProcessPaymentSentMessage}
	SellerConfirmPaymentReceived         = protocol.Task{Name: "SellerConfirmPaymentReceived", Run: sellerConfirmPaymentReceived}
	SellerVerifyAndFinalizePayoutTx      = protocol.Task{Name: "SellerVerifyAndFinalizePayoutTx", Run: sellerVerifyAndFinalizePayoutTx}
	SellerPublishPayoutTx                = protocol.Task{Name: "SellerPublishPayoutTx", Run: sellerPublishPayoutTx}
	SellerSendPayoutTxPublishedMessage   = protocol.Task{Name: "SellerSendPayoutTxPublishedMessage", Run: sellerSendPayoutTxPublishedMessage}
	BuyerProcessPayoutTxPublishedMessage = protocol.Task{Name: "BuyerProcessPayoutTxPublishedMessage", Run: buyerProcessPayoutTxPublishedMessage}
)

// buyerCheckDepositConfirmed makes sure the deposit is confirmed before the
// payment is declared as started. The chain is queried directly in case the
// confirmation listener didn't catch up yet.
func buyerCheckDepositConfirmed(tc *protocol.TaskContext) protocol.Result {
	if tc.Trade.State >= domain.TradeStateDepositConfirmed {
		return protocol.Continue()
	}
	if tc.Trade.State < domain.TradeStateDepositTxPublished {
		return protocol.ValidationFailure(ErrDepositNotConfirmed)
	}

	confirmations, err := tc.Provider.Wallet.GetConfirmations(tc.Ctx, tc.Trade.DepositTxId)
	if err != nil {
		return protocol.ValidationFailure(err)
	}
	if confirmations < 1 {
		return protocol.ValidationFailure(ErrDepositNotConfirmed)
	}
	tc.Trade.AdvanceTo(domain.TradeStateDepositConfirmed)
	return protocol.Continue()
}

func buyerSignPayoutTx(tc *protocol.TaskContext) protocol.Result {
	if len(tc.Model.PayoutSignature) > 0 {
		return protocol.Continue()
	}

	tx, witnessScript, err := payoutTx(tc)
	if err != nil {
		return protocol.PostBroadcastFailure(err)
	}
	sig, err := tc.Provider.Wallet.SignMultisigInput(
		tc.Ctx, tc.Trade.Id, tx, 0, witnessScript, int64(tc.Trade.DepositOutputValue()),
	)
	if err != nil {
		return protocol.Failed(err)
	}
	buf, err := txutil.Serialize(tx)
	if err != nil {
		return protocol.ConsistencyFailure(err)
	}
	tc.Model.PayoutTx = buf
	tc.Model.PayoutSignature = sig
	return protocol.Continue()
}

func buyerSendPaymentSentMessage(tc *protocol.TaskContext) protocol.Result {
	tc.Trade.AdvanceTo(domain.TradeStatePaymentSent)
	return tc.Send(&domain.PaymentSentMessage{
		PayoutTx:        tc.Model.PayoutTx,
		PayoutSignature: tc.Model.PayoutSignature,
	}, protocol.ResendOnFault)
}

// sellerProcessPaymentSentMessage verifies the payout tx and the signature
// of the buyer. Funds are already locked, so any mismatch is a matter for
// arbitration.
func sellerProcessPaymentSentMessage(tc *protocol.TaskContext) protocol.Result {
	msg, err := tc.Message()
	if err != nil {
		return protocol.ConsistencyFailure(err)
	}
	paymentSent := msg.(*domain.PaymentSentMessage)

	if tc.Trigger.SenderAddress != tc.Model.Peer.NodeAddress {
		return protocol.ValidationFailure(domain.ErrPeerAddressMismatch)
	}
	if err := verifyPeerPayout(
		tc, paymentSent.PayoutTx, paymentSent.PayoutSignature,
	); err != nil {
		return protocol.PostBroadcastFailure(err)
	}

	tc.Model.Peer.PayoutTx = paymentSent.PayoutTx
	tc.Model.Peer.PayoutSignature = paymentSent.PayoutSignature
	tc.Trade.AdvanceTo(domain.TradeStatePaymentSent)
	return protocol.Continue()
}

func sellerConfirmPaymentReceived(tc *protocol.TaskContext) protocol.Result {
	if tc.Trade.State < domain.TradeStatePaymentSent ||
		len(tc.Model.Peer.PayoutSignature) <= 0 {
		return protocol.ValidationFailure(ErrPaymentNotSent)
	}
	tc.Trade.AdvanceTo(domain.TradeStatePaymentReceived)
	return protocol.Continue()
}

// sellerVerifyAndFinalizePayoutTx signs the payout tx and combines both
// signatures into the final witness.
func sellerVerifyAndFinalizePayoutTx(tc *protocol.TaskContext) protocol.Result {
	if len(tc.Model.FinalPayoutTx) > 0 {
		return protocol.Continue()
	}

	peer := tc.Model.Peer
	if err := verifyPeerPayout(tc, peer.PayoutTx, peer.PayoutSignature); err != nil {
		return protocol.PostBroadcastFailure(err)
	}
	tx, witnessScript, err := payoutTx(tc)
	if err != nil {
		return protocol.PostBroadcastFailure(err)
	}
	sig, err := tc.Provider.Wallet.SignMultisigInput(
		tc.Ctx, tc.Trade.Id, tx, 0, witnessScript, int64(tc.Trade.DepositOutputValue()),
	)
	if err != nil {
		return protocol.Failed(err)
	}
	unsigned, err := txutil.Serialize(tx)
	if err != nil {
		return protocol.ConsistencyFailure(err)
	}

	tx.TxIn[0].Witness = txutil.MultisigWitness(peer.PayoutSignature, sig, witnessScript)
	final, err := txutil.Serialize(tx)
	if err != nil {
		return protocol.ConsistencyFailure(err)
	}

	tc.Model.PayoutTx = unsigned
	tc.Model.PayoutSignature = sig
	tc.Model.FinalPayoutTx = final
	return protocol.Continue()
}

func sellerPublishPayoutTx(tc *protocol.TaskContext) protocol.Result {
	if len(tc.Trade.PayoutTxId) > 0 {
		return protocol.Continue()
	}

	tx, err := txutil.Deserialize(tc.Model.FinalPayoutTx)
	if err != nil {
		return protocol.PostBroadcastFailure(err)
	}
	txid, err := tc.Provider.Wallet.BroadcastTransaction(tc.Ctx, tx)
	if err != nil {
		return protocol.PostBroadcastFailure(
			fmt.Errorf("failed to broadcast payout tx: %w", err),
		)
	}
	tc.Trade.PayoutTxId = txid
	tc.Trade.AdvanceTo(domain.TradeStatePayoutPublished)
	return protocol.Continue()
}

func sellerSendPayoutTxPublishedMessage(tc *protocol.TaskContext) protocol.Result {
	tc.Trade.AdvanceTo(domain.TradeStateCompleted)
	return tc.Send(&domain.PayoutTxPublishedMessage{
		PayoutTxId: tc.Trade.PayoutTxId,
		PayoutTx:   tc.Model.FinalPayoutTx,
	}, protocol.ResendOnFault)
}

// buyerProcessPayoutTxPublishedMessage makes sure that the published payout
// tx spends the deposit and pays the buyer what agreed.
func buyerProcessPayoutTxPublishedMessage(tc *protocol.TaskContext) protocol.Result {
	msg, err := tc.Message()
	if err != nil {
		return protocol.ConsistencyFailure(err)
	}
	published := msg.(*domain.PayoutTxPublishedMessage)

	if tc.Trigger.SenderAddress != tc.Model.Peer.NodeAddress {
		return protocol.ValidationFailure(domain.ErrPeerAddressMismatch)
	}
	tx, err := txutil.Deserialize(published.PayoutTx)
	if err != nil {
		return protocol.ValidationFailure(err)
	}
	if tx.TxHash().String() != published.PayoutTxId {
		return protocol.ValidationFailure(ErrTxIdMismatch)
	}
	expected, _, err := payoutTx(tc)
	if err != nil {
		return protocol.PostBroadcastFailure(err)
	}
	if ok, err := txutil.EqualUnsigned(expected, tx); err != nil || !ok {
		return protocol.PostBroadcastFailure(ErrPayoutTxMismatch)
	}

	tc.Trade.PayoutTxId = published.PayoutTxId
	for _, state := range []domain.TradeState{
		domain.TradeStatePaymentReceived,
		domain.TradeStatePayoutPublished,
		domain.TradeStateCompleted,
	} {
		tc.Trade.AdvanceTo(state)
	}
	return protocol.Continue()
}

func payoutTx(tc *protocol.TaskContext) (*wire.MsgTx, []byte, error) {
	witnessScript, err := multisigWitnessScript(tc)
	if err != nil {
		return nil, nil, err
	}
	tx, err := BuildPayoutTx(payoutTxParams(tc))
	if err != nil {
		return nil, nil, err
	}
	return tx, witnessScript, nil
}

// verifyPeerPayout checks that the payout tx of the buyer is the expected
// one and that its signature is valid for the buyer's multisig key.
func verifyPeerPayout(tc *protocol.TaskContext, payout, sig []byte) error {
	tx, err := txutil.Deserialize(payout)
	if err != nil {
		return err
	}
	expected, witnessScript, err := payoutTx(tc)
	if err != nil {
		return err
	}
	if ok, err := txutil.EqualUnsigned(expected, tx); err != nil || !ok {
		return ErrPayoutTxMismatch
	}
	return txutil.VerifyWitnessSignature(
		expected, 0, witnessScript, int64(tc.Trade.DepositOutputValue()),
		tc.Model.Peer.MultisigPubKey, sig,
	)
}
