// Package escrow implements the classic trade protocol where both parties
// lock their funds into a 2-of-2 multisig deposit output, that is spent with
// the payout tx once the counter currency payment has been received.
package escrow

import (
	"github.com/tdex-network/tdex-tradeprotocol/internal/core/application/protocol"
	"github.com/tdex-network/tdex-tradeprotocol/internal/core/domain"
)

var (
	TakeOffer = protocol.Sequence{
		Name: "escrow_take_offer",
		Tasks: []protocol.Task{
			protocol.TakerVerifyOffer,
			protocol.ApplyFilter,
			TakerReserveInputs,
			TakerSendInputsForDepositTxRequest,
		},
	}
	OnInputsRequest = protocol.Sequence{
		Name: "escrow_on_inputs_request",
		Tasks: []protocol.Task{
			ProcessInputsForDepositTxRequest,
			protocol.ApplyFilter,
			MakerReserveInputs,
			MakerCreateAndSignContract,
			MakerSendInputsForDepositTxResponse,
		},
	}
	OnInputsResponse = protocol.Sequence{
		Name: "escrow_on_inputs_response",
		Tasks: []protocol.Task{
			ProcessInputsForDepositTxResponse,
			TakerVerifyAndSignContract,
			TakerCreateDepositTx,
			TakerSignDepositTx,
			TakerSendDepositTxMessage,
		},
	}
	OnDepositTx = protocol.Sequence{
		Name: "escrow_on_deposit_tx",
		Tasks: []protocol.Task{
			ProcessDepositTxMessage,
			VerifyPeersContractSignature,
			MakerSignAndPublishDepositTx,
			protocol.PublishTradeStatistics,
			MakerSendDepositTxPublishedMessage,
		},
	}
	OnDepositPublished = protocol.Sequence{
		Name: "escrow_on_deposit_published",
		Tasks: []protocol.Task{
			ProcessDepositTxPublishedMessage,
			protocol.PublishFallbackTradeStatistics,
		},
	}
	PaymentStarted = protocol.Sequence{
		Name: "escrow_payment_started",
		Tasks: []protocol.Task{
			BuyerCheckDepositConfirmed,
			BuyerSignPayoutTx,
			BuyerSendPaymentSentMessage,
		},
	}
	OnPaymentSent = protocol.Sequence{
		Name: "escrow_on_payment_sent",
		Tasks: []protocol.Task{
			SellerProcessPaymentSentMessage,
		},
	}
	PaymentReceived = protocol.Sequence{
		Name: "escrow_payment_received",
		Tasks: []protocol.Task{
			SellerConfirmPaymentReceived,
			SellerVerifyAndFinalizePayoutTx,
			SellerPublishPayoutTx,
			SellerSendPayoutTxPublishedMessage,
		},
	}
	OnPayoutPublished = protocol.Sequence{
		Name: "escrow_on_payout_published",
		Tasks: []protocol.Task{
			BuyerProcessPayoutTxPublishedMessage,
		},
	}
)

// Sequences returns the lookup entries of the escrow protocol.
func Sequences() []protocol.SequenceEntry {
	entry := func(
		party protocol.Party, trigger protocol.Trigger, seq protocol.Sequence,
	) protocol.SequenceEntry {
		return protocol.SequenceEntry{
			Protocol: domain.ProtocolEscrow,
			Party:    party,
			Trigger:  trigger,
			Sequence: seq,
		}
	}
	onMessage := protocol.MessageTrigger

	return []protocol.SequenceEntry{
		entry(protocol.PartyTaker, protocol.TriggerTakeOffer, TakeOffer),
		entry(protocol.PartyMaker, onMessage(domain.KindInputsForDepositTxRequest), OnInputsRequest),
		entry(protocol.PartyTaker, onMessage(domain.KindInputsForDepositTxResponse), OnInputsResponse),
		entry(protocol.PartyMaker, onMessage(domain.KindDepositTx), OnDepositTx),
		entry(protocol.PartyTaker, onMessage(domain.KindDepositTxPublished), OnDepositPublished),
		entry(protocol.PartyBuyer, protocol.TriggerPaymentStarted, PaymentStarted),
		entry(protocol.PartySeller, onMessage(domain.KindPaymentSent), OnPaymentSent),
		entry(protocol.PartySeller, protocol.TriggerPaymentReceived, PaymentReceived),
		entry(protocol.PartyBuyer, onMessage(domain.KindPayoutTxPublished), OnPayoutPublished),
	}
}
