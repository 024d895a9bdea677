// Package bsqswap implements the atomic swap of BTC for BSQ within a single
// transaction signed by both parties, with no deposit and no arbitration.
package bsqswap

import (
	"github.com/tdex-network/tdex-tradeprotocol/internal/core/application/protocol"
	"github.com/tdex-network/tdex-tradeprotocol/internal/core/domain"
)

var (
	TakeOffer = protocol.Sequence{
		Name: "bsqswap_take_offer",
		Tasks: []protocol.Task{
			protocol.TakerVerifyOffer,
			TakerSelectSwapInputs,
			TakerSendBsqSwapRequest,
		},
	}
	OnSwapRequest = protocol.Sequence{
		Name: "bsqswap_on_swap_request",
		Tasks: []protocol.Task{
			ProcessBsqSwapRequest,
			protocol.ApplyFilter,
			MakerSelectSwapInputs,
			MakerCreateAndSignSwapTx,
			MakerSendSwapTxProposal,
		},
	}
	OnSwapProposal = protocol.Sequence{
		Name: "bsqswap_on_swap_proposal",
		Tasks: []protocol.Task{
			ProcessSwapTxProposal,
			TakerReconstructAndCompareTx,
			TakerVerifyBsqBalance,
			TakerSignAndCombineSwapTx,
			TakerPublishSwapTx,
			protocol.PublishTradeStatistics,
			TakerSendFinalizedSwapTx,
		},
	}
	OnSwapFinalized = protocol.Sequence{
		Name: "bsqswap_on_swap_finalized",
		Tasks: []protocol.Task{
			ProcessFinalizedSwapTx,
		},
	}
)

// Sequences returns the lookup entries of the BSQ swap protocol.
func Sequences() []protocol.SequenceEntry {
	entry := func(
		party protocol.Party, trigger protocol.Trigger, seq protocol.Sequence,
	) protocol.SequenceEntry {
		return protocol.SequenceEntry{
			Protocol: domain.ProtocolBsqSwap,
			Party:    party,
			Trigger:  trigger,
			Sequence: seq,
		}
	}

	return []protocol.SequenceEntry{
		entry(protocol.PartyTaker, protocol.TriggerTakeOffer, TakeOffer),
		entry(protocol.PartyMaker, protocol.MessageTrigger(domain.KindBsqSwapRequest), OnSwapRequest),
		entry(protocol.PartyTaker, protocol.MessageTrigger(domain.KindBsqSwapTxProposal), OnSwapProposal),
		entry(protocol.PartyMaker, protocol.MessageTrigger(domain.KindBsqSwapFinalizedTx), OnSwapFinalized),
	}
}
