package protocol

import (
	"fmt"

	"github.com/tdex-network/tdex-tradeprotocol/internal/core/domain"
	"github.com/tdex-network/tdex-tradeprotocol/internal/core/ports"
)

// Tasks shared by the escrow and the BSQ swap protocols.
var (
	TakerVerifyOffer               = Task{"TakerVerifyOffer", takerVerifyOffer}
	ApplyFilter                    = Task{"ApplyFilter", applyFilter}
	PublishTradeStatistics         = Task{"PublishTradeStatistics", publishTradeStatistics}
	PublishFallbackTradeStatistics = Task{"PublishFallbackTradeStatistics", publishFallbackTradeStatistics}
)

func takerVerifyOffer(tc *TaskContext) Result {
	offer, err := tc.Provider.OfferBook.GetOffer(tc.Ctx, tc.Trade.OfferId)
	if err != nil {
		return ConsistencyFailure(fmt.Errorf("%w: %s", ErrOfferNotAvailable, err))
	}
	if offer.Protocol != tc.Trade.Protocol {
		return ConsistencyFailure(ErrProtocolMismatch)
	}
	if !offer.IsAmountInRange(tc.Trade.Amount) {
		return ConsistencyFailure(fmt.Errorf(
			"%w: %d not in [%d, %d]",
			ErrAmountOutOfRange, tc.Trade.Amount, offer.MinAmount, offer.Amount,
		))
	}
	if len(offer.MakerPubKeyRing) <= 0 {
		return ConsistencyFailure(domain.ErrMissingPubKeyRing)
	}
	if offer.MakerNodeAddress == tc.Model.NodeAddress {
		return ConsistencyFailure(ErrOwnOffer)
	}
	return Continue()
}

func applyFilter(tc *TaskContext) Result {
	filter := tc.Provider.Filter
	if filter == nil {
		return Continue()
	}

	banned, err := filter.IsNodeBanned(tc.Ctx, tc.Model.Peer.NodeAddress)
	if err != nil {
		return ConsistencyFailure(err)
	}
	if banned {
		return ConsistencyFailure(fmt.Errorf("%w: %s", ErrPeerBanned, tc.Model.Peer.NodeAddress))
	}

	if hash := tc.Model.Peer.PaymentAccountPayloadHash; len(hash) > 0 {
		banned, err := filter.IsPaymentAccountBanned(tc.Ctx, hash)
		if err != nil {
			return ConsistencyFailure(err)
		}
		if banned {
			return ConsistencyFailure(ErrPaymentAccountBanned)
		}
	}
	return Continue()
}

func publishTradeStatistics(tc *TaskContext) Result {
	tc.PublishStatistics()
	return Continue()
}

// publishFallbackTradeStatistics publishes the statistics record only if the
// peer, that is in charge of it, does not support it.
func publishFallbackTradeStatistics(tc *TaskContext) Result {
	for _, c := range tc.Provider.Network.Capabilities(tc.Model.Peer.NodeAddress) {
		if c == ports.CapabilityTradeStatistics {
			return Continue()
		}
	}
	tc.PublishStatistics()
	return Continue()
}

// PublishStatistics stores and broadcasts the statistics record of the
// trade. Records are identified by their hash, so publishing is idempotent.
// Failures are only logged since the record is not part of the trade.
func (tc *TaskContext) PublishStatistics() {
	if tc.Model.StatisticsPublished {
		return
	}

	stats := domain.NewTradeStatistics(tc.Trade)
	if tc.Provider.StatisticsPublisher != nil {
		if err := tc.Provider.StatisticsPublisher.Publish(tc.Ctx, stats); err != nil {
			tc.Logger().WithError(err).Warn("failed to publish trade statistics")
			return
		}
	}
	added, err := tc.Provider.Repo.StatisticsRepository().AddStatistics(tc.Ctx, stats)
	if err != nil {
		tc.Logger().WithError(err).Warn("failed to store trade statistics")
		return
	}
	tc.Model.StatisticsPublished = true
	if added && tc.notify != nil {
		tc.notify(newStatisticsEvent(tc.Trade, stats))
	}
}
