package ports

import (
	"context"

	"github.com/tdex-network/tdex-tradeprotocol/internal/core/domain"
)

// OfferBook gives access to the open offers of the local party and to the
// offers of others that are about to be taken.
type OfferBook interface {
	GetOffer(ctx context.Context, offerId string) (*domain.Offer, error)
	// RemoveOffer removes an open offer from the book once it has been taken
	// for good.
	RemoveOffer(ctx context.Context, offerId string) error
}

// Filter tells whether a peer or its payment account is banned.
type Filter interface {
	IsNodeBanned(ctx context.Context, nodeAddress string) (bool, error)
	IsPaymentAccountBanned(
		ctx context.Context, paymentAccountPayloadHash []byte,
	) (bool, error)
}

// StatisticsPublisher broadcasts trade statistics records to the network.
type StatisticsPublisher interface {
	Publish(ctx context.Context, stats domain.TradeStatistics) error
}
