package escrow_test

import (
	"context"

	"github.com/stretchr/testify/mock"
	"github.com/tdex-network/tdex-tradeprotocol/internal/core/domain"
	"github.com/tdex-network/tdex-tradeprotocol/internal/core/ports"
)

type mockTradeAdvancer struct {
	mock.Mock
}

func (m *mockTradeAdvancer) GetTrade(ctx context.Context, tradeId string) (*domain.Trade, error) {
	args := m.Called(ctx, tradeId)
	var res *domain.Trade
	if a := args.Get(0); a != nil {
		res = a.(*domain.Trade)
	}
	return res, args.Error(1)
}

func (m *mockTradeAdvancer) ForceAdvance(
	ctx context.Context, tradeId string, state domain.TradeState,
	onAdvanced func(ctx context.Context, trade domain.Trade),
) (bool, error) {
	args := m.Called(ctx, tradeId, state, onAdvanced)
	return args.Bool(0), args.Error(1)
}

type mockOfferBook struct {
	mock.Mock
}

func (m *mockOfferBook) GetOffer(ctx context.Context, offerId string) (*domain.Offer, error) {
	args := m.Called(ctx, offerId)
	var res *domain.Offer
	if a := args.Get(0); a != nil {
		res = a.(*domain.Offer)
	}
	return res, args.Error(1)
}

func (m *mockOfferBook) RemoveOffer(ctx context.Context, offerId string) error {
	args := m.Called(ctx, offerId)
	return args.Error(0)
}

type chanNotifier struct {
	events chan ports.ChainEvent
}

func (n chanNotifier) WatchTx(context.Context, string, string) error {
	return nil
}

func (n chanNotifier) WatchAddress(context.Context, string, string) error {
	return nil
}

func (n chanNotifier) Notifications() <-chan ports.ChainEvent {
	return n.events
}
