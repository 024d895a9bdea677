package domain_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/tdex-network/tdex-tradeprotocol/internal/core/domain"
)

func TestTradeRole(t *testing.T) {
	tests := []struct {
		name      string
		direction domain.Direction
		isMaker   bool
		role      domain.Role
	}{
		{"maker_buys", domain.TradeBuy, true, domain.RoleBuyerAsMaker},
		{"maker_sells", domain.TradeSell, true, domain.RoleSellerAsMaker},
		{"taker_of_buy_offer", domain.TradeBuy, false, domain.RoleSellerAsTaker},
		{"taker_of_sell_offer", domain.TradeSell, false, domain.RoleBuyerAsTaker},
	}

	for i := range tests {
		tt := tests[i]
		t.Run(tt.name, func(t *testing.T) {
			offer := newTestOffer()
			offer.Direction = tt.direction
			trade := domain.NewTrade(offer, tt.isMaker, offer.Amount, "peer.onion:9999")

			require.Equal(t, tt.role, trade.Role())
			require.Equal(t, tt.role.IsBuyer(), trade.IsBuyer())
			require.Equal(t, tt.isMaker, trade.Role().IsMaker())
		})
	}
}

func TestTradeAdvanceTo(t *testing.T) {
	trade := newTestTrade()

	require.True(t, trade.AdvanceTo(domain.TradeStateContractSigned))
	require.True(t, trade.AdvanceTo(domain.TradeStateDepositConfirmed))
	require.Equal(t, domain.TradeStateDepositConfirmed, trade.State)

	// Never backward.
	require.False(t, trade.AdvanceTo(domain.TradeStateDepositTxPublished))
	require.False(t, trade.AdvanceTo(domain.TradeStateDepositConfirmed))
	require.Equal(t, domain.TradeStateDepositConfirmed, trade.State)

	// Failure states are not reachable with AdvanceTo.
	require.False(t, trade.AdvanceTo(domain.TradeStateFailed))

	require.True(t, trade.AdvanceTo(domain.TradeStateCompleted))
	require.Equal(t, domain.CollectionClosed, trade.Collection)
	require.True(t, trade.IsTerminal())
	require.False(t, trade.AdvanceTo(domain.TradeStatePayoutPublished))
}

func TestTradeFail(t *testing.T) {
	t.Run("before_deposit_publication", func(t *testing.T) {
		trade := newTestTrade()
		trade.AdvanceTo(domain.TradeStateContractSigned)

		require.True(t, trade.Fail("contract mismatch"))
		require.True(t, trade.IsFailed())
		require.Equal(t, domain.CollectionFailed, trade.Collection)
		require.Equal(t, "contract mismatch", trade.ErrorMessage)

		require.False(t, trade.Fail("again"))
		require.False(t, trade.RequestDispute("again"))
		require.Equal(t, "contract mismatch", trade.ErrorMessage)
	})

	t.Run("after_deposit_publication", func(t *testing.T) {
		trade := newTestTrade()
		trade.AdvanceTo(domain.TradeStateDepositTxPublished)
		require.True(t, trade.HasCommittedFunds())

		require.True(t, trade.Fail("invalid payout signature"))
		require.True(t, trade.IsDisputed())
		require.Equal(t, domain.CollectionDisputed, trade.Collection)
		require.Equal(t, "invalid payout signature", trade.DisputeReason)
		require.Equal(t, "invalid payout signature", trade.ErrorMessage)
	})

	t.Run("bsq_swap", func(t *testing.T) {
		trade := newTestBsqSwapTrade()
		require.False(t, trade.HasCommittedFunds())

		require.True(t, trade.Fail("tx mismatch"))
		require.True(t, trade.IsFailed())
	})
}

func TestTradeRequestDispute(t *testing.T) {
	tests := []struct {
		name          string
		prepare       func(t *domain.Trade)
		expDisputed   bool
		expError      string
		expCollection domain.Collection
	}{
		{
			name:          "open_trade",
			prepare:       func(*domain.Trade) {},
			expDisputed:   true,
			expError:      "payment never arrived",
			expCollection: domain.CollectionDisputed,
		},
		{
			name:    "replaces_previous_error",
			prepare: func(t *domain.Trade) {
				t.AdvanceTo(domain.TradeStateDepositConfirmed)
				t.SetErrorMessage("peer rejected PaymentSentMessage: busy")
			},
			expDisputed:   true,
			expError:      "payment never arrived",
			expCollection: domain.CollectionDisputed,
		},
		{
			name:    "completed_trade",
			prepare: func(t *domain.Trade) {
				t.AdvanceTo(domain.TradeStateCompleted)
			},
			expCollection: domain.CollectionClosed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			trade := newTestTrade()
			tt.prepare(trade)

			require.Equal(t, tt.expDisputed, trade.RequestDispute("payment never arrived"))
			require.Equal(t, tt.expDisputed, trade.IsDisputed())
			require.Equal(t, tt.expCollection, trade.Collection)
			if tt.expDisputed {
				require.Equal(t, tt.expError, trade.ErrorMessage)
				require.Equal(t, "payment never arrived", trade.DisputeReason)
				require.Equal(t, "DISPUTED", trade.Collection.String())
			}
		})
	}
}

func TestTradeAmounts(t *testing.T) {
	trade := newTestTrade()

	require.Equal(t, uint64(100_000_000+15_000_000+15_000_000+5000), trade.DepositOutputValue())
	require.Equal(t, uint64(115_000_000), trade.BuyerPayoutAmount())
	require.Equal(t, uint64(15_000_000), trade.SellerPayoutAmount())
	require.Equal(
		t,
		trade.DepositOutputValue(),
		trade.DepositContribution()+trade.PeerDepositContribution(),
	)
	require.Equal(
		t,
		trade.DepositOutputValue()-trade.TxFee,
		trade.BuyerPayoutAmount()+trade.SellerPayoutAmount(),
	)
}

func newTestOffer() domain.Offer {
	return domain.Offer{
		Id:                    "offer-1",
		Protocol:              domain.ProtocolEscrow,
		Direction:             domain.TradeBuy,
		MinAmount:             50_000_000,
		Amount:                100_000_000,
		Price:                 decimal.NewFromInt(30000),
		PaymentMethod:         "SEPA",
		CurrencyCode:          "EUR",
		MakerNodeAddress:      "maker.onion:9999",
		MakerPubKeyRing:       []byte{0x02, 0x01},
		BuyerSecurityDeposit:  15_000_000,
		SellerSecurityDeposit: 15_000_000,
		TxFee:                 5000,
	}
}

func newTestTrade() *domain.Trade {
	offer := newTestOffer()
	return domain.NewTrade(offer, true, offer.Amount, "taker.onion:9999")
}

func newTestBsqSwapTrade() *domain.Trade {
	offer := newTestOffer()
	offer.Protocol = domain.ProtocolBsqSwap
	return domain.NewBsqSwapTrade(offer, false, domain.BsqSwapDetails{
		BtcAmount:     100_000_000,
		BsqAmount:     5_000_000,
		TxFeePerVbyte: 5,
		MakerFee:      50,
		TakerFee:      150,
	}, offer.MakerNodeAddress)
}
