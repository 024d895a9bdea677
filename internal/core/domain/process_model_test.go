package domain_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tdex-network/tdex-tradeprotocol/internal/core/domain"
)

func TestProcessModelValidate(t *testing.T) {
	contract := domain.Contract{TradeId: "trade-1", Amount: 100}
	contractJson, err := contract.Serialize()
	require.NoError(t, err)

	other := domain.Contract{TradeId: "trade-2", Amount: 100}
	otherJson, err := other.Serialize()
	require.NoError(t, err)

	tests := []struct {
		name   string
		model  func() *domain.ProcessModel
		expErr error
	}{
		{
			name: "empty",
			model: func() *domain.ProcessModel {
				return domain.NewProcessModel("trade-1", "acc", "me.onion", nil)
			},
		},
		{
			name: "with_contract",
			model: func() *domain.ProcessModel {
				m := domain.NewProcessModel("trade-1", "acc", "me.onion", nil)
				m.ContractJson = contractJson
				m.ContractHash = contract.Hash()
				m.ContractSignature = []byte{1}
				return m
			},
		},
		{
			name: "missing_trade_id",
			model: func() *domain.ProcessModel {
				return domain.NewProcessModel("", "acc", "me.onion", nil)
			},
			expErr: domain.ErrMissingTradeId,
		},
		{
			name: "contract_without_hash",
			model: func() *domain.ProcessModel {
				m := domain.NewProcessModel("trade-1", "acc", "me.onion", nil)
				m.ContractJson = contractJson
				return m
			},
			expErr: domain.ErrInconsistentModel,
		},
		{
			name: "contract_of_other_trade",
			model: func() *domain.ProcessModel {
				m := domain.NewProcessModel("trade-1", "acc", "me.onion", nil)
				m.ContractJson = otherJson
				m.ContractHash = other.Hash()
				return m
			},
			expErr: domain.ErrContractTradeIdMismatch,
		},
		{
			name: "wrong_contract_hash",
			model: func() *domain.ProcessModel {
				m := domain.NewProcessModel("trade-1", "acc", "me.onion", nil)
				m.ContractJson = contractJson
				m.ContractHash = other.Hash()
				return m
			},
			expErr: domain.ErrContractHashMismatch,
		},
		{
			name: "payout_tx_without_signature",
			model: func() *domain.ProcessModel {
				m := domain.NewProcessModel("trade-1", "acc", "me.onion", nil)
				m.PayoutTx = []byte{1}
				return m
			},
			expErr: domain.ErrInconsistentModel,
		},
	}

	for i := range tests {
		tt := tests[i]
		t.Run(tt.name, func(t *testing.T) {
			err := tt.model().Validate()
			if tt.expErr == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tt.expErr)
		})
	}
}

func TestProcessModelMessages(t *testing.T) {
	m := domain.NewProcessModel("trade-1", "acc", "me.onion", nil)

	first := &domain.MessageRecord{
		Uid: "a", Kind: domain.KindPaymentSent,
		Envelope: domain.Envelope{Uid: "a", CreatedAt: 10},
	}
	second := &domain.MessageRecord{
		Uid: "b", Kind: domain.KindPaymentSent,
		Envelope: domain.Envelope{Uid: "b", CreatedAt: 20},
	}
	m.TrackMessage(second)
	m.TrackMessage(first)

	require.Equal(t, "b", m.LatestMessageRecord(domain.KindPaymentSent).Uid)
	require.Nil(t, m.LatestMessageRecord(domain.KindAck))

	records := m.SortedMessageRecords()
	require.Len(t, records, 2)
	require.Equal(t, "a", records[0].Uid)

	require.False(t, m.IsProcessed("x"))
	m.MarkProcessed("x")
	require.True(t, m.IsProcessed("x"))
}
