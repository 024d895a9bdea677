package main

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/tdex-network/tdex-tradeprotocol/internal/config"
	"github.com/tdex-network/tdex-tradeprotocol/internal/core/domain"
	dbbadger "github.com/tdex-network/tdex-tradeprotocol/internal/infrastructure/storage/db/badger"
)

func newTestDatadir(t *testing.T) string {
	datadir := t.TempDir()
	ctx := context.Background()

	repoManager, err := dbbadger.NewRepoManager(
		filepath.Join(datadir, config.DbLocation), nil,
	)
	require.NoError(t, err)
	defer repoManager.Close()

	for _, id := range []string{"open-trade", "failed-trade"} {
		offer := domain.Offer{
			Id:           id,
			Protocol:     domain.ProtocolEscrow,
			Direction:    domain.TradeSell,
			Amount:       1000000,
			Price:        decimal.NewFromInt(30000),
			CurrencyCode: "EUR",
		}
		trade := domain.NewTrade(offer, true, offer.Amount, "peer.onion:9999")
		if id == "failed-trade" {
			trade.Fail("peer timed out")
		}
		require.NoError(t, repoManager.TradeRepository().AddTrade(ctx, trade))
	}

	model := domain.NewProcessModel("open-trade", "alice", "alice.onion:9999", nil)
	model.TrackMessage(&domain.MessageRecord{
		Uid:         "uid-1",
		Kind:        domain.KindInputsForDepositTxRequest,
		PeerAddress: "peer.onion:9999",
		State:       domain.MessageStateArrived,
	})
	require.NoError(t, repoManager.ProcessModelRepository().SaveProcessModel(ctx, model))

	return datadir
}

func runCommand(t *testing.T, datadir string, args ...string) (map[string]interface{}, error) {
	out := &bytes.Buffer{}
	app := newApp(datadir, "", 0)
	app.Writer = out

	if err := app.Run(append([]string{"tradectl"}, args...)); err != nil {
		return nil, err
	}
	resp := make(map[string]interface{})
	require.NoError(t, json.Unmarshal(out.Bytes(), &resp))
	return resp, nil
}

func TestTradectl(t *testing.T) {
	datadir := newTestDatadir(t)

	t.Run("list_all_trades", func(t *testing.T) {
		resp, err := runCommand(t, datadir, "trades")
		require.NoError(t, err)
		require.Len(t, resp["trades"], 2)
	})

	t.Run("list_open_trades", func(t *testing.T) {
		resp, err := runCommand(t, datadir, "trades", "--collection", "open")
		require.NoError(t, err)
		trades := resp["trades"].([]interface{})
		require.Len(t, trades, 1)
		require.Equal(t, "open-trade", trades[0].(map[string]interface{})["id"])
	})

	t.Run("list_failed_trades", func(t *testing.T) {
		resp, err := runCommand(t, datadir, "failed")
		require.NoError(t, err)
		trades := resp["trades"].([]interface{})
		require.Len(t, trades, 1)
		trade := trades[0].(map[string]interface{})
		require.Equal(t, "FAILED", trade["state"])
		require.Equal(t, "peer timed out", trade["error_message"])
	})

	t.Run("unknown_collection", func(t *testing.T) {
		_, err := runCommand(t, datadir, "trades", "--collection", "archived")
		require.Error(t, err)
	})

	t.Run("show_trade", func(t *testing.T) {
		resp, err := runCommand(t, datadir, "trade", "open-trade")
		require.NoError(t, err)
		trade := resp["trade"].(map[string]interface{})
		require.Equal(t, "maker", trade["role"])
		require.Equal(t, "PREPARED", trade["state"])
	})

	t.Run("show_unknown_trade", func(t *testing.T) {
		_, err := runCommand(t, datadir, "trade", "unknown")
		require.ErrorIs(t, err, domain.ErrTradeNotFound)
	})

	t.Run("list_messages", func(t *testing.T) {
		resp, err := runCommand(t, datadir, "messages", "open-trade")
		require.NoError(t, err)
		messages := resp["messages"].([]interface{})
		require.Len(t, messages, 1)
		require.Equal(t, "uid-1", messages[0].(map[string]interface{})["uid"])
	})

	t.Run("list_stats", func(t *testing.T) {
		resp, err := runCommand(t, datadir, "stats")
		require.NoError(t, err)
		require.Empty(t, resp["statistics"])
	})

	t.Run("dispute_open_trade", func(t *testing.T) {
		resp, err := runCommand(
			t, datadir, "dispute", "--reason", "payment never arrived", "open-trade",
		)
		require.NoError(t, err)
		trade := resp["trade"].(map[string]interface{})
		require.Equal(t, "payment never arrived", trade["dispute_reason"])
		require.Equal(t, "payment never arrived", trade["error_message"])
		require.Equal(t, domain.TradeStateDisputeRequested.String(), trade["state"])
		require.Equal(t, domain.CollectionDisputed.String(), trade["collection"])
	})

	t.Run("list_disputed_trades", func(t *testing.T) {
		resp, err := runCommand(t, datadir, "trades", "--collection", "disputed")
		require.NoError(t, err)
		trades := resp["trades"].([]interface{})
		require.Len(t, trades, 1)
		require.Equal(t, "open-trade", trades[0].(map[string]interface{})["id"])
	})

	t.Run("dispute_failed_trade", func(t *testing.T) {
		_, err := runCommand(t, datadir, "dispute", "--reason", "late", "failed-trade")
		require.ErrorIs(t, err, domain.ErrTradeAlreadyTerminal)
	})

	t.Run("missing_datadir", func(t *testing.T) {
		_, err := runCommand(t, t.TempDir(), "trades")
		require.Error(t, err)
	})

	t.Run("missing_esplora_url", func(t *testing.T) {
		_, err := runCommand(t, datadir, "feerate")
		require.Error(t, err)
	})
}
