package app_test

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/tdex-network/tdex-tradeprotocol/internal/app"
	"github.com/tdex-network/tdex-tradeprotocol/internal/config"
	"github.com/tdex-network/tdex-tradeprotocol/internal/core/application/escrow"
	"github.com/tdex-network/tdex-tradeprotocol/internal/core/application/protocol"
	"github.com/tdex-network/tdex-tradeprotocol/internal/core/application/protocol/protocoltest"
	"github.com/tdex-network/tdex-tradeprotocol/internal/core/domain"
	"github.com/tdex-network/tdex-tradeprotocol/internal/core/ports"
	"github.com/tdex-network/tdex-tradeprotocol/internal/infrastructure/storage/db/inmemory"
)

const (
	offerId      = "app-offer"
	takerAddress = "taker.onion:9999"
	makerAddress = "maker.onion:9999"
	tradeAmount  = uint64(2000000)
	funds        = uint64(100000000)
)

var (
	ctx     = context.Background()
	regtest = &chaincfg.RegressionNetParams
)

// fakeEsplora reports the confirmations of the txs of a test chain.
type fakeEsplora struct {
	chain *protocoltest.Chain
}

func (f *fakeEsplora) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path
	switch {
	case path == "/blocks/tip/height":
		fmt.Fprint(w, "100")
	case path == "/fee-estimates":
		fmt.Fprint(w, `{"1":20,"6":10}`)
	case strings.HasPrefix(path, "/tx/") && strings.HasSuffix(path, "/status"):
		txid := strings.TrimSuffix(strings.TrimPrefix(path, "/tx/"), "/status")
		if f.chain.Confirmations(txid) <= 0 {
			fmt.Fprint(w, `{"confirmed":false}`)
			return
		}
		fmt.Fprint(w, `{"confirmed":true,"block_height":100}`)
	case strings.HasPrefix(path, "/address/"):
		fmt.Fprintf(
			w, `{"chain_stats":{"funded_txo_sum":%d,"spent_txo_sum":0},"mempool_stats":{}}`,
			funds,
		)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

// webhookRecorder collects the bodies of the notified events.
type webhookRecorder struct {
	lock   sync.Mutex
	bodies []string
}

func (h *webhookRecorder) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	h.lock.Lock()
	h.bodies = append(h.bodies, string(body))
	h.lock.Unlock()
	w.WriteHeader(http.StatusOK)
}

func (h *webhookRecorder) received(substr string) bool {
	h.lock.Lock()
	defer h.lock.Unlock()
	for _, b := range h.bodies {
		if strings.Contains(b, substr) {
			return true
		}
	}
	return false
}

type testEnv struct {
	chain    *protocoltest.Chain
	offers   *protocoltest.OfferBook
	collab   app.Collaborators
	maker    *protocol.Service
	makerNet *protocoltest.Network
	webhooks *webhookRecorder
}

func newTestEnv(t *testing.T) *testEnv {
	chain := protocoltest.NewChain()
	makerKeys, err := protocoltest.NewKeyRing()
	require.NoError(t, err)
	takerKeys, err := protocoltest.NewKeyRing()
	require.NoError(t, err)

	offers := protocoltest.NewOfferBook(domain.Offer{
		Id:                    offerId,
		Protocol:              domain.ProtocolEscrow,
		Direction:             domain.TradeSell,
		MinAmount:             1000000,
		Amount:                5000000,
		Price:                 decimal.NewFromInt(30000),
		PaymentMethod:         "SEPA",
		CurrencyCode:          "EUR",
		MakerNodeAddress:      makerAddress,
		MakerPubKeyRing:       makerKeys.PubKey(),
		BuyerSecurityDeposit:  300000,
		SellerSecurityDeposit: 300000,
		TxFee:                 10000,
	})

	makerWallet, err := protocoltest.NewWallet(
		chain, regtest, map[ports.Asset]uint64{ports.AssetBtc: funds},
	)
	require.NoError(t, err)
	makerNet := protocoltest.NewNetwork(makerAddress)
	makerCfg := protocol.DefaultConfig(regtest, "maker-account")
	makerCfg.PaymentAccountPayloadHash = btcutil.Hash160([]byte(makerAddress))
	maker, err := protocol.NewService(makerCfg, protocol.Provider{
		Wallet:     makerWallet,
		Network:    makerNet,
		FeeService: protocoltest.FeeService(10),
		KeyRing:    makerKeys,
		OfferBook:  offers,
		Repo:       inmemory.NewRepoManager(),
	}, escrow.Sequences())
	require.NoError(t, err)
	t.Cleanup(maker.Stop)

	takerWallet, err := protocoltest.NewWallet(
		chain, regtest, map[ports.Asset]uint64{ports.AssetBtc: funds},
	)
	require.NoError(t, err)

	esplora := httptest.NewServer(&fakeEsplora{chain})
	t.Cleanup(esplora.Close)
	webhooks := &webhookRecorder{}
	webhookServer := httptest.NewServer(webhooks)
	t.Cleanup(webhookServer.Close)

	setEnv := func(key, value string) { t.Setenv("TRADEPROTO_"+key, value) }
	setEnv(config.DatadirKey, t.TempDir())
	setEnv(config.NetworkKey, regtest.Name)
	setEnv(config.AccountIdKey, "taker-account")
	setEnv(config.EsploraUrlKey, esplora.URL)
	setEnv(config.ChainPollIntervalKey, "50ms")
	setEnv(config.WebhookEndpointKey, webhookServer.URL)
	require.NoError(t, config.InitConfig())

	return &testEnv{
		chain:  chain,
		offers: offers,
		collab: app.Collaborators{
			PaymentAccountPayloadHash: btcutil.Hash160([]byte(takerAddress)),
			Wallet:                    takerWallet,
			Network:                   protocoltest.NewNetwork(takerAddress),
			KeyRing:                   takerKeys,
			OfferBook:                 offers,
		},
		maker:    maker,
		makerNet: makerNet,
		webhooks: webhooks,
	}
}

// start assembles a new engine for the taker and connects it to the maker.
func (e *testEnv) start(t *testing.T) *app.App {
	a, err := app.New(e.collab)
	require.NoError(t, err)
	t.Cleanup(a.Stop)

	e.collab.Network.(*protocoltest.Network).Connect(makerAddress, e.maker)
	e.makerNet.Connect(takerAddress, a.Service())
	require.NoError(t, a.Start(ctx))
	return a
}

func TestApp(t *testing.T) {
	env := newTestEnv(t)
	engine := env.start(t)

	// No fee service is given, the taker gets its fee rate from esplora.
	trade, err := engine.Service().TakeOffer(ctx, offerId, tradeAmount)
	require.NoError(t, err)
	require.Equal(t, domain.TradeStateDepositTxPublished, trade.State)

	makerTrade, err := env.maker.GetTrade(ctx, offerId)
	require.NoError(t, err)
	require.Equal(t, trade.DepositTxId, makerTrade.DepositTxId)

	// The chain notifier and the listener bring the deposit to confirmed.
	env.chain.Confirm(trade.DepositTxId)
	require.Eventually(t, func() bool {
		tr, err := engine.Service().GetTrade(ctx, offerId)
		return err == nil && tr.State == domain.TradeStateDepositConfirmed
	}, 5*time.Second, 50*time.Millisecond)

	require.Eventually(t, func() bool {
		return env.webhooks.received(domain.TradeStateDepositConfirmed.String())
	}, 5*time.Second, 50*time.Millisecond)

	rec := httptest.NewRecorder()
	engine.MetricsHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "tradeprotocol_tasks_completed_total")

	// Trades survive a restart of the engine.
	require.NotPanics(t, engine.Stop)
	require.NotPanics(t, engine.Stop)

	restarted := env.start(t)
	tr, err := restarted.Service().GetTrade(ctx, offerId)
	require.NoError(t, err)
	require.Equal(t, domain.TradeStateDepositConfirmed, tr.State)
	require.Equal(t, trade.DepositTxId, tr.DepositTxId)
}

func TestAppRunStopsWithContext(t *testing.T) {
	env := newTestEnv(t)
	engine, err := app.New(env.collab)
	require.NoError(t, err)

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- engine.Run(runCtx) }()
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("engine did not stop")
	}

	// The db is released on stop.
	reopened, err := app.New(env.collab)
	require.NoError(t, err)
	reopened.Stop()
}

func TestAppInvalidWebhook(t *testing.T) {
	env := newTestEnv(t)
	t.Setenv("TRADEPROTO_"+config.WebhookEndpointKey, "not a url")
	require.NoError(t, config.InitConfig())

	_, err := app.New(env.collab)
	require.Error(t, err)

	// A failed build releases the db.
	t.Setenv("TRADEPROTO_"+config.WebhookEndpointKey, "")
	require.NoError(t, config.InitConfig())
	engine, err := app.New(env.collab)
	require.NoError(t, err)
	engine.Stop()
}
