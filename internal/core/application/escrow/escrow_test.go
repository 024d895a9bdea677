package escrow_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/tdex-network/tdex-tradeprotocol/internal/core/application/escrow"
	"github.com/tdex-network/tdex-tradeprotocol/internal/core/application/protocol"
	"github.com/tdex-network/tdex-tradeprotocol/internal/core/application/protocol/protocoltest"
	"github.com/tdex-network/tdex-tradeprotocol/internal/core/domain"
	"github.com/tdex-network/tdex-tradeprotocol/internal/core/ports"
	"github.com/tdex-network/tdex-tradeprotocol/internal/infrastructure/storage/db/inmemory"
)

const (
	offerId      = "escrow-offer"
	takerAddress = "taker.onion:9999"
	makerAddress = "maker.onion:9999"
	tradeAmount  = uint64(2000000)
	funds        = uint64(100000000)
)

var (
	ctx     = context.Background()
	regtest = &chaincfg.RegressionNetParams
)

type party struct {
	svc    *protocol.Service
	wallet *protocoltest.Wallet
	net    *protocoltest.Network
	repo   ports.RepoManager

	address string
	keys    protocoltest.KeyRing
	offers  *protocoltest.OfferBook
	opts    []protocol.Option
}

func (p *party) trade(t *testing.T) *domain.Trade {
	trade, err := p.svc.GetTrade(ctx, offerId)
	require.NoError(t, err)
	return trade
}

// serve replaces the service of the party with a new one on top of the same
// wallet and storage.
func (p *party) serve(t *testing.T) {
	p.net = protocoltest.NewNetwork(p.address)

	cfg := protocol.DefaultConfig(regtest, p.address+"-account")
	cfg.PaymentAccountPayloadHash = btcutil.Hash160([]byte(p.address))

	svc, err := protocol.NewService(cfg, protocol.Provider{
		Wallet:     p.wallet,
		Network:    p.net,
		FeeService: protocoltest.FeeService(10),
		KeyRing:    p.keys,
		OfferBook:  p.offers,
		Repo:       p.repo,
	}, escrow.Sequences(), p.opts...)
	require.NoError(t, err)
	t.Cleanup(svc.Stop)
	p.svc = svc
}

// restart simulates a crash of the party: the running service is dropped and
// a new one resumes the interrupted pipelines from the storage.
func (p *party) restart(t *testing.T, peer *party) {
	p.svc.Stop()
	p.serve(t)
	p.net.Connect(peer.address, peer.svc)
	peer.net.Connect(p.address, p.svc)

	require.NoError(t, p.svc.Start(ctx))
	p.svc.Wait()
}

type tradeEnv struct {
	chain  *protocoltest.Chain
	offers *protocoltest.OfferBook
	maker  *party
	taker  *party
}

func (e *tradeEnv) tx(t *testing.T, txid string) *wire.MsgTx {
	tx, ok := e.chain.Tx(txid)
	require.True(t, ok, "tx %s not broadcast", txid)
	return tx
}

// buyer and seller return the parties by their role in the trade.
func (e *tradeEnv) buyer(t *testing.T) *party {
	if e.maker.trade(t).IsBuyer() {
		return e.maker
	}
	return e.taker
}

func (e *tradeEnv) seller(t *testing.T) *party {
	if e.maker.trade(t).IsSeller() {
		return e.maker
	}
	return e.taker
}

func newParty(
	t *testing.T, address string, chain *protocoltest.Chain,
	offers *protocoltest.OfferBook, kr protocoltest.KeyRing,
	opts ...protocol.Option,
) *party {
	wallet, err := protocoltest.NewWallet(
		chain, regtest, map[ports.Asset]uint64{ports.AssetBtc: funds},
	)
	require.NoError(t, err)

	p := &party{
		wallet:  wallet,
		repo:    inmemory.NewRepoManager(),
		address: address,
		keys:    kr,
		offers:  offers,
		opts:    opts,
	}
	p.serve(t)
	return p
}

// newTradeEnv returns a maker, whose offer sells BTC, and a taker connected
// to each other.
func newTradeEnv(t *testing.T, opts ...protocol.Option) *tradeEnv {
	return newTradeEnvWithDirection(t, domain.TradeSell, opts...)
}

func newTradeEnvWithDirection(
	t *testing.T, direction domain.Direction, opts ...protocol.Option,
) *tradeEnv {
	chain := protocoltest.NewChain()
	makerKeys, err := protocoltest.NewKeyRing()
	require.NoError(t, err)
	takerKeys, err := protocoltest.NewKeyRing()
	require.NoError(t, err)

	offers := protocoltest.NewOfferBook(domain.Offer{
		Id:                    offerId,
		Protocol:              domain.ProtocolEscrow,
		Direction:             direction,
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

	maker := newParty(t, makerAddress, chain, offers, makerKeys, opts...)
	taker := newParty(t, takerAddress, chain, offers, takerKeys, opts...)
	maker.net.Connect(takerAddress, taker.svc)
	taker.net.Connect(makerAddress, maker.svc)

	return &tradeEnv{chain, offers, maker, taker}
}

func TestEscrowTrade(t *testing.T) {
	env := newTradeEnv(t)
	taker, maker := env.taker, env.maker

	trade, err := taker.svc.TakeOffer(ctx, offerId, tradeAmount)
	require.NoError(t, err)
	require.Equal(t, domain.TradeStateDepositTxPublished, trade.State)
	require.True(t, trade.IsBuyer())
	require.NotEmpty(t, trade.DepositTxId)

	makerTrade := maker.trade(t)
	require.True(t, makerTrade.IsMaker)
	require.True(t, makerTrade.IsSeller())
	require.Equal(t, domain.TradeStateDepositTxPublished, makerTrade.State)
	require.Equal(t, trade.DepositTxId, makerTrade.DepositTxId)
	require.True(t, env.offers.IsRemoved())

	depositTx := env.tx(t, trade.DepositTxId)
	require.Len(t, depositTx.TxIn, 2)
	require.Len(t, depositTx.TxOut, 3)
	require.Equal(t, int64(trade.DepositOutputValue()), depositTx.TxOut[0].Value)
	require.Equal(t, txscript.WitnessV0ScriptHashTy, txscript.GetScriptClass(depositTx.TxOut[0].PkScript))

	// The buyer can't declare the payment before the deposit confirms.
	require.NoError(t, taker.svc.StartPayment(ctx, offerId))
	trade = taker.trade(t)
	require.Equal(t, domain.TradeStateDepositTxPublished, trade.State)
	require.Contains(t, trade.ErrorMessage, escrow.ErrDepositNotConfirmed.Error())

	env.chain.Confirm(trade.DepositTxId)
	require.NoError(t, taker.svc.StartPayment(ctx, offerId))
	require.Equal(t, domain.TradeStatePaymentSent, taker.trade(t).State)
	require.Equal(t, domain.TradeStatePaymentSent, maker.trade(t).State)

	require.NoError(t, maker.svc.ConfirmPaymentReceived(ctx, offerId))

	makerTrade, trade = maker.trade(t), taker.trade(t)
	for _, tr := range []*domain.Trade{makerTrade, trade} {
		require.Equal(t, domain.TradeStateCompleted, tr.State)
		require.Equal(t, domain.CollectionClosed, tr.Collection)
	}
	require.NotEmpty(t, makerTrade.PayoutTxId)
	require.Equal(t, makerTrade.PayoutTxId, trade.PayoutTxId)

	payoutTx := env.tx(t, makerTrade.PayoutTxId)
	require.Len(t, payoutTx.TxIn, 1)
	require.Equal(t, trade.DepositTxId, payoutTx.TxIn[0].PreviousOutPoint.Hash.String())
	require.Len(t, payoutTx.TxOut, 2)
	require.Equal(t, int64(trade.BuyerPayoutAmount()), payoutTx.TxOut[0].Value)
	require.Equal(t, int64(trade.SellerPayoutAmount()), payoutTx.TxOut[1].Value)

	makerStats, err := maker.repo.StatisticsRepository().ListStatistics(ctx, nil)
	require.NoError(t, err)
	require.Len(t, makerStats, 1)
	takerStats, err := taker.repo.StatisticsRepository().ListStatistics(ctx, nil)
	require.NoError(t, err)
	require.Empty(t, takerStats)

	for _, p := range []*party{taker, maker} {
		records, err := p.svc.GetMessageRecords(ctx, offerId)
		require.NoError(t, err)
		require.NotEmpty(t, records)
		for _, r := range records {
			require.Equal(t, domain.MessageStateAcknowledged, r.State, string(r.Kind))
		}
	}
	require.Empty(t, taker.wallet.Released())
	require.Empty(t, maker.wallet.Released())
}

func TestEscrowTradeWithTamperedContract(t *testing.T) {
	env := newTradeEnv(t)
	taker, maker := env.taker, env.maker

	maker.net.SetTamper(protocoltest.TamperWith(
		domain.KindInputsForDepositTxResponse, func(msg domain.Message) {
			res := msg.(*domain.InputsForDepositTxResponse)
			contract, err := domain.DeserializeContract(res.ContractJson)
			if err != nil {
				return
			}
			contract.Amount++
			res.ContractJson, _ = contract.Serialize()
		},
	))

	trade, err := taker.svc.TakeOffer(ctx, offerId, tradeAmount)
	require.NoError(t, err)
	require.Equal(t, domain.TradeStateFailed, trade.State)
	require.Equal(t, domain.CollectionFailed, trade.Collection)
	require.Contains(t, trade.ErrorMessage, escrow.ErrContractMismatch.Error())
	require.Equal(t, []string{offerId}, taker.wallet.Released())

	makerTrade := maker.trade(t)
	require.Equal(t, domain.TradeStatePrepared, makerTrade.State)
	require.Contains(t, makerTrade.ErrorMessage, "peer rejected")
	require.False(t, env.offers.IsRemoved())
	require.Zero(t, env.chain.TxCount())

	records, err := maker.svc.GetMessageRecords(ctx, offerId)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, domain.MessageStateFailed, records[0].State)
}

func TestEscrowTradeWithInvalidPayoutSignature(t *testing.T) {
	env := newTradeEnv(t)
	taker, maker := env.taker, env.maker

	trade, err := taker.svc.TakeOffer(ctx, offerId, tradeAmount)
	require.NoError(t, err)
	env.chain.Confirm(trade.DepositTxId)

	taker.net.SetTamper(protocoltest.TamperWith(
		domain.KindPaymentSent, func(msg domain.Message) {
			m := msg.(*domain.PaymentSentMessage)
			sig := append([]byte{}, m.PayoutSignature...)
			sig[len(sig)/2] ^= 0xff
			m.PayoutSignature = sig
		},
	))

	require.NoError(t, taker.svc.StartPayment(ctx, offerId))

	makerTrade := maker.trade(t)
	require.Equal(t, domain.TradeStateDisputeRequested, makerTrade.State)
	require.True(t, makerTrade.IsDisputed())
	require.NotEmpty(t, makerTrade.DisputeReason)

	trade = taker.trade(t)
	require.Equal(t, domain.TradeStatePaymentSent, trade.State)
	require.Contains(t, trade.ErrorMessage, "peer rejected")

	err = maker.svc.ConfirmPaymentReceived(ctx, offerId)
	require.ErrorIs(t, err, domain.ErrTradeAlreadyTerminal)
	require.Equal(t, 1, env.chain.TxCount())
}

func TestEscrowTradeAmountOutOfRange(t *testing.T) {
	env := newTradeEnv(t)

	trade, err := env.taker.svc.TakeOffer(ctx, offerId, 100)
	require.NoError(t, err)
	require.Equal(t, domain.TradeStateFailed, trade.State)
	require.Contains(t, trade.ErrorMessage, protocol.ErrAmountOutOfRange.Error())

	_, err = env.maker.svc.GetTrade(ctx, offerId)
	require.Error(t, err)
	require.Empty(t, env.maker.wallet.Reserved(offerId))
}

func TestEscrowTradeMakerBuysBtc(t *testing.T) {
	env := newTradeEnvWithDirection(t, domain.TradeBuy)
	taker, maker := env.taker, env.maker

	trade, err := taker.svc.TakeOffer(ctx, offerId, tradeAmount)
	require.NoError(t, err)
	require.Equal(t, domain.TradeStateDepositTxPublished, trade.State)
	require.True(t, trade.IsSeller())

	makerTrade := maker.trade(t)
	require.True(t, makerTrade.IsBuyer())
	require.Equal(t, trade.DepositTxId, makerTrade.DepositTxId)

	// Only the buyer can declare the payment.
	require.ErrorIs(
		t, taker.svc.StartPayment(ctx, offerId), protocol.ErrNoSequence,
	)

	env.chain.Confirm(trade.DepositTxId)
	require.NoError(t, maker.svc.StartPayment(ctx, offerId))
	require.Equal(t, domain.TradeStatePaymentSent, maker.trade(t).State)
	require.Equal(t, domain.TradeStatePaymentSent, taker.trade(t).State)

	require.NoError(t, taker.svc.ConfirmPaymentReceived(ctx, offerId))

	makerTrade, trade = maker.trade(t), taker.trade(t)
	for _, tr := range []*domain.Trade{makerTrade, trade} {
		require.Equal(t, domain.TradeStateCompleted, tr.State)
		require.Equal(t, domain.CollectionClosed, tr.Collection)
	}
	require.Equal(t, makerTrade.PayoutTxId, trade.PayoutTxId)
	require.Equal(t, 2, env.chain.TxCount())

	payoutTx := env.tx(t, trade.PayoutTxId)
	require.Len(t, payoutTx.TxIn, 1)
	require.Equal(t, trade.DepositTxId, payoutTx.TxIn[0].PreviousOutPoint.Hash.String())
	require.Equal(t, int64(makerTrade.BuyerPayoutAmount()), payoutTx.TxOut[0].Value)
	require.Equal(t, int64(trade.SellerPayoutAmount()), payoutTx.TxOut[1].Value)
}

// crashOnce halts the first run of a task of the given sequence, on whichever
// node runs it, and remembers the node.
type crashOnce struct {
	sequence string
	index    int

	lock    sync.Mutex
	fired   bool
	crashed string
}

func (c *crashOnce) intercept(_ string, index int, tc *protocol.TaskContext) error {
	if tc.SequenceName() != c.sequence || index != c.index {
		return nil
	}
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.fired {
		return nil
	}
	c.fired = true
	c.crashed = tc.Provider.Network.NodeAddress()
	return protocol.ErrPipelineHalted
}

// recover restarts the crashed node, if any.
func (c *crashOnce) recover(t *testing.T, env *tradeEnv) {
	c.lock.Lock()
	crashed := c.crashed
	c.crashed = ""
	c.lock.Unlock()

	switch crashed {
	case makerAddress:
		env.maker.restart(t, env.taker)
	case takerAddress:
		env.taker.restart(t, env.maker)
	}
}

func TestEscrowTradeResumesAfterCrash(t *testing.T) {
	type crashPoint struct {
		sequence string
		index    int
	}
	points := make([]crashPoint, 0)
	for _, entry := range escrow.Sequences() {
		for i := range entry.Sequence.Tasks {
			points = append(points, crashPoint{entry.Sequence.Name, i})
		}
	}

	for _, tt := range points {
		tt := tt
		t.Run(fmt.Sprintf("%s_before_%d", tt.sequence, tt.index), func(t *testing.T) {
			crash := &crashOnce{sequence: tt.sequence, index: tt.index}
			env := newTradeEnv(t, protocol.WithInterceptor(crash.intercept))

			_, err := env.taker.svc.TakeOffer(ctx, offerId, tradeAmount)
			require.NoError(t, err)
			crash.recover(t, env)

			trade := env.taker.trade(t)
			require.Equal(t, domain.TradeStateDepositTxPublished, trade.State)
			require.Equal(t, domain.TradeStateDepositTxPublished, env.maker.trade(t).State)
			env.chain.Confirm(trade.DepositTxId)

			require.NoError(t, env.buyer(t).svc.StartPayment(ctx, offerId))
			crash.recover(t, env)
			require.Equal(t, domain.TradeStatePaymentSent, env.seller(t).trade(t).State)

			require.NoError(t, env.seller(t).svc.ConfirmPaymentReceived(ctx, offerId))
			crash.recover(t, env)

			require.True(t, crash.fired)
			makerTrade, takerTrade := env.maker.trade(t), env.taker.trade(t)
			for _, tr := range []*domain.Trade{makerTrade, takerTrade} {
				require.Equal(t, domain.TradeStateCompleted, tr.State)
				require.Equal(t, domain.CollectionClosed, tr.Collection)
			}
			require.Equal(t, makerTrade.DepositTxId, takerTrade.DepositTxId)
			require.Equal(t, makerTrade.PayoutTxId, takerTrade.PayoutTxId)
			// The deposit and the payout are broadcast exactly once.
			require.Equal(t, 2, env.chain.TxCount())

			for _, p := range []*party{env.taker, env.maker} {
				model, err := p.repo.ProcessModelRepository().GetProcessModel(ctx, offerId)
				require.NoError(t, err)
				require.Nil(t, model.Cursor)

				records, err := p.svc.GetMessageRecords(ctx, offerId)
				require.NoError(t, err)
				for _, r := range records {
					require.Equal(t, domain.MessageStateAcknowledged, r.State, string(r.Kind))
				}
			}
		})
	}
}
