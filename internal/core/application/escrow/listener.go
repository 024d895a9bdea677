package escrow

import (
	"context"
	"sync"

	log "github.com/sirupsen/logrus"
	"github.com/tdex-network/tdex-tradeprotocol/internal/core/domain"
	"github.com/tdex-network/tdex-tradeprotocol/internal/core/ports"
)

// TradeAdvancer moves trades forward out of their pipelines.
type TradeAdvancer interface {
	GetTrade(ctx context.Context, tradeId string) (*domain.Trade, error)
	ForceAdvance(
		ctx context.Context, tradeId string, state domain.TradeState,
		onAdvanced func(ctx context.Context, trade domain.Trade),
	) (bool, error)
}

// ConfirmationListener drives the escrow trades through the states that
// depend on the chain rather than on the peer: the confirmation of the
// deposit tx, and the spending of the reserved inputs by a deposit tx that
// was published without the local pipeline knowing about it.
type ConfirmationListener interface {
	Listen()
	StopListening()
}

type confirmationListener struct {
	trades   TradeAdvancer
	notifier ports.ChainNotifier
	offers   ports.OfferBook

	lock    sync.Mutex
	quit    chan struct{}
	running sync.WaitGroup
}

// NewConfirmationListener returns a listener for the notifications of the
// given chain notifier.
func NewConfirmationListener(
	trades TradeAdvancer, notifier ports.ChainNotifier, offers ports.OfferBook,
) ConfirmationListener {
	return newConfirmationListener(trades, notifier, offers)
}

func newConfirmationListener(
	trades TradeAdvancer, notifier ports.ChainNotifier, offers ports.OfferBook,
) *confirmationListener {
	return &confirmationListener{
		trades:   trades,
		notifier: notifier,
		offers:   offers,
	}
}

func (l *confirmationListener) Listen() {
	l.lock.Lock()
	defer l.lock.Unlock()

	if l.quit != nil {
		return
	}
	l.quit = make(chan struct{})
	l.running.Add(1)
	go l.handleChainEvents(l.quit)
}

func (l *confirmationListener) StopListening() {
	l.lock.Lock()
	if l.quit == nil {
		l.lock.Unlock()
		return
	}
	close(l.quit)
	l.quit = nil
	l.lock.Unlock()

	l.running.Wait()
}

func (l *confirmationListener) handleChainEvents(quit chan struct{}) {
	defer l.running.Done()

	events := l.notifier.Notifications()
	for {
		select {
		case <-quit:
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			l.handleEvent(context.Background(), event)
		}
	}
}

func (l *confirmationListener) handleEvent(ctx context.Context, event ports.ChainEvent) {
	trade, err := l.trades.GetTrade(ctx, event.TradeId)
	if err != nil {
		log.WithError(err).Warnf("dropping chain event for trade %s", event.TradeId)
		return
	}
	if trade.Protocol != domain.ProtocolEscrow || trade.IsTerminal() {
		return
	}

	switch event.Type {
	case ports.TxConfirmations:
		if event.TxId != trade.DepositTxId || event.Confirmations < 1 {
			return
		}
		if _, err := l.trades.ForceAdvance(
			ctx, trade.Id, domain.TradeStateDepositConfirmed, nil,
		); err != nil {
			log.WithError(err).Warnf(
				"failed to mark deposit of trade %s as confirmed", trade.Id,
			)
			return
		}
		log.Debugf("deposit tx of trade %s confirmed", trade.Id)

	case ports.AddressBalance:
		if event.Balance > 0 || trade.State >= domain.TradeStateDepositTxPublished {
			return
		}
		// The reserved inputs have been spent, only the deposit tx can do it.
		advanced, err := l.trades.ForceAdvance(
			ctx, trade.Id, domain.TradeStateDepositTxPublished, l.freeOffer,
		)
		if err != nil {
			log.WithError(err).Warnf(
				"failed to force advance trade %s after its inputs were spent",
				trade.Id,
			)
			return
		}
		if advanced {
			log.Infof(
				"reserved inputs of trade %s spent, deposit tx assumed published",
				trade.Id,
			)
		}
	}
}

func (l *confirmationListener) freeOffer(ctx context.Context, trade domain.Trade) {
	if !trade.IsMaker || l.offers == nil {
		return
	}
	if err := l.offers.RemoveOffer(ctx, trade.OfferId); err != nil {
		log.WithError(err).Warnf("failed to remove offer %s", trade.OfferId)
	}
}
