package esplorachain

import (
	"context"
	"errors"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/tdex-network/tdex-tradeprotocol/internal/core/ports"
)

type observable interface {
	key() string
	// observe returns the event to emit, if any, and whether the observable
	// is done and can be dropped.
	observe(ctx context.Context, e *explorer) (*ports.ChainEvent, bool, error)
}

type txObservable struct {
	tradeId     string
	txid        string
	finality    int
	lastConfirm int
}

func newTxObservable(tradeId, txid string, finality int) *txObservable {
	return &txObservable{tradeId, txid, finality, -1}
}

func (t *txObservable) key() string {
	return "tx:" + t.tradeId + ":" + t.txid
}

func (t *txObservable) observe(
	ctx context.Context, e *explorer,
) (*ports.ChainEvent, bool, error) {
	confirmations := 0
	status, err := e.txStatus(ctx, t.txid)
	if err != nil && !errors.Is(err, errNotFound) {
		return nil, false, err
	}
	if status != nil && status.Confirmed {
		tip, err := e.tipHeight(ctx)
		if err != nil {
			return nil, false, err
		}
		confirmations = tip - status.BlockHeight + 1
	}

	if confirmations == t.lastConfirm {
		return nil, false, nil
	}
	t.lastConfirm = confirmations
	return &ports.ChainEvent{
		Type:          ports.TxConfirmations,
		TradeId:       t.tradeId,
		TxId:          t.txid,
		Confirmations: confirmations,
	}, confirmations >= t.finality, nil
}

type addressObservable struct {
	tradeId     string
	address     string
	lastBalance *uint64
}

func newAddressObservable(tradeId, address string) *addressObservable {
	return &addressObservable{tradeId: tradeId, address: address}
}

func (a *addressObservable) key() string {
	return "address:" + a.tradeId + ":" + a.address
}

func (a *addressObservable) observe(
	ctx context.Context, e *explorer,
) (*ports.ChainEvent, bool, error) {
	info, err := e.addressInfo(ctx, a.address)
	if err != nil {
		return nil, false, err
	}
	balance := info.balance()
	if a.lastBalance != nil && *a.lastBalance == balance {
		return nil, false, nil
	}

	// Once funded, an address emptied is not going to be refilled.
	done := a.lastBalance != nil && *a.lastBalance > 0 && balance == 0
	a.lastBalance = &balance
	return &ports.ChainEvent{
		Type:    ports.AddressBalance,
		TradeId: a.tradeId,
		Address: a.address,
		Balance: balance,
	}, done, nil
}

// observableHandler polls its observable at every tick until stopped or
// done.
type observableHandler struct {
	observable observable
	explorer   *explorer
	interval   time.Duration
	events     chan<- ports.ChainEvent
	onDone     func(key string)

	quit chan struct{}
	once sync.Once
}

func (oh *observableHandler) start(wg *sync.WaitGroup) {
	defer wg.Done()
	log.Debugf("start observing %s", oh.observable.key())

	ticker := time.NewTicker(oh.interval)
	defer ticker.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-oh.quit:
			cancel()
		case <-ctx.Done():
		}
	}()

	for {
		if done := oh.poll(ctx); done {
			oh.onDone(oh.observable.key())
			return
		}
		select {
		case <-oh.quit:
			return
		case <-ticker.C:
		}
	}
}

func (oh *observableHandler) poll(ctx context.Context) bool {
	event, done, err := oh.observable.observe(ctx, oh.explorer)
	if err != nil {
		if ctx.Err() == nil {
			log.WithError(err).Debugf("failed to observe %s", oh.observable.key())
		}
		return false
	}
	if event != nil {
		select {
		case oh.events <- *event:
		case <-oh.quit:
			return true
		}
	}
	return done
}

func (oh *observableHandler) stop() {
	oh.once.Do(func() {
		log.Debugf("stop observing %s", oh.observable.key())
		close(oh.quit)
	})
}
