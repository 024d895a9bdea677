package inmemory

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"github.com/tdex-network/tdex-tradeprotocol/internal/core/domain"
)

type tradeRepository struct {
	locker sync.RWMutex
	trades map[string][]byte
}

// NewTradeRepository returns a new inmemory TradeRepository implementation.
func NewTradeRepository() domain.TradeRepository {
	return newTradeRepository()
}

func newTradeRepository() *tradeRepository {
	return &tradeRepository{trades: make(map[string][]byte)}
}

func (r *tradeRepository) AddTrade(_ context.Context, trade *domain.Trade) error {
	r.locker.Lock()
	defer r.locker.Unlock()

	if _, ok := r.trades[trade.Id]; ok {
		return nil
	}
	return r.put(trade)
}

func (r *tradeRepository) GetTrade(_ context.Context, tradeId string) (*domain.Trade, error) {
	r.locker.RLock()
	defer r.locker.RUnlock()

	return r.get(tradeId)
}

func (r *tradeRepository) GetAllTrades(
	_ context.Context, page *domain.Page,
) ([]*domain.Trade, error) {
	r.locker.RLock()
	defer r.locker.RUnlock()

	return r.find(func(*domain.Trade) bool { return true }, page)
}

func (r *tradeRepository) GetTradesByCollection(
	_ context.Context, collection domain.Collection, page *domain.Page,
) ([]*domain.Trade, error) {
	r.locker.RLock()
	defer r.locker.RUnlock()

	return r.find(func(t *domain.Trade) bool {
		return t.Collection == collection
	}, page)
}

func (r *tradeRepository) GetTradeWithDepositTxId(
	_ context.Context, txid string,
) (*domain.Trade, error) {
	r.locker.RLock()
	defer r.locker.RUnlock()

	trades, err := r.find(func(t *domain.Trade) bool {
		return t.DepositTxId == txid
	}, nil)
	if err != nil {
		return nil, err
	}
	if len(trades) <= 0 {
		return nil, domain.ErrTradeNotFound
	}
	return trades[0], nil
}

func (r *tradeRepository) UpdateTrade(
	_ context.Context, tradeId string,
	updateFn func(t *domain.Trade) (*domain.Trade, error),
) error {
	r.locker.Lock()
	defer r.locker.Unlock()

	trade, err := r.get(tradeId)
	if err != nil {
		return err
	}
	updatedTrade, err := updateFn(trade)
	if err != nil {
		return err
	}
	if updatedTrade.Id != tradeId {
		return domain.ErrTradeIdMismatch
	}
	return r.put(updatedTrade)
}

func (r *tradeRepository) get(tradeId string) (*domain.Trade, error) {
	buf, ok := r.trades[tradeId]
	if !ok {
		return nil, domain.ErrTradeNotFound
	}
	trade := &domain.Trade{}
	if err := json.Unmarshal(buf, trade); err != nil {
		return nil, err
	}
	return trade, nil
}

func (r *tradeRepository) put(trade *domain.Trade) error {
	buf, err := json.Marshal(trade)
	if err != nil {
		return err
	}
	r.trades[trade.Id] = buf
	return nil
}

// find returns the trades matching the filter, sorted by creation time.
func (r *tradeRepository) find(
	filter func(t *domain.Trade) bool, page *domain.Page,
) ([]*domain.Trade, error) {
	trades := make([]*domain.Trade, 0, len(r.trades))
	for id := range r.trades {
		trade, err := r.get(id)
		if err != nil {
			return nil, err
		}
		if filter(trade) {
			trades = append(trades, trade)
		}
	}
	sortTrades(trades)

	if page == nil {
		return trades, nil
	}
	first, last := page.Bounds(len(trades))
	return trades[first:last], nil
}

func sortTrades(trades []*domain.Trade) {
	sort.SliceStable(trades, func(i, j int) bool {
		if trades[i].CreatedAt == trades[j].CreatedAt {
			return trades[i].Id < trades[j].Id
		}
		return trades[i].CreatedAt < trades[j].CreatedAt
	})
}

func (r *tradeRepository) snapshot() map[string][]byte {
	r.locker.RLock()
	defer r.locker.RUnlock()
	return copyEntries(r.trades)
}

func (r *tradeRepository) restore(trades map[string][]byte) {
	r.locker.Lock()
	defer r.locker.Unlock()
	r.trades = trades
}
