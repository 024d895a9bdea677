package dbbadger

import (
	"context"

	"github.com/dgraph-io/badger/v3"
	"github.com/tdex-network/tdex-tradeprotocol/internal/core/domain"
	"github.com/timshannon/badgerhold/v4"
)

type tradeRepositoryImpl struct {
	store *badgerhold.Store
}

// NewTradeRepositoryImpl returns a badger implementation of the
// domain.TradeRepository.
func NewTradeRepositoryImpl(store *badgerhold.Store) domain.TradeRepository {
	return tradeRepositoryImpl{store}
}

func (t tradeRepositoryImpl) AddTrade(ctx context.Context, trade *domain.Trade) error {
	err := t.insertTrade(ctx, *trade)
	if err == badgerhold.ErrKeyExists {
		return nil
	}
	return err
}

func (t tradeRepositoryImpl) GetTrade(
	ctx context.Context, tradeId string,
) (*domain.Trade, error) {
	return t.getTrade(ctx, tradeId)
}

func (t tradeRepositoryImpl) GetAllTrades(
	ctx context.Context, page *domain.Page,
) ([]*domain.Trade, error) {
	return t.findTrades(ctx, &badgerhold.Query{}, page)
}

func (t tradeRepositoryImpl) GetTradesByCollection(
	ctx context.Context, collection domain.Collection, page *domain.Page,
) ([]*domain.Trade, error) {
	query := badgerhold.Where("Collection").Eq(collection)
	return t.findTrades(ctx, query, page)
}

func (t tradeRepositoryImpl) GetTradeWithDepositTxId(
	ctx context.Context, txid string,
) (*domain.Trade, error) {
	query := badgerhold.Where("DepositTxId").Eq(txid)
	trades, err := t.findTrades(ctx, query, nil)
	if err != nil {
		return nil, err
	}
	if len(trades) <= 0 {
		return nil, domain.ErrTradeNotFound
	}
	return trades[0], nil
}

// UpdateTrade runs the read-modify-write in a single badger transaction,
// unless the context already carries one.
func (t tradeRepositoryImpl) UpdateTrade(
	ctx context.Context, tradeId string,
	updateFn func(t *domain.Trade) (*domain.Trade, error),
) error {
	if txFromContext(ctx) != nil {
		return t.updateTrade(ctx, tradeId, updateFn)
	}

	return t.store.Badger().Update(func(tx *badger.Txn) error {
		return t.updateTrade(context.WithValue(ctx, "tx", tx), tradeId, updateFn)
	})
}

func (t tradeRepositoryImpl) updateTrade(
	ctx context.Context, tradeId string,
	updateFn func(t *domain.Trade) (*domain.Trade, error),
) error {
	trade, err := t.getTrade(ctx, tradeId)
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
	return t.store.TxUpdate(txFromContext(ctx), tradeId, *updatedTrade)
}

func (t tradeRepositoryImpl) findTrades(
	ctx context.Context, query *badgerhold.Query, page *domain.Page,
) ([]*domain.Trade, error) {
	query = query.SortBy("CreatedAt", "Id")
	if page != nil {
		query = query.Skip((page.Number - 1) * page.Size).Limit(page.Size)
	}

	var trades []domain.Trade
	var err error
	if tx := txFromContext(ctx); tx != nil {
		err = t.store.TxFind(tx, &trades, query)
	} else {
		err = t.store.Find(&trades, query)
	}
	if err != nil {
		return nil, err
	}

	res := make([]*domain.Trade, 0, len(trades))
	for i := range trades {
		res = append(res, &trades[i])
	}
	return res, nil
}

func (t tradeRepositoryImpl) getTrade(
	ctx context.Context, tradeId string,
) (*domain.Trade, error) {
	var trade domain.Trade
	var err error
	if tx := txFromContext(ctx); tx != nil {
		err = t.store.TxGet(tx, tradeId, &trade)
	} else {
		err = t.store.Get(tradeId, &trade)
	}
	if err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, domain.ErrTradeNotFound
		}
		return nil, err
	}
	return &trade, nil
}

func (t tradeRepositoryImpl) insertTrade(ctx context.Context, trade domain.Trade) error {
	if tx := txFromContext(ctx); tx != nil {
		return t.store.TxInsert(tx, trade.Id, trade)
	}
	return t.store.Insert(trade.Id, trade)
}
