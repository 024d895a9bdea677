package domain

import "context"

// TradeRepository is the abstraction for any kind of database intended to
// persist Trades. Trades are never deleted.
type TradeRepository interface {
	// AddTrade stores a new trade. Adding an already existing trade is a no-op.
	AddTrade(ctx context.Context, trade *Trade) error
	// GetTrade returns the trade with the given id.
	GetTrade(ctx context.Context, tradeId string) (*Trade, error)
	// GetAllTrades returns all the stored trades, optionally paginated.
	GetAllTrades(ctx context.Context, page *Page) ([]*Trade, error)
	// GetTradesByCollection returns the trades of the given collection.
	GetTradesByCollection(
		ctx context.Context, collection Collection, page *Page,
	) ([]*Trade, error)
	// GetTradeWithDepositTxId returns the trade whose deposit tx matches the
	// given id.
	GetTradeWithDepositTxId(ctx context.Context, txid string) (*Trade, error)
	// UpdateTrade allows to commit multiple changes to the same trade in a
	// transactional way.
	UpdateTrade(
		ctx context.Context,
		tradeId string,
		updateFn func(t *Trade) (*Trade, error),
	) error
}

// ProcessModelRepository persists the working state of the local party for
// every trade.
type ProcessModelRepository interface {
	// GetProcessModel returns the process model of the given trade.
	GetProcessModel(ctx context.Context, tradeId string) (*ProcessModel, error)
	// SaveProcessModel validates and stores the given model, replacing the
	// previous one if any.
	SaveProcessModel(ctx context.Context, model *ProcessModel) error
	// GetModelsWithPendingCursor returns the models of the pipelines that
	// were interrupted before reaching the end of their sequence.
	GetModelsWithPendingCursor(ctx context.Context) ([]*ProcessModel, error)
	// GetModelsWithPendingResends returns the models having at least one
	// outbound message still to be sent again.
	GetModelsWithPendingResends(ctx context.Context) ([]*ProcessModel, error)
}
