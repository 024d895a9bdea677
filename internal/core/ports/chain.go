package ports

import "context"

// ChainEventType ...
type ChainEventType int

const (
	// TxConfirmations is emitted whenever the confirmation depth of a watched
	// tx changes.
	TxConfirmations ChainEventType = iota
	// AddressBalance is emitted whenever the balance of a watched address
	// changes.
	AddressBalance
)

// ChainEvent is a notification about a watched tx or address.
type ChainEvent struct {
	Type          ChainEventType
	TradeId       string
	TxId          string
	Confirmations int
	Address       string
	Balance       uint64
}

// ChainNotifier notifies about the txs and addresses of the trades.
type ChainNotifier interface {
	WatchTx(ctx context.Context, tradeId, txid string) error
	WatchAddress(ctx context.Context, tradeId, address string) error
	Notifications() <-chan ChainEvent
}
