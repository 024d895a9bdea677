package domain

import (
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// TradeStatistics is the anonymized public record of a trade published after
// the deposit (or the swap tx) has been broadcast. Its hash identifies it, so
// that publishing the same record more than once has no effect.
type TradeStatistics struct {
	CurrencyCode  string
	Price         string
	Amount        uint64
	PaymentMethod string
	Date          int64
	Protocol      string
}

// NewTradeStatistics returns the statistics record for the given trade.
func NewTradeStatistics(t *Trade) TradeStatistics {
	date := t.CreatedAt
	if t.BsqSwap != nil && t.BsqSwap.TradeDate > 0 {
		date = t.BsqSwap.TradeDate
	}
	return TradeStatistics{
		CurrencyCode:  t.CurrencyCode,
		Price:         t.Price.String(),
		Amount:        t.Amount,
		PaymentMethod: t.PaymentMethod,
		Date:          date,
		Protocol:      t.Protocol.String(),
	}
}

// Hash returns the hex encoded hash identifying the record.
func (s TradeStatistics) Hash() string {
	buf := fmt.Sprintf(
		"%s|%s|%d|%s|%d|%s",
		s.CurrencyCode, s.Price, s.Amount, s.PaymentMethod, s.Date, s.Protocol,
	)
	return hex.EncodeToString(chainhash.HashB([]byte(buf)))
}
