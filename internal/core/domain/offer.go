package domain

import "github.com/shopspring/decimal"

// Offer is the subset of an open offer the protocol needs to know about.
// For BSQ swaps the price is expressed in BSQ satoshis per BTC.
type Offer struct {
	Id               string
	Protocol         ProtocolKind
	Direction        Direction
	MinAmount        uint64
	Amount           uint64
	Price            decimal.Decimal
	PaymentMethod    string
	CurrencyCode     string
	MakerNodeAddress string
	MakerPubKeyRing  []byte

	BuyerSecurityDeposit  uint64
	SellerSecurityDeposit uint64
	TxFee                 uint64
}

// IsAmountInRange returns whether the given amount lies within the offer's
// [min, max] range.
func (o Offer) IsAmountInRange(amount uint64) bool {
	return amount >= o.MinAmount && amount <= o.Amount
}
