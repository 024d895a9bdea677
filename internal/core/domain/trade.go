package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ProtocolKind identifies the family of protocol a trade is executed with.
type ProtocolKind int

const (
	ProtocolEscrow ProtocolKind = iota
	ProtocolBsqSwap
)

func (p ProtocolKind) String() string {
	switch p {
	case ProtocolEscrow:
		return "ESCROW"
	case ProtocolBsqSwap:
		return "BSQ_SWAP"
	default:
		return "UNKNOWN"
	}
}

// Direction is the direction of the offer from the maker's point of view,
// ie. TradeBuy means that the maker buys BTC.
type Direction int

const (
	TradeBuy Direction = iota
	TradeSell
)

func (d Direction) String() string {
	if d == TradeBuy {
		return "BUY"
	}
	return "SELL"
}

// Collection is the collection a trade belongs to. Trades are never deleted,
// they are only moved between collections.
type Collection int

const (
	CollectionOpen Collection = iota
	CollectionClosed
	CollectionFailed
	CollectionDisputed
)

func (c Collection) String() string {
	switch c {
	case CollectionOpen:
		return "OPEN"
	case CollectionClosed:
		return "CLOSED"
	case CollectionFailed:
		return "FAILED"
	case CollectionDisputed:
		return "DISPUTED"
	default:
		return "UNKNOWN"
	}
}

// BsqSwapDetails holds the data specific to an atomic swap trade.
type BsqSwapDetails struct {
	BtcAmount     uint64
	BsqAmount     uint64
	TxFeePerVbyte uint64
	MakerFee      uint64
	TakerFee      uint64
	Vsize         int
	TradeDate     int64
	TxId          string
}

// Trade is the aggregate root of a trade between two peers. Its id matches
// the one of the offer that has been taken.
type Trade struct {
	Id            string
	OfferId       string
	Protocol      ProtocolKind
	Direction     Direction
	IsMaker       bool
	Amount        uint64
	Price         decimal.Decimal
	PaymentMethod string
	CurrencyCode  string

	BuyerSecurityDeposit  uint64
	SellerSecurityDeposit uint64
	TxFee                 uint64

	State           TradeState
	Collection      Collection
	PeerNodeAddress string
	DepositTxId     string
	PayoutTxId      string
	ErrorMessage    string
	DisputeReason   string
	CreatedAt       int64
	UpdatedAt       int64

	BsqSwap *BsqSwapDetails
}

// NewTrade returns a trade in Prepared state for the given offer.
func NewTrade(offer Offer, isMaker bool, amount uint64, peerNodeAddress string) *Trade {
	now := time.Now().Unix()
	return &Trade{
		Id:                    offer.Id,
		OfferId:               offer.Id,
		Protocol:              offer.Protocol,
		Direction:             offer.Direction,
		IsMaker:               isMaker,
		Amount:                amount,
		Price:                 offer.Price,
		PaymentMethod:         offer.PaymentMethod,
		CurrencyCode:          offer.CurrencyCode,
		BuyerSecurityDeposit:  offer.BuyerSecurityDeposit,
		SellerSecurityDeposit: offer.SellerSecurityDeposit,
		TxFee:                 offer.TxFee,
		State:                 TradeStatePrepared,
		Collection:            CollectionOpen,
		PeerNodeAddress:       peerNodeAddress,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
}

// NewBsqSwapTrade returns a trade of the atomic swap family.
func NewBsqSwapTrade(
	offer Offer, isMaker bool, details BsqSwapDetails, peerNodeAddress string,
) *Trade {
	t := NewTrade(offer, isMaker, details.BtcAmount, peerNodeAddress)
	t.BsqSwap = &details
	return t
}

// IsBuyer returns whether the local party is the BTC buyer.
func (t *Trade) IsBuyer() bool {
	return t.IsMaker == (t.Direction == TradeBuy)
}

// IsSeller returns whether the local party is the BTC seller.
func (t *Trade) IsSeller() bool {
	return !t.IsBuyer()
}

// Role returns the role of the local party in this trade.
func (t *Trade) Role() Role {
	return RoleOf(t.IsMaker, t.IsBuyer())
}

// AdvanceTo moves the trade forward to the given state. Moving to a state
// that is not after the current one is a no-op, and so is any transition
// from a terminal state. The returned bool tells whether the state changed.
func (t *Trade) AdvanceTo(state TradeState) bool {
	if t.IsTerminal() || !state.IsProgress() || state <= t.State {
		return false
	}

	t.State = state
	t.UpdatedAt = time.Now().Unix()
	if state == TradeStateCompleted {
		t.Collection = CollectionClosed
	}
	return true
}

// Fail brings the trade to the Failed state and moves it to the failed
// collection. If funds are already committed on chain, the trade can't simply
// fail and a dispute is requested instead.
func (t *Trade) Fail(reason string) bool {
	if t.IsTerminal() {
		return false
	}
	if t.HasCommittedFunds() {
		return t.RequestDispute(reason)
	}

	t.State = TradeStateFailed
	t.Collection = CollectionFailed
	t.ErrorMessage = reason
	t.UpdatedAt = time.Now().Unix()
	return true
}

// RequestDispute brings the trade to the DisputeRequested state and moves it
// to the disputed collection so that it can be resolved by a human
// arbitrator. The reason replaces any previous error message.
func (t *Trade) RequestDispute(reason string) bool {
	if t.IsTerminal() {
		return false
	}

	t.State = TradeStateDisputeRequested
	t.Collection = CollectionDisputed
	t.DisputeReason = reason
	t.ErrorMessage = reason
	t.UpdatedAt = time.Now().Unix()
	return true
}

// SetErrorMessage records a non terminal error for the trade.
func (t *Trade) SetErrorMessage(msg string) {
	t.ErrorMessage = msg
	t.UpdatedAt = time.Now().Unix()
}

// HasCommittedFunds returns whether a fund-locking transaction has been
// broadcast for this trade.
func (t *Trade) HasCommittedFunds() bool {
	if t.Protocol == ProtocolBsqSwap {
		return false
	}
	return t.State >= TradeStateDepositTxPublished && t.State.IsProgress()
}

// IsTerminal returns whether the trade reached a state from which no
// pipeline can move it further.
func (t *Trade) IsTerminal() bool {
	return t.State.IsTerminal()
}

// IsCompleted returns whether the trade is in Completed state.
func (t *Trade) IsCompleted() bool {
	return t.State == TradeStateCompleted
}

// IsFailed returns whether the trade is in Failed state.
func (t *Trade) IsFailed() bool {
	return t.State == TradeStateFailed
}

// IsDisputed returns whether a dispute has been requested for the trade.
func (t *Trade) IsDisputed() bool {
	return t.State == TradeStateDisputeRequested
}

// DepositOutputValue returns the value locked in the multisig output of the
// deposit transaction, which includes the fee reserved for the payout.
func (t *Trade) DepositOutputValue() uint64 {
	return t.Amount + t.BuyerSecurityDeposit + t.SellerSecurityDeposit + t.TxFee
}

// BuyerPayoutAmount returns what the buyer receives with the payout tx.
func (t *Trade) BuyerPayoutAmount() uint64 {
	return t.Amount + t.BuyerSecurityDeposit
}

// SellerPayoutAmount returns what the seller receives with the payout tx.
func (t *Trade) SellerPayoutAmount() uint64 {
	return t.SellerSecurityDeposit
}

// DepositContribution returns the amount the local party must commit to the
// deposit tx, without considering the mining fee of the deposit tx itself.
func (t *Trade) DepositContribution() uint64 {
	if t.IsBuyer() {
		return t.BuyerSecurityDeposit
	}
	return t.Amount + t.SellerSecurityDeposit + t.TxFee
}

// PeerDepositContribution returns the amount the counterparty must commit.
func (t *Trade) PeerDepositContribution() uint64 {
	if t.IsBuyer() {
		return t.Amount + t.SellerSecurityDeposit + t.TxFee
	}
	return t.BuyerSecurityDeposit
}
