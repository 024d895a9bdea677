package domain

// TradeState represents the different states that a trade can assume.
// Progress states are ordered: a trade only moves forward through them.
type TradeState int

const (
	TradeStatePrepared TradeState = iota
	TradeStateContractSigned
	TradeStateDepositTxPublished
	TradeStateDepositConfirmed
	TradeStatePaymentSent
	TradeStatePaymentReceived
	TradeStatePayoutPublished
	TradeStateCompleted

	TradeStateFailed
	TradeStateDisputeRequested
)

var tradeStateNames = map[TradeState]string{
	TradeStatePrepared:           "PREPARED",
	TradeStateContractSigned:     "CONTRACT_SIGNED",
	TradeStateDepositTxPublished: "DEPOSIT_TX_PUBLISHED",
	TradeStateDepositConfirmed:   "DEPOSIT_CONFIRMED",
	TradeStatePaymentSent:        "PAYMENT_SENT",
	TradeStatePaymentReceived:    "PAYMENT_RECEIVED",
	TradeStatePayoutPublished:    "PAYOUT_PUBLISHED",
	TradeStateCompleted:          "COMPLETED",
	TradeStateFailed:             "FAILED",
	TradeStateDisputeRequested:   "DISPUTE_REQUESTED",
}

func (s TradeState) String() string {
	if name, ok := tradeStateNames[s]; ok {
		return name
	}
	return "UNKNOWN"
}

// IsProgress returns whether the state belongs to the linear happy path.
func (s TradeState) IsProgress() bool {
	return s >= TradeStatePrepared && s <= TradeStateCompleted
}

// IsTerminal returns whether the state can't be left anymore by any pipeline.
func (s TradeState) IsTerminal() bool {
	return s == TradeStateCompleted ||
		s == TradeStateFailed ||
		s == TradeStateDisputeRequested
}

// Role is the combination of maker/taker and buyer/seller of the local party.
type Role int

const (
	RoleBuyerAsMaker Role = iota
	RoleBuyerAsTaker
	RoleSellerAsMaker
	RoleSellerAsTaker
)

// RoleOf returns the role for the given flags.
func RoleOf(isMaker, isBuyer bool) Role {
	switch {
	case isBuyer && isMaker:
		return RoleBuyerAsMaker
	case isBuyer:
		return RoleBuyerAsTaker
	case isMaker:
		return RoleSellerAsMaker
	default:
		return RoleSellerAsTaker
	}
}

func (r Role) IsMaker() bool {
	return r == RoleBuyerAsMaker || r == RoleSellerAsMaker
}

func (r Role) IsBuyer() bool {
	return r == RoleBuyerAsMaker || r == RoleBuyerAsTaker
}

func (r Role) String() string {
	switch r {
	case RoleBuyerAsMaker:
		return "BUYER_AS_MAKER"
	case RoleBuyerAsTaker:
		return "BUYER_AS_TAKER"
	case RoleSellerAsMaker:
		return "SELLER_AS_MAKER"
	default:
		return "SELLER_AS_TAKER"
	}
}
