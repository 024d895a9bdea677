package protocol

import "errors"

var (
	// ErrTradeAlreadyExists is returned when taking an offer that was already
	// taken by the local party.
	ErrTradeAlreadyExists = errors.New("a trade for this offer already exists")
	// ErrNoSequence is returned when no sequence is registered for the trade's
	// protocol, the local role and the trigger.
	ErrNoSequence = errors.New("no protocol sequence for trigger")
	// ErrUnexpectedMessage ...
	ErrUnexpectedMessage = errors.New("unexpected message for trade")
	// ErrProtocolMismatch is returned when a message or an offer belongs to
	// another protocol family than the trade.
	ErrProtocolMismatch = errors.New("protocol does not match")
	// ErrOfferNotAvailable ...
	ErrOfferNotAvailable = errors.New("offer is not available")
	// ErrOwnOffer ...
	ErrOwnOffer = errors.New("can't take own offer")
	// ErrAmountOutOfRange ...
	ErrAmountOutOfRange = errors.New("trade amount out of offer range")
	// ErrPeerBanned ...
	ErrPeerBanned = errors.New("peer node is banned")
	// ErrPaymentAccountBanned ...
	ErrPaymentAccountBanned = errors.New("peer payment account is banned")
	// ErrSubscriptionNotFound ...
	ErrSubscriptionNotFound = errors.New("subscription not found")
	// ErrServiceStopped ...
	ErrServiceStopped = errors.New("service is stopped")
)
