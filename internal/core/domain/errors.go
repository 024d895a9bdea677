package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrTradeNotFound is returned when no trade exists for the given id.
	ErrTradeNotFound = errors.New("trade not found")
	// ErrProcessModelNotFound is returned when no process model exists for
	// the given trade id.
	ErrProcessModelNotFound = errors.New("process model not found")
	// ErrMissingTradeId ...
	ErrMissingTradeId = errors.New("missing trade id")
	// ErrTradeIdMismatch is returned when an inbound message refers to another
	// trade.
	ErrTradeIdMismatch = errors.New("message trade id does not match trade")
	// ErrTradeAlreadyTerminal is returned when trying to operate on a trade
	// that reached a terminal state.
	ErrTradeAlreadyTerminal = errors.New("trade is in terminal state")

	// ErrInputZeroValue ...
	ErrInputZeroValue = errors.New("raw input has zero value")
	// ErrInputValueOutOfRange ...
	ErrInputValueOutOfRange = errors.New(
		"raw input value exceeds the maximum amount of bitcoin",
	)
	// ErrInputMissingScript ...
	ErrInputMissingScript = errors.New("raw input is missing the connected output script")
	// ErrMissingInputs ...
	ErrMissingInputs = errors.New("missing raw inputs")
	// ErrDuplicatedInput is returned when the same outpoint is referenced twice.
	ErrDuplicatedInput = errors.New("duplicated raw input")

	// ErrUnknownMessageKind ...
	ErrUnknownMessageKind = errors.New("unknown message kind")

	// ErrPeerAddressMismatch is returned when a message comes from an address
	// different from the one bound to the trading peer.
	ErrPeerAddressMismatch = errors.New("peer node address does not match")
	// ErrMissingPubKeyRing ...
	ErrMissingPubKeyRing = errors.New("missing peer pubkey ring")
	// ErrPeerPubKeyMismatch ...
	ErrPeerPubKeyMismatch = errors.New("peer pubkey ring does not match")
	// ErrPeerContractLocked is returned when trying to change data committed
	// by an already verified contract.
	ErrPeerContractLocked = errors.New("peer contract is already verified")
	// ErrPeerContributionLocked ...
	ErrPeerContributionLocked = errors.New("peer contribution is already set")
	// ErrMissingMultisigPubKey ...
	ErrMissingMultisigPubKey = errors.New("missing multisig pubkey")
	// ErrMissingPayoutAddress ...
	ErrMissingPayoutAddress = errors.New("missing payout address")

	// ErrMalformedContract ...
	ErrMalformedContract = errors.New("malformed contract")
	// ErrContractTradeIdMismatch ...
	ErrContractTradeIdMismatch = errors.New("contract trade id does not match")
	// ErrContractHashMismatch ...
	ErrContractHashMismatch = errors.New("contract hash does not match contract")
	// ErrInconsistentModel is returned when the persisted byte fields of a
	// process model are partially populated.
	ErrInconsistentModel = errors.New("inconsistent process model")
)

// ErrorKind classifies protocol failures by how they must be handled.
type ErrorKind int

const (
	// ErrKindValidation is for malformed or out of tolerance peer data. The
	// trade is not terminated.
	ErrKindValidation ErrorKind = iota
	// ErrKindConsistency is for mismatching contracts, signatures or txs.
	ErrKindConsistency
	// ErrKindDelivery is for messages that could not be delivered.
	ErrKindDelivery
	// ErrKindPostBroadcast is for failures after funds have been committed.
	ErrKindPostBroadcast
)

func (k ErrorKind) String() string {
	switch k {
	case ErrKindValidation:
		return "validation"
	case ErrKindConsistency:
		return "consistency"
	case ErrKindDelivery:
		return "delivery"
	case ErrKindPostBroadcast:
		return "post-broadcast"
	default:
		return "unknown"
	}
}

// ProtocolError is the error returned by a failing protocol task.
type ProtocolError struct {
	Kind ErrorKind
	Task string
	Err  error
}

func (e *ProtocolError) Error() string {
	if len(e.Task) > 0 {
		return fmt.Sprintf("%s: %s error: %s", e.Task, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s error: %s", e.Kind, e.Err)
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// NewValidationError ...
func NewValidationError(err error) *ProtocolError {
	return &ProtocolError{Kind: ErrKindValidation, Err: err}
}

// NewConsistencyError ...
func NewConsistencyError(err error) *ProtocolError {
	return &ProtocolError{Kind: ErrKindConsistency, Err: err}
}

// NewDeliveryError ...
func NewDeliveryError(err error) *ProtocolError {
	return &ProtocolError{Kind: ErrKindDelivery, Err: err}
}

// NewPostBroadcastError ...
func NewPostBroadcastError(err error) *ProtocolError {
	return &ProtocolError{Kind: ErrKindPostBroadcast, Err: err}
}

// ErrorKindOf returns the kind of the given error. Errors that are not
// protocol errors are treated as consistency errors.
func ErrorKindOf(err error) ErrorKind {
	var perr *ProtocolError
	if errors.As(err, &perr) {
		return perr.Kind
	}
	return ErrKindConsistency
}
