package escrow

import "errors"

var (
	// ErrInsufficientInputs is returned when the inputs of a tx don't cover
	// its outputs.
	ErrInsufficientInputs = errors.New("inputs do not cover outputs")
	// ErrContributionMismatch is returned when a party's inputs minus its
	// change don't match what it must commit to the deposit.
	ErrContributionMismatch = errors.New("deposit contribution does not match trade terms")
	// ErrTradeTermsMismatch is returned when a peer request doesn't match the
	// terms of the local offer.
	ErrTradeTermsMismatch = errors.New("request does not match offer terms")
	// ErrContractMismatch is returned when the contract signed by the peer
	// differs from the one built locally.
	ErrContractMismatch = errors.New("peer contract does not match local contract")
	// ErrDepositTxMismatch is returned when the deposit tx received from the
	// peer differs from the one built locally.
	ErrDepositTxMismatch = errors.New("peer deposit tx does not match local deposit tx")
	// ErrPayoutTxMismatch is returned when the payout tx received from the
	// peer differs from the one built locally.
	ErrPayoutTxMismatch = errors.New("peer payout tx does not match local payout tx")
	// ErrMissingPeerSignature is returned when a tx lacks the signatures of
	// the peer's inputs.
	ErrMissingPeerSignature = errors.New("peer inputs are not signed")
	// ErrDepositNotConfirmed is returned when the payment is started before
	// the deposit tx is confirmed.
	ErrDepositNotConfirmed = errors.New("deposit tx is not confirmed yet")
	// ErrPaymentNotSent is returned when the seller confirms a payment the
	// buyer never declared as sent.
	ErrPaymentNotSent = errors.New("buyer has not sent the payment yet")
	// ErrTxIdMismatch ...
	ErrTxIdMismatch = errors.New("txid does not match tx")
)
