package bsqswap

import "errors"

var (
	// ErrMissingSwapDetails is returned for trades without the swap terms.
	ErrMissingSwapDetails = errors.New("trade is missing bsq swap details")
	// ErrContributionMismatch is returned when a party's inputs minus its
	// change don't match what it must commit to the swap.
	ErrContributionMismatch = errors.New("swap contribution does not match trade terms")
	// ErrOfferMismatch is returned when the request refers to another offer.
	ErrOfferMismatch = errors.New("request does not refer to the taken offer")
	// ErrMissingPeerSignature is returned when the proposed tx lacks the
	// signatures of the peer's inputs.
	ErrMissingPeerSignature = errors.New("peer inputs are not signed")
	// ErrTxIdMismatch ...
	ErrTxIdMismatch = errors.New("txid does not match tx")
)
