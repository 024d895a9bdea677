package bsqswap

import "errors"

var (
	// ErrAmountOutOfRange ...
	ErrAmountOutOfRange = errors.New("trade amount out of offer range")
	// ErrTradeDateOutOfTolerance ...
	ErrTradeDateOutOfTolerance = errors.New("trade date out of tolerance")
	// ErrFeeRateOutOfTolerance ...
	ErrFeeRateOutOfTolerance = errors.New("tx fee rate out of tolerance")
	// ErrMakerFeeMismatch ...
	ErrMakerFeeMismatch = errors.New("maker fee does not match")
	// ErrTakerFeeMismatch ...
	ErrTakerFeeMismatch = errors.New("taker fee does not match")
	// ErrInsufficientFunds is returned when the selected inputs can't cover
	// the required amount.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrSizingNotConverged is returned when the required amount of the
	// seller's inputs keeps changing after the max number of iterations.
	ErrSizingNotConverged = errors.New("input sizing did not converge")
	// ErrNegativeAmount is returned when fees exceed the leg they are paid
	// from.
	ErrNegativeAmount = errors.New("fees exceed trade amount")
	// ErrTxMismatch is returned when the proposed tx differs from the one
	// built locally.
	ErrTxMismatch = errors.New("proposed tx does not match the expected one")
	// ErrBsqBalanceMismatch ...
	ErrBsqBalanceMismatch = errors.New("bsq inputs do not match bsq outputs plus trade fees")
	// ErrMinerFeeTooLow ...
	ErrMinerFeeTooLow = errors.New("miner fee too low")
	// ErrMissingInputs ...
	ErrMissingInputs = errors.New("missing inputs")
)
