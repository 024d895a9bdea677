package bsqswap

import "fmt"

const (
	// MinSellersTxSize is the vsize share of the seller with a single segwit
	// input and no change: half the base overhead, one input and the BSQ
	// payout output.
	MinSellersTxSize = 104
	// MaxSizingIterations bounds the iterative sizing of the seller's inputs.
	MaxSizingIterations = 10

	halfBaseTxSize     = 5
	segwitInputSize    = 68
	nonSegwitInputSize = 149
	outputSize         = 31
)

// Input is the minimal description of a tx input the swap math works with.
type Input struct {
	Txid   string
	Index  uint32
	Value  uint64
	Script []byte
	Segwit bool
}

// SumInputs returns the total value of the given inputs.
func SumInputs(inputs []Input) uint64 {
	var sum uint64
	for _, in := range inputs {
		sum += in.Value
	}
	return sum
}

// VirtualSize returns the vsize share of one party of the swap tx: half the
// base tx overhead, its inputs, and its outputs, ie. the payout plus the
// change if any.
func VirtualSize(inputs []Input, change uint64) int {
	size := halfBaseTxSize
	for _, in := range inputs {
		if in.Segwit {
			size += segwitInputSize
		} else {
			size += nonSegwitInputSize
		}
	}
	if change > 0 {
		size += 2 * outputSize
	} else {
		size += outputSize
	}
	return size
}

// AdjustedTxFee returns the miner fee a party pays on top of its trade fee.
// The trade fee is burnt in the same tx, hence it goes to miners too and is
// netted out. The result is negative if the trade fee is greater than the
// miner fee share.
func AdjustedTxFee(feeRatePerVbyte uint64, vBytes int, tradeFee uint64) int64 {
	return int64(feeRatePerVbyte)*int64(vBytes) - int64(tradeFee)
}

// BuyersBsqInputValue returns the BSQ the buyer must provide.
func BuyersBsqInputValue(bsqAmount, buyersTradeFee uint64) uint64 {
	return bsqAmount + buyersTradeFee
}

// BuyersBtcPayoutValue returns the BTC the buyer receives.
func BuyersBtcPayoutValue(
	btcAmount, feeRatePerVbyte uint64, buyersVBytes int, buyersTradeFee uint64,
) (uint64, error) {
	adjustedFee := AdjustedTxFee(feeRatePerVbyte, buyersVBytes, buyersTradeFee)
	payout := int64(btcAmount) - adjustedFee
	if payout <= 0 {
		return 0, fmt.Errorf("%w: buyer btc payout %d", ErrNegativeAmount, payout)
	}
	return uint64(payout), nil
}

// SellersBtcInputValue returns the BTC the seller must provide.
func SellersBtcInputValue(
	btcAmount, feeRatePerVbyte uint64, sellersVBytes int, sellersTradeFee uint64,
) (uint64, error) {
	adjustedFee := AdjustedTxFee(feeRatePerVbyte, sellersVBytes, sellersTradeFee)
	value := int64(btcAmount) + adjustedFee
	if value <= 0 {
		return 0, fmt.Errorf("%w: seller btc input %d", ErrNegativeAmount, value)
	}
	return uint64(value), nil
}

// SellersBsqPayoutValue returns the BSQ the seller receives.
func SellersBsqPayoutValue(bsqAmount, sellersTradeFee uint64) (uint64, error) {
	if sellersTradeFee >= bsqAmount {
		return 0, fmt.Errorf("%w: seller bsq payout", ErrNegativeAmount)
	}
	return bsqAmount - sellersTradeFee, nil
}

// InputSelector selects inputs whose total covers the target amount and
// returns them with the resulting change.
type InputSelector func(targetAmount uint64) ([]Input, uint64, error)

// SellersInputs is the result of the iterative sizing of the seller's inputs.
type SellersInputs struct {
	Inputs        []Input
	Change        uint64
	VBytes        int
	RequiredValue uint64
}

// SelectSellersBtcInputs selects the seller's BTC inputs. The required value
// depends on the vsize, that depends on the selected inputs, so the selection
// is repeated until the required value stops changing.
func SelectSellersBtcInputs(
	btcAmount, feeRatePerVbyte, sellersTradeFee uint64, selectInputs InputSelector,
) (*SellersInputs, error) {
	vBytes := MinSellersTxSize
	required, err := SellersBtcInputValue(
		btcAmount, feeRatePerVbyte, vBytes, sellersTradeFee,
	)
	if err != nil {
		return nil, err
	}

	for i := 0; i < MaxSizingIterations; i++ {
		inputs, change, err := selectInputs(required)
		if err != nil {
			return nil, err
		}
		if len(inputs) <= 0 {
			return nil, ErrMissingInputs
		}
		if total := SumInputs(inputs); total < required {
			return nil, fmt.Errorf(
				"%w: selected %d, required %d", ErrInsufficientFunds, total, required,
			)
		}

		vBytes = VirtualSize(inputs, change)
		newRequired, err := SellersBtcInputValue(
			btcAmount, feeRatePerVbyte, vBytes, sellersTradeFee,
		)
		if err != nil {
			return nil, err
		}
		if newRequired == required {
			return &SellersInputs{
				Inputs:        inputs,
				Change:        change,
				VBytes:        vBytes,
				RequiredValue: required,
			}, nil
		}
		required = newRequired
	}

	return nil, ErrSizingNotConverged
}
