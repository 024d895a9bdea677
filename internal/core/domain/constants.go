package domain

const (
	// MinFeeRatePerVbyte is the lowest fee rate accepted for any protocol tx.
	MinFeeRatePerVbyte = 1
	// DustAmount is the value below which an output is not created.
	DustAmount = 546
)
