package ports

import "context"

// FeeService provides the currently recommended mining fee rate.
type FeeService interface {
	GetFeeRatePerVbyte(ctx context.Context) (uint64, error)
}
