package protocol

import (
	"fmt"
	"time"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/shopspring/decimal"
	"github.com/tdex-network/tdex-tradeprotocol/internal/core/ports"
	"github.com/tdex-network/tdex-tradeprotocol/pkg/bsqswap"
)

const (
	DefaultResendInterval    = 30 * time.Second
	DefaultMaxResendAttempts = 10
	DefaultResendRate        = 10
)

var (
	DefaultMakerFeeRate = decimal.NewFromFloat(0.0015)
	DefaultTakerFeeRate = decimal.NewFromFloat(0.0075)
	DefaultMinTradeFee  = uint64(5000)
)

// Config holds every tunable of the engine. It is passed explicitly to the
// tasks through their context.
type Config struct {
	Network   *chaincfg.Params
	AccountId string
	// PaymentAccountPayloadHash is the hash of the local payment account
	// details that goes into the contract.
	PaymentAccountPayloadHash []byte

	MakerFeeRate decimal.Decimal
	TakerFeeRate decimal.Decimal
	MinTradeFee  uint64

	SwapAcceptance bsqswap.AcceptanceConfig

	ResendInterval    time.Duration
	MaxResendAttempts int
	// ResendRate is the max number of re-sends per second.
	ResendRate int
}

// DefaultConfig returns a config for the given network with default values.
func DefaultConfig(net *chaincfg.Params, accountId string) Config {
	return Config{
		Network:           net,
		AccountId:         accountId,
		MakerFeeRate:      DefaultMakerFeeRate,
		TakerFeeRate:      DefaultTakerFeeRate,
		MinTradeFee:       DefaultMinTradeFee,
		SwapAcceptance:    bsqswap.DefaultAcceptanceConfig,
		ResendInterval:    DefaultResendInterval,
		MaxResendAttempts: DefaultMaxResendAttempts,
		ResendRate:        DefaultResendRate,
	}
}

func (c Config) validate() error {
	if c.Network == nil {
		return fmt.Errorf("missing network params")
	}
	if len(c.AccountId) <= 0 {
		return fmt.Errorf("missing account id")
	}
	if c.MakerFeeRate.IsNegative() || c.TakerFeeRate.IsNegative() {
		return fmt.Errorf("trade fee rates must not be negative")
	}
	if c.MaxResendAttempts <= 0 {
		return fmt.Errorf("max resend attempts must be a positive number")
	}
	if c.ResendInterval <= 0 {
		return fmt.Errorf("resend interval must be a positive duration")
	}
	if c.ResendRate <= 0 {
		return fmt.Errorf("resend rate must be a positive number")
	}
	return nil
}

// Provider groups the collaborators of the engine. None of them is part of
// the persisted state of a trade.
type Provider struct {
	Wallet              ports.Wallet
	Network             ports.Network
	FeeService          ports.FeeService
	KeyRing             ports.KeyRing
	OfferBook           ports.OfferBook
	Filter              ports.Filter
	StatisticsPublisher ports.StatisticsPublisher
	ChainNotifier       ports.ChainNotifier
	Repo                ports.RepoManager
}

func (p Provider) validate() error {
	if p.Wallet == nil {
		return fmt.Errorf("missing wallet")
	}
	if p.Network == nil {
		return fmt.Errorf("missing network")
	}
	if p.FeeService == nil {
		return fmt.Errorf("missing fee service")
	}
	if p.KeyRing == nil {
		return fmt.Errorf("missing key ring")
	}
	if p.OfferBook == nil {
		return fmt.Errorf("missing offer book")
	}
	if p.Repo == nil {
		return fmt.Errorf("missing repo manager")
	}
	return nil
}
