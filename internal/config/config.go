package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"github.com/tdex-network/tdex-tradeprotocol/internal/core/application/protocol"
	"github.com/tdex-network/tdex-tradeprotocol/pkg/bsqswap"
)

const (
	// DatadirKey is the local data directory to store the internal state of the engine
	DatadirKey = "DATADIR"
	// LogLevelKey are the different logging levels. For reference on the values https://godoc.org/github.com/sirupsen/logrus#Level
	LogLevelKey = "LOG_LEVEL"
	// NetworkKey is the bitcoin network, one of mainnet, testnet, regtest
	NetworkKey = "NETWORK"
	// AccountIdKey identifies the local party in the contracts
	AccountIdKey = "ACCOUNT_ID"
	// MakerFeeRateKey is the maker trade fee as a fraction of the trade amount
	MakerFeeRateKey = "MAKER_FEE_RATE"
	// TakerFeeRateKey is the taker trade fee as a fraction of the trade amount
	TakerFeeRateKey = "TAKER_FEE_RATE"
	// MinTradeFeeKey is the lowest trade fee in satoshis
	MinTradeFeeKey = "MIN_TRADE_FEE"
	// SwapTradeDateToleranceKey is how far the trade date of a swap request can be from the local clock
	SwapTradeDateToleranceKey = "SWAP_TRADE_DATE_TOLERANCE"
	// SwapFeeRateToleranceKey is the max ratio between the peer's and the local fee rate for swaps
	SwapFeeRateToleranceKey = "SWAP_FEE_RATE_TOLERANCE"
	// ResendIntervalKey is the interval between re-sends of unacknowledged messages
	ResendIntervalKey = "RESEND_INTERVAL"
	// MaxResendAttemptsKey is the number of re-sends after which a message is considered failed
	MaxResendAttemptsKey = "MAX_RESEND_ATTEMPTS"
	// ResendRateKey is the max number of re-sends per second
	ResendRateKey = "RESEND_RATE"
	// EsploraUrlKey is the endpoint of the esplora REST API used for fee estimates
	EsploraUrlKey = "ESPLORA_URL"
	// FeeConfTargetKey is the confirmation target in blocks of the fee estimates
	FeeConfTargetKey = "FEE_CONF_TARGET"
	// ChainPollIntervalKey is the interval between polls of the watched txs and addresses
	ChainPollIntervalKey = "CHAIN_POLL_INTERVAL"
	// WebhookEndpointKey is an optional endpoint notified of every trade event
	WebhookEndpointKey = "WEBHOOK_ENDPOINT"
	// WebhookSecretKey is the optional secret used to sign the webhook requests
	WebhookSecretKey = "WEBHOOK_SECRET"
	// MetricsAddressKey is the optional host:port where prometheus metrics are served
	MetricsAddressKey = "METRICS_ADDRESS"

	DbLocation = "db"
)

var vip *viper.Viper
var defaultDatadir = btcutil.AppDataDir("tradeprotocol", false)

func InitConfig() error {
	vip = viper.New()
	vip.SetEnvPrefix("TRADEPROTO")
	vip.AutomaticEnv()

	vip.SetDefault(DatadirKey, defaultDatadir)
	vip.SetDefault(LogLevelKey, 4)
	vip.SetDefault(NetworkKey, chaincfg.MainNetParams.Name)
	vip.SetDefault(MakerFeeRateKey, protocol.DefaultMakerFeeRate.String())
	vip.SetDefault(TakerFeeRateKey, protocol.DefaultTakerFeeRate.String())
	vip.SetDefault(MinTradeFeeKey, protocol.DefaultMinTradeFee)
	vip.SetDefault(SwapTradeDateToleranceKey, bsqswap.DefaultAcceptanceConfig.TradeDateTolerance)
	vip.SetDefault(SwapFeeRateToleranceKey, bsqswap.DefaultAcceptanceConfig.FeeRateTolerance.String())
	vip.SetDefault(ResendIntervalKey, protocol.DefaultResendInterval)
	vip.SetDefault(MaxResendAttemptsKey, protocol.DefaultMaxResendAttempts)
	vip.SetDefault(ResendRateKey, protocol.DefaultResendRate)
	vip.SetDefault(EsploraUrlKey, "https://blockstream.info/api")
	vip.SetDefault(FeeConfTargetKey, 6)
	vip.SetDefault(ChainPollIntervalKey, 30*time.Second)

	if err := validate(); err != nil {
		return fmt.Errorf("error while validating config: %s", err)
	}

	if err := initDatadir(); err != nil {
		return fmt.Errorf("error while creating datadir: %s", err)
	}

	return nil
}

func GetString(key string) string {
	return vip.GetString(key)
}

func GetInt(key string) int {
	return vip.GetInt(key)
}

func GetDuration(key string) time.Duration {
	return vip.GetDuration(key)
}

func GetDatadir() string {
	return GetString(DatadirKey)
}

func GetDbDir() string {
	return filepath.Join(GetDatadir(), DbLocation)
}

// GetNetwork returns the chain params of the configured network.
func GetNetwork() (*chaincfg.Params, error) {
	name := GetString(NetworkKey)
	for _, net := range []*chaincfg.Params{
		&chaincfg.MainNetParams, &chaincfg.TestNet3Params,
		&chaincfg.RegressionNetParams, &chaincfg.SigNetParams,
	} {
		if net.Name == name {
			return net, nil
		}
	}
	return nil, fmt.Errorf("unknown network %s", name)
}

// ProtocolConfig maps the configured values to the config of the protocol
// service.
func ProtocolConfig() (protocol.Config, error) {
	net, err := GetNetwork()
	if err != nil {
		return protocol.Config{}, err
	}
	makerFeeRate, err := decimal.NewFromString(GetString(MakerFeeRateKey))
	if err != nil {
		return protocol.Config{}, fmt.Errorf("invalid %s: %s", MakerFeeRateKey, err)
	}
	takerFeeRate, err := decimal.NewFromString(GetString(TakerFeeRateKey))
	if err != nil {
		return protocol.Config{}, fmt.Errorf("invalid %s: %s", TakerFeeRateKey, err)
	}
	feeRateTolerance, err := decimal.NewFromString(GetString(SwapFeeRateToleranceKey))
	if err != nil {
		return protocol.Config{}, fmt.Errorf("invalid %s: %s", SwapFeeRateToleranceKey, err)
	}

	cfg := protocol.DefaultConfig(net, GetString(AccountIdKey))
	cfg.MakerFeeRate = makerFeeRate
	cfg.TakerFeeRate = takerFeeRate
	cfg.MinTradeFee = vip.GetUint64(MinTradeFeeKey)
	cfg.SwapAcceptance = bsqswap.AcceptanceConfig{
		TradeDateTolerance: GetDuration(SwapTradeDateToleranceKey),
		FeeRateTolerance:   feeRateTolerance,
	}
	cfg.ResendInterval = GetDuration(ResendIntervalKey)
	cfg.MaxResendAttempts = GetInt(MaxResendAttemptsKey)
	cfg.ResendRate = GetInt(ResendRateKey)
	return cfg, nil
}

func validate() error {
	datadir := GetString(DatadirKey)
	if len(datadir) <= 0 {
		return fmt.Errorf("missing datadir")
	}

	if _, err := GetNetwork(); err != nil {
		return err
	}

	if GetDuration(ResendIntervalKey) <= 0 {
		return fmt.Errorf("%s must be a positive duration", ResendIntervalKey)
	}
	if GetDuration(ChainPollIntervalKey) <= 0 {
		return fmt.Errorf("%s must be a positive duration", ChainPollIntervalKey)
	}
	if GetInt(MaxResendAttemptsKey) <= 0 {
		return fmt.Errorf("%s must be a positive number", MaxResendAttemptsKey)
	}
	if GetInt(ResendRateKey) <= 0 {
		return fmt.Errorf("%s must be a positive number", ResendRateKey)
	}

	tolerance, err := decimal.NewFromString(GetString(SwapFeeRateToleranceKey))
	if err != nil || tolerance.LessThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("%s must be a number equal or greater than 1", SwapFeeRateToleranceKey)
	}

	if len(GetString(WebhookSecretKey)) > 0 && len(GetString(WebhookEndpointKey)) <= 0 {
		return fmt.Errorf("webhook secret requires %s", WebhookEndpointKey)
	}
	return nil
}

func initDatadir() error {
	return makeDirectoryIfNotExists(GetDbDir())
}

func makeDirectoryIfNotExists(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return os.MkdirAll(path, os.ModeDir|0755)
	}
	return nil
}
