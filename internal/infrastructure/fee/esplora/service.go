// Package esplorafee implements the fee service on top of the fee estimates
// of an esplora instance.
package esplorafee

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"github.com/tdex-network/tdex-tradeprotocol/internal/core/ports"
	"github.com/tdex-network/tdex-tradeprotocol/pkg/circuitbreaker"
)

const (
	// DefaultConfTarget is the number of blocks the fee rate is estimated for.
	DefaultConfTarget = 6
	// MinFeeRate is the lowest fee rate returned, in sat/vB.
	MinFeeRate = 1

	requestTimeout = 15 * time.Second
)

var ErrMissingEstimate = errors.New("no fee estimate for confirmation target")

type service struct {
	apiURL     string
	confTarget int
	httpClient *http.Client
	cb         *gobreaker.CircuitBreaker

	lock     sync.RWMutex
	lastRate uint64
}

// NewService returns a FeeService querying the /fee-estimates endpoint of the
// given esplora url for the given confirmation target. If the endpoint can't
// be reached, the last known rate is returned if any.
func NewService(apiURL string, confTarget int) (ports.FeeService, error) {
	if len(apiURL) <= 0 {
		return nil, fmt.Errorf("missing esplora url")
	}
	if confTarget <= 0 {
		confTarget = DefaultConfTarget
	}
	return &service{
		apiURL:     apiURL,
		confTarget: confTarget,
		httpClient: &http.Client{Timeout: requestTimeout},
		cb:         circuitbreaker.NewCircuitBreaker("esplora"),
	}, nil
}

func (s *service) GetFeeRatePerVbyte(ctx context.Context) (uint64, error) {
	res, err := s.cb.Execute(func() (interface{}, error) {
		return s.getFeeRate(ctx)
	})
	if err != nil {
		s.lock.RLock()
		lastRate := s.lastRate
		s.lock.RUnlock()

		if lastRate > 0 {
			log.WithError(err).Warnf(
				"failed to get fee estimates, using last known rate %d sat/vB", lastRate,
			)
			return lastRate, nil
		}
		return 0, err
	}

	rate := res.(uint64)
	s.lock.Lock()
	s.lastRate = rate
	s.lock.Unlock()
	return rate, nil
}

func (s *service) getFeeRate(ctx context.Context) (uint64, error) {
	url := fmt.Sprintf("%s/fee-estimates", s.apiURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, err
	}
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("esplora returned %d: %s", resp.StatusCode, body)
	}

	estimates := make(map[string]float64)
	if err := json.Unmarshal(body, &estimates); err != nil {
		return 0, fmt.Errorf("failed to parse fee estimates: %w", err)
	}
	return feeRateForTarget(estimates, s.confTarget)
}

// feeRateForTarget returns the estimate for the given target or, if missing,
// the one of the closest lower target. Esplora returns estimates keyed by
// confirmation target in blocks.
func feeRateForTarget(estimates map[string]float64, confTarget int) (uint64, error) {
	for target := confTarget; target > 0; target-- {
		value, ok := estimates[strconv.Itoa(target)]
		if !ok {
			continue
		}
		rate := uint64(math.Ceil(value))
		if rate < MinFeeRate {
			rate = MinFeeRate
		}
		return rate, nil
	}
	return 0, fmt.Errorf("%w %d", ErrMissingEstimate, confTarget)
}
