package esplorachain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"github.com/tdex-network/tdex-tradeprotocol/pkg/circuitbreaker"
	"go.uber.org/ratelimit"
)

var errNotFound = errors.New("not found")

type txStatus struct {
	Confirmed   bool `json:"confirmed"`
	BlockHeight int  `json:"block_height"`
}

type addressStats struct {
	FundedTxoSum uint64 `json:"funded_txo_sum"`
	SpentTxoSum  uint64 `json:"spent_txo_sum"`
}

type addressInfo struct {
	ChainStats   addressStats `json:"chain_stats"`
	MempoolStats addressStats `json:"mempool_stats"`
}

// balance includes the unconfirmed funds, so that spending an output is
// detected as soon as the spending tx hits the mempool.
func (a addressInfo) balance() uint64 {
	funded := a.ChainStats.FundedTxoSum + a.MempoolStats.FundedTxoSum
	spent := a.ChainStats.SpentTxoSum + a.MempoolStats.SpentTxoSum
	if spent > funded {
		return 0
	}
	return funded - spent
}

// explorer is a minimal client of the esplora REST API. Every request goes
// through the shared rate limiter and circuit breaker.
type explorer struct {
	apiURL     string
	httpClient *http.Client
	limiter    ratelimit.Limiter
	cb         *gobreaker.CircuitBreaker
}

func newExplorer(apiURL string, requestsPerSecond int) *explorer {
	return &explorer{
		apiURL:     strings.TrimSuffix(apiURL, "/"),
		httpClient: &http.Client{Timeout: 15 * time.Second},
		limiter:    ratelimit.New(requestsPerSecond),
		cb:         circuitbreaker.NewCircuitBreaker("esplora-chain"),
	}
}

func (e *explorer) tipHeight(ctx context.Context) (int, error) {
	body, err := e.get(ctx, "/blocks/tip/height")
	if err != nil {
		return 0, err
	}
	height, err := strconv.Atoi(strings.TrimSpace(string(body)))
	if err != nil {
		return 0, fmt.Errorf("invalid tip height: %w", err)
	}
	return height, nil
}

func (e *explorer) txStatus(ctx context.Context, txid string) (*txStatus, error) {
	body, err := e.get(ctx, fmt.Sprintf("/tx/%s/status", txid))
	if err != nil {
		return nil, err
	}
	status := &txStatus{}
	if err := json.Unmarshal(body, status); err != nil {
		return nil, fmt.Errorf("invalid tx status: %w", err)
	}
	return status, nil
}

func (e *explorer) addressInfo(ctx context.Context, address string) (*addressInfo, error) {
	body, err := e.get(ctx, fmt.Sprintf("/address/%s", address))
	if err != nil {
		return nil, err
	}
	info := &addressInfo{}
	if err := json.Unmarshal(body, info); err != nil {
		return nil, fmt.Errorf("invalid address info: %w", err)
	}
	return info, nil
}

func (e *explorer) get(ctx context.Context, path string) ([]byte, error) {
	e.limiter.Take()

	res, err := e.cb.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(
			ctx, http.MethodGet, e.apiURL+path, nil,
		)
		if err != nil {
			return nil, err
		}
		resp, err := e.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}
		// A missing tx is not a failure of the explorer.
		if resp.StatusCode == http.StatusNotFound {
			return nil, nil
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("esplora returned %d: %s", resp.StatusCode, body)
		}
		return body, nil
	})
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, errNotFound
	}
	return res.([]byte), nil
}
