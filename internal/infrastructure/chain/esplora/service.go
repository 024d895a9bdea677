// Package esplorachain implements the chain notifier by polling the REST API
// of an esplora instance.
package esplorachain

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tdex-network/tdex-tradeprotocol/internal/core/ports"
)

const (
	DefaultPollInterval = 30 * time.Second
	DefaultRateLimit    = 5
	// DefaultFinality is the depth after which a tx is not watched anymore.
	DefaultFinality = 6

	eventQueueMaxSize = 100
)

// Service is a ChainNotifier that must be stopped once not used anymore.
type Service interface {
	ports.ChainNotifier
	Stop()
}

// Opts defines the parameters for creating the service with NewService.
type Opts struct {
	ApiURL       string
	PollInterval time.Duration
	// RateLimit is the max number of requests per second to the explorer,
	// shared by all the watched txs and addresses.
	RateLimit int
	Finality  int
}

type service struct {
	explorer *explorer
	interval time.Duration
	finality int
	events   chan ports.ChainEvent

	lock        sync.Mutex
	observables map[string]*observableHandler
	stopped     bool
	wg          sync.WaitGroup
}

// NewService returns a chain notifier polling the given esplora endpoint.
// Every watched tx or address is polled by its own goroutine.
func NewService(opts Opts) (Service, error) {
	if len(opts.ApiURL) <= 0 {
		return nil, fmt.Errorf("missing esplora url")
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = DefaultRateLimit
	}
	if opts.Finality <= 0 {
		opts.Finality = DefaultFinality
	}

	return &service{
		explorer:    newExplorer(opts.ApiURL, opts.RateLimit),
		interval:    opts.PollInterval,
		finality:    opts.Finality,
		events:      make(chan ports.ChainEvent, eventQueueMaxSize),
		observables: make(map[string]*observableHandler),
	}, nil
}

func (s *service) WatchTx(_ context.Context, tradeId, txid string) error {
	if len(txid) != 64 {
		return fmt.Errorf("invalid txid %s", txid)
	}
	return s.watch(newTxObservable(tradeId, txid, s.finality))
}

func (s *service) WatchAddress(_ context.Context, tradeId, address string) error {
	if len(address) <= 0 {
		return fmt.Errorf("missing address")
	}
	return s.watch(newAddressObservable(tradeId, address))
}

func (s *service) Notifications() <-chan ports.ChainEvent {
	return s.events
}

// Stop stops polling and closes the notification channel.
func (s *service) Stop() {
	s.lock.Lock()
	if s.stopped {
		s.lock.Unlock()
		return
	}
	s.stopped = true
	for _, oh := range s.observables {
		oh.stop()
	}
	s.observables = make(map[string]*observableHandler)
	s.lock.Unlock()

	s.wg.Wait()
	close(s.events)
}

func (s *service) watch(obs observable) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.stopped {
		return fmt.Errorf("chain notifier is stopped")
	}
	if _, ok := s.observables[obs.key()]; ok {
		return nil
	}

	oh := &observableHandler{
		observable: obs,
		explorer:   s.explorer,
		interval:   s.interval,
		events:     s.events,
		onDone:     s.remove,
		quit:       make(chan struct{}),
	}
	s.observables[obs.key()] = oh
	s.wg.Add(1)
	go oh.start(&s.wg)
	return nil
}

func (s *service) remove(key string) {
	s.lock.Lock()
	defer s.lock.Unlock()
	delete(s.observables, key)
}
