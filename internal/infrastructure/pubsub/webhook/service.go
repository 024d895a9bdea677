// Package webhookpubsub notifies external endpoints of the events of the
// protocol service with HTTP POST requests.
package webhookpubsub

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/golang-jwt/jwt"
	log "github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"github.com/tdex-network/tdex-tradeprotocol/internal/core/application/protocol"
	"github.com/tdex-network/tdex-tradeprotocol/pkg/circuitbreaker"
	"golang.org/x/sync/errgroup"
)

const (
	requestTimeout = 15 * time.Second
	queueSize      = 100
)

// EventSource is where the service gets the events to publish from.
type EventSource interface {
	Subscribe(handler protocol.Handler) string
	Unsubscribe(id string) error
}

// Service keeps the webhook subscriptions and publishes the events of an
// EventSource to them. Events are queued and published in order by a single
// goroutine, so that a slow endpoint never blocks the source.
type Service struct {
	httpClient *client
	cb         *gobreaker.CircuitBreaker

	lock sync.RWMutex
	subs map[string]*Subscription

	events   chan protocol.TradeEvent
	sourceId string
	source   EventSource
	wg       sync.WaitGroup
}

func NewService() *Service {
	return &Service{
		httpClient: newHTTPClient(requestTimeout),
		cb:         circuitbreaker.NewCircuitBreaker("webhook"),
		subs:       make(map[string]*Subscription),
	}
}

func (s *Service) Subscribe(topic, endpoint, secret string) (string, error) {
	sub, err := NewSubscription(topic, endpoint, secret)
	if err != nil {
		return "", err
	}

	s.lock.Lock()
	defer s.lock.Unlock()
	s.subs[sub.ID] = sub
	return sub.ID, nil
}

func (s *Service) Unsubscribe(id string) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if _, ok := s.subs[id]; !ok {
		return ErrSubscriptionNotFound
	}
	delete(s.subs, id)
	return nil
}

// ListSubscriptionsForTopic returns the subscriptions notified of the events
// of the given topic, including those for any topic.
func (s *Service) ListSubscriptionsForTopic(topic string) []Subscription {
	s.lock.RLock()
	defer s.lock.RUnlock()

	subs := make([]Subscription, 0, len(s.subs))
	for _, sub := range s.subs {
		if sub.matches(topic) {
			subs = append(subs, *sub)
		}
	}
	sort.SliceStable(subs, func(i, j int) bool {
		return subs[i].ID < subs[j].ID
	})
	return subs
}

// Publish posts the event to every matching subscription concurrently.
func (s *Service) Publish(ctx context.Context, event protocol.TradeEvent) error {
	subs := s.ListSubscriptionsForTopic(event.Type.String())
	if len(subs) <= 0 {
		return nil
	}

	body, err := serializeEvent(event)
	if err != nil {
		return err
	}

	eg := &errgroup.Group{}
	for i := range subs {
		sub := subs[i]
		eg.Go(func() error { return s.doRequest(ctx, sub, body) })
	}
	return eg.Wait()
}

// Start subscribes to the source and publishes its events in background.
func (s *Service) Start(source EventSource) {
	s.events = make(chan protocol.TradeEvent, queueSize)
	s.source = source

	s.wg.Add(1)
	go s.listen()

	s.sourceId = source.Subscribe(func(event protocol.TradeEvent) {
		select {
		case s.events <- event:
		default:
			log.Warnf(
				"webhook queue full, dropping %s event for trade %s",
				event.Type, event.TradeId,
			)
		}
	})
}

// Stop unsubscribes from the source and waits for the queued events to be
// published.
func (s *Service) Stop() {
	if s.source == nil {
		return
	}
	if err := s.source.Unsubscribe(s.sourceId); err != nil {
		log.WithError(err).Warn("failed to unsubscribe webhooks from source")
	}
	close(s.events)
	s.wg.Wait()
	s.source = nil
}

func (s *Service) listen() {
	defer s.wg.Done()

	for event := range s.events {
		if err := s.Publish(context.Background(), event); err != nil {
			log.WithError(err).Warnf(
				"failed to notify %s event for trade %s", event.Type, event.TradeId,
			)
		}
	}
}

func (s *Service) doRequest(ctx context.Context, sub Subscription, body []byte) error {
	_, err := s.cb.Execute(func() (interface{}, error) {
		headers := map[string]string{
			"Content-Type": "application/json",
		}
		if sub.IsSecured() {
			token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.StandardClaims{
				Id:       sub.ID,
				IssuedAt: time.Now().Unix(),
			})
			tokenString, err := token.SignedString([]byte(sub.Secret))
			if err != nil {
				return nil, err
			}
			headers["Authorization"] = fmt.Sprintf("Bearer %s", tokenString)
		}

		status, resp, err := s.httpClient.post(ctx, sub.Endpoint, body, headers)
		if err != nil {
			return nil, err
		}
		if status != http.StatusOK {
			return nil, fmt.Errorf("endpoint %s returned %d: %s", sub.Endpoint, status, resp)
		}
		return nil, nil
	})
	return err
}
