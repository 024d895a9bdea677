package webhookpubsub

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"

	"github.com/google/uuid"
	"github.com/tdex-network/tdex-tradeprotocol/internal/core/application/protocol"
)

const (
	// AnyTopic subscribes to every event.
	AnyTopic = "*"
)

var (
	ErrInvalidTopic         = errors.New("unknown topic")
	ErrInvalidEndpoint      = errors.New("webhook endpoint must be a valid URI")
	ErrSubscriptionNotFound = errors.New("webhook not found")
)

func isValidTopic(topic string) bool {
	switch topic {
	case AnyTopic,
		protocol.EventTradeStateChanged.String(),
		protocol.EventStatisticsPublished.String():
		return true
	}
	return false
}

// Subscription is an endpoint notified of the events of a topic. If a secret
// is set, requests carry a bearer JWT signed with it.
type Subscription struct {
	ID       string `json:"id"`
	Topic    string `json:"topic"`
	Endpoint string `json:"endpoint"`
	Secret   string `json:"secret,omitempty"`
}

func NewSubscription(topic, endpoint, secret string) (*Subscription, error) {
	if !isValidTopic(topic) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidTopic, topic)
	}
	if _, err := url.ParseRequestURI(endpoint); err != nil {
		return nil, ErrInvalidEndpoint
	}
	return &Subscription{uuid.New().String(), topic, endpoint, secret}, nil
}

func (s *Subscription) IsSecured() bool {
	return len(s.Secret) > 0
}

func (s *Subscription) matches(topic string) bool {
	return s.Topic == AnyTopic || s.Topic == topic
}

// payload is the body posted to the subscribed endpoints.
type payload struct {
	Event         string             `json:"event"`
	TradeId       string             `json:"trade_id"`
	Protocol      string             `json:"protocol"`
	PreviousState string             `json:"previous_state"`
	State         string             `json:"state"`
	ErrorMessage  string             `json:"error_message,omitempty"`
	Statistics    *statisticsPayload `json:"statistics,omitempty"`
	Timestamp     int64              `json:"timestamp"`
}

type statisticsPayload struct {
	CurrencyCode  string `json:"currency_code"`
	Price         string `json:"price"`
	Amount        uint64 `json:"amount"`
	PaymentMethod string `json:"payment_method"`
	Date          int64  `json:"date"`
	Hash          string `json:"hash"`
}

func serializeEvent(event protocol.TradeEvent) ([]byte, error) {
	p := payload{
		Event:         event.Type.String(),
		TradeId:       event.TradeId,
		Protocol:      event.Protocol.String(),
		PreviousState: event.PreviousState.String(),
		State:         event.State.String(),
		ErrorMessage:  event.ErrorMessage,
		Timestamp:     event.Timestamp,
	}
	if s := event.Statistics; s != nil {
		p.Statistics = &statisticsPayload{
			CurrencyCode:  s.CurrencyCode,
			Price:         s.Price,
			Amount:        s.Amount,
			PaymentMethod: s.PaymentMethod,
			Date:          s.Date,
			Hash:          s.Hash(),
		}
	}
	return json.Marshal(p)
}
