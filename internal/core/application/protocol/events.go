package protocol

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tdex-network/tdex-tradeprotocol/internal/core/domain"
)

// EventType ...
type EventType int

const (
	// EventTradeStateChanged is emitted every time a trade changes state.
	EventTradeStateChanged EventType = iota
	// EventStatisticsPublished is emitted when a trade statistics record has
	// been published.
	EventStatisticsPublished
)

func (e EventType) String() string {
	if e == EventStatisticsPublished {
		return "TRADE_STATISTICS_PUBLISHED"
	}
	return "TRADE_STATE_CHANGED"
}

// TradeEvent is the notification sent to subscribers.
type TradeEvent struct {
	Type          EventType
	TradeId       string
	Protocol      domain.ProtocolKind
	PreviousState domain.TradeState
	State         domain.TradeState
	ErrorMessage  string
	Statistics    *domain.TradeStatistics
	Timestamp     int64
}

func newStateChangedEvent(t *domain.Trade, prev domain.TradeState) TradeEvent {
	return TradeEvent{
		Type:          EventTradeStateChanged,
		TradeId:       t.Id,
		Protocol:      t.Protocol,
		PreviousState: prev,
		State:         t.State,
		ErrorMessage:  t.ErrorMessage,
		Timestamp:     time.Now().Unix(),
	}
}

func newStatisticsEvent(t *domain.Trade, stats domain.TradeStatistics) TradeEvent {
	return TradeEvent{
		Type:          EventStatisticsPublished,
		TradeId:       t.Id,
		Protocol:      t.Protocol,
		PreviousState: t.State,
		State:         t.State,
		Statistics:    &stats,
		Timestamp:     time.Now().Unix(),
	}
}

// Handler is a subscriber callback. It must not block.
type Handler func(event TradeEvent)

// subscriptions is a registry of handlers identified by explicit ids, so that
// they can be removed without relying on function identity.
type subscriptions struct {
	lock     sync.RWMutex
	handlers map[string]Handler
	order    map[string]int
	seq      int
}

func newSubscriptions() *subscriptions {
	return &subscriptions{
		handlers: make(map[string]Handler),
		order:    make(map[string]int),
	}
}

func (s *subscriptions) add(h Handler) string {
	s.lock.Lock()
	defer s.lock.Unlock()

	id := uuid.New().String()
	s.handlers[id] = h
	s.order[id] = s.seq
	s.seq++
	return id
}

func (s *subscriptions) remove(id string) bool {
	s.lock.Lock()
	defer s.lock.Unlock()

	if _, ok := s.handlers[id]; !ok {
		return false
	}
	delete(s.handlers, id)
	delete(s.order, id)
	return true
}

func (s *subscriptions) len() int {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return len(s.handlers)
}

// publish notifies the handlers in subscription order.
func (s *subscriptions) publish(event TradeEvent) {
	s.lock.RLock()
	ids := make([]string, 0, len(s.handlers))
	for id := range s.handlers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return s.order[ids[i]] < s.order[ids[j]] })
	handlers := make([]Handler, 0, len(ids))
	for _, id := range ids {
		handlers = append(handlers, s.handlers[id])
	}
	s.lock.RUnlock()

	for _, h := range handlers {
		h(event)
	}
}
