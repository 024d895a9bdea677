package protocol

import (
	"context"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/tdex-network/tdex-tradeprotocol/internal/core/domain"
	"go.uber.org/ratelimit"
)

// resender periodically sends again the resendable messages that haven't
// been acknowledged yet. The very same envelope is sent so that the receiver
// can recognize duplicates by their uid.
type resender struct {
	svc     *Service
	limiter ratelimit.Limiter

	lock    sync.Mutex
	quit    chan struct{}
	running sync.WaitGroup
}

func newResender(svc *Service) *resender {
	return &resender{
		svc:     svc,
		limiter: ratelimit.New(svc.cfg.ResendRate),
	}
}

func (r *resender) start() {
	r.lock.Lock()
	defer r.lock.Unlock()

	if r.quit != nil {
		return
	}
	r.quit = make(chan struct{})
	r.running.Add(1)

	go func(quit chan struct{}) {
		defer r.running.Done()

		ticker := time.NewTicker(r.svc.cfg.ResendInterval)
		defer ticker.Stop()
		for {
			select {
			case <-quit:
				return
			case <-ticker.C:
				r.svc.ResendPending(r.svc.ctx)
			}
		}
	}(r.quit)
}

func (r *resender) stop() {
	r.lock.Lock()
	if r.quit == nil {
		r.lock.Unlock()
		return
	}
	close(r.quit)
	r.quit = nil
	r.lock.Unlock()

	r.running.Wait()
}

// ResendPending runs a single pass of the resender over the trades having
// messages still to be sent again.
func (s *Service) ResendPending(ctx context.Context) {
	models, err := s.provider.Repo.ProcessModelRepository().
		GetModelsWithPendingResends(ctx)
	if err != nil {
		log.WithError(err).Warn("resender: failed to fetch pending messages")
		return
	}

	for _, m := range models {
		tradeId := m.TradeId
		s.exec.submit(tradeId, func() {
			s.resendForTrade(ctx, s.exec.get(tradeId))
		})
	}
}

func (s *Service) resendForTrade(ctx context.Context, lt *liveTrade) {
	if err := s.load(ctx, lt); err != nil {
		log.WithError(err).Warnf("resender: failed to load trade %s", lt.id)
		return
	}
	if lt.trade.Collection == domain.CollectionFailed {
		return
	}

	now := time.Now()
	changed := false
	for _, r := range lt.model.SortedMessageRecords() {
		record, _ := lt.model.MessageRecord(r.Uid)
		if !record.NeedsResend() || s.isAwaitingDelivery(lt, record.Uid) {
			continue
		}
		if now.Sub(time.Unix(record.LastAttempt, 0)) < s.cfg.ResendInterval {
			continue
		}

		if record.Attempts >= s.cfg.MaxResendAttempts {
			record.Transition(domain.MessageStateFailed)
			record.LastError = fmt.Sprintf(
				"not acknowledged after %d attempts", record.Attempts,
			)
			s.metrics.MessageFailed(record.Kind)
			log.WithField("trade", lt.id).Warnf(
				"giving up on %s %s: %s", record.Kind, record.Uid, record.LastError,
			)
			changed = true
			continue
		}

		s.resender.limiter.Take()
		record.RecordAttempt()
		changed = true
		s.metrics.MessageResent(record.Kind)
		log.WithField("trade", lt.id).Debugf(
			"re-sending %s %s (attempt %d)", record.Kind, record.Uid, record.Attempts,
		)
		s.provider.Network.Send(
			ctx, record.PeerAddress, lt.model.Peer.PubKeyRing, record.Envelope,
			&resendListener{svc: s, tradeId: lt.id, uid: record.Uid},
		)
	}

	if changed {
		s.saveOrLog(ctx, lt)
	}
}

// isAwaitingDelivery returns whether a suspended pipeline is still waiting
// for the delivery callback of the given message.
func (s *Service) isAwaitingDelivery(lt *liveTrade, uid string) bool {
	p := lt.current
	if p == nil {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.waiting != nil && p.waiting.uid == uid
}

// resendListener updates the record of a re-sent message.
type resendListener struct {
	svc     *Service
	tradeId string
	uid     string
	once    sync.Once
}

func (l *resendListener) OnArrived() {
	l.update(domain.MessageStateArrived, "")
}

func (l *resendListener) OnStoredInMailbox() {
	l.update(domain.MessageStateStoredInMailbox, "")
}

func (l *resendListener) OnFault(errMsg string) {
	l.update(domain.MessageStateUndefined, errMsg)
}

func (l *resendListener) update(state domain.MessageState, errMsg string) {
	l.once.Do(func() {
		l.svc.exec.submitAsync(l.tradeId, func() {
			lt := l.svc.exec.get(l.tradeId)
			if err := l.svc.load(l.svc.ctx, lt); err != nil {
				log.WithError(err).Debugf(
					"dropping delivery update for trade %s", l.tradeId,
				)
				return
			}
			record, ok := lt.model.MessageRecord(l.uid)
			if !ok {
				return
			}
			if len(errMsg) > 0 {
				record.LastError = errMsg
			} else {
				record.Transition(state)
			}
			l.svc.saveOrLog(l.svc.ctx, lt)
		})
	})
}
