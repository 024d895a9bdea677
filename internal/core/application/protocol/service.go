package protocol

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/tdex-network/tdex-tradeprotocol/internal/core/domain"
	"github.com/tdex-network/tdex-tradeprotocol/pkg/mathutil"
)

// Option customizes the service.
type Option func(s *Service)

// WithInterceptor installs a hook invoked before every task.
func WithInterceptor(i Interceptor) Option {
	return func(s *Service) {
		s.interceptor = i
	}
}

// WithMetrics installs the collector of pipeline and message counters.
func WithMetrics(m Metrics) Option {
	return func(s *Service) {
		if m != nil {
			s.metrics = m
		}
	}
}

// Service is the protocol manager. It owns the live trades, selects and runs
// the sequences, routes inbound messages and acks, and notifies subscribers
// about state changes.
type Service struct {
	cfg         Config
	provider    Provider
	table       lookupTable
	exec        *executor
	subs        *subscriptions
	interceptor Interceptor
	metrics     Metrics
	resender    *resender

	ctx    context.Context
	cancel context.CancelFunc
}

// NewService returns a new protocol manager running the given sequences.
func NewService(
	cfg Config, provider Provider, sequences []SequenceEntry, opts ...Option,
) (*Service, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if err := provider.validate(); err != nil {
		return nil, err
	}
	if len(sequences) <= 0 {
		return nil, fmt.Errorf("missing protocol sequences")
	}

	ctx, cancel := context.WithCancel(context.Background())
	svc := &Service{
		cfg:      cfg,
		provider: provider,
		table:    newLookupTable(sequences),
		exec:     newExecutor(),
		subs:     newSubscriptions(),
		metrics:  noopMetrics{},
		ctx:      ctx,
		cancel:   cancel,
	}
	for _, opt := range opts {
		opt(svc)
	}
	svc.resender = newResender(svc)
	return svc, nil
}

// Start resumes the pipelines interrupted by a previous shutdown, restores
// the chain watches of the open trades and starts the resender.
func (s *Service) Start(ctx context.Context) error {
	models, err := s.provider.Repo.ProcessModelRepository().
		GetModelsWithPendingCursor(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch interrupted pipelines: %w", err)
	}

	for _, m := range models {
		model := m
		seq, ok := s.table.byName(model.Cursor.Sequence)
		if !ok {
			log.Warnf(
				"unknown sequence %s for interrupted trade %s, skipping",
				model.Cursor.Sequence, model.TradeId,
			)
			continue
		}
		cursor := *model.Cursor

		s.exec.submit(model.TradeId, func() {
			lt := s.exec.get(model.TradeId)
			if err := s.load(s.ctx, lt); err != nil {
				log.WithError(err).Warnf(
					"failed to load interrupted trade %s", model.TradeId,
				)
				return
			}
			// A completed trade may still owe its peer the last messages.
			if lt.trade.IsTerminal() && !lt.trade.IsCompleted() {
				lt.model.Cursor = nil
				s.saveOrLog(s.ctx, lt)
				return
			}
			log.Infof(
				"resuming pipeline %s of trade %s from task %d",
				seq.Name, lt.id, cursor.Next,
			)
			s.runOrWait(lt, func() {
				s.newPipeline(lt, seq, cursor.Trigger, cursor.Next).start()
			})
		})
	}

	s.restoreWatches(ctx)
	s.resender.start()
	return nil
}

// Stop stops the resender and waits for the queued jobs to complete.
// Suspended pipelines are left as they are and get resumed by the next Start.
func (s *Service) Stop() {
	s.resender.stop()
	s.exec.wait()
	s.cancel()
}

// Wait blocks until every queued job has run.
func (s *Service) Wait() {
	s.exec.wait()
}

// Subscribe registers a handler for trade events and returns the id to use
// to unsubscribe.
func (s *Service) Subscribe(handler Handler) string {
	return s.subs.add(handler)
}

// Unsubscribe removes the handler with the given subscription id.
func (s *Service) Unsubscribe(id string) error {
	if !s.subs.remove(id) {
		return ErrSubscriptionNotFound
	}
	return nil
}

// TakeOffer creates a new trade for the given offer and starts the taker's
// protocol. The returned trade reflects the state reached by the first
// sequence.
func (s *Service) TakeOffer(
	ctx context.Context, offerId string, amount uint64,
) (*domain.Trade, error) {
	offer, err := s.provider.OfferBook.GetOffer(ctx, offerId)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrOfferNotAvailable, err)
	}
	if offer.MakerNodeAddress == s.provider.Network.NodeAddress() {
		return nil, ErrOwnOffer
	}

	trade, err := s.newTakerTrade(ctx, *offer, amount)
	if err != nil {
		return nil, err
	}
	seq, ok := s.table.find(trade.Protocol, trade.Role(), TriggerTakeOffer)
	if !ok {
		return nil, ErrNoSequence
	}

	err = s.runSync(trade.Id, func(lt *liveTrade) error {
		if existing, _ := s.provider.Repo.TradeRepository().GetTrade(
			ctx, trade.Id,
		); existing != nil {
			return ErrTradeAlreadyExists
		}

		model := s.newModel(trade.Id)
		if err := model.Peer.BindNodeAddress(offer.MakerNodeAddress); err != nil {
			return err
		}
		if err := model.Peer.BindPubKeyRing(offer.MakerPubKeyRing); err != nil {
			return err
		}
		if err := s.create(ctx, trade, model); err != nil {
			return err
		}
		lt.trade, lt.model, lt.lastState = trade, model, trade.State

		s.runOrWait(lt, func() {
			s.newPipeline(lt, seq, nil, 0).start()
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.GetTrade(ctx, trade.Id)
}

// StartPayment is called by the buyer once the counter currency payment has
// been initiated.
func (s *Service) StartPayment(ctx context.Context, tradeId string) error {
	return s.runAction(ctx, tradeId, TriggerPaymentStarted)
}

// ConfirmPaymentReceived is called by the seller once the counter currency
// payment has been received.
func (s *Service) ConfirmPaymentReceived(ctx context.Context, tradeId string) error {
	return s.runAction(ctx, tradeId, TriggerPaymentReceived)
}

// RequestDispute brings a non terminal trade to dispute.
func (s *Service) RequestDispute(
	ctx context.Context, tradeId, reason string,
) error {
	return s.runSync(tradeId, func(lt *liveTrade) error {
		if err := s.load(ctx, lt); err != nil {
			return err
		}
		if !lt.trade.RequestDispute(reason) {
			return domain.ErrTradeAlreadyTerminal
		}
		return s.save(ctx, lt)
	})
}

// ForceAdvance moves the trade forward to the given state out of any
// pipeline. It's meant for the chain listeners, and the same monotonic rules
// of the pipelines apply: it never moves a trade backwards or out of a
// terminal state. If the trade changed state, onAdvanced is invoked within
// the trade's serial queue.
func (s *Service) ForceAdvance(
	ctx context.Context, tradeId string, state domain.TradeState,
	onAdvanced func(ctx context.Context, trade domain.Trade),
) (bool, error) {
	advanced := false
	err := s.runSync(tradeId, func(lt *liveTrade) error {
		if err := s.load(ctx, lt); err != nil {
			return err
		}
		if !lt.trade.AdvanceTo(state) {
			return nil
		}
		advanced = true
		if err := s.save(ctx, lt); err != nil {
			return err
		}
		if onAdvanced != nil {
			onAdvanced(ctx, *lt.trade)
		}
		return nil
	})
	return advanced, err
}

// HandleMessage processes an inbound envelope. Protocol messages start the
// sequence registered for their kind, acks update the state of the
// referenced outbound message. Messages already processed are acked again
// without being processed.
func (s *Service) HandleMessage(ctx context.Context, env domain.Envelope) error {
	if len(env.TradeId) <= 0 {
		return domain.ErrMissingTradeId
	}
	msg, err := env.Decode()
	if err != nil {
		return err
	}

	if ack, ok := msg.(*domain.AckMessage); ok {
		s.exec.submit(env.TradeId, func() {
			s.handleAck(s.ctx, env, ack)
		})
		return nil
	}

	s.exec.submit(env.TradeId, func() {
		s.handleProtocolMessage(s.ctx, env, msg)
	})
	return nil
}

// GetTrade returns the stored trade with the given id.
func (s *Service) GetTrade(ctx context.Context, tradeId string) (*domain.Trade, error) {
	return s.provider.Repo.TradeRepository().GetTrade(ctx, tradeId)
}

// ListTrades returns the trades of the given collection.
func (s *Service) ListTrades(
	ctx context.Context, collection domain.Collection, page *domain.Page,
) ([]*domain.Trade, error) {
	return s.provider.Repo.TradeRepository().GetTradesByCollection(
		ctx, collection, page,
	)
}

// GetMessageRecords returns the outbound messages of the trade sorted by
// creation time.
func (s *Service) GetMessageRecords(
	ctx context.Context, tradeId string,
) ([]domain.MessageRecord, error) {
	model, err := s.provider.Repo.ProcessModelRepository().GetProcessModel(
		ctx, tradeId,
	)
	if err != nil {
		return nil, err
	}
	return model.SortedMessageRecords(), nil
}

func (s *Service) handleProtocolMessage(
	ctx context.Context, env domain.Envelope, msg domain.Message,
) {
	lt := s.exec.get(env.TradeId)
	if err := s.load(ctx, lt); err != nil {
		if !errors.Is(err, domain.ErrTradeNotFound) {
			log.WithError(err).Warnf("failed to load trade %s", env.TradeId)
			return
		}
		if err := s.createMakerTrade(ctx, lt, env, msg); err != nil {
			log.WithError(err).Warnf(
				"dropping %s for unknown trade %s", env.Kind, env.TradeId,
			)
			return
		}
	}
	if !isFromPeer(lt, env.SenderAddress) {
		log.Warnf(
			"dropping %s for trade %s from unknown peer %s",
			env.Kind, env.TradeId, env.SenderAddress,
		)
		return
	}

	s.runOrWait(lt, func() {
		if lt.model.IsProcessed(env.Uid) {
			log.Debugf(
				"message %s of trade %s already processed", env.Uid, env.TradeId,
			)
			s.sendAck(ctx, lt, env, nil)
			s.resumeWaiting(lt)
			return
		}

		seq, ok := s.table.find(
			lt.trade.Protocol, lt.trade.Role(), MessageTrigger(env.Kind),
		)
		if !ok {
			s.sendAck(ctx, lt, env, fmt.Errorf("%w: %s", ErrUnexpectedMessage, env.Kind))
			s.resumeWaiting(lt)
			return
		}
		if lt.trade.IsTerminal() {
			s.sendAck(ctx, lt, env, domain.ErrTradeAlreadyTerminal)
			s.resumeWaiting(lt)
			return
		}

		lt.model.MarkProcessed(env.Uid)
		trigger := env
		p := s.newPipeline(lt, seq, &trigger, 0)
		p.tc.message = msg
		p.start()
	})
}

func (s *Service) handleAck(
	ctx context.Context, env domain.Envelope, ack *domain.AckMessage,
) {
	lt := s.exec.get(env.TradeId)
	if err := s.load(ctx, lt); err != nil {
		log.WithError(err).Debugf("dropping ack for trade %s", env.TradeId)
		return
	}
	if !isFromPeer(lt, env.SenderAddress) {
		log.Warnf(
			"dropping ack for trade %s from unknown peer %s",
			env.TradeId, env.SenderAddress,
		)
		return
	}

	record, ok := lt.model.MessageRecord(ack.SourceUid)
	if !ok {
		log.Debugf("dropping ack for unknown message %s", ack.SourceUid)
		return
	}

	if ack.Success {
		record.Transition(domain.MessageStateAcknowledged)
	} else {
		if record.Transition(domain.MessageStateFailed) {
			s.metrics.MessageFailed(record.Kind)
		}
		record.LastError = ack.ErrorMessage
		lt.trade.SetErrorMessage(
			fmt.Sprintf("peer rejected %s: %s", record.Kind, ack.ErrorMessage),
		)
	}
	s.saveOrLog(ctx, lt)
}

// isFromPeer returns whether the sender is the counterparty of the trade.
// The address bound to the peer wins over the one the trade was opened with.
func isFromPeer(lt *liveTrade, sender string) bool {
	expected := lt.model.Peer.NodeAddress
	if len(expected) <= 0 {
		expected = lt.trade.PeerNodeAddress
	}
	return len(expected) <= 0 || sender == expected
}

func (s *Service) sendAck(
	ctx context.Context, lt *liveTrade, env domain.Envelope, err error,
) {
	ack := &domain.AckMessage{
		SourceUid:  env.Uid,
		SourceKind: env.Kind,
		Success:    err == nil,
	}
	if err != nil {
		ack.ErrorMessage = err.Error()
	}
	ackEnv, e := domain.NewEnvelope(
		env.TradeId, s.provider.Network.NodeAddress(), ack,
	)
	if e != nil {
		log.WithError(e).Warn("failed to create ack")
		return
	}
	s.provider.Network.Send(
		ctx, env.SenderAddress, lt.model.Peer.PubKeyRing, ackEnv,
		ackListener{tradeId: env.TradeId, sourceUid: env.Uid},
	)
}

func (s *Service) runAction(
	ctx context.Context, tradeId string, trigger Trigger,
) error {
	return s.runSync(tradeId, func(lt *liveTrade) error {
		if err := s.load(ctx, lt); err != nil {
			return err
		}
		if lt.trade.IsTerminal() {
			return domain.ErrTradeAlreadyTerminal
		}
		seq, ok := s.table.find(lt.trade.Protocol, lt.trade.Role(), trigger)
		if !ok {
			return ErrNoSequence
		}
		s.runOrWait(lt, func() {
			s.newPipeline(lt, seq, nil, 0).start()
		})
		return nil
	})
}

// runSync runs fn within the trade's serial queue and waits for it.
func (s *Service) runSync(tradeId string, fn func(lt *liveTrade) error) error {
	errc := make(chan error, 1)
	s.exec.submit(tradeId, func() {
		errc <- fn(s.exec.get(tradeId))
	})
	return <-errc
}

// runOrWait starts a pipeline right away if the trade has none running,
// otherwise it defers it until the running one is done.
func (s *Service) runOrWait(lt *liveTrade, start func()) {
	if lt.current != nil {
		lt.waiting = append(lt.waiting, start)
		return
	}
	start()
}

func (s *Service) resumeWaiting(lt *liveTrade) {
	if lt.current != nil || len(lt.waiting) <= 0 {
		return
	}
	next := lt.waiting[0]
	lt.waiting = lt.waiting[1:]
	next()
}

func (s *Service) newPipeline(
	lt *liveTrade, seq Sequence, trigger *domain.Envelope, next int,
) *Pipeline {
	p := &Pipeline{
		seq:         seq,
		next:        next,
		interceptor: s.interceptor,
		metrics:     s.metrics,
	}
	p.tc = &TaskContext{
		Ctx:      s.ctx,
		Trade:    lt.trade,
		Model:    lt.model,
		Trigger:  trigger,
		Provider: s.provider,
		Config:   s.cfg,
		pipeline: p,
		notify:   s.subs.publish,
	}
	p.save = func(*Pipeline) error {
		return s.save(s.ctx, lt)
	}
	p.schedule = func(job func()) {
		s.exec.submitAsync(lt.id, job)
	}
	p.onDone = func(p *Pipeline, err error) {
		s.onPipelineDone(lt, p, err)
	}
	lt.current = p
	return p
}

func (s *Service) onPipelineDone(lt *liveTrade, p *Pipeline, err error) {
	if lt.current == p {
		lt.current = nil
	}
	if err != nil && !errors.Is(err, ErrPipelineHalted) {
		log.WithError(err).Debugf(
			"pipeline %s of trade %s terminated with error", p.seq.Name, lt.id,
		)
	}
	if p.tc.Trigger != nil && !errors.Is(err, ErrPipelineHalted) {
		s.sendAck(s.ctx, lt, *p.tc.Trigger, err)
	}
	s.resumeWaiting(lt)
}

// load fetches trade and model of a live trade, unless already in memory.
func (s *Service) load(ctx context.Context, lt *liveTrade) error {
	if lt.trade != nil && lt.model != nil {
		return nil
	}
	trade, err := s.provider.Repo.TradeRepository().GetTrade(ctx, lt.id)
	if err != nil {
		return err
	}
	if trade == nil {
		return domain.ErrTradeNotFound
	}
	model, err := s.provider.Repo.ProcessModelRepository().GetProcessModel(
		ctx, lt.id,
	)
	if err != nil {
		if !errors.Is(err, domain.ErrProcessModelNotFound) {
			return err
		}
		model = s.newModel(lt.id)
	}
	lt.trade, lt.model, lt.lastState = trade, model, trade.State
	return nil
}

// save persists trade and model, and notifies subscribers about state
// changes.
func (s *Service) save(ctx context.Context, lt *liveTrade) error {
	trade := lt.trade
	repo := s.provider.Repo
	if _, err := repo.RunTransaction(
		ctx, false, func(ctx context.Context) (interface{}, error) {
			if err := repo.TradeRepository().UpdateTrade(
				ctx, trade.Id, func(_ *domain.Trade) (*domain.Trade, error) {
					return trade, nil
				},
			); err != nil {
				return nil, fmt.Errorf("failed to persist trade %s: %w", trade.Id, err)
			}
			if err := repo.ProcessModelRepository().SaveProcessModel(
				ctx, lt.model,
			); err != nil {
				return nil, fmt.Errorf(
					"failed to persist process model %s: %w", trade.Id, err,
				)
			}
			return nil, nil
		},
	); err != nil {
		return err
	}

	if trade.State == lt.lastState {
		return nil
	}
	prev := lt.lastState
	lt.lastState = trade.State
	s.metrics.TradeStateChanged(trade.Protocol, trade.State)
	log.WithField("trade", trade.Id).Infof("trade moved from %s to %s", prev, trade.State)

	if trade.IsFailed() {
		if err := s.provider.Wallet.ReleaseInputs(ctx, trade.Id); err != nil {
			log.WithError(err).Warnf(
				"failed to release inputs reserved for trade %s", trade.Id,
			)
		}
	}
	s.subs.publish(newStateChangedEvent(trade, prev))
	return nil
}

func (s *Service) saveOrLog(ctx context.Context, lt *liveTrade) {
	if err := s.save(ctx, lt); err != nil {
		log.WithError(err).Warn("failed to persist trade")
	}
}

func (s *Service) newModel(tradeId string) *domain.ProcessModel {
	model := domain.NewProcessModel(
		tradeId, s.cfg.AccountId, s.provider.Network.NodeAddress(),
		s.provider.KeyRing.PubKey(),
	)
	model.PaymentAccountPayloadHash = s.cfg.PaymentAccountPayloadHash
	return model
}

func (s *Service) newTakerTrade(
	ctx context.Context, offer domain.Offer, amount uint64,
) (*domain.Trade, error) {
	if offer.Protocol == domain.ProtocolEscrow {
		return domain.NewTrade(offer, false, amount, offer.MakerNodeAddress), nil
	}

	feeRate, err := s.provider.FeeService.GetFeeRatePerVbyte(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get fee rate: %w", err)
	}
	details := domain.BsqSwapDetails{
		BtcAmount:     amount,
		BsqAmount:     mathutil.QuoteAmount(amount, offer.Price),
		TxFeePerVbyte: feeRate,
		MakerFee:      mathutil.TradeFee(amount, s.cfg.MakerFeeRate, s.cfg.MinTradeFee),
		TakerFee:      mathutil.TradeFee(amount, s.cfg.TakerFeeRate, s.cfg.MinTradeFee),
		TradeDate:     time.Now().Unix(),
	}
	return domain.NewBsqSwapTrade(offer, false, details, offer.MakerNodeAddress), nil
}

// createMakerTrade creates the trade for one of the local offers taken with
// the given request.
func (s *Service) createMakerTrade(
	ctx context.Context, lt *liveTrade, env domain.Envelope, msg domain.Message,
) error {
	var protocol domain.ProtocolKind
	switch msg.(type) {
	case *domain.InputsForDepositTxRequest:
		protocol = domain.ProtocolEscrow
	case *domain.BsqSwapRequest:
		protocol = domain.ProtocolBsqSwap
	default:
		return domain.ErrTradeNotFound
	}

	offer, err := s.provider.OfferBook.GetOffer(ctx, env.TradeId)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrOfferNotAvailable, err)
	}
	if offer.Protocol != protocol {
		return ErrProtocolMismatch
	}

	var trade *domain.Trade
	switch m := msg.(type) {
	case *domain.InputsForDepositTxRequest:
		trade = domain.NewTrade(*offer, true, m.TradeAmount, env.SenderAddress)
	case *domain.BsqSwapRequest:
		details := domain.BsqSwapDetails{
			BtcAmount:     m.TradeAmount,
			BsqAmount:     mathutil.QuoteAmount(m.TradeAmount, offer.Price),
			TxFeePerVbyte: m.TxFeePerVbyte,
			MakerFee:      m.MakerFee,
			TakerFee:      m.TakerFee,
			TradeDate:     m.TradeDate,
		}
		trade = domain.NewBsqSwapTrade(*offer, true, details, env.SenderAddress)
	}

	model := s.newModel(trade.Id)
	if err := s.create(ctx, trade, model); err != nil {
		return err
	}
	lt.trade, lt.model, lt.lastState = trade, model, trade.State
	return nil
}

// create stores a new trade together with its process model.
func (s *Service) create(
	ctx context.Context, trade *domain.Trade, model *domain.ProcessModel,
) error {
	repo := s.provider.Repo
	_, err := repo.RunTransaction(
		ctx, false, func(ctx context.Context) (interface{}, error) {
			if err := repo.TradeRepository().AddTrade(ctx, trade); err != nil {
				return nil, err
			}
			return nil, repo.ProcessModelRepository().SaveProcessModel(ctx, model)
		},
	)
	return err
}

// restoreWatches registers again the chain watches of the open trades.
func (s *Service) restoreWatches(ctx context.Context) {
	if s.provider.ChainNotifier == nil {
		return
	}
	trades, err := s.ListTrades(ctx, domain.CollectionOpen, nil)
	if err != nil {
		log.WithError(err).Warn("failed to fetch open trades")
		return
	}
	for _, t := range trades {
		if t.Protocol != domain.ProtocolEscrow || t.IsTerminal() {
			continue
		}
		if len(t.DepositTxId) > 0 && t.State < domain.TradeStateDepositConfirmed {
			if err := s.provider.ChainNotifier.WatchTx(ctx, t.Id, t.DepositTxId); err != nil {
				log.WithError(err).Warnf("failed to watch deposit tx of trade %s", t.Id)
			}
		}
		if t.State >= domain.TradeStateDepositTxPublished {
			continue
		}
		model, err := s.provider.Repo.ProcessModelRepository().GetProcessModel(ctx, t.Id)
		if err != nil || len(model.ReservedAddress) <= 0 {
			continue
		}
		if err := s.provider.ChainNotifier.WatchAddress(
			ctx, t.Id, model.ReservedAddress,
		); err != nil {
			log.WithError(err).Warnf("failed to watch reserved address of trade %s", t.Id)
		}
	}
}

type ackListener struct {
	tradeId   string
	sourceUid string
}

func (l ackListener) OnArrived() {}

func (l ackListener) OnStoredInMailbox() {}

func (l ackListener) OnFault(errMsg string) {
	log.Debugf(
		"failed to deliver ack for message %s of trade %s: %s",
		l.sourceUid, l.tradeId, errMsg,
	)
}
