package protocol

import (
	"errors"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"
	"github.com/tdex-network/tdex-tradeprotocol/internal/core/domain"
)

// ErrPipelineHalted can be returned by an interceptor to stop a pipeline
// right before a task, without failing it and without persisting anything
// more. The pipeline can then be resumed from its last persisted cursor.
var ErrPipelineHalted = errors.New("pipeline halted")

// Interceptor is invoked right before every task of every pipeline. Returning
// ErrPipelineHalted halts the pipeline, any other error fails the task.
type Interceptor func(task string, index int, tc *TaskContext) error

type deliveryOutcome struct {
	uid    string
	policy SendPolicy
	state  domain.MessageState
	fault  bool
	errMsg string
}

// Pipeline runs the tasks of a sequence for one trade strictly in order. The
// trade, the model and the cursor are persisted at every task boundary.
type Pipeline struct {
	seq         Sequence
	tc          *TaskContext
	next        int
	interceptor Interceptor
	metrics     Metrics

	save     func(p *Pipeline) error
	schedule func(job func())
	onDone   func(p *Pipeline, err error)

	mu        sync.Mutex
	waiting   *sendListener
	early     *deliveryOutcome
	suspended bool
	done      bool
}

func (p *Pipeline) currentTask() string {
	if p.next < len(p.seq.Tasks) {
		return p.seq.Tasks[p.next].Name
	}
	return ""
}

// Sequence returns the name of the sequence run by the pipeline.
func (p *Pipeline) Sequence() string {
	return p.seq.Name
}

// start persists the initial cursor and runs the tasks until the pipeline
// completes, fails or suspends. It must be called by the trade executor.
func (p *Pipeline) start() {
	if err := p.persist(); err != nil {
		p.finish(err)
		return
	}
	p.loop(nil)
}

func (p *Pipeline) loop(pending *Result) {
	for {
		if p.next >= len(p.seq.Tasks) {
			p.finish(nil)
			return
		}
		task := p.seq.Tasks[p.next]

		var res Result
		if pending != nil {
			res = *pending
			pending = nil
		} else {
			if p.interceptor != nil {
				if err := p.interceptor(task.Name, p.next, p.tc); err != nil {
					if errors.Is(err, ErrPipelineHalted) {
						p.halt()
						return
					}
					p.fail(task, err)
					return
				}
			}
			res = task.Run(p.tc)
		}

		if res.Kind == ResultSuspend {
			p.mu.Lock()
			if p.early == nil {
				p.suspended = true
				p.mu.Unlock()
				if err := p.persist(); err != nil {
					log.WithError(err).Warnf(
						"failed to persist suspended pipeline %s of trade %s",
						p.seq.Name, p.tc.Trade.Id,
					)
				}
				return
			}
			outcome := *p.early
			p.early = nil
			p.mu.Unlock()
			res = p.applyDelivery(outcome)
		}

		if res.Kind == ResultFailed {
			p.fail(task, res.Err)
			return
		}

		p.metrics.TaskCompleted(p.seq.Name, task.Name)
		p.next++
		if err := p.persist(); err != nil {
			p.finish(err)
			return
		}
	}
}

// resume continues a suspended pipeline with the outcome of the delivery. It
// must be called by the trade executor.
func (p *Pipeline) resume(outcome deliveryOutcome) {
	if p.isDone() {
		return
	}
	res := p.applyDelivery(outcome)
	p.loop(&res)
}

func (p *Pipeline) applyDelivery(o deliveryOutcome) Result {
	record, ok := p.tc.Model.MessageRecord(o.uid)
	if !ok {
		return ConsistencyFailure(fmt.Errorf("unknown outbound message %s", o.uid))
	}

	if !o.fault {
		record.Transition(o.state)
		return Continue()
	}

	record.LastError = o.errMsg
	if o.policy == FailOnFault {
		record.Transition(domain.MessageStateFailed)
		p.metrics.MessageFailed(record.Kind)
		return Failed(domain.NewDeliveryError(
			fmt.Errorf("failed to deliver %s: %s", record.Kind, o.errMsg),
		))
	}

	log.Warnf(
		"failed to deliver %s for trade %s, message left to resender: %s",
		record.Kind, p.tc.Trade.Id, o.errMsg,
	)
	return Continue()
}

func (p *Pipeline) fail(task Task, err error) {
	perr := &domain.ProtocolError{}
	if !errors.As(err, &perr) {
		perr = &domain.ProtocolError{Kind: domain.ErrKindConsistency, Err: err}
	}
	if len(perr.Task) <= 0 {
		perr.Task = task.Name
	}
	p.metrics.TaskFailed(p.seq.Name, task.Name, perr.Kind)

	trade := p.tc.Trade
	switch perr.Kind {
	case domain.ErrKindValidation:
		trade.SetErrorMessage(perr.Error())
	case domain.ErrKindPostBroadcast:
		trade.RequestDispute(perr.Error())
	default:
		trade.Fail(perr.Error())
	}

	log.WithField("trade", trade.Id).Warnf(
		"pipeline %s stopped: %s", p.seq.Name, perr,
	)

	p.next = len(p.seq.Tasks)
	if err := p.persist(); err != nil {
		log.WithError(err).Warnf("failed to persist failed trade %s", trade.Id)
	}
	p.finish(perr)
}

func (p *Pipeline) halt() {
	log.Debugf("pipeline %s of trade %s halted", p.seq.Name, p.tc.Trade.Id)
	p.finish(ErrPipelineHalted)
}

func (p *Pipeline) finish(err error) {
	p.mu.Lock()
	if p.done {
		p.mu.Unlock()
		return
	}
	p.done = true
	p.waiting = nil
	p.mu.Unlock()

	if p.onDone != nil {
		p.onDone(p, err)
	}
}

func (p *Pipeline) isDone() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.done
}

// persist stores the cursor within the model and saves trade and model.
func (p *Pipeline) persist() error {
	if p.next < len(p.seq.Tasks) {
		p.tc.Model.Cursor = &domain.PipelineCursor{
			Sequence: p.seq.Name,
			Next:     p.next,
			Trigger:  p.tc.Trigger,
		}
	} else {
		p.tc.Model.Cursor = nil
	}
	return p.save(p)
}

func (p *Pipeline) newSendListener(uid string, policy SendPolicy) *sendListener {
	l := &sendListener{pipeline: p, uid: uid, policy: policy}
	p.mu.Lock()
	p.waiting = l
	p.early = nil
	p.suspended = false
	p.mu.Unlock()
	return l
}

// deliver routes the outcome of a send to the pipeline. The callback can fire
// synchronously, while the sending task is still running, or at any later
// time from another goroutine.
func (p *Pipeline) deliver(l *sendListener, o deliveryOutcome) {
	p.mu.Lock()
	if p.done || p.waiting != l {
		p.mu.Unlock()
		return
	}
	p.waiting = nil
	if !p.suspended {
		p.early = &o
		p.mu.Unlock()
		return
	}
	p.suspended = false
	p.mu.Unlock()

	p.schedule(func() { p.resume(o) })
}

type sendListener struct {
	pipeline *Pipeline
	uid      string
	policy   SendPolicy
	once     sync.Once
}

func (l *sendListener) OnArrived() {
	l.fire(deliveryOutcome{state: domain.MessageStateArrived})
}

func (l *sendListener) OnStoredInMailbox() {
	l.fire(deliveryOutcome{state: domain.MessageStateStoredInMailbox})
}

func (l *sendListener) OnFault(errMsg string) {
	l.fire(deliveryOutcome{fault: true, errMsg: errMsg})
}

func (l *sendListener) fire(o deliveryOutcome) {
	l.once.Do(func() {
		o.uid = l.uid
		o.policy = l.policy
		l.pipeline.deliver(l, o)
	})
}
