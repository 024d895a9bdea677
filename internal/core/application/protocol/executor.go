package protocol

import (
	"sync"

	"github.com/tdex-network/tdex-tradeprotocol/internal/core/domain"
)

// liveTrade is the in-memory handle of a trade with a running or suspended
// pipeline. Every job touching the trade or its model runs through its
// serial queue, so no two tasks of the same trade are ever active at once.
// Jobs of distinct trades run concurrently. A handle with an empty queue and
// no pipeline is dropped, the next job loads the trade from the repository.
type liveTrade struct {
	id string

	lock  sync.Mutex
	busy  bool
	queue []func()

	// Owned by the jobs of the queue.
	trade     *domain.Trade
	model     *domain.ProcessModel
	lastState domain.TradeState
	current   *Pipeline
	waiting   []func()
}

func (lt *liveTrade) idle() bool {
	return !lt.busy && len(lt.queue) <= 0 && lt.current == nil &&
		len(lt.waiting) <= 0
}

type executor struct {
	lock   sync.Mutex
	trades map[string]*liveTrade
	jobs   sync.WaitGroup
}

func newExecutor() *executor {
	return &executor{trades: make(map[string]*liveTrade)}
}

// get returns the handle of the trade. It must be called from within a job
// of the trade, while the handle can't be dropped.
func (e *executor) get(tradeId string) *liveTrade {
	e.lock.Lock()
	defer e.lock.Unlock()

	return e.getOrCreate(tradeId)
}

func (e *executor) getOrCreate(tradeId string) *liveTrade {
	lt, ok := e.trades[tradeId]
	if !ok {
		lt = &liveTrade{id: tradeId}
		e.trades[tradeId] = lt
	}
	return lt
}

// size returns the number of trade handles held in memory.
func (e *executor) size() int {
	e.lock.Lock()
	defer e.lock.Unlock()

	return len(e.trades)
}

// submit enqueues a job for the trade. If the trade's queue is idle the
// calling goroutine drains it, otherwise the job is run by the goroutine
// currently draining. A job submitted from within another job of the same
// trade runs after it.
func (e *executor) submit(tradeId string, job func()) {
	if lt := e.enqueue(tradeId, job); lt != nil {
		e.drain(lt)
	}
}

// submitAsync enqueues a job and, if needed, drains the queue from a new
// goroutine.
func (e *executor) submitAsync(tradeId string, job func()) {
	if lt := e.enqueue(tradeId, job); lt != nil {
		go e.drain(lt)
	}
}

// enqueue adds the job to the trade's queue and returns the trade if the
// caller is in charge of draining it.
func (e *executor) enqueue(tradeId string, job func()) *liveTrade {
	e.lock.Lock()
	lt := e.getOrCreate(tradeId)
	lt.lock.Lock()
	e.lock.Unlock()
	defer lt.lock.Unlock()

	e.jobs.Add(1)

	lt.queue = append(lt.queue, job)
	if lt.busy {
		return nil
	}
	lt.busy = true
	return lt
}

// drain runs the queued jobs until the queue is empty. The caller must have
// been put in charge of it by enqueue. The handle is dropped, if idle,
// before the last job is marked as done.
func (e *executor) drain(lt *liveTrade) {
	for {
		lt.lock.Lock()
		next := lt.queue[0]
		lt.queue = lt.queue[1:]
		lt.lock.Unlock()

		next()

		lt.lock.Lock()
		if len(lt.queue) > 0 {
			lt.lock.Unlock()
			e.jobs.Done()
			continue
		}
		lt.busy = false
		idle := lt.idle()
		lt.lock.Unlock()

		if idle {
			e.evict(lt)
		}
		e.jobs.Done()
		return
	}
}

// evict drops the handle unless a job was enqueued or a pipeline was started
// in the meantime.
func (e *executor) evict(lt *liveTrade) {
	e.lock.Lock()
	defer e.lock.Unlock()
	lt.lock.Lock()
	defer lt.lock.Unlock()

	if e.trades[lt.id] == lt && lt.idle() {
		delete(e.trades, lt.id)
	}
}

// wait blocks until every submitted job has run.
func (e *executor) wait() {
	e.jobs.Wait()
}
