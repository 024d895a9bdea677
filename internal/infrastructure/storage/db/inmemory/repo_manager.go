package inmemory

import (
	"context"
	"sync"

	"github.com/tdex-network/tdex-tradeprotocol/internal/core/domain"
	"github.com/tdex-network/tdex-tradeprotocol/internal/core/ports"
)

type repoManager struct {
	txLock sync.Mutex

	tradeRepository        *tradeRepository
	processModelRepository *processModelRepository
	statsRepository        domain.StatisticsRepository
}

// NewRepoManager returns a RepoManager whose repositories live in memory.
// Stored entities are serialized, so that no pointer is shared between the
// callers and the store.
func NewRepoManager() ports.RepoManager {
	return &repoManager{
		tradeRepository:        newTradeRepository(),
		processModelRepository: newProcessModelRepository(),
		statsRepository:        NewStatisticsRepository(),
	}
}

func (r *repoManager) TradeRepository() domain.TradeRepository {
	return r.tradeRepository
}

func (r *repoManager) ProcessModelRepository() domain.ProcessModelRepository {
	return r.processModelRepository
}

func (r *repoManager) StatisticsRepository() domain.StatisticsRepository {
	return r.statsRepository
}

func (r *repoManager) Close() {}

// RunTransaction serializes transactions and, if the handler fails, restores
// the trades and process models as they were before running it.
func (r *repoManager) RunTransaction(
	ctx context.Context,
	readOnly bool,
	handler func(ctx context.Context) (interface{}, error),
) (interface{}, error) {
	r.txLock.Lock()
	defer r.txLock.Unlock()

	if readOnly {
		return handler(ctx)
	}

	trades := r.tradeRepository.snapshot()
	models := r.processModelRepository.snapshot()

	res, err := handler(ctx)
	if err != nil {
		r.tradeRepository.restore(trades)
		r.processModelRepository.restore(models)
		return nil, err
	}
	return res, nil
}

func copyEntries(entries map[string][]byte) map[string][]byte {
	cp := make(map[string][]byte, len(entries))
	for k, v := range entries {
		cp[k] = v
	}
	return cp
}
