package inmemory

import (
	"context"
	"sync"

	"github.com/tdex-network/tdex-tradeprotocol/internal/core/domain"
)

type statisticsRepository struct {
	locker sync.RWMutex
	stats  []domain.TradeStatistics
	hashes map[string]struct{}
}

// NewStatisticsRepository returns a new inmemory StatisticsRepository
// implementation.
func NewStatisticsRepository() domain.StatisticsRepository {
	return &statisticsRepository{hashes: make(map[string]struct{})}
}

func (r *statisticsRepository) AddStatistics(
	_ context.Context, stats domain.TradeStatistics,
) (bool, error) {
	r.locker.Lock()
	defer r.locker.Unlock()

	hash := stats.Hash()
	if _, ok := r.hashes[hash]; ok {
		return false, nil
	}
	r.hashes[hash] = struct{}{}
	r.stats = append(r.stats, stats)
	return true, nil
}

func (r *statisticsRepository) ListStatistics(
	_ context.Context, page *domain.Page,
) ([]domain.TradeStatistics, error) {
	r.locker.RLock()
	defer r.locker.RUnlock()

	list := make([]domain.TradeStatistics, len(r.stats))
	copy(list, r.stats)
	if page == nil {
		return list, nil
	}
	first, last := page.Bounds(len(list))
	return list[first:last], nil
}
