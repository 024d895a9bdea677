package dbbadger

import (
	"context"
	"sync"

	"github.com/tdex-network/tdex-tradeprotocol/internal/core/domain"
	"github.com/timshannon/badgerhold/v4"
)

// statsRecord wraps a statistics record with its insertion sequence, so that
// records are listed in publication order.
type statsRecord struct {
	Seq   uint64
	Stats domain.TradeStatistics
}

type statsRepositoryImpl struct {
	lock  *sync.Mutex
	store *badgerhold.Store
}

// NewStatisticsRepositoryImpl returns a badger implementation of the
// domain.StatisticsRepository. Records are keyed by their hash.
func NewStatisticsRepositoryImpl(store *badgerhold.Store) domain.StatisticsRepository {
	return statsRepositoryImpl{&sync.Mutex{}, store}
}

func (s statsRepositoryImpl) AddStatistics(
	ctx context.Context, stats domain.TradeStatistics,
) (bool, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	seq, err := s.store.Badger().GetSequence([]byte("stats_seq"), 100)
	if err != nil {
		return false, err
	}
	// nolint
	defer seq.Release()
	next, err := seq.Next()
	if err != nil {
		return false, err
	}

	record := statsRecord{Seq: next, Stats: stats}
	if tx := txFromContext(ctx); tx != nil {
		err = s.store.TxInsert(tx, stats.Hash(), record)
	} else {
		err = s.store.Insert(stats.Hash(), record)
	}
	if err != nil {
		if err == badgerhold.ErrKeyExists {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s statsRepositoryImpl) ListStatistics(
	ctx context.Context, page *domain.Page,
) ([]domain.TradeStatistics, error) {
	query := (&badgerhold.Query{}).SortBy("Seq")
	if page != nil {
		query = query.Skip((page.Number - 1) * page.Size).Limit(page.Size)
	}

	var records []statsRecord
	var err error
	if tx := txFromContext(ctx); tx != nil {
		err = s.store.TxFind(tx, &records, query)
	} else {
		err = s.store.Find(&records, query)
	}
	if err != nil {
		return nil, err
	}

	stats := make([]domain.TradeStatistics, 0, len(records))
	for _, r := range records {
		stats = append(stats, r.Stats)
	}
	return stats, nil
}
