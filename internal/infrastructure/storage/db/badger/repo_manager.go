package dbbadger

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/dgraph-io/badger/v3/options"
	log "github.com/sirupsen/logrus"
	"github.com/tdex-network/tdex-tradeprotocol/internal/core/domain"
	"github.com/tdex-network/tdex-tradeprotocol/internal/core/ports"
	"github.com/timshannon/badgerhold/v4"
)

const (
	tradesDir = "trades"
	statsDir  = "stats"

	gcInterval = 30 * time.Minute
)

type repoManager struct {
	tradeStore *badgerhold.Store
	statsStore *badgerhold.Store
	stopGC     []func()
	closeOnce  sync.Once

	tradeRepository        domain.TradeRepository
	processModelRepository domain.ProcessModelRepository
	statsRepository        domain.StatisticsRepository
}

// NewRepoManager opens (or creates if not exists) the badger stores on disk.
// Trades and their process models share the same store, statistics records
// have a dedicated one. If baseDbDir is empty, the stores are kept in memory.
func NewRepoManager(baseDbDir string, logger badger.Logger) (ports.RepoManager, error) {
	var tradeDbDir, statsDbDir string
	if len(baseDbDir) > 0 {
		tradeDbDir = filepath.Join(baseDbDir, tradesDir)
		statsDbDir = filepath.Join(baseDbDir, statsDir)
	}

	tradeStore, stopTradeGC, err := createDb(tradeDbDir, logger)
	if err != nil {
		return nil, fmt.Errorf("opening trades db: %w", err)
	}
	statsStore, stopStatsGC, err := createDb(statsDbDir, logger)
	if err != nil {
		stopTradeGC()
		tradeStore.Close()
		return nil, fmt.Errorf("opening stats db: %w", err)
	}

	return &repoManager{
		tradeStore:             tradeStore,
		statsStore:             statsStore,
		stopGC:                 []func(){stopTradeGC, stopStatsGC},
		tradeRepository:        NewTradeRepositoryImpl(tradeStore),
		processModelRepository: NewProcessModelRepositoryImpl(tradeStore),
		statsRepository:        NewStatisticsRepositoryImpl(statsStore),
	}, nil
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

// Close stops the value log GC routines and closes the stores. It is safe
// to call it more than once.
func (r *repoManager) Close() {
	r.closeOnce.Do(func() {
		for _, stop := range r.stopGC {
			stop()
		}
		r.tradeStore.Close()
		r.statsStore.Close()
	})
}

// RunTransaction binds a badger transaction of the trades store to the
// context passed to the handler. The transaction is committed only if the
// handler succeeds.
func (r *repoManager) RunTransaction(
	ctx context.Context,
	readOnly bool,
	handler func(ctx context.Context) (interface{}, error),
) (interface{}, error) {
	var res interface{}
	fn := func(tx *badger.Txn) error {
		var err error
		res, err = handler(context.WithValue(ctx, "tx", tx))
		return err
	}

	var err error
	if readOnly {
		err = r.tradeStore.Badger().View(fn)
	} else {
		err = r.tradeStore.Badger().Update(fn)
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}

// txFromContext returns the badger transaction bound to the context, if any.
func txFromContext(ctx context.Context) *badger.Txn {
	if tx, ok := ctx.Value("tx").(*badger.Txn); ok {
		return tx
	}
	return nil
}

// createDb opens the store and, if on disk, starts the routine that
// periodically garbage collects the value log. The returned func stops it.
func createDb(
	dbDir string, logger badger.Logger,
) (*badgerhold.Store, func(), error) {
	isInMemory := len(dbDir) <= 0

	opts := badger.DefaultOptions(dbDir)
	opts.Logger = logger

	if isInMemory {
		opts.InMemory = true
	} else {
		opts.Compression = options.ZSTD
	}

	db, err := badgerhold.Open(badgerhold.Options{
		Encoder:          badgerhold.DefaultEncode,
		Decoder:          badgerhold.DefaultDecode,
		SequenceBandwith: 100,
		Options:          opts,
	})
	if err != nil {
		return nil, nil, err
	}

	quit := make(chan struct{})
	var once sync.Once
	stop := func() { once.Do(func() { close(quit) }) }

	if !isInMemory {
		ticker := time.NewTicker(gcInterval)

		go func() {
			defer ticker.Stop()
			for {
				select {
				case <-quit:
					return
				case <-ticker.C:
				}
				if err := db.Badger().RunValueLogGC(0.5); err != nil &&
					err != badger.ErrNoRewrite {
					log.Error(err)
				}
			}
		}()
	}

	return db, stop, nil
}
