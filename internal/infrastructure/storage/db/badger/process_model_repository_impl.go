package dbbadger

import (
	"context"

	"github.com/tdex-network/tdex-tradeprotocol/internal/core/domain"
	"github.com/timshannon/badgerhold/v4"
)

type processModelRepositoryImpl struct {
	store *badgerhold.Store
}

// NewProcessModelRepositoryImpl returns a badger implementation of the
// domain.ProcessModelRepository.
func NewProcessModelRepositoryImpl(
	store *badgerhold.Store,
) domain.ProcessModelRepository {
	return processModelRepositoryImpl{store}
}

func (r processModelRepositoryImpl) GetProcessModel(
	ctx context.Context, tradeId string,
) (*domain.ProcessModel, error) {
	var model domain.ProcessModel
	var err error
	if tx := txFromContext(ctx); tx != nil {
		err = r.store.TxGet(tx, tradeId, &model)
	} else {
		err = r.store.Get(tradeId, &model)
	}
	if err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, domain.ErrProcessModelNotFound
		}
		return nil, err
	}
	return &model, nil
}

func (r processModelRepositoryImpl) SaveProcessModel(
	ctx context.Context, model *domain.ProcessModel,
) error {
	if err := model.Validate(); err != nil {
		return err
	}
	stored := *model
	stored.PendingResend = model.HasPendingResends()
	if tx := txFromContext(ctx); tx != nil {
		return r.store.TxUpsert(tx, model.TradeId, stored)
	}
	return r.store.Upsert(model.TradeId, stored)
}

func (r processModelRepositoryImpl) GetModelsWithPendingCursor(
	ctx context.Context,
) ([]*domain.ProcessModel, error) {
	models, err := r.findModels(ctx, &badgerhold.Query{})
	if err != nil {
		return nil, err
	}

	res := make([]*domain.ProcessModel, 0)
	for i := range models {
		if models[i].Cursor != nil {
			res = append(res, &models[i])
		}
	}
	return res, nil
}

func (r processModelRepositoryImpl) GetModelsWithPendingResends(
	ctx context.Context,
) ([]*domain.ProcessModel, error) {
	query := badgerhold.Where("PendingResend").Eq(true).Index("PendingResend")
	models, err := r.findModels(ctx, query)
	if err != nil {
		return nil, err
	}

	res := make([]*domain.ProcessModel, 0, len(models))
	for i := range models {
		res = append(res, &models[i])
	}
	return res, nil
}

func (r processModelRepositoryImpl) findModels(
	ctx context.Context, query *badgerhold.Query,
) ([]domain.ProcessModel, error) {
	query = query.SortBy("TradeId")

	var models []domain.ProcessModel
	var err error
	if tx := txFromContext(ctx); tx != nil {
		err = r.store.TxFind(tx, &models, query)
	} else {
		err = r.store.Find(&models, query)
	}
	if err != nil {
		return nil, err
	}
	return models, nil
}
