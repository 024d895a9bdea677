package inmemory

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"github.com/tdex-network/tdex-tradeprotocol/internal/core/domain"
)

type processModelRepository struct {
	locker sync.RWMutex
	models map[string][]byte
}

// NewProcessModelRepository returns a new inmemory ProcessModelRepository
// implementation.
func NewProcessModelRepository() domain.ProcessModelRepository {
	return newProcessModelRepository()
}

func newProcessModelRepository() *processModelRepository {
	return &processModelRepository{models: make(map[string][]byte)}
}

func (r *processModelRepository) GetProcessModel(
	_ context.Context, tradeId string,
) (*domain.ProcessModel, error) {
	r.locker.RLock()
	defer r.locker.RUnlock()

	return r.get(tradeId)
}

func (r *processModelRepository) SaveProcessModel(
	_ context.Context, model *domain.ProcessModel,
) error {
	if err := model.Validate(); err != nil {
		return err
	}

	stored := *model
	stored.PendingResend = model.HasPendingResends()
	buf, err := json.Marshal(stored)
	if err != nil {
		return err
	}

	r.locker.Lock()
	defer r.locker.Unlock()

	r.models[model.TradeId] = buf
	return nil
}

func (r *processModelRepository) GetModelsWithPendingCursor(
	_ context.Context,
) ([]*domain.ProcessModel, error) {
	r.locker.RLock()
	defer r.locker.RUnlock()

	return r.find(func(m *domain.ProcessModel) bool { return m.Cursor != nil })
}

func (r *processModelRepository) GetModelsWithPendingResends(
	_ context.Context,
) ([]*domain.ProcessModel, error) {
	r.locker.RLock()
	defer r.locker.RUnlock()

	return r.find(func(m *domain.ProcessModel) bool { return m.PendingResend })
}

// find returns the models matching the filter, sorted by trade id.
func (r *processModelRepository) find(
	filter func(m *domain.ProcessModel) bool,
) ([]*domain.ProcessModel, error) {
	ids := make([]string, 0, len(r.models))
	for id := range r.models {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	models := make([]*domain.ProcessModel, 0)
	for _, id := range ids {
		model, err := r.get(id)
		if err != nil {
			return nil, err
		}
		if filter(model) {
			models = append(models, model)
		}
	}
	return models, nil
}

func (r *processModelRepository) get(tradeId string) (*domain.ProcessModel, error) {
	buf, ok := r.models[tradeId]
	if !ok {
		return nil, domain.ErrProcessModelNotFound
	}
	model := &domain.ProcessModel{}
	if err := json.Unmarshal(buf, model); err != nil {
		return nil, err
	}
	return model, nil
}

func (r *processModelRepository) snapshot() map[string][]byte {
	r.locker.RLock()
	defer r.locker.RUnlock()
	return copyEntries(r.models)
}

func (r *processModelRepository) restore(models map[string][]byte) {
	r.locker.Lock()
	defer r.locker.Unlock()
	r.models = models
}
