package ports

import (
	"context"

	"github.com/tdex-network/tdex-tradeprotocol/internal/core/domain"
)

// RepoManager gives access to all the repositories of the engine.
type RepoManager interface {
	TradeRepository() domain.TradeRepository
	ProcessModelRepository() domain.ProcessModelRepository
	StatisticsRepository() domain.StatisticsRepository
	Close()

	// RunTransaction runs the handler within a single transaction over the
	// trade and process model repositories. Either every write made through
	// the handler's context is persisted or none is.
	RunTransaction(
		ctx context.Context,
		readOnly bool,
		handler func(ctx context.Context) (interface{}, error),
	) (interface{}, error)
}
