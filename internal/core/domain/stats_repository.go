package domain

import "context"

// StatisticsRepository keeps track of the statistics records published by
// the local party.
type StatisticsRepository interface {
	// AddStatistics stores the record. It returns false if a record with the
	// same hash was already stored.
	AddStatistics(ctx context.Context, stats TradeStatistics) (bool, error)
	// ListStatistics returns the stored records, optionally paginated.
	ListStatistics(ctx context.Context, page *Page) ([]TradeStatistics, error)
}
