package service

import (
	"context"

	"github.com/fintrack/fintrack/internal/domain"
)

// StatisticsAggregator computes client counts on demand
type StatisticsAggregator struct {
	clients domain.ClientRepository
}

// NewStatisticsAggregator creates a new statistics aggregator
func NewStatisticsAggregator(clients domain.ClientRepository) *StatisticsAggregator {
	return &StatisticsAggregator{clients: clients}
}

// Snapshot returns the current client counts. Inactive is derived from Total and Active.
func (a *StatisticsAggregator) Snapshot(ctx context.Context) (domain.ClientStatistics, error) {
	stats, err := a.clients.Statistics(ctx)
	if err != nil {
		return domain.ClientStatistics{}, err
	}
	stats.Inactive = stats.Total - stats.Active
	return stats, nil
}
