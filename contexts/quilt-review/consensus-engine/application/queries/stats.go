package queries

import (
	"context"

	"quiltqc/contexts/quilt-review/consensus-engine/domain/entities"
	"quiltqc/contexts/quilt-review/consensus-engine/ports"

	"golang.org/x/sync/singleflight"
)

// StatsUseCase serves dashboard counters. Concurrent callers share one
// in-flight aggregation.
type StatsUseCase struct {
	Queries ports.BlockQueryRepository
	flight  *singleflight.Group
}

func NewStatsUseCase(queries ports.BlockQueryRepository) StatsUseCase {
	return StatsUseCase{
		Queries: queries,
		flight:  &singleflight.Group{},
	}
}

func (uc StatsUseCase) Stats(ctx context.Context) (entities.Stats, error) {
	if uc.flight == nil {
		return uc.Queries.Stats(ctx)
	}
	value, err, _ := uc.flight.Do("stats", func() (any, error) {
		return uc.Queries.Stats(ctx)
	})
	if err != nil {
		return entities.Stats{}, err
	}
	return value.(entities.Stats), nil
}
