package indexer

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/plateindex/plateindex/internal/catalog"
	"github.com/plateindex/plateindex/internal/matcher"
	"github.com/plateindex/plateindex/internal/metrics"
)

// reverse backfills sources whose geographic search missed restaurants the
// run touched. For every touched restaurant still lacking a link to some
// configured adapter, that adapter is queried by name; a result clearing the
// match threshold merges exactly like a forward-phase match. Adapters whose
// forward phase failed this run are skipped.
func (ix *Indexer) reverse(
	ctx context.Context,
	query catalog.SearchQuery,
	adapters []catalog.Adapter,
	touched map[string]struct{},
	failed map[string]struct{},
	stats *catalog.RunStats,
) error {
	for _, restaurantID := range sortedIDs(touched) {
		restaurant, err := ix.store.GetRestaurant(ctx, restaurantID)
		if err != nil {
			return fmt.Errorf("load restaurant %s: %w", restaurantID, err)
		}

		linked, err := ix.linkedSources(ctx, restaurantID)
		if err != nil {
			return err
		}

		for _, adapter := range adapters {
			source := adapter.Source()
			if _, ok := linked[source]; ok {
				continue
			}
			if _, ok := failed[source]; ok {
				continue
			}

			merged, err := ix.reverseLookup(ctx, adapter, query, &restaurant)
			if err != nil {
				// Name-search failures leave the restaurant untouched for
				// this source; the rest of the phase continues.
				ix.logger.Warn("reverse lookup failed",
					zap.String("source", source),
					zap.String("restaurant_id", restaurantID),
					zap.Error(err),
				)
				continue
			}
			if merged {
				stats.Add(catalog.OutcomeMerged)
				metrics.ObserveBusiness(source, string(catalog.OutcomeMerged))
			}
		}
	}
	return nil
}

// reverseLookup name-searches one adapter for one restaurant and merges the
// best result if it clears the threshold. Returns whether a merge happened.
func (ix *Indexer) reverseLookup(
	ctx context.Context,
	adapter catalog.Adapter,
	query catalog.SearchQuery,
	restaurant *catalog.Restaurant,
) (bool, error) {
	location := restaurant.Location
	if location == "" {
		location = query.Location
	}
	results, err := adapter.SearchByName(ctx, restaurant.Name, location, ix.cfg.ReverseNameLimit)
	if err != nil {
		return false, fmt.Errorf("search by name: %w", err)
	}

	var best catalog.BusinessRecord
	bestScore := -1.0
	for _, record := range results {
		if score := matcher.Score(record, *restaurant); score > bestScore {
			best = record
			bestScore = score
		}
	}
	if bestScore < matcher.Threshold {
		return false, nil
	}

	if err := ix.merge(ctx, best, adapter.Source(), *restaurant); err != nil {
		return false, err
	}
	// Reload so later fills in this phase see the merged state.
	updated, err := ix.store.GetRestaurant(ctx, restaurant.ID)
	if err != nil {
		return false, fmt.Errorf("reload restaurant %s: %w", restaurant.ID, err)
	}
	*restaurant = updated

	ix.logger.Info("reverse lookup merged",
		zap.String("source", adapter.Source()),
		zap.String("restaurant_id", restaurant.ID),
		zap.Float64("score", bestScore),
	)
	return true, nil
}

// linkedSources returns the set of sources already attached to a restaurant.
func (ix *Indexer) linkedSources(ctx context.Context, restaurantID string) (map[string]struct{}, error) {
	ids, err := ix.store.ListExternalIDs(ctx, restaurantID)
	if err != nil {
		return nil, fmt.Errorf("list external ids for %s: %w", restaurantID, err)
	}
	linked := make(map[string]struct{}, len(ids))
	for _, e := range ids {
		linked[e.Source] = struct{}{}
	}
	return linked, nil
}
