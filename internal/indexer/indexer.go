// Package indexer drives indexing runs: a forward phase that enumerates each
// source geographically and resolves every business against the canonical
// store, then a reverse-lookup phase that backfills sources whose geographic
// search missed restaurants other sources found.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/plateindex/plateindex/internal/catalog"
	"github.com/plateindex/plateindex/internal/metrics"
)

// Config tunes run behavior.
type Config struct {
	// CandidateDelta is the bounding-box half-width, in degrees, used to
	// pre-filter match candidates around a business's coordinates.
	CandidateDelta float64
	// ReverseNameLimit caps results requested from name search per lookup.
	ReverseNameLimit int
}

const (
	defaultCandidateDelta   = 0.02
	defaultReverseNameLimit = 3
)

// Indexer orchestrates forward and reverse indexing over a fixed, ordered
// set of adapters. Adapter order is priority order.
type Indexer struct {
	adapters     []catalog.Adapter
	photoSources []catalog.PhotoSource
	store        catalog.RestaurantStore
	clock        catalog.Clock
	ids          catalog.IDGenerator
	cfg          Config
	logger       *zap.Logger
}

// New constructs an Indexer.
func New(
	adapters []catalog.Adapter,
	photoSources []catalog.PhotoSource,
	store catalog.RestaurantStore,
	clock catalog.Clock,
	ids catalog.IDGenerator,
	cfg Config,
	logger *zap.Logger,
) *Indexer {
	if cfg.CandidateDelta <= 0 {
		cfg.CandidateDelta = defaultCandidateDelta
	}
	if cfg.ReverseNameLimit <= 0 {
		cfg.ReverseNameLimit = defaultReverseNameLimit
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Indexer{
		adapters:     adapters,
		photoSources: photoSources,
		store:        store,
		clock:        clock,
		ids:          ids,
		cfg:          cfg,
		logger:       logger,
	}
}

// Index runs a full forward-then-reverse indexing pass for the query and
// returns run statistics. An adapter failure aborts only that adapter's
// contribution; store failures abort the run.
func (ix *Indexer) Index(ctx context.Context, query catalog.SearchQuery) (catalog.RunStats, error) {
	stats := catalog.RunStats{AdapterErrors: make(map[string]string)}

	configured := ix.configuredAdapters()
	if len(configured) == 0 {
		return stats, ErrNoAdapters
	}

	// Restaurants created or touched this run, for the reverse phase.
	touched := make(map[string]struct{})
	failed := make(map[string]struct{})

	for _, adapter := range configured {
		if err := ix.forward(ctx, adapter, query, &stats, touched); err != nil {
			var adapterErr *AdapterError
			if errors.As(err, &adapterErr) {
				ix.logger.Warn("adapter phase aborted",
					zap.String("source", adapterErr.Source),
					zap.Error(adapterErr.Err),
				)
				stats.AdapterErrors[adapterErr.Source] = adapterErr.Err.Error()
				failed[adapterErr.Source] = struct{}{}
				continue
			}
			return stats, err
		}
	}

	if err := ix.reverse(ctx, query, configured, touched, failed, &stats); err != nil {
		return stats, err
	}

	ix.logger.Info("indexing run complete",
		zap.String("location", query.Location),
		zap.Int("total", stats.Total),
		zap.Int("created", stats.Created),
		zap.Int("updated", stats.Updated),
		zap.Int("merged", stats.Merged),
		zap.Int("adapter_errors", len(stats.AdapterErrors)),
	)
	return stats, nil
}

// IndexOne resolves a single business record from a source against the
// canonical store and reports the outcome.
func (ix *Indexer) IndexOne(
	ctx context.Context,
	record catalog.BusinessRecord,
	source string,
	location string,
) (catalog.Outcome, error) {
	outcome, _, err := ix.resolve(ctx, record, source, location)
	if err != nil {
		return "", err
	}
	metrics.ObserveBusiness(source, string(outcome))
	return outcome, nil
}

// forward enumerates one adapter's geographic search and resolves every
// yielded business. The requested limit applies to this adapter alone.
func (ix *Indexer) forward(
	ctx context.Context,
	adapter catalog.Adapter,
	query catalog.SearchQuery,
	stats *catalog.RunStats,
	touched map[string]struct{},
) error {
	source := adapter.Source()
	it, err := adapter.SearchAll(ctx, query)
	if err != nil {
		return &AdapterError{Source: source, Err: err}
	}

	for it.Next(ctx) {
		record := it.Business()
		record = ix.enrichDetail(ctx, adapter, record)

		outcome, restaurantID, err := ix.resolve(ctx, record, source, query.Location)
		if err != nil {
			return fmt.Errorf("resolve %s business %s: %w", source, record.ExternalID, err)
		}
		stats.Add(outcome)
		metrics.ObserveBusiness(source, string(outcome))
		touched[restaurantID] = struct{}{}

		progress := it.Progress()
		ix.logger.Debug("business indexed",
			zap.String("source", source),
			zap.String("external_id", record.ExternalID),
			zap.String("outcome", string(outcome)),
			zap.Int("done", progress.Done),
			zap.Int("estimated_total", progress.Total),
			zap.Float64("percent", progress.Percent),
		)
	}
	if err := it.Err(); err != nil {
		return &AdapterError{Source: source, Err: err}
	}
	return nil
}

// enrichDetail fetches the full business detail when the search result lacks
// photos. A detail failure never aborts the run: the search-result record is
// used unmodified.
func (ix *Indexer) enrichDetail(
	ctx context.Context,
	adapter catalog.Adapter,
	record catalog.BusinessRecord,
) catalog.BusinessRecord {
	if len(record.Photos) > 0 {
		return record
	}
	detail, err := adapter.GetBusiness(ctx, record.ExternalID)
	if err != nil {
		ix.logger.Warn("detail fetch failed, using search result",
			zap.String("source", adapter.Source()),
			zap.String("external_id", record.ExternalID),
			zap.Error(err),
		)
		return record
	}
	return detail
}

func (ix *Indexer) configuredAdapters() []catalog.Adapter {
	var out []catalog.Adapter
	for _, a := range ix.adapters {
		if a.Configured() {
			out = append(out, a)
		}
	}
	return out
}

// sortedIDs returns map keys in a stable order so runs are reproducible.
func sortedIDs(m map[string]struct{}) []string {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
