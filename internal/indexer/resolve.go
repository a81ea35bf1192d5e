package indexer

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/plateindex/plateindex/internal/catalog"
	"github.com/plateindex/plateindex/internal/matcher"
)

// resolve attributes one business record to a canonical restaurant: update
// when the (source, external id) link already exists, otherwise match nearby
// candidates and either merge into the winner or create a new restaurant.
func (ix *Indexer) resolve(
	ctx context.Context,
	record catalog.BusinessRecord,
	source string,
	location string,
) (catalog.Outcome, string, error) {
	existing, err := ix.store.FindByExternalID(ctx, source, record.ExternalID)
	switch {
	case err == nil:
		if err := ix.update(ctx, record, source, existing); err != nil {
			return "", "", err
		}
		return catalog.OutcomeUpdated, existing.ID, nil
	case !errors.Is(err, catalog.ErrNotFound):
		return "", "", fmt.Errorf("find by external id: %w", err)
	}

	candidates, err := ix.findCandidates(ctx, record)
	if err != nil {
		return "", "", err
	}

	if match, ok := matcher.FindMatch(record, candidates); ok {
		ix.logger.Debug("matched existing restaurant",
			zap.String("source", source),
			zap.String("restaurant_id", match.Restaurant.ID),
			zap.Float64("score", match.Score),
		)
		if err := ix.merge(ctx, record, source, match.Restaurant); err != nil {
			return "", "", err
		}
		return catalog.OutcomeMerged, match.Restaurant.ID, nil
	}

	created, err := ix.create(ctx, record, source, location)
	if err != nil {
		return "", "", err
	}
	return catalog.OutcomeCreated, created.ID, nil
}

// findCandidates pre-filters stored restaurants by a bounding box around the
// record's coordinates. Records without coordinates get no candidates and
// therefore always create.
func (ix *Indexer) findCandidates(ctx context.Context, record catalog.BusinessRecord) ([]catalog.Restaurant, error) {
	if !record.HasCoordinates() {
		return nil, nil
	}
	candidates, err := ix.store.FindCandidates(ctx, *record.Latitude, *record.Longitude, ix.cfg.CandidateDelta)
	if err != nil {
		return nil, fmt.Errorf("find candidates: %w", err)
	}
	return candidates, nil
}

// create inserts a new canonical restaurant and all of the source's
// satellite rows.
func (ix *Indexer) create(
	ctx context.Context,
	record catalog.BusinessRecord,
	source string,
	location string,
) (catalog.Restaurant, error) {
	id, err := ix.ids.NewID()
	if err != nil {
		return catalog.Restaurant{}, fmt.Errorf("generate restaurant id: %w", err)
	}
	now := ix.clock.Now()
	restaurant := catalog.Restaurant{
		ID:        id,
		Name:      record.Name,
		Address:   record.Address,
		Latitude:  record.Latitude,
		Longitude: record.Longitude,
		Phone:     record.Phone,
		Location:  location,
		CreatedAt: now,
		UpdatedAt: now,
	}
	restaurant, err = ix.store.CreateRestaurant(ctx, restaurant)
	if err != nil {
		return catalog.Restaurant{}, fmt.Errorf("create restaurant: %w", err)
	}

	if err := ix.attachSource(ctx, record, source, restaurant.ID); err != nil {
		return catalog.Restaurant{}, err
	}
	ix.backfillPhotos(ctx, record, restaurant)
	return restaurant, nil
}

// update overwrites the canonical row from the source's fresh snapshot and
// replaces that source's satellite data.
func (ix *Indexer) update(
	ctx context.Context,
	record catalog.BusinessRecord,
	source string,
	restaurant catalog.Restaurant,
) error {
	restaurant.Name = record.Name
	restaurant.Address = record.Address
	if record.HasCoordinates() {
		restaurant.Latitude = record.Latitude
		restaurant.Longitude = record.Longitude
	}
	if record.Phone != "" {
		restaurant.Phone = record.Phone
	}
	restaurant.UpdatedAt = ix.clock.Now()
	if err := ix.store.UpdateRestaurant(ctx, restaurant); err != nil {
		return fmt.Errorf("update restaurant: %w", err)
	}
	return ix.attachSource(ctx, record, source, restaurant.ID)
}

// merge attaches a new source to an existing canonical restaurant: link,
// rating, categories, and media are added; canonical fields are only filled
// where currently empty (first writer wins).
func (ix *Indexer) merge(
	ctx context.Context,
	record catalog.BusinessRecord,
	source string,
	restaurant catalog.Restaurant,
) error {
	changed := false
	if restaurant.Name == "" && record.Name != "" {
		restaurant.Name = record.Name
		changed = true
	}
	if restaurant.Address == "" && record.Address != "" {
		restaurant.Address = record.Address
		changed = true
	}
	if !restaurant.HasCoordinates() && record.HasCoordinates() {
		restaurant.Latitude = record.Latitude
		restaurant.Longitude = record.Longitude
		changed = true
	}
	if restaurant.Phone == "" && record.Phone != "" {
		restaurant.Phone = record.Phone
		changed = true
	}
	if changed {
		restaurant.UpdatedAt = ix.clock.Now()
		if err := ix.store.UpdateRestaurant(ctx, restaurant); err != nil {
			return fmt.Errorf("update restaurant: %w", err)
		}
	}
	return ix.attachSource(ctx, record, source, restaurant.ID)
}

// attachSource persists everything one source contributes to a restaurant:
// the external id link, the rating snapshot, category links, deduplicated
// media, and the source's reviews.
func (ix *Indexer) attachSource(
	ctx context.Context,
	record catalog.BusinessRecord,
	source string,
	restaurantID string,
) error {
	if err := ix.store.InsertExternalID(ctx, catalog.ExternalID{
		RestaurantID: restaurantID,
		Source:       source,
		Value:        record.ExternalID,
	}); err != nil {
		return fmt.Errorf("insert external id: %w", err)
	}

	if err := ix.store.UpsertRating(ctx, catalog.Rating{
		RestaurantID: restaurantID,
		Source:       source,
		Score:        record.Rating,
		ReviewCount:  record.ReviewCount,
		FetchedAt:    ix.clock.Now(),
	}); err != nil {
		return fmt.Errorf("upsert rating: %w", err)
	}

	for _, name := range record.Categories {
		category, err := ix.store.FindOrCreateCategory(ctx, name)
		if err != nil {
			return fmt.Errorf("find or create category %q: %w", name, err)
		}
		if err := ix.store.LinkCategory(ctx, restaurantID, category.ID); err != nil {
			return fmt.Errorf("link category %q: %w", name, err)
		}
	}

	if len(record.Photos) > 0 {
		media := make([]catalog.Media, 0, len(record.Photos))
		for _, url := range record.Photos {
			media = append(media, catalog.Media{
				RestaurantID: restaurantID,
				Source:       source,
				Type:         catalog.MediaTypePhoto,
				URL:          url,
			})
		}
		if err := ix.store.AppendMedia(ctx, restaurantID, media); err != nil {
			return fmt.Errorf("append media: %w", err)
		}
	}

	if len(record.Reviews) > 0 {
		reviews := make([]catalog.Review, 0, len(record.Reviews))
		for _, rv := range record.Reviews {
			rv.RestaurantID = restaurantID
			rv.Source = source
			reviews = append(reviews, rv)
		}
		if err := ix.store.ReplaceReviews(ctx, restaurantID, source, reviews); err != nil {
			return fmt.Errorf("replace reviews: %w", err)
		}
	}
	return nil
}

// backfillPhotos asks photo-only sources for media when a freshly created
// restaurant has none of its own. Photo source failures are logged and
// ignored.
func (ix *Indexer) backfillPhotos(ctx context.Context, record catalog.BusinessRecord, restaurant catalog.Restaurant) {
	if len(record.Photos) > 0 {
		return
	}
	for _, ps := range ix.photoSources {
		if !ps.Configured() {
			continue
		}
		urls, err := ps.PhotosByName(ctx, restaurant.Name, restaurant.Location)
		if err != nil {
			ix.logger.Warn("photo source lookup failed",
				zap.String("source", ps.Source()),
				zap.String("restaurant_id", restaurant.ID),
				zap.Error(err),
			)
			continue
		}
		if len(urls) == 0 {
			continue
		}
		media := make([]catalog.Media, 0, len(urls))
		for _, url := range urls {
			media = append(media, catalog.Media{
				RestaurantID: restaurant.ID,
				Source:       ps.Source(),
				Type:         catalog.MediaTypePhoto,
				URL:          url,
			})
		}
		if err := ix.store.ReplaceMedia(ctx, restaurant.ID, ps.Source(), catalog.MediaTypePhoto, media); err != nil {
			ix.logger.Warn("photo backfill persist failed",
				zap.String("source", ps.Source()),
				zap.String("restaurant_id", restaurant.ID),
				zap.Error(err),
			)
		}
		return
	}
}
