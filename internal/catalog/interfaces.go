package catalog

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by stores when the requested row does not exist.
var ErrNotFound = errors.New("not found")

// Adapter is the capability set the indexer consumes per source. All methods
// may fail with a transport, auth, or quota error.
type Adapter interface {
	// Source returns the stable source name, e.g. "yelp".
	Source() string
	// Configured reports whether the adapter has credentials to operate.
	Configured() bool
	// SearchAll enumerates businesses for a geographic query. The returned
	// iterator is lazy, finite, and not restartable.
	SearchAll(ctx context.Context, query SearchQuery) (BusinessIterator, error)
	// GetBusiness fetches one business's full detail by external id.
	GetBusiness(ctx context.Context, externalID string) (BusinessRecord, error)
	// SearchByName looks a business up by name, used in reverse lookup.
	SearchByName(ctx context.Context, name, location string, limit int) ([]BusinessRecord, error)
}

// BusinessIterator walks a paginated enumeration one record at a time,
// following the rows-style iteration idiom.
type BusinessIterator interface {
	// Next advances the iterator. It returns false when the enumeration is
	// exhausted or an error occurred; check Err afterwards.
	Next(ctx context.Context) bool
	// Business returns the current record. Valid only after Next returns true.
	Business() BusinessRecord
	// Progress returns running count, estimated total, and percentage.
	Progress() SearchProgress
	// Err returns the error that stopped iteration, if any.
	Err() error
}

// PhotoSource is the reduced capability interface for sources that can only
// contribute media, not full business data.
type PhotoSource interface {
	Source() string
	Configured() bool
	// PhotosByName returns photo URLs for a named place, possibly empty.
	PhotosByName(ctx context.Context, name, location string) ([]string, error)
}

// RestaurantStore is the persistence contract for the canonical model.
// Each operation is assumed transactional.
type RestaurantStore interface {
	CreateRestaurant(ctx context.Context, r Restaurant) (Restaurant, error)
	UpdateRestaurant(ctx context.Context, r Restaurant) error
	GetRestaurant(ctx context.Context, id string) (Restaurant, error)
	// FindByExternalID resolves a (source, external id) pair to its canonical
	// restaurant, or ErrNotFound.
	FindByExternalID(ctx context.Context, source, externalID string) (Restaurant, error)
	// FindCandidates returns restaurants whose coordinates fall within
	// +-delta degrees of (lat, lng), nearest first.
	FindCandidates(ctx context.Context, lat, lng, delta float64) ([]Restaurant, error)

	// InsertExternalID inserts the link if absent; it never updates.
	InsertExternalID(ctx context.Context, e ExternalID) error
	ListExternalIDs(ctx context.Context, restaurantID string) ([]ExternalID, error)

	// UpsertRating replaces the (restaurant, source) rating wholesale.
	UpsertRating(ctx context.Context, r Rating) error

	// ReplaceReviews swaps one source's reviews for a restaurant.
	ReplaceReviews(ctx context.Context, restaurantID, source string, reviews []Review) error

	// ReplaceMedia swaps one source's media of the given type.
	ReplaceMedia(ctx context.Context, restaurantID, source string, mediaType MediaType, media []Media) error
	// AppendMedia adds media rows, deduplicated by URL per restaurant.
	AppendMedia(ctx context.Context, restaurantID string, media []Media) error

	FindOrCreateCategory(ctx context.Context, name string) (Category, error)
	// LinkCategory attaches a category to a restaurant; idempotent.
	LinkCategory(ctx context.Context, restaurantID, categoryID string) error
}

// RateStore persists monthly request counters.
type RateStore interface {
	// GetCounter returns the counter for a source, or ErrNotFound.
	GetCounter(ctx context.Context, source string) (RateCounter, error)
	SaveCounter(ctx context.Context, c RateCounter) error
}

// Publisher pushes run-completion events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces entity and job IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
