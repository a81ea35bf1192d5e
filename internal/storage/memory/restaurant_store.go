// Package memory provides in-memory store implementations for development
// and testing.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/plateindex/plateindex/internal/catalog"
)

// RestaurantStore implements catalog.RestaurantStore with mutex-guarded maps.
type RestaurantStore struct {
	mu           sync.RWMutex
	restaurants  map[string]catalog.Restaurant
	externalIDs  map[string]catalog.ExternalID   // (source, value) -> link
	byRestaurant map[string][]catalog.ExternalID // restaurant id -> links
	ratings      map[string]catalog.Rating       // (restaurant id, source) -> rating
	reviews      map[string][]catalog.Review     // restaurant id -> reviews
	media        map[string][]catalog.Media      // restaurant id -> media
	categories   map[string]catalog.Category     // name -> category
	links        map[string]map[string]struct{}  // restaurant id -> category id set
	nextCategory int
}

// NewRestaurantStore constructs an empty store.
func NewRestaurantStore() *RestaurantStore {
	return &RestaurantStore{
		restaurants:  make(map[string]catalog.Restaurant),
		externalIDs:  make(map[string]catalog.ExternalID),
		byRestaurant: make(map[string][]catalog.ExternalID),
		ratings:      make(map[string]catalog.Rating),
		reviews:      make(map[string][]catalog.Review),
		media:        make(map[string][]catalog.Media),
		categories:   make(map[string]catalog.Category),
		links:        make(map[string]map[string]struct{}),
	}
}

func externalKey(source, value string) string { return source + "\x00" + value }
func ratingKey(restaurantID, source string) string {
	return restaurantID + "\x00" + source
}

// CreateRestaurant stores a new canonical row.
func (s *RestaurantStore) CreateRestaurant(_ context.Context, r catalog.Restaurant) (catalog.Restaurant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.restaurants[r.ID]; exists {
		return catalog.Restaurant{}, fmt.Errorf("restaurant %s already exists", r.ID)
	}
	s.restaurants[r.ID] = r
	return r, nil
}

// UpdateRestaurant overwrites an existing canonical row.
func (s *RestaurantStore) UpdateRestaurant(_ context.Context, r catalog.Restaurant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.restaurants[r.ID]; !exists {
		return catalog.ErrNotFound
	}
	s.restaurants[r.ID] = r
	return nil
}

// GetRestaurant fetches a restaurant by id.
func (s *RestaurantStore) GetRestaurant(_ context.Context, id string) (catalog.Restaurant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.restaurants[id]
	if !ok {
		return catalog.Restaurant{}, catalog.ErrNotFound
	}
	return r, nil
}

// FindByExternalID resolves a (source, external id) pair to its restaurant.
func (s *RestaurantStore) FindByExternalID(_ context.Context, source, externalID string) (catalog.Restaurant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	link, ok := s.externalIDs[externalKey(source, externalID)]
	if !ok {
		return catalog.Restaurant{}, catalog.ErrNotFound
	}
	r, ok := s.restaurants[link.RestaurantID]
	if !ok {
		return catalog.Restaurant{}, catalog.ErrNotFound
	}
	return r, nil
}

// FindCandidates returns restaurants within +-delta degrees, nearest first.
func (s *RestaurantStore) FindCandidates(_ context.Context, lat, lng, delta float64) ([]catalog.Restaurant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []catalog.Restaurant
	for _, r := range s.restaurants {
		if !r.HasCoordinates() {
			continue
		}
		dLat := *r.Latitude - lat
		dLng := *r.Longitude - lng
		if dLat >= -delta && dLat <= delta && dLng >= -delta && dLng <= delta {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		di := sq(*out[i].Latitude-lat) + sq(*out[i].Longitude-lng)
		dj := sq(*out[j].Latitude-lat) + sq(*out[j].Longitude-lng)
		if di != dj {
			return di < dj
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// InsertExternalID inserts the link if absent. A restaurant is never linked
// twice to the same source.
func (s *RestaurantStore) InsertExternalID(_ context.Context, e catalog.ExternalID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.externalIDs[externalKey(e.Source, e.Value)]; exists {
		return nil
	}
	for _, existing := range s.byRestaurant[e.RestaurantID] {
		if existing.Source == e.Source {
			return nil
		}
	}
	s.externalIDs[externalKey(e.Source, e.Value)] = e
	s.byRestaurant[e.RestaurantID] = append(s.byRestaurant[e.RestaurantID], e)
	return nil
}

// ListExternalIDs returns all source links for a restaurant.
func (s *RestaurantStore) ListExternalIDs(_ context.Context, restaurantID string) ([]catalog.ExternalID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	links := s.byRestaurant[restaurantID]
	out := make([]catalog.ExternalID, len(links))
	copy(out, links)
	return out, nil
}

// UpsertRating replaces the (restaurant, source) rating wholesale.
func (s *RestaurantStore) UpsertRating(_ context.Context, r catalog.Rating) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ratings[ratingKey(r.RestaurantID, r.Source)] = r
	return nil
}

// ReplaceReviews swaps one source's reviews for a restaurant.
func (s *RestaurantStore) ReplaceReviews(_ context.Context, restaurantID, source string, reviews []catalog.Review) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.reviews[restaurantID][:0]
	for _, rv := range s.reviews[restaurantID] {
		if rv.Source != source {
			kept = append(kept, rv)
		}
	}
	s.reviews[restaurantID] = append(kept, reviews...)
	return nil
}

// ReplaceMedia swaps one source's media of the given type.
func (s *RestaurantStore) ReplaceMedia(
	_ context.Context,
	restaurantID, source string,
	mediaType catalog.MediaType,
	media []catalog.Media,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.media[restaurantID][:0]
	for _, m := range s.media[restaurantID] {
		if m.Source != source || m.Type != mediaType {
			kept = append(kept, m)
		}
	}
	s.media[restaurantID] = append(kept, media...)
	return nil
}

// AppendMedia adds media rows, deduplicated by URL per restaurant.
func (s *RestaurantStore) AppendMedia(_ context.Context, restaurantID string, media []catalog.Media) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := make(map[string]struct{})
	for _, m := range s.media[restaurantID] {
		seen[m.URL] = struct{}{}
	}
	for _, m := range media {
		if _, dup := seen[m.URL]; dup {
			continue
		}
		seen[m.URL] = struct{}{}
		s.media[restaurantID] = append(s.media[restaurantID], m)
	}
	return nil
}

// FindOrCreateCategory returns the category with the given name, creating it
// on first use.
func (s *RestaurantStore) FindOrCreateCategory(_ context.Context, name string) (catalog.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.categories[name]; ok {
		return c, nil
	}
	s.nextCategory++
	c := catalog.Category{ID: "cat-" + strconv.Itoa(s.nextCategory), Name: name}
	s.categories[name] = c
	return c, nil
}

// LinkCategory attaches a category to a restaurant; idempotent.
func (s *RestaurantStore) LinkCategory(_ context.Context, restaurantID, categoryID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.links[restaurantID]
	if !ok {
		set = make(map[string]struct{})
		s.links[restaurantID] = set
	}
	set[categoryID] = struct{}{}
	return nil
}

// RestaurantCount reports the number of canonical rows, for tests and the
// readiness probe.
func (s *RestaurantStore) RestaurantCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.restaurants)
}

// Ratings returns all rating snapshots for a restaurant, for tests.
func (s *RestaurantStore) Ratings(restaurantID string) []catalog.Rating {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []catalog.Rating
	for _, r := range s.ratings {
		if r.RestaurantID == restaurantID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Source < out[j].Source })
	return out
}

// Media returns all media rows for a restaurant, for tests.
func (s *RestaurantStore) Media(restaurantID string) []catalog.Media {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]catalog.Media, len(s.media[restaurantID]))
	copy(out, s.media[restaurantID])
	return out
}

// Reviews returns all reviews for a restaurant, for tests.
func (s *RestaurantStore) Reviews(restaurantID string) []catalog.Review {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]catalog.Review, len(s.reviews[restaurantID]))
	copy(out, s.reviews[restaurantID])
	return out
}

func sq(f float64) float64 { return f * f }
