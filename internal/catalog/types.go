package catalog

import (
	"time"
)

// Restaurant is the canonical entity: one row per physical place regardless
// of how many sources describe it. Latitude and Longitude are either both
// set or both nil.
type Restaurant struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Address   string     `json:"address"`
	Latitude  *float64   `json:"latitude,omitempty"`
	Longitude *float64   `json:"longitude,omitempty"`
	Phone     string     `json:"phone"`
	Location  string     `json:"location"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// HasCoordinates reports whether both latitude and longitude are present.
func (r Restaurant) HasCoordinates() bool {
	return r.Latitude != nil && r.Longitude != nil
}

// ExternalID links a canonical restaurant to its identifier at one source.
// At most one row per (source, value), and at most one row per source within
// a single restaurant.
type ExternalID struct {
	RestaurantID string `json:"restaurant_id"`
	Source       string `json:"source"`
	Value        string `json:"value"`
}

// Rating is one source's score snapshot for a restaurant. It is overwritten
// wholesale on each re-index from that source.
type Rating struct {
	RestaurantID string    `json:"restaurant_id"`
	Source       string    `json:"source"`
	Score        float64   `json:"score"`
	ReviewCount  int       `json:"review_count"`
	FetchedAt    time.Time `json:"fetched_at"`
}

// Review is a single user review attributed to a source.
type Review struct {
	RestaurantID string    `json:"restaurant_id"`
	Source       string    `json:"source"`
	Author       string    `json:"author"`
	Score        float64   `json:"score"`
	Text         string    `json:"text"`
	PostedAt     time.Time `json:"posted_at"`
}

// MediaType discriminates media rows.
type MediaType string

// Media type values persisted in the store.
const (
	MediaTypePhoto MediaType = "photo"
	MediaTypeVideo MediaType = "video"
)

// Media is a photo or video URL attributed to a source.
type Media struct {
	RestaurantID string    `json:"restaurant_id"`
	Source       string    `json:"source"`
	Type         MediaType `json:"type"`
	URL          string    `json:"url"`
}

// Category is a cuisine/venue tag shared across restaurants.
type Category struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// BusinessRecord is the normalized shape a source adapter yields for one
// business. Latitude and Longitude follow the same both-or-neither rule as
// Restaurant.
type BusinessRecord struct {
	ExternalID  string
	Name        string
	Address     string
	Latitude    *float64
	Longitude   *float64
	Phone       string
	Rating      float64
	ReviewCount int
	Categories  []string
	Photos      []string
	Reviews     []Review
}

// HasCoordinates reports whether both latitude and longitude are present.
func (b BusinessRecord) HasCoordinates() bool {
	return b.Latitude != nil && b.Longitude != nil
}

// SearchProgress carries running enumeration state for observability.
type SearchProgress struct {
	Done    int     `json:"done"`
	Total   int     `json:"total"`
	Percent float64 `json:"percent"`
}

// SearchQuery describes one indexing request.
type SearchQuery struct {
	Location   string   `json:"location"`
	Categories []string `json:"categories,omitempty"`
	Limit      int      `json:"limit"`
}

// Outcome classifies how one business record was resolved against storage.
type Outcome string

// Outcome values returned by the indexer.
const (
	OutcomeCreated Outcome = "created"
	OutcomeUpdated Outcome = "updated"
	OutcomeMerged  Outcome = "merged"
)

// RunStats summarizes one indexing run. Total counts businesses processed
// across all adapters, not distinct restaurants. AdapterErrors maps a source
// name to the error that aborted its forward phase, if any.
type RunStats struct {
	Total         int               `json:"total"`
	Created       int               `json:"created"`
	Updated       int               `json:"updated"`
	Merged        int               `json:"merged"`
	AdapterErrors map[string]string `json:"adapter_errors,omitempty"`
}

// Add increments the counter matching the outcome.
func (s *RunStats) Add(o Outcome) {
	s.Total++
	switch o {
	case OutcomeCreated:
		s.Created++
	case OutcomeUpdated:
		s.Updated++
	case OutcomeMerged:
		s.Merged++
	}
}

// RateCounter is the persisted monthly request counter for one source.
// ResetAt marks the start of the current budget window; the window ends one
// calendar month later.
type RateCounter struct {
	Source  string    `json:"source"`
	Count   int       `json:"count"`
	ResetAt time.Time `json:"reset_at"`
}
