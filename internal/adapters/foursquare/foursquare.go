// Package foursquare implements the Foursquare Places v3 source adapter.
package foursquare

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/plateindex/plateindex/internal/adapters"
	"github.com/plateindex/plateindex/internal/catalog"
)

// Source is the stable source name used in external id and rating rows.
const Source = "foursquare"

// The Places API caps page size at 50.
const maxPageSize = 50

// Config holds the adapter's credentials and tuning.
type Config struct {
	APIKey   string
	BaseURL  string
	PageSize int
}

// Adapter implements catalog.Adapter against the Foursquare Places API.
type Adapter struct {
	client   *adapters.Client
	apiKey   string
	baseURL  string
	pageSize int
}

// New constructs an Adapter over the shared transport client.
func New(cfg Config, client *adapters.Client) *Adapter {
	pageSize := cfg.PageSize
	if pageSize <= 0 || pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return &Adapter{
		client:   client,
		apiKey:   cfg.APIKey,
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		pageSize: pageSize,
	}
}

// Source returns the source name.
func (a *Adapter) Source() string { return Source }

// Configured reports whether an API key is present.
func (a *Adapter) Configured() bool { return a.apiKey != "" }

// SearchAll enumerates places for a location query. Foursquare paginates
// with an opaque cursor; enumeration stops at the first short page or when
// no cursor comes back.
func (a *Adapter) SearchAll(_ context.Context, query catalog.SearchQuery) (catalog.BusinessIterator, error) {
	limit := query.Limit
	if limit <= 0 {
		limit = maxPageSize
	}
	return &iterator{adapter: a, query: query, limit: limit}, nil
}

// GetBusiness fetches one place's detail and its photos.
func (a *Adapter) GetBusiness(ctx context.Context, externalID string) (catalog.BusinessRecord, error) {
	var detail place
	endpoint := fmt.Sprintf("%s/places/%s", a.baseURL, url.PathEscape(externalID))
	if err := a.client.GetJSON(ctx, endpoint, a.header(), &detail); err != nil {
		return catalog.BusinessRecord{}, err
	}
	record := detail.toRecord()

	var photos []photo
	endpoint = fmt.Sprintf("%s/places/%s/photos", a.baseURL, url.PathEscape(externalID))
	if err := a.client.GetJSON(ctx, endpoint, a.header(), &photos); err != nil {
		return catalog.BusinessRecord{}, err
	}
	for _, p := range photos {
		if u := p.url(); u != "" {
			record.Photos = append(record.Photos, u)
		}
	}
	return record, nil
}

// SearchByName looks a place up by name, used in reverse lookup.
func (a *Adapter) SearchByName(ctx context.Context, name, location string, limit int) ([]catalog.BusinessRecord, error) {
	if limit <= 0 {
		limit = 3
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	params := url.Values{}
	params.Set("query", name)
	if location != "" {
		params.Set("near", location)
	}
	params.Set("limit", strconv.Itoa(limit))

	var page searchResponse
	endpoint := a.baseURL + "/places/search?" + params.Encode()
	if err := a.client.GetJSON(ctx, endpoint, a.header(), &page); err != nil {
		return nil, err
	}
	out := make([]catalog.BusinessRecord, 0, len(page.Results))
	for _, p := range page.Results {
		out = append(out, p.toRecord())
	}
	return out, nil
}

func (a *Adapter) header() http.Header {
	h := http.Header{}
	h.Set("Authorization", a.apiKey)
	return h
}

func (a *Adapter) searchPage(ctx context.Context, query catalog.SearchQuery, cursor string, count int) (searchResponse, error) {
	params := url.Values{}
	params.Set("near", query.Location)
	if len(query.Categories) > 0 {
		params.Set("query", strings.Join(query.Categories, " "))
	} else {
		params.Set("query", "restaurant")
	}
	params.Set("limit", strconv.Itoa(count))
	if cursor != "" {
		params.Set("cursor", cursor)
	}

	var page searchResponse
	endpoint := a.baseURL + "/places/search?" + params.Encode()
	if err := a.client.GetJSON(ctx, endpoint, a.header(), &page); err != nil {
		return searchResponse{}, err
	}
	return page, nil
}

type iterator struct {
	adapter *Adapter
	query   catalog.SearchQuery
	limit   int

	buffer  []place
	cursor  string
	done    int
	drained bool
	current catalog.BusinessRecord
	err     error
}

func (it *iterator) Next(ctx context.Context) bool {
	if it.err != nil || it.done >= it.limit {
		return false
	}
	if len(it.buffer) == 0 {
		if it.drained || !it.fetch(ctx) {
			return false
		}
	}
	it.current = it.buffer[0].toRecord()
	it.buffer = it.buffer[1:]
	it.done++
	return true
}

func (it *iterator) fetch(ctx context.Context) bool {
	count := it.adapter.pageSize
	if remaining := it.limit - it.done; remaining < count {
		count = remaining
	}
	page, err := it.adapter.searchPage(ctx, it.query, it.cursor, count)
	if err != nil {
		it.err = err
		return false
	}
	it.buffer = page.Results
	it.cursor = page.Cursor
	if len(page.Results) < count || page.Cursor == "" {
		it.drained = true
	}
	return len(it.buffer) > 0
}

func (it *iterator) Business() catalog.BusinessRecord { return it.current }

// Progress is approximate: Foursquare doesn't report a total, so the
// requested limit stands in for it until the feed drains early.
func (it *iterator) Progress() catalog.SearchProgress {
	total := it.limit
	if it.drained && len(it.buffer) == 0 {
		total = it.done
	}
	pct := 0.0
	if total > 0 {
		pct = float64(it.done) / float64(total) * 100
	}
	return catalog.SearchProgress{Done: it.done, Total: total, Percent: pct}
}

func (it *iterator) Err() error { return it.err }

type searchResponse struct {
	Results []place `json:"results"`
	Cursor  string  `json:"cursor"`
}

type place struct {
	FsqID    string `json:"fsq_id"`
	Name     string `json:"name"`
	Geocodes struct {
		Main struct {
			Latitude  *float64 `json:"latitude"`
			Longitude *float64 `json:"longitude"`
		} `json:"main"`
	} `json:"geocodes"`
	Location struct {
		FormattedAddress string `json:"formatted_address"`
	} `json:"location"`
	Tel        string  `json:"tel"`
	Rating     float64 `json:"rating"`
	Stats      struct {
		TotalRatings int `json:"total_ratings"`
	} `json:"stats"`
	Categories []struct {
		Name string `json:"name"`
	} `json:"categories"`
}

type photo struct {
	Prefix string `json:"prefix"`
	Suffix string `json:"suffix"`
}

func (p photo) url() string {
	if p.Prefix == "" || p.Suffix == "" {
		return ""
	}
	return p.Prefix + "original" + p.Suffix
}

func (p place) toRecord() catalog.BusinessRecord {
	record := catalog.BusinessRecord{
		ExternalID:  p.FsqID,
		Name:        p.Name,
		Address:     p.Location.FormattedAddress,
		Phone:       p.Tel,
		Rating:      p.Rating,
		ReviewCount: p.Stats.TotalRatings,
	}
	if p.Geocodes.Main.Latitude != nil && p.Geocodes.Main.Longitude != nil {
		record.Latitude = p.Geocodes.Main.Latitude
		record.Longitude = p.Geocodes.Main.Longitude
	}
	for _, c := range p.Categories {
		record.Categories = append(record.Categories, c.Name)
	}
	return record
}
