// Package yelp implements the Yelp Fusion v3 source adapter.
package yelp

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
const Source = "yelp"

// Yelp caps search pagination at 50 results per page and 1000 total.
const (
	maxPageSize    = 50
	maxSearchDepth = 1000
)

// Config holds the adapter's credentials and tuning.
type Config struct {
	APIKey   string
	BaseURL  string
	PageSize int
}

// Adapter implements catalog.Adapter against the Yelp Fusion API.
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

// SearchAll enumerates businesses for a location query, one page at a time.
func (a *Adapter) SearchAll(_ context.Context, query catalog.SearchQuery) (catalog.BusinessIterator, error) {
	limit := query.Limit
	if limit <= 0 || limit > maxSearchDepth {
		limit = maxSearchDepth
	}
	return &iterator{adapter: a, query: query, limit: limit, total: -1}, nil
}

// GetBusiness fetches one business's full detail, including photos.
func (a *Adapter) GetBusiness(ctx context.Context, externalID string) (catalog.BusinessRecord, error) {
	var detail business
	endpoint := fmt.Sprintf("%s/businesses/%s", a.baseURL, url.PathEscape(externalID))
	if err := a.client.GetJSON(ctx, endpoint, a.header(), &detail); err != nil {
		return catalog.BusinessRecord{}, err
	}
	return detail.toRecord(), nil
}

// SearchByName looks a business up by name, used in reverse lookup.
func (a *Adapter) SearchByName(ctx context.Context, name, location string, limit int) ([]catalog.BusinessRecord, error) {
	if limit <= 0 {
		limit = 3
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	params := url.Values{}
	params.Set("term", name)
	if location != "" {
		params.Set("location", location)
	}
	params.Set("limit", strconv.Itoa(limit))

	var page searchResponse
	endpoint := a.baseURL + "/businesses/search?" + params.Encode()
	if err := a.client.GetJSON(ctx, endpoint, a.header(), &page); err != nil {
		return nil, err
	}
	out := make([]catalog.BusinessRecord, 0, len(page.Businesses))
	for _, b := range page.Businesses {
		out = append(out, b.toRecord())
	}
	return out, nil
}

func (a *Adapter) header() http.Header {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+a.apiKey)
	return h
}

func (a *Adapter) searchPage(ctx context.Context, query catalog.SearchQuery, offset, count int) (searchResponse, error) {
	params := url.Values{}
	params.Set("location", query.Location)
	if len(query.Categories) > 0 {
		params.Set("categories", strings.Join(query.Categories, ","))
	}
	params.Set("limit", strconv.Itoa(count))
	params.Set("offset", strconv.Itoa(offset))
	params.Set("sort_by", "best_match")

	var page searchResponse
	endpoint := a.baseURL + "/businesses/search?" + params.Encode()
	if err := a.client.GetJSON(ctx, endpoint, a.header(), &page); err != nil {
		return searchResponse{}, err
	}
	return page, nil
}

// iterator walks the paginated search lazily; it is finite and not
// restartable.
type iterator struct {
	adapter *Adapter
	query   catalog.SearchQuery
	limit   int

	buffer  []business
	offset  int
	done    int
	total   int // -1 until the first page reports it
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
	page, err := it.adapter.searchPage(ctx, it.query, it.offset, count)
	if err != nil {
		it.err = err
		return false
	}
	it.total = page.Total
	it.offset += len(page.Businesses)
	it.buffer = page.Businesses
	if len(page.Businesses) < count || it.offset >= page.Total {
		it.drained = true
	}
	return len(it.buffer) > 0
}

func (it *iterator) Business() catalog.BusinessRecord { return it.current }

func (it *iterator) Progress() catalog.SearchProgress {
	total := it.total
	if total < 0 {
		total = 0
	}
	if it.limit < total {
		total = it.limit
	}
	pct := 0.0
	if total > 0 {
		pct = float64(it.done) / float64(total) * 100
	}
	return catalog.SearchProgress{Done: it.done, Total: total, Percent: pct}
}

func (it *iterator) Err() error { return it.err }

type searchResponse struct {
	Total      int        `json:"total"`
	Businesses []business `json:"businesses"`
}

type business struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Coordinates struct {
		Latitude  *float64 `json:"latitude"`
		Longitude *float64 `json:"longitude"`
	} `json:"coordinates"`
	Location struct {
		DisplayAddress []string `json:"display_address"`
	} `json:"location"`
	DisplayPhone string  `json:"display_phone"`
	Phone        string  `json:"phone"`
	Rating       float64 `json:"rating"`
	ReviewCount  int     `json:"review_count"`
	Categories   []struct {
		Title string `json:"title"`
	} `json:"categories"`
	ImageURL string   `json:"image_url"`
	Photos   []string `json:"photos"`
}

func (b business) toRecord() catalog.BusinessRecord {
	record := catalog.BusinessRecord{
		ExternalID:  b.ID,
		Name:        b.Name,
		Address:     strings.Join(b.Location.DisplayAddress, ", "),
		Phone:       b.Phone,
		Rating:      b.Rating,
		ReviewCount: b.ReviewCount,
	}
	if record.Phone == "" {
		record.Phone = b.DisplayPhone
	}
	if b.Coordinates.Latitude != nil && b.Coordinates.Longitude != nil {
		record.Latitude = b.Coordinates.Latitude
		record.Longitude = b.Coordinates.Longitude
	}
	for _, c := range b.Categories {
		record.Categories = append(record.Categories, c.Title)
	}
	if len(b.Photos) > 0 {
		record.Photos = b.Photos
	} else if b.ImageURL != "" {
		record.Photos = []string{b.ImageURL}
	}
	return record
}
