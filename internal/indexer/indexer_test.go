package indexer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/plateindex/plateindex/internal/catalog"
	"github.com/plateindex/plateindex/internal/storage/memory"
)

func ptr(f float64) *float64 { return &f }

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

type seqIDGen struct {
	mu sync.Mutex
	n  int
}

func (g *seqIDGen) NewID() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("rest-%d", g.n), nil
}

// fakeIterator yields a fixed slice, honoring the requested limit, and can
// fail mid-stream.
type fakeIterator struct {
	records   []catalog.BusinessRecord
	limit     int
	failAfter int // fail once this many records were yielded; 0 disables
	pos       int
	current   catalog.BusinessRecord
	err       error
}

func (it *fakeIterator) Next(_ context.Context) bool {
	if it.err != nil {
		return false
	}
	if it.failAfter > 0 && it.pos >= it.failAfter {
		it.err = errors.New("quota exceeded")
		return false
	}
	if it.pos >= len(it.records) || it.pos >= it.limit {
		return false
	}
	it.current = it.records[it.pos]
	it.pos++
	return true
}

func (it *fakeIterator) Business() catalog.BusinessRecord { return it.current }

func (it *fakeIterator) Progress() catalog.SearchProgress {
	total := len(it.records)
	pct := 0.0
	if total > 0 {
		pct = float64(it.pos) / float64(total) * 100
	}
	return catalog.SearchProgress{Done: it.pos, Total: total, Percent: pct}
}

func (it *fakeIterator) Err() error { return it.err }

type fakeAdapter struct {
	source     string
	configured bool

	records   []catalog.BusinessRecord
	searchErr error
	failAfter int

	details   map[string]catalog.BusinessRecord
	detailErr map[string]error

	nameResults map[string][]catalog.BusinessRecord
	nameErr     error

	mu          sync.Mutex
	gotLimits   []int
	nameQueries []string
}

func (a *fakeAdapter) Source() string   { return a.source }
func (a *fakeAdapter) Configured() bool { return a.configured }

func (a *fakeAdapter) SearchAll(_ context.Context, query catalog.SearchQuery) (catalog.BusinessIterator, error) {
	a.mu.Lock()
	a.gotLimits = append(a.gotLimits, query.Limit)
	a.mu.Unlock()
	if a.searchErr != nil {
		return nil, a.searchErr
	}
	return &fakeIterator{records: a.records, limit: query.Limit, failAfter: a.failAfter}, nil
}

func (a *fakeAdapter) GetBusiness(_ context.Context, externalID string) (catalog.BusinessRecord, error) {
	if err, ok := a.detailErr[externalID]; ok {
		return catalog.BusinessRecord{}, err
	}
	if detail, ok := a.details[externalID]; ok {
		return detail, nil
	}
	return catalog.BusinessRecord{}, errors.New("business not found")
}

func (a *fakeAdapter) SearchByName(_ context.Context, name, _ string, _ int) ([]catalog.BusinessRecord, error) {
	a.mu.Lock()
	a.nameQueries = append(a.nameQueries, name)
	a.mu.Unlock()
	if a.nameErr != nil {
		return nil, a.nameErr
	}
	return a.nameResults[name], nil
}

func business(id, name string, lat, lng float64, phone string) catalog.BusinessRecord {
	return catalog.BusinessRecord{
		ExternalID:  id,
		Name:        name,
		Address:     "107 Dunlop St E",
		Latitude:    ptr(lat),
		Longitude:   ptr(lng),
		Phone:       phone,
		Rating:      4.5,
		ReviewCount: 120,
		Categories:  []string{"brewery"},
		Photos:      []string{"http://img/" + id + ".jpg"},
	}
}

func newTestIndexer(store *memory.RestaurantStore, adapters ...catalog.Adapter) *Indexer {
	return New(
		adapters,
		nil,
		store,
		&fakeClock{now: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)},
		&seqIDGen{},
		Config{},
		zap.NewNop(),
	)
}

func TestIndex_NoConfiguredAdapters(t *testing.T) {
	t.Parallel()

	ix := newTestIndexer(memory.NewRestaurantStore(), &fakeAdapter{source: "yelp", configured: false})
	_, err := ix.Index(context.Background(), catalog.SearchQuery{Location: "Barrie, ON", Limit: 10})
	require.ErrorIs(t, err, ErrNoAdapters)
}

func TestIndex_CreatesThenUpdatesIdempotently(t *testing.T) {
	t.Parallel()

	store := memory.NewRestaurantStore()
	adapter := &fakeAdapter{
		source:     "yelp",
		configured: true,
		records: []catalog.BusinessRecord{
			business("y-1", "Flying Monkeys Brewery", 44.3901, -79.6871, "705-721-8989"),
			business("y-2", "Pizza Palace", 44.3950, -79.6900, "705-555-2222"),
		},
	}
	ix := newTestIndexer(store, adapter)
	query := catalog.SearchQuery{Location: "Barrie, ON", Limit: 50}

	stats, err := ix.Index(context.Background(), query)
	require.NoError(t, err)
	require.Equal(t, 2, stats.Created)
	require.Equal(t, 2, stats.Total)
	require.Equal(t, 2, store.RestaurantCount())

	// Unchanged upstream data: everything resolves as an update.
	stats, err = ix.Index(context.Background(), query)
	require.NoError(t, err)
	require.Equal(t, 0, stats.Created)
	require.Equal(t, 2, stats.Updated)
	require.Equal(t, 2, store.RestaurantCount())
}

func TestIndex_MergesSameRestaurantAcrossSources(t *testing.T) {
	t.Parallel()

	store := memory.NewRestaurantStore()
	yelp := &fakeAdapter{
		source:     "yelp",
		configured: true,
		records: []catalog.BusinessRecord{
			business("y-1", "Flying Monkeys Brewery", 44.39010, -79.68710, "705-721-8989"),
		},
	}
	fsq := &fakeAdapter{
		source:     "foursquare",
		configured: true,
		records: []catalog.BusinessRecord{
			// Same place: coords +-0.00005, same normalized phone, suffix-abbreviated address.
			business("f-9", "Flying Monkeys Brewery Inc.", 44.39015, -79.68705, "+1 (705) 721-8989"),
		},
	}
	ix := newTestIndexer(store, yelp, fsq)

	stats, err := ix.Index(context.Background(), catalog.SearchQuery{Location: "Barrie, ON", Limit: 10})
	require.NoError(t, err)
	require.Equal(t, 1, stats.Created)
	require.Equal(t, 1, stats.Merged)
	require.Equal(t, 1, store.RestaurantCount())

	rest, err := store.FindByExternalID(context.Background(), "yelp", "y-1")
	require.NoError(t, err)
	ids, err := store.ListExternalIDs(context.Background(), rest.ID)
	require.NoError(t, err)
	require.Len(t, ids, 2)
	require.Len(t, store.Ratings(rest.ID), 2)
}

func TestIndex_DoesNotMergeDistantSameName(t *testing.T) {
	t.Parallel()

	store := memory.NewRestaurantStore()
	yelp := &fakeAdapter{
		source:     "yelp",
		configured: true,
		records: []catalog.BusinessRecord{
			business("y-1", "Pizza Palace", 44.39010, -79.68710, "705-721-8989"),
		},
	}
	distant := business("f-9", "Pizza Palace", 44.40500, -79.68710, "705-555-0000")
	distant.Address = "2000 Commerce Park Drive"
	fsq := &fakeAdapter{
		source:     "foursquare",
		configured: true,
		// Same name, >1km away, different address and phone.
		records: []catalog.BusinessRecord{distant},
	}
	ix := newTestIndexer(store, yelp, fsq)

	stats, err := ix.Index(context.Background(), catalog.SearchQuery{Location: "Barrie, ON", Limit: 10})
	require.NoError(t, err)
	require.Equal(t, 2, stats.Created)
	require.Equal(t, 0, stats.Merged)
	require.Equal(t, 2, store.RestaurantCount())
}

func TestIndex_LimitIsPerAdapter(t *testing.T) {
	t.Parallel()

	makeRecords := func(prefix string, n int, baseLat float64) []catalog.BusinessRecord {
		out := make([]catalog.BusinessRecord, 0, n)
		for i := 0; i < n; i++ {
			out = append(out, business(
				fmt.Sprintf("%s-%d", prefix, i),
				fmt.Sprintf("Spot %s %d", prefix, i),
				baseLat+float64(i)*0.01,
				-79.0+float64(i)*0.01,
				fmt.Sprintf("705-555-%04d", i),
			))
		}
		return out
	}

	store := memory.NewRestaurantStore()
	a := &fakeAdapter{source: "yelp", configured: true, records: makeRecords("a", 60, 40.0)}
	b := &fakeAdapter{source: "foursquare", configured: true, records: makeRecords("b", 50, 50.0)}
	ix := newTestIndexer(store, a, b)

	stats, err := ix.Index(context.Background(), catalog.SearchQuery{Location: "Springfield", Limit: 100})
	require.NoError(t, err)
	require.Equal(t, []int{100}, a.gotLimits)
	require.Equal(t, []int{100}, b.gotLimits)
	require.Equal(t, 110, stats.Total)
}

func TestIndex_DetailFailureFallsBackToSearchResult(t *testing.T) {
	t.Parallel()

	record := business("y-1", "Flying Monkeys Brewery", 44.3901, -79.6871, "705-721-8989")
	record.Photos = nil // forces a detail fetch

	store := memory.NewRestaurantStore()
	adapter := &fakeAdapter{
		source:     "yelp",
		configured: true,
		records:    []catalog.BusinessRecord{record},
		detailErr:  map[string]error{"y-1": errors.New("503 from upstream")},
	}
	ix := newTestIndexer(store, adapter)

	stats, err := ix.Index(context.Background(), catalog.SearchQuery{Location: "Barrie, ON", Limit: 10})
	require.NoError(t, err)
	require.Equal(t, 1, stats.Created)
	require.Empty(t, stats.AdapterErrors)
}

func TestIndex_DetailEnrichesMissingPhotos(t *testing.T) {
	t.Parallel()

	record := business("y-1", "Flying Monkeys Brewery", 44.3901, -79.6871, "705-721-8989")
	record.Photos = nil
	detail := record
	detail.Photos = []string{"http://img/full-1.jpg", "http://img/full-2.jpg"}

	store := memory.NewRestaurantStore()
	adapter := &fakeAdapter{
		source:     "yelp",
		configured: true,
		records:    []catalog.BusinessRecord{record},
		details:    map[string]catalog.BusinessRecord{"y-1": detail},
	}
	ix := newTestIndexer(store, adapter)

	_, err := ix.Index(context.Background(), catalog.SearchQuery{Location: "Barrie, ON", Limit: 10})
	require.NoError(t, err)

	rest, err := store.FindByExternalID(context.Background(), "yelp", "y-1")
	require.NoError(t, err)
	require.Len(t, store.Media(rest.ID), 2)
}

func TestIndex_AdapterErrorDoesNotAbortRun(t *testing.T) {
	t.Parallel()

	store := memory.NewRestaurantStore()
	broken := &fakeAdapter{
		source:     "yelp",
		configured: true,
		searchErr:  errors.New("401 unauthorized"),
	}
	healthy := &fakeAdapter{
		source:     "foursquare",
		configured: true,
		records: []catalog.BusinessRecord{
			business("f-1", "Pizza Palace", 44.3950, -79.6900, "705-555-2222"),
		},
	}
	ix := newTestIndexer(store, broken, healthy)

	stats, err := ix.Index(context.Background(), catalog.SearchQuery{Location: "Barrie, ON", Limit: 10})
	require.NoError(t, err)
	require.Equal(t, 1, stats.Created)
	require.Contains(t, stats.AdapterErrors["yelp"], "401")
}

func TestIndex_MidStreamFailureKeepsEarlierWork(t *testing.T) {
	t.Parallel()

	store := memory.NewRestaurantStore()
	adapter := &fakeAdapter{
		source:     "yelp",
		configured: true,
		records: []catalog.BusinessRecord{
			business("y-1", "Pizza Palace", 44.3950, -79.6900, "705-555-2222"),
			business("y-2", "Sushi Garden", 44.3800, -79.6700, "705-555-3333"),
		},
		failAfter: 1,
	}
	ix := newTestIndexer(store, adapter)

	stats, err := ix.Index(context.Background(), catalog.SearchQuery{Location: "Barrie, ON", Limit: 10})
	require.NoError(t, err)
	require.Equal(t, 1, stats.Created)
	require.Contains(t, stats.AdapterErrors["yelp"], "quota")
}

func TestIndexOne_ResolvesSingleRecord(t *testing.T) {
	t.Parallel()

	store := memory.NewRestaurantStore()
	ix := newTestIndexer(store, &fakeAdapter{source: "yelp", configured: true})

	outcome, err := ix.IndexOne(
		context.Background(),
		business("y-1", "Flying Monkeys Brewery", 44.3901, -79.6871, "705-721-8989"),
		"yelp",
		"Barrie, ON",
	)
	require.NoError(t, err)
	require.Equal(t, catalog.OutcomeCreated, outcome)

	outcome, err = ix.IndexOne(
		context.Background(),
		business("y-1", "Flying Monkeys Brewery", 44.3901, -79.6871, "705-721-8989"),
		"yelp",
		"Barrie, ON",
	)
	require.NoError(t, err)
	require.Equal(t, catalog.OutcomeUpdated, outcome)
}

type fakePhotoSource struct {
	source     string
	configured bool
	photos     map[string][]string
	err        error
}

func (p *fakePhotoSource) Source() string   { return p.source }
func (p *fakePhotoSource) Configured() bool { return p.configured }

func (p *fakePhotoSource) PhotosByName(_ context.Context, name, _ string) ([]string, error) {
	if p.err != nil {
		return nil, p.err
	}
	return p.photos[name], nil
}

func TestCreate_BackfillsPhotosFromPhotoSource(t *testing.T) {
	t.Parallel()

	record := business("y-1", "Flying Monkeys Brewery", 44.3901, -79.6871, "705-721-8989")
	record.Photos = nil

	store := memory.NewRestaurantStore()
	adapter := &fakeAdapter{
		source:     "yelp",
		configured: true,
		records:    []catalog.BusinessRecord{record},
		detailErr:  map[string]error{"y-1": errors.New("detail disabled")},
	}
	photos := &fakePhotoSource{
		source:     "instaphoto",
		configured: true,
		photos: map[string][]string{
			"Flying Monkeys Brewery": {"http://photos/a.jpg", "http://photos/b.jpg"},
		},
	}
	ix := New(
		[]catalog.Adapter{adapter},
		[]catalog.PhotoSource{photos},
		store,
		&fakeClock{now: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)},
		&seqIDGen{},
		Config{},
		zap.NewNop(),
	)

	_, err := ix.Index(context.Background(), catalog.SearchQuery{Location: "Barrie, ON", Limit: 10})
	require.NoError(t, err)

	rest, err := store.FindByExternalID(context.Background(), "yelp", "y-1")
	require.NoError(t, err)
	media := store.Media(rest.ID)
	require.Len(t, media, 2)
	require.Equal(t, "instaphoto", media[0].Source)
}

func TestCreate_PhotoSourceFailureIsNonFatal(t *testing.T) {
	t.Parallel()

	record := business("y-1", "Flying Monkeys Brewery", 44.3901, -79.6871, "705-721-8989")
	record.Photos = nil

	store := memory.NewRestaurantStore()
	adapter := &fakeAdapter{
		source:     "yelp",
		configured: true,
		records:    []catalog.BusinessRecord{record},
		detailErr:  map[string]error{"y-1": errors.New("detail disabled")},
	}
	photos := &fakePhotoSource{source: "instaphoto", configured: true, err: errors.New("timeout")}
	ix := New(
		[]catalog.Adapter{adapter},
		[]catalog.PhotoSource{photos},
		store,
		&fakeClock{now: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)},
		&seqIDGen{},
		Config{},
		zap.NewNop(),
	)

	stats, err := ix.Index(context.Background(), catalog.SearchQuery{Location: "Barrie, ON", Limit: 10})
	require.NoError(t, err)
	require.Equal(t, 1, stats.Created)

	rest, err := store.FindByExternalID(context.Background(), "yelp", "y-1")
	require.NoError(t, err)
	require.Empty(t, store.Media(rest.ID))
}

func TestMerge_FillsOnlyEmptyFields(t *testing.T) {
	t.Parallel()

	store := memory.NewRestaurantStore()
	first := business("y-1", "Flying Monkeys Brewery", 44.39010, -79.68710, "")
	first.Address = "107 Dunlop St E"
	yelp := &fakeAdapter{source: "yelp", configured: true, records: []catalog.BusinessRecord{first}}

	second := business("f-9", "Flying Monkeys Brewery Inc.", 44.39012, -79.68708, "705-721-8989")
	second.Address = "999 Different Street" // populated field must not be overwritten
	fsq := &fakeAdapter{source: "foursquare", configured: true, records: []catalog.BusinessRecord{second}}

	ix := newTestIndexer(store, yelp, fsq)
	_, err := ix.Index(context.Background(), catalog.SearchQuery{Location: "Barrie, ON", Limit: 10})
	require.NoError(t, err)

	rest, err := store.FindByExternalID(context.Background(), "yelp", "y-1")
	require.NoError(t, err)
	require.Equal(t, "107 Dunlop St E", rest.Address, "first writer wins for populated fields")
	require.Equal(t, "705-721-8989", rest.Phone, "empty fields are filled from the merge")
}
