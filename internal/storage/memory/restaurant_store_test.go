package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/plateindex/plateindex/internal/catalog"
)

func ptr(f float64) *float64 { return &f }

func seedRestaurant(t *testing.T, s *RestaurantStore, id string, lat, lng float64) catalog.Restaurant {
	t.Helper()
	r, err := s.CreateRestaurant(context.Background(), catalog.Restaurant{
		ID:        id,
		Name:      "Restaurant " + id,
		Latitude:  ptr(lat),
		Longitude: ptr(lng),
	})
	require.NoError(t, err)
	return r
}

func TestRestaurantStore_CreateGetUpdate(t *testing.T) {
	t.Parallel()

	s := NewRestaurantStore()
	r := seedRestaurant(t, s, "r1", 44.39, -79.68)

	got, err := s.GetRestaurant(context.Background(), "r1")
	require.NoError(t, err)
	require.Equal(t, r, got)

	got.Phone = "705-721-8989"
	require.NoError(t, s.UpdateRestaurant(context.Background(), got))
	got2, err := s.GetRestaurant(context.Background(), "r1")
	require.NoError(t, err)
	require.Equal(t, "705-721-8989", got2.Phone)

	_, err = s.GetRestaurant(context.Background(), "missing")
	require.ErrorIs(t, err, catalog.ErrNotFound)

	_, err = s.CreateRestaurant(context.Background(), catalog.Restaurant{ID: "r1"})
	require.Error(t, err)
}

func TestRestaurantStore_ExternalIDs(t *testing.T) {
	t.Parallel()

	s := NewRestaurantStore()
	seedRestaurant(t, s, "r1", 44.39, -79.68)

	link := catalog.ExternalID{RestaurantID: "r1", Source: "yelp", Value: "y-1"}
	require.NoError(t, s.InsertExternalID(context.Background(), link))

	// Re-inserting the same pair is a no-op.
	require.NoError(t, s.InsertExternalID(context.Background(), link))
	// A second id from the same source for the same restaurant is ignored.
	require.NoError(t, s.InsertExternalID(context.Background(), catalog.ExternalID{
		RestaurantID: "r1", Source: "yelp", Value: "y-other",
	}))

	ids, err := s.ListExternalIDs(context.Background(), "r1")
	require.NoError(t, err)
	require.Len(t, ids, 1)
	require.Equal(t, "y-1", ids[0].Value)

	got, err := s.FindByExternalID(context.Background(), "yelp", "y-1")
	require.NoError(t, err)
	require.Equal(t, "r1", got.ID)

	_, err = s.FindByExternalID(context.Background(), "yelp", "y-other")
	require.ErrorIs(t, err, catalog.ErrNotFound)
}

func TestRestaurantStore_FindCandidatesNearestFirst(t *testing.T) {
	t.Parallel()

	s := NewRestaurantStore()
	seedRestaurant(t, s, "near", 44.3901, -79.6801)
	seedRestaurant(t, s, "nearer", 44.3900, -79.6800)
	seedRestaurant(t, s, "far", 45.0, -80.0)
	_, err := s.CreateRestaurant(context.Background(), catalog.Restaurant{ID: "no-coords"})
	require.NoError(t, err)

	got, err := s.FindCandidates(context.Background(), 44.39, -79.68, 0.02)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "nearer", got[0].ID)
	require.Equal(t, "near", got[1].ID)
}

func TestRestaurantStore_RatingUpsertReplaces(t *testing.T) {
	t.Parallel()

	s := NewRestaurantStore()
	seedRestaurant(t, s, "r1", 44.39, -79.68)

	require.NoError(t, s.UpsertRating(context.Background(), catalog.Rating{
		RestaurantID: "r1", Source: "yelp", Score: 4.0, ReviewCount: 10, FetchedAt: time.Unix(100, 0),
	}))
	require.NoError(t, s.UpsertRating(context.Background(), catalog.Rating{
		RestaurantID: "r1", Source: "yelp", Score: 4.5, ReviewCount: 12, FetchedAt: time.Unix(200, 0),
	}))

	ratings := s.Ratings("r1")
	require.Len(t, ratings, 1)
	require.Equal(t, 4.5, ratings[0].Score)
	require.Equal(t, 12, ratings[0].ReviewCount)
}

func TestRestaurantStore_MediaPolicies(t *testing.T) {
	t.Parallel()

	s := NewRestaurantStore()
	seedRestaurant(t, s, "r1", 44.39, -79.68)

	require.NoError(t, s.AppendMedia(context.Background(), "r1", []catalog.Media{
		{RestaurantID: "r1", Source: "yelp", Type: catalog.MediaTypePhoto, URL: "http://a/1.jpg"},
		{RestaurantID: "r1", Source: "yelp", Type: catalog.MediaTypePhoto, URL: "http://a/2.jpg"},
	}))
	// Append dedups by URL, even across sources.
	require.NoError(t, s.AppendMedia(context.Background(), "r1", []catalog.Media{
		{RestaurantID: "r1", Source: "foursquare", Type: catalog.MediaTypePhoto, URL: "http://a/1.jpg"},
		{RestaurantID: "r1", Source: "foursquare", Type: catalog.MediaTypePhoto, URL: "http://a/3.jpg"},
	}))
	require.Len(t, s.Media("r1"), 3)

	// Replace swaps only the named source+type.
	require.NoError(t, s.ReplaceMedia(context.Background(), "r1", "yelp", catalog.MediaTypePhoto, []catalog.Media{
		{RestaurantID: "r1", Source: "yelp", Type: catalog.MediaTypePhoto, URL: "http://a/9.jpg"},
	}))
	media := s.Media("r1")
	require.Len(t, media, 2)
	urls := []string{media[0].URL, media[1].URL}
	require.Contains(t, urls, "http://a/3.jpg")
	require.Contains(t, urls, "http://a/9.jpg")
}

func TestRestaurantStore_ReplaceReviews(t *testing.T) {
	t.Parallel()

	s := NewRestaurantStore()
	seedRestaurant(t, s, "r1", 44.39, -79.68)

	require.NoError(t, s.ReplaceReviews(context.Background(), "r1", "yelp", []catalog.Review{
		{RestaurantID: "r1", Source: "yelp", Author: "a", Score: 5},
	}))
	require.NoError(t, s.ReplaceReviews(context.Background(), "r1", "foursquare", []catalog.Review{
		{RestaurantID: "r1", Source: "foursquare", Author: "b", Score: 4},
	}))
	require.NoError(t, s.ReplaceReviews(context.Background(), "r1", "yelp", []catalog.Review{
		{RestaurantID: "r1", Source: "yelp", Author: "c", Score: 3},
	}))

	reviews := s.Reviews("r1")
	require.Len(t, reviews, 2)
	for _, rv := range reviews {
		require.NotEqual(t, "a", rv.Author)
	}
}

func TestRestaurantStore_Categories(t *testing.T) {
	t.Parallel()

	s := NewRestaurantStore()
	seedRestaurant(t, s, "r1", 44.39, -79.68)

	c1, err := s.FindOrCreateCategory(context.Background(), "brewery")
	require.NoError(t, err)
	c2, err := s.FindOrCreateCategory(context.Background(), "brewery")
	require.NoError(t, err)
	require.Equal(t, c1.ID, c2.ID)

	require.NoError(t, s.LinkCategory(context.Background(), "r1", c1.ID))
	require.NoError(t, s.LinkCategory(context.Background(), "r1", c1.ID))
}
