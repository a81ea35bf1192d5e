// Package postgres provides Postgres-backed persistence implementations.
//
// Expected schema:
//
//	restaurants(id text primary key, name text, address text,
//	    latitude double precision, longitude double precision,
//	    phone text, location text, created_at timestamptz, updated_at timestamptz)
//	external_ids(restaurant_id text references restaurants,
//	    source text, external_id text,
//	    primary key (source, external_id),
//	    unique (restaurant_id, source))
//	ratings(restaurant_id text references restaurants, source text,
//	    score double precision, review_count int, fetched_at timestamptz,
//	    primary key (restaurant_id, source))
//	reviews(restaurant_id text references restaurants, source text,
//	    author text, score double precision, body text, posted_at timestamptz)
//	media(restaurant_id text references restaurants, source text,
//	    media_type text, url text,
//	    unique (restaurant_id, url))
//	categories(id text primary key, name text unique)
//	restaurant_categories(restaurant_id text references restaurants,
//	    category_id text references categories,
//	    primary key (restaurant_id, category_id))
//	rate_counters(source text primary key, count int, reset_at timestamptz)
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/plateindex/plateindex/internal/catalog"
)

// pool is the subset of pgxpool.Pool the stores need; pgxmock satisfies it.
type pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Close()
}

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// RestaurantStore implements catalog.RestaurantStore on Postgres.
type RestaurantStore struct {
	pool pool
	ids  catalog.IDGenerator
}

// NewRestaurantStore connects a pool and wraps it in a store.
func NewRestaurantStore(ctx context.Context, cfg Config, ids catalog.IDGenerator) (*RestaurantStore, error) {
	p, err := newPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &RestaurantStore{pool: p, ids: ids}, nil
}

// NewRestaurantStoreWithPool constructs a store from an existing pool
// (primarily for testing).
func NewRestaurantStoreWithPool(p pool, ids catalog.IDGenerator) (*RestaurantStore, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &RestaurantStore{pool: p, ids: ids}, nil
}

func newPool(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return p, nil
}

// Close releases the underlying pool resources.
func (s *RestaurantStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// CreateRestaurant inserts a new canonical row.
func (s *RestaurantStore) CreateRestaurant(ctx context.Context, r catalog.Restaurant) (catalog.Restaurant, error) {
	if r.ID == "" {
		return catalog.Restaurant{}, fmt.Errorf("restaurant id is required")
	}
	_, err := s.pool.Exec(ctx, `
INSERT INTO restaurants (id, name, address, latitude, longitude, phone, location, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		r.ID, r.Name, r.Address, r.Latitude, r.Longitude, r.Phone, r.Location, r.CreatedAt, r.UpdatedAt)
	if err != nil {
		return catalog.Restaurant{}, fmt.Errorf("insert restaurant: %w", err)
	}
	return r, nil
}

// UpdateRestaurant overwrites an existing canonical row.
func (s *RestaurantStore) UpdateRestaurant(ctx context.Context, r catalog.Restaurant) error {
	tag, err := s.pool.Exec(ctx, `
UPDATE restaurants
SET name = $2, address = $3, latitude = $4, longitude = $5, phone = $6, location = $7, updated_at = $8
WHERE id = $1`,
		r.ID, r.Name, r.Address, r.Latitude, r.Longitude, r.Phone, r.Location, r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update restaurant: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return catalog.ErrNotFound
	}
	return nil
}

const restaurantColumns = `id, name, address, latitude, longitude, phone, location, created_at, updated_at`

// GetRestaurant fetches a restaurant by id.
func (s *RestaurantStore) GetRestaurant(ctx context.Context, id string) (catalog.Restaurant, error) {
	row := s.pool.QueryRow(ctx, `
SELECT `+restaurantColumns+`
FROM restaurants
WHERE id = $1`, id)
	return scanRestaurant(row)
}

// FindByExternalID resolves a (source, external id) pair to its restaurant.
func (s *RestaurantStore) FindByExternalID(ctx context.Context, source, externalID string) (catalog.Restaurant, error) {
	row := s.pool.QueryRow(ctx, `
SELECT r.id, r.name, r.address, r.latitude, r.longitude, r.phone, r.location, r.created_at, r.updated_at
FROM restaurants r
JOIN external_ids e ON e.restaurant_id = r.id
WHERE e.source = $1 AND e.external_id = $2`, source, externalID)
	return scanRestaurant(row)
}

// FindCandidates returns restaurants within +-delta degrees, nearest first.
func (s *RestaurantStore) FindCandidates(ctx context.Context, lat, lng, delta float64) ([]catalog.Restaurant, error) {
	rows, err := s.pool.Query(ctx, `
SELECT `+restaurantColumns+`
FROM restaurants
WHERE latitude BETWEEN $1 - $3 AND $1 + $3
  AND longitude BETWEEN $2 - $3 AND $2 + $3
ORDER BY (latitude - $1) * (latitude - $1) + (longitude - $2) * (longitude - $2), id`,
		lat, lng, delta)
	if err != nil {
		return nil, fmt.Errorf("find candidates: %w", err)
	}
	defer rows.Close()

	var out []catalog.Restaurant
	for rows.Next() {
		r, err := scanRestaurant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("find candidates: %w", err)
	}
	return out, nil
}

// InsertExternalID inserts the link if absent; existing links never move.
func (s *RestaurantStore) InsertExternalID(ctx context.Context, e catalog.ExternalID) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO external_ids (restaurant_id, source, external_id)
VALUES ($1,$2,$3)
ON CONFLICT DO NOTHING`,
		e.RestaurantID, e.Source, e.Value)
	if err != nil {
		return fmt.Errorf("insert external id: %w", err)
	}
	return nil
}

// ListExternalIDs returns all source links for a restaurant.
func (s *RestaurantStore) ListExternalIDs(ctx context.Context, restaurantID string) ([]catalog.ExternalID, error) {
	rows, err := s.pool.Query(ctx, `
SELECT restaurant_id, source, external_id
FROM external_ids
WHERE restaurant_id = $1
ORDER BY source`, restaurantID)
	if err != nil {
		return nil, fmt.Errorf("list external ids: %w", err)
	}
	defer rows.Close()

	var out []catalog.ExternalID
	for rows.Next() {
		var e catalog.ExternalID
		if err := rows.Scan(&e.RestaurantID, &e.Source, &e.Value); err != nil {
			return nil, fmt.Errorf("scan external id: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list external ids: %w", err)
	}
	return out, nil
}

// UpsertRating replaces the (restaurant, source) rating wholesale.
func (s *RestaurantStore) UpsertRating(ctx context.Context, r catalog.Rating) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO ratings (restaurant_id, source, score, review_count, fetched_at)
VALUES ($1,$2,$3,$4,$5)
ON CONFLICT (restaurant_id, source)
DO UPDATE SET score = EXCLUDED.score, review_count = EXCLUDED.review_count, fetched_at = EXCLUDED.fetched_at`,
		r.RestaurantID, r.Source, r.Score, r.ReviewCount, r.FetchedAt)
	if err != nil {
		return fmt.Errorf("upsert rating: %w", err)
	}
	return nil
}

// ReplaceReviews swaps one source's reviews for a restaurant in one
// transaction.
func (s *RestaurantStore) ReplaceReviews(ctx context.Context, restaurantID, source string, reviews []catalog.Review) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `
DELETE FROM reviews
WHERE restaurant_id = $1 AND source = $2`, restaurantID, source); err != nil {
		return fmt.Errorf("delete reviews: %w", err)
	}
	for _, rv := range reviews {
		if _, err := tx.Exec(ctx, `
INSERT INTO reviews (restaurant_id, source, author, score, body, posted_at)
VALUES ($1,$2,$3,$4,$5,$6)`,
			restaurantID, source, rv.Author, rv.Score, rv.Text, rv.PostedAt); err != nil {
			return fmt.Errorf("insert review: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit reviews: %w", err)
	}
	return nil
}

// ReplaceMedia swaps one source's media of the given type in one transaction.
func (s *RestaurantStore) ReplaceMedia(
	ctx context.Context,
	restaurantID, source string,
	mediaType catalog.MediaType,
	media []catalog.Media,
) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `
DELETE FROM media
WHERE restaurant_id = $1 AND source = $2 AND media_type = $3`,
		restaurantID, source, string(mediaType)); err != nil {
		return fmt.Errorf("delete media: %w", err)
	}
	for _, m := range media {
		if _, err := tx.Exec(ctx, `
INSERT INTO media (restaurant_id, source, media_type, url)
VALUES ($1,$2,$3,$4)
ON CONFLICT (restaurant_id, url) DO NOTHING`,
			restaurantID, m.Source, string(m.Type), m.URL); err != nil {
			return fmt.Errorf("insert media: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit media: %w", err)
	}
	return nil
}

// AppendMedia adds media rows, deduplicated by URL per restaurant.
func (s *RestaurantStore) AppendMedia(ctx context.Context, restaurantID string, media []catalog.Media) error {
	for _, m := range media {
		if _, err := s.pool.Exec(ctx, `
INSERT INTO media (restaurant_id, source, media_type, url)
VALUES ($1,$2,$3,$4)
ON CONFLICT (restaurant_id, url) DO NOTHING`,
			restaurantID, m.Source, string(m.Type), m.URL); err != nil {
			return fmt.Errorf("append media: %w", err)
		}
	}
	return nil
}

// FindOrCreateCategory returns the category with the given name, creating it
// on first use. The no-op DO UPDATE makes RETURNING yield the existing row.
func (s *RestaurantStore) FindOrCreateCategory(ctx context.Context, name string) (catalog.Category, error) {
	id, err := s.ids.NewID()
	if err != nil {
		return catalog.Category{}, fmt.Errorf("category id: %w", err)
	}
	var c catalog.Category
	err = s.pool.QueryRow(ctx, `
INSERT INTO categories (id, name)
VALUES ($1,$2)
ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
RETURNING id, name`, id, name).Scan(&c.ID, &c.Name)
	if err != nil {
		return catalog.Category{}, fmt.Errorf("find or create category: %w", err)
	}
	return c, nil
}

// LinkCategory attaches a category to a restaurant; idempotent.
func (s *RestaurantStore) LinkCategory(ctx context.Context, restaurantID, categoryID string) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO restaurant_categories (restaurant_id, category_id)
VALUES ($1,$2)
ON CONFLICT DO NOTHING`, restaurantID, categoryID)
	if err != nil {
		return fmt.Errorf("link category: %w", err)
	}
	return nil
}

func scanRestaurant(row pgx.Row) (catalog.Restaurant, error) {
	var r catalog.Restaurant
	err := row.Scan(&r.ID, &r.Name, &r.Address, &r.Latitude, &r.Longitude,
		&r.Phone, &r.Location, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return catalog.Restaurant{}, catalog.ErrNotFound
	}
	if err != nil {
		return catalog.Restaurant{}, fmt.Errorf("scan restaurant: %w", err)
	}
	return r, nil
}
