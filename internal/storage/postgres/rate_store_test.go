package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/plateindex/plateindex/internal/catalog"
)

func TestGetCounterNotFound(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	store, err := NewRateStoreWithPool(mock)
	require.NoError(t, err)

	mock.ExpectQuery("SELECT (.+) FROM rate_counters").
		WithArgs("yelp").
		WillReturnRows(pgxmock.NewRows([]string{"source", "count", "reset_at"}))

	_, err = store.GetCounter(context.Background(), "yelp")
	require.ErrorIs(t, err, catalog.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetCounterReturnsRow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	store, err := NewRateStoreWithPool(mock)
	require.NoError(t, err)

	resetAt := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT (.+) FROM rate_counters").
		WithArgs("yelp").
		WillReturnRows(pgxmock.NewRows([]string{"source", "count", "reset_at"}).
			AddRow("yelp", 412, resetAt))

	c, err := store.GetCounter(context.Background(), "yelp")
	require.NoError(t, err)
	require.Equal(t, 412, c.Count)
	require.Equal(t, resetAt, c.ResetAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveCounterUpserts(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	store, err := NewRateStoreWithPool(mock)
	require.NoError(t, err)

	resetAt := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	mock.ExpectExec("INSERT INTO rate_counters").
		WithArgs("yelp", 413, resetAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err = store.SaveCounter(context.Background(), catalog.RateCounter{
		Source: "yelp", Count: 413, ResetAt: resetAt,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
