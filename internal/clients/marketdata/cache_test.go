package marketdata

import (
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func setupCacheRepo(t *testing.T) *CacheRepository {
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	repo, err := NewCacheRepository(db)
	require.NoError(t, err)
	return repo
}

func sampleCandles() []Candle {
	return []Candle{
		{Date: "2025-06-02", Open: 99, High: 101, Low: 98, Close: 100, Volume: 1_200_000},
		{Date: "2025-06-01", Open: 98, High: 100, Low: 97, Close: 99, Volume: 1_100_000},
	}
}

func TestCacheStoreAndGetFresh(t *testing.T) {
	repo := setupCacheRepo(t)

	require.NoError(t, repo.Store("daily_candles", "GE", sampleCandles(), time.Hour))

	var got []Candle
	ok, err := repo.GetIfFresh("daily_candles", "GE", &got)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, sampleCandles(), got)
}

func TestCacheMiss(t *testing.T) {
	repo := setupCacheRepo(t)

	var got []Candle
	ok, err := repo.GetIfFresh("daily_candles", "GE", &got)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCacheExpiredEntryNotFresh(t *testing.T) {
	repo := setupCacheRepo(t)

	require.NoError(t, repo.Store("daily_candles", "GE", sampleCandles(), -time.Minute))

	var fresh []Candle
	ok, err := repo.GetIfFresh("daily_candles", "GE", &fresh)
	require.NoError(t, err)
	assert.False(t, ok)

	// Stale read still returns the data.
	var stale []Candle
	ok, err = repo.Get("daily_candles", "GE", &stale)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, sampleCandles(), stale)
}

func TestCacheStoreReplaces(t *testing.T) {
	repo := setupCacheRepo(t)

	require.NoError(t, repo.Store("fundamentals", "GE", []Quarter{{Period: "2025-03", Capex: 1}}, time.Hour))
	require.NoError(t, repo.Store("fundamentals", "GE", []Quarter{{Period: "2025-06", Capex: 2}}, time.Hour))

	var got []Quarter
	ok, err := repo.GetIfFresh("fundamentals", "GE", &got)
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, got, 1)
	assert.Equal(t, "2025-06", got[0].Period)
}

func TestCacheRejectsUnknownTable(t *testing.T) {
	repo := setupCacheRepo(t)

	assert.Error(t, repo.Store("analyses", "GE", sampleCandles(), time.Hour))

	var got []Candle
	_, err := repo.GetIfFresh("analyses; DROP TABLE daily_candles", "GE", &got)
	assert.Error(t, err)
}

func TestCacheDeleteExpired(t *testing.T) {
	repo := setupCacheRepo(t)

	require.NoError(t, repo.Store("daily_candles", "GE", sampleCandles(), -time.Minute))
	require.NoError(t, repo.Store("daily_candles", "ETN", sampleCandles(), time.Hour))
	require.NoError(t, repo.Store("fundamentals", "GE", []Quarter{{Period: "2025-06"}}, -time.Minute))

	deleted, err := repo.DeleteExpired()
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted["daily_candles"])
	assert.Equal(t, int64(1), deleted["fundamentals"])

	var kept []Candle
	ok, err := repo.GetIfFresh("daily_candles", "ETN", &kept)
	require.NoError(t, err)
	assert.True(t, ok)
}
