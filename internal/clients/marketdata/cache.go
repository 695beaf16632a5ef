package marketdata

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// TTL constants for cached market data. Added to time.Now() when storing
// to calculate expires_at.
const (
	TTLDailyCandles = time.Hour           // intraday refresh is pointless for daily bars
	TTLFundamentals = 45 * 24 * time.Hour // quarterly filings
)

// cacheTables lists all tables in the market data cache for cleanup.
var cacheTables = []string{
	"daily_candles",
	"fundamentals",
}

var validCacheTables = func() map[string]bool {
	m := make(map[string]bool, len(cacheTables))
	for _, t := range cacheTables {
		m[t] = true
	}
	return m
}()

// cacheSchema holds msgpack blobs keyed by symbol with expiry timestamps.
const cacheSchema = `
CREATE TABLE IF NOT EXISTS daily_candles (
    symbol     TEXT PRIMARY KEY,
    data       BLOB NOT NULL,
    expires_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS fundamentals (
    symbol     TEXT PRIMARY KEY,
    data       BLOB NOT NULL,
    expires_at INTEGER NOT NULL
);
`

// CacheRepository provides persistent cache operations for market data
// responses. Blobs are msgpack-encoded with expiration timestamps for
// cache-first behavior.
type CacheRepository struct {
	db *sql.DB
}

// NewCacheRepository creates a new cache repository and ensures its schema
func NewCacheRepository(db *sql.DB) (*CacheRepository, error) {
	if _, err := db.Exec(cacheSchema); err != nil {
		return nil, fmt.Errorf("failed to initialize market data cache schema: %w", err)
	}
	return &CacheRepository{db: db}, nil
}

func validateCacheTable(table string) error {
	if !validCacheTables[table] {
		return fmt.Errorf("invalid cache table name: %s", table)
	}
	return nil
}

// Store saves data with expiration = now + ttl
func (r *CacheRepository) Store(table, symbol string, data interface{}, ttl time.Duration) error {
	if err := validateCacheTable(table); err != nil {
		return err
	}

	blob, err := msgpack.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to encode cache entry: %w", err)
	}

	expiresAt := time.Now().Add(ttl).Unix()

	query := fmt.Sprintf(
		"INSERT OR REPLACE INTO %s (symbol, data, expires_at) VALUES (?, ?, ?)",
		table,
	)
	if _, err := r.db.Exec(query, symbol, blob, expiresAt); err != nil {
		return fmt.Errorf("failed to store cache entry in %s: %w", table, err)
	}
	return nil
}

// GetIfFresh decodes into dest only if expires_at > now. Returns false if
// the key doesn't exist or the entry is expired; use Get to retrieve stale
// data as a fallback when API calls fail.
func (r *CacheRepository) GetIfFresh(table, symbol string, dest interface{}) (bool, error) {
	if err := validateCacheTable(table); err != nil {
		return false, err
	}

	now := time.Now().Unix()
	query := fmt.Sprintf("SELECT data FROM %s WHERE symbol = ? AND expires_at > ?", table)

	var blob []byte
	err := r.db.QueryRow(query, symbol, now).Scan(&blob)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read cache from %s: %w", table, err)
	}

	if err := msgpack.Unmarshal(blob, dest); err != nil {
		return false, fmt.Errorf("failed to decode cache entry: %w", err)
	}
	return true, nil
}

// Get decodes into dest regardless of expiration status. Stale data is
// better than no data when the upstream API is down.
func (r *CacheRepository) Get(table, symbol string, dest interface{}) (bool, error) {
	if err := validateCacheTable(table); err != nil {
		return false, err
	}

	query := fmt.Sprintf("SELECT data FROM %s WHERE symbol = ?", table)

	var blob []byte
	err := r.db.QueryRow(query, symbol).Scan(&blob)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read cache from %s: %w", table, err)
	}

	if err := msgpack.Unmarshal(blob, dest); err != nil {
		return false, fmt.Errorf("failed to decode cache entry: %w", err)
	}
	return true, nil
}

// DeleteExpired removes all rows past their expiry. Returns rows deleted
// per table.
func (r *CacheRepository) DeleteExpired() (map[string]int64, error) {
	now := time.Now().Unix()
	results := make(map[string]int64)

	for _, table := range cacheTables {
		query := fmt.Sprintf("DELETE FROM %s WHERE expires_at < ?", table)
		res, err := r.db.Exec(query, now)
		if err != nil {
			return results, fmt.Errorf("failed to delete expired from %s: %w", table, err)
		}
		deleted, err := res.RowsAffected()
		if err != nil {
			return results, fmt.Errorf("failed to get rows affected for %s: %w", table, err)
		}
		results[table] = deleted
	}
	return results, nil
}
