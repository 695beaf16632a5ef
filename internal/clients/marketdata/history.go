package marketdata

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
	"github.com/rs/zerolog"
)

// HistoryStore reads daily bars from local per-symbol SQLite databases.
// These are produced out of band by a download job and act as an offline
// fallback when the market data API is unavailable.
type HistoryStore struct {
	historyDir string
	log        zerolog.Logger
}

// NewHistoryStore creates a new history store accessor
func NewHistoryStore(historyDir string, log zerolog.Logger) *HistoryStore {
	return &HistoryStore{
		historyDir: historyDir,
		log:        log.With().Str("component", "history_store").Logger(),
	}
}

// DailyCandles fetches up to limit daily bars for a symbol, newest first
func (h *HistoryStore) DailyCandles(symbol string, limit int) ([]Candle, error) {
	db, err := h.openHistoryDB(symbol)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	query := `
		SELECT date, open_price, high_price, low_price, close_price, volume
		FROM daily_prices
		ORDER BY date DESC
		LIMIT ?
	`

	rows, err := db.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query daily prices: %w", err)
	}
	defer rows.Close()

	var candles []Candle
	for rows.Next() {
		var c Candle
		var volume sql.NullInt64

		if err := rows.Scan(&c.Date, &c.Open, &c.High, &c.Low, &c.Close, &volume); err != nil {
			return nil, fmt.Errorf("failed to scan daily price: %w", err)
		}
		if volume.Valid {
			c.Volume = volume.Int64
		}
		candles = append(candles, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating daily prices: %w", err)
	}

	return candles, nil
}

// openHistoryDB opens the history database for a symbol
func (h *HistoryStore) openHistoryDB(symbol string) (*sql.DB, error) {
	// Symbols with futures or share-class suffixes map to safe file names:
	// HG=F -> HG_F, BRK.B -> BRK_B
	dbSymbol := strings.NewReplacer(".", "_", "=", "_").Replace(symbol)

	dbPath := filepath.Join(h.historyDir, dbSymbol+".db")

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database for %s: %w", symbol, err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping history database for %s: %w", symbol, err)
	}

	return db, nil
}
