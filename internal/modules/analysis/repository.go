package analysis

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/brunocrt/crew-investment-agents/internal/database"
)

// tickerSeparator joins the ticker list into a single column, matching the
// comma-delimited form the rest of the system uses for ticker sets.
const tickerSeparator = ","

// Repository is the durable store for analyses and their log lines.
// All status/result mutations for one analysis are serialized through
// transactions with a terminal-state guard, and log sequence assignment is a
// single linearization point per analysis.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger

	// Per-analysis locks around sequence assignment so concurrent stages of
	// one analysis serialize without stalling appends for other analyses.
	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// NewRepository creates a new analysis repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:    db,
		log:   log.With().Str("repository", "analysis").Logger(),
		locks: make(map[string]*sync.Mutex),
	}
}

// Create inserts a new pending analysis with a fresh id
func (r *Repository) Create(tickers []string) (*Analysis, error) {
	now := time.Now().UTC()
	a := &Analysis{
		ID:        uuid.New().String(),
		Tickers:   normalizeTickers(tickers),
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	_, err := r.db.Exec(`
		INSERT INTO analyses (id, tickers, status, summary, recommendations_json, created_at, updated_at)
		VALUES (?, ?, ?, '', '[]', ?, ?)
	`,
		a.ID,
		strings.Join(a.Tickers, tickerSeparator),
		string(a.Status),
		now.Format(time.RFC3339Nano),
		now.Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert analysis: %w", err)
	}

	return a, nil
}

// Get fetches one analysis by id
func (r *Repository) Get(id string) (*Analysis, error) {
	row := r.db.QueryRow(`
		SELECT id, tickers, status, summary, recommendations_json, created_at, updated_at
		FROM analyses
		WHERE id = ?
	`, id)

	a, err := scanAnalysis(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get analysis: %w", err)
	}
	return a, nil
}

// List returns all analyses. Presentation order is a UI concern; rows come
// back newest first for convenience.
func (r *Repository) List() ([]*Analysis, error) {
	rows, err := r.db.Query(`
		SELECT id, tickers, status, summary, recommendations_json, created_at, updated_at
		FROM analyses
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list analyses: %w", err)
	}
	defer rows.Close()

	var analyses []*Analysis
	for rows.Next() {
		a, err := scanAnalysis(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan analysis: %w", err)
		}
		analyses = append(analyses, a)
	}
	return analyses, rows.Err()
}

// UpdateStatus transitions the analysis to the given status.
// Once an analysis is terminal the transition is a no-op, which guards
// against duplicate completion signals and failed-then-completed races.
func (r *Repository) UpdateStatus(id string, status Status) error {
	return database.WithTransaction(r.db, func(tx *sql.Tx) error {
		current, err := statusForUpdate(tx, id)
		if err != nil {
			return err
		}
		if current.IsTerminal() {
			return nil
		}

		_, err = tx.Exec(`
			UPDATE analyses SET status = ?, updated_at = ? WHERE id = ?
		`, string(status), time.Now().UTC().Format(time.RFC3339Nano), id)
		return err
	})
}

// SetResult stores the synthesis output. A no-op once the analysis is
// terminal, so late duplicate completion signals cannot rewrite the report.
func (r *Repository) SetResult(id string, summary string, recs []Recommendation) error {
	return database.WithTransaction(r.db, func(tx *sql.Tx) error {
		current, err := statusForUpdate(tx, id)
		if err != nil {
			return err
		}
		if current.IsTerminal() {
			return nil
		}

		if recs == nil {
			recs = []Recommendation{}
		}
		recsJSON, err := json.Marshal(recs)
		if err != nil {
			return fmt.Errorf("failed to encode recommendations: %w", err)
		}

		_, err = tx.Exec(`
			UPDATE analyses SET summary = ?, recommendations_json = ?, updated_at = ? WHERE id = ?
		`, summary, string(recsJSON), time.Now().UTC().Format(time.RFC3339Nano), id)
		return err
	})
}

// AppendLog assigns the next sequence number for the analysis and persists
// the line atomically. The write timestamp is returned so forwarded copies
// of the line carry exactly what was persisted. Returns ErrNotFound if the
// analysis was deleted concurrently; the caller must then stop emitting for
// that analysis.
func (r *Repository) AppendLog(id string, message string) (int64, time.Time, error) {
	lock := r.jobLock(id)
	lock.Lock()
	defer lock.Unlock()

	ts := time.Now().UTC()

	var seq int64
	err := database.WithTransaction(r.db, func(tx *sql.Tx) error {
		var exists int
		if err := tx.QueryRow(`SELECT 1 FROM analyses WHERE id = ?`, id).Scan(&exists); err != nil {
			if err == sql.ErrNoRows {
				return ErrNotFound
			}
			return err
		}

		if err := tx.QueryRow(`
			SELECT COALESCE(MAX(seq), 0) + 1 FROM analysis_logs WHERE analysis_id = ?
		`, id).Scan(&seq); err != nil {
			return err
		}

		_, err := tx.Exec(`
			INSERT INTO analysis_logs (analysis_id, seq, message, timestamp)
			VALUES (?, ?, ?, ?)
		`, id, seq, message, ts.Format(time.RFC3339Nano))
		return err
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return 0, time.Time{}, ErrNotFound
		}
		return 0, time.Time{}, fmt.Errorf("failed to append log: %w", err)
	}

	return seq, ts, nil
}

// Logs returns all persisted lines for the analysis in sequence order
func (r *Repository) Logs(id string) ([]LogLine, error) {
	// Existence check so callers can distinguish "no logs yet" from a
	// deleted analysis.
	var exists int
	if err := r.db.QueryRow(`SELECT 1 FROM analyses WHERE id = ?`, id).Scan(&exists); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to check analysis: %w", err)
	}

	rows, err := r.db.Query(`
		SELECT analysis_id, seq, message, timestamp
		FROM analysis_logs
		WHERE analysis_id = ?
		ORDER BY seq ASC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query logs: %w", err)
	}
	defer rows.Close()

	lines := make([]LogLine, 0)
	for rows.Next() {
		var line LogLine
		var ts string
		if err := rows.Scan(&line.AnalysisID, &line.Sequence, &line.Message, &ts); err != nil {
			return nil, fmt.Errorf("failed to scan log line: %w", err)
		}
		line.Timestamp, _ = time.Parse(time.RFC3339Nano, ts)
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

// Delete removes the analysis and all its log lines. Taking the per-analysis
// lock orders the delete against any in-flight append: the append either
// lands just before deletion and is purged here, or observes ErrNotFound.
func (r *Repository) Delete(id string) error {
	lock := r.jobLock(id)
	lock.Lock()
	defer lock.Unlock()

	var deleted bool
	err := database.WithTransaction(r.db, func(tx *sql.Tx) error {
		res, err := tx.Exec(`DELETE FROM analyses WHERE id = ?`, id)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		deleted = n > 0

		_, err = tx.Exec(`DELETE FROM analysis_logs WHERE analysis_id = ?`, id)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to delete analysis: %w", err)
	}
	if !deleted {
		return ErrNotFound
	}

	r.dropJobLock(id)
	return nil
}

// jobLock returns the per-analysis append lock, creating it on first use
func (r *Repository) jobLock(id string) *sync.Mutex {
	r.locksMu.Lock()
	defer r.locksMu.Unlock()

	lock, ok := r.locks[id]
	if !ok {
		lock = &sync.Mutex{}
		r.locks[id] = lock
	}
	return lock
}

func (r *Repository) dropJobLock(id string) {
	r.locksMu.Lock()
	defer r.locksMu.Unlock()
	delete(r.locks, id)
}

// statusForUpdate reads the current status inside a transaction
func statusForUpdate(tx *sql.Tx, id string) (Status, error) {
	var status string
	err := tx.QueryRow(`SELECT status FROM analyses WHERE id = ?`, id).Scan(&status)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return Status(status), nil
}

// scanner covers both *sql.Row and *sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanAnalysis(row scanner) (*Analysis, error) {
	var a Analysis
	var tickers, status, recsJSON, createdAt, updatedAt string

	if err := row.Scan(&a.ID, &tickers, &status, &a.Summary, &recsJSON, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	a.Status = Status(status)
	a.Tickers = splitTickers(tickers)
	a.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	a.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)

	a.Recommendations = []Recommendation{}
	if err := json.Unmarshal([]byte(recsJSON), &a.Recommendations); err != nil {
		return nil, fmt.Errorf("failed to decode recommendations: %w", err)
	}

	return &a, nil
}

func normalizeTickers(tickers []string) []string {
	out := make([]string, 0, len(tickers))
	for _, t := range tickers {
		t = strings.ToUpper(strings.TrimSpace(t))
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

func splitTickers(s string) []string {
	if s == "" {
		return []string{}
	}
	return strings.Split(s, tickerSeparator)
}
