package analysis

import (
	"database/sql"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func setupTestDB(t *testing.T) *sql.DB {
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	// One connection so every statement sees the same in-memory database.
	db.SetMaxOpenConns(1)

	require.NoError(t, InitSchema(db))

	t.Cleanup(func() { db.Close() })
	return db
}

func newTestRepository(t *testing.T) *Repository {
	return NewRepository(setupTestDB(t), zerolog.Nop())
}

func TestCreateNormalizesTickers(t *testing.T) {
	repo := newTestRepository(t)

	a, err := repo.Create([]string{" ge", "ETN ", "", "aapl"})
	require.NoError(t, err)

	assert.NotEmpty(t, a.ID)
	assert.Equal(t, []string{"GE", "ETN", "AAPL"}, a.Tickers)
	assert.Equal(t, StatusPending, a.Status)

	got, err := repo.Get(a.ID)
	require.NoError(t, err)
	assert.Equal(t, a.Tickers, got.Tickers)
	assert.Equal(t, StatusPending, got.Status)
}

func TestCreateWithEmptyTickers(t *testing.T) {
	repo := newTestRepository(t)

	a, err := repo.Create(nil)
	require.NoError(t, err)
	assert.Empty(t, a.Tickers)

	got, err := repo.Get(a.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Tickers)
}

func TestGetNotFound(t *testing.T) {
	repo := newTestRepository(t)

	_, err := repo.Get("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListNewestFirst(t *testing.T) {
	repo := newTestRepository(t)

	_, err := repo.Create([]string{"GE"})
	require.NoError(t, err)
	_, err = repo.Create([]string{"ETN"})
	require.NoError(t, err)

	analyses, err := repo.List()
	require.NoError(t, err)
	assert.Len(t, analyses, 2)
}

func TestAppendLogSequencesAreGapFree(t *testing.T) {
	repo := newTestRepository(t)

	a, err := repo.Create([]string{"GE"})
	require.NoError(t, err)

	for i := 1; i <= 5; i++ {
		seq, _, err := repo.AppendLog(a.ID, "line")
		require.NoError(t, err)
		assert.Equal(t, int64(i), seq)
	}

	lines, err := repo.Logs(a.ID)
	require.NoError(t, err)
	require.Len(t, lines, 5)
	for i, line := range lines {
		assert.Equal(t, int64(i+1), line.Sequence)
	}
}

func TestAppendLogConcurrent(t *testing.T) {
	repo := newTestRepository(t)

	a, err := repo.Create([]string{"GE"})
	require.NoError(t, err)

	const writers = 8
	const perWriter = 25

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				_, _, err := repo.AppendLog(a.ID, "line")
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	lines, err := repo.Logs(a.ID)
	require.NoError(t, err)
	require.Len(t, lines, writers*perWriter)

	// Strictly increasing with no gaps regardless of interleaving.
	for i, line := range lines {
		assert.Equal(t, int64(i+1), line.Sequence)
	}
}

func TestAppendLogSequencesIndependentPerAnalysis(t *testing.T) {
	repo := newTestRepository(t)

	a, err := repo.Create([]string{"GE"})
	require.NoError(t, err)
	b, err := repo.Create([]string{"ETN"})
	require.NoError(t, err)

	seqA, _, err := repo.AppendLog(a.ID, "a1")
	require.NoError(t, err)
	seqB, _, err := repo.AppendLog(b.ID, "b1")
	require.NoError(t, err)

	assert.Equal(t, int64(1), seqA)
	assert.Equal(t, int64(1), seqB)
}

func TestAppendLogDeletedAnalysis(t *testing.T) {
	repo := newTestRepository(t)

	a, err := repo.Create([]string{"GE"})
	require.NoError(t, err)
	require.NoError(t, repo.Delete(a.ID))

	_, _, err = repo.AppendLog(a.ID, "line")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAppendLogReturnsPersistedTimestamp(t *testing.T) {
	repo := newTestRepository(t)

	a, err := repo.Create([]string{"GE"})
	require.NoError(t, err)

	_, ts, err := repo.AppendLog(a.ID, "line")
	require.NoError(t, err)
	assert.False(t, ts.IsZero())

	lines, err := repo.Logs(a.ID)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.True(t, lines[0].Timestamp.Equal(ts))
}

func TestUpdateStatusTerminalGuard(t *testing.T) {
	repo := newTestRepository(t)

	a, err := repo.Create([]string{"GE"})
	require.NoError(t, err)

	require.NoError(t, repo.UpdateStatus(a.ID, StatusRunning))
	require.NoError(t, repo.UpdateStatus(a.ID, StatusCompleted))

	// A late failure signal must not rewrite the terminal state.
	require.NoError(t, repo.UpdateStatus(a.ID, StatusFailed))

	got, err := repo.Get(a.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.Status)
}

func TestSetResultTerminalGuard(t *testing.T) {
	repo := newTestRepository(t)

	a, err := repo.Create([]string{"GE"})
	require.NoError(t, err)

	require.NoError(t, repo.SetResult(a.ID, "first", []Recommendation{{Ticker: "GE", Rating: "buy"}}))
	require.NoError(t, repo.UpdateStatus(a.ID, StatusCompleted))

	// Terminal analyses keep their report.
	require.NoError(t, repo.SetResult(a.ID, "second", nil))

	got, err := repo.Get(a.ID)
	require.NoError(t, err)
	assert.Equal(t, "first", got.Summary)
	require.Len(t, got.Recommendations, 1)
	assert.Equal(t, "GE", got.Recommendations[0].Ticker)
}

func TestDeleteRemovesLogs(t *testing.T) {
	repo := newTestRepository(t)

	a, err := repo.Create([]string{"GE"})
	require.NoError(t, err)
	_, _, err = repo.AppendLog(a.ID, "line")
	require.NoError(t, err)

	require.NoError(t, repo.Delete(a.ID))

	_, err = repo.Get(a.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = repo.Logs(a.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteNotFound(t *testing.T) {
	repo := newTestRepository(t)
	assert.ErrorIs(t, repo.Delete("missing"), ErrNotFound)
}
