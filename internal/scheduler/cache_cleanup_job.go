package scheduler

import (
	"github.com/rs/zerolog"

	"github.com/brunocrt/crew-investment-agents/internal/clients/marketdata"
)

// CacheCleanupJob removes expired entries from the market data cache.
// It should be scheduled to run daily.
type CacheCleanupJob struct {
	repo *marketdata.CacheRepository
	log  zerolog.Logger
}

// NewCacheCleanupJob creates a new cache cleanup job
func NewCacheCleanupJob(repo *marketdata.CacheRepository, log zerolog.Logger) *CacheCleanupJob {
	return &CacheCleanupJob{
		repo: repo,
		log:  log.With().Str("job", "cache_cleanup").Logger(),
	}
}

// Run executes the cleanup, removing expired entries from all cache tables
func (j *CacheCleanupJob) Run() error {
	results, err := j.repo.DeleteExpired()
	if err != nil {
		j.log.Error().Err(err).Msg("Failed to delete expired cache entries")
		return err
	}

	var totalDeleted int64
	for table, count := range results {
		if count > 0 {
			j.log.Info().
				Str("table", table).
				Int64("deleted", count).
				Msg("Cleaned up expired cache entries")
			totalDeleted += count
		}
	}

	if totalDeleted > 0 {
		j.log.Info().
			Int64("total_deleted", totalDeleted).
			Msg("Cache cleanup completed")
	}

	return nil
}

// Name returns the job name for scheduling and logging
func (j *CacheCleanupJob) Name() string {
	return "cache_cleanup"
}
