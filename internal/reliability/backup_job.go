package reliability

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// BackupRetentionDays is how long rotated backups are kept
const BackupRetentionDays = 30

// BackupJob runs the nightly backup and rotation
type BackupJob struct {
	service *BackupService
	log     zerolog.Logger
}

// NewBackupJob creates a new backup job
func NewBackupJob(service *BackupService, log zerolog.Logger) *BackupJob {
	return &BackupJob{
		service: service,
		log:     log.With().Str("job", "cloud_backup").Logger(),
	}
}

// Run creates and uploads a backup, then rotates old ones
func (j *BackupJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Minute)
	defer cancel()

	if err := j.service.CreateAndUploadBackup(ctx); err != nil {
		return err
	}

	if err := j.service.RotateOldBackups(ctx, BackupRetentionDays); err != nil {
		j.log.Warn().Err(err).Msg("Backup rotation failed")
	}
	return nil
}

// Name returns the job name for scheduling and logging
func (j *BackupJob) Name() string {
	return "cloud_backup"
}
