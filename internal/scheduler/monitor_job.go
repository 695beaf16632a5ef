package scheduler

import (
	"github.com/rs/zerolog"

	"github.com/brunocrt/crew-investment-agents/internal/modules/analysis"
)

// MonitorJob submits an unscoped analysis on a schedule. With no tickers
// the pipeline scans the default candidate watchlist, so this gives a
// standing market sweep without any client involvement.
type MonitorJob struct {
	service *analysis.Service
	log     zerolog.Logger
}

// NewMonitorJob creates a new monitoring job
func NewMonitorJob(service *analysis.Service, log zerolog.Logger) *MonitorJob {
	return &MonitorJob{
		service: service,
		log:     log.With().Str("job", "market_monitor").Logger(),
	}
}

// Run submits a monitoring analysis
func (j *MonitorJob) Run() error {
	a, err := j.service.Submit(nil)
	if err != nil {
		j.log.Error().Err(err).Msg("Failed to submit monitoring analysis")
		return err
	}

	j.log.Info().Str("analysis_id", a.ID).Msg("Monitoring analysis submitted")
	return nil
}

// Name returns the job name for scheduling and logging
func (j *MonitorJob) Name() string {
	return "market_monitor"
}
