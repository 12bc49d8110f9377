package clientdata

import (
	"github.com/rs/zerolog"
)

// CleanupResult counts the expired rows removed per cache.
type CleanupResult struct {
	Quotes           int64 `json:"quotes"`
	FXRates          int64 `json:"fx_rates"`
	AccountSnapshots int64 `json:"account_snapshots"`
}

// Total is the number of rows removed across caches.
func (r CleanupResult) Total() int64 {
	return r.Quotes + r.FXRates + r.AccountSnapshots
}

// CleanupJob drops expired quotes, FX rates and account snapshots so
// client_data.db only holds entries a stale fallback could still serve.
type CleanupJob struct {
	repo *Repository
	log  zerolog.Logger
}

// NewCleanupJob creates the cache cleanup job.
func NewCleanupJob(repo *Repository, log zerolog.Logger) *CleanupJob {
	return &CleanupJob{
		repo: repo,
		log:  log.With().Str("job", "client_data_cleanup").Logger(),
	}
}

// Sweep removes expired entries and reports what each cache lost. Counts of
// caches that were swept are returned even when another cache failed.
func (j *CleanupJob) Sweep() (CleanupResult, error) {
	deleted, err := j.repo.DeleteAllExpired()
	result := CleanupResult{
		Quotes:           deleted[TableQuotes],
		FXRates:          deleted[TableFXRates],
		AccountSnapshots: deleted[TableAccountSnapshots],
	}
	event := j.log.Info()
	if result.Total() == 0 {
		event = j.log.Debug()
	}
	event.
		Int64("quotes", result.Quotes).
		Int64("fx_rates", result.FXRates).
		Int64("account_snapshots", result.AccountSnapshots).
		Msg("Expired cache entries removed")

	if err != nil {
		j.log.Error().Err(err).Msg("Cache cleanup incomplete")
	}
	return result, err
}

// Run implements scheduler.Job.
func (j *CleanupJob) Run() error {
	_, err := j.Sweep()
	return err
}

// Name returns the job name for scheduling and logging.
func (j *CleanupJob) Name() string {
	return "client_data_cleanup"
}
