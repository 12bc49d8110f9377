package di

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/rebalancer/internal/clientdata"
	"github.com/aristath/rebalancer/internal/config"
	"github.com/aristath/rebalancer/internal/reliability"
	"github.com/aristath/rebalancer/internal/scheduler"
)

// RegisterJobs creates the background jobs and schedules them. An empty
// schedule leaves a job registered for manual runs only.
func RegisterJobs(container *Container, cfg *config.Config, log zerolog.Logger) (*JobInstances, error) {
	if container == nil {
		return nil, fmt.Errorf("container cannot be nil")
	}

	databases := container.Databases()
	instances := &JobInstances{
		PriceRefresh: scheduler.NewPriceRefreshJob(
			container.PortfolioService,
			scheduler.BrokerOpener(container.Brokers),
			cfg.Account.IsTest(),
			0,
			log,
		),
		CacheCleanup:      clientdata.NewCleanupJob(container.ClientDataRepo, log),
		WALCheck:          scheduler.NewCheckWALCheckpointsJob(databases, log),
		DailyMaintenance:  reliability.NewDailyMaintenanceJob(databases, cfg.DataDir, log),
		WeeklyMaintenance: reliability.NewWeeklyMaintenanceJob(databases, log),
	}

	container.Scheduler = scheduler.New(log)

	schedules := []struct {
		schedule string
		job      scheduler.Job
	}{
		{cfg.Scheduler.PriceRefresh, instances.PriceRefresh},
		{cfg.Scheduler.CacheCleanup, instances.CacheCleanup},
		{cfg.Scheduler.Maintenance, instances.WALCheck},
		{cfg.Scheduler.Maintenance, instances.DailyMaintenance},
		{cfg.Scheduler.Vacuum, instances.WeeklyMaintenance},
	}
	for _, s := range schedules {
		if s.schedule == "" {
			log.Info().Str("job", s.job.Name()).Msg("Job has no schedule")
			continue
		}
		if err := container.Scheduler.AddJob(s.schedule, s.job); err != nil {
			return nil, fmt.Errorf("failed to schedule %s: %w", s.job.Name(), err)
		}
	}

	return instances, nil
}
