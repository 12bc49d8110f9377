package di

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/rebalancer/internal/clients/exchangerate"
	"github.com/aristath/rebalancer/internal/config"
	"github.com/aristath/rebalancer/internal/domain"
	"github.com/aristath/rebalancer/internal/events"
	"github.com/aristath/rebalancer/internal/modules/currency"
	"github.com/aristath/rebalancer/internal/modules/portfolio"
	"github.com/aristath/rebalancer/internal/modules/reports"
	"github.com/aristath/rebalancer/internal/modules/settings"
	"github.com/aristath/rebalancer/internal/modules/trading"
	"github.com/aristath/rebalancer/internal/reliability"
)

// InitializeServices creates the services. Stored settings are applied to
// cfg first, so they take precedence over the environment.
func InitializeServices(container *Container, cfg *config.Config, log zerolog.Logger) error {
	if container == nil || container.SettingsRepo == nil {
		return fmt.Errorf("repositories are not initialized")
	}

	if err := cfg.UpdateFromSettings(container.SettingsRepo); err != nil {
		return fmt.Errorf("failed to apply stored settings: %w", err)
	}
	if _, err := container.SettingsRepo.SeedDefaults(settings.DefaultsFor(cfg.Allocation, cfg.Account.IsTest())); err != nil {
		return err
	}

	if cfg.SeedFile != "" {
		seeder := portfolio.NewSeeder(container.ProductRepo, container.EntryRepo, log)
		added, err := seeder.SeedFromFile(cfg.SeedFile)
		if err != nil {
			return fmt.Errorf("failed to seed portfolio: %w", err)
		}
		log.Info().Int("added", added).Str("file", cfg.SeedFile).Msg("Portfolio seeded")
	}

	container.EventBus = events.NewBus(log)
	container.EventManager = events.NewManager(container.EventBus, log)

	container.ExchangeRateClient = exchangerate.NewClient(cfg.Currency.FXURL, container.ClientDataRepo, log)
	container.CurrencyService = currency.NewService(container.ExchangeRateClient, cfg.Currency.FallbackRate, log)

	container.PortfolioService = portfolio.NewService(
		container.ProductRepo,
		container.EntryRepo,
		container.HistoryRepo,
		container.EventManager,
		log,
	)

	container.BrokerPool = NewBrokerPool(cfg, container.ClientDataRepo, log)
	container.Brokers = container.BrokerPool.Open

	base := cfg.Allocation
	container.ReportService = reports.NewService(
		container.ReportRepo,
		container.OrderRepo,
		container.PortfolioService,
		container.CurrencyService,
		container.Brokers,
		container.EventManager,
		reports.ServiceConfig{
			Settings: base,
			LoadSettings: func() (domain.AllocationSettings, error) {
				return container.SettingsRepo.Allocation(base)
			},
			DefaultTest: cfg.Account.IsTest(),
			AccountFor:  accountFor(cfg),
			Wait: trading.WaitOptions{
				Timeout:    cfg.Wait.Timeout,
				RetryDelay: cfg.Wait.RetryDelay,
			},
		},
		log,
	)

	if cfg.Archive.Enabled {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		store, err := reliability.NewS3Client(ctx, reliability.S3Config{
			Bucket:    cfg.Archive.Bucket,
			Endpoint:  cfg.Archive.Endpoint,
			Region:    cfg.Archive.Region,
			AccessKey: cfg.Archive.AccessKey,
			SecretKey: cfg.Archive.SecretKey,
		}, log)
		if err != nil {
			return fmt.Errorf("failed to create archive store: %w", err)
		}
		container.ArchiveService = reliability.NewArchiveService(store, container.ReportService, container.EventManager, log)
		log.Info().Str("bucket", cfg.Archive.Bucket).Msg("Report archiving enabled")
	}

	log.Debug().Msg("Services initialized")
	return nil
}
