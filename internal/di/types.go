/**
 * Package di provides dependency injection type definitions.
 *
 * The Container holds every long-lived dependency of the service. It is
 * created by Wire() and handed to the HTTP server.
 */
package di

import (
	"github.com/aristath/rebalancer/internal/clientdata"
	"github.com/aristath/rebalancer/internal/clients/exchangerate"
	"github.com/aristath/rebalancer/internal/database"
	"github.com/aristath/rebalancer/internal/events"
	"github.com/aristath/rebalancer/internal/modules/currency"
	"github.com/aristath/rebalancer/internal/modules/portfolio"
	"github.com/aristath/rebalancer/internal/modules/reports"
	"github.com/aristath/rebalancer/internal/modules/settings"
	"github.com/aristath/rebalancer/internal/modules/trading"
	"github.com/aristath/rebalancer/internal/reliability"
	"github.com/aristath/rebalancer/internal/scheduler"
)

/**
 * Container holds all dependencies for the application.
 *
 * Architecture:
 * - Databases: config, ledger, history, client_data
 * - Repositories: settings, products, weights, price history, reports, orders, cache
 * - Services: currency, portfolio, reports, archive
 * - Brokers: one shared gateway session per account, from BrokerPool
 */
type Container struct {
	// Databases
	ConfigDB     *database.DB
	LedgerDB     *database.DB
	HistoryDB    *database.DB
	ClientDataDB *database.DB

	// Repositories
	SettingsRepo   *settings.Repository
	ProductRepo    *portfolio.ProductRepository
	EntryRepo      *portfolio.EntryRepository
	HistoryRepo    *portfolio.HistoryRepository
	ReportRepo     *reports.Repository
	OrderRepo      *trading.OrderRepository
	ClientDataRepo *clientdata.Repository

	// Events
	EventBus     *events.Bus
	EventManager *events.Manager

	// Clients
	ExchangeRateClient *exchangerate.Client
	BrokerPool         *BrokerPool
	Brokers            reports.BrokerFactory

	// Services
	CurrencyService  *currency.Service
	PortfolioService *portfolio.Service
	ReportService    *reports.Service
	ArchiveService   *reliability.ArchiveService // nil when archiving is disabled

	Scheduler *scheduler.Scheduler
}

// JobInstances holds the scheduled jobs for manual triggering.
type JobInstances struct {
	PriceRefresh      scheduler.Job
	CacheCleanup      scheduler.Job
	WALCheck          scheduler.Job
	DailyMaintenance  scheduler.Job
	WeeklyMaintenance scheduler.Job
}

// All returns every job instance.
func (j *JobInstances) All() []scheduler.Job {
	return []scheduler.Job{j.PriceRefresh, j.CacheCleanup, j.WALCheck, j.DailyMaintenance, j.WeeklyMaintenance}
}

// Databases returns the open databases by name.
func (c *Container) Databases() map[string]*database.DB {
	return map[string]*database.DB{
		database.NameConfig:     c.ConfigDB,
		database.NameLedger:     c.LedgerDB,
		database.NameHistory:    c.HistoryDB,
		database.NameClientData: c.ClientDataDB,
	}
}

// Close stops background work and closes the databases.
func (c *Container) Close() {
	if c.Scheduler != nil {
		c.Scheduler.Stop()
	}
	if c.ReportService != nil {
		c.ReportService.Close()
	}
	if c.BrokerPool != nil {
		c.BrokerPool.Close()
	}
	for _, db := range c.Databases() {
		if db != nil {
			db.Close()
		}
	}
}
