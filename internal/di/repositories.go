package di

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/rebalancer/internal/clientdata"
	"github.com/aristath/rebalancer/internal/modules/portfolio"
	"github.com/aristath/rebalancer/internal/modules/reports"
	"github.com/aristath/rebalancer/internal/modules/settings"
	"github.com/aristath/rebalancer/internal/modules/trading"
)

// InitializeRepositories creates the repositories over the open databases.
func InitializeRepositories(container *Container, log zerolog.Logger) error {
	if container == nil || container.ConfigDB == nil || container.LedgerDB == nil {
		return fmt.Errorf("databases are not initialized")
	}

	container.SettingsRepo = settings.NewRepository(container.ConfigDB.Conn(), log)
	container.ProductRepo = portfolio.NewProductRepository(container.ConfigDB.Conn(), log)
	container.EntryRepo = portfolio.NewEntryRepository(container.ConfigDB.Conn(), log)
	container.HistoryRepo = portfolio.NewHistoryRepository(container.HistoryDB.Conn(), log)
	container.ReportRepo = reports.NewRepository(container.LedgerDB.Conn(), log)
	container.OrderRepo = trading.NewOrderRepository(container.LedgerDB.Conn(), log)
	container.ClientDataRepo = clientdata.NewRepository(container.ClientDataDB.Conn())

	log.Debug().Msg("Repositories initialized")
	return nil
}
