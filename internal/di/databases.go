package di

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/rebalancer/internal/config"
	"github.com/aristath/rebalancer/internal/database"
)

type databaseSpec struct {
	name    string
	profile database.DatabaseProfile
	dst     func(*Container) **database.DB
}

var databaseSpecs = []databaseSpec{
	// settings, products, portfolio weights
	{database.NameConfig, database.ProfileStandard, func(c *Container) **database.DB { return &c.ConfigDB }},
	// reports, plans and submitted orders; every write is fsynced
	{database.NameLedger, database.ProfileLedger, func(c *Container) **database.DB { return &c.LedgerDB }},
	// price history
	{database.NameHistory, database.ProfileStandard, func(c *Container) **database.DB { return &c.HistoryDB }},
	// broker and FX response cache, can be refetched
	{database.NameClientData, database.ProfileCache, func(c *Container) **database.DB { return &c.ClientDataDB }},
}

// InitializeDatabases opens the four databases in DataDir and applies their schemas.
func InitializeDatabases(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	container := &Container{}

	for _, spec := range databaseSpecs {
		db, err := database.New(database.Config{
			Path:    cfg.DatabasePath(spec.name),
			Profile: spec.profile,
			Name:    spec.name,
		})
		if err != nil {
			container.Close()
			return nil, fmt.Errorf("failed to initialize %s database: %w", spec.name, err)
		}
		*spec.dst(container) = db

		if err := db.Migrate(); err != nil {
			container.Close()
			return nil, fmt.Errorf("failed to migrate %s database: %w", spec.name, err)
		}
	}

	log.Info().Int("count", len(databaseSpecs)).Str("data_dir", cfg.DataDir).Msg("Databases initialized")
	return container, nil
}
