package portfolio

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/aristath/rebalancer/internal/domain"
)

// SeedFile is the YAML layout of a portfolio seed.
//
//	products:
//	  - code: "005930"
//	    name: Samsung Electronics
//	    market: KRX
//	    weight: 2
//	    use: true
type SeedFile struct {
	Products []SeedProduct `yaml:"products"`
}

// SeedProduct is one instrument and its target weight.
type SeedProduct struct {
	Code   string  `yaml:"code"`
	Name   string  `yaml:"name"`
	Market string  `yaml:"market"`
	Weight float64 `yaml:"weight"`
	Use    *bool   `yaml:"use"`
}

// Seeder loads products and weights into config.db.
type Seeder struct {
	products *ProductRepository
	entries  *EntryRepository
	log      zerolog.Logger
}

// NewSeeder creates a new portfolio seeder
func NewSeeder(products *ProductRepository, entries *EntryRepository, log zerolog.Logger) *Seeder {
	return &Seeder{
		products: products,
		entries:  entries,
		log:      log.With().Str("component", "portfolio_seeder").Logger(),
	}
}

// SeedFromFile reads path and applies it with Seed.
func (s *Seeder) SeedFromFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read seed file: %w", err)
	}
	return s.Seed(data)
}

// Seed inserts the products that are not known yet, with their weights.
// Existing products and entries are left untouched so operator edits survive restarts.
func (s *Seeder) Seed(data []byte) (int, error) {
	var file SeedFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return 0, fmt.Errorf("failed to parse seed file: %w", err)
	}

	added := 0
	for i, sp := range file.Products {
		if sp.Code == "" || sp.Name == "" {
			return added, &domain.ConfigurationError{Field: fmt.Sprintf("products[%d]", i), Reason: "code and name are required"}
		}
		market, err := domain.ParseMarketCode(sp.Market)
		if err != nil {
			return added, &domain.ConfigurationError{Field: fmt.Sprintf("products[%d].market", i), Reason: err.Error()}
		}
		if sp.Weight < 0 {
			return added, &domain.ConfigurationError{Field: fmt.Sprintf("products[%d].weight", i), Reason: "must not be negative"}
		}

		existing, err := s.products.GetByCode(sp.Code)
		if err != nil {
			return added, err
		}
		if existing != nil {
			continue
		}

		if err := s.products.Upsert(Product{Code: sp.Code, Name: sp.Name, Market: market}); err != nil {
			return added, err
		}
		use := true
		if sp.Use != nil {
			use = *sp.Use
		}
		if err := s.entries.Upsert(sp.Code, sp.Weight, use); err != nil {
			return added, err
		}
		added++
	}

	s.log.Info().Int("added", added).Int("total", len(file.Products)).Msg("Portfolio seeded")
	return added, nil
}
