// Package portfolio manages the instruments, target weights and price
// history that the planner consumes.
package portfolio

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/rebalancer/internal/domain"
	"github.com/aristath/rebalancer/internal/events"
)

// Service refreshes and serves product prices.
type Service struct {
	products *ProductRepository
	entries  *EntryRepository
	history  *HistoryRepository
	events   *events.Manager
	log      zerolog.Logger
}

// NewService creates a new portfolio service
func NewService(
	products *ProductRepository,
	entries *EntryRepository,
	history *HistoryRepository,
	eventManager *events.Manager,
	log zerolog.Logger,
) *Service {
	return &Service{
		products: products,
		entries:  entries,
		history:  history,
		events:   eventManager,
		log:      log.With().Str("service", "portfolio").Logger(),
	}
}

// RefreshPrices fetches a quote and the daily history for every product of
// the target, one request at a time, then stores them. The product table is
// only written once every quote has been fetched.
func (s *Service) RefreshPrices(ctx context.Context, target domain.Target, broker domain.BrokerClient) (int, error) {
	products, err := s.products.List(target)
	if err != nil {
		return 0, err
	}

	s.log.Info().Str("target", string(target)).Int("products", len(products)).Msg("Refreshing prices")

	histories := make(map[string][]HistoryRow, len(products))
	for i := range products {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		p := &products[i]

		quote, err := broker.Quote(ctx, p.Code, p.Market)
		if err != nil {
			return 0, domain.External(fmt.Sprintf("quote %s", p.Code), err)
		}
		p.SetPrice(*quote)

		bars, err := broker.PriceHistory(ctx, p.Code, p.Market)
		if err != nil {
			return 0, domain.External(fmt.Sprintf("price history %s", p.Code), err)
		}
		rows := make([]HistoryRow, 0, len(bars))
		for _, b := range bars {
			rows = append(rows, HistoryRow{
				ProductCode:  p.Code,
				ProductName:  p.Name,
				StandardDate: b.Date.Format("20060102"),
				Minimum:      b.Minimum,
				Maximum:      b.Maximum,
				Opening:      b.Opening,
				Closing:      b.Closing,
			})
		}
		histories[p.Code] = rows
	}

	if err := s.products.UpdatePrices(products); err != nil {
		return 0, err
	}

	historyRows := 0
	for code, rows := range histories {
		if err := s.history.Replace(code, rows); err != nil {
			return 0, err
		}
		historyRows += len(rows)
	}

	s.log.Info().
		Str("target", string(target)).
		Int("products", len(products)).
		Int("history_rows", historyRows).
		Msg("Prices refreshed")

	if s.events != nil {
		s.events.EmitTyped("portfolio", &events.PricesRefreshedData{
			Target:   string(target),
			Products: len(products),
			History:  historyRows,
		})
	}

	return len(products), nil
}

// Prices returns the stored products of the target.
func (s *Service) Prices(target domain.Target) ([]Product, error) {
	return s.products.List(target)
}

// Entries returns every portfolio entry of the target, included or not.
func (s *Service) Entries(target domain.Target) ([]domain.PortfolioEntry, error) {
	return s.entries.ListAll(target)
}

// IncludedEntries returns the entries that take part in planning.
func (s *Service) IncludedEntries(target domain.Target) ([]domain.PortfolioEntry, error) {
	return s.entries.ListIncluded(target)
}

// UpdateEntry changes the weight or inclusion flag of a product.
func (s *Service) UpdateEntry(code string, u EntryUpdate) (bool, error) {
	return s.entries.Update(code, u)
}

// History returns the stored price history of a product.
func (s *Service) History(code string) ([]HistoryRow, error) {
	return s.history.List(code)
}
