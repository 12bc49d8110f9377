// Package currency resolves the USD/KRW rate used to combine domestic and
// overseas holdings.
package currency

import (
	"context"

	"github.com/rs/zerolog"
)

// Rate sources, in the order they are tried.
const (
	SourceBroker   = "broker"
	SourceExchange = "exchangerate"
	SourceFallback = "fallback"
)

// BrokerRateSource is satisfied by domain.BrokerClient.
type BrokerRateSource interface {
	CurrencyRate(ctx context.Context) (float64, error)
}

// RateFetcher is satisfied by the exchangerate client.
type RateFetcher interface {
	GetRate(fromCurrency, toCurrency string) (float64, error)
}

// Quote is a resolved rate and where it came from.
type Quote struct {
	Rate   float64 `json:"rate"`
	Source string  `json:"source"`
}

// Service returns the KRW price of one USD with a fixed fallback chain.
type Service struct {
	fetcher  RateFetcher
	fallback float64
	log      zerolog.Logger
}

// NewService creates the currency service. fetcher may be nil.
func NewService(fetcher RateFetcher, fallback float64, log zerolog.Logger) *Service {
	return &Service{
		fetcher:  fetcher,
		fallback: fallback,
		log:      log.With().Str("service", "currency").Logger(),
	}
}

// Rate tries the broker, then the public exchange rate endpoint, then the
// configured constant. It never fails. broker may be nil.
func (s *Service) Rate(ctx context.Context, broker BrokerRateSource) Quote {
	if broker != nil {
		rate, err := broker.CurrencyRate(ctx)
		if err == nil && rate > 0 {
			s.log.Debug().Float64("rate", rate).Str("source", SourceBroker).Msg("Got rate from broker")
			return Quote{Rate: rate, Source: SourceBroker}
		}
		s.log.Warn().Err(err).Float64("rate", rate).Msg("Broker rate unavailable, trying exchange rate API")
	}

	if s.fetcher != nil {
		rate, err := s.fetcher.GetRate("USD", "KRW")
		if err == nil && rate > 0 {
			s.log.Debug().Float64("rate", rate).Str("source", SourceExchange).Msg("Got rate from exchange rate API")
			return Quote{Rate: rate, Source: SourceExchange}
		}
		s.log.Warn().Err(err).Msg("Exchange rate API failed, using fallback rate")
	}

	s.log.Warn().Float64("rate", s.fallback).Str("source", SourceFallback).Msg("Using configured fallback rate")
	return Quote{Rate: s.fallback, Source: SourceFallback}
}
