package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/rebalancer/internal/domain"
)

// PriceRefresher updates stored prices of one target from a broker.
type PriceRefresher interface {
	RefreshPrices(ctx context.Context, target domain.Target, broker domain.BrokerClient) (int, error)
}

// BrokerOpener opens a broker handle and returns its release func.
type BrokerOpener func(test bool) (domain.BrokerClient, func(), error)

// PriceRefreshJob refreshes product prices for both targets.
type PriceRefreshJob struct {
	refresher PriceRefresher
	brokers   BrokerOpener
	test      bool
	timeout   time.Duration
	log       zerolog.Logger
}

// NewPriceRefreshJob creates a job that refreshes prices through the test
// or real account. A zero timeout means five minutes per target.
func NewPriceRefreshJob(refresher PriceRefresher, brokers BrokerOpener, test bool, timeout time.Duration, log zerolog.Logger) *PriceRefreshJob {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &PriceRefreshJob{
		refresher: refresher,
		brokers:   brokers,
		test:      test,
		timeout:   timeout,
		log:       log.With().Str("job", "price_refresh").Logger(),
	}
}

// Name returns the job name
func (j *PriceRefreshJob) Name() string {
	return "price_refresh"
}

// Run refreshes each target in turn. A failing target does not stop the other.
func (j *PriceRefreshJob) Run() error {
	var errs []error
	for _, target := range []domain.Target{domain.TargetDomestic, domain.TargetOverseas} {
		updated, err := j.refresh(target)
		if err != nil {
			j.log.Error().Err(err).Str("target", string(target)).Msg("Price refresh failed")
			errs = append(errs, fmt.Errorf("%s: %w", target, err))
			continue
		}
		j.log.Info().Str("target", string(target)).Int("products", updated).Msg("Prices refreshed")
	}
	return errors.Join(errs...)
}

func (j *PriceRefreshJob) refresh(target domain.Target) (int, error) {
	broker, release, err := j.brokers(j.test)
	if err != nil {
		return 0, err
	}
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	return j.refresher.RefreshPrices(ctx, target, broker)
}
