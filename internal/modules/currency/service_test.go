package currency

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	testutil "github.com/aristath/rebalancer/internal/testing"
)

type stubFetcher struct {
	rate  float64
	err   error
	calls int
}

func (f *stubFetcher) GetRate(from, to string) (float64, error) {
	f.calls++
	return f.rate, f.err
}

func TestRate_FallbackChain(t *testing.T) {
	testCases := []struct {
		name        string
		brokerRate  float64
		brokerErr   error
		fetchRate   float64
		fetchErr    error
		noBroker    bool
		expected    Quote
		fetchCalled bool
	}{
		{
			name:       "broker answers",
			brokerRate: 1310,
			fetchRate:  1300,
			expected:   Quote{Rate: 1310, Source: SourceBroker},
		},
		{
			name:        "broker fails",
			brokerErr:   errors.New("session expired"),
			fetchRate:   1300,
			expected:    Quote{Rate: 1300, Source: SourceExchange},
			fetchCalled: true,
		},
		{
			name:        "broker returns zero",
			brokerRate:  0,
			fetchRate:   1300,
			expected:    Quote{Rate: 1300, Source: SourceExchange},
			fetchCalled: true,
		},
		{
			name:        "everything fails",
			brokerErr:   errors.New("down"),
			fetchErr:    errors.New("down"),
			expected:    Quote{Rate: 1186.50, Source: SourceFallback},
			fetchCalled: true,
		},
		{
			name:        "no broker handle",
			noBroker:    true,
			fetchRate:   1299,
			expected:    Quote{Rate: 1299, Source: SourceExchange},
			fetchCalled: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			fetcher := &stubFetcher{rate: tc.fetchRate, err: tc.fetchErr}
			svc := NewService(fetcher, 1186.50, testutil.NopLogger())

			var broker BrokerRateSource
			if !tc.noBroker {
				mock := testutil.NewMockBroker()
				mock.Rate = tc.brokerRate
				mock.RateErr = tc.brokerErr
				broker = mock
			}

			got := svc.Rate(context.Background(), broker)
			assert.Equal(t, tc.expected, got)
			assert.Equal(t, tc.fetchCalled, fetcher.calls > 0)
		})
	}
}

func TestRate_NoFetcher(t *testing.T) {
	svc := NewService(nil, 1186.50, testutil.NopLogger())
	assert.Equal(t, Quote{Rate: 1186.50, Source: SourceFallback}, svc.Rate(context.Background(), nil))
}
