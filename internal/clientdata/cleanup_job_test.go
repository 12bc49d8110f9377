package clientdata

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	testutil "github.com/aristath/rebalancer/internal/testing"
)

func TestCleanupJob(t *testing.T) {
	repo, now := newTestRepo(t)
	job := NewCleanupJob(repo, testutil.NopLogger())

	assert.Equal(t, "client_data_cleanup", job.Name())

	require.NoError(t, repo.Store(TableQuotes, "expired", cachedQuote{Code: "A"}, time.Minute))
	require.NoError(t, repo.Store(TableQuotes, "fresh", cachedQuote{Code: "B"}, 24*time.Hour))
	*now = now.Add(time.Hour)

	require.NoError(t, job.Run())

	var q cachedQuote
	found, err := repo.Get(TableQuotes, "expired", &q)
	require.NoError(t, err)
	assert.False(t, found)

	found, err = repo.Get(TableQuotes, "fresh", &q)
	require.NoError(t, err)
	assert.True(t, found)
}

func TestCleanupJob_Sweep(t *testing.T) {
	testCases := []struct {
		name    string
		drop    string
		want    CleanupResult
		wantErr bool
	}{
		{"all caches", "", CleanupResult{Quotes: 2, FXRates: 1, AccountSnapshots: 1}, false},
		{"one cache unavailable", TableFXRates, CleanupResult{Quotes: 2, AccountSnapshots: 1}, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			repo, now := newTestRepo(t)
			job := NewCleanupJob(repo, testutil.NopLogger())

			require.NoError(t, repo.Store(TableQuotes, "A", cachedQuote{Code: "A"}, TTLCurrentPrice))
			require.NoError(t, repo.Store(TableQuotes, "B", cachedQuote{Code: "B"}, TTLCurrentPrice))
			require.NoError(t, repo.Store(TableQuotes, "C", cachedQuote{Code: "C"}, 24*time.Hour))
			require.NoError(t, repo.Store(TableFXRates, "USD/KRW", 1186.5, TTLExchangeRate))
			require.NoError(t, repo.Store(TableAccountSnapshots, "domestic", cachedQuote{Code: "acct"}, TTLAccountSnapshot))
			*now = now.Add(2 * time.Hour)

			if tc.drop != "" {
				_, err := repo.db.Exec("DROP TABLE " + tc.drop)
				require.NoError(t, err)
			}

			result, err := job.Sweep()
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tc.want, result)
			assert.Equal(t, tc.want.Quotes+tc.want.FXRates+tc.want.AccountSnapshots, result.Total())
		})
	}
}
