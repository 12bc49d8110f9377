package clientdata

import "time"

// TTL constants, added to time.Now() when storing.
const (
	TTLExchangeRate    = time.Hour        // FX moves slowly relative to a rebalancing run
	TTLCurrentPrice    = 10 * time.Minute // Quotes reused across a plan/execute sequence
	TTLAccountSnapshot = time.Minute      // Last-known holdings for the health view
)
