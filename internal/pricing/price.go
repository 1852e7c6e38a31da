// Package pricing converts configured USD service prices into millisatoshi
// invoice amounts using a live BTC/USD quote.
package pricing

import (
	"math"

	"github.com/you/paygate/internal/domain"
)

// PriceToMillisats converts a USD price to millisatoshis at the given
// BTC/USD rate, applies the profit margin, and rounds to the nearest
// 1000 msat. Pure; the rate is sampled once at invoice issuance and the
// result is fixed for the lifetime of that invoice.
func PriceToMillisats(usd, btcUSDRate, marginPct float64) (int64, error) {
	if btcUSDRate <= 0 {
		return 0, domain.ErrInvalidRate
	}
	raw := usd * 1e11 * (1 + marginPct/100) / btcUSDRate
	return int64(math.Round(raw/1000)) * 1000, nil
}
