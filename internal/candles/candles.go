// Package candles provides the slicing helper between raw kline history and
// indicator input.
package candles

import "radiustrend/internal/domain"

// DefaultWarmup is the number of trailing bars kept when only the most
// recent indicator value is needed. It comfortably covers the longest
// lookback any indicator in this module uses.
const DefaultWarmup = 240

// Slice prepares a kline history for indicator computation. When sequential
// is true the full history is returned unchanged. When false, only the
// trailing DefaultWarmup bars are kept, which is enough for the last bar's
// value to be correct without reprocessing the entire history.
func Slice(klines []*domain.Kline, sequential bool) []*domain.Kline {
	if sequential || len(klines) <= DefaultWarmup {
		return klines
	}
	return klines[len(klines)-DefaultWarmup:]
}
