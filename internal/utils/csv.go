package utils

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"strconv"
	"time"

	"radiustrend/internal/domain"
	"radiustrend/internal/indicators"
)

// WriteKlinesToCSV writes a raw kline history.
func WriteKlinesToCSV(klines []*domain.Kline, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	// Write header
	writer.Write([]string{"open_time", "close_time", "symbol", "interval", "open", "high", "low", "close", "volume"})

	for _, k := range klines {
		writer.Write([]string{
			k.OpenTime.Format(time.RFC3339),
			k.CloseTime.Format(time.RFC3339),
			k.Symbol,
			k.Interval,
			strconv.FormatFloat(k.Open, 'f', -1, 64),
			strconv.FormatFloat(k.High, 'f', -1, 64),
			strconv.FormatFloat(k.Low, 'f', -1, 64),
			strconv.FormatFloat(k.Close, 'f', -1, 64),
			strconv.FormatFloat(k.Volume, 'f', -1, 64),
		})
	}
	return writer.Error()
}

// WriteRadiusTrendCSV writes a kline history and its computed Radius Trend
// series side by side. Undefined band values are written as empty cells.
func WriteRadiusTrendCSV(klines []*domain.Kline, series indicators.RadiusTrendSeries, filename string) error {
	if len(series.Trend) != len(klines) {
		return fmt.Errorf("series length %d does not match kline count %d", len(series.Trend), len(klines))
	}

	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	// Write header
	writer.Write([]string{"open_time", "open", "high", "low", "close", "volume", "trend", "main_band", "outer_band"})

	for i, k := range klines {
		writer.Write([]string{
			k.OpenTime.Format(time.RFC3339),
			strconv.FormatFloat(k.Open, 'f', -1, 64),
			strconv.FormatFloat(k.High, 'f', -1, 64),
			strconv.FormatFloat(k.Low, 'f', -1, 64),
			strconv.FormatFloat(k.Close, 'f', -1, 64),
			strconv.FormatFloat(k.Volume, 'f', -1, 64),
			strconv.FormatBool(series.Trend[i]),
			formatBand(series.MainBand[i]),
			formatBand(series.OuterBand[i]),
		})
	}
	return writer.Error()
}

func formatBand(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
