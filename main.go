package main

import (
	"context"
	"log" // Use standard log only for initial fatal errors before logger is set up
	"math"
	"os/signal"
	"syscall"

	"radiustrend/config"
	"radiustrend/internal/adapters/binanceclient"
	"radiustrend/internal/adapters/logger"
	"radiustrend/internal/adapters/sqlite"
	"radiustrend/internal/domain"
	"radiustrend/internal/indicators"
	"radiustrend/internal/ports"
	"radiustrend/internal/utils"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err) // Use standard log before logger is ready
	}

	// 2. Initialize Logger
	appLogger := logger.NewStdLogger(cfg.LogLevel)
	ctx := context.Background()
	appLogger.Info(ctx, "Logger initialized", map[string]interface{}{"level": cfg.LogLevel.String()})

	// 3. Initialize Repository (Database Adapter)
	repo, err := sqlite.NewRepository(sqlite.Config{
		DBPath: cfg.DBPath,
		Logger: appLogger,
	})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize database repository")
		log.Fatalf("FATAL: Failed to initialize database repository: %v", err)
	}
	defer func() {
		if err := repo.Close(); err != nil {
			appLogger.Error(ctx, err, "Error closing database repository")
		}
	}()

	// 4. Initialize Exchange Client (Binance Adapter)
	client, err := binanceclient.New(binanceclient.Config{
		APIKey:               cfg.APIKey,
		SecretKey:            cfg.SecretKey,
		UseTestnet:           cfg.IsTestnet,
		Logger:               appLogger,
		ReconnectDelay:       cfg.ReconnectDelay,
		MaxReconnectAttempts: cfg.MaxReconnectAttempts,
	})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize Binance client")
		log.Fatalf("FATAL: Failed to initialize Binance client: %v", err)
	}

	// 5. Initialize Indicator
	indicator, err := indicators.NewRadiusTrend(indicators.RadiusTrendConfig{
		Step:       cfg.RadiusStep,
		Multi:      cfg.RadiusMulti,
		StepPeriod: cfg.RadiusStepPeriod,
	})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Invalid indicator parameters")
		log.Fatalf("FATAL: Invalid indicator parameters: %v", err)
	}

	// 6. Load kline history, topping up from the exchange when the local
	// store has less than the requested window.
	klines, err := loadHistory(ctx, cfg, appLogger, repo, client)
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to load kline history")
		log.Fatalf("FATAL: Failed to load kline history: %v", err)
	}

	// 7. Compute the full series and report the latest value.
	series, err := indicator.CalculateSeries(ctx, klines)
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Indicator computation failed")
		log.Fatalf("FATAL: Indicator computation failed: %v", err)
	}
	if len(klines) > 0 {
		logPoint(ctx, appLogger, cfg.Symbol, klines[len(klines)-1], lastPoint(series))
	}
	if len(klines) < indicator.RequiredDataPoints() {
		appLogger.Warn(ctx, "History shorter than indicator warm-up, all band values are undefined", map[string]interface{}{
			"bars":     len(klines),
			"required": indicator.RequiredDataPoints(),
		})
	}

	// 8. Optional CSV export of the computed series.
	if cfg.CSVPath != "" {
		if err := utils.WriteRadiusTrendCSV(klines, series, cfg.CSVPath); err != nil {
			appLogger.Error(ctx, err, "Failed to write CSV export")
			log.Fatalf("FATAL: Failed to write CSV export: %v", err)
		}
		appLogger.Info(ctx, "Series exported", map[string]interface{}{"path": cfg.CSVPath, "rows": len(klines)})
	}

	// 9. Live mode: recompute on every closed bar until interrupted.
	if cfg.Live {
		if err := runLive(ctx, cfg, appLogger, repo, client, indicator, klines); err != nil {
			appLogger.Error(ctx, err, "Live mode exited with error")
			log.Fatalf("FATAL: Live mode exited with error: %v", err)
		}
	}

	appLogger.Info(ctx, "Done.")
}

// loadHistory returns the most recent HistoryLimit klines, preferring the
// local store and fetching from the exchange when it falls short.
func loadHistory(ctx context.Context, cfg *config.Config, appLogger ports.Logger, repo ports.KlineRepository, client ports.MarketDataClient) ([]*domain.Kline, error) {
	klines, err := repo.FindBySymbolInterval(ctx, cfg.Symbol, cfg.Interval, cfg.HistoryLimit)
	if err != nil {
		return nil, err
	}
	if len(klines) >= cfg.HistoryLimit {
		appLogger.Info(ctx, "Loaded klines from local store", map[string]interface{}{"count": len(klines)})
		return klines, nil
	}

	appLogger.Info(ctx, "Local history insufficient, fetching from exchange", map[string]interface{}{
		"stored":    len(klines),
		"requested": cfg.HistoryLimit,
	})
	fetched, err := client.GetKlines(ctx, cfg.Symbol, cfg.Interval, cfg.HistoryLimit)
	if err != nil {
		return nil, err
	}
	if err := repo.SaveKlines(ctx, fetched); err != nil {
		return nil, err
	}
	appLogger.Info(ctx, "Fetched and stored klines", map[string]interface{}{"count": len(fetched)})
	return repo.FindBySymbolInterval(ctx, cfg.Symbol, cfg.Interval, cfg.HistoryLimit)
}

// runLive streams closed bars and recomputes the indicator over the carried
// history on each one. The algorithm has no incremental form; a full
// recompute per bar is the intended usage.
func runLive(ctx context.Context, cfg *config.Config, appLogger ports.Logger, repo ports.KlineRepository, client ports.MarketDataClient, indicator *indicators.RadiusTrend, history []*domain.Kline) error {
	liveCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	klines := make([]*domain.Kline, len(history))
	copy(klines, history)
	prevTrend := false
	prevDefined := false

	handler := func(k *domain.Kline) {
		if !k.IsFinal {
			return
		}
		// Replace the last bar when the stream re-delivers the same open
		// time, otherwise append and trim to the configured window.
		if len(klines) > 0 && klines[len(klines)-1].OpenTime.Equal(k.OpenTime) {
			klines[len(klines)-1] = k
		} else {
			klines = append(klines, k)
			if len(klines) > cfg.HistoryLimit {
				klines = klines[len(klines)-cfg.HistoryLimit:]
			}
		}
		if err := repo.SaveKlines(liveCtx, []*domain.Kline{k}); err != nil {
			appLogger.Error(liveCtx, err, "Failed to persist streamed kline")
		}
		// Keep the store bounded to the same window as the in-memory history.
		if err := repo.PruneKlines(liveCtx, cfg.Symbol, cfg.Interval, cfg.HistoryLimit); err != nil {
			appLogger.Error(liveCtx, err, "Failed to prune kline store")
		}

		point, err := indicator.Calculate(liveCtx, klines)
		if err != nil {
			appLogger.Error(liveCtx, err, "Indicator computation failed on streamed bar")
			return
		}
		logPoint(liveCtx, appLogger, cfg.Symbol, k, point)
		if prevDefined && point.Trend != prevTrend {
			direction := "down"
			if point.Trend {
				direction = "up"
			}
			appLogger.Info(liveCtx, "Trend reversal", map[string]interface{}{
				"symbol":    cfg.Symbol,
				"direction": direction,
				"close":     k.Close,
			})
		}
		prevTrend = point.Trend
		prevDefined = true
	}
	errHandler := func(err error) {
		appLogger.Warn(liveCtx, "Kline stream error", map[string]interface{}{"error": err.Error()})
	}

	doneCh, stopCh, err := client.StreamKlines(liveCtx, cfg.Symbol, cfg.Interval, handler, errHandler)
	if err != nil {
		return err
	}
	appLogger.Info(liveCtx, "Live mode started", map[string]interface{}{"symbol": cfg.Symbol, "interval": cfg.Interval})

	select {
	case <-liveCtx.Done():
		close(stopCh)
		<-doneCh
	case <-doneCh:
	}
	appLogger.Info(ctx, "Live mode stopped")
	return nil
}

func lastPoint(series indicators.RadiusTrendSeries) indicators.RadiusTrendPoint {
	last := len(series.Trend) - 1
	if last < 0 {
		return indicators.RadiusTrendPoint{MainBand: math.NaN(), OuterBand: math.NaN()}
	}
	return indicators.RadiusTrendPoint{
		Trend:     series.Trend[last],
		MainBand:  series.MainBand[last],
		OuterBand: series.OuterBand[last],
	}
}

func logPoint(ctx context.Context, appLogger ports.Logger, symbol string, k *domain.Kline, point indicators.RadiusTrendPoint) {
	fields := map[string]interface{}{
		"symbol": symbol,
		"time":   k.OpenTime,
		"close":  k.Close,
		"trend":  point.Trend,
	}
	if !math.IsNaN(point.MainBand) {
		fields["mainBand"] = point.MainBand
	}
	if !math.IsNaN(point.OuterBand) {
		fields["outerBand"] = point.OuterBand
	}
	appLogger.Info(ctx, "Radius Trend", fields)
}
