package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"radiustrend/config"
	"radiustrend/internal/adapters/binanceclient"
	"radiustrend/internal/adapters/logger"
	"radiustrend/internal/adapters/sqlite"
	"radiustrend/internal/utils"
)

func main() {
	days := flag.Int("days", 90, "number of days of history to fetch")
	csvPath := flag.String("csv", "", "optional CSV file to write the fetched klines to")
	flag.Parse()

	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err) // Use standard log before logger is ready
	}

	// 2. Initialize Logger
	appLogger := logger.NewStdLogger(cfg.LogLevel)
	ctx := context.Background()

	// 3. Initialize Repository (Database Adapter)
	repo, err := sqlite.NewRepository(sqlite.Config{
		DBPath: cfg.DBPath,
		Logger: appLogger,
	})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize database repository")
		log.Fatalf("FATAL: Failed to initialize database repository: %v", err)
	}
	defer repo.Close()

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

	end := time.Now()
	start := end.AddDate(0, 0, -*days)

	fmt.Printf("Fetching klines for %s %s from %s to %s...\n", cfg.Symbol, cfg.Interval, start.Format(time.RFC3339), end.Format(time.RFC3339))
	klines, err := client.GetKlinesRange(ctx, cfg.Symbol, cfg.Interval, start, end)
	if err != nil {
		appLogger.Error(ctx, err, "Error fetching klines")
		log.Fatalf("Error fetching klines: %v", err)
	}
	appLogger.Info(ctx, "Fetched klines", map[string]interface{}{"count": len(klines)})

	if err := repo.SaveKlines(ctx, klines); err != nil {
		appLogger.Error(ctx, err, "Error storing klines")
		log.Fatalf("Error storing klines: %v", err)
	}
	total, err := repo.CountBySymbolInterval(ctx, cfg.Symbol, cfg.Interval)
	if err != nil {
		appLogger.Error(ctx, err, "Error counting stored klines")
		log.Fatalf("Error counting stored klines: %v", err)
	}
	appLogger.Info(ctx, "Stored klines", map[string]interface{}{"fetched": len(klines), "totalStored": total, "db": cfg.DBPath})

	if *csvPath != "" {
		if err := utils.WriteKlinesToCSV(klines, *csvPath); err != nil {
			appLogger.Error(ctx, err, "Error writing CSV")
			log.Fatalf("Error writing CSV: %v", err)
		}
		appLogger.Info(ctx, "Saved to", map[string]interface{}{"filename": *csvPath})
	}
}
