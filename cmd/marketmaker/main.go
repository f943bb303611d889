package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/erain9/tinyme/pkg/logging"
	"github.com/erain9/tinyme/pkg/marketmaker"
	"github.com/rs/zerolog/log"
)

func main() {
	logging.Setup(logging.Config{Level: "debug", Pretty: true})
	logger := log.Logger

	cfg, err := marketmaker.LoadConfig()
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	orderPlacer := marketmaker.NewHTTPOrderPlacer(cfg, logger)
	defer orderPlacer.Close()

	priceFetcher, err := marketmaker.NewPriceFetcher(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create price fetcher")
	}
	defer priceFetcher.Close()

	strategy := marketmaker.NewLayeredSymmetricQuoting(cfg, logger)
	mm := marketmaker.NewMarketMaker(cfg, logger, orderPlacer, priceFetcher, strategy)
	mm.Start(ctx)

	<-ctx.Done()
	logger.Info().Msg("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := mm.Stop(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Error during shutdown")
		os.Exit(1)
	}

	logger.Info().Msg("Market maker service stopped successfully")
}
