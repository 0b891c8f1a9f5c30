package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"pictor/internal/catalog"
	"pictor/internal/config"
	"pictor/internal/database"
	"pictor/internal/events"
	"pictor/internal/exif"
	"pictor/internal/indexer"
	"pictor/internal/logging"
	"pictor/internal/metrics"
)

// Version of the application
var Version = "1.0.0"

func main() {
	appConfig, err := config.LoadConfig()
	if err != nil {
		logging.Errorf("Failed to load configuration: %v", err)
		os.Exit(1)
	}

	logger := logging.InitGlobalLogger(
		logging.LogLevel(appConfig.Logging.Level), appConfig.Logging.Format)
	log := logger.Zerolog()
	log.Info().Str("version", Version).Msg("Starting pictor indexing engine")

	dbManager, err := database.NewDatabaseManager(&appConfig.Database, &log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to catalog database")
	}
	defer dbManager.Close()

	if err := dbManager.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("Failed to migrate catalog schema")
	}

	m := metrics.New(prometheus.DefaultRegisterer)
	store := catalog.NewGormStore(dbManager.GetGormDB())
	bus := events.NewBroker(appConfig.Index.EventQueueSize)

	watch, err := indexer.NewWatchQueue(appConfig.Index.MaxWatchErrors, m, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to start filesystem watcher")
	}
	defer watch.Close()

	status := indexer.NewStatusSink(bus)
	refs := indexer.NewReferenceCache(store, log)
	diff := indexer.NewDiffEngine(store, status, m, log)
	scanner := indexer.NewFolderScanner(store, diff, watch, bus, m, nil, log)
	tags := indexer.NewTagIngestor(store, refs, bus, log)
	meta := indexer.NewMetadataScheduler(store, exif.NewGoexifExtractor(log), refs, tags,
		status, m, appConfig.Index.MetadataBatchSize, appConfig.Index.ExtractionsPerSecond, log)

	orchestrator := indexer.NewOrchestrator(appConfig.Index, store, scanner, meta,
		watch, refs, status, log)

	if appConfig.Metrics.Listen != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			log.Info().Str("listen", appConfig.Metrics.Listen).Msg("Serving metrics")
			if err := http.ListenAndServe(appConfig.Metrics.Listen, mux); err != nil {
				log.Error().Err(err).Msg("Metrics endpoint failed")
			}
		}()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	orchestrator.Start(ctx)

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c

	log.Info().Msg("Shutting down gracefully...")
	cancel()
	orchestrator.Stop()
}
