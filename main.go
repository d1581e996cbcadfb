package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	appconfig "github.com/ehutt/rent-radar/config"
	"github.com/ehutt/rent-radar/internal/channel"
	"github.com/ehutt/rent-radar/internal/fmr"
	"github.com/ehutt/rent-radar/logger"
	"github.com/ehutt/rent-radar/processor"
	"github.com/ehutt/rent-radar/reader/rentcast"
	"github.com/ehutt/rent-radar/writer"
)

func main() {
	log := logger.GetLogger()

	// Load environment variables from .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	configPath := flag.String("config", "config/config.yml", "Path to configuration file")
	flag.Parse()

	cfg, err := appconfig.LoadConfig(*configPath)
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		os.Exit(1)
	}

	log.WithFields(logger.Fields{
		"service": cfg.RentRadar.Name,
		"version": cfg.RentRadar.Version,
	}).Info("starting rent-radar")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if strings.ToLower(cfg.Logging.Level) == "report" {
		logger.InitCloudWatch(cfg.Storage.S3.Region, cfg.RentRadar.Name, cfg.Logging.DashboardName)
		logger.StartReport(ctx, log, 30*time.Second)
	}

	table, err := fmr.Load(cfg.Reference.FMRFile)
	if err != nil {
		log.WithError(err).Error("failed to load fmr reference table")
		os.Exit(1)
	}

	accessed := time.Now().UTC().Truncate(24 * time.Hour)

	channels := channel.NewChannels(
		cfg.Channels.RawBuffer,
		cfg.Channels.ViolationBuffer,
		cfg.Channels.ArchiveBuffer,
	)

	proc, err := processor.NewProcessor(cfg, table, channels, accessed)
	if err != nil {
		log.WithError(err).Error("failed to create processor")
		os.Exit(1)
	}

	var store writer.ViolationStore
	if cfg.Storage.Postgres.Enabled {
		store, err = writer.NewPostgresStore(cfg.Storage.Postgres.DSN())
		if err != nil {
			log.WithError(err).Error("failed to open violation store")
			os.Exit(1)
		}
	} else {
		if appconfig.IsProductionLike(appconfig.AppEnvironment()) {
			log.WithComponent("main").Error("postgres must be enabled in production-like environments")
			os.Exit(1)
		}
		log.WithComponent("main").Warn("postgres disabled; violations kept in memory only")
		store = writer.NewMemoryStore()
	}
	defer store.Close()

	violationWriter := writer.NewViolationWriter(cfg, store, channels)

	var archiveWriter *writer.ArchiveWriter
	if cfg.Storage.S3.Enabled {
		archiveWriter, err = writer.NewArchiveWriter(cfg, channels)
		if err != nil {
			log.WithError(err).Error("failed to create archive writer")
			os.Exit(1)
		}
	} else {
		log.WithComponent("main").Info("S3 storage disabled; skipping snapshot archive")
	}

	if err := violationWriter.Start(ctx); err != nil {
		log.WithError(err).Error("failed to start violation writer")
		os.Exit(1)
	}
	if archiveWriter != nil {
		if err := archiveWriter.Start(ctx); err != nil {
			log.WithError(err).Error("failed to start archive writer")
			os.Exit(1)
		}
	}
	if err := proc.Start(ctx); err != nil {
		log.WithError(err).Error("failed to start processor")
		os.Exit(1)
	}

	rcReader := rentcast.NewReader(cfg, channels)
	if err := rcReader.Start(ctx); err != nil {
		log.WithError(err).Error("failed to start rentcast reader")
		os.Exit(1)
	}

	log.Info("all components started successfully")

	// The crawl is a batch run: wait for the readers to finish or for a
	// shutdown signal, whichever comes first.
	crawlDone := make(chan struct{})
	go func() {
		rcReader.Wait()
		close(crawlDone)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-crawlDone:
		log.Info("crawl complete, draining pipeline")
	case sig := <-sigChan:
		log.WithFields(logger.Fields{"signal": sig.String()}).Info("shutdown signal received")
		cancel()
	}

	rcReader.Stop()
	channels.CloseRaw()

	proc.Stop()
	channels.CloseOutputs()

	violationWriter.Stop()
	if archiveWriter != nil {
		archiveWriter.Stop()
	}

	logger.LogRunSummary(log)
	log.Info("rent-radar stopped")
}
