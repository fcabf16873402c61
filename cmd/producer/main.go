// Package main runs the sample Kafka producer.
//
// It registers the Avro schema of gsr.schema_file in the Glue Schema Registry,
// writes one record per name and favorite number to kafka.topic and reports
// the run to the configured lineage transport.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/correlator-io/kafka-lineage/internal/config"
	"github.com/correlator-io/kafka-lineage/internal/logging"
	"github.com/correlator-io/kafka-lineage/internal/metrics"
	"github.com/correlator-io/kafka-lineage/internal/producer"
)

// Version information.
const (
	version = "1.0.0-dev"
	name    = "producer"
)

const (
	defaultMetricsAddr     = ""
	defaultShutdownTimeout = 10 * time.Second
)

//nolint:gochecknoglobals // sample data
var (
	names           = []string{"Francisco Doe", "Jane Smith", "John Doe"}
	favoriteNumbers = []int{6, 7, 42}
)

func main() {
	versionFlag := flag.Bool("version", false, "show version information")
	configPath := flag.String("config", "",
		"path to the YAML configuration file (default $"+config.ConfigPathEnvVar+" or "+config.DefaultConfigPath+")")
	metricsAddr := flag.String("metrics-addr", config.GetEnvStr(metrics.AddrEnvVar, defaultMetricsAddr),
		"address to listen on for prometheus metrics, empty disables")
	flag.Parse()

	if *versionFlag {
		log.Printf("%s v%s\n", name, version)
		os.Exit(0)
	}

	logger := logging.FromEnv()
	slog.SetDefault(logger)

	metrics.BuildInfo.WithLabelValues(name, version).Set(1)

	logger.Info("Starting producer",
		slog.String("service", name),
		slog.String("version", version),
		slog.String("config", *configPath),
	)

	if err := run(*configPath, *metricsAddr, logger); err != nil {
		logger.Error("Producer failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("Producer stopped")
}

func run(configPath, metricsAddr string, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	if metricsAddr != "" {
		if err := metrics.Start(ctx, metricsAddr, logger); err != nil {
			return err
		}
	}

	p, err := producer.New(ctx, cfg, producer.WithLogger(logger))
	if err != nil {
		return err
	}

	if err := p.Start(ctx); err != nil {
		_ = closeProducer(ctx, p, err)

		return err
	}

	sendErr := send(ctx, p, logger)

	return errors.Join(sendErr, closeProducer(ctx, p, sendErr))
}

// closeProducer delivers the terminal event even after ctx is canceled,
// bounded by LINEAGE_SHUTDOWN_TIMEOUT.
func closeProducer(ctx context.Context, p *producer.Producer, runErr error) error {
	closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx),
		config.GetEnvDuration(config.ShutdownTimeoutEnvVar, defaultShutdownTimeout))
	defer cancel()

	return p.Close(closeCtx, runErr)
}

func send(ctx context.Context, p *producer.Producer, logger *slog.Logger) error {
	for _, userName := range names {
		for _, number := range favoriteNumbers {
			record := map[string]any{"name": userName, "favorite_number": number}

			if err := p.Send(ctx, []byte(userName), record); err != nil {
				return err
			}

			logger.Info("Sent record",
				slog.String("name", userName),
				slog.Int("favorite_number", number))
		}
	}

	return nil
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.LoadFromEnv()
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	cfg.OverrideFromEnv()

	return cfg, nil
}
