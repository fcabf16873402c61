// Package main runs the sample Kafka consumer.
//
// It reads kafka.topic as a member of kafka.group_id, logs every decoded
// record and reports the run to the configured lineage transport until it
// receives SIGINT or SIGTERM.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/correlator-io/kafka-lineage/internal/config"
	"github.com/correlator-io/kafka-lineage/internal/consumer"
	"github.com/correlator-io/kafka-lineage/internal/logging"
	"github.com/correlator-io/kafka-lineage/internal/metrics"
)

// Version information.
const (
	version = "1.0.0-dev"
	name    = "consumer"
)

const defaultMetricsAddr = ":9090"

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

	logger.Info("Starting consumer",
		slog.String("service", name),
		slog.String("version", version),
		slog.String("config", *configPath),
	)

	if err := run(*configPath, *metricsAddr, logger); err != nil {
		logger.Error("Consumer failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("Consumer stopped")
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

	c, err := consumer.New(ctx, cfg,
		consumer.WithLogger(logger),
		consumer.WithShutdownTimeout(config.GetEnvDuration(config.ShutdownTimeoutEnvVar, consumer.DefaultShutdownTimeout)))
	if err != nil {
		return err
	}

	defer func() {
		_ = c.Close()
	}()

	return c.Run(ctx, func(_ context.Context, msg *consumer.Message) error {
		logger.Info("Received record",
			slog.Int("partition", msg.Partition),
			slog.Int64("offset", msg.Offset),
			slog.String("schema_version_id", msg.Record.SchemaVersionID.String()),
			slog.Any("record", msg.Record.Data))

		return nil
	})
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
