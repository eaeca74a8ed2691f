package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"fiftythirty/internal/amqp"
	"fiftythirty/internal/backend"
	"fiftythirty/internal/cli"
	"fiftythirty/internal/config"
	"fiftythirty/internal/log"
	"fiftythirty/internal/worker"
)

func main() {
	cfg, logger := cli.Bootstrap()
	logger = logger.WithComponent(log.ComponentWorker)

	if err := run(cfg, logger); err != nil {
		logger.Error("Overage worker failed", log.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Overage worker stopped")
}

func run(cfg *config.Config, logger *log.Logger) error {
	if !cfg.AMQPEnabled() {
		return errors.New("AMQP_URL is required for the overage worker")
	}

	ctx, cancel := cli.SignalContext(logger)
	defer cancel()

	// The worker only reads the store and writes the sheet; it opens its
	// own consumer below instead of a publishing notifier.
	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return fmt.Errorf("backend configuration: %w", err)
	}
	backendCfg.AMQPURL = ""
	res, err := backend.NewFactory(logger).CreateBackend(ctx, backendCfg)
	if err != nil {
		return fmt.Errorf("initialize %s backend: %w", cfg.DataBackend, err)
	}
	defer func() {
		if err := res.Cleanup(); err != nil {
			logger.Error("Backend cleanup failed", log.FieldError, err)
		}
	}()
	if res.Exporter == nil {
		logger.Info("Google Sheets disabled, overages are only logged")
	}

	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
	if err != nil {
		return fmt.Errorf("initialize AMQP client: %w", err)
	}
	defer client.Close()

	w := worker.NewOverageWorker(res.Store, res.Exporter, logger)
	logger.Info("Starting overage worker", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
	err = client.ConsumeOverage(ctx, w.HandleOverage)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("consume overage messages: %w", err)
	}
	return nil
}
