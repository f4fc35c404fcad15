// Command reporter polls a UniFi controller on a schedule, classifies
// what happened into severity-tagged findings, and delivers the result
// by email or file.
//
// Exit codes: 0 success, 1 configuration error, 2 connection error,
// 3 delivery error.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/unifi-insight/reporter/internal/circuitbreaker"
	"github.com/unifi-insight/reporter/internal/collector"
	"github.com/unifi-insight/reporter/internal/config"
	"github.com/unifi-insight/reporter/internal/delivery"
	"github.com/unifi-insight/reporter/internal/health"
	"github.com/unifi-insight/reporter/internal/integration"
	"github.com/unifi-insight/reporter/internal/logging"
	"github.com/unifi-insight/reporter/internal/metrics"
	"github.com/unifi-insight/reporter/internal/monitoring"
	"github.com/unifi-insight/reporter/internal/pipeline"
	"github.com/unifi-insight/reporter/internal/rules"
	"github.com/unifi-insight/reporter/internal/scheduler"
	"github.com/unifi-insight/reporter/internal/state"
	"github.com/unifi-insight/reporter/internal/unifi"
)

const (
	exitOK         = 0
	exitConfig     = 1
	exitConnection = 2
	exitDelivery   = 3
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	testMode := flag.Bool("test", false, "validate configuration, probe the controller, and exit")
	once := flag.Bool("once", false, "run a single report cycle even when a schedule is configured")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "reporter: %v\n", err)
		return exitConfig
	}

	logger, err := logging.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "reporter: logger: %v\n", err)
		return exitConfig
	}
	defer logger.Sync()

	warnings, err := cfg.Validate()
	for _, w := range warnings {
		logger.Warn("configuration warning", zap.String("warning", w))
	}
	if err != nil {
		logger.Error("configuration invalid", zap.Error(err))
		return exitConfig
	}

	app, err := build(cfg, logger)
	if err != nil {
		logger.Error("startup failed", zap.Error(err))
		return exitConfig
	}
	for _, w := range app.warnings {
		logger.Warn("integration warning", zap.String("warning", w))
	}

	if *testMode {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := app.driver.Probe(ctx); err != nil {
			logger.Error("probe failed", zap.Error(err))
			return exitConnection
		}
		logger.Info("configuration valid, controller reachable")
		return exitOK
	}

	// Push stops before the scheduler on shutdown, so the last run can
	// still drain the buffer.
	pushCtx, stopPush := context.WithCancel(context.Background())
	runCtx, stopRuns := context.WithCancel(context.Background())
	defer stopPush()
	defer stopRuns()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("shutting down", zap.String("signal", sig.String()))
		stopPush()
		stopRuns()
	}()

	if app.push != nil {
		go app.push.Run(pushCtx)
	}
	if cfg.Monitoring.Enabled {
		go func() {
			if err := app.monitor.Start(runCtx); err != nil {
				logger.Error("monitoring listener failed", zap.Error(err))
			}
		}()
	}

	spec := cfg.CronSpec()
	if spec == "" || *once {
		return exitFor(app.driver.RunOnce(runCtx), logger)
	}

	sched, err := scheduler.New(spec, cfg.Location(), app.driver.RunOnce, logger)
	if err != nil {
		logger.Error("scheduler setup failed", zap.Error(err))
		return exitConfig
	}
	var lastRun time.Time
	if cp, ok, _ := app.store.Read(); ok {
		lastRun = cp.LastDeliveredEventTime
	}
	sched.Run(runCtx, lastRun)
	return exitOK
}

// app bundles everything run() needs after wiring.
type app struct {
	driver   *pipeline.Driver
	push     *collector.PushCollector
	monitor  *monitoring.Server
	store    *state.Store
	warnings []string
}

// build wires the full pipeline from configuration.
func build(cfg *config.Config, logger *zap.Logger) (*app, error) {
	client, err := unifi.NewClient(unifi.Config{
		Host:      cfg.Connection.Host,
		Port:      cfg.Connection.Port,
		Username:  cfg.Connection.Username,
		Password:  cfg.Connection.Password,
		Site:      cfg.Connection.Site,
		VerifyTLS: cfg.Connection.VerifyTLS,
	}, logger)
	if err != nil {
		return nil, err
	}

	mets := metrics.NewMetrics()

	var push *collector.PushCollector
	if *cfg.Push.Enabled {
		push = collector.NewPushCollector(client, cfg.Push.BufferSize, logger)
	}
	rest := collector.NewRESTCollector(client, logger)
	var shell collector.Collector
	if *cfg.Shell.Enabled {
		shell = collector.NewShellCollector(collector.ShellConfig{
			Host:     cfg.Connection.Host,
			Username: cfg.Shell.Username,
			Password: cfg.Shell.Password,
			Timeout:  time.Duration(cfg.Shell.TimeoutSecs) * time.Second,
		}, logger)
	}
	var pushSource collector.Collector
	if push != nil {
		pushSource = push
	}
	orch := collector.NewOrchestrator(pushSource, rest, shell,
		cfg.Lookback.MinEntriesForSufficient, mets, logger)

	breakers := circuitbreaker.NewManager(circuitbreaker.Config{})
	registry := integration.NewRegistry()
	registry.Register("cloudflare", func() integration.Integration {
		return integration.NewCloudflare(integration.CloudflareConfig{
			APIToken: cfg.Integrations.Cloudflare.APIToken,
			ZoneID:   cfg.Integrations.Cloudflare.ZoneID,
		}, logger)
	})
	runner := integration.NewRunner(registry.Build(), breakers, integration.DefaultTimeout, mets, logger)

	stateDir := cfg.StateDir
	if cfg.Delivery.File.Enabled {
		stateDir = cfg.Delivery.File.OutputDir
	}
	store := state.NewStore(filepath.Join(stateDir, ".last_run.json"), logger)
	healthWriter := health.NewWriter(filepath.Join(stateDir, "health.json"), logger)

	var channels []delivery.Deliverer
	var fallback delivery.Deliverer
	if cfg.Delivery.Email.Enabled {
		channels = append(channels, delivery.NewEmailDeliverer(delivery.EmailConfig{
			Host:       cfg.Delivery.Email.SMTPHost,
			Port:       cfg.Delivery.Email.SMTPPort,
			Username:   cfg.Delivery.Email.Username,
			Password:   cfg.Delivery.Email.Password,
			From:       cfg.Delivery.Email.From,
			Recipients: cfg.Delivery.Email.Recipients,
			TLS:        cfg.Delivery.Email.TLS,
		}, logger))
	}
	fileCfg := delivery.FileConfig{
		OutputDir:     cfg.Delivery.File.OutputDir,
		Format:        cfg.Delivery.File.Format,
		RetentionDays: cfg.Delivery.File.RetentionDays,
	}
	if cfg.Delivery.File.Enabled {
		channels = append(channels, delivery.NewFileDeliverer(fileCfg, logger))
	} else if cfg.Delivery.Email.Enabled {
		fileCfg.OutputDir = filepath.Join(cfg.StateDir, "reports")
		fallback = delivery.NewFileDeliverer(fileCfg, logger)
	}
	manager := delivery.NewManager(channels, fallback, mets, logger)

	params := pipeline.Params{
		Store:         store,
		Collector:     orch,
		Engine:        rules.NewEngine(rules.DefaultRegistry(), logger),
		Integrations:  runner,
		Breakers:      breakers,
		Delivery:      manager,
		Health:        healthWriter,
		Metrics:       mets,
		Controller:    client,
		Logger:        logger,
		Lookback:      time.Duration(cfg.Lookback.InitialLookbackHours) * time.Hour,
		FlapThreshold: 0,
	}
	if push != nil {
		params.PushDropped = push.Dropped
	}
	driver, err := pipeline.NewDriver(params)
	if err != nil {
		return nil, err
	}

	return &app{
		driver:   driver,
		push:     push,
		monitor:  monitoring.NewServer(cfg.Monitoring.Address, healthWriter, breakers, logger),
		store:    store,
		warnings: runner.Warnings(),
	}, nil
}

// exitFor maps a run error onto the CLI exit code contract.
func exitFor(err error, logger *zap.Logger) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, pipeline.ErrDelivery):
		logger.Error("delivery failed", zap.Error(err))
		return exitDelivery
	case errors.Is(err, pipeline.ErrCollection):
		logger.Error("collection failed", zap.Error(err))
		return exitConnection
	default:
		logger.Error("run failed", zap.Error(err))
		return exitConnection
	}
}
