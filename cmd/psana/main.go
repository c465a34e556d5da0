// Package main implements the psana driver: it wires the configured
// module chain and input into a data source and pulls every event
// through the pipeline.
package main

import (
	stderrors "errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	psana "github.com/lcls-psana/psana"
	"github.com/lcls-psana/psana/errors"
	"github.com/lcls-psana/psana/loader"
	"github.com/lcls-psana/psana/metric"
	"github.com/lcls-psana/psana/modules"
	"github.com/lcls-psana/psana/psmp"
)

const appName = "psana"

// exit codes: 0 success, 2 usage errors (no modules, no input),
// any other non-zero on abort or construction failure
const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	cliCfg, err := parseFlags(args)
	if err != nil {
		return exitUsage
	}

	logger := setupLogger(cliCfg.LogLevel, cliCfg.LogFormat)
	if id, ok := psmp.WorkerInfo(); ok {
		logger = logger.With("worker", id)
	}
	slog.SetDefault(logger)

	cfgFile, options := buildOptions(cliCfg)
	psana.DumpConfigFile(cfgFile, options)

	registry := loader.NewRegistry()
	if err := modules.Register(registry); err != nil {
		logger.Error("built-in module registration failed", "error", err)
		return exitError
	}

	metricsRegistry := metric.NewMetricsRegistry()
	if cliCfg.MetricsPort > 0 {
		serveMetrics(cliCfg.MetricsPort, metricsRegistry, logger)
	}

	fwkOpts := []psana.FrameworkOption{
		psana.WithFactoryRegistry(registry),
		psana.WithMetricsRegistry(metricsRegistry),
		psana.WithFrameworkLogger(logger),
	}
	if cliCfg.LogNATSURL != "" {
		nc, err := nats.Connect(cliCfg.LogNATSURL)
		if err != nil {
			// job logs degrade to local-only
			logger.Warn("NATS connection for job logs failed", "url", cliCfg.LogNATSURL, "error", err)
		} else {
			defer nc.Close()
			fwkOpts = append(fwkOpts, psana.WithLogConn(nc))
		}
	}

	fwk, err := psana.NewFramework(cfgFile, options, fwkOpts...)
	if err != nil {
		logger.Error("framework initialization failed", "error", err)
		return exitError
	}
	defer fwk.Close()

	if len(fwk.ModuleNames()) == 0 {
		logger.Error("no analysis modules specified")
		return exitUsage
	}

	ds, err := fwk.DataSource(cliCfg.Datasets)
	if err != nil {
		logger.Error("data source construction failed", "error", err)
		if stderrors.Is(err, errors.ErrNoInput) || stderrors.Is(err, errors.ErrNoModules) {
			return exitUsage
		}
		return exitError
	}
	defer ds.Close()

	return pump(ds, logger)
}

// pump pulls every event through the pipeline, honoring the configured
// event cap.
func pump(ds *psana.DataSource, logger *slog.Logger) int {
	maxEvents := ds.MaxEvents()
	processed := uint64(0)

	iter := ds.Events()
	for {
		evt, err := iter.Next()
		if err != nil {
			logger.Error("event processing aborted", "error", err)
			return exitError
		}
		if evt == nil {
			break
		}
		processed++
		if maxEvents > 0 && processed >= maxEvents {
			logger.Info("event limit reached", "events", processed)
			break
		}
	}

	logger.Info("job finished", "events", processed)
	return exitOK
}

// serveMetrics exposes the Prometheus registry over HTTP.
func serveMetrics(port int, registry *metric.MetricsRegistry, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(
		registry.PrometheusRegistry(), promhttp.HandlerOpts{}))

	go func() {
		addr := fmt.Sprintf(":%d", port)
		logger.Info("serving metrics", "addr", addr)
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.Error("metrics server failed", "error", err)
		}
	}()
}
