package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/entrhq/adspower/pkg/browser"
	"github.com/entrhq/adspower/pkg/config"
	"github.com/entrhq/adspower/pkg/daemon"
	"github.com/entrhq/adspower/pkg/logging"
	"github.com/entrhq/adspower/pkg/metrics"
	"github.com/entrhq/adspower/pkg/profile"
)

const version = "0.1.0"

// app holds the state shared by all subcommands.
type app struct {
	stdout io.Writer
	stderr io.Writer
	root   *cobra.Command

	// Flags
	configPath  string
	apiKey      string
	output      string
	metricsAddr string

	cfg        *config.Config
	format     outputFormat
	logger     *logging.Logger
	metrics    *metrics.Metrics
	client     *daemon.Client
	registry   *profile.Registry
	metricsSrv *http.Server

	// factory attaches drivers for html runs; a playwright factory is
	// created on demand when nil
	factory browser.DriverFactory
}

func newApp(stdout, stderr io.Writer) *app {
	a := &app{stdout: stdout, stderr: stderr}

	a.root = &cobra.Command{
		Use:   "adspower",
		Short: "Manage AdsPower browser profiles through the local API",
		Long: `adspower drives the AdsPower local API: it creates and deletes browser
profiles, starts and stops their browsers, and runs page fetches against
throwaway profiles that are always cleaned up afterwards.

The API key is read from --api-key, the ADSPOWER_API_KEY environment
variable or the api_key field of the config file.`,
		Version:           version,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: func(*cobra.Command, []string) error { return a.initialize() },
	}

	flags := a.root.PersistentFlags()
	flags.StringVarP(&a.configPath, "config", "c", "", "Path to a YAML config file")
	flags.StringVar(&a.apiKey, "api-key", "", "Local API key (overrides config and environment)")
	flags.StringVarP(&a.output, "output", "o", "text", "Output format (text, json)")
	flags.StringVar(&a.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address, e.g. :9090")

	a.root.SetOut(stdout)
	a.root.SetErr(stderr)

	a.root.AddCommand(
		a.newStatusCmd(),
		a.newWaitCmd(),
		a.newCreateCmd(),
		a.newDeleteCmd(),
		a.newStartCmd(),
		a.newStopCmd(),
		a.newCheckCmd(),
		a.newHTMLCmd(),
	)
	return a
}

// execute runs the command line and releases everything initialize set up.
func (a *app) execute(ctx context.Context, args []string) error {
	a.root.SetArgs(args)
	err := a.root.ExecuteContext(ctx)
	if closeErr := a.shutdown(); closeErr != nil && err == nil {
		err = closeErr
	}
	return err
}

func (a *app) initialize() error {
	format, err := parseOutputFormat(a.output)
	if err != nil {
		return err
	}
	a.format = format

	cfg, err := config.Load(a.configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if a.apiKey != "" {
		cfg.APIKey = a.apiKey
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	a.cfg = cfg

	logger, err := logging.NewLogger(cfg.LogPath, "cli")
	if err != nil {
		return fmt.Errorf("failed to open log: %w", err)
	}
	a.logger = logger

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.metrics = metrics.New(reg)
	if a.metricsAddr != "" {
		a.serveMetrics(reg)
	}

	a.client = daemon.FromConfig(cfg,
		daemon.WithLogger(logger.With("daemon")),
		daemon.WithMetrics(a.metrics),
	)
	a.registry = profile.NewRegistry(a.client, logger.With("profile"))

	logger.Debugf("using daemon at %s", a.client.BaseURL())
	return nil
}

func (a *app) serveMetrics(reg *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	a.metricsSrv = &http.Server{
		Addr:              a.metricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := a.metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Errorf("metrics server stopped: %v", err)
		}
	}()
	a.logger.Infof("serving metrics on %s", a.metricsAddr)
}

func (a *app) controller() (*browser.Controller, func()) {
	factory := a.factory
	cleanup := func() {}
	if factory == nil {
		pw := browser.NewPlaywrightFactory(browser.WithPlaywrightLogger(a.logger.With("playwright")))
		factory = pw
		cleanup = func() {
			if err := pw.Shutdown(); err != nil {
				a.logger.Warnf("%v", err)
			}
		}
	}

	ctrl := browser.NewController(a.client, factory,
		browser.WithLogger(a.logger.With("browser")),
		browser.WithMetrics(a.metrics),
	)
	return ctrl, cleanup
}

func (a *app) shutdown() error {
	var errs []error
	if a.metricsSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		errs = append(errs, a.metricsSrv.Shutdown(ctx))
		cancel()
		a.metricsSrv = nil
	}
	if a.logger != nil {
		errs = append(errs, a.logger.Close())
	}
	return errors.Join(errs...)
}
