package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/benithors/dotpricecli/internal/config"
	"github.com/benithors/dotpricecli/internal/logging"
	"github.com/benithors/dotpricecli/internal/metrics"
	"github.com/benithors/dotpricecli/internal/pricing"
)

// app holds the global flags and the lazily built components shared by
// the subcommands.
type app struct {
	Version string

	// Global flags.
	VersionFlag bool
	ConfigPath  string
	EnvFile     string
	Format      string
	JSON        bool
	NDJSON      bool
	Plain       bool
	Location    string
	Country     string
	LogLevel    string
	Quiet       bool
	Verbose     bool

	// Derived runtime state.
	cfg       *config.Config
	log       *logrus.Logger
	outFormat outputFormat
	stdout    io.Writer

	registry *prometheus.Registry
	promRec  *metrics.Prometheus
	summary  *metrics.Summary
	engine   *pricing.Engine
	closers  []io.Closer
}

func newRootCmd(ver string) (*cobra.Command, *app) {
	a := &app{Version: ver, stdout: os.Stdout}

	root := &cobra.Command{
		Use:           "dotpricecli",
		Short:         "Price domains across registrars and manage domain purchase orders",
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.VersionFlag {
				return a.printVersion()
			}
			return &cliError{Code: 2, ShowUsage: true, Cmd: cmd}
		},
	}
	root.SetOut(os.Stdout)
	root.SetErr(os.Stderr)
	root.SetFlagErrorFunc(usageErr)

	pf := root.PersistentFlags()
	pf.BoolVar(&a.VersionFlag, "version", false, "Print version and exit")
	pf.StringVar(&a.ConfigPath, "config", "", "Config file (yaml, json or toml)")
	pf.StringVar(&a.EnvFile, "env-file", ".env", "Dotenv file with registrar credentials")
	pf.StringVar(&a.Format, "format", "auto", "Output format: auto|table|ndjson|json|plain")
	pf.BoolVar(&a.JSON, "json", false, "Alias for --format json (single JSON array)")
	pf.BoolVar(&a.NDJSON, "ndjson", false, "Alias for --format ndjson (one JSON object per line)")
	pf.BoolVar(&a.Plain, "plain", false, "Alias for --format plain (stable tab-separated)")
	pf.StringVar(&a.Location, "location", "", "Customer location key (US, India, UK, ...)")
	pf.StringVar(&a.Country, "country", "", "Customer ISO country code; overrides --location")
	pf.StringVar(&a.LogLevel, "log-level", "", "Log level: debug|info|warn|error (default from config)")
	pf.BoolVarP(&a.Quiet, "quiet", "q", false, "Only log errors")
	pf.BoolVarP(&a.Verbose, "verbose", "v", false, "Debug logging and a metrics summary on exit")

	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if a.VersionFlag {
			return a.printVersion()
		}
		return a.setup(cmd)
	}

	root.AddCommand(newQuoteCmd(a))
	root.AddCommand(newBulkCmd(a))
	root.AddCommand(newSuggestCmd(a))
	root.AddCommand(newOrderCmd(a))
	root.AddCommand(newWorkerCmd(a))
	root.AddCommand(newLocationsCmd(a))

	return root, a
}

func (a *app) printVersion() error {
	fmt.Fprintf(a.stdout, "dotpricecli %s (%s/%s)\n", a.Version, runtime.GOOS, runtime.GOARCH)
	return errExit0
}

func (a *app) setup(cmd *cobra.Command) error {
	formatStr := strings.ToLower(strings.TrimSpace(a.Format))
	if formatStr == "" {
		formatStr = "auto"
	}
	aliases := 0
	for _, set := range []bool{a.JSON, a.NDJSON, a.Plain} {
		if set {
			aliases++
		}
	}
	if aliases > 1 {
		return usageErr(cmd, errors.New("flags are mutually exclusive: --json, --ndjson, --plain"))
	}
	if formatStr != "auto" && aliases == 1 {
		return usageErr(cmd, errors.New("do not combine --format with --json/--ndjson/--plain"))
	}
	switch {
	case a.JSON:
		formatStr = "json"
	case a.NDJSON:
		formatStr = "ndjson"
	case a.Plain:
		formatStr = "plain"
	}
	if !validFormat(formatStr) {
		return usageErr(cmd, fmt.Errorf("unknown --format %q (use auto|table|ndjson|json|plain)", a.Format))
	}
	a.outFormat = resolveFormat(formatStr, os.Stdout)

	if err := config.LoadDotEnv(a.EnvFile); err != nil {
		return runtimeErr(cmd, err)
	}
	cfg, err := config.Load(a.ConfigPath)
	if err != nil {
		return runtimeErr(cmd, err)
	}
	a.cfg = cfg

	level := cfg.Log.Level
	switch {
	case a.LogLevel != "":
		level = a.LogLevel
	case a.Verbose:
		level = "debug"
	case a.Quiet:
		level = "error"
	}
	logger, closer, err := logging.New(logging.Options{
		Level:  level,
		Format: cfg.Log.Format,
		File:   cfg.Log.File,
	})
	if err != nil {
		return usageErr(cmd, err)
	}
	a.log = logger
	a.closers = append(a.closers, closer)
	return nil
}

// location resolves --country and --location to a location key.
func (a *app) location() string {
	if c := strings.TrimSpace(a.Country); c != "" {
		return pricing.LocationForCountry(c)
	}
	if l := strings.TrimSpace(a.Location); l != "" {
		return l
	}
	return pricing.DefaultLocation
}

// recorder returns the metrics sink shared by every component, creating
// the Prometheus registry on first use.
func (a *app) recorder() (metrics.Recorder, error) {
	if a.registry != nil {
		return metrics.Multi{a.summary, a.promRec}, nil
	}
	a.registry = prometheus.NewRegistry()
	p, err := metrics.NewPrometheus(a.registry)
	if err != nil {
		return nil, err
	}
	a.promRec = p
	a.summary = metrics.NewSummary(a.log)
	return metrics.Multi{a.summary, p}, nil
}

func (a *app) close() {
	if a.summary != nil && a.Verbose {
		a.summary.LogSummary()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil && a.log != nil {
			a.log.WithError(err).Debug("close failed")
		}
	}
	a.closers = nil
}
