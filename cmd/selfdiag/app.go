package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/mrsinham/selfdiag/internal/backend"
	"github.com/mrsinham/selfdiag/internal/config"
	"github.com/mrsinham/selfdiag/internal/diagnosis"
	"github.com/mrsinham/selfdiag/internal/logger"
	"github.com/mrsinham/selfdiag/internal/metrics"
	"github.com/mrsinham/selfdiag/internal/tongueimage"
)

// commonFlags are accepted by every subcommand.
type commonFlags struct {
	configPath  string
	backendURL  string
	logFile     string
	logLevel    string
	metricsAddr string
	phone       string
	transcript  string
}

func registerCommonFlags(fs *flag.FlagSet) *commonFlags {
	f := &commonFlags{}
	fs.StringVar(&f.configPath, "config", "", "Load configuration from YAML file")
	fs.StringVar(&f.backendURL, "backend", "", "Backend base URL (overrides backend.url)")
	fs.StringVar(&f.logFile, "log-file", "", "Write logs to this file (overrides log.file)")
	fs.StringVar(&f.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	fs.StringVar(&f.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. ':9090')")
	fs.StringVar(&f.phone, "phone", "", "Contact phone prefilled in the patient record")
	fs.StringVar(&f.transcript, "transcript", "", "Write the conversation transcript to this YAML file at exit")
	return f
}

// loadConfig applies command-line overrides on top of the loaded config.
func (f *commonFlags) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	if f.backendURL != "" {
		cfg.Backend.URL = f.backendURL
	}
	if f.logFile != "" {
		cfg.Log.File = f.logFile
	}
	if f.logLevel != "" {
		cfg.Log.Level = f.logLevel
	}
	if f.metricsAddr != "" {
		cfg.Metrics.Addr = f.metricsAddr
	}
	if f.phone != "" {
		cfg.Patient.Phone = f.phone
	}

	if err := cfg.Finalize(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// app holds everything a subcommand needs once the configuration is known.
type app struct {
	cfg     *config.Config
	log     *logger.Logger
	metrics *metrics.Metrics
	client  *backend.Client

	closers []func() error
}

// newApp wires logger, metrics and the backend client. defaultLog is used
// when no log file is configured; the TUI passes io.Discard so logs do not
// corrupt the screen.
func newApp(cfg *config.Config, defaultLog io.Writer) (*app, error) {
	a := &app{cfg: cfg}

	logOut := defaultLog
	if cfg.Log.File != "" {
		f, err := os.OpenFile(cfg.Log.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("opening log file: %w", err)
		}
		logOut = f
		a.closers = append(a.closers, f.Close)
	}
	a.log = logger.New(cfg.Env, cfg.Log.Level, logOut)
	a.metrics = metrics.New()

	a.client = backend.New(cfg.Backend.URL,
		backend.WithTimeout(cfg.Backend.Timeout),
		backend.WithRateLimit(cfg.Backend.RateLimit, cfg.Backend.RateBurst),
		backend.WithLogger(a.log),
		backend.WithMetrics(a.metrics),
	)

	if cfg.Metrics.Addr != "" {
		a.serveMetrics(cfg.Metrics.Addr)
	}
	return a, nil
}

// serveMetrics exposes /metrics until the app is closed.
func (a *app) serveMetrics(addr string) {
	r := chi.NewRouter()
	r.Handle("/metrics", a.metrics.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("metrics_server_failed", "addr", addr, "error", err)
		}
	}()
	a.log.Info("metrics_server_started", "addr", addr)

	a.closers = append(a.closers, func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	})
}

// newSession creates a session wired to the app's backend and observers.
func (a *app) newSession(opts ...diagnosis.Option) *diagnosis.Session {
	base := []diagnosis.Option{
		diagnosis.WithPhone(a.cfg.Patient.Phone),
		diagnosis.WithLogger(a.log),
		diagnosis.WithMetrics(a.metrics),
	}
	return diagnosis.NewSession(a.client, append(base, opts...)...)
}

// imageOptions converts the image settings for tongueimage.
func (a *app) imageOptions() (tongueimage.Options, error) {
	maxUpload, err := a.cfg.Image.MaxUploadBytes()
	if err != nil {
		return tongueimage.Options{}, err
	}
	return tongueimage.Options{
		MaxDimension:  a.cfg.Image.MaxDimension,
		MaxUploadSize: maxUpload,
	}, nil
}

func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
