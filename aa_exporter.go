package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	_ "net/http/pprof" // For pprof server
	"os"
	"os/signal"
	"syscall"
	"time"

	plog "github.com/phuslu/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"aa_exporter/internal/config"
	"aa_exporter/internal/database"
	"aa_exporter/internal/filter"
	"aa_exporter/internal/ingest"
	"aa_exporter/internal/maps"
	"aa_exporter/internal/store"
)

// AAExporter wires the database, its feeders and the HTTP surface together.
type AAExporter struct {
	config     *config.AppConfig
	db         *database.Database
	feeder     *ingest.Feeder
	matcher    *filter.Matcher
	registry   *prometheus.Registry
	httpServer *http.Server
	log        plog.Logger
}

// storeOptions converts the validated [store] section.
func storeOptions(c config.StoreConfig) (store.Options, error) {
	index, err := maps.ParseImplementation(c.IndexImplementation)
	if err != nil {
		return store.Options{}, err
	}
	arena, err := maps.ParseImplementation(c.ArenaImplementation)
	if err != nil {
		return store.Options{}, err
	}
	return store.Options{Index: index, Arena: arena}, nil
}

// NewAAExporter creates and initializes a new AAExporter instance.
func NewAAExporter(config *config.AppConfig) (*AAExporter, error) {
	exporter := &AAExporter{
		config:   config,
		registry: prometheus.NewRegistry(),
	}

	exporter.log = plog.DefaultLogger // main app uses default logger
	exporter.log.Info().
		Str("version", version).
		Str("listen_address", config.Server.ListenAddress).
		Str("metrics_path", config.Server.MetricsPath).
		Msg("Starting AppArmor Exporter")

	opts, err := storeOptions(config.Store)
	if err != nil {
		return nil, fmt.Errorf("invalid store configuration: %w", err)
	}
	exporter.db = database.New(database.Options{Store: opts})
	exporter.db.OnProfileStatusChange(func(c database.ProfileChange) {
		exporter.log.Info().
			Str("profile", c.Profile).
			Str("from", c.Old.String()).
			Str("to", c.New.String()).
			Msg("Profile mode changed")
	})
	exporter.log.Debug().Msg("- Database created")

	exporter.matcher, err = filter.NewMatcher(config.Filter.RegexCacheSize)
	if err != nil {
		return nil, err
	}

	exporter.feeder, err = ingest.NewFeeder(exporter.db, exporter.registry)
	if err != nil {
		return nil, err
	}
	exporter.registry.MustRegister(database.NewCollector(exporter.db))
	exporter.log.Info().Msg("Database collector registered with Prometheus")

	exporter.setupHTTPServer()
	return exporter, nil
}

// setupHTTPServer configures the HTTP server for metrics and the read-only API.
func (e *AAExporter) setupHTTPServer() {
	e.log.Debug().Str("metrics_path", e.config.Server.MetricsPath).Msg("Setting up HTTP handlers")
	mux := http.NewServeMux()
	mux.Handle(e.config.Server.MetricsPath, promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{}))
	if e.config.Server.APIEnabled {
		newAPI(e.db, e.matcher).register(mux)
	}
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>
            <head><title>AppArmor Exporter</title></head>
            <body>
            <h1>AppArmor Exporter v` + version + ` </h1>
            <p><a href="` + e.config.Server.MetricsPath + `">Metrics</a></p>
            <p><a href="/api/profiles">Profiles</a></p>
            </body>
            </html>`))
	})

	e.httpServer = &http.Server{
		Addr:              e.config.Server.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// loadStatus applies the configured status snapshot and, if an interval is
// set, keeps refreshing it until ctx is done.
func (e *AAExporter) loadStatus(ctx context.Context) {
	path := e.config.Ingest.StatusFile
	if path == "" {
		return
	}
	stats, err := e.feeder.ApplyStatusFile(path)
	if err != nil {
		e.log.Error().Err(err).Msg("Failed to apply status snapshot")
	} else {
		e.log.Info().
			Int("profiles", stats.Profiles).
			Int("processes", stats.Processes).
			Msg("Status snapshot applied")
	}
	if interval := e.config.Ingest.StatusInterval; interval > 0 {
		go e.feeder.PollStatus(ctx, path, interval)
	}
}

// ingestLogs reads every configured log source until EOF or shutdown.
func (e *AAExporter) ingestLogs(ctx context.Context) {
	var readers []io.Reader
	for _, path := range e.config.Ingest.LogSources {
		rc, err := ingest.OpenSource(path)
		if err != nil {
			e.log.Error().Err(err).Msg("Skipping log source")
			continue
		}
		defer rc.Close()
		readers = append(readers, rc)
	}
	if len(readers) == 0 {
		return
	}
	if _, err := e.feeder.Run(ctx, readers...); err != nil && ctx.Err() == nil {
		e.log.Error().Err(err).Msg("Log ingestion stopped")
	}
}

// Run starts all services and waits for a shutdown signal.
func (e *AAExporter) Run() error {
	// Create a context that we can stop to trigger a graceful shutdown.
	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// Listen for OS signals in a separate goroutine.
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		select {
		case <-sigChan:
			e.log.Info().Msg("! Received OS shutdown signal, shutting down gracefully...")
			stop()
		case <-ctx.Done():
		}
	}()

	if e.config.Server.PprofEnabled {
		go func() {
			// Recover from panics in this goroutine to trigger a graceful shutdown.
			defer func() {
				if r := recover(); r != nil {
					e.log.Error().Interface("panic", r).Msg("Panic recovered in pprof server, initiating shutdown")
					stop()
				}
			}()
			e.log.Info().Msg("Starting pprof HTTP server on localhost:6060")
			// pprof registers its handlers on http.DefaultServeMux
			if err := http.ListenAndServe("localhost:6060", nil); err != nil {
				e.log.Error().Err(err).Msg("pprof server failed")
			}
		}()
	}

	e.loadStatus(ctx)

	ingestDone := make(chan struct{})
	go func() {
		defer close(ingestDone)
		e.ingestLogs(ctx)
	}()

	go func() {
		// Recover from panics in this goroutine to trigger a graceful shutdown.
		defer func() {
			if r := recover(); r != nil {
				e.log.Error().Interface("panic", r).Msg("Panic recovered in HTTP server, initiating shutdown")
				stop()
			}
		}()
		e.log.Info().Str("address", e.config.Server.ListenAddress).Msg("Starting HTTP server")
		if err := e.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			e.log.Error().Err(err).Msg("❌ Failed to start HTTP server")
			stop() // Trigger shutdown on server error
		}
	}()

	e.log.Info().Msg("AppArmor Exporter is ready")

	// Block until a shutdown is triggered (from OS signal, panic, or other error).
	<-ctx.Done()
	e.log.Info().Msg("! Shutdown initiated...")

	// --- Graceful shutdown sequence ---

	httpCtx, cancelhttp := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelhttp()

	if err := e.httpServer.Shutdown(httpCtx); err != nil {
		e.log.Error().Err(err).Msg("❌ Error shutting down HTTP server")
	} else {
		e.log.Debug().Msg("HTTP server shut down cleanly")
	}

	// Ingestion of stdin may block in a read; don't wait forever for it.
	select {
	case <-ingestDone:
		e.log.Debug().Msg("Log ingestion stopped")
	case <-httpCtx.Done():
		e.log.Warn().Msg("Log ingestion still blocked on a read, exiting anyway")
	}

	e.log.Info().
		Int("profiles", e.db.Profiles().Len()).
		Int("processes", e.db.Processes().Len()).
		Int("logs", e.db.Logs().Len()).
		Msg("AppArmor Exporter stopped gracefully")
	return nil
}
