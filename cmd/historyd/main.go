// Command historyd wires the channel history backend up as a standalone
// daemon: it loads configuration, boots the Store, drives its tick loop
// on a timer, and serves /metrics for Prometheus scraping. It also runs
// an optional synthetic traffic generator (--demo) so the module can be
// exercised without a real host chat server attached.
//
// Grounded on ws/main.go in the teacher: flag parsing, automaxprocs
// side-effect import, config load, signal handling, periodic ticking,
// promhttp.Handler().
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
	_ "go.uber.org/automaxprocs"

	"github.com/adred-codev/chanhistory/internal/config"
	"github.com/adred-codev/chanhistory/internal/history"
	"github.com/adred-codev/chanhistory/internal/historymetrics"
	"github.com/adred-codev/chanhistory/internal/obslog"
	"github.com/adred-codev/chanhistory/internal/scheduler"
)

// noopChecker reports every object as persist-eligible; a real host would
// supply the channel mode table instead (see history.PersistChecker).
type noopChecker struct{}

func (noopChecker) HasPersistMode(string) bool { return true }

func main() {
	var (
		debug = flag.Bool("debug", false, "enable debug logging (overrides LOG_LEVEL)")
		demo  = flag.Bool("demo", false, "run a synthetic traffic generator against a #demo channel")
	)
	flag.Parse()

	startupLog := log.New(os.Stdout, "[historyd] ", log.LstdFlags)

	maxProcs := runtime.GOMAXPROCS(0)
	startupLog.Printf("GOMAXPROCS: %d (via automaxprocs)", maxProcs)

	cfg, err := config.Load(nil)
	if err != nil {
		startupLog.Fatalf("failed to load configuration: %v", err)
	}
	if *debug {
		cfg.LogLevel = "debug"
	}

	logger := obslog.New(obslog.Config{Level: cfg.LogLevel, Format: obslog.Format(cfg.LogFormat)})
	logger.Info().Str("directory", cfg.Directory).Bool("persist", cfg.Persist).Msg("starting historyd")

	metrics := historymetrics.New()

	store, err := history.Init(cfg, noopChecker{}, logger, metrics)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize history store")
	}

	if err := store.Bootstrap(time.Now()); err != nil {
		logger.Error().Err(err).Msg("bootstrap load failed")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry(), promhttp.HandlerOpts{}))
	server := &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("metrics server failed")
		}
	}()

	if *demo {
		store.SetLimit("#demo", 200, 3600)
		go runDemoTraffic(ctx, store, logger)
	}

	ticker := time.NewTicker(scheduler.TickInterval(cfg.Spread, cfg.MaxOffSecs))
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			store.Tick(time.Now())
		case <-sigCh:
			logger.Info().Msg("shutting down")
			_ = server.Close()
			store.Shutdown()
			return
		}
	}
}

// runDemoTraffic paces synthetic Add calls against a fixed channel using
// golang.org/x/time/rate, the same token-bucket limiter the teacher uses
// to pace its own synthetic load generators.
func runDemoTraffic(ctx context.Context, store *history.Store, logger zerolog.Logger) {
	limiter := rate.NewLimiter(rate.Limit(5), 1)
	seq := 0
	for {
		if err := limiter.Wait(ctx); err != nil {
			return
		}
		seq++
		line := fmt.Sprintf("demo message %d", seq)
		if err := store.Add("#demo", nil, line); err != nil {
			logger.Warn().Err(err).Msg("demo: add failed")
		}
	}
}
