// pipelined is the market evaluation pipeline daemon.
// It runs evaluation cycles over active prediction markets and exposes a
// status API, Prometheus metrics and a WebSocket event stream.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"

	"github.com/edgefeed/edgefeed/pkg/config"
	"github.com/edgefeed/edgefeed/pkg/forecast"
	"github.com/edgefeed/edgefeed/pkg/marketdata"
	"github.com/edgefeed/edgefeed/pkg/store"
	"github.com/edgefeed/edgefeed/pkg/trader/ledger"
	"github.com/edgefeed/edgefeed/pkg/trader/metrics"
	"github.com/edgefeed/edgefeed/pkg/trader/pipeline"
	"github.com/edgefeed/edgefeed/pkg/trader/scheduler"
	"github.com/edgefeed/edgefeed/pkg/trader/sizing"
	"github.com/edgefeed/edgefeed/pkg/trader/streaming"
)

var (
	// Flags
	configPath  = flag.String("config", "", "Path to YAML config file")
	httpAddr    = flag.String("http", ":8080", "HTTP server address for status API")
	forecastURL = flag.String("forecast", "", "Model service URL (overrides config)")
	databaseDSN = flag.String("db", "", "Postgres DSN (overrides config; empty uses in-memory store)")
	initialBal  = flag.Float64("balance", 10000, "Initial cash balance")
	maxMarkets  = flag.Int("max-markets", 20, "Maximum markets per cycle")
	interval    = flag.Duration("interval", 0, "Run a cycle every interval (0 disables)")
)

func main() {
	flag.Parse()

	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)
	log.Println("Starting evaluation pipeline daemon")

	// Context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	d, err := newDaemon(ctx)
	if err != nil {
		log.Fatalf("Failed to initialize daemon: %v", err)
	}
	defer d.store.Close()

	// Start HTTP server
	go d.startHTTP()

	// Optional periodic cycles
	if d.interval > 0 {
		go d.runTicker(ctx)
		log.Printf("Periodic cycles enabled every %s", d.interval)
	}

	log.Printf("Pipeline running (http=%s, markets=%d)", d.httpServer.Addr, d.marketLimit)
	log.Printf("WebSocket streaming available at ws://%s/ws", d.httpServer.Addr)
	log.Println("Press Ctrl+C to stop")

	// Wait for signal
	<-sigCh
	log.Println("Shutting down...")
	cancel()

	shutCtx, shutCancel := context.WithTimeout(context.Background(), d.shutdownTimeout)
	defer shutCancel()
	if err := d.httpServer.Shutdown(shutCtx); err != nil {
		log.Printf("HTTP shutdown: %v", err)
	}

	state := d.ledger.Snapshot()
	log.Printf("Final state: cash=$%s exposure=$%s daily_pnl=$%s positions=%d",
		state.Cash.StringFixed(2),
		state.TotalExposure.StringFixed(2),
		state.DailyPnL.StringFixed(2),
		len(state.Positions))

	log.Println("Goodbye!")
}

type daemon struct {
	coordinator *pipeline.Coordinator
	ledger      *ledger.Ledger
	store       store.Store
	metrics     *metrics.PipelineMetrics
	streamHub   *streaming.Hub
	marketLimit int
	interval    time.Duration

	httpServer      *http.Server
	metricsEnabled  bool
	metricsPath     string
	shutdownTimeout time.Duration
}

func newDaemon(ctx context.Context) (*daemon, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	d := &daemon{
		metrics:     metrics.NewPipelineMetrics(),
		streamHub:   streaming.NewHub(),
		marketLimit: cfg.Pipeline.MarketLimit,
		interval:    cfg.Pipeline.Interval,
	}
	if *maxMarkets > 0 {
		d.marketLimit = *maxMarkets
	}
	if *interval > 0 {
		d.interval = *interval
	}

	// Start streaming hub
	go d.streamHub.Run()

	// Market data client
	var mdOpts []marketdata.ClientOption
	if cfg.Markets.BaseURL != "" {
		mdOpts = append(mdOpts, marketdata.WithBaseURL(cfg.Markets.BaseURL))
	}
	if cfg.Markets.RateLimit > 0 {
		mdOpts = append(mdOpts, marketdata.WithRateLimit(cfg.Markets.RateLimit, cfg.Markets.Burst))
	}
	source := marketdata.NewClient(mdOpts...)

	// Model service client
	modelURL := cfg.Forecast.URL
	if *forecastURL != "" {
		modelURL = *forecastURL
	}
	if modelURL == "" {
		return nil, errors.New("model service URL is required (-forecast or config)")
	}
	httpClient := &http.Client{Timeout: 20 * time.Second}
	if cfg.Forecast.Timeout > 0 {
		httpClient.Timeout = cfg.Forecast.Timeout
	}
	predictor := forecast.NewClient(modelURL, forecast.WithHTTPClient(httpClient))
	log.Printf("Model service: %s", modelURL)

	// Persistence
	dsn := cfg.Database.DSN
	if *databaseDSN != "" {
		dsn = *databaseDSN
	}
	if dsn != "" {
		pg, err := store.NewPostgres(ctx, dsn)
		if err != nil {
			return nil, fmt.Errorf("failed to connect store: %w", err)
		}
		d.store = pg
		log.Println("Postgres store connected")
	} else {
		d.store = store.NewMemory()
		log.Println("No database DSN - using in-memory store")
	}

	// Risk limits and ledger
	limits := cfg.RiskLimits()
	cash := decimal.NewFromFloat(*initialBal)
	if cfg.Risk.InitialCash > 0 && !isFlagSet("balance") {
		cash = decimal.NewFromFloat(cfg.Risk.InitialCash)
	}
	d.ledger = ledger.New(cash, limits)

	// Scheduler
	schedCfg := scheduler.DefaultConfig()
	if cfg.Scheduler.Workers > 0 {
		schedCfg.Workers = cfg.Scheduler.Workers
	}
	if cfg.Scheduler.ChunkSize > 0 {
		schedCfg.ChunkSize = cfg.Scheduler.ChunkSize
	}
	if cfg.Scheduler.Timeout > 0 {
		schedCfg.Timeout = cfg.Scheduler.Timeout
	}

	d.coordinator, err = pipeline.NewCoordinator(pipeline.Config{
		Source:      source,
		Predictor:   predictor,
		Sizer:       sizing.New(limits, cfg.Sizing.KellyMultiplier),
		Ledger:      d.ledger,
		Scheduler:   scheduler.New(schedCfg),
		Store:       d.store,
		Metrics:     d.metrics,
		Hub:         d.streamHub,
		Limits:      limits,
		MarketLimit: d.marketLimit,
	})
	if err != nil {
		return nil, err
	}

	// HTTP server: the -http flag wins, then server.port from config.
	addr := *httpAddr
	if !isFlagSet("http") && cfg.Server.Port > 0 {
		addr = fmt.Sprintf(":%d", cfg.Server.Port)
	}
	readTimeout := 10 * time.Second
	if cfg.Server.ReadTimeout > 0 {
		readTimeout = cfg.Server.ReadTimeout
	}
	writeTimeout := 10 * time.Second
	if cfg.Server.WriteTimeout > 0 {
		writeTimeout = cfg.Server.WriteTimeout
	}
	d.shutdownTimeout = 15 * time.Second
	if cfg.Server.ShutdownTimeout > 0 {
		d.shutdownTimeout = cfg.Server.ShutdownTimeout
	}
	d.metricsEnabled = cfg.Metrics.Enabled
	d.metricsPath = cfg.Metrics.Path
	if d.metricsPath == "" {
		d.metricsPath = "/metrics"
	}
	d.httpServer = &http.Server{
		Addr:         addr,
		Handler:      d.routes(),
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	}

	return d, nil
}

// loadConfig reads the YAML config when given, otherwise falls back to a
// minimal default so the daemon can run from flags alone.
func loadConfig() (*config.Config, error) {
	if *configPath != "" {
		cfg, err := config.LoadWithEnv(*configPath)
		if err != nil {
			return nil, err
		}
		log.Printf("Config loaded from %s (%s)", *configPath, cfg.Environment)
		return cfg, nil
	}
	cfg := &config.Config{Environment: "development"}
	cfg.Forecast.URL = *forecastURL
	cfg.Risk.InitialCash = *initialBal
	cfg.Metrics.Enabled = true
	return cfg, nil
}

func isFlagSet(name string) bool {
	set := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}

func (d *daemon) runTicker(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := d.coordinator.RunCycle(ctx, pipeline.CycleParams{}); err != nil {
				log.Printf("[TICKER] Cycle failed: %v", err)
			}
		}
	}
}

func (d *daemon) routes() http.Handler {
	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})

	// Start a cycle
	mux.HandleFunc("/cycles", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var params pipeline.CycleParams
		if r.Body != nil {
			// An empty or invalid body just means default params.
			json.NewDecoder(r.Body).Decode(&params)
		}
		cycleID := d.coordinator.StartCycle(params)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(map[string]string{"cycle_id": cycleID})
	})

	// Cycle status
	mux.HandleFunc("/cycles/", func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimPrefix(r.URL.Path, "/cycles/")
		if id == "" {
			http.Error(w, "cycle id required", http.StatusBadRequest)
			return
		}
		rec, err := d.store.GetCycle(r.Context(), id)
		if err != nil {
			if errors.Is(err, store.ErrCycleNotFound) {
				http.Error(w, "cycle not found", http.StatusNotFound)
				return
			}
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(rec)
	})

	// Portfolio status
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(d.ledger.Snapshot())
	})

	// Ledger change log
	mux.HandleFunc("/changes", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(d.ledger.Changes())
	})

	// Prometheus metrics endpoint
	if d.metricsEnabled {
		mux.Handle(d.metricsPath, promhttp.HandlerFor(d.metrics.Registry(), promhttp.HandlerOpts{}))
	}

	// WebSocket streaming endpoint
	mux.HandleFunc("/ws", d.streamHub.ServeWS)

	return mux
}

func (d *daemon) startHTTP() {
	log.Printf("HTTP server listening on %s", d.httpServer.Addr)
	if err := d.httpServer.ListenAndServe(); err != http.ErrServerClosed {
		log.Printf("HTTP server error: %v", err)
	}
}
