// cmd/quote-server/main.go
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"ichra-quotes/internal/affordability"
	"ichra-quotes/internal/api"
	"ichra-quotes/internal/common/config"
	"ichra-quotes/internal/common/database"
	"ichra-quotes/internal/common/logger"
	"ichra-quotes/internal/common/observability"
	"ichra-quotes/internal/engine"
	"ichra-quotes/internal/marketplace"
	"ichra-quotes/internal/notify"
	"ichra-quotes/internal/scheduler"
	"ichra-quotes/internal/store"
	"ichra-quotes/internal/subsidy"
	"ichra-quotes/pkg/refdata"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2 // Exponential backoff
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// quoteObsMiddleware records quote generation outcomes and latency.
func quoteObsMiddleware(next http.Handler, obs *observability.Observability) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/quotes" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)

		status := "success"
		if rec.status >= 400 {
			status = "error"
		}
		obs.RecordQuoteGenerated(r.Context(), status)
		obs.RecordQuoteDuration(r.Context(), time.Since(start), status)
	})
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("config load failed: %v", err))
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()

	// Wrap zap logger with our logger interface
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting quote server...",
		zap.String("environment", cfg.App.Environment),
		zap.String("version", cfg.App.Version),
	)

	obs := observability.New("quote-server")
	defer obs.Shutdown()

	ctx := context.Background()

	// --- Init PostgreSQL with retry ---
	var pg *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		// Test the connection with context
		return pg.Ping(ctx)
	}, 15, 2*time.Second, zapLog, "PostgreSQL connection")

	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer pg.Close()
	zapLog.Info("PostgreSQL connected successfully")

	if _, err := pg.DB.ExecContext(ctx, store.Schema); err != nil {
		zapLog.Fatal("quote schema migration failed", zap.Error(err))
	}

	// --- Init Redis with retry ---
	var redisClient *database.RedisClient
	err = retryWithBackoff(func() error {
		var err error
		redisClient, err = database.NewRedis(cfg.Database.Redis)
		if err != nil {
			return err
		}
		// Test the connection with context
		return redisClient.Ping(ctx)
	}, 10, 2*time.Second, zapLog, "Redis connection")

	if err != nil {
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}
	defer redisClient.Close()
	zapLog.Info("Redis connected successfully")

	// --- Schedulers: one for marketplace traffic, one for the
	// quota-constrained affordability API ---
	marketSched := scheduler.New(scheduler.Options{
		Name:           "marketplace",
		ReservoirSize:  cfg.Scheduler.ReservoirSize,
		RefillInterval: time.Duration(cfg.Scheduler.RefillInterval) * time.Millisecond,
		MaxConcurrent:  cfg.Scheduler.MaxConcurrent,
		MinSpacing:     time.Duration(cfg.Scheduler.MinSpacing) * time.Millisecond,
		MaxRetries:     cfg.Scheduler.MaxRetries,
		RetryBase:      time.Duration(cfg.Scheduler.RetryBase) * time.Millisecond,
	}, log)

	// RefillInterval zero makes the budget a lifetime quota.
	affordSched := scheduler.New(scheduler.Options{
		Name:          "affordability",
		ReservoirSize: cfg.Affordability.LifetimeLimit,
		MaxConcurrent: 1,
		MaxRetries:    cfg.Scheduler.MaxRetries,
		RetryBase:     time.Duration(cfg.Scheduler.RetryBase) * time.Millisecond,
	}, log)

	// --- Marketplace clients ---
	mpTimeout := time.Duration(cfg.Marketplace.Timeout) * time.Millisecond
	geoClient := marketplace.NewGeoClient(cfg.Marketplace.GeoURL, cfg.Marketplace.APIKey, mpTimeout, marketSched, log)
	geo := marketplace.NewCachedGeoResolver(geoClient, redisClient.Client, time.Duration(cfg.Marketplace.GeoCacheTTL)*time.Second, log)
	pricing := marketplace.NewPricingClient(cfg.Marketplace.PricingURL, cfg.Marketplace.APIKey, mpTimeout, marketSched, log)

	var catalog marketplace.PlanCatalog
	if cfg.Marketplace.CatalogBackend == "elasticsearch" {
		var esClient *database.ElasticsearchClient
		err = retryWithBackoff(func() error {
			var err error
			esClient, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
			if err != nil {
				return err
			}
			// Test the connection
			return esClient.Ping()
		}, 15, 2*time.Second, zapLog, "Elasticsearch connection")

		if err != nil {
			zapLog.Fatal("elasticsearch failed after retries", zap.Error(err))
		}
		zapLog.Info("Elasticsearch connected successfully")

		indexCtx, indexCancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := esClient.CheckIndex(indexCtx, cfg.Database.Elasticsearch.PlanIndex); err != nil {
			indexCancel()
			zapLog.Fatal("plan catalog index unavailable", zap.Error(err))
		}
		indexCancel()
		catalog = marketplace.NewESCatalog(esClient.Client, cfg.Database.Elasticsearch.PlanIndex, marketSched, log)
	} else {
		catalog = marketplace.NewCatalogClient(cfg.Marketplace.CatalogURL, cfg.Marketplace.APIKey, mpTimeout, marketSched, log)
	}

	// --- Notifications ---
	var notifier affordability.Notifier
	n, err := notify.NewNotifier(ctx, cfg.Notifications, log)
	if err != nil {
		zapLog.Warn("notifier init failed, quote-ready notifications disabled", zap.Error(err))
	} else {
		notifier = n
	}

	// --- Affordability coordination ---
	affordClient := affordability.NewClient(
		cfg.Affordability.BaseURL,
		cfg.Affordability.APIKey,
		time.Duration(cfg.Affordability.Timeout)*time.Millisecond,
		affordSched,
		log,
	)
	coordinator := affordability.NewCoordinator(affordClient, affordability.Options{
		SyncWait:          time.Duration(cfg.Affordability.SyncWait) * time.Millisecond,
		BackgroundRetries: cfg.Affordability.BackgroundRetries,
	}, notifier, log)

	// --- Quote pipeline ---
	if cfg.Quote.FPLDataPath != "" {
		reg, err := refdata.LoadRegistry(cfg.Quote.FPLDataPath)
		if err != nil {
			zapLog.Fatal("FPL reference data load failed", zap.Error(err), zap.String("path", cfg.Quote.FPLDataPath))
		}
		for _, table := range reg.FPLTables {
			var amounts [8]int64
			copy(amounts[:], table.HouseholdAmounts)
			subsidy.RegisterFPLTable(table.PlanYear, amounts, table.PerPersonIncrement)
		}
		zapLog.Info("FPL reference data loaded",
			zap.String("version", reg.Version),
			zap.Int("tables", len(reg.FPLTables)),
		)
	}

	benchmark := subsidy.NewBenchmarkSelector(catalog, pricing, log)
	builder := engine.NewMemberQuoteBuilder(geo, catalog, pricing, benchmark, engine.BuilderOptions{
		RecommendedPlans: cfg.Quote.RecommendedPlans,
		FPLYear:          cfg.Quote.FPLYear,
	}, log)
	aggregator := engine.NewQuoteAggregator(engine.AggregatorOptions{
		ExpiryDays: cfg.Quote.ExpiryDays,
	}, log)
	reapplier := engine.NewFilterReapplier(log)
	cache := engine.NewRedisQuoteCache(redisClient.Client, time.Duration(cfg.Quote.CacheTTL)*time.Second, log)
	quoteStore := store.NewQuoteStore(pg.DB, log)

	quoteEngine := engine.New(builder, coordinator, aggregator, reapplier, cache, quoteStore, engine.Options{
		MemberFanOut: cfg.Quote.MemberFanOut,
	}, log)

	// --- HTTP Server ---
	mux := http.NewServeMux()
	api.NewServer(quoteEngine, log).Register(mux)

	handler := quoteObsMiddleware(mux, obs)

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := pg.Ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(map[string]string{"status": "not ready", "error": err.Error()})
			return
		}
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{
			"status": "ready",
			"time":   time.Now().Format(time.RFC3339),
		})
	})
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/debug/pprof/", http.DefaultServeMux)
	mux.HandleFunc("GET /admin/scheduler/stats", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"marketplace":   marketSched.Stats(),
			"affordability": affordSched.Stats(),
		})
	})

	listenAddr := cfg.App.ListenAddr
	if listenAddr == "" {
		listenAddr = ":8080"
	}
	server := &http.Server{
		Addr:         listenAddr,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	go func() {
		zapLog.Info("Quote server listening", zap.String("addr", listenAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLog.Fatal("http server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, draining...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("http shutdown failed", zap.Error(err))
	}
	if err := marketSched.Shutdown(shutdownCtx, false); err != nil {
		zapLog.Error("marketplace scheduler drain failed", zap.Error(err))
	}
	if err := affordSched.Shutdown(shutdownCtx, true); err != nil {
		zapLog.Error("affordability scheduler drain failed", zap.Error(err))
	}

	zapLog.Info("Quote server stopped gracefully")
}
