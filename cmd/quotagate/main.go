package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/quotagate/quotagate/internal/api"
	"github.com/quotagate/quotagate/internal/auth"
	"github.com/quotagate/quotagate/internal/config"
	"github.com/quotagate/quotagate/internal/gateway"
	"github.com/quotagate/quotagate/internal/obs"
	"github.com/quotagate/quotagate/internal/quota"
	"github.com/quotagate/quotagate/internal/stats"
)

const version = "0.1.0"

func main() {
	_ = godotenv.Load()

	cfgPath := flag.String("config", "", "config file (falls back to $QUOTAGATE_CONFIG, then ./config.yaml)")
	flag.Parse()

	path := config.ResolvePath(*cfgPath)
	cfg, err := config.Load(path)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger := obs.SetupLogger(cfg.Observability.LogLevel)
	logger.Info().Str("version", version).Str("config", path).Msg("starting quotagate")

	quotas, err := quota.NewRegistry(quota.Limits{
		Rate:     cfg.Limits.Default.RefillRate,
		Capacity: cfg.Limits.Default.Capacity,
	}, nil)
	if err != nil {
		log.Fatalf("registry: %v", err)
	}
	applySeeds(logger, quotas, cfg.Limits.Seeds)

	promReg := prometheus.NewRegistry()
	metrics := obs.NewMetrics(promReg, quotas.Len)

	handlers := api.New(quotas, metrics, buildRecorder(logger, cfg.Stats))

	pairs := map[string]string{} // secret -> keyID
	for _, k := range cfg.Admin.Keys {
		if k.Secret != "" && k.ID != "" {
			pairs[k.Secret] = k.ID
		}
	}
	adminStore := auth.NewStatic(cfg.Admin.Header, pairs)
	if adminStore.Open() {
		logger.Warn().Msg("configure endpoint is unauthenticated; add admin keys before exposing it")
	}

	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	})

	mux.HandleFunc("/version", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(version))
	})

	mux.Handle(cfg.Observability.PrometheusPath, promhttp.HandlerFor(promReg, promhttp.HandlerOpts{}))

	mux.Handle("/v1/decide", metrics.Instrument("decide", handlers.Decide()))
	mux.Handle("/v1/status", metrics.Instrument("status", handlers.Status()))
	mux.Handle("/v1/configure", metrics.Instrument("configure", adminStore.Require(handlers.Configure())))

	handler := gateway.Chain(
		mux,
		obs.Logger(logger),
		gateway.BodyLimit(cfg.Server.MaxBody()),
	)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout(),
		IdleTimeout:       cfg.Server.IdleTimeout(),
		ReadTimeout:       cfg.Server.ReadTimeout(),
	}

	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()

	if cfg.Janitor.Enabled {
		go quotas.RunJanitor(rootCtx, cfg.Janitor.Interval(), cfg.Janitor.IdleTTL(), func(evicted int) {
			metrics.Evictions.Add(float64(evicted))
			logger.Debug().Int("evicted", evicted).Msg("janitor sweep")
		})
		logger.Info().
			Dur("interval", cfg.Janitor.Interval()).
			Dur("idle_ttl", cfg.Janitor.IdleTTL()).
			Msg("janitor enabled")
	}

	// Reload re-applies default limits and seeds; server and observability
	// settings stay as started.
	reload := func() {
		fresh, err := config.Load(path)
		if err != nil {
			logger.Error().Err(err).Msg("reload: config rejected, keeping current limits")
			return
		}
		if err := quotas.SetDefaults(quota.Limits{
			Rate:     fresh.Limits.Default.RefillRate,
			Capacity: fresh.Limits.Default.Capacity,
		}); err != nil {
			logger.Error().Err(err).Msg("reload: bad default limits")
			return
		}
		applySeeds(logger, quotas, fresh.Limits.Seeds)
		logger.Info().Msg("limits reloaded")
	}

	if cfg.WatchConfig {
		if err := config.Watch(rootCtx, path, reload); err != nil {
			logger.Error().Err(err).Msg("config watch failed to start")
		} else {
			logger.Info().Str("config", path).Msg("watching config for limit changes")
		}
	}

	// start
	go func() {
		log.Printf("listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	for sig := range stop {
		if sig == syscall.SIGHUP {
			logger.Info().Msg("SIGHUP: reloading limits")
			reload()
			continue
		}
		break
	}

	rootCancel()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}
	log.Printf("bye")
}

func applySeeds(logger zerolog.Logger, quotas *quota.Registry, seeds []config.Seed) {
	for _, s := range seeds {
		if s.Key == "" {
			logger.Warn().Msg("seed without key ignored")
			continue
		}
		if err := quotas.Configure(s.Key, quota.Limits{Rate: s.RefillRate, Capacity: s.Capacity}); err != nil {
			logger.Warn().
				Str("key", s.Key).
				Float64("refill_rate", s.RefillRate).
				Float64("capacity", s.Capacity).
				Err(err).
				Msg("seed rejected")
			continue
		}
		logger.Info().
			Str("key", s.Key).
			Float64("refill_rate", s.RefillRate).
			Float64("capacity", s.Capacity).
			Msg("seeded limiter")
	}
}

// buildRecorder picks the stats sink. Redis being down degrades to noop
// rather than blocking startup: stats are observability, not correctness.
func buildRecorder(logger zerolog.Logger, cfg config.Stats) stats.Recorder {
	if !cfg.Redis.Enabled {
		return stats.Noop{}
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		logger.Error().Err(err).Str("addr", cfg.Redis.Addr).Msg("redis unreachable, stats disabled")
		return stats.Noop{}
	}
	logger.Info().Str("addr", cfg.Redis.Addr).Msg("redis stats sink enabled")
	return stats.NewRedis(rdb, stats.WithPrefix(cfg.Redis.Prefix))
}
