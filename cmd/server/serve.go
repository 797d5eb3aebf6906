package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/soaringjerry/greenprint/internal/api"
	"github.com/soaringjerry/greenprint/internal/config"
	"github.com/soaringjerry/greenprint/internal/db"
	"github.com/soaringjerry/greenprint/internal/metrics"
	"github.com/soaringjerry/greenprint/internal/middleware"
	"github.com/soaringjerry/greenprint/internal/services"
)

func serveCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(g)
			if err != nil {
				return err
			}
			logger := newLogger(os.Stderr, cfg.Log)
			slog.SetDefault(logger)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, logger)
		},
	}
}

func openStore(ctx context.Context, cfg *config.Config) (db.Store, error) {
	return db.Open(ctx, db.Options{
		Driver:        db.Driver(cfg.Storage.Driver),
		SQLitePath:    cfg.Storage.SQLitePath,
		MigrationsDir: cfg.Storage.MigrationsDir,
		RedisURL:      cfg.Storage.RedisURL,
		RedisPrefix:   cfg.Storage.RedisPrefix,
		DialTimeout:   5 * time.Second,
	})
}

// generatorLimiter converts a per-minute budget into a token bucket; zero disables it.
func generatorLimiter(cfg config.GeneratorConfig) *rate.Limiter {
	if cfg.RatePerMin <= 0 {
		return nil
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(cfg.RatePerMin/60), burst)
}

func newHandler(cfg *config.Config, store db.Store, logger *slog.Logger) http.Handler {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	registry := api.NewRegistry(api.RegistryConfig{
		Store:  store,
		Model:  services.DefaultEmissionModel(),
		Client: &http.Client{},
		Generator: services.GeneratorConfig{
			BaseURL:    cfg.Generator.BaseURL,
			APIKey:     cfg.Generator.APIKey,
			Model:      cfg.Generator.Model,
			Timeout:    cfg.Generator.Timeout.Std(),
			IDStrategy: services.IDStrategy(cfg.Generator.IDStrategy),
		},
		Limiter:  generatorLimiter(cfg.Generator),
		DraftTTL: cfg.Survey.DraftTTL.Std(),
		Logger:   logger,
		Metrics:  m,
	})
	tokens := middleware.NewTokens(cfg.Auth.JWTSecret)
	identity := services.NewMockIdentityProvider(registry.ProfileKV, tokens.Sign, cfg.Auth.TokenTTL.Std(), logger)

	r := chi.NewRouter()
	r.Use(middleware.RequestID, chimw.Recoverer, middleware.RequestLogger(logger, m),
		middleware.SecureHeaders, middleware.CORS(cfg.Server.AllowedOrigins))
	api.NewRouter(api.RouterConfig{
		Registry: registry,
		Identity: identity,
		Tokens:   tokens,
		Gatherer: reg,
		Health:   func(ctx context.Context) error { return db.Health(ctx, store) },
		Logger:   logger,
		Version:  Version,
	}).Register(r)
	if cfg.Server.StaticDir != "" {
		r.Handle("/*", http.FileServer(http.Dir(cfg.Server.StaticDir)))
	}
	return r
}

func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := store.Close(); cerr != nil {
			logger.Warn("failed to close store", "error", cerr)
		}
	}()
	if cfg.Generator.APIKey == "" {
		logger.Warn("no generator API key configured, recommendations will use the sample set")
	}

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           newHandler(cfg, store, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("greenprint listening", "addr", cfg.Server.Addr, "storage", cfg.Storage.Driver, "version", Version)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Std())
		defer cancel()
		logger.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
