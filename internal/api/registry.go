package api

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	cache "github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"github.com/soaringjerry/greenprint/internal/db"
	"github.com/soaringjerry/greenprint/internal/metrics"
	"github.com/soaringjerry/greenprint/internal/services"
)

// Profile bundles the stateful components of one signed-in user.
type Profile struct {
	KV       services.KVStore
	Insights *services.InsightStore
	Survey   *services.SurveySession
	Fetcher  *services.RecommendationService
}

// Registry builds profiles lazily and keeps them in a TTL cache. Every access
// extends the entry, so drafts expire only after the configured idle time.
type Registry struct {
	store     db.Store
	calc      *services.Calculator
	client    services.HTTPClient
	generator services.GeneratorConfig
	limiter   *rate.Limiter
	logger    *slog.Logger
	metrics   *metrics.Metrics

	mu       sync.Mutex
	profiles *cache.Cache
}

type RegistryConfig struct {
	Store     db.Store
	Model     services.EmissionModel
	Client    services.HTTPClient
	Generator services.GeneratorConfig
	Limiter   *rate.Limiter
	DraftTTL  time.Duration
	Logger    *slog.Logger
	Metrics   *metrics.Metrics
}

func NewRegistry(cfg RegistryConfig) *Registry {
	if cfg.DraftTTL <= 0 {
		cfg.DraftTTL = 24 * time.Hour
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Client == nil {
		cfg.Client = http.DefaultClient
	}
	return &Registry{
		store:     cfg.Store,
		calc:      services.NewCalculator(cfg.Model),
		client:    cfg.Client,
		generator: cfg.Generator,
		limiter:   cfg.Limiter,
		logger:    cfg.Logger,
		metrics:   cfg.Metrics,
		profiles:  cache.New(cfg.DraftTTL, cfg.DraftTTL/2),
	}
}

func (r *Registry) Calculator() *services.Calculator { return r.calc }

// ProfileKV returns the namespaced store of userID. It matches services.ProfileStores.
func (r *Registry) ProfileKV(userID string) services.KVStore {
	return db.Namespace(r.store, db.ProfilePrefix(userID))
}

// Get returns the profile of userID, loading persisted state on first use.
func (r *Registry) Get(ctx context.Context, userID string) (*Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if v, ok := r.profiles.Get(userID); ok {
		p := v.(*Profile)
		r.profiles.SetDefault(userID, p)
		return p, nil
	}

	kv := r.ProfileKV(userID)
	logger := r.logger.With("uid", userID)
	insights := services.NewInsightStore(kv, logger, r.metrics)
	if err := insights.Load(ctx); err != nil {
		return nil, err
	}
	survey := services.NewSurveySession(kv, r.calc, logger, r.metrics)
	if err := survey.Resume(ctx); err != nil {
		return nil, err
	}
	p := &Profile{
		KV:       kv,
		Insights: insights,
		Survey:   survey,
		Fetcher: services.NewRecommendationService(insights, r.client, r.generator,
			services.WithLimiter(r.limiter),
			services.WithLogger(logger),
			services.WithMetrics(r.metrics),
		),
	}
	r.profiles.SetDefault(userID, p)
	return p, nil
}

// Evict drops the cached profile so the next access reloads it from storage.
func (r *Registry) Evict(userID string) {
	r.profiles.Delete(userID)
}
