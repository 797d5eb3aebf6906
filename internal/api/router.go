package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/soaringjerry/greenprint/internal/middleware"
	"github.com/soaringjerry/greenprint/internal/services"
)

type Router struct {
	registry *Registry
	identity services.IdentityProvider
	tokens   *middleware.Tokens
	gatherer prometheus.Gatherer
	health   func(context.Context) error
	logger   *slog.Logger
	version  string
}

type RouterConfig struct {
	Registry *Registry
	Identity services.IdentityProvider
	Tokens   *middleware.Tokens
	Gatherer prometheus.Gatherer
	Health   func(context.Context) error // nil means always healthy
	Logger   *slog.Logger
	Version  string
}

func NewRouter(cfg RouterConfig) *Router {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Gatherer == nil {
		cfg.Gatherer = prometheus.DefaultGatherer
	}
	return &Router{
		registry: cfg.Registry,
		identity: cfg.Identity,
		tokens:   cfg.Tokens,
		gatherer: cfg.Gatherer,
		health:   cfg.Health,
		logger:   cfg.Logger,
		version:  cfg.Version,
	}
}

func (rt *Router) Register(r chi.Router) {
	r.Get("/health", rt.handleHealth)
	r.Get("/version", rt.handleVersion)
	r.Handle("/metrics", promhttp.HandlerFor(rt.gatherer, promhttp.HandlerOpts{}))

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.NoStore, rt.tokens.WithAuth)

		r.Post("/auth/register", rt.handleRegister)
		r.Post("/auth/login", rt.handleLogin)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAuth)

			r.Post("/auth/logout", rt.handleLogout)
			r.Get("/auth/me", rt.handleMe)

			r.Get("/survey", rt.handleSurveyState)
			r.Patch("/survey", rt.handleSurveyUpdate)
			r.Post("/survey/advance", rt.handleSurveyAdvance)
			r.Post("/survey/retreat", rt.handleSurveyRetreat)

			r.Get("/footprint", rt.handleFootprint)
			r.Post("/footprint/calculate", rt.handleCalculate)
			r.Get("/dashboard", rt.handleDashboard)

			r.Get("/insights", rt.handleInsights)
			r.Post("/insights/refresh", rt.handleRefresh)
			r.Post("/insights/{id}/{reaction}", rt.handleReaction)

			r.Get("/export", rt.handleExport)
		})
	})
}

func (rt *Router) handleHealth(w http.ResponseWriter, r *http.Request) {
	if rt.health != nil {
		if err := rt.health(r.Context()); err != nil {
			rt.logger.WarnContext(r.Context(), "storage health check failed", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"version": rt.version})
}

// profile resolves the signed-in user's components.
func (rt *Router) profile(w http.ResponseWriter, r *http.Request) (*Profile, string, bool) {
	uid, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, r, rt.logger, services.NewUnauthorizedError("sign in required"))
		return nil, "", false
	}
	p, err := rt.registry.Get(r.Context(), uid)
	if err != nil {
		writeError(w, r, rt.logger, err)
		return nil, "", false
	}
	return p, uid, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, logger *slog.Logger, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, r, logger, services.NewInvalidError("invalid JSON body: "+err.Error()))
		return false
	}
	return true
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

// POST /api/auth/register
func (rt *Router) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if !decodeBody(w, r, rt.logger, &req) {
		return
	}
	sess, err := rt.identity.Register(r.Context(), req.Email, req.Password, req.Name)
	if err != nil {
		writeError(w, r, rt.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

// POST /api/auth/login
func (rt *Router) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if !decodeBody(w, r, rt.logger, &req) {
		return
	}
	sess, err := rt.identity.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, r, rt.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// POST /api/auth/logout
func (rt *Router) handleLogout(w http.ResponseWriter, r *http.Request) {
	uid, _ := middleware.UserIDFromContext(r.Context())
	if err := rt.identity.Logout(r.Context(), uid); err != nil {
		writeError(w, r, rt.logger, err)
		return
	}
	rt.registry.Evict(uid)
	w.WriteHeader(http.StatusNoContent)
}

// GET /api/auth/me
func (rt *Router) handleMe(w http.ResponseWriter, r *http.Request) {
	uid, _ := middleware.UserIDFromContext(r.Context())
	u, err := rt.identity.CurrentUser(r.Context(), uid)
	if err != nil {
		writeError(w, r, rt.logger, err)
		return
	}
	if u == nil {
		writeError(w, r, rt.logger, services.NewUnauthorizedError("signed out"))
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// GET /api/survey
func (rt *Router) handleSurveyState(w http.ResponseWriter, r *http.Request) {
	p, _, ok := rt.profile(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, p.Survey.State())
}

// PATCH /api/survey {"field": "...", "value": ...}
func (rt *Router) handleSurveyUpdate(w http.ResponseWriter, r *http.Request) {
	p, _, ok := rt.profile(w, r)
	if !ok {
		return
	}
	var req struct {
		Field string          `json:"field"`
		Value json.RawMessage `json:"value"`
	}
	if !decodeBody(w, r, rt.logger, &req) {
		return
	}
	u, err := services.DecodeUpdate(req.Field, req.Value)
	if err != nil {
		writeError(w, r, rt.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, p.Survey.Apply(u))
}

// POST /api/survey/advance
func (rt *Router) handleSurveyAdvance(w http.ResponseWriter, r *http.Request) {
	p, _, ok := rt.profile(w, r)
	if !ok {
		return
	}
	st, err := p.Survey.Advance(r.Context())
	if err != nil {
		writeError(w, r, rt.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// POST /api/survey/retreat
func (rt *Router) handleSurveyRetreat(w http.ResponseWriter, r *http.Request) {
	p, _, ok := rt.profile(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, p.Survey.Retreat())
}

// GET /api/footprint
func (rt *Router) handleFootprint(w http.ResponseWriter, r *http.Request) {
	p, _, ok := rt.profile(w, r)
	if !ok {
		return
	}
	fp, err := services.LoadFootprint(r.Context(), p.KV)
	if err != nil {
		writeError(w, r, rt.logger, err)
		return
	}
	if fp == nil {
		writeError(w, r, rt.logger, services.NewNotFoundError("no footprint yet, complete the survey first"))
		return
	}
	writeJSON(w, http.StatusOK, fp)
}

// POST /api/footprint/calculate previews a footprint without storing it.
func (rt *Router) handleCalculate(w http.ResponseWriter, r *http.Request) {
	var s services.Survey
	if !decodeBody(w, r, rt.logger, &s) {
		return
	}
	fp, err := rt.registry.Calculator().Calculate(s)
	if err != nil {
		writeError(w, r, rt.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, fp)
}

// GET /api/dashboard
func (rt *Router) handleDashboard(w http.ResponseWriter, r *http.Request) {
	p, _, ok := rt.profile(w, r)
	if !ok {
		return
	}
	fp, err := services.LoadFootprint(r.Context(), p.KV)
	if err != nil {
		writeError(w, r, rt.logger, err)
		return
	}
	if fp == nil {
		writeError(w, r, rt.logger, services.NewNotFoundError("no footprint yet, complete the survey first"))
		return
	}
	writeJSON(w, http.StatusOK, services.Summarize(*fp, p.Insights.Views()))
}

// GET /api/insights?filter=&sort=
func (rt *Router) handleInsights(w http.ResponseWriter, r *http.Request) {
	p, _, ok := rt.profile(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	views, err := p.Insights.List(q.Get("filter"), services.SortKey(q.Get("sort")))
	if err != nil {
		writeError(w, r, rt.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"insights": views})
}

// POST /api/insights/refresh asks the generator for a new collection.
func (rt *Router) handleRefresh(w http.ResponseWriter, r *http.Request) {
	p, _, ok := rt.profile(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	fp, err := services.LoadFootprint(ctx, p.KV)
	if err != nil {
		writeError(w, r, rt.logger, err)
		return
	}
	if fp == nil {
		writeError(w, r, rt.logger, services.NewNotFoundError("no footprint yet, complete the survey first"))
		return
	}
	survey, err := services.LoadSurvey(ctx, p.KV)
	if err != nil {
		writeError(w, r, rt.logger, err)
		return
	}
	insights, err := p.Fetcher.Fetch(ctx, *fp, survey)
	if err != nil {
		writeError(w, r, rt.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"insights": insights})
}

// POST /api/insights/{id}/like|dislike|save
func (rt *Router) handleReaction(w http.ResponseWriter, r *http.Request) {
	p, _, ok := rt.profile(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	var (
		reactions services.Reactions
		err       error
	)
	switch strings.ToLower(chi.URLParam(r, "reaction")) {
	case "like":
		reactions, err = p.Insights.Like(r.Context(), id)
	case "dislike":
		reactions, err = p.Insights.Dislike(r.Context(), id)
	case "save":
		reactions, err = p.Insights.Save(r.Context(), id)
	default:
		http.NotFound(w, r)
		return
	}
	if err != nil {
		writeError(w, r, rt.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "reactions": reactions})
}

// GET /api/export?format=footprint|insights
func (rt *Router) handleExport(w http.ResponseWriter, r *http.Request) {
	p, _, ok := rt.profile(w, r)
	if !ok {
		return
	}
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "footprint"
	}
	var (
		b   []byte
		err error
	)
	switch format {
	case "footprint":
		var fp *services.Footprint
		fp, err = services.LoadFootprint(r.Context(), p.KV)
		if err == nil && fp == nil {
			err = services.NewNotFoundError("no footprint yet, complete the survey first")
		}
		if err == nil {
			b, err = services.ExportFootprintCSV(*fp)
		}
	case "insights":
		b, err = services.ExportInsightsCSV(p.Insights.Views())
	default:
		err = services.NewInvalidError("format must be footprint or insights")
	}
	if err != nil {
		writeError(w, r, rt.logger, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", "attachment; filename="+format+".csv")
	_, _ = w.Write(b)
}
