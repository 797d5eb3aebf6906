package services

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/soaringjerry/greenprint/internal/metrics"
)

type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// IDStrategy decides how ids are assigned to generated insights.
type IDStrategy string

const (
	// IDSource keeps the generator's id, falling back to the 1-based position.
	IDSource IDStrategy = "source"
	// IDContent derives the id from category and title so that reactions do not
	// reattach to an unrelated insight that reuses a positional id.
	IDContent IDStrategy = "content"
)

type GeneratorConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	Timeout     time.Duration
	IDStrategy  IDStrategy
}

const (
	defaultModel       = "gpt-4"
	defaultTemperature = 0.7
	maxErrorBody       = 4 << 10
)

// InsightSink is the part of the insight store the fetcher writes to.
type InsightSink interface {
	ReplaceAll(ctx context.Context, insights []Insight) error
	SeedIfEmpty(ctx context.Context, insights []Insight) (bool, error)
	Insights() []Insight
}

// RecommendationService asks an OpenAI-compatible chat completions endpoint for
// personalised tips and falls back to the sample set on any failure.
//
// Every Fetch takes a sequence number. A response is applied only when no
// later fetch has been applied already, so a slow stale response cannot
// overwrite a fresher collection.
type RecommendationService struct {
	sink    InsightSink
	client  HTTPClient
	cfg     GeneratorConfig
	limiter *rate.Limiter
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	issued  atomic.Uint64
	applyMu sync.Mutex
	applied uint64
}

type RecommendationOption func(*RecommendationService)

// WithLimiter throttles outgoing generator calls. The limiter may be shared.
func WithLimiter(l *rate.Limiter) RecommendationOption {
	return func(s *RecommendationService) { s.limiter = l }
}

func WithLogger(l *slog.Logger) RecommendationOption {
	return func(s *RecommendationService) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithMetrics(m *metrics.Metrics) RecommendationOption {
	return func(s *RecommendationService) { s.metrics = m }
}

func NewRecommendationService(sink InsightSink, client HTTPClient, cfg GeneratorConfig, opts ...RecommendationOption) *RecommendationService {
	if client == nil {
		client = http.DefaultClient
	}
	if strings.TrimSpace(cfg.Model) == "" {
		cfg.Model = defaultModel
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = defaultTemperature
	}
	if cfg.IDStrategy == "" {
		cfg.IDStrategy = IDSource
	}
	s := &RecommendationService{
		sink:   sink,
		client: client,
		cfg:    cfg,
		logger: slog.Default(),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Fetch performs one generator call. External failures never reach the caller:
// the sample set is returned instead. The error is non-nil only when the
// insight store could not be written.
func (s *RecommendationService) Fetch(ctx context.Context, fp Footprint, survey *Survey) ([]Insight, error) {
	seq := s.issued.Add(1)
	start := time.Now()

	insights, err := s.generate(ctx, fp, survey)
	if err != nil {
		s.logger.WarnContext(ctx, "recommendation fetch failed, serving sample insights",
			"seq", seq,
			"model", s.cfg.Model,
			"error", err,
		)
		samples := SampleInsights(s.now())
		_, serr := s.sink.SeedIfEmpty(ctx, samples)
		s.metrics.ObserveFetch("fallback", time.Since(start))
		return samples, serr
	}

	s.applyMu.Lock()
	defer s.applyMu.Unlock()
	if seq < s.applied {
		s.logger.InfoContext(ctx, "discarding stale recommendations", "seq", seq, "applied", s.applied)
		s.metrics.ObserveFetch("stale", time.Since(start))
		return s.sink.Insights(), nil
	}
	if err := s.sink.ReplaceAll(ctx, insights); err != nil {
		s.metrics.ObserveFetch("fallback", time.Since(start))
		return SampleInsights(s.now()), err
	}
	s.applied = seq
	s.metrics.ObserveFetch("success", time.Since(start))
	s.logger.DebugContext(ctx, "applied recommendations", "seq", seq, "count", len(insights))
	return insights, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Temperature float64       `json:"temperature"`
	Messages    []chatMessage `json:"messages"`
}

func (s *RecommendationService) generate(ctx context.Context, fp Footprint, survey *Survey) ([]Insight, error) {
	if strings.TrimSpace(s.cfg.APIKey) == "" {
		return nil, fmt.Errorf("%w: api key not configured", ErrExternalService)
	}
	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: rate limit wait: %v", ErrExternalService, err)
		}
	}

	pb, err := json.Marshal(chatRequest{
		Model:       s.cfg.Model,
		Temperature: s.cfg.Temperature,
		Messages:    []chatMessage{{Role: "user", Content: BuildRecommendationPrompt(fp, survey)}},
	})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, normalizeOpenAIEndpoint(s.cfg.BaseURL), bytes.NewReader(pb))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExternalService, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, NewBadGatewayError(err.Error())
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, NewBadGatewayError(fmt.Sprintf("generator returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b))))
	}
	var cc struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&cc); err != nil {
		return nil, NewBadGatewayError(err.Error())
	}
	if len(cc.Choices) == 0 {
		return nil, NewBadGatewayError("no choices")
	}
	return ParseInsights(cc.Choices[0].Message.Content, s.now(), s.cfg.IDStrategy)
}

// ParseInsights validates generator output: a JSON array of objects with string
// category, title and description, numeric impact in (0,1] and an optional
// string or numeric id.
func ParseInsights(content string, now time.Time, strategy IDStrategy) ([]Insight, error) {
	var raw []map[string]any
	if err := json.Unmarshal([]byte(stripCodeFence(content)), &raw); err != nil {
		return nil, NewBadGatewayError("invalid JSON from model: " + err.Error())
	}
	if len(raw) == 0 {
		return nil, NewBadGatewayError("model returned no insights")
	}
	out := make([]Insight, 0, len(raw))
	seen := make(map[string]bool, len(raw))
	for i, el := range raw {
		if el == nil {
			return nil, NewBadGatewayError(fmt.Sprintf("element %d is not an object", i))
		}
		category, ok := el["category"].(string)
		if !ok || !Category(strings.ToLower(strings.TrimSpace(category))).Valid() {
			return nil, NewBadGatewayError(fmt.Sprintf("element %d: invalid category %v", i, el["category"]))
		}
		title, ok := el["title"].(string)
		if !ok || strings.TrimSpace(title) == "" {
			return nil, NewBadGatewayError(fmt.Sprintf("element %d: title must be a non-empty string", i))
		}
		desc, ok := el["description"].(string)
		if !ok || strings.TrimSpace(desc) == "" {
			return nil, NewBadGatewayError(fmt.Sprintf("element %d: description must be a non-empty string", i))
		}
		impact, ok := el["impact"].(float64)
		if !ok || !(impact > 0 && impact <= 1) {
			return nil, NewBadGatewayError(fmt.Sprintf("element %d: impact must be a number in (0,1]", i))
		}

		in := Insight{
			Category:    Category(strings.ToLower(strings.TrimSpace(category))),
			Title:       strings.TrimSpace(title),
			Description: strings.TrimSpace(desc),
			Impact:      impact,
			CreatedAt:   now,
		}
		switch strategy {
		case IDContent:
			in.ID = contentID(in)
		default:
			id, err := sourceID(el["id"], i)
			if err != nil {
				return nil, err
			}
			in.ID = id
		}
		if seen[in.ID] {
			return nil, NewBadGatewayError(fmt.Sprintf("duplicate insight id %q", in.ID))
		}
		seen[in.ID] = true
		out = append(out, in)
	}
	return out, nil
}

func sourceID(v any, index int) (string, error) {
	switch id := v.(type) {
	case nil:
		return strconv.Itoa(index + 1), nil
	case string:
		if strings.TrimSpace(id) == "" {
			return strconv.Itoa(index + 1), nil
		}
		return strings.TrimSpace(id), nil
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64), nil
	}
	return "", NewBadGatewayError(fmt.Sprintf("element %d: id must be a string or number", index))
}

func contentID(in Insight) string {
	sum := sha256.Sum256([]byte(string(in.Category) + "\x00" + strings.ToLower(in.Title)))
	return hex.EncodeToString(sum[:6])
}

// stripCodeFence removes a surrounding ``` or ```json fence some models add.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "```"))
}

// BuildRecommendationPrompt asks for exactly three tips grounded in the
// user's footprint breakdown and survey answers.
func BuildRecommendationPrompt(fp Footprint, survey *Survey) string {
	var b strings.Builder
	b.WriteString("Based on a user's carbon footprint, suggest exactly 3 personalized sustainability tips.\n")
	b.WriteString("Each tip must include:\n")
	b.WriteString("- category (one of: transportation, energy, diet, shopping)\n")
	b.WriteString("- title\n")
	b.WriteString("- description\n")
	b.WriteString("- impact (number from 0.1 to 1.0)\n\n")
	fmt.Fprintf(&b, "Monthly footprint (%s): transportation %.2f, diet %.2f, energy %.2f, shopping %.2f, total %.2f.\n",
		FootprintUnit, fp.Transportation, fp.Diet, fp.Energy, fp.Shopping, fp.Total)
	if survey != nil {
		prefs := make([]string, 0, len(survey.Shopping.Preferences))
		for _, p := range survey.Shopping.Preferences {
			prefs = append(prefs, string(p))
		}
		fmt.Fprintf(&b, "Lifestyle: commutes by %s, %.1f km per day, %d days per week; %s diet; %.0f kWh electricity per month, %.0f%% renewable; shops %s, preferences: %s.\n",
			survey.Transportation.Primary, survey.Transportation.Distance, survey.Transportation.Frequency,
			survey.Diet, survey.Energy.ElectricityUsage, survey.Energy.RenewablePercentage,
			survey.Shopping.Frequency, strings.Join(prefs, ", "))
	}
	b.WriteString("\nRespond ONLY with a JSON array of objects with keys: id, category, title, description, impact.")
	return b.String()
}

func normalizeOpenAIEndpoint(base string) string {
	endpoint := strings.TrimRight(strings.TrimSpace(base), "/")
	if endpoint == "" {
		endpoint = "https://api.openai.com"
	}
	switch {
	case strings.HasSuffix(endpoint, "/chat/completions"):
		return endpoint
	case strings.HasSuffix(endpoint, "/v1"):
		return endpoint + "/chat/completions"
	default:
		return endpoint + "/v1/chat/completions"
	}
}
