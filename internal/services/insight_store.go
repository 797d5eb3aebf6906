package services

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/soaringjerry/greenprint/internal/metrics"
)

// FilterSaved selects the insights present in the saved map.
const FilterSaved = "saved"

type SortKey string

const (
	SortByImpact SortKey = "impact"
	SortByDate   SortKey = "date"
)

// Reactions are the per-insight flags kept in the three reaction maps.
type Reactions struct {
	Liked    bool `json:"liked"`
	Disliked bool `json:"disliked"`
	Saved    bool `json:"saved"`
}

// InsightView is an insight joined with its reactions for display and export.
type InsightView struct {
	Insight
	Reactions
	ImpactLevel string `json:"impactLevel"`
}

// InsightStore owns the active insight collection and the liked, disliked and
// saved maps. Reaction maps are keyed by id only and survive ReplaceAll.
type InsightStore struct {
	mu       sync.RWMutex
	kv       KVStore
	insights []Insight
	liked    map[string]bool
	disliked map[string]bool
	saved    map[string]bool
	logger   *slog.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

func NewInsightStore(kv KVStore, logger *slog.Logger, m *metrics.Metrics) *InsightStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &InsightStore{
		kv:       kv,
		liked:    map[string]bool{},
		disliked: map[string]bool{},
		saved:    map[string]bool{},
		logger:   logger,
		metrics:  m,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Load restores the collection and reaction maps. When no collection was ever
// persisted, or the persisted one fails ValidateInsights, the sample set is
// installed and persisted.
func (s *InsightStore) Load(ctx context.Context) error {
	var insights []Insight
	found, err := getJSON(ctx, s.kv, KeyInsights, &insights)
	if err != nil {
		return err
	}
	liked, disliked, saved := map[string]bool{}, map[string]bool{}, map[string]bool{}
	for key, m := range map[string]*map[string]bool{KeyLikedInsights: &liked, KeyDislikedInsights: &disliked, KeySavedInsights: &saved} {
		if _, err := getJSON(ctx, s.kv, key, m); err != nil {
			return err
		}
		if *m == nil {
			*m = map[string]bool{}
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.liked, s.disliked, s.saved = liked, disliked, saved
	if found {
		verr := ValidateInsights(insights)
		if verr == nil {
			s.insights = insights
			return nil
		}
		s.logger.WarnContext(ctx, "discarding corrupt insight collection", "error", verr)
	}
	samples := SampleInsights(s.now())
	if err := setJSON(ctx, s.kv, KeyInsights, samples); err != nil {
		return err
	}
	s.insights = samples
	s.logger.DebugContext(ctx, "installed sample insights", "count", len(samples))
	return nil
}

// ReplaceAll swaps the whole collection. Reaction maps are left untouched.
func (s *InsightStore) ReplaceAll(ctx context.Context, insights []Insight) error {
	if err := ValidateInsights(insights); err != nil {
		return err
	}
	next := append([]Insight(nil), insights...)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := setJSON(ctx, s.kv, KeyInsights, next); err != nil {
		return err
	}
	s.insights = next
	return nil
}

// SeedIfEmpty installs insights only when the collection is empty. It reports
// whether the seed was applied.
func (s *InsightStore) SeedIfEmpty(ctx context.Context, insights []Insight) (bool, error) {
	if err := ValidateInsights(insights); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.insights) > 0 {
		return false, nil
	}
	next := append([]Insight(nil), insights...)
	if err := setJSON(ctx, s.kv, KeyInsights, next); err != nil {
		return false, err
	}
	s.insights = next
	return true, nil
}

// ValidateInsights checks that ids are present and unique, categories are
// known, title and description are set and impact lies in (0,1].
func ValidateInsights(insights []Insight) error {
	seen := make(map[string]bool, len(insights))
	for i, in := range insights {
		if strings.TrimSpace(in.ID) == "" {
			return NewInvalidError(fmt.Sprintf("insight %d: id required", i))
		}
		if seen[in.ID] {
			return NewInvalidError(fmt.Sprintf("duplicate insight id %q", in.ID))
		}
		seen[in.ID] = true
		if !in.Category.Valid() {
			return NewInvalidError(fmt.Sprintf("insight %q: unknown category %q", in.ID, in.Category))
		}
		if strings.TrimSpace(in.Title) == "" || strings.TrimSpace(in.Description) == "" {
			return NewInvalidError(fmt.Sprintf("insight %q: title and description required", in.ID))
		}
		if !(in.Impact > 0 && in.Impact <= 1) {
			return NewInvalidError(fmt.Sprintf("insight %q: impact %v outside (0,1]", in.ID, in.Impact))
		}
	}
	return nil
}

// Insights returns a copy of the active collection in its original order.
func (s *InsightStore) Insights() []Insight {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Insight(nil), s.insights...)
}

// Filter returns the whole collection for "", the matching category, or the
// saved subsequence for FilterSaved. Relative order is preserved.
func (s *InsightStore) Filter(filter string) ([]Insight, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	switch {
	case filter == "":
		return append([]Insight(nil), s.insights...), nil
	case filter == FilterSaved:
		out := make([]Insight, 0, len(s.insights))
		for _, in := range s.insights {
			if s.saved[in.ID] {
				out = append(out, in)
			}
		}
		return out, nil
	case Category(filter).Valid():
		out := make([]Insight, 0, len(s.insights))
		for _, in := range s.insights {
			if in.Category == Category(filter) {
				out = append(out, in)
			}
		}
		return out, nil
	}
	return nil, NewInvalidError(fmt.Sprintf("unknown filter %q", filter))
}

// SortInsights returns a new slice ordered by descending impact or descending
// creation time. The sort is stable so ties keep their input order.
func SortInsights(in []Insight, by SortKey) ([]Insight, error) {
	out := append([]Insight(nil), in...)
	switch by {
	case SortByImpact, "":
		sort.SliceStable(out, func(i, j int) bool { return out[i].Impact > out[j].Impact })
	case SortByDate:
		sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	default:
		return nil, NewInvalidError(fmt.Sprintf("unknown sort key %q", by))
	}
	return out, nil
}

// Sort orders the active collection without mutating it.
func (s *InsightStore) Sort(by SortKey) ([]Insight, error) {
	return SortInsights(s.Insights(), by)
}

// List filters then sorts and joins the reaction flags.
func (s *InsightStore) List(filter string, by SortKey) ([]InsightView, error) {
	filtered, err := s.Filter(filter)
	if err != nil {
		return nil, err
	}
	sorted, err := SortInsights(filtered, by)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]InsightView, 0, len(sorted))
	for _, in := range sorted {
		out = append(out, InsightView{Insight: in, Reactions: s.reactionsLocked(in.ID), ImpactLevel: ImpactLevel(in.Impact)})
	}
	return out, nil
}

// Views joins the whole collection with reactions, keeping collection order.
func (s *InsightStore) Views() []InsightView {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]InsightView, 0, len(s.insights))
	for _, in := range s.insights {
		out = append(out, InsightView{Insight: in, Reactions: s.reactionsLocked(in.ID), ImpactLevel: ImpactLevel(in.Impact)})
	}
	return out
}

func (s *InsightStore) Reactions(id string) Reactions {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reactionsLocked(id)
}

func (s *InsightStore) reactionsLocked(id string) Reactions {
	return Reactions{Liked: s.liked[id], Disliked: s.disliked[id], Saved: s.saved[id]}
}

// Like toggles the liked flag. Turning it on clears disliked for the same id.
// Ids need not exist in the current collection.
func (s *InsightStore) Like(ctx context.Context, id string) (Reactions, error) {
	return s.toggleExclusive(ctx, id, "like")
}

// Dislike toggles the disliked flag. Turning it on clears liked for the same id.
func (s *InsightStore) Dislike(ctx context.Context, id string) (Reactions, error) {
	return s.toggleExclusive(ctx, id, "dislike")
}

func (s *InsightStore) toggleExclusive(ctx context.Context, id, kind string) (Reactions, error) {
	if strings.TrimSpace(id) == "" {
		return Reactions{}, NewInvalidError("insight id required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	target, other := s.liked, s.disliked
	targetKey, otherKey := KeyLikedInsights, KeyDislikedInsights
	if kind == "dislike" {
		target, other = s.disliked, s.liked
		targetKey, otherKey = KeyDislikedInsights, KeyLikedInsights
	}

	nextTarget := toggled(target, id)
	writes := map[string]any{targetKey: nextTarget}
	nextOther := other
	if nextTarget[id] && other[id] {
		nextOther = copyFlags(other)
		delete(nextOther, id)
		writes[otherKey] = nextOther
	}
	if err := setManyJSON(ctx, s.kv, writes); err != nil {
		return s.reactionsLocked(id), err
	}
	if kind == "dislike" {
		s.disliked, s.liked = nextTarget, nextOther
	} else {
		s.liked, s.disliked = nextTarget, nextOther
	}
	s.metrics.IncReaction(kind, nextTarget[id])
	return s.reactionsLocked(id), nil
}

// Save toggles the saved flag independently of like and dislike.
func (s *InsightStore) Save(ctx context.Context, id string) (Reactions, error) {
	if strings.TrimSpace(id) == "" {
		return Reactions{}, NewInvalidError("insight id required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	next := toggled(s.saved, id)
	if err := setJSON(ctx, s.kv, KeySavedInsights, next); err != nil {
		return s.reactionsLocked(id), err
	}
	s.saved = next
	s.metrics.IncReaction("save", next[id])
	return s.reactionsLocked(id), nil
}

// toggled returns a copy of m with id flipped. Off entries are deleted.
func toggled(m map[string]bool, id string) map[string]bool {
	out := copyFlags(m)
	if out[id] {
		delete(out, id)
	} else {
		out[id] = true
	}
	return out
}

func copyFlags(m map[string]bool) map[string]bool {
	out := make(map[string]bool, len(m)+1)
	for k, v := range m {
		if v {
			out[k] = true
		}
	}
	return out
}

// ImpactLevel buckets an impact score for display.
func ImpactLevel(impact float64) string {
	switch {
	case impact > 0.8:
		return "High"
	case impact > 0.5:
		return "Medium"
	default:
		return "Low"
	}
}

// SampleInsights is the static fallback collection.
func SampleInsights(now time.Time) []Insight {
	return []Insight{
		{
			ID:          "1",
			Category:    CategoryTransportation,
			Title:       "Consider carpooling to work",
			Description: "Sharing your ride to work just twice a week could reduce your transportation emissions by up to 20%.",
			Impact:      0.8,
			CreatedAt:   now,
		},
		{
			ID:          "2",
			Category:    CategoryDiet,
			Title:       "Try a meatless Monday",
			Description: "Replacing meat with plant-based alternatives one day a week can reduce your diet-related carbon footprint.",
			Impact:      0.7,
			CreatedAt:   now,
		},
		{
			ID:          "3",
			Category:    CategoryEnergy,
			Title:       "Optimize your thermostat",
			Description: "Adjusting your thermostat by just 1-2 degrees can save energy and reduce your carbon emissions.",
			Impact:      0.6,
			CreatedAt:   now,
		},
		{
			ID:          "4",
			Category:    CategoryShopping,
			Title:       "Buy local seasonal produce",
			Description: "Local and seasonal foods require less transportation and often less energy to produce.",
			Impact:      0.5,
			CreatedAt:   now,
		},
	}
}
