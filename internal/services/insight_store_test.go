package services

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestInsightStore(t *testing.T, kv *stubKV) *InsightStore {
	t.Helper()
	s := NewInsightStore(kv, nil, nil)
	s.now = func() time.Time { return time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC) }
	require.NoError(t, s.Load(context.Background()))
	return s
}

func insightIDs(in []Insight) []string {
	out := make([]string, len(in))
	for i, x := range in {
		out[i] = x.ID
	}
	return out
}

func TestInsightStoreLoadInstallsSamples(t *testing.T) {
	kv := newStubKV()
	s := newTestInsightStore(t, kv)
	assert.Equal(t, []string{"1", "2", "3", "4"}, insightIDs(s.Insights()))
	assert.True(t, kv.has(KeyInsights))
}

func TestInsightStoreLoadRestoresPersistedState(t *testing.T) {
	kv := newStubKV()
	ctx := context.Background()
	first := newTestInsightStore(t, kv)
	require.NoError(t, first.ReplaceAll(ctx, []Insight{{ID: "a", Category: CategoryEnergy, Title: "t", Description: "d", Impact: 0.4}}))
	_, err := first.Like(ctx, "a")
	require.NoError(t, err)
	_, err = first.Save(ctx, "zzz")
	require.NoError(t, err)

	second := newTestInsightStore(t, kv)
	assert.Equal(t, []string{"a"}, insightIDs(second.Insights()))
	assert.Equal(t, Reactions{Liked: true}, second.Reactions("a"))
	assert.Equal(t, Reactions{Saved: true}, second.Reactions("zzz"))
}

func TestLikeDislikeAreMutuallyExclusive(t *testing.T) {
	s := newTestInsightStore(t, newStubKV())
	ctx := context.Background()

	r, err := s.Like(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, Reactions{Liked: true}, r)

	r, err = s.Dislike(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, Reactions{Disliked: true}, r)

	r, err = s.Like(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, Reactions{Liked: true}, r)
}

func TestReactionTogglesRoundTrip(t *testing.T) {
	s := newTestInsightStore(t, newStubKV())
	ctx := context.Background()
	for _, toggle := range []func(context.Context, string) (Reactions, error){s.Like, s.Dislike, s.Save} {
		before := s.Reactions("2")
		_, err := toggle(ctx, "2")
		require.NoError(t, err)
		after, err := toggle(ctx, "2")
		require.NoError(t, err)
		assert.Equal(t, before, after)
	}
}

func TestSaveIsIndependentOfLike(t *testing.T) {
	s := newTestInsightStore(t, newStubKV())
	ctx := context.Background()
	_, err := s.Like(ctx, "3")
	require.NoError(t, err)
	r, err := s.Save(ctx, "3")
	require.NoError(t, err)
	assert.Equal(t, Reactions{Liked: true, Saved: true}, r)
	r, err = s.Dislike(ctx, "3")
	require.NoError(t, err)
	assert.Equal(t, Reactions{Disliked: true, Saved: true}, r)
}

func TestReactionRequiresID(t *testing.T) {
	s := newTestInsightStore(t, newStubKV())
	_, err := s.Like(context.Background(), "  ")
	se, ok := AsServiceError(err)
	require.True(t, ok)
	assert.Equal(t, ErrorInvalid, se.Code)
}

func TestReactionWriteFailureLeavesStateUnchanged(t *testing.T) {
	kv := newStubKV()
	s := newTestInsightStore(t, kv)
	ctx := context.Background()
	_, err := s.Like(ctx, "1")
	require.NoError(t, err)

	kv.failOn[KeyDislikedInsights] = true
	r, err := s.Dislike(ctx, "1")
	require.Error(t, err)
	assert.Equal(t, Reactions{Liked: true}, r)
	assert.Equal(t, Reactions{Liked: true}, s.Reactions("1"))

	var liked map[string]bool
	b, _ := kv.Get(ctx, KeyLikedInsights)
	require.NoError(t, json.Unmarshal(b, &liked))
	assert.True(t, liked["1"])
}

func TestFilter(t *testing.T) {
	s := newTestInsightStore(t, newStubKV())
	ctx := context.Background()

	all, err := s.Filter("")
	require.NoError(t, err)
	assert.Equal(t, insightIDs(s.Insights()), insightIDs(all))

	diet, err := s.Filter(string(CategoryDiet))
	require.NoError(t, err)
	assert.Equal(t, []string{"2"}, insightIDs(diet))

	_, err = s.Save(ctx, "4")
	require.NoError(t, err)
	_, err = s.Save(ctx, "1")
	require.NoError(t, err)
	saved, err := s.Filter(FilterSaved)
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "4"}, insightIDs(saved))

	_, err = s.Filter("water")
	assert.Error(t, err)
}

func TestSortIsStableAndDescending(t *testing.T) {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	in := []Insight{
		{ID: "a", Impact: 0.5, CreatedAt: base},
		{ID: "b", Impact: 0.9, CreatedAt: base.Add(2 * time.Hour)},
		{ID: "c", Impact: 0.5, CreatedAt: base.Add(time.Hour)},
		{ID: "d", Impact: 0.9, CreatedAt: base.Add(time.Hour)},
	}

	byImpact, err := SortInsights(in, SortByImpact)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "d", "a", "c"}, insightIDs(byImpact))

	byDate, err := SortInsights(in, SortByDate)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c", "d", "a"}, insightIDs(byDate))

	assert.Equal(t, []string{"a", "b", "c", "d"}, insightIDs(in), "input must not be mutated")

	_, err = SortInsights(in, "title")
	assert.Error(t, err)
}

func TestReplaceAllKeepsReactionsByID(t *testing.T) {
	s := newTestInsightStore(t, newStubKV())
	ctx := context.Background()
	_, err := s.Like(ctx, "1")
	require.NoError(t, err)

	next := []Insight{
		{ID: "1", Category: CategoryShopping, Title: "Repair", Description: "Fix it", Impact: 0.3},
		{ID: "9", Category: CategoryEnergy, Title: "LED", Description: "Swap bulbs", Impact: 0.6},
	}
	require.NoError(t, s.ReplaceAll(ctx, next))

	all, err := s.Filter("")
	require.NoError(t, err)
	assert.Equal(t, next, all)
	assert.True(t, s.Reactions("1").Liked)
}

func TestReplaceAllValidates(t *testing.T) {
	s := newTestInsightStore(t, newStubKV())
	ctx := context.Background()
	before := s.Insights()

	assert.Error(t, s.ReplaceAll(ctx, []Insight{{ID: "", Impact: 0.5}}))
	assert.Error(t, s.ReplaceAll(ctx, []Insight{{ID: "x", Impact: 0.5}, {ID: "x", Impact: 0.5}}))
	assert.Error(t, s.ReplaceAll(ctx, []Insight{{ID: "x", Impact: 0}}))
	assert.Error(t, s.ReplaceAll(ctx, []Insight{{ID: "x", Impact: 1.5}}))
	assert.Error(t, s.ReplaceAll(ctx, []Insight{{ID: "x", Category: "water", Title: "t", Description: "d", Impact: 0.5}}))
	assert.Error(t, s.ReplaceAll(ctx, []Insight{{ID: "x", Category: CategoryDiet, Description: "d", Impact: 0.5}}))
	assert.Equal(t, before, s.Insights())
}

func TestLoadReplacesCorruptCollection(t *testing.T) {
	kv := newStubKV()
	ctx := context.Background()
	corrupt := []Insight{
		{ID: "1", Category: CategoryDiet, Title: "a", Description: "b", Impact: 5},
		{ID: "1", Category: "water", Title: "c", Description: "d", Impact: 0},
	}
	raw, err := json.Marshal(corrupt)
	require.NoError(t, err)
	require.NoError(t, kv.Set(ctx, KeyInsights, raw))
	require.NoError(t, kv.Set(ctx, KeyLikedInsights, []byte(`{"1":true}`)))

	s := newTestInsightStore(t, kv)
	assert.Equal(t, []string{"1", "2", "3", "4"}, insightIDs(s.Insights()))
	assert.True(t, s.Reactions("1").Liked)

	var persisted []Insight
	stored, err := kv.Get(ctx, KeyInsights)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(stored, &persisted))
	assert.NoError(t, ValidateInsights(persisted))
}

func TestStoreSortLeavesCollectionOrder(t *testing.T) {
	s := newTestInsightStore(t, newStubKV())
	before := s.Insights()

	byImpact, err := s.Sort(SortByImpact)
	require.NoError(t, err)
	for i := 1; i < len(byImpact); i++ {
		assert.GreaterOrEqual(t, byImpact[i-1].Impact, byImpact[i].Impact)
	}
	assert.ElementsMatch(t, insightIDs(before), insightIDs(byImpact))
	assert.Equal(t, before, s.Insights())

	_, err = s.Sort("title")
	assert.Error(t, err)
}

func TestSeedIfEmpty(t *testing.T) {
	s := newTestInsightStore(t, newStubKV())
	ctx := context.Background()

	applied, err := s.SeedIfEmpty(ctx, []Insight{{ID: "x", Category: CategoryDiet, Title: "t", Description: "d", Impact: 0.5}})
	require.NoError(t, err)
	assert.False(t, applied)

	require.NoError(t, s.ReplaceAll(ctx, nil))
	applied, err = s.SeedIfEmpty(ctx, SampleInsights(time.Now()))
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Len(t, s.Insights(), 4)
}

func TestListJoinsReactions(t *testing.T) {
	s := newTestInsightStore(t, newStubKV())
	_, err := s.Save(context.Background(), "3")
	require.NoError(t, err)

	views, err := s.List(FilterSaved, SortByImpact)
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, "3", views[0].ID)
	assert.True(t, views[0].Saved)
	assert.Equal(t, "Medium", views[0].ImpactLevel)
}

func TestImpactLevel(t *testing.T) {
	assert.Equal(t, "High", ImpactLevel(0.9))
	assert.Equal(t, "Medium", ImpactLevel(0.8))
	assert.Equal(t, "Medium", ImpactLevel(0.6))
	assert.Equal(t, "Low", ImpactLevel(0.5))
}

func TestViewsKeepCollectionOrder(t *testing.T) {
	s := newTestInsightStore(t, newStubKV())
	_, err := s.Dislike(context.Background(), "2")
	require.NoError(t, err)
	views := s.Views()
	require.Len(t, views, 4)
	assert.Equal(t, "1", views[0].ID)
	assert.True(t, views[1].Disliked)
	assert.Equal(t, "Low", views[3].ImpactLevel)
}
