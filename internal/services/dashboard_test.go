package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSummarizeWorkedExample(t *testing.T) {
	fp := testFootprint()
	views := make([]InsightView, 0, 5)
	for _, in := range append(SampleInsights(time.Unix(0, 0)), Insight{ID: "5", Category: CategoryDiet, Impact: 0.95}) {
		views = append(views, InsightView{Insight: in})
	}

	d := Summarize(fp, views)
	require.Len(t, d.Breakdown, 4)
	assert.Equal(t, CategoryShare{Category: CategoryTransportation, Amount: 61.92, Percent: 16}, d.Breakdown[0])
	assert.Equal(t, 34, d.Breakdown[1].Percent)
	assert.Equal(t, 12, d.Breakdown[2].Percent)
	assert.Equal(t, 38, d.Breakdown[3].Percent)

	assert.Equal(t, Equivalents{Trees: 19, CarKm: 32, LEDHours: 6559}, d.Equivalents)

	require.Len(t, d.TopInsights, 4)
	assert.Equal(t, []string{"1", "2", "3", "4"}, []string{d.TopInsights[0].ID, d.TopInsights[1].ID, d.TopInsights[2].ID, d.TopInsights[3].ID})
	assert.Equal(t, "Medium", d.TopInsights[0].ImpactLevel)
	assert.Equal(t, "Low", d.TopInsights[3].ImpactLevel)
}

func TestSummarizeZeroTotal(t *testing.T) {
	d := Summarize(Footprint{Unit: FootprintUnit}, nil)
	for _, share := range d.Breakdown {
		assert.Zero(t, share.Percent)
	}
	assert.Equal(t, Equivalents{}, d.Equivalents)
	assert.Empty(t, d.TopInsights)
}
