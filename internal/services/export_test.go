package services

import (
	"encoding/csv"
	"strings"
	"testing"
	"time"
)

func readCSV(b []byte) ([][]string, error) {
	r := csv.NewReader(strings.NewReader(string(b)))
	return r.ReadAll()
}

func TestExportFootprintCSV(t *testing.T) {
	b, err := ExportFootprintCSV(testFootprint())
	if err != nil {
		t.Fatalf("export footprint: %v", err)
	}
	recs, err := readCSV(b)
	if err != nil {
		t.Fatalf("parse csv: %v", err)
	}
	if len(recs) != 6 {
		t.Fatalf("want 6 rows, got %d", len(recs))
	}
	if got := strings.Join(recs[1], ","); got != "transportation,61.92,16" {
		t.Fatalf("unexpected transportation row %q", got)
	}
	if got := strings.Join(recs[5], ","); got != "total,393.52,100" {
		t.Fatalf("unexpected total row %q", got)
	}
}

func TestExportInsightsCSV(t *testing.T) {
	created := time.Date(2025, 2, 3, 4, 5, 6, 0, time.UTC)
	views := []InsightView{
		{Insight: Insight{ID: "1", Category: CategoryDiet, Title: "Beans, not beef", Impact: 0.9, CreatedAt: created}, Reactions: Reactions{Liked: true, Saved: true}},
		{Insight: Insight{ID: "2", Category: CategoryEnergy, Title: "LED", Impact: 0.4}},
	}
	b, err := ExportInsightsCSV(views)
	if err != nil {
		t.Fatalf("export insights: %v", err)
	}
	recs, err := readCSV(b)
	if err != nil {
		t.Fatalf("parse csv: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("want 3 rows, got %d", len(recs))
	}
	want := []string{"1", "diet", "Beans, not beef", "0.9", "High", "2025-02-03T04:05:06Z", "true", "false", "true"}
	for i, v := range want {
		if recs[1][i] != v {
			t.Fatalf("col %d: want %q got %q", i, v, recs[1][i])
		}
	}
	if recs[2][5] != "" || recs[2][4] != "Low" {
		t.Fatalf("unexpected second row %v", recs[2])
	}
}
