package services

import (
	"bytes"
	"encoding/csv"
	"strconv"
	"time"
)

// ExportFootprintCSV renders the per-category breakdown followed by the total.
func ExportFootprintCSV(fp Footprint) ([]byte, error) {
	buf := &bytes.Buffer{}
	w := csv.NewWriter(buf)
	_ = w.Write([]string{"category", "kg_co2e", "percent"})
	for _, share := range Summarize(fp, nil).Breakdown {
		rec := []string{string(share.Category), ftoa(share.Amount), strconv.Itoa(share.Percent)}
		if err := w.Write(rec); err != nil {
			return nil, err
		}
	}
	total := "0"
	if fp.Total > 0 {
		total = "100"
	}
	if err := w.Write([]string{"total", ftoa(fp.Total), total}); err != nil {
		return nil, err
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

// ExportInsightsCSV renders insights with their reaction flags, in the given order.
func ExportInsightsCSV(views []InsightView) ([]byte, error) {
	buf := &bytes.Buffer{}
	w := csv.NewWriter(buf)
	_ = w.Write([]string{"id", "category", "title", "impact", "impact_level", "created_at", "liked", "disliked", "saved"})
	for _, v := range views {
		created := ""
		if !v.CreatedAt.IsZero() {
			created = v.CreatedAt.UTC().Format(time.RFC3339)
		}
		rec := []string{
			v.ID,
			string(v.Category),
			v.Title,
			ftoa(v.Impact),
			ImpactLevel(v.Impact),
			created,
			strconv.FormatBool(v.Liked),
			strconv.FormatBool(v.Disliked),
			strconv.FormatBool(v.Saved),
		}
		if err := w.Write(rec); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

func ftoa(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
