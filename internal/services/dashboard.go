package services

import "math"

// Conversion factors for the equivalents shown next to the total.
const (
	kgPerTreeYear = 21.0
	kgPerCarKm    = 12.2
	kgPerLEDHour  = 0.06
	topInsights   = 4
)

type CategoryShare struct {
	Category Category `json:"category"`
	Amount   float64  `json:"amount"`
	Percent  int      `json:"percent"`
}

type Equivalents struct {
	Trees    int `json:"trees"`
	CarKm    int `json:"carKm"`
	LEDHours int `json:"ledHours"`
}

type Dashboard struct {
	Footprint   Footprint       `json:"footprint"`
	Breakdown   []CategoryShare `json:"breakdown"`
	Equivalents Equivalents     `json:"equivalents"`
	TopInsights []InsightView   `json:"topInsights"`
}

// Summarize builds the dashboard view. Insights keep their collection order
// and only the first four are included.
func Summarize(fp Footprint, insights []InsightView) Dashboard {
	d := Dashboard{Footprint: fp, Breakdown: make([]CategoryShare, 0, len(Categories))}
	for _, c := range Categories {
		amount := fp.ByCategory(c)
		pct := 0
		if fp.Total > 0 {
			pct = int(math.Round(amount / fp.Total * 100))
		}
		d.Breakdown = append(d.Breakdown, CategoryShare{Category: c, Amount: amount, Percent: pct})
	}
	d.Equivalents = Equivalents{
		Trees:    int(math.Round(fp.Total / kgPerTreeYear)),
		CarKm:    int(math.Round(fp.Total / kgPerCarKm)),
		LEDHours: int(math.Round(fp.Total / kgPerLEDHour)),
	}
	n := len(insights)
	if n > topInsights {
		n = topInsights
	}
	d.TopInsights = append([]InsightView{}, insights[:n]...)
	for i := range d.TopInsights {
		d.TopInsights[i].ImpactLevel = ImpactLevel(d.TopInsights[i].Impact)
	}
	return d
}
