package services

import (
	"fmt"
	"math"
)

// FootprintUnit labels every Footprint.
const FootprintUnit = "kg CO₂e/month"

// Validate checks enum membership and numeric ranges of the survey.
func (s Survey) Validate() error {
	switch s.Transportation.Primary {
	case ModeCar, ModeBus, ModeTrain, ModeBike, ModeWalk:
	default:
		return newInvalidSurveyError(fmt.Sprintf("unknown transport mode %q", s.Transportation.Primary))
	}
	if !nonNegative(s.Transportation.Distance) {
		return newInvalidSurveyError("distance must be a non-negative number")
	}
	if s.Transportation.Frequency < 0 || s.Transportation.Frequency > 7 {
		return newInvalidSurveyError(fmt.Sprintf("frequency %d outside 0..7 days per week", s.Transportation.Frequency))
	}
	switch s.Diet {
	case DietVegan, DietVegetarian, DietPescatarian, DietMixed, DietHighMeat:
	default:
		return newInvalidSurveyError(fmt.Sprintf("unknown diet %q", s.Diet))
	}
	if !nonNegative(s.Energy.ElectricityUsage) {
		return newInvalidSurveyError("electricity usage must be a non-negative number")
	}
	if !nonNegative(s.Energy.RenewablePercentage) || s.Energy.RenewablePercentage > 100 {
		return newInvalidSurveyError("renewable percentage must be within 0..100")
	}
	switch s.Shopping.Frequency {
	case ShoppingRarely, ShoppingMonthly, ShoppingWeekly, ShoppingFrequently:
	default:
		return newInvalidSurveyError(fmt.Sprintf("unknown shopping frequency %q", s.Shopping.Frequency))
	}
	seen := make(map[ShoppingPreference]bool, len(s.Shopping.Preferences))
	for _, p := range s.Shopping.Preferences {
		if !p.Valid() {
			return newInvalidSurveyError(fmt.Sprintf("unknown shopping preference %q", p))
		}
		if seen[p] {
			return newInvalidSurveyError(fmt.Sprintf("duplicate shopping preference %q", p))
		}
		seen[p] = true
	}
	return nil
}

func nonNegative(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= 0
}

// Calculator derives footprints from surveys using a fixed EmissionModel.
type Calculator struct {
	model EmissionModel
}

func NewCalculator(model EmissionModel) *Calculator {
	return &Calculator{model: model}
}

// Calculate is pure: the same survey always yields the same footprint.
//
// The total is summed from the unrounded sub-totals and then rounded, so it can
// differ from the sum of the rounded sub-totals by up to 0.03.
func (c *Calculator) Calculate(s Survey) (Footprint, error) {
	if err := s.Validate(); err != nil {
		return Footprint{}, err
	}
	m := c.model
	mode, ok := m.TransportFactor(s.Transportation.Primary)
	if !ok {
		return Footprint{}, newInvalidSurveyError(fmt.Sprintf("no emission factor for transport mode %q", s.Transportation.Primary))
	}
	diet, ok := m.DietFactor(s.Diet)
	if !ok {
		return Footprint{}, newInvalidSurveyError(fmt.Sprintf("no emission factor for diet %q", s.Diet))
	}
	mult, ok := m.ShoppingMultiplier(s.Shopping.Frequency)
	if !ok {
		return Footprint{}, newInvalidSurveyError(fmt.Sprintf("no multiplier for shopping frequency %q", s.Shopping.Frequency))
	}

	transport := mode * s.Transportation.Distance * float64(s.Transportation.Frequency) * m.WeeksPerMonth
	food := diet * m.DaysPerMonth
	energy := s.Energy.ElectricityUsage * m.ElectricityFactor * (1 - s.Energy.RenewablePercentage/100)
	shopping := m.ShoppingBaseline * mult
	total := transport + food + energy + shopping

	return Footprint{
		Transportation: round2(transport),
		Diet:           round2(food),
		Energy:         round2(energy),
		Shopping:       round2(shopping),
		Total:          round2(total),
		Unit:           FootprintUnit,
	}, nil
}

// round2 rounds half away from zero to two decimals.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
