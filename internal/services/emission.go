package services

// EmissionModel is the factor table the footprint calculator reads from.
// Values are configuration constants, not derived.
type EmissionModel struct {
	Transport         map[TransportMode]float64     // kg CO2 per km
	Diet              map[DietType]float64          // kg CO2 per day
	ElectricityFactor float64                       // kg CO2 per kWh
	Shopping          map[ShoppingFrequency]float64 // multiplier over ShoppingBaseline
	ShoppingBaseline  float64                       // kg CO2 per month
	WeeksPerMonth     float64
	DaysPerMonth      float64
}

// DefaultEmissionModel returns the simplified factors used across the app.
func DefaultEmissionModel() EmissionModel {
	return EmissionModel{
		Transport: map[TransportMode]float64{
			ModeCar:   0.192,
			ModeBus:   0.105,
			ModeTrain: 0.041,
			ModeBike:  0,
			ModeWalk:  0,
		},
		Diet: map[DietType]float64{
			DietVegan:       1.5,
			DietVegetarian:  2.5,
			DietPescatarian: 3.5,
			DietMixed:       4.5,
			DietHighMeat:    7.2,
		},
		ElectricityFactor: 0.233,
		Shopping: map[ShoppingFrequency]float64{
			ShoppingRarely:     0.5,
			ShoppingMonthly:    1.0,
			ShoppingWeekly:     1.5,
			ShoppingFrequently: 2.0,
		},
		ShoppingBaseline: 100,
		WeeksPerMonth:    4.3,
		DaysPerMonth:     30,
	}
}

func (m EmissionModel) TransportFactor(mode TransportMode) (float64, bool) {
	f, ok := m.Transport[mode]
	return f, ok
}

func (m EmissionModel) DietFactor(diet DietType) (float64, bool) {
	f, ok := m.Diet[diet]
	return f, ok
}

func (m EmissionModel) ShoppingMultiplier(freq ShoppingFrequency) (float64, bool) {
	f, ok := m.Shopping[freq]
	return f, ok
}
