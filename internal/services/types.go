package services

import "time"

type TransportMode string

const (
	ModeCar   TransportMode = "car"
	ModeBus   TransportMode = "bus"
	ModeTrain TransportMode = "train"
	ModeBike  TransportMode = "bike"
	ModeWalk  TransportMode = "walk"
)

type DietType string

const (
	DietVegan       DietType = "vegan"
	DietVegetarian  DietType = "vegetarian"
	DietPescatarian DietType = "pescatarian"
	DietMixed       DietType = "mixed"
	DietHighMeat    DietType = "highMeat"
)

type ShoppingFrequency string

const (
	ShoppingRarely     ShoppingFrequency = "rarely"
	ShoppingMonthly    ShoppingFrequency = "monthly"
	ShoppingWeekly     ShoppingFrequency = "weekly"
	ShoppingFrequently ShoppingFrequency = "frequently"
)

type ShoppingPreference string

const (
	PreferLocal       ShoppingPreference = "local"
	PreferSustainable ShoppingPreference = "sustainable"
	PreferSecondhand  ShoppingPreference = "secondhand"
	PreferMinimal     ShoppingPreference = "minimal"
	PreferDurable     ShoppingPreference = "durable"
	PreferOrganic     ShoppingPreference = "organic"
)

func (p ShoppingPreference) Valid() bool {
	switch p {
	case PreferLocal, PreferSustainable, PreferSecondhand, PreferMinimal, PreferDurable, PreferOrganic:
		return true
	}
	return false
}

// Category groups footprint sub-totals and insights.
type Category string

const (
	CategoryTransportation Category = "transportation"
	CategoryDiet           Category = "diet"
	CategoryEnergy         Category = "energy"
	CategoryShopping       Category = "shopping"
)

// Categories lists the footprint categories in display order.
var Categories = []Category{CategoryTransportation, CategoryDiet, CategoryEnergy, CategoryShopping}

func (c Category) Valid() bool {
	switch c {
	case CategoryTransportation, CategoryDiet, CategoryEnergy, CategoryShopping:
		return true
	}
	return false
}

type Transportation struct {
	Primary   TransportMode `json:"primary"`
	Distance  float64       `json:"distance"`  // km per day
	Frequency int           `json:"frequency"` // days per week
}

type Energy struct {
	ElectricityUsage    float64 `json:"electricityUsage"` // kWh per month
	RenewablePercentage float64 `json:"renewablePercentage"`
}

type Shopping struct {
	Frequency   ShoppingFrequency    `json:"frequency"`
	Preferences []ShoppingPreference `json:"preferences"`
}

// Survey is the lifestyle questionnaire a footprint is derived from.
// JSON field names match the browser localStorage format imported by migrate.
type Survey struct {
	Transportation Transportation `json:"transportation"`
	Diet           DietType       `json:"diet"`
	Energy         Energy         `json:"energy"`
	Shopping       Shopping       `json:"shopping"`
}

func (s Survey) clone() Survey {
	out := s
	out.Shopping.Preferences = append([]ShoppingPreference(nil), s.Shopping.Preferences...)
	return out
}

// Footprint is the monthly estimate in kg CO2-equivalent.
type Footprint struct {
	Transportation float64 `json:"transportation"`
	Diet           float64 `json:"diet"`
	Energy         float64 `json:"energy"`
	Shopping       float64 `json:"shopping"`
	Total          float64 `json:"total"`
	Unit           string  `json:"unit"`
}

// ByCategory returns the sub-total for c.
func (f Footprint) ByCategory(c Category) float64 {
	switch c {
	case CategoryTransportation:
		return f.Transportation
	case CategoryDiet:
		return f.Diet
	case CategoryEnergy:
		return f.Energy
	case CategoryShopping:
		return f.Shopping
	}
	return 0
}

type Insight struct {
	ID          string    `json:"id"`
	Category    Category  `json:"category"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Impact      float64   `json:"impact"`
	CreatedAt   time.Time `json:"createdAt"`
}

// User is the identity record kept by the mocked identity provider.
type User struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	PhotoURL string `json:"photoURL,omitempty"`
}
