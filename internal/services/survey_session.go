package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/soaringjerry/greenprint/internal/metrics"
)

// Survey steps in the order they are presented.
const (
	StepTransportation = 1
	StepDiet           = 2
	StepEnergy         = 3
	StepShopping       = 4
)

// DefaultSurvey is the draft a new session starts from.
func DefaultSurvey() Survey {
	return Survey{
		Transportation: Transportation{Primary: ModeCar, Distance: 15, Frequency: 5},
		Diet:           DietMixed,
		Energy:         Energy{ElectricityUsage: 250, RenewablePercentage: 20},
		Shopping:       Shopping{Frequency: ShoppingWeekly, Preferences: []ShoppingPreference{PreferLocal}},
	}
}

// SurveyUpdate is one typed edit of the draft. The set of variants is closed.
type SurveyUpdate interface {
	apply(*Survey)
}

type SetTransportMode struct{ Mode TransportMode }
type SetDistance struct{ Km float64 }
type SetTripFrequency struct{ DaysPerWeek int }
type SetDiet struct{ Diet DietType }
type SetElectricityUsage struct{ KWh float64 }
type SetRenewablePercentage struct{ Percent float64 }
type SetShoppingFrequency struct{ Frequency ShoppingFrequency }

// TogglePreference adds the preference when absent and removes it otherwise.
type TogglePreference struct{ Preference ShoppingPreference }

type SetPreferences struct{ Preferences []ShoppingPreference }

func (u SetTransportMode) apply(s *Survey)       { s.Transportation.Primary = u.Mode }
func (u SetDistance) apply(s *Survey)            { s.Transportation.Distance = u.Km }
func (u SetTripFrequency) apply(s *Survey)       { s.Transportation.Frequency = u.DaysPerWeek }
func (u SetDiet) apply(s *Survey)                { s.Diet = u.Diet }
func (u SetElectricityUsage) apply(s *Survey)    { s.Energy.ElectricityUsage = u.KWh }
func (u SetRenewablePercentage) apply(s *Survey) { s.Energy.RenewablePercentage = u.Percent }
func (u SetShoppingFrequency) apply(s *Survey)   { s.Shopping.Frequency = u.Frequency }

func (u SetPreferences) apply(s *Survey) {
	s.Shopping.Preferences = append([]ShoppingPreference(nil), u.Preferences...)
}

func (u TogglePreference) apply(s *Survey) {
	out := make([]ShoppingPreference, 0, len(s.Shopping.Preferences)+1)
	found := false
	for _, p := range s.Shopping.Preferences {
		if p == u.Preference {
			found = true
			continue
		}
		out = append(out, p)
	}
	if !found {
		out = append(out, u.Preference)
	}
	s.Shopping.Preferences = out
}

// Wire names accepted by DecodeUpdate.
const (
	FieldTransportMode       = "transportation.primary"
	FieldDistance            = "transportation.distance"
	FieldTripFrequency       = "transportation.frequency"
	FieldDiet                = "diet"
	FieldElectricityUsage    = "energy.electricityUsage"
	FieldRenewablePercentage = "energy.renewablePercentage"
	FieldShoppingFrequency   = "shopping.frequency"
	FieldPreferences         = "shopping.preferences"
	FieldTogglePreference    = "shopping.togglePreference"
)

// DecodeUpdate maps the {field, value} wire form onto a typed update. Only the
// JSON shape is checked here; ranges and enums are validated on completion.
func DecodeUpdate(field string, raw json.RawMessage) (SurveyUpdate, error) {
	var (
		u   SurveyUpdate
		err error
	)
	switch field {
	case FieldTransportMode:
		var v TransportMode
		err = json.Unmarshal(raw, &v)
		u = SetTransportMode{Mode: v}
	case FieldDistance:
		var v float64
		err = json.Unmarshal(raw, &v)
		u = SetDistance{Km: v}
	case FieldTripFrequency:
		var v int
		err = json.Unmarshal(raw, &v)
		u = SetTripFrequency{DaysPerWeek: v}
	case FieldDiet:
		var v DietType
		err = json.Unmarshal(raw, &v)
		u = SetDiet{Diet: v}
	case FieldElectricityUsage:
		var v float64
		err = json.Unmarshal(raw, &v)
		u = SetElectricityUsage{KWh: v}
	case FieldRenewablePercentage:
		var v float64
		err = json.Unmarshal(raw, &v)
		u = SetRenewablePercentage{Percent: v}
	case FieldShoppingFrequency:
		var v ShoppingFrequency
		err = json.Unmarshal(raw, &v)
		u = SetShoppingFrequency{Frequency: v}
	case FieldPreferences:
		var v []ShoppingPreference
		err = json.Unmarshal(raw, &v)
		u = SetPreferences{Preferences: v}
	case FieldTogglePreference:
		var v ShoppingPreference
		err = json.Unmarshal(raw, &v)
		u = TogglePreference{Preference: v}
	default:
		return nil, NewInvalidError(fmt.Sprintf("unknown survey field %q", field))
	}
	if err != nil {
		return nil, NewInvalidError(fmt.Sprintf("invalid value for %s: %v", field, err))
	}
	return u, nil
}

// SurveyState is a snapshot of a session.
type SurveyState struct {
	Step      int        `json:"step"`
	Draft     Survey     `json:"draft"`
	Completed bool       `json:"completed"`
	Footprint *Footprint `json:"footprint,omitempty"`
}

// SurveySession steps through the four survey pages over one in-memory draft.
// Nothing is persisted until Advance completes the last step, and then the
// survey and its footprint are written together.
type SurveySession struct {
	mu        sync.Mutex
	kv        KVStore
	calc      *Calculator
	logger    *slog.Logger
	metrics   *metrics.Metrics
	step      int
	draft     Survey
	completed bool
	footprint *Footprint
}

func NewSurveySession(kv KVStore, calc *Calculator, logger *slog.Logger, m *metrics.Metrics) *SurveySession {
	if logger == nil {
		logger = slog.Default()
	}
	return &SurveySession{
		kv:      kv,
		calc:    calc,
		logger:  logger,
		metrics: m,
		step:    StepTransportation,
		draft:   DefaultSurvey(),
	}
}

// Resume seeds the draft from the last submitted survey, if any.
func (s *SurveySession) Resume(ctx context.Context) error {
	prev, err := LoadSurvey(ctx, s.kv)
	if err != nil {
		return err
	}
	fp, err := LoadFootprint(ctx, s.kv)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev != nil {
		s.draft = prev.clone()
	}
	s.footprint = fp
	return nil
}

func (s *SurveySession) Apply(u SurveyUpdate) SurveyState {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u != nil {
		u.apply(&s.draft)
		s.completed = false
	}
	return s.stateLocked()
}

// Advance moves to the next step. On the last step it validates the draft,
// calculates the footprint and persists both records. An invalid draft keeps
// the session where it is.
func (s *SurveySession) Advance(ctx context.Context) (SurveyState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.step < StepShopping {
		s.step++
		return s.stateLocked(), nil
	}

	fp, err := s.calc.Calculate(s.draft)
	if err != nil {
		outcome := "error"
		if errors.Is(err, ErrInvalidSurveyData) {
			outcome = "invalid"
		}
		s.metrics.IncCalculation(outcome)
		return s.stateLocked(), err
	}
	if err := setManyJSON(ctx, s.kv, map[string]any{KeySurveyData: s.draft, KeyFootprint: fp}); err != nil {
		s.metrics.IncCalculation("error")
		return s.stateLocked(), err
	}
	s.metrics.IncCalculation("ok")
	s.completed = true
	s.footprint = &fp
	s.logger.InfoContext(ctx, "survey completed", "total", fp.Total)
	return s.stateLocked(), nil
}

// Retreat moves back one step; it is a no-op on the first step.
func (s *SurveySession) Retreat() SurveyState {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.step > StepTransportation {
		s.step--
	}
	return s.stateLocked()
}

func (s *SurveySession) State() SurveyState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

func (s *SurveySession) Step() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.step
}

func (s *SurveySession) Draft() Survey {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.draft.clone()
}

func (s *SurveySession) Completed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.completed
}

func (s *SurveySession) stateLocked() SurveyState {
	st := SurveyState{Step: s.step, Draft: s.draft.clone(), Completed: s.completed}
	if s.footprint != nil {
		fp := *s.footprint
		st.Footprint = &fp
	}
	return st
}
