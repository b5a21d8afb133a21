// Package nutrition derives personal daily nutrition targets from body
// metrics (Mifflin-St Jeor BMR scaled to TDEE) and applies manual
// adjustments to them.
package nutrition

import (
	"errors"
	"fmt"
	"math"

	types "nutriLensAPI/internal/types/nutrition"
)

var ErrValidation = errors.New("validation failed")

// activityMultipliers maps a lifestyle to its TDEE multiplier. Unknown
// lifestyles fall back to moderate.
var activityMultipliers = map[types.Lifestyle]float64{
	types.LifestyleSedentary:  1.2,
	types.LifestyleLight:      1.375,
	types.LifestyleModerate:   1.55,
	types.LifestyleActive:     1.725,
	types.LifestyleVeryActive: 1.9,
}

const (
	proteinGramsPerKg  = 1.8
	fatCalorieShare    = 0.275
	caloriesPerGramFat = 9
	caloriesPerGramPC  = 4
	minWaterGlasses    = 8
	waterMLPerKg       = 35
	glassML            = 250
)

// BodyMetrics are the inputs of ComputeTarget.
type BodyMetrics struct {
	Age       float64         `json:"age"`
	WeightKG  float64         `json:"weight"`
	HeightCM  float64         `json:"height"`
	Sex       types.Sex       `json:"sex,omitempty"`
	Lifestyle types.Lifestyle `json:"lifestyle,omitempty"`
}

// Validate rejects non-positive or non-finite measurements. ComputeTarget
// itself never validates.
func (m BodyMetrics) Validate() error {
	check := func(name string, v float64) error {
		if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
			return fmt.Errorf("%w: %s must be a positive number", ErrValidation, name)
		}
		return nil
	}
	if err := check("age", m.Age); err != nil {
		return err
	}
	if err := check("weight", m.WeightKG); err != nil {
		return err
	}
	if err := check("height", m.HeightCM); err != nil {
		return err
	}
	if m.Sex != "" && m.Sex != types.SexMale && m.Sex != types.SexFemale {
		return fmt.Errorf("%w: sex must be male or female", ErrValidation)
	}
	return nil
}

// Target computes the targets for m.
func (m BodyMetrics) Target() types.Totals {
	return ComputeTarget(m.Age, m.WeightKG, m.HeightCM, m.Sex, m.Lifestyle)
}

// round is half-up rounding (floor(x+0.5)); math.Round rounds negative
// halves away from zero, which would disagree with the mobile client for
// negative carbohydrate figures.
func round(x float64) float64 {
	return math.Floor(x + 0.5)
}

// BMR is the Mifflin-St Jeor basal metabolic rate. Any sex other than
// female uses the male constant.
func BMR(age, weightKG, heightCM float64, sex types.Sex) float64 {
	bmr := 10*weightKG + 6.25*heightCM - 5*age
	if sex == types.SexFemale {
		return bmr - 161
	}
	return bmr + 5
}

// TDEE scales bmr by the lifestyle multiplier and rounds.
func TDEE(bmr float64, lifestyle types.Lifestyle) float64 {
	mult, ok := activityMultipliers[lifestyle]
	if !ok {
		mult = activityMultipliers[types.LifestyleModerate]
	}
	return round(bmr * mult)
}

// ComputeTarget returns daily calories, macros and water for the given body.
// Carbohydrates are whatever calories remain after protein and fat and are
// not clamped, so extreme inputs can produce a negative carbs figure.
func ComputeTarget(age, weightKG, heightCM float64, sex types.Sex, lifestyle types.Lifestyle) types.Totals {
	tdee := TDEE(BMR(age, weightKG, heightCM, sex), lifestyle)

	protein := round(weightKG * proteinGramsPerKg)
	fatCalories := round(tdee * fatCalorieShare)
	fats := round(fatCalories / caloriesPerGramFat)
	proteinCalories := protein * caloriesPerGramPC
	carbCalories := tdee - proteinCalories - fatCalories
	carbs := round(carbCalories / caloriesPerGramPC)
	water := math.Max(minWaterGlasses, round(weightKG*waterMLPerKg/glassML))

	return types.Totals{
		Calories: tdee,
		Protein:  protein,
		Carbs:    carbs,
		Fats:     fats,
		Water:    water,
	}
}

// Adjust applies delta to one field, flooring the result at zero. Changing a
// macro recomputes calories from all three macros so stale calorie figures
// never compound.
func Adjust(t types.Totals, field types.Field, delta float64) (types.Totals, error) {
	if !field.Valid() {
		return t, fmt.Errorf("%w: unknown field %q", ErrValidation, field)
	}

	t.Set(field, math.Max(0, t.Get(field)+delta))

	switch field {
	case types.FieldProtein, types.FieldCarbs, types.FieldFats:
		t.Calories = MacroCalories(t)
	}
	return t, nil
}

// MacroCalories is protein*4 + carbs*4 + fats*9, rounded.
func MacroCalories(t types.Totals) float64 {
	return round(t.Protein*caloriesPerGramPC + t.Carbs*caloriesPerGramPC + t.Fats*caloriesPerGramFat)
}
