package services

import (
	"errors"
	"fmt"
	"math"

	"nutriLensAPI/internal/nutrition"
	types "nutriLensAPI/internal/types/nutrition"
)

var (
	ErrValidation       = nutrition.ErrValidation
	ErrNotAuthenticated = errors.New("user not authenticated")
	ErrUserNotFound     = errors.New("user not found")
)

const (
	collectionUsers     = "users"
	collectionNutrition = "nutrition"
	collectionStreaks   = "streaks"
	collectionMeals     = "meals"
)

// validateDelta rejects empty deltas and negative or non-finite fields.
func validateDelta(d types.Delta) error {
	values := d.Values()
	if len(values) == 0 {
		return fmt.Errorf("%w: no nutrition fields given", ErrValidation)
	}
	for f, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return fmt.Errorf("%w: %s must be a non-negative number", ErrValidation, f)
		}
	}
	return nil
}
