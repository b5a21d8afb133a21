package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"nutriLensAPI/internal/daykey"
	"nutriLensAPI/internal/nutrition"
	types "nutriLensAPI/internal/types/nutrition"
	"nutriLensAPI/internal/types/streak"
	"nutriLensAPI/middleware"
	"nutriLensAPI/services"
)

type NutritionHandler struct {
	userService   *services.UserService
	ledgerService *services.LedgerService
	streakService *services.StreakService
}

func NewNutritionHandler(users *services.UserService, ledger *services.LedgerService, streaks *services.StreakService) *NutritionHandler {
	return &NutritionHandler{
		userService:   users,
		ledgerService: ledger,
		streakService: streaks,
	}
}

type addNutritionResponse struct {
	CurrentNutrition types.Totals `json:"currentNutrition"`
	StreakData       streak.View  `json:"streakData"`
}

// POST /api/v1/nutrition - add to today's totals and refresh the streak
func (h *NutritionHandler) AddNutrition(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	clerkID, ok := middleware.GetClerkID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	var delta types.Delta
	if err := json.NewDecoder(r.Body).Decode(&delta); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	current, err := h.ledgerService.AddDelta(ctx, clerkID, delta, h.ledgerService.Today())
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	h.streakService.RefreshIfNeeded(ctx, clerkID)

	respondWithJSON(w, http.StatusOK, addNutritionResponse{
		CurrentNutrition: current,
		StreakData:       h.streakService.View(ctx, clerkID),
	})
}

// GET /api/v1/nutrition/today?date=YYYY-MM-DD
func (h *NutritionHandler) GetToday(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	clerkID, ok := middleware.GetClerkID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	date := h.ledgerService.Today()
	if raw := r.URL.Query().Get("date"); raw != "" {
		parsed, err := daykey.Parse(raw)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, "Query parameter 'date' must be YYYY-MM-DD")
			return
		}
		date = parsed
	}

	respondWithJSON(w, http.StatusOK, map[string]any{
		"date":             date,
		"currentNutrition": h.ledgerService.GetCurrent(ctx, clerkID, date),
	})
}

// DELETE /api/v1/nutrition/today
func (h *NutritionHandler) ResetToday(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	clerkID, ok := middleware.GetClerkID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	if err := h.ledgerService.Reset(ctx, clerkID, h.ledgerService.Today()); err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]any{"currentNutrition": types.Totals{}})
}

// PUT /api/v1/nutrition/target - overwrite the given target fields
func (h *NutritionHandler) UpdateTarget(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	clerkID, ok := middleware.GetClerkID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	var partial types.Delta
	if err := json.NewDecoder(r.Body).Decode(&partial); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	target, err := h.userService.UpdateTargetNutrition(ctx, clerkID, partial)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]any{"targetNutrition": target})
}

type adjustRequest struct {
	Field types.Field `json:"field"`
	Delta float64     `json:"delta"`
}

// POST /api/v1/nutrition/target/adjust
func (h *NutritionHandler) AdjustTarget(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	clerkID, ok := middleware.GetClerkID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	var req adjustRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	target, err := h.userService.AdjustTarget(ctx, clerkID, req.Field, req.Delta)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]any{"targetNutrition": target})
}

type calculateResponse struct {
	TargetNutrition types.Totals          `json:"targetNutrition"`
	BMI             float64               `json:"bmi"`
	BMICategory     nutrition.BMICategory `json:"bmiCategory"`
}

// GET /api/v1/nutrition/calculate?age=&weight=&height=&sex=&lifestyle=[&adjustField=&adjustDelta=]
//
// Public preview of the setup calculation; nothing is stored.
func (h *NutritionHandler) Calculate(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var m nutrition.BodyMetrics
	for _, p := range []struct {
		name string
		dst  *float64
	}{{"age", &m.Age}, {"weight", &m.WeightKG}, {"height", &m.HeightCM}} {
		v, err := strconv.ParseFloat(q.Get(p.name), 64)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, "Query parameter '"+p.name+"' must be a number")
			return
		}
		*p.dst = v
	}
	m.Sex = types.Sex(q.Get("sex"))
	m.Lifestyle = types.Lifestyle(q.Get("lifestyle"))

	if err := m.Validate(); err != nil {
		respondWithServiceError(w, err)
		return
	}
	target := m.Target()

	if field := q.Get("adjustField"); field != "" {
		delta, err := strconv.ParseFloat(q.Get("adjustDelta"), 64)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, "Query parameter 'adjustDelta' must be a number")
			return
		}
		if target, err = nutrition.Adjust(target, types.Field(field), delta); err != nil {
			respondWithServiceError(w, err)
			return
		}
	}

	bmi := nutrition.BMI(m.WeightKG, m.HeightCM)
	respondWithJSON(w, http.StatusOK, calculateResponse{
		TargetNutrition: target,
		BMI:             bmi,
		BMICategory:     nutrition.CategoryFor(bmi),
	})
}
