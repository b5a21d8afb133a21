package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"nutriLensAPI/internal/types/meal"
	"nutriLensAPI/middleware"
	"nutriLensAPI/services"
)

const maxHistoryLimit = 200

type MealHandler struct {
	mealService *services.MealService
}

func NewMealHandler(mealService *services.MealService) *MealHandler {
	return &MealHandler{mealService: mealService}
}

// POST /api/v1/meals - body is the meal-analysis result
func (h *MealHandler) LogMeal(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	clerkID, ok := middleware.GetClerkID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	var req meal.LogRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	m, current, err := h.mealService.AddMeal(ctx, clerkID, req)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusCreated, map[string]any{
		"meal":             m,
		"currentNutrition": current,
	})
}

func (h *MealHandler) TodayMeals(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	clerkID, ok := middleware.GetClerkID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	respondWithJSON(w, http.StatusOK, h.mealService.TodayMeals(ctx, clerkID))
}

// GET /api/v1/meals/history?limit=30
func (h *MealHandler) History(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	clerkID, ok := middleware.GetClerkID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	respondWithJSON(w, http.StatusOK, h.mealService.History(ctx, clerkID, limit))
}
