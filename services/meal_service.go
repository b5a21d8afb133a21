package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"nutriLensAPI/internal/docstore"
	"nutriLensAPI/internal/logger"
	"nutriLensAPI/internal/metrics"
	"nutriLensAPI/internal/types/meal"
	types "nutriLensAPI/internal/types/nutrition"
)

const defaultHistoryLimit = 30

type MealService struct {
	store   docstore.Store
	ledger  *LedgerService
	streaks *StreakService
}

func NewMealService(store docstore.Store, ledger *LedgerService, streaks *StreakService) *MealService {
	return &MealService{store: store, ledger: ledger, streaks: streaks}
}

// AddMeal stores an analysed meal, adds its totals to today's ledger and
// refreshes the streak.
func (s *MealService) AddMeal(ctx context.Context, userID string, req meal.LogRequest) (*meal.Meal, types.Totals, error) {
	delta := types.DeltaOf(req.TotalNutrition)
	if err := validateDelta(delta); err != nil {
		return nil, types.Totals{}, err
	}

	now := s.ledger.clock.Now()
	m := &meal.Meal{
		ID:         uuid.NewString(),
		UserID:     userID,
		Date:       s.ledger.Today(),
		Foods:      req.Detections,
		Nutrition:  req.TotalNutrition,
		ImageURL:   req.ImageURL,
		LoggedAt:   now,
		LoggedAtMs: now.UnixMilli(),
	}
	if m.Foods == nil {
		m.Foods = []string{}
	}

	if err := s.store.Create(ctx, docstore.Ref{Collection: collectionMeals, ID: m.ID}, m); err != nil {
		return nil, types.Totals{}, fmt.Errorf("failed to save meal: %w", err)
	}
	metrics.MealsLogged.Inc()

	totals, err := s.ledger.AddDelta(ctx, userID, delta, m.Date)
	if err != nil {
		return m, types.Totals{}, err
	}
	s.streaks.RefreshIfNeeded(ctx, userID)

	return m, totals, nil
}

// TodayMeals lists today's meals, newest first. Read failures yield an empty
// list.
func (s *MealService) TodayMeals(ctx context.Context, userID string) []meal.Meal {
	return s.query(ctx, docstore.Query{
		Collection: collectionMeals,
		Where: []docstore.Filter{
			{Field: "userId", Value: userID},
			{Field: "date", Value: string(s.ledger.Today())},
		},
		OrderBy:    "loggedAtMs",
		Descending: true,
	})
}

// History lists the most recent meals, newest first.
func (s *MealService) History(ctx context.Context, userID string, limit int) []meal.Meal {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	return s.query(ctx, docstore.Query{
		Collection: collectionMeals,
		Where:      []docstore.Filter{{Field: "userId", Value: userID}},
		OrderBy:    "loggedAtMs",
		Descending: true,
		Limit:      limit,
	})
}

func (s *MealService) query(ctx context.Context, q docstore.Query) []meal.Meal {
	snaps, err := s.store.Query(ctx, q)
	if err != nil {
		logger.Warn("meal query failed: %v", err)
		return []meal.Meal{}
	}
	out := make([]meal.Meal, 0, len(snaps))
	for _, snap := range snaps {
		var m meal.Meal
		if err := snap.DataTo(&m); err != nil {
			logger.Warn("skipping undecodable meal: %v", err)
			continue
		}
		out = append(out, m)
	}
	return out
}
