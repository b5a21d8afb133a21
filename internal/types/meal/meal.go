package meal

import (
	"time"

	"nutriLensAPI/internal/daykey"
	"nutriLensAPI/internal/types/nutrition"
)

type Meal struct {
	ID         string           `json:"id" firestore:"id"`
	UserID     string           `json:"userId" firestore:"userId"`
	Date       daykey.Date      `json:"date" firestore:"date"`
	Foods      []string         `json:"foods" firestore:"foods"`
	Nutrition  nutrition.Totals `json:"nutrition" firestore:"nutrition"`
	ImageURL   string           `json:"imageUrl,omitempty" firestore:"imageUrl,omitempty"`
	LoggedAt   time.Time        `json:"loggedAt" firestore:"loggedAt"`
	LoggedAtMs int64            `json:"loggedAtMs" firestore:"loggedAtMs"`
}

// AnalysisResult is the response shape of the meal-analysis service.
type AnalysisResult struct {
	Detections     []string         `json:"detections"`
	TotalNutrition nutrition.Totals `json:"total_nutrition"`
	AnnotatedImage string           `json:"annotated_image,omitempty"`
}

// LogRequest is the body of POST /meals: an analysis result plus an optional
// hosted image.
type LogRequest struct {
	AnalysisResult
	ImageURL string `json:"imageUrl,omitempty"`
}
