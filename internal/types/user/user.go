package user

import (
	"time"

	"nutriLensAPI/internal/types/nutrition"
)

// User is the profile document stored under users/{id}, where id is the
// Clerk user id.
type User struct {
	ID                string              `json:"id" firestore:"-"`
	Name              string              `json:"name" firestore:"name"`
	Email             string              `json:"email" firestore:"email"`
	ImageURL          string              `json:"imageUrl,omitempty" firestore:"imageUrl,omitempty"`
	Age               float64             `json:"age,omitempty" firestore:"age,omitempty"`
	Height            float64             `json:"height,omitempty" firestore:"height,omitempty"`
	Weight            float64             `json:"weight,omitempty" firestore:"weight,omitempty"`
	Sex               nutrition.Sex       `json:"sex,omitempty" firestore:"sex,omitempty"`
	Lifestyle         nutrition.Lifestyle `json:"lifestyle,omitempty" firestore:"lifestyle,omitempty"`
	HasCompletedSetup bool                `json:"hasCompletedSetup" firestore:"hasCompletedSetup"`
	TargetNutrition   *nutrition.Totals   `json:"targetNutrition,omitempty" firestore:"targetNutrition,omitempty"`
	DeviceTokens      []DeviceToken       `json:"deviceTokens,omitempty" firestore:"deviceTokens,omitempty"`
	CreatedAt         time.Time           `json:"createdAt" firestore:"createdAt"`
	UpdatedAt         time.Time           `json:"updatedAt" firestore:"updatedAt"`
}

type DeviceToken struct {
	Token    string `json:"token" firestore:"token"`
	Platform string `json:"platform" firestore:"platform"`
}

type RegisterDeviceRequest struct {
	Token    string `json:"token"`
	Platform string `json:"platform"`
}
