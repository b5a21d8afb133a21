package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"nutriLensAPI/internal/types/user"
	"nutriLensAPI/middleware"
	"nutriLensAPI/services"
)

type NotificationHandler struct {
	userService *services.UserService
}

func NewNotificationHandler(userService *services.UserService) *NotificationHandler {
	return &NotificationHandler{
		userService: userService,
	}
}

// POST /api/v1/notifications/register-device - Register FCM device token
func (h *NotificationHandler) RegisterDevice(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	clerkID, ok := middleware.GetClerkID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	var req user.RegisterDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	device := user.DeviceToken{Token: req.Token, Platform: req.Platform}
	if err := h.userService.RegisterDevice(ctx, clerkID, device); err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]string{"message": "Device registered successfully"})
}
