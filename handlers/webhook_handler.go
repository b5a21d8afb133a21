package handlers

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"nutriLensAPI/internal/logger"
	"nutriLensAPI/internal/types/clerk"
	"nutriLensAPI/services"
)

const (
	maxWebhookBody     = int64(65536)
	webhookTolerance   = 5 * time.Minute
	webhookSecretStart = "whsec_"
)

var errInvalidSignature = errors.New("invalid webhook signature")

type WebhookHandler struct {
	userService   *services.UserService
	streakService *services.StreakService
	secret        string
	now           func() time.Time
}

// NewWebhookHandler verifies Clerk (svix) signatures with secret. An empty
// secret disables verification, for local development only.
func NewWebhookHandler(users *services.UserService, streaks *services.StreakService, secret string) *WebhookHandler {
	if secret == "" {
		logger.Warn("CLERK_WEBHOOK_SECRET not set, webhook signatures will not be verified")
	}
	return &WebhookHandler{
		userService:   users,
		streakService: streaks,
		secret:        secret,
		now:           time.Now,
	}
}

func (h *WebhookHandler) HandleClerkWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		logger.Warn("Error reading webhook body: %v", err)
		respondWithError(w, http.StatusBadRequest, "Error reading body")
		return
	}

	if err := h.verifySignature(r.Header, body); err != nil {
		logger.Warn("Rejected webhook: %v", err)
		respondWithError(w, http.StatusUnauthorized, "Invalid signature")
		return
	}

	var event clerk.WebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		respondWithError(w, http.StatusBadRequest, "Error parsing webhook")
		return
	}

	logger.Info("Received webhook event: %s", event.Type)

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	switch event.Type {
	case "user.created":
		err = h.handleUserCreated(ctx, event.Data)
	case "user.updated":
		err = h.handleUserUpdated(ctx, event.Data)
	case "user.deleted":
		err = h.handleUserDeleted(ctx, event.Data)
	default:
		logger.Debug("Unhandled webhook event type: %s", event.Type)
	}
	if err != nil {
		logger.Error("Error handling %s: %v", event.Type, err)
		respondWithError(w, http.StatusInternalServerError, "Error processing webhook")
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *WebhookHandler) handleUserCreated(ctx context.Context, data json.RawMessage) error {
	var userData clerk.UserData
	if err := json.Unmarshal(data, &userData); err != nil {
		return fmt.Errorf("failed to unmarshal user data: %w", err)
	}

	u, err := h.userService.Register(ctx, userData.ID, userData.DisplayName(), userData.PrimaryEmail(), userData.ImageURL)
	if err != nil {
		return err
	}
	if err := h.streakService.Initialize(ctx, userData.ID); err != nil {
		return err
	}

	logger.Success("Registered user %s (%s)", u.ID, u.Email)
	return nil
}

func (h *WebhookHandler) handleUserUpdated(ctx context.Context, data json.RawMessage) error {
	var userData clerk.UserData
	if err := json.Unmarshal(data, &userData); err != nil {
		return fmt.Errorf("failed to unmarshal user data: %w", err)
	}

	return h.userService.UpdateIdentity(ctx, userData.ID, userData.DisplayName(), userData.PrimaryEmail(), userData.ImageURL)
}

func (h *WebhookHandler) handleUserDeleted(ctx context.Context, data json.RawMessage) error {
	var userData struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &userData); err != nil {
		return fmt.Errorf("failed to unmarshal user data: %w", err)
	}
	if userData.ID == "" {
		return fmt.Errorf("user.deleted without id")
	}

	if err := h.userService.Delete(ctx, userData.ID); err != nil {
		return err
	}
	logger.Info("Deleted user %s", userData.ID)
	return nil
}

// verifySignature checks the svix headers: svix-signature carries one or more
// space separated "v1,<base64 HMAC-SHA256 of id.timestamp.body>" entries.
func (h *WebhookHandler) verifySignature(header http.Header, body []byte) error {
	if h.secret == "" {
		return nil
	}

	svixID := header.Get("svix-id")
	svixTimestamp := header.Get("svix-timestamp")
	svixSignature := header.Get("svix-signature")
	if svixID == "" || svixTimestamp == "" || svixSignature == "" {
		return fmt.Errorf("%w: missing svix headers", errInvalidSignature)
	}

	ts, err := strconv.ParseInt(svixTimestamp, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: bad timestamp", errInvalidSignature)
	}
	if age := h.now().Sub(time.Unix(ts, 0)); age > webhookTolerance || age < -webhookTolerance {
		return fmt.Errorf("%w: timestamp outside tolerance", errInvalidSignature)
	}

	key, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(h.secret, webhookSecretStart))
	if err != nil {
		return fmt.Errorf("decode webhook secret: %w", err)
	}

	expected := signWebhook(key, svixID, svixTimestamp, body)
	for _, candidate := range strings.Fields(svixSignature) {
		version, sig, ok := strings.Cut(candidate, ",")
		if ok && version == "v1" && hmac.Equal([]byte(sig), []byte(expected)) {
			return nil
		}
	}
	return errInvalidSignature
}

func signWebhook(key []byte, id, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(id + "." + timestamp + "."))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
