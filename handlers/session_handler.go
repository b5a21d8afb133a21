package handlers

import (
	"context"
	"net/http"

	"github.com/gorilla/websocket"

	"nutriLensAPI/internal/auth"
	"nutriLensAPI/internal/logger"
	"nutriLensAPI/internal/metrics"
	"nutriLensAPI/middleware"
	"nutriLensAPI/services"
)

// SessionHandler serves the session read model, once over REST and live over
// a websocket.
type SessionHandler struct {
	deps     services.SessionDeps
	upgrader websocket.Upgrader
}

func NewSessionHandler(deps services.SessionDeps) *SessionHandler {
	return &SessionHandler{
		deps: deps,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func (h *SessionHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	clerkID, ok := middleware.GetClerkID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	respondWithJSON(w, http.StatusOK, services.LoadSessionState(ctx, h.deps, clerkID))
}

// Connect upgrades to a websocket bound to one SessionCoordinator. The
// client receives a "state" message after every change and may send actions.
func (h *SessionHandler) Connect(w http.ResponseWriter, r *http.Request) {
	clerkID, ok := middleware.GetClerkID(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("Could not upgrade connection: %v", err)
		return
	}

	// The request context ends with this handler; the session lives on.
	ctx, cancel := context.WithCancel(context.Background())

	client := newSessionClient(conn)
	provider := auth.NewState()
	client.coordinator = services.NewSessionCoordinator(h.deps, provider, client.pushState)
	client.coordinator.Start(ctx)
	provider.SignIn(clerkID)

	metrics.ActiveSessions.Inc()
	logger.Debug("session opened for %s", clerkID)

	go client.writePump()
	go func() {
		client.readPump(ctx)
		cancel()
		client.coordinator.Close()
		metrics.ActiveSessions.Dec()
		logger.Debug("session closed for %s", clerkID)
	}()
}
