package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	types "nutriLensAPI/internal/types/nutrition"
	"nutriLensAPI/middleware"
	"nutriLensAPI/services"
)

func TestSessionHandler_GetSession(t *testing.T) {
	env := newHandlerEnv(t)
	env.register(t, "user_1")
	_, err := env.ledger.AddDelta(context.Background(), "user_1", types.Delta{Protein: ptr(40)}, env.ledger.Today())
	require.NoError(t, err)

	h := NewSessionHandler(env.sessionDeps())
	rec := serve(t, h.GetSession, http.MethodGet, "/api/v1/session", "user_1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	st := decode[services.SessionState](t, rec)
	assert.True(t, st.Authenticated)
	assert.Equal(t, 40.0, st.CurrentNutrition.Protein)
	assert.Equal(t, types.DefaultTarget, st.TargetNutrition)
	assert.Equal(t, 1, st.CurrentDay)
}

// dialSession starts a test server that authenticates every connection as
// clerkID.
func dialSession(t *testing.T, env *handlerEnv, clerkID string) *websocket.Conn {
	t.Helper()
	h := NewSessionHandler(env.sessionDeps())
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.Connect(w, r.WithContext(middleware.WithClerkID(r.Context(), clerkID)))
	}))
	t.Cleanup(srv.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readUntil reads messages until match accepts one.
func readUntil(t *testing.T, conn *websocket.Conn, match func(wsMessage) bool) wsMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		var msg wsMessage
		require.NoError(t, conn.ReadJSON(&msg))
		if match(msg) {
			return msg
		}
	}
}

func TestSessionHandler_WebsocketActions(t *testing.T) {
	env := newHandlerEnv(t)
	env.register(t, "user_1")
	conn := dialSession(t, env, "user_1")

	readUntil(t, conn, func(m wsMessage) bool {
		return m.Type == "state" && m.State != nil && m.State.UserID == "user_1"
	})

	require.NoError(t, conn.WriteJSON(map[string]any{
		"action":    "addNutrition",
		"requestId": "r1",
		"payload":   map[string]any{"calories": 500},
	}))
	// The result and the new state may arrive in either order.
	var gotResult, gotState bool
	readUntil(t, conn, func(m wsMessage) bool {
		switch {
		case m.Type == "result" && m.RequestID == "r1":
			assert.True(t, m.OK, m.Error)
			gotResult = true
		case m.Type == "state" && m.State != nil && m.State.CurrentNutrition.Calories == 500:
			assert.Equal(t, "user_1", m.State.UserID)
			gotState = true
		}
		return gotResult && gotState
	})

	require.NoError(t, conn.WriteJSON(map[string]any{"action": "addNutrition", "requestId": "r2", "payload": map[string]any{}}))
	result := readUntil(t, conn, func(m wsMessage) bool { return m.Type == "result" && m.RequestID == "r2" })
	assert.False(t, result.OK)
	assert.Equal(t, http.StatusBadRequest, result.Status)

	require.NoError(t, conn.WriteJSON(map[string]any{"action": "dance", "requestId": "r3"}))
	result = readUntil(t, conn, func(m wsMessage) bool { return m.Type == "result" && m.RequestID == "r3" })
	assert.False(t, result.OK)
	assert.Equal(t, http.StatusBadRequest, result.Status)
}

func TestSessionHandler_WebsocketSeesExternalWrites(t *testing.T) {
	env := newHandlerEnv(t)
	conn := dialSession(t, env, "user_2")

	readUntil(t, conn, func(m wsMessage) bool {
		return m.Type == "state" && m.State != nil && m.State.UserID == "user_2"
	})

	_, err := env.ledger.AddDelta(context.Background(), "user_2", types.Delta{Water: ptr(4)}, env.ledger.Today())
	require.NoError(t, err)

	msg := readUntil(t, conn, func(m wsMessage) bool {
		return m.Type == "state" && m.State != nil && m.State.CurrentNutrition.Water == 4
	})
	assert.Equal(t, "user_2", msg.State.UserID)
}

func TestSessionHandler_ConnectRequiresAuth(t *testing.T) {
	env := newHandlerEnv(t)
	h := NewSessionHandler(env.sessionDeps())
	rec := serve(t, h.Connect, http.MethodGet, "/api/v1/session/ws", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
