package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"nutriLensAPI/internal/daykey"
	"nutriLensAPI/internal/docstore"
	"nutriLensAPI/middleware"
	"nutriLensAPI/services"
)

type handlerEnv struct {
	store   *docstore.Memory
	clock   *daykey.FixedClock
	users   *services.UserService
	ledger  *services.LedgerService
	streaks *services.StreakService
	meals   *services.MealService
}

func newHandlerEnv(t *testing.T) *handlerEnv {
	t.Helper()
	store := docstore.NewMemory()
	t.Cleanup(func() { store.Close() })

	clock := daykey.NewFixedClock(time.Date(2026, 10, 19, 9, 30, 0, 0, time.UTC))
	users := services.NewUserService(store, clock)
	ledger := services.NewLedgerService(store, clock)
	streaks := services.NewStreakService(store, ledger, users, clock)
	return &handlerEnv{
		store:   store,
		clock:   clock,
		users:   users,
		ledger:  ledger,
		streaks: streaks,
		meals:   services.NewMealService(store, ledger, streaks),
	}
}

func (e *handlerEnv) sessionDeps() services.SessionDeps {
	return services.SessionDeps{Users: e.users, Ledger: e.ledger, Streaks: e.streaks, Clock: e.clock}
}

func (e *handlerEnv) register(t *testing.T, userID string) {
	t.Helper()
	_, err := e.users.Register(context.Background(), userID, "Ada", userID+"@example.com", "")
	require.NoError(t, err)
	require.NoError(t, e.streaks.Initialize(context.Background(), userID))
}

// serve runs h with clerkID ("" for anonymous) and a JSON body.
func serve(t *testing.T, h http.HandlerFunc, method, target, clerkID string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(t, json.NewEncoder(&buf).Encode(b))
		}
	}
	req := httptest.NewRequest(method, target, &buf)
	if clerkID != "" {
		req = req.WithContext(middleware.WithClerkID(req.Context(), clerkID))
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}
