package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nutriLensAPI/internal/auth"
	"nutriLensAPI/internal/daykey"
	"nutriLensAPI/internal/nutrition"
	types "nutriLensAPI/internal/types/nutrition"
)

type stateRecorder struct {
	mu     sync.Mutex
	states []SessionState
}

func (r *stateRecorder) record(st SessionState) {
	r.mu.Lock()
	r.states = append(r.states, st)
	r.mu.Unlock()
}

func (r *stateRecorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.states)
}

func newSession(t *testing.T, env *testEnv) (*SessionCoordinator, *auth.State, *stateRecorder) {
	t.Helper()
	provider := auth.NewState()
	rec := &stateRecorder{}
	c := NewSessionCoordinator(env.deps(), provider, rec.record)
	c.Start(context.Background())
	t.Cleanup(c.Close)
	return c, provider, rec
}

func TestSession_ActionsRequireSignIn(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	c, _, _ := newSession(t, env)

	_, err := c.AddNutrition(ctx, types.Delta{Calories: ptr(100)})
	assert.ErrorIs(t, err, ErrNotAuthenticated)
	_, err = c.UpdateNutritionRequirements(ctx, types.Delta{Water: ptr(9)})
	assert.ErrorIs(t, err, ErrNotAuthenticated)
	_, err = c.CompleteSetup(ctx, nutrition.BodyMetrics{Age: 25, WeightKG: 70, HeightCM: 175})
	assert.ErrorIs(t, err, ErrNotAuthenticated)
	_, err = c.UpdateDailyActivity(ctx)
	assert.ErrorIs(t, err, ErrNotAuthenticated)

	assert.False(t, c.State().Authenticated)
	assert.Equal(t, types.Totals{}, env.ledger.GetCurrent(ctx, "u1", today))
}

func TestSession_LoadsOnSignIn(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.register(t, "u1")
	_, err := env.ledger.AddDelta(ctx, "u1", types.Delta{Calories: ptr(420)}, today)
	require.NoError(t, err)

	c, provider, _ := newSession(t, env)
	provider.SignIn("u1")

	st := c.State()
	assert.True(t, st.Authenticated)
	assert.Equal(t, "u1", st.UserID)
	assert.Equal(t, today, st.Day)
	assert.Equal(t, types.DefaultTarget, st.TargetNutrition)
	assert.Equal(t, 420.0, st.CurrentNutrition.Calories)
	require.NotNil(t, st.Profile)
	assert.Equal(t, 1, st.CurrentDay)
}

func TestSession_UnknownUserGetsDefaults(t *testing.T) {
	env := newTestEnv(t)
	c, provider, _ := newSession(t, env)
	provider.SignIn("ghost")

	st := c.State()
	assert.Nil(t, st.Profile)
	assert.Equal(t, types.DefaultTarget, st.TargetNutrition)
	assert.Len(t, st.StreakData.ActivityHistory, 60)
}

func TestSession_AddNutrition(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.register(t, "u1")
	require.NoError(t, env.streaks.Initialize(ctx, "u1"))
	c, provider, _ := newSession(t, env)
	provider.SignIn("u1")

	st, err := c.AddNutrition(ctx, types.Delta{Calories: ptr(1800), Protein: ptr(90)})
	require.NoError(t, err)
	assert.Equal(t, 1800.0, st.CurrentNutrition.Calories)
	assert.Equal(t, 90.0, st.CurrentNutrition.Protein)
	assert.Equal(t, 1, st.StreakData.CurrentStreak)
	assert.Equal(t, today, st.StreakData.LastUpdateDate)

	_, err = c.AddNutrition(ctx, types.Delta{})
	assert.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, 1800.0, c.State().CurrentNutrition.Calories)
}

func TestSession_ExternalWritesPropagate(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	c, provider, _ := newSession(t, env)
	provider.SignIn("u1")

	_, err := env.ledger.AddDelta(ctx, "u1", types.Delta{Water: ptr(3)}, today)
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return c.State().CurrentNutrition.Water == 3
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSession_TargetAndSetup(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.register(t, "u1")
	c, provider, _ := newSession(t, env)
	provider.SignIn("u1")

	st, err := c.UpdateNutritionRequirements(ctx, types.Delta{Water: ptr(11)})
	require.NoError(t, err)
	assert.Equal(t, 11.0, st.TargetNutrition.Water)
	assert.Equal(t, 11.0, st.Profile.TargetNutrition.Water)

	st, err = c.CompleteSetup(ctx, nutrition.BodyMetrics{Age: 25, WeightKG: 70, HeightCM: 175})
	require.NoError(t, err)
	assert.Equal(t, 2594.0, st.TargetNutrition.Calories)
	assert.True(t, st.Profile.HasCompletedSetup)

	_, err = c.CompleteSetup(ctx, nutrition.BodyMetrics{Age: -1, WeightKG: 70, HeightCM: 175})
	assert.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, 2594.0, c.State().TargetNutrition.Calories)
}

func TestSession_SignOutResets(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	c, provider, _ := newSession(t, env)
	provider.SignIn("u1")
	_, err := c.AddNutrition(ctx, types.Delta{Calories: ptr(100)})
	require.NoError(t, err)

	provider.SignOut()
	assert.Equal(t, SessionState{}, c.State())

	_, err = env.ledger.AddDelta(ctx, "u1", types.Delta{Calories: ptr(50)}, today)
	require.NoError(t, err)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, SessionState{}, c.State(), "old subscription is released")

	provider.SignIn("u2")
	assert.Equal(t, "u2", c.State().UserID)
	assert.Zero(t, c.State().CurrentNutrition.Calories)
}

func TestSession_DayRollover(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	c, provider, _ := newSession(t, env)
	provider.SignIn("u1")
	_, err := c.AddNutrition(ctx, types.Delta{Calories: ptr(500)})
	require.NoError(t, err)

	env.clock.AdvanceDays(1)
	st, err := c.AddNutrition(ctx, types.Delta{Calories: ptr(200)})
	require.NoError(t, err)

	assert.Equal(t, daykey.Date("2026-10-20"), st.Day)
	assert.Equal(t, 200.0, st.CurrentNutrition.Calories)
	assert.Equal(t, 500.0, env.ledger.GetCurrent(ctx, "u1", today).Calories)
	assert.Equal(t, 2, st.CurrentDay)
}

func TestSession_CloseIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	c, provider, rec := newSession(t, env)
	provider.SignIn("u1")

	c.Close()
	c.Close()
	n := rec.Len()

	provider.SignIn("u2")
	assert.Equal(t, n, rec.Len(), "closed session ignores auth changes")
}

func TestLoadSessionState(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "u1")
	st := LoadSessionState(context.Background(), env.deps(), "u1")
	assert.True(t, st.Authenticated)
	assert.Equal(t, today, st.Day)
}
