package services

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nutriLensAPI/internal/docstore"
	"nutriLensAPI/internal/metrics"
	types "nutriLensAPI/internal/types/nutrition"
	streaktypes "nutriLensAPI/internal/types/streak"
)

func lastLevel(rec streaktypes.Record) streaktypes.Level {
	return rec.ActivityHistory[len(rec.ActivityHistory)-1]
}

func TestStreak_RefreshInitializesMissingRecord(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	before := testutil.ToFloat64(metrics.StreakRefreshes.WithLabelValues(metrics.RefreshInitialized))

	env.streaks.RefreshIfNeeded(ctx, "u1")

	snap, err := env.store.Get(ctx, streakRef("u1"))
	require.NoError(t, err)
	require.True(t, snap.Exists())

	rec := env.streaks.Get(ctx, "u1")
	assert.Len(t, rec.ActivityHistory, streaktypes.HistoryCapacity)
	assert.True(t, rec.LastUpdateDate.IsZero(), "initialization does not count as today's update")
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.StreakRefreshes.WithLabelValues(metrics.RefreshInitialized)))
}

func TestStreak_GetMissingReturnsDefault(t *testing.T) {
	env := newTestEnv(t)
	rec := env.streaks.Get(context.Background(), "ghost")

	assert.Equal(t, "ghost", rec.UserID)
	assert.Zero(t, rec.CurrentStreak)
	assert.Len(t, rec.ActivityHistory, streaktypes.HistoryCapacity)

	snap, err := env.store.Get(context.Background(), streakRef("ghost"))
	require.NoError(t, err)
	assert.False(t, snap.Exists(), "default is not persisted")
}

func TestStreak_InitializeKeepsExisting(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	require.NoError(t, env.streaks.Initialize(ctx, "u1"))
	env.streaks.RefreshIfNeeded(ctx, "u1")
	first := env.streaks.Get(ctx, "u1")

	require.NoError(t, env.streaks.Initialize(ctx, "u1"))
	assert.Equal(t, first, env.streaks.Get(ctx, "u1"))
}

func TestStreak_RefreshUsesFallbackTarget(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	require.NoError(t, env.streaks.Initialize(ctx, "u1"))

	// No user document: 1000 / 2000 = 50% -> level 2.
	_, err := env.ledger.AddDelta(ctx, "u1", types.Delta{Calories: ptr(1000)}, today)
	require.NoError(t, err)
	env.streaks.RefreshIfNeeded(ctx, "u1")

	rec := env.streaks.Get(ctx, "u1")
	assert.Equal(t, streaktypes.Level(2), lastLevel(rec))
	assert.Equal(t, 1, rec.CurrentStreak)
	assert.Equal(t, 1, rec.TotalDays)
	assert.Equal(t, today, rec.LastUpdateDate)
}

func TestStreak_RefreshUsesUserTarget(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.register(t, "u1")
	require.NoError(t, env.streaks.Initialize(ctx, "u1"))

	// Default target is 2200 kcal: 1760 is exactly 80%.
	_, err := env.ledger.AddDelta(ctx, "u1", types.Delta{Calories: ptr(1760)}, today)
	require.NoError(t, err)
	env.streaks.RefreshIfNeeded(ctx, "u1")

	assert.Equal(t, streaktypes.Level(4), lastLevel(env.streaks.Get(ctx, "u1")))
}

func TestStreak_RefreshIsIdempotentWithinDay(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	require.NoError(t, env.streaks.Initialize(ctx, "u1"))
	_, err := env.ledger.AddDelta(ctx, "u1", types.Delta{Calories: ptr(1500)}, today)
	require.NoError(t, err)

	env.streaks.RefreshIfNeeded(ctx, "u1")
	first := storedJSON(t, env, "u1")

	env.clock.Set(env.clock.Now().Add(3 * time.Hour))
	skipped := testutil.ToFloat64(metrics.StreakRefreshes.WithLabelValues(metrics.RefreshSkipped))
	env.streaks.RefreshIfNeeded(ctx, "u1")

	assert.JSONEq(t, first, storedJSON(t, env, "u1"))
	assert.Equal(t, skipped+1, testutil.ToFloat64(metrics.StreakRefreshes.WithLabelValues(metrics.RefreshSkipped)))
}

func storedJSON(t *testing.T, env *testEnv, userID string) string {
	t.Helper()
	snap, err := env.store.Get(context.Background(), streakRef(userID))
	require.NoError(t, err)
	var raw map[string]any
	require.NoError(t, snap.DataTo(&raw))
	out, err := json.Marshal(raw)
	require.NoError(t, err)
	return string(out)
}

func TestStreak_ConsecutiveDaysAndBreak(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	require.NoError(t, env.streaks.Initialize(ctx, "u1"))

	calories := []float64{1800, 1300, 900, 0, 1700}
	wantStreak := []int{1, 2, 3, 0, 1}
	prevLongest := 0
	for i, kcal := range calories {
		day := env.ledger.Today()
		if kcal > 0 {
			_, err := env.ledger.AddDelta(ctx, "u1", types.Delta{Calories: ptr(kcal)}, day)
			require.NoError(t, err)
		}
		env.streaks.RefreshIfNeeded(ctx, "u1")

		rec := env.streaks.Get(ctx, "u1")
		assert.Equal(t, wantStreak[i], rec.CurrentStreak, "day %d", i)
		assert.GreaterOrEqual(t, rec.LongestStreak, prevLongest)
		prevLongest = rec.LongestStreak

		env.clock.AdvanceDays(1)
	}

	rec := env.streaks.Get(ctx, "u1")
	assert.Equal(t, 3, rec.LongestStreak)
	assert.Equal(t, 4, rec.TotalDays)
	assert.Len(t, rec.ActivityHistory, streaktypes.HistoryCapacity)
}

func TestStreak_LedgerFailureLeavesRecordUntouched(t *testing.T) {
	ctx := context.Background()
	mem := docstore.NewMemory()
	defer mem.Close()
	flaky := &flakyStore{Store: mem, collection: "nutrition", failGet: true}
	env := newTestEnvWithStore(mem, flaky)

	require.NoError(t, env.streaks.Initialize(ctx, "u1"))
	before := storedJSON(t, env, "u1")
	failed := testutil.ToFloat64(metrics.StreakRefreshes.WithLabelValues(metrics.RefreshFailed))

	env.streaks.RefreshIfNeeded(ctx, "u1")

	assert.JSONEq(t, before, storedJSON(t, env, "u1"))
	assert.Equal(t, failed+1, testutil.ToFloat64(metrics.StreakRefreshes.WithLabelValues(metrics.RefreshFailed)))
}

func TestStreak_WriteFailureIsSwallowed(t *testing.T) {
	ctx := context.Background()
	mem := docstore.NewMemory()
	defer mem.Close()
	flaky := &flakyStore{Store: mem, collection: "streaks", failSet: true}
	env := newTestEnvWithStore(mem, flaky)
	require.NoError(t, env.streaks.Initialize(ctx, "u1"))

	assert.NotPanics(t, func() { env.streaks.RefreshIfNeeded(ctx, "u1") })
	assert.True(t, env.streaks.Get(ctx, "u1").LastUpdateDate.IsZero())
}

func TestStreak_MilestoneNotification(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	notifier := &recordingNotifier{}
	env.streaks.SetMilestoneNotifier(notifier)
	require.NoError(t, env.streaks.Initialize(ctx, "u1"))

	for i := 0; i < 4; i++ {
		_, err := env.ledger.AddDelta(ctx, "u1", types.Delta{Calories: ptr(2000)}, env.ledger.Today())
		require.NoError(t, err)
		env.streaks.RefreshIfNeeded(ctx, "u1")
		env.streaks.RefreshIfNeeded(ctx, "u1")
		env.clock.AdvanceDays(1)
	}

	assert.Equal(t, []int{3}, notifier.Calls())
}

func TestStreak_View(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	require.NoError(t, env.streaks.Initialize(ctx, "u1"))
	env.clock.AdvanceDays(4)

	view := env.streaks.View(ctx, "u1")
	assert.Equal(t, 5, view.CurrentDay)
}
