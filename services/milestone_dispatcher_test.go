package services

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nutriLensAPI/internal/metrics"
	"nutriLensAPI/internal/types/notification"
	"nutriLensAPI/internal/types/user"
)

func TestMilestonePush(t *testing.T) {
	push := milestonePush("u1", 7)
	assert.Equal(t, "7-day streak!", push.Title)
	assert.Equal(t, "u1", push.UserID)
	assert.Equal(t, 7, push.Data["streak"])
}

func TestMilestoneDispatcher_Sends(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.register(t, "u1")
	require.NoError(t, env.users.RegisterDevice(ctx, "u1", user.DeviceToken{Token: "tok", Platform: "ios"}))

	provider := &fakePushProvider{}
	d := NewMilestoneDispatcher(env.users, provider, 2)
	defer d.Stop()

	d.NotifyMilestone("u1", 14)

	require.Eventually(t, func() bool { return len(provider.Sent()) == 1 }, 2*time.Second, 10*time.Millisecond)
	sent := provider.Sent()[0]
	assert.Equal(t, "14-day streak!", sent.title)
	assert.Equal(t, []user.DeviceToken{{Token: "tok", Platform: "ios"}}, sent.tokens)
}

func TestMilestoneDispatcher_SkipsWithoutDevices(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "u1")

	provider := &fakePushProvider{}
	d := NewMilestoneDispatcher(env.users, provider, 1)
	defer d.Stop()

	skipped := testutil.ToFloat64(metrics.MilestonePushes.WithLabelValues("skipped"))
	d.NotifyMilestone("u1", 3)

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(metrics.MilestonePushes.WithLabelValues("skipped")) == skipped+1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Empty(t, provider.Sent())
}

func TestMilestoneDispatcher_StopIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	d := NewMilestoneDispatcher(env.users, nil, 0)
	d.Stop()
	assert.NotPanics(t, d.Stop)
}

func TestMilestoneDispatcher_FullQueueDropsWithoutWaiting(t *testing.T) {
	// No workers: the single queue slot stays occupied.
	d := &MilestoneDispatcher{
		jobQueue: make(chan *notification.Push, 1),
		stopChan: make(chan struct{}),
	}
	dropped := testutil.ToFloat64(metrics.MilestonePushes.WithLabelValues("dropped"))

	d.NotifyMilestone("u1", 3)
	start := time.Now()
	d.NotifyMilestone("u2", 7)

	assert.Less(t, time.Since(start), 100*time.Millisecond)
	assert.Len(t, d.jobQueue, 1)
	assert.Equal(t, "u1", (<-d.jobQueue).UserID)
	assert.Equal(t, dropped+1, testutil.ToFloat64(metrics.MilestonePushes.WithLabelValues("dropped")))
}
