package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"nutriLensAPI/internal/logger"
	"nutriLensAPI/internal/metrics"
	"nutriLensAPI/internal/types/notification"
	"nutriLensAPI/internal/types/user"
)

type PushNotificationProvider interface {
	SendPush(ctx context.Context, tokens []user.DeviceToken, title, body string, data map[string]any) error
}

// DeviceLookup resolves the push tokens of a user.
type DeviceLookup interface {
	DeviceTokens(ctx context.Context, userID string) ([]user.DeviceToken, error)
}

// MilestoneDispatcher sends streak milestone pushes from a fixed worker pool
// so that streak refreshes never wait on FCM.
type MilestoneDispatcher struct {
	devices      DeviceLookup
	pushProvider PushNotificationProvider
	workers      int
	jobQueue     chan *notification.Push
	stopChan     chan struct{}
	stopOnce     sync.Once
	wg           sync.WaitGroup
}

func NewMilestoneDispatcher(devices DeviceLookup, provider PushNotificationProvider, workers int) *MilestoneDispatcher {
	if workers <= 0 {
		workers = 3
	}
	d := &MilestoneDispatcher{
		devices:      devices,
		pushProvider: provider,
		workers:      workers,
		jobQueue:     make(chan *notification.Push, 100),
		stopChan:     make(chan struct{}),
	}
	d.startWorkers()
	return d
}

func (d *MilestoneDispatcher) startWorkers() {
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
}

func (d *MilestoneDispatcher) worker() {
	defer d.wg.Done()
	for {
		select {
		case job := <-d.jobQueue:
			d.processJob(job)
		case <-d.stopChan:
			return
		}
	}
}

func milestonePush(userID string, days int) *notification.Push {
	return &notification.Push{
		ID:     uuid.New(),
		UserID: userID,
		Type:   notification.TypeStreakMilestone,
		Title:  fmt.Sprintf("%d-day streak!", days),
		Body:   fmt.Sprintf("You've hit your nutrition goals %d days in a row. Keep it up!", days),
		Data:   map[string]any{"type": string(notification.TypeStreakMilestone), "streak": days},
	}
}

// NotifyMilestone queues a push without blocking; it runs inside streak
// refreshes. A full queue drops the push.
func (d *MilestoneDispatcher) NotifyMilestone(userID string, days int) {
	push := milestonePush(userID, days)
	select {
	case d.jobQueue <- push:
		logger.Debug("milestone push %s queued for %s", push.ID, userID)
	default:
		logger.Warn("milestone push for %s dropped: queue full", userID)
		metrics.MilestonePushes.WithLabelValues("dropped").Inc()
	}
}

func (d *MilestoneDispatcher) processJob(push *notification.Push) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	tokens, err := d.devices.DeviceTokens(ctx, push.UserID)
	if err != nil {
		logger.Warn("milestone push for %s: device lookup failed: %v", push.UserID, err)
		metrics.MilestonePushes.WithLabelValues("failed").Inc()
		return
	}
	if len(tokens) == 0 || d.pushProvider == nil {
		metrics.MilestonePushes.WithLabelValues("skipped").Inc()
		return
	}

	if err := d.pushProvider.SendPush(ctx, tokens, push.Title, push.Body, push.Data); err != nil {
		logger.Warn("milestone push for %s failed: %v", push.UserID, err)
		metrics.MilestonePushes.WithLabelValues("failed").Inc()
		return
	}
	metrics.MilestonePushes.WithLabelValues("sent").Inc()
}

// Stop waits for in-flight jobs; queued jobs are discarded.
func (d *MilestoneDispatcher) Stop() {
	d.stopOnce.Do(func() {
		logger.Info("Stopping milestone dispatcher...")
		close(d.stopChan)
		d.wg.Wait()
	})
}
