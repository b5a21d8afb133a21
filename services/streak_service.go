package services

import (
	"context"
	"errors"
	"fmt"

	"nutriLensAPI/internal/daykey"
	"nutriLensAPI/internal/docstore"
	"nutriLensAPI/internal/logger"
	"nutriLensAPI/internal/metrics"
	"nutriLensAPI/internal/streak"
	types "nutriLensAPI/internal/types/streak"
)

// MilestoneNotifier is told when a user's streak reaches a milestone.
type MilestoneNotifier interface {
	NotifyMilestone(userID string, days int)
}

type StreakService struct {
	store      docstore.Store
	ledger     *LedgerService
	users      *UserService
	clock      daykey.Clock
	milestones MilestoneNotifier
}

func NewStreakService(store docstore.Store, ledger *LedgerService, users *UserService, clock daykey.Clock) *StreakService {
	return &StreakService{store: store, ledger: ledger, users: users, clock: clock}
}

// SetMilestoneNotifier enables milestone pushes.
func (s *StreakService) SetMilestoneNotifier(n MilestoneNotifier) {
	s.milestones = n
}

func streakRef(userID string) docstore.Ref {
	return docstore.Ref{Collection: collectionStreaks, ID: userID}
}

// Initialize creates the user's record. An existing record is left as is.
func (s *StreakService) Initialize(ctx context.Context, userID string) error {
	err := s.store.Create(ctx, streakRef(userID), streak.NewRecord(userID, s.clock.Now()))
	if err != nil && !errors.Is(err, docstore.ErrAlreadyExists) {
		return fmt.Errorf("failed to initialize streak: %w", err)
	}
	return nil
}

// Get returns the stored record, or a fresh unsaved one when it is missing or
// unreadable.
func (s *StreakService) Get(ctx context.Context, userID string) types.Record {
	rec, found, err := s.load(ctx, userID)
	if err != nil {
		logger.Warn("streak read failed for %s: %v", userID, err)
	}
	if err != nil || !found {
		return streak.NewRecord(userID, s.clock.Now())
	}
	return rec
}

// View is Get plus the 1-based day counter.
func (s *StreakService) View(ctx context.Context, userID string) types.View {
	rec := s.Get(ctx, userID)
	return types.View{Record: rec, CurrentDay: streak.CurrentDay(rec.StartDate, s.clock.Now())}
}

func (s *StreakService) load(ctx context.Context, userID string) (types.Record, bool, error) {
	snap, err := s.store.Get(ctx, streakRef(userID))
	if err != nil {
		return types.Record{}, false, err
	}
	if !snap.Exists() {
		return types.Record{}, false, nil
	}
	var rec types.Record
	if err := snap.DataTo(&rec); err != nil {
		return types.Record{}, false, fmt.Errorf("decode streak: %w", err)
	}
	return rec, true, nil
}

// RefreshIfNeeded records today's activity level at most once per calendar
// day. It never fails: errors are logged and the record is left untouched.
func (s *StreakService) RefreshIfNeeded(ctx context.Context, userID string) {
	result, err := s.refresh(ctx, userID)
	if err != nil {
		logger.Error("streak refresh failed for %s: %v", userID, err)
		result = metrics.RefreshFailed
	}
	metrics.StreakRefreshes.WithLabelValues(result).Inc()
}

func (s *StreakService) refresh(ctx context.Context, userID string) (string, error) {
	rec, found, err := s.load(ctx, userID)
	if err != nil {
		return "", err
	}
	if !found {
		if err := s.Initialize(ctx, userID); err != nil {
			return "", err
		}
		return metrics.RefreshInitialized, nil
	}

	now := s.clock.Now()
	today := daykey.FromTime(now)
	if streak.UpdatedOn(rec, today) {
		return metrics.RefreshSkipped, nil
	}

	target, err := s.users.targetCalories(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("read target: %w", err)
	}
	// A failed ledger read must not be recorded as an empty day.
	current, err := s.ledger.current(ctx, userID, today)
	if err != nil {
		return "", fmt.Errorf("read ledger: %w", err)
	}

	level := streak.LevelForProgress(current.Calories, target)
	next := streak.Advance(rec, level, today, now)
	next.UserID = userID

	if err := s.store.Set(ctx, streakRef(userID), next); err != nil {
		return "", fmt.Errorf("save streak: %w", err)
	}

	if m := streak.ReachedMilestone(rec.CurrentStreak, next.CurrentStreak); m > 0 && s.milestones != nil {
		s.milestones.NotifyMilestone(userID, m)
	}
	return metrics.RefreshUpdated, nil
}
