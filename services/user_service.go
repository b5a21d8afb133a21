package services

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"nutriLensAPI/internal/daykey"
	"nutriLensAPI/internal/docstore"
	"nutriLensAPI/internal/nutrition"
	types "nutriLensAPI/internal/types/nutrition"
	"nutriLensAPI/internal/types/user"
)

// fallbackTargetCalories is used for streak levels when a user has no stored
// target.
const fallbackTargetCalories = 2000

type UserService struct {
	store docstore.Store
	clock daykey.Clock
}

func NewUserService(store docstore.Store, clock daykey.Clock) *UserService {
	return &UserService{store: store, clock: clock}
}

func userRef(userID string) docstore.Ref {
	return docstore.Ref{Collection: collectionUsers, ID: userID}
}

// Register creates the profile with the default target. Registering an
// existing user returns the stored profile unchanged.
func (s *UserService) Register(ctx context.Context, userID, name, email, imageURL string) (*user.User, error) {
	now := s.clock.Now()
	target := types.DefaultTarget
	u := &user.User{
		ID:              userID,
		Name:            name,
		Email:           email,
		ImageURL:        imageURL,
		TargetNutrition: &target,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	err := s.store.Create(ctx, userRef(userID), u)
	if errors.Is(err, docstore.ErrAlreadyExists) {
		return s.GetProfile(ctx, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return u, nil
}

func (s *UserService) GetProfile(ctx context.Context, userID string) (*user.User, error) {
	snap, err := s.store.Get(ctx, userRef(userID))
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	if !snap.Exists() {
		return nil, ErrUserNotFound
	}
	var u user.User
	if err := snap.DataTo(&u); err != nil {
		return nil, fmt.Errorf("failed to decode user: %w", err)
	}
	u.ID = userID
	return &u, nil
}

// GetTargetNutrition returns the stored target, or the default target when
// the profile has none.
func (s *UserService) GetTargetNutrition(ctx context.Context, userID string) (types.Totals, error) {
	u, err := s.GetProfile(ctx, userID)
	if err != nil {
		return types.DefaultTarget, err
	}
	if u.TargetNutrition == nil {
		return types.DefaultTarget, nil
	}
	return *u.TargetNutrition, nil
}

// targetCalories feeds the streak level. A missing profile or target falls
// back to 2000 kcal; store failures are returned.
func (s *UserService) targetCalories(ctx context.Context, userID string) (float64, error) {
	u, err := s.GetProfile(ctx, userID)
	if errors.Is(err, ErrUserNotFound) {
		return fallbackTargetCalories, nil
	}
	if err != nil {
		return 0, err
	}
	if u.TargetNutrition == nil {
		return fallbackTargetCalories, nil
	}
	return u.TargetNutrition.Calories, nil
}

// UpdateTargetNutrition overlays the given fields on the current target.
func (s *UserService) UpdateTargetNutrition(ctx context.Context, userID string, partial types.Delta) (types.Totals, error) {
	if err := validateDelta(partial); err != nil {
		return types.Totals{}, err
	}
	current, err := s.GetTargetNutrition(ctx, userID)
	if err != nil {
		return types.Totals{}, err
	}
	return s.saveTarget(ctx, userID, current.Merge(partial))
}

// AdjustTarget nudges one field of the target, recomputing calories when a
// macro changes.
func (s *UserService) AdjustTarget(ctx context.Context, userID string, field types.Field, delta float64) (types.Totals, error) {
	current, err := s.GetTargetNutrition(ctx, userID)
	if err != nil {
		return types.Totals{}, err
	}
	next, err := nutrition.Adjust(current, field, delta)
	if err != nil {
		return types.Totals{}, err
	}
	return s.saveTarget(ctx, userID, next)
}

func (s *UserService) saveTarget(ctx context.Context, userID string, target types.Totals) (types.Totals, error) {
	err := s.store.Update(ctx, userRef(userID), map[string]any{
		"targetNutrition": target,
		"updatedAt":       s.clock.Now(),
	})
	if errors.Is(err, docstore.ErrNotFound) {
		return types.Totals{}, ErrUserNotFound
	}
	if err != nil {
		return types.Totals{}, fmt.Errorf("failed to save target: %w", err)
	}
	return target, nil
}

// CompleteSetup validates the body metrics, computes the target and stores
// both on the profile.
func (s *UserService) CompleteSetup(ctx context.Context, userID string, m nutrition.BodyMetrics) (types.Totals, error) {
	if err := m.Validate(); err != nil {
		return types.Totals{}, err
	}
	target := m.Target()

	fields := map[string]any{
		"age":               m.Age,
		"weight":            m.WeightKG,
		"height":            m.HeightCM,
		"targetNutrition":   target,
		"hasCompletedSetup": true,
		"updatedAt":         s.clock.Now(),
	}
	if m.Sex != "" {
		fields["sex"] = m.Sex
	}
	if m.Lifestyle != "" {
		fields["lifestyle"] = m.Lifestyle
	}

	err := s.store.Update(ctx, userRef(userID), fields)
	if errors.Is(err, docstore.ErrNotFound) {
		return types.Totals{}, ErrUserNotFound
	}
	if err != nil {
		return types.Totals{}, fmt.Errorf("failed to complete setup: %w", err)
	}
	return target, nil
}

// UpdateIdentity copies name, email and avatar from the identity provider.
func (s *UserService) UpdateIdentity(ctx context.Context, userID, name, email, imageURL string) error {
	fields := map[string]any{
		"name":      name,
		"email":     email,
		"updatedAt": s.clock.Now(),
	}
	if imageURL != "" {
		fields["imageUrl"] = imageURL
	}
	if err := s.store.Merge(ctx, userRef(userID), fields); err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	return nil
}

// RegisterDevice stores a push token, replacing an earlier entry for the same
// token.
func (s *UserService) RegisterDevice(ctx context.Context, userID string, device user.DeviceToken) error {
	if device.Token == "" {
		return fmt.Errorf("%w: device token is required", ErrValidation)
	}
	tokens, err := s.DeviceTokens(ctx, userID)
	if err != nil {
		return err
	}
	tokens = slices.DeleteFunc(tokens, func(t user.DeviceToken) bool { return t.Token == device.Token })
	tokens = append(tokens, device)

	err = s.store.Update(ctx, userRef(userID), map[string]any{
		"deviceTokens": tokens,
		"updatedAt":    s.clock.Now(),
	})
	if errors.Is(err, docstore.ErrNotFound) {
		return ErrUserNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to register device: %w", err)
	}
	return nil
}

func (s *UserService) DeviceTokens(ctx context.Context, userID string) ([]user.DeviceToken, error) {
	u, err := s.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	return u.DeviceTokens, nil
}

// Delete removes the profile and streak record. Ledger entries and meals are
// kept.
func (s *UserService) Delete(ctx context.Context, userID string) error {
	if err := s.store.Delete(ctx, userRef(userID)); err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	if err := s.store.Delete(ctx, streakRef(userID)); err != nil {
		return fmt.Errorf("failed to delete streak: %w", err)
	}
	return nil
}
