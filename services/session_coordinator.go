package services

import (
	"context"
	"errors"
	"slices"
	"sync"

	"nutriLensAPI/internal/auth"
	"nutriLensAPI/internal/daykey"
	"nutriLensAPI/internal/logger"
	"nutriLensAPI/internal/nutrition"
	"nutriLensAPI/internal/streak"
	types "nutriLensAPI/internal/types/nutrition"
	streaktypes "nutriLensAPI/internal/types/streak"
	"nutriLensAPI/internal/types/user"
)

// SessionState is the read model served to one signed-in client.
type SessionState struct {
	UserID           string             `json:"userId"`
	Authenticated    bool               `json:"authenticated"`
	Profile          *user.User         `json:"profile,omitempty"`
	TargetNutrition  types.Totals       `json:"targetNutrition"`
	CurrentNutrition types.Totals       `json:"currentNutrition"`
	StreakData       streaktypes.Record `json:"streakData"`
	CurrentDay       int                `json:"currentDay"`
	Day              daykey.Date        `json:"day"`
}

func (s SessionState) clone() SessionState {
	s.StreakData.ActivityHistory = slices.Clone(s.StreakData.ActivityHistory)
	if s.Profile != nil {
		p := *s.Profile
		s.Profile = &p
	}
	return s
}

// SessionDeps are the services a session reads and writes through.
type SessionDeps struct {
	Users   *UserService
	Ledger  *LedgerService
	Streaks *StreakService
	Clock   daykey.Clock
}

// LoadSessionState builds a one-shot read model for userID. Each part degrades
// to its default independently.
func LoadSessionState(ctx context.Context, deps SessionDeps, userID string) SessionState {
	now := deps.Clock.Now()
	st := SessionState{
		UserID:        userID,
		Authenticated: true,
		Day:           daykey.FromTime(now),
	}

	profile, err := deps.Users.GetProfile(ctx, userID)
	switch {
	case err == nil:
		st.Profile = profile
		st.TargetNutrition = types.DefaultTarget
		if profile.TargetNutrition != nil {
			st.TargetNutrition = *profile.TargetNutrition
		}
	case errors.Is(err, ErrUserNotFound):
		st.TargetNutrition = types.DefaultTarget
	default:
		logger.Warn("session profile read failed for %s: %v", userID, err)
		st.TargetNutrition = types.DefaultTarget
	}

	st.CurrentNutrition = deps.Ledger.GetCurrent(ctx, userID, st.Day)
	st.StreakData = deps.Streaks.Get(ctx, userID)
	st.CurrentDay = streak.CurrentDay(st.StreakData.StartDate, now)
	return st
}

// SessionCoordinator owns the state of one client session. The state is
// rebuilt on every auth transition and kept live through a subscription to
// the day's ledger entry.
type SessionCoordinator struct {
	deps     SessionDeps
	auth     auth.Provider
	onUpdate func(SessionState)

	mu          sync.Mutex
	state       SessionState
	generation  uint64
	ledgerUnsub func()
	authUnsub   func()
	closed      bool
	closeOnce   sync.Once
}

// NewSessionCoordinator creates an idle coordinator; call Start to follow the
// auth provider. onUpdate, if set, receives a copy of the state after every
// change.
func NewSessionCoordinator(deps SessionDeps, provider auth.Provider, onUpdate func(SessionState)) *SessionCoordinator {
	return &SessionCoordinator{deps: deps, auth: provider, onUpdate: onUpdate}
}

func (c *SessionCoordinator) Start(ctx context.Context) {
	unsub := c.auth.OnAuthStateChanged(func(userID string) {
		c.rebuild(ctx, userID)
	})

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		unsub()
		return
	}
	c.authUnsub = unsub
	c.mu.Unlock()
}

// rebuild drops the previous ledger subscription and loads userID's state.
func (c *SessionCoordinator) rebuild(ctx context.Context, userID string) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.generation++
	gen := c.generation
	prev := c.ledgerUnsub
	c.ledgerUnsub = nil
	c.mu.Unlock()

	if prev != nil {
		prev()
	}

	if userID == "" {
		c.mu.Lock()
		if c.generation == gen {
			c.state = SessionState{}
		}
		st := c.state.clone()
		c.mu.Unlock()
		c.notify(st)
		return
	}

	st := LoadSessionState(ctx, c.deps, userID)

	c.mu.Lock()
	if c.closed || c.generation != gen {
		c.mu.Unlock()
		return
	}
	c.state = st
	c.mu.Unlock()
	c.notify(st.clone())

	day := st.Day
	unsub, err := c.deps.Ledger.Subscribe(ctx, userID, day, func(t types.Totals) {
		c.applyLedger(gen, day, t)
	})
	if err != nil {
		logger.Warn("session ledger subscription failed for %s: %v", userID, err)
		return
	}

	c.mu.Lock()
	if c.closed || c.generation != gen {
		c.mu.Unlock()
		unsub()
		return
	}
	c.ledgerUnsub = unsub
	c.mu.Unlock()
}

func (c *SessionCoordinator) applyLedger(gen uint64, day daykey.Date, t types.Totals) {
	c.mu.Lock()
	if c.generation != gen || c.state.Day != day || c.state.CurrentNutrition == t {
		c.mu.Unlock()
		return
	}
	c.state.CurrentNutrition = t
	st := c.state.clone()
	c.mu.Unlock()
	c.notify(st)
}

func (c *SessionCoordinator) notify(st SessionState) {
	if c.onUpdate != nil {
		c.onUpdate(st)
	}
}

// State returns a copy of the current read model.
func (c *SessionCoordinator) State() SessionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.clone()
}

// requireUser resolves the acting user and moves the session onto today when
// the calendar day has changed since it was loaded.
func (c *SessionCoordinator) requireUser(ctx context.Context) (string, daykey.Date, error) {
	userID, ok := c.auth.CurrentUser()
	if !ok {
		return "", "", ErrNotAuthenticated
	}

	today := daykey.Today(c.deps.Clock)
	c.mu.Lock()
	stale := c.state.UserID != userID || c.state.Day != today
	c.mu.Unlock()
	if stale {
		c.rebuild(ctx, userID)
	}
	return userID, today, nil
}

// update applies fn to the state if it still belongs to userID.
func (c *SessionCoordinator) update(userID string, fn func(*SessionState)) SessionState {
	c.mu.Lock()
	if c.state.UserID == userID {
		fn(&c.state)
	}
	st := c.state.clone()
	c.mu.Unlock()
	c.notify(st)
	return st
}

// AddNutrition adds delta to today's ledger and refreshes the streak. The
// local totals only change to the value the store confirmed.
func (c *SessionCoordinator) AddNutrition(ctx context.Context, delta types.Delta) (SessionState, error) {
	userID, today, err := c.requireUser(ctx)
	if err != nil {
		return SessionState{}, err
	}

	totals, err := c.deps.Ledger.AddDelta(ctx, userID, delta, today)
	if err != nil {
		return c.State(), err
	}
	c.update(userID, func(s *SessionState) {
		if s.Day == today {
			s.CurrentNutrition = totals
		}
	})

	return c.UpdateDailyActivity(ctx)
}

func (c *SessionCoordinator) UpdateNutritionRequirements(ctx context.Context, partial types.Delta) (SessionState, error) {
	userID, _, err := c.requireUser(ctx)
	if err != nil {
		return SessionState{}, err
	}

	target, err := c.deps.Users.UpdateTargetNutrition(ctx, userID, partial)
	if err != nil {
		return c.State(), err
	}
	return c.update(userID, func(s *SessionState) {
		s.TargetNutrition = target
		if s.Profile != nil {
			s.Profile.TargetNutrition = &target
		}
	}), nil
}

// CompleteSetup validates the metrics, computes and stores the target.
func (c *SessionCoordinator) CompleteSetup(ctx context.Context, m nutrition.BodyMetrics) (SessionState, error) {
	userID, _, err := c.requireUser(ctx)
	if err != nil {
		return SessionState{}, err
	}

	target, err := c.deps.Users.CompleteSetup(ctx, userID, m)
	if err != nil {
		return c.State(), err
	}
	profile, err := c.deps.Users.GetProfile(ctx, userID)
	if err != nil {
		logger.Warn("profile reload after setup failed for %s: %v", userID, err)
	}
	return c.update(userID, func(s *SessionState) {
		s.TargetNutrition = target
		if profile != nil {
			s.Profile = profile
		}
	}), nil
}

// UpdateDailyActivity refreshes the streak and reloads it into the state.
func (c *SessionCoordinator) UpdateDailyActivity(ctx context.Context) (SessionState, error) {
	userID, _, err := c.requireUser(ctx)
	if err != nil {
		return SessionState{}, err
	}

	c.deps.Streaks.RefreshIfNeeded(ctx, userID)
	rec := c.deps.Streaks.Get(ctx, userID)
	day := streak.CurrentDay(rec.StartDate, c.deps.Clock.Now())

	return c.update(userID, func(s *SessionState) {
		s.StreakData = rec
		s.CurrentDay = day
	}), nil
}

// Close releases the auth and ledger subscriptions. It is idempotent.
func (c *SessionCoordinator) Close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.generation++
		authUnsub, ledgerUnsub := c.authUnsub, c.ledgerUnsub
		c.authUnsub, c.ledgerUnsub = nil, nil
		c.mu.Unlock()

		if authUnsub != nil {
			authUnsub()
		}
		if ledgerUnsub != nil {
			ledgerUnsub()
		}
	})
}
