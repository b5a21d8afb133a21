package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"nutriLensAPI/internal/daykey"
	"nutriLensAPI/internal/docstore"
	"nutriLensAPI/internal/types/user"
)

var errStoreDown = errors.New("store unavailable")

type testEnv struct {
	store   *docstore.Memory
	clock   *daykey.FixedClock
	users   *UserService
	ledger  *LedgerService
	streaks *StreakService
	meals   *MealService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := docstore.NewMemory()
	t.Cleanup(func() { store.Close() })
	return newTestEnvWithStore(store, store)
}

func newTestEnvWithStore(mem *docstore.Memory, store docstore.Store) *testEnv {
	clock := daykey.NewFixedClock(time.Date(2026, 10, 19, 10, 0, 0, 0, time.UTC))
	users := NewUserService(store, clock)
	ledger := NewLedgerService(store, clock)
	streaks := NewStreakService(store, ledger, users, clock)
	return &testEnv{
		store:   mem,
		clock:   clock,
		users:   users,
		ledger:  ledger,
		streaks: streaks,
		meals:   NewMealService(store, ledger, streaks),
	}
}

func (e *testEnv) deps() SessionDeps {
	return SessionDeps{Users: e.users, Ledger: e.ledger, Streaks: e.streaks, Clock: e.clock}
}

func (e *testEnv) register(t *testing.T, userID string) *user.User {
	t.Helper()
	u, err := e.users.Register(context.Background(), userID, "Test User", userID+"@example.com", "")
	require.NoError(t, err)
	return u
}

// flakyStore fails selected operations on one collection.
type flakyStore struct {
	docstore.Store
	collection    string
	failGet       bool
	failIncrement bool
	failSet       bool
}

func (f *flakyStore) Get(ctx context.Context, ref docstore.Ref) (docstore.Snapshot, error) {
	if f.failGet && ref.Collection == f.collection {
		return nil, errStoreDown
	}
	return f.Store.Get(ctx, ref)
}

func (f *flakyStore) Increment(ctx context.Context, ref docstore.Ref, deltas map[string]float64, extra map[string]any) (docstore.Snapshot, error) {
	if f.failIncrement && ref.Collection == f.collection {
		return nil, errStoreDown
	}
	return f.Store.Increment(ctx, ref, deltas, extra)
}

func (f *flakyStore) Set(ctx context.Context, ref docstore.Ref, data any) error {
	if f.failSet && ref.Collection == f.collection {
		return errStoreDown
	}
	return f.Store.Set(ctx, ref, data)
}

type sentPush struct {
	tokens []user.DeviceToken
	title  string
	data   map[string]any
}

type fakePushProvider struct {
	mu   sync.Mutex
	sent []sentPush
	err  error
}

func (p *fakePushProvider) SendPush(ctx context.Context, tokens []user.DeviceToken, title, body string, data map[string]any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, sentPush{tokens: tokens, title: title, data: data})
	return p.err
}

func (p *fakePushProvider) Sent() []sentPush {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]sentPush(nil), p.sent...)
}

type recordingNotifier struct {
	mu    sync.Mutex
	calls []int
}

func (n *recordingNotifier) NotifyMilestone(userID string, days int) {
	n.mu.Lock()
	n.calls = append(n.calls, days)
	n.mu.Unlock()
}

func (n *recordingNotifier) Calls() []int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]int(nil), n.calls...)
}

func ptr(v float64) *float64 {
	return &v
}
