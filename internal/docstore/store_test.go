package docstore

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type entry struct {
	UserID  string             `json:"userId" firestore:"userId"`
	Date    string             `json:"date" firestore:"date"`
	Current map[string]float64 `json:"current" firestore:"current"`
}

type meal struct {
	UserID     string `json:"userId" firestore:"userId"`
	LoggedAtMs int64  `json:"loggedAtMs" firestore:"loggedAtMs"`
	Name       string `json:"name" firestore:"name"`
}

// storeSuite runs the behaviour every Store implementation must share. Each
// test uses a fresh collection so backends with shared state stay isolated.
func storeSuite(t *testing.T, store Store) {
	ctx := context.Background()
	coll := func() string { return "test_" + uuid.NewString()[:8] }

	t.Run("get missing", func(t *testing.T) {
		snap, err := store.Get(ctx, Ref{coll(), "nope"})
		require.NoError(t, err)
		assert.False(t, snap.Exists())
		assert.ErrorIs(t, snap.DataTo(&entry{}), ErrNotFound)
	})

	t.Run("create then create again", func(t *testing.T) {
		ref := Ref{coll(), "u1"}
		require.NoError(t, store.Create(ctx, ref, entry{UserID: "u1"}))

		err := store.Create(ctx, ref, entry{UserID: "other"})
		assert.ErrorIs(t, err, ErrAlreadyExists)

		var got entry
		snap, err := store.Get(ctx, ref)
		require.NoError(t, err)
		require.NoError(t, snap.DataTo(&got))
		assert.Equal(t, "u1", got.UserID)
	})

	t.Run("update missing fails", func(t *testing.T) {
		err := store.Update(ctx, Ref{coll(), "ghost"}, map[string]any{"name": "x"})
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("merge dotted paths", func(t *testing.T) {
		ref := Ref{coll(), "u1"}
		require.NoError(t, store.Set(ctx, ref, entry{UserID: "u1", Current: map[string]float64{"calories": 10, "water": 1}}))
		require.NoError(t, store.Merge(ctx, ref, map[string]any{"current.calories": 99.0}))

		var got entry
		snap, err := store.Get(ctx, ref)
		require.NoError(t, err)
		require.NoError(t, snap.DataTo(&got))
		assert.Equal(t, 99.0, got.Current["calories"])
		assert.Equal(t, 1.0, got.Current["water"])
		assert.Equal(t, "u1", got.UserID)
	})

	t.Run("increment creates and accumulates", func(t *testing.T) {
		ref := Ref{coll(), "u1_2026-10-19"}
		_, err := store.Increment(ctx, ref, map[string]float64{"current.calories": 100}, map[string]any{"userId": "u1"})
		require.NoError(t, err)
		snap, err := store.Increment(ctx, ref, map[string]float64{"current.calories": 50, "current.protein": 5}, nil)
		require.NoError(t, err)

		var got entry
		require.NoError(t, snap.DataTo(&got))
		assert.Equal(t, 150.0, got.Current["calories"])
		assert.Equal(t, 5.0, got.Current["protein"])
		assert.Equal(t, "u1", got.UserID)
	})

	t.Run("concurrent increments all land", func(t *testing.T) {
		ref := Ref{coll(), "u1_2026-10-19"}
		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := store.Increment(ctx, ref, map[string]float64{"current.calories": 10}, nil)
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		var got entry
		snap, err := store.Get(ctx, ref)
		require.NoError(t, err)
		require.NoError(t, snap.DataTo(&got))
		assert.Equal(t, 200.0, got.Current["calories"])
	})

	t.Run("delete", func(t *testing.T) {
		ref := Ref{coll(), "u1"}
		require.NoError(t, store.Set(ctx, ref, entry{UserID: "u1"}))
		require.NoError(t, store.Delete(ctx, ref))

		snap, err := store.Get(ctx, ref)
		require.NoError(t, err)
		assert.False(t, snap.Exists())
	})

	t.Run("query filter order limit", func(t *testing.T) {
		c := coll()
		for i, m := range []meal{
			{UserID: "u1", LoggedAtMs: 3000, Name: "dinner"},
			{UserID: "u1", LoggedAtMs: 1000, Name: "breakfast"},
			{UserID: "u2", LoggedAtMs: 5000, Name: "other"},
			{UserID: "u1", LoggedAtMs: 2000, Name: "lunch"},
		} {
			require.NoError(t, store.Set(ctx, Ref{c, fmt.Sprint(i)}, m))
		}

		snaps, err := store.Query(ctx, Query{
			Collection: c,
			Where:      []Filter{{Field: "userId", Value: "u1"}},
			OrderBy:    "loggedAtMs",
			Descending: true,
			Limit:      2,
		})
		require.NoError(t, err)
		require.Len(t, snaps, 2)

		var first, second meal
		require.NoError(t, snaps[0].DataTo(&first))
		require.NoError(t, snaps[1].DataTo(&second))
		assert.Equal(t, "dinner", first.Name)
		assert.Equal(t, "lunch", second.Name)
	})

	t.Run("watch delivers current then changes", func(t *testing.T) {
		ref := Ref{coll(), "u1"}
		got := make(chan float64, 16)
		sub, err := store.Watch(ctx, ref, func(s Snapshot, err error) {
			if err != nil || !s.Exists() {
				got <- -1
				return
			}
			var e entry
			if s.DataTo(&e) == nil {
				got <- e.Current["calories"]
			}
		})
		require.NoError(t, err)
		defer sub.Stop()

		assert.Equal(t, -1.0, waitFor(t, got))

		_, err = store.Increment(ctx, ref, map[string]float64{"current.calories": 42}, nil)
		require.NoError(t, err)
		assert.Equal(t, 42.0, waitUntil(t, got, 42))
	})
}

func waitFor(t *testing.T, ch <-chan float64) float64 {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for watch callback")
		return 0
	}
}

// waitUntil drains coalesced deliveries until want arrives.
func waitUntil(t *testing.T, ch <-chan float64, want float64) float64 {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case v := <-ch:
			if v == want {
				return v
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %v", want)
			return 0
		}
	}
}
