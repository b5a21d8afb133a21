package services

import (
	"context"
	"fmt"
	"time"

	"nutriLensAPI/internal/daykey"
	"nutriLensAPI/internal/docstore"
	"nutriLensAPI/internal/logger"
	"nutriLensAPI/internal/metrics"
	types "nutriLensAPI/internal/types/nutrition"
)

// ledgerEntry is the nutrition/{userId}_{date} document.
type ledgerEntry struct {
	UserID    string       `json:"userId" firestore:"userId"`
	Date      daykey.Date  `json:"date" firestore:"date"`
	Current   types.Totals `json:"current" firestore:"current"`
	UpdatedAt time.Time    `json:"updatedAt" firestore:"updatedAt"`
}

// LedgerService accumulates each user's nutrition totals per calendar day.
// Totals only move through atomic increments, so writes from several devices
// on the same day never overwrite each other.
type LedgerService struct {
	store docstore.Store
	clock daykey.Clock
}

func NewLedgerService(store docstore.Store, clock daykey.Clock) *LedgerService {
	return &LedgerService{store: store, clock: clock}
}

func ledgerRef(userID string, date daykey.Date) docstore.Ref {
	return docstore.Ref{Collection: collectionNutrition, ID: daykey.NewKey(userID, date).String()}
}

// Today is the current calendar date in the service's clock location.
func (s *LedgerService) Today() daykey.Date {
	return daykey.Today(s.clock)
}

// GetCurrent returns the day's totals, zero when nothing was logged or the
// store could not be read.
func (s *LedgerService) GetCurrent(ctx context.Context, userID string, date daykey.Date) types.Totals {
	totals, err := s.current(ctx, userID, date)
	if err != nil {
		logger.Warn("ledger read failed for %s on %s: %v", userID, date, err)
		return types.Totals{}
	}
	return totals
}

// current is GetCurrent without the degrade-to-zero.
func (s *LedgerService) current(ctx context.Context, userID string, date daykey.Date) (types.Totals, error) {
	snap, err := s.store.Get(ctx, ledgerRef(userID, date))
	if err != nil {
		return types.Totals{}, err
	}
	return decodeEntry(snap)
}

func decodeEntry(snap docstore.Snapshot) (types.Totals, error) {
	if snap == nil || !snap.Exists() {
		return types.Totals{}, nil
	}
	var e ledgerEntry
	if err := snap.DataTo(&e); err != nil {
		return types.Totals{}, fmt.Errorf("decode ledger entry: %w", err)
	}
	return e.Current, nil
}

// AddDelta increments every present field of delta and returns the day's
// totals after the write. The entry is created on first use.
func (s *LedgerService) AddDelta(ctx context.Context, userID string, delta types.Delta, date daykey.Date) (types.Totals, error) {
	if err := validateDelta(delta); err != nil {
		return types.Totals{}, err
	}

	increments := make(map[string]float64, 5)
	for f, v := range delta.Values() {
		increments["current."+string(f)] = v
	}

	snap, err := s.store.Increment(ctx, ledgerRef(userID, date), increments, map[string]any{
		"userId":    userID,
		"date":      date,
		"updatedAt": s.clock.Now(),
	})
	if err != nil {
		metrics.LedgerIncrements.WithLabelValues("failed").Inc()
		return types.Totals{}, fmt.Errorf("failed to add nutrition: %w", err)
	}
	metrics.LedgerIncrements.WithLabelValues("ok").Inc()

	return decodeEntry(snap)
}

// Subscribe calls onChange with the day's totals now and after every change.
// Listener errors are logged and reported as zero totals. The returned func
// is idempotent; once it returns no further calls are made.
func (s *LedgerService) Subscribe(ctx context.Context, userID string, date daykey.Date, onChange func(types.Totals)) (func(), error) {
	sub, err := s.store.Watch(ctx, ledgerRef(userID, date), func(snap docstore.Snapshot, err error) {
		if err != nil {
			logger.Warn("ledger listener error for %s on %s: %v", userID, date, err)
			onChange(types.Totals{})
			return
		}
		totals, err := decodeEntry(snap)
		if err != nil {
			logger.Warn("ledger listener decode for %s on %s: %v", userID, date, err)
		}
		onChange(totals)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to ledger: %w", err)
	}
	return sub.Stop, nil
}

// Reset zeroes every field of the day's entry.
func (s *LedgerService) Reset(ctx context.Context, userID string, date daykey.Date) error {
	fields := map[string]any{
		"userId":    userID,
		"date":      date,
		"updatedAt": s.clock.Now(),
	}
	for _, f := range types.Fields {
		fields["current."+string(f)] = 0.0
	}
	if err := s.store.Merge(ctx, ledgerRef(userID, date), fields); err != nil {
		return fmt.Errorf("failed to reset nutrition: %w", err)
	}
	return nil
}
