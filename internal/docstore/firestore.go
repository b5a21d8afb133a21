package docstore

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"nutriLensAPI/internal/logger"
)

// FirebaseOptions resolves Firebase credentials. A base64 service account in
// EncodedJSON wins over CredentialsFile. With neither, and an emulator host set,
// no credentials are used.
type FirebaseOptions struct {
	ProjectID       string
	CredentialsFile string
	EncodedJSON     string
}

// ClientOptions returns the google API options for these credentials.
func (o FirebaseOptions) ClientOptions() ([]option.ClientOption, error) {
	if o.EncodedJSON != "" {
		decoded, err := base64.StdEncoding.DecodeString(o.EncodedJSON)
		if err != nil {
			return nil, fmt.Errorf("failed to decode base64 firebase credentials: %w", err)
		}
		logger.Info("Firebase: using credentials from environment")
		return []option.ClientOption{option.WithCredentialsJSON(decoded)}, nil
	}
	if o.CredentialsFile != "" {
		if _, err := os.Stat(o.CredentialsFile); err == nil {
			logger.Info("Firebase: using credentials file %s", o.CredentialsFile)
			return []option.ClientOption{option.WithCredentialsFile(o.CredentialsFile)}, nil
		}
	}
	if os.Getenv("FIRESTORE_EMULATOR_HOST") != "" {
		return nil, nil
	}
	return nil, fmt.Errorf("firebase credentials not found: %s does not exist and no encoded credentials are set", o.CredentialsFile)
}

// NewFirebaseApp initialises the Firebase app shared by Firestore and
// messaging.
func NewFirebaseApp(ctx context.Context, o FirebaseOptions) (*firebase.App, error) {
	opts, err := o.ClientOptions()
	if err != nil {
		return nil, err
	}
	var cfg *firebase.Config
	if o.ProjectID != "" {
		cfg = &firebase.Config{ProjectID: o.ProjectID}
	}
	app, err := firebase.NewApp(ctx, cfg, opts...)
	if err != nil {
		return nil, fmt.Errorf("error initializing firebase app: %w", err)
	}
	return app, nil
}

// Firestore is the production Store.
type Firestore struct {
	client *firestore.Client
}

func NewFirestore(ctx context.Context, app *firebase.App) (*Firestore, error) {
	client, err := app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("error getting firestore client: %w", err)
	}
	return &Firestore{client: client}, nil
}

// NewFirestoreFromClient wraps an existing client.
func NewFirestoreFromClient(client *firestore.Client) *Firestore {
	return &Firestore{client: client}
}

type fsSnapshot struct {
	doc *firestore.DocumentSnapshot
}

func (s fsSnapshot) Exists() bool {
	return s.doc != nil && s.doc.Exists()
}

func (s fsSnapshot) DataTo(dst any) error {
	if !s.Exists() {
		return ErrNotFound
	}
	return s.doc.DataTo(dst)
}

func (f *Firestore) doc(ref Ref) *firestore.DocumentRef {
	return f.client.Collection(ref.Collection).Doc(ref.ID)
}

func (f *Firestore) Get(ctx context.Context, ref Ref) (Snapshot, error) {
	snap, err := f.doc(ref).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return fsSnapshot{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", ref, err)
	}
	return fsSnapshot{doc: snap}, nil
}

func (f *Firestore) Create(ctx context.Context, ref Ref, data any) error {
	_, err := f.doc(ref).Create(ctx, data)
	if status.Code(err) == codes.AlreadyExists {
		return fmt.Errorf("%s: %w", ref, ErrAlreadyExists)
	}
	if err != nil {
		return fmt.Errorf("create %s: %w", ref, err)
	}
	return nil
}

func (f *Firestore) Set(ctx context.Context, ref Ref, data any) error {
	if _, err := f.doc(ref).Set(ctx, data); err != nil {
		return fmt.Errorf("set %s: %w", ref, err)
	}
	return nil
}

func (f *Firestore) Merge(ctx context.Context, ref Ref, fields map[string]any) error {
	if _, err := f.doc(ref).Set(ctx, nest(fields), firestore.MergeAll); err != nil {
		return fmt.Errorf("merge %s: %w", ref, err)
	}
	return nil
}

func (f *Firestore) Update(ctx context.Context, ref Ref, fields map[string]any) error {
	updates := make([]firestore.Update, 0, len(fields))
	for path, v := range fields {
		updates = append(updates, firestore.Update{Path: path, Value: v})
	}
	_, err := f.doc(ref).Update(ctx, updates)
	if status.Code(err) == codes.NotFound {
		return fmt.Errorf("%s: %w", ref, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("update %s: %w", ref, err)
	}
	return nil
}

// Increment uses server-side field transforms, so concurrent writers from
// several devices never overwrite each other. The returned snapshot is read
// after the write and may include other writers' increments.
func (f *Firestore) Increment(ctx context.Context, ref Ref, deltas map[string]float64, extra map[string]any) (Snapshot, error) {
	fields := make(map[string]any, len(deltas)+len(extra))
	for path, v := range extra {
		fields[path] = v
	}
	for path, d := range deltas {
		fields[path] = firestore.Increment(d)
	}

	docRef := f.doc(ref)
	if _, err := docRef.Set(ctx, nest(fields), firestore.MergeAll); err != nil {
		return nil, fmt.Errorf("increment %s: %w", ref, err)
	}
	snap, err := docRef.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("read back %s: %w", ref, err)
	}
	return fsSnapshot{doc: snap}, nil
}

func (f *Firestore) Delete(ctx context.Context, ref Ref) error {
	if _, err := f.doc(ref).Delete(ctx); err != nil {
		return fmt.Errorf("delete %s: %w", ref, err)
	}
	return nil
}

// Watch forwards realtime listener snapshots through a coalescing subscription.
func (f *Firestore) Watch(ctx context.Context, ref Ref, fn WatchFunc) (Subscription, error) {
	listenCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	it := f.doc(ref).Snapshots(listenCtx)

	sub := newSubscription(fn, func() {
		cancel()
		it.Stop()
	})

	go forwardSnapshots(listenCtx, ref, it, sub)

	return sub, nil
}

type snapshotIterator interface {
	Next() (*firestore.DocumentSnapshot, error)
}

// forwardSnapshots pushes listener snapshots until the listener fails. The
// client retries transient stream errors itself, and once Next returns an
// error it returns the same error on every later call.
func forwardSnapshots(ctx context.Context, ref Ref, it snapshotIterator, sub *subscription) {
	for {
		snap, err := it.Next()
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			if status.Code(err) != codes.Canceled && !errors.Is(err, iterator.Done) {
				logger.Warn("firestore listener on %s stopped: %v", ref, err)
			}
			sub.push(nil, fmt.Errorf("watch %s: %w", ref, err))
			return
		}
		sub.push(fsSnapshot{doc: snap}, nil)
	}
}

func (f *Firestore) Query(ctx context.Context, q Query) ([]Snapshot, error) {
	fq := f.client.Collection(q.Collection).Query
	for _, w := range q.Where {
		fq = fq.Where(w.Field, "==", w.Value)
	}
	if q.OrderBy != "" {
		dir := firestore.Asc
		if q.Descending {
			dir = firestore.Desc
		}
		fq = fq.OrderBy(q.OrderBy, dir)
	}
	if q.Limit > 0 {
		fq = fq.Limit(q.Limit)
	}

	iter := fq.Documents(ctx)
	defer iter.Stop()

	var out []Snapshot
	for {
		doc, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("query %s: %w", q.Collection, err)
		}
		out = append(out, fsSnapshot{doc: doc})
	}
	return out, nil
}

func (f *Firestore) Ping(ctx context.Context) error {
	_, err := f.Get(ctx, Ref{Collection: "health", ID: "ping"})
	return err
}

func (f *Firestore) Close() error {
	return f.client.Close()
}
