package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"nutriLensAPI/internal/logger"
)

const notifyChannel = "documents"

// Postgres stores documents as JSONB rows and uses LISTEN/NOTIFY to feed
// watchers.
type Postgres struct {
	pool *pgxpool.Pool
	hub  *hub

	// fetchMu serialises watcher reads so a slower, older read can never be
	// published after a newer one.
	fetchMu sync.Mutex

	cancel context.CancelFunc
	done   chan struct{}
}

// OpenPostgres runs migrations, connects a pool and starts the notification
// listener.
func OpenPostgres(ctx context.Context, databaseURL string) (*Postgres, error) {
	if err := Migrate(databaseURL); err != nil {
		return nil, err
	}

	poolConfig, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}
	poolConfig.MaxConns = 25
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return NewPostgres(pool), nil
}

// NewPostgres wraps an existing pool. The schema must already be migrated.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	ctx, cancel := context.WithCancel(context.Background())
	p := &Postgres{
		pool:   pool,
		hub:    newHub(),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go p.listen(ctx)
	return p
}

func (p *Postgres) Get(ctx context.Context, ref Ref) (Snapshot, error) {
	var raw []byte
	err := p.pool.QueryRow(ctx,
		`SELECT data FROM documents WHERE collection = $1 AND id = $2`,
		ref.Collection, ref.ID,
	).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return missing(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", ref, err)
	}
	return jsonSnapshot{data: raw}, nil
}

func (p *Postgres) Create(ctx context.Context, ref Ref, data any) error {
	raw, err := encode(data)
	if err != nil {
		return err
	}
	return p.inTx(ctx, ref, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`INSERT INTO documents (collection, id, data) VALUES ($1, $2, $3)
			 ON CONFLICT (collection, id) DO NOTHING`,
			ref.Collection, ref.ID, raw,
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrAlreadyExists
		}
		return nil
	})
}

func (p *Postgres) Set(ctx context.Context, ref Ref, data any) error {
	raw, err := encode(data)
	if err != nil {
		return err
	}
	return p.inTx(ctx, ref, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`INSERT INTO documents (collection, id, data) VALUES ($1, $2, $3)
			 ON CONFLICT (collection, id) DO UPDATE SET data = EXCLUDED.data, update_time = NOW()`,
			ref.Collection, ref.ID, raw,
		)
		return err
	})
}

func (p *Postgres) Merge(ctx context.Context, ref Ref, fields map[string]any) error {
	_, err := p.mutate(ctx, ref, true, func(doc document) error {
		return doc.setFields(fields)
	})
	return err
}

func (p *Postgres) Update(ctx context.Context, ref Ref, fields map[string]any) error {
	_, err := p.mutate(ctx, ref, false, func(doc document) error {
		return doc.setFields(fields)
	})
	return err
}

// Increment locks the row for the duration of the read-modify-write, so
// concurrent increments serialise and none is lost.
func (p *Postgres) Increment(ctx context.Context, ref Ref, deltas map[string]float64, extra map[string]any) (Snapshot, error) {
	raw, err := p.mutate(ctx, ref, true, func(doc document) error {
		doc.increment(deltas)
		return doc.setFields(extra)
	})
	if err != nil {
		return nil, err
	}
	return jsonSnapshot{data: []byte(raw)}, nil
}

func (p *Postgres) mutate(ctx context.Context, ref Ref, create bool, fn func(document) error) (string, error) {
	var out string
	err := p.inTx(ctx, ref, func(tx pgx.Tx) error {
		if create {
			if _, err := tx.Exec(ctx,
				`INSERT INTO documents (collection, id) VALUES ($1, $2)
				 ON CONFLICT (collection, id) DO NOTHING`,
				ref.Collection, ref.ID,
			); err != nil {
				return err
			}
		}

		var raw []byte
		err := tx.QueryRow(ctx,
			`SELECT data FROM documents WHERE collection = $1 AND id = $2 FOR UPDATE`,
			ref.Collection, ref.ID,
		).Scan(&raw)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}

		doc := document{}
		if err := json.Unmarshal(raw, &doc); err != nil {
			return fmt.Errorf("decode: %w", err)
		}
		if err := fn(doc); err != nil {
			return err
		}

		out, err = encode(doc)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx,
			`UPDATE documents SET data = $3, update_time = NOW() WHERE collection = $1 AND id = $2`,
			ref.Collection, ref.ID, out,
		)
		return err
	})
	return out, err
}

func (p *Postgres) Delete(ctx context.Context, ref Ref) error {
	return p.inTx(ctx, ref, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`DELETE FROM documents WHERE collection = $1 AND id = $2`,
			ref.Collection, ref.ID,
		)
		return err
	})
}

// inTx runs fn in a transaction and queues a change notification for ref,
// delivered by Postgres on commit.
func (p *Postgres) inTx(ctx context.Context, ref Ref, fn func(pgx.Tx) error) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin %s: %w", ref, err)
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return fmt.Errorf("%s: %w", ref, err)
	}
	if _, err := tx.Exec(ctx, `SELECT pg_notify($1, $2)`, notifyChannel, ref.String()); err != nil {
		return fmt.Errorf("notify %s: %w", ref, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit %s: %w", ref, err)
	}
	return nil
}

func (p *Postgres) Watch(ctx context.Context, ref Ref, fn WatchFunc) (Subscription, error) {
	sub := p.hub.add(ref, fn)

	p.fetchMu.Lock()
	snap, err := p.Get(ctx, ref)
	sub.push(snap, err)
	p.fetchMu.Unlock()

	return sub, nil
}

func (p *Postgres) Query(ctx context.Context, q Query) ([]Snapshot, error) {
	var (
		sb   strings.Builder
		args = []any{q.Collection}
	)
	sb.WriteString(`SELECT data FROM documents WHERE collection = $1`)
	for _, f := range q.Where {
		val, err := encode(f.Value)
		if err != nil {
			return nil, err
		}
		args = append(args, strings.Split(f.Field, "."), val)
		fmt.Fprintf(&sb, ` AND data #> $%d = $%d::jsonb`, len(args)-1, len(args))
	}
	if q.OrderBy != "" {
		args = append(args, strings.Split(q.OrderBy, "."))
		fmt.Fprintf(&sb, ` ORDER BY data #> $%d`, len(args))
		if q.Descending {
			sb.WriteString(` DESC`)
		}
	}
	if q.Limit > 0 {
		args = append(args, q.Limit)
		fmt.Fprintf(&sb, ` LIMIT $%d`, len(args))
	}

	rows, err := p.pool.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", q.Collection, err)
	}
	defer rows.Close()

	var out []Snapshot
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan %s: %w", q.Collection, err)
		}
		out = append(out, jsonSnapshot{data: raw})
	}
	return out, rows.Err()
}

func (p *Postgres) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

func (p *Postgres) Close() error {
	p.cancel()
	<-p.done
	p.hub.stopAll()
	p.pool.Close()
	return nil
}

// listen holds one connection in LISTEN mode and refreshes watched documents
// when they change. It reconnects until Close.
func (p *Postgres) listen(ctx context.Context) {
	defer close(p.done)
	for {
		err := p.listenOnce(ctx)
		if ctx.Err() != nil {
			return
		}
		logger.Warn("document listener disconnected: %v", err)
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Second):
		}
	}
}

func (p *Postgres) listenOnce(ctx context.Context) error {
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+notifyChannel); err != nil {
		return err
	}
	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return err
		}
		coll, id, ok := strings.Cut(n.Payload, "/")
		if !ok {
			continue
		}
		ref := Ref{Collection: coll, ID: id}
		if p.hub.watched(ref) {
			p.refresh(ctx, ref)
		}
	}
}

func (p *Postgres) refresh(ctx context.Context, ref Ref) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	p.fetchMu.Lock()
	defer p.fetchMu.Unlock()
	snap, err := p.Get(ctx, ref)
	p.hub.publish(ref, snap, err)
}

func encode(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode document: %w", err)
	}
	return string(raw), nil
}
