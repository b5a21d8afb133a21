package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// Memory is an in-process Store for tests and local development.
type Memory struct {
	mu   sync.Mutex
	docs map[Ref][]byte
	hub  *hub
}

func NewMemory() *Memory {
	return &Memory{
		docs: make(map[Ref][]byte),
		hub:  newHub(),
	}
}

func (m *Memory) snapshot(ref Ref) Snapshot {
	raw, ok := m.docs[ref]
	if !ok {
		return missing()
	}
	return jsonSnapshot{data: raw}
}

// write stores doc and notifies watchers. Callers hold m.mu so notifications
// are published in write order.
func (m *Memory) write(ref Ref, doc document) (Snapshot, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", ref, err)
	}
	m.docs[ref] = raw
	snap := jsonSnapshot{data: raw}
	m.hub.publish(ref, snap, nil)
	return snap, nil
}

func (m *Memory) load(ref Ref) (document, bool, error) {
	raw, ok := m.docs[ref]
	if !ok {
		return document{}, false, nil
	}
	var doc document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, true, fmt.Errorf("decode %s: %w", ref, err)
	}
	return doc, true, nil
}

func (m *Memory) Get(ctx context.Context, ref Ref) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshot(ref), nil
}

func (m *Memory) Create(ctx context.Context, ref Ref, data any) error {
	doc, err := toDocument(data)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[ref]; ok {
		return fmt.Errorf("%s: %w", ref, ErrAlreadyExists)
	}
	_, err = m.write(ref, doc)
	return err
}

func (m *Memory) Set(ctx context.Context, ref Ref, data any) error {
	doc, err := toDocument(data)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	_, err = m.write(ref, doc)
	return err
}

func (m *Memory) Merge(ctx context.Context, ref Ref, fields map[string]any) error {
	return m.mutate(ref, true, func(doc document) error {
		return doc.setFields(fields)
	})
}

func (m *Memory) Update(ctx context.Context, ref Ref, fields map[string]any) error {
	return m.mutate(ref, false, func(doc document) error {
		return doc.setFields(fields)
	})
}

func (m *Memory) Increment(ctx context.Context, ref Ref, deltas map[string]float64, extra map[string]any) (Snapshot, error) {
	var out Snapshot
	err := m.mutateSnap(ref, true, func(doc document) error {
		doc.increment(deltas)
		return doc.setFields(extra)
	}, &out)
	return out, err
}

func (m *Memory) mutate(ref Ref, create bool, fn func(document) error) error {
	return m.mutateSnap(ref, create, fn, nil)
}

func (m *Memory) mutateSnap(ref Ref, create bool, fn func(document) error, out *Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	doc, exists, err := m.load(ref)
	if err != nil {
		return err
	}
	if !exists && !create {
		return fmt.Errorf("%s: %w", ref, ErrNotFound)
	}
	if err := fn(doc); err != nil {
		return err
	}
	snap, err := m.write(ref, doc)
	if err != nil {
		return err
	}
	if out != nil {
		*out = snap
	}
	return nil
}

func (m *Memory) Delete(ctx context.Context, ref Ref) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[ref]; !ok {
		return nil
	}
	delete(m.docs, ref)
	m.hub.publish(ref, missing(), nil)
	return nil
}

func (m *Memory) Watch(ctx context.Context, ref Ref, fn WatchFunc) (Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub := m.hub.add(ref, fn)
	sub.push(m.snapshot(ref), nil)
	return sub, nil
}

func (m *Memory) Query(ctx context.Context, q Query) ([]Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	type row struct {
		doc document
		raw []byte
	}

	m.mu.Lock()
	var rows []row
	for ref, raw := range m.docs {
		if ref.Collection != q.Collection {
			continue
		}
		var doc document
		if err := json.Unmarshal(raw, &doc); err != nil {
			m.mu.Unlock()
			return nil, fmt.Errorf("decode %s: %w", ref, err)
		}
		if doc.matches(q.Where) {
			rows = append(rows, row{doc: doc, raw: raw})
		}
	}
	m.mu.Unlock()

	if q.OrderBy != "" {
		sort.SliceStable(rows, func(i, j int) bool {
			a, _ := rows[i].doc.get(q.OrderBy)
			b, _ := rows[j].doc.get(q.OrderBy)
			if q.Descending {
				return less(b, a)
			}
			return less(a, b)
		})
	}
	if q.Limit > 0 && len(rows) > q.Limit {
		rows = rows[:q.Limit]
	}

	out := make([]Snapshot, len(rows))
	for i, r := range rows {
		out[i] = jsonSnapshot{data: r.raw}
	}
	return out, nil
}

func (m *Memory) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (m *Memory) Close() error {
	m.hub.stopAll()
	return nil
}
