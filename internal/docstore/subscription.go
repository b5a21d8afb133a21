package docstore

import "sync"

// subscription delivers snapshots to one WatchFunc from its own goroutine.
// Deliveries are coalesced: a slow callback only ever sees the latest state.
type subscription struct {
	fn     WatchFunc
	onStop func()

	mu      sync.Mutex
	stopped bool
	pending bool
	snap    Snapshot
	err     error

	signal   chan struct{}
	done     chan struct{}
	exited   chan struct{}
	stopOnce sync.Once
}

func newSubscription(fn WatchFunc, onStop func()) *subscription {
	s := &subscription{
		fn:     fn,
		onStop: onStop,
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
		exited: make(chan struct{}),
	}
	go s.loop()
	return s
}

func (s *subscription) push(snap Snapshot, err error) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.snap, s.err, s.pending = snap, err, true
	s.mu.Unlock()

	select {
	case s.signal <- struct{}{}:
	default:
	}
}

func (s *subscription) loop() {
	defer close(s.exited)
	for {
		select {
		case <-s.done:
			return
		case <-s.signal:
		}

		s.mu.Lock()
		if s.stopped || !s.pending {
			s.mu.Unlock()
			continue
		}
		snap, err := s.snap, s.err
		s.snap, s.err, s.pending = nil, nil, false
		s.mu.Unlock()

		s.fn(snap, err)
	}
}

// Stop must not be called from inside the subscription's own callback.
func (s *subscription) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.stopped = true
		s.mu.Unlock()
		close(s.done)
		if s.onStop != nil {
			s.onStop()
		}
	})
	<-s.exited
}

// hub fans snapshots out to the subscriptions of each document.
type hub struct {
	mu   sync.Mutex
	subs map[Ref]map[*subscription]struct{}
}

func newHub() *hub {
	return &hub{subs: make(map[Ref]map[*subscription]struct{})}
}

func (h *hub) add(ref Ref, fn WatchFunc) *subscription {
	var sub *subscription
	sub = newSubscription(fn, func() { h.remove(ref, sub) })

	h.mu.Lock()
	set, ok := h.subs[ref]
	if !ok {
		set = make(map[*subscription]struct{})
		h.subs[ref] = set
	}
	set[sub] = struct{}{}
	h.mu.Unlock()
	return sub
}

func (h *hub) remove(ref Ref, sub *subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if set, ok := h.subs[ref]; ok {
		delete(set, sub)
		if len(set) == 0 {
			delete(h.subs, ref)
		}
	}
}

func (h *hub) watched(ref Ref) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[ref]) > 0
}

func (h *hub) publish(ref Ref, snap Snapshot, err error) {
	h.mu.Lock()
	targets := make([]*subscription, 0, len(h.subs[ref]))
	for sub := range h.subs[ref] {
		targets = append(targets, sub)
	}
	h.mu.Unlock()

	for _, sub := range targets {
		sub.push(snap, err)
	}
}

func (h *hub) stopAll() {
	h.mu.Lock()
	var all []*subscription
	for _, set := range h.subs {
		for sub := range set {
			all = append(all, sub)
		}
	}
	h.mu.Unlock()

	for _, sub := range all {
		sub.Stop()
	}
}
