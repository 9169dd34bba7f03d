// Package store holds the in-memory collection of outstanding pending
// requests and drives their deadline-based local expiry.
package store

import (
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"starcall/internal/timer"
	"starcall/pkg/types"
)

// Patch is a partial update applied to one request. Nil fields are left
// untouched, so a server event updating status never clobbers fields it
// did not mention.
type Patch struct {
	Status           *types.RequestStatus
	ResponseDeadline *time.Time
	ScheduledTime    *time.Time
}

// Options configures a Store.
type Options struct {
	// TickInterval is passed to per-request deadline timers. Defaults to
	// timer.DefaultInterval.
	TickInterval time.Duration

	// Now overrides the clock, for tests.
	Now func() time.Time

	// OnTerminal is invoked after a request reaches a terminal status,
	// outside the store lock. Used to clear the durable lastTimestamp
	// hint.
	OnTerminal func(req types.PendingRequest)
}

// Store is the collection of outstanding requests keyed by request id.
// Mutations come from server events or from per-request deadline timers;
// terminal statuses are sticky, so whichever arrives first wins and the
// later one is a no-op.
type Store struct {
	mu       sync.Mutex
	requests map[string]*types.PendingRequest
	timers   map[string]*timer.DeadlineTimer
	seq      map[string]int // insertion order for stable listing
	nextSeq  int

	subscribers []func([]types.PendingRequest)

	tickInterval time.Duration
	now          func() time.Time
	onTerminal   func(req types.PendingRequest)
	logger       zerolog.Logger
}

// New creates an empty request store.
func New(opts Options) *Store {
	interval := opts.TickInterval
	if interval <= 0 {
		interval = timer.DefaultInterval
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Store{
		requests:     make(map[string]*types.PendingRequest),
		timers:       make(map[string]*timer.DeadlineTimer),
		seq:          make(map[string]int),
		tickInterval: interval,
		now:          now,
		onTerminal:   opts.OnTerminal,
		logger:       log.With().Str("component", "store").Logger(),
	}
}

// Subscribe registers an observer invoked with a fresh snapshot after
// every mutation. Observers are called outside the store lock.
func (s *Store) Subscribe(fn func([]types.PendingRequest)) {
	s.mu.Lock()
	s.subscribers = append(s.subscribers, fn)
	s.mu.Unlock()
}

// Add admits a new pending request and starts its deadline timer.
func (s *Store) Add(req *types.PendingRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	if _, exists := s.requests[req.ID]; exists {
		s.mu.Unlock()
		return ErrDuplicateRequest
	}
	cp := *req
	s.requests[req.ID] = &cp
	s.seq[req.ID] = s.nextSeq
	s.nextSeq++
	s.restartTimerLocked(&cp)
	s.mu.Unlock()

	s.logger.Info().Str("request_id", req.ID).Str("provider_id", req.ProviderID).
		Str("action", string(req.Action)).Msg("request added")
	s.notify()
	return nil
}

// Upsert applies a partial update to an existing request. An unknown id
// is a silent no-op (the record may already have been dismissed), as is
// any status change against a request that is already terminal.
func (s *Store) Upsert(id string, patch Patch) {
	s.mu.Lock()
	req, exists := s.requests[id]
	if !exists {
		s.mu.Unlock()
		s.logger.Debug().Str("request_id", id).Msg("update for unknown request ignored")
		return
	}
	if req.Status.Terminal() {
		s.mu.Unlock()
		s.logger.Debug().Str("request_id", id).Str("status", string(req.Status)).
			Msg("update for terminal request ignored")
		return
	}

	if patch.ResponseDeadline != nil {
		d := *patch.ResponseDeadline
		req.ResponseDeadline = &d
	}
	if patch.ScheduledTime != nil {
		ts := *patch.ScheduledTime
		req.ScheduledTime = &ts
	}

	var terminal *types.PendingRequest
	evict := false
	if patch.Status != nil {
		req.Status = *patch.Status
		if req.Status == types.StatusAccepted {
			// Ownership moves to the active-session manager; the record
			// must not exist in both places.
			evict = true
		}
		if req.Status.Terminal() {
			cp := *req
			terminal = &cp
		}
	}

	if evict {
		s.removeLocked(id)
	} else {
		s.restartTimerLocked(req)
	}
	s.mu.Unlock()

	s.logger.Info().Str("request_id", id).Msg("request updated")
	if terminal != nil {
		s.fireTerminal(*terminal)
	}
	s.notify()
}

// Remove dismisses a request, cancelling any live timer for it. Removing
// an unknown id is a no-op.
func (s *Store) Remove(id string) {
	s.mu.Lock()
	_, exists := s.requests[id]
	if exists {
		s.removeLocked(id)
	}
	s.mu.Unlock()

	if exists {
		s.notify()
	}
}

// Get returns a copy of one request.
func (s *Store) Get(id string) (types.PendingRequest, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, exists := s.requests[id]
	if !exists {
		return types.PendingRequest{}, false
	}
	return *req, true
}

// List returns a snapshot of all requests in insertion order.
func (s *Store) List() []types.PendingRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// OutstandingCount reports the number of non-terminal requests. Feeds the
// eligibility gate's unified commitment cap.
func (s *Store) OutstandingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, req := range s.requests {
		if !req.Status.Terminal() {
			n++
		}
	}
	return n
}

// HasOutstanding reports whether a non-terminal request exists for the
// provider. Terminal records still visible to the user do not count.
func (s *Store) HasOutstanding(providerID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, req := range s.requests {
		if req.ProviderID == providerID && !req.Status.Terminal() {
			return true
		}
	}
	return false
}

// Clear stops every timer and drops all records. Called on logout.
func (s *Store) Clear() {
	s.mu.Lock()
	for id, tm := range s.timers {
		tm.Stop()
		delete(s.timers, id)
	}
	s.requests = make(map[string]*types.PendingRequest)
	s.seq = make(map[string]int)
	s.mu.Unlock()

	s.notify()
}

// expire is the deadline-timer callback for one request. The first of a
// server event or this local expiry wins; the status check makes the
// loser a no-op.
func (s *Store) expire(id string) {
	s.mu.Lock()
	req, exists := s.requests[id]
	if !exists || req.Status.Terminal() {
		s.mu.Unlock()
		return
	}

	var terminal *types.PendingRequest
	switch req.Status {
	case types.StatusRequested:
		req.Status = types.StatusExpired
		cp := *req
		terminal = &cp
	case types.StatusScheduled:
		// Scheduled time reached with no server event: surface the
		// request as accepted; the accepted event, when it arrives,
		// carries the consultation and evicts the record.
		req.Status = types.StatusAccepted
		cp := *req
		terminal = &cp
	}
	if tm, ok := s.timers[id]; ok {
		tm.Stop()
		delete(s.timers, id)
	}
	s.mu.Unlock()

	if terminal != nil {
		s.logger.Info().Str("request_id", id).Str("status", string(terminal.Status)).
			Msg("request deadline reached")
		s.fireTerminal(*terminal)
		s.notify()
	}
}

// restartTimerLocked cancels any prior timer for the request and starts a
// new one against its active deadline, if it has one. Caller holds s.mu.
func (s *Store) restartTimerLocked(req *types.PendingRequest) {
	if tm, ok := s.timers[req.ID]; ok {
		tm.Stop()
		delete(s.timers, req.ID)
	}
	deadline, ok := req.ActiveDeadline()
	if !ok {
		return
	}
	id := req.ID
	tm := timer.New(deadline, timer.Options{
		Interval: s.tickInterval,
		Now:      s.now,
		OnExpire: func() { s.expire(id) },
	})
	s.timers[id] = tm
	tm.Start()
}

func (s *Store) removeLocked(id string) {
	if tm, ok := s.timers[id]; ok {
		tm.Stop()
		delete(s.timers, id)
	}
	delete(s.requests, id)
	delete(s.seq, id)
}

func (s *Store) snapshotLocked() []types.PendingRequest {
	out := make([]types.PendingRequest, 0, len(s.requests))
	for _, req := range s.requests {
		out = append(out, *req)
	}
	sort.Slice(out, func(i, j int) bool {
		return s.seq[out[i].ID] < s.seq[out[j].ID]
	})
	return out
}

func (s *Store) notify() {
	s.mu.Lock()
	subs := make([]func([]types.PendingRequest), len(s.subscribers))
	copy(subs, s.subscribers)
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	for _, fn := range subs {
		fn(snapshot)
	}
}

func (s *Store) fireTerminal(req types.PendingRequest) {
	if s.onTerminal != nil {
		s.onTerminal(req)
	}
}
