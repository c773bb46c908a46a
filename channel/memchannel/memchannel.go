// Package memchannel provides an in-memory channel.Store for testing.
// It mirrors the substrate's observable behavior: server-assigned sequential
// identifiers, a per-message payload limit, a bounded recent-history window
// and age-restricted bulk deletion, with hooks for failure injection.
package memchannel

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/TotoCodeFR/DaaD/channel"
)

// DefaultMaxPayload matches the real substrate's per-message payload cap.
const DefaultMaxPayload = 4000

// DefaultBulkMaxAge is the age past which bulk deletion is rejected.
const DefaultBulkMaxAge = 14 * 24 * time.Hour

// Store is an in-memory channel.Store implementation.
// Thread-safe for concurrent use from multiple goroutines.
type Store struct {
	mu       sync.RWMutex
	messages map[string]*stored
	order    []string // ids in append order
	nextID   uint64

	maxPayload int
	bulkMaxAge time.Duration

	// Failure injection
	sendErr        error
	getErr         error
	rejectBulk     bool
	deleteFailures map[string]error

	// Call counters for verification
	sends       int
	gets        int
	recents     int
	bulkDeletes int
	deletes     int
}

type stored struct {
	msg       channel.Message
	createdAt time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithMaxPayload overrides the per-message payload limit.
func WithMaxPayload(limit int) Option {
	return func(s *Store) {
		if limit > 0 {
			s.maxPayload = limit
		}
	}
}

// WithBulkMaxAge overrides the bulk-delete age threshold.
func WithBulkMaxAge(age time.Duration) Option {
	return func(s *Store) {
		if age > 0 {
			s.bulkMaxAge = age
		}
	}
}

// New creates an empty in-memory store.
func New(opts ...Option) *Store {
	s := &Store{
		messages:       make(map[string]*stored),
		maxPayload:     DefaultMaxPayload,
		bulkMaxAge:     DefaultBulkMaxAge,
		deleteFailures: make(map[string]error),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Send creates a new message with the next sequential identifier.
func (s *Store) Send(_ context.Context, label, payload, next string) (*channel.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sends++

	if s.sendErr != nil {
		return nil, s.sendErr
	}
	if len(payload) > s.maxPayload {
		return nil, fmt.Errorf("payload length %d: %w", len(payload), channel.ErrPayloadTooLarge)
	}

	s.nextID++
	id := strconv.FormatUint(s.nextID, 10)
	msg := channel.Message{
		ID:      id,
		Label:   label,
		Payload: payload,
		Next:    next,
	}
	s.messages[id] = &stored{msg: msg, createdAt: time.Now()}
	s.order = append(s.order, id)

	out := msg
	return &out, nil
}

// Get fetches a message by identifier.
func (s *Store) Get(_ context.Context, id string) (*channel.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.gets++

	if s.getErr != nil {
		return nil, s.getErr
	}

	st, ok := s.messages[id]
	if !ok {
		return nil, fmt.Errorf("message %s: %w", id, channel.ErrNotFound)
	}
	out := st.msg
	return &out, nil
}

// Recent returns up to limit messages, most recent first.
func (s *Store) Recent(_ context.Context, limit int) ([]*channel.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.recents++

	if limit <= 0 {
		return nil, nil
	}

	var out []*channel.Message
	for i := len(s.order) - 1; i >= 0 && len(out) < limit; i-- {
		if st, ok := s.messages[s.order[i]]; ok {
			msg := st.msg
			out = append(out, &msg)
		}
	}
	return out, nil
}

// BulkDelete removes the given messages in one operation, or rejects the
// whole batch when any message exceeds the age threshold.
func (s *Store) BulkDelete(_ context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.bulkDeletes++

	if s.rejectBulk {
		return channel.ErrBulkRejected
	}

	cutoff := time.Now().Add(-s.bulkMaxAge)
	for _, id := range ids {
		if st, ok := s.messages[id]; ok && st.createdAt.Before(cutoff) {
			return fmt.Errorf("message %s past age threshold: %w", id, channel.ErrBulkRejected)
		}
	}

	for _, id := range ids {
		delete(s.messages, id)
	}
	return nil
}

// Delete removes a single message regardless of age.
func (s *Store) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.deletes++

	if err, ok := s.deleteFailures[id]; ok {
		return err
	}
	if _, ok := s.messages[id]; !ok {
		return fmt.Errorf("message %s: %w", id, channel.ErrNotFound)
	}
	delete(s.messages, id)
	return nil
}

// FailSends makes subsequent Send calls return err (nil restores normal behavior).
func (s *Store) FailSends(err error) {
	s.mu.Lock()
	s.sendErr = err
	s.mu.Unlock()
}

// FailGets makes subsequent Get calls return err (nil restores normal behavior).
func (s *Store) FailGets(err error) {
	s.mu.Lock()
	s.getErr = err
	s.mu.Unlock()
}

// RejectBulkDeletes forces BulkDelete to return ErrBulkRejected.
func (s *Store) RejectBulkDeletes(reject bool) {
	s.mu.Lock()
	s.rejectBulk = reject
	s.mu.Unlock()
}

// FailDelete makes Delete for a specific id return err.
func (s *Store) FailDelete(id string, err error) {
	s.mu.Lock()
	s.deleteFailures[id] = err
	s.mu.Unlock()
}

// AgeMessage backdates a message's creation time, for bulk-delete age tests.
func (s *Store) AgeMessage(id string, age time.Duration) {
	s.mu.Lock()
	if st, ok := s.messages[id]; ok {
		st.createdAt = time.Now().Add(-age)
	}
	s.mu.Unlock()
}

// Corrupt rewrites a stored message in place, for chain-integrity tests.
func (s *Store) Corrupt(id string, fn func(*channel.Message)) {
	s.mu.Lock()
	if st, ok := s.messages[id]; ok {
		fn(&st.msg)
	}
	s.mu.Unlock()
}

// Has reports whether a message with the given id still exists.
func (s *Store) Has(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.messages[id]
	return ok
}

// Len returns the number of live messages.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

// Sends returns the number of Send calls observed.
func (s *Store) Sends() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sends
}

// BulkDeleteCalls returns the number of BulkDelete calls observed.
func (s *Store) BulkDeleteCalls() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bulkDeletes
}

// DeleteCalls returns the number of single Delete calls observed.
func (s *Store) DeleteCalls() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.deletes
}

var _ channel.Store = (*Store)(nil)
