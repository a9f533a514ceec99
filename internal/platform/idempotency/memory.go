package idempotency

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps idempotency records in process memory. Order sessions live in
// memory too, so nothing is lost that a restart would not lose anyway.
type MemoryStore struct {
	mu       sync.Mutex
	records  map[string]Record
	capacity int
}

// MemoryOption customises a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithCapacity bounds the number of live records. Zero means unbounded.
func WithCapacity(n int) MemoryOption {
	return func(s *MemoryStore) {
		if n > 0 {
			s.capacity = n
		}
	}
}

// NewMemoryStore returns an empty store.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{records: make(map[string]Record)}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Len reports how many records are held, including expired ones not yet swept.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

func (s *MemoryStore) Reserve(_ context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Reservation, error) {
	now = now.UTC()
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if record, ok := s.liveLocked(key, now); ok {
		switch {
		case record.Fingerprint != fingerprint:
			return Reservation{}, ErrFingerprintMismatch
		case record.Completed:
			return Reservation{State: ReservationStateCompleted, Record: record}, nil
		default:
			return Reservation{State: ReservationStatePending}, nil
		}
	}

	if s.capacity > 0 && len(s.records) >= s.capacity {
		s.sweepLocked(now, 0)
		if len(s.records) >= s.capacity {
			return Reservation{}, ErrCapacityExceeded
		}
	}
	s.records[key] = Record{Fingerprint: fingerprint, ExpiresAt: now.Add(ttl)}
	return Reservation{State: ReservationStateNew}, nil
}

func (s *MemoryStore) SaveResponse(_ context.Context, key, fingerprint string, resp Response, now time.Time, ttl time.Duration) error {
	now = now.UTC()
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if record, ok := s.records[key]; ok && record.Fingerprint != fingerprint {
		return ErrFingerprintMismatch
	}
	s.records[key] = Record{
		Fingerprint: fingerprint,
		Completed:   true,
		Response:    resp.clone(),
		ExpiresAt:   now.Add(ttl),
	}
	return nil
}

// Release drops a pending reservation so the client can retry with the same key.
func (s *MemoryStore) Release(_ context.Context, key, fingerprint string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if record, ok := s.records[key]; ok && record.Fingerprint == fingerprint {
		delete(s.records, key)
	}
	return nil
}

// CleanupExpired removes up to limit expired records. A non-positive limit removes all.
func (s *MemoryStore) CleanupExpired(_ context.Context, now time.Time, limit int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sweepLocked(now.UTC(), limit), nil
}

func (s *MemoryStore) liveLocked(key string, now time.Time) (Record, bool) {
	record, ok := s.records[key]
	if !ok {
		return Record{}, false
	}
	if !now.Before(record.ExpiresAt) {
		delete(s.records, key)
		return Record{}, false
	}
	return record, true
}

func (s *MemoryStore) sweepLocked(now time.Time, limit int) int {
	removed := 0
	for key, record := range s.records {
		if limit > 0 && removed >= limit {
			break
		}
		if now.Before(record.ExpiresAt) {
			continue
		}
		delete(s.records, key)
		removed++
	}
	return removed
}
