package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"time"
)

// DefaultTTL is how long a completed response stays replayable.
const DefaultTTL = 24 * time.Hour

// ReservationState is the outcome of Store.Reserve.
type ReservationState int

const (
	// ReservationStateNew means the caller owns the key and should run the handler.
	ReservationStateNew ReservationState = iota
	// ReservationStateCompleted means the stored response should be replayed.
	ReservationStateCompleted
	// ReservationStatePending means another request holds the key.
	ReservationStatePending
)

// Reservation is returned by Store.Reserve. Record is set for completed keys.
type Reservation struct {
	State  ReservationState
	Record Record
}

// Record is one key's state. Response is only meaningful once Completed is set.
type Record struct {
	Fingerprint string
	Completed   bool
	Response    Response
	ExpiresAt   time.Time
}

// Response is a captured handler response.
type Response struct {
	Status  int
	Headers http.Header
	Body    []byte
}

// Store keeps idempotency reservations and responses.
type Store interface {
	Reserve(ctx context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Reservation, error)
	SaveResponse(ctx context.Context, key, fingerprint string, resp Response, now time.Time, ttl time.Duration) error
	Release(ctx context.Context, key, fingerprint string) error
	CleanupExpired(ctx context.Context, now time.Time, limit int) (int, error)
}

var (
	// ErrFingerprintMismatch is returned when a key is reused for a different request.
	ErrFingerprintMismatch = errors.New("idempotency: key reserved for different request fingerprint")
	// ErrCapacityExceeded is returned when the store cannot accept another live reservation.
	ErrCapacityExceeded = errors.New("idempotency: store capacity exceeded")
)

// replayableHeaders are the response headers worth replaying. Hop-by-hop and
// per-response headers such as Date are regenerated by net/http.
var replayableHeaders = []string{"Content-Type", "Cache-Control", "Location", "Retry-After"}

func hashHex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func (r Response) clone() Response {
	out := Response{Status: r.Status}
	if len(r.Body) > 0 {
		out.Body = append([]byte(nil), r.Body...)
	}
	for _, name := range replayableHeaders {
		if values := r.Headers.Values(name); len(values) > 0 {
			if out.Headers == nil {
				out.Headers = make(http.Header, len(replayableHeaders))
			}
			out.Headers[name] = append([]string(nil), values...)
		}
	}
	return out
}
