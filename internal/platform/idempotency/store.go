package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"
	"time"
)

// Status is the lifecycle state of a stored idempotency record.
type Status string

const (
	// DefaultTTL is how long a completed record stays replayable.
	DefaultTTL = 24 * time.Hour

	// StatusPending marks a key that is reserved but has no stored response yet.
	StatusPending Status = "pending"
	// StatusCompleted marks a key whose response can be replayed.
	StatusCompleted Status = "completed"
)

// ReservationState is the outcome of a Reserve call.
type ReservationState int

const (
	// ReservationNew means the key was free and the caller should run the request.
	ReservationNew ReservationState = iota
	// ReservationReplay means a stored response exists and should be returned as-is.
	ReservationReplay
	// ReservationInFlight means another request holds the key right now.
	ReservationInFlight
)

// Record is the persisted response snapshot for an idempotency key.
type Record struct {
	Key            string
	Fingerprint    string
	Status         Status
	ResponseStatus int
	ResponseBody   []byte
	ContentType    string
	CreatedAt      time.Time
	ExpiresAt      time.Time
}

// Reservation bundles the reservation state with the stored record, if any.
type Reservation struct {
	State  ReservationState
	Record Record
}

// ErrFingerprintMismatch is returned when a key is reused with a different request payload.
var ErrFingerprintMismatch = errors.New("idempotency: key reused with different request")

// Store persists idempotency reservations and completed responses.
// Expired records are treated as absent; physical cleanup is left to a
// storage-level TTL policy on the expiry field.
type Store interface {
	Reserve(ctx context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Reservation, error)
	Complete(ctx context.Context, key, fingerprint string, status int, contentType string, body []byte, now time.Time, ttl time.Duration) error
	Release(ctx context.Context, key string) error
}

// Fingerprint derives a stable digest for the request so a reused key with a
// different payload can be rejected.
func Fingerprint(r *http.Request, body []byte, requester string) string {
	var b strings.Builder
	b.WriteString(strings.ToUpper(r.Method))
	b.WriteString("|")
	b.WriteString(r.URL.Path)
	b.WriteString("|")
	b.WriteString(requester)
	b.WriteString("|")
	if len(body) > 0 {
		b.WriteString(sha256Hex(body))
	}
	return sha256Hex([]byte(b.String()))
}

// recordID hashes the scoped key so arbitrary client input never becomes a
// raw document id.
func recordID(key string) string {
	return sha256Hex([]byte(strings.TrimSpace(key)))
}

func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
