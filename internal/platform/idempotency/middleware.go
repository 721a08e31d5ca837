package idempotency

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/maplemarket/api/internal/platform/auth"
	"github.com/maplemarket/api/internal/platform/httpx"
)

const (
	headerKey    = "Idempotency-Key"
	headerReplay = "X-Idempotent-Replay"
)

type middlewareConfig struct {
	ttl    time.Duration
	clock  func() time.Time
	logger func(ctx context.Context, event string, fields map[string]any)
}

// MiddlewareOption customises middleware behaviour.
type MiddlewareOption func(*middlewareConfig)

// WithTTL sets how long completed responses stay replayable.
func WithTTL(ttl time.Duration) MiddlewareOption {
	return func(cfg *middlewareConfig) {
		if ttl > 0 {
			cfg.ttl = ttl
		}
	}
}

// WithClock overrides the time source.
func WithClock(clock func() time.Time) MiddlewareOption {
	return func(cfg *middlewareConfig) {
		if clock != nil {
			cfg.clock = clock
		}
	}
}

// WithEventLogger reports store failures to the provided logger.
func WithEventLogger(logger func(ctx context.Context, event string, fields map[string]any)) MiddlewareOption {
	return func(cfg *middlewareConfig) {
		if logger != nil {
			cfg.logger = logger
		}
	}
}

// Middleware replays stored responses for repeated requests carrying the same
// Idempotency-Key header. Requests without the header pass through untouched.
func Middleware(store Store, opts ...MiddlewareOption) func(http.Handler) http.Handler {
	cfg := middlewareConfig{
		ttl:    DefaultTTL,
		clock:  time.Now,
		logger: func(context.Context, string, map[string]any) {},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	return func(next http.Handler) http.Handler {
		if store == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := strings.TrimSpace(r.Header.Get(headerKey))
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()
			body, err := bufferBody(r)
			if err != nil {
				httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "unable to read request body", http.StatusBadRequest))
				return
			}

			requester := requesterID(ctx)
			scoped := requester + "|" + key
			fingerprint := Fingerprint(r, body, requester)
			now := cfg.clock().UTC()

			reservation, err := store.Reserve(ctx, scoped, fingerprint, now, cfg.ttl)
			if err != nil {
				writeReserveError(ctx, w, cfg, err)
				return
			}

			switch reservation.State {
			case ReservationReplay:
				writeReplay(w, reservation.Record)
				return
			case ReservationInFlight:
				httpx.WriteError(ctx, w, httpx.NewError("idempotency_in_progress", "a request with this idempotency key is still processing", http.StatusConflict))
				return
			}

			recorder := newRecorder(w)
			next.ServeHTTP(recorder, r)

			if err := store.Complete(ctx, scoped, fingerprint, recorder.status(), recorder.contentType(), recorder.body.Bytes(), cfg.clock().UTC(), cfg.ttl); err != nil {
				cfg.logger(ctx, "idempotency.save_failed", map[string]any{"error": err.Error()})
				if releaseErr := store.Release(ctx, scoped); releaseErr != nil {
					cfg.logger(ctx, "idempotency.release_failed", map[string]any{"error": releaseErr.Error()})
				}
			}
			recorder.flush()
		})
	}
}

func writeReserveError(ctx context.Context, w http.ResponseWriter, cfg middlewareConfig, err error) {
	if errors.Is(err, ErrFingerprintMismatch) {
		httpx.WriteError(ctx, w, httpx.NewError("idempotency_key_conflict", "idempotency key was already used for a different request", http.StatusConflict))
		return
	}
	cfg.logger(ctx, "idempotency.reserve_failed", map[string]any{"error": err.Error()})
	httpx.WriteError(ctx, w, httpx.NewError("service_unavailable", "unable to process idempotency key", http.StatusServiceUnavailable))
}

func writeReplay(w http.ResponseWriter, record Record) {
	if record.ContentType != "" {
		w.Header().Set("Content-Type", record.ContentType)
	}
	w.Header().Set(headerReplay, "true")
	status := record.ResponseStatus
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	if len(record.ResponseBody) > 0 {
		_, _ = w.Write(record.ResponseBody)
	}
}

func bufferBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	data, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	if err := r.Body.Close(); err != nil {
		return nil, err
	}
	r.Body = io.NopCloser(bytes.NewReader(data))
	return data, nil
}

func requesterID(ctx context.Context) string {
	if identity, ok := auth.IdentityFromContext(ctx); ok && identity != nil && identity.UID != "" {
		return identity.UID
	}
	return "anonymous"
}

// recorder buffers the handler output so it can be persisted before reaching
// the client.
type recorder struct {
	parent     http.ResponseWriter
	statusCode int
	body       bytes.Buffer
}

func newRecorder(parent http.ResponseWriter) *recorder {
	return &recorder{parent: parent}
}

func (r *recorder) Header() http.Header {
	return r.parent.Header()
}

func (r *recorder) WriteHeader(status int) {
	if r.statusCode == 0 && status > 0 {
		r.statusCode = status
	}
}

func (r *recorder) Write(data []byte) (int, error) {
	if r.statusCode == 0 {
		r.statusCode = http.StatusOK
	}
	return r.body.Write(data)
}

func (r *recorder) status() int {
	if r.statusCode == 0 {
		return http.StatusOK
	}
	return r.statusCode
}

func (r *recorder) contentType() string {
	return r.parent.Header().Get("Content-Type")
}

func (r *recorder) flush() {
	r.parent.WriteHeader(r.status())
	if r.body.Len() > 0 {
		_, _ = r.parent.Write(r.body.Bytes())
	}
}
