package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"kpiflow/internal/transport/http/api"
)

const IdempotencyHeader = "Idempotency-Key"

var ErrIdempotencyConflict = errors.New("idempotency key conflicts with existing request")

// pendingTTL bounds how long a reservation whose handler never finished
// blocks the key.
const pendingTTL = 5 * time.Minute

// StoredResponse is a completed response kept for replay. Status is zero
// while the first request holding the key is still running.
type StoredResponse struct {
	RequestHash string
	Status      int
	Body        []byte
}

func (r StoredResponse) Pending() bool {
	return r.Status == 0
}

type IdempotencyStore interface {
	// Lookup returns found=false for an unseen key.
	Lookup(ctx context.Context, actorID, endpoint, key string) (StoredResponse, bool, error)
	// Reserve records a pending entry and reports false when the key is
	// already held.
	Reserve(ctx context.Context, actorID, endpoint, key, requestHash string) (bool, error)
	// Save completes a reservation with the response to replay.
	Save(ctx context.Context, actorID, endpoint, key string, resp StoredResponse) error
	// Release drops a pending reservation so the key can be retried.
	Release(ctx context.Context, actorID, endpoint, key string) error
}

func RequestHash(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

type captureWriter struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (c *captureWriter) WriteHeader(code int) {
	c.status = code
	c.ResponseWriter.WriteHeader(code)
}

func (c *captureWriter) Write(b []byte) (int, error) {
	if c.status == 0 {
		c.status = http.StatusOK
	}
	c.body.Write(b)
	return c.ResponseWriter.Write(b)
}

// Idempotency replays the stored response when a client retries a POST
// with the same Idempotency-Key and body. The key is reserved before the
// handler runs, so a duplicate that arrives mid-flight gets 409 instead of
// running twice. Only 2xx responses are stored, so a failed attempt can be
// retried with the same key.
func Idempotency(store IdempotencyStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := strings.TrimSpace(r.Header.Get(IdempotencyHeader))
			actor, ok := GetActor(r.Context())
			if store == nil || key == "" || !ok || r.Method != http.MethodPost {
				next.ServeHTTP(w, r)
				return
			}
			requestID := GetRequestID(r.Context())
			if len(key) > 200 {
				api.Fail(w, http.StatusBadRequest, "invalid_idempotency_key", "idempotency key too long", requestID)
				return
			}

			raw, err := io.ReadAll(r.Body)
			if err != nil {
				api.Fail(w, http.StatusBadRequest, "invalid_payload", "could not read request body", requestID)
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(raw))
			hash := RequestHash(raw)
			endpoint := r.URL.Path

			stored, found, err := store.Lookup(r.Context(), actor.UserID, endpoint, key)
			if err != nil {
				slog.Warn("idempotency lookup failed", "err", err, "requestId", requestID)
				next.ServeHTTP(w, r)
				return
			}
			if found {
				replay(w, stored, hash, requestID)
				return
			}
			reserved, err := store.Reserve(r.Context(), actor.UserID, endpoint, key, hash)
			if err != nil {
				slog.Warn("idempotency reserve failed", "err", err, "requestId", requestID)
				next.ServeHTTP(w, r)
				return
			}
			if !reserved {
				api.Fail(w, http.StatusConflict, "idempotency_in_progress", "a request with this idempotency key is already in progress", requestID)
				return
			}

			capture := &captureWriter{ResponseWriter: w}
			next.ServeHTTP(capture, r)
			if capture.status < 200 || capture.status >= 300 {
				if err := store.Release(context.WithoutCancel(r.Context()), actor.UserID, endpoint, key); err != nil {
					slog.Warn("idempotency release failed", "err", err, "requestId", requestID)
				}
				return
			}
			if err := store.Save(context.WithoutCancel(r.Context()), actor.UserID, endpoint, key, StoredResponse{
				RequestHash: hash,
				Status:      capture.status,
				Body:        capture.body.Bytes(),
			}); err != nil {
				slog.Warn("idempotency save failed", "err", err, "requestId", requestID)
			}
		})
	}
}

func replay(w http.ResponseWriter, stored StoredResponse, hash, requestID string) {
	if stored.RequestHash != hash {
		api.Fail(w, http.StatusConflict, "idempotency_conflict", ErrIdempotencyConflict.Error(), requestID)
		return
	}
	if stored.Pending() {
		api.Fail(w, http.StatusConflict, "idempotency_in_progress", "a request with this idempotency key is already in progress", requestID)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Idempotent-Replayed", "true")
	w.WriteHeader(stored.Status)
	_, _ = w.Write(stored.Body)
}

type PGIdempotencyStore struct {
	db *pgxpool.Pool
}

func NewPGIdempotencyStore(db *pgxpool.Pool) *PGIdempotencyStore {
	return &PGIdempotencyStore{db: db}
}

func (s *PGIdempotencyStore) Lookup(ctx context.Context, actorID, endpoint, key string) (StoredResponse, bool, error) {
	var resp StoredResponse
	err := s.db.QueryRow(ctx, `
    SELECT request_hash, response_status, response_body
    FROM idempotency_keys
    WHERE actor_id = $1 AND endpoint = $2 AND idempotency_key = $3
  `, actorID, endpoint, key).Scan(&resp.RequestHash, &resp.Status, &resp.Body)
	if errors.Is(err, pgx.ErrNoRows) {
		return StoredResponse{}, false, nil
	}
	if err != nil {
		return StoredResponse{}, false, err
	}
	return resp, true, nil
}

// Reserve takes over a pending row only once it has outlived pendingTTL.
func (s *PGIdempotencyStore) Reserve(ctx context.Context, actorID, endpoint, key, requestHash string) (bool, error) {
	tag, err := s.db.Exec(ctx, `
    INSERT INTO idempotency_keys (actor_id, endpoint, idempotency_key, request_hash, response_status, response_body)
    VALUES ($1, $2, $3, $4, 0, ''::bytea)
    ON CONFLICT (actor_id, endpoint, idempotency_key) DO UPDATE
      SET request_hash = EXCLUDED.request_hash, created_at = now()
      WHERE idempotency_keys.response_status = 0
        AND idempotency_keys.created_at < now() - make_interval(secs => $5)
  `, actorID, endpoint, key, requestHash, pendingTTL.Seconds())
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PGIdempotencyStore) Save(ctx context.Context, actorID, endpoint, key string, resp StoredResponse) error {
	tag, err := s.db.Exec(ctx, `
    UPDATE idempotency_keys SET response_status = $4, response_body = $5
    WHERE actor_id = $1 AND endpoint = $2 AND idempotency_key = $3 AND response_status = 0
  `, actorID, endpoint, key, resp.Status, resp.Body)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrIdempotencyConflict
	}
	return nil
}

func (s *PGIdempotencyStore) Release(ctx context.Context, actorID, endpoint, key string) error {
	_, err := s.db.Exec(ctx, `
    DELETE FROM idempotency_keys
    WHERE actor_id = $1 AND endpoint = $2 AND idempotency_key = $3 AND response_status = 0
  `, actorID, endpoint, key)
	return err
}

type memoryEntry struct {
	resp    StoredResponse
	expires time.Time
}

// MemoryIdempotencyStore backs the in-memory store mode. Expired entries
// are dropped on access and swept at most once per minute.
type MemoryIdempotencyStore struct {
	mu        sync.Mutex
	ttl       time.Duration
	entries   map[string]memoryEntry
	lastSweep time.Time
	now       func() time.Time
}

func NewMemoryIdempotencyStore(ttl time.Duration) *MemoryIdempotencyStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &MemoryIdempotencyStore{ttl: ttl, entries: map[string]memoryEntry{}, now: time.Now}
}

func memoryKey(actorID, endpoint, key string) string {
	return actorID + "|" + endpoint + "|" + key
}

// live returns the unexpired entry for id, deleting it if it has expired.
// Callers hold s.mu.
func (s *MemoryIdempotencyStore) live(id string, now time.Time) (memoryEntry, bool) {
	entry, ok := s.entries[id]
	if !ok {
		return memoryEntry{}, false
	}
	if now.After(entry.expires) {
		delete(s.entries, id)
		return memoryEntry{}, false
	}
	return entry, true
}

func (s *MemoryIdempotencyStore) sweep(now time.Time) {
	if now.Sub(s.lastSweep) < time.Minute {
		return
	}
	s.lastSweep = now
	for id, entry := range s.entries {
		if now.After(entry.expires) {
			delete(s.entries, id)
		}
	}
}

func (s *MemoryIdempotencyStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *MemoryIdempotencyStore) Lookup(_ context.Context, actorID, endpoint, key string) (StoredResponse, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.live(memoryKey(actorID, endpoint, key), s.now())
	if !ok {
		return StoredResponse{}, false, nil
	}
	return entry.resp, true, nil
}

func (s *MemoryIdempotencyStore) Reserve(_ context.Context, actorID, endpoint, key, requestHash string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	s.sweep(now)
	id := memoryKey(actorID, endpoint, key)
	if _, ok := s.live(id, now); ok {
		return false, nil
	}
	s.entries[id] = memoryEntry{resp: StoredResponse{RequestHash: requestHash}, expires: now.Add(pendingTTL)}
	return true, nil
}

func (s *MemoryIdempotencyStore) Save(_ context.Context, actorID, endpoint, key string, resp StoredResponse) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	s.sweep(now)
	id := memoryKey(actorID, endpoint, key)
	if entry, ok := s.live(id, now); ok && !entry.resp.Pending() {
		return ErrIdempotencyConflict
	}
	body := make([]byte, len(resp.Body))
	copy(body, resp.Body)
	resp.Body = body
	s.entries[id] = memoryEntry{resp: resp, expires: now.Add(s.ttl)}
	return nil
}

func (s *MemoryIdempotencyStore) Release(_ context.Context, actorID, endpoint, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := memoryKey(actorID, endpoint, key)
	if entry, ok := s.entries[id]; ok && entry.resp.Pending() {
		delete(s.entries, id)
	}
	return nil
}
