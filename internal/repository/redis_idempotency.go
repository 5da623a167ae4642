package repository

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"time"

	"github.com/swapgate/swapgate/internal/middleware"
)

// RedisIdempotencyStore backs the idempotency middleware with redis so
// retried settlement submissions survive a process restart.
type RedisIdempotencyStore struct {
	client *RedisClient
	ttl    time.Duration
	prefix string
}

func NewRedisIdempotencyStore(client *RedisClient, ttl time.Duration) *RedisIdempotencyStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisIdempotencyStore{
		client: client,
		ttl:    ttl,
		prefix: "idem:",
	}
}

type idemPayload struct {
	Status     int    `json:"status"`
	Body       string `json:"body"`
	CreatedAt  int64  `json:"created_at"`
	Processing bool   `json:"processing"`
}

func (s *RedisIdempotencyStore) GetOrLock(key string) (*middleware.IdempotencyRecord, bool) {
	ctx := context.Background()
	lock := encodeIdemRecord(&middleware.IdempotencyRecord{
		CreatedAt:  time.Now().UTC(),
		Processing: true,
	})

	ok, err := s.client.Client.SetNX(ctx, s.prefix+key, lock, s.ttl).Result()
	if err == nil && ok {
		return nil, false
	}

	val, err := s.client.Client.Get(ctx, s.prefix+key).Result()
	if err != nil {
		// On redis trouble, let the request through rather than block retries.
		return nil, false
	}
	rec, err := decodeIdemRecord(val)
	if err != nil {
		return nil, false
	}
	return rec, true
}

func (s *RedisIdempotencyStore) Save(key string, status int, body []byte) {
	ctx := context.Background()
	rec := &middleware.IdempotencyRecord{
		Status:    status,
		Body:      body,
		CreatedAt: time.Now().UTC(),
	}
	_ = s.client.Client.Set(ctx, s.prefix+key, encodeIdemRecord(rec), s.ttl).Err()
}

func (s *RedisIdempotencyStore) Unlock(key string) {
	_ = s.client.Client.Del(context.Background(), s.prefix+key).Err()
}

func encodeIdemRecord(rec *middleware.IdempotencyRecord) string {
	payload := idemPayload{
		Status:     rec.Status,
		Body:       base64.StdEncoding.EncodeToString(rec.Body),
		CreatedAt:  rec.CreatedAt.Unix(),
		Processing: rec.Processing,
	}
	raw, _ := json.Marshal(payload)
	return string(raw)
}

func decodeIdemRecord(raw string) (*middleware.IdempotencyRecord, error) {
	var payload idemPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil, err
	}
	body, err := base64.StdEncoding.DecodeString(payload.Body)
	if err != nil {
		return nil, err
	}
	return &middleware.IdempotencyRecord{
		Status:     payload.Status,
		Body:       body,
		CreatedAt:  time.Unix(payload.CreatedAt, 0).UTC(),
		Processing: payload.Processing,
	}, nil
}
