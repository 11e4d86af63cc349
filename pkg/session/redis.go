package session

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const redisUpdateAttempts = 5

type redisRecord[T any] struct {
	Value     T         `json:"value"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// RedisStore keeps records as JSON under prefix+id with a redis TTL, so
// several relay processes can share call state.
type RedisStore[T any] struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	now    func() time.Time
}

var _ Store[struct{}] = &RedisStore[struct{}]{}

func NewRedisStore[T any](client redis.UniversalClient, prefix string, ttl time.Duration) *RedisStore[T] {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if prefix == "" {
		prefix = "veriwire:call:"
	}
	return &RedisStore[T]{client: client, prefix: prefix, ttl: ttl, now: time.Now}
}

// kv is the subset of commands shared by clients, transactions and pipelines.
type kv interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

func (s *RedisStore[T]) key(id string) string { return s.prefix + id }

func (s *RedisStore[T]) load(ctx context.Context, g kv, id string) (redisRecord[T], bool, error) {
	var rec redisRecord[T]
	raw, err := g.Get(ctx, s.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return rec, false, nil
	}
	if err != nil {
		return rec, false, errors.Wrap(err, "redis session store: get")
	}
	if err := json.Unmarshal(raw, &rec); err != nil {
		return rec, false, errors.Wrap(err, "redis session store: decode")
	}
	return rec, true, nil
}

func (s *RedisStore[T]) save(ctx context.Context, p kv, id string, rec redisRecord[T]) error {
	rec.ExpiresAt = s.now().Add(s.ttl)
	raw, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrap(err, "redis session store: encode")
	}
	return p.Set(ctx, s.key(id), raw, s.ttl).Err()
}

func (s *RedisStore[T]) Get(ctx context.Context, id string) (T, error) {
	var out T
	err := s.Update(ctx, id, func(v *T) error {
		out = *v
		return nil
	})
	return out, err
}

func (s *RedisStore[T]) Set(ctx context.Context, id string, v T) error {
	rec, ok, err := s.load(ctx, s.client, id)
	if err != nil {
		return err
	}
	if !ok {
		rec.CreatedAt = s.now()
	}
	rec.Value = v
	return errors.Wrap(s.save(ctx, s.client, id, rec), "redis session store: set")
}

// Update uses WATCH/MULTI so concurrent writers of one id retry instead of
// overwriting each other. fn may run more than once.
func (s *RedisStore[T]) Update(ctx context.Context, id string, fn func(*T) error) error {
	key := s.key(id)
	txf := func(tx *redis.Tx) error {
		rec, ok, err := s.load(ctx, tx, id)
		if err != nil {
			return err
		}
		if !ok {
			rec = redisRecord[T]{CreatedAt: s.now()}
		}
		if err := fn(&rec.Value); err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			return s.save(ctx, pipe, id, rec)
		})
		return err
	}
	for i := 0; i < redisUpdateAttempts; i++ {
		err := s.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return errors.New("redis session store: update: too much contention")
}

func (s *RedisStore[T]) Delete(ctx context.Context, id string) error {
	return errors.Wrap(s.client.Del(ctx, s.key(id)).Err(), "redis session store: delete")
}

func (s *RedisStore[T]) Peek(ctx context.Context, id string) (T, Meta, bool, error) {
	var zero T
	rec, ok, err := s.load(ctx, s.client, id)
	if err != nil || !ok {
		return zero, Meta{}, false, err
	}
	return rec.Value, Meta{CreatedAt: rec.CreatedAt, ExpiresAt: rec.ExpiresAt}, true, nil
}
