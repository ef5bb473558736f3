package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis keeps sessions in Redis so clarifications can land on any replica.
type Redis struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedis(url string, prefix string, ttl time.Duration) (*Redis, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return NewRedisWithClient(redis.NewClient(opt), prefix, ttl), nil
}

func NewRedisWithClient(client *redis.Client, prefix string, ttl time.Duration) *Redis {
	if prefix == "" {
		prefix = "intentflow:session"
	}
	return &Redis{client: client, prefix: prefix, ttl: ttl}
}

func (r *Redis) key(id string) string {
	return r.prefix + ":" + ID(id)
}

func (r *Redis) Put(ctx context.Context, id string, sc Context) error {
	payload, err := json.Marshal(sc)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	return r.client.Set(ctx, r.key(id), payload, r.ttl).Err()
}

func (r *Redis) Get(ctx context.Context, id string) (Context, error) {
	raw, err := r.client.Get(ctx, r.key(id)).Bytes()
	return decode(raw, err)
}

// Take relies on GETDEL, so concurrent takes of one key see it at most once.
func (r *Redis) Take(ctx context.Context, id string) (Context, error) {
	raw, err := r.client.GetDel(ctx, r.key(id)).Bytes()
	return decode(raw, err)
}

func (r *Redis) Delete(ctx context.Context, id string) error {
	return r.client.Del(ctx, r.key(id)).Err()
}

func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *Redis) Close() error {
	return r.client.Close()
}

func decode(raw []byte, err error) (Context, error) {
	if errors.Is(err, redis.Nil) {
		return Context{}, ErrNotFound
	}
	if err != nil {
		return Context{}, err
	}
	var sc Context
	dec := json.NewDecoder(bytes.NewReader(raw))
	// keep numbers as written so metadata round-trips byte for byte
	dec.UseNumber()
	if err := dec.Decode(&sc); err != nil {
		return Context{}, fmt.Errorf("decode session: %w", err)
	}
	return sc, nil
}
