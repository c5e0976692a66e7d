package metadata

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "relay:descriptor:"

// RedisStore keeps each descriptor as a JSON string value.
type RedisStore struct {
	client *redis.Client
}

// OpenRedis connects to the server at url (redis://...) and checks it
// answers.
func OpenRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	slog.Info("connected to redis", "addr", opts.Addr, "db", opts.DB)
	return client, nil
}

// NewRedisStore creates a store on client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Put stores the descriptor without a TTL; expiry is the sweep's job.
func (s *RedisStore) Put(ctx context.Context, key string, d *Descriptor) error {
	data, err := Encode(d)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, redisKeyPrefix+key, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to store descriptor: %w", err)
	}
	return nil
}

// Get returns the descriptor for key, or nil if absent or unreadable.
func (s *RedisStore) Get(ctx context.Context, key string) (*Descriptor, error) {
	data, err := s.client.Get(ctx, redisKeyPrefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get descriptor: %w", err)
	}
	d, err := Decode(data)
	if err != nil {
		slog.Warn("ignoring descriptor", "key", key, "error", err)
		return nil, nil
	}
	return d, nil
}

// Delete removes the descriptor, if any.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, redisKeyPrefix+key).Err(); err != nil {
		return fmt.Errorf("failed to delete descriptor: %w", err)
	}
	return nil
}

// Keys scans for every stored descriptor.
func (s *RedisStore) Keys(ctx context.Context) ([]string, error) {
	var keys []string
	iter := s.client.Scan(ctx, 0, redisKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val()[len(redisKeyPrefix):])
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan descriptors: %w", err)
	}
	return keys, nil
}

// Ping checks the connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close releases the client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
