package storage

import (
	"context"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-redis/redis/v8"
)

// RedisStore keeps entries in a Redis list, newest at the head
type RedisStore struct {
	client     *redis.Client
	key        string
	maxEntries int
	ids        *idSource
}

// NewRedisStore connects to Redis. url is either a redis:// URL or a bare
// host:port.
func NewRedisStore(ctx context.Context, url, key string, maxEntries int) (*RedisStore, error) {
	if url == "" {
		url = "localhost:6379"
	}

	var opts *redis.Options
	if strings.Contains(url, "://") {
		var err error
		opts, err = redis.ParseURL(url)
		if err != nil {
			return nil, errors.Wrapf(err, "parse redis url")
		}
	} else {
		opts = &redis.Options{Addr: url}
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrapf(err, "ping redis at %s", opts.Addr)
	}

	return &RedisStore{client: client, key: key, maxEntries: maxEntries, ids: &idSource{}}, nil
}

// Append implements MessageStore
func (s *RedisStore) Append(ctx context.Context, topic string, payload []byte) (Entry, error) {
	now := time.Now()
	id, err := s.ids.next(now)
	if err != nil {
		return Entry{}, err
	}
	entry := Entry{ID: id, Topic: topic, Payload: append([]byte(nil), payload...), ReceivedAt: now}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, s.key, encodeEntry(entry))
		if s.maxEntries > 0 {
			pipe.LTrim(ctx, s.key, 0, int64(s.maxEntries-1))
		}
		return nil
	})
	if err != nil {
		return Entry{}, errors.Wrap(err, "push entry")
	}
	return entry, nil
}

// Recent implements MessageStore
func (s *RedisStore) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		return nil, nil
	}

	values, err := s.client.LRange(ctx, s.key, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, errors.Wrap(err, "read entries")
	}

	entries := make([]Entry, 0, len(values))
	for _, v := range values {
		entry, err := decodeEntry([]byte(v))
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Count implements MessageStore
func (s *RedisStore) Count(ctx context.Context) (int, error) {
	n, err := s.client.LLen(ctx, s.key).Result()
	if err != nil {
		return 0, errors.Wrap(err, "count entries")
	}
	return int(n), nil
}

// Close implements MessageStore
func (s *RedisStore) Close() error {
	return s.client.Close()
}
