package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Skryldev/image-loader/core"
	apperrors "github.com/Skryldev/image-loader/errors"
	"github.com/Skryldev/image-loader/utils"
)

// RedisConfig configures the Redis storage adapter.
type RedisConfig struct {
	Prefix string        // prepended to every key
	TTL    time.Duration // 0 = keep forever
}

// Redis stores blobs as Redis strings, with metadata in a companion hash.
type Redis struct {
	client redis.UniversalClient
	cfg    RedisConfig
}

// NewRedis returns an adapter using client.
func NewRedis(client redis.UniversalClient, cfg RedisConfig) *Redis {
	return &Redis{client: client, cfg: cfg}
}

// DialRedis connects to addr and verifies the connection with PING.
func DialRedis(ctx context.Context, opts *redis.Options, cfg RedisConfig) (*Redis, error) {
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, apperrors.New(apperrors.CategoryStorage, "redis.dial", fmt.Errorf("ping %s: %w", opts.Addr, err))
	}
	return NewRedis(client, cfg), nil
}

func (r *Redis) key(k string) string     { return r.cfg.Prefix + k }
func (r *Redis) metaKey(k string) string { return r.cfg.Prefix + k + ":meta" }

func (r *Redis) Put(ctx context.Context, key string, src io.Reader, meta map[string]string) error {
	buf, err := utils.DrainReader(ctx, src, 0)
	if err != nil {
		return apperrors.Wrap(apperrors.CategoryStorage, "redis.put.read", err)
	}
	data := utils.CloneBytes(buf.Bytes())
	utils.ReleaseBuffer(buf)

	fields := make([]interface{}, 0, 2*len(meta))
	for k, v := range meta {
		fields = append(fields, k, v)
	}

	_, err = r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, r.key(key), data, r.cfg.TTL)
		p.Del(ctx, r.metaKey(key))
		if len(meta) > 0 {
			p.HSet(ctx, r.metaKey(key), fields...)
			if r.cfg.TTL > 0 {
				p.Expire(ctx, r.metaKey(key), r.cfg.TTL)
			}
		}
		return nil
	})
	if err != nil {
		return apperrors.Wrap(apperrors.CategoryStorage, "redis.put", err)
	}
	return nil
}

func (r *Redis) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	data, err := r.client.Get(ctx, r.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, apperrors.New(apperrors.CategoryStorage, "redis.get",
				fmt.Errorf("%w: %s", apperrors.ErrNotFound, key))
		}
		return nil, apperrors.Wrap(apperrors.CategoryStorage, "redis.get", err)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// Meta returns the metadata stored alongside key, if any.
func (r *Redis) Meta(ctx context.Context, key string) (map[string]string, error) {
	meta, err := r.client.HGetAll(ctx, r.metaKey(key)).Result()
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryStorage, "redis.meta", err)
	}
	if len(meta) == 0 {
		return nil, nil
	}
	return meta, nil
}

func (r *Redis) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.key(key), r.metaKey(key)).Err(); err != nil {
		return apperrors.Wrap(apperrors.CategoryStorage, "redis.delete", err)
	}
	return nil
}

func (r *Redis) Exists(ctx context.Context, key string) (bool, error) {
	n, err := r.client.Exists(ctx, r.key(key)).Result()
	if err != nil {
		return false, apperrors.Wrap(apperrors.CategoryStorage, "redis.exists", err)
	}
	return n > 0, nil
}

// Close closes the underlying client.
func (r *Redis) Close() error { return r.client.Close() }

var _ core.StorageAdapter = (*Redis)(nil)
