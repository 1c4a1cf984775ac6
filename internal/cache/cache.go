// Package cache keeps computed journey results in Redis so unchanged
// journeys are not segmented and timed again.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/redis/go-redis/v9"

	"block-occupancy/internal/conflict"
)

// ErrMiss is returned by Get when nothing is cached for the journey.
var ErrMiss = errors.New("cache miss")

// Codec serialises journey results as zstd-compressed JSON.
type Codec struct {
	enc *zstd.Encoder
	dec *zstd.Decoder
}

func NewCodec() (*Codec, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		return nil, fmt.Errorf("zstd decoder: %w", err)
	}
	return &Codec{enc: enc, dec: dec}, nil
}

// Encode is safe for concurrent use.
func (c *Codec) Encode(j conflict.Journey) ([]byte, error) {
	data, err := json.Marshal(j)
	if err != nil {
		return nil, fmt.Errorf("marshal journey %s: %w", j.ID, err)
	}
	return c.enc.EncodeAll(data, nil), nil
}

// Decode is safe for concurrent use.
func (c *Codec) Decode(b []byte) (conflict.Journey, error) {
	data, err := c.dec.DecodeAll(b, nil)
	if err != nil {
		return conflict.Journey{}, fmt.Errorf("decompress journey: %w", err)
	}
	var j conflict.Journey
	if err := json.Unmarshal(data, &j); err != nil {
		return conflict.Journey{}, fmt.Errorf("unmarshal journey: %w", err)
	}
	return j, nil
}

func (c *Codec) Close() {
	c.enc.Close()
	c.dec.Close()
}

// Options configures the Redis cache.
type Options struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
	Timeout  time.Duration
	// Version separates entries computed under different model parameters
	// and input files.
	Version  string
}

// RedisCache stores encoded journeys under
// blockocc:intervals:<version>:<line>:<journey>.
type RedisCache struct {
	client  *redis.Client
	codec   *Codec
	version string
	ttl     time.Duration
	timeout time.Duration
}

// NewRedisCache connects to Redis and verifies the connection.
func NewRedisCache(ctx context.Context, opts Options) (*RedisCache, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		ReadTimeout:  opts.Timeout,
		WriteTimeout: opts.Timeout,
	})
	pctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()
	if err := client.Ping(pctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	codec, err := NewCodec()
	if err != nil {
		client.Close()
		return nil, err
	}
	return &RedisCache{client: client, codec: codec, version: opts.Version, ttl: opts.TTL, timeout: opts.Timeout}, nil
}

// Key returns the cache key of a journey under a model version.
func Key(version, line, journey string) string {
	return "blockocc:intervals:" + version + ":" + line + ":" + journey
}

func (c *RedisCache) Get(ctx context.Context, line, journey string) (conflict.Journey, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	b, err := c.client.Get(ctx, Key(c.version, line, journey)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return conflict.Journey{}, ErrMiss
		}
		return conflict.Journey{}, fmt.Errorf("get %s %s: %w", line, journey, err)
	}
	return c.codec.Decode(b)
}

func (c *RedisCache) Put(ctx context.Context, line, journey string, j conflict.Journey) error {
	b, err := c.codec.Encode(j)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	if err := c.client.Set(ctx, Key(c.version, line, journey), b, c.ttl).Err(); err != nil {
		return fmt.Errorf("put %s %s: %w", line, journey, err)
	}
	return nil
}

func (c *RedisCache) Close() error {
	c.codec.Close()
	return c.client.Close()
}
