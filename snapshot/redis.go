package snapshot

import (
	"context"
	"fmt"
	"time"

	json "github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
)

type RedisConfig struct {
	Enabled  bool          `yaml:"enabled" env:"ENABLED, overwrite"`
	Addr     string        `yaml:"addr" env:"ADDR, overwrite" default:"127.0.0.1:6379"`
	Password string        `yaml:"password" env:"PASSWORD, overwrite"`
	DB       int           `yaml:"db" env:"DB, overwrite" validate:"gte=0"`
	Key      string        `yaml:"key" env:"KEY, overwrite" default:"tradecore:status"`
	TTL      time.Duration `yaml:"ttl" default:"5m" validate:"gt=0"`
	PoolSize int           `yaml:"pool_size" default:"4" validate:"gte=1"`
}

// setter is the part of *redis.Client the publisher uses.
type setter interface {
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
}

// RedisPublisher stores the status as JSON under one key. The TTL lets
// readers tell a stopped engine from a live one.
type RedisPublisher struct {
	rdb    setter
	client *redis.Client
	key    string
	ttl    time.Duration
}

func NewRedisPublisher(ctx context.Context, cfg RedisConfig) (*RedisPublisher, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	p := newRedisPublisher(client, cfg.Key, cfg.TTL)
	p.client = client
	return p, nil
}

func newRedisPublisher(rdb setter, key string, ttl time.Duration) *RedisPublisher {
	return &RedisPublisher{rdb: rdb, key: key, ttl: ttl}
}

func (p *RedisPublisher) Publish(ctx context.Context, s Status) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode status: %w", err)
	}
	if err := p.rdb.Set(ctx, p.key, data, p.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", p.key, err)
	}
	return nil
}

func (p *RedisPublisher) Close() error {
	if p.client == nil {
		return nil
	}
	return p.client.Close()
}
