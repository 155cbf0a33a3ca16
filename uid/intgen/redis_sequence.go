package intgen

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

type RedisSequenceOptions struct {
	Addr     string        `cfg:"addr" def:"localhost:6379"`
	Password string        `cfg:"password"`
	DB       int           `cfg:"db"`
	Prefix   string        `cfg:"prefix" def:"dbq:seq"`
	Timeout  time.Duration `cfg:"timeout" def:"3s"`
}

// RedisSequence 每个序列对应一个 redis 计数器，INCR 保证多个进程之间不重复
type RedisSequence struct {
	client  redis.UniversalClient
	prefix  string
	timeout time.Duration
}

func NewRedisSequenceWithOptions(options *RedisSequenceOptions) *RedisSequence {
	if options == nil {
		options = &RedisSequenceOptions{}
	}
	if options.Addr == "" {
		options.Addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     options.Addr,
		Password: options.Password,
		DB:       options.DB,
	})
	return NewRedisSequence(client, options.Prefix, options.Timeout)
}

// NewRedisSequence 复用已有的 redis 客户端
func NewRedisSequence(client redis.UniversalClient, prefix string, timeout time.Duration) *RedisSequence {
	if prefix == "" {
		prefix = "dbq:seq"
	}
	if timeout == 0 {
		timeout = 3 * time.Second
	}
	return &RedisSequence{client: client, prefix: prefix, timeout: timeout}
}

func (g *RedisSequence) key(sequence string) string {
	return g.prefix + ":" + sequence
}

func (g *RedisSequence) Next(ctx context.Context, sequence string) (any, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	v, err := g.client.Incr(ctx, g.key(sequence)).Result()
	if err != nil {
		return nil, errors.Wrapf(err, "redis incr %s failed", g.key(sequence))
	}
	return v, nil
}

// Reset 把序列设置为 value，下一次生成 value+1
func (g *RedisSequence) Reset(ctx context.Context, sequence string, value int64) error {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	if err := g.client.Set(ctx, g.key(sequence), value, 0).Err(); err != nil {
		return errors.Wrapf(err, "redis set %s failed", g.key(sequence))
	}
	return nil
}

func (g *RedisSequence) Close() error {
	return g.client.Close()
}
