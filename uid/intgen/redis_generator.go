package intgen

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

type RedisOptions struct {
	Endpoint string        `cfg:"endpoint" def:"localhost:6379"`
	Password string        `cfg:"password"`
	DB       int           `cfg:"db"`
	Key      string        `cfg:"key" def:"pgmodel:sequence"`
	Timeout  time.Duration `cfg:"timeout" def:"3s"`
}

// RedisGenerator 基于 INCR 的全局自增序列，多个进程共享同一个 key
type RedisGenerator struct {
	client  *redis.Client
	key     string
	timeout time.Duration
}

func NewRedisGeneratorWithOptions(options *RedisOptions) *RedisGenerator {
	if options == nil {
		options = &RedisOptions{}
	}
	endpoint, key, timeout := options.Endpoint, options.Key, options.Timeout
	if endpoint == "" {
		endpoint = "localhost:6379"
	}
	if key == "" {
		key = "pgmodel:sequence"
	}
	if timeout <= 0 {
		timeout = 3 * time.Second
	}

	return &RedisGenerator{
		client: redis.NewClient(&redis.Options{
			Addr:     endpoint,
			Password: options.Password,
			DB:       options.DB,
		}),
		key:     key,
		timeout: timeout,
	}
}

// Generate 返回下一个序列值，redis 不可用时返回 0，调用方据此判断失败
func (g *RedisGenerator) Generate() int64 {
	ctx, cancel := context.WithTimeout(context.Background(), g.timeout)
	defer cancel()

	n, err := g.client.Incr(ctx, g.key).Result()
	if err != nil {
		return 0
	}
	return n
}

func (g *RedisGenerator) Close() error {
	return g.client.Close()
}
