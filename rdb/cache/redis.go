package cache

import (
	"context"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/hatlonely/pgmodel/rdb"
)

type RedisOptions struct {
	Endpoint     string        `cfg:"endpoint" def:"localhost:6379"`
	Username     string        `cfg:"username"`
	Password     string        `cfg:"password"`
	DB           int           `cfg:"db"`
	Prefix       string        `cfg:"prefix" def:"pgmodel:cache"`
	DialTimeout  time.Duration `cfg:"dialTimeout" def:"5s"`
	ReadTimeout  time.Duration `cfg:"readTimeout" def:"3s"`
	WriteTimeout time.Duration `cfg:"writeTimeout" def:"3s"`
	PoolSize     int           `cfg:"poolSize" def:"10"`

	// Set 的 ttl 不大于 0 时使用，旧代数的 key 依赖过期清理
	TTL time.Duration `cfg:"ttl" def:"10m"`
}

// Redis 多进程共享的缓存
// 所有 key 带上代数前缀，Purge 只递增代数，旧的 key 等待过期
type Redis struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisWithOptions(options *RedisOptions) (*Redis, error) {
	if options == nil {
		options = &RedisOptions{}
	}
	if options.Endpoint == "" {
		options.Endpoint = "localhost:6379"
	}
	if options.Prefix == "" {
		options.Prefix = "pgmodel:cache"
	}
	if options.TTL <= 0 {
		options.TTL = 10 * time.Minute
	}

	return &Redis{
		client: redis.NewClient(&redis.Options{
			Addr:         options.Endpoint,
			Username:     options.Username,
			Password:     options.Password,
			DB:           options.DB,
			DialTimeout:  options.DialTimeout,
			ReadTimeout:  options.ReadTimeout,
			WriteTimeout: options.WriteTimeout,
			PoolSize:     options.PoolSize,
		}),
		prefix: options.Prefix,
		ttl:    options.TTL,
	}, nil
}

func (c *Redis) generationKey() string {
	return c.prefix + ":generation"
}

func (c *Redis) dataKey(epoch int64, key string) string {
	return c.prefix + ":" + strconv.FormatInt(epoch, 10) + ":" + key
}

func (c *Redis) Epoch(ctx context.Context) (int64, error) {
	gen, err := c.client.Get(ctx, c.generationKey()).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return 0, errors.Wrap(err, "redis get generation failed")
	}
	return gen, nil
}

func (c *Redis) Get(ctx context.Context, key string) ([]rdb.Row, bool, error) {
	epoch, err := c.Epoch(ctx)
	if err != nil {
		return nil, false, err
	}

	buf, err := c.client.Get(ctx, c.dataKey(epoch, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrap(err, "redis get failed")
	}

	rows, err := decodeRows(buf)
	if err != nil {
		return nil, false, err
	}
	return rows, true, nil
}

// Set 写入 epoch 对应的 key，Purge 之后的 Get 不会再读到它
func (c *Redis) Set(ctx context.Context, key string, epoch int64, rows []rdb.Row, ttl time.Duration) error {
	current, err := c.Epoch(ctx)
	if err != nil {
		return err
	}
	if current != epoch {
		return nil
	}
	buf, err := encodeRows(rows)
	if err != nil {
		return err
	}
	if ttl <= 0 {
		ttl = c.ttl
	}

	if err := c.client.Set(ctx, c.dataKey(epoch, key), buf, ttl).Err(); err != nil {
		return errors.Wrap(err, "redis set failed")
	}
	return nil
}

func (c *Redis) Purge(ctx context.Context) error {
	if err := c.client.Incr(ctx, c.generationKey()).Err(); err != nil {
		return errors.Wrap(err, "redis incr generation failed")
	}
	return nil
}

func (c *Redis) Close() error {
	return c.client.Close()
}
