package cache

import (
	"context"
	"sync"
	"time"

	"github.com/coocood/freecache"
	"github.com/pkg/errors"

	"github.com/hatlonely/pgmodel/rdb"
)

type FreeCacheOptions struct {
	// 字节数，freecache 要求单条记录小于 size/1024
	Size int `cfg:"size" def:"10485760"`
}

// FreeCache 进程内缓存
type FreeCache struct {
	cache *freecache.Cache

	// mu 保证 Set 的代数检查和写入不会与 Purge 交错
	mu    sync.RWMutex
	epoch int64
}

func NewFreeCacheWithOptions(options *FreeCacheOptions) *FreeCache {
	size := 10 * 1024 * 1024
	if options != nil && options.Size > 0 {
		size = options.Size
	}
	return &FreeCache{cache: freecache.NewCache(size)}
}

func (c *FreeCache) Get(ctx context.Context, key string) ([]rdb.Row, bool, error) {
	buf, err := c.cache.Get([]byte(key))
	if errors.Is(err, freecache.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrap(err, "freecache.Get failed")
	}

	rows, err := decodeRows(buf)
	if err != nil {
		return nil, false, err
	}
	return rows, true, nil
}

func (c *FreeCache) Epoch(ctx context.Context) (int64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.epoch, nil
}

// Set ttl 为 0 时不过期，不足一秒按一秒计；epoch 已过期时直接丢弃
func (c *FreeCache) Set(ctx context.Context, key string, epoch int64, rows []rdb.Row, ttl time.Duration) error {
	buf, err := encodeRows(rows)
	if err != nil {
		return err
	}

	expire := int(ttl / time.Second)
	if ttl > 0 && expire == 0 {
		expire = 1
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	if epoch != c.epoch {
		return nil
	}
	if err := c.cache.Set([]byte(key), buf, expire); err != nil {
		return errors.Wrap(err, "freecache.Set failed")
	}
	return nil
}

func (c *FreeCache) Purge(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.epoch++
	c.cache.Clear()
	return nil
}

func (c *FreeCache) Len() int64 {
	return c.cache.EntryCount()
}
