package cache

import (
	"bytes"
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/hatlonely/pgmodel/rdb"
	"github.com/hatlonely/pgmodel/ref"
)

// Cache 缓存 Load 的查询结果，key 由 SQL 和参数组成
// 写操作之后调用 Purge 使所有结果失效
//
// 读数据库之前先取 Epoch，Set 时带上该值：期间发生过 Purge 的结果不会写入
type Cache interface {
	Get(ctx context.Context, key string) ([]rdb.Row, bool, error)
	Epoch(ctx context.Context) (int64, error)
	Set(ctx context.Context, key string, epoch int64, rows []rdb.Row, ttl time.Duration) error
	Purge(ctx context.Context) error
}

func init() {
	ref.MustRegisterT[*FreeCache](NewFreeCacheWithOptions)
	ref.MustRegisterT[*Redis](NewRedisWithOptions)
}

func NewCacheWithOptions(options *ref.TypeOptions) (Cache, error) {
	if options == nil {
		return nil, errors.Wrap(rdb.ErrInvalidArgument, "cache options is nil")
	}

	obj, err := ref.New(options.Namespace, options.Type, options.Options)
	if err != nil {
		return nil, errors.WithMessage(err, "ref.New failed")
	}
	c, ok := obj.(Cache)
	if !ok {
		return nil, errors.Errorf("%T is not a Cache", obj)
	}
	return c, nil
}

// Key 将语句编码为缓存 key
func Key(stmt *rdb.Statement) (string, error) {
	buf, err := msgpack.Marshal([]any{stmt.SQL, stmt.Replacements})
	if err != nil {
		return "", errors.Wrap(err, "encode cache key failed")
	}
	return string(buf), nil
}

func encodeRows(rows []rdb.Row) ([]byte, error) {
	buf, err := msgpack.Marshal(rows)
	if err != nil {
		return nil, errors.Wrap(err, "msgpack.Marshal failed")
	}
	return buf, nil
}

// decodeRows 整数统一解码为 int64/uint64，浮点数为 float64
func decodeRows(buf []byte) ([]rdb.Row, error) {
	dec := msgpack.NewDecoder(bytes.NewReader(buf))
	dec.UseLooseInterfaceDecoding(true)

	var rows []rdb.Row
	if err := dec.Decode(&rows); err != nil {
		return nil, errors.Wrap(err, "msgpack decode failed")
	}
	if rows == nil {
		rows = []rdb.Row{}
	}
	return rows, nil
}
