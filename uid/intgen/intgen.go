package intgen

import (
	"github.com/pkg/errors"

	"github.com/hatlonely/pgmodel/ref"
)

func init() {
	ref.MustRegisterT[*SnowflakeGenerator](NewSnowflakeGeneratorWithOptions)
	ref.MustRegisterT[*RedisGenerator](NewRedisGeneratorWithOptions)
}

// IntGenerator 生成 int64 主键
type IntGenerator interface {
	Generate() int64
}

// NewIntGeneratorWithOptions 根据 TypeOptions 创建已注册的生成器
func NewIntGeneratorWithOptions(options *ref.TypeOptions) (IntGenerator, error) {
	if options == nil {
		return nil, errors.New("options cannot be nil")
	}
	obj, err := ref.New(options.Namespace, options.Type, options.Options)
	if err != nil {
		return nil, errors.WithMessage(err, "ref.New failed")
	}
	gen, ok := obj.(IntGenerator)
	if !ok {
		return nil, errors.Errorf("%T is not an IntGenerator", obj)
	}
	return gen, nil
}
