package strgen

import (
	"github.com/pkg/errors"

	"github.com/hatlonely/pgmodel/ref"
)

func init() {
	ref.MustRegisterT[*UUIDGenerator](NewUUIDGeneratorWithOptions)
}

// StrGenerator 生成字符串主键
type StrGenerator interface {
	Generate() string
}

func NewStrGeneratorWithOptions(options *ref.TypeOptions) (StrGenerator, error) {
	if options == nil {
		return nil, errors.New("options cannot be nil")
	}
	obj, err := ref.New(options.Namespace, options.Type, options.Options)
	if err != nil {
		return nil, errors.WithMessage(err, "ref.New failed")
	}
	gen, ok := obj.(StrGenerator)
	if !ok {
		return nil, errors.Errorf("%T is not a StrGenerator", obj)
	}
	return gen, nil
}
