package ref

import (
	"reflect"
	"sync"

	"github.com/go-viper/mapstructure/v2"
	"github.com/pkg/errors"
)

// TypeOptions 通过 namespace + type 定位构造函数，Options 为构造参数
// Options 可以是构造函数期望的参数类型，也可以是从配置文件解析出的 map
type TypeOptions struct {
	Namespace string `cfg:"namespace"`
	Type      string `cfg:"type"`
	Options   any    `cfg:"options"`
}

type constructor struct {
	fn           reflect.Value
	origin       any
	hasOptions   bool
	returnsError bool
}

var (
	constructors sync.Map
	errorType    = reflect.TypeOf((*error)(nil)).Elem()
)

func newConstructor(fn any) (*constructor, error) {
	fv := reflect.ValueOf(fn)
	if fv.Kind() != reflect.Func {
		return nil, errors.New("constructor must be a function")
	}

	ft := fv.Type()
	if ft.NumIn() > 1 {
		return nil, errors.Errorf("constructor must have 0 or 1 input parameters, got %d", ft.NumIn())
	}
	if ft.NumOut() != 1 && ft.NumOut() != 2 {
		return nil, errors.Errorf("constructor must have 1 or 2 return values, got %d", ft.NumOut())
	}
	if ft.NumOut() == 2 && !ft.Out(1).Implements(errorType) {
		return nil, errors.New("second return value must be error")
	}

	return &constructor{
		fn:           fv,
		origin:       fn,
		hasOptions:   ft.NumIn() == 1,
		returnsError: ft.NumOut() == 2,
	}, nil
}

func (c *constructor) call(options any) (any, error) {
	var args []reflect.Value
	if c.hasOptions {
		arg, err := convertOptions(options, c.fn.Type().In(0))
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
	}

	results := c.fn.Call(args)
	if c.returnsError && !results[1].IsNil() {
		return nil, results[1].Interface().(error)
	}
	return results[0].Interface(), nil
}

// convertOptions 将 options 转换为构造函数的参数类型
// 类型一致时直接使用，否则按 cfg tag 用 mapstructure 解码
func convertOptions(options any, paramType reflect.Type) (reflect.Value, error) {
	if options == nil {
		return reflect.Zero(paramType), nil
	}

	ov := reflect.ValueOf(options)
	if ov.Type().AssignableTo(paramType) {
		return ov, nil
	}

	target := paramType
	if target.Kind() == reflect.Ptr {
		target = target.Elem()
	}
	pv := reflect.New(target)

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "cfg",
		WeaklyTypedInput: true,
		Result:           pv.Interface(),
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return reflect.Value{}, errors.Wrap(err, "mapstructure.NewDecoder failed")
	}
	if err := decoder.Decode(options); err != nil {
		return reflect.Value{}, errors.Wrapf(err, "failed to convert options to %v", paramType)
	}

	if paramType.Kind() == reflect.Ptr {
		return pv, nil
	}
	return pv.Elem(), nil
}

// Register 注册构造函数，同一个 key 重复注册相同函数会被忽略
func Register(namespace string, typ string, fn any) error {
	key := namespace + ":" + typ

	if v, ok := constructors.Load(key); ok {
		if reflect.ValueOf(v.(*constructor).origin).Pointer() == reflect.ValueOf(fn).Pointer() {
			return nil
		}
		return errors.Errorf("constructor for %s already registered with different function", key)
	}

	c, err := newConstructor(fn)
	if err != nil {
		return errors.WithMessagef(err, "register %s failed", key)
	}
	constructors.Store(key, c)
	return nil
}

// RegisterT 以 T 的包路径和类型名作为 namespace 和 type 注册
func RegisterT[T any](fn any) error {
	namespace, typ, err := typeKey[T]()
	if err != nil {
		return err
	}
	return Register(namespace, typ, fn)
}

func MustRegister(namespace string, typ string, fn any) {
	if err := Register(namespace, typ, fn); err != nil {
		panic(err)
	}
}

func MustRegisterT[T any](fn any) {
	if err := RegisterT[T](fn); err != nil {
		panic(err)
	}
}

// New 根据 namespace 和 type 调用已注册的构造函数
func New(namespace string, typ string, options any) (any, error) {
	key := namespace + ":" + typ
	v, ok := constructors.Load(key)
	if !ok {
		return nil, errors.Errorf("constructor not found for %s", key)
	}
	return v.(*constructor).call(options)
}

func NewT[T any](options any) (T, error) {
	var zero T
	namespace, typ, err := typeKey[T]()
	if err != nil {
		return zero, err
	}

	obj, err := New(namespace, typ, options)
	if err != nil {
		return zero, err
	}
	t, ok := obj.(T)
	if !ok {
		return zero, errors.Errorf("created object is %T, not %T", obj, zero)
	}
	return t, nil
}

func typeKey[T any]() (string, string, error) {
	t := reflect.TypeOf((*T)(nil)).Elem()
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.PkgPath() == "" || t.Name() == "" {
		return "", "", errors.Errorf("cannot determine package path or type name for %v", t)
	}
	return t.PkgPath(), t.Name(), nil
}
