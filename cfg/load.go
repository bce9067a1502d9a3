package cfg

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/go-viper/mapstructure/v2"
	"github.com/pkg/errors"
	"gopkg.in/ini.v1"
	"gopkg.in/yaml.v3"
)

type loadOptions struct {
	envPrefix string
	environ   func() []string
}

type LoadOption func(*loadOptions)

// WithEnvPrefix 用 PREFIX_A_B=value 形式的环境变量覆盖配置项 a.b
func WithEnvPrefix(prefix string) LoadOption {
	return func(o *loadOptions) {
		o.envPrefix = prefix
	}
}

// WithEnviron 替换环境变量来源，默认 os.Environ
func WithEnviron(environ func() []string) LoadOption {
	return func(o *loadOptions) {
		o.environ = environ
	}
}

// Load 读取配置文件，叠加环境变量，按 cfg tag 绑定到 object，再设置默认值并校验
func Load(path string, object any, opts ...LoadOption) error {
	options := &loadOptions{environ: os.Environ}
	for _, opt := range opts {
		opt(options)
	}

	tree := map[string]any{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return errors.Wrapf(err, "read config %s failed", path)
		}
		tree, err = Decode(filepath.Ext(path), data)
		if err != nil {
			return errors.WithMessagef(err, "decode config %s failed", path)
		}
	}

	if options.envPrefix != "" {
		overlayEnv(tree, options.envPrefix, options.environ())
	}

	if err := Bind(tree, object); err != nil {
		return err
	}
	if err := SetDefaults(object); err != nil {
		return errors.WithMessage(err, "set defaults failed")
	}
	if err := Validate(object); err != nil {
		return errors.Wrap(err, "validate config failed")
	}
	return nil
}

// Decode 按扩展名解析配置内容：.yaml/.yml, .toml, .ini, .json
func Decode(ext string, data []byte) (map[string]any, error) {
	tree := map[string]any{}
	switch strings.ToLower(strings.TrimPrefix(ext, ".")) {
	case "yaml", "yml":
		if err := yaml.Unmarshal(data, &tree); err != nil {
			return nil, errors.Wrap(err, "yaml.Unmarshal failed")
		}
	case "toml":
		if err := toml.Unmarshal(data, &tree); err != nil {
			return nil, errors.Wrap(err, "toml.Unmarshal failed")
		}
	case "json":
		if err := json.Unmarshal(data, &tree); err != nil {
			return nil, errors.Wrap(err, "json.Unmarshal failed")
		}
	case "ini":
		file, err := ini.Load(data)
		if err != nil {
			return nil, errors.Wrap(err, "ini.Load failed")
		}
		for _, section := range file.Sections() {
			values := map[string]any{}
			for _, key := range section.Keys() {
				values[key.Name()] = key.String()
			}
			if section.Name() == ini.DefaultSection {
				for k, v := range values {
					tree[k] = v
				}
				continue
			}
			setPath(tree, strings.Split(section.Name(), "."), values)
		}
	default:
		return nil, errors.Errorf("unsupported config format %q", ext)
	}
	if tree == nil {
		tree = map[string]any{}
	}
	return tree, nil
}

// Bind 用 mapstructure 将通用配置树绑定到结构体
func Bind(tree any, object any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "cfg",
		WeaklyTypedInput: true,
		Result:           object,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return errors.Wrap(err, "mapstructure.NewDecoder failed")
	}
	if err := decoder.Decode(tree); err != nil {
		return errors.Wrap(err, "bind config failed")
	}
	return nil
}

func overlayEnv(tree map[string]any, prefix string, environ []string) {
	prefix = strings.ToUpper(prefix) + "_"
	for _, kv := range environ {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(strings.ToUpper(key), prefix) {
			continue
		}
		path := strings.Split(strings.ToLower(key[len(prefix):]), "_")
		setPath(tree, path, value)
	}
}

// setPath 按大小写不敏感的路径写入，已有 key 保留原始大小写
func setPath(tree map[string]any, path []string, value any) {
	node := tree
	for i, segment := range path {
		key := segment
		for k := range node {
			if strings.EqualFold(k, segment) {
				key = k
				break
			}
		}

		if i == len(path)-1 {
			node[key] = value
			return
		}

		next, ok := node[key].(map[string]any)
		if !ok {
			if node[key] != nil {
				return
			}
			next = map[string]any{}
			node[key] = next
		}
		node = next
	}
}
