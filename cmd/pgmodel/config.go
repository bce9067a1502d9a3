package main

import (
	"github.com/pkg/errors"

	"github.com/hatlonely/pgmodel/cfg"
	"github.com/hatlonely/pgmodel/log/logger"
	"github.com/hatlonely/pgmodel/rdb"
	"github.com/hatlonely/pgmodel/rdb/pool"
)

const envPrefix = "PGMODEL"

type Config struct {
	Pool   pool.Options        `cfg:"pool"`
	Log    *logger.SLogOptions `cfg:"log"`
	Tables []*rdb.Table        `cfg:"tables" validate:"required,min=1,dive"`
}

// LoadConfig 支持 yaml/toml/json/ini，PGMODEL_POOL_HOST 形式的环境变量覆盖文件中的配置
func LoadConfig(path string, environ func() []string) (*Config, error) {
	var c Config
	opts := []cfg.LoadOption{cfg.WithEnvPrefix(envPrefix)}
	if environ != nil {
		opts = append(opts, cfg.WithEnviron(environ))
	}
	if err := cfg.Load(path, &c, opts...); err != nil {
		return nil, err
	}

	for _, t := range c.Tables {
		for i := range t.Fields {
			typ, err := rdb.ParseDataType(string(t.Fields[i].Type))
			if err != nil {
				return nil, errors.WithMessagef(err, "table %s field %s", t.Name, t.Fields[i].Name)
			}
			t.Fields[i].Type = typ
		}
	}
	return &c, nil
}
