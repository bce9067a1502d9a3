package model

import (
	"context"
	"maps"
	"reflect"
	"sort"
	"time"

	"github.com/pkg/errors"

	"github.com/hatlonely/pgmodel/log"
	"github.com/hatlonely/pgmodel/log/logger"
	"github.com/hatlonely/pgmodel/rdb"
	"github.com/hatlonely/pgmodel/rdb/builder"
	"github.com/hatlonely/pgmodel/rdb/cache"
	"github.com/hatlonely/pgmodel/rdb/dataaccess"
	"github.com/hatlonely/pgmodel/uid/intgen"
	"github.com/hatlonely/pgmodel/uid/strgen"
)

type generatorKey struct {
	index int
	field string
}

type options struct {
	hooks      Hooks
	logger     logger.Logger
	autoCreate bool
	cache      cache.Cache
	cacheTTL   time.Duration
	intGens    map[generatorKey]intgen.IntGenerator
	strGens    map[generatorKey]strgen.StrGenerator
}

type Option func(*options)

func WithHooks(h Hooks) Option {
	return func(o *options) {
		o.hooks = h
	}
}

func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithAutoCreate 构造时执行建表语句
func WithAutoCreate() Option {
	return func(o *options) {
		o.autoCreate = true
	}
}

// WithCache 缓存 Load 的结果，任何写操作成功后清空
func WithCache(c cache.Cache, ttl time.Duration) Option {
	return func(o *options) {
		o.cache = c
		o.cacheTTL = ttl
	}
}

// WithIntGenerator 写入时 field 缺失则用 gen 填充
func WithIntGenerator(index int, field string, gen intgen.IntGenerator) Option {
	return func(o *options) {
		o.intGens[generatorKey{index, field}] = gen
	}
}

func WithStrGenerator(index int, field string, gen strgen.StrGenerator) Option {
	return func(o *options) {
		o.strGens[generatorKey{index, field}] = gen
	}
}

// Model 绑定一组表，负责校验、生成 SQL、执行并调用 Hooks
// Model 本身无状态，可以被并发使用，事务在 Fork 出的 DataAccess 上执行
type Model struct {
	tables  *rdb.TableSet
	builder *builder.Builder
	da      *dataaccess.DataAccess
	hooks   Hooks
	logger  logger.Logger

	cache    cache.Cache
	cacheTTL time.Duration
	intGens  map[generatorKey]intgen.IntGenerator
	strGens  map[generatorKey]strgen.StrGenerator
}

func NewModel(ctx context.Context, da *dataaccess.DataAccess, tables []*rdb.Table, opts ...Option) (*Model, error) {
	if da == nil {
		return nil, errors.Wrap(rdb.ErrInvalidArgument, "data access is nil")
	}
	ts, err := rdb.NewTableSet(tables)
	if err != nil {
		return nil, errors.WithMessage(err, "rdb.NewTableSet failed")
	}

	o := &options{
		logger:  log.Default(),
		intGens: map[generatorKey]intgen.IntGenerator{},
		strGens: map[generatorKey]strgen.StrGenerator{},
	}
	for _, opt := range opts {
		opt(o)
	}
	for key := range o.intGens {
		if err := checkGeneratorField(ts, key); err != nil {
			return nil, err
		}
	}
	for key := range o.strGens {
		if err := checkGeneratorField(ts, key); err != nil {
			return nil, err
		}
	}

	m := &Model{
		tables:   ts,
		builder:  builder.New(ts, builder.WithLogger(o.logger)),
		da:       da,
		hooks:    o.hooks,
		logger:   o.logger,
		cache:    o.cache,
		cacheTTL: o.cacheTTL,
		intGens:  o.intGens,
		strGens:  o.strGens,
	}

	if o.autoCreate {
		if err := m.CreateTables(ctx); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func checkGeneratorField(ts *rdb.TableSet, key generatorKey) error {
	t, err := ts.Lookup(key.index)
	if err != nil {
		return err
	}
	if !t.HasField(key.field) {
		return errors.Wrapf(rdb.ErrInvalidArgument, "generator field %s not in table %s", key.field, t.Name)
	}
	return nil
}

func (m *Model) Tables() []*rdb.Table {
	return m.tables.Tables()
}

func (m *Model) Builder() *builder.Builder {
	return m.builder
}

// CreateTables 对每张表执行 CREATE TABLE IF NOT EXISTS
func (m *Model) CreateTables(ctx context.Context) error {
	sqls := m.builder.BuildCreateTableSQL()
	stmts := make([]*rdb.Statement, len(sqls))
	for i, sql := range sqls {
		stmts[i] = &rdb.Statement{SQL: sql}
	}
	if _, err := m.da.ExecuteNonQueryWithSQLs(ctx, stmts); err != nil {
		return errors.WithMessage(err, "create tables failed")
	}
	return nil
}

// VerifyTableData 检查必填字段：requirePKs 时包括主键，以及所有没有默认值的 NOT NULL 字段
// 字段存在且不为 nil 即视为已提供，零值和空字符串是合法值
func (m *Model) VerifyTableData(index int, row rdb.Row, requirePKs bool) error {
	t, err := m.tables.Lookup(index)
	if err != nil {
		return err
	}
	if row == nil {
		return errors.Wrapf(rdb.ErrInvalidArgument, "row for table %s is nil", t.Name)
	}

	for name := range row {
		if !t.HasField(name) {
			return errors.Wrapf(rdb.ErrInvalidArgument, "unknown field %s in table %s", name, t.Name)
		}
	}

	required := make([]string, 0, len(t.PrimaryKeys)+len(t.Fields))
	if requirePKs {
		required = append(required, t.PrimaryKeys...)
	}
	for _, f := range t.Fields {
		if f.NotNull && f.Default == nil {
			required = append(required, f.Name)
		}
	}

	for _, name := range required {
		if !present(row, name) {
			return errors.Wrapf(rdb.ErrMissingField, "%s is a not null field of table %s but no value provided", name, t.Name)
		}
	}
	return nil
}

func present(row rdb.Row, name string) bool {
	v, ok := row[name]
	if !ok || v == nil {
		return false
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Map, reflect.Slice:
		return !rv.IsNil()
	}
	return true
}

// prepareRow 复制调用方的数据并填充缺失的生成字段
func (m *Model) prepareRow(index int, row rdb.Row) (rdb.Row, error) {
	if row == nil {
		return nil, errors.Wrap(rdb.ErrInvalidArgument, "row is nil")
	}
	row = maps.Clone(row)

	for key, gen := range m.intGens {
		if key.index != index || present(row, key.field) {
			continue
		}
		id := gen.Generate()
		if id == 0 {
			return nil, errors.Errorf("generate %s for table %d failed", key.field, index)
		}
		row[key.field] = id
	}
	for key, gen := range m.strGens {
		if key.index != index || present(row, key.field) {
			continue
		}
		row[key.field] = gen.Generate()
	}
	return row, nil
}

// splitRow 字段名排序，保证生成的 SQL 稳定
func splitRow(row rdb.Row) ([]string, []any) {
	fields := make([]string, 0, len(row))
	for k := range row {
		fields = append(fields, k)
	}
	sort.Strings(fields)

	values := make([]any, len(fields))
	for i, f := range fields {
		values[i] = row[f]
	}
	return fields, values
}

func (m *Model) hook(fn func(h Hooks) error) error {
	if m.hooks == nil {
		return nil
	}
	if err := fn(m.hooks); err != nil {
		return errors.WithMessage(err, "hook failed")
	}
	return nil
}

func (m *Model) purgeCache(ctx context.Context) {
	if m.cache == nil {
		return
	}
	if err := m.cache.Purge(ctx); err != nil {
		m.logger.WarnContext(ctx, "purge cache failed", "error", err.Error())
	}
}
