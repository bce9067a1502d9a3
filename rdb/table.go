package rdb

import (
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// DefaultNow 作为字段默认值时，DATE 渲染为 DATE(now())，TIMESTAMP 渲染为 CURRENT_TIMESTAMP
const DefaultNow = "now"

// Field 列定义
type Field struct {
	Name string   `cfg:"name" json:"name" validate:"required"`
	Type DataType `cfg:"type" json:"type" validate:"required"`
	// 仅 CHAR/VARCHAR 使用，0 表示默认长度 254
	Length int `cfg:"length" json:"length,omitempty"`
	// nil 表示没有默认值；字符串按 SQL 表达式原样输出
	Default any  `cfg:"default" json:"default,omitempty"`
	NotNull bool `cfg:"notNull" json:"notNull,omitempty"`
}

// Table 表定义，Index 是表在 Model 中的逻辑编号，决定 join 顺序
type Table struct {
	Name        string   `cfg:"name" json:"name" validate:"required"`
	Index       int      `cfg:"index" json:"index" validate:"min=0"`
	Fields      []Field  `cfg:"fields" json:"fields" validate:"required,dive"`
	PrimaryKeys []string `cfg:"primaryKeys" json:"primaryKeys"`
	Unique      []string `cfg:"unique" json:"unique,omitempty"`
}

func (t *Table) Field(name string) (*Field, bool) {
	for i := range t.Fields {
		if t.Fields[i].Name == name {
			return &t.Fields[i], true
		}
	}
	return nil, false
}

func (t *Table) HasField(name string) bool {
	_, ok := t.Field(name)
	return ok
}

// TableSet 构造后只读，按声明顺序保存表，并按逻辑编号索引
type TableSet struct {
	tables  []*Table
	byIndex map[int]*Table
	chain   []*Table
}

func NewTableSet(tables []*Table) (*TableSet, error) {
	if len(tables) == 0 {
		return nil, ErrNoTables
	}

	ts := &TableSet{
		tables:  make([]*Table, 0, len(tables)),
		byIndex: make(map[int]*Table, len(tables)),
	}
	names := map[string]struct{}{}
	for i, t := range tables {
		if t == nil {
			return nil, errors.Wrapf(ErrInvalidArgument, "table at position %d is nil", i)
		}
		if t.Name == "" {
			return nil, errors.Wrapf(ErrInvalidArgument, "table at position %d has no name", i)
		}
		if _, ok := ts.byIndex[t.Index]; ok {
			return nil, errors.Wrapf(ErrInvalidArgument, "duplicate table index %d", t.Index)
		}
		if _, ok := names[t.Name]; ok {
			return nil, errors.Wrapf(ErrInvalidArgument, "duplicate table name %s", t.Name)
		}
		names[t.Name] = struct{}{}
		ts.byIndex[t.Index] = t
		ts.tables = append(ts.tables, t)
	}

	ts.chain = append([]*Table(nil), ts.tables...)
	sort.SliceStable(ts.chain, func(i, j int) bool {
		return ts.chain[i].Index < ts.chain[j].Index
	})
	return ts, nil
}

// Lookup 按逻辑编号查找表
func (ts *TableSet) Lookup(index int) (*Table, error) {
	t, ok := ts.byIndex[index]
	if !ok {
		return nil, errors.Wrapf(ErrTableNotFound, "index %d", index)
	}
	return t, nil
}

// Tables 按声明顺序返回
func (ts *TableSet) Tables() []*Table {
	return append([]*Table(nil), ts.tables...)
}

// JoinChain 按逻辑编号升序返回，第一个为根表
func (ts *TableSet) JoinChain() []*Table {
	return append([]*Table(nil), ts.chain...)
}

func (ts *TableSet) Len() int {
	return len(ts.tables)
}

func normalizeTypeName(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, "_", " ")
	return strings.Join(strings.Fields(s), " ")
}
