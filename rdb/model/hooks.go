package model

import (
	"context"

	"github.com/hatlonely/pgmodel/rdb"
	"github.com/hatlonely/pgmodel/rdb/builder"
	"github.com/hatlonely/pgmodel/rdb/condition"
)

// Hooks 在每个操作前后调用，Before 返回错误时中止操作，After 返回错误时操作已生效但仍返回该错误
// Before 可以修改请求内容，例如补充派生字段
type Hooks interface {
	BeforeAddNew(ctx context.Context, rows []TableRow) error
	AfterAddNew(ctx context.Context, result *AddNewResult) error
	BeforeDelete(ctx context.Context, req *DeleteRequest) error
	AfterDelete(ctx context.Context, row rdb.Row) error
	BeforeUpdate(ctx context.Context, req *UpdateRequest) error
	AfterUpdate(ctx context.Context, rows []rdb.Row) error
	BeforeLoad(ctx context.Context, req *LoadRequest) error
	AfterLoad(ctx context.Context, rows []rdb.Row) error
}

// TableRow 写入 Index 表的一行，Alias 为空时结果以下标为 key
type TableRow struct {
	Index int     `json:"index"`
	Alias string  `json:"alias,omitempty"`
	Row   rdb.Row `json:"row"`
}

// AddNewResult 单表写入时 Row 有值，多表写入时 Rows 有值
type AddNewResult struct {
	Row  rdb.Row
	Rows map[string][]rdb.Row
}

// DeleteRequest 按 PKValues、Condition、WhereClause 的优先级选择删除范围，至少指定一个
type DeleteRequest struct {
	TableIndex  int
	PKValues    []any
	WhereClause string
	Condition   condition.Condition
}

// UpdateRequest 选择范围同 DeleteRequest
type UpdateRequest struct {
	TableIndex  int
	Data        rdb.Row
	PKValues    []any
	WhereClause string
	Condition   condition.Condition
}

// LoadRequest TableIndex 为 nil 时对所有表做 join 查询，此时不支持 PKValues
type LoadRequest struct {
	TableIndex  *int
	Fields      []string
	PKValues    []any
	WhereClause string
	Condition   condition.Condition
	Options     *builder.QueryOptions
}
