package model

import (
	"context"

	"github.com/pkg/errors"

	"github.com/hatlonely/pgmodel/rdb"
	"github.com/hatlonely/pgmodel/rdb/cache"
)

// AddNew 在连接池上插入一行，返回插入后的完整行
func (m *Model) AddNew(ctx context.Context, index int, row rdb.Row) (rdb.Row, error) {
	row, err := m.prepareRow(index, row)
	if err != nil {
		return nil, err
	}
	if err := m.VerifyTableData(index, row, true); err != nil {
		return nil, err
	}
	if err := m.hook(func(h Hooks) error {
		return h.BeforeAddNew(ctx, []TableRow{{Index: index, Row: row}})
	}); err != nil {
		return nil, err
	}

	fields, values := splitRow(row)
	stmt, err := m.builder.BuildInsertSQL(index, fields, values)
	if err != nil {
		return nil, errors.WithMessage(err, "build insert sql failed")
	}

	rows, err := m.da.ExecuteRowsWithSQL(ctx, stmt)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, errors.Wrap(rdb.ErrNoRows, "insert")
	}
	m.purgeCache(ctx)

	if err := m.hook(func(h Hooks) error {
		return h.AfterAddNew(ctx, &AddNewResult{Row: rows[0]})
	}); err != nil {
		return rows[0], err
	}
	return rows[0], nil
}

// AddNewTables 在一个事务中写入多张表，结果以 Alias 或下标为 key
// 构建失败时不开启事务；执行失败时回滚并返回空结果
func (m *Model) AddNewTables(ctx context.Context, rows []TableRow) (map[string][]rdb.Row, error) {
	if len(rows) == 0 {
		return map[string][]rdb.Row{}, errors.Wrap(rdb.ErrInvalidArgument, "no rows")
	}

	prepared := make([]TableRow, len(rows))
	for i, tr := range rows {
		row, err := m.prepareRow(tr.Index, tr.Row)
		if err != nil {
			return map[string][]rdb.Row{}, err
		}
		if err := m.VerifyTableData(tr.Index, row, true); err != nil {
			return map[string][]rdb.Row{}, err
		}
		prepared[i] = TableRow{Index: tr.Index, Alias: tr.Alias, Row: row}
	}

	if err := m.hook(func(h Hooks) error {
		return h.BeforeAddNew(ctx, prepared)
	}); err != nil {
		return map[string][]rdb.Row{}, err
	}

	stmts := make([]*rdb.Statement, len(prepared))
	for i, tr := range prepared {
		fields, values := splitRow(tr.Row)
		stmt, err := m.builder.BuildInsertSQL(tr.Index, fields, values)
		if err != nil {
			return map[string][]rdb.Row{}, errors.WithMessage(err, "build insert sql failed")
		}
		stmt.Alias = tr.Alias
		stmts[i] = stmt
	}

	da := m.da.Fork()
	if err := da.BeginTransaction(ctx); err != nil {
		return map[string][]rdb.Row{}, err
	}
	results, err := da.ExecuteTransactionWithSQLs(ctx, stmts)
	if err != nil {
		return map[string][]rdb.Row{}, err
	}
	if err := da.CommitTransaction(ctx); err != nil {
		return map[string][]rdb.Row{}, err
	}
	m.purgeCache(ctx)

	if err := m.hook(func(h Hooks) error {
		return h.AfterAddNew(ctx, &AddNewResult{Rows: results})
	}); err != nil {
		return results, err
	}
	return results, nil
}

// Delete 返回被删除的第一行，没有删除任何行时返回 ErrNoRows
func (m *Model) Delete(ctx context.Context, req *DeleteRequest) (rdb.Row, error) {
	if req == nil {
		return nil, errors.Wrap(rdb.ErrInvalidArgument, "delete request is nil")
	}
	if req.PKValues == nil && req.Condition == nil && req.WhereClause == "" {
		return nil, errors.Wrap(rdb.ErrInvalidArgument, "delete requires pk values, condition or where clause")
	}
	if err := m.hook(func(h Hooks) error {
		return h.BeforeDelete(ctx, req)
	}); err != nil {
		return nil, err
	}

	var stmt *rdb.Statement
	var err error
	switch {
	case req.PKValues != nil:
		stmt, err = m.builder.BuildDeleteSQLByPKs(req.TableIndex, req.PKValues)
	case req.Condition != nil:
		stmt, err = m.builder.BuildDeleteSQLByCondition(req.TableIndex, req.Condition)
	default:
		stmt, err = m.builder.BuildDeleteSQLByWhereClause(req.TableIndex, req.WhereClause)
	}
	if err != nil {
		return nil, errors.WithMessage(err, "build delete sql failed")
	}

	rows, err := m.da.ExecuteRowsWithSQL(ctx, stmt)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, errors.Wrap(rdb.ErrNoRows, "delete")
	}
	m.purgeCache(ctx)

	if err := m.hook(func(h Hooks) error {
		return h.AfterDelete(ctx, rows[0])
	}); err != nil {
		return rows[0], err
	}
	return rows[0], nil
}

// Update 返回所有被更新的行；按主键更新时 Data 中也必须包含主键
func (m *Model) Update(ctx context.Context, req *UpdateRequest) ([]rdb.Row, error) {
	if req == nil {
		return nil, errors.Wrap(rdb.ErrInvalidArgument, "update request is nil")
	}
	if req.PKValues == nil && req.Condition == nil && req.WhereClause == "" {
		return nil, errors.Wrap(rdb.ErrInvalidArgument, "update requires pk values, condition or where clause")
	}
	if err := m.hook(func(h Hooks) error {
		return h.BeforeUpdate(ctx, req)
	}); err != nil {
		return nil, err
	}
	if err := m.VerifyTableData(req.TableIndex, req.Data, req.PKValues != nil); err != nil {
		return nil, err
	}

	fields, values := splitRow(req.Data)
	var stmt *rdb.Statement
	var err error
	switch {
	case req.PKValues != nil:
		stmt, err = m.builder.BuildUpdateSQLByPKs(req.TableIndex, fields, values, req.PKValues)
	case req.Condition != nil:
		stmt, err = m.builder.BuildUpdateSQLByCondition(req.TableIndex, fields, values, req.Condition)
	default:
		stmt, err = m.builder.BuildUpdateSQLByWhereClause(req.TableIndex, fields, values, req.WhereClause)
	}
	if err != nil {
		return nil, errors.WithMessage(err, "build update sql failed")
	}

	rows, err := m.da.ExecuteRowsWithSQL(ctx, stmt)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, errors.Wrap(rdb.ErrNoRows, "update")
	}
	m.purgeCache(ctx)

	if err := m.hook(func(h Hooks) error {
		return h.AfterUpdate(ctx, rows)
	}); err != nil {
		return rows, err
	}
	return rows, nil
}

// Load 指定 TableIndex 时查询单表，否则按逻辑编号 join 所有表
func (m *Model) Load(ctx context.Context, req *LoadRequest) ([]rdb.Row, error) {
	if req == nil {
		return nil, errors.Wrap(rdb.ErrInvalidArgument, "load request is nil")
	}
	if err := m.hook(func(h Hooks) error {
		return h.BeforeLoad(ctx, req)
	}); err != nil {
		return nil, err
	}

	stmt, err := m.buildLoadSQL(req)
	if err != nil {
		return nil, errors.WithMessage(err, "build query sql failed")
	}

	rows, err := m.query(ctx, stmt)
	if err != nil {
		return nil, err
	}

	if err := m.hook(func(h Hooks) error {
		return h.AfterLoad(ctx, rows)
	}); err != nil {
		return rows, err
	}
	return rows, nil
}

func (m *Model) buildLoadSQL(req *LoadRequest) (*rdb.Statement, error) {
	if req.TableIndex == nil {
		switch {
		case req.PKValues != nil:
			return nil, errors.Wrap(rdb.ErrInvalidArgument, "pk values require a table index")
		case req.Condition != nil:
			return m.builder.BuildModelQuerySQLByCondition(req.Fields, req.Condition, req.Options)
		default:
			return m.builder.BuildModelQuerySQLByWhereClause(req.Fields, req.WhereClause, req.Options)
		}
	}

	index := *req.TableIndex
	switch {
	case req.PKValues != nil:
		return m.builder.BuildQuerySQLByPKs(index, req.Fields, req.PKValues, req.Options)
	case req.Condition != nil:
		return m.builder.BuildQuerySQLByCondition(index, req.Fields, req.Condition, req.Options)
	default:
		return m.builder.BuildQuerySQLByWhereClause(index, req.Fields, req.WhereClause, req.Options)
	}
}

// query 优先读缓存，缓存出错只记日志
func (m *Model) query(ctx context.Context, stmt *rdb.Statement) ([]rdb.Row, error) {
	if m.cache == nil {
		return m.da.ExecuteRowsWithSQL(ctx, stmt)
	}

	key, err := cache.Key(stmt)
	if err != nil {
		m.logger.WarnContext(ctx, "build cache key failed", "error", err.Error())
		return m.da.ExecuteRowsWithSQL(ctx, stmt)
	}
	// 先于数据库读取拿到代数，读取期间的写操作会让这次结果不被缓存
	epoch, err := m.cache.Epoch(ctx)
	if err != nil {
		m.logger.WarnContext(ctx, "get cache epoch failed", "error", err.Error())
		return m.da.ExecuteRowsWithSQL(ctx, stmt)
	}
	if rows, ok, err := m.cache.Get(ctx, key); err != nil {
		m.logger.WarnContext(ctx, "get cache failed", "error", err.Error())
	} else if ok {
		return rows, nil
	}

	rows, err := m.da.ExecuteRowsWithSQL(ctx, stmt)
	if err != nil {
		return nil, err
	}
	if err := m.cache.Set(ctx, key, epoch, rows, m.cacheTTL); err != nil {
		m.logger.WarnContext(ctx, "set cache failed", "error", err.Error())
	}
	return rows, nil
}
