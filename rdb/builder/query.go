package builder

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/hatlonely/pgmodel/rdb"
	"github.com/hatlonely/pgmodel/rdb/condition"
	"github.com/hatlonely/pgmodel/rdb/sqlutil"
)

// BuildQuerySQLByPKs SELECT fields FROM t WHERE pk1 = $1 ...
func (b *Builder) BuildQuerySQLByPKs(index int, fields []string, pkValues []any, opts *QueryOptions) (*rdb.Statement, error) {
	t, err := b.lookup(index)
	if err != nil {
		return nil, b.fail("queryByPKs", index, err)
	}
	cols, err := selectFields(fields)
	if err != nil {
		return nil, b.fail("queryByPKs", index, err)
	}
	clause, err := pkClause(t, pkValues, 1)
	if err != nil {
		return nil, b.fail("queryByPKs", index, err)
	}

	return &rdb.Statement{
		SQL:          fmt.Sprintf("%s FROM %s WHERE %s%s;", selectHead(opts, cols), t.Name, clause, querySuffix(opts)),
		Replacements: append([]any(nil), pkValues...),
	}, nil
}

// BuildQuerySQLByWhereClause 子句为空时查询全表
func (b *Builder) BuildQuerySQLByWhereClause(index int, fields []string, whereClause string, opts *QueryOptions) (*rdb.Statement, error) {
	t, err := b.lookup(index)
	if err != nil {
		return nil, b.fail("queryByWhereClause", index, err)
	}
	cols, err := selectFields(fields)
	if err != nil {
		return nil, b.fail("queryByWhereClause", index, err)
	}

	return &rdb.Statement{
		SQL: fmt.Sprintf("%s FROM %s%s%s;", selectHead(opts, cols), t.Name, where(whereClause), querySuffix(opts)),
	}, nil
}

func (b *Builder) BuildQuerySQLByCondition(index int, fields []string, cond condition.Condition, opts *QueryOptions) (*rdb.Statement, error) {
	t, err := b.lookup(index)
	if err != nil {
		return nil, b.fail("queryByCondition", index, err)
	}
	cols, err := selectFields(fields)
	if err != nil {
		return nil, b.fail("queryByCondition", index, err)
	}
	clause, args, err := renderCondition(cond, 1)
	if err != nil {
		return nil, b.fail("queryByCondition", index, err)
	}

	return &rdb.Statement{
		SQL:          fmt.Sprintf("%s FROM %s WHERE %s%s;", selectHead(opts, cols), t.Name, clause, querySuffix(opts)),
		Replacements: args,
	}, nil
}

// joinFrom 按逻辑编号升序串联所有表：t0 A INNER JOIN t1 B ON A.pk1 = B.pk1 ...
// 子表按位置配对父表主键，子表主键少于父表时报 ErrJoinArity
func (b *Builder) joinFrom() (string, error) {
	if b.tables == nil {
		return "", rdb.ErrNoTables
	}

	chain := b.tables.JoinChain()
	var sb strings.Builder
	sb.WriteString(chain[0].Name + " " + sqlutil.JoinLetter(0))
	for i := 1; i < len(chain); i++ {
		parent, child := chain[i-1], chain[i]
		if len(child.PrimaryKeys) < len(parent.PrimaryKeys) {
			return "", errors.Wrapf(rdb.ErrJoinArity, "%s has %d primary keys, parent %s has %d",
				child.Name, len(child.PrimaryKeys), parent.Name, len(parent.PrimaryKeys))
		}
		if len(parent.PrimaryKeys) == 0 {
			return "", errors.Wrapf(rdb.ErrJoinArity, "parent %s has no primary keys", parent.Name)
		}

		pl, cl := sqlutil.JoinLetter(i-1), sqlutil.JoinLetter(i)
		on := make([]string, len(parent.PrimaryKeys))
		for j, pk := range parent.PrimaryKeys {
			on[j] = fmt.Sprintf("%s.%s = %s.%s", pl, pk, cl, child.PrimaryKeys[j])
		}
		sb.WriteString(fmt.Sprintf(" INNER JOIN %s %s ON %s", child.Name, cl, strings.Join(on, " AND ")))
	}
	return sb.String(), nil
}

// BuildModelQuerySQLByWhereClause 跨所有表的 join 查询，字段可用 A.col 形式限定表
func (b *Builder) BuildModelQuerySQLByWhereClause(fields []string, whereClause string, opts *QueryOptions) (*rdb.Statement, error) {
	cols, err := selectFields(fields)
	if err != nil {
		return nil, b.fail("modelQueryByWhereClause", -1, err)
	}
	from, err := b.joinFrom()
	if err != nil {
		return nil, b.fail("modelQueryByWhereClause", -1, err)
	}

	return &rdb.Statement{
		SQL: fmt.Sprintf("%s FROM %s%s%s;", selectHead(opts, cols), from, where(whereClause), querySuffix(opts)),
	}, nil
}

func (b *Builder) BuildModelQuerySQLByCondition(fields []string, cond condition.Condition, opts *QueryOptions) (*rdb.Statement, error) {
	cols, err := selectFields(fields)
	if err != nil {
		return nil, b.fail("modelQueryByCondition", -1, err)
	}
	from, err := b.joinFrom()
	if err != nil {
		return nil, b.fail("modelQueryByCondition", -1, err)
	}
	clause, args, err := renderCondition(cond, 1)
	if err != nil {
		return nil, b.fail("modelQueryByCondition", -1, err)
	}

	return &rdb.Statement{
		SQL:          fmt.Sprintf("%s FROM %s WHERE %s%s;", selectHead(opts, cols), from, clause, querySuffix(opts)),
		Replacements: args,
	}, nil
}

const columnExistsSQL = "SELECT column_name FROM information_schema.columns WHERE table_name = $1 AND column_name = $2 LIMIT 1;"

// ColumnExists 查询 information_schema 判断列是否存在
func ColumnExists(ctx context.Context, executor Executor, table string, column string) (bool, error) {
	if table == "" || column == "" {
		return false, errors.Wrap(rdb.ErrInvalidArgument, "table and column are required")
	}
	rows, err := executor.ExecuteRowsWithSQL(ctx, &rdb.Statement{
		SQL:          columnExistsSQL,
		Replacements: []any{table, column},
	})
	if err != nil {
		return false, errors.WithMessagef(err, "check column %s.%s failed", table, column)
	}
	return len(rows) > 0, nil
}
