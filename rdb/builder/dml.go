package builder

import (
	"fmt"
	"strings"

	"github.com/hatlonely/pgmodel/rdb"
	"github.com/hatlonely/pgmodel/rdb/condition"
	"github.com/hatlonely/pgmodel/rdb/sqlutil"
)

// BuildInsertSQL INSERT INTO t ( "a","b" ) VALUES ( $1, $2 ) RETURNING *;
func (b *Builder) BuildInsertSQL(index int, fields []string, values []any) (*rdb.Statement, error) {
	if err := checkFieldsAndValues(fields, values); err != nil {
		return nil, b.fail("insert", index, err)
	}
	t, err := b.lookup(index)
	if err != nil {
		return nil, b.fail("insert", index, err)
	}

	return &rdb.Statement{
		SQL: fmt.Sprintf("INSERT INTO %s ( %s ) VALUES ( %s ) RETURNING *;",
			t.Name, sqlutil.QuoteIdents(fields), sqlutil.Placeholders(1, len(values))),
		Replacements: append([]any(nil), values...),
	}, nil
}

// BuildDeleteSQLByPKs DELETE FROM t WHERE pk1 = $1 AND pk2 = $2 RETURNING *;
func (b *Builder) BuildDeleteSQLByPKs(index int, pkValues []any) (*rdb.Statement, error) {
	t, err := b.lookup(index)
	if err != nil {
		return nil, b.fail("deleteByPKs", index, err)
	}
	clause, err := pkClause(t, pkValues, 1)
	if err != nil {
		return nil, b.fail("deleteByPKs", index, err)
	}

	return &rdb.Statement{
		SQL:          fmt.Sprintf("DELETE FROM %s WHERE %s RETURNING *;", t.Name, clause),
		Replacements: append([]any(nil), pkValues...),
	}, nil
}

// BuildDeleteSQLByWhereClause 子句原样拼接，为空时删除全表
func (b *Builder) BuildDeleteSQLByWhereClause(index int, whereClause string) (*rdb.Statement, error) {
	t, err := b.lookup(index)
	if err != nil {
		return nil, b.fail("deleteByWhereClause", index, err)
	}
	return &rdb.Statement{
		SQL: fmt.Sprintf("DELETE FROM %s%s RETURNING *;", t.Name, where(whereClause)),
	}, nil
}

func (b *Builder) BuildDeleteSQLByCondition(index int, cond condition.Condition) (*rdb.Statement, error) {
	t, err := b.lookup(index)
	if err != nil {
		return nil, b.fail("deleteByCondition", index, err)
	}
	clause, args, err := renderCondition(cond, 1)
	if err != nil {
		return nil, b.fail("deleteByCondition", index, err)
	}
	return &rdb.Statement{
		SQL:          fmt.Sprintf("DELETE FROM %s WHERE %s RETURNING *;", t.Name, clause),
		Replacements: args,
	}, nil
}

func setClause(fields []string) string {
	parts := make([]string, len(fields))
	for i, f := range fields {
		parts[i] = fmt.Sprintf("%s = $%d", sqlutil.QuoteIdent(f), i+1)
	}
	return strings.Join(parts, ", ")
}

// BuildUpdateSQLByPKs SET 使用 $1..$n，主键从 $n+1 开始
func (b *Builder) BuildUpdateSQLByPKs(index int, fields []string, values []any, pkValues []any) (*rdb.Statement, error) {
	if err := checkFieldsAndValues(fields, values); err != nil {
		return nil, b.fail("updateByPKs", index, err)
	}
	t, err := b.lookup(index)
	if err != nil {
		return nil, b.fail("updateByPKs", index, err)
	}
	clause, err := pkClause(t, pkValues, len(values)+1)
	if err != nil {
		return nil, b.fail("updateByPKs", index, err)
	}

	replacements := make([]any, 0, len(values)+len(pkValues))
	replacements = append(replacements, values...)
	replacements = append(replacements, pkValues...)
	return &rdb.Statement{
		SQL:          fmt.Sprintf("UPDATE %s SET %s WHERE %s RETURNING *;", t.Name, setClause(fields), clause),
		Replacements: replacements,
	}, nil
}

// BuildUpdateSQLByWhereClause 子句中的占位符不能与 SET 的 $1..$n 冲突
func (b *Builder) BuildUpdateSQLByWhereClause(index int, fields []string, values []any, whereClause string) (*rdb.Statement, error) {
	if err := checkFieldsAndValues(fields, values); err != nil {
		return nil, b.fail("updateByWhereClause", index, err)
	}
	t, err := b.lookup(index)
	if err != nil {
		return nil, b.fail("updateByWhereClause", index, err)
	}
	return &rdb.Statement{
		SQL:          fmt.Sprintf("UPDATE %s SET %s%s RETURNING *;", t.Name, setClause(fields), where(whereClause)),
		Replacements: append([]any(nil), values...),
	}, nil
}

// BuildUpdateSQLByCondition 条件占位符接在 SET 之后编号
func (b *Builder) BuildUpdateSQLByCondition(index int, fields []string, values []any, cond condition.Condition) (*rdb.Statement, error) {
	if err := checkFieldsAndValues(fields, values); err != nil {
		return nil, b.fail("updateByCondition", index, err)
	}
	t, err := b.lookup(index)
	if err != nil {
		return nil, b.fail("updateByCondition", index, err)
	}
	clause, args, err := renderCondition(cond, len(values)+1)
	if err != nil {
		return nil, b.fail("updateByCondition", index, err)
	}

	replacements := make([]any, 0, len(values)+len(args))
	replacements = append(replacements, values...)
	replacements = append(replacements, args...)
	return &rdb.Statement{
		SQL:          fmt.Sprintf("UPDATE %s SET %s WHERE %s RETURNING *;", t.Name, setClause(fields), clause),
		Replacements: replacements,
	}, nil
}
