package builder

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/hatlonely/pgmodel/log"
	"github.com/hatlonely/pgmodel/log/logger"
	"github.com/hatlonely/pgmodel/rdb"
	"github.com/hatlonely/pgmodel/rdb/condition"
	"github.com/hatlonely/pgmodel/rdb/sqlutil"
)

// AllFields 查询全部列
var AllFields = []string{"*"}

const defaultCharLength = 254

// QueryOptions 查询后缀，按 ORDER BY、LIMIT、OFFSET 顺序拼接，零值不输出
type QueryOptions struct {
	Distinct  bool   `cfg:"distinct" json:"distinct,omitempty"`
	OrderBy   string `cfg:"orderBy" json:"orderBy,omitempty"`
	OrderDesc bool   `cfg:"orderDesc" json:"orderDesc,omitempty"`
	Limit     int    `cfg:"limit" json:"limit,omitempty"`
	Offset    int    `cfg:"offset" json:"offset,omitempty"`
}

// Executor ColumnExists 需要的查询能力
type Executor interface {
	ExecuteRowsWithSQL(ctx context.Context, stmt *rdb.Statement) ([]rdb.Row, error)
}

type Option func(*Builder)

func WithLogger(l logger.Logger) Option {
	return func(b *Builder) {
		if l != nil {
			b.logger = l
		}
	}
}

// Builder 根据表定义生成带 $n 占位符的 SQL，不做任何 I/O（ColumnExists 除外）
type Builder struct {
	tables *rdb.TableSet
	logger logger.Logger
}

func New(tables *rdb.TableSet, opts ...Option) *Builder {
	b := &Builder{tables: tables, logger: log.Default()}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Builder) Tables() *rdb.TableSet {
	return b.tables
}

// fail 记录构建失败，返回原错误
func (b *Builder) fail(op string, index int, err error) error {
	b.logger.Warn("build sql failed", "operation", op, "table", index, "error", err.Error())
	return err
}

func (b *Builder) lookup(index int) (*rdb.Table, error) {
	if b.tables == nil {
		return nil, errors.Wrapf(rdb.ErrTableNotFound, "index %d", index)
	}
	return b.tables.Lookup(index)
}

// BuildCreateTableSQL 按声明顺序为每张表生成 CREATE TABLE IF NOT EXISTS
func (b *Builder) BuildCreateTableSQL() []string {
	if b.tables == nil {
		return nil
	}

	tables := b.tables.Tables()
	sqls := make([]string, 0, len(tables))
	for _, t := range tables {
		defs := make([]string, 0, len(t.Fields)+2)
		for i := range t.Fields {
			defs = append(defs, columnDefinition(&t.Fields[i]))
		}
		if len(t.PrimaryKeys) > 0 {
			defs = append(defs, "PRIMARY KEY ("+strings.Join(t.PrimaryKeys, ",")+")")
		}
		if len(t.Unique) > 0 {
			defs = append(defs, fmt.Sprintf("CONSTRAINT %s_unique_constraint UNIQUE (%s)", t.Name, strings.Join(t.Unique, ",")))
		}
		sqls = append(sqls, fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s ( %s );", t.Name, strings.Join(defs, ", ")))
	}
	return sqls
}

func columnDefinition(f *rdb.Field) string {
	var sb strings.Builder
	sb.WriteString(sqlutil.QuoteIdent(f.Name))
	sb.WriteByte(' ')

	switch f.Type {
	case rdb.CHAR, rdb.VARCHAR:
		length := f.Length
		if length <= 0 {
			length = defaultCharLength
		}
		sb.WriteString(string(f.Type) + "(" + strconv.Itoa(length) + ")")
	case rdb.TIMESTAMP:
		sb.WriteString("TIMESTAMP WITHOUT TIME ZONE")
	case rdb.TIMESTAMPTZ:
		sb.WriteString("TIMESTAMP WITH TIME ZONE")
	default:
		sb.WriteString(string(f.Type))
	}

	if def, ok := defaultExpression(f); ok {
		sb.WriteString(" DEFAULT " + def)
	}
	if f.NotNull {
		sb.WriteString(" NOT NULL")
	}
	return sb.String()
}

func defaultExpression(f *rdb.Field) (string, bool) {
	switch v := f.Default.(type) {
	case nil:
		return "", false
	case string:
		if v == rdb.DefaultNow {
			switch f.Type {
			case rdb.DATE:
				return "DATE(now())", true
			case rdb.TIMESTAMP, rdb.TIMESTAMPTZ:
				return "CURRENT_TIMESTAMP", true
			}
		}
		if v == "" {
			return "''", true
		}
		return v, true
	case bool:
		if v {
			return "TRUE", true
		}
		return "FALSE", true
	default:
		return fmt.Sprintf("%v", v), true
	}
}

func checkFieldsAndValues(fields []string, values []any) error {
	if fields == nil || values == nil {
		return errors.Wrap(rdb.ErrFieldValueMismatch, "fields and values must not be nil")
	}
	if len(fields) != len(values) {
		return errors.Wrapf(rdb.ErrFieldValueMismatch, "%d fields but %d values", len(fields), len(values))
	}
	if len(fields) == 0 {
		return errors.Wrap(rdb.ErrInvalidArgument, "no fields")
	}
	return nil
}

// pkClause 生成 pk1 = $start AND pk2 = $start+1 ...
func pkClause(t *rdb.Table, pkValues []any, start int) (string, error) {
	if len(t.PrimaryKeys) == 0 {
		return "", errors.Wrapf(rdb.ErrInvalidArgument, "table %s has no primary keys", t.Name)
	}
	if pkValues == nil || len(pkValues) != len(t.PrimaryKeys) {
		return "", errors.Wrapf(rdb.ErrFieldValueMismatch, "table %s has %d primary keys but %d values", t.Name, len(t.PrimaryKeys), len(pkValues))
	}

	parts := make([]string, len(t.PrimaryKeys))
	for i, pk := range t.PrimaryKeys {
		parts[i] = fmt.Sprintf("%s = $%d", pk, start+i)
	}
	return strings.Join(parts, " AND "), nil
}

func renderCondition(cond condition.Condition, start int) (string, []any, error) {
	if cond == nil {
		return "", nil, errors.Wrap(rdb.ErrInvalidArgument, "nil condition")
	}
	sql, args, err := cond.ToSQL()
	if err != nil {
		return "", nil, err
	}
	sql, _ = sqlutil.Renumber(sql, start)
	return sql, args, nil
}

func selectFields(fields []string) (string, error) {
	if len(fields) == 0 {
		return "", errors.Wrap(rdb.ErrInvalidArgument, "no select fields")
	}
	quoted := make([]string, len(fields))
	for i, f := range fields {
		if f == "" {
			return "", errors.Wrap(rdb.ErrInvalidArgument, "empty select field")
		}
		quoted[i] = sqlutil.QuoteIdent(f)
	}
	return strings.Join(quoted, ", "), nil
}

func selectHead(opts *QueryOptions, fields string) string {
	if opts != nil && opts.Distinct {
		return "SELECT DISTINCT " + fields
	}
	return "SELECT " + fields
}

func querySuffix(opts *QueryOptions) string {
	if opts == nil {
		return ""
	}
	var sb strings.Builder
	if opts.OrderBy != "" {
		sb.WriteString(" ORDER BY " + sqlutil.QuoteIdent(opts.OrderBy))
		if opts.OrderDesc {
			sb.WriteString(" DESC")
		}
	}
	if opts.Limit > 0 {
		sb.WriteString(" LIMIT " + strconv.Itoa(opts.Limit))
	}
	if opts.Offset > 0 {
		sb.WriteString(" OFFSET " + strconv.Itoa(opts.Offset))
	}
	return sb.String()
}

func where(clause string) string {
	if clause == "" {
		return ""
	}
	return " WHERE " + clause
}
