package condition

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/hatlonely/pgmodel/rdb"
	"github.com/hatlonely/pgmodel/rdb/sqlutil"
)

// Kind 条件类型
type Kind string

const (
	KindBool     Kind = "bool"
	KindTerm     Kind = "term"
	KindTerms    Kind = "terms"
	KindMatch    Kind = "match"
	KindRange    Kind = "range"
	KindExists   Kind = "exists"
	KindWildcard Kind = "wildcard"
	KindPrefix   Kind = "prefix"
	KindRegexp   Kind = "regexp"
	KindRaw      Kind = "raw"
)

// Condition WHERE 条件树节点，ToSQL 使用 ? 占位符，由 builder 统一重编号为 $n
type Condition interface {
	Kind() Kind
	ToSQL() (string, []any, error)
}

func column(kind Kind, field string) (string, error) {
	if field == "" {
		return "", errors.Wrapf(rdb.ErrInvalidArgument, "%s condition requires a field", kind)
	}
	return sqlutil.QuoteIdent(field), nil
}

// Bool 组合条件：Must 与 Filter 取 AND，Should 取 OR（MinShouldMatch 大于 1 时按命中数计算），MustNot 取 NOT
type Bool struct {
	Must           []Condition `json:"must,omitempty"`
	Filter         []Condition `json:"filter,omitempty"`
	Should         []Condition `json:"should,omitempty"`
	MustNot        []Condition `json:"mustNot,omitempty"`
	MinShouldMatch int         `json:"minShouldMatch,omitempty"`
}

func (q *Bool) Kind() Kind { return KindBool }

func (q *Bool) ToSQL() (string, []any, error) {
	var clauses []string
	var args []any

	render := func(conds []Condition, wrap func(string) string, sep string) error {
		if len(conds) == 0 {
			return nil
		}
		parts := make([]string, 0, len(conds))
		for _, c := range conds {
			if c == nil {
				return errors.Wrap(rdb.ErrInvalidArgument, "nil condition in bool")
			}
			sql, a, err := c.ToSQL()
			if err != nil {
				return err
			}
			parts = append(parts, wrap(sql))
			args = append(args, a...)
		}
		clauses = append(clauses, "("+strings.Join(parts, sep)+")")
		return nil
	}
	paren := func(s string) string { return "(" + s + ")" }

	if err := render(q.Must, paren, " AND "); err != nil {
		return "", nil, err
	}
	if err := render(q.Filter, paren, " AND "); err != nil {
		return "", nil, err
	}
	if q.MinShouldMatch > 1 {
		caseWhen := func(s string) string { return fmt.Sprintf("CASE WHEN (%s) THEN 1 ELSE 0 END", s) }
		if err := render(q.Should, caseWhen, " + "); err != nil {
			return "", nil, err
		}
		if len(q.Should) > 0 {
			clauses[len(clauses)-1] += fmt.Sprintf(" >= %d", q.MinShouldMatch)
		}
	} else if err := render(q.Should, paren, " OR "); err != nil {
		return "", nil, err
	}
	if err := render(q.MustNot, func(s string) string { return "NOT (" + s + ")" }, " AND "); err != nil {
		return "", nil, err
	}

	if len(clauses) == 0 {
		return "", nil, errors.Wrap(rdb.ErrInvalidArgument, "empty bool condition")
	}
	return strings.Join(clauses, " AND "), args, nil
}

// Raw 原样输出的条件片段，占位符使用 ?
// 引号和 $tag$ 字符串内的 ? 不计入占位符；jsonb 的 ?、?|、?& 运算符会被当作占位符，不支持
type Raw struct {
	SQL  string `json:"sql"`
	Args []any  `json:"args,omitempty"`
}

func NewRaw(sql string, args ...any) *Raw {
	return &Raw{SQL: sql, Args: args}
}

func (q *Raw) Kind() Kind { return KindRaw }

func (q *Raw) ToSQL() (string, []any, error) {
	if strings.TrimSpace(q.SQL) == "" {
		return "", nil, errors.Wrap(rdb.ErrInvalidArgument, "empty raw condition")
	}
	if _, n := sqlutil.Renumber(q.SQL, 0); n != len(q.Args) {
		return "", nil, errors.Wrapf(rdb.ErrInvalidArgument, "raw condition has %d placeholders but %d args", n, len(q.Args))
	}
	return q.SQL, q.Args, nil
}
