package condition

import (
	"strings"

	"github.com/pkg/errors"

	"github.com/hatlonely/pgmodel/rdb"
)

// Term 精确匹配
type Term struct {
	Field string `json:"field"`
	Value any    `json:"value"`
}

func (q *Term) Kind() Kind { return KindTerm }

func (q *Term) ToSQL() (string, []any, error) {
	col, err := column(KindTerm, q.Field)
	if err != nil {
		return "", nil, err
	}
	if q.Value == nil {
		return col + " IS NULL", nil, nil
	}
	return col + " = ?", []any{q.Value}, nil
}

// Terms 多值匹配，渲染为 IN
type Terms struct {
	Field  string `json:"field"`
	Values []any  `json:"values"`
}

func (q *Terms) Kind() Kind { return KindTerms }

func (q *Terms) ToSQL() (string, []any, error) {
	col, err := column(KindTerms, q.Field)
	if err != nil {
		return "", nil, err
	}
	if len(q.Values) == 0 {
		return "", nil, errors.Wrapf(rdb.ErrInvalidArgument, "terms condition on %s has no values", q.Field)
	}
	marks := strings.TrimSuffix(strings.Repeat("?, ", len(q.Values)), ", ")
	return col + " IN (" + marks + ")", append([]any(nil), q.Values...), nil
}

// Exists 字段非空
type Exists struct {
	Field string `json:"field"`
}

func (q *Exists) Kind() Kind { return KindExists }

func (q *Exists) ToSQL() (string, []any, error) {
	col, err := column(KindExists, q.Field)
	if err != nil {
		return "", nil, err
	}
	return col + " IS NOT NULL", nil, nil
}
