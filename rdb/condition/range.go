package condition

import (
	"strings"

	"github.com/pkg/errors"

	"github.com/hatlonely/pgmodel/rdb"
)

// Range 范围条件，nil 边界忽略
type Range struct {
	Field string `json:"field"`
	Gt    any    `json:"gt,omitempty"`
	Gte   any    `json:"gte,omitempty"`
	Lt    any    `json:"lt,omitempty"`
	Lte   any    `json:"lte,omitempty"`
}

func (q *Range) Kind() Kind { return KindRange }

func (q *Range) ToSQL() (string, []any, error) {
	col, err := column(KindRange, q.Field)
	if err != nil {
		return "", nil, err
	}

	var parts []string
	var args []any
	for _, bound := range []struct {
		op    string
		value any
	}{{">", q.Gt}, {">=", q.Gte}, {"<", q.Lt}, {"<=", q.Lte}} {
		if bound.value == nil {
			continue
		}
		parts = append(parts, col+" "+bound.op+" ?")
		args = append(args, bound.value)
	}

	if len(parts) == 0 {
		return "", nil, errors.Wrapf(rdb.ErrInvalidArgument, "range condition on %s has no bounds", q.Field)
	}
	return strings.Join(parts, " AND "), args, nil
}
