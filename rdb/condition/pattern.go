package condition

import (
	"strings"
)

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// Prefix 前缀匹配，值中的 % 和 _ 会被转义
type Prefix struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

func (q *Prefix) Kind() Kind { return KindPrefix }

func (q *Prefix) ToSQL() (string, []any, error) {
	col, err := column(KindPrefix, q.Field)
	if err != nil {
		return "", nil, err
	}
	return col + " LIKE ?", []any{likeEscaper.Replace(q.Value) + "%"}, nil
}

// Wildcard 通配符匹配：* 匹配任意个字符，? 匹配单个字符
type Wildcard struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

func (q *Wildcard) Kind() Kind { return KindWildcard }

func (q *Wildcard) ToSQL() (string, []any, error) {
	col, err := column(KindWildcard, q.Field)
	if err != nil {
		return "", nil, err
	}
	pattern := likeEscaper.Replace(q.Value)
	pattern = strings.NewReplacer("*", "%", "?", "_").Replace(pattern)
	return col + " LIKE ?", []any{pattern}, nil
}

// Match 大小写不敏感的包含匹配
type Match struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

func (q *Match) Kind() Kind { return KindMatch }

func (q *Match) ToSQL() (string, []any, error) {
	col, err := column(KindMatch, q.Field)
	if err != nil {
		return "", nil, err
	}
	return col + " ILIKE ?", []any{"%" + likeEscaper.Replace(q.Value) + "%"}, nil
}

// Regexp POSIX 正则匹配
type Regexp struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

func (q *Regexp) Kind() Kind { return KindRegexp }

func (q *Regexp) ToSQL() (string, []any, error) {
	col, err := column(KindRegexp, q.Field)
	if err != nil {
		return "", nil, err
	}
	return col + " ~ ?", []any{q.Value}, nil
}
