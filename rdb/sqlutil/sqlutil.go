package sqlutil

import (
	"strconv"
	"strings"
)

// Quote 用单引号或双引号包裹字符串，不做转义
func Quote(s string, single bool) string {
	if single {
		return "'" + s + "'"
	}
	return `"` + s + `"`
}

// QuoteIdent 双引号包裹标识符
// A.col 只包裹列名得到 A."col"，* 和 A.* 原样返回，已包裹的不重复处理
func QuoteIdent(name string) string {
	if name == "*" || strings.HasPrefix(name, `"`) {
		return name
	}
	if prefix, col, ok := strings.Cut(name, "."); ok {
		if col == "*" || strings.HasPrefix(col, `"`) {
			return name
		}
		return prefix + "." + Quote(col, false)
	}
	return Quote(name, false)
}

// QuoteIdents 逐个包裹后用逗号连接
func QuoteIdents(names []string) string {
	quoted := make([]string, len(names))
	for i, name := range names {
		quoted[i] = QuoteIdent(name)
	}
	return strings.Join(quoted, ",")
}

// Merge 用 " sep " 连接字符串，mergeEmpty 为 false 时跳过空串
func Merge(sep string, mergeEmpty bool, strs ...string) string {
	parts := make([]string, 0, len(strs))
	for _, s := range strs {
		if s == "" && !mergeEmpty {
			continue
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, " "+sep+" ")
}

// Placeholders 生成 $start, $start+1, ... 共 n 个
func Placeholders(start, n int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('$')
		b.WriteString(strconv.Itoa(start + i))
	}
	return b.String()
}

// JoinLetter 按位置生成 join 别名：0..25 为 A..Z，之后 26 为 AA，27 为 AB，52 为 BA
func JoinLetter(i int) string {
	if i < 0 {
		return ""
	}
	if i < 26 {
		return string(rune('A' + i))
	}
	i -= 26
	return JoinLetter(i/26) + JoinLetter(i%26)
}

// Renumber 将 ? 占位符依次替换为 $start, $start+1 ...
// 单引号字符串、双引号标识符和 $tag$ 字符串内的 ? 保持不变
// 返回新的 SQL 和下一个可用编号
func Renumber(sql string, start int) (string, int) {
	var b strings.Builder
	b.Grow(len(sql) + 8)

	n := start
	var quote byte
	for i := 0; i < len(sql); i++ {
		c := sql[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
			b.WriteByte(c)
		case c == '\'' || c == '"':
			quote = c
			b.WriteByte(c)
		case c == '$':
			if tag := dollarTag(sql[i:]); tag != "" {
				end := strings.Index(sql[i+len(tag):], tag)
				if end < 0 {
					b.WriteString(sql[i:])
					return b.String(), n
				}
				stop := i + len(tag) + end + len(tag)
				b.WriteString(sql[i:stop])
				i = stop - 1
				continue
			}
			b.WriteByte(c)
		case c == '?':
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			n++
		default:
			b.WriteByte(c)
		}
	}
	return b.String(), n
}

// dollarTag 识别 $$ 或 $tag$ 开头，$1 这样的参数不算
func dollarTag(s string) string {
	for i := 1; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '$':
			return s[:i+1]
		case c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z'):
		case c >= '0' && c <= '9' && i > 1:
		default:
			return ""
		}
	}
	return ""
}
