// Package tsquery file: internal/tsquery/sql.go
package tsquery

import (
	"strconv"
	"strings"
)

// Binder 为一个绑定参数分配占位符（$n 或 ?）
type Binder interface {
	Bind(v any) string
}

const (
	hashtagLeft  = `(^|[^\w#])`
	hashtagRight = `($|[^\w#])`
)

// Pattern 返回短语的大小写不敏感匹配正则。话题标签两侧锚定在非单词字符上。
func (p Phrase) Pattern() string {
	esc := escapePattern(p.Text)
	if p.Hashtag {
		return hashtagLeft + esc + hashtagRight
	}
	return esc
}

// escapePattern 在除 ASCII 字母、数字与下划线以外的每个字符前加反斜杠，NUL 写作 \000。
// PostgreSQL 正则中反斜杠加非字母数字字符表示该字符本身。非 ASCII 字符不转义。
func escapePattern(s string) string {
	var sb strings.Builder
	sb.Grow(len(s) * 2)
	for _, r := range s {
		switch {
		case r == 0:
			sb.WriteString(`\000`)
		case r >= 0x80, r == '_',
			'a' <= r && r <= 'z', 'A' <= r && r <= 'Z', '0' <= r && r <= '9':
			sb.WriteRune(r)
		default:
			sb.WriteByte('\\')
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

// SQL 把表达式渲染为针对 column 的 WHERE 子句片段（不含前导 AND）。
// 表达式为空且没有精确校验短语时返回空串，调用方应省略该条件。
func (e *Expression) SQL(column string, b Binder) string {
	if e.Empty() {
		return ""
	}
	var sb strings.Builder
	if e.Query != "" {
		sb.WriteString("to_tsvector('english', ")
		sb.WriteString(column)
		sb.WriteString(") @@ to_tsquery('english', ")
		sb.WriteString(b.Bind(e.Query))
		sb.WriteString(")")
	} else {
		sb.WriteString("true")
	}
	for _, p := range e.Include {
		sb.WriteString(" AND ")
		sb.WriteString(column)
		sb.WriteString(" ~* ")
		sb.WriteString(b.Bind(p.Pattern()))
	}
	for _, p := range e.Exclude {
		sb.WriteString(" AND NOT (true AND ")
		sb.WriteString(column)
		sb.WriteString(" ~* ")
		sb.WriteString(b.Bind(p.Pattern()))
		sb.WriteString(")")
	}
	return sb.String()
}

// DollarBinder 按 PostgreSQL 的 $n 风格收集参数
type DollarBinder struct {
	Args []any
}

func (d *DollarBinder) Bind(v any) string {
	d.Args = append(d.Args, v)
	return "$" + strconv.Itoa(len(d.Args))
}

// QuestionBinder 按 ? 风格收集参数
type QuestionBinder struct {
	Args []any
}

func (q *QuestionBinder) Bind(v any) string {
	q.Args = append(q.Args, v)
	return "?"
}
