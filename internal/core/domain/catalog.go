// Package domain file: internal/core/domain/catalog.go
package domain

import "fmt"

// FieldType 是字段目录中声明的字段数据类型
type FieldType string

const (
	FieldText      FieldType = "text"
	FieldSearch    FieldType = "search"
	FieldInt       FieldType = "int"
	FieldBigInt    FieldType = "bigint"
	FieldFloat     FieldType = "float"
	FieldDate      FieldType = "date"
	FieldCommaList FieldType = "commalist"
)

// Ranged 报告该类型是否允许 _min / _max 范围比较。
// text 与 search 类型只支持相等或全文检索。
func (t FieldType) Ranged() bool {
	return t != FieldText && t != FieldSearch
}

// Numeric 报告该类型是否按数值比较。
func (t FieldType) Numeric() bool {
	switch t {
	case FieldInt, FieldBigInt, FieldFloat:
		return true
	}
	return false
}

// Field 描述字段目录中的一个条目
type Field struct {
	Name        string    `json:"name"`
	Type        FieldType `json:"type"`
	Description string    `json:"description"`
}

// Catalog 是某个数据源的有序字段目录。
// 字段顺序即默认投影顺序；目录创建后只读，可在多个 goroutine 间共享。
type Catalog struct {
	name   string
	fields []Field
	index  map[string]int
}

// NewCatalog 用给定的字段列表创建一个目录。重复的字段名会导致 panic，
// 因为目录都是在包初始化时静态声明的。
func NewCatalog(name string, fields ...Field) *Catalog {
	c := &Catalog{
		name:   name,
		fields: make([]Field, len(fields)),
		index:  make(map[string]int, len(fields)),
	}
	copy(c.fields, fields)
	for i, f := range c.fields {
		if _, dup := c.index[f.Name]; dup {
			panic(fmt.Sprintf("catalog %s: duplicate field %q", name, f.Name))
		}
		c.index[f.Name] = i
	}
	return c
}

// Extend 返回一个在当前目录末尾追加了字段的新目录。
func (c *Catalog) Extend(name string, extra ...Field) *Catalog {
	all := make([]Field, 0, len(c.fields)+len(extra))
	all = append(all, c.fields...)
	all = append(all, extra...)
	return NewCatalog(name, all...)
}

func (c *Catalog) Name() string { return c.name }

func (c *Catalog) Len() int { return len(c.fields) }

// Fields 返回字段列表的副本
func (c *Catalog) Fields() []Field {
	out := make([]Field, len(c.fields))
	copy(out, c.fields)
	return out
}

// Names 按目录顺序返回全部字段名
func (c *Catalog) Names() []string {
	out := make([]string, len(c.fields))
	for i, f := range c.fields {
		out[i] = f.Name
	}
	return out
}

// Lookup 按名称查找字段
func (c *Catalog) Lookup(name string) (Field, bool) {
	i, ok := c.index[name]
	if !ok {
		return Field{}, false
	}
	return c.fields[i], true
}

// KeyMap 把请求方使用的规范字段名翻译为后端字段名。
// 值为空字符串表示该字段在后端不存在，会被静默丢弃；未列出的字段按原名使用。
type KeyMap map[string]string

// Resolve 返回规范字段名对应的后端字段名；ok 为 false 表示该字段被丢弃。
func (m KeyMap) Resolve(name string) (string, bool) {
	if m == nil {
		return name, true
	}
	v, listed := m[name]
	if !listed {
		return name, true
	}
	return v, v != ""
}

// Reverse 返回后端字段名到规范字段名的映射，被丢弃的条目不出现在结果中。
func (m KeyMap) Reverse() KeyMap {
	out := make(KeyMap, len(m))
	for k, v := range m {
		if v != "" {
			out[v] = k
		}
	}
	return out
}
