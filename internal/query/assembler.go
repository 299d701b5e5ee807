// Package query file: internal/query/assembler.go
//
// 把扁平的请求参数按字段目录翻译成与后端无关的查询计划。
// 各后端适配器再把计划渲染为 SQL、BSON 过滤文档或搜索 DSL。
package query

import (
	"GeoAegis/internal/core/domain"
	"GeoAegis/internal/core/port"
	"GeoAegis/internal/tsquery"
	"strings"
	"time"
)

// Op 是条件的比较方式
type Op string

const (
	OpEq     Op = "="
	OpGte    Op = ">="
	OpLt     Op = "<"
	OpIn     Op = "IN"
	OpSearch Op = "search"
)

var suffixOps = []struct {
	suffix string
	op     Op
}{
	{"", OpEq},
	{domain.SuffixMin, OpGte},
	{domain.SuffixMax, OpLt},
	{domain.SuffixSearch, OpSearch},
}

// Condition 是一个已完成类型转换的过滤条件
type Condition struct {
	// Field 是请求方使用的规范字段名，Column 是后端字段名
	Field  string
	Column string
	Type   domain.FieldType
	Op     Op
	// Value 为 int64、float64 或 string；日期字段是按存储单位换算后的 epoch 值
	Value  any
	Values []string
	// Time 仅对日期字段有效
	Time   time.Time
	Search *tsquery.Expression
	Raw    string
}

// SortColumn 是翻译后的排序项
type SortColumn struct {
	Field  string
	Column string
	Desc   bool
}

// Plan 是组装结果
type Plan struct {
	Fields     []string
	Columns    []string
	Conditions []Condition
	Sort       []SortColumn
	Limit      int
	Offset     int
}

// Options 描述数据源的组装策略
type Options struct {
	// Keys 把请求字段空间翻译到后端目录；nil 表示同名
	Keys domain.KeyMap
	// Milliseconds 为 true 表示后端以 epoch 毫秒存储日期
	Milliseconds bool
	DefaultSort  []domain.SortKey
	// AlwaysUseDefaultSort 忽略调用方的排序，保证分页稳定
	AlwaysUseDefaultSort bool
	// Skip 中的规范字段不参与过滤
	Skip     map[string]bool
	Compiler *tsquery.Cache
}

// Assemble 根据后端目录组装查询计划。只会返回 *port.ValidationError。
func Assemble(cat *domain.Catalog, req domain.Request, opts Options) (*Plan, error) {
	plan := &Plan{Limit: req.Limit, Offset: req.Offset}
	plan.Fields, plan.Columns = project(cat, req, opts.Keys)

	conds, err := conditions(cat, req, opts)
	if err != nil {
		return nil, err
	}
	plan.Conditions = conds

	plan.Sort = sortColumns(cat, req.Sort, opts)
	return plan, nil
}

// project 计算投影。未请求字段时使用请求所属目录的全部字段；
// 无法映射到后端目录的字段被静默丢弃。
func project(cat *domain.Catalog, req domain.Request, keys domain.KeyMap) ([]string, []string) {
	requested := req.Fields
	if len(requested) == 0 {
		if base, ok := domain.LookupCatalog(req.Base); ok {
			requested = base.Names()
		} else {
			requested = cat.Names()
		}
	}
	fields := make([]string, 0, len(requested))
	columns := make([]string, 0, len(requested))
	for _, f := range requested {
		col, ok := keys.Resolve(f)
		if !ok {
			continue
		}
		if _, known := cat.Lookup(col); !known {
			continue
		}
		fields = append(fields, f)
		columns = append(columns, col)
	}
	return fields, columns
}

func conditions(cat *domain.Catalog, req domain.Request, opts Options) ([]Condition, error) {
	rev := opts.Keys.Reverse()
	var out []Condition
	for _, f := range cat.Fields() {
		name := f.Name
		if canonical, ok := rev[f.Name]; ok {
			name = canonical
		} else if _, ok := opts.Keys.Resolve(f.Name); !ok {
			// 请求字段空间中被丢弃的同名字段
			continue
		}
		if opts.Skip[name] {
			continue
		}
		for _, so := range suffixOps {
			raw, ok := req.Param(name + so.suffix)
			if !ok && name != f.Name {
				raw, ok = req.Param(f.Name + so.suffix)
			}
			if !ok {
				continue
			}
			cond, keep, err := buildCondition(f, name, so.suffix, so.op, raw, opts)
			if err != nil {
				return nil, err
			}
			if keep {
				out = append(out, cond)
			}
		}
	}
	return out, nil
}

func buildCondition(f domain.Field, name, suffix string, op Op, raw string, opts Options) (Condition, bool, error) {
	cond := Condition{Field: name, Column: f.Name, Type: f.Type, Op: op, Raw: raw}
	param := name + suffix

	switch op {
	case OpSearch:
		if f.Type != domain.FieldSearch {
			return cond, false, port.NewValidationError(param, raw, "只有 search 类型的字段支持全文检索")
		}
		cond.Search = opts.Compiler.Compile(raw)
		return cond, !cond.Search.Empty(), nil
	case OpGte, OpLt:
		if !f.Type.Ranged() {
			return cond, false, port.NewValidationError(param, raw, "text 与 search 类型的字段不支持范围比较")
		}
	}

	if op == OpEq && f.Type == domain.FieldCommaList && strings.Contains(raw, ",") {
		cond.Op = OpIn
		cond.Values = strings.Split(raw, ",")
		return cond, true, nil
	}

	switch f.Type {
	case domain.FieldDate:
		t, err := ParseDate(raw)
		if err != nil {
			return cond, false, port.NewValidationError(param, raw, "无法解析为日期")
		}
		cond.Time = t
		cond.Value = EpochValue(t, opts.Milliseconds)
	case domain.FieldInt, domain.FieldBigInt:
		v, err := ParseInt(raw)
		if err != nil {
			return cond, false, port.NewValidationError(param, raw, "不是有效的整数")
		}
		cond.Value = v
	case domain.FieldFloat:
		v, err := ParseFloat(raw)
		if err != nil {
			return cond, false, port.NewValidationError(param, raw, "不是有效的数值")
		}
		cond.Value = v
	default:
		cond.Value = raw
	}
	return cond, true, nil
}

// sortColumns 翻译排序。调用方给出的未知字段被忽略；数据源默认排序总是可信的，
// 即使排序列不在字段目录中（例如仅用于分页的写入顺序列）。
func sortColumns(cat *domain.Catalog, keys []domain.SortKey, opts Options) []SortColumn {
	trusted := false
	if len(keys) == 0 || opts.AlwaysUseDefaultSort {
		keys = opts.DefaultSort
		trusted = true
	}
	var out []SortColumn
	for _, k := range keys {
		col, ok := opts.Keys.Resolve(k.Field)
		if !ok {
			continue
		}
		if _, known := cat.Lookup(col); !known && !trusted {
			continue
		}
		out = append(out, SortColumn{Field: k.Field, Column: col, Desc: k.Desc})
	}
	return out
}

// SortKeys 以请求字段名返回实际使用的排序
func (p *Plan) SortKeys() []domain.SortKey {
	if len(p.Sort) == 0 {
		return nil
	}
	keys := make([]domain.SortKey, len(p.Sort))
	for i, s := range p.Sort {
		keys[i] = domain.SortKey{Field: s.Field, Desc: s.Desc}
	}
	return keys
}
