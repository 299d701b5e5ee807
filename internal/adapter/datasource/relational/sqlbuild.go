// Package relational file: internal/adapter/datasource/relational/sqlbuild.go
package relational

import (
	"GeoAegis/internal/core/domain"
	"GeoAegis/internal/core/port"
	"GeoAegis/internal/query"
	"GeoAegis/internal/tsquery"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var errSearchUnsupported = errors.New("该数据源不支持全文检索")

// dialect 描述不同关系型后端在 SQL 文本上的差异
type dialect struct {
	name   string
	dollar bool
	search bool
}

var (
	dialectPostgres = dialect{name: domain.KindPostgres, dollar: true, search: true}
	dialectSQLite   = dialect{name: domain.KindSQLite}
)

func (d dialect) binder() (tsquery.Binder, func() []any) {
	if d.dollar {
		b := &tsquery.DollarBinder{}
		return b, func() []any { return b.Args }
	}
	b := &tsquery.QuestionBinder{}
	return b, func() []any { return b.Args }
}

// selectSpec 是渲染一条 SELECT 所需的全部输入
type selectSpec struct {
	table        string
	catalog      *domain.Catalog
	plan         *query.Plan
	where        []string
	requireGeo   bool
	milliseconds bool
	// upper 不为 nil 时用 _id < upper 替换恒真条件，保证不会读到游标之后写入的数据
	upper *int64
}

// buildSelect 构建查询语句与绑定参数
func buildSelect(d dialect, s selectSpec) (string, []any, error) {
	b, args := d.binder()

	var sb strings.Builder
	sb.WriteString("SELECT ")
	for i, col := range s.plan.Columns {
		if i > 0 {
			sb.WriteString(",")
		}
		sb.WriteString(outputColumn(s.catalog, col, s.milliseconds))
	}
	sb.WriteString(" FROM ")
	sb.WriteString(s.table)
	if s.upper != nil {
		sb.WriteString(" WHERE _id<")
		sb.WriteString(strconv.FormatInt(*s.upper, 10))
	} else {
		sb.WriteString(" WHERE true")
	}
	for _, w := range s.where {
		sb.WriteString(" AND (")
		sb.WriteString(w)
		sb.WriteString(")")
	}
	if s.requireGeo {
		if f, ok := s.catalog.Lookup("latitude"); ok {
			sb.WriteString(" AND ")
			sb.WriteString(f.Name)
			sb.WriteString(" IS NOT NULL")
		}
	}

	for _, c := range s.plan.Conditions {
		clause, err := condition(d, b, c)
		if err != nil {
			return "", nil, err
		}
		if clause != "" {
			sb.WriteString(" AND ")
			sb.WriteString(clause)
		}
	}

	if len(s.plan.Sort) > 0 {
		sb.WriteString(" ORDER BY ")
		for i, sc := range s.plan.Sort {
			if i > 0 {
				sb.WriteString(",")
			}
			sb.WriteString(sc.Column)
			if sc.Desc {
				sb.WriteString(" DESC")
			}
		}
	}
	if s.plan.Limit > 0 {
		fmt.Fprintf(&sb, " LIMIT %d", s.plan.Limit)
	}
	if s.plan.Offset > 0 {
		fmt.Fprintf(&sb, " OFFSET %d", s.plan.Offset)
	}
	return sb.String(), args(), nil
}

// outputColumn 以秒存储的日期列统一输出为 epoch 毫秒
func outputColumn(cat *domain.Catalog, col string, milliseconds bool) string {
	if f, ok := cat.Lookup(col); ok && f.Type == domain.FieldDate && !milliseconds {
		return "CAST(" + col + " * 1000 AS BIGINT)"
	}
	return col
}

func condition(d dialect, b tsquery.Binder, c query.Condition) (string, error) {
	switch c.Op {
	case query.OpSearch:
		if !d.search {
			return "", port.QueryFailed(d.name, "feature_not_supported", fmt.Errorf("字段 '%s': %w", c.Field, errSearchUnsupported))
		}
		return c.Search.SQL(c.Column, b), nil
	case query.OpIn:
		holders := make([]string, len(c.Values))
		for i, v := range c.Values {
			holders[i] = b.Bind(v)
		}
		return c.Column + " IN (" + strings.Join(holders, ",") + ")", nil
	default:
		return c.Column + string(c.Op) + b.Bind(c.Value), nil
	}
}
