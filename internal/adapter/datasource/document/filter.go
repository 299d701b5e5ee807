// Package document file: internal/adapter/datasource/document/filter.go
package document

import (
	"GeoAegis/internal/core/domain"
	"GeoAegis/internal/core/port"
	"GeoAegis/internal/query"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// 行程集合的两种键名表
const (
	KeysFull    = "full"
	KeysCompact = "compact"
)

// keyTable 返回配置对应的键名表，未配置时使用完整键名
func keyTable(name string) domain.KeyMap {
	if name == KeysCompact {
		return domain.MongoCompactKeys
	}
	return domain.MongoFullKeys
}

// storageNames 把计划中的目录字段名改写为集合中的键名
func storageNames(plan *query.Plan, keys domain.KeyMap) {
	for i, c := range plan.Columns {
		plan.Columns[i] = storageName(keys, c)
	}
	for i := range plan.Conditions {
		plan.Conditions[i].Column = storageName(keys, plan.Conditions[i].Column)
	}
	for i := range plan.Sort {
		plan.Sort[i].Column = storageName(keys, plan.Sort[i].Column)
	}
}

func storageName(keys domain.KeyMap, name string) string {
	if v, ok := keys.Resolve(name); ok {
		return v
	}
	return name
}

// buildFilter 把条件渲染为 find 过滤文档。
// 同一字段同时给出等值与范围时等值优先，范围被忽略。
func buildFilter(conds []query.Condition, bsonDates bool) (bson.D, error) {
	type slot struct {
		at     int
		ranged bool
	}
	filter := bson.D{}
	slots := make(map[string]slot)
	for _, c := range conds {
		var v any
		switch c.Op {
		case query.OpSearch:
			return nil, port.QueryFailed("mongo", "feature_not_supported",
				errors.New("文档库不支持全文检索字段 '"+c.Field+"'"))
		case query.OpIn:
			v = bson.D{{Key: "$in", Value: c.Values}}
		default:
			v = c.Value
			if c.Type == domain.FieldDate && bsonDates {
				v = primitive.NewDateTimeFromTime(c.Time)
			}
		}

		s, seen := slots[c.Column]
		if c.Op == query.OpEq || c.Op == query.OpIn {
			if seen {
				filter[s.at].Value = v
				slots[c.Column] = slot{at: s.at}
			} else {
				slots[c.Column] = slot{at: len(filter)}
				filter = append(filter, bson.E{Key: c.Column, Value: v})
			}
			continue
		}

		op := "$gte"
		if c.Op == query.OpLt {
			op = "$lt"
		}
		switch {
		case !seen:
			slots[c.Column] = slot{at: len(filter), ranged: true}
			filter = append(filter, bson.E{Key: c.Column, Value: bson.D{{Key: op, Value: v}}})
		case s.ranged:
			filter[s.at].Value = append(filter[s.at].Value.(bson.D), bson.E{Key: op, Value: v})
		}
	}
	return filter, nil
}

// withExtraFilters 把数据源配置的匹配文档以 $and 追加到过滤条件上
func withExtraFilters(filter bson.D, extra []map[string]any) bson.D {
	if len(extra) == 0 {
		return filter
	}
	clauses := make(bson.A, len(extra))
	for i, f := range extra {
		clauses[i] = bson.M(f)
	}
	return append(filter, bson.E{Key: "$and", Value: clauses})
}

// projection 只返回请求的列，并排除 _id
func projection(columns []string) bson.D {
	p := make(bson.D, 0, len(columns)+1)
	hasID := false
	for _, c := range columns {
		if c == "_id" {
			hasID = true
		}
		p = append(p, bson.E{Key: c, Value: 1})
	}
	if !hasID {
		p = append(p, bson.E{Key: "_id", Value: 0})
	}
	return p
}

func sortDoc(sort []query.SortColumn) bson.D {
	if len(sort) == 0 {
		return nil
	}
	d := make(bson.D, len(sort))
	for i, s := range sort {
		dir := 1
		if s.Desc {
			dir = -1
		}
		d[i] = bson.E{Key: s.Column, Value: dir}
	}
	return d
}

// cell 把文档中的值规范化：BSON datetime 转为 epoch 毫秒，int32 提升为 int64
func cell(v any) any {
	switch t := v.(type) {
	case primitive.DateTime:
		return int64(t)
	case int32:
		return int64(t)
	default:
		return v
	}
}
