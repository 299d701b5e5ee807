// Package elastic file: internal/adapter/datasource/elastic/body.go
package elastic

import (
	"GeoAegis/internal/core/domain"
	"GeoAegis/internal/query"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cast"
)

const (
	scoreField = "_score"
	linkField  = "link"
	geoField   = "location.longitude"
)

// bodySpec 是构建检索请求所需的全部输入
type bodySpec struct {
	plan    *query.Plan
	filters []map[string]any
	// since 非零时只检索该时间之后的数据
	since     time.Time
	dateField string
}

// buildBody 构建检索请求体。结果按固定种子的随机分数排序，
// rand1/rand2 由分数派生，因此分页是稳定的。
func buildBody(s bodySpec) map[string]any {
	filters := []any{map[string]any{"exists": map[string]any{"field": geoField}}}
	for _, f := range s.filters {
		filters = append(filters, f)
	}
	var must []any

	fs := map[string]any{
		"random_score": map[string]any{"seed": 1, "field": "_seq_no"},
		"boost_mode":   "replace",
	}

	for _, c := range s.plan.Conditions {
		switch {
		case c.Op == query.OpSearch:
			must = append(must, map[string]any{"simple_query_string": map[string]any{
				"fields":           []string{c.Column},
				"query":            c.Raw,
				"default_operator": "AND",
			}})
		case c.Column == scoreField:
			// 随机键只支持上界，换算为最低分数
			if c.Op == query.OpLt {
				fs["min_score"] = 1.0 - cast.ToFloat64(c.Value)/1e9
			}
		case c.Op == query.OpIn:
			filters = append(filters, map[string]any{"terms": map[string]any{c.Column: c.Values}})
		default:
			v := c.Value
			if c.Type == domain.FieldDate {
				// 索引中的日期是 epoch 秒的字符串
				v = strconv.FormatInt(c.Time.Unix(), 10)
			}
			switch c.Op {
			case query.OpGte:
				filters = append(filters, rangeFilter(c.Column, "gte", v))
			case query.OpLt:
				filters = append(filters, rangeFilter(c.Column, "lt", v))
			default:
				filters = append(filters, map[string]any{"term": map[string]any{c.Column: v}})
			}
		}
	}
	if !s.since.IsZero() {
		filters = append(filters, rangeFilter(s.dateField, "gte", strconv.FormatInt(s.since.Unix(), 10)))
	}

	boolQuery := map[string]any{"filter": filters}
	if len(must) > 0 {
		boolQuery["must"] = must
	}
	fs["query"] = map[string]any{"bool": boolQuery}

	body := map[string]any{
		"query":   map[string]any{"function_score": fs},
		"_source": map[string]any{"includes": sourceIncludes(s.plan.Columns)},
	}
	if s.plan.Limit > 0 {
		body["size"] = s.plan.Limit
	}
	if s.plan.Offset > 0 {
		body["from"] = s.plan.Offset
	}
	return body
}

func rangeFilter(field, op string, v any) map[string]any {
	return map[string]any{"range": map[string]any{field: map[string]any{op: v}}}
}

// sourceIncludes 返回需要取回的文档路径；link 总是需要，用于生成 msg_id 与 url
func sourceIncludes(columns []string) []string {
	set := map[string]struct{}{linkField: {}}
	for _, c := range columns {
		if c != scoreField {
			set[c] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// ----------------------------------------------------------------------------
// 命中 -> 行
// ----------------------------------------------------------------------------

// hitRow 把一条命中转换为按 fields 排列的行，同时返回用于去重的 url
func hitRow(h hit, fields []string, keys domain.KeyMap) ([]any, string) {
	link := cast.ToString(lookup(h.Source, linkField))
	msgID := link
	if trimmed := strings.Trim(link, "/"); trimmed != "" {
		msgID = trimmed[strings.LastIndex(trimmed, "/")+1:]
	}
	url := "i/" + msgID

	var score float64
	if h.Score != nil {
		score = *h.Score
	}

	row := make([]any, len(fields))
	for i, f := range fields {
		switch f {
		case "msg_id":
			row[i] = msgID
		case "url":
			row[i] = url
		case "rand1":
			row[i] = int64((1 - score) * 1e9)
		case "rand2":
			row[i] = int64((1-score)*1e18) % 1000000000
		case "msg_date":
			if v := lookup(h.Source, "created_time"); v != nil {
				row[i] = int64(cast.ToFloat64(v) * 1000)
			}
		default:
			path, ok := keys.Resolve(f)
			if !ok {
				continue
			}
			row[i] = lookup(h.Source, path)
		}
	}
	return row, url
}

// lookup 按点分路径读取嵌套文档中的值
func lookup(doc map[string]any, path string) any {
	var cur any = doc
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = m[part]
	}
	return cur
}
