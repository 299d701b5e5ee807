// Package domain file: internal/core/domain/result.go
package domain

import "encoding/json"

const (
	FormatList = "list"
	FormatDict = "dict"
)

// Result 是查询结果。list 格式时数据在 Rows 中，dict 格式时在 Records 中。
type Result struct {
	Format    string
	Fields    []string
	Columns   map[string]int
	Rows      [][]any
	Records   []map[string]any
	Count     *int64
	MaxID     *int64
	NextID    *int64
	DataCount int
	Limit     int
	Offset    int
	Sort      []SortKey
}

// NewListResult 按字段顺序创建一个空的 list 格式结果
func NewListResult(fields []string) *Result {
	return &Result{
		Format:  FormatList,
		Fields:  fields,
		Columns: ColumnIndex(fields),
		Rows:    [][]any{},
	}
}

// ColumnIndex 返回字段名到列位置的映射
func ColumnIndex(fields []string) map[string]int {
	cols := make(map[string]int, len(fields))
	for i, f := range fields {
		cols[f] = i
	}
	return cols
}

// Len 返回结果中的数据行数
func (r *Result) Len() int {
	if r.Format == FormatDict {
		return len(r.Records)
	}
	return len(r.Rows)
}

// ToList 把结果转换为 list 格式，列按 fields 排列；缺失的字段填 nil。
func (r *Result) ToList(fields []string) {
	if r.Format == FormatList {
		return
	}
	rows := make([][]any, len(r.Records))
	for i, rec := range r.Records {
		row := make([]any, len(fields))
		for c, f := range fields {
			row[c] = rec[f]
		}
		rows[i] = row
	}
	r.Rows = rows
	r.Records = nil
	r.Fields = fields
	r.Columns = ColumnIndex(fields)
	r.Format = FormatList
}

// ToDict 把 list 格式结果转换为以字段名为键的记录
func (r *Result) ToDict() {
	if r.Format == FormatDict {
		return
	}
	recs := make([]map[string]any, len(r.Rows))
	for i, row := range r.Rows {
		rec := make(map[string]any, len(row))
		for c, v := range row {
			if c < len(r.Fields) {
				rec[r.Fields[c]] = v
			}
		}
		recs[i] = rec
	}
	r.Records = recs
	r.Rows = nil
	r.Columns = nil
	r.Format = FormatDict
}

type resultJSON struct {
	Format    string         `json:"format"`
	Fields    []string       `json:"fields,omitempty"`
	Columns   map[string]int `json:"columns,omitempty"`
	Data      any            `json:"data"`
	Count     *int64         `json:"count,omitempty"`
	MaxID     *int64         `json:"maxid,omitempty"`
	NextID    *int64         `json:"nextId,omitempty"`
	DataCount int            `json:"datacount"`
	Limit     int            `json:"limit"`
	Offset    int            `json:"offset"`
	Sort      []SortKey      `json:"sort,omitempty"`
}

func (r *Result) MarshalJSON() ([]byte, error) {
	out := resultJSON{
		Format:    r.Format,
		Fields:    r.Fields,
		Columns:   r.Columns,
		Count:     r.Count,
		MaxID:     r.MaxID,
		NextID:    r.NextID,
		DataCount: r.DataCount,
		Limit:     r.Limit,
		Offset:    r.Offset,
		Sort:      r.Sort,
	}
	if r.Format == FormatDict {
		out.Data = r.Records
		if r.Records == nil {
			out.Data = []map[string]any{}
		}
	} else {
		out.Data = r.Rows
		if r.Rows == nil {
			out.Data = [][]any{}
		}
	}
	return json.Marshal(out)
}

// Int64 返回指向 v 的指针，便于填充可选的结果字段。
func Int64(v int64) *int64 { return &v }
