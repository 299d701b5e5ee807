// Package domain file: internal/core/domain/request.go
package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

const (
	// ParamIDMin 携带上一次轮询返回的游标；同时也是 _id 字段的下界过滤。
	ParamIDMin = "_id_min"
	// ParamIDMax 固定本次轮询的上界游标。
	ParamIDMax = "_id_max"

	SuffixMin    = "_min"
	SuffixMax    = "_max"
	SuffixSearch = "_search"
)

// SortKey 是排序列表中的一项。JSON 形式为 [field, 1|-1]。
type SortKey struct {
	Field string
	Desc  bool
}

func (k SortKey) Direction() int {
	if k.Desc {
		return -1
	}
	return 1
}

func (k SortKey) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{k.Field, k.Direction()})
}

func (k *SortKey) UnmarshalJSON(b []byte) error {
	var pair []any
	if err := json.Unmarshal(b, &pair); err != nil {
		return err
	}
	if len(pair) != 2 {
		return fmt.Errorf("排序项需要 [field, dir] 两个元素，得到 %d 个", len(pair))
	}
	field, ok := pair[0].(string)
	if !ok {
		return fmt.Errorf("排序字段必须是字符串")
	}
	dir, _ := pair[1].(float64)
	*k = SortKey{Field: field, Desc: dir == -1}
	return nil
}

// ParseSort 解析 "a,-b" 形式的排序列表；dir 为 -1 时所有未带前缀的键都按降序。
func ParseSort(spec string, dir int) []SortKey {
	var out []SortKey
	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		desc := dir == -1
		if strings.HasPrefix(part, "-") {
			desc = true
			part = part[1:]
		}
		out = append(out, SortKey{Field: part, Desc: desc})
	}
	return out
}

// Request 是一次查询的规范化请求。
// Params 是扁平的 field[,_min,_max,_search] 参数表，键名属于 Base 目录的字段空间。
type Request struct {
	Base       string            `json:"base"`
	Params     map[string]string `json:"params,omitempty"`
	Sort       []SortKey         `json:"sort,omitempty"`
	Limit      int               `json:"limit"`
	Offset     int               `json:"offset"`
	Fields     []string          `json:"fields,omitempty"`
	ClientID   string            `json:"client_id,omitempty"`
	RequireGeo bool              `json:"require_geo,omitempty"`
}

// Param 返回参数值；空字符串视为未提供。
func (r Request) Param(name string) (string, bool) {
	v, ok := r.Params[name]
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// WithParam 返回设置了某个参数的请求副本，原请求的参数表不受影响。
func (r Request) WithParam(name, value string) Request {
	params := make(map[string]string, len(r.Params)+1)
	for k, v := range r.Params {
		params[k] = v
	}
	params[name] = value
	r.Params = params
	return r
}

// Polling 报告该请求是否是一次后续轮询（携带了上一次的游标）。
func (r Request) Polling() bool {
	_, ok := r.Param(ParamIDMin)
	return ok
}
