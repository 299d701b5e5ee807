// Package elastic file: internal/adapter/datasource/elastic/client.go
package elastic

import (
	"GeoAegis/internal/core/port"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/elastic/go-elasticsearch/v8"
)

const backendName = "elasticsearch"

// searcher 执行一次检索请求；测试使用假实现
type searcher interface {
	Search(ctx context.Context, index string, body []byte) (*searchResponse, error)
	Ping(ctx context.Context) error
}

type searchResponse struct {
	Hits struct {
		Total json.RawMessage `json:"total"`
		Hits  []hit           `json:"hits"`
	} `json:"hits"`
}

type hit struct {
	ID     string         `json:"_id"`
	Score  *float64       `json:"_score"`
	Source map[string]any `json:"_source"`
}

// total 解析命中总数，兼容旧版本的数字与新版本的 {value, relation} 对象
func (r *searchResponse) total() (int64, bool) {
	raw := r.Hits.Total
	if len(raw) == 0 || string(raw) == "null" {
		return 0, false
	}
	var n int64
	if err := json.Unmarshal(raw, &n); err == nil {
		return n, true
	}
	var obj struct {
		Value int64 `json:"value"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return obj.Value, true
	}
	return 0, false
}

// esSearcher 基于官方客户端
type esSearcher struct {
	client *elasticsearch.Client
}

func newSearcher(hosts []string) (*esSearcher, error) {
	client, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: hosts})
	if err != nil {
		return nil, fmt.Errorf("创建检索客户端失败: %w", err)
	}
	return &esSearcher{client: client}, nil
}

func (s *esSearcher) Search(ctx context.Context, index string, body []byte) (*searchResponse, error) {
	resp, err := s.client.Search(
		s.client.Search.WithContext(ctx),
		s.client.Search.WithIndex(index),
		s.client.Search.WithBody(bytes.NewReader(body)),
	)
	if err != nil {
		return nil, classifyTransport(err)
	}
	defer resp.Body.Close()
	if resp.IsError() {
		return nil, statusError(resp.StatusCode, resp.Body)
	}
	var out searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, port.QueryFailed(backendName, "decode", err)
	}
	return &out, nil
}

func (s *esSearcher) Ping(ctx context.Context) error {
	resp, err := s.client.Ping(s.client.Ping.WithContext(ctx))
	if err != nil {
		return classifyTransport(err)
	}
	defer resp.Body.Close()
	if resp.IsError() {
		return statusError(resp.StatusCode, resp.Body)
	}
	return nil
}

func classifyTransport(err error) error {
	if errors.Is(err, context.Canceled) {
		return port.Cancelled(backendName, err)
	}
	return port.Unavailable(backendName, err)
}

// statusError 按 HTTP 状态分类：过载与网关错误可重试，其余是查询本身的问题
func statusError(status int, body io.Reader) error {
	var payload struct {
		Error struct {
			Type   string `json:"type"`
			Reason string `json:"reason"`
		} `json:"error"`
	}
	_ = json.NewDecoder(io.LimitReader(body, 64<<10)).Decode(&payload)
	err := fmt.Errorf("HTTP %d %s: %s", status, payload.Error.Type, payload.Error.Reason)
	switch status {
	case http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return port.Unavailable(backendName, err)
	}
	code := payload.Error.Type
	if code == "" {
		code = strconv.Itoa(status)
	}
	return port.QueryFailed(backendName, code, err)
}
