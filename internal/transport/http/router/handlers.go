// file: internal/transport/http/router/handlers.go
package router

import (
	"GeoAegis/internal/core/domain"
	"GeoAegis/internal/core/port"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cast"
)

const defaultLimit = 50

// reservedParams 是控制查询本身的参数，其余参数都作为字段过滤条件
var reservedParams = map[string]bool{
	"source": true, "limit": true, "offset": true, "sort": true, "sortdir": true,
	"fields": true, "format": true, "clientid": true,
	"wait": true, "poll": true, "initwait": true, "nullgeo": true,
}

// findHandler 处理 GET /api/v1/geo/:resource
func findHandler(svc port.QueryService) gin.HandlerFunc {
	return func(c *gin.Context) {
		resource := c.Param("resource")
		rc, _, err := svc.Resource(resource)
		if err != nil {
			_ = c.Error(err)
			return
		}
		q := c.Request.URL.Query()
		req, opts, err := parseFind(q, rc)
		if err != nil {
			_ = c.Error(err)
			return
		}
		res, err := svc.Find(c.Request.Context(), resource, q.Get("source"), req, opts)
		if err != nil {
			_ = c.Error(err)
			return
		}
		c.JSON(http.StatusOK, res)
	}
}

// parseFind 把查询串转换为请求与等待选项
func parseFind(q url.Values, rc domain.ResourceConfig) (domain.Request, port.WaitOptions, error) {
	req := domain.Request{Limit: defaultLimit, Params: map[string]string{}}
	var opts port.WaitOptions

	var err error
	if req.Limit, err = intParam(q, "limit", defaultLimit); err != nil {
		return req, opts, err
	}
	if req.Offset, err = intParam(q, "offset", 0); err != nil {
		return req, opts, err
	}
	dir, err := intParam(q, "sortdir", 1)
	if err != nil {
		return req, opts, err
	}
	if s := q.Get("sort"); s != "" {
		req.Sort = domain.ParseSort(s, dir)
	} else if rc.DefaultSort != "" {
		req.Sort = domain.ParseSort(rc.DefaultSort, dir)
	}
	if f := q.Get("fields"); f != "" {
		req.Fields = strings.Fields(strings.ReplaceAll(f, ",", " "))
	}
	req.ClientID = q.Get("clientid")

	nullGeo, err := cast.ToBoolE(defaultString(q.Get("nullgeo"), "false"))
	if err != nil {
		return req, opts, port.NewValidationError("nullgeo", q.Get("nullgeo"), "需要布尔值")
	}
	req.RequireGeo = rc.RequireGeo && !nullGeo

	switch format := defaultString(q.Get("format"), domain.FormatList); format {
	case domain.FormatList, domain.FormatDict:
		opts.Format = format
	default:
		return req, opts, port.NewValidationError("format", format, "只支持 list 或 dict")
	}
	if opts.Wait, err = secondsParam(q, "wait"); err != nil {
		return req, opts, err
	}
	if opts.Poll, err = secondsParam(q, "poll"); err != nil {
		return req, opts, err
	}
	if opts.InitWait, err = secondsParam(q, "initwait"); err != nil {
		return req, opts, err
	}

	for key, values := range q {
		if reservedParams[key] || len(values) == 0 {
			continue
		}
		req.Params[key] = values[len(values)-1]
	}
	return req, opts, nil
}

func intParam(q url.Values, name string, def int) (int, error) {
	raw := q.Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || (v < 0 && name != "sortdir") {
		return 0, port.NewValidationError(name, raw, "需要非负整数")
	}
	return v, nil
}

// secondsParam 解析以秒为单位的浮点数；非正数视为未设置
func secondsParam(q url.Values, name string) (time.Duration, error) {
	raw := q.Get(name)
	if raw == "" {
		return 0, nil
	}
	v, err := cast.ToFloat64E(raw)
	if err != nil {
		return 0, port.NewValidationError(name, raw, "需要以秒为单位的数值")
	}
	if v <= 0 {
		return 0, nil
	}
	return time.Duration(v * float64(time.Second)), nil
}

func defaultString(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// resourceView 是资源列表中的一项
type resourceView struct {
	Name          string         `json:"name"`
	Catalog       string         `json:"catalog"`
	DefaultSource string         `json:"default_source"`
	DefaultSort   string         `json:"default_sort,omitempty"`
	Sources       []string       `json:"sources"`
	Fields        []domain.Field `json:"fields,omitempty"`
}

func describe(name string, rc domain.ResourceConfig, cat *domain.Catalog, withFields bool) resourceView {
	v := resourceView{
		Name:          name,
		Catalog:       rc.Catalog,
		DefaultSource: rc.DefaultSource,
		DefaultSort:   rc.DefaultSort,
	}
	for s := range rc.Sources {
		v.Sources = append(v.Sources, s)
	}
	sort.Strings(v.Sources)
	if withFields {
		v.Fields = cat.Fields()
	}
	return v
}

func resourcesHandler(svc port.QueryService) gin.HandlerFunc {
	return func(c *gin.Context) {
		out := make([]resourceView, 0)
		for _, name := range svc.Resources() {
			rc, cat, err := svc.Resource(name)
			if err != nil {
				continue
			}
			out = append(out, describe(name, rc, cat, false))
		}
		c.JSON(http.StatusOK, gin.H{"resources": out})
	}
}

func resourceHandler(svc port.QueryService) gin.HandlerFunc {
	return func(c *gin.Context) {
		name := c.Param("resource")
		rc, cat, err := svc.Resource(name)
		if err != nil {
			_ = c.Error(err)
			return
		}
		c.JSON(http.StatusOK, describe(name, rc, cat, true))
	}
}
