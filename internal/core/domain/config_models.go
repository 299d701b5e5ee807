// Package domain file: internal/core/domain/config_models.go
package domain

import "time"

// 数据源类型标识
const (
	KindPostgres      = "postgres"
	KindSQLite        = "sqlite"
	KindMongo         = "mongo"
	KindElasticsearch = "elasticsearch"
)

// ResourceConfig 定义了一个对外查询资源（例如 taxi、message）的配置。
// Catalog 是请求参数所属的规范字段空间，各数据源可以使用不同的后端目录。
type ResourceConfig struct {
	Catalog       string                  `mapstructure:"catalog" validate:"required"`
	DefaultSource string                  `mapstructure:"default_source" validate:"required"`
	DefaultSort   string                  `mapstructure:"default_sort"`
	RequireGeo    bool                    `mapstructure:"require_geo"`
	Sources       map[string]SourceConfig `mapstructure:"sources" validate:"required,min=1,dive"`
}

// SourceConfig 定义了单个后端数据源的连接与查询行为
type SourceConfig struct {
	Kind    string `mapstructure:"kind" validate:"required,oneof=postgres sqlite mongo elasticsearch"`
	Catalog string `mapstructure:"catalog" validate:"required"`

	// DSN 是 postgres/sqlite 的连接串或 mongo 的 URI
	DSN   string   `mapstructure:"dsn"`
	Hosts []string `mapstructure:"hosts"`
	// Table 是表名、集合名或索引名
	Table string `mapstructure:"table"`

	// Milliseconds 为 true 表示存储的日期是 epoch 毫秒，否则是 epoch 秒
	Milliseconds    bool   `mapstructure:"milliseconds"`
	AlwaysUseIDSort bool   `mapstructure:"always_use_id_sort"`
	DefaultSort     string `mapstructure:"default_sort"`
	ReportMaxID     bool   `mapstructure:"report_max_id"`
	Realtime        bool   `mapstructure:"realtime"`

	// Where 是总是以 AND 追加的 SQL 条件（postgres、sqlite）；
	// Filters 是总是以 AND 追加的过滤文档（elasticsearch 的查询子句、mongo 的匹配文档）
	Where   []string         `mapstructure:"where"`
	Filters []map[string]any `mapstructure:"filters"`

	// mongo 专用
	KeyTable      string `mapstructure:"key_table" validate:"omitempty,oneof=full compact"`
	Randomized    bool   `mapstructure:"randomized"`
	AllowUnsorted bool   `mapstructure:"allow_unsorted"`

	Pool PoolSettings     `mapstructure:"pool"`
	Live RealtimeSettings `mapstructure:"live"`
}

// PoolSettings 是关系型后端连接池的配置
type PoolSettings struct {
	MaxSize       int           `mapstructure:"max_size" validate:"gte=0"`
	IdleTime      time.Duration `mapstructure:"idle_time"`
	AbandonTime   time.Duration `mapstructure:"abandon_time"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
	MaxRetry      int           `mapstructure:"max_retry" validate:"gte=0"`
}

// RealtimeSettings 是实时轮询游标的窗口配置
type RealtimeSettings struct {
	Livetime    time.Duration `mapstructure:"livetime"`
	Tracktime   time.Duration `mapstructure:"tracktime"`
	BloatFactor float64       `mapstructure:"bloat_factor" validate:"gte=0"`
	DateField   string        `mapstructure:"date_field"`
}

// WithDefaults 返回补齐了默认值的连接池配置
func (p PoolSettings) WithDefaults() PoolSettings {
	if p.MaxSize <= 0 {
		p.MaxSize = 10
	}
	if p.IdleTime <= 0 {
		p.IdleTime = 300 * time.Second
	}
	if p.AbandonTime <= 0 {
		p.AbandonTime = p.IdleTime * 5
	}
	if p.SweepInterval <= 0 {
		p.SweepInterval = 30 * time.Second
	}
	if p.MaxRetry <= 0 {
		p.MaxRetry = 3
	}
	return p
}

// WithDefaults 返回补齐了默认值的实时窗口配置
func (r RealtimeSettings) WithDefaults() RealtimeSettings {
	if r.Livetime <= 0 {
		r.Livetime = 1800 * time.Second
	}
	if r.Tracktime <= 0 {
		r.Tracktime = 3600 * time.Second
	}
	if r.BloatFactor <= 0 {
		r.BloatFactor = 3
	}
	if r.DateField == "" {
		r.DateField = "msg_date"
	}
	return r
}
